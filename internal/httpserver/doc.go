// Package httpserver wraps net/http.Server with address validation,
// configurable timeouts and graceful shutdown. The proxy and admin
// listeners both run on it.
package httpserver
