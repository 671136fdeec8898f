// Package handler implements the proxy handler served for matched Bot API
// routes. It extracts the bot token and method from the path, forwards the
// request to the upstream under the circuit breaker, and relays status,
// body and content type back to the client. Failures are answered with Bot
// API style JSON errors; nothing is retried.
package handler
