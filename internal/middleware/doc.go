// Package middleware provides the http.Handler wrappers placed in front of
// the router: panic recovery, request IDs and access logging.
package middleware
