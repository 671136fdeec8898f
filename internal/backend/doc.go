// Package backend models the single upstream Bot API server. It owns the
// outbound HTTP client and provides in-flight tracking, response time
// monitoring and a health flag maintained by the health checker.
package backend
