// Package healthcheck implements periodic health checking of the upstream
// Bot API server. It updates the backend's health status and reports
// transitions to the metrics collector. Health is informational only:
// requests are still forwarded while the upstream is marked down.
package healthcheck
