// Package logger builds the application's structured logger on top of
// log/slog: human readable text outside production, JSON in production,
// with service and environment attributes on every record.
package logger
