// Package logger provides structured logging for Redistill.
//
// It wraps the standard library log/slog with level configuration,
// text or JSON output, and automatic redaction of sensitive fields
// such as the server password.
package logger
