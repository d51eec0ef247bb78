// Package httpserver provides the HTTP sidecar endpoint for Redistill.
//
// It serves GET /health with a JSON counter snapshot and GET /metrics
// in Prometheus format, both reading the same counters the command
// dispatcher writes.
package httpserver
