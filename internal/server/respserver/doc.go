// Package respserver provides the Redis protocol (RESP2) server for
// Redistill.
//
// It contains the streaming frame decoder and reply encoder, the
// command dispatcher, the per-connection pipeline with batched writes,
// the reusable write-buffer pool, and the TCP/TLS listener with
// admission control and graceful shutdown.
//
// The decoder is hardened against adversarial inputs: declared array
// and bulk lengths are validated against hard limits before any
// proportional allocation happens, and violations terminate only the
// offending connection.
package respserver
