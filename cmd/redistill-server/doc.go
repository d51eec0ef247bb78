// Package main provides the entry point for redistill-server.
//
// redistill-server is a Redis-wire-compatible in-memory cache server
// optimized for read-heavy workloads: a sharded store with TTL and
// approximate-LRU eviction behind a hardened RESP2 front end.
package main
