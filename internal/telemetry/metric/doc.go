// Package metric exposes Redistill's counters as Prometheus metrics.
//
// The collectors read the same atomic counters the command dispatcher
// and the store write; there is no separate metrics bookkeeping on the
// hot path.
package metric
