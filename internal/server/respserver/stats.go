package respserver

import (
	"sync/atomic"
	"time"
)

// Stats holds the server-wide counters read by INFO, the health
// endpoint, and the Prometheus collectors. All fields are updated with
// atomics; the command counter is fed in batches to keep the hot path
// off the shared cache line.
type Stats struct {
	start time.Time

	totalConnections    atomic.Uint64
	activeConnections   atomic.Int64
	rejectedConnections atomic.Uint64
	totalCommands       atomic.Uint64
}

// NewStats creates a counter set anchored at now.
func NewStats() *Stats {
	return &Stats{start: time.Now()}
}

// StartTime returns the server start instant.
func (s *Stats) StartTime() time.Time { return s.start }

// Uptime returns time elapsed since start.
func (s *Stats) Uptime() time.Duration { return time.Since(s.start) }

// MonotonicSeconds returns whole seconds elapsed since start; the
// store's expiration and LRU clocks run on this value.
func (s *Stats) MonotonicSeconds() int64 {
	return int64(time.Since(s.start) / time.Second)
}

// ConnectionOpened records an admitted connection.
func (s *Stats) ConnectionOpened() {
	s.totalConnections.Add(1)
	s.activeConnections.Add(1)
}

// ConnectionClosed records a connection teardown.
func (s *Stats) ConnectionClosed() {
	s.activeConnections.Add(-1)
}

// ConnectionRejected records an admission-control rejection.
func (s *Stats) ConnectionRejected() {
	s.rejectedConnections.Add(1)
}

// AddCommands credits a batch of processed commands.
func (s *Stats) AddCommands(n uint64) {
	if n > 0 {
		s.totalCommands.Add(n)
	}
}

// ActiveConnections returns the number of currently open connections.
func (s *Stats) ActiveConnections() int64 { return s.activeConnections.Load() }

// TotalConnections returns the number of connections ever admitted.
func (s *Stats) TotalConnections() uint64 { return s.totalConnections.Load() }

// RejectedConnections returns the number of rejected sockets.
func (s *Stats) RejectedConnections() uint64 { return s.rejectedConnections.Load() }

// TotalCommands returns the number of commands processed, including
// ones that replied with an error.
func (s *Stats) TotalCommands() uint64 { return s.totalCommands.Load() }
