package httpserver

import (
	"encoding/json"
	"net/http"
)

// HealthSource provides the counter snapshot /health reports.
type HealthSource interface {
	// Accepting reports whether the Redis listener takes connections.
	Accepting() bool
	UptimeSeconds() float64
	ActiveConnections() int64
	TotalConnections() uint64
	RejectedConnections() uint64
	UsedMemory() int64
	MaxMemory() int64
	EvictedKeys() uint64
	TotalCommands() uint64
}

// healthReply is the GET /health response body.
type healthReply struct {
	Status              string `json:"status"`
	UptimeSeconds       int64  `json:"uptime_seconds"`
	ActiveConnections   int64  `json:"active_connections"`
	TotalConnections    uint64 `json:"total_connections"`
	RejectedConnections uint64 `json:"rejected_connections"`
	MemoryUsed          int64  `json:"memory_used"`
	MaxMemory           int64  `json:"max_memory"`
	EvictedKeys         uint64 `json:"evicted_keys"`
	TotalCommands       uint64 `json:"total_commands"`
}

// NewHandler routes the sidecar endpoints. metricsHandler may be nil
// to disable /metrics.
func NewHandler(src HealthSource, metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		reply := healthReply{
			Status:              "ok",
			UptimeSeconds:       int64(src.UptimeSeconds()),
			ActiveConnections:   src.ActiveConnections(),
			TotalConnections:    src.TotalConnections(),
			RejectedConnections: src.RejectedConnections(),
			MemoryUsed:          src.UsedMemory(),
			MaxMemory:           src.MaxMemory(),
			EvictedKeys:         src.EvictedKeys(),
			TotalCommands:       src.TotalCommands(),
		}
		status := http.StatusOK
		if !src.Accepting() {
			reply.Status = "shutting_down"
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(reply)
	})
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	return mux
}
