package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Source provides the counter snapshot the collectors publish.
type Source interface {
	UptimeSeconds() float64
	ActiveConnections() int64
	TotalConnections() uint64
	RejectedConnections() uint64
	TotalCommands() uint64
	UsedMemory() int64
	MaxMemory() int64
	KeyCount() int64
	EvictedKeys() uint64
}

// NewRegistry builds a Prometheus registry over src, plus the standard
// Go and process collectors.
func NewRegistry(src Source) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "redistill_uptime_seconds",
			Help: "Seconds since the server started.",
		}, src.UptimeSeconds),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "redistill_active_connections",
			Help: "Currently open client connections.",
		}, func() float64 { return float64(src.ActiveConnections()) }),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "redistill_connections_total",
			Help: "Client connections admitted since start.",
		}, func() float64 { return float64(src.TotalConnections()) }),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "redistill_rejected_connections_total",
			Help: "Connections refused by admission control.",
		}, func() float64 { return float64(src.RejectedConnections()) }),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "redistill_commands_total",
			Help: "Commands processed, including errored ones.",
		}, func() float64 { return float64(src.TotalCommands()) }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "redistill_memory_used_bytes",
			Help: "Approximate bytes charged against the memory budget.",
		}, func() float64 { return float64(src.UsedMemory()) }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "redistill_memory_max_bytes",
			Help: "Configured memory budget; 0 means unlimited.",
		}, func() float64 { return float64(src.MaxMemory()) }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "redistill_keys",
			Help: "Keys currently stored (expired-but-unreaped included).",
		}, func() float64 { return float64(src.KeyCount()) }),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "redistill_evicted_keys_total",
			Help: "Keys evicted under memory pressure.",
		}, func() float64 { return float64(src.EvictedKeys()) }),
	)
	return reg
}

// Handler returns the /metrics HTTP handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
