package config

import (
	"net"
	"strconv"
)

// ServerConfig is the root configuration for redistill-server.
type ServerConfig struct {
	Server      ServerSection      `koanf:"server"`
	Security    SecuritySection    `koanf:"security"`
	Logging     LoggingSection     `koanf:"logging"`
	Performance PerformanceSection `koanf:"performance"`
	Memory      MemorySection      `koanf:"memory"`
}

// ServerSection configures the listener and the connection pipeline.
type ServerSection struct {
	Bind string `koanf:"bind"`
	Port int    `koanf:"port"`

	// NumShards is the store partition count; must be a power of two.
	NumShards int `koanf:"num_shards"`

	// BatchSize is the number of pipelined commands processed before a
	// forced reply flush.
	BatchSize int `koanf:"batch_size"`

	// BufferSize and BufferPoolSize set the write-buffer geometry.
	BufferSize     int `koanf:"buffer_size"`
	BufferPoolSize int `koanf:"buffer_pool_size"`

	MaxConnections      int `koanf:"max_connections"`
	ConnectionRateLimit int `koanf:"connection_rate_limit"`

	// ConnectionTimeout is the idle timeout in seconds.
	ConnectionTimeout int `koanf:"connection_timeout"`

	// HealthCheckPort serves HTTP /health and /metrics; 0 disables.
	HealthCheckPort int `koanf:"health_check_port"`
}

// SecuritySection configures authentication and TLS.
type SecuritySection struct {
	// Password gates every command but PING/AUTH/QUIT; empty disables.
	Password string `koanf:"password"`

	TLSEnabled  bool   `koanf:"tls_enabled"`
	TLSCertPath string `koanf:"tls_cert_path"`
	TLSKeyPath  string `koanf:"tls_key_path"`
}

// LoggingSection configures structured logging.
type LoggingSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// PerformanceSection configures per-socket tuning.
type PerformanceSection struct {
	TCPNoDelay bool `koanf:"tcp_nodelay"`

	// TCPKeepAlive is the keepalive period in seconds; 0 disables.
	TCPKeepAlive int `koanf:"tcp_keepalive"`
}

// MemorySection configures the memory budget and eviction.
type MemorySection struct {
	// MaxMemory is the budget in bytes; 0 means unlimited.
	MaxMemory int64 `koanf:"max_memory"`

	EvictionPolicy     string `koanf:"eviction_policy"`
	EvictionSampleSize int    `koanf:"eviction_sample_size"`
}

// Addr returns the listener address as host:port.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Server.Bind, strconv.Itoa(c.Server.Port))
}

// HealthAddr returns the health endpoint address, empty when disabled.
func (c *ServerConfig) HealthAddr() string {
	if c.Server.HealthCheckPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.Server.Bind, strconv.Itoa(c.Server.HealthCheckPort))
}
