package config

// Default configuration values.
const (
	DefaultBind = "127.0.0.1"
	DefaultPort = 6379

	DefaultNumShards      = 2048
	DefaultBatchSize      = 256
	DefaultBufferSize     = 16 << 10
	DefaultBufferPoolSize = 2048

	DefaultMaxConnections    = 10000
	DefaultConnectionTimeout = 300

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultTCPKeepAlive = 60

	DefaultEvictionPolicy     = "allkeys-lru"
	DefaultEvictionSampleSize = 5
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Bind:              DefaultBind,
			Port:              DefaultPort,
			NumShards:         DefaultNumShards,
			BatchSize:         DefaultBatchSize,
			BufferSize:        DefaultBufferSize,
			BufferPoolSize:    DefaultBufferPoolSize,
			MaxConnections:    DefaultMaxConnections,
			ConnectionTimeout: DefaultConnectionTimeout,
		},
		Logging: LoggingSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Performance: PerformanceSection{
			TCPNoDelay:   true,
			TCPKeepAlive: DefaultTCPKeepAlive,
		},
		Memory: MemorySection{
			EvictionPolicy:     DefaultEvictionPolicy,
			EvictionSampleSize: DefaultEvictionSampleSize,
		},
	}
}
