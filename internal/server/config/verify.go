package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/redistill/redistill/internal/storage/memory"
)

// Verify validates the configuration. A failure here is fatal at
// startup: the process logs and exits non-zero.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifySecurity(&cfg.Security); err != nil {
		return err
	}
	return verifyMemory(&cfg.Memory)
}

func verifyServer(cfg *ServerSection) error {
	if cfg.Bind == "" {
		return errors.New("server.bind is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Port)
	}
	if cfg.HealthCheckPort < 0 || cfg.HealthCheckPort > 65535 {
		return fmt.Errorf("server.health_check_port %d out of range", cfg.HealthCheckPort)
	}
	if cfg.HealthCheckPort != 0 && cfg.HealthCheckPort == cfg.Port {
		return errors.New("server.health_check_port conflicts with server.port")
	}
	if n := cfg.NumShards; n <= 0 || n&(n-1) != 0 {
		return fmt.Errorf("server.num_shards %d must be a power of two", n)
	}
	if cfg.BatchSize < 1 {
		return errors.New("server.batch_size must be at least 1")
	}
	if cfg.BufferSize < 1 {
		return errors.New("server.buffer_size must be at least 1")
	}
	if cfg.BufferPoolSize < 0 {
		return errors.New("server.buffer_pool_size must not be negative")
	}
	if cfg.MaxConnections < 0 {
		return errors.New("server.max_connections must not be negative")
	}
	if cfg.ConnectionRateLimit < 0 {
		return errors.New("server.connection_rate_limit must not be negative")
	}
	if cfg.ConnectionTimeout < 0 {
		return errors.New("server.connection_timeout must not be negative")
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	if !cfg.TLSEnabled {
		return nil
	}
	if cfg.TLSCertPath == "" || cfg.TLSKeyPath == "" {
		return errors.New("security.tls_enabled requires tls_cert_path and tls_key_path")
	}
	for _, path := range []string{cfg.TLSCertPath, cfg.TLSKeyPath} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("TLS material %s: %w", path, err)
		}
	}
	return nil
}

func verifyMemory(cfg *MemorySection) error {
	if cfg.MaxMemory < 0 {
		return errors.New("memory.max_memory must not be negative")
	}
	if _, err := memory.ParsePolicy(cfg.EvictionPolicy); err != nil {
		return fmt.Errorf("memory.eviction_policy: %w", err)
	}
	if cfg.EvictionSampleSize < 1 {
		return errors.New("memory.eviction_sample_size must be at least 1")
	}
	return nil
}
