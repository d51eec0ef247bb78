package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/redistill/redistill/internal/infra/confloader"
	"github.com/redistill/redistill/internal/infra/shutdown"
	"github.com/redistill/redistill/internal/infra/tlsmaterial"
	"github.com/redistill/redistill/internal/server/config"
	"github.com/redistill/redistill/internal/server/httpserver"
	"github.com/redistill/redistill/internal/server/respserver"
	"github.com/redistill/redistill/internal/storage/memory"
	"github.com/redistill/redistill/internal/telemetry/logger"
	"github.com/redistill/redistill/internal/telemetry/metric"
)

// Build information, set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "redistill-server",
		Usage:   "Redis-wire-compatible in-memory cache server",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to YAML configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			return run(c.String("config"))
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stdout,
	})
	slog.SetDefault(log)

	log.Info("starting redistill-server",
		"version", version,
		"addr", cfg.Addr(),
		"shards", cfg.Server.NumShards,
		"max_memory", cfg.Memory.MaxMemory,
		"eviction_policy", cfg.Memory.EvictionPolicy,
		"auth", cfg.Security.Password != "",
		"tls", cfg.Security.TLSEnabled)

	policy, err := memory.ParsePolicy(cfg.Memory.EvictionPolicy)
	if err != nil {
		return err
	}
	store, err := memory.New(memory.Options{
		NumShards:  cfg.Server.NumShards,
		Policy:     policy,
		MaxMemory:  cfg.Memory.MaxMemory,
		SampleSize: cfg.Memory.EvictionSampleSize,
	})
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	tlsConfig, tlsLoader, err := loadTLS(cfg, log)
	if err != nil {
		return fmt.Errorf("load TLS material: %w", err)
	}

	stats := respserver.NewStats()
	srv := respserver.New(&respserver.Config{
		Addr:                cfg.Addr(),
		TLSConfig:           tlsConfig,
		MaxConnections:      cfg.Server.MaxConnections,
		ConnectionRateLimit: cfg.Server.ConnectionRateLimit,
		IdleTimeout:         time.Duration(cfg.Server.ConnectionTimeout) * time.Second,
		BatchSize:           cfg.Server.BatchSize,
		BufferSize:          cfg.Server.BufferSize,
		BufferPoolSize:      cfg.Server.BufferPoolSize,
		TCPNoDelay:          cfg.Performance.TCPNoDelay,
		TCPKeepAlive:        time.Duration(cfg.Performance.TCPKeepAlive) * time.Second,
		EvictionInterval:    100 * time.Millisecond,
	}, store, stats, cfg.Security.Password, log)

	ctx := context.Background()
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("bind %s: %w", cfg.Addr(), err)
	}

	shutdownHandler := shutdown.NewHandler(30 * time.Second)
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down redis server")
		return srv.Shutdown(ctx)
	})
	if tlsLoader != nil {
		tlsLoader.WatchAsync()
		shutdownHandler.OnShutdown(func(context.Context) error {
			tlsLoader.Stop()
			return nil
		})
	}

	if addr := cfg.HealthAddr(); addr != "" {
		src := &counterSource{store: store, stats: stats, srv: srv}
		healthSrv := httpserver.New(addr, httpserver.NewHandler(src, metric.Handler(metric.NewRegistry(src))))

		go func() {
			log.Info("health endpoint listening", "addr", addr)
			if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("health endpoint error", "error", err)
			}
		}()
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			log.Info("shutting down health endpoint")
			return healthSrv.Shutdown(ctx)
		})
	}

	log.Info("server started")
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("server stopped gracefully",
		"total_connections", stats.TotalConnections(),
		"total_commands", stats.TotalCommands(),
		"evicted_keys", store.EvictedKeys())
	return nil
}

// loadConfig merges defaults, the YAML file, and environment
// overrides, then validates the result.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadTLS builds the TLS config and its hot-reload loader when TLS is
// enabled.
func loadTLS(cfg *config.ServerConfig, log *slog.Logger) (*tls.Config, *tlsmaterial.Loader, error) {
	if !cfg.Security.TLSEnabled {
		return nil, nil, nil
	}
	loader, err := tlsmaterial.NewLoader(
		cfg.Security.TLSCertPath,
		cfg.Security.TLSKeyPath,
		tlsmaterial.WithLogger(log),
	)
	if err != nil {
		return nil, nil, err
	}
	return loader.ServerConfig(), loader, nil
}

// counterSource adapts the server counters to the health and metrics
// interfaces.
type counterSource struct {
	store *memory.Store
	stats *respserver.Stats
	srv   *respserver.Server
}

func (s *counterSource) Accepting() bool              { return s.srv.Running() }
func (s *counterSource) UptimeSeconds() float64       { return s.stats.Uptime().Seconds() }
func (s *counterSource) ActiveConnections() int64     { return s.stats.ActiveConnections() }
func (s *counterSource) TotalConnections() uint64     { return s.stats.TotalConnections() }
func (s *counterSource) RejectedConnections() uint64  { return s.stats.RejectedConnections() }
func (s *counterSource) TotalCommands() uint64        { return s.stats.TotalCommands() }
func (s *counterSource) UsedMemory() int64            { return s.store.UsedMemory() }
func (s *counterSource) MaxMemory() int64             { return s.store.MaxMemory() }
func (s *counterSource) KeyCount() int64              { return s.store.Len() }
func (s *counterSource) EvictedKeys() uint64          { return s.store.EvictedKeys() }
