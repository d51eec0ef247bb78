package respserver

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/redistill/redistill/internal/storage/memory"
)

// Config holds the Redis protocol server configuration.
type Config struct {
	// Addr is the TCP listen address.
	Addr string

	// TLSConfig enables TLS when non-nil; the same port then accepts
	// encrypted connections only.
	TLSConfig *tls.Config

	// MaxConnections caps concurrently open connections; 0 = unlimited.
	MaxConnections int

	// ConnectionRateLimit caps admitted connections per second via a
	// token bucket; 0 disables.
	ConnectionRateLimit int

	// IdleTimeout closes a connection that stays silent this long.
	IdleTimeout time.Duration

	// BatchSize is the number of pipelined commands processed before a
	// forced reply flush.
	BatchSize int

	// BufferSize is the read buffer and pooled write buffer size.
	BufferSize int

	// BufferPoolSize is the write-buffer pool bound.
	BufferPoolSize int

	// TCPNoDelay disables Nagle's algorithm on accepted sockets.
	TCPNoDelay bool

	// TCPKeepAlive is the keepalive probe period; 0 disables.
	TCPKeepAlive time.Duration

	// EvictionInterval is the period of the background memory-pressure
	// check.
	EvictionInterval time.Duration
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:             "127.0.0.1:6379",
		MaxConnections:   10000,
		IdleTimeout:      300 * time.Second,
		BatchSize:        256,
		BufferSize:       DefaultBufferSize,
		BufferPoolSize:   DefaultPoolSize,
		TCPNoDelay:       true,
		TCPKeepAlive:     60 * time.Second,
		EvictionInterval: 100 * time.Millisecond,
	}
}

// Server accepts Redis protocol connections and serves them against
// the shared store. Each connection runs as one goroutine; the store
// itself never blocks on I/O.
type Server struct {
	cfg     *Config
	store   *memory.Store
	stats   *Stats
	handler *Handler
	pool    *BufferPool
	limiter *rate.Limiter
	logger  *slog.Logger

	ln      net.Listener
	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// New creates a server. password empty disables the AUTH gate.
func New(cfg *Config, store *memory.Store, stats *Stats, password string, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.ConnectionRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ConnectionRateLimit), cfg.ConnectionRateLimit)
	}

	return &Server{
		cfg:     cfg,
		store:   store,
		stats:   stats,
		handler: NewHandler(store, stats, password, logger),
		pool:    NewBufferPool(cfg.BufferPoolSize, cfg.BufferSize),
		limiter: limiter,
		logger:  logger,
		done:    make(chan struct{}),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Handler returns the command handler (shared by tests and tools).
func (s *Server) Handler() *Handler { return s.handler }

// Addr returns the bound listen address, valid after Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Running reports whether the server is accepting connections.
func (s *Server) Running() bool { return s.running.Load() }

// Start binds the listener and begins accepting. The bind happens
// synchronously so the caller can fail fast on an unusable address;
// the accept loop and the eviction tick run in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.running.Store(true)

	s.logger.Info("redis server listening",
		"addr", ln.Addr().String(),
		"tls", s.cfg.TLSConfig != nil,
		"max_connections", s.cfg.MaxConnections)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx)
	}()

	if s.store.MaxMemory() > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.evictionLoop()
		}()
	}
	return nil
}

// Shutdown stops accepting, signals connection goroutines to finish
// their in-flight commands, and waits up to the context deadline
// before force-closing stragglers.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	close(s.done)
	if s.ln != nil {
		_ = s.ln.Close()
	}

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		s.closeAllConns()
		<-finished
	}

	s.logger.Info("redis server stopped",
		"total_connections", s.stats.TotalConnections(),
		"total_commands", s.stats.TotalCommands(),
		"keys", s.store.Len())
	return nil
}

func (s *Server) closeAllConns() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}

func (s *Server) trackConn(c net.Conn) {
	s.connMu.Lock()
	s.conns[c] = struct{}{}
	s.connMu.Unlock()
}

func (s *Server) untrackConn(c net.Conn) {
	s.connMu.Lock()
	delete(s.conns, c)
	s.connMu.Unlock()
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.logger.Warn("accept error", "error", err)
			continue
		}

		// Admission control: over-capacity and over-rate sockets are
		// closed without a reply and counted.
		if s.cfg.MaxConnections > 0 && s.stats.ActiveConnections() >= int64(s.cfg.MaxConnections) {
			s.stats.ConnectionRejected()
			_ = c.Close()
			continue
		}
		if s.limiter != nil && !s.limiter.Allow() {
			s.stats.ConnectionRejected()
			_ = c.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, c)
		}()
	}
}

// serveConn runs one connection: TCP tuning, optional TLS handshake,
// then the read -> decode -> dispatch -> batched write loop.
func (s *Server) serveConn(ctx context.Context, raw net.Conn) {
	s.tuneConn(raw)

	conn := raw
	if s.cfg.TLSConfig != nil {
		tlsConn := tls.Server(raw, s.cfg.TLSConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			s.logger.Debug("tls handshake failed",
				"remote", raw.RemoteAddr().String(),
				"error", err)
			_ = raw.Close()
			return
		}
		conn = tlsConn
	}

	connID := ulid.Make().String()
	s.stats.ConnectionOpened()
	s.trackConn(conn)
	defer func() {
		s.untrackConn(conn)
		s.stats.ConnectionClosed()
		_ = conn.Close()
	}()

	r := NewReader(conn, s.cfg.BufferSize)
	w := NewWriter(s.pool)
	defer w.Release()
	state := s.handler.NewConnState()

	log := s.logger.With("conn", connID, "remote", conn.RemoteAddr().String())
	log.Debug("connection established")

	var commands uint64
	defer func() { s.stats.AddCommands(commands) }()

	for {
		if !s.running.Load() {
			return
		}

		// Idle deadline applies while waiting for the next command.
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
			return
		}
		if _, err := r.PeekByte(); err != nil {
			s.logReadEnd(log, err)
			return
		}

		// Drain every frame already buffered, flushing replies at the
		// batch bound so pipelined clients get single large writes.
		batch := 0
		for {
			args, err := r.ReadCommand()
			if err != nil {
				s.failConn(log, conn, w, err)
				return
			}
			if len(args) == 0 {
				// Empty frame or blank inline line: not a command.
				if !r.Buffered() {
					if err := w.FlushTo(conn); err != nil {
						return
					}
					break
				}
				continue
			}

			closeReq := s.handler.Handle(state, args, w, s.handler.Now())
			commands++
			batch++

			if closeReq {
				_ = w.FlushTo(conn)
				log.Debug("connection quit")
				return
			}
			if batch >= s.cfg.BatchSize || w.Len() >= s.cfg.BufferSize || !r.Buffered() {
				if err := w.FlushTo(conn); err != nil {
					return
				}
				batch = 0
				s.stats.AddCommands(commands)
				commands = 0
			}
			if !r.Buffered() {
				break
			}
		}
	}
}

// failConn handles a per-connection fatal decode error: the client
// gets one final error frame, then the connection closes. Nothing
// propagates beyond the connection.
func (s *Server) failConn(log *slog.Logger, conn net.Conn, w *Writer, err error) {
	switch {
	case errors.Is(err, ErrLimitExceeded):
		log.Warn("protocol limit exceeded", "error", err)
		w.Error("ERR Protocol error: " + err.Error())
		_ = w.FlushTo(conn)
	case errors.Is(err, ErrProtocol):
		log.Debug("protocol error", "error", err)
		w.Error("ERR Protocol error: " + err.Error())
		_ = w.FlushTo(conn)
	default:
		s.logReadEnd(log, err)
		_ = w.FlushTo(conn)
	}
}

func (s *Server) logReadEnd(log *slog.Logger, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		log.Debug("connection closed by peer")
	case errors.As(err, &netErr) && netErr.Timeout():
		log.Debug("connection idle timeout")
	case errors.Is(err, net.ErrClosed):
	default:
		log.Debug("connection read error", "error", err)
	}
}

func (s *Server) tuneConn(c net.Conn) {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tc.SetNoDelay(s.cfg.TCPNoDelay)
	if s.cfg.TCPKeepAlive > 0 {
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(s.cfg.TCPKeepAlive)
	}
}

// evictionLoop is the periodic memory-pressure check. SET already
// triggers eviction inline; the tick catches pressure built up from
// counter lag or TTL-less growth between writes.
func (s *Server) evictionLoop() {
	interval := s.cfg.EvictionInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.store.RunEvictionCycle(s.handler.Now()); n > 0 {
				s.logger.Debug("eviction cycle", "evicted", n,
					"used_memory", s.store.UsedMemory())
			}
		case <-s.done:
			return
		}
	}
}
