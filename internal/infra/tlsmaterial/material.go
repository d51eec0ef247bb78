package tlsmaterial

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Loader holds the current server key pair and serves it to TLS
// handshakes.
type Loader struct {
	certFile string
	keyFile  string
	logger   *slog.Logger

	mu   sync.RWMutex
	cert *tls.Certificate

	// Debounce to absorb editors and rotation tools writing cert and
	// key as separate events.
	debounce   time.Duration
	reloadMu   sync.Mutex
	lastReload time.Time

	done chan struct{}
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// WithDebounce sets the reload debounce window.
func WithDebounce(d time.Duration) Option {
	return func(l *Loader) { l.debounce = d }
}

// NewLoader loads the key pair from certFile and keyFile. Failure to
// load the initial material is fatal to the caller.
func NewLoader(certFile, keyFile string, opts ...Option) (*Loader, error) {
	l := &Loader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   slog.Default(),
		debounce: 500 * time.Millisecond,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.reload(); err != nil {
		return nil, fmt.Errorf("tlsmaterial: initial load: %w", err)
	}
	return l, nil
}

// ServerConfig returns a tls.Config that always presents the current
// certificate.
func (l *Loader) ServerConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: l.GetCertificate,
	}
}

// GetCertificate implements tls.Config.GetCertificate.
func (l *Loader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cert, nil
}

func (l *Loader) reload() error {
	cert, err := tls.LoadX509KeyPair(l.certFile, l.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}

	l.mu.Lock()
	l.cert = &cert
	l.mu.Unlock()

	l.logger.Info("tls certificate loaded", "cert_file", l.certFile)
	return nil
}

func (l *Loader) debouncedReload() error {
	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()

	now := time.Now()
	if now.Sub(l.lastReload) < l.debounce {
		return nil
	}
	l.lastReload = now

	// Give the writer a moment to finish both files.
	time.Sleep(100 * time.Millisecond)
	return l.reload()
}
