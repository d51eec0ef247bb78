package httpserver

import (
	"context"
	"net/http"
	"time"
)

// Server is the HTTP sidecar server.
type Server struct {
	httpServer *http.Server
}

// New creates an HTTP server on addr with the given handler.
func New(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// ListenAndServe starts serving; blocks until Shutdown or error.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
