package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/yndnr/sockmesh-go/internal/infra/tlsroots"
)

const readHeaderTimeout = 10 * time.Second

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	reloader   *tlsroots.Reloader
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithTLS serves HTTPS with certificates from reloader.
func WithTLS(reloader *tlsroots.Reloader) Option {
	return func(s *Server) {
		s.reloader = reloader
	}
}

// WithLogger sets the server error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a new HTTP server.
func New(addr string, handler http.Handler, opts ...Option) *Server {
	s := &Server{
		handler: handler,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	if s.reloader != nil {
		s.httpServer.TLSConfig = s.reloader.ServerConfig()
	}
	return s
}

// TLSEnabled reports whether the server serves HTTPS.
func (s *Server) TLSEnabled() bool {
	return s.reloader != nil
}

// ListenAndServe listens on the configured address and serves until
// Shutdown. It returns nil after a graceful shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	if s.reloader != nil {
		ln = tls.NewListener(ln, s.httpServer.TLSConfig)
	}
	s.logger.Info("http server listening",
		"addr", ln.Addr().String(),
		"tls", s.reloader != nil,
	)

	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server. Hijacked WebSocket
// connections are not tracked here and must be closed by their owner.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
