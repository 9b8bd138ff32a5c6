package wsserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
	"github.com/yndnr/sockmesh-go/internal/core/service"
	"github.com/yndnr/sockmesh-go/pkg/engineio"
	"github.com/yndnr/sockmesh-go/pkg/socketio"
)

// Config holds the WebSocket transport configuration.
type Config struct {
	// PingInterval is the heartbeat period announced in the handshake.
	PingInterval time.Duration
	// PingTimeout is how long a silent connection survives past PingInterval.
	PingTimeout time.Duration
	// MaxPayload bounds a single inbound frame in bytes.
	MaxPayload int64
	// WriteTimeout bounds each frame write and the flush on close.
	WriteTimeout time.Duration
	// SendQueue is the outbound packet queue length per connection.
	SendQueue int
	// AllowedOrigins restricts browser origins. Empty or "*" allows any.
	AllowedOrigins []string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		PingInterval: 25 * time.Second,
		PingTimeout:  20 * time.Second,
		MaxPayload:   1_000_000,
		WriteTimeout: 10 * time.Second,
		SendQueue:    256,
	}
}

// Server upgrades Engine.IO WebSocket requests and attaches them to a
// registry.
type Server struct {
	cfg      Config
	registry *service.Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader

	running atomic.Bool
	conns   sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a WebSocket server. Zero config fields take their defaults.
func New(cfg Config, registry *service.Registry, opts ...Option) *Server {
	def := DefaultConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = def.MaxPayload
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = def.SendQueue
	}

	s := &Server{
		cfg:      cfg,
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.running.Store(true)
	return s
}

// ServeHTTP performs the handshake and serves the connection until it ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.running.Load() {
		writeHandshakeError(w, http.StatusServiceUnavailable, engineio.ErrCodeForbidden)
		return
	}

	q := r.URL.Query()
	protocol, err := engineio.ParseProtocol(q.Get("EIO"))
	if err != nil {
		writeHandshakeError(w, http.StatusBadRequest, engineio.ErrCodeUnsupportedProtocol)
		return
	}
	if q.Get("transport") != engineio.TransportWebSocket {
		s.logger.Debug("handshake rejected",
			"transport", q.Get("transport"),
			"remote_addr", r.RemoteAddr,
		)
		writeHandshakeError(w, http.StatusBadRequest, engineio.ErrCodeTransportUnknown)
		return
	}
	if q.Get("sid") != "" {
		// Upgrades from polling are never issued, so no sid can be valid.
		writeHandshakeError(w, http.StatusBadRequest, engineio.ErrCodeUnknownSID)
		return
	}
	if r.Method != http.MethodGet {
		writeHandshakeError(w, http.StatusBadRequest, engineio.ErrCodeBadHandshakeMethod)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	s.conns.Add(1)
	defer s.conns.Done()

	c := newConn(ws, s.cfg, protocol, s.logger)
	info := service.ConnInfo{
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		Protocol:   protocol,
	}
	c.serve(s.registry, info)
}

// Shutdown stops accepting handshakes and waits for served connections to
// finish, or for ctx to expire. Closing the sessions is the registry's job.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 || slices.Contains(s.cfg.AllowedOrigins, "*") {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(s.cfg.AllowedOrigins, func(allowed string) bool {
		return strings.EqualFold(strings.TrimSuffix(allowed, "/"), u.Scheme+"://"+u.Host)
	})
}

func writeHandshakeError(w http.ResponseWriter, status, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(engineio.NewHandshakeError(code))
}

// encodeMessage wraps a Socket.IO packet in an Engine.IO message frame.
func encodeMessage(p socketio.Packet) (string, error) {
	data, err := socketio.Encode(p)
	if err != nil {
		return "", domain.ErrInvalidPayload.WithCause(err)
	}
	return engineio.Encode(engineio.Packet{Type: engineio.Message, Data: data}), nil
}
