// Package service provides the connection registry and event router for SockMesh.
package service

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
	"github.com/yndnr/sockmesh-go/pkg/cmap"
)

// DefaultQueueSize is the per-session inbox capacity used when none is set.
const DefaultQueueSize = 128

// presenceTimeout bounds a single presence store call.
const presenceTimeout = 2 * time.Second

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// QueueSize is the capacity of each session's dispatch queue.
	QueueSize int

	// AckTimeout fails pending acknowledgements with domain.ErrAckTimeout.
	// Zero waits until the session closes.
	AckTimeout time.Duration

	// RateLimit is the sustained inbound events per second per session.
	// Zero disables limiting.
	RateLimit float64

	// RateBurst is the inbound burst size. Defaults to ceil(RateLimit).
	RateBurst int

	// MaxSessions caps live sessions. Zero is unlimited.
	MaxSessions int
}

// RegistryOption configures optional Registry collaborators.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPresence mirrors connected sessions into store.
func WithPresence(store PresenceStore) RegistryOption {
	return func(r *Registry) {
		r.presence = store
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) RegistryOption {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// Registry tracks live sessions and notifies on connect and disconnect.
type Registry struct {
	cfg      RegistryConfig
	logger   *slog.Logger
	presence PresenceStore
	metrics  Metrics

	sockets *cmap.Map[*Socket]
	size    atomic.Int64
	closed  atomic.Bool

	mu       sync.RWMutex
	handlers []ConnectionHandler
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg RegistryConfig, opts ...RegistryOption) *Registry {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.RateLimit > 0 && cfg.RateBurst <= 0 {
		cfg.RateBurst = int(math.Ceil(cfg.RateLimit))
	}

	r := &Registry{
		cfg:     cfg,
		logger:  slog.Default(),
		metrics: nopMetrics{},
		sockets: cmap.New[*Socket](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnConnection registers a handler called for every connected session.
// Handlers run in registration order on the session's dispatch queue.
func (r *Registry) OnConnection(fn ConnectionHandler) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, fn)
}

func (r *Registry) connectionHandlers() []ConnectionHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ConnectionHandler, len(r.handlers))
	copy(out, r.handlers)
	return out
}

// Attach creates a connecting session for an accepted transport.
func (r *Registry) Attach(t Transport, info ConnInfo) (*Socket, error) {
	if t == nil {
		return nil, domain.ErrMissingArgument.WithDetails("transport is required")
	}
	if r.closed.Load() {
		return nil, domain.ErrServiceUnavailable.WithDetails("registry is closed")
	}

	n := r.size.Add(1)
	if r.cfg.MaxSessions > 0 && n > int64(r.cfg.MaxSessions) {
		r.size.Add(-1)
		return nil, domain.ErrSessionLimit
	}

	session, err := domain.NewSession(info.RemoteAddr, info.UserAgent, info.Protocol)
	if err != nil {
		r.size.Add(-1)
		return nil, err
	}

	s := newSocket(r, session, t)
	if !r.sockets.SetIfAbsent(session.ID, s) {
		r.size.Add(-1)
		return nil, domain.ErrSessionConflict.WithDetails(session.ID)
	}
	r.metrics.SessionOpened()
	go s.run()

	s.logger.Debug("session attached",
		"remote_addr", info.RemoteAddr,
		"protocol", info.Protocol,
	)

	// Close may have swept the map before this socket was stored.
	if r.closed.Load() {
		s.close(domain.ReasonServerShutdown)
	}
	return s, nil
}

// Get returns the live socket with the given ID.
func (r *Registry) Get(id string) (*Socket, error) {
	s, ok := r.sockets.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound.WithDetails(id)
	}
	return s, nil
}

// List returns snapshots of all live sessions, oldest first.
func (r *Registry) List() []*domain.Session {
	sockets := r.sockets.Values()
	out := make([]*domain.Session, 0, len(sockets))
	for _, s := range sockets {
		out = append(out, s.Session())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt != out[j].ConnectedAt {
			return out[i].ConnectedAt < out[j].ConnectedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	return r.sockets.Count()
}

// Disconnect starts a server-side disconnect of session id.
func (r *Registry) Disconnect(id string, reason domain.Reason) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	s.close(reason)
	return nil
}

// Close disconnects every session with domain.ReasonServerShutdown and
// waits for their disconnect hooks to finish or ctx to expire.
// New sessions are refused once Close has been called.
func (r *Registry) Close(ctx context.Context) error {
	r.closed.Store(true)

	sockets := r.sockets.Values()
	for _, s := range sockets {
		s.close(domain.ReasonServerShutdown)
	}
	for _, s := range sockets {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.logger.Info("registry closed", "sessions", len(sockets))
	return nil
}

// Closed reports whether Close has been called.
func (r *Registry) Closed() bool {
	return r.closed.Load()
}

// SyncPresence rewrites every connected session into the presence store,
// refreshing its last-active time and expiry. It returns the number of
// sessions written and the first error met; a failure does not stop the
// remaining writes.
func (r *Registry) SyncPresence(ctx context.Context) (int, error) {
	if r.presence == nil {
		return 0, nil
	}

	var n int
	var firstErr error
	for _, s := range r.sockets.Values() {
		session := s.Session()
		if session.State != domain.StateConnected {
			continue
		}
		if err := r.presence.Put(ctx, session); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		// The session may have been removed, and its entry deleted, while
		// the write was in flight.
		if !r.sockets.Has(session.ID) {
			if err := r.presence.Delete(ctx, session.ID); err != nil && firstErr == nil {
				firstErr = err
			}
			continue
		}
		n++
	}
	if firstErr != nil {
		r.logger.Warn("presence sync incomplete", "written", n, "error", firstErr)
	}
	return n, firstErr
}

func (r *Registry) putPresence(session *domain.Session) {
	if r.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := r.presence.Put(ctx, session); err != nil {
		r.logger.Warn("presence put failed", "session_id", session.ID, "error", err)
	}
}

func (r *Registry) remove(s *Socket, reason domain.Reason) {
	if _, ok := r.sockets.Pop(s.id); !ok {
		return
	}
	r.size.Add(-1)
	r.metrics.SessionClosed(reason)

	if r.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := r.presence.Delete(ctx, s.id); err != nil {
		r.logger.Warn("presence delete failed", "session_id", s.id, "error", err)
	}
}
