// Package memory provides an in-memory presence store for SockMesh.
package memory

import (
	"context"
	"sort"
	"time"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
	"github.com/yndnr/sockmesh-go/pkg/cmap"
)

type entry struct {
	session   *domain.Session
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Store is an in-memory presence store.
type Store struct {
	entries *cmap.Map[entry]
	ttl     time.Duration
	now     func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithTTL expires entries that have not been refreshed within ttl.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: cmap.New[entry](),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores or refreshes a session.
func (s *Store) Put(_ context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return domain.ErrMissingArgument.WithDetails("session id is required")
	}
	e := entry{session: session.Clone()}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
	s.entries.Set(session.ID, e)
	return nil
}

// Get returns a session by ID.
func (s *Store) Get(_ context.Context, id string) (*domain.Session, error) {
	e, ok := s.entries.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if e.expired(s.now()) {
		s.entries.Delete(id)
		return nil, domain.ErrSessionNotFound
	}
	return e.session.Clone(), nil
}

// Delete removes a session.
func (s *Store) Delete(_ context.Context, id string) error {
	s.entries.Delete(id)
	return nil
}

// List returns all unexpired sessions, oldest first.
func (s *Store) List(_ context.Context) ([]*domain.Session, error) {
	now := s.now()
	var expired []string
	out := make([]*domain.Session, 0, s.entries.Count())

	s.entries.Range(func(id string, e entry) bool {
		if e.expired(now) {
			expired = append(expired, id)
			return true
		}
		out = append(out, e.session.Clone())
		return true
	})
	for _, id := range expired {
		s.entries.Delete(id)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt != out[j].ConnectedAt {
			return out[i].ConnectedAt < out[j].ConnectedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
