// Package redis provides a Redis-backed presence store for SockMesh.
//
// Each session is a JSON document under <prefix><id>. A sorted set at
// <prefix>index scores members by expiry so listings can prune stale
// entries without scanning the keyspace.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "sockmesh:presence:"

// noExpiryScore is the index score of entries without a TTL (2100-01-01).
const noExpiryScore = 4102444800

// Store implements a presence store on Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithTTL sets the expiration for presence entries.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Put stores or refreshes a session.
func (s *Store) Put(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return domain.ErrMissingArgument.WithDetails("session id is required")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return domain.ErrStorageError.WithCause(fmt.Errorf("marshal session: %w", err))
	}

	score := float64(noExpiryScore)
	if s.ttl > 0 {
		score = float64(time.Now().Add(s.ttl).Unix())
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(session.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: session.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.ErrStorageError.WithCause(fmt.Errorf("save presence: %w", err))
	}
	return nil
}

// Get returns a session by ID.
func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, domain.ErrStorageError.WithCause(fmt.Errorf("get presence: %w", err))
	}

	var session domain.Session
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, domain.ErrStorageError.WithCause(fmt.Errorf("unmarshal presence: %w", err))
	}
	return &session, nil
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, id string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.ErrStorageError.WithCause(fmt.Errorf("delete presence: %w", err))
	}
	return nil
}

// List returns all unexpired sessions, oldest first.
func (s *Store) List(ctx context.Context) ([]*domain.Session, error) {
	now := fmt.Sprintf("%d", time.Now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+now).Err(); err != nil {
		return nil, domain.ErrStorageError.WithCause(fmt.Errorf("prune presence index: %w", err))
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(fmt.Errorf("list presence index: %w", err))
	}
	if len(ids) == 0 {
		return []*domain.Session{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(fmt.Errorf("load presence: %w", err))
	}

	out := make([]*domain.Session, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			// Expired document whose index entry has not been pruned yet.
			continue
		}
		var session domain.Session
		if err := json.Unmarshal([]byte(str), &session); err != nil {
			return nil, domain.ErrStorageError.WithCause(fmt.Errorf("unmarshal presence: %w", err))
		}
		out = append(out, &session)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt != out[j].ConnectedAt {
			return out[i].ConnectedAt < out[j].ConnectedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
