// Package storage provides the presence store for SockMesh.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
	"github.com/yndnr/sockmesh-go/internal/storage/memory"
	"github.com/yndnr/sockmesh-go/internal/storage/redis"
)

// Backend names accepted by New.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// PresenceStore mirrors connected sessions.
type PresenceStore interface {
	// Put stores or refreshes a session.
	Put(ctx context.Context, session *domain.Session) error

	// Get returns a session, or domain.ErrSessionNotFound.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// List returns all unexpired sessions, oldest first.
	List(ctx context.Context) ([]*domain.Session, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Config selects and configures a presence backend.
type Config struct {
	Backend string
	TTL     time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// New creates the configured presence store. The "none" backend (or an
// empty one) returns a nil store and no error.
func New(cfg Config) (PresenceStore, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		return memory.New(memory.WithTTL(cfg.TTL)), nil
	case BackendRedis:
		opts := []redis.Option{redis.WithTTL(cfg.TTL)}
		if cfg.RedisPrefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.RedisPrefix))
		}
		return redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, opts...), nil
	default:
		return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown presence backend %q", cfg.Backend))
	}
}
