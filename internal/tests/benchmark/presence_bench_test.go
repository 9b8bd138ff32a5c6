package benchmark

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
	"github.com/yndnr/sockmesh-go/internal/storage"
	"github.com/yndnr/sockmesh-go/internal/storage/memory"
	"github.com/yndnr/sockmesh-go/internal/storage/redis"
)

func prefillStore(b *testing.B, ctx context.Context, store storage.PresenceStore, count int) []*domain.Session {
	sessions := make([]*domain.Session, count)
	for i := 0; i < count; i++ {
		sessions[i] = createSession(b, i)
		if err := store.Put(ctx, sessions[i]); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
	return sessions
}

// BenchmarkMemoryPresencePut benchmarks refreshing presence entries at
// various scales.
func BenchmarkMemoryPresencePut(b *testing.B) {
	runWithSessionCounts(b, SmallSessionCounts, func(b *testing.B, count int) {
		ctx := context.Background()
		store := memory.New(memory.WithTTL(time.Minute))
		sessions := prefillStore(b, ctx, store, count)

		b.ResetTimer()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if err := store.Put(ctx, sessions[i%len(sessions)]); err != nil {
				b.Fatalf("Put failed: %v", err)
			}
		}

		b.StopTimer()
		reportMemory(b, "mem")
	})
}

// BenchmarkMemoryPresenceList benchmarks a full presence listing.
func BenchmarkMemoryPresenceList(b *testing.B) {
	runWithSessionCounts(b, SmallSessionCounts, func(b *testing.B, count int) {
		ctx := context.Background()
		store := memory.New(memory.WithTTL(time.Minute))
		prefillStore(b, ctx, store, count)

		b.ResetTimer()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			list, err := store.List(ctx)
			if err != nil {
				b.Fatalf("List failed: %v", err)
			}
			if len(list) != count {
				b.Fatalf("List returned %d sessions, want %d", len(list), count)
			}
		}
	})
}

// BenchmarkRedisPresencePut benchmarks presence writes through the Redis
// backend against an in-process server.
func BenchmarkRedisPresencePut(b *testing.B) {
	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := redis.New(mr.Addr(), "", 0, redis.WithTTL(time.Minute))
	defer store.Close()

	sessions := make([]*domain.Session, 1000)
	for i := range sessions {
		sessions[i] = createSession(b, i)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := store.Put(ctx, sessions[i%len(sessions)]); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
	b.StopTimer()
	b.ReportMetric(float64(len(mr.Keys())), "keys")
}
