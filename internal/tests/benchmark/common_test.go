package benchmark

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
	"github.com/yndnr/sockmesh-go/pkg/socketio"
)

// SessionCounts defines the session counts for benchmarking.
var SessionCounts = []int{5000, 10000, 20000, 50000, 100000}

// SmallSessionCounts for quick benchmarks.
var SmallSessionCounts = []int{1000, 5000, 10000}

// nopTransport discards outbound packets.
type nopTransport struct{}

func (nopTransport) Send(socketio.Packet) error { return nil }
func (nopTransport) Close() error               { return nil }

// createSession creates a connected test session.
func createSession(b *testing.B, i int) *domain.Session {
	s, err := domain.NewSession(fmt.Sprintf("10.0.%d.%d:40000", (i/250)%250, i%250), "BenchmarkTest/1.0", 4)
	if err != nil {
		b.Fatalf("NewSession failed: %v", err)
	}
	if err := s.Transition(domain.StateConnected); err != nil {
		b.Fatalf("Transition failed: %v", err)
	}
	return s
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithSessionCounts runs a benchmark function with various session counts.
func runWithSessionCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("sessions_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
