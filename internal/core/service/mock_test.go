package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
	"github.com/yndnr/sockmesh-go/pkg/socketio"
)

// mockTransport records every packet the socket sends.
type mockTransport struct {
	mu      sync.Mutex
	sent    []string
	closed  int
	sendErr error
	notify  chan string
}

func newMockTransport() *mockTransport {
	return &mockTransport{notify: make(chan string, 64)}
}

func (m *mockTransport) Send(p socketio.Packet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	s, err := socketio.Encode(p)
	if err != nil {
		return err
	}
	m.sent = append(m.sent, s)
	select {
	case m.notify <- s:
	default:
	}
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *mockTransport) packets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

func (m *mockTransport) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// next waits for the next sent packet.
func (m *mockTransport) next(t *testing.T) string {
	t.Helper()
	select {
	case s := <-m.notify:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
		return ""
	}
}

// mockPresence records presence writes.
type mockPresence struct {
	mu      sync.Mutex
	live    map[string]*domain.Session
	deletes int
	err     error

	// afterPut runs once a Put has been stored, outside the lock.
	afterPut func(*domain.Session)
}

func newMockPresence() *mockPresence {
	return &mockPresence{live: make(map[string]*domain.Session)}
}

func (m *mockPresence) Put(ctx context.Context, session *domain.Session) error {
	m.mu.Lock()
	if m.err != nil {
		m.mu.Unlock()
		return m.err
	}
	m.live[session.ID] = session
	hook := m.afterPut
	m.mu.Unlock()

	if hook != nil {
		hook(session)
	}
	return nil
}

func (m *mockPresence) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.live, id)
	return m.err
}

func (m *mockPresence) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live[id]
	return ok
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(cfg RegistryConfig, opts ...RegistryOption) *Registry {
	opts = append([]RegistryOption{WithLogger(testLogger())}, opts...)
	return NewRegistry(cfg, opts...)
}

// connect attaches a protocol 4 session and completes CONNECT.
func connect(t *testing.T, r *Registry) (*Socket, *mockTransport) {
	t.Helper()
	tr := newMockTransport()
	s, err := r.Attach(tr, ConnInfo{RemoteAddr: "127.0.0.1:9999", Protocol: 4})
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if err := s.HandlePacket(socketio.NewConnect("")); err != nil {
		t.Fatalf("HandlePacket(connect) error = %v", err)
	}
	tr.next(t) // CONNECT reply
	return s, tr
}

func mustDecode(t *testing.T, s string) socketio.Packet {
	t.Helper()
	p, err := socketio.Decode(s)
	if err != nil {
		t.Fatalf("Decode(%q) error = %v", s, err)
	}
	return p
}

func waitDone(t *testing.T, s *Socket) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session to finish")
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
}
