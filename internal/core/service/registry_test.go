package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
	"github.com/yndnr/sockmesh-go/pkg/socketio"
)

func TestRegistry_AttachAndConnect(t *testing.T) {
	r := newTestRegistry(RegistryConfig{})

	connected := make(chan *Socket, 1)
	r.OnConnection(func(ctx context.Context, s *Socket) {
		connected <- s
	})

	tr := newMockTransport()
	s, err := r.Attach(tr, ConnInfo{RemoteAddr: "10.0.0.1:4000", UserAgent: "test", Protocol: 4})
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if s.State() != domain.StateConnecting {
		t.Errorf("State() = %v, want connecting", s.State())
	}
	if !domain.IsValidSessionID(s.ID()) {
		t.Errorf("ID() = %q is not a session id", s.ID())
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}

	if err := s.HandlePacket(socketio.NewConnect("")); err != nil {
		t.Fatalf("HandlePacket(connect) error = %v", err)
	}
	want := `0{"sid":"` + s.ID() + `"}`
	if got := tr.next(t); got != want {
		t.Errorf("connect reply = %q, want %q", got, want)
	}

	select {
	case got := <-connected:
		if got != s {
			t.Error("connection handler received a different socket")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connection handler not called")
	}

	if s.State() != domain.StateConnected {
		t.Errorf("State() = %v, want connected", s.State())
	}
	got, err := r.Get(s.ID())
	if err != nil || got != s {
		t.Errorf("Get() = %v, %v", got, err)
	}
}

func TestRegistry_ConnectProtocolV3(t *testing.T) {
	r := newTestRegistry(RegistryConfig{})
	tr := newMockTransport()
	s, err := r.Attach(tr, ConnInfo{Protocol: 3})
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if err := s.HandlePacket(socketio.NewConnect("")); err != nil {
		t.Fatalf("HandlePacket(connect) error = %v", err)
	}
	if got := tr.next(t); got != "0" {
		t.Errorf("connect reply = %q, want bare 0", got)
	}
}

func TestRegistry_DuplicateConnectIgnored(t *testing.T) {
	r := newTestRegistry(RegistryConfig{})
	var calls atomic.Int32
	r.OnConnection(func(ctx context.Context, s *Socket) { calls.Add(1) })

	s, tr := connect(t, r)
	if err := s.HandlePacket(socketio.NewConnect("")); err != nil {
		t.Fatalf("second connect error = %v", err)
	}

	done := make(chan struct{})
	s.On("sync", func(ctx context.Context, s *Socket, args domain.Args, ack AckFunc) { close(done) })
	if err := s.HandlePacket(mustDecode(t, `2["sync"]`)); err != nil {
		t.Fatal(err)
	}
	waitSignal(t, done)

	if calls.Load() != 1 {
		t.Errorf("connection handler calls = %d, want 1", calls.Load())
	}
	if n := len(tr.packets()); n != 1 {
		t.Errorf("packets sent = %d, want 1", n)
	}
}

func TestRegistry_GetNotFound(t *testing.T) {
	r := newTestRegistry(RegistryConfig{})
	if _, err := r.Get("smss-missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Get() error = %v, want ErrSessionNotFound", err)
	}
	if err := r.Disconnect("smss-missing", domain.ReasonServerDisconnect); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Disconnect() error = %v, want ErrSessionNotFound", err)
	}
}

func TestRegistry_MaxSessions(t *testing.T) {
	r := newTestRegistry(RegistryConfig{MaxSessions: 1})

	s, _ := connect(t, r)
	if _, err := r.Attach(newMockTransport(), ConnInfo{Protocol: 4}); !errors.Is(err, domain.ErrSessionLimit) {
		t.Fatalf("Attach() over limit error = %v, want ErrSessionLimit", err)
	}

	s.Disconnect()
	waitDone(t, s)

	if _, err := r.Attach(newMockTransport(), ConnInfo{Protocol: 4}); err != nil {
		t.Errorf("Attach() after disconnect error = %v", err)
	}
}

func TestRegistry_AttachNilTransport(t *testing.T) {
	r := newTestRegistry(RegistryConfig{})
	if _, err := r.Attach(nil, ConnInfo{}); !errors.Is(err, domain.ErrMissingArgument) {
		t.Errorf("Attach(nil) error = %v, want ErrMissingArgument", err)
	}
}

func TestRegistry_List(t *testing.T) {
	r := newTestRegistry(RegistryConfig{})
	a, _ := connect(t, r)
	time.Sleep(2 * time.Millisecond)
	b, _ := connect(t, r)

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("List() len = %d, want 2", len(list))
	}
	if list[0].ID != a.ID() || list[1].ID != b.ID() {
		t.Errorf("List() order = [%s %s], want oldest first", list[0].ID, list[1].ID)
	}
	if list[0].State != domain.StateConnected {
		t.Errorf("State = %v, want connected", list[0].State)
	}
}

func TestRegistry_Disconnect(t *testing.T) {
	r := newTestRegistry(RegistryConfig{})
	s, tr := connect(t, r)

	var reason domain.Reason
	s.OnDisconnect(func(ctx context.Context, s *Socket, r domain.Reason) { reason = r })

	if err := r.Disconnect(s.ID(), domain.ReasonServerDisconnect); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	waitDone(t, s)

	if reason != domain.ReasonServerDisconnect {
		t.Errorf("reason = %q, want %q", reason, domain.ReasonServerDisconnect)
	}
	if got := tr.next(t); got != "1" {
		t.Errorf("last packet = %q, want DISCONNECT", got)
	}
	if tr.closeCount() == 0 {
		t.Error("transport should be closed")
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}

func TestRegistry_Close(t *testing.T) {
	r := newTestRegistry(RegistryConfig{})

	reasons := make(chan domain.Reason, 3)
	r.OnConnection(func(ctx context.Context, s *Socket) {
		s.OnDisconnect(func(ctx context.Context, s *Socket, reason domain.Reason) {
			reasons <- reason
		})
	})

	var transports []*mockTransport
	for i := 0; i < 3; i++ {
		_, tr := connect(t, r)
		transports = append(transports, tr)
	}
	// Let the connection handlers register their hooks.
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if got := <-reasons; got != domain.ReasonServerShutdown {
			t.Errorf("reason = %q, want %q", got, domain.ReasonServerShutdown)
		}
	}
	for _, tr := range transports {
		packets := tr.packets()
		if packets[len(packets)-1] != "1" {
			t.Errorf("last packet = %q, want DISCONNECT", packets[len(packets)-1])
		}
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
	if !r.Closed() {
		t.Error("Closed() should be true")
	}

	_, err := r.Attach(newMockTransport(), ConnInfo{Protocol: 4})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("Attach() after Close error = %v, want ErrServiceUnavailable", err)
	}
}

func TestRegistry_CloseTimeout(t *testing.T) {
	r := newTestRegistry(RegistryConfig{})
	s, _ := connect(t, r)

	release := make(chan struct{})
	defer close(release)
	s.OnDisconnect(func(ctx context.Context, s *Socket, reason domain.Reason) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close() error = %v, want deadline exceeded", err)
	}
}

func TestRegistry_Presence(t *testing.T) {
	store := newMockPresence()
	r := newTestRegistry(RegistryConfig{}, WithPresence(store))

	ready := make(chan struct{})
	r.OnConnection(func(ctx context.Context, s *Socket) { close(ready) })

	s, _ := connect(t, r)
	waitSignal(t, ready)
	if !store.has(s.ID()) {
		t.Error("connected session should be in the presence store")
	}

	s.Disconnect()
	waitDone(t, s)
	if store.has(s.ID()) {
		t.Error("disconnected session should be removed from the presence store")
	}
}

func TestRegistry_PresenceFailureNotFatal(t *testing.T) {
	store := newMockPresence()
	store.err = errors.New("redis down")
	r := newTestRegistry(RegistryConfig{}, WithPresence(store))

	ready := make(chan struct{})
	r.OnConnection(func(ctx context.Context, s *Socket) { close(ready) })

	s, _ := connect(t, r)
	waitSignal(t, ready)
	if s.State() != domain.StateConnected {
		t.Errorf("State() = %v, want connected", s.State())
	}
}

func TestRegistry_SyncPresence(t *testing.T) {
	store := newMockPresence()
	r := newTestRegistry(RegistryConfig{}, WithPresence(store))

	ready := make(chan struct{}, 2)
	r.OnConnection(func(ctx context.Context, s *Socket) { ready <- struct{}{} })

	a, _ := connect(t, r)
	b, _ := connect(t, r)
	waitSignal(t, ready)
	waitSignal(t, ready)

	// A session that has not sent CONNECT is not published.
	pending, err := r.Attach(newMockTransport(), ConnInfo{RemoteAddr: "10.0.0.9:1"})
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	store.mu.Lock()
	store.live = make(map[string]*domain.Session)
	store.mu.Unlock()

	n, err := r.SyncPresence(context.Background())
	if err != nil {
		t.Fatalf("SyncPresence() error = %v", err)
	}
	if n != 2 {
		t.Errorf("SyncPresence() wrote %d, want 2", n)
	}
	if !store.has(a.ID()) || !store.has(b.ID()) {
		t.Error("connected sessions should be rewritten")
	}
	if store.has(pending.ID()) {
		t.Error("connecting session should not be published")
	}

	store.mu.Lock()
	store.err = errors.New("redis down")
	store.mu.Unlock()
	if _, err := r.SyncPresence(context.Background()); err == nil {
		t.Error("SyncPresence() should report store failures")
	}
}

func TestRegistry_SyncPresence_SessionGoneDuringPut(t *testing.T) {
	store := newMockPresence()
	r := newTestRegistry(RegistryConfig{}, WithPresence(store))

	ready := make(chan struct{}, 1)
	r.OnConnection(func(ctx context.Context, s *Socket) { ready <- struct{}{} })
	s, _ := connect(t, r)
	waitSignal(t, ready)

	var once sync.Once
	store.mu.Lock()
	store.afterPut = func(*domain.Session) {
		once.Do(func() {
			s.Disconnect()
			waitDone(t, s)
		})
	}
	store.mu.Unlock()

	n, err := r.SyncPresence(context.Background())
	if err != nil {
		t.Fatalf("SyncPresence() error = %v", err)
	}
	if n != 0 {
		t.Errorf("SyncPresence() wrote %d, want 0", n)
	}
	if store.has(s.ID()) {
		t.Error("entry of a session removed during sync should be deleted")
	}
}

func TestRegistry_SyncPresence_NoStore(t *testing.T) {
	r := newTestRegistry(RegistryConfig{})
	n, err := r.SyncPresence(context.Background())
	if n != 0 || err != nil {
		t.Errorf("SyncPresence() = %d, %v; want 0, nil", n, err)
	}
}

type countingMetrics struct {
	nopMetrics
	opened   atomic.Int32
	closed   atomic.Int32
	received atomic.Int32
	emitted  atomic.Int32
	pending  atomic.Int32
}

func (m *countingMetrics) SessionOpened()              { m.opened.Add(1) }
func (m *countingMetrics) SessionClosed(domain.Reason) { m.closed.Add(1) }
func (m *countingMetrics) EventReceived(string)        { m.received.Add(1) }
func (m *countingMetrics) EventEmitted(string)         { m.emitted.Add(1) }
func (m *countingMetrics) AckPending(d int)            { m.pending.Add(int32(d)) }

func TestRegistry_Metrics(t *testing.T) {
	m := &countingMetrics{}
	r := newTestRegistry(RegistryConfig{}, WithMetrics(m))

	s, _ := connect(t, r)
	if err := s.EmitWithAck("ccc", func(domain.Args, error) {}); err != nil {
		t.Fatal(err)
	}
	if err := s.HandlePacket(mustDecode(t, `2["aaa"]`)); err != nil {
		t.Fatal(err)
	}
	s.Disconnect()
	waitDone(t, s)

	if m.opened.Load() != 1 || m.closed.Load() != 1 {
		t.Errorf("opened/closed = %d/%d, want 1/1", m.opened.Load(), m.closed.Load())
	}
	if m.emitted.Load() != 1 || m.received.Load() != 1 {
		t.Errorf("emitted/received = %d/%d, want 1/1", m.emitted.Load(), m.received.Load())
	}
	if m.pending.Load() != 0 {
		t.Errorf("pending acks gauge = %d, want 0", m.pending.Load())
	}
}

func TestRegistry_ConcurrentSessions(t *testing.T) {
	r := newTestRegistry(RegistryConfig{})
	const n = 20

	sockets := make(chan *Socket, n)
	for i := 0; i < n; i++ {
		go func() {
			tr := newMockTransport()
			s, err := r.Attach(tr, ConnInfo{Protocol: 4})
			if err != nil {
				t.Error(err)
				sockets <- nil
				return
			}
			_ = s.HandlePacket(socketio.NewConnect(""))
			sockets <- s
		}()
	}

	ids := make(map[string]bool)
	for i := 0; i < n; i++ {
		s := <-sockets
		if s == nil {
			continue
		}
		if ids[s.ID()] {
			t.Errorf("duplicate session id %s", s.ID())
		}
		ids[s.ID()] = true
		if !strings.HasPrefix(s.ID(), domain.SessionIDPrefix) {
			t.Errorf("id %q lacks prefix", s.ID())
		}
	}
	if r.Count() != n {
		t.Errorf("Count() = %d, want %d", r.Count(), n)
	}
}
