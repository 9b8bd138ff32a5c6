package tests

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/yndnr/sockmesh-go/internal/cli/connection"
	"github.com/yndnr/sockmesh-go/internal/core/domain"
	"github.com/yndnr/sockmesh-go/internal/core/service"
	"github.com/yndnr/sockmesh-go/internal/demo"
	"github.com/yndnr/sockmesh-go/internal/server/httpserver"
	"github.com/yndnr/sockmesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/sockmesh-go/internal/server/localserver"
	"github.com/yndnr/sockmesh-go/internal/server/wsserver"
	"github.com/yndnr/sockmesh-go/internal/storage"
	"github.com/yndnr/sockmesh-go/internal/storage/redis"
	"github.com/yndnr/sockmesh-go/internal/telemetry/metric"
	"github.com/yndnr/sockmesh-go/pkg/client"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// node is one server process: registry, transports and admin API.
type node struct {
	name     string
	registry *service.Registry
	presence storage.PresenceStore
	admin    *handler.Handler
	http     *httptest.Server
}

func startNode(t *testing.T, name string, presence storage.PresenceStore) *node {
	t.Helper()
	log := quietLogger().With("node", name)
	metrics := metric.NewRegistry()

	reg := service.NewRegistry(service.RegistryConfig{QueueSize: 16},
		service.WithLogger(log),
		service.WithPresence(presence),
		service.WithMetrics(metrics),
	)
	demo.New(log).Register(reg)

	admin := handler.New(reg, presence, log)
	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Handler:   admin,
		WebSocket: wsserver.New(wsserver.Config{}, reg, wsserver.WithLogger(log)),
		Metrics:   metrics.Handler(),
		Observer:  metrics,
		Logger:    log,
	})
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		reg.Close(ctx)
		srv.Close()
	})
	return &node{name: name, registry: reg, presence: presence, admin: admin, http: srv}
}

func dial(t *testing.T, n *node) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, client.Config{URL: n.http.URL}, client.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", n.name, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

type sessionList struct {
	Items []handler.SessionResponse `json:"items"`
	Total int                       `json:"total"`
}

func listPresence(t *testing.T, admin *connection.HTTPClient) sessionList {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := admin.Get(ctx, "/admin/v1/presence")
	if err != nil {
		t.Fatalf("GET presence error = %v", err)
	}
	var list sessionList
	if err := connection.ParseResponse(resp, &list); err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	return list
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestPresence_SharedAcrossNodes runs two nodes against one Redis and checks
// that each node's admin API sees the sessions of both.
func TestPresence_SharedAcrossNodes(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	newStore := func() storage.PresenceStore {
		store := redis.New(mr.Addr(), "", 0, redis.WithTTL(time.Minute), redis.WithPrefix("it:"))
		t.Cleanup(func() { store.Close() })
		return store
	}
	nodeA := startNode(t, "a", newStore())
	nodeB := startNode(t, "b", newStore())

	ca := dial(t, nodeA)
	cb := dial(t, nodeB)

	admin, err := connection.NewHTTPClient(nodeA.http.URL, nil)
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}

	waitFor(t, "both sessions in presence", func() bool {
		return listPresence(t, admin).Total == 2
	})

	ids := map[string]bool{}
	for _, s := range listPresence(t, admin).Items {
		ids[s.ID] = true
		if s.State != domain.StateConnected.String() {
			t.Errorf("session %s state = %s, want connected", s.ID, s.State)
		}
	}
	for _, c := range []*client.Client{ca, cb} {
		if !ids[c.ID()] {
			t.Errorf("presence is missing %s", c.ID())
		}
	}

	// Node A only manages its own connections.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := admin.Get(ctx, "/admin/v1/sessions/"+cb.ID())
	if err != nil {
		t.Fatal(err)
	}
	var apiErr *connection.APIError
	if err := connection.ParseResponse(resp, nil); !errors.As(err, &apiErr) || apiErr.Code != domain.ErrSessionNotFound.Code {
		t.Errorf("get remote session error = %v, want %s", err, domain.ErrSessionNotFound.Code)
	}

	cb.Close()
	waitFor(t, "closed session to leave presence", func() bool {
		return listPresence(t, admin).Total == 1
	})

	if _, err := nodeB.registry.SyncPresence(ctx); err != nil {
		t.Errorf("SyncPresence() error = %v", err)
	}
	if got := listPresence(t, admin).Total; got != 1 {
		t.Errorf("presence after sync = %d, want 1", got)
	}
}

// TestLocalAdmin_UnixSocket serves the admin API on a Unix socket and
// drives it with the CLI's HTTP client.
func TestLocalAdmin_UnixSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "sockmesh")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "admin.sock")

	n := startNode(t, "local", nil)
	local := localserver.New(path, n.admin, localserver.WithLogger(quietLogger()))
	if err := local.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	go local.Serve()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		local.Shutdown(ctx)
	})

	c := dial(t, n)

	admin, err := connection.NewHTTPClient("unix://"+path, nil)
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	if !admin.IsLocal() {
		t.Error("IsLocal() = false")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := admin.Post(ctx, "/admin/v1/sessions/"+c.ID()+"/emit", map[string]any{
		"event": "note",
		"args":  []json.RawMessage{json.RawMessage(`"hi"`)},
	})
	if err != nil {
		t.Fatalf("POST emit error = %v", err)
	}
	var emitted handler.EmitResponse
	if err := connection.ParseResponse(resp, &emitted); err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if !emitted.Emitted {
		t.Error("Emitted = false")
	}

	resp, err = admin.Post(ctx, "/admin/v1/sessions/"+c.ID()+"/disconnect", nil)
	if err != nil {
		t.Fatalf("POST disconnect error = %v", err)
	}
	if err := connection.ParseResponse(resp, nil); err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client not disconnected")
	}
	if !errors.Is(c.Err(), client.ErrServerDisconnect) {
		t.Errorf("client Err() = %v, want ErrServerDisconnect", c.Err())
	}
}
