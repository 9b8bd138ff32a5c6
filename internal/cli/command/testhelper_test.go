package command

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/sockmesh-go/internal/core/service"
	"github.com/yndnr/sockmesh-go/internal/demo"
	"github.com/yndnr/sockmesh-go/internal/server/httpserver"
	"github.com/yndnr/sockmesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/sockmesh-go/internal/server/wsserver"
	"github.com/yndnr/sockmesh-go/internal/storage/memory"
	"github.com/yndnr/sockmesh-go/pkg/client"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testServer is an in-process SockMesh server running the demo application.
type testServer struct {
	*httptest.Server
	registry *service.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	presence := memory.New()
	reg := service.NewRegistry(service.RegistryConfig{QueueSize: 16},
		service.WithLogger(quietLogger()),
		service.WithPresence(presence),
	)
	demo.New(quietLogger()).Register(reg)

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Handler:   handler.New(reg, presence, quietLogger()),
		WebSocket: wsserver.New(wsserver.Config{}, reg, wsserver.WithLogger(quietLogger())),
		Logger:    quietLogger(),
	})
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		reg.Close(ctx)
		srv.Close()
		presence.Close()
	})
	return &testServer{Server: srv, registry: reg}
}

// dialClient connects a Socket.IO client that is not driven by the CLI.
func dialClient(t *testing.T, ts *testServer, opts ...client.Option) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	opts = append([]client.Option{client.WithLogger(quietLogger())}, opts...)
	c, err := client.Dial(ctx, client.Config{URL: ts.URL}, opts...)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func waitSessions(t *testing.T, reg *service.Registry, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for reg.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("sessions = %d, want %d", reg.Count(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// lockedBuffer is a bytes.Buffer safe for concurrent writers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// runCLI runs the application with args against an isolated config file
// and returns what it wrote to stdout.
func runCLI(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	out := &lockedBuffer{}
	app := App()
	app.Writer = out
	app.ErrWriter = io.Discard
	if stdin != nil {
		app.Reader = stdin
	}

	full := []string{"sockmesh-cli", "--config", filepath.Join(t.TempDir(), "cli.yaml")}
	full = append(full, args...)
	err := app.Run(full)
	return out.String(), err
}

// decodeJSON decodes the CLI's JSON output into v.
func decodeJSON(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
}
