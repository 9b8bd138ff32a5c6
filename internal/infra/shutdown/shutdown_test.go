package shutdown

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestNewHandler(t *testing.T) {
	h := NewHandler(5 * time.Second)
	if h == nil {
		t.Fatal("NewHandler returned nil")
	}
	if h.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", h.timeout)
	}
	if h.hooks == nil {
		t.Error("hooks should be initialized")
	}
	if h.logger == nil {
		t.Error("logger should default to slog.Default()")
	}
}

func TestHandler_Done(t *testing.T) {
	h := NewHandler(5 * time.Second)

	select {
	case <-h.Done():
		t.Fatal("Done channel should not be closed initially")
	default:
	}

	if err := h.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	select {
	case <-h.Done():
	default:
		t.Error("Done channel should be closed after Shutdown")
	}
}

func TestHandler_Shutdown_ReverseOrder(t *testing.T) {
	h := NewHandler(5 * time.Second)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"presence", "registry", "http"} {
		h.OnShutdown(name, func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	if err := h.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	want := []string{"http", "registry", "presence"}
	if !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestHandler_Shutdown_Once(t *testing.T) {
	h := NewHandler(time.Second)

	var calls int
	h.OnShutdown("count", func(ctx context.Context) error {
		calls++
		return nil
	})

	h.Shutdown()
	h.Shutdown()

	if calls != 1 {
		t.Errorf("hook calls = %d, want 1", calls)
	}
}

func TestHandler_Shutdown_HookErrors(t *testing.T) {
	h := NewHandler(time.Second)

	errA := errors.New("a failed")
	errB := errors.New("b failed")
	var ranC bool
	h.OnShutdown("c", func(ctx context.Context) error {
		ranC = true
		return nil
	})
	h.OnShutdown("b", func(ctx context.Context) error { return errB })
	h.OnShutdown("a", func(ctx context.Context) error { return errA })

	err := h.Shutdown()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("Shutdown() error = %v, want both hook errors", err)
	}
	if !strings.Contains(err.Error(), "b: b failed") {
		t.Errorf("error %q should name the hook", err)
	}
	if !ranC {
		t.Error("hooks after a failure should still run")
	}
}

func TestHandler_Shutdown_Deadline(t *testing.T) {
	h := NewHandler(50 * time.Millisecond)

	h.OnShutdown("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	err := h.Shutdown()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Shutdown took %v, timeout not applied", elapsed)
	}
}

func TestHandler_Wait_ContextCancel(t *testing.T) {
	h := NewHandler(time.Second)

	called := make(chan struct{})
	h.OnShutdown("hook", func(ctx context.Context) error {
		close(called)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait(ctx) }()

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after cancel")
	}

	select {
	case <-called:
	default:
		t.Error("hook was not called")
	}
}

func TestHandler_Wait_WithSignal(t *testing.T) {
	h := NewHandler(time.Second)

	called := make(chan struct{})
	h.OnShutdown("hook", func(ctx context.Context) error {
		close(called)
		return nil
	})

	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait(context.Background()) }()

	// Let Wait install its signal handler.
	time.Sleep(100 * time.Millisecond)
	syscall.Kill(syscall.Getpid(), syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after SIGTERM")
	}

	<-called
}

func TestHandler_ConcurrentOnShutdown(t *testing.T) {
	h := NewHandler(time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.OnShutdown("noop", func(ctx context.Context) error { return nil })
		}()
	}
	wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.hooks) != 50 {
		t.Errorf("hooks = %d, want 50", len(h.hooks))
	}
}
