package shutdown

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"renderhub/internal/pkg/logger"
)

func newTestLogger() *logger.Logger {
	var buf bytes.Buffer
	return logger.New(logger.Config{
		Level:  "debug",
		Format: "json",
		Output: &buf,
	})
}

func TestNewManager(t *testing.T) {
	t.Run("with default timeout", func(t *testing.T) {
		mgr := NewManager(newTestLogger(), 0)
		if mgr.timeout != 30*time.Second {
			t.Errorf("expected default timeout 30s, got %v", mgr.timeout)
		}
	})

	t.Run("with nil logger", func(t *testing.T) {
		mgr := NewManager(nil, time.Second)
		if mgr.log == nil {
			t.Fatal("expected a fallback logger")
		}
	})
}

func TestRegister(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	mgr.Register("redis", func(ctx context.Context) error {
		return nil
	})

	if len(mgr.handlers) != 1 {
		t.Errorf("expected 1 handler, got %d", len(mgr.handlers))
	}
	if mgr.handlers[0].Name != "redis" {
		t.Errorf("expected handler name 'redis', got %s", mgr.handlers[0].Name)
	}
}

func TestRegisterSimple(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	var called bool
	mgr.RegisterSimple("simple", func() {
		called = true
	})

	mgr.Shutdown()

	if !called {
		t.Error("expected simple handler to be called")
	}
}

func TestShutdown(t *testing.T) {
	log := newTestLogger()

	t.Run("runs handlers in LIFO order", func(t *testing.T) {
		mgr := NewManager(log, 5*time.Second)

		var order []int
		for i := 1; i <= 3; i++ {
			mgr.Register("step", func(ctx context.Context) error {
				order = append(order, i)
				return nil
			})
		}

		mgr.Shutdown()

		if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
			t.Errorf("expected order [3 2 1], got %v", order)
		}
	})

	t.Run("closes done channel", func(t *testing.T) {
		mgr := NewManager(log, 5*time.Second)
		mgr.Shutdown()

		select {
		case <-mgr.Done():
		case <-time.After(time.Second):
			t.Error("expected done channel to be closed")
		}
	})

	t.Run("counts failed handlers and keeps going", func(t *testing.T) {
		mgr := NewManager(log, 5*time.Second)

		var ran atomic.Bool
		mgr.Register("after", func(ctx context.Context) error {
			ran.Store(true)
			return nil
		})
		mgr.Register("failing", func(ctx context.Context) error {
			return errors.New("close failed")
		})

		mgr.Shutdown()

		if mgr.Failed() != 1 {
			t.Errorf("expected 1 failed handler, got %d", mgr.Failed())
		}
		if !ran.Load() {
			t.Error("expected remaining handlers to run after a failure")
		}
	})

	t.Run("second call is a no-op", func(t *testing.T) {
		mgr := NewManager(log, 5*time.Second)

		var calls atomic.Int32
		mgr.RegisterSimple("once", func() { calls.Add(1) })

		mgr.Shutdown()
		mgr.Shutdown()

		if calls.Load() != 1 {
			t.Errorf("expected handler to run once, ran %d times", calls.Load())
		}
	})
}

func TestContext(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	ctx := mgr.Context()

	select {
	case <-ctx.Done():
		t.Error("expected context to not be canceled initially")
	default:
	}

	mgr.Shutdown()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("expected context to be canceled after shutdown")
	}
}

func TestWaitWithContext(t *testing.T) {
	mgr := NewManager(newTestLogger(), time.Second)

	var called atomic.Bool
	mgr.RegisterSimple("flag", func() { called.Store(true) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mgr.WaitWithContext(ctx)

	if !called.Load() {
		t.Error("expected shutdown to run when the context ends")
	}
}

func TestShutdownTimeout(t *testing.T) {
	mgr := NewManager(newTestLogger(), 100*time.Millisecond)

	mgr.Register("slow", func(ctx context.Context) error {
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
		}
		return nil
	})

	start := time.Now()
	mgr.Shutdown()

	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("shutdown took too long: %v", elapsed)
	}
}
