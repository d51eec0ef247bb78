package shutdown

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"
)

func TestHooksRunInReverseOrder(t *testing.T) {
	h := NewHandler(time.Second)

	var order []int
	for i := 0; i < 3; i++ {
		h.OnShutdown(func(context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	if err := h.Trigger(); err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	if len(order) != 3 || order[0] != 2 || order[1] != 1 || order[2] != 0 {
		t.Errorf("hook order = %v, want [2 1 0]", order)
	}

	select {
	case <-h.Done():
	default:
		t.Error("Done() not closed after shutdown")
	}
}

func TestLastHookErrorReturned(t *testing.T) {
	h := NewHandler(time.Second)
	wantErr := errors.New("close failed")

	h.OnShutdown(func(context.Context) error { return wantErr })
	h.OnShutdown(func(context.Context) error { return nil })

	if err := h.Trigger(); !errors.Is(err, wantErr) {
		t.Errorf("Trigger() error = %v, want %v", err, wantErr)
	}
}

func TestHookContextCarriesDeadline(t *testing.T) {
	h := NewHandler(50 * time.Millisecond)

	var hadDeadline bool
	h.OnShutdown(func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	})

	if err := h.Trigger(); err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	if !hadDeadline {
		t.Error("hook context has no deadline")
	}
}

func TestWaitReactsToSignal(t *testing.T) {
	h := NewHandler(time.Second)

	ran := make(chan struct{})
	h.OnShutdown(func(context.Context) error {
		close(ran)
		return nil
	})

	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait() }()

	// Deliver the signal through the handler's own channel.
	h.sigCh <- syscall.SIGTERM

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Wait() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after signal")
	}

	select {
	case <-ran:
	default:
		t.Error("hook did not run")
	}
}
