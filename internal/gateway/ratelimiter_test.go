package gateway

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0)
	defer rl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	for i := 0; i < 100; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("disabled limiter should never block: %v", err)
		}
	}
}

func TestRateLimiter_FirstRequestImmediate(t *testing.T) {
	rl := NewRateLimiter(60)
	defer rl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("first request should pass immediately: %v", err)
	}
}

func TestRateLimiter_ContextCancellation(t *testing.T) {
	rl := NewRateLimiter(1)
	defer rl.Close()

	// Drain the initial token.
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected wait error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRateLimiter_CloseUnblocksWaiters(t *testing.T) {
	rl := NewRateLimiter(1)

	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected wait error: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- rl.Wait(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	rl.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error from a closed limiter")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Wait did not return after Close")
	}
}
