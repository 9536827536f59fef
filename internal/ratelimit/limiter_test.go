package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiterAllowsBurstUpToMax(t *testing.T) {
	l := New(3, time.Second)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("expected burst of 3 to be immediate, took %v", elapsed)
	}
}

func TestLimiterBlocksBeyondWindow(t *testing.T) {
	l := New(1, 50*time.Millisecond)
	ctx := context.Background()

	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("second acquire should have waited for the window, took %v", elapsed)
	}
}

func TestLimiterRespectsContextCancellation(t *testing.T) {
	l := New(1, time.Second)
	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Acquire(cctx); err == nil {
		t.Fatal("expected context deadline error")
	}
}
