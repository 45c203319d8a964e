package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowHonorsBurst(t *testing.T) {
	l := New(1, 3)
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.Allow("client") {
			t.Fatalf("call %d should be within burst", i+1)
		}
	}
	if l.Allow("client") {
		t.Error("call past burst should be rejected")
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l := New(1, 1)
	defer l.Stop()

	l.Allow("a")
	if l.Allow("a") {
		t.Error("key a should be exhausted")
	}
	if !l.Allow("b") {
		t.Error("key b should have its own bucket")
	}
}

func TestWaitRefillsOverTime(t *testing.T) {
	l := New(20, 1)
	defer l.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := l.Wait(ctx, "client"); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	// Second token arrives after ~50ms at 20 rps.
	start := time.Now()
	if err := l.Wait(ctx, "client"); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("second Wait returned after %v, expected a refill delay", elapsed)
	}
}

func TestWaitObservesContext(t *testing.T) {
	l := New(0.1, 1)
	defer l.Stop()

	l.Allow("client")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, "client"); err == nil {
		t.Error("Wait should fail once the context deadline passes")
	}
}
