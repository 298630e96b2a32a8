package middleware

import (
	"context"
	"testing"
	"time"
)

func TestSlidingWindowLimitsWithinWindow(t *testing.T) {
	sw := NewSlidingWindow(time.Minute, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !sw.Allow(ctx) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if sw.Allow(ctx) {
		t.Fatalf("request over the window limit should be rejected")
	}
}

func TestSlidingWindowRecoversAfterWindow(t *testing.T) {
	sw := NewSlidingWindow(50*time.Millisecond, 1)
	ctx := context.Background()

	if !sw.Allow(ctx) {
		t.Fatalf("first request should be allowed")
	}
	if sw.Allow(ctx) {
		t.Fatalf("second request inside the window should be rejected")
	}

	time.Sleep(60 * time.Millisecond)
	if !sw.Allow(ctx) {
		t.Fatalf("request after the window slides should be allowed")
	}
}

func TestKeyedLimiterIsolatesClients(t *testing.T) {
	kl := NewKeyedLimiter(1, 1)
	ctx := context.Background()

	if !kl.AllowKey(ctx, "10.0.0.1") {
		t.Fatalf("first request for client A should be allowed")
	}
	if kl.AllowKey(ctx, "10.0.0.1") {
		t.Fatalf("client A should be out of tokens")
	}
	// 另一个客户端不受影响
	if !kl.AllowKey(ctx, "10.0.0.2") {
		t.Fatalf("client B should have its own bucket")
	}
}
