package fetch

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_NoDelayOnFirstRequest(t *testing.T) {
	rl := NewRateLimiter(5*time.Second, testLogger())

	start := time.Now()
	if err := rl.Wait(context.Background(), "fresh-host.com"); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Wait on first request took %v, expected instant return", elapsed)
	}
}

func TestRateLimiter_SpacesRequests(t *testing.T) {
	rl := NewRateLimiter(100*time.Millisecond, testLogger())
	host := "example.com"

	_ = rl.Wait(context.Background(), host)
	start := time.Now()
	if err := rl.Wait(context.Background(), host); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 50*time.Millisecond {
		t.Errorf("Wait returned too quickly: %v, expected ~100ms", elapsed)
	}
	if elapsed > 400*time.Millisecond {
		t.Errorf("Wait took too long: %v, expected ~100ms", elapsed)
	}
}

func TestRateLimiter_HostsIndependent(t *testing.T) {
	rl := NewRateLimiter(time.Second, testLogger())
	_ = rl.Wait(context.Background(), "a.com")

	start := time.Now()
	_ = rl.Wait(context.Background(), "b.com")
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Wait for a different host took %v", elapsed)
	}
	if rl.Len() != 2 {
		t.Errorf("Len() = %d, want 2", rl.Len())
	}
}

func TestRateLimiter_RespectsContextCancellation(t *testing.T) {
	rl := NewRateLimiter(5*time.Second, testLogger())
	host := "example.com"
	_ = rl.Wait(context.Background(), host)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := rl.Wait(ctx, host)
	if err == nil {
		t.Error("Wait with cancelled context should return an error")
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Wait with cancelled context took %v, expected <100ms", elapsed)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	var nilLimiter *RateLimiter
	if err := nilLimiter.Wait(context.Background(), "x"); err != nil {
		t.Errorf("nil limiter Wait() error: %v", err)
	}

	rl := NewRateLimiter(0, testLogger())
	for i := 0; i < 5; i++ {
		if err := rl.Wait(context.Background(), "x"); err != nil {
			t.Errorf("disabled limiter Wait() error: %v", err)
		}
	}
	if rl.Len() != 0 {
		t.Errorf("disabled limiter should not track hosts, Len() = %d", rl.Len())
	}
}
