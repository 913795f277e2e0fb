package ratelimit

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestLimiterAllowsFirstRequest(t *testing.T) {
	l := New(Config{Rate: 10, Burst: 5, Period: time.Second})
	if res := l.Allow("researcher", "brave"); !res.Allowed {
		t.Fatal("first request should be allowed")
	}
}

func TestLimiterDisabledWhenRateZero(t *testing.T) {
	l := New(Config{})
	for i := 0; i < 50; i++ {
		if res := l.Allow("researcher", "brave"); !res.Allowed {
			t.Fatal("a zero-rate limiter must never deny")
		}
	}
}

func TestLimiterBurstThenExhaustion(t *testing.T) {
	l := New(Config{Rate: 1, Burst: 3, Period: time.Second})
	allowed, denied := 0, 0
	for i := 0; i < 10; i++ {
		if l.Allow("backend", "pg").Allowed {
			allowed++
		} else {
			denied++
		}
	}
	if allowed < 3 {
		t.Fatalf("expected at least 3 allowed (burst), got %d", allowed)
	}
	if denied == 0 {
		t.Fatal("expected some requests denied once burst is exhausted")
	}
}

func TestLimiterKeyIsolation(t *testing.T) {
	l := New(Config{Rate: 1, Burst: 1, Period: time.Second})
	for i := 0; i < 5; i++ {
		l.Allow("agent-a", "pg")
	}
	if res := l.Allow("agent-b", "pg"); !res.Allowed {
		t.Fatal("a different agent must have an independent bucket")
	}
	if res := l.Allow("agent-a", "brave"); !res.Allowed {
		t.Fatal("a different server for the same agent must have an independent bucket")
	}
}

func TestLimiterRecoversAfterPeriod(t *testing.T) {
	l := New(Config{Rate: 2, Burst: 1, Period: 100 * time.Millisecond})
	if res := l.Allow("researcher", "brave"); !res.Allowed {
		t.Fatal("first request should be allowed")
	}
	time.Sleep(150 * time.Millisecond)
	if res := l.Allow("researcher", "brave"); !res.Allowed {
		t.Fatal("request after the recovery window should be allowed")
	}
}

func TestLimiterConcurrentAccess(t *testing.T) {
	l := New(Config{Rate: 100, Burst: 50, Period: time.Second})
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Allow("researcher", "brave")
		}()
	}
	wg.Wait()
}

func TestLimiterCleanupEvictsStaleEntries(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := New(Config{Rate: 10, Burst: 5, Period: time.Second})
	l.StartCleanup(50*time.Millisecond, 100*time.Millisecond)
	defer l.Stop()

	l.Allow("researcher", "brave")
	l.Allow("backend", "pg")
	if got := l.Size(); got != 2 {
		t.Fatalf("expected 2 tracked keys, got %d", got)
	}

	time.Sleep(300 * time.Millisecond)
	if got := l.Size(); got != 0 {
		t.Fatalf("expected stale keys evicted, got %d remaining", got)
	}
}

func TestLimiterStopIsIdempotent(t *testing.T) {
	l := New(Config{Rate: 10, Burst: 5, Period: time.Second})
	l.StartCleanup(10*time.Millisecond, 50*time.Millisecond)
	l.Stop()
	l.Stop() // must not panic
}
