package upstream

import (
	"context"
	"testing"
	"time"
)

func TestWindowLimiter_MinuteWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewWindowLimiter(3, 0, 0)
	l.now = clock.Now

	for i := 0; i < 3; i++ {
		if wait := l.reserve(); wait != 0 {
			t.Fatalf("call %d waited %s, want immediate", i+1, wait)
		}
		clock.Advance(10 * time.Second)
	}

	// Oldest call was 30s ago; it leaves the window in another 30s.
	if wait := l.reserve(); wait != 30*time.Second {
		t.Fatalf("wait = %s, want 30s", wait)
	}

	clock.Advance(30 * time.Second)
	if wait := l.reserve(); wait != 0 {
		t.Errorf("wait = %s after oldest call left the window, want 0", wait)
	}
	if minute, _ := l.Counts(); minute != 3 {
		t.Errorf("minute count = %d, want 3", minute)
	}
}

func TestWindowLimiter_HourWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewWindowLimiter(0, 2, 0)
	l.now = clock.Now

	l.reserve()
	clock.Advance(20 * time.Minute)
	l.reserve()
	clock.Advance(20 * time.Minute)

	if wait := l.reserve(); wait != 20*time.Minute {
		t.Fatalf("wait = %s, want 20m", wait)
	}
	clock.Advance(20 * time.Minute)
	if wait := l.reserve(); wait != 0 {
		t.Errorf("wait = %s, want 0", wait)
	}
	if _, hour := l.Counts(); hour != 2 {
		t.Errorf("hour count = %d, want 2", hour)
	}
}

func TestWindowLimiter_WaitHonoursContext(t *testing.T) {
	clock := newFakeClock()
	l := NewWindowLimiter(1, 0, 0)
	l.now = clock.Now

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Error("Wait() should fail when the context ends before a slot frees")
	}
}

func TestWindowLimiter_Disabled(t *testing.T) {
	l := NewWindowLimiter(0, 0, 0)
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() = %v", err)
		}
	}
}
