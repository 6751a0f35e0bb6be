package upstream

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/catalog-crawler/internal/metrics"
)

// WindowLimiter enforces rolling per-minute and per-hour call ceilings.
// Wait blocks until the oldest counted call leaves whichever window is full.
// An optional rate.Limiter adds a minimum spacing between calls.
type WindowLimiter struct {
	perMinute int
	perHour   int
	spacing   *rate.Limiter
	now       func() time.Time

	mu    sync.Mutex
	calls []time.Time // ascending
}

// NewWindowLimiter returns a limiter; a zero ceiling disables that window and
// a zero interval disables spacing.
func NewWindowLimiter(perMinute, perHour int, interval time.Duration) *WindowLimiter {
	spacing := rate.NewLimiter(rate.Inf, 1)
	if interval > 0 {
		spacing = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &WindowLimiter{
		perMinute: perMinute,
		perHour:   perHour,
		spacing:   spacing,
		now:       time.Now,
	}
}

// Wait reserves a slot for one call.
func (l *WindowLimiter) Wait(ctx context.Context) error {
	if err := l.spacing.Wait(ctx); err != nil {
		return err
	}

	start := l.now()
	defer func() {
		metrics.RateLimitWaitSeconds.Observe(l.now().Sub(start).Seconds())
	}()

	for {
		wait := l.reserve()
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve records a call and returns 0, or returns how long to wait before
// trying again.
func (l *WindowLimiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	hourAgo := now.Add(-time.Hour)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(hourAgo) {
		i++
	}
	l.calls = l.calls[i:]

	if l.perHour > 0 && len(l.calls) >= l.perHour {
		return l.calls[len(l.calls)-l.perHour].Add(time.Hour).Sub(now)
	}

	if l.perMinute > 0 {
		minuteAgo := now.Add(-time.Minute)
		inMinute := 0
		for j := len(l.calls) - 1; j >= 0 && l.calls[j].After(minuteAgo); j-- {
			inMinute++
		}
		if inMinute >= l.perMinute {
			oldest := l.calls[len(l.calls)-l.perMinute]
			return oldest.Add(time.Minute).Sub(now)
		}
	}

	l.calls = append(l.calls, now)
	return 0
}

// Counts reports calls in the current minute and hour windows.
func (l *WindowLimiter) Counts() (minute, hour int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for _, t := range l.calls {
		if t.After(now.Add(-time.Hour)) {
			hour++
		}
		if t.After(now.Add(-time.Minute)) {
			minute++
		}
	}
	return minute, hour
}
