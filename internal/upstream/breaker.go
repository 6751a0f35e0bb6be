package upstream

import (
	"sync"
	"time"

	"github.com/pauljones0/catalog-crawler/internal/metrics"
)

// BreakerState is the state of a circuit breaker.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

func (s BreakerState) gaugeValue() float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	}
	return 0
}

// Breaker is a consecutive-failure circuit breaker for one dependency.
// While half open it admits exactly one trial call.
type Breaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	now              func() time.Time

	mu                  sync.Mutex
	state               BreakerState
	consecutiveFailures int
	reopenAt            time.Time
	trialInFlight       bool
}

func NewBreaker(name string, failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	b := &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
		state:            StateClosed,
	}
	metrics.BreakerState.WithLabelValues(name).Set(0)
	return b
}

// Allow reports whether a call may proceed. It returns a *CircuitOpenError
// while open, or while half open with the trial call still outstanding.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Before(b.reopenAt) {
			return &CircuitOpenError{Dependency: b.name, ReopenAt: b.reopenAt}
		}
		b.setState(StateHalfOpen)
		b.trialInFlight = true
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return &CircuitOpenError{Dependency: b.name, ReopenAt: b.reopenAt}
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

// RecordSuccess closes the breaker and resets the failure counter. Results of
// calls admitted before the breaker opened are ignored while it stays open;
// only reopen_at or a half-open trial can close it.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		return
	}
	b.consecutiveFailures = 0
	b.trialInFlight = false
	b.setState(StateClosed)
}

// RecordFailure counts one failed attempt. A failed half-open trial reopens
// the breaker immediately. It reports whether the breaker is now open. A
// failure recorded while already open does not move reopen_at.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		return true
	}
	b.consecutiveFailures++
	if b.state == StateHalfOpen || b.consecutiveFailures >= b.failureThreshold {
		b.trialInFlight = false
		b.reopenAt = b.now().Add(b.recoveryTimeout)
		b.setState(StateOpen)
		return true
	}
	return false
}

// Release gives back a half-open trial slot that never reached the network.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialInFlight = false
}

// State returns the current state without transitioning.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

func (b *Breaker) setState(s BreakerState) {
	if b.state == s {
		return
	}
	b.state = s
	metrics.BreakerState.WithLabelValues(b.name).Set(s.gaugeValue())
}

// BreakerRegistry hands out one Breaker per dependency name.
type BreakerRegistry struct {
	failureThreshold int
	recoveryTimeout  time.Duration
	now              func() time.Time

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewBreakerRegistry(failureThreshold int, recoveryTimeout time.Duration) *BreakerRegistry {
	return &BreakerRegistry{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
		breakers:         make(map[string]*Breaker),
	}
}

func (r *BreakerRegistry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[name]
	if !ok {
		b = NewBreaker(name, r.failureThreshold, r.recoveryTimeout)
		b.now = r.now
		r.breakers[name] = b
	}
	return b
}

// States snapshots every known breaker.
func (r *BreakerRegistry) States() map[string]BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]BreakerState, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}
