package platform

import (
	"sync"
	"time"

	"github.com/qorzen/kernel/internal/kerrors"
)

// BreakerState is one of the three circuit breaker states.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerHalfOpen:
		return "half-open"
	case BreakerOpen:
		return "open"
	default:
		return "unknown"
	}
}

// BreakerCounts tracks request outcomes within the breaker's current
// generation.
type BreakerCounts struct {
	Requests             uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// BreakerSettings configures a Breaker. Zero values take the same defaults
// as the teacher's resilience breaker.
type BreakerSettings struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	ReadyToTrip func(BreakerCounts) bool
}

// Breaker wraps an outbound call with failure-triggered tripping, guarding
// Network against a persistently failing downstream. Ported from the teacher's gRPC client breaker into a
// domain-neutral guard any platform call can use.
type Breaker struct {
	name     string
	settings BreakerSettings

	mu     sync.Mutex
	state  BreakerState
	counts BreakerCounts
	expiry time.Time
}

func NewBreaker(name string, settings BreakerSettings) *Breaker {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Interval == 0 {
		settings.Interval = 60 * time.Second
	}
	if settings.Timeout == 0 {
		settings.Timeout = 60 * time.Second
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(c BreakerCounts) bool { return c.ConsecutiveFailures > 5 }
	}
	return &Breaker{name: name, settings: settings, expiry: time.Now().Add(settings.Interval)}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, _ := b.currentState(time.Now())
	return state
}

// Guard runs fn if the breaker is closed or half-open-and-under-budget,
// recording the outcome. A tripped breaker rejects without calling fn.
func (b *Breaker) Guard(fn func() error) error {
	generation, err := b.before()
	if err != nil {
		return err
	}

	err = fn()
	b.after(generation, err == nil)
	return err
}

func (b *Breaker) before() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, generation := b.currentState(now)

	if state == BreakerOpen {
		return generation, kerrors.New(kerrors.KindPlatform, "platform.breaker", "circuit open").WithMeta("breaker", b.name)
	}
	if state == BreakerHalfOpen && b.counts.Requests >= b.settings.MaxRequests {
		return generation, kerrors.New(kerrors.KindRateLimited, "platform.breaker", "half-open request budget exhausted").WithMeta("breaker", b.name)
	}

	b.counts.Requests++
	return generation, nil
}

func (b *Breaker) after(before uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, generation := b.currentState(now)
	if generation != before {
		return
	}

	if success {
		b.onSuccess(state, now)
	} else {
		b.onFailure(state, now)
	}
}

func (b *Breaker) onSuccess(state BreakerState, now time.Time) {
	b.counts.ConsecutiveFailures = 0
	b.counts.ConsecutiveSuccesses++
	if state == BreakerHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.MaxRequests {
		b.setState(BreakerClosed, now)
	}
}

func (b *Breaker) onFailure(state BreakerState, now time.Time) {
	b.counts.ConsecutiveSuccesses = 0
	b.counts.ConsecutiveFailures++
	switch state {
	case BreakerClosed:
		if b.settings.ReadyToTrip(b.counts) {
			b.setState(BreakerOpen, now)
		}
	case BreakerHalfOpen:
		b.setState(BreakerOpen, now)
	}
}

func (b *Breaker) currentState(now time.Time) (BreakerState, uint64) {
	switch b.state {
	case BreakerClosed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.counts = BreakerCounts{}
			b.expiry = now.Add(b.settings.Interval)
		}
	case BreakerOpen:
		if b.expiry.Before(now) {
			b.setState(BreakerHalfOpen, now)
		}
	}
	return b.state, uint64(b.expiry.UnixNano())
}

func (b *Breaker) setState(state BreakerState, now time.Time) {
	if b.state == state {
		return
	}
	b.state = state
	b.counts = BreakerCounts{}
	switch state {
	case BreakerClosed:
		b.expiry = now.Add(b.settings.Interval)
	case BreakerOpen:
		b.expiry = now.Add(b.settings.Timeout)
	case BreakerHalfOpen:
		b.expiry = time.Time{}
	}
}
