package golden

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// BreakerState is the circuit state guarding a homologation database.
type BreakerState int

const (
	// BreakerClosed is the normal state, reads flow through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects reads after repeated failures.
	BreakerOpen
	// BreakerHalfOpen lets a single probe read test recovery.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned when a read is rejected because the
// homologation database tripped the breaker.
var ErrBreakerOpen = eris.New("golden: homologation database circuit open")

// Breaker keeps a flapping homologation database from being hammered by
// soft-fail reads: after FailureThreshold consecutive failures reads are
// rejected outright until ResetTimeout passes, then one probe is let
// through.
type Breaker struct {
	failureThreshold int
	resetTimeout     time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	lastFail time.Time

	nowFunc func() time.Time
}

// NewBreaker creates a Breaker. Non-positive arguments fall back to
// 5 failures and a 30s reset.
func NewBreaker(failureThreshold int, resetTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		state:            BreakerClosed,
		nowFunc:          time.Now,
	}
}

// Allow reports whether a read may proceed, returning ErrBreakerOpen when
// the circuit is open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.nowFunc().Sub(b.lastFail) >= b.resetTimeout {
			b.state = BreakerHalfOpen
			return nil
		}
		return ErrBreakerOpen
	default:
		return nil
	}
}

// Record feeds the outcome of a read back into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.state = BreakerClosed
		b.failures = 0
		return
	}

	b.failures++
	b.lastFail = b.nowFunc()
	if b.state == BreakerHalfOpen || b.failures >= b.failureThreshold {
		b.state = BreakerOpen
	}
}

// State returns the current circuit state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.nowFunc().Sub(b.lastFail) >= b.resetTimeout {
		return BreakerHalfOpen
	}
	return b.state
}
