package circuitbreaker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrOpen is returned by Allow while the circuit is open.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Settings configures a breaker.
type Settings struct {
	// FailureThreshold consecutive failures trip the breaker. Zero disables it.
	FailureThreshold int32
	// SuccessThreshold half-open successes close it again.
	SuccessThreshold int32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// CircuitBreaker fails fast once the backend has failed repeatedly, so a
// dead backend does not hold every caller for a full request timeout.
type CircuitBreaker struct {
	state           atomic.Value
	failureCount    atomic.Int32
	successCount    atomic.Int32
	lastFailureTime atomic.Value
	settings        Settings
	now             func() time.Time
	mu              sync.RWMutex
	onStateChange   func(from, to State)
}

// New creates a closed circuit breaker
func New(settings Settings) *CircuitBreaker {
	if settings.SuccessThreshold <= 0 {
		settings.SuccessThreshold = 1
	}
	cb := &CircuitBreaker{
		settings:      settings,
		now:           time.Now,
		onStateChange: func(_, _ State) {},
	}
	cb.state.Store(StateClosed)
	return cb
}

// SetStateChangeCallback registers a callback for state transitions
func (cb *CircuitBreaker) SetStateChangeCallback(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// RecordSuccess resets the failure streak and may close a half-open breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	switch cb.State() {
	case StateHalfOpen:
		if cb.successCount.Add(1) >= cb.settings.SuccessThreshold {
			cb.setState(StateClosed)
			cb.failureCount.Store(0)
			cb.successCount.Store(0)
		}
	case StateClosed:
		cb.failureCount.Store(0)
	}
}

// RecordFailure extends the failure streak and may trip the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	if cb.settings.FailureThreshold <= 0 {
		return
	}
	now := cb.now()
	cb.lastFailureTime.Store(&now)

	switch cb.State() {
	case StateClosed:
		if cb.failureCount.Add(1) >= cb.settings.FailureThreshold {
			cb.setState(StateOpen)
			cb.failureCount.Store(0)
			cb.successCount.Store(0)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
		cb.failureCount.Store(0)
		cb.successCount.Store(0)
	}
}

// Allow returns ErrOpen while requests must not be sent. After the open
// timeout it moves to half-open and lets trial requests through.
func (cb *CircuitBreaker) Allow() error {
	if cb.State() != StateOpen {
		return nil
	}
	lastFailure, ok := cb.lastFailureTime.Load().(*time.Time)
	if !ok || lastFailure == nil {
		return ErrOpen
	}
	if cb.now().Sub(*lastFailure) > cb.settings.OpenTimeout {
		cb.setState(StateHalfOpen)
		cb.failureCount.Store(0)
		cb.successCount.Store(0)
		return nil
	}
	return ErrOpen
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	return cb.state.Load().(State)
}

// setState transitions to a new state and calls the callback
func (cb *CircuitBreaker) setState(newState State) {
	oldState := cb.State()
	if oldState == newState {
		return
	}
	cb.state.Store(newState)
	cb.mu.RLock()
	fn := cb.onStateChange
	cb.mu.RUnlock()
	if fn != nil {
		fn(oldState, newState)
	}
}
