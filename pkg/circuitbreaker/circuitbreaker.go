package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed is the initial state where requests are allowed.
	Closed State = iota
	// Open is the state where the circuit has tripped and requests are blocked.
	Open
	// HalfOpen allows a single trial request to probe the backend's recovery.
	HalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected without being attempted,
// either because the circuit is open or because the half-open probe slot is
// already taken.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards calls to a failing dependency. One instance is shared
// by every call to one logical backend.
type CircuitBreaker interface {
	// Execute runs the given operation if the breaker admits it. The
	// operation's success or failure feeds the breaker state.
	Execute(op func() (interface{}, error)) (interface{}, error)
	// State returns the current state of the circuit breaker.
	State() State
}

type breaker struct {
	failureThreshold uint32        // consecutive failures before the circuit opens
	cooldown         time.Duration // how long the circuit stays open before probing

	failureCount    uint32
	lastFailureTime time.Time
	state           State
	probing         bool // a half-open probe is in flight
	mu              sync.Mutex
}

// New creates a breaker that opens after failureThreshold consecutive
// failures and allows a single probe once cooldown has elapsed.
func New(failureThreshold uint32, cooldown time.Duration) CircuitBreaker {
	return &breaker{
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		state:            Closed,
	}
}

// State returns the current state of the circuit breaker.
func (cb *breaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute wraps the operation with the circuit breaker logic.
func (cb *breaker) Execute(op func() (interface{}, error)) (interface{}, error) {
	if err := cb.admit(); err != nil {
		return nil, err
	}

	res, err := op()
	if err != nil {
		cb.recordFailure()
		return nil, err
	}
	cb.recordSuccess()
	return res, nil
}

// admit decides whether a call may go out, moving Open to HalfOpen once the
// cooldown has elapsed.
func (cb *breaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Open:
		if time.Since(cb.lastFailureTime) <= cb.cooldown {
			return ErrCircuitOpen
		}
		cb.state = HalfOpen
		cb.probing = true
		return nil
	case HalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
		return nil
	default:
		return nil
	}
}

// recordSuccess resets the failure count and closes the circuit.
func (cb *breaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.state = Closed
	cb.probing = false
}

// recordFailure counts a failure, reopening the circuit from HalfOpen or
// tripping it from Closed once the threshold is reached.
func (cb *breaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()
	cb.probing = false

	if cb.state == HalfOpen || cb.failureCount >= cb.failureThreshold {
		cb.state = Open
	}
}
