package tautan

import (
	"sync/atomic"
	"time"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// CircuitState represents the state of the circuit breaker
type CircuitState int64

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker fails attempts fast after repeated upstream failures.
type CircuitBreaker struct {
	config      CircuitBreakerConfig
	state       int64
	failures    int64
	lastFailure int64
	successes   int64
	now         func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}

	return &CircuitBreaker{
		config: config,
		state:  int64(StateClosed),
		now:    time.Now,
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(atomic.LoadInt64(&cb.state))
}

// Allow checks if the request should be allowed through the circuit breaker
func (cb *CircuitBreaker) Allow() bool {
	now := cb.now().UnixNano()

	switch cb.State() {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		lastFailure := atomic.LoadInt64(&cb.lastFailure)
		if now-lastFailure >= int64(cb.config.RecoveryTimeout) {
			if atomic.CompareAndSwapInt64(&cb.state, int64(StateOpen), int64(StateHalfOpen)) {
				atomic.StoreInt64(&cb.successes, 0)
			}
			return true
		}
		return false
	default:
		return false
	}
}

// Record feeds an attempt outcome into the breaker. Only upstream failures
// (SERVER, NETWORK, TIMEOUT) count against it; anything else counts as success.
func (cb *CircuitBreaker) Record(err *APIError) {
	if err != nil && countsAsFailure(err.Kind) {
		cb.RecordFailure()
		return
	}
	cb.RecordSuccess()
}

func countsAsFailure(kind ErrorKind) bool {
	switch kind {
	case KindServer, KindNetwork, KindTimeout:
		return true
	default:
		return false
	}
}

// RecordFailure records a failure in the circuit breaker
func (cb *CircuitBreaker) RecordFailure() {
	atomic.StoreInt64(&cb.lastFailure, cb.now().UnixNano())

	switch cb.State() {
	case StateClosed:
		failures := atomic.AddInt64(&cb.failures, 1)
		if failures >= int64(cb.config.FailureThreshold) {
			atomic.StoreInt64(&cb.state, int64(StateOpen))
		}
	case StateHalfOpen:
		atomic.AddInt64(&cb.failures, 1)
		atomic.StoreInt64(&cb.state, int64(StateOpen))
		atomic.StoreInt64(&cb.successes, 0)
	}
}

// RecordSuccess records a success in the circuit breaker
func (cb *CircuitBreaker) RecordSuccess() {
	switch cb.State() {
	case StateClosed:
		atomic.StoreInt64(&cb.failures, 0)
	case StateHalfOpen:
		successes := atomic.AddInt64(&cb.successes, 1)
		if successes >= int64(cb.config.SuccessThreshold) {
			atomic.StoreInt64(&cb.state, int64(StateClosed))
			atomic.StoreInt64(&cb.failures, 0)
			atomic.StoreInt64(&cb.successes, 0)
		}
	}
}
