package upstream

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Circuit breaker defaults
const (
	DefaultFailureThreshold    = 5
	DefaultRecoveryTimeout     = 30 * time.Second
	DefaultHalfOpenMaxRequests = 2
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled             bool
	FailureThreshold    int
	RecoveryTimeout     time.Duration
	HalfOpenMaxRequests int
}

// CircuitBreaker keeps an upstream out of rotation after consecutive
// transport failures, then lets a few probe requests through once
// RecoveryTimeout has passed
type CircuitBreaker struct {
	cfg      CircuitBreakerConfig
	state    breakerState
	failures int
	probes   int
	openedAt time.Time
	now      func() time.Time
	mu       sync.Mutex
}

// NewCircuitBreaker creates a new CircuitBreaker
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = DefaultHalfOpenMaxRequests
	}
	return &CircuitBreaker{
		cfg: cfg,
		now: time.Now,
	}
}

// AllowRequest returns true if a request should be allowed.
// An open breaker moves to half-open once the recovery timeout elapsed.
func (cb *CircuitBreaker) AllowRequest() bool {
	if !cb.cfg.Enabled {
		return true
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerHalfOpen:
		return cb.probes < cb.cfg.HalfOpenMaxRequests
	case breakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.RecoveryTimeout {
			return false
		}
		cb.state = breakerHalfOpen
		cb.probes = 0
		return true
	default:
		return true
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.cfg.Enabled {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerHalfOpen:
		cb.probes++
		if cb.probes >= cb.cfg.HalfOpenMaxRequests {
			cb.state = breakerClosed
			cb.failures = 0
		}
	case breakerClosed:
		cb.failures = 0
	}
}

// RecordFailure records a failed request
func (cb *CircuitBreaker) RecordFailure() {
	if !cb.cfg.Enabled {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.trip()
		}
	case breakerHalfOpen:
		cb.trip()
	case breakerOpen:
		cb.openedAt = cb.now()
	}
}

// State returns the current state name
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

func (cb *CircuitBreaker) trip() {
	cb.state = breakerOpen
	cb.openedAt = cb.now()
	cb.probes = 0
}
