// Package circuitbreaker guards delivery engine endpoints. After a run
// of consecutive failures the endpoint opens for a cooldown window; the
// first call after the window is a half-open probe whose outcome decides
// whether the circuit closes again.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type endpointState struct {
	state               state
	consecutiveFailures int
	openedUntil         time.Time
}

type CircuitBreaker struct {
	mu        sync.Mutex
	endpoints map[string]*endpointState
	threshold int
	cooldown  time.Duration
	clock     func() time.Time
}

func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		endpoints: make(map[string]*endpointState),
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (cb *CircuitBreaker) WithClock(clock func() time.Time) *CircuitBreaker {
	cb.clock = clock
	return cb
}

// Allow reports whether a call to the endpoint may proceed. When an open
// circuit's cooldown has elapsed, the first caller is admitted as a
// half-open probe; concurrent callers stay rejected until the probe's
// outcome is recorded.
func (cb *CircuitBreaker) Allow(endpoint string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.endpoints[endpoint]
	if !ok {
		return nil
	}

	switch s.state {
	case stateClosed:
		return nil
	case stateOpen:
		if !cb.clock().Before(s.openedUntil) {
			s.state = stateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	case stateHalfOpen:
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (cb *CircuitBreaker) RecordSuccess(endpoint string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.endpoints[endpoint]
	if !ok {
		return
	}
	s.state = stateClosed
	s.consecutiveFailures = 0
}

func (cb *CircuitBreaker) RecordFailure(endpoint string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.endpoints[endpoint]
	if !ok {
		s = &endpointState{}
		cb.endpoints[endpoint] = s
	}

	s.consecutiveFailures++
	if s.consecutiveFailures >= cb.threshold {
		s.state = stateOpen
		s.openedUntil = cb.clock().Add(cb.cooldown)
	}
}
