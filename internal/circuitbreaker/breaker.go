// Package circuitbreaker suspends webhook destinations that fail
// repeatedly so retries against a dead endpoint stop consuming delivery
// attempts.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Allow while a destination is suspended.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// destination tracks one URL. A destination with failures below the
// threshold is closed. At the threshold it opens until suspendedUntil;
// after that a single probe is let through, and its outcome decides
// whether the circuit closes or re-opens.
type destination struct {
	failures       int
	suspendedUntil time.Time
	probing        bool
}

type CircuitBreaker struct {
	mu           sync.Mutex
	destinations map[string]*destination
	threshold    int
	cooldown     time.Duration
	clock        func() time.Time
}

// New creates a breaker that opens a destination after threshold
// consecutive failures and keeps it open for cooldown.
func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		destinations: make(map[string]*destination),
		threshold:    threshold,
		cooldown:     cooldown,
		clock:        time.Now,
	}
}

// Allow reports whether a delivery to url may proceed. After the cooldown
// expires it admits exactly one probe; further calls are rejected until
// RecordSuccess or RecordFailure settles the probe.
func (cb *CircuitBreaker) Allow(url string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	d, ok := cb.destinations[url]
	if !ok || d.failures < cb.threshold {
		return nil
	}
	if cb.clock().Before(d.suspendedUntil) {
		return ErrCircuitOpen
	}
	if d.probing {
		return ErrCircuitOpen
	}
	d.probing = true
	return nil
}

// RecordSuccess closes the circuit for url and forgets its history.
func (cb *CircuitBreaker) RecordSuccess(url string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.destinations, url)
}

// RecordFailure counts a failed delivery. Reaching the threshold (or
// failing a probe) suspends the destination for the cooldown.
func (cb *CircuitBreaker) RecordFailure(url string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	d, ok := cb.destinations[url]
	if !ok {
		d = &destination{}
		cb.destinations[url] = d
	}

	d.failures++
	d.probing = false
	if d.failures >= cb.threshold {
		d.suspendedUntil = cb.clock().Add(cb.cooldown)
	}
}
