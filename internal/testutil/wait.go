// Package testutil provides polling helpers for tests that wait on
// asynchronous work.
package testutil

import (
	"testing"
	"time"
)

type waitConfig struct {
	timeout  time.Duration
	interval time.Duration
}

// Option adjusts how long and how often a wait polls.
type Option func(*waitConfig)

// WithTimeout sets the total time to wait before giving up.
func WithTimeout(d time.Duration) Option {
	return func(c *waitConfig) { c.timeout = d }
}

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(c *waitConfig) { c.interval = d }
}

// WaitFor polls cond until it returns true or the timeout elapses.
// The default is a 2s timeout polled every 10ms.
func WaitFor(cond func() bool, opts ...Option) bool {
	cfg := waitConfig{timeout: 2 * time.Second, interval: 10 * time.Millisecond}
	for _, opt := range opts {
		opt(&cfg)
	}

	deadline := time.Now().Add(cfg.timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(cfg.interval)
	}
}

// MustWaitFor is WaitFor but fails the test when the condition never holds.
func MustWaitFor(t *testing.T, cond func() bool, opts ...Option) {
	t.Helper()
	if !WaitFor(cond, opts...) {
		t.Fatal("condition not met within timeout")
	}
}
