// Package backoff computes delays for retry loops.
package backoff

import "time"

// A Policy describes an exponential retry schedule. The zero value
// waits 100ms before the first retry and doubles up to a 5s ceiling.
type Policy struct {
	Initial time.Duration
	Ceiling time.Duration
}

// Delay returns how long to wait before the given attempt, counted
// from 1. Attempts below 1 get the initial delay.
func (p Policy) Delay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	ceiling := p.Ceiling
	if ceiling <= 0 {
		ceiling = 5 * time.Second
	}

	d := initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}
