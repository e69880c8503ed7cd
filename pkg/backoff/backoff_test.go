package backoff

import (
	"testing"
	"time"
)

func TestPolicyDelay_ZeroValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, 1600 * time.Millisecond},
		{7, 5 * time.Second}, // ceiling
		{20, 5 * time.Second},
	}

	var p Policy
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicyDelay_Custom(t *testing.T) {
	t.Parallel()

	p := Policy{Initial: 50 * time.Millisecond, Ceiling: 500 * time.Millisecond}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 50 * time.Millisecond},
		{2, 100 * time.Millisecond},
		{4, 400 * time.Millisecond},
		{5, 500 * time.Millisecond}, // ceiling
		{6, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicyDelay_AttemptBelowOne(t *testing.T) {
	t.Parallel()

	var p Policy
	if got := p.Delay(0); got != 100*time.Millisecond {
		t.Errorf("Delay(0) = %v, want 100ms", got)
	}
	if got := p.Delay(-3); got != 100*time.Millisecond {
		t.Errorf("Delay(-3) = %v, want 100ms", got)
	}
}

func TestPolicyDelay_InitialAboveCeiling(t *testing.T) {
	t.Parallel()

	p := Policy{Initial: time.Second, Ceiling: 200 * time.Millisecond}
	if got := p.Delay(1); got != 200*time.Millisecond {
		t.Errorf("Delay(1) = %v, want 200ms", got)
	}
}
