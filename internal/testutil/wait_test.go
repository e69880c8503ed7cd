package testutil

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWaitFor_ImmediateSuccess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ok := WaitFor(func() bool {
		calls.Add(1)
		return true
	})
	if !ok {
		t.Error("expected WaitFor to succeed")
	}
	if calls.Load() != 1 {
		t.Errorf("cond called %d times, want 1", calls.Load())
	}
}

func TestWaitFor_EventualSuccess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ok := WaitFor(func() bool {
		return calls.Add(1) >= 3
	}, WithInterval(time.Millisecond))
	if !ok {
		t.Error("expected WaitFor to succeed after a few polls")
	}
	if calls.Load() < 3 {
		t.Errorf("cond called %d times, want at least 3", calls.Load())
	}
}

func TestWaitFor_Timeout(t *testing.T) {
	t.Parallel()

	start := time.Now()
	ok := WaitFor(func() bool { return false },
		WithTimeout(30*time.Millisecond), WithInterval(5*time.Millisecond))
	if ok {
		t.Error("expected WaitFor to time out")
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("returned after %v, want at least the 30ms timeout", elapsed)
	}
}

func TestMustWaitFor(t *testing.T) {
	t.Parallel()

	// Only the success path is exercised directly; the failure path calls
	// t.Fatal, which cannot be observed without a fake *testing.T.
	MustWaitFor(t, func() bool { return true })
}
