// Package system exercises the real-time clock adapter.
package system

import (
	"sync/atomic"
	"testing"
	"time"
)

// TestClockNowUTC ensures the clock returns UTC timestamps.
func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	requireNotNil(t, clk)

	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", got.Location())
	}
	if got.Before(before) || got.After(after) {
		t.Fatalf("expected %v to be between %v and %v", got, before, after)
	}
}

// TestClockAfterFuncFires checks the callback runs once the delay elapses.
func TestClockAfterFuncFires(t *testing.T) {
	t.Parallel()

	fired := make(chan struct{})
	New().AfterFunc(5*time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected AfterFunc callback to fire")
	}
}

// TestClockAfterFuncStop verifies a stopped timer never fires.
func TestClockAfterFuncStop(t *testing.T) {
	t.Parallel()

	var fired atomic.Bool
	timer := New().AfterFunc(50*time.Millisecond, func() { fired.Store(true) })
	if !timer.Stop() {
		t.Fatal("expected Stop to report a pending timer")
	}
	time.Sleep(80 * time.Millisecond)
	if fired.Load() {
		t.Fatal("stopped timer fired")
	}
}

func requireNotNil(t *testing.T, v any) {
	t.Helper()
	if v == nil {
		t.Fatal("expected value to be non-nil")
	}
}
