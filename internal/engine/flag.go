package engine

import "sync/atomic"

// inFlightFlag guards the poll cycle: at most one Poll chain may be queued
// or running at a time. The scheduler sets it, poll handling clears it when
// the cycle ends (empty or partial page) or fails.
type inFlightFlag struct {
	v atomic.Bool
}

// TrySet atomically sets the flag and reports whether it was clear before.
func (f *inFlightFlag) TrySet() bool { return f.v.CompareAndSwap(false, true) }

func (f *inFlightFlag) Clear() { f.v.Store(false) }

func (f *inFlightFlag) Active() bool { return f.v.Load() }
