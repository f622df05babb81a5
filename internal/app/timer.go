package app

import "time"

// Timer is a pending countdown that can be stopped.
type Timer interface {
	Stop() bool
}

// TimerFactory starts a countdown that calls fn once after d.
type TimerFactory func(d time.Duration, fn func()) Timer

// RealTimers backs countdowns with time.AfterFunc.
func RealTimers(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// sessionTimer owns the single per-question countdown of a room.
// All methods must be called with the room lock held; the generation
// counter turns expiries of cancelled countdowns into no-ops.
type sessionTimer struct {
	after   TimerFactory
	current Timer
	gen     uint64
}

func newSessionTimer(after TimerFactory) *sessionTimer {
	if after == nil {
		after = RealTimers
	}
	return &sessionTimer{after: after}
}

func (t *sessionTimer) arm(d time.Duration, onExpire func(gen uint64)) {
	t.cancel()
	gen := t.gen
	t.current = t.after(d, func() { onExpire(gen) })
}

func (t *sessionTimer) cancel() {
	if t.current != nil {
		t.current.Stop()
		t.current = nil
	}
	t.gen++
}

func (t *sessionTimer) armed() bool {
	return t.current != nil
}

// fired consumes an expiry; it reports false for a stale generation.
func (t *sessionTimer) fired(gen uint64) bool {
	if gen != t.gen || t.current == nil {
		return false
	}
	t.current = nil
	return true
}
