package services

import "time"

// Clock abstracts time for timer-driven components.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f in its own goroutine after d elapses.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. Returns false if it already
	// ran or was stopped.
	Stop() bool
}

type systemClock struct{}

// SystemClock returns the wall clock.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// timerSlot holds at most one scheduled callback for an actor. Scheduling
// cancels the previous callback; one that was already queued on the actor
// when it got cancelled is recognised as stale by its sequence number.
type timerSlot struct {
	timer Timer
	seq   uint64
}

// schedule runs fn on the actor via post after d, replacing any pending callback.
func (t *timerSlot) schedule(clock Clock, d time.Duration, post func(func()), fn func()) {
	t.stop()
	seq := t.seq
	t.timer = clock.AfterFunc(d, func() {
		post(func() {
			if t.seq != seq || t.timer == nil {
				return
			}
			t.timer = nil
			fn()
		})
	})
}

// stop cancels the pending callback.
func (t *timerSlot) stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.seq++
}

// pending reports whether a callback is scheduled.
func (t *timerSlot) pending() bool {
	return t.timer != nil
}
