package services

import (
	"time"

	"github.com/custodia-labs/formsync/internal/core/domain"
)

// PendingBuffer accumulates local edits until they are flushed.
//
// The buffer only tracks what is unsaved; the owner performs the flush
// itself between Begin and Succeed/Fail. At most one flush runs at a time.
// Not safe for concurrent use.
type PendingBuffer struct {
	changes  domain.PendingChangeSet
	inFlight domain.PendingChangeSet
	again    bool

	timer    timerSlot
	clock    Clock
	post     func(func())
	interval time.Duration
	onDue    func()
}

// NewPendingBuffer creates an empty buffer. onDue runs on the owner via
// post once interval has passed without an edit.
func NewPendingBuffer(clock Clock, post func(func()), interval time.Duration, onDue func()) *PendingBuffer {
	return &PendingBuffer{
		changes:  make(domain.PendingChangeSet),
		clock:    clock,
		post:     post,
		interval: interval,
		onDue:    onDue,
	}
}

// Record inserts or overwrites a field and restarts the quiescent window.
func (b *PendingBuffer) Record(field string, value any) {
	b.changes[field] = domain.NormalizeValue(value)
	b.timer.schedule(b.clock, b.interval, b.post, b.onDue)
}

// Begin cancels the timer and snapshots the buffer for a flush.
// Returns false if the buffer is empty or a flush is already running; in
// the latter case another flush is requested for when it completes.
func (b *PendingBuffer) Begin() (domain.PendingChangeSet, bool) {
	b.timer.stop()
	if b.inFlight != nil {
		if len(b.changes) > 0 {
			b.again = true
		}
		return nil, false
	}
	if len(b.changes) == 0 {
		return nil, false
	}
	b.inFlight = b.changes.Clone()
	return b.inFlight, true
}

// Succeed removes every entry the completed flush covered. Entries edited
// again while the flush was running are kept. Returns true if another
// flush was requested in the meantime and there is still something to send.
func (b *PendingBuffer) Succeed() bool {
	b.clearMatching(b.inFlight)
	b.inFlight = nil
	again := b.again && len(b.changes) > 0
	b.again = false
	return again
}

// Fail keeps the buffer. With retry set, the flush timer is restarted.
func (b *PendingBuffer) Fail(retry bool) {
	b.inFlight = nil
	b.again = false
	if retry && len(b.changes) > 0 {
		b.timer.schedule(b.clock, b.interval, b.post, b.onDue)
	}
}

// Reject drops the entries a flush sent that the server refused as invalid.
// Entries edited again since the flush began are kept and rescheduled.
func (b *PendingBuffer) Reject() {
	b.clearMatching(b.inFlight)
	b.inFlight = nil
	b.again = false
	if len(b.changes) > 0 {
		b.timer.schedule(b.clock, b.interval, b.post, b.onDue)
	}
}

// ClearSaved drops entries whose value equals what a save confirmed.
func (b *PendingBuffer) ClearSaved(saved map[string]any) {
	b.clearMatching(saved)
	if len(b.changes) == 0 {
		b.timer.stop()
	}
}

// Drop removes one field's entry because a newer remote value replaced it.
func (b *PendingBuffer) Drop(field string) {
	delete(b.changes, field)
	if len(b.changes) == 0 {
		b.timer.stop()
	}
}

// Discard throws away every pending edit.
func (b *PendingBuffer) Discard() {
	b.changes = make(domain.PendingChangeSet)
	b.again = false
	b.timer.stop()
}

// HasUnsaved reports whether any edit is waiting to be flushed.
func (b *PendingBuffer) HasUnsaved() bool {
	return len(b.changes) > 0
}

// Flushing reports whether a flush is running.
func (b *PendingBuffer) Flushing() bool {
	return b.inFlight != nil
}

// Scheduled reports whether the flush timer is armed.
func (b *PendingBuffer) Scheduled() bool {
	return b.timer.pending()
}

// Pending returns a copy of the buffered edits.
func (b *PendingBuffer) Pending() domain.PendingChangeSet {
	return b.changes.Clone()
}

func (b *PendingBuffer) clearMatching(covered map[string]any) {
	for field, value := range covered {
		if cur, ok := b.changes[field]; ok && domain.ValuesEqual(cur, value) {
			delete(b.changes, field)
		}
	}
}
