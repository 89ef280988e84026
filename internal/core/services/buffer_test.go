package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/formsync/internal/core/domain"
)

func newTestBuffer(clock Clock, due *int) *PendingBuffer {
	return NewPendingBuffer(clock, inline, 2500*time.Millisecond, func() { *due++ })
}

func TestPendingBuffer_RecordCollapsesSameField(t *testing.T) {
	b := newTestBuffer(newFakeClock(), new(int))

	b.Record("title", "D")
	b.Record("title", "Dr")
	b.Record("title", "Draft")

	assert.True(t, b.HasUnsaved())
	assert.Equal(t, domain.PendingChangeSet{"title": "Draft"}, b.Pending())
}

func TestPendingBuffer_TimerFiresAfterQuietWindow(t *testing.T) {
	clock := newFakeClock()
	due := 0
	b := newTestBuffer(clock, &due)

	b.Record("title", "a")
	clock.Advance(2 * time.Second)
	b.Record("title", "ab")
	clock.Advance(2 * time.Second)
	assert.Equal(t, 0, due)

	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 1, due)
}

func TestPendingBuffer_SuccessClearsBuffer(t *testing.T) {
	b := newTestBuffer(newFakeClock(), new(int))
	b.Record("title", "Draft")
	b.Record("published", true)

	snap, ok := b.Begin()
	require.True(t, ok)
	assert.Len(t, snap, 2)
	assert.True(t, b.HasUnsaved())

	again := b.Succeed()

	assert.False(t, again)
	assert.False(t, b.HasUnsaved())
	assert.False(t, b.Flushing())
}

func TestPendingBuffer_FailureRetainsEntries(t *testing.T) {
	clock := newFakeClock()
	due := 0
	b := newTestBuffer(clock, &due)
	b.Record("title", "Draft")

	_, ok := b.Begin()
	require.True(t, ok)
	b.Fail(true)

	assert.True(t, b.HasUnsaved())
	assert.Equal(t, domain.PendingChangeSet{"title": "Draft"}, b.Pending())
	assert.True(t, b.Scheduled())

	clock.Advance(2500 * time.Millisecond)
	assert.Equal(t, 1, due)

	snap, ok := b.Begin()
	require.True(t, ok)
	assert.Equal(t, "Draft", snap["title"])
	b.Succeed()
	assert.False(t, b.HasUnsaved())
}

func TestPendingBuffer_EditDuringFlushIsKept(t *testing.T) {
	b := newTestBuffer(newFakeClock(), new(int))
	b.Record("title", "Draft")
	b.Record("description", "X")

	_, ok := b.Begin()
	require.True(t, ok)
	b.Record("title", "Draft 2")

	_, ok = b.Begin()
	assert.False(t, ok, "only one flush at a time")

	again := b.Succeed()

	assert.True(t, again)
	assert.Equal(t, domain.PendingChangeSet{"title": "Draft 2"}, b.Pending())
}

func TestPendingBuffer_BeginCancelsTimer(t *testing.T) {
	clock := newFakeClock()
	due := 0
	b := newTestBuffer(clock, &due)
	b.Record("title", "Draft")

	_, ok := b.Begin()
	require.True(t, ok)
	clock.Advance(time.Minute)

	assert.Equal(t, 0, due)
}

func TestPendingBuffer_BeginOnEmpty(t *testing.T) {
	b := newTestBuffer(newFakeClock(), new(int))

	_, ok := b.Begin()
	assert.False(t, ok)
}

func TestPendingBuffer_ClearSavedOnlyMatchingValues(t *testing.T) {
	b := newTestBuffer(newFakeClock(), new(int))
	b.Record("title", "Mine")
	b.Record("priority", 3)

	b.ClearSaved(map[string]any{"title": "Theirs", "priority": float64(3)})

	assert.Equal(t, domain.PendingChangeSet{"title": "Mine"}, b.Pending())
}

func TestPendingBuffer_DropAndDiscard(t *testing.T) {
	clock := newFakeClock()
	b := newTestBuffer(clock, new(int))
	b.Record("title", "a")
	b.Record("body", "b")

	b.Drop("title")
	assert.Equal(t, domain.PendingChangeSet{"body": "b"}, b.Pending())

	b.Discard()
	assert.False(t, b.HasUnsaved())
	assert.False(t, b.Scheduled())
	assert.Equal(t, 0, clock.Pending())
}

func TestPendingBuffer_RejectDropsSentEntries(t *testing.T) {
	b := newTestBuffer(newFakeClock(), new(int))
	b.Record("title", "Draft")
	b.Record("priority", 3)

	_, ok := b.Begin()
	require.True(t, ok)
	b.Record("priority", 4)
	b.Reject()

	assert.False(t, b.Flushing())
	assert.Equal(t, domain.PendingChangeSet{"priority": float64(4)}, b.Pending())
	assert.True(t, b.Scheduled())
}

func TestPendingBuffer_RejectEmptiesBuffer(t *testing.T) {
	b := newTestBuffer(newFakeClock(), new(int))
	b.Record("title", "Draft")

	_, ok := b.Begin()
	require.True(t, ok)
	b.Reject()

	assert.False(t, b.HasUnsaved())
	assert.False(t, b.Scheduled())
}
