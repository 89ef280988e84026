package fanout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
)

func next(t *testing.T, sub driven.Subscription) domain.Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
		return domain.Message{}
	}
}

func TestMemory_PublishReachesDocumentSubscribers(t *testing.T) {
	f := NewMemory()
	defer f.Close()
	ctx := context.Background()

	a, err := f.Subscribe(ctx, "doc-1")
	require.NoError(t, err)
	b, err := f.Subscribe(ctx, "doc-1")
	require.NoError(t, err)
	other, err := f.Subscribe(ctx, "doc-2")
	require.NoError(t, err)

	require.NoError(t, f.Publish(ctx, "doc-1", domain.Message{Kind: domain.MsgFieldUpdate, Field: "title"}))
	require.NoError(t, f.Publish(ctx, "doc-1", domain.Message{Kind: domain.MsgVersionSaved, Version: 2}))

	assert.Equal(t, domain.MsgFieldUpdate, next(t, a).Kind)
	assert.Equal(t, domain.MsgVersionSaved, next(t, a).Kind)
	assert.Equal(t, domain.MsgFieldUpdate, next(t, b).Kind)
	assert.Empty(t, other.Messages())
}

func TestMemory_CloseSubscription(t *testing.T) {
	f := NewMemory()
	ctx := context.Background()
	sub, err := f.Subscribe(ctx, "doc-1")
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, ok := <-sub.Messages()
	assert.False(t, ok)
	assert.NoError(t, f.Publish(ctx, "doc-1", domain.Message{Kind: domain.MsgFieldUpdate}))

	f.mu.Lock()
	assert.Empty(t, f.subs)
	f.mu.Unlock()
}

func TestMemory_CloseWakesBlockedPublisher(t *testing.T) {
	f := NewMemory()
	ctx := context.Background()
	sub, err := f.Subscribe(ctx, "doc-1")
	require.NoError(t, err)

	for i := 0; i < subscriptionBuffer; i++ {
		require.NoError(t, f.Publish(ctx, "doc-1", domain.Message{Kind: domain.MsgCursorUpdate}))
	}

	done := make(chan error, 1)
	go func() { done <- f.Publish(ctx, "doc-1", domain.Message{Kind: domain.MsgCursorUpdate}) }()

	select {
	case <-done:
		t.Fatal("publish should block on a full subscriber")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, sub.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("publisher still blocked after close")
	}
}

func TestMemory_PublishHonoursContext(t *testing.T) {
	f := NewMemory()
	defer f.Close()
	_, err := f.Subscribe(context.Background(), "doc-1")
	require.NoError(t, err)
	for i := 0; i < subscriptionBuffer; i++ {
		require.NoError(t, f.Publish(context.Background(), "doc-1", domain.Message{}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, f.Publish(ctx, "doc-1", domain.Message{}), context.DeadlineExceeded)
}

func TestMemory_Closed(t *testing.T) {
	f := NewMemory()
	sub, err := f.Subscribe(context.Background(), "doc-1")
	require.NoError(t, err)

	require.NoError(t, f.Close())

	_, ok := <-sub.Messages()
	assert.False(t, ok)
	_, err = f.Subscribe(context.Background(), "doc-1")
	assert.ErrorIs(t, err, domain.ErrConnectionClosed)
	assert.ErrorIs(t, f.Publish(context.Background(), "doc-1", domain.Message{}), domain.ErrConnectionClosed)
}
