package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/formsync/internal/core/domain"
)

func newDoc(id string) *domain.Document {
	return &domain.Document{
		ID:     id,
		FormID: "form-" + id,
		Kind:   domain.KindFAQ,
		Fields: map[string]any{domain.FieldTitle: "Q", "priority": float64(1)},
	}
}

func TestDocumentStore_CreateGet(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newDoc("d1")))
	assert.ErrorIs(t, s.Create(ctx, newDoc("d1")), domain.ErrAlreadyExists)

	got, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Q", got.Fields[domain.FieldTitle])
	assert.Equal(t, int64(0), got.Version)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_GetReturnsCopy(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newDoc("d1")))

	got, _ := s.Get(ctx, "d1")
	got.Fields[domain.FieldTitle] = "mutated"

	again, _ := s.Get(ctx, "d1")
	assert.Equal(t, "Q", again.Fields[domain.FieldTitle])
}

func TestDocumentStore_ApplyChanges(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newDoc("d1")))

	v, err := s.ApplyChanges(ctx, "d1", map[string]any{domain.FieldTitle: "Why?", "priority": 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	got, _ := s.Get(ctx, "d1")
	assert.Equal(t, "Why?", got.Fields[domain.FieldTitle])
	assert.Equal(t, float64(2), got.Fields["priority"])
	assert.False(t, got.UpdatedAt.IsZero())

	_, err = s.ApplyChanges(ctx, "missing", map[string]any{"x": 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ConcurrentApplyIncrementsOncePerCall(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newDoc("d1")))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.ApplyChanges(ctx, "d1", map[string]any{"priority": i})
		}(i)
	}
	wg.Wait()

	got, _ := s.Get(ctx, "d1")
	assert.Equal(t, int64(20), got.Version)
}

func TestDocumentStore_List(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newDoc("d1")))
	require.NoError(t, s.Create(ctx, newDoc("d2")))

	docs, err := s.List(ctx, []string{"d2", "missing", "d1"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "d2", docs[0].ID)
}

func TestMembershipStore(t *testing.T) {
	s := NewMembershipStore()
	ctx := context.Background()

	_, err := s.GetTier(ctx, "d1", "ana")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.SetTier(ctx, domain.Membership{DocumentID: "d1", UserID: "ana", Tier: domain.TierAdmin}))
	require.NoError(t, s.SetTier(ctx, domain.Membership{DocumentID: "d2", UserID: "ana", Tier: domain.TierRead}))
	require.NoError(t, s.SetTier(ctx, domain.Membership{DocumentID: "d1", UserID: "bea", Tier: domain.TierWrite}))
	require.NoError(t, s.SetTier(ctx, domain.Membership{DocumentID: "d1", UserID: "bea", Tier: domain.TierRead}))
	assert.ErrorIs(t, s.SetTier(ctx, domain.Membership{DocumentID: "d1", UserID: "x", Tier: "owner"}), domain.ErrInvalidInput)

	tier, err := s.GetTier(ctx, "d1", "bea")
	require.NoError(t, err)
	assert.Equal(t, domain.TierRead, tier)

	mine, err := s.ListForUser(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, []domain.Membership{
		{DocumentID: "d1", UserID: "ana", Tier: domain.TierAdmin},
		{DocumentID: "d2", UserID: "ana", Tier: domain.TierRead},
	}, mine)

	onDoc, err := s.ListForDocument(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, onDoc, 2)
	assert.Equal(t, "ana", onDoc[0].UserID)
	assert.Equal(t, "bea", onDoc[1].UserID)
}
