package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/formsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/formsync/internal/core/domain"
)

type savedCall struct {
	documentID string
	origin     string
	changes    map[string]any
	version    int64
}

type recordingNotifier struct {
	mu         sync.Mutex
	saved      []savedCall
	revoked    []string
	publishErr error
}

func (n *recordingNotifier) PublishSaved(_ context.Context, documentID, origin string, changes map[string]any, version int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.saved = append(n.saved, savedCall{documentID, origin, changes, version})
	return n.publishErr
}

func (n *recordingNotifier) Revoke(documentID, userID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.revoked = append(n.revoked, documentID+"/"+userID)
}

var (
	owner  = domain.Identity{UserID: "u-owner", DisplayName: "Owner"}
	writer = domain.Identity{UserID: "u-writer", DisplayName: "Writer"}
	reader = domain.Identity{UserID: "u-reader", DisplayName: "Reader"}
)

func newDocumentFixture(t *testing.T) (*DocumentService, *recordingNotifier, *domain.Document) {
	t.Helper()
	notifier := &recordingNotifier{}
	svc := NewDocumentService(memory.NewDocumentStore(), memory.NewMembershipStore(), notifier)

	ctx := context.Background()
	doc, err := svc.Create(ctx, owner, domain.KindArticle, "form-7")
	require.NoError(t, err)
	require.NoError(t, svc.Grant(ctx, owner, doc.ID, writer.UserID, domain.TierWrite))
	require.NoError(t, svc.Grant(ctx, owner, doc.ID, reader.UserID, domain.TierRead))
	notifier.revoked = nil
	return svc, notifier, doc
}

func TestDocumentService_Create(t *testing.T) {
	svc := NewDocumentService(memory.NewDocumentStore(), memory.NewMembershipStore(), nil)
	ctx := context.Background()

	doc, err := svc.Create(ctx, owner, domain.KindFAQ, "")

	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, doc.ID, doc.FormID)
	assert.Equal(t, float64(0), doc.Fields["priority"])

	access, err := svc.Get(ctx, owner, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierAdmin, access.Tier)
	assert.Equal(t, int64(0), access.Document.Version)
}

func TestDocumentService_Create_Rejects(t *testing.T) {
	svc := NewDocumentService(memory.NewDocumentStore(), memory.NewMembershipStore(), nil)

	_, err := svc.Create(context.Background(), domain.Identity{}, domain.KindFAQ, "")
	assert.ErrorIs(t, err, domain.ErrAuthRequired)

	_, err = svc.Create(context.Background(), owner, "wiki", "")
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestDocumentService_Get(t *testing.T) {
	svc, _, doc := newDocumentFixture(t)
	ctx := context.Background()

	access, err := svc.Get(ctx, reader, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierRead, access.Tier)
	assert.Equal(t, "form-7", access.Document.FormID)

	_, err = svc.Get(ctx, domain.Identity{UserID: "stranger"}, doc.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = svc.Get(ctx, owner, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Get(ctx, domain.Identity{}, doc.ID)
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
}

func TestDocumentService_List(t *testing.T) {
	svc, _, first := newDocumentFixture(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base.Add(time.Hour) }
	second, err := svc.Create(ctx, owner, domain.KindHowTo, "")
	require.NoError(t, err)

	docs, err := svc.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	ids := []string{docs[0].Document.ID, docs[1].Document.ID}
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)

	docs, err = svc.List(ctx, reader)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, domain.TierRead, docs[0].Tier)

	docs, err = svc.List(ctx, domain.Identity{UserID: "stranger"})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDocumentService_ApplyChanges(t *testing.T) {
	svc, notifier, doc := newDocumentFixture(t)
	ctx := context.Background()

	version, err := svc.ApplyChanges(ctx, writer, doc.ID,
		map[string]any{domain.FieldTitle: "Release notes", "tags": []any{"billing"}}, "client-w")

	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	access, _ := svc.Get(ctx, writer, doc.ID)
	assert.Equal(t, "Release notes", access.Document.Fields[domain.FieldTitle])
	assert.Equal(t, []string{"billing"}, access.Document.Fields["tags"])

	require.Len(t, notifier.saved, 1)
	assert.Equal(t, savedCall{
		documentID: doc.ID,
		origin:     "client-w",
		changes:    map[string]any{domain.FieldTitle: "Release notes", "tags": []string{"billing"}},
		version:    1,
	}, notifier.saved[0])
}

func TestDocumentService_ApplyChanges_Rejects(t *testing.T) {
	svc, notifier, doc := newDocumentFixture(t)
	ctx := context.Background()

	_, err := svc.ApplyChanges(ctx, reader, doc.ID, map[string]any{domain.FieldTitle: "x"}, "c")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = svc.ApplyChanges(ctx, domain.Identity{UserID: "stranger"}, doc.ID, map[string]any{domain.FieldTitle: "x"}, "c")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = svc.ApplyChanges(ctx, writer, doc.ID, map[string]any{"priority": 3}, "c")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.ApplyChanges(ctx, writer, doc.ID, map[string]any{"published": "yes"}, "c")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Empty(t, notifier.saved)
}

func TestDocumentService_ApplyChanges_AnnounceFailureIsNotFatal(t *testing.T) {
	svc, notifier, doc := newDocumentFixture(t)
	notifier.publishErr = errors.New("redis down")

	version, err := svc.ApplyChanges(context.Background(), writer, doc.ID, map[string]any{"published": true}, "c")

	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestDocumentService_Grant(t *testing.T) {
	svc, notifier, doc := newDocumentFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Grant(ctx, writer, doc.ID, "someone", domain.TierRead), domain.ErrPermissionDenied)
	assert.ErrorIs(t, svc.Grant(ctx, owner, doc.ID, "someone", "owner"), domain.ErrInvalidInput)
	assert.ErrorIs(t, svc.Grant(ctx, owner, doc.ID, "", domain.TierRead), domain.ErrInvalidInput)
	assert.ErrorIs(t, svc.Grant(ctx, owner, "missing", "someone", domain.TierRead), domain.ErrNotFound)

	require.NoError(t, svc.Grant(ctx, owner, doc.ID, "someone", domain.TierWrite))
	assert.Empty(t, notifier.revoked)

	require.NoError(t, svc.Grant(ctx, owner, doc.ID, writer.UserID, domain.TierRead))
	assert.Equal(t, []string{doc.ID + "/" + writer.UserID}, notifier.revoked)

	_, err := svc.ApplyChanges(ctx, writer, doc.ID, map[string]any{"published": true}, "c")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}
