package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
	"github.com/custodia-labs/formsync/internal/core/ports/driving"
	"github.com/custodia-labs/formsync/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// saveNotifier is the part of the relay the document service announces to.
type saveNotifier interface {
	PublishSaved(ctx context.Context, documentID, originClientID string, changes map[string]any, version int64) error
	Revoke(documentID, userID string)
}

// DocumentService is the authoritative document API on the server.
type DocumentService struct {
	docStore    driven.DocumentStore
	memberStore driven.MembershipStore
	notifier    saveNotifier
	newID       func() string
	now         func() time.Time
}

// NewDocumentService creates a document service. notifier may be nil.
func NewDocumentService(
	docStore driven.DocumentStore,
	memberStore driven.MembershipStore,
	notifier saveNotifier,
) *DocumentService {
	return &DocumentService{
		docStore:    docStore,
		memberStore: memberStore,
		notifier:    notifier,
		newID:       func() string { return ulid.Make().String() },
		now:         time.Now,
	}
}

// Get returns the caller's tier and the document.
func (s *DocumentService) Get(ctx context.Context, caller domain.Identity, documentID string) (*domain.DocumentAccess, error) {
	doc, err := s.docStore.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	tier, err := s.tier(ctx, documentID, caller)
	if err != nil {
		return nil, err
	}
	return &domain.DocumentAccess{Tier: tier, Document: *doc}, nil
}

// List returns every document the caller holds a tier on, newest first.
func (s *DocumentService) List(ctx context.Context, caller domain.Identity) ([]domain.DocumentAccess, error) {
	memberships, err := s.memberStore.ListForUser(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	tiers := make(map[string]domain.PermissionTier, len(memberships))
	ids := make([]string, 0, len(memberships))
	for _, m := range memberships {
		tiers[m.DocumentID] = m.Tier
		ids = append(ids, m.DocumentID)
	}

	docs, err := s.docStore.List(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]domain.DocumentAccess, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.DocumentAccess{Tier: tiers[d.ID], Document: d})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Document.UpdatedAt.After(out[j].Document.UpdatedAt)
	})
	return out, nil
}

// Create provisions a document with schema defaults. The caller becomes admin.
func (s *DocumentService) Create(
	ctx context.Context,
	caller domain.Identity,
	kind domain.DocumentKind,
	formID string,
) (*domain.Document, error) {
	if caller.UserID == "" {
		return nil, domain.ErrAuthRequired
	}
	fields, err := domain.DefaultFields(kind)
	if err != nil {
		return nil, err
	}

	now := s.now()
	doc := &domain.Document{
		ID:        s.newID(),
		FormID:    formID,
		Kind:      kind,
		Fields:    fields,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if doc.FormID == "" {
		doc.FormID = doc.ID
	}
	if err := s.docStore.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	if err := s.memberStore.SetTier(ctx, domain.Membership{
		DocumentID: doc.ID,
		UserID:     caller.UserID,
		Tier:       domain.TierAdmin,
	}); err != nil {
		return nil, fmt.Errorf("grant creator: %w", err)
	}
	logger.Info("document %s (%s) created by %s", doc.ID, kind, caller.UserID)
	return doc, nil
}

// ApplyChanges persists a batch and announces it to connected editors.
func (s *DocumentService) ApplyChanges(
	ctx context.Context,
	caller domain.Identity,
	documentID string,
	changes map[string]any,
	originClientID string,
) (int64, error) {
	tier, err := s.tier(ctx, documentID, caller)
	if err != nil {
		return 0, err
	}
	if !tier.CanEdit() {
		return 0, domain.ErrPermissionDenied
	}

	doc, err := s.docStore.Get(ctx, documentID)
	if err != nil {
		return 0, err
	}
	normalised := make(map[string]any, len(changes))
	for k, v := range changes {
		normalised[k] = domain.NormalizeValue(v)
	}
	if err := domain.ValidateChanges(doc.Kind, normalised); err != nil {
		return 0, err
	}

	version, err := s.docStore.ApplyChanges(ctx, documentID, normalised)
	if err != nil {
		return 0, fmt.Errorf("apply changes: %w", err)
	}
	logger.Debug("document %s: %d fields saved by %s at version %d", documentID, len(normalised), caller.UserID, version)

	if s.notifier != nil {
		if err := s.notifier.PublishSaved(ctx, documentID, originClientID, normalised, version); err != nil {
			logger.Warn("document %s: announce version %d: %v", documentID, version, err)
		}
	}
	return version, nil
}

// Grant sets another user's tier. Only admins may grant.
func (s *DocumentService) Grant(
	ctx context.Context,
	caller domain.Identity,
	documentID, userID string,
	tier domain.PermissionTier,
) error {
	if !tier.IsValid() {
		return fmt.Errorf("%w: permission tier %q", domain.ErrInvalidInput, tier)
	}
	if userID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if _, err := s.docStore.Get(ctx, documentID); err != nil {
		return err
	}
	callerTier, err := s.tier(ctx, documentID, caller)
	if err != nil {
		return err
	}
	if !callerTier.CanGrant() {
		return domain.ErrPermissionDenied
	}

	if err := s.memberStore.SetTier(ctx, domain.Membership{DocumentID: documentID, UserID: userID, Tier: tier}); err != nil {
		return fmt.Errorf("set tier: %w", err)
	}
	logger.Info("document %s: %s granted %s by %s", documentID, userID, tier, caller.UserID)

	if !tier.CanEdit() && s.notifier != nil {
		s.notifier.Revoke(documentID, userID)
	}
	return nil
}

// tier maps a missing membership to ErrPermissionDenied.
func (s *DocumentService) tier(ctx context.Context, documentID string, caller domain.Identity) (domain.PermissionTier, error) {
	if caller.UserID == "" {
		return "", domain.ErrAuthRequired
	}
	tier, err := s.memberStore.GetTier(ctx, documentID, caller.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", domain.ErrPermissionDenied
	}
	if err != nil {
		return "", fmt.Errorf("lookup membership: %w", err)
	}
	return tier, nil
}
