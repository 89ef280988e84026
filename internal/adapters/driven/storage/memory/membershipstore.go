package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
)

// Ensure MembershipStore implements the interface.
var _ driven.MembershipStore = (*MembershipStore)(nil)

// MembershipStore is an in-memory implementation of driven.MembershipStore.
type MembershipStore struct {
	mu    sync.RWMutex
	tiers map[string]map[string]domain.PermissionTier // document -> user -> tier
}

// NewMembershipStore creates a new in-memory membership store.
func NewMembershipStore() *MembershipStore {
	return &MembershipStore{
		tiers: make(map[string]map[string]domain.PermissionTier),
	}
}

// GetTier returns a user's tier for a document.
func (s *MembershipStore) GetTier(_ context.Context, documentID, userID string) (domain.PermissionTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tier, ok := s.tiers[documentID][userID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return tier, nil
}

// SetTier creates or replaces a membership.
func (s *MembershipStore) SetTier(_ context.Context, m domain.Membership) error {
	if !m.Tier.IsValid() {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	users, ok := s.tiers[m.DocumentID]
	if !ok {
		users = make(map[string]domain.PermissionTier)
		s.tiers[m.DocumentID] = users
	}
	users[m.UserID] = m.Tier
	return nil
}

// ListForUser returns every membership a user holds, by document ID.
func (s *MembershipStore) ListForUser(_ context.Context, userID string) ([]domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Membership
	for docID, users := range s.tiers {
		if tier, ok := users[userID]; ok {
			out = append(out, domain.Membership{DocumentID: docID, UserID: userID, Tier: tier})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

// ListForDocument returns every membership on a document, by user ID.
func (s *MembershipStore) ListForDocument(_ context.Context, documentID string) ([]domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Membership, 0, len(s.tiers[documentID]))
	for userID, tier := range s.tiers[documentID] {
		out = append(out, domain.Membership{DocumentID: documentID, UserID: userID, Tier: tier})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
