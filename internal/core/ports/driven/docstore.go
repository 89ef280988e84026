package driven

import (
	"context"

	"github.com/custodia-labs/formsync/internal/core/domain"
)

// DocumentStore persists authoritative documents.
// Backed by SQLite, PostgreSQL or memory.
type DocumentStore interface {
	// Create stores a new document at version 0.
	// Returns domain.ErrAlreadyExists if the ID is taken.
	Create(ctx context.Context, doc *domain.Document) error

	// Get retrieves a document by ID.
	// Returns domain.ErrNotFound if it does not exist.
	Get(ctx context.Context, id string) (*domain.Document, error)

	// List returns the documents with the given IDs, skipping missing ones.
	List(ctx context.Context, ids []string) ([]domain.Document, error)

	// ApplyChanges merges changes into the stored fields and increments the
	// version exactly once, atomically. Returns the new version.
	ApplyChanges(ctx context.Context, id string, changes map[string]any) (int64, error)
}

// MembershipStore persists per-document permission tiers.
type MembershipStore interface {
	// GetTier returns a user's tier for a document.
	// Returns domain.ErrNotFound when the user has no membership.
	GetTier(ctx context.Context, documentID, userID string) (domain.PermissionTier, error)

	// SetTier creates or replaces a membership.
	SetTier(ctx context.Context, m domain.Membership) error

	// ListForUser returns every membership a user holds.
	ListForUser(ctx context.Context, userID string) ([]domain.Membership, error)

	// ListForDocument returns every membership on a document.
	ListForDocument(ctx context.Context, documentID string) ([]domain.Membership, error)
}
