package driving

import (
	"context"

	"github.com/custodia-labs/formsync/internal/core/domain"
)

// DocumentService is the server's authoritative document API.
// Every operation checks the caller's membership first.
type DocumentService interface {
	// Get returns the caller's tier and the document.
	Get(ctx context.Context, caller domain.Identity, documentID string) (*domain.DocumentAccess, error)

	// List returns the documents the caller holds any tier on.
	List(ctx context.Context, caller domain.Identity) ([]domain.DocumentAccess, error)

	// Create makes a new document of the given kind. The caller becomes admin.
	Create(ctx context.Context, caller domain.Identity, kind domain.DocumentKind, formID string) (*domain.Document, error)

	// ApplyChanges validates and persists a batch, increments the version
	// once and announces the save to every connected editor.
	// originClientID is the flushing connection, excluded from batch_update.
	ApplyChanges(ctx context.Context, caller domain.Identity, documentID string,
		changes map[string]any, originClientID string) (int64, error)

	// Grant sets another user's tier. Requires admin. Downgrading a user to
	// read closes their live editing connections.
	Grant(ctx context.Context, caller domain.Identity, documentID, userID string, tier domain.PermissionTier) error
}
