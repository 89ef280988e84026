package driven

import (
	"context"

	"github.com/custodia-labs/formsync/internal/core/domain"
)

// DocumentAPI is the client's view of the storage collaborator.
type DocumentAPI interface {
	// Fetch returns the caller's permission tier and the full document.
	// Returns domain.ErrNotFound or domain.ErrPermissionDenied when the
	// server says so; any other failure is an infrastructure error.
	Fetch(ctx context.Context, documentID string) (*domain.DocumentAccess, error)

	// Patch persists a batch of field changes and returns the new version.
	Patch(ctx context.Context, documentID string, changes map[string]any) (int64, error)
}
