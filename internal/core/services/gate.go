package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
)

// CredentialGate decides whether a session may be opened at all.
type CredentialGate struct {
	api driven.DocumentAPI
}

// NewCredentialGate creates a gate backed by the document API.
func NewCredentialGate(api driven.DocumentAPI) *CredentialGate {
	return &CredentialGate{api: api}
}

// Resolve fetches the caller's tier and the document.
//
// A definite answer from the server (not found, no access) is returned as
// is. Any other failure means the tier is unknown and is reported as
// domain.ErrAuthorizationUnavailable; callers must not connect in that case.
func (g *CredentialGate) Resolve(ctx context.Context, documentID string) (*domain.DocumentAccess, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}

	access, err := g.api.Fetch(ctx, documentID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrPermissionDenied):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %w", domain.ErrAuthorizationUnavailable, err)
	}

	if access == nil || !access.Tier.IsValid() {
		return nil, fmt.Errorf("%w: server returned no usable tier", domain.ErrAuthorizationUnavailable)
	}
	return access, nil
}
