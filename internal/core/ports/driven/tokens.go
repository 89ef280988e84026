package driven

import (
	"time"

	"github.com/custodia-labs/formsync/internal/core/domain"
)

// TokenVerifier turns a bearer credential into an identity.
type TokenVerifier interface {
	// Verify returns domain.ErrAuthInvalid for bad or expired tokens.
	Verify(token string) (*domain.Identity, error)
}

// TokenIssuer mints bearer credentials.
type TokenIssuer interface {
	Issue(identity domain.Identity, ttl time.Duration) (string, error)
}
