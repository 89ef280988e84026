package domain

import "fmt"

// PermissionTier is a user's access level for one document.
type PermissionTier string

// Available permission tiers.
const (
	// TierRead allows viewing only. Read sessions never open a connection.
	TierRead PermissionTier = "read"

	// TierWrite allows editing fields.
	TierWrite PermissionTier = "write"

	// TierAdmin allows editing and granting tiers to other users.
	TierAdmin PermissionTier = "admin"
)

// IsValid returns true if the tier is recognised.
func (t PermissionTier) IsValid() bool {
	switch t {
	case TierRead, TierWrite, TierAdmin:
		return true
	default:
		return false
	}
}

// CanEdit reports whether the tier implies edit capability.
func (t PermissionTier) CanEdit() bool {
	return t == TierWrite || t == TierAdmin
}

// CanGrant reports whether the tier may change other users' tiers.
func (t PermissionTier) CanGrant() bool {
	return t == TierAdmin
}

// String returns the string representation.
func (t PermissionTier) String() string {
	return string(t)
}

// ParsePermissionTier parses a tier name.
func ParsePermissionTier(s string) (PermissionTier, error) {
	t := PermissionTier(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: permission tier %q", ErrInvalidInput, s)
	}
	return t, nil
}

// Identity is the verified holder of a bearer credential.
type Identity struct {
	// UserID is the stable user identifier.
	UserID string

	// DisplayName is shown to other editors.
	DisplayName string
}

// Membership links a user to a document with a tier.
type Membership struct {
	DocumentID string
	UserID     string
	Tier       PermissionTier
}
