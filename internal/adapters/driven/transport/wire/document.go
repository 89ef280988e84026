package wire

import (
	"time"

	"github.com/custodia-labs/formsync/internal/core/domain"
)

// ClientIDHeader carries the caller's client id on PATCH so the relay can
// leave the originating client out of the batch_update it sends.
const ClientIDHeader = "X-Formsync-Client"

// Document is the REST form of domain.Document.
type Document struct {
	ID        string         `json:"id"`
	FormID    string         `json:"form_id"`
	Kind      string         `json:"kind"`
	Fields    map[string]any `json:"fields"`
	Version   int64          `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// DocumentAccess is the GET /api/documents/{id} response.
type DocumentAccess struct {
	Permission string   `json:"permission"`
	Document   Document `json:"document"`
}

// PatchRequest is the PATCH /api/documents/{id} body.
type PatchRequest struct {
	Changes map[string]any `json:"changes"`
}

// PatchResponse is returned by a successful PATCH.
type PatchResponse struct {
	Version int64 `json:"version"`
}

// CreateRequest is the POST /api/documents body.
type CreateRequest struct {
	Kind   string `json:"kind"`
	FormID string `json:"form_id,omitempty"`
}

// GrantRequest is the PUT /api/documents/{id}/members/{user} body.
type GrantRequest struct {
	Permission string `json:"permission"`
}

// Error is the body of every non-2xx response.
type Error struct {
	Error string `json:"error"`
}

// FromDocument converts a domain document.
func FromDocument(d domain.Document) Document {
	return Document{
		ID:        d.ID,
		FormID:    d.FormID,
		Kind:      string(d.Kind),
		Fields:    d.Fields,
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// ToDomain converts back, normalising decoded JSON values.
func (d Document) ToDomain() domain.Document {
	fields := make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		fields[k] = domain.NormalizeValue(v)
	}
	return domain.Document{
		ID:        d.ID,
		FormID:    d.FormID,
		Kind:      domain.DocumentKind(d.Kind),
		Fields:    fields,
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// FromAccess converts a domain access result.
func FromAccess(a domain.DocumentAccess) DocumentAccess {
	return DocumentAccess{Permission: a.Tier.String(), Document: FromDocument(a.Document)}
}

// ToDomain converts back. The tier is not validated here.
func (a DocumentAccess) ToDomain() domain.DocumentAccess {
	return domain.DocumentAccess{Tier: domain.PermissionTier(a.Permission), Document: a.Document.ToDomain()}
}
