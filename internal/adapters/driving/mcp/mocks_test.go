package mcp

import (
	"context"

	"github.com/custodia-labs/formsync/internal/core/domain"
)

// mockDirectory is a mock implementation of driving.DocumentDirectory.
type mockDirectory struct {
	documents []domain.DocumentAccess
	err       error
	calls     int
}

func (m *mockDirectory) List(_ context.Context) ([]domain.DocumentAccess, error) {
	m.calls++
	return m.documents, m.err
}

// mockDocumentAPI is a mock implementation of driven.DocumentAPI.
type mockDocumentAPI struct {
	access  *domain.DocumentAccess
	err     error
	fetched []string
}

func (m *mockDocumentAPI) Fetch(_ context.Context, documentID string) (*domain.DocumentAccess, error) {
	m.fetched = append(m.fetched, documentID)
	return m.access, m.err
}

func (m *mockDocumentAPI) Patch(_ context.Context, _ string, _ map[string]any) (int64, error) {
	return 0, domain.ErrPermissionDenied
}

func faqAccess() domain.DocumentAccess {
	return domain.DocumentAccess{
		Tier: domain.TierRead,
		Document: domain.Document{
			ID:      "doc-1",
			Kind:    domain.KindFAQ,
			Version: 4,
			Fields: map[string]any{
				domain.FieldTitle:       "How do refunds work?",
				domain.FieldDescription: "Within 30 days.",
				"audience":              "customers",
				"priority":              2,
				"published":             true,
			},
		},
	}
}

func howToAccess() domain.DocumentAccess {
	return domain.DocumentAccess{
		Tier: domain.TierWrite,
		Document: domain.Document{
			ID:      "doc-2",
			Kind:    domain.KindHowTo,
			Version: 1,
			Fields:  map[string]any{domain.FieldTitle: "Export your data"},
		},
	}
}
