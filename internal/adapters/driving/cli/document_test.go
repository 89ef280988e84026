package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/formsync/internal/adapters/driven/httpapi"
	"github.com/custodia-labs/formsync/internal/core/domain"
)

// seed creates an FAQ owned by ada and returns its ID.
func (f *relayFixture) seed(t *testing.T, question string) string {
	t.Helper()
	token, err := f.authority.Issue(ada, time.Hour)
	require.NoError(t, err)
	c, err := httpapi.NewClient(f.url, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}), "seed")
	require.NoError(t, err)

	ctx := context.Background()
	doc, err := c.Create(ctx, domain.KindFAQ, "")
	require.NoError(t, err)
	_, err = c.Patch(ctx, doc.ID, map[string]any{domain.FieldTitle: question})
	require.NoError(t, err)
	return doc.ID
}

func TestDocumentCmd_Use(t *testing.T) {
	assert.Equal(t, "doc", documentCmd.Use)
	assert.Contains(t, documentCmd.Aliases, "document")
}

func TestDocumentCmd_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range documentCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"list", "get", "create", "grant", "set"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestDocumentCmd_ArgValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"get without id", []string{"doc", "get"}},
		{"list with extra arg", []string{"doc", "list", "x"}},
		{"grant missing tier", []string{"doc", "grant", "doc-1", "bob"}},
		{"set missing value", []string{"doc", "set", "doc-1", "title"}},
	}

	useMemorySettings(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestDocumentListCmd_ClientNotConfigured(t *testing.T) {
	useMemorySettings(t)

	_, err := execute(t, "doc", "list")

	assert.ErrorIs(t, err, errClientNotConfigured)
}

func TestDocumentListCmd_Empty(t *testing.T) {
	newRelayFixture(t)

	out, err := execute(t, "doc", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "No documents shared with you yet.")
}

func TestDocumentListCmd_ShowsShared(t *testing.T) {
	f := newRelayFixture(t)
	id := f.seed(t, "How do refunds work?")

	out, err := execute(t, "doc", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "Documents shared with you:")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "How do refunds work?")
	assert.Contains(t, out, "Access:  admin")
	assert.Contains(t, out, "Total: 1 documents")
}

func TestDocumentCreateCmd(t *testing.T) {
	newRelayFixture(t)

	out, err := execute(t, "doc", "create", "--kind", "faq", "--title", "Reset a password")
	require.NoError(t, err)
	assert.Contains(t, out, "Created faq document")

	out, err = execute(t, "doc", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Reset a password")
	assert.Contains(t, out, "Kind:    faq")
}

func TestDocumentCreateCmd_UnknownKind(t *testing.T) {
	useMemorySettings(t)

	_, err := execute(t, "doc", "create", "--kind", "memo")

	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestDocumentGetCmd(t *testing.T) {
	f := newRelayFixture(t)
	id := f.seed(t, "How do refunds work?")

	out, err := execute(t, "doc", "get", id)

	require.NoError(t, err)
	assert.Contains(t, out, "Document: "+id)
	assert.Contains(t, out, "Kind:     faq")
	assert.Contains(t, out, "Access:   admin")
	assert.Contains(t, out, "Question: How do refunds work?")
	assert.Contains(t, out, "Published: no")
}

func TestDocumentGetCmd_NotShared(t *testing.T) {
	f := newRelayFixture(t)
	id := f.seed(t, "Private")
	f.login(t, bob)

	_, err := execute(t, "doc", "get", id)

	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestDocumentGrantCmd(t *testing.T) {
	f := newRelayFixture(t)
	id := f.seed(t, "Shared")

	out, err := execute(t, "doc", "grant", id, "bob", "write")
	require.NoError(t, err)
	assert.Contains(t, out, "Granted write access on "+id+" to bob.")

	f.login(t, bob)
	out, err = execute(t, "doc", "get", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Access:   write")
}

func TestDocumentGrantCmd_InvalidTier(t *testing.T) {
	useMemorySettings(t)

	_, err := execute(t, "doc", "grant", "doc-1", "bob", "owner")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentGrantCmd_RequiresAdmin(t *testing.T) {
	f := newRelayFixture(t)
	id := f.seed(t, "Shared")
	_, err := execute(t, "doc", "grant", id, "bob", "write")
	require.NoError(t, err)

	f.login(t, bob)
	_, err = execute(t, "doc", "grant", id, "cy", "admin")

	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestDocumentSetCmd(t *testing.T) {
	f := newRelayFixture(t)
	id := f.seed(t, "Refunds")

	out, err := execute(t, "doc", "set", id, "priority", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved Priority")

	out, err = execute(t, "doc", "set", id, "published", "yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved Published")

	out, err = execute(t, "doc", "get", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Priority: 3")
	assert.Contains(t, out, "Published: yes")
}

func TestDocumentSetCmd_UnknownField(t *testing.T) {
	f := newRelayFixture(t)
	id := f.seed(t, "Refunds")

	_, err := execute(t, "doc", "set", id, "body", "text")

	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "title, description, audience, priority, published")
}

func TestDocumentSetCmd_BadValue(t *testing.T) {
	f := newRelayFixture(t)
	id := f.seed(t, "Refunds")

	_, err := execute(t, "doc", "set", id, "priority", "high")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentSetCmd_ReadAccess(t *testing.T) {
	f := newRelayFixture(t)
	id := f.seed(t, "Refunds")
	_, err := execute(t, "doc", "grant", id, "bob", "read")
	require.NoError(t, err)

	f.login(t, bob)
	_, err = execute(t, "doc", "set", id, "priority", "1")

	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}
