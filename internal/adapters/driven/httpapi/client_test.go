package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/formsync/internal/adapters/driven/transport/wire"
	"github.com/custodia-labs/formsync/internal/core/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}), "client-1")
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient("relay:8090", nil, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestClient_Fetch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/documents/doc-1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "client-1", r.Header.Get(wire.ClientIDHeader))
		writeJSON(w, http.StatusOK, wire.DocumentAccess{
			Permission: "write",
			Document: wire.Document{
				ID: "doc-1", Kind: "faq", Version: 4,
				Fields: map[string]any{"title": "Q", "priority": 2},
			},
		})
	})

	access, err := c.Fetch(context.Background(), "doc-1")

	require.NoError(t, err)
	assert.Equal(t, domain.TierWrite, access.Tier)
	assert.Equal(t, int64(4), access.Document.Version)
	assert.Equal(t, float64(2), access.Document.Fields["priority"])
}

func TestClient_Patch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		body, _ := io.ReadAll(r.Body)
		var req wire.PatchRequest
		assert.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "New", req.Changes["title"])
		writeJSON(w, http.StatusOK, wire.PatchResponse{Version: 6})
	})

	version, err := c.Patch(context.Background(), "doc-1", map[string]any{"title": "New"})

	require.NoError(t, err)
	assert.Equal(t, int64(6), version)
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusForbidden, domain.ErrPermissionDenied},
		{http.StatusUnauthorized, domain.ErrAuthInvalid},
		{http.StatusBadRequest, domain.ErrInvalidInput},
		{http.StatusConflict, domain.ErrAlreadyExists},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusBadGateway, domain.ErrTransport},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tt.status, wire.Error{Error: "nope"})
			})

			_, err := c.Fetch(context.Background(), "doc-1")

			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c, err := NewClient(srv.URL, nil, "")
	require.NoError(t, err)

	_, err = c.Patch(context.Background(), "doc-1", map[string]any{"title": "x"})

	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestClient_CreateListGrant(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/documents":
			var req wire.CreateRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			writeJSON(w, http.StatusCreated, wire.Document{ID: "new", Kind: req.Kind, FormID: req.FormID})
		case r.Method == http.MethodGet && r.URL.Path == "/api/documents":
			writeJSON(w, http.StatusOK, []wire.DocumentAccess{{Permission: "admin", Document: wire.Document{ID: "new"}}})
		case r.Method == http.MethodPut && r.URL.Path == "/api/documents/new/members/bea":
			var req wire.GrantRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "read", req.Permission)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	doc, err := c.Create(ctx, domain.KindHowTo, "form-3")
	require.NoError(t, err)
	assert.Equal(t, domain.KindHowTo, doc.Kind)
	assert.Equal(t, "form-3", doc.FormID)

	docs, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, domain.TierAdmin, docs[0].Tier)

	require.NoError(t, c.Grant(ctx, "new", "bea", domain.TierRead))
}
