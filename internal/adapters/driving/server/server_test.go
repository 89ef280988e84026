package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/formsync/internal/adapters/driven/auth"
	"github.com/custodia-labs/formsync/internal/adapters/driven/fanout"
	"github.com/custodia-labs/formsync/internal/adapters/driven/httpapi"
	"github.com/custodia-labs/formsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/formsync/internal/adapters/driven/transport/websocket"
	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
	"github.com/custodia-labs/formsync/internal/core/services"
)

var (
	owner  = domain.Identity{UserID: "ada", DisplayName: "Ada"}
	writer = domain.Identity{UserID: "bob", DisplayName: "Bob"}
	reader = domain.Identity{UserID: "cy", DisplayName: "Cy"}
)

type fixture struct {
	srv       *httptest.Server
	authority *auth.Authority
	relay     *services.RelayService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	authority, err := auth.NewAuthority("test-secret-0123456789")
	require.NoError(t, err)

	fan := fanout.NewMemory()
	members := memory.NewMembershipStore()
	relay := services.NewRelayService(members, fan, 45*time.Second, nil)
	docs := services.NewDocumentService(memory.NewDocumentStore(), members, relay)

	s, err := NewServer(&Ports{
		Documents: docs,
		Relay:     relay,
		Tokens:    authority,
		Stats:     relay.Stats,
	}, Options{RateLimit: 100})
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = relay.Close()
		_ = fan.Close()
	})
	return &fixture{srv: srv, authority: authority, relay: relay}
}

func (f *fixture) tokens(t *testing.T, who domain.Identity) oauth2.TokenSource {
	t.Helper()
	tok, err := f.authority.Issue(who, time.Hour)
	require.NoError(t, err)
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok})
}

func (f *fixture) client(t *testing.T, who domain.Identity, clientID string) *httpapi.Client {
	t.Helper()
	c, err := httpapi.NewClient(f.srv.URL, f.tokens(t, who), clientID)
	require.NoError(t, err)
	return c
}

func (f *fixture) dial(t *testing.T, who domain.Identity, clientID, documentID string) (driven.Conn, error) {
	t.Helper()
	d, err := websocket.NewDialer(f.srv.URL, f.tokens(t, who), clientID)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := d.Dial(ctx, documentID)
	if err == nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, err
}

// sharedDocument creates a document owned by owner with writer and reader
// granted their namesake tiers.
func (f *fixture) sharedDocument(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	admin := f.client(t, owner, "owner-rest")

	doc, err := admin.Create(ctx, domain.KindArticle, "form-1")
	require.NoError(t, err)
	require.NoError(t, admin.Grant(ctx, doc.ID, writer.UserID, domain.TierWrite))
	require.NoError(t, admin.Grant(ctx, doc.ID, reader.UserID, domain.TierRead))
	return doc.ID
}

func receive(t *testing.T, conn driven.Conn) domain.Message {
	t.Helper()
	type result struct {
		msg domain.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := conn.Receive(context.Background())
		ch <- result{msg, err}
	}()
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a message")
		return domain.Message{}
	}
}

func TestNewServer_RequiresPorts(t *testing.T) {
	_, err := NewServer(&Ports{}, Options{})
	assert.ErrorIs(t, err, ErrMissingDocumentService)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetrics_Exposed(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "formsync_rooms")
	assert.Contains(t, string(body), "formsync_connections_total")
}

func TestAPI_RequiresBearer(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/api/documents")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_RejectsMalformedBody(t *testing.T) {
	f := newFixture(t)
	tok, err := f.authority.Issue(owner, time.Hour)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/documents", strings.NewReader("{"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_DocumentRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.sharedDocument(t)

	editor := f.client(t, writer, "bob-rest")
	version, err := editor.Patch(ctx, id, map[string]any{domain.FieldTitle: "Billing FAQ"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	access, err := f.client(t, reader, "cy-rest").Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TierRead, access.Tier)
	assert.Equal(t, "Billing FAQ", access.Document.Fields[domain.FieldTitle])
	assert.Equal(t, int64(1), access.Document.Version)

	list, err := editor.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.TierWrite, list[0].Tier)
}

func TestAPI_ReaderCannotPatch(t *testing.T) {
	f := newFixture(t)
	id := f.sharedDocument(t)

	_, err := f.client(t, reader, "cy-rest").Patch(context.Background(), id, map[string]any{domain.FieldTitle: "x"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestAPI_UnknownDocument(t *testing.T) {
	f := newFixture(t)

	_, err := f.client(t, owner, "ada-rest").Fetch(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSocket_ReaderIsRejected(t *testing.T) {
	f := newFixture(t)
	id := f.sharedDocument(t)

	_, err := f.dial(t, reader, "cy-ws", id)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestSocket_RelaysFieldUpdates(t *testing.T) {
	f := newFixture(t)
	id := f.sharedDocument(t)

	ada, err := f.dial(t, owner, "ada-ws", id)
	require.NoError(t, err)
	assert.Equal(t, domain.MsgActiveEditors, receive(t, ada).Kind)

	bob, err := f.dial(t, writer, "bob-ws", id)
	require.NoError(t, err)
	assert.Equal(t, domain.MsgActiveEditors, receive(t, bob).Kind)

	err = ada.Send(context.Background(), domain.Message{
		Kind:    domain.MsgFieldUpdate,
		Field:   domain.FieldTitle,
		Value:   "Draft",
		Version: 0,
	})
	require.NoError(t, err)

	got := receive(t, bob)
	assert.Equal(t, domain.MsgFieldUpdate, got.Kind)
	assert.Equal(t, domain.FieldTitle, got.Field)
	assert.Equal(t, "Draft", got.Value)
	assert.Equal(t, owner.UserID, got.UserID)
	assert.Equal(t, "Ada", got.DisplayName)
	assert.Equal(t, "ada-ws", got.ClientID)
}

func TestSocket_PatchAnnouncesSave(t *testing.T) {
	f := newFixture(t)
	id := f.sharedDocument(t)

	bob, err := f.dial(t, writer, "bob-ws", id)
	require.NoError(t, err)
	receive(t, bob)

	_, err = f.client(t, owner, "ada-ws").Patch(context.Background(), id, map[string]any{"published": true})
	require.NoError(t, err)

	batch := receive(t, bob)
	assert.Equal(t, domain.MsgBatchUpdate, batch.Kind)
	assert.Equal(t, int64(1), batch.Version)
	assert.Equal(t, true, batch.Fields["published"])

	saved := receive(t, bob)
	assert.Equal(t, domain.MsgVersionSaved, saved.Kind)
	assert.Equal(t, int64(1), saved.Version)
}

func TestSocket_DowngradeClosesWithRevocation(t *testing.T) {
	f := newFixture(t)
	id := f.sharedDocument(t)

	bob, err := f.dial(t, writer, "bob-ws", id)
	require.NoError(t, err)
	receive(t, bob)

	err = f.client(t, owner, "ada-rest").Grant(context.Background(), id, writer.UserID, domain.TierRead)
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		for {
			if _, err := bob.Receive(context.Background()); err != nil {
				errs <- err
				return
			}
		}
	}()
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	case <-time.After(5 * time.Second):
		t.Fatal("connection was not closed")
	}
}

func TestCloseCode(t *testing.T) {
	code, _ := closeCode(domain.ErrPermissionDenied)
	assert.Equal(t, 4003, code)

	code, _ = closeCode(domain.ErrConnectionClosed)
	assert.Equal(t, 1001, code)

	code, _ = closeCode(domain.ErrTransport)
	assert.Equal(t, 1013, code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(domain.ErrNotFound))
	assert.Equal(t, http.StatusForbidden, statusFor(domain.ErrPermissionDenied))
	assert.Equal(t, http.StatusUnauthorized, statusFor(domain.ErrAuthInvalid))
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.ErrUnsupportedType))
	assert.Equal(t, http.StatusConflict, statusFor(domain.ErrAlreadyExists))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.EOF))
}

func TestCheckOrigin(t *testing.T) {
	s := &Server{opts: Options{AllowedOrigins: []string{"https://forms.example.com"}}}

	r := httptest.NewRequest(http.MethodGet, "/ws/documents/x", nil)
	assert.True(t, s.checkOrigin(r))

	r.Header.Set("Origin", "https://forms.example.com")
	assert.True(t, s.checkOrigin(r))

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, s.checkOrigin(r))
}
