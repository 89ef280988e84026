package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/formsync/internal/adapters/driven/transport/wire"
	"github.com/custodia-labs/formsync/internal/core/domain"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// relayStub upgrades every request and hands the socket to handle.
func relayStub(t *testing.T, handle func(r *http.Request, ws *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		handle(r, ws)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *conn {
	t.Helper()
	d, err := NewDialer(srv.URL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}), "client-1")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := d.Dial(ctx, "doc-1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c.(*conn)
}

func TestNewDialer_Schemes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://relay:8090", "ws://relay:8090/ws/documents/d%201?client_id=c"},
		{"https://relay.example.com/", "wss://relay.example.com/ws/documents/d%201?client_id=c"},
		{"wss://relay/base", "wss://relay/base/ws/documents/d%201?client_id=c"},
	}
	for _, tt := range tests {
		d, err := NewDialer(tt.in, nil, "c")
		require.NoError(t, err)
		assert.Equal(t, tt.want, d.URL("d 1"))
	}

	_, err := NewDialer("ftp://relay", nil, "c")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDial_SendsCredentialAndClientID(t *testing.T) {
	seen := make(chan *http.Request, 1)
	srv := relayStub(t, func(r *http.Request, ws *websocket.Conn) {
		seen <- r
		_, _, _ = ws.ReadMessage()
	})

	dial(t, srv)

	r := <-seen
	assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
	assert.Equal(t, "client-1", r.URL.Query().Get("client_id"))
	assert.Equal(t, "/ws/documents/doc-1", r.URL.Path)
}

func TestDial_DocumentIDEscapedOnce(t *testing.T) {
	seen := make(chan *http.Request, 1)
	srv := relayStub(t, func(r *http.Request, ws *websocket.Conn) {
		seen <- r
		_, _, _ = ws.ReadMessage()
	})
	d, err := NewDialer(srv.URL, nil, "c")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := d.Dial(ctx, "faq 1")
	require.NoError(t, err)
	defer c.Close()

	r := <-seen
	assert.Equal(t, "/ws/documents/faq 1", r.URL.Path)
	assert.Equal(t, "/ws/documents/faq%201", r.URL.EscapedPath())
}

func TestDial_ForbiddenIsPermissionDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	d, err := NewDialer(srv.URL, nil, "c")
	require.NoError(t, err)
	_, err = d.Dial(context.Background(), "doc-1")

	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestDial_UnreachableIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d, err := NewDialer(url, nil, "c")
	require.NoError(t, err)
	_, err = d.Dial(context.Background(), "doc-1")

	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.NotErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestConn_SendAndReceive(t *testing.T) {
	srv := relayStub(t, func(_ *http.Request, ws *websocket.Conn) {
		for {
			kind, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(kind, data); err != nil {
				return
			}
		}
	})
	c := dial(t, srv)
	ctx := context.Background()

	require.NoError(t, c.Send(ctx, domain.Message{
		Kind:    domain.MsgFieldUpdate,
		Field:   domain.FieldTitle,
		Value:   "Hello",
		Version: 5,
	}))

	msg, err := c.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.MsgFieldUpdate, msg.Kind)
	assert.Equal(t, "Hello", msg.Value)
	assert.Equal(t, int64(5), msg.Version)
}

func TestConn_SkipsMalformedFrames(t *testing.T) {
	srv := relayStub(t, func(_ *http.Request, ws *websocket.Conn) {
		_ = ws.WriteMessage(websocket.TextMessage, []byte("garbage"))
		_ = ws.WriteMessage(websocket.BinaryMessage, []byte{1, 2})
		data, _ := wire.EncodeMessage(domain.Message{Kind: domain.MsgVersionSaved, Version: 8})
		_ = ws.WriteMessage(websocket.TextMessage, data)
		_, _, _ = ws.ReadMessage()
	})
	c := dial(t, srv)

	msg, err := c.Receive(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.MsgVersionSaved, msg.Kind)
	assert.Equal(t, int64(8), msg.Version)
}

func TestConn_CloseCodes(t *testing.T) {
	tests := []struct {
		name string
		code int
		want error
	}{
		{"access revoked", wire.CloseAccessRevoked, domain.ErrPermissionDenied},
		{"normal closure", websocket.CloseNormalClosure, domain.ErrConnectionClosed},
		{"going away", websocket.CloseGoingAway, domain.ErrConnectionClosed},
		{"internal error", websocket.CloseInternalServerErr, domain.ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := relayStub(t, func(_ *http.Request, ws *websocket.Conn) {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(tt.code, "bye"), time.Now().Add(time.Second))
				_, _, _ = ws.ReadMessage()
			})
			c := dial(t, srv)

			_, err := c.Receive(context.Background())

			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConn_LocalCloseEndsReceive(t *testing.T) {
	srv := relayStub(t, func(_ *http.Request, ws *websocket.Conn) {
		_, _, _ = ws.ReadMessage()
	})
	c := dial(t, srv)

	errc := make(chan error, 1)
	go func() {
		_, err := c.Receive(context.Background())
		errc <- err
	}()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, c.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, domain.ErrConnectionClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("receive did not return after close")
	}
	assert.NoError(t, c.Close())
}
