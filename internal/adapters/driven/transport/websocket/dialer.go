package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
)

// Ensure Dialer implements the interface.
var _ driven.Dialer = (*Dialer)(nil)

const handshakeTimeout = 10 * time.Second

// Dialer opens document connections to one relay server.
type Dialer struct {
	base     *url.URL
	tokens   oauth2.TokenSource
	clientID string
	ws       *websocket.Dialer
}

// NewDialer creates a dialer for serverURL (http, https, ws or wss).
// clientID is sent as a query parameter so the relay can attribute frames.
func NewDialer(serverURL string, tokens oauth2.TokenSource, clientID string) (*Dialer, error) {
	base, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: server url: %w", domain.ErrInvalidInput, err)
	}
	switch base.Scheme {
	case "http", "ws":
		base.Scheme = "ws"
	case "https", "wss":
		base.Scheme = "wss"
	default:
		return nil, fmt.Errorf("%w: unsupported server url scheme %q", domain.ErrInvalidInput, base.Scheme)
	}

	return &Dialer{
		base:     base,
		tokens:   tokens,
		clientID: clientID,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}, nil
}

// Dial connects to the relay room for documentID.
//
// A 403 on the handshake is the server refusing edit access and maps to
// domain.ErrPermissionDenied. Everything else is a transport failure.
func (d *Dialer) Dial(ctx context.Context, documentID string) (driven.Conn, error) {
	header := http.Header{}
	if d.tokens != nil {
		tok, err := d.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: token: %w", domain.ErrTransport, err)
		}
		tok.SetAuthHeader(&http.Request{Header: header})
	}

	ws, resp, err := d.ws.DialContext(ctx, d.URL(documentID), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusForbidden:
				return nil, fmt.Errorf("%w: relay refused %s", domain.ErrPermissionDenied, documentID)
			case http.StatusUnauthorized:
				return nil, fmt.Errorf("%w: %w: relay rejected credential", domain.ErrTransport, domain.ErrAuthInvalid)
			}
			return nil, fmt.Errorf("%w: handshake %s: %w", domain.ErrTransport, resp.Status, err)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	return newConn(ws), nil
}

// URL returns the websocket endpoint for documentID.
func (d *Dialer) URL(documentID string) string {
	u := *d.base
	u.Path = u.Path + "/ws/documents/" + documentID
	u.RawPath = ""
	q := u.Query()
	if d.clientID != "" {
		q.Set("client_id", d.clientID)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
