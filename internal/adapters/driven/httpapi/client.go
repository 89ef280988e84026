// Package httpapi is the REST client for the relay's document API.
package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/formsync/internal/adapters/driven/transport/wire"
	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
)

// Ensure Client implements the interface.
var _ driven.DocumentAPI = (*Client)(nil)

const requestTimeout = 15 * time.Second

// Client talks to /api/documents on one relay server.
type Client struct {
	baseURL  string
	clientID string
	http     *http.Client
}

// NewClient creates a client. Every request carries the bearer token from
// tokens and clientID in wire.ClientIDHeader.
func NewClient(serverURL string, tokens oauth2.TokenSource, clientID string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: server url %q", domain.ErrInvalidInput, serverURL)
	}

	hc := &http.Client{Timeout: requestTimeout}
	if tokens != nil {
		hc = oauth2.NewClient(context.Background(), tokens)
		hc.Timeout = requestTimeout
	}
	return &Client{
		baseURL:  strings.TrimRight(serverURL, "/"),
		clientID: clientID,
		http:     hc,
	}, nil
}

// Fetch returns the caller's tier and the document.
func (c *Client) Fetch(ctx context.Context, documentID string) (*domain.DocumentAccess, error) {
	var out wire.DocumentAccess
	if err := c.do(ctx, http.MethodGet, documentPath(documentID), nil, &out); err != nil {
		return nil, err
	}
	access := out.ToDomain()
	return &access, nil
}

// Patch persists changes and returns the new version.
func (c *Client) Patch(ctx context.Context, documentID string, changes map[string]any) (int64, error) {
	var out wire.PatchResponse
	if err := c.do(ctx, http.MethodPatch, documentPath(documentID), wire.PatchRequest{Changes: changes}, &out); err != nil {
		return 0, err
	}
	return out.Version, nil
}

// List returns every document the caller holds a tier on.
func (c *Client) List(ctx context.Context) ([]domain.DocumentAccess, error) {
	var out []wire.DocumentAccess
	if err := c.do(ctx, http.MethodGet, "/api/documents", nil, &out); err != nil {
		return nil, err
	}
	docs := make([]domain.DocumentAccess, 0, len(out))
	for _, d := range out {
		docs = append(docs, d.ToDomain())
	}
	return docs, nil
}

// Create provisions a new document.
func (c *Client) Create(ctx context.Context, kind domain.DocumentKind, formID string) (*domain.Document, error) {
	var out wire.Document
	req := wire.CreateRequest{Kind: string(kind), FormID: formID}
	if err := c.do(ctx, http.MethodPost, "/api/documents", req, &out); err != nil {
		return nil, err
	}
	doc := out.ToDomain()
	return &doc, nil
}

// Grant sets userID's tier on a document.
func (c *Client) Grant(ctx context.Context, documentID, userID string, tier domain.PermissionTier) error {
	path := documentPath(documentID) + "/members/" + url.PathEscape(userID)
	return c.do(ctx, http.MethodPut, path, wire.GrantRequest{Permission: tier.String()}, nil)
}

func documentPath(id string) string {
	return "/api/documents/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.clientID != "" {
		req.Header.Set(wire.ClientIDHeader, c.clientID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", domain.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", domain.ErrTransport, path, err)
	}
	return nil
}

// statusError maps an HTTP status onto the domain sentinels.
func statusError(resp *http.Response) error {
	var body wire.Error
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	detail := body.Error
	if detail == "" {
		detail = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, detail)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, detail)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, detail)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, detail)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, detail)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, detail)
	default:
		return fmt.Errorf("%w: server returned %s: %s", domain.ErrTransport, resp.Status, detail)
	}
}
