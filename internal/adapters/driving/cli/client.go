package cli

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/formsync/internal/adapters/driven/httpapi"
	wstransport "github.com/custodia-labs/formsync/internal/adapters/driven/transport/websocket"
	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
	"github.com/custodia-labs/formsync/internal/core/ports/driving"
	"github.com/custodia-labs/formsync/internal/core/services"
)

// errClientNotConfigured is returned by client commands before 'settings client' ran.
var errClientNotConfigured = errors.New(
	"client is not configured; run 'formsync settings client --url URL --token TOKEN'")

// documentClient is the relay's document API as the client commands use it.
type documentClient interface {
	driven.DocumentAPI
	driving.DocumentDirectory
	Create(ctx context.Context, kind domain.DocumentKind, formID string) (*domain.Document, error)
	Grant(ctx context.Context, documentID, userID string, tier domain.PermissionTier) error
}

// Ensure the REST client covers everything the commands call.
var _ documentClient = (*httpapi.Client)(nil)

// remote holds what one client command needs to reach the relay.
type remote struct {
	settings *domain.AppSettings
	clientID string
	api      documentClient
}

// connect reads the client settings and builds the REST client. A fresh
// client ID is minted per process.
func connect() (*remote, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	if !settings.Client.IsConfigured() {
		return nil, errClientNotConfigured
	}

	clientID := uuid.NewString()
	api, err := httpapi.NewClient(settings.Client.ServerURL, tokenSource(settings.Client), clientID)
	if err != nil {
		return nil, err
	}
	return &remote{settings: settings, clientID: clientID, api: api}, nil
}

// collab builds the editing engine on top of the REST client.
func (r *remote) collab() (*services.CollabService, error) {
	dialer, err := wstransport.NewDialer(r.settings.Client.ServerURL, tokenSource(r.settings.Client), r.clientID)
	if err != nil {
		return nil, err
	}
	return services.NewCollabService(r.api, dialer, r.clientID, r.settings.Collab, nil), nil
}

func tokenSource(c domain.ClientSettings) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.Token, TokenType: "Bearer"})
}
