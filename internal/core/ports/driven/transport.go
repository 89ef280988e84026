package driven

import (
	"context"

	"github.com/custodia-labs/formsync/internal/core/domain"
)

// Dialer opens the persistent connection for one document.
type Dialer interface {
	// Dial performs the handshake. A rejection because the credential no
	// longer grants edit access is reported as domain.ErrPermissionDenied.
	Dial(ctx context.Context, documentID string) (Conn, error)
}

// Conn is one live bidirectional document connection.
// Send may be called concurrently with Receive, but not with itself.
type Conn interface {
	// Send writes one message.
	Send(ctx context.Context, msg domain.Message) error

	// Receive blocks for the next message. When the connection ends it
	// returns domain.ErrConnectionClosed for a clean close,
	// domain.ErrPermissionDenied for a revocation close code, and an error
	// wrapping domain.ErrTransport otherwise.
	Receive(ctx context.Context) (domain.Message, error)

	// Close tears down the connection. Safe to call more than once.
	Close() error
}
