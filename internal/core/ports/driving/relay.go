package driving

import (
	"context"

	"github.com/custodia-labs/formsync/internal/core/domain"
)

// RelayService routes live messages between editors of the same document.
type RelayService interface {
	// Join registers a connection. The caller must hold an edit tier.
	// The returned peer's outbound queue starts with an active_editors snapshot.
	Join(ctx context.Context, documentID string, caller domain.Identity, clientID string) (RelayPeer, error)

	// Revoke closes every connection a user holds on a document with a
	// permission-revoked reason.
	Revoke(documentID, userID string)

	// PublishSaved announces a durable flush: batch_update to everyone but
	// the origin and version_saved to everyone.
	PublishSaved(ctx context.Context, documentID, originClientID string, changes map[string]any, version int64) error

	// Close shuts down all rooms.
	Close() error
}

// RelayPeer is one joined connection.
type RelayPeer interface {
	// ClientID identifies the connection.
	ClientID() string

	// Outbound delivers messages to write to the connection.
	Outbound() <-chan domain.Message

	// Done is closed when the relay ends the peer.
	Done() <-chan struct{}

	// CloseReason is why the relay ended the peer. nil until Done is closed.
	CloseReason() error

	// Receive handles one inbound message from the connection.
	Receive(ctx context.Context, msg domain.Message) error

	// Leave unregisters the connection.
	Leave()
}
