package driven

import (
	"context"

	"github.com/custodia-labs/formsync/internal/core/domain"
)

// Fanout broadcasts relay messages to every server instance holding
// connections for a document. The in-process implementation is enough for
// a single instance; Redis pub/sub spans several.
type Fanout interface {
	// Publish sends msg to every subscriber of the document.
	Publish(ctx context.Context, documentID string, msg domain.Message) error

	// Subscribe starts receiving messages for a document.
	Subscribe(ctx context.Context, documentID string) (Subscription, error)

	// Close releases all subscriptions and connections.
	Close() error
}

// Subscription delivers messages for one document until closed.
type Subscription interface {
	// Messages is closed when the subscription ends.
	Messages() <-chan domain.Message

	// Close ends the subscription.
	Close() error
}
