package fanout

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/formsync/internal/adapters/driven/transport/wire"
	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
	"github.com/custodia-labs/formsync/internal/logger"
)

// Ensure Redis implements the interface.
var _ driven.Fanout = (*Redis)(nil)

const channelPrefix = "formsync:doc:"

// Redis fans messages out through Redis pub/sub.
type Redis struct {
	client *redis.Client

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis %s: %w", domain.ErrTransport, addr, err)
	}
	return &Redis{client: client, subs: make(map[*subscription]struct{})}, nil
}

// Channel returns the pub/sub channel for a document.
func Channel(documentID string) string {
	return channelPrefix + documentID
}

// Publish encodes msg and publishes it on the document's channel.
func (r *Redis) Publish(ctx context.Context, documentID string, msg domain.Message) error {
	data, err := wire.EncodeMessage(msg)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, Channel(documentID), data).Err(); err != nil {
		return fmt.Errorf("%w: publish: %w", domain.ErrTransport, err)
	}
	return nil
}

// Subscribe subscribes to the document's channel. It returns once Redis has
// confirmed the subscription, so nothing published afterwards is missed.
func (r *Redis) Subscribe(ctx context.Context, documentID string) (driven.Subscription, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, domain.ErrConnectionClosed
	}

	ps := r.client.Subscribe(ctx, Channel(documentID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: subscribe: %w", domain.ErrTransport, err)
	}

	s := newSubscription(func(s *subscription) {
		_ = ps.Close()
		r.mu.Lock()
		delete(r.subs, s)
		r.mu.Unlock()
	})
	r.mu.Lock()
	r.subs[s] = struct{}{}
	r.mu.Unlock()

	go r.pump(documentID, ps, s)
	return s, nil
}

func (r *Redis) pump(documentID string, ps *redis.PubSub, s *subscription) {
	defer s.Close()
	for m := range ps.Channel() {
		msg, err := wire.DecodeMessage([]byte(m.Payload))
		if err != nil {
			logger.Warn("fanout %s: dropping message: %v", documentID, err)
			continue
		}
		if err := s.deliver(context.Background(), msg); err != nil {
			return
		}
	}
}

// Close ends every subscription and closes the client.
func (r *Redis) Close() error {
	r.mu.Lock()
	r.closed = true
	all := make([]*subscription, 0, len(r.subs))
	for s := range r.subs {
		all = append(all, s)
	}
	r.mu.Unlock()

	for _, s := range all {
		_ = s.Close()
	}
	return r.client.Close()
}
