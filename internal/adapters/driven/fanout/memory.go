package fanout

import (
	"context"
	"sync"

	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
)

// Ensure Memory implements the interface.
var _ driven.Fanout = (*Memory)(nil)

const subscriptionBuffer = 256

// Memory is an in-process fan-out.
type Memory struct {
	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

// NewMemory creates an in-process fan-out.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[*subscription]struct{})}
}

// Publish delivers msg to every subscription of the document, in order.
// It blocks while a subscriber's buffer is full.
func (m *Memory) Publish(ctx context.Context, documentID string, msg domain.Message) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return domain.ErrConnectionClosed
	}
	targets := make([]*subscription, 0, len(m.subs[documentID]))
	for s := range m.subs[documentID] {
		targets = append(targets, s)
	}
	m.mu.Unlock()

	for _, s := range targets {
		if err := s.deliver(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a subscription for documentID.
func (m *Memory) Subscribe(_ context.Context, documentID string) (driven.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, domain.ErrConnectionClosed
	}

	s := newSubscription(func(s *subscription) { m.remove(documentID, s) })
	if m.subs[documentID] == nil {
		m.subs[documentID] = make(map[*subscription]struct{})
	}
	m.subs[documentID][s] = struct{}{}
	return s, nil
}

// Close ends every subscription.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	var all []*subscription
	for _, set := range m.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	m.mu.Unlock()

	for _, s := range all {
		_ = s.Close()
	}
	return nil
}

func (m *Memory) remove(documentID string, s *subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs[documentID], s)
	if len(m.subs[documentID]) == 0 {
		delete(m.subs, documentID)
	}
}

// subscription is shared by both fan-outs.
//
// mu is held across a blocked send; done is closed first on Close so the
// sender wakes and releases mu before ch is closed.
type subscription struct {
	mu      sync.Mutex
	ch      chan domain.Message
	done    chan struct{}
	once    sync.Once
	closed  bool
	onClose func(*subscription)
}

func newSubscription(onClose func(*subscription)) *subscription {
	return &subscription{
		ch:      make(chan domain.Message, subscriptionBuffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (s *subscription) Messages() <-chan domain.Message { return s.ch }

func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		if s.onClose != nil {
			s.onClose(s)
		}
	})
	return nil
}

func (s *subscription) deliver(ctx context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- msg:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
