package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
)

// mockDocumentAPI implements driven.DocumentAPI for testing.
type mockDocumentAPI struct {
	mu       sync.Mutex
	access   *domain.DocumentAccess
	fetchErr error
	fetches  int
	version  int64
	patchErr error
	patches  []map[string]any
	gate     chan struct{}
}

func newMockDocumentAPI(access *domain.DocumentAccess) *mockDocumentAPI {
	return &mockDocumentAPI{access: access, version: access.Document.Version}
}

func (m *mockDocumentAPI) Fetch(_ context.Context, documentID string) (*domain.DocumentAccess, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if m.access == nil || m.access.Document.ID != documentID {
		return nil, domain.ErrNotFound
	}
	access := *m.access
	access.Document = m.access.Document.Clone()
	return &access, nil
}

func (m *mockDocumentAPI) Patch(ctx context.Context, _ string, changes map[string]any) (int64, error) {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.patches = append(m.patches, changes)
	if m.patchErr != nil {
		return 0, m.patchErr
	}
	m.version++
	return m.version, nil
}

func (m *mockDocumentAPI) setPatchErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patchErr = err
}

func (m *mockDocumentAPI) patchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.patches)
}

func (m *mockDocumentAPI) patch(i int) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.patches[i]
}

func (m *mockDocumentAPI) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

// mockConn implements driven.Conn. Tests push inbound messages on in and
// read what the client sent from out.
type mockConn struct {
	in        chan domain.Message
	out       chan domain.Message
	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	reason    error
}

func newMockConn() *mockConn {
	return &mockConn{
		in:     make(chan domain.Message, 16),
		out:    make(chan domain.Message, 64),
		closed: make(chan struct{}),
	}
}

func (c *mockConn) Send(_ context.Context, msg domain.Message) error {
	select {
	case <-c.closed:
		return fmt.Errorf("%w: closed", domain.ErrTransport)
	case c.out <- msg:
		return nil
	}
}

func (c *mockConn) Receive(ctx context.Context) (domain.Message, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.reason != nil {
			return domain.Message{}, c.reason
		}
		return domain.Message{}, domain.ErrConnectionClosed
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	}
}

func (c *mockConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// drop ends the connection from the server side with the given error.
func (c *mockConn) drop(err error) {
	c.mu.Lock()
	c.reason = err
	c.mu.Unlock()
	_ = c.Close()
}

func (c *mockConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// sent drains what the client has written so far.
func (c *mockConn) sent() []domain.Message {
	var out []domain.Message
	for {
		select {
		case msg := <-c.out:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// mockDialer implements driven.Dialer. Queued errors are returned first;
// after that every dial succeeds with a fresh mockConn.
type mockDialer struct {
	mu    sync.Mutex
	errs  []error
	fail  error
	conns []*mockConn
	ctxs  []context.Context
	dials int
}

func (d *mockDialer) Dial(ctx context.Context, _ string) (driven.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.ctxs = append(d.ctxs, ctx)
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		return nil, err
	}
	if d.fail != nil {
		return nil, d.fail
	}
	conn := newMockConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *mockDialer) setFail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

func (d *mockDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// dialContext returns the context passed to the i-th dial.
func (d *mockDialer) dialContext(i int) context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctxs[i]
}

func (d *mockDialer) last() *mockConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *mockDialer) liveConns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.conns {
		if !c.isClosed() {
			n++
		}
	}
	return n
}

// mockFanout implements driven.Fanout in process.
type mockFanout struct {
	mu         sync.Mutex
	subs       map[string][]*mockSubscription
	published  []domain.Message
	publishErr error
}

type mockSubscription struct {
	fanout     *mockFanout
	documentID string
	ch         chan domain.Message
	once       sync.Once
}

func newMockFanout() *mockFanout {
	return &mockFanout{subs: make(map[string][]*mockSubscription)}
}

func (f *mockFanout) Publish(_ context.Context, documentID string, msg domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	for _, s := range f.subs[documentID] {
		s.ch <- msg
	}
	return nil
}

func (f *mockFanout) Subscribe(_ context.Context, documentID string) (driven.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &mockSubscription{fanout: f, documentID: documentID, ch: make(chan domain.Message, 256)}
	f.subs[documentID] = append(f.subs[documentID], s)
	return s, nil
}

func (f *mockFanout) Close() error { return nil }

func (f *mockFanout) subscribers(documentID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[documentID])
}

func (s *mockSubscription) Messages() <-chan domain.Message { return s.ch }

func (s *mockSubscription) Close() error {
	s.once.Do(func() {
		s.fanout.mu.Lock()
		subs := s.fanout.subs[s.documentID]
		for i, other := range subs {
			if other == s {
				s.fanout.subs[s.documentID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		s.fanout.mu.Unlock()
		close(s.ch)
	})
	return nil
}

// mockMembershipStore implements driven.MembershipStore.
type mockMembershipStore struct {
	mu    sync.Mutex
	tiers map[string]map[string]domain.PermissionTier
	err   error
}

func newMockMembershipStore() *mockMembershipStore {
	return &mockMembershipStore{tiers: make(map[string]map[string]domain.PermissionTier)}
}

func (m *mockMembershipStore) GetTier(_ context.Context, documentID, userID string) (domain.PermissionTier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	tier, ok := m.tiers[documentID][userID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return tier, nil
}

func (m *mockMembershipStore) SetTier(_ context.Context, mem domain.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tiers[mem.DocumentID] == nil {
		m.tiers[mem.DocumentID] = make(map[string]domain.PermissionTier)
	}
	m.tiers[mem.DocumentID][mem.UserID] = mem.Tier
	return nil
}

func (m *mockMembershipStore) ListForUser(_ context.Context, userID string) ([]domain.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Membership
	for doc, users := range m.tiers {
		if tier, ok := users[userID]; ok {
			out = append(out, domain.Membership{DocumentID: doc, UserID: userID, Tier: tier})
		}
	}
	return out, nil
}

func (m *mockMembershipStore) ListForDocument(_ context.Context, documentID string) ([]domain.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Membership
	for user, tier := range m.tiers[documentID] {
		out = append(out, domain.Membership{DocumentID: documentID, UserID: user, Tier: tier})
	}
	return out, nil
}
