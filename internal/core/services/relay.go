package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
	"github.com/custodia-labs/formsync/internal/core/ports/driving"
	"github.com/custodia-labs/formsync/internal/logger"
)

// Ensure RelayService implements the interface.
var _ driving.RelayService = (*RelayService)(nil)

// msgAccessRevoked travels between relay instances only; clients never see it.
const msgAccessRevoked domain.MessageKind = "access_revoked"

// peerQueueSize bounds messages waiting to be written to one connection.
const peerQueueSize = 64

// errSlowConsumer ends a peer whose outbound queue overflowed.
var errSlowConsumer = fmt.Errorf("%w: client is not reading", domain.ErrTransport)

// RelayService routes messages between the editors of each document.
//
// Each document with local connections has a room subscribed to the
// fan-out; every message, including ones published by this instance, is
// delivered to local peers from that subscription so all instances see
// the same order.
type RelayService struct {
	members         driven.MembershipStore
	fanout          driven.Fanout
	clock           Clock
	presenceTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	rooms  map[string]*room
	closed bool
}

// RelayStats is a point-in-time count of rooms and peers.
type RelayStats struct {
	Rooms int
	Peers int
}

// NewRelayService creates a relay.
func NewRelayService(members driven.MembershipStore, fanout driven.Fanout, presenceTimeout time.Duration, clock Clock) *RelayService {
	if clock == nil {
		clock = SystemClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RelayService{
		members:         members,
		fanout:          fanout,
		clock:           clock,
		presenceTimeout: presenceTimeout,
		ctx:             ctx,
		cancel:          cancel,
		rooms:           make(map[string]*room),
	}
}

// Join registers a connection for an editor.
func (r *RelayService) Join(ctx context.Context, documentID string, caller domain.Identity, clientID string) (driving.RelayPeer, error) {
	if documentID == "" || clientID == "" || caller.UserID == "" {
		return nil, fmt.Errorf("%w: document, client and user are required", domain.ErrInvalidInput)
	}

	tier, err := r.members.GetTier(ctx, documentID, caller.UserID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && !tier.CanEdit()) {
		return nil, domain.ErrPermissionDenied
	}
	if err != nil {
		return nil, fmt.Errorf("lookup membership: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, domain.ErrConnectionClosed
	}

	rm, ok := r.rooms[documentID]
	if !ok {
		sub, err := r.fanout.Subscribe(r.ctx, documentID)
		if err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", documentID, err)
		}
		rm = newRoom(r, documentID, sub)
		r.rooms[documentID] = rm
		go rm.run()
		logger.Debug("relay: opened room %s", documentID)
	}

	p := rm.add(caller, clientID)
	logger.Debug("relay: %s (%s) joined %s", caller.UserID, clientID, documentID)
	return p, nil
}

// Revoke ends every connection a user holds on a document, on every instance.
func (r *RelayService) Revoke(documentID, userID string) {
	err := r.fanout.Publish(r.ctx, documentID, domain.Message{
		Kind:       msgAccessRevoked,
		DocumentID: documentID,
		UserID:     userID,
		SentAt:     r.clock.Now(),
	})
	if err != nil {
		logger.Warn("relay: publish revocation for %s: %v", documentID, err)
		r.mu.Lock()
		rm := r.rooms[documentID]
		r.mu.Unlock()
		if rm != nil {
			rm.endUser(userID, domain.ErrPermissionDenied)
		}
	}
}

// PublishSaved announces a durable flush.
func (r *RelayService) PublishSaved(ctx context.Context, documentID, originClientID string, changes map[string]any, version int64) error {
	now := r.clock.Now()
	batch := domain.Message{
		Kind:       domain.MsgBatchUpdate,
		DocumentID: documentID,
		ClientID:   originClientID,
		Fields:     changes,
		Version:    version,
		SentAt:     now,
	}
	if err := r.fanout.Publish(ctx, documentID, batch); err != nil {
		return fmt.Errorf("publish batch_update: %w", err)
	}

	saved := batch
	saved.Kind = domain.MsgVersionSaved
	if err := r.fanout.Publish(ctx, documentID, saved); err != nil {
		return fmt.Errorf("publish version_saved: %w", err)
	}
	return nil
}

// PruneIdle removes presence entries that saw no activity within the
// timeout and tells local peers they stopped editing.
func (r *RelayService) PruneIdle() {
	r.mu.Lock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.Unlock()

	now := r.clock.Now()
	for _, rm := range rooms {
		rm.prune(now, r.presenceTimeout)
	}
}

// Run prunes idle presence until ctx is done.
func (r *RelayService) Run(ctx context.Context) {
	if r.presenceTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(r.presenceTimeout / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.PruneIdle()
		}
	}
}

// Stats counts rooms and peers.
func (r *RelayService) Stats() RelayStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := RelayStats{Rooms: len(r.rooms)}
	for _, rm := range r.rooms {
		rm.mu.Lock()
		stats.Peers += len(rm.peers)
		rm.mu.Unlock()
	}
	return stats
}

// Close ends every peer and room.
func (r *RelayService) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	rooms := r.rooms
	r.rooms = make(map[string]*room)
	r.mu.Unlock()

	r.cancel()
	for _, rm := range rooms {
		rm.shutdown(domain.ErrConnectionClosed)
	}
	return nil
}

// dropRoom removes a room once its last peer left. Caller holds r.mu.
func (r *RelayService) dropRoom(rm *room) {
	if r.rooms[rm.documentID] == rm {
		delete(r.rooms, rm.documentID)
	}
	_ = rm.sub.Close()
	logger.Debug("relay: closed room %s", rm.documentID)
}

type room struct {
	relay      *RelayService
	documentID string
	sub        driven.Subscription

	mu       sync.Mutex
	peers    map[string]*relayPeer
	presence *PresenceRegistry
}

func newRoom(r *RelayService, documentID string, sub driven.Subscription) *room {
	return &room{
		relay:      r,
		documentID: documentID,
		sub:        sub,
		peers:      make(map[string]*relayPeer),
		presence:   NewPresenceRegistry(""),
	}
}

func (rm *room) run() {
	for msg := range rm.sub.Messages() {
		rm.dispatch(msg)
	}
}

// add registers a peer and queues the presence snapshot. A reconnect with
// the same client id replaces the old connection.
func (rm *room) add(caller domain.Identity, clientID string) *relayPeer {
	p := &relayPeer{
		room:     rm,
		identity: caller,
		clientID: clientID,
		out:      make(chan domain.Message, peerQueueSize),
		done:     make(chan struct{}),
	}

	rm.mu.Lock()
	old := rm.peers[clientID]
	rm.peers[clientID] = p
	snapshot := rm.presence.Snapshot()
	rm.mu.Unlock()

	if old != nil {
		old.end(domain.ErrConnectionClosed)
	}
	p.deliver(domain.Message{
		Kind:       domain.MsgActiveEditors,
		DocumentID: rm.documentID,
		Editors:    snapshot,
		SentAt:     rm.relay.clock.Now(),
	})
	return p
}

func (rm *room) dispatch(msg domain.Message) {
	if msg.Kind == msgAccessRevoked {
		rm.endUser(msg.UserID, domain.ErrPermissionDenied)
		return
	}

	rm.mu.Lock()
	rm.presence.Apply(msg, rm.relay.clock.Now())
	targets := make([]*relayPeer, 0, len(rm.peers))
	for id, p := range rm.peers {
		if id == msg.ClientID && msg.Kind != domain.MsgVersionSaved {
			continue
		}
		targets = append(targets, p)
	}
	rm.mu.Unlock()

	for _, p := range targets {
		p.deliver(msg)
	}
}

func (rm *room) endUser(userID string, reason error) {
	rm.mu.Lock()
	var targets []*relayPeer
	for _, p := range rm.peers {
		if p.identity.UserID == userID {
			targets = append(targets, p)
		}
	}
	rm.mu.Unlock()

	for _, p := range targets {
		logger.Info("relay: ending %s on %s: %v", userID, rm.documentID, reason)
		p.end(reason)
	}
}

func (rm *room) prune(now time.Time, timeout time.Duration) {
	rm.mu.Lock()
	removed := rm.presence.Prune(now, timeout)
	peers := make([]*relayPeer, 0, len(rm.peers))
	for _, p := range rm.peers {
		peers = append(peers, p)
	}
	rm.mu.Unlock()

	for _, userID := range removed {
		msg := domain.Message{
			Kind:       domain.MsgUserStoppedEditing,
			DocumentID: rm.documentID,
			UserID:     userID,
			SentAt:     now,
		}
		for _, p := range peers {
			p.deliver(msg)
		}
	}
}

// remove unregisters a peer. It reports whether the peer still owned the
// user's presence entry and whether the room is now empty. The caller
// holds relay.mu.
func (rm *room) remove(p *relayPeer) (focused bool, empty bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.peers[p.clientID] != p {
		return false, len(rm.peers) == 0
	}
	delete(rm.peers, p.clientID)
	entry, ok := rm.presence.Get(p.identity.UserID)
	return ok && entry.ClientID == p.clientID, len(rm.peers) == 0
}

func (rm *room) shutdown(reason error) {
	rm.mu.Lock()
	peers := make([]*relayPeer, 0, len(rm.peers))
	for _, p := range rm.peers {
		peers = append(peers, p)
	}
	rm.peers = make(map[string]*relayPeer)
	rm.mu.Unlock()

	for _, p := range peers {
		p.end(reason)
	}
	_ = rm.sub.Close()
}

// relayPeer is one joined connection.
type relayPeer struct {
	room     *room
	identity domain.Identity
	clientID string
	out      chan domain.Message

	done      chan struct{}
	closeOnce sync.Once
	leaveOnce sync.Once
	mu        sync.Mutex
	reason    error
}

func (p *relayPeer) ClientID() string {
	return p.clientID
}

func (p *relayPeer) Outbound() <-chan domain.Message {
	return p.out
}

func (p *relayPeer) Done() <-chan struct{} {
	return p.done
}

func (p *relayPeer) CloseReason() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

// Receive stamps the sender's identity on a client message and publishes it.
func (p *relayPeer) Receive(ctx context.Context, msg domain.Message) error {
	if !msg.Kind.IsClientOriginated() {
		return fmt.Errorf("%w: clients may not send %q", domain.ErrInvalidInput, msg.Kind)
	}
	select {
	case <-p.done:
		return domain.ErrConnectionClosed
	default:
	}

	msg.DocumentID = p.room.documentID
	msg.UserID = p.identity.UserID
	msg.DisplayName = p.identity.DisplayName
	msg.ClientID = p.clientID
	msg.SentAt = p.room.relay.clock.Now()
	msg.Fields = nil
	msg.Editors = nil

	return p.room.relay.fanout.Publish(ctx, p.room.documentID, msg)
}

// Leave unregisters the peer and clears its presence.
func (p *relayPeer) Leave() {
	p.leaveOnce.Do(func() {
		r := p.room.relay
		r.mu.Lock()
		focused, empty := p.room.remove(p)
		if empty {
			r.dropRoom(p.room)
		}
		r.mu.Unlock()

		p.end(domain.ErrConnectionClosed)

		if focused {
			err := r.fanout.Publish(r.ctx, p.room.documentID, domain.Message{
				Kind:        domain.MsgUserStoppedEditing,
				DocumentID:  p.room.documentID,
				UserID:      p.identity.UserID,
				ClientID:    p.clientID,
				DisplayName: p.identity.DisplayName,
				SentAt:      r.clock.Now(),
			})
			if err != nil {
				logger.Warn("relay: publish leave for %s: %v", p.identity.UserID, err)
			}
		}
		logger.Debug("relay: %s (%s) left %s", p.identity.UserID, p.clientID, p.room.documentID)
	})
}

func (p *relayPeer) deliver(msg domain.Message) {
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.out <- msg:
	default:
		logger.Warn("relay: dropping slow client %s on %s", p.clientID, p.room.documentID)
		p.end(errSlowConsumer)
	}
}

func (p *relayPeer) end(reason error) {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.reason = reason
		p.mu.Unlock()
		close(p.done)
	})
}
