package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
	"github.com/custodia-labs/formsync/internal/core/ports/driving"
	"github.com/custodia-labs/formsync/internal/logger"
)

// Ensure Session implements the interface.
var _ driving.CollabSession = (*Session)(nil)

// closeFlushTimeout bounds the best-effort flush when a session closes.
const closeFlushTimeout = 5 * time.Second

// opQueueSize bounds work waiting for the session actor.
const opQueueSize = 256

// SessionConfig configures a Session.
type SessionConfig struct {
	// ClientID identifies this client on the connection.
	ClientID string

	// Access is the gate's answer: tier and initial document.
	Access *domain.DocumentAccess

	Settings domain.CollabSettings
	API      driven.DocumentAPI
	Dialer   driven.Dialer
	Clock    Clock
}

// sessionSnapshot is the immutable view getters read.
type sessionSnapshot struct {
	doc     domain.Document
	editors []domain.PresenceEntry
	status  domain.ConnectionStatus
	unsaved bool
	canEdit bool
	err     error
}

// Session is the collaborative editing state of one document on this client.
//
// A single actor goroutine owns the document, the pending buffer, the
// presence registry and the connection controller; every mutation is a
// closure run on it in order. Getters read the last published snapshot.
type Session struct {
	documentID string
	clientID   string
	settings   domain.CollabSettings
	api        driven.DocumentAPI
	clock      Clock

	ctx       context.Context
	cancel    context.CancelFunc
	ops       chan func()
	done      chan struct{}
	closeOnce sync.Once
	stopped   bool

	// Owned by the actor.
	doc      domain.Document
	canEdit  bool
	focus    string
	err      error
	buffer   *PendingBuffer
	fields   *FieldSync
	presence *PresenceRegistry
	conn     *ConnectionController
	waiters  []chan error
	prune    timerSlot

	snap    atomic.Pointer[sessionSnapshot]
	updates chan struct{}
}

// NewSession starts the session actor and, with edit access, the connection.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		documentID: cfg.Access.Document.ID,
		clientID:   cfg.ClientID,
		settings:   cfg.Settings,
		api:        cfg.API,
		clock:      cfg.Clock,
		ctx:        ctx,
		cancel:     cancel,
		ops:        make(chan func(), opQueueSize),
		done:       make(chan struct{}),
		doc:        cfg.Access.Document.Clone(),
		canEdit:    cfg.Access.Tier.CanEdit(),
		presence:   NewPresenceRegistry(cfg.ClientID),
		updates:    make(chan struct{}, 1),
	}
	s.buffer = NewPendingBuffer(s.clock, s.post, s.settings.FlushInterval, s.flush)
	s.fields = NewFieldSync(&s.doc, s.clientID, s.clock, s.post, s.settings.Debounce, s.send)
	s.conn = NewConnectionController(ctx, ConnectionConfig{
		DocumentID:  s.documentID,
		Dialer:      cfg.Dialer,
		Clock:       s.clock,
		Post:        s.post,
		BaseDelay:   s.settings.ReconnectBase,
		MaxAttempts: s.settings.MaxReconnectAttempts,
		OnMessage:   s.receive,
		OnChange:    s.connectionChanged,
	})

	s.publish()
	go s.run()

	if s.canEdit {
		s.post(func() {
			_ = s.conn.Connect()
			s.schedulePrune()
		})
	}
	return s
}

func (s *Session) run() {
	defer close(s.done)
	for f := range s.ops {
		f()
		if s.stopped {
			return
		}
	}
}

// post queues f on the actor. Work posted after shutdown is dropped.
func (s *Session) post(f func()) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.ops <- f:
	case <-s.done:
	}
}

// call runs f on the actor and waits for it.
func (s *Session) call(f func()) error {
	ran := make(chan struct{})
	s.post(func() {
		f()
		close(ran)
	})
	select {
	case <-ran:
		return nil
	case <-s.done:
		return domain.ErrSessionClosed
	}
}

// DocumentID returns the document's ID.
func (s *Session) DocumentID() string {
	return s.documentID
}

// Content returns the document including local edits.
func (s *Session) Content() domain.Document {
	doc := s.snap.Load().doc
	return doc.Clone()
}

// CanEdit reports whether edits are accepted.
func (s *Session) CanEdit() bool {
	return s.snap.Load().canEdit
}

// ActiveEditors returns remote editors ordered by display name.
func (s *Session) ActiveEditors() []domain.PresenceEntry {
	return append([]domain.PresenceEntry(nil), s.snap.Load().editors...)
}

// ConnectionStatus returns the controller's state.
func (s *Session) ConnectionStatus() domain.ConnectionStatus {
	return s.snap.Load().status
}

// HasUnsavedChanges is true while the pending buffer is non-empty.
func (s *Session) HasUnsavedChanges() bool {
	return s.snap.Load().unsaved
}

// Err returns the last surfaced failure.
func (s *Session) Err() error {
	return s.snap.Load().err
}

// Updates signals observable changes.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// DebouncedUpdate applies a local edit.
func (s *Session) DebouncedUpdate(field string, value any) {
	s.post(func() {
		if !s.canEdit {
			return
		}
		if err := domain.ValidateChanges(s.doc.Kind, map[string]any{field: value}); err != nil {
			s.err = err
			s.publish()
			return
		}
		s.fields.Edit(field, value)
		s.buffer.Record(field, value)
		s.publish()
	})
}

// StartEditing announces focus on a field.
func (s *Session) StartEditing(field string) {
	s.post(func() {
		if !s.canEdit {
			return
		}
		s.focus = field
		s.send(s.presenceMessage(domain.MsgUserEditing, field, 0, nil, nil))
	})
}

// StopEditing announces that the user left the fields.
func (s *Session) StopEditing() {
	s.post(func() {
		if s.focus == "" {
			return
		}
		s.focus = ""
		s.send(s.presenceMessage(domain.MsgUserStoppedEditing, "", 0, nil, nil))
	})
}

// UpdateCursor announces a caret move.
func (s *Session) UpdateCursor(field string, cursor int, selectionStart, selectionEnd *int) {
	s.post(func() {
		if !s.canEdit {
			return
		}
		s.focus = field
		s.fields.Cursor(s.presenceMessage(domain.MsgCursorUpdate, field, cursor, selectionStart, selectionEnd))
	})
}

// SaveNow flushes the buffer and waits for the outcome.
func (s *Session) SaveNow(ctx context.Context) error {
	result := make(chan error, 1)
	s.post(func() {
		if !s.buffer.HasUnsaved() && !s.buffer.Flushing() {
			result <- nil
			return
		}
		s.waiters = append(s.waiters, result)
		s.flush()
	})

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return domain.ErrSessionClosed
	}
}

// Hide flushes because the view lost focus.
func (s *Session) Hide() {
	s.post(s.flush)
}

// RetryConnection restarts reconnection with a fresh budget.
func (s *Session) RetryConnection() error {
	var err error
	if cerr := s.call(func() {
		err = s.conn.Retry()
		s.publish()
	}); cerr != nil {
		return cerr
	}
	return err
}

// ClearError clears the surfaced error.
func (s *Session) ClearError() {
	s.post(func() {
		s.err = nil
		s.publish()
	})
}

// Close flushes what it can, closes the connection and stops the actor.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeFlushTimeout)
		defer cancel()
		if ferr := s.SaveNow(ctx); ferr != nil && !errors.Is(ferr, domain.ErrSessionClosed) {
			logger.Warn("session %s: final flush failed: %v", s.documentID, ferr)
			err = ferr
		}

		_ = s.call(func() {
			s.conn.Shutdown()
			s.fields.Stop()
			s.prune.stop()
			s.cancel()
			s.failWaiters(domain.ErrSessionClosed)
			s.stopped = true
		})
		<-s.done
	})
	return err
}

// flush starts persisting the buffer unless a flush is already running.
func (s *Session) flush() {
	if !s.canEdit {
		return
	}
	changes, ok := s.buffer.Begin()
	if !ok {
		return
	}
	logger.Debug("session %s: flushing %d fields", s.documentID, len(changes))

	go func() {
		version, err := s.api.Patch(s.ctx, s.documentID, changes.Fields())
		s.post(func() { s.flushed(version, err) })
	}()
	s.publish()
}

func (s *Session) flushed(version int64, err error) {
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			s.buffer.Reject()
		} else {
			s.buffer.Fail(!domain.IsTerminal(err))
		}
		s.err = fmt.Errorf("%w: %w", domain.ErrFlushFailure, err)
		flushErr := s.err
		logger.Warn("session %s: flush failed: %v", s.documentID, err)
		if errors.Is(err, domain.ErrPermissionDenied) {
			s.conn.Revoke(err)
		}
		s.publish()
		s.failWaiters(flushErr)
		return
	}

	again := s.buffer.Succeed()
	s.doc.AdoptVersion(version)
	if errors.Is(s.err, domain.ErrFlushFailure) {
		s.err = nil
	}
	if again {
		s.flush()
		s.publish()
		return
	}
	s.publish()
	s.failWaiters(nil)
}

func (s *Session) failWaiters(err error) {
	for _, w := range s.waiters {
		w <- err
	}
	s.waiters = nil
}

// receive handles one inbound message.
func (s *Session) receive(msg domain.Message) {
	now := s.clock.Now()
	switch msg.Kind {
	case domain.MsgFieldUpdate, domain.MsgBatchUpdate, domain.MsgVersionSaved:
		replaced, _ := s.fields.Apply(msg)
		for _, field := range replaced {
			s.buffer.Drop(field)
		}
		if msg.Kind == domain.MsgVersionSaved {
			s.buffer.ClearSaved(msg.Fields)
			if !s.buffer.HasUnsaved() && !s.buffer.Flushing() && errors.Is(s.err, domain.ErrFlushFailure) {
				s.err = nil
			}
		}
		s.presence.Apply(msg, now)
	case domain.MsgUserEditing, domain.MsgUserStoppedEditing, domain.MsgCursorUpdate, domain.MsgActiveEditors:
		s.presence.Apply(msg, now)
	default:
		logger.Debug("session %s: ignoring %q", s.documentID, msg.Kind)
		return
	}
	s.publish()
}

func (s *Session) connectionChanged(err error) {
	status := s.conn.Status()

	switch {
	case status.State == domain.ConnPermissionDenied:
		s.canEdit = false
		s.focus = ""
		s.buffer.Discard()
		s.fields.Stop()
		s.presence.Clear()
		s.prune.stop()
		s.err = err
		s.publish()
		s.failWaiters(err)
		return

	case status.State == domain.ConnConnected:
		if errors.Is(s.err, domain.ErrTransport) || errors.Is(s.err, domain.ErrConnectionClosed) {
			s.err = nil
		}
		if s.focus != "" {
			s.send(s.presenceMessage(domain.MsgUserEditing, s.focus, 0, nil, nil))
		}

	case err != nil && !status.RetryScheduled:
		s.err = err
	}
	s.publish()
}

// send hands a message to the connection, dropping it while offline.
func (s *Session) send(msg domain.Message) bool {
	msg.DocumentID = s.documentID
	msg.ClientID = s.clientID
	if msg.SentAt.IsZero() {
		msg.SentAt = s.clock.Now()
	}
	return s.conn.Send(msg)
}

func (s *Session) presenceMessage(kind domain.MessageKind, field string, cursor int, selStart, selEnd *int) domain.Message {
	return domain.Message{
		Kind:           kind,
		Field:          field,
		Cursor:         cursor,
		SelectionStart: selStart,
		SelectionEnd:   selEnd,
		Version:        s.doc.Version,
	}
}

func (s *Session) schedulePrune() {
	if s.settings.PresenceTimeout <= 0 {
		return
	}
	s.prune.schedule(s.clock, s.settings.PresenceTimeout, s.post, func() {
		if removed := s.presence.Prune(s.clock.Now(), s.settings.PresenceTimeout); len(removed) > 0 {
			s.publish()
		}
		s.schedulePrune()
	})
}

// publish stores a fresh snapshot and signals readers.
func (s *Session) publish() {
	s.snap.Store(&sessionSnapshot{
		doc:     s.doc.Clone(),
		editors: s.presence.Snapshot(),
		status:  s.conn.Status(),
		unsaved: s.buffer.HasUnsaved(),
		canEdit: s.canEdit,
		err:     s.err,
	})
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
