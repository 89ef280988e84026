package services

import (
	"context"
	"errors"
	"sync"

	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
	"github.com/custodia-labs/formsync/internal/core/ports/driving"
	"github.com/custodia-labs/formsync/internal/logger"
)

// Ensure CollabService implements the interface.
var _ driving.CollabService = (*CollabService)(nil)

// CollabService opens documents and keeps one session per document in this process.
type CollabService struct {
	gate     *CredentialGate
	api      driven.DocumentAPI
	dialer   driven.Dialer
	clock    Clock
	clientID string
	settings domain.CollabSettings

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	session *Session
	refs    int
}

// NewCollabService creates a collaboration service. clientID must match the
// one the API and dialer adapters present to the server.
func NewCollabService(
	api driven.DocumentAPI,
	dialer driven.Dialer,
	clientID string,
	settings domain.CollabSettings,
	clock Clock,
) *CollabService {
	if clock == nil {
		clock = SystemClock()
	}
	return &CollabService{
		gate:     NewCredentialGate(api),
		api:      api,
		dialer:   dialer,
		clock:    clock,
		clientID: clientID,
		settings: settings,
		sessions: make(map[string]*sessionEntry),
	}
}

// Open returns a read-only view or a shared editing session.
func (c *CollabService) Open(ctx context.Context, documentID string) (driving.DocumentHandle, error) {
	if h := c.acquire(documentID); h != nil {
		return h, nil
	}

	access, err := c.gate.Resolve(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !access.Tier.CanEdit() {
		logger.Debug("open %s: read-only (%s)", documentID, access.Tier)
		return NewReadOnlyView(access.Document), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.sessions[documentID]
	if !ok {
		entry = &sessionEntry{session: NewSession(SessionConfig{
			ClientID: c.clientID,
			Access:   access,
			Settings: c.settings,
			API:      c.api,
			Dialer:   c.dialer,
			Clock:    c.clock,
		})}
		c.sessions[documentID] = entry
		logger.Debug("open %s: new session (%s)", documentID, access.Tier)
	}
	entry.refs++
	return c.handle(documentID, entry.session), nil
}

// acquire returns a new handle on an already open session, if any.
func (c *CollabService) acquire(documentID string) driving.DocumentHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.sessions[documentID]
	if !ok {
		return nil
	}
	entry.refs++
	return c.handle(documentID, entry.session)
}

func (c *CollabService) handle(documentID string, s *Session) *sharedSession {
	h := &sharedSession{Session: s}
	h.release = func() error { return c.release(documentID, s) }
	return h
}

// release drops one reference and closes the session with the last one.
func (c *CollabService) release(documentID string, s *Session) error {
	c.mu.Lock()
	entry, ok := c.sessions[documentID]
	if !ok || entry.session != s {
		c.mu.Unlock()
		return nil
	}
	entry.refs--
	if entry.refs > 0 {
		c.mu.Unlock()
		return nil
	}
	delete(c.sessions, documentID)
	c.mu.Unlock()

	logger.Debug("close %s: last handle released", documentID)
	return s.Close()
}

// OpenSessions returns the number of live sessions.
func (c *CollabService) OpenSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Close ends every open session regardless of outstanding handles.
func (c *CollabService) Close() error {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for id, entry := range c.sessions {
		sessions = append(sessions, entry.session)
		delete(c.sessions, id)
	}
	c.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// sharedSession is one holder's handle on a registry session.
type sharedSession struct {
	*Session
	once    sync.Once
	release func() error
}

// Close releases this handle. The session closes with its last handle.
func (h *sharedSession) Close() error {
	var err error
	h.once.Do(func() { err = h.release() })
	return err
}
