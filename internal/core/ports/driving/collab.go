package driving

import (
	"context"

	"github.com/custodia-labs/formsync/internal/core/domain"
)

// CollabService opens documents for viewing or collaborative editing.
type CollabService interface {
	// Open resolves the caller's permission tier and returns a handle.
	// Read-tier callers get a read-only handle that never opens a
	// connection; edit-tier callers get a CollabSession. Opening the same
	// document twice in one process returns the same session.
	//
	// Fails with domain.ErrPermissionDenied, domain.ErrNotFound or
	// domain.ErrAuthorizationUnavailable; no connection is opened on failure.
	Open(ctx context.Context, documentID string) (DocumentHandle, error)

	// Close ends every open session.
	Close() error
}

// DocumentHandle is what every opened document exposes.
type DocumentHandle interface {
	// DocumentID returns the opened document's ID.
	DocumentID() string

	// Content returns the current field values, including local edits.
	Content() domain.Document

	// CanEdit reports whether the handle accepts edits.
	CanEdit() bool

	// Close releases the handle. Sessions are torn down when the last
	// holder closes them.
	Close() error
}

// CollabSession is the editing surface for one document.
//
// All methods are safe for concurrent use. Getters read an immutable
// snapshot; mutations are serialised through the session's owner.
type CollabSession interface {
	DocumentHandle

	// ActiveEditors returns the presence set excluding the local client.
	ActiveEditors() []domain.PresenceEntry

	// ConnectionStatus returns the connection controller's state.
	ConnectionStatus() domain.ConnectionStatus

	// HasUnsavedChanges is true while the pending buffer is non-empty.
	HasUnsavedChanges() bool

	// Err returns the last surfaced failure, or nil.
	Err() error

	// Updates delivers a signal whenever observable state changes.
	// Signals coalesce; readers should re-read the getters.
	Updates() <-chan struct{}

	// DebouncedUpdate records a local edit. The local value changes at
	// once; broadcast and persistence follow their timers.
	DebouncedUpdate(field string, value any)

	// StartEditing announces focus on a field.
	StartEditing(field string)

	// StopEditing announces that the user left all fields.
	StopEditing()

	// UpdateCursor announces a caret move within a field.
	UpdateCursor(field string, cursor int, selectionStart, selectionEnd *int)

	// SaveNow flushes the pending buffer immediately and waits for the outcome.
	SaveNow(ctx context.Context) error

	// RetryConnection restarts reconnection with a fresh attempt budget.
	// Rejected with domain.ErrPermissionDenied once access was revoked.
	RetryConnection() error

	// ClearError clears the surfaced error.
	ClearError()

	// Hide flushes pending changes because the view lost focus.
	Hide()
}

// DocumentDirectory lists the documents a client may open.
type DocumentDirectory interface {
	// List returns every document the caller holds a tier on.
	List(ctx context.Context) ([]domain.DocumentAccess, error)
}
