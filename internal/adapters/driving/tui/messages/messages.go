// Package messages defines Bubbletea message types for the TUI.
// Messages represent events and commands that flow through the Elm architecture.
package messages

import (
	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driving"
)

// ViewChanged is sent when navigating between views.
type ViewChanged struct {
	View ViewType
}

// ViewType identifies which view is currently active.
type ViewType int

const (
	// ViewDocuments lists the documents the user can open.
	ViewDocuments ViewType = iota
	// ViewEditor is the collaborative form editor.
	ViewEditor
	// ViewViewer renders a document read-only.
	ViewViewer
)

// String returns the string representation of the view type.
func (v ViewType) String() string {
	switch v {
	case ViewDocuments:
		return "documents"
	case ViewEditor:
		return "editor"
	case ViewViewer:
		return "viewer"
	default:
		return "unknown"
	}
}

// ErrorOccurred signals that an error happened.
type ErrorOccurred struct {
	Err error
}

// Quit signals the application should exit.
type Quit struct{}

// DocumentsLoaded carries the documents the user holds a tier on.
type DocumentsLoaded struct {
	Documents []domain.DocumentAccess
	Err       error
}

// DocumentSelected asks the app to open a document.
type DocumentSelected struct {
	DocumentID string
}

// DocumentOpened carries the handle returned by the collaboration service.
type DocumentOpened struct {
	DocumentID string
	Handle     driving.DocumentHandle
	Err        error
}

// DocumentClosed is sent when the user leaves an open document.
type DocumentClosed struct {
	DocumentID string
}

// SessionUpdated signals that an editing session's observable state changed.
type SessionUpdated struct {
	DocumentID string
}

// SaveCompleted carries the outcome of an explicit save.
type SaveCompleted struct {
	DocumentID string
	Err        error
}
