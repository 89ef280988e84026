package domain

import "time"

// PresenceEntry is one active editor's status within a document.
// At most one entry exists per user id; a newer entry replaces the old one.
type PresenceEntry struct {
	// UserID identifies the editor.
	UserID string

	// ClientID identifies the connection that relayed the entry.
	// A client uses it to keep itself out of its own presence view.
	ClientID string

	// DisplayName is shown next to the field the user is editing.
	DisplayName string

	// Field is the focused field name. Empty means no field is focused.
	Field string

	// Cursor is the caret offset within Field.
	Cursor int

	// SelectionStart and SelectionEnd bound the selection, when there is one.
	SelectionStart *int
	SelectionEnd   *int

	// LastActivity is when the entry was last touched.
	LastActivity time.Time
}

// HasSelection reports whether a selection range is present.
func (p PresenceEntry) HasSelection() bool {
	return p.SelectionStart != nil && p.SelectionEnd != nil
}

// Idle reports whether the entry saw no activity within timeout.
func (p PresenceEntry) Idle(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && now.Sub(p.LastActivity) > timeout
}
