package domain

import "time"

// MessageKind discriminates the logical wire messages.
type MessageKind string

// Wire message kinds.
const (
	// MsgFieldUpdate carries one field's new value from one editor.
	MsgFieldUpdate MessageKind = "field_update"

	// MsgBatchUpdate carries several fields and the version they were flushed at.
	MsgBatchUpdate MessageKind = "batch_update"

	// MsgUserEditing announces that a user focused a field.
	MsgUserEditing MessageKind = "user_editing"

	// MsgUserStoppedEditing announces that a user left the document's fields.
	MsgUserStoppedEditing MessageKind = "user_stopped_editing"

	// MsgCursorUpdate moves a user's cursor or selection.
	MsgCursorUpdate MessageKind = "cursor_update"

	// MsgActiveEditors is the full presence snapshot sent on connect.
	MsgActiveEditors MessageKind = "active_editors"

	// MsgVersionSaved confirms a durable flush and the fields it covered.
	MsgVersionSaved MessageKind = "version_saved"
)

// IsValid returns true if the kind is recognised.
func (k MessageKind) IsValid() bool {
	switch k {
	case MsgFieldUpdate, MsgBatchUpdate, MsgUserEditing, MsgUserStoppedEditing,
		MsgCursorUpdate, MsgActiveEditors, MsgVersionSaved:
		return true
	default:
		return false
	}
}

// IsClientOriginated reports whether a client may send this kind to the relay.
// Batch updates, snapshots and save confirmations only come from the server.
func (k MessageKind) IsClientOriginated() bool {
	switch k {
	case MsgFieldUpdate, MsgUserEditing, MsgUserStoppedEditing, MsgCursorUpdate:
		return true
	default:
		return false
	}
}

// Message is one logical message on a document connection.
// Each kind uses only the subset of fields it needs.
type Message struct {
	Kind       MessageKind
	DocumentID string

	// Sender identity, stamped by the relay.
	UserID      string
	ClientID    string
	DisplayName string

	// Field and Value carry field_update; Field also carries the focus of
	// user_editing and cursor_update.
	Field string
	Value any

	// Fields carries batch_update values and the changes covered by version_saved.
	Fields map[string]any

	// Version is the sender's document version (field_update) or the
	// flushed version (batch_update, version_saved).
	Version int64

	// Cursor and selection for cursor_update and user_editing.
	Cursor         int
	SelectionStart *int
	SelectionEnd   *int

	// Editors is the active_editors snapshot.
	Editors []PresenceEntry

	// SentAt is when the message was produced.
	SentAt time.Time
}

// PresenceFrom builds the presence entry a user_editing or cursor_update describes.
func (m Message) PresenceFrom(at time.Time) PresenceEntry {
	return PresenceEntry{
		UserID:         m.UserID,
		ClientID:       m.ClientID,
		DisplayName:    m.DisplayName,
		Field:          m.Field,
		Cursor:         m.Cursor,
		SelectionStart: m.SelectionStart,
		SelectionEnd:   m.SelectionEnd,
		LastActivity:   at,
	}
}
