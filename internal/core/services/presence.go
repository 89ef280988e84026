package services

import (
	"sort"
	"time"

	"github.com/custodia-labs/formsync/internal/core/domain"
)

// PresenceRegistry tracks who is focused on a document and where.
//
// It is a replica rebuilt from relayed events and holds at most one entry
// per user id. It is not safe for concurrent use; the owner serialises
// access (the session actor on clients, the room lock on the relay).
type PresenceRegistry struct {
	// selfClientID keeps the local client out of its own view. Empty on the relay.
	selfClientID string
	entries      map[string]domain.PresenceEntry
}

// NewPresenceRegistry creates an empty registry.
func NewPresenceRegistry(selfClientID string) *PresenceRegistry {
	return &PresenceRegistry{
		selfClientID: selfClientID,
		entries:      make(map[string]domain.PresenceEntry),
	}
}

// Apply folds one presence event into the registry and reports whether
// the visible set changed. Non-presence kinds only refresh the sender's
// activity timestamp.
func (r *PresenceRegistry) Apply(msg domain.Message, now time.Time) bool {
	if msg.Kind == domain.MsgActiveEditors {
		r.Replace(msg.Editors, now)
		return true
	}
	if r.isSelf(msg.ClientID) || msg.UserID == "" {
		return false
	}

	switch msg.Kind {
	case domain.MsgUserEditing:
		r.entries[msg.UserID] = msg.PresenceFrom(now)
		return true

	case domain.MsgCursorUpdate:
		entry, ok := r.entries[msg.UserID]
		if !ok {
			// A cursor event never creates an entry.
			return false
		}
		if msg.Field != "" {
			entry.Field = msg.Field
		}
		entry.Cursor = msg.Cursor
		entry.SelectionStart = msg.SelectionStart
		entry.SelectionEnd = msg.SelectionEnd
		entry.LastActivity = now
		r.entries[msg.UserID] = entry
		return true

	case domain.MsgUserStoppedEditing:
		return r.Remove(msg.UserID)

	default:
		if entry, ok := r.entries[msg.UserID]; ok {
			entry.LastActivity = now
			r.entries[msg.UserID] = entry
		}
		return false
	}
}

// Replace swaps the whole set for a snapshot.
func (r *PresenceRegistry) Replace(entries []domain.PresenceEntry, now time.Time) {
	r.entries = make(map[string]domain.PresenceEntry, len(entries))
	for _, e := range entries {
		if r.isSelf(e.ClientID) || e.UserID == "" {
			continue
		}
		if e.LastActivity.IsZero() {
			e.LastActivity = now
		}
		r.entries[e.UserID] = e
	}
}

// Remove deletes a user's entry and reports whether one existed.
func (r *PresenceRegistry) Remove(userID string) bool {
	if _, ok := r.entries[userID]; !ok {
		return false
	}
	delete(r.entries, userID)
	return true
}

// Prune removes entries idle for longer than timeout and returns their user ids.
func (r *PresenceRegistry) Prune(now time.Time, timeout time.Duration) []string {
	var removed []string
	for id, e := range r.entries {
		if e.Idle(now, timeout) {
			delete(r.entries, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return removed
}

// Clear empties the registry.
func (r *PresenceRegistry) Clear() {
	r.entries = make(map[string]domain.PresenceEntry)
}

// Get returns a user's entry.
func (r *PresenceRegistry) Get(userID string) (domain.PresenceEntry, bool) {
	e, ok := r.entries[userID]
	return e, ok
}

// Len returns the number of entries.
func (r *PresenceRegistry) Len() int {
	return len(r.entries)
}

// Snapshot returns the entries ordered by display name, then user id.
func (r *PresenceRegistry) Snapshot() []domain.PresenceEntry {
	out := make([]domain.PresenceEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (r *PresenceRegistry) isSelf(clientID string) bool {
	return r.selfClientID != "" && clientID == r.selfClientID
}
