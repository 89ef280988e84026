package services

import (
	"time"

	"github.com/custodia-labs/formsync/internal/core/domain"
)

// FieldSync moves field values between the local document and the connection.
//
// Outbound edits are debounced per field: a burst of edits to one field
// produces a single field_update carrying the final value. Inbound updates
// are applied in arrival order and rejected when older than the local
// version. Not safe for concurrent use.
type FieldSync struct {
	doc      *domain.Document
	clientID string

	clock    Clock
	post     func(func())
	debounce time.Duration
	send     func(domain.Message) bool

	fields    map[string]*timerSlot
	cursor    timerSlot
	cursorMsg domain.Message
}

// NewFieldSync creates a FieldSync over doc. send hands a message to the
// connection and reports whether it was accepted.
func NewFieldSync(doc *domain.Document, clientID string, clock Clock, post func(func()),
	debounce time.Duration, send func(domain.Message) bool) *FieldSync {
	return &FieldSync{
		doc:      doc,
		clientID: clientID,
		clock:    clock,
		post:     post,
		debounce: debounce,
		send:     send,
		fields:   make(map[string]*timerSlot),
	}
}

// Edit applies a local value and (re)arms the field's debounce timer.
func (f *FieldSync) Edit(field string, value any) {
	f.doc.SetField(field, value)

	slot, ok := f.fields[field]
	if !ok {
		slot = &timerSlot{}
		f.fields[field] = slot
	}
	slot.schedule(f.clock, f.debounce, f.post, func() {
		f.sendField(field)
	})
}

// Cursor queues a cursor_update. Rapid moves collapse into the last one.
func (f *FieldSync) Cursor(msg domain.Message) {
	f.cursorMsg = msg
	f.cursor.schedule(f.clock, f.debounce, f.post, func() {
		f.send(f.cursorMsg)
	})
}

// PendingOutbound reports whether any field broadcast is waiting on its timer.
func (f *FieldSync) PendingOutbound() bool {
	for _, slot := range f.fields {
		if slot.pending() {
			return true
		}
	}
	return false
}

// Apply handles an inbound field_update, batch_update or version_saved.
// It returns the fields a remote value replaced and whether local state changed.
// Echoes of this client's own updates are ignored; version_saved always counts.
func (f *FieldSync) Apply(msg domain.Message) ([]string, bool) {
	own := msg.ClientID != "" && msg.ClientID == f.clientID
	if own && msg.Kind != domain.MsgVersionSaved {
		return nil, false
	}

	switch msg.Kind {
	case domain.MsgFieldUpdate:
		if msg.Field == "" || f.doc.IsStale(msg.Version) {
			return nil, false
		}
		f.doc.SetField(msg.Field, msg.Value)
		f.cancel(msg.Field)
		return []string{msg.Field}, true

	case domain.MsgBatchUpdate:
		if !f.doc.ApplyBatch(msg.Fields, msg.Version) {
			return nil, false
		}
		names := make([]string, 0, len(msg.Fields))
		for name := range msg.Fields {
			f.cancel(name)
			names = append(names, name)
		}
		return names, true

	case domain.MsgVersionSaved:
		return nil, f.doc.AdoptVersion(msg.Version)

	default:
		return nil, false
	}
}

// Stop cancels every pending broadcast.
func (f *FieldSync) Stop() {
	for _, slot := range f.fields {
		slot.stop()
	}
	f.cursor.stop()
}

func (f *FieldSync) cancel(field string) {
	if slot, ok := f.fields[field]; ok {
		slot.stop()
	}
}

func (f *FieldSync) sendField(field string) {
	value, _ := f.doc.Field(field)
	f.send(domain.Message{
		Kind:       domain.MsgFieldUpdate,
		DocumentID: f.doc.ID,
		ClientID:   f.clientID,
		Field:      field,
		Value:      value,
		Version:    f.doc.Version,
		SentAt:     f.clock.Now(),
	})
}
