package wire

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/custodia-labs/formsync/internal/core/domain"
)

// Websocket close codes used by the relay.
const (
	// CloseAccessRevoked tells the client its edit tier is gone. Clients must
	// not reconnect after receiving it.
	CloseAccessRevoked = 4003
)

// Envelope is the JSON form of domain.Message. The "type" discriminator is
// passed through untouched; unknown kinds are left to the receiver.
type Envelope struct {
	Type           string         `json:"type"`
	DocumentID     string         `json:"document_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	ClientID       string         `json:"client_id,omitempty"`
	DisplayName    string         `json:"display_name,omitempty"`
	Field          string         `json:"field,omitempty"`
	Value          any            `json:"value"`
	Fields         map[string]any `json:"fields,omitempty"`
	Version        int64          `json:"version,omitempty"`
	Cursor         int            `json:"cursor,omitempty"`
	SelectionStart *int           `json:"selection_start,omitempty"`
	SelectionEnd   *int           `json:"selection_end,omitempty"`
	Editors        []Editor       `json:"editors,omitempty"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
}

// Editor is one entry of an active_editors snapshot.
type Editor struct {
	UserID         string    `json:"user_id"`
	ClientID       string    `json:"client_id,omitempty"`
	DisplayName    string    `json:"display_name,omitempty"`
	Field          string    `json:"field,omitempty"`
	Cursor         int       `json:"cursor,omitempty"`
	SelectionStart *int      `json:"selection_start,omitempty"`
	SelectionEnd   *int      `json:"selection_end,omitempty"`
	LastActivity   time.Time `json:"last_activity"`
}

// EncodeMessage marshals a message to its JSON envelope.
func EncodeMessage(msg domain.Message) ([]byte, error) {
	env := Envelope{
		Type:           string(msg.Kind),
		DocumentID:     msg.DocumentID,
		UserID:         msg.UserID,
		ClientID:       msg.ClientID,
		DisplayName:    msg.DisplayName,
		Field:          msg.Field,
		Value:          msg.Value,
		Fields:         msg.Fields,
		Version:        msg.Version,
		Cursor:         msg.Cursor,
		SelectionStart: msg.SelectionStart,
		SelectionEnd:   msg.SelectionEnd,
	}
	if !msg.SentAt.IsZero() {
		at := msg.SentAt.UTC()
		env.SentAt = &at
	}
	for _, e := range msg.Editors {
		env.Editors = append(env.Editors, Editor{
			UserID:         e.UserID,
			ClientID:       e.ClientID,
			DisplayName:    e.DisplayName,
			Field:          e.Field,
			Cursor:         e.Cursor,
			SelectionStart: e.SelectionStart,
			SelectionEnd:   e.SelectionEnd,
			LastActivity:   e.LastActivity.UTC(),
		})
	}
	return json.Marshal(env)
}

// DecodeMessage unmarshals a JSON envelope. Values are normalised the same
// way local edits are so remote and local values compare equal.
func DecodeMessage(data []byte) (domain.Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.Message{}, fmt.Errorf("decode message: %w", err)
	}
	if env.Type == "" {
		return domain.Message{}, fmt.Errorf("decode message: missing type")
	}

	msg := domain.Message{
		Kind:           domain.MessageKind(env.Type),
		DocumentID:     env.DocumentID,
		UserID:         env.UserID,
		ClientID:       env.ClientID,
		DisplayName:    env.DisplayName,
		Field:          env.Field,
		Value:          domain.NormalizeValue(env.Value),
		Version:        env.Version,
		Cursor:         env.Cursor,
		SelectionStart: env.SelectionStart,
		SelectionEnd:   env.SelectionEnd,
	}
	if env.SentAt != nil {
		msg.SentAt = *env.SentAt
	}
	if env.Fields != nil {
		msg.Fields = make(map[string]any, len(env.Fields))
		for k, v := range env.Fields {
			msg.Fields[k] = domain.NormalizeValue(v)
		}
	}
	if env.Editors != nil || msg.Kind == domain.MsgActiveEditors {
		// A snapshot of an empty room omits "editors" and still replaces.
		msg.Editors = make([]domain.PresenceEntry, 0, len(env.Editors))
	}
	for _, e := range env.Editors {
		msg.Editors = append(msg.Editors, domain.PresenceEntry{
			UserID:         e.UserID,
			ClientID:       e.ClientID,
			DisplayName:    e.DisplayName,
			Field:          e.Field,
			Cursor:         e.Cursor,
			SelectionStart: e.SelectionStart,
			SelectionEnd:   e.SelectionEnd,
			LastActivity:   e.LastActivity,
		})
	}
	return msg, nil
}
