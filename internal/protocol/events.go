// Package protocol defines the wire vocabulary between clients and the
// session server. Every frame is a JSON envelope with a type tag and a
// type-specific data object. Event names follow the original transport
// so existing front ends keep working.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"collabpad/internal/models"
)

const (
	// client -> server
	EventUpdate   = "update"          // full-document replace
	EventCursor   = "cursor-position" // caret offset report / relay
	EventTyping   = "user-typing"     // ephemeral activity ping / relay
	EventActivity = "user-activity"   // free-form log entry / relay

	// server -> client
	EventContent      = "content" // document + registry snapshot
	EventConnected    = "user-connected"
	EventDisconnected = "user-disconnected"
)

// ErrMalformed marks frames that must be dropped without tearing the
// connection down.
var ErrMalformed = errors.New("malformed event")

// Envelope is the outer frame: a type tag plus the raw payload.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ContentPayload carries the whole document plus a registry snapshot.
// On the initial frame the list excludes the joining participant;
// update broadcasts carry the full registry (the sender is excluded
// from delivery, not from the list).
type ContentPayload struct {
	Content string               `json:"content"`
	Users   []models.Participant `json:"users"`
}

// UpdatePayload replaces the room document verbatim.
type UpdatePayload struct {
	Content string `json:"content"`
}

// CursorPayload reports a caret offset. ID is filled in by the server
// on relay.
type CursorPayload struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	CursorPos int    `json:"cursorPos"`
}

// TypingPayload is empty from the client; the relay carries the sender id.
type TypingPayload struct {
	ID string `json:"id,omitempty"`
}

// ActivityPayload is relayed to everyone else unmodified.
type ActivityPayload struct {
	User   string `json:"user"`
	Change string `json:"change"`
}

type ConnectedPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type DisconnectedPayload struct {
	ID string `json:"id"`
}

// Encode wraps a payload in an envelope and marshals the frame.
func Encode(eventType string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", eventType, err)
		}
		data = b
	}
	return json.Marshal(&Envelope{Type: eventType, Data: data})
}

// DecodeEnvelope parses the outer frame. Bad JSON or a missing type tag
// is reported as ErrMalformed.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return &env, nil
}

// Bind unmarshals the envelope payload into v. A payload of the wrong
// shape is reported as ErrMalformed.
func (e *Envelope) Bind(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, e.Type, err)
	}
	return nil
}
