package models

import (
	"github.com/segmentio/ksuid"
)

// Participant is one connected identity in a room. The id is scoped to
// a single connection and never reused after disconnect.
type Participant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	CursorPos int    `json:"cursorPos"`
}

func NewParticipant(name, color string) *Participant {
	return &Participant{
		ID:    ksuid.New().String(),
		Name:  name,
		Color: color,
	}
}
