package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentSnapshot is a persisted copy of a room's document body, taken
// after an accepted content update. Snapshots are append-only; the most
// recent row per room is the latest accepted write.
type DocumentSnapshot struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID    string    `gorm:"index;not null" json:"room_id"`
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *DocumentSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// ActivityNote is a persisted copy of a relayed user-activity event.
type ActivityNote struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID    string    `gorm:"index;not null" json:"room_id"`
	User      string    `json:"user"`
	Change    string    `json:"change"`
	CreatedAt time.Time `json:"created_at"`
}

func (n *ActivityNote) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
