package session

import (
	"log"
	"sync"

	"collabpad/internal/models"
)

// Hub manages the live rooms. A room is created on first join and torn
// down when its last participant leaves, so idle rooms hold no state.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	archive    Archiver // optional, shared by all rooms
	outboxSize int
}

func NewHub(archive Archiver, outboxSize int) *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		archive:    archive,
		outboxSize: outboxSize,
	}
}

// Join registers a participant in a room, constructing the room on
// first use. Lookup and join happen under one hub lock so a concurrent
// teardown of the room's last member can never strand the joiner in a
// room the hub no longer tracks. A room created fresh is seeded from
// the archive, off the lock.
func (h *Hub) Join(roomID string, p *models.Participant, outbox chan []byte) *Room {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	created := false
	if !ok {
		r = NewRoom(roomID, h.archive)
		h.rooms[roomID] = r
		created = true
		log.Printf("Room %s created", roomID)
	}
	r.Join(p, outbox)
	h.mu.Unlock()

	if created && h.archive != nil {
		go r.seedFromArchive()
	}
	return r
}

// Get returns the room for id if it exists.
func (h *Hub) Get(id string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[id]
	return r, ok
}

// Leave removes a participant from a room and deletes the room once it
// is empty. Safe to call more than once per participant.
func (h *Hub) Leave(roomID, participantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[roomID]
	if !ok {
		return
	}

	remaining, left := r.Leave(participantID)
	if left && remaining == 0 {
		delete(h.rooms, roomID)
		log.Printf("Room %s empty, removed", roomID)
	}
}

// Shutdown closes every room, dropping all members.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, r := range h.rooms {
		r.Close()
		delete(h.rooms, id)
	}
	log.Println("✓ Session hub shutdown complete")
}
