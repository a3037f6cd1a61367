package session

import (
	"context"
	"log"
	"sync"

	"collabpad/internal/models"
	"collabpad/internal/protocol"
)

// Archiver persists accepted writes out of band and restores the last
// persisted document into a freshly created room. Implementations must
// tolerate being called concurrently; the room never blocks on them.
type Archiver interface {
	SaveSnapshot(ctx context.Context, roomID, content string) error
	SaveNote(ctx context.Context, roomID string, note protocol.ActivityPayload) error
	LatestSnapshot(ctx context.Context, roomID string) (*models.DocumentSnapshot, error)
}

// Room owns one shared document and the registry of connected
// participants. Every mutation runs under the room mutex, so operations
// from different connections are serialized and events from a single
// sender reach everyone else in the order the room accepted them.
// Fan-out goes through per-member outboxes and never blocks: a member
// whose outbox is full is dropped from the room instead.
type Room struct {
	ID string

	mu       sync.Mutex
	document string
	dirty    bool // a participant has written; archive seeds no longer apply
	members  map[string]*member

	archive Archiver // optional
}

type member struct {
	p      *models.Participant
	outbox chan []byte
}

func NewRoom(id string, archive Archiver) *Room {
	return &Room{
		ID:      id,
		members: make(map[string]*member),
		archive: archive,
	}
}

// Join registers a participant and queues the initial snapshot - the
// current document plus every other participant - on its outbox. The
// rest of the room is told via user-connected. The returned payload
// mirrors what was queued.
func (r *Room) Join(p *models.Participant, outbox chan []byte) *protocol.ContentPayload {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members[p.ID] = &member{p: p, outbox: outbox}

	snapshot := &protocol.ContentPayload{
		Content: r.document,
		Users:   r.registryLocked(p.ID),
	}
	if frame, err := protocol.Encode(protocol.EventContent, snapshot); err == nil {
		select {
		case outbox <- frame:
		default:
		}
	}

	frame, err := protocol.Encode(protocol.EventConnected, &protocol.ConnectedPayload{
		ID:    p.ID,
		Name:  p.Name,
		Color: p.Color,
	})
	if err == nil {
		r.broadcastLocked(p.ID, frame)
	}

	return snapshot
}

// ApplyUpdate replaces the document verbatim and re-broadcasts it,
// along with a full registry snapshot, to everyone except the sender.
// Last writer wins; no merge is attempted. An unknown sender id is a
// no-op.
func (r *Room) ApplyUpdate(senderID, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[senderID]; !ok {
		return
	}

	r.document = content
	r.dirty = true

	frame, err := protocol.Encode(protocol.EventContent, &protocol.ContentPayload{
		Content: content,
		Users:   r.registryLocked(""),
	})
	if err == nil {
		r.broadcastLocked(senderID, frame)
	}

	if r.archive != nil {
		roomID := r.ID
		go func() {
			if err := r.archive.SaveSnapshot(context.Background(), roomID, content); err != nil {
				log.Printf("Failed to archive snapshot for room %s: %v", roomID, err)
			}
		}()
	}
}

// UpdateCursor stores the sender's caret offset and relays it. An
// unknown sender id - a late event racing connection teardown - is a
// silent no-op.
func (r *Room) UpdateCursor(senderID string, c protocol.CursorPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[senderID]
	if !ok {
		return
	}

	m.p.CursorPos = c.CursorPos

	frame, err := protocol.Encode(protocol.EventCursor, &protocol.CursorPayload{
		ID:        senderID,
		Name:      c.Name,
		Color:     c.Color,
		CursorPos: c.CursorPos,
	})
	if err == nil {
		r.broadcastLocked(senderID, frame)
	}
}

// Typing relays an ephemeral typing ping. The room retains nothing.
func (r *Room) Typing(senderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[senderID]; !ok {
		return
	}

	frame, err := protocol.Encode(protocol.EventTyping, &protocol.TypingPayload{ID: senderID})
	if err == nil {
		r.broadcastLocked(senderID, frame)
	}
}

// Activity relays a free-form note unmodified.
func (r *Room) Activity(senderID string, note protocol.ActivityPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[senderID]; !ok {
		return
	}

	frame, err := protocol.Encode(protocol.EventActivity, &note)
	if err == nil {
		r.broadcastLocked(senderID, frame)
	}

	if r.archive != nil {
		roomID := r.ID
		go func() {
			if err := r.archive.SaveNote(context.Background(), roomID, note); err != nil {
				log.Printf("Failed to archive activity note for room %s: %v", roomID, err)
			}
		}()
	}
}

// Leave removes a participant and tells everyone else. Idempotent: a
// second leave for the same id does nothing. Returns the number of
// participants still in the room.
func (r *Room) Leave(participantID string) (remaining int, left bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[participantID]; !ok {
		return len(r.members), false
	}

	r.removeLocked(participantID)
	return len(r.members), true
}

// Document returns the current shared document body.
func (r *Room) Document() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.document
}

// Participants returns a snapshot of the full registry.
func (r *Room) Participants() []models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registryLocked("")
}

// Len reports the number of connected participants.
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Close drops every member, closing their outboxes so the write pumps
// shut the connections down.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.members {
		close(m.outbox)
	}
	r.members = make(map[string]*member)
}

// seedFromArchive restores the last persisted document body into this
// room and re-broadcasts it to everyone already joined. A live update
// always wins: once any participant has written, the seed is discarded.
func (r *Room) seedFromArchive() {
	snapshot, err := r.archive.LatestSnapshot(context.Background(), r.ID)
	if err != nil {
		log.Printf("Failed to load snapshot for room %s: %v", r.ID, err)
		return
	}
	if snapshot == nil || snapshot.Content == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dirty {
		return
	}
	r.document = snapshot.Content

	frame, err := protocol.Encode(protocol.EventContent, &protocol.ContentPayload{
		Content: r.document,
		Users:   r.registryLocked(""),
	})
	if err == nil {
		r.broadcastLocked("", frame)
	}
}

// registryLocked snapshots the registry, excluding exceptID.
func (r *Room) registryLocked(exceptID string) []models.Participant {
	users := make([]models.Participant, 0, len(r.members))
	for id, m := range r.members {
		if id == exceptID {
			continue
		}
		users = append(users, *m.p)
	}
	return users
}

// broadcastLocked queues a frame on every outbox except the sender's.
// A full outbox means the peer is too slow or gone; it is removed so it
// cannot back-pressure the mutation path.
func (r *Room) broadcastLocked(exceptID string, frame []byte) {
	var stale []string
	for id, m := range r.members {
		if id == exceptID {
			continue
		}
		select {
		case m.outbox <- frame:
		default:
			log.Printf("Participant %s outbox full, dropping from room %s", id, r.ID)
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		r.removeLocked(id)
	}
}

// removeLocked deletes a member, closes its outbox and announces the
// departure. Best effort on the announcement: a peer whose outbox is
// already full simply misses the frame and will be reaped on the next
// broadcast.
func (r *Room) removeLocked(participantID string) {
	m, ok := r.members[participantID]
	if !ok {
		return
	}

	delete(r.members, participantID)
	close(m.outbox)

	frame, err := protocol.Encode(protocol.EventDisconnected, &protocol.DisconnectedPayload{ID: participantID})
	if err != nil {
		return
	}
	for _, other := range r.members {
		select {
		case other.outbox <- frame:
		default:
		}
	}
}
