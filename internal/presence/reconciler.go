// Package presence turns the server's event stream into bounded,
// display-ready state: remote cursors with a liveness TTL, the set of
// participants currently typing, and a short rolling activity log.
package presence

import (
	"sync"
	"time"

	"collabpad/internal/models"
	"collabpad/internal/protocol"
)

const (
	// CursorTTL is how long a remote cursor stays live without a
	// refresh.
	CursorTTL = 2 * time.Second

	// TypingTTL is how long a typing indicator lasts after the last
	// signal.
	TypingTTL = 1500 * time.Millisecond

	// ActivityLogCap bounds the rolling activity log; the oldest entry
	// drops past the cap.
	ActivityLogCap = 10
)

// RemoteCursor is a live remote caret.
type RemoteCursor struct {
	models.Participant
	ReceivedAt time.Time
}

// ActivityEntry is one line of the rolling log, most recent first.
type ActivityEntry struct {
	User   string
	Change string
	At     time.Time
}

type cursorEntry struct {
	cursor RemoteCursor
	timer  *time.Timer
	gen    uint64
}

type typingEntry struct {
	timer *time.Timer
	gen   uint64
}

// Reconciler holds per-client derived state. Each cursor and typing
// entry carries its own eviction timer; a refresh cancels the pending
// timer and arms a new one, so a steady refresh cadence shorter than
// the TTL keeps an entry alive indefinitely.
type Reconciler struct {
	mu sync.Mutex

	selfID    string
	cursorTTL time.Duration
	typingTTL time.Duration

	document     string
	participants []models.Participant
	cursors      map[string]*cursorEntry
	typing       map[string]*typingEntry
	activity     []ActivityEntry

	closed bool
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithCursorTTL overrides the cursor liveness window.
func WithCursorTTL(d time.Duration) Option {
	return func(r *Reconciler) { r.cursorTTL = d }
}

// WithTypingTTL overrides the typing indicator decay.
func WithTypingTTL(d time.Duration) Option {
	return func(r *Reconciler) { r.typingTTL = d }
}

// New builds a reconciler for the local participant. selfID may be
// empty when the transport does not expose the local id; the server
// already excludes the sender from every relay, so self-filtering here
// is a second line of defense only.
func New(selfID string, opts ...Option) *Reconciler {
	r := &Reconciler{
		selfID:    selfID,
		cursorTTL: CursorTTL,
		typingTTL: TypingTTL,
		cursors:   make(map[string]*cursorEntry),
		typing:    make(map[string]*typingEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply routes one decoded envelope into the reconciler. Unknown event
// types and malformed payloads are dropped.
func (r *Reconciler) Apply(env *protocol.Envelope) error {
	switch env.Type {
	case protocol.EventContent:
		var p protocol.ContentPayload
		if err := env.Bind(&p); err != nil {
			return err
		}
		r.ApplyContent(p)

	case protocol.EventCursor:
		var p protocol.CursorPayload
		if err := env.Bind(&p); err != nil {
			return err
		}
		r.ApplyCursor(p)

	case protocol.EventTyping:
		var p protocol.TypingPayload
		if err := env.Bind(&p); err != nil {
			return err
		}
		r.ApplyTyping(p.ID)

	case protocol.EventActivity:
		var p protocol.ActivityPayload
		if err := env.Bind(&p); err != nil {
			return err
		}
		r.ApplyActivity(p)

	case protocol.EventConnected:
		var p protocol.ConnectedPayload
		if err := env.Bind(&p); err != nil {
			return err
		}
		r.ApplyConnected(p)

	case protocol.EventDisconnected:
		var p protocol.DisconnectedPayload
		if err := env.Bind(&p); err != nil {
			return err
		}
		r.ApplyDisconnected(p.ID)
	}
	return nil
}

// ApplyContent replaces the document view and the known-participants
// list wholesale. The registry is eventually consistent: the server
// re-sends it on every accepted edit rather than diffing.
func (r *Reconciler) ApplyContent(p protocol.ContentPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.document = p.Content
	r.participants = append([]models.Participant(nil), p.Users...)
}

// ApplyCursor upserts a remote cursor and restarts its eviction timer.
func (r *Reconciler) ApplyCursor(p protocol.CursorPayload) {
	if p.ID == "" || p.ID == r.selfID {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	e, ok := r.cursors[p.ID]
	if !ok {
		e = &cursorEntry{}
		r.cursors[p.ID] = e
	} else if e.timer != nil {
		e.timer.Stop()
	}

	e.cursor = RemoteCursor{
		Participant: models.Participant{
			ID:        p.ID,
			Name:      p.Name,
			Color:     p.Color,
			CursorPos: p.CursorPos,
		},
		ReceivedAt: time.Now(),
	}
	e.gen++

	gen := e.gen
	id := p.ID
	e.timer = time.AfterFunc(r.cursorTTL, func() { r.evictCursor(id, gen) })
}

// ApplyTyping marks a participant as typing and restarts that entry's
// removal timer. Each refresh cancels the pending removal rather than
// scheduling a second one, so an older timer can never evict a freshly
// refreshed entry.
func (r *Reconciler) ApplyTyping(id string) {
	if id == "" || id == r.selfID {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	e, ok := r.typing[id]
	if !ok {
		e = &typingEntry{}
		r.typing[id] = e
	} else if e.timer != nil {
		e.timer.Stop()
	}

	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(r.typingTTL, func() { r.evictTyping(id, gen) })
}

// ApplyActivity prepends a log entry, dropping the oldest past the cap.
func (r *Reconciler) ApplyActivity(p protocol.ActivityPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := ActivityEntry{User: p.User, Change: p.Change, At: time.Now()}
	r.activity = append([]ActivityEntry{entry}, r.activity...)
	if len(r.activity) > ActivityLogCap {
		r.activity = r.activity[:ActivityLogCap]
	}
}

// ApplyConnected appends a participant to the known list.
func (r *Reconciler) ApplyConnected(p protocol.ConnectedPayload) {
	if p.ID == r.selfID {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.participants {
		if u.ID == p.ID {
			return
		}
	}
	r.participants = append(r.participants, models.Participant{
		ID:    p.ID,
		Name:  p.Name,
		Color: p.Color,
	})
}

// ApplyDisconnected removes every trace of a participant immediately:
// registry entry, cursor (pending timer cancelled, no TTL wait) and
// typing indicator.
func (r *Reconciler) ApplyDisconnected(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, u := range r.participants {
		if u.ID == id {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			break
		}
	}

	if e, ok := r.cursors[id]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(r.cursors, id)
	}
	if e, ok := r.typing[id]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(r.typing, id)
	}
}

// Document returns the local document view.
func (r *Reconciler) Document() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.document
}

// Participants returns the known-participants list.
func (r *Reconciler) Participants() []models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Participant(nil), r.participants...)
}

// TypingUsers returns the ids currently considered typing.
func (r *Reconciler) TypingUsers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.typing))
	for id := range r.typing {
		ids = append(ids, id)
	}
	return ids
}

// Activity returns the rolling log, most recent first.
func (r *Reconciler) Activity() []ActivityEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ActivityEntry(nil), r.activity...)
}

// VisibleCursors returns the cursors to draw this frame: only entries
// within TTL whose owner is currently typing, with offsets clamped into
// [0, len(document)-1]. An empty document has no drawable position, so
// every cursor is suppressed for that frame.
func (r *Reconciler) VisibleCursors() []RemoteCursor {
	r.mu.Lock()
	defer r.mu.Unlock()

	docLen := len(r.document)
	now := time.Now()

	out := make([]RemoteCursor, 0, len(r.cursors))
	for id, e := range r.cursors {
		if _, typing := r.typing[id]; !typing {
			continue
		}
		if now.Sub(e.cursor.ReceivedAt) >= r.cursorTTL {
			continue
		}
		if docLen == 0 {
			continue
		}

		c := e.cursor
		if c.CursorPos < 0 {
			c.CursorPos = 0
		}
		if c.CursorPos > docLen-1 {
			c.CursorPos = docLen - 1
		}
		out = append(out, c)
	}
	return out
}

// Close cancels every pending timer. Apply calls after Close no longer
// schedule evictions.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for _, e := range r.cursors {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	for _, e := range r.typing {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	r.cursors = make(map[string]*cursorEntry)
	r.typing = make(map[string]*typingEntry)
}

func (r *Reconciler) evictCursor(id string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.cursors[id]; ok && e.gen == gen {
		delete(r.cursors, id)
	}
}

func (r *Reconciler) evictTyping(id string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.typing[id]; ok && e.gen == gen {
		delete(r.typing, id)
	}
}
