package presence

import (
	"fmt"
	"testing"
	"time"

	"collabpad/internal/models"
	"collabpad/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cursorFrom(id string, pos int) protocol.CursorPayload {
	return protocol.CursorPayload{ID: id, Name: "Remote", Color: "hsl(90, 70%, 70%)", CursorPos: pos}
}

func visibleIDs(r *Reconciler) []string {
	cursors := r.VisibleCursors()
	ids := make([]string, 0, len(cursors))
	for _, c := range cursors {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestCursorVisibleOnlyWhileTyping(t *testing.T) {
	r := New("self")
	defer r.Close()

	r.ApplyContent(protocol.ContentPayload{Content: "<p>hello</p>"})

	// Cursor without a typing signal: tracked but never rendered.
	r.ApplyCursor(cursorFrom("a", 2))
	assert.Empty(t, visibleIDs(r))

	r.ApplyTyping("a")
	assert.Equal(t, []string{"a"}, visibleIDs(r))
}

func TestCursorExpiresAfterTTL(t *testing.T) {
	r := New("self", WithCursorTTL(40*time.Millisecond), WithTypingTTL(time.Minute))
	defer r.Close()

	r.ApplyContent(protocol.ContentPayload{Content: "<p>hello</p>"})
	r.ApplyTyping("a")
	r.ApplyCursor(cursorFrom("a", 2))
	require.Equal(t, []string{"a"}, visibleIDs(r))

	assert.Eventually(t, func() bool {
		return len(visibleIDs(r)) == 0
	}, time.Second, 5*time.Millisecond, "cursor should expire without a refresh")
}

func TestCursorRefreshRestartsTTL(t *testing.T) {
	r := New("self", WithCursorTTL(60*time.Millisecond), WithTypingTTL(time.Minute))
	defer r.Close()

	r.ApplyContent(protocol.ContentPayload{Content: "<p>hello</p>"})
	r.ApplyTyping("a")

	// Refresh at a cadence well under the TTL; the entry must stay
	// alive the whole time.
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		r.ApplyCursor(cursorFrom("a", 2))
		require.Equal(t, []string{"a"}, visibleIDs(r))
		time.Sleep(15 * time.Millisecond)
	}
}

func TestTypingExpiresAfterTTL(t *testing.T) {
	r := New("self", WithCursorTTL(time.Minute), WithTypingTTL(40*time.Millisecond))
	defer r.Close()

	r.ApplyContent(protocol.ContentPayload{Content: "<p>hello</p>"})
	r.ApplyCursor(cursorFrom("a", 2))
	r.ApplyTyping("a")
	require.Equal(t, []string{"a"}, visibleIDs(r))

	// The cursor entry is still within its own TTL, but once the typing
	// indicator decays the cursor must stop rendering.
	assert.Eventually(t, func() bool {
		return len(visibleIDs(r)) == 0
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, r.TypingUsers())
}

func TestTypingRefreshCancelsPendingRemoval(t *testing.T) {
	r := New("self", WithTypingTTL(60*time.Millisecond))
	defer r.Close()

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		r.ApplyTyping("a")
		require.Equal(t, []string{"a"}, r.TypingUsers())
		time.Sleep(15 * time.Millisecond)
	}
}

func TestDisconnectEvictsEverythingImmediately(t *testing.T) {
	r := New("self", WithCursorTTL(time.Hour), WithTypingTTL(time.Hour))
	defer r.Close()

	r.ApplyContent(protocol.ContentPayload{Content: "<p>hello</p>"})
	r.ApplyConnected(protocol.ConnectedPayload{ID: "a", Name: "Alice", Color: "red"})
	r.ApplyCursor(cursorFrom("a", 2))
	r.ApplyTyping("a")
	require.Equal(t, []string{"a"}, visibleIDs(r))

	r.ApplyDisconnected("a")

	// No TTL wait: registry, cursor and typing entry all gone at once.
	assert.Empty(t, r.Participants())
	assert.Empty(t, visibleIDs(r))
	assert.Empty(t, r.TypingUsers())
}

func TestContentReplacesViewWholesale(t *testing.T) {
	r := New("self")
	defer r.Close()

	r.ApplyConnected(protocol.ConnectedPayload{ID: "old", Name: "Old"})
	r.ApplyContent(protocol.ContentPayload{
		Content: "<p>new</p>",
		Users: []models.Participant{
			{ID: "a", Name: "Alice"},
			{ID: "b", Name: "Bob"},
		},
	})

	assert.Equal(t, "<p>new</p>", r.Document())
	require.Len(t, r.Participants(), 2)
}

func TestSelfEventsIgnored(t *testing.T) {
	r := New("self", WithCursorTTL(time.Hour), WithTypingTTL(time.Hour))
	defer r.Close()

	r.ApplyContent(protocol.ContentPayload{Content: "<p>hello</p>"})
	r.ApplyCursor(cursorFrom("self", 2))
	r.ApplyTyping("self")
	r.ApplyConnected(protocol.ConnectedPayload{ID: "self", Name: "Me"})

	assert.Empty(t, visibleIDs(r))
	assert.Empty(t, r.TypingUsers())
	assert.Empty(t, r.Participants())
}

func TestActivityLogCapped(t *testing.T) {
	r := New("self")
	defer r.Close()

	for i := 0; i < ActivityLogCap+5; i++ {
		r.ApplyActivity(protocol.ActivityPayload{User: "Alice", Change: fmt.Sprintf("edit %d", i)})
	}

	log := r.Activity()
	require.Len(t, log, ActivityLogCap)
	// Most recent first; the oldest five dropped silently.
	assert.Equal(t, "edit 14", log[0].Change)
	assert.Equal(t, "edit 5", log[len(log)-1].Change)
}

func TestVisibleCursorsClampOffsets(t *testing.T) {
	r := New("self", WithCursorTTL(time.Hour), WithTypingTTL(time.Hour))
	defer r.Close()

	r.ApplyContent(protocol.ContentPayload{Content: "abcde"}) // length 5

	r.ApplyTyping("low")
	r.ApplyCursor(cursorFrom("low", -3))
	r.ApplyTyping("high")
	r.ApplyCursor(cursorFrom("high", 99))

	cursors := r.VisibleCursors()
	require.Len(t, cursors, 2)
	for _, c := range cursors {
		switch c.ID {
		case "low":
			assert.Equal(t, 0, c.CursorPos)
		case "high":
			assert.Equal(t, 4, c.CursorPos)
		}
	}
}

func TestEmptyDocumentSuppressesCursors(t *testing.T) {
	r := New("self", WithCursorTTL(time.Hour), WithTypingTTL(time.Hour))
	defer r.Close()

	r.ApplyTyping("a")
	r.ApplyCursor(cursorFrom("a", 0))

	// No drawable position exists in an empty document; the cursor is
	// suppressed for the frame rather than erroring.
	assert.Empty(t, r.VisibleCursors())
}

func TestCloseCancelsTimers(t *testing.T) {
	r := New("self", WithCursorTTL(10*time.Millisecond), WithTypingTTL(10*time.Millisecond))

	r.ApplyContent(protocol.ContentPayload{Content: "<p>hello</p>"})
	r.ApplyTyping("a")
	r.ApplyCursor(cursorFrom("a", 1))

	r.Close()

	// Applies after Close are inert.
	r.ApplyTyping("b")
	r.ApplyCursor(cursorFrom("b", 1))
	assert.Empty(t, r.TypingUsers())
	assert.Empty(t, r.VisibleCursors())
}
