package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"collabpad/internal/models"
	"collabpad/internal/session"

	"github.com/gorilla/mux"
)

// ActivityArchive reads back persisted activity notes. Nil when
// snapshot persistence is disabled.
type ActivityArchive interface {
	RecentNotes(ctx context.Context, roomID string, limit int) ([]*models.ActivityNote, error)
}

// Handler serves the small REST surface next to the WebSocket routes.
type Handler struct {
	hub     *session.Hub
	ws      *session.Handler
	archive ActivityArchive
}

func NewHandler(hub *session.Hub, ws *session.Handler, archive ActivityArchive) *Handler {
	return &Handler{hub: hub, ws: ws, archive: archive}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// GetRoomDocument returns the current document body for a live room.
func (h *Handler) GetRoomDocument(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room"]

	room, ok := h.hub.Get(roomID)
	if !ok {
		http.Error(w, `{"error":"room not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"room":    roomID,
		"content": room.Document(),
	})
}

// GetRoomActivity returns archived activity notes for a room, newest
// first. Unlike the live endpoints it works for rooms already torn
// down; it answers 404 only when persistence is disabled.
func (h *Handler) GetRoomActivity(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room"]

	if h.archive == nil {
		http.Error(w, `{"error":"activity archive disabled"}`, http.StatusNotFound)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	notes, err := h.archive.RecentNotes(r.Context(), roomID, limit)
	if err != nil {
		http.Error(w, `{"error":"failed to load activity notes"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"room":  roomID,
		"notes": notes,
	})
}

// GetRoomParticipants returns the registry snapshot for a live room.
func (h *Handler) GetRoomParticipants(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room"]

	room, ok := h.hub.Get(roomID)
	if !ok {
		http.Error(w, `{"error":"room not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"room":  roomID,
		"users": room.Participants(),
	})
}
