package session

import (
	"fmt"
	"log"
	"math/rand"
	"net/http"

	"collabpad/internal/middleware"
	"collabpad/internal/models"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: validate origin once the deployment origin is fixed
		return true
	},
}

// Handler upgrades HTTP requests to room WebSocket connections.
type Handler struct {
	hub         *Hub
	defaultRoom string
}

func NewHandler(hub *Hub, defaultRoom string) *Handler {
	return &Handler{hub: hub, defaultRoom: defaultRoom}
}

// HandleRoomConnection joins the caller to a room. Handshake metadata
// comes from the query string: name defaults to "Anonymous", color to a
// server-picked random-hue HSL string.
func (h *Handler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roomID := mux.Vars(r)["room"]
	if roomID == "" {
		roomID = h.defaultRoom
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = "Anonymous"
	}
	color := r.URL.Query().Get("color")
	if color == "" {
		color = fmt.Sprintf("hsl(%d, 70%%, 70%%)", rand.Intn(360))
	}

	ctx, span := middleware.StartSpan(ctx, "WebSocket.Connect",
		attribute.String("room.id", roomID),
		attribute.String("participant.name", name),
	)
	defer span.End()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		middleware.AddSpanError(ctx, err)
		return
	}

	participant := models.NewParticipant(name, color)
	outbox := make(chan []byte, h.hub.outboxSize)

	// Join queues the initial snapshot on the outbox before the write
	// pump starts, so the first frame the client sees is the current
	// document plus everyone already here.
	room := h.hub.Join(roomID, participant, outbox)

	client := &Client{
		hub:         h.hub,
		room:        room,
		participant: participant,
		conn:        conn,
		outbox:      outbox,
	}

	go client.WritePump(ctx)
	go client.ReadPump(ctx)

	log.Printf("User connected: %s (room %s, id %s)", name, roomID, participant.ID)
}
