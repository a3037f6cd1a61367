package session

import (
	"context"
	"errors"
	"log"
	"time"

	"collabpad/internal/middleware"
	"collabpad/internal/models"
	"collabpad/internal/protocol"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client is one WebSocket connection bound to a room participant. A
// read pump and a write pump run per connection so a slow reader never
// blocks writes and vice versa.
type Client struct {
	hub         *Hub
	room        *Room
	participant *models.Participant
	conn        *websocket.Conn
	outbox      chan []byte
}

// ReadPump consumes frames from the connection and applies them to the
// room. On any read error the participant is removed from the room
// before the connection closes, so no further events from this
// connection can touch room state.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Leave(c.room.ID, c.participant.ID)
		c.conn.Close()
		log.Printf("User disconnected: %s", c.participant.Name)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		c.dispatch(ctx, raw)
	}
}

// dispatch decodes one inbound frame and routes it to the room. A
// malformed frame is dropped; the connection stays up.
func (c *Client) dispatch(ctx context.Context, raw []byte) {
	env, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		log.Printf("Dropping frame from %s: %v", c.participant.ID, err)
		return
	}

	msgCtx, span := middleware.StartSpan(ctx, "WebSocket.ProcessMessage",
		attribute.String("participant.id", c.participant.ID),
		attribute.String("room.id", c.room.ID),
		attribute.String("event.type", env.Type),
	)
	defer span.End()

	switch env.Type {
	case protocol.EventUpdate:
		var p protocol.UpdatePayload
		if err := env.Bind(&p); err != nil {
			c.drop(msgCtx, err)
			return
		}
		c.room.ApplyUpdate(c.participant.ID, p.Content)

	case protocol.EventCursor:
		var p protocol.CursorPayload
		if err := env.Bind(&p); err != nil {
			c.drop(msgCtx, err)
			return
		}
		c.room.UpdateCursor(c.participant.ID, p)

	case protocol.EventTyping:
		c.room.Typing(c.participant.ID)

	case protocol.EventActivity:
		var p protocol.ActivityPayload
		if err := env.Bind(&p); err != nil {
			c.drop(msgCtx, err)
			return
		}
		if p.User == "" {
			c.drop(msgCtx, errors.New("user-activity missing user"))
			return
		}
		c.room.Activity(c.participant.ID, p)

	default:
		c.drop(msgCtx, errors.New("unknown event type "+env.Type))
	}
}

func (c *Client) drop(ctx context.Context, err error) {
	log.Printf("Dropping frame from %s: %v", c.participant.ID, err)
	middleware.AddSpanError(ctx, err)
}

// WritePump drains the outbox onto the connection and keeps the peer
// alive with pings. A closed outbox means the room removed this
// participant; the pump sends a close frame and exits.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.outbox:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

			// Flush anything already queued behind this frame.
			n := len(c.outbox)
			for i := 0; i < n; i++ {
				frame, ok := <-c.outbox
				if !ok {
					c.conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
