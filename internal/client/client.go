// Package client is a headless participant: it dials the session
// server, feeds every inbound event into a presence.Reconciler and
// exposes the outgoing half of the protocol.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"collabpad/internal/presence"
	"collabpad/internal/protocol"

	"github.com/gorilla/websocket"
)

// ErrDisconnected is returned by every send once the connection is
// down. There is no automatic reconnect; the caller dials again.
var ErrDisconnected = errors.New("client: disconnected")

type Client struct {
	conn       *websocket.Conn
	reconciler *presence.Reconciler

	name  string
	color string

	mu           sync.Mutex
	disconnected bool

	// OnEvent, when set before Run, observes every decoded inbound
	// envelope after the reconciler has applied it.
	OnEvent func(env *protocol.Envelope)
}

// Dial connects to a room. serverURL is the http(s) base address of the
// server; name and color may be empty to accept the server defaults.
func Dial(ctx context.Context, serverURL, room, name, color string, opts ...presence.Option) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("client: bad server url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}

	u.Path = "/ws"
	if room != "" {
		u.Path = "/ws/" + room
	}
	q := u.Query()
	if name != "" {
		q.Set("name", name)
	}
	if color != "" {
		q.Set("color", color)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", u.String(), err)
	}

	return &Client{
		conn:       conn,
		reconciler: presence.New("", opts...),
		name:       name,
		color:      color,
	}, nil
}

// Reconciler exposes the derived presence state.
func (c *Client) Reconciler() *presence.Reconciler {
	return c.reconciler
}

// Run reads frames until the connection drops or ctx is cancelled.
// On exit the client is marked disconnected, outgoing sends are
// disabled and all pending presence timers are cancelled.
func (c *Client) Run(ctx context.Context) error {
	defer func() {
		c.mu.Lock()
		c.disconnected = true
		c.mu.Unlock()
		c.reconciler.Close()
		c.conn.Close()
	}()

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, raw, err := c.conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- raw:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case raw := <-frames:
			env, err := protocol.DecodeEnvelope(raw)
			if err != nil {
				continue // malformed frame, drop
			}
			if err := c.reconciler.Apply(env); err != nil {
				continue
			}
			if c.OnEvent != nil {
				c.OnEvent(env)
			}
		}
	}
}

// SendUpdate replaces the shared document wholesale.
func (c *Client) SendUpdate(content string) error {
	return c.send(protocol.EventUpdate, &protocol.UpdatePayload{Content: content})
}

// SendCursor reports the local caret offset.
func (c *Client) SendCursor(pos int) error {
	return c.send(protocol.EventCursor, &protocol.CursorPayload{
		Name:      c.name,
		Color:     c.color,
		CursorPos: pos,
	})
}

// SendTyping emits an ephemeral typing ping.
func (c *Client) SendTyping() error {
	return c.send(protocol.EventTyping, nil)
}

// SendActivity emits a free-form activity note.
func (c *Client) SendActivity(user, change string) error {
	return c.send(protocol.EventActivity, &protocol.ActivityPayload{User: user, Change: change})
}

// Disconnected reports whether the connection has gone down.
func (c *Client) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// Close tears the connection down.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) send(eventType string, payload any) error {
	frame, err := protocol.Encode(eventType, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnected {
		return ErrDisconnected
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.disconnected = true
		return fmt.Errorf("client: %w: %v", ErrDisconnected, err)
	}
	return nil
}
