package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"collabpad/internal/client"
	"collabpad/internal/protocol"
)

// A headless participant: joins a room, prints what the room does and
// optionally drops an activity note. Useful for poking at a running
// server without a browser.
func main() {
	serverURL := flag.String("server", "http://localhost:4000", "server base URL")
	room := flag.String("room", "", "room id (empty for the default room)")
	name := flag.String("name", "Anonymous", "display name")
	note := flag.String("note", "", "activity note to send after joining")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := client.Dial(ctx, *serverURL, *room, *name, "")
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer c.Close()

	c.OnEvent = func(env *protocol.Envelope) {
		switch env.Type {
		case protocol.EventContent:
			fmt.Printf("document: %q\n", c.Reconciler().Document())
		case protocol.EventConnected, protocol.EventDisconnected:
			users := c.Reconciler().Participants()
			fmt.Printf("participants: %d\n", len(users))
		case protocol.EventTyping:
			fmt.Printf("typing: %v\n", c.Reconciler().TypingUsers())
		case protocol.EventActivity:
			if entries := c.Reconciler().Activity(); len(entries) > 0 {
				e := entries[0]
				fmt.Printf("activity: %s %s\n", e.User, e.Change)
			}
		}
	}

	if *note != "" {
		if err := c.SendActivity(*name, *note); err != nil {
			log.Printf("⚠️  Failed to send note: %v", err)
		}
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("connection closed: %v", err)
	}
}
