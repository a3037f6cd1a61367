package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collabpad/internal/api"
	"collabpad/internal/config"
	"collabpad/internal/db"
	"collabpad/internal/repository"
	"collabpad/internal/session"
	"collabpad/internal/telemetry"
)

func main() {
	log.Println("🚀 Starting collabpad server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Tracing first so connection handling is covered end to end.
	jaegerShutdown, err := telemetry.InitJaeger("collabpad", cfg.JaegerEndpoint)
	if err != nil {
		log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	// The archive database is optional; rooms run fully in memory
	// without it.
	var archive session.Archiver
	var notes api.ActivityArchive
	if cfg.SnapshotPersistence {
		database, err := db.NewGorm(cfg)
		if err != nil {
			log.Fatalf("❌ Failed to connect to database: %v", err)
		}
		defer database.Close()
		repo := repository.NewArchiveRepository(database.DB)
		archive = repo
		notes = repo
	}

	hub := session.NewHub(archive, cfg.OutboxSize)
	wsHandler := session.NewHandler(hub, cfg.DefaultRoom)
	handler := api.NewHandler(hub, wsHandler, notes)
	router := api.SetupRoutes(handler)

	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Server listening on http://%s", addr)
		log.Printf("   WS     /ws                          - join default room (%s)", cfg.DefaultRoom)
		log.Printf("   WS     /ws/{room}                   - join a room")
		log.Printf("   GET    /api/rooms/{room}/document   - current document")
		log.Printf("   GET    /api/rooms/{room}/activity   - archived activity notes")
		log.Printf("   GET    /api/health                  - liveness")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	hub.Shutdown()

	log.Println("✓ Server shutdown complete")
}
