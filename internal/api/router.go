package api

import (
	"net/http"

	"collabpad/internal/middleware"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler) *mux.Router {
	r := mux.NewRouter()

	// Middleware order: tracing first, then recovery, then CORS.
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.Health).Methods("GET")
	api.HandleFunc("/rooms/{room}/document", h.GetRoomDocument).Methods("GET")
	api.HandleFunc("/rooms/{room}/participants", h.GetRoomParticipants).Methods("GET")
	api.HandleFunc("/rooms/{room}/activity", h.GetRoomActivity).Methods("GET")

	// WebSocket routes. The bare /ws route joins the default room.
	r.HandleFunc("/ws", h.ws.HandleRoomConnection)
	r.HandleFunc("/ws/{room}", h.ws.HandleRoomConnection)

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("checking server"))
	}).Methods("GET")

	return r
}
