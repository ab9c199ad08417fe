package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"collabrelay/internal/api"
)

// New wires the relay's WebSocket endpoint and the read-only REST surface.
func New(h *api.Handlers, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST"},
		AllowCredentials: true,
	}))

	r.Get("/api/health", h.Health)
	r.Get("/api/documents/{id}", h.GetDocument)
	r.Get("/api/chat/{roomId}/messages", h.RoomMessages)
	r.Get("/api/chat/{roomId}/users", h.RoomUsers)

	r.Get("/ws", h.RelayWS)

	return r
}
