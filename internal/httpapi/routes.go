package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gomoku-arena/arena-backend/internal/ws"
)

func SetupRoutes(a *API) http.Handler {
	r := chi.NewRouter()

	// Public routes
	r.Post("/rooms", a.CreateRoom)
	r.Get("/rooms/{id}", a.GetRoom)
	r.Post("/rooms/{id}/resume", a.ResumeRoom)
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(a.Hub))
	return r
}
