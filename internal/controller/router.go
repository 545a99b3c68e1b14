package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(c.requestIdMw)
	r.Use(c.requestLoggingMw)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", c.metrics.Handler(c.refreshConnections))

	r.Route("/api/watch-parties", func(r chi.Router) {
		r.Post("/", c.createParty)
		r.Get("/{room-id}", c.getParty)
	})
	r.Get("/ws/rooms/{room-id}", c.relayRoom)

	return r
}
