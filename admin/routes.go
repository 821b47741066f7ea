// Package admin exposes the connection cache and codec diagnostics over HTTP.
package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// RegisterRoutes mounts the admin API under /admin on mux
func RegisterRoutes(mux *http.ServeMux, handlers *AdminHandlers, secret string) {
	r := chi.NewRouter()

	r.Route("/connections", func(r chi.Router) {
		r.Use(AuthMiddleware(secret))
		r.Get("/", handlers.handleListConnections)
		r.Get("/stats", handlers.handleConnectionStats)
		r.Post("/sweep", handlers.handleSweep)
	})

	r.Get("/codec/flags/{flags}", handlers.handleFlags)

	// Mount chi router under /admin
	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", r))

	log.Info().Msg("Admin endpoints enabled at /admin/*")
}
