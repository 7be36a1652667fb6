// internal/app/features/me/routes.go
package me

import "github.com/go-chi/chi/v5"

// Routes returns a subrouter mounted under /api/me.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeMe)
	return r
}
