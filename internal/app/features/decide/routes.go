// internal/app/features/decide/routes.go
package decide

import "github.com/go-chi/chi/v5"

// Routes returns a subrouter mounted under /authz.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/decide", h.ServeDecide)
	return r
}
