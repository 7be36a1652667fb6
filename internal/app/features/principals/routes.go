// internal/app/features/principals/routes.go
package principals

import "github.com/go-chi/chi/v5"

// Routes returns a subrouter mounted under /admin/principals. The caller
// wraps it in RequireSignedIn and the per-actor rate limiter.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeList)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.ServeGet)
		r.Put("/roles", h.ServeSetRoles)
		r.Put("/status", h.ServeSetStatus)
		r.Put("/overrides", h.ServeSetOverrides)
		r.Put("/memberships", h.ServeSetMemberships)
		r.Post("/approve", h.ServeApprove)
		r.Post("/deny", h.ServeDeny)
	})
	return r
}

// ClaimsRoutes returns a subrouter mounted under /admin/claims.
func ClaimsRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/sync", h.ServeSyncClaims)
	return r
}
