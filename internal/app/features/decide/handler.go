// internal/app/features/decide/handler.go
package decide

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	apierr "github.com/dalemusser/portalauthz/internal/app/features/errors"
	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"go.uber.org/zap"
)

// Decider is the authorization resolver.
type Decider interface {
	Decide(ctx context.Context, req authz.Request) (authz.Decision, error)
}

// Handler serves decisions to resource services. Callers authenticate with
// a shared bearer token, not a user session.
type Handler struct {
	Resolver Decider
	Token    string
	Log      *zap.Logger
}

// NewHandler constructs a decide Handler. An empty token disables the
// endpoint.
func NewHandler(resolver Decider, token string, logger *zap.Logger) *Handler {
	return &Handler{Resolver: resolver, Token: token, Log: logger}
}

type decideRequest struct {
	PrincipalID     string `json:"principal_id"`
	Capability      string `json:"capability"`
	ResourceOwnerID string `json:"resource_owner_id,omitempty"`
	OrganizationID  string `json:"organization_id,omitempty"`
}

type decideResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// ServeDecide handles POST /authz/decide.
//
//	→ { "principal_id":"…", "capability":"event_management", "resource_owner_id":"…" }
//	← { "allowed":false, "reason":"insufficient-role", "message":"…" }
//
// A deny is a 200 with allowed=false. Unknown principals are 404 and
// store or provider failures 503.
func (h *Handler) ServeDecide(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		apierr.JSON(w, http.StatusUnauthorized, apierr.Body{Error: "invalid or missing service token", Kind: "unauthenticated"})
		return
	}

	var req decideRequest
	if err := apierr.DecodeJSON(w, r, &req); err != nil {
		apierr.Render(w, r, h.Log, err)
		return
	}
	if strings.TrimSpace(req.Capability) == "" {
		apierr.Render(w, r, h.Log, authz.NewError(authz.KindInvalidInput, "capability is required", nil))
		return
	}

	d, err := h.Resolver.Decide(r.Context(), authz.Request{
		PrincipalID:     strings.TrimSpace(req.PrincipalID),
		Capability:      strings.TrimSpace(req.Capability),
		ResourceOwnerID: strings.TrimSpace(req.ResourceOwnerID),
		OrganizationID:  strings.TrimSpace(req.OrganizationID),
	})
	if err != nil {
		apierr.Render(w, r, h.Log, err)
		return
	}

	resp := decideResponse{Allowed: d.Allowed, Reason: d.Reason}
	if !d.Allowed {
		resp.Message = d.Message(req.Capability)
	}
	apierr.JSON(w, http.StatusOK, resp)
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.Token == "" {
		return false
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(h.Token)) == 1
}
