// internal/app/features/me/handler.go
package me

import (
	"context"
	"net/http"

	apierr "github.com/dalemusser/portalauthz/internal/app/features/errors"
	"github.com/dalemusser/portalauthz/internal/app/system/auth"
	"github.com/dalemusser/portalauthz/internal/app/system/roles"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"go.uber.org/zap"
)

// ClaimsSource resolves the claim set for a signed-in principal.
type ClaimsSource interface {
	ClaimsFor(ctx context.Context, principalID string) (models.ClaimSet, string, error)
}

// Handler serves the signed-in principal's own authorization view.
type Handler struct {
	Claims ClaimsSource
	Reg    *roles.Registry
	Log    *zap.Logger
}

// NewHandler creates a new me handler.
func NewHandler(claims ClaimsSource, reg *roles.Registry, logger *zap.Logger) *Handler {
	return &Handler{Claims: claims, Reg: reg, Log: logger}
}

type meResponse struct {
	IsAuthenticated bool     `json:"isAuthenticated"`
	PrincipalID     string   `json:"principal_id,omitempty"`
	Status          string   `json:"status,omitempty"`
	Roles           []string `json:"roles"`
	Capabilities    []string `json:"capabilities"`
	Source          string   `json:"source,omitempty"`

	roles.LegacyFlags
}

// ServeMe handles GET /api/me.
//
//	{ "isAuthenticated":true, "principal_id":"…", "status":"active",
//	  "roles":["volunteer"], "capabilities":[…], "source":"claims",
//	  "isAdmin":false, "isDenLeader":true, "isCubmaster":false }
//
// The legacy flags are derived from roles on every call and are false for
// principals whose status carries no entitlements.
func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	pid := auth.CurrentPrincipalID(r)
	if pid == "" {
		apierr.JSON(w, http.StatusOK, meResponse{Roles: []string{}, Capabilities: []string{}})
		return
	}

	cs, path, err := h.Claims.ClaimsFor(r.Context(), pid)
	if err != nil {
		apierr.Render(w, r, h.Log, err)
		return
	}

	resp := meResponse{
		IsAuthenticated: true,
		PrincipalID:     pid,
		Status:          cs.Status,
		Roles:           nonNil(cs.Roles),
		Capabilities:    nonNil(cs.Capabilities),
		Source:          path,
	}
	if models.IsEntitledStatus(cs.Status) {
		resp.LegacyFlags = h.Reg.FlagsFor(cs.Roles...)
	}
	apierr.JSON(w, http.StatusOK, resp)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
