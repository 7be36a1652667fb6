// internal/app/features/principals/mutate.go
package principals

import (
	"context"
	"net/http"

	apierr "github.com/dalemusser/portalauthz/internal/app/features/errors"
	"github.com/dalemusser/portalauthz/internal/app/system/auth"
	"github.com/dalemusser/portalauthz/internal/app/system/principaladmin"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type mutateFunc func(ctx context.Context, actorID, targetID string, version int64) (models.Principal, error)

// mutate runs fn once when the caller pinned a version, and retries on
// Conflict when it did not.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, expectedVersion int64, fn mutateFunc) {
	actorID := auth.CurrentPrincipalID(r)
	targetID := chi.URLParam(r, "id")

	var (
		p   models.Principal
		err error
	)
	if expectedVersion > 0 {
		p, err = fn(r.Context(), actorID, targetID, expectedVersion)
	} else {
		p, err = principaladmin.WithRetry(r.Context(), h.Retries, func(ctx context.Context) (models.Principal, error) {
			return fn(ctx, actorID, targetID, 0)
		})
	}
	if err != nil {
		apierr.Render(w, r, h.Log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, p)
}

// ServeSetRoles handles PUT /admin/principals/{id}/roles.
func (h *Handler) ServeSetRoles(w http.ResponseWriter, r *http.Request) {
	var req rolesRequest
	if err := apierr.DecodeJSON(w, r, &req); err != nil {
		apierr.Render(w, r, h.Log, err)
		return
	}
	h.mutate(w, r, req.ExpectedVersion, func(ctx context.Context, actor, target string, v int64) (models.Principal, error) {
		return h.Admin.SetRoles(ctx, actor, target, req.Roles, v)
	})
}

// ServeSetStatus handles PUT /admin/principals/{id}/status.
func (h *Handler) ServeSetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := apierr.DecodeJSON(w, r, &req); err != nil {
		apierr.Render(w, r, h.Log, err)
		return
	}
	h.mutate(w, r, req.ExpectedVersion, func(ctx context.Context, actor, target string, v int64) (models.Principal, error) {
		return h.Admin.SetStatus(ctx, actor, target, req.Status, v)
	})
}

// ServeSetOverrides handles PUT /admin/principals/{id}/overrides.
func (h *Handler) ServeSetOverrides(w http.ResponseWriter, r *http.Request) {
	var req overridesRequest
	if err := apierr.DecodeJSON(w, r, &req); err != nil {
		apierr.Render(w, r, h.Log, err)
		return
	}
	h.mutate(w, r, req.ExpectedVersion, func(ctx context.Context, actor, target string, v int64) (models.Principal, error) {
		return h.Admin.SetOverrides(ctx, actor, target, req.Overrides, v)
	})
}

// ServeSetMemberships handles PUT /admin/principals/{id}/memberships.
func (h *Handler) ServeSetMemberships(w http.ResponseWriter, r *http.Request) {
	var req membershipsRequest
	if err := apierr.DecodeJSON(w, r, &req); err != nil {
		apierr.Render(w, r, h.Log, err)
		return
	}
	h.mutate(w, r, req.ExpectedVersion, func(ctx context.Context, actor, target string, v int64) (models.Principal, error) {
		return h.Admin.SetMemberships(ctx, actor, target, req.Memberships, v)
	})
}

// ServeApprove handles POST /admin/principals/{id}/approve.
func (h *Handler) ServeApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := apierr.DecodeJSON(w, r, &req); err != nil {
		apierr.Render(w, r, h.Log, err)
		return
	}
	h.mutate(w, r, req.ExpectedVersion, func(ctx context.Context, actor, target string, v int64) (models.Principal, error) {
		return h.Admin.Approve(ctx, actor, target, req.Role, req.Reason, v)
	})
}

// ServeDeny handles POST /admin/principals/{id}/deny.
func (h *Handler) ServeDeny(w http.ResponseWriter, r *http.Request) {
	var req denyRequest
	if err := apierr.DecodeJSON(w, r, &req); err != nil {
		apierr.Render(w, r, h.Log, err)
		return
	}
	h.mutate(w, r, req.ExpectedVersion, func(ctx context.Context, actor, target string, v int64) (models.Principal, error) {
		return h.Admin.Deny(ctx, actor, target, req.Reason, v)
	})
}

// ServeSyncClaims handles POST /admin/claims/sync.
func (h *Handler) ServeSyncClaims(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Admin.SyncClaims(r.Context(), auth.CurrentPrincipalID(r))
	if err != nil {
		apierr.Render(w, r, h.Log, err)
		return
	}
	if rep.Failed > 0 {
		h.Log.Warn("claims resync had failures", zap.Int("failed", rep.Failed))
	}
	apierr.JSON(w, http.StatusOK, rep)
}
