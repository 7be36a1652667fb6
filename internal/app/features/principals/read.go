// internal/app/features/principals/read.go
package principals

import (
	"net/http"
	"strconv"
	"strings"

	apierr "github.com/dalemusser/portalauthz/internal/app/features/errors"
	"github.com/dalemusser/portalauthz/internal/app/system/auth"
	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"github.com/dalemusser/portalauthz/internal/app/system/normalize"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

const maxListLimit = 500

// ServeGet handles GET /admin/principals/{id}.
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.Admin.Principal(r.Context(), auth.CurrentPrincipalID(r), chi.URLParam(r, "id"))
	if err != nil {
		apierr.Render(w, r, h.Log, err)
		return
	}
	apierr.JSON(w, http.StatusOK, p)
}

// ServeList handles GET /admin/principals?status=pending&limit=50. The
// status defaults to pending, which is the approval queue.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	status := normalize.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = models.StatusPending
	}

	var limit int64
	if s := strings.TrimSpace(r.URL.Query().Get("limit")); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			apierr.Render(w, r, h.Log, authz.NewError(authz.KindInvalidInput, "limit must be a non-negative integer", err))
			return
		}
		limit = min(n, maxListLimit)
	}

	list, err := h.Admin.ListByStatus(r.Context(), auth.CurrentPrincipalID(r), status, limit)
	if err != nil {
		apierr.Render(w, r, h.Log, err)
		return
	}
	if list == nil {
		list = []models.Principal{}
	}
	apierr.JSON(w, http.StatusOK, listResponse{Principals: list, Count: len(list)})
}
