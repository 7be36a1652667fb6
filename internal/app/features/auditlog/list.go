// internal/app/features/auditlog/list.go
package auditlog

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	apierr "github.com/dalemusser/portalauthz/internal/app/features/errors"
	"github.com/dalemusser/portalauthz/internal/app/store/audit"
	"github.com/dalemusser/portalauthz/internal/app/system/auth"
	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"github.com/dalemusser/portalauthz/internal/domain/models"
)

const (
	pageSize = 50
	maxLimit = 500
)

type listResponse struct {
	Records []models.AuditRecord `json:"records"`
	Page    int                  `json:"page"`
	Limit   int64                `json:"limit"`
}

// ServeList handles GET /admin/audit.
//
// Query parameters: target, actor, operation, start_date and end_date
// (YYYY-MM-DD, end inclusive), page, limit. Newest records first.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := int64(pageSize)
	if s := strings.TrimSpace(q.Get("limit")); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 1 {
			apierr.Render(w, r, h.Log, authz.NewError(authz.KindInvalidInput, "limit must be a positive integer", err))
			return
		}
		limit = min(n, maxLimit)
	}
	page := 1
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}

	f := audit.QueryFilter{
		TargetID:  strings.TrimSpace(q.Get("target")),
		ActorID:   strings.TrimSpace(q.Get("actor")),
		Operation: strings.TrimSpace(q.Get("operation")),
		Limit:     limit,
		Offset:    int64(page-1) * limit,
	}
	if s := strings.TrimSpace(q.Get("start_date")); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			apierr.Render(w, r, h.Log, authz.NewError(authz.KindInvalidInput, "start_date must be YYYY-MM-DD", err))
			return
		}
		f.StartTime = &t
	}
	if s := strings.TrimSpace(q.Get("end_date")); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			apierr.Render(w, r, h.Log, authz.NewError(authz.KindInvalidInput, "end_date must be YYYY-MM-DD", err))
			return
		}
		endOfDay := t.Add(24*time.Hour - time.Nanosecond)
		f.EndTime = &endOfDay
	}

	recs, err := h.Audit.AuditLog(r.Context(), auth.CurrentPrincipalID(r), f)
	if err != nil {
		apierr.Render(w, r, h.Log, err)
		return
	}
	if recs == nil {
		recs = []models.AuditRecord{}
	}
	apierr.JSON(w, http.StatusOK, listResponse{Records: recs, Page: page, Limit: limit})
}
