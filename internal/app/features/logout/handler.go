// internal/app/features/logout/handler.go
package logout

import (
	"context"
	"net/http"
	"strings"

	"github.com/dalemusser/portalauthz/internal/app/store/sessions"
	"github.com/dalemusser/portalauthz/internal/app/system/auth"
	"github.com/dalemusser/portalauthz/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// SessionCloser ends a server-side session.
type SessionCloser interface {
	Close(ctx context.Context, id, reason string) error
}

type Handler struct {
	Log        *zap.Logger
	SessionMgr *auth.SessionManager
	Sessions   SessionCloser
}

func NewHandler(sessionMgr *auth.SessionManager, closer SessionCloser, logger *zap.Logger) *Handler {
	return &Handler{
		Log:        logger,
		SessionMgr: sessionMgr,
		Sessions:   closer,
	}
}

// ServeLogout handles GET /logout. The cookie is always cleared; the
// server-side session is closed when the cookie still names one.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.SessionMgr.SignOut(w, r)
	if err != nil {
		h.Log.Error("logout: save session", zap.Error(err))
	}

	if sessionID != "" && h.Sessions != nil {
		ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Store(), h.Log, "session close")
		defer cancel()
		if err := h.Sessions.Close(ctx, sessionID, sessions.EndLogout); err != nil {
			h.Log.Warn("logout: close server session",
				zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
