package logout_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalemusser/portalauthz/internal/app/features/logout"
	"github.com/dalemusser/portalauthz/internal/app/store/sessions"
	"github.com/dalemusser/portalauthz/internal/app/system/auth"
	"go.uber.org/zap"
)

type recordingCloser struct {
	id, reason string
}

func (c *recordingCloser) Close(ctx context.Context, id, reason string) error {
	c.id, c.reason = id, reason
	return nil
}

func newTestHandler(t *testing.T) (*logout.Handler, *auth.SessionManager, *recordingCloser) {
	t.Helper()
	sm, err := auth.NewSessionManager("test-session-key-for-testing-only-32b", "test-session", "", 24*time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	closer := &recordingCloser{}
	return logout.NewHandler(sm, closer, zap.NewNop()), sm, closer
}

func TestServeLogout_ClosesServerSession(t *testing.T) {
	h, sm, closer := newTestHandler(t)

	login := httptest.NewRecorder()
	if err := sm.SignIn(login, httptest.NewRequest("GET", "/", nil), "p1", "sess-1"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	req := httptest.NewRequest("GET", "/logout", nil)
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeLogout(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if closer.id != "sess-1" || closer.reason != sessions.EndLogout {
		t.Errorf("closed %q with %q, want sess-1 / %s", closer.id, closer.reason, sessions.EndLogout)
	}

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == "test-session" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("session cookie not cleared")
	}
}

func TestServeLogout_NoSession(t *testing.T) {
	h, _, closer := newTestHandler(t)

	req := httptest.NewRequest("GET", "/logout", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	h.ServeLogout(rec, req)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Errorf("got %d to %q, want 303 to /", rec.Code, rec.Header().Get("Location"))
	}
	if closer.id != "" {
		t.Errorf("closed session %q without a cookie", closer.id)
	}
}
