// internal/app/features/authgoogle/handler.go
package authgoogle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	apierr "github.com/dalemusser/portalauthz/internal/app/features/errors"
	"github.com/dalemusser/portalauthz/internal/app/store/oauthstate"
	"github.com/dalemusser/portalauthz/internal/app/store/sessions"
	"github.com/dalemusser/portalauthz/internal/app/system/auth"
	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"github.com/dalemusser/portalauthz/internal/app/system/ratelimit"
	"github.com/dalemusser/portalauthz/internal/app/system/timeouts"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// StateStore issues and consumes one-time OAuth state tokens.
type StateStore interface {
	Issue(ctx context.Context, returnURL string, ttl time.Duration) (string, error)
	Consume(ctx context.Context, state string) (returnURL string, valid bool, err error)
}

// Registrar finds the principal for a verified email, creating a pending
// one on first sign-in.
type Registrar interface {
	RegisterPending(ctx context.Context, email, displayName string) (models.Principal, bool, error)
}

// SessionCreator opens a server-side session.
type SessionCreator interface {
	Create(ctx context.Context, principalID, ip, userAgent, createdBy string) (sessions.Session, error)
}

// ClaimsPublisher projects and publishes claim sets.
type ClaimsPublisher interface {
	Project(p models.Principal) models.ClaimSet
	Publish(ctx context.Context, principalID string, cs models.ClaimSet) error
}

// UserInfo is the subset of Google's userinfo response we use.
type UserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// Handler handles Google OAuth sign-in.
type Handler struct {
	Log        *zap.Logger
	SessionMgr *auth.SessionManager
	States     StateStore
	Principals Registrar
	Sessions   SessionCreator
	Claims     ClaimsPublisher

	ClientID     string
	ClientSecret string
	RedirectURL  string // e.g. "https://auth.pack.org/auth/google/callback"

	// FetchUser exchanges an authorization code for the user's identity.
	// Tests replace it; the default talks to Google.
	FetchUser func(ctx context.Context, code string) (UserInfo, error)
}

// NewHandler creates a new Google OAuth handler.
func NewHandler(
	sessionMgr *auth.SessionManager,
	states StateStore,
	registrar Registrar,
	sess SessionCreator,
	claims ClaimsPublisher,
	clientID, clientSecret, baseURL string,
	logger *zap.Logger,
) *Handler {
	h := &Handler{
		Log:          logger,
		SessionMgr:   sessionMgr,
		States:       states,
		Principals:   registrar,
		Sessions:     sess,
		Claims:       claims,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  strings.TrimRight(baseURL, "/") + "/auth/google/callback",
	}
	h.FetchUser = h.fetchGoogleUser
	return h
}

func (h *Handler) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.ClientID,
		ClientSecret: h.ClientSecret,
		RedirectURL:  h.RedirectURL,
		Scopes: []string{
			"openid",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
}

// IsConfigured returns true if Google OAuth is configured.
func (h *Handler) IsConfigured() bool {
	return h.ClientID != "" && h.ClientSecret != ""
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/google                                                             |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	if !h.IsConfigured() {
		h.Log.Warn("Google OAuth not configured")
		apierr.Render(w, r, h.Log, authz.NewError(authz.KindUnavailable, "google sign-in is not configured", nil))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Store(), h.Log, "oauth state issue")
	defer cancel()

	state, err := h.States.Issue(ctx, safeReturn(r.URL.Query().Get("return")), oauthstate.DefaultTTL)
	if err != nil {
		h.Log.Error("failed to save OAuth state", zap.Error(err))
		apierr.Render(w, r, h.Log, authz.Unavailable("oauth state store", err))
		return
	}

	http.Redirect(w, r, h.oauth2Config().AuthCodeURL(state), http.StatusTemporaryRedirect)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/google/callback                                                    |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errParam := q.Get("error"); errParam != "" {
		h.Log.Warn("Google OAuth error",
			zap.String("error", errParam),
			zap.String("description", q.Get("error_description")))
		apierr.JSON(w, http.StatusUnauthorized, apierr.Body{Error: "google sign-in was denied", Kind: "unauthenticated"})
		return
	}

	sctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Store(), h.Log, "oauth state consume")
	returnURL, valid, err := h.States.Consume(sctx, q.Get("state"))
	cancel()
	if err != nil {
		h.Log.Error("failed to validate OAuth state", zap.Error(err))
		apierr.Render(w, r, h.Log, authz.Unavailable("oauth state store", err))
		return
	}
	if !valid {
		h.Log.Warn("invalid or expired OAuth state")
		apierr.Render(w, r, h.Log, authz.NewError(authz.KindInvalidInput, "invalid or expired sign-in state", nil))
		return
	}

	code := q.Get("code")
	if code == "" {
		apierr.Render(w, r, h.Log, authz.NewError(authz.KindInvalidInput, "missing authorization code", nil))
		return
	}

	pctx, pcancel := context.WithTimeout(r.Context(), timeouts.Provider())
	info, err := h.FetchUser(pctx, code)
	pcancel()
	if err != nil {
		h.Log.Error("failed to fetch Google user", zap.Error(err))
		apierr.Render(w, r, h.Log, authz.Unavailable("identity provider", err))
		return
	}
	if info.Email == "" || !info.EmailVerified {
		apierr.JSON(w, http.StatusUnauthorized, apierr.Body{Error: "google account email is not verified", Kind: "unauthenticated"})
		return
	}

	p, created, err := h.Principals.RegisterPending(r.Context(), info.Email, info.Name)
	if err != nil {
		apierr.Render(w, r, h.Log, err)
		return
	}
	if created {
		h.Log.Info("new principal registered at sign-in; awaiting approval",
			zap.String("principal_id", p.ID))
	}

	if err := h.startSession(w, r, p); err != nil {
		apierr.Render(w, r, h.Log, err)
		return
	}
	http.Redirect(w, r, safeReturn(returnURL), http.StatusSeeOther)
}

// startSession opens the server session, binds the cookie to it and
// publishes a fresh claim set.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, p models.Principal) error {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Store(), h.Log, "session create")
	sess, err := h.Sessions.Create(ctx, p.ID, ratelimit.ClientIP(r), r.UserAgent(), sessions.CreatedByLogin)
	cancel()
	if err != nil {
		return authz.Unavailable("session store", err)
	}

	if err := h.SessionMgr.SignIn(w, r, p.ID, sess.ID); err != nil {
		return authz.Unavailable("session cookie", err)
	}

	if err := h.Claims.Publish(r.Context(), p.ID, h.Claims.Project(p)); err != nil {
		// The resolver falls back to the store, so sign-in still succeeds.
		h.Log.Warn("claims publish at sign-in failed",
			zap.String("principal_id", p.ID), zap.Error(err))
	}

	h.Log.Info("principal signed in via Google OAuth",
		zap.String("principal_id", p.ID),
		zap.String("session_id", sess.ID),
		zap.String("status", p.Status))
	return nil
}

// fetchGoogleUser exchanges code for a token and reads Google's userinfo.
func (h *Handler) fetchGoogleUser(ctx context.Context, code string) (UserInfo, error) {
	token, err := h.oauth2Config().Exchange(ctx, code)
	if err != nil {
		return UserInfo{}, fmt.Errorf("exchange code: %w", err)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return UserInfo{}, fmt.Errorf("fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return UserInfo{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return UserInfo{}, fmt.Errorf("decode user info: %w", err)
	}
	return info, nil
}

// safeReturn keeps only same-site absolute paths.
func safeReturn(s string) string {
	if !strings.HasPrefix(s, "/") || strings.HasPrefix(s, "//") || strings.HasPrefix(s, "/\\") {
		return "/api/me"
	}
	return s
}
