package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/portalauthz/internal/app/store/sessions"
	"github.com/dalemusser/portalauthz/internal/app/system/keys"
	"github.com/dalemusser/portalauthz/internal/app/system/timeouts"
	gsessions "github.com/gorilla/sessions"
	"go.uber.org/zap"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Session constants                                                            |
*─────────────────────────────────────────────────────────────────────────────*/

const (
	DefaultSessionName = "portalauthz-session"

	isAuthKey      = "is_authenticated"
	principalIDKey = "principal_id"
	sessionIDKey   = "session_id"
)

// ActivityStore is the server-side session record the cookie points at.
// A cookie whose record is closed (logout, revocation, inactivity) is not
// signed in, even though the cookie itself still verifies.
type ActivityStore interface {
	GetByID(ctx context.Context, id string) (sessions.Session, error)
	Touch(ctx context.Context, id string) (bool, error)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Current-principal helper                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionPrincipal is what LoadSession injects into r.Context().
type SessionPrincipal struct {
	ID        string
	SessionID string
}

type ctxKey string

const currentPrincipalKey ctxKey = "currentPrincipal"

// CurrentPrincipal returns the signed-in principal and a "found?" flag.
func CurrentPrincipal(r *http.Request) (*SessionPrincipal, bool) {
	p, ok := r.Context().Value(currentPrincipalKey).(*SessionPrincipal)
	return p, ok
}

// CurrentPrincipalID is CurrentPrincipal reduced to the id ("" when signed out).
func CurrentPrincipalID(r *http.Request) string {
	if p, ok := CurrentPrincipal(r); ok {
		return p.ID
	}
	return ""
}

// WithTestPrincipal injects a principal into the request context. Tests use
// it to bypass cookies.
func WithTestPrincipal(r *http.Request, principalID string) *http.Request {
	return withPrincipal(r, &SessionPrincipal{ID: principalID, SessionID: "test-session"})
}

/*─────────────────────────────────────────────────────────────────────────────*
| SessionManager                                                               |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionManager owns the cookie store and its link to server-side sessions.
type SessionManager struct {
	store    *gsessions.CookieStore
	name     string
	activity ActivityStore
	log      *zap.Logger
}

// NewSessionManager builds the cookie store. The hash and block keys are
// derived from sessionKey so the raw secret never signs anything directly.
//
// In production (secure=true) cookies are Secure + SameSite=None. In local
// dev over http://localhost use secure=false so cookies are accepted.
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessionKey == "" {
		return nil, fmt.Errorf("session key is empty; provide ≥%d random chars", keys.MinSecretLen)
	}
	if len(sessionKey) < keys.MinSecretLen {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}
	if name == "" {
		name = DefaultSessionName
	}

	hashKey, err := keys.Derive([]byte(sessionKey), keys.CookieHash, 64)
	if err != nil {
		return nil, err
	}
	blockKey, err := keys.Derive([]byte(sessionKey), keys.CookieBlock, 32)
	if err != nil {
		return nil, err
	}

	store := gsessions.NewCookieStore(hashKey, blockKey)
	opts := &gsessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
	}
	if secure {
		opts.SameSite = http.SameSiteNoneMode
	} else {
		opts.SameSite = http.SameSiteLaxMode
	}
	store.Options = opts
	store.MaxAge(opts.MaxAge)

	logger.Info("session store initialized",
		zap.Bool("secure", secure),
		zap.String("domain", domain),
		zap.Duration("max_age", maxAge))

	return &SessionManager{store: store, name: name, log: logger}, nil
}

// SetActivityStore links cookies to server-side session records. Without one
// a verified cookie alone counts as signed in.
func (m *SessionManager) SetActivityStore(a ActivityStore) { m.activity = a }

// Store exposes the cookie store (logout needs its options).
func (m *SessionManager) Store() *gsessions.CookieStore { return m.store }

// Name is the cookie name.
func (m *SessionManager) Name() string { return m.name }

// GetSession returns the request's session. On a decode error a fresh
// session is still returned alongside the error.
func (m *SessionManager) GetSession(r *http.Request) (*gsessions.Session, error) {
	return m.store.Get(r, m.name)
}

// SignIn marks the cookie session as authenticated for principalID and binds
// it to the server-side session sessionID.
func (m *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, principalID, sessionID string) error {
	sess, err := m.GetSession(r)
	if err != nil {
		m.log.Warn("session cookie invalid, using fresh session", zap.Error(err))
	}
	sess.Values[isAuthKey] = true
	sess.Values[principalIDKey] = principalID
	sess.Values[sessionIDKey] = sessionID
	return sess.Save(r, w)
}

// SignOut expires the cookie and returns the server-side session id it
// carried, if any.
func (m *SessionManager) SignOut(w http.ResponseWriter, r *http.Request) (string, error) {
	sess, err := m.GetSession(r)
	if err != nil {
		m.log.Warn("session decode failed during logout", zap.Error(err))
	}
	sessionID := getString(sess, sessionIDKey)

	// The deletion cookie must match the original store settings.
	if opts := m.store.Options; opts != nil {
		sess.Options.Domain = opts.Domain
		sess.Options.Path = opts.Path
		sess.Options.Secure = opts.Secure
		sess.Options.HttpOnly = opts.HttpOnly
		sess.Options.SameSite = opts.SameSite
	}
	sess.Options.MaxAge = -1
	for k := range sess.Values {
		delete(sess.Values, k)
	}
	return sessionID, sess.Save(r, w)
}

// LoadSession injects the principal into context if the cookie is signed in
// and, when an activity store is set, its server-side session is still open.
func (m *SessionManager) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.GetSession(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		if isAuth, _ := sess.Values[isAuthKey].(bool); !isAuth {
			next.ServeHTTP(w, r)
			return
		}
		p := &SessionPrincipal{
			ID:        getString(sess, principalIDKey),
			SessionID: getString(sess, sessionIDKey),
		}
		if p.ID == "" {
			next.ServeHTTP(w, r)
			return
		}
		if m.activity != nil && !m.sessionOpen(r.Context(), p.SessionID) {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, withPrincipal(r, p))
	})
}

func (m *SessionManager) sessionOpen(ctx context.Context, sessionID string) bool {
	if sessionID == "" {
		return false
	}
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Store(), m.log, "session lookup")
	defer cancel()

	s, err := m.activity.GetByID(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, sessions.ErrNotFound) {
			m.log.Warn("session lookup failed; treating as signed out", zap.Error(err))
		}
		return false
	}
	if !s.Active() {
		return false
	}
	if _, err := m.activity.Touch(ctx, sessionID); err != nil {
		m.log.Debug("session touch failed", zap.Error(err))
	}
	return true
}

// RequireSignedIn ensures there is a principal in context (set by
// LoadSession). If not signed in:
//   - HTML: 303 redirect to /auth/google?return=...
//   - API:  401 with a JSON error body.
func (m *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentPrincipal(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		if wantsHTML(r) {
			http.Redirect(w, r, "/auth/google?return="+url.QueryEscape(currentURI(r)), http.StatusSeeOther)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "sign-in required", "kind": "unauthenticated"})
	})
}

// helpers

func withPrincipal(r *http.Request, p *SessionPrincipal) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentPrincipalKey, p))
}

func getString(s *gsessions.Session, key string) string {
	if s == nil {
		return ""
	}
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func currentURI(r *http.Request) string {
	u := *r.URL
	return u.RequestURI()
}
