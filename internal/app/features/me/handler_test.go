package me_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/portalauthz/internal/app/features/me"
	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"github.com/dalemusser/portalauthz/internal/app/system/roles"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"github.com/dalemusser/portalauthz/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type meBody struct {
	IsAuthenticated bool     `json:"isAuthenticated"`
	PrincipalID     string   `json:"principal_id"`
	Status          string   `json:"status"`
	Roles           []string `json:"roles"`
	Capabilities    []string `json:"capabilities"`
	Source          string   `json:"source"`
	IsAdmin         bool     `json:"isAdmin"`
	IsDenLeader     bool     `json:"isDenLeader"`
	IsCubmaster     bool     `json:"isCubmaster"`
}

func setup(t *testing.T) (chi.Router, *testutil.MemProvider) {
	t.Helper()
	reg := roles.Default()
	store := testutil.NewMemPrincipals(
		models.Principal{ID: "leader1", Email: "l@example.com", Roles: []string{"volunteer", "member"}, Status: models.StatusActive},
		models.Principal{ID: "root1", Email: "r@example.com", Roles: []string{"root"}, Status: models.StatusActive},
		models.Principal{ID: "pendingadmin", Email: "p@example.com", Roles: []string{"admin"}, Status: models.StatusPending},
	)
	idp := testutil.NewMemProvider()
	res := authz.NewResolver(reg, store, authz.NewSynchronizer(reg, idp, nil), time.Hour, nil)

	r := chi.NewRouter()
	r.Mount("/api/me", me.Routes(me.NewHandler(res, reg, zap.NewNop())))
	return r, idp
}

func fetch(t *testing.T, r chi.Router, pid string) (*testutil.ResponseRecorder, meBody) {
	t.Helper()
	req := testutil.NewJSONRequest(t, "GET", "/api/me", nil)
	if pid != "" {
		req = testutil.AsPrincipal(req, pid)
	}
	rec := testutil.Serve(r, req)
	var body meBody
	if rec.Code == http.StatusOK {
		rec.DecodeJSON(t, &body)
	}
	return rec, body
}

func TestServeMe(t *testing.T) {
	tests := []struct {
		pid                      string
		admin, leader, cubmaster bool
	}{
		{"leader1", false, true, false},
		{"root1", true, true, true},
		{"pendingadmin", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.pid, func(t *testing.T) {
			r, _ := setup(t)
			rec, body := fetch(t, r, tt.pid)
			rec.AssertStatus(t, http.StatusOK)
			if !body.IsAuthenticated || body.PrincipalID != tt.pid {
				t.Errorf("body = %+v", body)
			}
			if body.IsAdmin != tt.admin || body.IsDenLeader != tt.leader || body.IsCubmaster != tt.cubmaster {
				t.Errorf("flags admin=%v leader=%v cubmaster=%v, want %v %v %v",
					body.IsAdmin, body.IsDenLeader, body.IsCubmaster, tt.admin, tt.leader, tt.cubmaster)
			}
		})
	}
}

func TestServeMe_PendingHasNoCapabilities(t *testing.T) {
	r, _ := setup(t)
	_, body := fetch(t, r, "pendingadmin")
	if len(body.Capabilities) != 0 || body.Status != models.StatusPending {
		t.Errorf("pending body = %+v", body)
	}
}

func TestServeMe_UsesAttachedClaims(t *testing.T) {
	r, idp := setup(t)
	idp.SignIn("leader1")

	_, first := fetch(t, r, "leader1")
	if first.Source != authz.PathStore {
		t.Errorf("first source = %q, want store", first.Source)
	}
	_, second := fetch(t, r, "leader1")
	if second.Source != authz.PathClaims {
		t.Errorf("second source = %q, want claims", second.Source)
	}
}

func TestServeMe_Anonymous(t *testing.T) {
	r, _ := setup(t)
	rec, body := fetch(t, r, "")
	rec.AssertStatus(t, http.StatusOK)
	if body.IsAuthenticated {
		t.Error("anonymous request reported as authenticated")
	}
}

func TestServeMe_UnknownPrincipal(t *testing.T) {
	r, _ := setup(t)
	rec, _ := fetch(t, r, "deleted")
	rec.AssertStatus(t, http.StatusNotFound)
}
