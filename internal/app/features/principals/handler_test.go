package principals_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/portalauthz/internal/app/features/principals"
	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"github.com/dalemusser/portalauthz/internal/app/system/principaladmin"
	"github.com/dalemusser/portalauthz/internal/app/system/roles"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"github.com/dalemusser/portalauthz/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type env struct {
	router chi.Router
	store  *testutil.MemPrincipals
	audit  *testutil.MemAudit
	idp    *testutil.MemProvider
}

func setup(t *testing.T) env {
	t.Helper()
	reg := roles.Default()
	store := testutil.NewMemPrincipals(
		models.Principal{ID: "admin1", Email: "admin1@example.com", Roles: []string{"admin"}, Status: models.StatusActive},
		models.Principal{ID: "member1", Email: "member1@example.com", Roles: []string{"member"}, Status: models.StatusActive},
		models.Principal{ID: "user42", Email: "user42@example.com", Roles: []string{"member"}, Status: models.StatusActive},
		models.Principal{ID: "new1", Email: "new1@example.com", Roles: []string{"member"}, Status: models.StatusPending},
	)
	auditSink := testutil.NewMemAudit()
	idp := testutil.NewMemProvider()
	syncer := authz.NewSynchronizer(reg, idp, nil)
	res := authz.NewResolver(reg, store, syncer, time.Hour, nil)
	svc := principaladmin.New(reg, store, auditSink, syncer, res, nil)
	svc.SetInvalidateRetry(1, 0)

	h := principals.NewHandler(svc, 3, zap.NewNop())
	r := chi.NewRouter()
	r.Mount("/admin/principals", principals.Routes(h))
	r.Mount("/admin/claims", principals.ClaimsRoutes(h))
	return env{router: r, store: store, audit: auditSink, idp: idp}
}

func (e env) do(t *testing.T, actor, method, target string, body any) *testutil.ResponseRecorder {
	t.Helper()
	req := testutil.AsPrincipal(testutil.NewJSONRequest(t, method, target, body), actor)
	return testutil.Serve(e.router, req)
}

func TestSetRoles_Promotes(t *testing.T) {
	e := setup(t)
	e.idp.SignIn("user42")

	rec := e.do(t, "admin1", "PUT", "/admin/principals/user42/roles", map[string]any{"roles": []string{"admin"}})
	rec.AssertStatus(t, http.StatusOK)

	var p models.Principal
	rec.DecodeJSON(t, &p)
	if p.Role != "admin" || p.Version != 2 {
		t.Errorf("response principal = %+v", p)
	}
	if e.idp.HasSession("user42") {
		t.Error("target session not invalidated")
	}
}

func TestSetRoles_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		actor      string
		target     string
		body       any
		wantStatus int
		wantKind   string
	}{
		{"member actor", "member1", "user42", map[string]any{"roles": []string{"volunteer"}}, http.StatusForbidden, "permission_denied"},
		{"unknown target", "admin1", "ghost", map[string]any{"roles": []string{"volunteer"}}, http.StatusNotFound, "not_found"},
		{"unknown role", "admin1", "user42", map[string]any{"roles": []string{"wizard"}}, http.StatusBadRequest, "invalid_role"},
		{"stale version", "admin1", "user42", map[string]any{"roles": []string{"volunteer"}, "expected_version": 9}, http.StatusConflict, "conflict"},
		{"malformed body", "admin1", "user42", `{"roles":`, http.StatusBadRequest, "invalid_input"},
		{"unknown field", "admin1", "user42", map[string]any{"role": "admin"}, http.StatusBadRequest, "invalid_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t)
			rec := e.do(t, tt.actor, "PUT", "/admin/principals/"+tt.target+"/roles", tt.body)
			rec.AssertStatus(t, tt.wantStatus)
			rec.AssertContains(t, `"kind":"`+tt.wantKind+`"`)
		})
	}
}

func TestSetRoles_ExpectedVersion(t *testing.T) {
	e := setup(t)
	rec := e.do(t, "admin1", "PUT", "/admin/principals/user42/roles", map[string]any{"roles": []string{"volunteer"}, "expected_version": 1})
	rec.AssertStatus(t, http.StatusOK)

	// The same pinned version is now stale.
	rec = e.do(t, "admin1", "PUT", "/admin/principals/user42/roles", map[string]any{"roles": []string{"member"}, "expected_version": 1})
	rec.AssertStatus(t, http.StatusConflict)
}

func TestSetStatusOverridesMemberships(t *testing.T) {
	e := setup(t)

	e.do(t, "admin1", "PUT", "/admin/principals/user42/status", map[string]any{"status": "suspended"}).AssertStatus(t, http.StatusOK)
	e.do(t, "admin1", "PUT", "/admin/principals/user42/overrides", map[string]any{"overrides": []string{"event_management"}}).AssertStatus(t, http.StatusOK)
	e.do(t, "admin1", "PUT", "/admin/principals/user42/memberships", map[string]any{
		"memberships": []map[string]string{{"organization_id": "pack-1", "role": "volunteer"}},
	}).AssertStatus(t, http.StatusOK)

	p, _ := e.store.Peek("user42")
	if p.Status != models.StatusSuspended || len(p.PermissionOverrides) != 1 || len(p.OrganizationMemberships) != 1 {
		t.Errorf("stored principal = %+v", p)
	}
	if p.Version != 4 {
		t.Errorf("version = %d, want 4", p.Version)
	}

	rec := e.do(t, "admin1", "PUT", "/admin/principals/user42/overrides", map[string]any{"overrides": []string{"fly"}})
	rec.AssertStatus(t, http.StatusBadRequest)
	rec.AssertContains(t, "invalid_capability")
}

func TestPendingQueue_ApproveDeny(t *testing.T) {
	e := setup(t)

	rec := e.do(t, "admin1", "GET", "/admin/principals?status=pending", nil)
	rec.AssertStatus(t, http.StatusOK)
	var list struct {
		Principals []models.Principal `json:"principals"`
		Count      int                `json:"count"`
	}
	rec.DecodeJSON(t, &list)
	if list.Count != 1 || list.Principals[0].ID != "new1" {
		t.Fatalf("pending = %+v", list)
	}

	rec = e.do(t, "admin1", "POST", "/admin/principals/new1/approve", map[string]any{"role": "volunteer", "reason": "den leader"})
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"status":"approved"`)

	rec = e.do(t, "admin1", "POST", "/admin/principals/new1/deny", map[string]any{"reason": "too late"})
	rec.AssertStatus(t, http.StatusBadRequest)

	rec = e.do(t, "admin1", "GET", "/admin/principals", nil)
	rec.DecodeJSON(t, &list)
	if list.Count != 0 {
		t.Errorf("pending after approval = %d, want 0", list.Count)
	}
}

func TestList_BadLimit(t *testing.T) {
	e := setup(t)
	e.do(t, "admin1", "GET", "/admin/principals?limit=-3", nil).AssertStatus(t, http.StatusBadRequest)
	e.do(t, "member1", "GET", "/admin/principals", nil).AssertStatus(t, http.StatusForbidden)
}

func TestGet(t *testing.T) {
	e := setup(t)
	rec := e.do(t, "admin1", "GET", "/admin/principals/user42", nil)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"email":"user42@example.com"`)
}

func TestSyncClaims(t *testing.T) {
	e := setup(t)
	e.idp.SignIn("member1")

	rec := e.do(t, "admin1", "POST", "/admin/claims/sync", nil)
	rec.AssertStatus(t, http.StatusOK)
	var rep principaladmin.SyncReport
	rec.DecodeJSON(t, &rep)
	if rep.Scanned != 3 || rep.Failed != 0 {
		t.Errorf("report = %+v", rep)
	}
	if _, err := e.idp.AttachedClaims(context.Background(), "member1"); err != nil {
		t.Errorf("member1 claims not published: %v", err)
	}

	e.do(t, "member1", "POST", "/admin/claims/sync", nil).AssertStatus(t, http.StatusForbidden)
}

// conflictOnce fails the first SetRoles with Conflict.
type conflictOnce struct {
	principals.Admin
	calls int
}

func (c *conflictOnce) SetRoles(ctx context.Context, actor, target string, rs []string, v int64) (models.Principal, error) {
	c.calls++
	if c.calls == 1 {
		return models.Principal{}, authz.NewError(authz.KindConflict, "principal was modified concurrently", nil)
	}
	return models.Principal{ID: target, Roles: rs, Version: 3}, nil
}

func TestSetRoles_RetriesWithoutExpectedVersion(t *testing.T) {
	fake := &conflictOnce{}
	h := principals.NewHandler(fake, 3, zap.NewNop())
	r := chi.NewRouter()
	r.Mount("/admin/principals", principals.Routes(h))

	req := testutil.AsPrincipal(testutil.NewJSONRequest(t, "PUT", "/admin/principals/x/roles", map[string]any{"roles": []string{"member"}}), "admin1")
	testutil.Serve(r, req).AssertStatus(t, http.StatusOK)
	if fake.calls != 2 {
		t.Errorf("calls = %d, want 2", fake.calls)
	}

	fake.calls = 0
	req = testutil.AsPrincipal(testutil.NewJSONRequest(t, "PUT", "/admin/principals/x/roles", map[string]any{"roles": []string{"member"}, "expected_version": 2}), "admin1")
	testutil.Serve(r, req).AssertStatus(t, http.StatusConflict)
	if fake.calls != 1 {
		t.Errorf("pinned version retried: calls = %d", fake.calls)
	}
}
