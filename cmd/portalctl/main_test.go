package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"github.com/dalemusser/portalauthz/internal/app/system/principaladmin"
	"github.com/dalemusser/portalauthz/internal/app/system/roles"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"github.com/dalemusser/portalauthz/internal/testutil"
)

type harness struct {
	store *testutil.MemPrincipals
	audit *testutil.MemAudit
	out   *bytes.Buffer
	opens int
}

func newHarness(ps ...models.Principal) *harness {
	return &harness{
		store: testutil.NewMemPrincipals(ps...),
		audit: testutil.NewMemAudit(),
		out:   &bytes.Buffer{},
	}
}

// run executes portalctl with args against the in-memory backend.
func (h *harness) run(args ...string) error {
	reg := roles.Default()
	syncer := authz.NewSynchronizer(reg, testutil.NewMemProvider(), nil)
	res := authz.NewResolver(reg, h.store, syncer, time.Hour, nil)
	svc := principaladmin.New(reg, h.store, h.audit, syncer, res, nil)
	svc.SetInvalidateRetry(1, 0)

	h.out.Reset()
	c := &ctl{
		out: h.out,
		open: func(ctx context.Context) (*backend, error) {
			h.opens++
			return &backend{Admin: svc, Resolver: res}, nil
		},
	}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	return root.Execute()
}

func person(id, status string, roleIDs ...string) models.Principal {
	return models.Principal{ID: id, Email: id + "@example.com", Roles: roleIDs, Status: status}
}

func TestBootstrap_EmptyStore(t *testing.T) {
	h := newHarness()
	if err := h.run("bootstrap", "--email", "Root@Pack.org", "--name", "Root"); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	var p models.Principal
	if err := json.Unmarshal(h.out.Bytes(), &p); err != nil {
		t.Fatalf("output is not a principal: %v (%s)", err, h.out.String())
	}
	if p.Email != "root@pack.org" || !reflect.DeepEqual(p.Roles, []string{roles.Root}) {
		t.Errorf("principal = %+v, want root@pack.org with [root]", p)
	}
	recs := h.audit.Records()
	if len(recs) != 1 || !recs[0].Bootstrap {
		t.Errorf("audit = %+v, want one bootstrap record", recs)
	}

	if err := h.run("bootstrap", "--email", "second@pack.org"); authz.KindOf(err) != authz.KindPermissionDenied {
		t.Errorf("second bootstrap err = %v, want permission_denied", err)
	}
}

func TestActorRequired(t *testing.T) {
	h := newHarness(person("member1", models.StatusActive, "member"))
	for _, args := range [][]string{
		{"set-roles", "member1", "--role", "admin"},
		{"pending"},
		{"audit"},
		{"sync-claims"},
	} {
		err := h.run(args...)
		if err == nil || !strings.Contains(err.Error(), "--actor") {
			t.Errorf("%v: err = %v, want --actor required", args, err)
		}
	}
	if h.opens != 0 {
		t.Errorf("backend opened %d times without an actor", h.opens)
	}
}

func TestSetRoles_AuthorizedThroughMutationAPI(t *testing.T) {
	h := newHarness(
		person("admin1", models.StatusActive, "admin"),
		person("member1", models.StatusActive, "member"),
		person("member2", models.StatusActive, "member"),
	)

	if err := h.run("set-roles", "member1", "--role", "volunteer,member", "--actor", "admin1"); err != nil {
		t.Fatalf("set-roles failed: %v", err)
	}
	stored, _ := h.store.Peek("member1")
	if !reflect.DeepEqual(stored.Roles, []string{"volunteer", "member"}) || stored.Role != "volunteer" {
		t.Errorf("stored = %v / %q, want [volunteer member] / volunteer", stored.Roles, stored.Role)
	}

	err := h.run("set-roles", "member1", "--role", "admin", "--actor", "member2")
	if authz.KindOf(err) != authz.KindPermissionDenied {
		t.Errorf("member actor err = %v, want permission_denied", err)
	}

	err = h.run("set-roles", "member1", "--role", "admin", "--actor", "admin1", "--expected-version", "1")
	if authz.KindOf(err) != authz.KindConflict {
		t.Errorf("stale version err = %v, want conflict", err)
	}
}

func TestApproveAndPending(t *testing.T) {
	h := newHarness(
		person("admin1", models.StatusActive, "admin"),
		person("new1", models.StatusPending, "member"),
		person("new2", models.StatusPending, "member"),
	)

	if err := h.run("pending", "--actor", "admin1"); err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	var list []models.Principal
	if err := json.Unmarshal(h.out.Bytes(), &list); err != nil || len(list) != 2 {
		t.Fatalf("pending = %s (%v), want 2 principals", h.out.String(), err)
	}

	if err := h.run("approve", "new1", "--role", "volunteer", "--reason", "den leader", "--actor", "admin1"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if err := h.run("deny", "new2", "--reason", "unknown", "--actor", "admin1"); err != nil {
		t.Fatalf("deny failed: %v", err)
	}
	a, _ := h.store.Peek("new1")
	d, _ := h.store.Peek("new2")
	if a.Status != models.StatusApproved || a.Role != "volunteer" {
		t.Errorf("approved = %q/%q, want approved/volunteer", a.Status, a.Role)
	}
	if d.Status != models.StatusRejected {
		t.Errorf("denied status = %q, want %q", d.Status, models.StatusRejected)
	}

	if err := h.run("audit", "--actor", "admin1", "--target", "new1"); err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	if !strings.Contains(h.out.String(), models.OpApprove) {
		t.Errorf("audit output missing approve record: %s", h.out.String())
	}
}

func TestSetMemberships(t *testing.T) {
	h := newHarness(
		person("admin1", models.StatusActive, "admin"),
		person("member1", models.StatusActive, "member"),
	)
	if err := h.run("set-memberships", "member1", "-m", "den7=volunteer", "--actor", "admin1"); err != nil {
		t.Fatalf("set-memberships failed: %v", err)
	}
	stored, _ := h.store.Peek("member1")
	want := []models.OrgMembership{{OrganizationID: "den7", Role: "volunteer"}}
	if !reflect.DeepEqual(stored.OrganizationMemberships, want) {
		t.Errorf("memberships = %+v, want %+v", stored.OrganizationMemberships, want)
	}
}

func TestDecide(t *testing.T) {
	h := newHarness(person("member1", models.StatusActive, "member"))

	if err := h.run("decide", "member1", "event_management"); err != nil {
		t.Fatalf("decide failed: %v", err)
	}
	var out struct {
		Allowed bool   `json:"allowed"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(h.out.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Allowed || out.Reason != authz.ReasonInsufficientRole {
		t.Errorf("decision = %+v, want deny %s", out, authz.ReasonInsufficientRole)
	}

	if err := h.run("decide", "ghost", "read_content"); authz.KindOf(err) != authz.KindNotFound {
		t.Errorf("unknown principal err = %v, want not_found", err)
	}
}

func TestParseMemberships(t *testing.T) {
	tests := []struct {
		in      []string
		want    []models.OrgMembership
		wantErr bool
	}{
		{nil, []models.OrgMembership{}, false},
		{[]string{"a=member", " b = admin "}, []models.OrgMembership{{OrganizationID: "a", Role: "member"}, {OrganizationID: "b", Role: "admin"}}, false},
		{[]string{"a"}, nil, true},
		{[]string{"=member"}, nil, true},
		{[]string{"a="}, nil, true},
	}
	for _, tt := range tests {
		got, err := parseMemberships(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseMemberships(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseMemberships(%v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestDescribe(t *testing.T) {
	err := describe(authz.NewError(authz.KindInvalidRole, `unknown role "wizard"`, nil))
	if err.Error() != `invalid_role: unknown role "wizard"` {
		t.Errorf("describe = %q", err.Error())
	}
	plain := errors.New("--actor is required")
	if describe(plain) != plain {
		t.Errorf("untagged error was rewritten: %v", describe(plain))
	}
}
