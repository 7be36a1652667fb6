package principals_test

import (
	"errors"
	"testing"

	"github.com/dalemusser/portalauthz/internal/app/store/principals"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"github.com/dalemusser/portalauthz/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
)

func newPrincipal(id, email string) models.Principal {
	return models.Principal{
		ID:     id,
		Email:  email,
		Roles:  []string{"member"},
		Status: models.StatusApproved,
	}
}

func TestStore_InsertAndGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := principals.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}

	created, err := store.Insert(ctx, newPrincipal("p1", "  Alice@Example.COM "))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if created.Version != 1 {
		t.Errorf("Version: got %d, want 1", created.Version)
	}
	if created.Role != "member" {
		t.Errorf("Role: got %q, want %q", created.Role, "member")
	}

	got, err := store.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("Email: got %q, want lowercase", got.Email)
	}

	byEmail, err := store.GetByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if byEmail.ID != "p1" {
		t.Errorf("GetByEmail ID: got %q, want p1", byEmail.ID)
	}
}

func TestStore_Get_EntitledWithoutRolesGetsBaseline(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := principals.New(db)
	store.SetBaselineRole("member")
	ctx, cancel := testutil.TestContext()
	defer cancel()

	raw := []interface{}{
		bson.M{"_id": "bare-active", "email": "a@example.com", "status": models.StatusActive, "version": 1},
		bson.M{"_id": "bare-pending", "email": "p@example.com", "status": models.StatusPending, "version": 1},
	}
	if _, err := db.Collection("principals").InsertMany(ctx, raw); err != nil {
		t.Fatalf("InsertMany failed: %v", err)
	}

	got, err := store.Get(ctx, "bare-active")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Roles) != 1 || got.Roles[0] != "member" || got.Role != "member" {
		t.Errorf("active without roles: Roles=%v Role=%q, want [member]/member", got.Roles, got.Role)
	}

	pending, err := store.Get(ctx, "bare-pending")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(pending.Roles) != 0 {
		t.Errorf("pending without roles: Roles=%v, want none", pending.Roles)
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := principals.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, principals.ErrNotFound) {
		t.Fatalf("Get(missing) err = %v, want ErrNotFound", err)
	}
}

func TestStore_Insert_DuplicateEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := principals.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}

	if _, err := store.Insert(ctx, newPrincipal("p1", "dup@example.com")); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}
	_, err := store.Insert(ctx, newPrincipal("p2", "DUP@example.com"))
	if !errors.Is(err, principals.ErrDuplicateEmail) {
		t.Fatalf("second Insert err = %v, want ErrDuplicateEmail", err)
	}
}

func TestStore_Update_VersionCheck(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := principals.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	p, err := store.Insert(ctx, newPrincipal("p1", "v@example.com"))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	p.Roles = []string{"volunteer", "member"}
	updated, err := store.Update(ctx, p, 1)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("Version: got %d, want 2", updated.Version)
	}
	if updated.Role != "volunteer" {
		t.Errorf("Role: got %q, want roles[0]", updated.Role)
	}

	// Stale expected version loses.
	p.Roles = []string{"admin"}
	if _, err := store.Update(ctx, p, 1); !errors.Is(err, principals.ErrVersionConflict) {
		t.Fatalf("stale Update err = %v, want ErrVersionConflict", err)
	}

	got, _ := store.Get(ctx, "p1")
	if len(got.Roles) != 2 || got.Roles[0] != "volunteer" {
		t.Errorf("Roles after conflict: got %v, want [volunteer member]", got.Roles)
	}

	missing := newPrincipal("nope", "n@example.com")
	if _, err := store.Update(ctx, missing, 1); !errors.Is(err, principals.ErrNotFound) {
		t.Fatalf("Update(missing) err = %v, want ErrNotFound", err)
	}
}

func TestStore_ListAndCount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := principals.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	pending := newPrincipal("p1", "a@example.com")
	pending.Status = models.StatusPending
	if _, err := store.Insert(ctx, pending); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := store.Insert(ctx, newPrincipal("p2", "b@example.com")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Count: got %d, want 2", n)
	}

	list, err := store.ListByStatus(ctx, models.StatusPending, 0)
	if err != nil {
		t.Fatalf("ListByStatus failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != "p1" {
		t.Errorf("ListByStatus: got %v, want [p1]", list)
	}
}

func TestStore_DeleteIfVersion(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := principals.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Insert(ctx, newPrincipal("p1", "d@example.com")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.DeleteIfVersion(ctx, "p1", 2); !errors.Is(err, principals.ErrVersionConflict) {
		t.Fatalf("DeleteIfVersion(wrong version) err = %v, want ErrVersionConflict", err)
	}
	if err := store.DeleteIfVersion(ctx, "p1", 1); err != nil {
		t.Fatalf("DeleteIfVersion failed: %v", err)
	}
	if _, err := store.Get(ctx, "p1"); !errors.Is(err, principals.ErrNotFound) {
		t.Fatalf("Get after delete err = %v, want ErrNotFound", err)
	}
}
