package sessions_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/portalauthz/internal/app/store/sessions"
	"github.com/dalemusser/portalauthz/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
)

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := sessions.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	sess, err := store.Create(ctx, "p1", "192.168.1.1", "Mozilla/5.0", sessions.CreatedByLogin)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if sess.ID == "" {
		t.Error("expected ID to be assigned")
	}
	if sess.PrincipalID != "p1" {
		t.Errorf("PrincipalID: got %q, want %q", sess.PrincipalID, "p1")
	}
	if !sess.Active() {
		t.Error("expected new session to be active")
	}

	got, err := store.GetByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.IP != "192.168.1.1" {
		t.Errorf("IP: got %q, want %q", got.IP, "192.168.1.1")
	}
}

func TestStore_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := sessions.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, sessions.ErrNotFound) {
		t.Fatalf("GetByID err = %v, want ErrNotFound", err)
	}
}

func TestStore_AttachAndLatestClaims(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := sessions.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// No session yet: attach reaches nothing.
	n, err := store.AttachClaims(ctx, "p1", "tok-0", 1)
	if err != nil {
		t.Fatalf("AttachClaims failed: %v", err)
	}
	if n != 0 {
		t.Errorf("AttachClaims with no session: got %d, want 0", n)
	}
	if _, err := store.LatestClaims(ctx, "p1"); !errors.Is(err, sessions.ErrNotFound) {
		t.Fatalf("LatestClaims err = %v, want ErrNotFound", err)
	}

	if _, err := store.Create(ctx, "p1", "", "", sessions.CreatedByLogin); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.Create(ctx, "p1", "", "", sessions.CreatedByLogin); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	n, err = store.AttachClaims(ctx, "p1", "tok-1", 1)
	if err != nil {
		t.Fatalf("AttachClaims failed: %v", err)
	}
	if n != 2 {
		t.Errorf("AttachClaims: got %d sessions, want 2", n)
	}

	tok, err := store.LatestClaims(ctx, "p1")
	if err != nil {
		t.Fatalf("LatestClaims failed: %v", err)
	}
	if tok != "tok-1" {
		t.Errorf("LatestClaims: got %q, want %q", tok, "tok-1")
	}
}

func TestStore_AttachClaimsKeepsNewerVersion(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := sessions.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Create(ctx, "p1", "", "", sessions.CreatedByLogin); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.AttachClaims(ctx, "p1", "tok-v3", 3); err != nil {
		t.Fatalf("AttachClaims failed: %v", err)
	}

	n, err := store.AttachClaims(ctx, "p1", "tok-v1", 1)
	if err != nil {
		t.Fatalf("AttachClaims failed: %v", err)
	}
	if n != 0 {
		t.Errorf("older version attached to %d sessions, want 0", n)
	}
	if tok, _ := store.LatestClaims(ctx, "p1"); tok != "tok-v3" {
		t.Errorf("LatestClaims: got %q, want %q", tok, "tok-v3")
	}

	if n, _ := store.AttachClaims(ctx, "p1", "tok-v3b", 3); n != 1 {
		t.Errorf("same version re-attach reached %d sessions, want 1", n)
	}
}

func TestStore_RevokeAll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := sessions.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	s1, _ := store.Create(ctx, "p1", "", "", sessions.CreatedByLogin)
	other, _ := store.Create(ctx, "p2", "", "", sessions.CreatedByLogin)
	if _, err := store.AttachClaims(ctx, "p1", "tok", 1); err != nil {
		t.Fatalf("AttachClaims failed: %v", err)
	}

	n, err := store.RevokeAll(ctx, "p1")
	if err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}
	if n != 1 {
		t.Errorf("RevokeAll: got %d, want 1", n)
	}

	got, _ := store.GetByID(ctx, s1.ID)
	if got.Active() {
		t.Error("expected revoked session to be closed")
	}
	if got.EndReason != sessions.EndRevoked {
		t.Errorf("EndReason: got %q, want %q", got.EndReason, sessions.EndRevoked)
	}
	if got.ClaimsToken != "" {
		t.Error("expected claims token to be removed")
	}

	still, _ := store.GetByID(ctx, other.ID)
	if !still.Active() {
		t.Error("other principal's session should stay open")
	}
}

func TestStore_Close(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := sessions.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	sess, _ := store.Create(ctx, "p1", "", "", sessions.CreatedByLogin)
	if err := store.Close(ctx, sess.ID, sessions.EndLogout); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	got, _ := store.GetByID(ctx, sess.ID)
	if got.LogoutAt == nil {
		t.Fatal("expected LogoutAt to be set")
	}
	if got.EndReason != sessions.EndLogout {
		t.Errorf("EndReason: got %q, want %q", got.EndReason, sessions.EndLogout)
	}

	ok, err := store.Touch(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	if ok {
		t.Error("Touch on closed session should report false")
	}
}

func TestStore_CloseInactive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := sessions.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	stale, _ := store.Create(ctx, "p1", "", "", sessions.CreatedByLogin)
	fresh, _ := store.Create(ctx, "p2", "", "", sessions.CreatedByLogin)

	_, err := db.Collection("sessions").UpdateOne(ctx,
		bson.M{"_id": stale.ID},
		bson.M{"$set": bson.M{"last_active_at": time.Now().UTC().Add(-2 * time.Hour)}},
	)
	if err != nil {
		t.Fatalf("backdate failed: %v", err)
	}

	n, err := store.CloseInactive(ctx, time.Hour)
	if err != nil {
		t.Fatalf("CloseInactive failed: %v", err)
	}
	if n != 1 {
		t.Errorf("CloseInactive: got %d, want 1", n)
	}
	got, _ := store.GetByID(ctx, fresh.ID)
	if !got.Active() {
		t.Error("fresh session should stay open")
	}
}
