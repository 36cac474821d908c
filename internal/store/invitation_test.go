package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/kidquest/internal/model"
)

func TestInvitationCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	is := NewInvitationStore(db)
	ctx := context.Background()
	parent := createParent(t, db, "alice")
	sam := createChild(t, db, parent.ID, "Sam")
	zoe := createChild(t, db, parent.ID, "Zoe")
	expires := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

	inv, err := is.Create(ctx, "abc123", parent.ID, "bob@example.com", model.RoleParent, []int64{zoe.ID, sam.ID}, expires)
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	if inv.Status != model.InvitationPending {
		t.Errorf("status = %q, want %q", inv.Status, model.InvitationPending)
	}
	if !inv.ExpiresAt.Equal(expires) {
		t.Errorf("expires_at = %v, want %v", inv.ExpiresAt, expires)
	}
	if len(inv.TargetChildIDs) != 2 || inv.TargetChildIDs[0] != sam.ID {
		t.Errorf("target_child_ids = %v, want [%d %d]", inv.TargetChildIDs, sam.ID, zoe.ID)
	}

	byToken, err := is.GetByToken(ctx, "abc123")
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if byToken == nil || byToken.ID != inv.ID {
		t.Errorf("by token = %+v, want id %d", byToken, inv.ID)
	}

	missing, err := is.GetByToken(ctx, "nope")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown token")
	}
}

func TestInvitationAcceptOnce(t *testing.T) {
	db := setupTestDB(t)
	is := NewInvitationStore(db)
	ctx := context.Background()
	parent := createParent(t, db, "alice")
	bob := createParent(t, db, "bob")
	c := createChild(t, db, parent.ID, "Sam")

	inv, err := is.Create(ctx, "tok", parent.ID, "bob@example.com", model.RoleParent, []int64{c.ID}, nowUTC().Add(time24h))
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	at := nowUTC()
	ok, err := is.Accept(ctx, inv.ID, bob.ID, at)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !ok {
		t.Fatal("expected accept to succeed")
	}
	ok, err = is.Accept(ctx, inv.ID, bob.ID, at)
	if err != nil {
		t.Fatalf("accept again: %v", err)
	}
	if ok {
		t.Error("expected second accept to be refused")
	}

	got, err := is.GetByID(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if got.Status != model.InvitationAccepted {
		t.Errorf("status = %q, want %q", got.Status, model.InvitationAccepted)
	}
	if got.RedeemedBy == nil || *got.RedeemedBy != bob.ID {
		t.Errorf("redeemed_by = %v, want %d", got.RedeemedBy, bob.ID)
	}
	if got.RedeemedAt == nil {
		t.Error("expected redeemed_at")
	}

	ok, err = is.SetStatus(ctx, inv.ID, model.InvitationPending, model.InvitationRevoked)
	if err != nil {
		t.Fatalf("revoke accepted: %v", err)
	}
	if ok {
		t.Error("expected revoke of accepted invitation to be refused")
	}
}

func TestInvitationAcceptAfterExpiry(t *testing.T) {
	db := setupTestDB(t)
	is := NewInvitationStore(db)
	ctx := context.Background()
	parent := createParent(t, db, "alice")
	bob := createParent(t, db, "bob")
	c := createChild(t, db, parent.ID, "Sam")

	expires := time.Date(2026, 3, 4, 13, 0, 0, 0, time.UTC)
	inv, err := is.Create(ctx, "tok", parent.ID, "bob@example.com", model.RoleParent, []int64{c.ID}, expires)
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	for _, at := range []time.Time{expires, expires.Add(time.Hour)} {
		ok, err := is.Accept(ctx, inv.ID, bob.ID, at)
		if err != nil {
			t.Fatalf("accept at %v: %v", at, err)
		}
		if ok {
			t.Errorf("accept at %v succeeded, want refused", at)
		}
	}

	got, err := is.GetByID(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if got.Status != model.InvitationPending {
		t.Errorf("status = %q, want %q", got.Status, model.InvitationPending)
	}
	if got.RedeemedBy != nil {
		t.Errorf("redeemed_by = %v, want nil", *got.RedeemedBy)
	}

	ok, err := is.Accept(ctx, inv.ID, bob.ID, expires.Add(-time.Second))
	if err != nil {
		t.Fatalf("accept before expiry: %v", err)
	}
	if !ok {
		t.Error("accept before expiry refused, want success")
	}
}

func TestInvitationListByInviter(t *testing.T) {
	db := setupTestDB(t)
	is := NewInvitationStore(db)
	ctx := context.Background()
	alice := createParent(t, db, "alice")
	bob := createParent(t, db, "bob")
	c := createChild(t, db, alice.ID, "Sam")
	d := createChild(t, db, bob.ID, "Zoe")

	for _, tok := range []string{"t1", "t2"} {
		if _, err := is.Create(ctx, tok, alice.ID, "x@example.com", model.RoleParent, []int64{c.ID}, nowUTC().Add(time24h)); err != nil {
			t.Fatalf("create invitation: %v", err)
		}
	}
	if _, err := is.Create(ctx, "t3", bob.ID, "y@example.com", model.RoleChild, []int64{d.ID}, nowUTC().Add(time24h)); err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	list, err := is.ListByInviter(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list invitations: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].Token != "t2" {
		t.Errorf("newest token = %q, want %q", list[0].Token, "t2")
	}
	if len(list[1].TargetChildIDs) != 1 {
		t.Errorf("target_child_ids = %v, want one child", list[1].TargetChildIDs)
	}
}
