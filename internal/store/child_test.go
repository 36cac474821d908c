package store

import (
	"context"
	"testing"
)

func TestChildCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	cs := NewChildStore(db)
	ctx := context.Background()
	parent := createParent(t, db, "alice")

	c, err := cs.Create(ctx, parent.ID, "Sam")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if c.DisplayName != "Sam" {
		t.Errorf("display_name = %q, want %q", c.DisplayName, "Sam")
	}
	if c.OwnerParentID != parent.ID {
		t.Errorf("owner_parent_id = %d, want %d", c.OwnerParentID, parent.ID)
	}
	if c.PrincipalID != nil {
		t.Errorf("principal_id = %v, want nil", *c.PrincipalID)
	}
	if c.HasPIN {
		t.Error("expected no PIN")
	}

	missing, err := cs.GetByID(ctx, 9999)
	if err != nil {
		t.Fatalf("get missing child: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing child")
	}
}

func TestChildPIN(t *testing.T) {
	db := setupTestDB(t)
	cs := NewChildStore(db)
	ctx := context.Background()
	parent := createParent(t, db, "alice")
	c := createChild(t, db, parent.ID, "Sam")

	if err := cs.SetPIN(ctx, c.ID, "hash"); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	got, err := cs.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("get child: %v", err)
	}
	if !got.HasPIN {
		t.Error("expected HasPIN after SetPIN")
	}
	hash, err := cs.GetPINHash(ctx, c.ID)
	if err != nil {
		t.Fatalf("get pin hash: %v", err)
	}
	if hash != "hash" {
		t.Errorf("hash = %q, want %q", hash, "hash")
	}

	if err := cs.ClearPIN(ctx, c.ID); err != nil {
		t.Fatalf("clear pin: %v", err)
	}
	hash, err = cs.GetPINHash(ctx, c.ID)
	if err != nil {
		t.Fatalf("get pin hash: %v", err)
	}
	if hash != "" {
		t.Errorf("hash = %q, want empty", hash)
	}
}

func TestChildLinkPrincipalOnce(t *testing.T) {
	db := setupTestDB(t)
	cs := NewChildStore(db)
	ctx := context.Background()
	parent := createParent(t, db, "alice")
	kid := createParent(t, db, "sam")
	other := createParent(t, db, "other")
	c := createChild(t, db, parent.ID, "Sam")

	ok, err := cs.LinkPrincipal(ctx, c.ID, kid.ID)
	if err != nil {
		t.Fatalf("link principal: %v", err)
	}
	if !ok {
		t.Fatal("expected first link to succeed")
	}

	ok, err = cs.LinkPrincipal(ctx, c.ID, other.ID)
	if err != nil {
		t.Fatalf("relink principal: %v", err)
	}
	if ok {
		t.Error("expected second link to be refused")
	}

	linked, err := cs.GetByPrincipal(ctx, kid.ID)
	if err != nil {
		t.Fatalf("get by principal: %v", err)
	}
	if linked == nil || linked.ID != c.ID {
		t.Errorf("linked child = %+v, want id %d", linked, c.ID)
	}
}

func TestChildListAccessible(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice := createParent(t, db, "alice")
	bob := createParent(t, db, "bob")
	createChild(t, db, alice.ID, "Sam")
	zoe := createChild(t, db, bob.ID, "Zoe")
	createChild(t, db, bob.ID, "Max")

	inv, err := NewInvitationStore(db).Create(ctx, "tok", bob.ID, "alice@example.com", "parent", []int64{zoe.ID}, nowUTC().Add(time24h))
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	if err := NewAccessStore(db).Grant(ctx, alice.ID, zoe.ID, inv.ID); err != nil {
		t.Fatalf("grant: %v", err)
	}

	children, err := NewChildStore(db).ListAccessible(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list accessible: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("len(children) = %d, want 2", len(children))
	}
	if children[0].DisplayName != "Sam" || children[1].DisplayName != "Zoe" {
		t.Errorf("children = %q, %q, want Sam, Zoe", children[0].DisplayName, children[1].DisplayName)
	}
}
