package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/kidquest/internal/model"
)

func TestQuestCRUD(t *testing.T) {
	db := setupTestDB(t)
	qs := NewQuestStore(db)
	ctx := context.Background()
	parent := createParent(t, db, "alice")
	c := createChild(t, db, parent.ID, "Sam")

	q, err := qs.Create(ctx, c.ID, "Make bed", "Corners tucked", 5, model.RecurrenceDaily, parent.ID)
	if err != nil {
		t.Fatalf("create quest: %v", err)
	}
	if q.Title != "Make bed" {
		t.Errorf("title = %q, want %q", q.Title, "Make bed")
	}
	if q.RewardPoints != 5 {
		t.Errorf("reward_points = %d, want 5", q.RewardPoints)
	}
	if !q.Active {
		t.Error("expected active")
	}

	updated, err := qs.Update(ctx, q.ID, "Make the bed", "", 7, model.RecurrenceWeekly)
	if err != nil {
		t.Fatalf("update quest: %v", err)
	}
	if updated.RewardPoints != 7 || updated.Recurrence != model.RecurrenceWeekly {
		t.Errorf("updated = %+v", updated)
	}

	if err := qs.SetActive(ctx, q.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	active, err := qs.ListByChild(ctx, c.ID, true)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("len(active) = %d, want 0", len(active))
	}
	all, err := qs.ListByChild(ctx, c.ID, false)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("len(all) = %d, want 1", len(all))
	}
}

func TestQuestRejectsNegativePoints(t *testing.T) {
	db := setupTestDB(t)
	parent := createParent(t, db, "alice")
	c := createChild(t, db, parent.ID, "Sam")

	_, err := NewQuestStore(db).Create(context.Background(), c.ID, "Bad", "", -1, model.RecurrenceOnce, parent.ID)
	if err == nil {
		t.Error("expected error for negative reward points")
	}
}

func TestEnsureInstanceIdempotent(t *testing.T) {
	db := setupTestDB(t)
	qs := NewQuestStore(db)
	ctx := context.Background()
	parent := createParent(t, db, "alice")
	c := createChild(t, db, parent.ID, "Sam")
	q, err := qs.Create(ctx, c.ID, "Dishes", "", 3, model.RecurrenceDaily, parent.ID)
	if err != nil {
		t.Fatalf("create quest: %v", err)
	}

	first, err := qs.EnsureInstance(ctx, q.ID, c.ID, "2026-03-02")
	if err != nil {
		t.Fatalf("ensure instance: %v", err)
	}
	second, err := qs.EnsureInstance(ctx, q.ID, c.ID, "2026-03-02")
	if err != nil {
		t.Fatalf("ensure instance again: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("second id = %d, want %d", second.ID, first.ID)
	}
	if first.State != model.StateOpen {
		t.Errorf("state = %q, want %q", first.State, model.StateOpen)
	}
	if first.Version != 1 {
		t.Errorf("version = %d, want 1", first.Version)
	}

	next, err := qs.EnsureInstance(ctx, q.ID, c.ID, "2026-03-03")
	if err != nil {
		t.Fatalf("ensure next instance: %v", err)
	}
	if next.ID == first.ID {
		t.Error("expected a new instance for a new period")
	}

	history, err := qs.ListInstancesByQuest(ctx, q.ID, 10)
	if err != nil {
		t.Fatalf("list instances: %v", err)
	}
	if len(history) != 2 || history[0].Period != "2026-03-03" {
		t.Errorf("history = %+v", history)
	}
}

func TestInstanceTransitions(t *testing.T) {
	db := setupTestDB(t)
	qs := NewQuestStore(db)
	ctx := context.Background()
	parent := createParent(t, db, "alice")
	c := createChild(t, db, parent.ID, "Sam")
	q, err := qs.Create(ctx, c.ID, "Dishes", "", 3, model.RecurrenceOnce, parent.ID)
	if err != nil {
		t.Fatalf("create quest: %v", err)
	}
	in, err := qs.EnsureInstance(ctx, q.ID, c.ID, "once")
	if err != nil {
		t.Fatalf("ensure instance: %v", err)
	}
	at := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

	// Reviewing an open instance is refused.
	ok, err := qs.ReviewInstance(ctx, in.ID, model.StateApproved, parent.ID, at)
	if err != nil {
		t.Fatalf("review open: %v", err)
	}
	if ok {
		t.Error("expected review of open instance to be refused")
	}

	ok, err = qs.ClaimInstance(ctx, in.ID, at)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !ok {
		t.Fatal("expected claim to succeed")
	}
	ok, err = qs.ClaimInstance(ctx, in.ID, at)
	if err != nil {
		t.Fatalf("claim again: %v", err)
	}
	if ok {
		t.Error("expected second claim to be refused")
	}

	ok, err = qs.ReviewInstance(ctx, in.ID, model.StateRejected, parent.ID, at.Add(time.Hour))
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if !ok {
		t.Fatal("expected reject to succeed")
	}
	got, err := qs.GetInstance(ctx, in.ID)
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if got.State != model.StateRejected {
		t.Errorf("state = %q, want %q", got.State, model.StateRejected)
	}
	if got.ReviewerID == nil || *got.ReviewerID != parent.ID {
		t.Errorf("reviewer_id = %v, want %d", got.ReviewerID, parent.ID)
	}
	if got.ClaimedAt == nil || !got.ClaimedAt.Equal(at) {
		t.Errorf("claimed_at = %v, want %v", got.ClaimedAt, at)
	}
	if got.Version != 3 {
		t.Errorf("version = %d, want 3", got.Version)
	}

	ok, err = qs.ReopenInstance(ctx, in.ID, at.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !ok {
		t.Fatal("expected reopen to succeed")
	}
	got, err = qs.GetInstance(ctx, in.ID)
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if got.State != model.StateOpen {
		t.Errorf("state = %q, want %q", got.State, model.StateOpen)
	}
	if got.ClaimedAt != nil || got.ReviewedAt != nil || got.ReviewerID != nil {
		t.Errorf("expected review fields cleared, got %+v", got)
	}
}
