// Package quest holds quest definitions and drives each quest instance
// through open, claimed, approved and rejected.
package quest

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/dukerupert/kidquest/internal/apperr"
	"github.com/dukerupert/kidquest/internal/identity"
	"github.com/dukerupert/kidquest/internal/model"
	"github.com/dukerupert/kidquest/internal/recurrence"
	"github.com/dukerupert/kidquest/internal/store"
)

// Input holds the editable fields of a quest.
type Input struct {
	Title        string
	Description  string
	RewardPoints int
	Recurrence   model.Recurrence
}

func (in *Input) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return apperr.New(apperr.KindInvalid, "title is required")
	}
	if in.RewardPoints < 0 {
		return apperr.New(apperr.KindInvalid, "reward points must not be negative")
	}
	if in.Recurrence == "" {
		in.Recurrence = model.RecurrenceOnce
	}
	if !recurrence.Valid(in.Recurrence) {
		return apperr.Newf(apperr.KindInvalid, "invalid recurrence %q", in.Recurrence)
	}
	return nil
}

// Registry manages quest definitions for parents.
type Registry struct {
	quests   *store.QuestStore
	identity *identity.Resolver
	logger   *slog.Logger
}

func NewRegistry(db *sql.DB, resolver *identity.Resolver, logger *slog.Logger) *Registry {
	return &Registry{
		quests:   store.NewQuestStore(db),
		identity: resolver,
		logger:   logger.With("component", "quest_registry"),
	}
}

func (r *Registry) Create(ctx context.Context, actorID, childID int64, in Input) (*model.Quest, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := r.identity.RequireParent(ctx, actorID, childID); err != nil {
		return nil, err
	}
	q, err := r.quests.Create(ctx, childID, in.Title, in.Description, in.RewardPoints, in.Recurrence, actorID)
	if err != nil {
		return nil, apperr.Transient("create quest", err)
	}
	r.logger.Info("quest created", "quest_id", q.ID, "child_id", childID, "recurrence", q.Recurrence)
	return q, nil
}

// Get returns a quest the actor may see.
func (r *Registry) Get(ctx context.Context, actorID, questID int64) (*model.Quest, error) {
	q, err := r.load(ctx, questID)
	if err != nil {
		return nil, err
	}
	if err := r.identity.RequireAccess(ctx, actorID, q.ChildID); err != nil {
		return nil, err
	}
	return q, nil
}

// List returns a child's quests. Children and parents both may list.
func (r *Registry) List(ctx context.Context, actorID, childID int64, includeInactive bool) ([]model.Quest, error) {
	if err := r.identity.RequireAccess(ctx, actorID, childID); err != nil {
		return nil, err
	}
	quests, err := r.quests.ListByChild(ctx, childID, !includeInactive)
	if err != nil {
		return nil, apperr.Transient("list quests", err)
	}
	return quests, nil
}

// Update edits a quest definition. Instances already materialized keep
// their period; a changed recurrence applies from the next period.
func (r *Registry) Update(ctx context.Context, actorID, questID int64, in Input) (*model.Quest, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	q, err := r.load(ctx, questID)
	if err != nil {
		return nil, err
	}
	if _, err := r.identity.RequireParent(ctx, actorID, q.ChildID); err != nil {
		return nil, err
	}
	q, err = r.quests.Update(ctx, questID, in.Title, in.Description, in.RewardPoints, in.Recurrence)
	if err != nil {
		return nil, apperr.Transient("update quest", err)
	}
	return q, nil
}

// Deactivate stops new instances from being materialized. Existing
// instances can still be claimed and reviewed.
func (r *Registry) Deactivate(ctx context.Context, actorID, questID int64) error {
	q, err := r.load(ctx, questID)
	if err != nil {
		return err
	}
	if _, err := r.identity.RequireParent(ctx, actorID, q.ChildID); err != nil {
		return err
	}
	if err := r.quests.SetActive(ctx, questID, false); err != nil {
		return apperr.Transient("deactivate quest", err)
	}
	r.logger.Info("quest deactivated", "quest_id", questID, "actor_id", actorID)
	return nil
}

func (r *Registry) load(ctx context.Context, questID int64) (*model.Quest, error) {
	q, err := r.quests.GetByID(ctx, questID)
	if err != nil {
		return nil, apperr.Transient("get quest", err)
	}
	if q == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "quest %d not found", questID)
	}
	return q, nil
}
