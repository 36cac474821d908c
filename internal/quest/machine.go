package quest

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukerupert/kidquest/internal/apperr"
	"github.com/dukerupert/kidquest/internal/identity"
	"github.com/dukerupert/kidquest/internal/ledger"
	"github.com/dukerupert/kidquest/internal/model"
	"github.com/dukerupert/kidquest/internal/recurrence"
	"github.com/dukerupert/kidquest/internal/store"
)

// Publisher receives an event after every committed transition.
type Publisher interface {
	Publish(event model.InstanceEvent)
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.InstanceEvent) {}

// errLostRace aborts a review transaction whose compare-and-swap matched
// no row.
var errLostRace = errors.New("instance changed concurrently")

type Option func(*Machine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithLocation sets the time zone that decides where days and weeks start.
func WithLocation(loc *time.Location) Option {
	return func(m *Machine) { m.loc = loc }
}

func WithPublisher(p Publisher) Option {
	return func(m *Machine) { m.publisher = p }
}

// Machine applies claim, review and reopen transitions to quest instances.
// Every transition is a compare-and-swap on the instance state, so of two
// racing reviewers exactly one wins.
type Machine struct {
	db        *sql.DB
	quests    *store.QuestStore
	identity  *identity.Resolver
	publisher Publisher
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

func NewMachine(db *sql.DB, resolver *identity.Resolver, logger *slog.Logger, opts ...Option) *Machine {
	m := &Machine{
		db:        db,
		quests:    store.NewQuestStore(db),
		identity:  resolver,
		publisher: nopPublisher{},
		loc:       time.UTC,
		now:       time.Now,
		logger:    logger.With("component", "quest_machine"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Claim marks an open instance as done by the child. Claiming an instance
// the same child already claimed succeeds without change.
func (m *Machine) Claim(ctx context.Context, instanceID, actorChildID int64) (*model.QuestInstance, error) {
	in, err := m.instance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if in.ChildID != actorChildID {
		return nil, apperr.Newf(apperr.KindForbidden, "instance %d belongs to another child", instanceID)
	}
	if in.State == model.StateClaimed {
		return in, nil
	}

	now := m.now()
	ok, err := m.quests.ClaimInstance(ctx, instanceID, now)
	if err != nil {
		return nil, apperr.Transient("claim instance", err)
	}
	if !ok {
		// Another request for the same child may have claimed it first.
		in, err := m.instance(ctx, instanceID)
		if err != nil {
			return nil, err
		}
		if in.State == model.StateClaimed {
			return in, nil
		}
		return nil, invalidTransition(in, model.StateClaimed)
	}

	in, err = m.instance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	m.logger.Info("instance claimed", "instance_id", in.ID, "child_id", in.ChildID)
	m.publish(in, now)
	return in, nil
}

// Review approves or rejects a claimed instance. Approval writes the state
// change and the child's ledger credit in one transaction.
func (m *Machine) Review(ctx context.Context, instanceID, actorParentID int64, decision model.Decision) (*model.QuestInstance, error) {
	var to model.InstanceState
	switch decision {
	case model.DecisionApprove:
		to = model.StateApproved
	case model.DecisionReject:
		to = model.StateRejected
	default:
		return nil, apperr.Newf(apperr.KindInvalid, "invalid decision %q", decision)
	}

	in, err := m.instance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if _, err := m.identity.RequireParent(ctx, actorParentID, in.ChildID); err != nil {
		return nil, err
	}
	q, err := m.quests.GetByID(ctx, in.QuestID)
	if err != nil {
		return nil, apperr.Transient("get quest", err)
	}
	if q == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "quest %d not found", in.QuestID)
	}

	now := m.now()
	var reviewed *model.QuestInstance
	err = store.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		qs := store.NewQuestStore(tx)
		ok, err := qs.ReviewInstance(ctx, instanceID, to, actorParentID, now)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}

		if to == model.StateApproved && q.RewardPoints > 0 {
			_, created, err := ledger.CreditTx(ctx, tx, in.ChildID, q.RewardPoints,
				model.SourceQuestApproval, strconv.FormatInt(instanceID, 10), q.Title)
			if err != nil {
				return err
			}
			if !created {
				m.logger.Debug("approval credit already recorded", "instance_id", instanceID)
			}
		}

		reviewed, err = qs.GetInstance(ctx, instanceID)
		return err
	})
	if errors.Is(err, errLostRace) {
		current, err := m.instance(ctx, instanceID)
		if err != nil {
			return nil, err
		}
		return nil, invalidTransition(current, to)
	}
	if err != nil {
		return nil, apperr.Transient("review instance", err)
	}

	m.logger.Info("instance reviewed", "instance_id", instanceID, "state", to, "reviewer_id", actorParentID)
	m.publish(reviewed, now)
	return reviewed, nil
}

// Reopen returns a rejected instance to open so the child can try again.
func (m *Machine) Reopen(ctx context.Context, instanceID, actorParentID int64) (*model.QuestInstance, error) {
	in, err := m.instance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if _, err := m.identity.RequireParent(ctx, actorParentID, in.ChildID); err != nil {
		return nil, err
	}

	now := m.now()
	ok, err := m.quests.ReopenInstance(ctx, instanceID, now)
	if err != nil {
		return nil, apperr.Transient("reopen instance", err)
	}
	in, err = m.instance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invalidTransition(in, model.StateOpen)
	}

	m.logger.Info("instance reopened", "instance_id", instanceID, "actor_id", actorParentID)
	m.publish(in, now)
	return in, nil
}

// Materialize returns the quest's instance for the period containing now,
// creating it if needed. Calling it again in the same period returns the
// same instance.
func (m *Machine) Materialize(ctx context.Context, questID int64, now time.Time) (*model.QuestInstance, error) {
	q, err := m.quests.GetByID(ctx, questID)
	if err != nil {
		return nil, apperr.Transient("get quest", err)
	}
	if q == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "quest %d not found", questID)
	}
	if !q.Active {
		return nil, apperr.Newf(apperr.KindInvalidTransition, "quest %d is inactive", questID)
	}
	return m.materialize(ctx, q, now)
}

func (m *Machine) materialize(ctx context.Context, q *model.Quest, now time.Time) (*model.QuestInstance, error) {
	period, err := recurrence.Period(q.Recurrence, now, m.loc)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalid, "compute period", err)
	}
	in, err := m.quests.EnsureInstance(ctx, q.ID, q.ChildID, period)
	if err != nil {
		return nil, apperr.Transient("materialize instance", err)
	}
	return in, nil
}

// CurrentInstances materializes the current period of every active quest
// for the child and returns the instances. Daily and weekly quests roll
// over here, on first access in a new period.
func (m *Machine) CurrentInstances(ctx context.Context, actorID, childID int64, now time.Time) ([]model.InstanceWithQuest, error) {
	if err := m.identity.RequireAccess(ctx, actorID, childID); err != nil {
		return nil, err
	}
	quests, err := m.quests.ListByChild(ctx, childID, true)
	if err != nil {
		return nil, apperr.Transient("list quests", err)
	}

	out := make([]model.InstanceWithQuest, 0, len(quests))
	for i := range quests {
		q := &quests[i]
		in, err := m.materialize(ctx, q, now)
		if err != nil {
			return nil, err
		}
		item := model.InstanceWithQuest{
			QuestInstance: *in,
			Title:         q.Title,
			RewardPoints:  q.RewardPoints,
			Recurrence:    q.Recurrence,
		}
		if _, end, err := recurrence.Bounds(q.Recurrence, in.Period, m.loc); err == nil && !end.IsZero() {
			item.DueAt = &end
		}
		out = append(out, item)
	}
	return out, nil
}

// Current is CurrentInstances at the machine's clock.
func (m *Machine) Current(ctx context.Context, actorID, childID int64) ([]model.InstanceWithQuest, error) {
	return m.CurrentInstances(ctx, actorID, childID, m.now())
}

// History lists a quest's past instances, newest period first.
func (m *Machine) History(ctx context.Context, actorID, questID int64, limit int) ([]model.QuestInstance, error) {
	q, err := m.quests.GetByID(ctx, questID)
	if err != nil {
		return nil, apperr.Transient("get quest", err)
	}
	if q == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "quest %d not found", questID)
	}
	if err := m.identity.RequireAccess(ctx, actorID, q.ChildID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	instances, err := m.quests.ListInstancesByQuest(ctx, questID, limit)
	if err != nil {
		return nil, apperr.Transient("list instances", err)
	}
	return instances, nil
}

// Instance loads an instance the actor may see.
func (m *Machine) Instance(ctx context.Context, actorID, instanceID int64) (*model.QuestInstance, error) {
	in, err := m.instance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if err := m.identity.RequireAccess(ctx, actorID, in.ChildID); err != nil {
		return nil, err
	}
	return in, nil
}

func (m *Machine) instance(ctx context.Context, id int64) (*model.QuestInstance, error) {
	in, err := m.quests.GetInstance(ctx, id)
	if err != nil {
		return nil, apperr.Transient("get instance", err)
	}
	if in == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "instance %d not found", id)
	}
	return in, nil
}

func (m *Machine) publish(in *model.QuestInstance, at time.Time) {
	m.publisher.Publish(model.InstanceEvent{
		InstanceID: in.ID,
		NewState:   in.State,
		ChildID:    in.ChildID,
		ReviewerID: in.ReviewerID,
		Timestamp:  at.UTC(),
	})
}

func invalidTransition(in *model.QuestInstance, to model.InstanceState) error {
	return apperr.Newf(apperr.KindInvalidTransition, "instance %d cannot move from %s to %s", in.ID, in.State, to)
}
