package ledger

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/dukerupert/kidquest/internal/apperr"
	"github.com/dukerupert/kidquest/internal/model"
)

// RewardInput holds the editable fields of a reward.
type RewardInput struct {
	Title       string
	Description string
	PointCost   int
	Active      bool
}

func (in *RewardInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return apperr.New(apperr.KindInvalid, "title is required")
	}
	if in.PointCost <= 0 {
		return apperr.New(apperr.KindInvalid, "point cost must be positive")
	}
	return nil
}

func (l *Ledger) CreateReward(ctx context.Context, actorID int64, in RewardInput) (*model.Reward, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := l.identity.RequireAdult(ctx, actorID); err != nil {
		return nil, err
	}
	r, err := l.rewards.Create(ctx, actorID, in.Title, in.Description, in.PointCost, in.Active)
	if err != nil {
		return nil, apperr.Transient("create reward", err)
	}
	return r, nil
}

// UpdateReward edits a reward. Only its owner may change it.
func (l *Ledger) UpdateReward(ctx context.Context, actorID, rewardID int64, in RewardInput) (*model.Reward, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := l.ownedReward(ctx, actorID, rewardID); err != nil {
		return nil, err
	}
	r, err := l.rewards.Update(ctx, rewardID, in.Title, in.Description, in.PointCost, in.Active)
	if err != nil {
		return nil, apperr.Transient("update reward", err)
	}
	return r, nil
}

// Rewards lists the rewards actorID owns.
func (l *Ledger) Rewards(ctx context.Context, actorID int64) ([]model.Reward, error) {
	if _, err := l.identity.RequireAdult(ctx, actorID); err != nil {
		return nil, err
	}
	rewards, err := l.rewards.ListByOwner(ctx, actorID)
	if err != nil {
		return nil, apperr.Transient("list rewards", err)
	}
	return rewards, nil
}

// RewardsForChild lists the active rewards a child can redeem.
func (l *Ledger) RewardsForChild(ctx context.Context, actorID, childID int64) ([]model.Reward, error) {
	if err := l.identity.RequireAccess(ctx, actorID, childID); err != nil {
		return nil, err
	}
	rewards, err := l.rewards.ListForChild(ctx, childID)
	if err != nil {
		return nil, apperr.Transient("list rewards for child", err)
	}
	return rewards, nil
}

// maxIdempotencyKey bounds client-supplied redemption keys.
const maxIdempotencyKey = 128

// RedeemReward spends a child's points on a reward. The actor must be
// authorized for the child, and the reward must come from a parent who is
// too. A non-empty key makes retries safe: redeeming again with the same
// key returns the original redemption marked as replayed.
func (l *Ledger) RedeemReward(ctx context.Context, actorID, rewardID, childID int64, key string) (*model.RewardRedemption, error) {
	key = strings.TrimSpace(key)
	if len(key) > maxIdempotencyKey {
		return nil, apperr.Newf(apperr.KindInvalid, "idempotency key longer than %d characters", maxIdempotencyKey)
	}
	if err := l.identity.RequireAccess(ctx, actorID, childID); err != nil {
		return nil, err
	}
	reward, err := l.rewards.GetByID(ctx, rewardID)
	if err != nil {
		return nil, apperr.Transient("get reward", err)
	}
	if reward == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "reward %d not found", rewardID)
	}
	if !reward.Active {
		return nil, apperr.Newf(apperr.KindInvalid, "reward %d is not active", rewardID)
	}
	ok, err := l.identity.Authorize(ctx, reward.OwnerParentID, childID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Newf(apperr.KindForbidden, "reward %d is not offered to child %d", rewardID, childID)
	}

	if key == "" {
		key = uuid.NewString()
	}
	entry, created, err := l.debit(ctx, childID, reward.PointCost, model.SourceRewardRedemption, key, reward.Title)
	if err != nil {
		return nil, err
	}
	if !created && entry.ChildID != childID {
		return nil, apperr.New(apperr.KindAlreadyUsed, "idempotency key already used for another child")
	}
	return &model.RewardRedemption{Reward: *reward, Entry: *entry, Replayed: !created}, nil
}

func (l *Ledger) ownedReward(ctx context.Context, actorID, rewardID int64) (*model.Reward, error) {
	if _, err := l.identity.RequireAdult(ctx, actorID); err != nil {
		return nil, err
	}
	r, err := l.rewards.GetByID(ctx, rewardID)
	if err != nil {
		return nil, apperr.Transient("get reward", err)
	}
	if r == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "reward %d not found", rewardID)
	}
	if r.OwnerParentID != actorID {
		return nil, apperr.Newf(apperr.KindForbidden, "reward %d belongs to another parent", rewardID)
	}
	return r, nil
}
