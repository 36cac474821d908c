package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/kidquest/internal/model"
)

type RewardStore struct {
	db DBTX
}

func NewRewardStore(db DBTX) *RewardStore {
	return &RewardStore{db: db}
}

func scanReward(scanner interface{ Scan(...any) error }) (*model.Reward, error) {
	var r model.Reward
	var active int

	err := scanner.Scan(&r.ID, &r.OwnerParentID, &r.Title, &r.Description, &r.PointCost, &active, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	r.Active = active != 0
	return &r, nil
}

const rewardCols = `id, owner_parent_id, title, description, point_cost, active, created_at`

func (s *RewardStore) Create(ctx context.Context, ownerParentID int64, title, description string, pointCost int, active bool) (*model.Reward, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO rewards (owner_parent_id, title, description, point_cost, active) VALUES (?, ?, ?, ?, ?)`,
		ownerParentID, title, description, pointCost, boolInt(active),
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RewardStore) GetByID(ctx context.Context, id int64) (*model.Reward, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

// ListByOwner returns a parent's rewards, active first, then by title.
func (s *RewardStore) ListByOwner(ctx context.Context, ownerParentID int64) ([]model.Reward, error) {
	return s.list(ctx,
		`SELECT `+rewardCols+` FROM rewards WHERE owner_parent_id = ? ORDER BY active DESC, title ASC`,
		ownerParentID,
	)
}

// ListForChild returns active rewards offered by the child's owner or by
// any parent holding a grant for the child.
func (s *RewardStore) ListForChild(ctx context.Context, childID int64) ([]model.Reward, error) {
	return s.list(ctx,
		`SELECT `+rewardCols+` FROM rewards
		WHERE active = 1 AND owner_parent_id IN (
			SELECT owner_parent_id FROM child_profiles WHERE id = ?
			UNION
			SELECT principal_id FROM child_access WHERE child_id = ?
		)
		ORDER BY point_cost ASC, title ASC`,
		childID, childID,
	)
}

func (s *RewardStore) list(ctx context.Context, query string, args ...any) ([]model.Reward, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) Update(ctx context.Context, id int64, title, description string, pointCost int, active bool) (*model.Reward, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rewards SET title = ?, description = ?, point_cost = ?, active = ? WHERE id = ?`,
		title, description, pointCost, boolInt(active), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	return s.GetByID(ctx, id)
}
