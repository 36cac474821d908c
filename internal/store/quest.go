package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/kidquest/internal/model"
)

type QuestStore struct {
	db DBTX
}

func NewQuestStore(db DBTX) *QuestStore {
	return &QuestStore{db: db}
}

// --- Quest methods ---

func scanQuest(scanner interface{ Scan(...any) error }) (*model.Quest, error) {
	var q model.Quest
	var active int

	err := scanner.Scan(
		&q.ID, &q.ChildID, &q.Title, &q.Description, &q.RewardPoints,
		&q.Recurrence, &active, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	q.Active = active != 0
	return &q, nil
}

const questCols = `id, child_id, title, description, reward_points, recurrence, active, created_by, created_at, updated_at`

func (s *QuestStore) Create(ctx context.Context, childID int64, title, description string, rewardPoints int, recurrence model.Recurrence, createdBy int64) (*model.Quest, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO quests (child_id, title, description, reward_points, recurrence, created_by) VALUES (?, ?, ?, ?, ?, ?)`,
		childID, title, description, rewardPoints, recurrence, createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert quest: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *QuestStore) GetByID(ctx context.Context, id int64) (*model.Quest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+questCols+` FROM quests WHERE id = ?`, id)
	q, err := scanQuest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quest: %w", err)
	}
	return q, nil
}

// ListByChild returns a child's quests ordered by title. With activeOnly
// set, deactivated quests are skipped.
func (s *QuestStore) ListByChild(ctx context.Context, childID int64, activeOnly bool) ([]model.Quest, error) {
	query := `SELECT ` + questCols + ` FROM quests WHERE child_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY title ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, childID)
	if err != nil {
		return nil, fmt.Errorf("list quests: %w", err)
	}
	defer rows.Close()

	var quests []model.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quest: %w", err)
		}
		quests = append(quests, *q)
	}
	return quests, rows.Err()
}

func (s *QuestStore) Update(ctx context.Context, id int64, title, description string, rewardPoints int, recurrence model.Recurrence) (*model.Quest, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE quests SET title = ?, description = ?, reward_points = ?, recurrence = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		title, description, rewardPoints, recurrence, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update quest: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *QuestStore) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE quests SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		boolInt(active), id,
	)
	if err != nil {
		return fmt.Errorf("set quest active: %w", err)
	}
	return nil
}

// --- Instance methods ---

func scanInstance(scanner interface{ Scan(...any) error }) (*model.QuestInstance, error) {
	var in model.QuestInstance
	var claimedAt, reviewedAt sql.NullTime
	var reviewerID sql.NullInt64

	err := scanner.Scan(
		&in.ID, &in.QuestID, &in.ChildID, &in.Period, &in.State,
		&claimedAt, &reviewedAt, &reviewerID, &in.Version,
		&in.CreatedAt, &in.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	in.ClaimedAt = nullTimePtr(claimedAt)
	in.ReviewedAt = nullTimePtr(reviewedAt)
	in.ReviewerID = nullInt64Ptr(reviewerID)
	return &in, nil
}

const instanceCols = `id, quest_id, child_id, period, state, claimed_at, reviewed_at, reviewer_id, version, created_at, updated_at`

// EnsureInstance creates the instance for (questID, period) if it does not
// exist yet and returns whichever row is stored.
func (s *QuestStore) EnsureInstance(ctx context.Context, questID, childID int64, period string) (*model.QuestInstance, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quest_instances (quest_id, child_id, period) VALUES (?, ?, ?)
		ON CONFLICT (quest_id, period) DO NOTHING`,
		questID, childID, period,
	)
	if err != nil {
		return nil, fmt.Errorf("insert quest instance: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+instanceCols+` FROM quest_instances WHERE quest_id = ? AND period = ?`,
		questID, period,
	)
	in, err := scanInstance(row)
	if err != nil {
		return nil, fmt.Errorf("get quest instance: %w", err)
	}
	return in, nil
}

func (s *QuestStore) GetInstance(ctx context.Context, id int64) (*model.QuestInstance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+instanceCols+` FROM quest_instances WHERE id = ?`, id)
	in, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quest instance: %w", err)
	}
	return in, nil
}

// ListInstancesByQuest returns a quest's instances, newest period first.
func (s *QuestStore) ListInstancesByQuest(ctx context.Context, questID int64, limit int) ([]model.QuestInstance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+instanceCols+` FROM quest_instances WHERE quest_id = ? ORDER BY period DESC LIMIT ?`,
		questID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list quest instances: %w", err)
	}
	defer rows.Close()

	var instances []model.QuestInstance
	for rows.Next() {
		in, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quest instance: %w", err)
		}
		instances = append(instances, *in)
	}
	return instances, rows.Err()
}

// The transition methods below are compare-and-swap updates: each reports
// whether the row was in the expected source state and has been changed.

func (s *QuestStore) ClaimInstance(ctx context.Context, id int64, at time.Time) (bool, error) {
	at = at.UTC()
	return s.transition(ctx,
		`UPDATE quest_instances
		SET state = 'claimed', claimed_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND state = 'open'`,
		at, at, id,
	)
}

// ReviewInstance moves a claimed instance to approved or rejected.
func (s *QuestStore) ReviewInstance(ctx context.Context, id int64, to model.InstanceState, reviewerID int64, at time.Time) (bool, error) {
	at = at.UTC()
	return s.transition(ctx,
		`UPDATE quest_instances
		SET state = ?, reviewed_at = ?, reviewer_id = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND state = 'claimed'`,
		to, at, reviewerID, at, id,
	)
}

func (s *QuestStore) ReopenInstance(ctx context.Context, id int64, at time.Time) (bool, error) {
	at = at.UTC()
	return s.transition(ctx,
		`UPDATE quest_instances
		SET state = 'open', claimed_at = NULL, reviewed_at = NULL, reviewer_id = NULL,
		    updated_at = ?, version = version + 1
		WHERE id = ? AND state = 'rejected'`,
		at, id,
	)
}

func (s *QuestStore) transition(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update quest instance: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
