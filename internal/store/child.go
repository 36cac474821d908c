package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/kidquest/internal/model"
)

type ChildStore struct {
	db DBTX
}

func NewChildStore(db DBTX) *ChildStore {
	return &ChildStore{db: db}
}

func scanChild(scanner interface{ Scan(...any) error }) (*model.ChildProfile, error) {
	var c model.ChildProfile
	var principalID sql.NullInt64
	err := scanner.Scan(&c.ID, &c.OwnerParentID, &principalID, &c.DisplayName, &c.HasPIN, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.PrincipalID = nullInt64Ptr(principalID)
	return &c, nil
}

const childCols = `id, owner_parent_id, principal_id, display_name, pin_hash IS NOT NULL, created_at, updated_at`

func (s *ChildStore) Create(ctx context.Context, ownerParentID int64, displayName string) (*model.ChildProfile, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO child_profiles (owner_parent_id, display_name) VALUES (?, ?)`,
		ownerParentID, displayName,
	)
	if err != nil {
		return nil, fmt.Errorf("insert child profile: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ChildStore) GetByID(ctx context.Context, id int64) (*model.ChildProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+childCols+` FROM child_profiles WHERE id = ?`, id)
	c, err := scanChild(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get child profile: %w", err)
	}
	return c, nil
}

func (s *ChildStore) GetByPrincipal(ctx context.Context, principalID int64) (*model.ChildProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+childCols+` FROM child_profiles WHERE principal_id = ?`, principalID)
	c, err := scanChild(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get child profile by principal: %w", err)
	}
	return c, nil
}

// ListAccessible returns the profiles a principal owns, holds a grant for,
// or is linked to, ordered by name.
func (s *ChildStore) ListAccessible(ctx context.Context, principalID int64) ([]model.ChildProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+childCols+` FROM child_profiles
		WHERE owner_parent_id = ?
		   OR principal_id = ?
		   OR id IN (SELECT child_id FROM child_access WHERE principal_id = ?)
		ORDER BY display_name ASC, id ASC`,
		principalID, principalID, principalID,
	)
	if err != nil {
		return nil, fmt.Errorf("list child profiles: %w", err)
	}
	defer rows.Close()

	var children []model.ChildProfile
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child profile: %w", err)
		}
		children = append(children, *c)
	}
	return children, rows.Err()
}

// LinkPrincipal attaches a child's own login to the profile. It returns
// false if the profile is missing or already linked.
func (s *ChildStore) LinkPrincipal(ctx context.Context, childID, principalID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE child_profiles SET principal_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND principal_id IS NULL`,
		principalID, childID,
	)
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("link child principal: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *ChildStore) SetPIN(ctx context.Context, id int64, pinHash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE child_profiles SET pin_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		pinHash, id,
	)
	if err != nil {
		return fmt.Errorf("set child pin: %w", err)
	}
	return nil
}

func (s *ChildStore) ClearPIN(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE child_profiles SET pin_hash = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("clear child pin: %w", err)
	}
	return nil
}

// GetPINHash returns the stored bcrypt hash, or "" when no PIN is set.
func (s *ChildStore) GetPINHash(ctx context.Context, id int64) (string, error) {
	var hash sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT pin_hash FROM child_profiles WHERE id = ?`, id).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get child pin: %w", err)
	}
	return hash.String, nil
}
