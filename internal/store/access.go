package store

import (
	"context"
	"fmt"

	"github.com/dukerupert/kidquest/internal/model"
)

type AccessStore struct {
	db DBTX
}

func NewAccessStore(db DBTX) *AccessStore {
	return &AccessStore{db: db}
}

// Grant records access to a child. Granting twice keeps the first grant.
func (s *AccessStore) Grant(ctx context.Context, principalID, childID, invitationID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO child_access (principal_id, child_id, invitation_id) VALUES (?, ?, ?)
		ON CONFLICT (principal_id, child_id) DO NOTHING`,
		principalID, childID, invitationID,
	)
	if err != nil {
		return fmt.Errorf("insert child access: %w", err)
	}
	return nil
}

// HasAccess reports whether the principal owns the child, holds a grant
// for it, or is the child's own login. Principal status is not checked.
func (s *AccessStore) HasAccess(ctx context.Context, principalID, childID int64) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM child_profiles
			WHERE id = ? AND (owner_parent_id = ? OR principal_id = ?)
		) OR EXISTS (
			SELECT 1 FROM child_access WHERE child_id = ? AND principal_id = ?
		)`,
		childID, principalID, principalID, childID, principalID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check child access: %w", err)
	}
	return ok, nil
}

func (s *AccessStore) ListByChild(ctx context.Context, childID int64) ([]model.ChildAccess, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT principal_id, child_id, invitation_id, created_at FROM child_access
		WHERE child_id = ? ORDER BY created_at ASC, principal_id ASC`,
		childID,
	)
	if err != nil {
		return nil, fmt.Errorf("list child access: %w", err)
	}
	defer rows.Close()

	var grants []model.ChildAccess
	for rows.Next() {
		var g model.ChildAccess
		if err := rows.Scan(&g.PrincipalID, &g.ChildID, &g.InvitationID, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan child access: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}
