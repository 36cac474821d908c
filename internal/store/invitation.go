package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/kidquest/internal/model"
)

type InvitationStore struct {
	db DBTX
}

func NewInvitationStore(db DBTX) *InvitationStore {
	return &InvitationStore{db: db}
}

func scanInvitation(scanner interface{ Scan(...any) error }) (*model.Invitation, error) {
	var inv model.Invitation
	var redeemedBy sql.NullInt64
	var redeemedAt sql.NullTime

	err := scanner.Scan(
		&inv.ID, &inv.Token, &inv.InviterParentID, &inv.InviteeEmail, &inv.Role,
		&inv.Status, &inv.ExpiresAt, &redeemedBy, &redeemedAt, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.RedeemedBy = nullInt64Ptr(redeemedBy)
	inv.RedeemedAt = nullTimePtr(redeemedAt)
	return &inv, nil
}

const invitationCols = `id, token, inviter_parent_id, invitee_email, role, status, expires_at, redeemed_by, redeemed_at, created_at`

// Create inserts the invitation and its target children. Run it inside a
// transaction so both land together.
func (s *InvitationStore) Create(ctx context.Context, token string, inviterID int64, email string, role model.Role, childIDs []int64, expiresAt time.Time) (*model.Invitation, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO invitations (token, inviter_parent_id, invitee_email, role, expires_at) VALUES (?, ?, ?, ?, ?)`,
		token, inviterID, email, role, expiresAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert invitation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for _, childID := range childIDs {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO invitation_children (invitation_id, child_id) VALUES (?, ?)
			ON CONFLICT DO NOTHING`,
			id, childID,
		); err != nil {
			return nil, fmt.Errorf("insert invitation child: %w", err)
		}
	}
	return s.GetByID(ctx, id)
}

func (s *InvitationStore) GetByID(ctx context.Context, id int64) (*model.Invitation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invitationCols+` FROM invitations WHERE id = ?`, id)
	return s.get(ctx, row)
}

func (s *InvitationStore) GetByToken(ctx context.Context, token string) (*model.Invitation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invitationCols+` FROM invitations WHERE token = ?`, token)
	return s.get(ctx, row)
}

func (s *InvitationStore) get(ctx context.Context, row *sql.Row) (*model.Invitation, error) {
	inv, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	inv.TargetChildIDs, err = s.targetChildren(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// ListByInviter returns an inviter's invitations, newest first.
func (s *InvitationStore) ListByInviter(ctx context.Context, inviterID int64) ([]model.Invitation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+invitationCols+` FROM invitations WHERE inviter_parent_id = ? ORDER BY id DESC`,
		inviterID,
	)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []model.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		invitations = append(invitations, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invitations: %w", err)
	}
	rows.Close()

	for i := range invitations {
		ids, err := s.targetChildren(ctx, invitations[i].ID)
		if err != nil {
			return nil, err
		}
		invitations[i].TargetChildIDs = ids
	}
	return invitations, nil
}

func (s *InvitationStore) targetChildren(ctx context.Context, invitationID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT child_id FROM invitation_children WHERE invitation_id = ? ORDER BY child_id ASC`,
		invitationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list invitation children: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan invitation child: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetStatus moves an invitation from one status to another. It reports
// false if the invitation was not in the expected status.
func (s *InvitationStore) SetStatus(ctx context.Context, id int64, from, to model.InvitationStatus) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE invitations SET status = ? WHERE id = ? AND status = ?`,
		to, id, from,
	)
	if err != nil {
		return false, fmt.Errorf("update invitation status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Accept marks a pending invitation redeemed by principalID. It reports
// false when the invitation is no longer pending or expired before at.
func (s *InvitationStore) Accept(ctx context.Context, id, principalID int64, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE invitations SET status = 'accepted', redeemed_by = ?, redeemed_at = ?
		WHERE id = ? AND status = 'pending' AND expires_at > ?`,
		principalID, at.UTC(), id, at.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("accept invitation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
