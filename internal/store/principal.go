package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/kidquest/internal/model"
)

type PrincipalStore struct {
	db DBTX
}

func NewPrincipalStore(db DBTX) *PrincipalStore {
	return &PrincipalStore{db: db}
}

func scanPrincipal(scanner interface{ Scan(...any) error }) (*model.Principal, error) {
	var p model.Principal
	err := scanner.Scan(&p.ID, &p.AuthSubject, &p.Email, &p.Role, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const principalCols = `id, auth_subject, email, role, status, created_at, updated_at`

// Create inserts a principal. If another request created the same subject
// first, the existing row is returned.
func (s *PrincipalStore) Create(ctx context.Context, subject, email string, role model.Role) (*model.Principal, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO principals (auth_subject, email, role) VALUES (?, ?, ?)`,
		subject, email, role,
	)
	if isUniqueViolation(err) {
		return s.GetBySubject(ctx, subject)
	}
	if err != nil {
		return nil, fmt.Errorf("insert principal: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *PrincipalStore) GetByID(ctx context.Context, id int64) (*model.Principal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+principalCols+` FROM principals WHERE id = ?`, id)
	p, err := scanPrincipal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get principal: %w", err)
	}
	return p, nil
}

func (s *PrincipalStore) GetBySubject(ctx context.Context, subject string) (*model.Principal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+principalCols+` FROM principals WHERE auth_subject = ?`, subject)
	p, err := scanPrincipal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get principal by subject: %w", err)
	}
	return p, nil
}

func (s *PrincipalStore) UpdateEmail(ctx context.Context, id int64, email string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE principals SET email = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		email, id,
	)
	if err != nil {
		return fmt.Errorf("update principal email: %w", err)
	}
	return nil
}

// SetStatus returns false when no principal has the given id.
func (s *PrincipalStore) SetStatus(ctx context.Context, id int64, status model.PrincipalStatus) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE principals SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return false, fmt.Errorf("update principal status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *PrincipalStore) SetRole(ctx context.Context, id int64, role model.Role) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE principals SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		role, id,
	)
	if err != nil {
		return fmt.Errorf("update principal role: %w", err)
	}
	return nil
}
