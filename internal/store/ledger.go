package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/kidquest/internal/model"
)

// LedgerStore appends and reads point ledger entries. Entries are never
// updated or deleted; the schema rejects both.
type LedgerStore struct {
	db DBTX
}

func NewLedgerStore(db DBTX) *LedgerStore {
	return &LedgerStore{db: db}
}

func scanEntry(scanner interface{ Scan(...any) error }) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	err := scanner.Scan(&e.ID, &e.ChildID, &e.Amount, &e.SourceType, &e.SourceID, &e.Note, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const entryCols = `id, child_id, amount, source_type, source_id, note, created_at`

// Credit appends a positive entry. A second credit for the same source
// returns ErrDuplicateSource.
func (s *LedgerStore) Credit(ctx context.Context, childID int64, amount int, sourceType model.SourceType, sourceID, note string) (*model.LedgerEntry, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (child_id, amount, source_type, source_id, note) VALUES (?, ?, ?, ?, ?)`,
		childID, amount, sourceType, sourceID, note,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicateSource
	}
	if err != nil {
		return nil, fmt.Errorf("insert ledger credit: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Debit appends a negative entry of -amount only if the child's balance
// covers it. The balance check and insert are a single statement. A second
// reward redemption with the same source returns ErrDuplicateSource.
func (s *LedgerStore) Debit(ctx context.Context, childID int64, amount int, sourceType model.SourceType, sourceID, note string) (*model.LedgerEntry, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (child_id, amount, source_type, source_id, note)
		SELECT ?, ?, ?, ?, ?
		WHERE (SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE child_id = ?) >= ?`,
		childID, -amount, sourceType, sourceID, note,
		childID, amount,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicateSource
	}
	if err != nil {
		return nil, fmt.Errorf("insert ledger debit: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrInsufficientFunds
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *LedgerStore) GetByID(ctx context.Context, id int64) (*model.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryCols+` FROM ledger_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return e, nil
}

// GetCredit returns the positive entry recorded for a source, if any.
func (s *LedgerStore) GetCredit(ctx context.Context, sourceType model.SourceType, sourceID string) (*model.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryCols+` FROM ledger_entries WHERE source_type = ? AND source_id = ? AND amount > 0`,
		sourceType, sourceID,
	)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger credit: %w", err)
	}
	return e, nil
}

// GetDebit returns the earliest negative entry recorded for a source, if any.
func (s *LedgerStore) GetDebit(ctx context.Context, sourceType model.SourceType, sourceID string) (*model.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryCols+` FROM ledger_entries WHERE source_type = ? AND source_id = ? AND amount < 0 ORDER BY id LIMIT 1`,
		sourceType, sourceID,
	)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger debit: %w", err)
	}
	return e, nil
}

// ListByChild returns the newest entries first.
func (s *LedgerStore) ListByChild(ctx context.Context, childID int64, limit int) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryCols+` FROM ledger_entries WHERE child_id = ? ORDER BY id DESC LIMIT ?`,
		childID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Balance sums a child's entries: earned is the sum of credits, spent the
// magnitude of debits.
func (s *LedgerStore) Balance(ctx context.Context, childID int64) (*model.PointBalance, error) {
	var earned, spent int
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN amount < 0 THEN -amount ELSE 0 END), 0)
		FROM ledger_entries WHERE child_id = ?`,
		childID,
	).Scan(&earned, &spent)
	if err != nil {
		return nil, fmt.Errorf("sum ledger entries: %w", err)
	}

	return &model.PointBalance{
		ChildID:     childID,
		TotalEarned: earned,
		TotalSpent:  spent,
		Balance:     earned - spent,
	}, nil
}
