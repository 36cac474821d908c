// Package ledger keeps each child's append-only point ledger. Balances are
// always recomputed from entries and never stored.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dukerupert/kidquest/internal/apperr"
	"github.com/dukerupert/kidquest/internal/identity"
	"github.com/dukerupert/kidquest/internal/model"
	"github.com/dukerupert/kidquest/internal/store"
)

// DefaultHistoryLimit caps Entries when the caller passes no limit.
const DefaultHistoryLimit = 50

const maxHistoryLimit = 500

type Ledger struct {
	db       *sql.DB
	entries  *store.LedgerStore
	rewards  *store.RewardStore
	identity *identity.Resolver
	logger   *slog.Logger
}

func New(db *sql.DB, resolver *identity.Resolver, logger *slog.Logger) *Ledger {
	return &Ledger{
		db:       db,
		entries:  store.NewLedgerStore(db),
		rewards:  store.NewRewardStore(db),
		identity: resolver,
		logger:   logger.With("component", "ledger"),
	}
}

// CreditTx appends a credit using db, which may be a transaction. When a
// credit for the same source already exists, that entry is returned with
// created set to false.
func CreditTx(ctx context.Context, db store.DBTX, childID int64, amount int, sourceType model.SourceType, sourceID, note string) (entry *model.LedgerEntry, created bool, err error) {
	if amount <= 0 {
		return nil, false, apperr.Newf(apperr.KindInvalid, "credit amount must be positive, got %d", amount)
	}
	if !sourceType.Valid() {
		return nil, false, apperr.Newf(apperr.KindInvalid, "invalid source type %q", sourceType)
	}

	ls := store.NewLedgerStore(db)
	entry, err = ls.Credit(ctx, childID, amount, sourceType, sourceID, note)
	if errors.Is(err, store.ErrDuplicateSource) {
		existing, err := ls.GetCredit(ctx, sourceType, sourceID)
		if err != nil {
			return nil, false, apperr.Transient("get existing credit", err)
		}
		if existing == nil {
			return nil, false, apperr.Wrap(apperr.KindTransient, "duplicate credit vanished", store.ErrDuplicateSource)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, apperr.Transient("credit ledger", err)
	}
	return entry, true, nil
}

// Credit appends a positive entry. Crediting the same source twice is a
// duplicate effect and returns the original entry without error.
func (l *Ledger) Credit(ctx context.Context, childID int64, amount int, sourceType model.SourceType, sourceID string) (*model.LedgerEntry, error) {
	entry, created, err := CreditTx(ctx, l.db, childID, amount, sourceType, sourceID, "")
	if err != nil {
		return nil, err
	}
	if !created {
		l.logger.Debug("duplicate credit ignored", "child_id", childID, "source_type", sourceType, "source_id", sourceID)
		return entry, nil
	}
	l.logger.Info("ledger credited", "child_id", childID, "amount", amount, "source_type", sourceType, "source_id", sourceID)
	return entry, nil
}

// Debit appends a negative entry of -amount, failing with
// InsufficientBalance if the balance does not cover it. Repeating a reward
// redemption source returns the original entry without error.
func (l *Ledger) Debit(ctx context.Context, childID int64, amount int, sourceType model.SourceType, sourceID string) (*model.LedgerEntry, error) {
	entry, _, err := l.debit(ctx, childID, amount, sourceType, sourceID, "")
	return entry, err
}

func (l *Ledger) debit(ctx context.Context, childID int64, amount int, sourceType model.SourceType, sourceID, note string) (entry *model.LedgerEntry, created bool, err error) {
	if amount <= 0 {
		return nil, false, apperr.Newf(apperr.KindInvalid, "debit amount must be positive, got %d", amount)
	}
	if !sourceType.Valid() {
		return nil, false, apperr.Newf(apperr.KindInvalid, "invalid source type %q", sourceType)
	}

	entry, err = l.entries.Debit(ctx, childID, amount, sourceType, sourceID, note)
	// A replayed redemption may also fail the balance check, since the
	// original already spent the points.
	if sourceType == model.SourceRewardRedemption &&
		(errors.Is(err, store.ErrDuplicateSource) || errors.Is(err, store.ErrInsufficientFunds)) {
		existing, gerr := l.entries.GetDebit(ctx, sourceType, sourceID)
		if gerr != nil {
			return nil, false, apperr.Transient("get existing debit", gerr)
		}
		if existing != nil {
			l.logger.Debug("duplicate debit ignored", "child_id", childID, "source_type", sourceType, "source_id", sourceID)
			return existing, false, nil
		}
	}
	if errors.Is(err, store.ErrInsufficientFunds) {
		return nil, false, apperr.Newf(apperr.KindInsufficientBalance, "balance of child %d does not cover %d points", childID, amount)
	}
	if errors.Is(err, store.ErrDuplicateSource) {
		return nil, false, apperr.Wrap(apperr.KindTransient, "duplicate debit vanished", err)
	}
	if err != nil {
		return nil, false, apperr.Transient("debit ledger", err)
	}
	l.logger.Info("ledger debited", "child_id", childID, "amount", amount, "source_type", sourceType, "source_id", sourceID)
	return entry, true, nil
}

// Balance recomputes a child's balance from its entries.
func (l *Ledger) Balance(ctx context.Context, childID int64) (*model.PointBalance, error) {
	b, err := l.entries.Balance(ctx, childID)
	if err != nil {
		return nil, apperr.Transient("compute balance", err)
	}
	return b, nil
}

// Entries returns a child's history, newest first.
func (l *Ledger) Entries(ctx context.Context, childID int64, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	entries, err := l.entries.ListByChild(ctx, childID, limit)
	if err != nil {
		return nil, apperr.Transient("list ledger entries", err)
	}
	return entries, nil
}

// BalanceFor is Balance for a principal authorized for the child.
func (l *Ledger) BalanceFor(ctx context.Context, actorID, childID int64) (*model.PointBalance, error) {
	if err := l.identity.RequireAccess(ctx, actorID, childID); err != nil {
		return nil, err
	}
	return l.Balance(ctx, childID)
}

// EntriesFor is Entries for a principal authorized for the child.
func (l *Ledger) EntriesFor(ctx context.Context, actorID, childID int64, limit int) ([]model.LedgerEntry, error) {
	if err := l.identity.RequireAccess(ctx, actorID, childID); err != nil {
		return nil, err
	}
	return l.Entries(ctx, childID, limit)
}

// Adjust records a parent's manual correction. Positive amounts credit the
// child; negative amounts debit it and may not overdraw the balance.
func (l *Ledger) Adjust(ctx context.Context, actorID, childID int64, amount int, note string) (*model.LedgerEntry, error) {
	if amount == 0 {
		return nil, apperr.New(apperr.KindInvalid, "adjustment amount must be non-zero")
	}
	if _, err := l.identity.RequireParent(ctx, actorID, childID); err != nil {
		return nil, err
	}

	sourceID := uuid.NewString()
	if amount < 0 {
		entry, _, err := l.debit(ctx, childID, -amount, model.SourceAdjustment, sourceID, note)
		return entry, err
	}
	entry, _, err := CreditTx(ctx, l.db, childID, amount, model.SourceAdjustment, sourceID, note)
	if err != nil {
		return nil, err
	}
	l.logger.Info("ledger adjusted", "child_id", childID, "amount", amount, "actor_id", actorID)
	return entry, nil
}
