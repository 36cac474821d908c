// Package invite issues single-use, time-bounded invitations that grant
// another principal access to a parent's child profiles.
package invite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dukerupert/kidquest/internal/apperr"
	"github.com/dukerupert/kidquest/internal/identity"
	"github.com/dukerupert/kidquest/internal/model"
	"github.com/dukerupert/kidquest/internal/store"
)

const tokenBytes = 32

type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

type Manager struct {
	db          *sql.DB
	invitations *store.InvitationStore
	identity    *identity.Resolver
	defaultTTL  time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

func NewManager(db *sql.DB, resolver *identity.Resolver, defaultTTL time.Duration, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		db:          db,
		invitations: store.NewInvitationStore(db),
		identity:    resolver,
		defaultTTL:  defaultTTL,
		now:         time.Now,
		logger:      logger.With("component", "invite"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DefaultTTL is the lifetime used when a caller does not choose one.
func (m *Manager) DefaultTTL() time.Duration {
	return m.defaultTTL
}

// Invite creates a pending invitation for email to the given children. The
// inviter must be a parent with access to every child. A ttl of zero or
// less yields an invitation that is already expired.
func (m *Manager) Invite(ctx context.Context, inviterID int64, email string, childIDs []int64, role model.Role, ttl time.Duration) (*model.Invitation, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperr.Newf(apperr.KindInvalid, "invalid email %q", email)
	}
	if role != model.RoleParent && role != model.RoleChild {
		return nil, apperr.Newf(apperr.KindInvalid, "invalid invitation role %q", role)
	}
	childIDs = dedupe(childIDs)
	if len(childIDs) == 0 {
		return nil, apperr.New(apperr.KindInvalid, "at least one child is required")
	}
	if role == model.RoleChild && len(childIDs) != 1 {
		return nil, apperr.New(apperr.KindInvalid, "a child invitation targets exactly one child")
	}

	if _, err := m.identity.RequireAdult(ctx, inviterID); err != nil {
		return nil, err
	}
	for _, childID := range childIDs {
		if err := m.identity.RequireAccess(ctx, inviterID, childID); err != nil {
			return nil, err
		}
	}

	token, err := generateToken()
	if err != nil {
		return nil, apperr.Transient("generate token", err)
	}
	expiresAt := m.now().Add(ttl)

	var inv *model.Invitation
	err = store.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		var err error
		inv, err = store.NewInvitationStore(tx).Create(ctx, token, inviterID, email, role, childIDs, expiresAt)
		return err
	})
	if err != nil {
		return nil, apperr.Transient("create invitation", err)
	}

	m.logger.Info("invitation created", "invitation_id", inv.ID, "inviter_id", inviterID, "role", role, "children", len(childIDs))
	return inv, nil
}

// Redeem accepts an invitation on behalf of principalID. It fails with
// NotFound for an unknown token, Expired once the deadline has passed,
// AlreadyUsed if the invitation is no longer pending, and Forbidden when
// the principal's email does not match the invitee.
func (m *Manager) Redeem(ctx context.Context, token string, principalID int64) (*model.Invitation, error) {
	inv, err := m.invitations.GetByToken(ctx, token)
	if err != nil {
		return nil, apperr.Transient("get invitation", err)
	}
	if inv == nil {
		return nil, apperr.New(apperr.KindNotFound, "invitation not found")
	}
	if err := m.checkRedeemable(ctx, inv, m.now()); err != nil {
		return nil, err
	}

	principal, err := m.identity.RequireActive(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if principal.ID == inv.InviterParentID {
		return nil, apperr.New(apperr.KindForbidden, "cannot redeem your own invitation")
	}
	if !strings.EqualFold(strings.TrimSpace(principal.Email), inv.InviteeEmail) {
		return nil, apperr.New(apperr.KindForbidden, "invitation was issued to a different email")
	}

	// Accept re-checks the deadline against now, so an invitation that
	// expires after the check above is never accepted.
	now := m.now()
	err = store.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		ok, err := store.NewInvitationStore(tx).Accept(ctx, inv.ID, principal.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return errNotPending
		}
		switch inv.Role {
		case model.RoleParent:
			return grantParent(ctx, tx, principal, inv)
		case model.RoleChild:
			return linkChild(ctx, tx, principal, inv)
		}
		return fmt.Errorf("unknown invitation role %q", inv.Role)
	})
	if errors.Is(err, errNotPending) {
		current, err := m.invitations.GetByID(ctx, inv.ID)
		if err != nil {
			return nil, apperr.Transient("get invitation", err)
		}
		if err := m.checkRedeemable(ctx, current, now); err != nil {
			return nil, err
		}
		return nil, apperr.New(apperr.KindAlreadyUsed, "invitation already redeemed")
	}
	if err != nil {
		return nil, apperr.Transient("redeem invitation", err)
	}

	m.logger.Info("invitation redeemed", "invitation_id", inv.ID, "principal_id", principal.ID, "role", inv.Role)
	redeemed, err := m.invitations.GetByID(ctx, inv.ID)
	if err != nil {
		return nil, apperr.Transient("get invitation", err)
	}
	return redeemed, nil
}

var errNotPending = errors.New("invitation not pending")

// checkRedeemable returns nil only for a pending invitation still valid at
// now. A pending invitation past its deadline is flipped to expired.
func (m *Manager) checkRedeemable(ctx context.Context, inv *model.Invitation, now time.Time) error {
	switch inv.Status {
	case model.InvitationExpired:
		return apperr.New(apperr.KindExpired, "invitation expired")
	case model.InvitationAccepted:
		return apperr.New(apperr.KindAlreadyUsed, "invitation already accepted")
	case model.InvitationRevoked:
		return apperr.New(apperr.KindAlreadyUsed, "invitation revoked")
	}
	if inv.IsExpired(now) {
		if _, err := m.invitations.SetStatus(ctx, inv.ID, model.InvitationPending, model.InvitationExpired); err != nil {
			return apperr.Transient("expire invitation", err)
		}
		m.logger.Info("invitation expired", "invitation_id", inv.ID)
		return apperr.New(apperr.KindExpired, "invitation expired")
	}
	return nil
}

func grantParent(ctx context.Context, tx *sql.Tx, principal *model.Principal, inv *model.Invitation) error {
	if !identity.IsAdult(principal.Role) {
		return apperr.New(apperr.KindForbidden, "a child login cannot accept a parent invitation")
	}
	access := store.NewAccessStore(tx)
	for _, childID := range inv.TargetChildIDs {
		if err := access.Grant(ctx, principal.ID, childID, inv.ID); err != nil {
			return err
		}
	}
	return nil
}

func linkChild(ctx context.Context, tx *sql.Tx, principal *model.Principal, inv *model.Invitation) error {
	if principal.Role == model.RoleAdmin {
		return apperr.New(apperr.KindForbidden, "an admin cannot become a child login")
	}
	children := store.NewChildStore(tx)
	existing, err := children.ListAccessible(ctx, principal.ID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return apperr.New(apperr.KindForbidden, "principal already has child profiles")
	}
	if len(inv.TargetChildIDs) != 1 {
		return apperr.New(apperr.KindInvalid, "a child invitation targets exactly one child")
	}
	ok, err := children.LinkPrincipal(ctx, inv.TargetChildIDs[0], principal.ID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.KindAlreadyUsed, "child profile already has a login")
	}
	return store.NewPrincipalStore(tx).SetRole(ctx, principal.ID, model.RoleChild)
}

// Revoke cancels a pending invitation. Only the inviter may revoke.
func (m *Manager) Revoke(ctx context.Context, invitationID, actorID int64) (*model.Invitation, error) {
	inv, err := m.invitations.GetByID(ctx, invitationID)
	if err != nil {
		return nil, apperr.Transient("get invitation", err)
	}
	if inv == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "invitation %d not found", invitationID)
	}
	if inv.InviterParentID != actorID {
		return nil, apperr.New(apperr.KindForbidden, "only the inviter may revoke an invitation")
	}
	now := m.now()
	if err := m.checkRedeemable(ctx, inv, now); err != nil {
		return nil, err
	}

	ok, err := m.invitations.SetStatus(ctx, inv.ID, model.InvitationPending, model.InvitationRevoked)
	if err != nil {
		return nil, apperr.Transient("revoke invitation", err)
	}
	current, err := m.invitations.GetByID(ctx, inv.ID)
	if err != nil {
		return nil, apperr.Transient("get invitation", err)
	}
	if !ok {
		if err := m.checkRedeemable(ctx, current, now); err != nil {
			return nil, err
		}
		return nil, apperr.New(apperr.KindInvalidTransition, "invitation changed concurrently")
	}

	m.logger.Info("invitation revoked", "invitation_id", inv.ID, "actor_id", actorID)
	return current, nil
}

// List returns the invitations actorID has sent, newest first. Pending
// invitations past their deadline are reported as expired.
func (m *Manager) List(ctx context.Context, actorID int64) ([]model.Invitation, error) {
	if _, err := m.identity.RequireAdult(ctx, actorID); err != nil {
		return nil, err
	}
	invitations, err := m.invitations.ListByInviter(ctx, actorID)
	if err != nil {
		return nil, apperr.Transient("list invitations", err)
	}
	now := m.now()
	for i := range invitations {
		if invitations[i].Status == model.InvitationPending && invitations[i].IsExpired(now) {
			invitations[i].Status = model.InvitationExpired
		}
	}
	return invitations, nil
}

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func dedupe(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
