package identity

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/kidquest/internal/apperr"
	"github.com/dukerupert/kidquest/internal/model"
)

// CreateChild adds a child profile owned by parentID.
func (r *Resolver) CreateChild(ctx context.Context, parentID int64, displayName string) (*model.ChildProfile, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, apperr.New(apperr.KindInvalid, "display name is required")
	}
	if _, err := r.RequireAdult(ctx, parentID); err != nil {
		return nil, err
	}
	c, err := r.children.Create(ctx, parentID, displayName)
	if err != nil {
		return nil, apperr.Transient("create child", err)
	}
	r.logger.Info("child created", "child_id", c.ID, "owner_id", parentID)
	return c, nil
}

// Children lists the profiles principalID may act on.
func (r *Resolver) Children(ctx context.Context, principalID int64) ([]model.ChildProfile, error) {
	if _, err := r.RequireActive(ctx, principalID); err != nil {
		return nil, err
	}
	children, err := r.children.ListAccessible(ctx, principalID)
	if err != nil {
		return nil, apperr.Transient("list children", err)
	}
	return children, nil
}

// LinkedChild returns the profile a child login is linked to, or nil for
// principals without one.
func (r *Resolver) LinkedChild(ctx context.Context, principalID int64) (*model.ChildProfile, error) {
	c, err := r.children.GetByPrincipal(ctx, principalID)
	if err != nil {
		return nil, apperr.Transient("get linked child", err)
	}
	return c, nil
}

// Grants lists the invitation grants on a child, for a parent deciding
// whom to revoke or re-invite.
func (r *Resolver) Grants(ctx context.Context, parentID, childID int64) ([]model.ChildAccess, error) {
	if _, err := r.RequireParent(ctx, parentID, childID); err != nil {
		return nil, err
	}
	grants, err := r.access.ListByChild(ctx, childID)
	if err != nil {
		return nil, apperr.Transient("list grants", err)
	}
	return grants, nil
}

// SetPIN stores a bcrypt hash of a 4-digit PIN for the child.
func (r *Resolver) SetPIN(ctx context.Context, parentID, childID int64, pin string) error {
	if len(pin) != 4 || !isDigits(pin) {
		return apperr.New(apperr.KindInvalid, "PIN must be exactly 4 digits")
	}
	if _, err := r.RequireParent(ctx, parentID, childID); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Wrap(apperr.KindInvalid, "hash PIN", err)
	}
	if err := r.children.SetPIN(ctx, childID, string(hash)); err != nil {
		return apperr.Transient("set child pin", err)
	}
	return nil
}

func (r *Resolver) ClearPIN(ctx context.Context, parentID, childID int64) error {
	if _, err := r.RequireParent(ctx, parentID, childID); err != nil {
		return err
	}
	if err := r.children.ClearPIN(ctx, childID); err != nil {
		return apperr.Transient("clear child pin", err)
	}
	return nil
}

// SetStatus disables or re-enables a principal. Only admins may call it,
// and an admin cannot disable themselves.
func (r *Resolver) SetStatus(ctx context.Context, adminID, targetID int64, status model.PrincipalStatus) (*model.Principal, error) {
	if !status.Valid() {
		return nil, apperr.Newf(apperr.KindInvalid, "invalid status %q", status)
	}
	admin, err := r.RequireActive(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if admin.Role != model.RoleAdmin {
		return nil, apperr.New(apperr.KindForbidden, "admin role required")
	}
	if adminID == targetID && status != model.PrincipalActive {
		return nil, apperr.New(apperr.KindInvalid, "cannot disable yourself")
	}

	ok, err := r.principals.SetStatus(ctx, targetID, status)
	if err != nil {
		return nil, apperr.Transient("set principal status", err)
	}
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "principal %d not found", targetID)
	}
	r.logger.Info("principal status changed", "principal_id", targetID, "status", status, "admin_id", adminID)
	return r.Principal(ctx, targetID)
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
