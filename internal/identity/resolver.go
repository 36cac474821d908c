// Package identity resolves authenticated subjects to principals and
// decides which child profiles a principal may act on.
package identity

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/kidquest/internal/apperr"
	"github.com/dukerupert/kidquest/internal/model"
	"github.com/dukerupert/kidquest/internal/store"
)

type Resolver struct {
	principals  *store.PrincipalStore
	children    *store.ChildStore
	access      *store.AccessStore
	adminEmails map[string]bool
	logger      *slog.Logger
}

// New builds a Resolver. Principals whose email appears in adminEmails get
// the admin role when they are first created.
func New(db *sql.DB, adminEmails []string, logger *slog.Logger) *Resolver {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		if e = normalizeEmail(e); e != "" {
			admins[e] = true
		}
	}
	return &Resolver{
		principals:  store.NewPrincipalStore(db),
		children:    store.NewChildStore(db),
		access:      store.NewAccessStore(db),
		adminEmails: admins,
		logger:      logger.With("component", "identity"),
	}
}

// Resolve finds the principal for an authentication subject, creating it on
// first sight. A changed email from the provider is stored.
func (r *Resolver) Resolve(ctx context.Context, subject, email string) (*model.Principal, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, apperr.New(apperr.KindInvalid, "subject is required")
	}
	email = strings.TrimSpace(email)

	p, err := r.principals.GetBySubject(ctx, subject)
	if err != nil {
		return nil, apperr.Transient("resolve principal", err)
	}
	if p != nil {
		if email != "" && email != p.Email {
			if err := r.principals.UpdateEmail(ctx, p.ID, email); err != nil {
				return nil, apperr.Transient("update principal email", err)
			}
			p.Email = email
		}
		return p, nil
	}

	role := model.RoleParent
	if r.adminEmails[normalizeEmail(email)] {
		role = model.RoleAdmin
	}
	p, err = r.principals.Create(ctx, subject, email, role)
	if err != nil {
		return nil, apperr.Transient("create principal", err)
	}
	r.logger.Info("principal created", "principal_id", p.ID, "role", p.Role)
	return p, nil
}

// Principal loads a principal by id.
func (r *Resolver) Principal(ctx context.Context, id int64) (*model.Principal, error) {
	p, err := r.principals.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Transient("get principal", err)
	}
	if p == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "principal %d not found", id)
	}
	return p, nil
}

// Authorize reports whether principalID may act on childID: it must be
// active and either own the child, hold an accepted grant for it, or be
// the child's own login. Admins get no implicit access.
func (r *Resolver) Authorize(ctx context.Context, principalID, childID int64) (bool, error) {
	p, err := r.principals.GetByID(ctx, principalID)
	if err != nil {
		return false, apperr.Transient("get principal", err)
	}
	if p == nil || p.Status != model.PrincipalActive {
		return false, nil
	}
	ok, err := r.access.HasAccess(ctx, principalID, childID)
	if err != nil {
		return false, apperr.Transient("check access", err)
	}
	return ok, nil
}

// RequireAccess is Authorize as an error: Forbidden when access is denied.
// A missing child is reported as Forbidden too.
func (r *Resolver) RequireAccess(ctx context.Context, principalID, childID int64) error {
	ok, err := r.Authorize(ctx, principalID, childID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Newf(apperr.KindForbidden, "principal %d may not access child %d", principalID, childID)
	}
	return nil
}

// RequireActive returns the principal if it exists and is active.
func (r *Resolver) RequireActive(ctx context.Context, principalID int64) (*model.Principal, error) {
	p, err := r.principals.GetByID(ctx, principalID)
	if err != nil {
		return nil, apperr.Transient("get principal", err)
	}
	if p == nil || p.Status != model.PrincipalActive {
		return nil, apperr.Newf(apperr.KindForbidden, "principal %d is not active", principalID)
	}
	return p, nil
}

// RequireAdult returns the principal if it is an active parent or admin.
func (r *Resolver) RequireAdult(ctx context.Context, principalID int64) (*model.Principal, error) {
	p, err := r.RequireActive(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if !IsAdult(p.Role) {
		return nil, apperr.Newf(apperr.KindForbidden, "principal %d is not a parent", principalID)
	}
	return p, nil
}

// RequireParent checks that principalID is an active adult authorized for
// childID.
func (r *Resolver) RequireParent(ctx context.Context, principalID, childID int64) (*model.Principal, error) {
	p, err := r.RequireAdult(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if err := r.RequireAccess(ctx, principalID, childID); err != nil {
		return nil, err
	}
	return p, nil
}

// ActingChild returns the child profile a principal is acting as. A child
// login acts as its own linked profile. An adult with access can act as a
// child on a shared device by supplying the child's PIN.
func (r *Resolver) ActingChild(ctx context.Context, principalID, childID int64, pin string) (*model.ChildProfile, error) {
	p, err := r.RequireActive(ctx, principalID)
	if err != nil {
		return nil, err
	}
	child, err := r.children.GetByID(ctx, childID)
	if err != nil {
		return nil, apperr.Transient("get child", err)
	}
	// An unknown child reads the same as one the principal cannot act for.
	if child == nil {
		return nil, apperr.Newf(apperr.KindForbidden, "principal %d has no access to child %d", p.ID, childID)
	}

	if p.Role == model.RoleChild {
		if child.PrincipalID == nil || *child.PrincipalID != p.ID {
			return nil, apperr.Newf(apperr.KindForbidden, "principal %d is not child %d", p.ID, childID)
		}
		return child, nil
	}

	if err := r.RequireAccess(ctx, p.ID, childID); err != nil {
		return nil, err
	}
	hash, err := r.children.GetPINHash(ctx, childID)
	if err != nil {
		return nil, apperr.Transient("get child pin", err)
	}
	if hash == "" {
		return nil, apperr.Newf(apperr.KindForbidden, "child %d has no PIN", childID)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)); err != nil {
		return nil, apperr.New(apperr.KindForbidden, "incorrect PIN")
	}
	return child, nil
}

// IsAdult reports whether a role may review quests and send invitations.
func IsAdult(role model.Role) bool {
	return role == model.RoleParent || role == model.RoleAdmin
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
