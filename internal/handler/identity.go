package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/kidquest/internal/auth"
	"github.com/dukerupert/kidquest/internal/identity"
	"github.com/dukerupert/kidquest/internal/model"
)

// IdentityHandler serves the caller's principal, child profiles and the
// admin status switch.
type IdentityHandler struct {
	resolver *identity.Resolver
	logger   *slog.Logger
}

func NewIdentityHandler(resolver *identity.Resolver, logger *slog.Logger) *IdentityHandler {
	return &IdentityHandler{resolver: resolver, logger: logger}
}

type meResponse struct {
	*model.Principal
	ChildProfile *model.ChildProfile `json:"child_profile,omitempty"`
}

// Me returns the caller; a child login also gets its linked profile.
func (h *IdentityHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, err := h.resolver.Principal(r.Context(), auth.PrincipalID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := meResponse{Principal: p}
	if p.Role == model.RoleChild {
		resp.ChildProfile, err = h.resolver.LinkedChild(r.Context(), p.ID)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type childRequest struct {
	DisplayName string `json:"display_name"`
}

func (h *IdentityHandler) CreateChild(w http.ResponseWriter, r *http.Request) {
	var req childRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	child, err := h.resolver.CreateChild(r.Context(), auth.PrincipalID(r.Context()), req.DisplayName)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, child)
}

func (h *IdentityHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.resolver.Children(r.Context(), auth.PrincipalID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(children))
}

func (h *IdentityHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	grants, err := h.resolver.Grants(r.Context(), auth.PrincipalID(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(grants))
}

type pinRequest struct {
	PIN string `json:"pin"`
}

func (h *IdentityHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req pinRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.resolver.SetPIN(r.Context(), auth.PrincipalID(r.Context()), id, req.PIN); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *IdentityHandler) ClearPIN(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.resolver.ClearPIN(r.Context(), auth.PrincipalID(r.Context()), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusRequest struct {
	Status model.PrincipalStatus `json:"status"`
}

// SetStatus enables or disables another principal. Admin only.
func (h *IdentityHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req statusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.resolver.SetStatus(r.Context(), auth.PrincipalID(r.Context()), id, req.Status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
