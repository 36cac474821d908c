package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/kidquest/internal/apperr"
	"github.com/dukerupert/kidquest/internal/auth"
	"github.com/dukerupert/kidquest/internal/invite"
	"github.com/dukerupert/kidquest/internal/model"
)

// Mailer delivers invitation links.
type Mailer interface {
	Configured() bool
	AcceptLink(token string) string
	SendInvitation(ctx context.Context, inv *model.Invitation, inviterEmail string) error
}

type InvitationHandler struct {
	manager *invite.Manager
	mailer  Mailer
	logger  *slog.Logger
}

func NewInvitationHandler(manager *invite.Manager, mailer Mailer, logger *slog.Logger) *InvitationHandler {
	return &InvitationHandler{manager: manager, mailer: mailer, logger: logger}
}

type inviteRequest struct {
	Email    string     `json:"email"`
	ChildIDs []int64    `json:"child_ids"`
	Role     model.Role `json:"role"`
	TTL      string     `json:"ttl"`
}

type inviteResponse struct {
	Invitation *model.Invitation `json:"invitation"`
	Token      string            `json:"token"`
	AcceptURL  string            `json:"accept_url"`
	Emailed    bool              `json:"emailed"`
}

// Create issues an invitation and emails it when a mailer is configured.
// The token is returned to the inviter either way so the link can be
// shared by hand; a failed email does not undo the invitation.
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Role == "" {
		req.Role = model.RoleParent
	}
	ttl := h.manager.DefaultTTL()
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 {
			writeError(w, r, h.logger, apperr.Newf(apperr.KindInvalid, "invalid ttl %q", req.TTL))
			return
		}
		ttl = d
	}

	ac, _ := auth.FromContext(r.Context())
	inv, err := h.manager.Invite(r.Context(), ac.PrincipalID, req.Email, req.ChildIDs, req.Role, ttl)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := inviteResponse{Invitation: inv, Token: inv.Token}
	if h.mailer != nil {
		resp.AcceptURL = h.mailer.AcceptLink(inv.Token)
		if h.mailer.Configured() {
			if err := h.mailer.SendInvitation(r.Context(), inv, ac.Email); err != nil {
				h.logger.Warn("send invitation email", "invitation_id", inv.ID, "error", err)
			} else {
				resp.Emailed = true
			}
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	invs, err := h.manager.List(r.Context(), auth.PrincipalID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(invs))
}

type redeemRequest struct {
	Token string `json:"token"`
}

func (h *InvitationHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Token == "" {
		writeError(w, r, h.logger, apperr.New(apperr.KindInvalid, "token is required"))
		return
	}
	inv, err := h.manager.Redeem(r.Context(), req.Token, auth.PrincipalID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InvitationHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	inv, err := h.manager.Revoke(r.Context(), id, auth.PrincipalID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
