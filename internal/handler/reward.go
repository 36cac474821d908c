package handler

import (
	"net/http"

	"github.com/dukerupert/kidquest/internal/auth"
	"github.com/dukerupert/kidquest/internal/ledger"
	"github.com/dukerupert/kidquest/internal/websocket"
)

type rewardRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PointCost   int    `json:"point_cost"`
	Active      bool   `json:"active"`
}

func (req rewardRequest) input() ledger.RewardInput {
	return ledger.RewardInput{
		Title:       req.Title,
		Description: req.Description,
		PointCost:   req.PointCost,
		Active:      req.Active,
	}
}

func (h *LedgerHandler) CreateReward(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	reward, err := h.ledger.CreateReward(r.Context(), auth.PrincipalID(r.Context()), req.input())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, reward)
}

// ListRewards lists the rewards the caller owns.
func (h *LedgerHandler) ListRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.ledger.Rewards(r.Context(), auth.PrincipalID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rewards))
}

// ListChildRewards lists the active rewards a child can spend points on.
func (h *LedgerHandler) ListChildRewards(w http.ResponseWriter, r *http.Request) {
	childID, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rewards, err := h.ledger.RewardsForChild(r.Context(), auth.PrincipalID(r.Context()), childID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rewards))
}

func (h *LedgerHandler) UpdateReward(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req rewardRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	reward, err := h.ledger.UpdateReward(r.Context(), auth.PrincipalID(r.Context()), id, req.input())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

type redeemRewardRequest struct {
	ChildID        int64  `json:"child_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *LedgerHandler) RedeemReward(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req redeemRewardRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}
	red, err := h.ledger.RedeemReward(r.Context(), auth.PrincipalID(r.Context()), id, req.ChildID, key)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if red.Replayed {
		writeJSON(w, http.StatusOK, red)
		return
	}
	h.broadcast(req.ChildID, websocket.NewMessage("reward", "redeemed", red.Reward.ID, map[string]any{
		"child_id": req.ChildID,
		"entry_id": red.Entry.ID,
		"amount":   red.Entry.Amount,
	}))
	writeJSON(w, http.StatusCreated, red)
}
