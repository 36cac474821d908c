package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/kidquest/internal/auth"
	"github.com/dukerupert/kidquest/internal/ledger"
	"github.com/dukerupert/kidquest/internal/websocket"
)

// Broadcaster pushes a message to the subscribers who may see a child.
type Broadcaster interface {
	BroadcastToChild(childID int64, msg websocket.Message)
}

// LedgerHandler serves balances, history, adjustments and rewards.
type LedgerHandler struct {
	ledger *ledger.Ledger
	hub    Broadcaster
	logger *slog.Logger
}

func NewLedgerHandler(l *ledger.Ledger, hub Broadcaster, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: l, hub: hub, logger: logger}
}

func (h *LedgerHandler) broadcast(childID int64, msg websocket.Message) {
	if h.hub != nil {
		h.hub.BroadcastToChild(childID, msg)
	}
}

func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	childID, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	bal, err := h.ledger.BalanceFor(r.Context(), auth.PrincipalID(r.Context()), childID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (h *LedgerHandler) Entries(w http.ResponseWriter, r *http.Request) {
	childID, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	entries, err := h.ledger.EntriesFor(r.Context(), auth.PrincipalID(r.Context()), childID, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

type adjustmentRequest struct {
	Amount int    `json:"amount"`
	Note   string `json:"note"`
}

func (h *LedgerHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	childID, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req adjustmentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	entry, err := h.ledger.Adjust(r.Context(), auth.PrincipalID(r.Context()), childID, req.Amount, req.Note)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(childID, websocket.NewMessage("ledger", "adjusted", entry.ID, map[string]any{"child_id": childID, "amount": entry.Amount}))
	writeJSON(w, http.StatusCreated, entry)
}
