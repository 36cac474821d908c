package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/kidquest/internal/auth"
	"github.com/dukerupert/kidquest/internal/identity"
	"github.com/dukerupert/kidquest/internal/model"
	"github.com/dukerupert/kidquest/internal/quest"
)

type QuestHandler struct {
	registry *quest.Registry
	machine  *quest.Machine
	resolver *identity.Resolver
	logger   *slog.Logger
}

func NewQuestHandler(registry *quest.Registry, machine *quest.Machine, resolver *identity.Resolver, logger *slog.Logger) *QuestHandler {
	return &QuestHandler{registry: registry, machine: machine, resolver: resolver, logger: logger}
}

type questRequest struct {
	ChildID      int64            `json:"child_id"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	RewardPoints int              `json:"reward_points"`
	Recurrence   model.Recurrence `json:"recurrence"`
}

func (req questRequest) input() quest.Input {
	return quest.Input{
		Title:        req.Title,
		Description:  req.Description,
		RewardPoints: req.RewardPoints,
		Recurrence:   req.Recurrence,
	}
}

func (h *QuestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req questRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q, err := h.registry.Create(r.Context(), auth.PrincipalID(r.Context()), req.ChildID, req.input())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (h *QuestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q, err := h.registry.Get(r.Context(), auth.PrincipalID(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// ListByChild lists a child's quests; ?include_inactive=true adds
// deactivated ones.
func (h *QuestHandler) ListByChild(w http.ResponseWriter, r *http.Request) {
	childID, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	quests, err := h.registry.List(r.Context(), auth.PrincipalID(r.Context()), childID, includeInactive)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(quests))
}

func (h *QuestHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req questRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q, err := h.registry.Update(r.Context(), auth.PrincipalID(r.Context()), id, req.input())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *QuestHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.registry.Deactivate(r.Context(), auth.PrincipalID(r.Context()), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *QuestHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	instances, err := h.machine.History(r.Context(), auth.PrincipalID(r.Context()), id, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(instances))
}

// Current returns the child's instances for the current periods,
// materializing them on first read.
func (h *QuestHandler) Current(w http.ResponseWriter, r *http.Request) {
	childID, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	instances, err := h.machine.Current(r.Context(), auth.PrincipalID(r.Context()), childID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(instances))
}

type claimRequest struct {
	PIN string `json:"pin"`
}

// Claim marks an instance done. A child login claims for itself; an adult
// on a shared device passes the child's PIN.
func (h *QuestHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req claimRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	principalID := auth.PrincipalID(r.Context())
	in, err := h.machine.Instance(r.Context(), principalID, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	child, err := h.resolver.ActingChild(r.Context(), principalID, in.ChildID, req.PIN)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in, err = h.machine.Claim(r.Context(), id, child.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

type reviewRequest struct {
	Decision model.Decision `json:"decision"`
}

func (h *QuestHandler) Review(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req reviewRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in, err := h.machine.Review(r.Context(), id, auth.PrincipalID(r.Context()), req.Decision)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (h *QuestHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in, err := h.machine.Reopen(r.Context(), id, auth.PrincipalID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (h *QuestHandler) GetInstance(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in, err := h.machine.Instance(r.Context(), auth.PrincipalID(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}
