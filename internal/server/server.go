package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/kidquest/internal/config"
	"github.com/dukerupert/kidquest/internal/handler"
	"github.com/dukerupert/kidquest/internal/identity"
	"github.com/dukerupert/kidquest/internal/invite"
	"github.com/dukerupert/kidquest/internal/ledger"
	"github.com/dukerupert/kidquest/internal/middleware"
	"github.com/dukerupert/kidquest/internal/quest"
	ws "github.com/dukerupert/kidquest/internal/websocket"
)

// Per-principal budgets for routes that check a secret.
const (
	redeemLimit = 10
	claimLimit  = 10
	limitWindow = time.Minute
)

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	resolver    *identity.Resolver
	identityH   *handler.IdentityHandler
	questH      *handler.QuestHandler
	ledgerH     *handler.LedgerHandler
	invitationH *handler.InvitationHandler
	rateLimiter *middleware.RateLimiter
	jwtSecret   []byte
	jwtIssuer   string
	origins     []string
	logger      *slog.Logger
}

// New wires the services onto db. mailer may be nil, in which case
// invitation links are only returned to the inviter.
func New(cfg config.Config, db *sql.DB, mailer handler.Mailer, logger *slog.Logger) *Server {
	resolver := identity.New(db, cfg.AdminEmails, logger)
	hub := ws.NewHub(resolver, logger)

	registry := quest.NewRegistry(db, resolver, logger)
	machine := quest.NewMachine(db, resolver, logger,
		quest.WithLocation(cfg.Location()),
		quest.WithPublisher(hub),
	)
	led := ledger.New(db, resolver, logger)
	invites := invite.NewManager(db, resolver, cfg.InviteTTL, logger)

	return &Server{
		db:          db,
		hub:         hub,
		resolver:    resolver,
		identityH:   handler.NewIdentityHandler(resolver, logger.With("component", "identity_handler")),
		questH:      handler.NewQuestHandler(registry, machine, resolver, logger.With("component", "quest_handler")),
		ledgerH:     handler.NewLedgerHandler(led, hub, logger.With("component", "ledger_handler")),
		invitationH: handler.NewInvitationHandler(invites, mailer, logger.With("component", "invitation_handler")),
		rateLimiter: middleware.NewRateLimiter(),
		jwtSecret:   []byte(cfg.JWTSecret),
		jwtIssuer:   cfg.JWTIssuer,
		origins:     cfg.AllowedOrigins,
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Everything else needs a verified token
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.Authenticate(s.jwtSecret, s.jwtIssuer, s.resolver, s.logger.With("component", "auth"))
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// rateLimited keys each scope separately so one route cannot spend
// another's budget.
func (s *Server) rateLimited(scope string, limit int, h http.HandlerFunc) http.Handler {
	key := func(r *http.Request) string {
		return scope + ":" + middleware.KeyByPrincipal(r)
	}
	return middleware.RateLimit(s.rateLimiter, key, limit, limitWindow)(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.origins))

	// Identity and child profiles
	mux.HandleFunc("GET /api/me", s.identityH.Me)
	mux.HandleFunc("POST /api/children", s.identityH.CreateChild)
	mux.HandleFunc("GET /api/children", s.identityH.ListChildren)
	mux.HandleFunc("GET /api/children/{id}/access", s.identityH.ListGrants)
	mux.HandleFunc("POST /api/children/{id}/pin", s.identityH.SetPIN)
	mux.HandleFunc("DELETE /api/children/{id}/pin", s.identityH.ClearPIN)
	mux.Handle("PUT /api/admin/principals/{id}/status", middleware.RequireAdmin(http.HandlerFunc(s.identityH.SetStatus)))

	// Quests
	mux.HandleFunc("POST /api/quests", s.questH.Create)
	mux.HandleFunc("GET /api/quests/{id}", s.questH.Get)
	mux.HandleFunc("PUT /api/quests/{id}", s.questH.Update)
	mux.HandleFunc("DELETE /api/quests/{id}", s.questH.Deactivate)
	mux.HandleFunc("GET /api/quests/{id}/instances", s.questH.History)
	mux.HandleFunc("GET /api/children/{id}/quests", s.questH.ListByChild)

	// Quest instances
	mux.HandleFunc("GET /api/children/{id}/instances", s.questH.Current)
	mux.HandleFunc("GET /api/instances/{id}", s.questH.GetInstance)
	mux.Handle("POST /api/instances/{id}/claim", s.rateLimited("claim", claimLimit, s.questH.Claim))
	mux.HandleFunc("POST /api/instances/{id}/review", s.questH.Review)
	mux.HandleFunc("POST /api/instances/{id}/reopen", s.questH.Reopen)

	// Ledger
	mux.HandleFunc("GET /api/children/{id}/balance", s.ledgerH.Balance)
	mux.HandleFunc("GET /api/children/{id}/ledger", s.ledgerH.Entries)
	mux.HandleFunc("POST /api/children/{id}/adjustments", s.ledgerH.Adjust)

	// Rewards
	mux.HandleFunc("POST /api/rewards", s.ledgerH.CreateReward)
	mux.HandleFunc("GET /api/rewards", s.ledgerH.ListRewards)
	mux.HandleFunc("PUT /api/rewards/{id}", s.ledgerH.UpdateReward)
	mux.HandleFunc("POST /api/rewards/{id}/redeem", s.ledgerH.RedeemReward)
	mux.HandleFunc("GET /api/children/{id}/rewards", s.ledgerH.ListChildRewards)

	// Invitations
	mux.HandleFunc("POST /api/invitations", s.invitationH.Create)
	mux.HandleFunc("GET /api/invitations", s.invitationH.List)
	mux.Handle("POST /api/invitations/redeem", s.rateLimited("redeem", redeemLimit, s.invitationH.Redeem))
	mux.HandleFunc("POST /api/invitations/{id}/revoke", s.invitationH.Revoke)
}
