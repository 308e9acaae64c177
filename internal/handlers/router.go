package handlers

import (
	"net/http"
	"strings"

	"ledgerd/internal/config"
	"ledgerd/internal/logging"
	"ledgerd/internal/middleware"
	"ledgerd/internal/validator"
	"ledgerd/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	gorilla "github.com/gorilla/websocket"
)

type Handler struct {
	cfg           config.Config
	accounts      AccountService
	ledger        LedgerService
	authenticator middleware.Authenticator
	hub           *websocket.Hub
	upgrader      gorilla.Upgrader
	metrics       http.Handler
	validate      *validator.Validator
	logger        *logging.Logger
}

type Options struct {
	Config        config.Config
	Accounts      AccountService
	Ledger        LedgerService
	Authenticator middleware.Authenticator
	Hub           *websocket.Hub
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  *logging.Logger
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	hub := opts.Hub
	if hub == nil {
		hub = websocket.NewHub()
	}
	return &Handler{
		cfg:           opts.Config,
		accounts:      opts.Accounts,
		ledger:        opts.Ledger,
		authenticator: opts.Authenticator,
		hub:           hub,
		upgrader:      websocket.Upgrader(allowedOrigins(opts.Config.AllowedOrigins)),
		metrics:       opts.Metrics,
		validate:      validator.New(),
		logger:        logger.Named("http"),
	}
}

func (h *Handler) Routes() http.Handler {
	authenticate := middleware.Authenticate(h.authenticator)
	throttle := middleware.RateLimit(h.cfg.RateLimitPerMinute)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestLogger(h.logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.SecureHeaders(!h.cfg.IsDevelopment()))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(h.cfg.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/auth", func(r chi.Router) {
		r.With(throttle).Post("/register", h.Register)
		r.With(throttle).Post("/login", h.Login)
		r.Post("/confirm-email", h.ConfirmEmail)
		r.With(throttle).Post("/forgot-password", h.ForgotPassword)
		r.With(throttle).Post("/reset-password", h.ResetPassword)
		r.With(authenticate).Post("/logout", h.Logout)
		r.With(authenticate).Get("/me", h.Me)
	})
	router.Route("/accounts", func(r chi.Router) {
		r.Use(authenticate)
		r.Get("/", h.ListAccounts)
		r.Get("/{id}", h.GetAccount)
		r.Put("/{id}/profile", h.UpdateProfile)
		r.Get("/{id}/transactions", h.ListTransactions)
	})
	router.Route("/transactions", func(r chi.Router) {
		r.Use(authenticate)
		r.Post("/deposit", h.Deposit)
		r.Post("/transfer", h.Transfer)
	})
	router.Route("/admin", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(middleware.RequireAdmin)
		r.Get("/audit", h.AuditLogs)
		r.Get("/reconcile", h.Reconcile)
	})
	router.Get("/ws/balances", h.WSBalances)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.metrics != nil {
		router.Method(http.MethodGet, "/metrics", h.metrics)
	}
	return router
}

func allowedOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
