// Package server provides the HTTP server and routing for Sandogh.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/sandoghapp/sandogh/internal/config"
	"github.com/sandoghapp/sandogh/internal/database"
	"github.com/sandoghapp/sandogh/internal/events"
	"github.com/sandoghapp/sandogh/internal/modules/accounts"
	accountshandlers "github.com/sandoghapp/sandogh/internal/modules/accounts/handlers"
	"github.com/sandoghapp/sandogh/internal/modules/ledger"
	ledgerhandlers "github.com/sandoghapp/sandogh/internal/modules/ledger/handlers"
	"github.com/sandoghapp/sandogh/internal/modules/reports"
	reportshandlers "github.com/sandoghapp/sandogh/internal/modules/reports/handlers"
	"github.com/sandoghapp/sandogh/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log          zerolog.Logger
	LedgerDB     *database.DB
	CacheDB      *database.DB
	Config       *config.Config
	EventBus     *events.Bus
	EventManager *events.Manager

	AccountsRepo   *accounts.Repository
	LedgerService  *ledger.Service
	ReportsService *reports.Service
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	ledgerDB       *database.DB
	cacheDB        *database.DB
	eventBus       *events.Bus
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		log:      cfg.Log.With().Str("component", "server").Logger(),
		cfg:      cfg.Config,
		ledgerDB: cfg.LedgerDB,
		cacheDB:  cfg.CacheDB,
		eventBus: cfg.EventBus,
	}

	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.LedgerDB, cfg.CacheDB)

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// SetJobs registers job instances for manual triggering via the API
func (s *Server) SetJobs(reconcile, checkDatabase, backup scheduler.Job) {
	s.systemHandlers.SetJobs(reconcile, checkDatabase, backup)
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(cfg Config) {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Event delivery, SSE and WebSocket
		r.Get("/events/stream", NewEventsStreamHandler(cfg.EventBus, s.log).ServeHTTP)
		r.Get("/events/ws", NewEventsWSHandler(cfg.EventBus, s.log).ServeHTTP)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)

			r.Route("/jobs", func(r chi.Router) {
				r.Post("/reconcile-balances", s.systemHandlers.HandleTriggerReconcile)
				r.Post("/check-database", s.systemHandlers.HandleTriggerCheckDatabase)
				r.Post("/backup", s.systemHandlers.HandleTriggerBackup)
			})
		})

		accountshandlers.NewHandler(cfg.AccountsRepo, cfg.EventManager, s.log).RegisterRoutes(r)
		ledgerhandlers.NewHandler(cfg.LedgerService, s.log).RegisterRoutes(r)
		reportshandlers.NewHandler(cfg.ReportsService, s.log).RegisterRoutes(r)
	})
}

// handleHealth answers liveness checks with a quick ledger ping
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.ledgerDB.Conn().PingContext(ctx); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
