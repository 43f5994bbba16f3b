// Package server exposes the analytics engine and the agent over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/chainsight/chainsight/internal/config"
	"github.com/chainsight/chainsight/internal/database"
	"github.com/chainsight/chainsight/internal/engine"
	"github.com/chainsight/chainsight/internal/modules/agent"
	"github.com/chainsight/chainsight/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Port      int
	Log       zerolog.Logger
	Engine    *engine.Engine
	Agent     *agent.Agent
	Scheduler *scheduler.Scheduler
	Retrain   scheduler.Job
	DBs       []*database.DB
	Config    *config.Config
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	engine    *engine.Engine
	agent     *agent.Agent
	scheduler *scheduler.Scheduler
	retrain   scheduler.Job
	dbs       []*database.DB
	cfg       *config.Config

	sessionsMu sync.Mutex
	sessions   map[string]*agent.ConversationState
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		engine:    cfg.Engine,
		agent:     cfg.Agent,
		scheduler: cfg.Scheduler,
		retrain:   cfg.Retrain,
		dbs:       cfg.DBs,
		cfg:       cfg.Config,
		sessions:  make(map[string]*agent.ConversationState),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // agent turns can take a while
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(120 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
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
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/kpis", s.handleKPIs)
		r.Get("/forecast", s.handleForecast)
		r.Get("/inventory", s.handleInventory)
		r.Get("/regions", s.handleRegions)
		r.Get("/products/top", s.handleTopProducts)

		r.Route("/suppliers", func(r chi.Router) {
			r.Get("/", s.handleSupplierLeaderboard)
			r.Get("/{supplierID}", s.handleSupplier)
		})

		r.Route("/risk", func(r chi.Router) {
			r.Get("/evaluation", s.handleRiskEvaluation)
			r.Post("/whatif", s.handleRiskWhatIf)
		})

		r.Route("/agent", func(r chi.Router) {
			r.Post("/chat", s.handleAgentChat)
			r.Get("/ws", s.handleAgentWS)
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/health", s.handleSystemStatus)
			r.Post("/retrain", s.handleRetrain)
		})
	})
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

// session returns the conversation for an id, creating one when the id
// is empty or unknown.
func (s *Server) session(id string) *agent.ConversationState {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	if id != "" {
		if conv, ok := s.sessions[id]; ok {
			return conv
		}
	}
	conv := agent.NewConversation()
	s.sessions[conv.ID()] = conv
	return conv
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
