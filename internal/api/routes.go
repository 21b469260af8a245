package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zkorenberg/tboard/internal/api/handlers"
	apiMiddleware "github.com/zkorenberg/tboard/internal/api/middleware"
	"github.com/zkorenberg/tboard/internal/api/websocket"
	"github.com/zkorenberg/tboard/internal/board"
	"github.com/zkorenberg/tboard/internal/config"
	"github.com/zkorenberg/tboard/internal/events"
	"github.com/zkorenberg/tboard/internal/remote"
)

// Server is the board's HTTP/WS surface: task submission and lookup,
// execution-history and queue-depth introspection, admin shutdown, and a
// live event feed over WebSocket (spec.md §6).
type Server struct {
	router       *chi.Mux
	brd          *board.Board
	config       *config.Config
	taskHandler  *handlers.TaskHandler
	adminHandler *handlers.AdminHandler
	wsHub        *websocket.Hub
	wsHandler    *websocket.Handler
	publisher    *events.RedisPubSub
}

// NewServer wires a Server over a running Board, a registry of callable
// task functions, and (optionally) a remote-task ledger and event
// publisher. Either may be nil: a board created without a Redis transport
// has no leaked-envelope ledger, and a board run without Redis has no
// publisher, in which case events simply aren't broadcast over /ws.
func NewServer(cfg *config.Config, brd *board.Board, registry handlers.FuncRegistry, ledger *remote.LeakedLedger, publisher *events.RedisPubSub) *Server {
	wsHub := websocket.NewHub(publisher)

	s := &Server{
		router:       chi.NewRouter(),
		brd:          brd,
		config:       cfg,
		taskHandler:  handlers.NewTaskHandler(brd, registry, publisher),
		adminHandler: handlers.NewAdminHandler(brd, ledger),
		wsHub:        wsHub,
		wsHandler:    websocket.NewHandler(wsHub),
		publisher:    publisher,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apiMiddleware.RequestLogger())
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Heartbeat("/health"))
}

func (s *Server) setupRoutes() {
	authCfg := &apiMiddleware.AuthConfig{
		Enabled:   s.config.Auth.Enabled,
		JWTSecret: s.config.Auth.JWTSecret,
		APIKeys:   apiKeySet(s.config.Auth.APIKeys),
	}

	s.router.Route("/tasks", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		if s.config.Server.RateLimitRPS > 0 {
			r.Use(apiMiddleware.ClientRateLimit(s.config.Server.RateLimitRPS))
		}

		r.Post("/", s.taskHandler.Create)
		r.Get("/{taskID}", s.taskHandler.Get)
		r.Get("/", s.taskHandler.List)
	})

	s.router.Get("/history", s.historyRoute)

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(apiMiddleware.Auth(authCfg))

		r.Get("/queues", s.adminHandler.GetQueues)
		r.With(apiMiddleware.RequireOperatorRole).Post("/kill", s.adminHandler.Kill)
		r.Get("/leaked", s.adminHandler.ListLeaked)
		r.Get("/health", s.adminHandler.HealthCheck)
	})

	s.router.Get("/ws", s.wsHandler.ServeWS)

	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// historyRoute serves either the JSON or the text rendering of the
// execution-history table depending on ?format=text (spec.md §6
// history_print).
func (s *Server) historyRoute(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "text" {
		s.adminHandler.GetHistoryText(w, r)
		return
	}
	s.adminHandler.GetHistory(w, r)
}

func apiKeySet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}

// Start starts the WebSocket hub's broadcast loop.
func (s *Server) Start(ctx context.Context) {
	go s.wsHub.Run(ctx)
}

// Stop stops the WebSocket hub.
func (s *Server) Stop() {
	s.wsHub.Stop()
}

// Router returns the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Publisher returns the event publisher, which may be nil.
func (s *Server) Publisher() *events.RedisPubSub {
	return s.publisher
}
