// Package server exposes the assistant over HTTP: one command
// endpoint, a health probe and a Prometheus scrape target.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crm-assistant/internal/assistant/authz"
	"crm-assistant/internal/assistant/dispatch"
	"crm-assistant/internal/assistant/router"
	"crm-assistant/internal/common/config"
	stderrors "crm-assistant/internal/common/errors"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/common/observability"
)

// Identity headers set by the fronting auth proxy.
const (
	headerUserID      = "X-User-Id"
	headerUserRole    = "X-User-Role"
	headerMasterAdmin = "X-Master-Admin"
)

// CommandRouter is the router contract, substitutable in tests.
type CommandRouter interface {
	Route(ctx context.Context, command string) (*router.OperationRequest, error)
}

// CommandDispatcher executes routed operations.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, caller authz.Caller, req *router.OperationRequest) (*dispatch.Result, error)
}

type Server struct {
	httpServer *http.Server
	mux        *chi.Mux
	router     CommandRouter
	dispatcher CommandDispatcher
	responder  *stderrors.Responder
	obs        *observability.Observability
	cfg        config.Config
	logger     logger.Logger
}

func New(cfg config.Config, cmdRouter CommandRouter, dispatcher CommandDispatcher, obs *observability.Observability, log logger.Logger) *Server {
	s := &Server{
		mux:        chi.NewRouter(),
		router:     cmdRouter,
		dispatcher: dispatcher,
		responder:  stderrors.NewResponder(log),
		obs:        obs,
		cfg:        cfg,
		logger:     log.WithFields(map[string]interface{}{"component": "server"}),
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Millisecond,
	}
	return s
}

func (s *Server) routes() {
	s.mux.Use(middleware.RequestID)
	s.mux.Use(middleware.Recoverer)
	s.mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", headerUserID, headerUserRole, headerMasterAdmin},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.mux.Get("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.Post("/api/assistant/command", s.handleCommand)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start() error {
	s.logger.Info("http server listening", map[string]interface{}{
		"addr": s.httpServer.Addr,
	})
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.cfg.App.Name,
		"version": s.cfg.App.Version,
	})
}

type commandRequest struct {
	Command string `json:"command"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	caller, err := s.callerFromHeaders(r)
	if err != nil {
		s.responder.WriteError(w, err)
		return
	}

	var body commandRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.responder.WriteError(w, stderrors.NewInvalidArgumentError("body", "request body must be JSON with a command field"))
		return
	}
	command := strings.TrimSpace(body.Command)
	if command == "" {
		s.responder.WriteError(w, stderrors.NewInvalidArgumentError("command", "command text is required"))
		return
	}
	if max := s.cfg.Assistant.MaxCommandLength; max > 0 && len(command) > max {
		s.responder.WriteError(w, stderrors.NewInvalidArgumentError("command",
			fmt.Sprintf("command text exceeds %d characters", max)))
		return
	}

	ctx := r.Context()

	oracleStart := time.Now()
	op, err := s.router.Route(ctx, command)
	s.obs.RecordOracleLatency(ctx, time.Since(oracleStart))
	if err != nil {
		s.recordOutcome(ctx, "", "error", start)
		s.responder.WriteError(w, err)
		return
	}

	result, err := s.dispatcher.Dispatch(ctx, caller, op)
	if err != nil {
		s.recordOutcome(ctx, string(op.Intent), "error", start)
		s.responder.WriteError(w, err)
		return
	}

	s.recordOutcome(ctx, string(op.Intent), "ok", start)
	writeJSON(w, http.StatusOK, result)
}

// callerFromHeaders builds the authenticated identity. Absent identity
// headers mean the auth proxy was bypassed; that is UNAUTHENTICATED,
// not a permission denial.
func (s *Server) callerFromHeaders(r *http.Request) (authz.Caller, error) {
	userID := strings.TrimSpace(r.Header.Get(headerUserID))
	roleHeader := strings.TrimSpace(r.Header.Get(headerUserRole))
	if userID == "" || roleHeader == "" {
		return authz.Caller{}, stderrors.NewUnauthenticatedError("identity headers are missing")
	}

	role, ok := authz.ParseRole(roleHeader)
	if !ok {
		return authz.Caller{}, stderrors.NewUnauthenticatedError(fmt.Sprintf("unknown role %q", roleHeader))
	}

	return authz.Caller{
		UserID:        userID,
		Role:          role,
		IsMasterAdmin: r.Header.Get(headerMasterAdmin) == "true",
	}, nil
}

func (s *Server) recordOutcome(ctx context.Context, intentName, status string, start time.Time) {
	s.obs.RecordCommand(ctx, intentName, status)
	s.obs.RecordCommandDuration(ctx, time.Since(start), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
