package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/containerd/errdefs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/rebalancer/pkg/audit"
	"github.com/cuemby/rebalancer/pkg/events"
	"github.com/cuemby/rebalancer/pkg/log"
	"github.com/cuemby/rebalancer/pkg/storage"
	"github.com/cuemby/rebalancer/pkg/strategy"
	"github.com/cuemby/rebalancer/pkg/types"
)

// AuditTrigger queues audit runs
type AuditTrigger interface {
	Trigger(auditID string) error
}

// Publisher accepts notifications for the incremental synchronizer
type Publisher interface {
	Publish(n *events.Notification)
}

// CreateAuditRequest is the body of POST /v1/audits
type CreateAuditRequest struct {
	Name         string          `json:"name,omitempty" yaml:"name"`
	Type         types.AuditType `json:"type,omitempty" yaml:"type"`
	GoalName     string          `json:"goal,omitempty" yaml:"goal"`
	StrategyName string          `json:"strategy,omitempty" yaml:"strategy"`
	Parameters   map[string]any  `json:"parameters,omitempty" yaml:"parameters"`
	Interval     string          `json:"interval,omitempty" yaml:"interval"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server is the rebalancer HTTP API
type Server struct {
	store      storage.Store
	audits     AuditTrigger
	strategies *strategy.Registry
	events     Publisher
	mux        *http.ServeMux
	srv        *http.Server
	logger     zerolog.Logger
}

// NewServer creates a new API server
func NewServer(store storage.Store, audits AuditTrigger, strategies *strategy.Registry, publisher Publisher) *Server {
	s := &Server{
		store:      store,
		audits:     audits,
		strategies: strategies,
		events:     publisher,
		mux:        http.NewServeMux(),
		logger:     log.WithComponent("api"),
	}

	registerHealth(s.mux)

	s.handle("POST /v1/audits", s.createAudit)
	s.handle("GET /v1/audits", s.listAudits)
	s.handle("GET /v1/audits/{id}", s.getAudit)
	s.handle("DELETE /v1/audits/{id}", s.deleteAudit)
	s.handle("POST /v1/audits/{id}/trigger", s.triggerAudit)
	s.handle("POST /v1/audits/{id}/cancel", s.cancelAudit)
	s.handle("GET /v1/audits/{id}/actionplan", s.getActionPlan)
	s.handle("GET /v1/goals", s.listGoals)
	s.handle("GET /v1/strategies", s.listStrategies)
	s.handle("POST /v1/notifications", s.publishNotification)

	return s
}

// Handler returns the HTTP handler for embedding in other servers
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves the API until Stop is called
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("HTTP API listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve API: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	s.mux.Handle(pattern, instrument(pattern, fn))
}

func (s *Server) createAudit(w http.ResponseWriter, r *http.Request) {
	var req CreateAuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, invalid("malformed request body: %v", err))
		return
	}

	a, err := s.newAudit(req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.CreateAudit(a); err != nil {
		writeError(w, err)
		return
	}

	logger := log.WithAuditID(a.ID)
	logger.Info().
		Str("type", string(a.Type)).
		Str("goal", a.GoalName).
		Str("strategy", a.StrategyName).
		Msg("Audit created")
	writeJSON(w, http.StatusCreated, a)
}

// newAudit validates a request against the strategy registry
func (s *Server) newAudit(req CreateAuditRequest) (*types.Audit, error) {
	if req.Type == "" {
		req.Type = types.AuditTypeOneShot
	}
	if req.Type != types.AuditTypeOneShot && req.Type != types.AuditTypeContinuous {
		return nil, invalid("unknown audit type %q", req.Type)
	}

	var interval time.Duration
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil {
			return nil, invalid("invalid interval %q: %v", req.Interval, err)
		}
		interval = d
	}
	if req.Type == types.AuditTypeContinuous && interval <= 0 {
		return nil, invalid("continuous audits need a positive interval")
	}

	switch {
	case req.StrategyName != "":
		info, ok := s.strategies.Get(req.StrategyName)
		if !ok {
			return nil, invalid("unknown strategy %q", req.StrategyName)
		}
		if req.GoalName == "" {
			req.GoalName = info.Goal
		} else if req.GoalName != info.Goal {
			return nil, invalid("strategy %s does not serve goal %s", info.Name, req.GoalName)
		}
		if _, err := strategy.Resolve(info.Schema, req.Parameters); err != nil {
			return nil, invalid("%v", err)
		}
	case req.GoalName != "":
		if len(s.strategies.ForGoal(req.GoalName)) == 0 {
			return nil, invalid("unknown goal %q", req.GoalName)
		}
	default:
		return nil, invalid("goal or strategy is required")
	}

	now := time.Now()
	return &types.Audit{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Type:         req.Type,
		State:        types.AuditStatePending,
		GoalName:     req.GoalName,
		StrategyName: req.StrategyName,
		Parameters:   req.Parameters,
		Interval:     interval,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *Server) listAudits(w http.ResponseWriter, r *http.Request) {
	audits, err := s.store.ListAudits()
	if err != nil {
		writeError(w, err)
		return
	}
	if audits == nil {
		audits = []*types.Audit{}
	}
	writeJSON(w, http.StatusOK, audits)
}

func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAudit(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) deleteAudit(w http.ResponseWriter, r *http.Request) {
	if err := s.store.SoftDeleteAudit(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// triggerAudit queues a run and answers before it starts
func (s *Server) triggerAudit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, err := s.store.GetAudit(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if a.State == types.AuditStateCancelled {
		writeError(w, fmt.Errorf("audit %s is cancelled: %w", id, errdefs.ErrFailedPrecondition))
		return
	}

	if err := s.audits.Trigger(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, a)
}

func (s *Server) cancelAudit(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.ModifyAudit(r.PathValue("id"), func(a *types.Audit) error {
		a.State = types.AuditStateCancelled
		a.StateReason = "cancelled by request"
		a.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) getActionPlan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetAudit(id); err != nil {
		writeError(w, err)
		return
	}
	plan, err := s.store.GetActionPlanByAudit(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) listGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.store.ListGoals()
	if err != nil {
		writeError(w, err)
		return
	}
	if goals == nil {
		goals = []*types.Goal{}
	}
	writeJSON(w, http.StatusOK, goals)
}

func (s *Server) listStrategies(w http.ResponseWriter, r *http.Request) {
	infos := s.strategies.List()
	if goal := r.URL.Query().Get("goal"); goal != "" {
		infos = s.strategies.ForGoal(goal)
	}
	if infos == nil {
		infos = []strategy.Info{}
	}
	writeJSON(w, http.StatusOK, infos)
}

// publishNotification feeds a compute service notification to the
// synchronizer. Delivery is asynchronous.
func (s *Server) publishNotification(w http.ResponseWriter, r *http.Request) {
	var n events.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeError(w, invalid("malformed notification: %v", err))
		return
	}
	if n.EventType == "" || n.PublisherID == "" {
		writeError(w, invalid("event_type and publisher_id are required"))
		return
	}

	s.events.Publish(&n)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": n.ID})
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errdefs.ErrInvalidArgument)
}

// statusFor maps an error to its HTTP status
func statusFor(err error) int {
	switch {
	case errdefs.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errdefs.IsAlreadyExists(err):
		return http.StatusConflict
	case errdefs.IsFailedPrecondition(err):
		return http.StatusConflict
	case errors.Is(err, audit.ErrQueueFull), errors.Is(err, audit.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
