// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	service "github.com/okian/certwatch/internal/app"
	"github.com/okian/certwatch/internal/domain/model"
)

// CompanyHeader carries the tenant every request is scoped to.
const CompanyHeader = "X-Company-ID"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	NeedsDependencies
	PlanningDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	needsHandler    *NeedsHandler
	planningHandler *PlanningHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(deps),
		needsHandler:    NewNeedsHandler(deps),
		planningHandler: NewPlanningHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/detect-needs", MetricsMiddleware(s.needsHandler.HandleDetect, "detect_needs"))
	mux.HandleFunc("/needs-grouped", MetricsMiddleware(s.needsHandler.HandleGrouped, "needs_grouped"))
	mux.HandleFunc("/compare-costs", MetricsMiddleware(s.planningHandler.HandleCompare, "compare_costs"))
	mux.HandleFunc("/check-constraints", MetricsMiddleware(s.planningHandler.HandleCheck, "check_constraints"))
	mux.HandleFunc("/sessions", MetricsMiddleware(s.planningHandler.HandleCreateSession, "sessions"))
}

// Compile-time check that the service satisfies the handler dependencies.
var _ Dependencies = (*service.Service)(nil)

// Request and response shapes not owned by the domain packages.
type (
	detectRequest struct {
		HorizonDays int `json:"horizonDays"`
	}

	detectAccepted struct {
		Status    string          `json:"status"`
		CompanyID model.CompanyID `json:"companyId"`
	}

	warningsResponse struct {
		Warnings []model.Warning `json:"warnings"`
	}
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure picks the status from the error kind.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}

// companyFrom reads the tenant scope of r.
func companyFrom(r *http.Request) (model.CompanyID, error) {
	id := strings.TrimSpace(r.Header.Get(CompanyHeader))
	if id == "" {
		return "", ErrMissingTenant
	}
	return model.CompanyID(id), nil
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched
// when allowEmpty is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	if r.Body == nil || r.Body == http.NoBody {
		if allowEmpty {
			return nil
		}
		return fmt.Errorf("%w: empty body", ErrBadRequest)
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}
