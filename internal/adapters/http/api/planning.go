package api

import (
	"context"
	"errors"
	"net/http"

	service "github.com/okian/certwatch/internal/app"
	"github.com/okian/certwatch/internal/domain/constraint"
	"github.com/okian/certwatch/internal/domain/cost"
	"github.com/okian/certwatch/internal/domain/model"
)

// PlanningDependencies compares costs, checks constraints and plans sessions.
type PlanningDependencies interface {
	CompareCosts(ctx context.Context, company model.CompanyID, req cost.Request) (cost.Result, error)
	CheckConstraints(ctx context.Context, company model.CompanyID, req constraint.Request) ([]model.Warning, error)
	CreateSession(ctx context.Context, company model.CompanyID, req service.SessionRequest) (service.SessionResult, error)
}

// PlanningHandler serves the planning endpoints.
type PlanningHandler struct {
	deps PlanningDependencies
}

// NewPlanningHandler creates a new planning handler.
func NewPlanningHandler(deps PlanningDependencies) *PlanningHandler {
	return &PlanningHandler{deps: deps}
}

// HandleCompare handles POST /compare-costs. A formation nobody offers or a
// headcount no center can host is still a 200; summary.status tells them apart.
func (h *PlanningHandler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	const op = "api.compare_costs"
	company, ok := h.begin(w, r, op)
	if !ok {
		return
	}
	var req cost.Request
	if err := decodeBody(w, r, &req, false); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	res, err := h.deps.CompareCosts(r.Context(), company, req)
	switch {
	case err == nil, errors.Is(err, cost.ErrNoOffering), errors.Is(err, cost.ErrCapacityExceeded), errors.Is(err, cost.ErrNoAvailableOption):
		if res.Centers == nil {
			res.Centers = []cost.CenterComparison{}
		}
		writeJSON(w, http.StatusOK, res)
	default:
		writeFailure(w, Wrap(op, err))
	}
}

// HandleCheck handles POST /check-constraints.
func (h *PlanningHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	const op = "api.check_constraints"
	company, ok := h.begin(w, r, op)
	if !ok {
		return
	}
	var req constraint.Request
	if err := decodeBody(w, r, &req, false); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	warnings, err := h.deps.CheckConstraints(r.Context(), company, req)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if warnings == nil {
		warnings = []model.Warning{}
	}
	writeJSON(w, http.StatusOK, warningsResponse{Warnings: warnings})
}

// HandleCreateSession handles POST /sessions. A replayed requestId answers
// 200 with duplicate set; a fresh session answers 201.
func (h *PlanningHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_session"
	company, ok := h.begin(w, r, op)
	if !ok {
		return
	}
	var req service.SessionRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	res, err := h.deps.CreateSession(r.Context(), company, req)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if res.Warnings == nil {
		res.Warnings = []model.Warning{}
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// begin rejects anything but POST and resolves the tenant.
func (h *PlanningHandler) begin(w http.ResponseWriter, r *http.Request, op string) (model.CompanyID, bool) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return "", false
	}
	company, err := companyFrom(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return "", false
	}
	return company, true
}
