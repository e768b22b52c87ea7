package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/certwatch/internal/adapters/mq/queue"
	service "github.com/okian/certwatch/internal/app"
	"github.com/okian/certwatch/internal/domain/model"
	"github.com/okian/certwatch/internal/domain/needs"
)

// NeedsDependencies runs detection and reads grouped needs.
type NeedsDependencies interface {
	DetectNeeds(ctx context.Context, company model.CompanyID, horizonDays int) (needs.Report, error)
	EnqueueDetection(ctx context.Context, company model.CompanyID) error
	GroupedNeeds(ctx context.Context, company model.CompanyID) ([]needs.NeedGroup, error)
}

// NeedsHandler serves need detection and grouping.
type NeedsHandler struct {
	deps NeedsDependencies
}

// NewNeedsHandler creates a new needs handler.
func NewNeedsHandler(deps NeedsDependencies) *NeedsHandler {
	return &NeedsHandler{deps: deps}
}

// HandleDetect handles POST /detect-needs. With ?async=true the run is
// queued for the worker pool and 202 is returned.
func (h *NeedsHandler) HandleDetect(w http.ResponseWriter, r *http.Request) {
	const op = "api.detect_needs"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	company, err := companyFrom(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	var req detectRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if req.HorizonDays < 0 {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		h.enqueue(w, r, op, company)
		return
	}

	report, err := h.deps.DetectNeeds(r.Context(), company, req.HorizonDays)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *NeedsHandler) enqueue(w http.ResponseWriter, r *http.Request, op string, company model.CompanyID) {
	switch err := h.deps.EnqueueDetection(r.Context(), company); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, detectAccepted{Status: "queued", CompanyID: company})
	case errors.Is(err, service.ErrDetectionQueued):
		writeJSON(w, http.StatusAccepted, detectAccepted{Status: "already_queued", CompanyID: company})
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrQueueClosed):
		writeFailure(w, WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", Wrap(op, err))
	default:
		writeFailure(w, Wrap(op, err))
	}
}

// HandleGrouped handles GET /needs-grouped.
func (h *NeedsHandler) HandleGrouped(w http.ResponseWriter, r *http.Request) {
	const op = "api.needs_grouped"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	company, err := companyFrom(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	groups, err := h.deps.GroupedNeeds(r.Context(), company)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if groups == nil {
		groups = []needs.NeedGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}
