// Package service wires the planning domain to storage and the background
// workers, and implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	jobqueue "github.com/okian/certwatch/internal/adapters/mq/queue"
	workerpool "github.com/okian/certwatch/internal/adapters/mq/worker"
	"github.com/okian/certwatch/internal/adapters/repository"
	"github.com/okian/certwatch/internal/domain/constraint"
	"github.com/okian/certwatch/internal/domain/cost"
	"github.com/okian/certwatch/internal/domain/dedupe"
	"github.com/okian/certwatch/internal/domain/model"
	"github.com/okian/certwatch/internal/domain/needs"
	"github.com/okian/certwatch/internal/domain/scoring"
	"github.com/okian/certwatch/pkg/logger"
	"github.com/okian/certwatch/pkg/metrics"
	"github.com/shopspring/decimal"
)

const detectKeyPrefix = "detect:"

// Store is the persistence the service needs.
type Store interface {
	needs.Store
	cost.Catalog
	constraint.Source

	Companies(ctx context.Context) ([]model.CompanyID, error)
	NeedCounts(ctx context.Context) (map[model.NeedStatus]int64, error)
	CreateSession(ctx context.Context, session model.TrainingSession) (model.TrainingSession, error)
	Session(ctx context.Context, company model.CompanyID, id string) (model.TrainingSession, error)
}

// SessionRequest asks to plan a session from a chosen comparison.
type SessionRequest struct {
	RequestID        string          `json:"requestId,omitempty"`
	FormationTypeID  string          `json:"formationTypeId"`
	CenterID         string          `json:"centerId"`
	IsIntraCompany   bool            `json:"isIntraCompany"`
	StartDate        string          `json:"startDate"`
	EndDate          string          `json:"endDate,omitempty"`
	TrainingCost     decimal.Decimal `json:"trainingCost"`
	TotalAbsenceCost decimal.Decimal `json:"totalAbsenceCost"`
	TotalCost        decimal.Decimal `json:"totalCost"`
	EmployeeIDs      []string        `json:"employeeIds"`
	TrainingNeedIDs  []string        `json:"trainingNeedIds"`
}

// SessionResult is a planned session with the advisory warnings for its dates.
type SessionResult struct {
	Session   model.TrainingSession `json:"session"`
	Warnings  []model.Warning       `json:"warnings"`
	Duplicate bool                  `json:"duplicate"`
}

// Service implements the API dependencies for the planning core.
type Service struct {
	mu sync.RWMutex

	store      Store
	scorer     *scoring.Engine
	detector   *needs.Detector
	comparator *cost.Comparator
	validator  *constraint.Validator
	deduper    dedupe.Deduper
	jobs       jobqueue.Queue
	pool       *workerpool.Pool

	workerCount    int
	queueSize      int
	dedupeSize     int
	horizonDays    int
	detectInterval time.Duration
	bands          [3]int
	customBands    bool
	legalFloor     *int
	hoursPerDay    float64
	defaultDays    model.WeekdayMask
	now            func() time.Time

	detections  atomic.Int64
	comparisons atomic.Int64
	checks      atomic.Int64
	sessions    atomic.Int64

	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// pending holds companies with a detection queued or running.
	pendingMu sync.Mutex
	pending   map[model.CompanyID]struct{}

	logger logger.Logger
}

// New constructs a Service over store. Synchronous operations work right
// away; Start launches the background detection scheduler.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:          store,
		workerCount:    runtime.NumCPU(),
		queueSize:      1024,
		dedupeSize:     10000,
		horizonDays:    90,
		detectInterval: time.Hour,
		hoursPerDay:    7,
		defaultDays:    model.MondayToFriday,
		now:            time.Now,
		pending:        make(map[model.CompanyID]struct{}),
		logger:         logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	var scoringOpts []scoring.Option
	if s.customBands {
		scoringOpts = append(scoringOpts, scoring.WithThresholds(s.bands[0], s.bands[1], s.bands[2]))
	}
	if s.legalFloor != nil {
		scoringOpts = append(scoringOpts, scoring.WithLegalFloor(*s.legalFloor))
	}
	s.scorer = scoring.NewEngine(scoringOpts...)
	s.detector = needs.NewDetector(store, needs.WithScorer(s.scorer), needs.WithClock(s.now))
	s.comparator = cost.NewComparator(cost.WithHoursPerDay(s.hoursPerDay))
	s.validator = constraint.NewValidator(constraint.WithDefaultTrainingDays(s.defaultDays))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// Start launches the worker pool and, when an interval is set, the scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting planning service...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.jobs = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.jobs, s.detector, workerpool.WithOnDone(s.detectionDone))
	s.pool.Start(runCtx)

	if s.detectInterval > 0 {
		s.wg.Add(1)
		go s.schedule(runCtx)
	}

	s.started = true
	s.logger.Info(ctx, "planning service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("detectionInterval", s.detectInterval))
	return nil
}

// Stop stops the workers and the scheduler. Jobs still queued are dropped
// and their companies can be queued again after the next Start.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel, pool, jobs := s.cancel, s.pool, s.jobs
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping planning service...")
	cancel()
	s.wg.Wait()
	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not stop cleanly", logger.Error(err))
	}
	dropped := 0
	for range jobs.Dequeue(ctx) {
		dropped++
	}
	released := s.releasePending(ctx)
	s.logger.Info(ctx, "planning service stopped",
		logger.Int("droppedJobs", dropped),
		logger.Int("releasedCompanies", released))
}

// releasePending forgets every queued or running detection.
func (s *Service) releasePending(ctx context.Context) int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	n := len(s.pending)
	for company := range s.pending {
		s.deduper.Unrecord(ctx, detectKeyPrefix+string(company))
	}
	clear(s.pending)
	return n
}

func (s *Service) markPending(company model.CompanyID, on bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if on {
		s.pending[company] = struct{}{}
	} else {
		delete(s.pending, company)
	}
}

func (s *Service) schedule(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.detectInterval)
	defer ticker.Stop()
	for {
		if _, err := s.ScheduleAll(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error(ctx, "scheduling detection failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ScheduleAll queues a detection job for every company and returns how many
// were queued. Companies with a job already pending are skipped.
func (s *Service) ScheduleAll(ctx context.Context) (int, error) {
	companies, err := s.store.Companies(ctx)
	if err != nil {
		return 0, fmt.Errorf("list companies: %w", err)
	}
	queued := 0
	for _, company := range companies {
		switch err := s.EnqueueDetection(ctx, company); {
		case err == nil:
			queued++
		case errors.Is(err, ErrDetectionQueued):
		default:
			return queued, err
		}
	}
	return queued, nil
}

// EnqueueDetection queues a background detection run for company unless one
// is already pending or running.
func (s *Service) EnqueueDetection(ctx context.Context, company model.CompanyID) error {
	s.mu.RLock()
	jobs, started := s.jobs, s.started
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}

	key := detectKeyPrefix + string(company)
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordDetectionCoalesced()
		return ErrDetectionQueued
	}
	s.markPending(company, true)
	job := model.DetectionJob{
		ID:          uuid.NewString(),
		CompanyID:   company,
		HorizonDays: s.horizonDays,
		RequestedAt: s.now(),
	}
	if err := jobs.Enqueue(ctx, job); err != nil {
		s.markPending(company, false)
		s.deduper.Unrecord(ctx, key)
		return fmt.Errorf("enqueue detection for %s: %w", company, err)
	}
	return nil
}

func (s *Service) detectionDone(job workerpool.Job, report needs.Report, err error) {
	ctx := context.Background()
	s.markPending(job.CompanyID, false)
	s.deduper.Unrecord(ctx, detectKeyPrefix+string(job.CompanyID))
	s.detections.Add(1)
	if err != nil {
		return
	}
	s.logger.Debug(ctx, "background detection finished",
		logger.String("job", job.ID),
		logger.String("company", string(job.CompanyID)),
		logger.Int("created", report.Created),
		logger.Int("cancelled", report.Cancelled))
}

// DetectNeeds runs detection for company now. A horizon of zero or less
// uses the configured default.
func (s *Service) DetectNeeds(ctx context.Context, company model.CompanyID, horizonDays int) (needs.Report, error) {
	if horizonDays <= 0 {
		horizonDays = s.horizonDays
	}
	start := time.Now()
	report, err := s.detector.Detect(ctx, company, horizonDays)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordDetectionRun("api", outcome, float64(time.Since(start).Milliseconds()))
	if err != nil {
		return needs.Report{}, err
	}
	metrics.RecordNeedsChanged(report.Created, report.Updated, report.Cancelled, report.Skipped)
	s.detections.Add(1)
	return report, nil
}

// GroupedNeeds returns the OPEN needs of company grouped by formation.
func (s *Service) GroupedNeeds(ctx context.Context, company model.CompanyID) ([]needs.NeedGroup, error) {
	open, err := s.store.Needs(ctx, company, model.NeedOpen)
	if err != nil {
		return nil, err
	}
	employees, err := s.store.Employees(ctx, company)
	if err != nil {
		return nil, err
	}
	formations, err := s.store.FormationTypes(ctx, company)
	if err != nil {
		return nil, err
	}
	return needs.Group(needs.Enrich(open, employees, formations)), nil
}

// CompareCosts compares delivery options. ErrNoOffering, ErrCapacityExceeded
// and ErrNoAvailableOption come back with a populated result.
func (s *Service) CompareCosts(ctx context.Context, company model.CompanyID, req cost.Request) (cost.Result, error) {
	start := time.Now()
	res, err := s.comparator.CompareFor(ctx, s.store, company, req)
	if res.Summary.Status != "" {
		metrics.RecordComparison(string(res.Summary.Status), float64(time.Since(start).Microseconds())/1000)
		s.comparisons.Add(1)
	}
	return res, err
}

// CheckConstraints returns the advisory warnings for a date or date range.
func (s *Service) CheckConstraints(ctx context.Context, company model.CompanyID, req constraint.Request) ([]model.Warning, error) {
	warnings, err := s.validator.CheckFor(ctx, s.store, company, req)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		metrics.RecordConstraintWarning(string(w.Type), string(w.Severity))
	}
	s.checks.Add(1)
	return warnings, nil
}

// CreateSession plans a session and consumes its needs. A repeated
// RequestID returns the session created the first time.
func (s *Service) CreateSession(ctx context.Context, company model.CompanyID, req SessionRequest) (SessionResult, error) {
	session, err := s.sessionFrom(company, req)
	if err != nil {
		return SessionResult{}, err
	}

	var key string
	if req.RequestID != "" {
		key = string(company) + "/" + req.RequestID
		if s.deduper.SeenAndRecord(ctx, key) {
			return s.replay(ctx, company, key)
		}
	}

	warnings := s.sessionWarnings(ctx, session)
	session, err = s.store.CreateSession(ctx, session)
	if err != nil {
		if key != "" {
			s.deduper.Unrecord(ctx, key)
		}
		if errors.Is(err, model.ErrConflict) {
			metrics.RecordSessionConflict(conflictReason(err))
		}
		return SessionResult{}, err
	}
	if key != "" {
		s.deduper.Remember(ctx, key, session.ID)
	}

	metrics.RecordSessionCreated()
	s.sessions.Add(1)
	s.logger.Info(ctx, "session planned",
		logger.String("company", string(company)),
		logger.String("session", session.ID),
		logger.String("formationType", session.FormationTypeID),
		logger.Int("attendees", len(session.EmployeeIDs)),
		logger.Int("warnings", len(warnings)))
	return SessionResult{Session: session, Warnings: warnings}, nil
}

// sessionWarnings checks the constraints over the whole session. The
// warnings are advisory, so a failed check is logged and yields none.
func (s *Service) sessionWarnings(ctx context.Context, session model.TrainingSession) []model.Warning {
	if session.EndDate.Before(session.StartDate) {
		return []model.Warning{}
	}
	warnings, err := s.validator.CheckPeriod(ctx, s.store, session.CompanyID, session.StartDate, session.EndDate, session.EmployeeIDs)
	if err != nil {
		s.logger.Warn(ctx, "constraint check for session failed",
			logger.String("company", string(session.CompanyID)),
			logger.String("formationType", session.FormationTypeID),
			logger.Error(err))
		return []model.Warning{}
	}
	for _, w := range warnings {
		metrics.RecordConstraintWarning(string(w.Type), string(w.Severity))
	}
	return warnings
}

func (s *Service) replay(ctx context.Context, company model.CompanyID, key string) (SessionResult, error) {
	id, ok := s.deduper.Lookup(ctx, key)
	if !ok || id == "" {
		metrics.RecordSessionConflict("in_flight")
		return SessionResult{}, ErrRequestInFlight
	}
	session, err := s.store.Session(ctx, company, id)
	if err != nil {
		return SessionResult{}, err
	}
	metrics.RecordSessionDuplicate()
	return SessionResult{Session: session, Warnings: []model.Warning{}, Duplicate: true}, nil
}

func (s *Service) sessionFrom(company model.CompanyID, req SessionRequest) (model.TrainingSession, error) {
	if company == "" {
		return model.TrainingSession{}, fmt.Errorf("%w: missing company scope", model.ErrValidation)
	}
	start, err := model.ParseDate(req.StartDate)
	if err != nil {
		return model.TrainingSession{}, fmt.Errorf("%w: startDate: %w", model.ErrValidation, err)
	}
	end := start
	if req.EndDate != "" {
		if end, err = model.ParseDate(req.EndDate); err != nil {
			return model.TrainingSession{}, fmt.Errorf("%w: endDate: %w", model.ErrValidation, err)
		}
	}
	if req.TrainingCost.IsNegative() || req.TotalAbsenceCost.IsNegative() || req.TotalCost.IsNegative() {
		return model.TrainingSession{}, fmt.Errorf("%w: costs must not be negative", model.ErrValidation)
	}
	return model.TrainingSession{
		CompanyID:        company,
		FormationTypeID:  req.FormationTypeID,
		CenterID:         req.CenterID,
		IsIntraCompany:   req.IsIntraCompany,
		StartDate:        start,
		EndDate:          end,
		TrainingCost:     req.TrainingCost,
		TotalAbsenceCost: req.TotalAbsenceCost,
		TotalCost:        req.TotalCost,
		EmployeeIDs:      req.EmployeeIDs,
		TrainingNeedIDs:  req.TrainingNeedIDs,
	}, nil
}

func conflictReason(err error) string {
	switch {
	case errors.Is(err, repository.ErrNeedsUnavailable):
		return "needs_unavailable"
	case errors.Is(err, repository.ErrCapacityChanged):
		return "capacity_changed"
	}
	return "conflict"
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":           s.started,
		"workerCount":       s.workerCount,
		"queueSize":         s.queueSize,
		"dedupeSize":        s.dedupeSize,
		"idempotencyKeys":   s.deduper.Size(),
		"horizonDays":       s.horizonDays,
		"detectionRuns":     s.detections.Load(),
		"comparisons":       s.comparisons.Load(),
		"constraintChecks":  s.checks.Load(),
		"sessionsCreated":   s.sessions.Load(),
		"detectionInterval": s.detectInterval.String(),
	}
	if s.started {
		stats["queueLength"] = s.jobs.Len(ctx)
		stats["activeWorkers"] = s.pool.Active()
		stats["workerCount"] = s.pool.Size()
	}
	if counts, err := s.store.NeedCounts(ctx); err == nil {
		byStatus := make(map[string]int64, len(counts))
		for status, n := range counts {
			byStatus[string(status)] = n
		}
		stats["needs"] = byStatus
	} else {
		s.logger.Warn(ctx, "counting needs failed", logger.Error(err))
	}
	return stats
}
