// Package needs detects retraining needs from expiring certificates and
// aggregates them for batch planning.
package needs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/okian/certwatch/internal/domain/model"
	"github.com/okian/certwatch/internal/domain/scoring"
	"github.com/okian/certwatch/pkg/logger"
)

// Store is the persistence collaborator the detector reads from and upserts into.
// Every call is scoped to one company.
type Store interface {
	Employees(ctx context.Context, company model.CompanyID) ([]model.Employee, error)
	FormationTypes(ctx context.Context, company model.CompanyID) ([]model.FormationType, error)
	Certificates(ctx context.Context, company model.CompanyID) ([]model.Certificate, error)
	Needs(ctx context.Context, company model.CompanyID, statuses ...model.NeedStatus) ([]model.TrainingNeed, error)

	// UpsertNeed inserts need or, when a row with the same key exists,
	// refreshes its scoring if it is still OPEN. It returns the stored row.
	UpsertNeed(ctx context.Context, need model.TrainingNeed) (model.TrainingNeed, bool, error)
	// CancelNeeds moves the listed OPEN needs to CANCELLED.
	CancelNeeds(ctx context.Context, company model.CompanyID, ids []string) (int, error)
}

// Report summarises one detection run.
type Report struct {
	CompanyID   model.CompanyID      `json:"companyId"`
	HorizonDays int                  `json:"horizonDays"`
	Created     int                  `json:"needsCreated"`
	Updated     int                  `json:"needsUpdated"`
	Cancelled   int                  `json:"needsCancelled"`
	Skipped     int                  `json:"rowsSkipped"`
	Needs       []model.TrainingNeed `json:"-"`
	RanAt       time.Time            `json:"ranAt"`
}

// Detector scans certificates and maintains TrainingNeed rows. It holds no
// mutable state and may run concurrently for different companies.
type Detector struct {
	store  Store
	scorer scoring.Scorer
	now    func() time.Time
	newID  func() string
	logger logger.Logger
}

// NewDetector creates a detector backed by store.
func NewDetector(store Store, opts ...Option) *Detector {
	d := &Detector{
		store:  store,
		scorer: scoring.NewEngine(),
		now:    time.Now,
		newID:  uuid.NewString,
		logger: logger.Get().Named("needs"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type pairKey struct {
	employeeID      string
	formationTypeID string
}

// Detect upserts a need for every active employee's latest certificate that
// expires within horizonDays, and cancels open needs whose certificate was
// renewed. Bad rows are logged and skipped; only load failures abort the run.
func (d *Detector) Detect(ctx context.Context, company model.CompanyID, horizonDays int) (Report, error) {
	if company == "" {
		return Report{}, fmt.Errorf("%w: missing company scope", ErrValidation)
	}
	if horizonDays < 0 {
		return Report{}, fmt.Errorf("%w: horizon %d must not be negative", ErrValidation, horizonDays)
	}

	today := model.Day(d.now())
	limit := today.AddDate(0, 0, horizonDays)
	report := Report{CompanyID: company, HorizonDays: horizonDays, RanAt: d.now()}

	employees, formations, latest, err := d.load(ctx, company)
	if err != nil {
		return Report{}, err
	}

	wanted := make(map[model.NeedKey]struct{}, len(latest))
	for _, cert := range sortedCertificates(latest) {
		if cert.ExpiryDate == nil {
			continue
		}
		emp, ok := employees[cert.EmployeeID]
		if !ok {
			report.Skipped++
			d.logger.Warn(ctx, "certificate references unknown employee",
				logger.String("certificate", cert.ID),
				logger.String("employee", cert.EmployeeID))
			continue
		}
		ft, ok := formations[cert.FormationTypeID]
		if !ok {
			report.Skipped++
			d.logger.Warn(ctx, "certificate references unknown formation type",
				logger.String("certificate", cert.ID),
				logger.String("formationType", cert.FormationTypeID))
			continue
		}
		if !emp.Active || !ft.Active || cert.ExpiryDate.After(limit) {
			continue
		}

		daysLeft := model.DaysBetween(today, *cert.ExpiryDate)
		res := d.scorer.Score(scoring.Input{DaysUntilExpiry: &daysLeft, IsLegalObligation: ft.IsLegalObligation})
		need := model.TrainingNeed{
			ID:              d.newID(),
			CompanyID:       company,
			EmployeeID:      emp.ID,
			FormationTypeID: ft.ID,
			CertificateID:   cert.ID,
			ExpiryDate:      model.Day(*cert.ExpiryDate),
			DaysUntilExpiry: daysLeft,
			Priority:        res.Priority,
			PriorityReason:  res.Reason,
			Status:          model.NeedOpen,
			DetectedAt:      report.RanAt,
		}
		wanted[need.Key()] = struct{}{}

		stored, created, err := d.store.UpsertNeed(ctx, need)
		if err != nil {
			report.Skipped++
			d.logger.Error(ctx, "need upsert failed",
				logger.String("certificate", cert.ID),
				logger.String("employee", emp.ID),
				logger.Error(err))
			continue
		}
		if created {
			report.Created++
		} else {
			report.Updated++
		}
		if stored.Status == model.NeedOpen {
			report.Needs = append(report.Needs, stored)
		}
	}

	cancelled, err := d.cancelStale(ctx, company, employees, latest, wanted)
	if err != nil {
		d.logger.Error(ctx, "cancelling renewed needs failed", logger.Error(err))
	}
	report.Cancelled = cancelled

	d.logger.Info(ctx, "detection finished",
		logger.String("company", string(company)),
		logger.Int("horizonDays", horizonDays),
		logger.Int("created", report.Created),
		logger.Int("updated", report.Updated),
		logger.Int("cancelled", report.Cancelled),
		logger.Int("skipped", report.Skipped))
	return report, nil
}

func (d *Detector) load(ctx context.Context, company model.CompanyID) (map[string]model.Employee, map[string]model.FormationType, map[pairKey]model.Certificate, error) {
	emps, err := d.store.Employees(ctx, company)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: employees: %w", ErrLoad, err)
	}
	fts, err := d.store.FormationTypes(ctx, company)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: formation types: %w", ErrLoad, err)
	}
	certs, err := d.store.Certificates(ctx, company)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: certificates: %w", ErrLoad, err)
	}

	employees := make(map[string]model.Employee, len(emps))
	for _, e := range emps {
		employees[e.ID] = e
	}
	formations := make(map[string]model.FormationType, len(fts))
	for _, f := range fts {
		formations[f.ID] = f
	}
	latest := make(map[pairKey]model.Certificate)
	for _, c := range certs {
		if c.IsArchived {
			continue
		}
		k := pairKey{c.EmployeeID, c.FormationTypeID}
		if cur, ok := latest[k]; !ok || c.Supersedes(cur) {
			latest[k] = c
		}
	}
	return employees, formations, latest, nil
}

// cancelStale cancels open needs that no longer match the latest certificate
// of their employee and formation, or whose employee left.
func (d *Detector) cancelStale(ctx context.Context, company model.CompanyID, employees map[string]model.Employee,
	latest map[pairKey]model.Certificate, wanted map[model.NeedKey]struct{}) (int, error) {
	open, err := d.store.Needs(ctx, company, model.NeedOpen)
	if err != nil {
		return 0, err
	}

	var stale []string
	for _, n := range open {
		if _, ok := wanted[n.Key()]; ok {
			continue
		}
		if emp, ok := employees[n.EmployeeID]; ok && !emp.Active {
			stale = append(stale, n.ID)
			continue
		}
		cert, ok := latest[pairKey{n.EmployeeID, n.FormationTypeID}]
		if !ok {
			continue
		}
		if cert.ExpiryDate == nil || model.Day(*cert.ExpiryDate).After(n.ExpiryDate) {
			stale = append(stale, n.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	return d.store.CancelNeeds(ctx, company, stale)
}

func sortedCertificates(m map[pairKey]model.Certificate) []model.Certificate {
	out := make([]model.Certificate, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
