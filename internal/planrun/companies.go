package planrun

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	service "github.com/okian/certwatch/internal/app"
	"github.com/okian/certwatch/internal/domain/constraint"
	"github.com/okian/certwatch/internal/domain/cost"
	"github.com/okian/certwatch/internal/domain/model"
	"github.com/okian/certwatch/internal/domain/needs"
	"github.com/okian/certwatch/pkg/logger"
)

type counters struct {
	checked     atomic.Int64
	created     atomic.Int64
	groups      atomic.Int64
	comparisons atomic.Int64
	noOffering  atomic.Int64
	capacity    atomic.Int64
	checks      atomic.Int64
	warnings    atomic.Int64
	sessions    atomic.Int64
	failed      atomic.Int64
	violations  atomic.Int64
}

// checkCompanies runs checkCompany for every company of fx using a worker pool.
func checkCompanies(ctx context.Context, config *Config, client *HTTPClient, fx Fixture, today time.Time, stats *Stats) []CompanyReport {
	log.Printf("🔍 Checking %d companies with %d workers...", len(fx.Companies), config.Workers)

	var c counters
	reports := make([]CompanyReport, len(fx.Companies))

	type job struct {
		index   int
		company CompanyFixture
	}
	jobs := make(chan job, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < max(config.Workers, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				r := checkCompany(ctx, config, client, j.company, today, &c)
				reports[j.index] = r
				c.checked.Add(1)
				c.violations.Add(int64(len(r.Violations)))

				if config.Verbose {
					log.Printf("📊 Progress: %d/%d companies (violations: %d, failed requests: %d)",
						c.checked.Load(), len(fx.Companies), c.violations.Load(), c.failed.Load())
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, cf := range fx.Companies {
			select {
			case <-ctx.Done():
				return
			case jobs <- job{index: i, company: cf}:
			}
		}
	}()

	wg.Wait()

	stats.CompaniesChecked = int(c.checked.Load())
	stats.NeedsCreated = int(c.created.Load())
	stats.GroupsRetrieved = int(c.groups.Load())
	stats.Comparisons = int(c.comparisons.Load())
	stats.NoOffering = int(c.noOffering.Load())
	stats.CapacityExceeded = int(c.capacity.Load())
	stats.ConstraintChecks = int(c.checks.Load())
	stats.Warnings = int(c.warnings.Load())
	stats.SessionsPlanned = int(c.sessions.Load())
	stats.RequestsFailed = int(c.failed.Load())
	stats.Violations = int(c.violations.Load())

	log.Printf(`✅ Company checks completed:
   Companies: %d
   Comparisons: %d
   Warnings: %d
   Violations: %d
`, stats.CompaniesChecked, stats.Comparisons, stats.Warnings, stats.Violations)

	return reports
}

// checkCompany detects, groups, compares and checks constraints for one
// company, optionally planning its most urgent group.
func checkCompany(ctx context.Context, config *Config, client *HTTPClient, cf CompanyFixture, today time.Time, c *counters) CompanyReport {
	r := CompanyReport{CompanyID: string(cf.ID)}
	failed := func(step string, err error) {
		c.failed.Add(1)
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", step, err))
		logger.Get().Warn(ctx, "request failed",
			logger.String("company", string(cf.ID)),
			logger.String("step", step),
			logger.Error(err))
	}

	var report needs.Report
	if _, err := client.Post(ctx, "/detect-needs", cf.ID, map[string]int{"horizonDays": config.HorizonDays}, &report); err != nil {
		failed("detect-needs", err)
		return r
	}
	r.Created = report.Created
	c.created.Add(int64(report.Created))
	r.Violations = append(r.Violations, verifyReport(cf.ID, report)...)

	var groups []needs.NeedGroup
	if _, err := client.Get(ctx, "/needs-grouped", cf.ID, &groups); err != nil {
		failed("needs-grouped", err)
		return r
	}
	r.Groups = len(groups)
	c.groups.Add(int64(len(groups)))
	r.Violations = append(r.Violations, verifyGroups(groups, config.LegalFloor)...)

	planOn := cf.planDate(today)
	var planned bool
	for i, g := range groups {
		employees := groupEmployees(g)

		var res cost.Result
		if _, err := client.Post(ctx, "/compare-costs", cf.ID, cost.Request{FormationTypeID: g.FormationType.ID, EmployeeIDs: employees}, &res); err != nil {
			failed("compare-costs", err)
			continue
		}
		r.Comparisons++
		c.comparisons.Add(1)
		switch res.Summary.Status {
		case cost.StatusNoOffering:
			c.noOffering.Add(1)
		case cost.StatusCapacityExceeded, cost.StatusNoAvailableOption:
			c.capacity.Add(1)
		}
		r.Violations = append(r.Violations, verifyComparison(len(employees), res)...)

		// Alternate between a blacklisted day and a plain working day.
		date, blocked := planOn, false
		if i%2 == 0 && len(cf.Constraints.BlacklistedDates) > 0 {
			date, blocked = cf.Constraints.BlacklistedDates[(i/2)%len(cf.Constraints.BlacklistedDates)], true
		}
		var checked struct {
			Warnings []model.Warning `json:"warnings"`
		}
		req := constraint.Request{Date: model.FormatDate(date), EmployeeIDs: employees}
		if _, err := client.Post(ctx, "/check-constraints", cf.ID, req, &checked); err != nil {
			failed("check-constraints", err)
			continue
		}
		c.checks.Add(1)
		r.Warnings += len(checked.Warnings)
		c.warnings.Add(int64(len(checked.Warnings)))
		r.Violations = append(r.Violations, verifyWarnings(req.Date, blocked, checked.Warnings)...)

		if config.Plan && !planned && res.BestOption != nil {
			planned = true
			id, violations, err := planSession(ctx, client, cf.ID, g, res, planOn)
			if err != nil {
				failed("sessions", err)
				continue
			}
			r.SessionID = id
			c.sessions.Add(1)
			r.Violations = append(r.Violations, violations...)
		}
	}

	if len(r.Violations) > 0 {
		logger.Get().Warn(ctx, "company broke invariants",
			logger.String("company", string(cf.ID)),
			logger.Int("violations", len(r.Violations)),
			logger.String("first", r.Violations[0]))
	}
	return r
}

// planSession books the best option of res for the whole group, then replays
// the request to check it is answered with the same session.
func planSession(ctx context.Context, client *HTTPClient, company model.CompanyID, g needs.NeedGroup, res cost.Result, on time.Time) (string, []string, error) {
	best := res.BestOption
	mode := best.Inter
	if best.Recommendation == cost.ModeIntra {
		mode = best.Intra
	}
	req := service.SessionRequest{
		RequestID:        uuid.NewString(),
		FormationTypeID:  g.FormationType.ID,
		CenterID:         best.Center.ID,
		IsIntraCompany:   best.Recommendation == cost.ModeIntra,
		StartDate:        model.FormatDate(on),
		TrainingCost:     mode.TrainingCost,
		TotalAbsenceCost: mode.AbsenceCost,
		TotalCost:        mode.TotalCost,
		EmployeeIDs:      groupEmployees(g),
	}
	for _, d := range g.Needs {
		req.TrainingNeedIDs = append(req.TrainingNeedIDs, d.Need.ID)
	}

	var first, replay service.SessionResult
	status, err := client.Post(ctx, "/sessions", company, req, &first)
	if err != nil {
		return "", nil, err
	}
	var v []string
	if status != http.StatusCreated || first.Duplicate {
		v = append(v, fmt.Sprintf("session %s: first request answered %d (duplicate %t)", req.RequestID, status, first.Duplicate))
	}
	if first.Session.Status != model.SessionPlanned {
		v = append(v, fmt.Sprintf("session %s is %s", first.Session.ID, first.Session.Status))
	}

	status, err = client.Post(ctx, "/sessions", company, req, &replay)
	if err != nil {
		return first.Session.ID, v, err
	}
	if status != http.StatusOK || !replay.Duplicate || replay.Session.ID != first.Session.ID {
		v = append(v, fmt.Sprintf("session %s: replay answered %d with session %s (duplicate %t)",
			req.RequestID, status, replay.Session.ID, replay.Duplicate))
	}
	return first.Session.ID, v, nil
}

// groupEmployees lists the distinct employees of g in need order.
func groupEmployees(g needs.NeedGroup) []string {
	seen := make(map[string]struct{}, len(g.Needs))
	out := make([]string, 0, len(g.Needs))
	for _, d := range g.Needs {
		if _, ok := seen[d.Need.EmployeeID]; ok {
			continue
		}
		seen[d.Need.EmployeeID] = struct{}{}
		out = append(out, d.Need.EmployeeID)
	}
	return out
}
