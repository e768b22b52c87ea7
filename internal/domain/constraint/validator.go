// Package constraint evaluates workforce-availability rules for a candidate
// training date. Every result is advisory.
package constraint

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/certwatch/internal/domain/model"
	"github.com/okian/certwatch/pkg/logger"
)

// Source supplies the tenant data a check reads.
type Source interface {
	// Constraints returns nil when the company has none configured.
	Constraints(ctx context.Context, company model.CompanyID) (*model.PlanningConstraints, error)
	EmployeesByIDs(ctx context.Context, company model.CompanyID, ids []string) ([]model.Employee, error)
	// BookedEmployees lists employees attending a planned session on day.
	BookedEmployees(ctx context.Context, company model.CompanyID, day time.Time) ([]model.Employee, error)
}

// Request asks whether a date, or an inclusive date range, suits employees.
type Request struct {
	Date        string   `json:"date"`
	EndDate     string   `json:"endDate,omitempty"`
	EmployeeIDs []string `json:"employeeIds"`
}

// Validator checks planning constraints. It holds no mutable state.
type Validator struct {
	defaultDays  model.WeekdayMask
	maxRangeDays int
	logger       logger.Logger
}

// NewValidator creates a validator.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		defaultDays:  model.MondayToFriday,
		maxRangeDays: 31,
		logger:       logger.Get().Named("constraint"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Check evaluates every rule for date. The team and site caps count
// employees alone; employees in booked are already away that day and only
// produce the separate booked warnings when they push a group over its cap.
// A nil constraints value yields no warnings.
func (v *Validator) Check(date time.Time, employees, booked []model.Employee, c *model.PlanningConstraints) []model.Warning {
	warnings := []model.Warning{}
	if c == nil {
		return warnings
	}
	day := model.Day(date)
	label := model.FormatDate(day)

	if c.IsBlacklisted(day) {
		warnings = append(warnings, model.Warning{
			Type:     model.WarningBlockedDate,
			Severity: model.SeverityDanger,
			Message:  fmt.Sprintf("%s is a blocked date", label),
			Date:     label,
		})
	}

	mask := c.AllowedTrainingDays
	if mask == 0 {
		mask = v.defaultDays
	}
	if !mask.Allows(day.Weekday()) {
		warnings = append(warnings, model.Warning{
			Type:     model.WarningDayNotAllowed,
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("%s is not an allowed training day", day.Weekday()),
			Date:     label,
		})
	}

	warnings = append(warnings, capWarnings(employees, booked, c.MaxAbsentPerTeam, true, label)...)
	warnings = append(warnings, capWarnings(employees, booked, c.MaxAbsentPerSite, false, label)...)
	return warnings
}

// CheckRange checks each day of [start, end]. Team and site warnings that
// repeat unchanged across days are reported once, dated on the
// first day. bookedOn may be nil.
func (v *Validator) CheckRange(start, end time.Time, employees []model.Employee,
	bookedOn func(day time.Time) []model.Employee, c *model.PlanningConstraints) []model.Warning {
	out := []model.Warning{}
	seen := make(map[string]struct{})
	for _, day := range model.DaysInRange(start, end) {
		var booked []model.Employee
		if bookedOn != nil {
			booked = bookedOn(day)
		}
		for _, w := range v.Check(day, employees, booked, c) {
			k := mergeKey(w)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, w)
		}
	}
	return out
}

// CheckFor resolves req against src and returns the warnings for its dates.
func (v *Validator) CheckFor(ctx context.Context, src Source, company model.CompanyID, req Request) ([]model.Warning, error) {
	start, end, err := v.parseRange(req)
	if err != nil {
		return nil, err
	}
	return v.CheckPeriod(ctx, src, company, start, end, req.EmployeeIDs)
}

// CheckPeriod returns the warnings for employeeIDs over [start, end]. Unlike
// CheckFor it places no cap on the length of the period.
func (v *Validator) CheckPeriod(ctx context.Context, src Source, company model.CompanyID,
	start, end time.Time, employeeIDs []string) ([]model.Warning, error) {
	c, err := src.Constraints(ctx, company)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return []model.Warning{}, nil
	}

	var employees []model.Employee
	if ids := unique(employeeIDs); len(ids) > 0 {
		employees, err = src.EmployeesByIDs(ctx, company, ids)
		if err != nil {
			return nil, err
		}
		if len(employees) != len(ids) {
			return nil, fmt.Errorf("%w: %d of %d employees not found", ErrValidation, len(ids)-len(employees), len(ids))
		}
	}

	booked := make(map[string][]model.Employee)
	for _, day := range model.DaysInRange(start, end) {
		emps, err := src.BookedEmployees(ctx, company, day)
		if err != nil {
			return nil, err
		}
		booked[model.FormatDate(day)] = emps
	}

	warnings := v.CheckRange(start, end, employees, func(day time.Time) []model.Employee {
		return booked[model.FormatDate(day)]
	}, c)
	if len(warnings) > 0 {
		v.logger.Debug(ctx, "constraint warnings",
			logger.String("company", string(company)),
			logger.String("from", model.FormatDate(start)),
			logger.String("to", model.FormatDate(end)),
			logger.Int("warnings", len(warnings)))
	}
	return warnings, nil
}

func (v *Validator) parseRange(req Request) (time.Time, time.Time, error) {
	start, err := model.ParseDate(req.Date)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date: %w", ErrValidation, err)
	}
	end := start
	if req.EndDate != "" {
		end, err = model.ParseDate(req.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: endDate: %w", ErrValidation, err)
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: endDate %s before date %s", ErrValidation, req.EndDate, req.Date)
	}
	if span := model.DaysBetween(start, end) + 1; span > v.maxRangeDays {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range of %d days exceeds %d", ErrValidation, span, v.maxRangeDays)
	}
	return start, end, nil
}

// capWarnings reports groups the requested employees alone push over limit,
// then groups they push over it only together with booked ones.
func capWarnings(employees, booked []model.Employee, limit int, byTeam bool, date string) []model.Warning {
	if limit <= 0 {
		return nil
	}
	keyOf := func(e model.Employee) string { return e.Site }
	kind, bookedKind := model.WarningSite, model.WarningSiteBooked
	if byTeam {
		keyOf = func(e model.Employee) string { return e.Team }
		kind, bookedKind = model.WarningTeam, model.WarningTeamBooked
	}
	requested := countBy(employees, keyOf)
	absent := countBy(union(employees, booked), keyOf)

	keys := make([]string, 0, len(requested))
	for k := range requested {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var over, pushed []model.Warning
	for _, k := range keys {
		switch {
		case requested[k] > limit:
			over = append(over, capWarning(kind, byTeam, k, requested[k], limit, date,
				fmt.Sprintf("%d employees absent from %s %s (max %d)", requested[k], kind, k, limit)))
		case absent[k] > limit:
			pushed = append(pushed, capWarning(bookedKind, byTeam, k, absent[k], limit, date,
				fmt.Sprintf("%d employees absent from %s %s counting existing sessions (max %d)", absent[k], kind, k, limit)))
		}
	}
	return append(over, pushed...)
}

func capWarning(kind model.WarningType, byTeam bool, key string, count, limit int, date, msg string) model.Warning {
	w := model.Warning{
		Type:     kind,
		Severity: model.SeverityWarning,
		Message:  msg,
		Date:     date,
		Count:    count,
		Limit:    limit,
	}
	if byTeam {
		w.Team = key
	} else {
		w.Site = key
	}
	return w
}

func countBy(employees []model.Employee, keyOf func(model.Employee) string) map[string]int {
	counts := make(map[string]int)
	for _, e := range employees {
		if k := keyOf(e); k != "" {
			counts[k]++
		}
	}
	return counts
}

func mergeKey(w model.Warning) string {
	switch w.Type {
	case model.WarningTeam, model.WarningSite, model.WarningTeamBooked, model.WarningSiteBooked:
		return fmt.Sprintf("%s|%s|%s|%d", w.Type, w.Team, w.Site, w.Count)
	default:
		return fmt.Sprintf("%s|%s", w.Type, w.Date)
	}
}

func union(a, b []model.Employee) []model.Employee {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]model.Employee, 0, len(a)+len(b))
	for _, list := range [][]model.Employee{a, b} {
		for _, e := range list {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
