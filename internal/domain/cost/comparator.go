// Package cost compares INTER and INTRA delivery costs across training centers.
package cost

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/okian/certwatch/internal/domain/model"
	"github.com/okian/certwatch/pkg/logger"
	"github.com/shopspring/decimal"
)

// Mode is a training delivery mode.
type Mode string

const (
	// ModeInter is delivered at the provider's site and priced per person.
	ModeInter Mode = "INTER"
	// ModeIntra is delivered on the employer's site for a flat session fee.
	ModeIntra Mode = "INTRA"
)

// Status classifies a comparison outcome.
type Status string

const (
	StatusOK                Status = "ok"
	StatusNoOffering        Status = "no_offering"
	StatusCapacityExceeded  Status = "capacity_exceeded"
	StatusNoAvailableOption Status = "no_available_option"
)

const moneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Catalog reads the offering catalog and the workforce of one company.
type Catalog interface {
	FormationType(ctx context.Context, company model.CompanyID, id string) (model.FormationType, error)
	EmployeesByIDs(ctx context.Context, company model.CompanyID, ids []string) ([]model.Employee, error)
	CenterOfferings(ctx context.Context, company model.CompanyID, formationTypeID string) ([]model.CenterOffering, error)
}

// Request asks for a comparison for a formation and a set of employees.
type Request struct {
	FormationTypeID string   `json:"formationTypeId"`
	EmployeeIDs     []string `json:"employeeIds"`
}

// ModeCost is the full breakdown of one delivery mode at one center.
type ModeCost struct {
	Available     bool            `json:"available"`
	Reason        string          `json:"reason,omitempty"`
	CostPerPerson decimal.Decimal `json:"costPerPerson"`
	TrainingCost  decimal.Decimal `json:"trainingCost"`
	AbsenceCost   decimal.Decimal `json:"absenceCost"`
	TotalCost     decimal.Decimal `json:"totalCost"`
}

// CenterComparison holds both modes for one center plus the recommended one.
type CenterComparison struct {
	Center         model.TrainingCenter `json:"center"`
	Offering       model.Offering       `json:"offering"`
	Inter          ModeCost             `json:"inter"`
	Intra          ModeCost             `json:"intra"`
	Available      bool                 `json:"available"`
	Recommendation Mode                 `json:"recommendation,omitempty"`
	TotalCost      decimal.Decimal      `json:"totalCost"`
	Savings        decimal.Decimal      `json:"savings"`
	BreakEvenPoint *int                 `json:"breakEvenPoint"`
}

// AbsenceDetail is one employee's absence cost.
type AbsenceDetail struct {
	EmployeeID  string           `json:"employeeId"`
	Name        string           `json:"name"`
	Team        string           `json:"team,omitempty"`
	Site        string           `json:"site,omitempty"`
	HourlyCost  *decimal.Decimal `json:"hourlyCost"`
	AbsenceCost decimal.Decimal  `json:"absenceCost"`
}

// EmployeeSummary aggregates absence costs for the headcount.
type EmployeeSummary struct {
	Count            int             `json:"count"`
	TotalAbsenceCost decimal.Decimal `json:"totalAbsenceCost"`
	Details          []AbsenceDetail `json:"details"`
}

// Summary is the headline of a comparison.
type Summary struct {
	Headcount        int              `json:"headcount"`
	Hours            float64          `json:"hours"`
	BestMode         Mode             `json:"bestMode,omitempty"`
	BestTotal        *decimal.Decimal `json:"bestTotal"`
	MaxSavings       decimal.Decimal  `json:"maxSavings"`
	AvailableCenters int              `json:"availableCenters"`
	Status           Status           `json:"status"`
}

// Result is the outcome of a comparison. Centers lists every candidate,
// available ones first in ascending cost order.
type Result struct {
	FormationType model.FormationType `json:"formationType"`
	Employees     EmployeeSummary     `json:"employees"`
	Centers       []CenterComparison  `json:"centers"`
	BestOption    *CenterComparison   `json:"bestOption"`
	Summary       Summary             `json:"summary"`
}

// Comparator computes cost comparisons. It holds no mutable state.
type Comparator struct {
	hoursPerDay float64
	logger      logger.Logger
}

// NewComparator creates a comparator.
func NewComparator(opts ...Option) *Comparator {
	c := &Comparator{
		hoursPerDay: 7,
		logger:      logger.Get().Named("cost"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompareFor validates req, loads its inputs from catalog and compares.
func (c *Comparator) CompareFor(ctx context.Context, catalog Catalog, company model.CompanyID, req Request) (Result, error) {
	ids := uniqueIDs(req.EmployeeIDs)
	if req.FormationTypeID == "" {
		return Result{}, fmt.Errorf("%w: formationTypeId is required", ErrValidation)
	}
	if len(ids) == 0 {
		return Result{}, fmt.Errorf("%w: employeeIds must not be empty", ErrValidation)
	}

	formation, err := catalog.FormationType(ctx, company, req.FormationTypeID)
	if errors.Is(err, ErrNotFound) {
		return Result{}, fmt.Errorf("%w: unknown formationTypeId %s", ErrValidation, req.FormationTypeID)
	}
	if err != nil {
		return Result{}, err
	}
	employees, err := catalog.EmployeesByIDs(ctx, company, ids)
	if err != nil {
		return Result{}, err
	}
	if missing := missingIDs(ids, employees); len(missing) > 0 {
		return Result{}, fmt.Errorf("%w: unknown employees %s", ErrValidation, strings.Join(missing, ", "))
	}
	offerings, err := catalog.CenterOfferings(ctx, company, formation.ID)
	if err != nil {
		return Result{}, err
	}

	res, err := c.Compare(formation, employees, offerings)
	if err != nil {
		c.logger.Debug(ctx, "comparison has no usable center",
			logger.String("company", string(company)),
			logger.String("formationType", formation.ID),
			logger.Int("headcount", len(employees)),
			logger.Error(err))
	}
	return res, err
}

// Compare prices every offering for formation and the given employees.
// With no offering it returns ErrNoOffering and an empty result. When no
// center is available it returns every center marked unavailable, with
// ErrCapacityExceeded if the headcount is over every offering's maximum and
// ErrNoAvailableOption otherwise.
func (c *Comparator) Compare(formation model.FormationType, employees []model.Employee, offerings []model.CenterOffering) (Result, error) {
	headcount := len(employees)
	if headcount == 0 {
		return Result{}, fmt.Errorf("%w: employee set is empty", ErrValidation)
	}

	hours := formation.Hours(c.hoursPerDay)
	absence := absenceCosts(employees, hours)
	res := Result{
		FormationType: formation,
		Employees:     absence,
		Centers:       make([]CenterComparison, 0, len(offerings)),
		Summary: Summary{
			Headcount: headcount,
			Hours:     hours,
		},
	}

	for _, co := range offerings {
		res.Centers = append(res.Centers, compareCenter(co, headcount, absence.TotalAbsenceCost))
	}
	rank(res.Centers)

	switch {
	case len(res.Centers) == 0:
		res.Summary.Status = StatusNoOffering
		return res, ErrNoOffering
	case !res.Centers[0].Available && overCapacity(res.Centers, headcount):
		res.Summary.Status = StatusCapacityExceeded
		return res, ErrCapacityExceeded
	case !res.Centers[0].Available:
		res.Summary.Status = StatusNoAvailableOption
		return res, ErrNoAvailableOption
	}

	bestTotal := res.Centers[0].TotalCost
	for i := range res.Centers {
		cc := &res.Centers[i]
		if !cc.Available {
			continue
		}
		cc.Savings = cc.TotalCost.Sub(bestTotal)
		res.Summary.AvailableCenters++
		if cc.Savings.GreaterThan(res.Summary.MaxSavings) {
			res.Summary.MaxSavings = cc.Savings
		}
	}
	best := res.Centers[0]
	res.BestOption = &best
	res.Summary.BestMode = best.Recommendation
	res.Summary.BestTotal = &best.TotalCost
	res.Summary.Status = StatusOK
	return res, nil
}

func absenceCosts(employees []model.Employee, hours float64) EmployeeSummary {
	h := decimal.NewFromFloat(hours)
	sum := EmployeeSummary{
		Count:            len(employees),
		TotalAbsenceCost: decimal.Zero,
		Details:          make([]AbsenceDetail, 0, len(employees)),
	}
	for _, e := range employees {
		cost := decimal.Zero
		if e.HourlyCost != nil {
			cost = e.HourlyCost.Mul(h).Round(moneyPlaces)
		}
		sum.TotalAbsenceCost = sum.TotalAbsenceCost.Add(cost)
		sum.Details = append(sum.Details, AbsenceDetail{
			EmployeeID:  e.ID,
			Name:        e.FullName(),
			Team:        e.Team,
			Site:        e.Site,
			HourlyCost:  e.HourlyCost,
			AbsenceCost: cost,
		})
	}
	return sum
}

func compareCenter(co model.CenterOffering, headcount int, absence decimal.Decimal) CenterComparison {
	factor := discountFactor(co.Center.DiscountPercent)
	n := decimal.NewFromInt(int64(headcount))
	off := co.Offering

	cc := CenterComparison{Center: co.Center, Offering: off}

	perPerson := off.PricePerPerson.Mul(factor)
	cc.Inter = ModeCost{
		Available:     true,
		CostPerPerson: perPerson.Round(moneyPlaces),
		TrainingCost:  perPerson.Mul(n).Round(moneyPlaces),
		AbsenceCost:   absence,
	}
	cc.Inter.TotalCost = cc.Inter.TrainingCost.Add(absence)
	switch {
	case headcount > off.MaxParticipants:
		cc.Inter.Available = false
		cc.Inter.Reason = fmt.Sprintf("headcount %d exceeds max participants %d", headcount, off.MaxParticipants)
	case headcount < off.MinParticipants:
		cc.Inter.Available = false
		cc.Inter.Reason = fmt.Sprintf("headcount %d below min participants %d", headcount, off.MinParticipants)
	}

	cc.Intra = ModeCost{AbsenceCost: absence, TotalCost: absence}
	if off.PricePerSession != nil {
		session := off.PricePerSession.Mul(factor)
		cc.Intra.TrainingCost = session.Round(moneyPlaces)
		cc.Intra.CostPerPerson = session.Div(n).Round(moneyPlaces)
		cc.Intra.TotalCost = cc.Intra.TrainingCost.Add(absence)
	}
	switch {
	case off.PricePerSession == nil:
		cc.Intra.Reason = "no session price"
	case !co.Center.CanTravel:
		cc.Intra.Reason = "center does not travel"
	case headcount > off.MaxParticipants:
		cc.Intra.Reason = fmt.Sprintf("headcount %d exceeds max participants %d", headcount, off.MaxParticipants)
	default:
		cc.Intra.Available = true
	}

	switch {
	case cc.Inter.Available && cc.Intra.Available:
		cc.Recommendation = ModeInter
		cc.TotalCost = cc.Inter.TotalCost
		if cc.Intra.TotalCost.LessThan(cc.Inter.TotalCost) {
			cc.Recommendation = ModeIntra
			cc.TotalCost = cc.Intra.TotalCost
		}
		cc.BreakEvenPoint = breakEven(off)
	case cc.Inter.Available:
		cc.Recommendation = ModeInter
		cc.TotalCost = cc.Inter.TotalCost
	case cc.Intra.Available:
		cc.Recommendation = ModeIntra
		cc.TotalCost = cc.Intra.TotalCost
	}
	cc.Available = cc.Recommendation != ""
	return cc
}

func overCapacity(centers []CenterComparison, headcount int) bool {
	for _, cc := range centers {
		if headcount <= cc.Offering.MaxParticipants {
			return false
		}
	}
	return true
}

// breakEven is the smallest headcount at which the flat session price no
// longer exceeds per-person pricing. The discount applies to both sides.
func breakEven(off model.Offering) *int {
	if off.PricePerSession == nil || !off.PricePerPerson.IsPositive() {
		return nil
	}
	n := int(off.PricePerSession.Div(off.PricePerPerson).Ceil().IntPart())
	if n < 1 {
		n = 1
	}
	return &n
}

func discountFactor(pct *decimal.Decimal) decimal.Decimal {
	if pct == nil {
		return decimal.NewFromInt(1)
	}
	d := decimal.Max(decimal.Zero, decimal.Min(*pct, hundred))
	return decimal.NewFromInt(1).Sub(d.Div(hundred))
}

// rank orders available centers by recommended cost, then the rest; ties by center id.
func rank(centers []CenterComparison) {
	sort.SliceStable(centers, func(i, j int) bool {
		a, b := centers[i], centers[j]
		if a.Available != b.Available {
			return a.Available
		}
		if a.Available && !a.TotalCost.Equal(b.TotalCost) {
			return a.TotalCost.LessThan(b.TotalCost)
		}
		return a.Center.ID < b.Center.ID
	})
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func missingIDs(want []string, got []model.Employee) []string {
	have := make(map[string]struct{}, len(got))
	for _, e := range got {
		have[e.ID] = struct{}{}
	}
	var missing []string
	for _, id := range want {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
