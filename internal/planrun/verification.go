package planrun

import (
	"fmt"

	"github.com/okian/certwatch/internal/domain/cost"
	"github.com/okian/certwatch/internal/domain/model"
	"github.com/okian/certwatch/internal/domain/needs"
	"github.com/shopspring/decimal"
)

// verifyReport checks a detection report belongs to company.
func verifyReport(company model.CompanyID, r needs.Report) []string {
	var v []string
	if r.CompanyID != company {
		v = append(v, fmt.Sprintf("detection report for %q returned company %q", company, r.CompanyID))
	}
	if r.HorizonDays <= 0 {
		v = append(v, fmt.Sprintf("detection horizon %d is not positive", r.HorizonDays))
	}
	if r.Created < 0 || r.Updated < 0 || r.Cancelled < 0 {
		v = append(v, "detection report has negative counters")
	}
	return v
}

// verifyGroups checks need priorities and group ordering.
func verifyGroups(groups []needs.NeedGroup, legalFloor int) []string {
	var v []string
	for i, g := range groups {
		if i > 0 && groups[i-1].MaxPriority < g.MaxPriority {
			v = append(v, fmt.Sprintf("group %s (max %d) follows a less urgent group (max %d)",
				g.FormationType.ID, g.MaxPriority, groups[i-1].MaxPriority))
		}
		if g.TotalEmployees > len(g.Needs) {
			v = append(v, fmt.Sprintf("group %s counts %d employees for %d needs", g.FormationType.ID, g.TotalEmployees, len(g.Needs)))
		}

		top := model.MinPriority
		for _, d := range g.Needs {
			n := d.Need
			top = max(top, n.Priority)
			switch {
			case n.Priority < model.MinPriority || n.Priority > model.MaxPriority:
				v = append(v, fmt.Sprintf("need %s priority %d outside %d..%d", n.ID, n.Priority, model.MinPriority, model.MaxPriority))
			case n.DaysUntilExpiry < 0 && n.Priority != model.MaxPriority:
				v = append(v, fmt.Sprintf("expired need %s has priority %d", n.ID, n.Priority))
			case g.FormationType.IsLegalObligation && n.Priority < legalFloor:
				v = append(v, fmt.Sprintf("legal need %s has priority %d below floor %d", n.ID, n.Priority, legalFloor))
			}
			if n.Status != model.NeedOpen {
				v = append(v, fmt.Sprintf("grouped need %s is %s", n.ID, n.Status))
			}
		}
		if len(g.Needs) > 0 && top != g.MaxPriority {
			v = append(v, fmt.Sprintf("group %s reports max priority %d, needs peak at %d", g.FormationType.ID, g.MaxPriority, top))
		}
	}
	return v
}

// verifyComparison checks capacity, ranking, recommendation and break-even
// rules of a comparison for headcount employees.
func verifyComparison(headcount int, res cost.Result) []string {
	var v []string
	ft := res.FormationType.ID

	switch res.Summary.Status {
	case cost.StatusNoOffering:
		if len(res.Centers) != 0 {
			v = append(v, fmt.Sprintf("%s: no_offering with %d centers", ft, len(res.Centers)))
		}
	case cost.StatusCapacityExceeded, cost.StatusNoAvailableOption, cost.StatusOK:
		if len(res.Centers) == 0 {
			v = append(v, fmt.Sprintf("%s: status %s without centers", ft, res.Summary.Status))
		}
	default:
		v = append(v, fmt.Sprintf("%s: unknown status %q", ft, res.Summary.Status))
	}
	if (res.Summary.Status == cost.StatusOK) != (res.BestOption != nil) {
		v = append(v, fmt.Sprintf("%s: status %s disagrees with best option", ft, res.Summary.Status))
	}

	available := 0
	for i, cc := range res.Centers {
		v = append(v, verifyCenter(ft, headcount, res.Employees.TotalAbsenceCost, cc)...)
		if !cc.Available {
			continue
		}
		available++
		if i > 0 && !res.Centers[i-1].Available {
			v = append(v, fmt.Sprintf("%s: available center %s ranked after an unavailable one", ft, cc.Center.ID))
		}
		if i > 0 && res.Centers[i-1].TotalCost.GreaterThan(cc.TotalCost) {
			v = append(v, fmt.Sprintf("%s: center %s costs less than the one ranked above it", ft, cc.Center.ID))
		}
	}
	if available != res.Summary.AvailableCenters {
		v = append(v, fmt.Sprintf("%s: %d available centers, summary says %d", ft, available, res.Summary.AvailableCenters))
	}
	if res.BestOption != nil && len(res.Centers) > 0 {
		best := res.Centers[0]
		if res.BestOption.Center.ID != best.Center.ID || !res.BestOption.TotalCost.Equal(best.TotalCost) {
			v = append(v, fmt.Sprintf("%s: best option is not the first ranked center", ft))
		}
	}
	return v
}

func verifyCenter(ft string, headcount int, absence decimal.Decimal, cc cost.CenterComparison) []string {
	var v []string
	id := cc.Center.ID
	off := cc.Offering

	if headcount > off.MaxParticipants && (cc.Inter.Available || cc.Intra.Available) {
		v = append(v, fmt.Sprintf("%s@%s: headcount %d over max %d but still available", ft, id, headcount, off.MaxParticipants))
	}
	if cc.Intra.Available && (off.PricePerSession == nil || !cc.Center.CanTravel) {
		v = append(v, fmt.Sprintf("%s@%s: intra available without a session price or travel", ft, id))
	}
	if !cc.Inter.AbsenceCost.Equal(absence) || !cc.Intra.AbsenceCost.Equal(absence) {
		v = append(v, fmt.Sprintf("%s@%s: absence cost differs from the employee total", ft, id))
	}

	switch {
	case cc.Inter.Available && cc.Intra.Available:
		want := cost.ModeInter
		if cc.Intra.TotalCost.LessThan(cc.Inter.TotalCost) {
			want = cost.ModeIntra
		}
		if cc.Recommendation != want {
			v = append(v, fmt.Sprintf("%s@%s: recommends %s, cheaper mode is %s", ft, id, cc.Recommendation, want))
		}
		if msg := verifyBreakEven(off, cc.BreakEvenPoint); msg != "" {
			v = append(v, fmt.Sprintf("%s@%s: %s", ft, id, msg))
		}
	case cc.Inter.Available:
		if cc.Recommendation != cost.ModeInter {
			v = append(v, fmt.Sprintf("%s@%s: only inter is available but %q is recommended", ft, id, cc.Recommendation))
		}
	case cc.Intra.Available:
		if cc.Recommendation != cost.ModeIntra {
			v = append(v, fmt.Sprintf("%s@%s: only intra is available but %q is recommended", ft, id, cc.Recommendation))
		}
	default:
		if cc.Available {
			v = append(v, fmt.Sprintf("%s@%s: no mode is available but the center is", ft, id))
		}
	}
	return v
}

// verifyBreakEven checks p is the smallest headcount whose per-person total
// reaches the session price.
func verifyBreakEven(off model.Offering, p *int) string {
	if off.PricePerSession == nil || !off.PricePerPerson.IsPositive() {
		if p != nil {
			return fmt.Sprintf("break-even %d without both prices", *p)
		}
		return ""
	}
	if p == nil {
		return "break-even missing"
	}
	session := *off.PricePerSession
	at := off.PricePerPerson.Mul(decimal.NewFromInt(int64(*p)))
	if at.LessThan(session) {
		return fmt.Sprintf("break-even %d: %s per person is still below session %s", *p, at, session)
	}
	if *p > 1 && !off.PricePerPerson.Mul(decimal.NewFromInt(int64(*p-1))).LessThan(session) {
		return fmt.Sprintf("break-even %d is not the smallest headcount", *p)
	}
	return ""
}

// verifyWarnings checks warning shapes. A blacklisted date must come back
// with a danger warning.
func verifyWarnings(date string, blocked bool, warnings []model.Warning) []string {
	var v []string
	seenBlocked := false
	for _, w := range warnings {
		switch w.Type {
		case model.WarningBlockedDate:
			seenBlocked = true
			if w.Severity != model.SeverityDanger {
				v = append(v, fmt.Sprintf("%s: blocked date warning has severity %s", date, w.Severity))
			}
		case model.WarningDayNotAllowed:
		case model.WarningTeam, model.WarningSite, model.WarningTeamBooked, model.WarningSiteBooked:
			if w.Limit > 0 && w.Count <= w.Limit {
				v = append(v, fmt.Sprintf("%s: %s warning with count %d within limit %d", date, w.Type, w.Count, w.Limit))
			}
		default:
			v = append(v, fmt.Sprintf("%s: unknown warning type %q", date, w.Type))
		}
	}
	if blocked && !seenBlocked {
		v = append(v, fmt.Sprintf("%s: blacklisted date produced no blocked date warning", date))
	}
	return v
}
