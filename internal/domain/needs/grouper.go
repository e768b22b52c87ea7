package needs

import (
	"math"
	"sort"
	"time"

	"github.com/okian/certwatch/internal/domain/model"
)

// NeedGroup aggregates the needs of one formation type for batch planning.
type NeedGroup struct {
	FormationType  model.FormationType `json:"formationType"`
	Needs          []model.NeedDetail  `json:"needs"`
	TotalEmployees int                 `json:"totalEmployees"`
	AvgPriority    float64             `json:"avgPriority"`
	MaxPriority    int                 `json:"maxPriority"`
	EarliestExpiry time.Time           `json:"earliestExpiry"`
	Sites          []string            `json:"sites"`
	Teams          []string            `json:"teams"`
}

// Group builds one group per formation type, ordered by worst priority then
// earliest expiry. It performs no I/O.
func Group(details []model.NeedDetail) []NeedGroup {
	byFormation := make(map[string]*NeedGroup)
	var order []string
	for _, d := range details {
		id := d.Need.FormationTypeID
		g, ok := byFormation[id]
		if !ok {
			g = &NeedGroup{FormationType: d.FormationType}
			if g.FormationType.ID == "" {
				g.FormationType.ID = id
			}
			byFormation[id] = g
			order = append(order, id)
		}
		g.Needs = append(g.Needs, d)
	}

	groups := make([]NeedGroup, 0, len(order))
	for _, id := range order {
		groups = append(groups, summarize(*byFormation[id]))
	}
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.MaxPriority != b.MaxPriority {
			return a.MaxPriority > b.MaxPriority
		}
		if !a.EarliestExpiry.Equal(b.EarliestExpiry) {
			return a.EarliestExpiry.Before(b.EarliestExpiry)
		}
		return a.FormationType.ID < b.FormationType.ID
	})
	return groups
}

func summarize(g NeedGroup) NeedGroup {
	employees := make(map[string]struct{})
	sites := make(map[string]struct{})
	teams := make(map[string]struct{})
	total := 0
	for i, d := range g.Needs {
		n := d.Need
		employees[n.EmployeeID] = struct{}{}
		if d.Employee.Site != "" {
			sites[d.Employee.Site] = struct{}{}
		}
		if d.Employee.Team != "" {
			teams[d.Employee.Team] = struct{}{}
		}
		total += n.Priority
		if i == 0 || n.Priority > g.MaxPriority {
			g.MaxPriority = n.Priority
		}
		if i == 0 || n.ExpiryDate.Before(g.EarliestExpiry) {
			g.EarliestExpiry = n.ExpiryDate
		}
	}

	g.TotalEmployees = len(employees)
	if len(g.Needs) > 0 {
		g.AvgPriority = math.Round(float64(total)/float64(len(g.Needs))*100) / 100
	}
	g.Sites = sortedKeys(sites)
	g.Teams = sortedKeys(teams)

	sort.SliceStable(g.Needs, func(i, j int) bool {
		a, b := g.Needs[i].Need, g.Needs[j].Need
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.ExpiryDate.Equal(b.ExpiryDate) {
			return a.ExpiryDate.Before(b.ExpiryDate)
		}
		return a.EmployeeID < b.EmployeeID
	})
	return g
}

// Enrich joins needs with their employee and formation rows. Needs whose
// references are missing are dropped.
func Enrich(needs []model.TrainingNeed, employees []model.Employee, formations []model.FormationType) []model.NeedDetail {
	emps := make(map[string]model.Employee, len(employees))
	for _, e := range employees {
		emps[e.ID] = e
	}
	fts := make(map[string]model.FormationType, len(formations))
	for _, f := range formations {
		fts[f.ID] = f
	}

	out := make([]model.NeedDetail, 0, len(needs))
	for _, n := range needs {
		e, ok := emps[n.EmployeeID]
		if !ok {
			continue
		}
		f, ok := fts[n.FormationTypeID]
		if !ok {
			continue
		}
		out = append(out, model.NeedDetail{Need: n, Employee: e, FormationType: f})
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
