package planrun

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/certwatch/internal/domain/model"
	"github.com/okian/certwatch/pkg/logger"
	"github.com/shopspring/decimal"
)

// Fixture is a synthetic workforce for one or more companies.
type Fixture struct {
	Companies []CompanyFixture
}

// CompanyFixture is everything seeded for one tenant.
type CompanyFixture struct {
	ID           model.CompanyID
	Name         string
	Employees    []model.Employee
	Formations   []model.FormationType
	Certificates []model.Certificate
	Centers      []model.TrainingCenter
	Offerings    []model.Offering
	Constraints  model.PlanningConstraints
}

// Seeder persists fixtures.
type Seeder interface {
	SaveCompany(ctx context.Context, id model.CompanyID, name string) error
	SaveEmployees(ctx context.Context, employees []model.Employee) error
	SaveFormationTypes(ctx context.Context, formations []model.FormationType) error
	SaveCertificates(ctx context.Context, certs []model.Certificate) error
	SaveCenters(ctx context.Context, centers []model.TrainingCenter) error
	SaveOfferings(ctx context.Context, offerings []model.Offering) error
	SaveConstraints(ctx context.Context, c model.PlanningConstraints) error
}

var fixtureNamespace = uuid.MustParse("6f1c2a8e-4d0b-4b8e-9a57-0c1e5d2f7a31")

type formationSpec struct {
	key      string
	name     string
	hours    float64
	days     float64
	legal    bool
	validity int
	offered  bool
}

var formationCatalog = []formationSpec{
	{key: "sst", name: "First aid at work", hours: 14, validity: 24, offered: true},
	{key: "caces", name: "Forklift operator", days: 3, legal: true, validity: 60, offered: true},
	{key: "elec", name: "Electrical clearance", days: 2, legal: true, validity: 36, offered: true},
	{key: "fire", name: "Fire safety", hours: 7, validity: 12, offered: true},
	{key: "posture", name: "Manual handling", hours: 7, validity: 36},
}

// expiryOffsets place certificates in every priority band around today.
var expiryOffsets = []int{-20, -3, 4, 12, 25, 38, 55, 70, 84, 120, 240}

var (
	teams      = []string{"Maintenance", "Logistics", "Production", "Quality"}
	sites      = []string{"Lyon", "Paris", "Nantes"}
	cities     = []string{"Lyon", "Paris", "Nantes", "Lille"}
	firstNames = []string{"Ada", "Alan", "Grace", "Edsger", "Barbara", "Ken", "Frances", "Dennis", "Radia", "Niklaus"}
	lastNames  = []string{"Lovelace", "Turing", "Hopper", "Dijkstra", "Liskov", "Thompson", "Allen", "Ritchie", "Perlman", "Wirth"}
)

func stableID(parts ...string) string {
	return uuid.NewSHA1(fixtureNamespace, []byte(strings.Join(parts, "/"))).String()
}

// CompanyID names the index-th synthetic company.
func CompanyID(index int) model.CompanyID {
	return model.CompanyID(fmt.Sprintf("planrun-%02d", index+1))
}

// BuildFixture generates config.Companies companies around today. The same
// seed and day always give the same fixture.
func BuildFixture(config *Config, today time.Time) Fixture {
	today = model.Day(today)
	fx := Fixture{Companies: make([]CompanyFixture, 0, config.Companies)}
	for i := 0; i < config.Companies; i++ {
		rng := rand.New(rand.NewPCG(config.Seed, uint64(i)))
		fx.Companies = append(fx.Companies, buildCompany(rng, CompanyID(i), config.Employees, today))
	}
	return fx
}

func buildCompany(rng *rand.Rand, id model.CompanyID, employees int, today time.Time) CompanyFixture {
	cf := CompanyFixture{ID: id, Name: "Planrun " + strings.TrimPrefix(string(id), "planrun-")}
	company := string(id)

	for _, spec := range formationCatalog {
		validity := spec.validity
		cf.Formations = append(cf.Formations, model.FormationType{
			ID:                    company + "-" + spec.key,
			CompanyID:             id,
			Name:                  spec.name,
			DurationHours:         spec.hours,
			DurationDays:          spec.days,
			IsLegalObligation:     spec.legal,
			DefaultValidityMonths: &validity,
			Active:                true,
		})
	}

	for e := 0; e < employees; e++ {
		emp := model.Employee{
			ID:        stableID(company, "employee", strconv.Itoa(e)),
			CompanyID: id,
			FirstName: firstNames[rng.IntN(len(firstNames))],
			LastName:  lastNames[rng.IntN(len(lastNames))],
			Team:      teams[rng.IntN(len(teams))],
			Site:      sites[rng.IntN(len(sites))],
			Active:    true,
		}
		// Every few employees carry no hourly cost.
		if e%noCostEvery != 0 {
			hourly := decimal.NewFromInt(int64(hourlyCostMin + rng.IntN(hourlyCostRange)))
			emp.HourlyCost = &hourly
		}
		cf.Employees = append(cf.Employees, emp)

		for f, spec := range formationCatalog {
			if rng.IntN(3) == 0 {
				continue
			}
			cert := model.Certificate{
				ID:              stableID(company, "certificate", strconv.Itoa(e), spec.key),
				CompanyID:       id,
				EmployeeID:      emp.ID,
				FormationTypeID: cf.Formations[f].ID,
			}
			expiry := today.AddDate(0, 0, expiryOffsets[rng.IntN(len(expiryOffsets))])
			cert.ExpiryDate = &expiry
			cert.ObtainedDate = expiry.AddDate(0, -spec.validity, 0)
			cf.Certificates = append(cf.Certificates, cert)
		}
	}

	for k := 0; k < centersPerCompany; k++ {
		center := model.TrainingCenter{
			ID:        stableID(company, "center", strconv.Itoa(k)),
			CompanyID: id,
			Name:      fmt.Sprintf("Center %c", 'A'+k),
			City:      cities[k%len(cities)],
			IsPartner: k == 0,
			CanTravel: k != centersPerCompany-1,
		}
		if center.IsPartner {
			discount := decimal.NewFromInt(10)
			center.DiscountPercent = &discount
		}
		cf.Centers = append(cf.Centers, center)

		for f, spec := range formationCatalog {
			if !spec.offered {
				continue
			}
			price := decimal.NewFromInt(int64(150 + rng.IntN(250)))
			off := model.Offering{
				ID:              stableID(company, "offering", strconv.Itoa(k), spec.key),
				CenterID:        center.ID,
				FormationTypeID: cf.Formations[f].ID,
				PricePerPerson:  price,
				MaxParticipants: 4 + rng.IntN(9),
			}
			if rng.IntN(4) != 0 {
				session := price.Mul(decimal.NewFromInt(int64(3 + rng.IntN(6))))
				off.PricePerSession = &session
			}
			cf.Offerings = append(cf.Offerings, off)
		}
	}

	cf.Constraints = model.PlanningConstraints{
		CompanyID:           id,
		AllowedTrainingDays: model.MondayToFriday,
		MaxAbsentPerTeam:    teamCap,
		MaxAbsentPerSite:    siteCap,
	}
	for i := 0; i < blockedDays; i++ {
		cf.Constraints.BlacklistedDates = append(cf.Constraints.BlacklistedDates, today.AddDate(0, 0, 7*(i+1)+rng.IntN(5)))
	}
	return cf
}

// seedFixture writes every company of fx through seeder.
func seedFixture(ctx context.Context, seeder Seeder, fx Fixture) error {
	for _, cf := range fx.Companies {
		steps := []struct {
			name string
			run  func() error
		}{
			{"company", func() error { return seeder.SaveCompany(ctx, cf.ID, cf.Name) }},
			{"employees", func() error { return seeder.SaveEmployees(ctx, cf.Employees) }},
			{"formation types", func() error { return seeder.SaveFormationTypes(ctx, cf.Formations) }},
			{"certificates", func() error { return seeder.SaveCertificates(ctx, cf.Certificates) }},
			{"centers", func() error { return seeder.SaveCenters(ctx, cf.Centers) }},
			{"offerings", func() error { return seeder.SaveOfferings(ctx, cf.Offerings) }},
			{"constraints", func() error { return seeder.SaveConstraints(ctx, cf.Constraints) }},
		}
		for _, step := range steps {
			if err := step.run(); err != nil {
				return fmt.Errorf("seed %s for %s: %w", step.name, cf.ID, err)
			}
		}
		logger.Get().Debug(ctx, "company seeded",
			logger.String("company", string(cf.ID)),
			logger.Int("employees", len(cf.Employees)),
			logger.Int("certificates", len(cf.Certificates)),
			logger.Int("offerings", len(cf.Offerings)))
	}
	return nil
}

// planDate is the first allowed, unblocked training day at least two weeks out.
func (cf CompanyFixture) planDate(today time.Time) time.Time {
	d := model.Day(today).AddDate(0, 0, 14)
	for !cf.Constraints.AllowedTrainingDays.Allows(d.Weekday()) || cf.Constraints.IsBlacklisted(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
