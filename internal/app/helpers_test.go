package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/okian/certwatch/internal/adapters/repository"
	"github.com/okian/certwatch/internal/domain/model"
	"github.com/okian/certwatch/pkg/logger"
	"github.com/shopspring/decimal"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var today = time.Date(2025, time.July, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return today }

func day(s string) time.Time {
	t, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func expiring(id, employee, formation, expiry string) model.Certificate {
	exp := day(expiry)
	return model.Certificate{
		ID: id, CompanyID: "acme", EmployeeID: employee, FormationTypeID: formation,
		ObtainedDate: exp.AddDate(-2, 0, 0), ExpiryDate: &exp,
	}
}

// seededStore opens a private in-memory database holding one company whose
// first-aid certificates expire across the priority bands.
//
//   - sst (first aid, 14h): e1 expired, e2 in 19 days, e3 in 50 days, e4 in 200 days.
//   - caces (forklift, legal): e1 in 80 days.
//   - center-a sells sst INTER 450/person or INTRA 3500/session, max 10.
//   - center-b sells sst INTER 400/person, max 3.
//   - Maintenance may not lose more than 2 people on one day; 2025-07-14 is blocked.
var storeSeq int

func seededStore(t *testing.T) *repository.GormStore {
	t.Helper()
	ctx := context.Background()
	storeSeq++
	store, err := repository.Open(fmt.Sprintf("file:app_%d?mode=memory&cache=shared", storeSeq))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	steps := []error{
		store.SaveCompany(ctx, "acme", "Acme"),
		store.SaveEmployees(ctx, []model.Employee{
			{ID: "e1", CompanyID: "acme", FirstName: "Ada", LastName: "Lovelace", Team: "Maintenance", Site: "Lyon", HourlyCost: dec("20"), Active: true},
			{ID: "e2", CompanyID: "acme", FirstName: "Alan", LastName: "Turing", Team: "Maintenance", Site: "Lyon", HourlyCost: dec("25"), Active: true},
			{ID: "e3", CompanyID: "acme", FirstName: "Grace", LastName: "Hopper", Team: "Maintenance", Site: "Paris", Active: true},
			{ID: "e4", CompanyID: "acme", FirstName: "Edsger", LastName: "Dijkstra", Team: "Logistics", Site: "Paris", Active: true},
		}),
		store.SaveFormationTypes(ctx, []model.FormationType{
			{ID: "sst", CompanyID: "acme", Name: "First aid", DurationHours: 14, Active: true},
			{ID: "caces", CompanyID: "acme", Name: "Forklift", DurationDays: 3, IsLegalObligation: true, Active: true},
		}),
		store.SaveCertificates(ctx, []model.Certificate{
			expiring("c1", "e1", "sst", "2025-06-20"),
			expiring("c2", "e2", "sst", "2025-07-20"),
			expiring("c3", "e3", "sst", "2025-08-20"),
			expiring("c4", "e4", "sst", "2026-01-17"),
			expiring("c5", "e1", "caces", "2025-09-19"),
		}),
		store.SaveCenters(ctx, []model.TrainingCenter{
			{ID: "center-a", CompanyID: "acme", Name: "Alpha", City: "Lyon", CanTravel: true},
			{ID: "center-b", CompanyID: "acme", Name: "Beta", City: "Paris"},
		}),
		store.SaveOfferings(ctx, []model.Offering{
			{ID: "o1", CenterID: "center-a", FormationTypeID: "sst", PricePerPerson: decimal.NewFromInt(450), PricePerSession: dec("3500"), MaxParticipants: 10},
			{ID: "o2", CenterID: "center-b", FormationTypeID: "sst", PricePerPerson: decimal.NewFromInt(400), MaxParticipants: 3},
		}),
		store.SaveConstraints(ctx, model.PlanningConstraints{
			CompanyID:        "acme",
			BlacklistedDates: []time.Time{day("2025-07-14")},
			MaxAbsentPerTeam: 2,
		}),
	}
	for _, err := range steps {
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return store
}
