package cost_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/okian/certwatch/internal/domain/cost"
	"github.com/okian/certwatch/internal/domain/model"
	"github.com/okian/certwatch/pkg/logger"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func staff(n int, hourly *decimal.Decimal) []model.Employee {
	out := make([]model.Employee, n)
	for i := range out {
		out[i] = model.Employee{ID: fmt.Sprintf("e%02d", i), Team: "Maintenance", HourlyCost: hourly, Active: true}
	}
	return out
}

func offering(centerID, perPerson string, perSession *decimal.Decimal, min, max int, canTravel bool) model.CenterOffering {
	return model.CenterOffering{
		Center: model.TrainingCenter{ID: centerID, Name: centerID, CanTravel: canTravel},
		Offering: model.Offering{
			ID: "o-" + centerID, CenterID: centerID, FormationTypeID: "sst",
			PricePerPerson: dec(perPerson), PricePerSession: perSession,
			MinParticipants: min, MaxParticipants: max,
		},
	}
}

var sst = model.FormationType{ID: "sst", Name: "SST", DurationHours: 7, Active: true}

func TestCompare(t *testing.T) {
	Convey("Given a comparator", t, func() {
		cmp := cost.NewComparator()

		Convey("When a center offers 450 per person or 3500 per session for 8 people", func() {
			res, err := cmp.Compare(sst, staff(8, nil), []model.CenterOffering{
				offering("c1", "450", decPtr("3500"), 1, 12, true),
			})

			Convey("Then INTRA wins and the break-even point is 8", func() {
				So(err, ShouldBeNil)
				c := res.Centers[0]
				So(c.Inter.TotalCost.Equal(dec("3600")), ShouldBeTrue)
				So(c.Intra.TotalCost.Equal(dec("3500")), ShouldBeTrue)
				So(c.Recommendation, ShouldEqual, cost.ModeIntra)
				So(c.BreakEvenPoint, ShouldNotBeNil)
				So(*c.BreakEvenPoint, ShouldEqual, 8)
				So(res.BestOption, ShouldNotBeNil)
				So(res.Summary.Status, ShouldEqual, cost.StatusOK)
				So(res.Summary.BestMode, ShouldEqual, cost.ModeIntra)
			})
		})

		Convey("When employees have an hourly cost and the center a discount", func() {
			co := offering("c1", "200", decPtr("2000"), 1, 10, true)
			co.Center.DiscountPercent = decPtr("10")
			res, err := cmp.Compare(sst, staff(4, decPtr("20")), []model.CenterOffering{co})

			Convey("Then absence and discounted training costs add up", func() {
				So(err, ShouldBeNil)
				So(res.Employees.Count, ShouldEqual, 4)
				So(res.Employees.TotalAbsenceCost.Equal(dec("560")), ShouldBeTrue)
				So(res.Employees.Details[0].AbsenceCost.Equal(dec("140")), ShouldBeTrue)
				c := res.Centers[0]
				So(c.Inter.CostPerPerson.Equal(dec("180")), ShouldBeTrue)
				So(c.Inter.TrainingCost.Equal(dec("720")), ShouldBeTrue)
				So(c.Inter.TotalCost.Equal(dec("1280")), ShouldBeTrue)
				So(c.Intra.TrainingCost.Equal(dec("1800")), ShouldBeTrue)
				So(c.Intra.CostPerPerson.Equal(dec("450")), ShouldBeTrue)
				So(c.Intra.TotalCost.Equal(dec("2360")), ShouldBeTrue)
				So(c.Recommendation, ShouldEqual, cost.ModeInter)
			})
		})

		Convey("When both modes cost the same", func() {
			res, err := cmp.Compare(sst, staff(4, nil), []model.CenterOffering{
				offering("c1", "500", decPtr("2000"), 1, 10, true),
			})

			Convey("Then INTER is preferred", func() {
				So(err, ShouldBeNil)
				So(res.Centers[0].Recommendation, ShouldEqual, cost.ModeInter)
			})
		})

		Convey("When the center cannot travel or has no session price", func() {
			res, err := cmp.Compare(sst, staff(3, nil), []model.CenterOffering{
				offering("a", "100", decPtr("50"), 1, 10, false),
				offering("b", "100", nil, 1, 10, true),
			})

			Convey("Then INTRA is unavailable with a reason and there is no break-even", func() {
				So(err, ShouldBeNil)
				for _, c := range res.Centers {
					So(c.Intra.Available, ShouldBeFalse)
					So(c.Intra.Reason, ShouldNotBeEmpty)
					So(c.Recommendation, ShouldEqual, cost.ModeInter)
					So(c.BreakEvenPoint, ShouldBeNil)
				}
			})
		})

		Convey("When centers compete", func() {
			res, err := cmp.Compare(sst, staff(5, nil), []model.CenterOffering{
				offering("far", "300", nil, 1, 10, true),
				offering("cheap", "100", nil, 1, 10, true),
				offering("small", "50", nil, 1, 2, true),
				offering("mid", "200", nil, 1, 10, true),
			})

			Convey("Then they are ranked by cost with savings relative to the best", func() {
				So(err, ShouldBeNil)
				ids := []string{}
				for _, c := range res.Centers {
					ids = append(ids, c.Center.ID)
				}
				So(ids, ShouldResemble, []string{"cheap", "mid", "far", "small"})
				So(res.Centers[0].Savings.IsZero(), ShouldBeTrue)
				So(res.Centers[1].Savings.Equal(dec("500")), ShouldBeTrue)
				So(res.Centers[2].Savings.Equal(dec("1000")), ShouldBeTrue)
				So(res.Centers[3].Available, ShouldBeFalse)
				So(res.Summary.AvailableCenters, ShouldEqual, 3)
				So(res.Summary.MaxSavings.Equal(dec("1000")), ShouldBeTrue)
				So(res.BestOption.Center.ID, ShouldEqual, "cheap")
			})

			Convey("And the recommendation never exceeds capacity", func() {
				for _, c := range res.Centers {
					if c.Available {
						So(c.Offering.MaxParticipants, ShouldBeGreaterThanOrEqualTo, 5)
					}
				}
			})
		})

		Convey("When the headcount is below an offering's minimum", func() {
			res, err := cmp.Compare(sst, staff(2, nil), []model.CenterOffering{
				offering("c1", "100", decPtr("1000"), 4, 10, true),
			})

			Convey("Then INTER is flagged, not dropped, and INTRA remains", func() {
				So(err, ShouldBeNil)
				So(res.Centers, ShouldHaveLength, 1)
				So(res.Centers[0].Inter.Available, ShouldBeFalse)
				So(res.Centers[0].Inter.Reason, ShouldContainSubstring, "below min")
				So(res.Centers[0].Recommendation, ShouldEqual, cost.ModeIntra)
			})
		})

		Convey("When the headcount exceeds every offering", func() {
			res, err := cmp.Compare(sst, staff(8, nil), []model.CenterOffering{
				offering("a", "100", decPtr("500"), 1, 5, true),
				offering("b", "100", nil, 1, 6, true),
			})

			Convey("Then every center is returned unavailable", func() {
				So(errors.Is(err, cost.ErrCapacityExceeded), ShouldBeTrue)
				So(res.Centers, ShouldHaveLength, 2)
				for _, c := range res.Centers {
					So(c.Available, ShouldBeFalse)
					So(c.Inter.Reason, ShouldContainSubstring, "exceeds max")
				}
				So(res.BestOption, ShouldBeNil)
				So(res.Summary.Status, ShouldEqual, cost.StatusCapacityExceeded)
			})
		})

		Convey("When an offering has no participant limit recorded", func() {
			res, err := cmp.Compare(sst, staff(3, nil), []model.CenterOffering{
				offering("c1", "100", decPtr("200"), 0, 0, true),
			})

			Convey("Then it hosts nobody and is never recommended", func() {
				So(errors.Is(err, cost.ErrCapacityExceeded), ShouldBeTrue)
				c := res.Centers[0]
				So(c.Available, ShouldBeFalse)
				So(c.Inter.Available, ShouldBeFalse)
				So(c.Intra.Available, ShouldBeFalse)
				So(c.Intra.Reason, ShouldContainSubstring, "exceeds max participants 0")
				So(string(c.Recommendation), ShouldBeEmpty)
				So(res.BestOption, ShouldBeNil)
			})
		})

		Convey("When every center fails for reasons other than capacity", func() {
			res, err := cmp.Compare(sst, staff(2, nil), []model.CenterOffering{
				offering("a", "100", nil, 5, 10, true),
				offering("b", "100", decPtr("500"), 5, 10, false),
			})

			Convey("Then no option is available rather than capacity exceeded", func() {
				So(errors.Is(err, cost.ErrNoAvailableOption), ShouldBeTrue)
				So(errors.Is(err, cost.ErrCapacityExceeded), ShouldBeFalse)
				So(res.Summary.Status, ShouldEqual, cost.StatusNoAvailableOption)
				So(res.Centers, ShouldHaveLength, 2)
				So(res.BestOption, ShouldBeNil)
				for _, c := range res.Centers {
					So(c.Available, ShouldBeFalse)
					So(c.Inter.Reason, ShouldContainSubstring, "below min")
				}
			})
		})

		Convey("When no center offers the formation", func() {
			res, err := cmp.Compare(sst, staff(2, nil), nil)

			Convey("Then ErrNoOffering comes with an empty result", func() {
				So(errors.Is(err, cost.ErrNoOffering), ShouldBeTrue)
				So(res.Centers, ShouldBeEmpty)
				So(res.BestOption, ShouldBeNil)
				So(res.Summary.Status, ShouldEqual, cost.StatusNoOffering)
			})
		})

		Convey("When the employee set is empty", func() {
			res, err := cmp.Compare(sst, nil, []model.CenterOffering{offering("a", "1", nil, 0, 0, true)})

			Convey("Then it is a validation error with no partial result", func() {
				So(errors.Is(err, cost.ErrValidation), ShouldBeTrue)
				So(res.Centers, ShouldBeEmpty)
				So(res.BestOption, ShouldBeNil)
			})
		})
	})
}

func TestBreakEvenProperty(t *testing.T) {
	Convey("Given an offering with both modes", t, func() {
		cmp := cost.NewComparator()
		co := offering("c1", "450", decPtr("3500"), 1, 50, true)
		co.Center.DiscountPercent = decPtr("15")

		Convey("Then INTER is never dearer below break-even and never cheaper from it", func() {
			for n := 1; n <= 30; n++ {
				res, err := cmp.Compare(sst, staff(n, decPtr("18.5")), []model.CenterOffering{co})
				So(err, ShouldBeNil)
				c := res.Centers[0]
				be := *c.BreakEvenPoint
				So(be, ShouldBeGreaterThan, 0)
				if n < be {
					So(c.Inter.TotalCost.LessThanOrEqual(c.Intra.TotalCost), ShouldBeTrue)
				} else {
					So(c.Inter.TotalCost.GreaterThanOrEqual(c.Intra.TotalCost), ShouldBeTrue)
				}
			}
		})
	})
}

type fakeCatalog struct {
	formations map[string]model.FormationType
	employees  map[string]model.Employee
	offerings  []model.CenterOffering
	asked      []string
}

func (f *fakeCatalog) FormationType(_ context.Context, _ model.CompanyID, id string) (model.FormationType, error) {
	ft, ok := f.formations[id]
	if !ok {
		return model.FormationType{}, fmt.Errorf("formation %s: %w", id, model.ErrNotFound)
	}
	return ft, nil
}

func (f *fakeCatalog) EmployeesByIDs(_ context.Context, _ model.CompanyID, ids []string) ([]model.Employee, error) {
	f.asked = ids
	var out []model.Employee
	for _, id := range ids {
		if e, ok := f.employees[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeCatalog) CenterOfferings(context.Context, model.CompanyID, string) ([]model.CenterOffering, error) {
	return f.offerings, nil
}

func TestCompareFor(t *testing.T) {
	Convey("Given a catalog", t, func() {
		cat := &fakeCatalog{
			formations: map[string]model.FormationType{"sst": sst},
			employees: map[string]model.Employee{
				"e1": {ID: "e1"},
				"e2": {ID: "e2"},
			},
			offerings: []model.CenterOffering{offering("c1", "100", nil, 1, 10, true)},
		}
		cmp := cost.NewComparator()
		ctx := context.Background()

		Convey("When employee ids repeat", func() {
			res, err := cmp.CompareFor(ctx, cat, "acme", cost.Request{FormationTypeID: "sst", EmployeeIDs: []string{"e1", "e2", "e1"}})

			Convey("Then they are counted once", func() {
				So(err, ShouldBeNil)
				So(cat.asked, ShouldResemble, []string{"e1", "e2"})
				So(res.Summary.Headcount, ShouldEqual, 2)
			})
		})

		Convey("When an employee is unknown", func() {
			_, err := cmp.CompareFor(ctx, cat, "acme", cost.Request{FormationTypeID: "sst", EmployeeIDs: []string{"e1", "ghost"}})

			Convey("Then the request is invalid", func() {
				So(errors.Is(err, cost.ErrValidation), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "ghost")
			})
		})

		Convey("When the formation is unknown", func() {
			_, err := cmp.CompareFor(ctx, cat, "acme", cost.Request{FormationTypeID: "nope", EmployeeIDs: []string{"e1"}})

			Convey("Then the request is invalid", func() {
				So(errors.Is(err, cost.ErrValidation), ShouldBeTrue)
				So(errors.Is(err, cost.ErrNotFound), ShouldBeFalse)
				So(err.Error(), ShouldContainSubstring, "nope")
			})
		})

		Convey("When inputs are missing", func() {
			_, errIDs := cmp.CompareFor(ctx, cat, "acme", cost.Request{FormationTypeID: "sst"})
			_, errFT := cmp.CompareFor(ctx, cat, "acme", cost.Request{EmployeeIDs: []string{"e1"}})

			Convey("Then both are rejected before any lookup", func() {
				So(errors.Is(errIDs, cost.ErrValidation), ShouldBeTrue)
				So(errors.Is(errFT, cost.ErrValidation), ShouldBeTrue)
				So(cat.asked, ShouldBeEmpty)
			})
		})
	})
}
