package planrun

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/certwatch/internal/domain/model"
	"github.com/okian/certwatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithOutput(os.Stderr), logger.WithLevel("error")); err != nil {
		panic(err)
	}
}

var fixtureDay = time.Date(2025, 7, 1, 15, 4, 5, 0, time.UTC)

type recordingSeeder struct {
	calls []string
	fail  string
}

func (r *recordingSeeder) record(name string) error {
	r.calls = append(r.calls, name)
	if name == r.fail {
		return errors.New("boom")
	}
	return nil
}

func (r *recordingSeeder) SaveCompany(context.Context, model.CompanyID, string) error {
	return r.record("company")
}
func (r *recordingSeeder) SaveEmployees(context.Context, []model.Employee) error {
	return r.record("employees")
}
func (r *recordingSeeder) SaveFormationTypes(context.Context, []model.FormationType) error {
	return r.record("formations")
}
func (r *recordingSeeder) SaveCertificates(context.Context, []model.Certificate) error {
	return r.record("certificates")
}
func (r *recordingSeeder) SaveCenters(context.Context, []model.TrainingCenter) error {
	return r.record("centers")
}
func (r *recordingSeeder) SaveOfferings(context.Context, []model.Offering) error {
	return r.record("offerings")
}
func (r *recordingSeeder) SaveConstraints(context.Context, model.PlanningConstraints) error {
	return r.record("constraints")
}

func TestBuildFixture(t *testing.T) {
	Convey("Given a fixture configuration", t, func() {
		config := &Config{Companies: 3, Employees: 25, Seed: 42}
		fx := BuildFixture(config, fixtureDay)

		Convey("Then it has the requested shape", func() {
			So(len(fx.Companies), ShouldEqual, 3)
			So(fx.Companies[0].ID, ShouldEqual, model.CompanyID("planrun-01"))
			So(fx.Companies[2].ID, ShouldEqual, model.CompanyID("planrun-03"))
			for _, cf := range fx.Companies {
				So(len(cf.Employees), ShouldEqual, 25)
				So(len(cf.Formations), ShouldEqual, len(formationCatalog))
				So(len(cf.Centers), ShouldEqual, centersPerCompany)
				So(len(cf.Offerings), ShouldEqual, centersPerCompany*(len(formationCatalog)-1))
				So(len(cf.Constraints.BlacklistedDates), ShouldEqual, blockedDays)
				So(cf.Constraints.CompanyID, ShouldEqual, cf.ID)
			}
		})

		Convey("Then the same seed gives the same fixture", func() {
			again := BuildFixture(config, fixtureDay.Add(3*time.Hour))
			So(again, ShouldResemble, fx)
		})

		Convey("Then another seed gives another workforce", func() {
			other := BuildFixture(&Config{Companies: 3, Employees: 25, Seed: 7}, fixtureDay)
			So(other.Companies[0].Employees[0].ID, ShouldEqual, fx.Companies[0].Employees[0].ID)
			So(other.Companies[0].Offerings, ShouldNotResemble, fx.Companies[0].Offerings)
		})

		Convey("Then a company does not depend on how many follow it", func() {
			single := BuildFixture(&Config{Companies: 1, Employees: 25, Seed: 42}, fixtureDay)
			So(single.Companies[0], ShouldResemble, fx.Companies[0])
		})

		Convey("Then ids are unique across companies", func() {
			seen := make(map[string]struct{})
			for _, cf := range fx.Companies {
				for _, e := range cf.Employees {
					_, dup := seen[e.ID]
					So(dup, ShouldBeFalse)
					seen[e.ID] = struct{}{}
				}
				for _, c := range cf.Certificates {
					_, dup := seen[c.ID]
					So(dup, ShouldBeFalse)
					seen[c.ID] = struct{}{}
				}
			}
		})

		Convey("Then certificates expire in the configured bands", func() {
			today := model.Day(fixtureDay)
			offsets := make(map[int]bool)
			for _, o := range expiryOffsets {
				offsets[o] = true
			}
			for _, c := range fx.Companies[0].Certificates {
				So(c.ExpiryDate, ShouldNotBeNil)
				So(offsets[model.DaysBetween(today, *c.ExpiryDate)], ShouldBeTrue)
				So(c.ObtainedDate.Before(*c.ExpiryDate), ShouldBeTrue)
			}
		})

		Convey("Then only the last center cannot travel and the first is discounted", func() {
			centers := fx.Companies[0].Centers
			So(centers[0].DiscountPercent, ShouldNotBeNil)
			So(centers[1].DiscountPercent, ShouldBeNil)
			So(centers[0].CanTravel, ShouldBeTrue)
			So(centers[centersPerCompany-1].CanTravel, ShouldBeFalse)
		})

		Convey("Then the planning date is an allowed, unblocked weekday", func() {
			cf := fx.Companies[0]
			d := cf.planDate(fixtureDay)
			So(model.DaysBetween(fixtureDay, d), ShouldBeGreaterThanOrEqualTo, 14)
			So(cf.Constraints.AllowedTrainingDays.Allows(d.Weekday()), ShouldBeTrue)
			So(cf.Constraints.IsBlacklisted(d), ShouldBeFalse)
		})
	})
}

func TestSeedFixture(t *testing.T) {
	Convey("Given a two-company fixture", t, func() {
		fx := BuildFixture(&Config{Companies: 2, Employees: 5, Seed: 1}, fixtureDay)

		Convey("When every save succeeds", func() {
			seeder := &recordingSeeder{}
			err := seedFixture(context.Background(), seeder, fx)

			Convey("Then each company is written in dependency order", func() {
				So(err, ShouldBeNil)
				So(len(seeder.calls), ShouldEqual, 14)
				So(seeder.calls[:7], ShouldResemble, []string{
					"company", "employees", "formations", "certificates", "centers", "offerings", "constraints",
				})
			})
		})

		Convey("When a save fails", func() {
			seeder := &recordingSeeder{fail: "certificates"}
			err := seedFixture(context.Background(), seeder, fx)

			Convey("Then seeding stops and names the step", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "seed certificates for planrun-01")
				So(len(seeder.calls), ShouldEqual, 4)
			})
		})
	})
}
