package model_test

import (
	"testing"
	"time"

	"github.com/okian/certwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func date(s string) time.Time {
	t, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDates(t *testing.T) {
	Convey("Given calendar date helpers", t, func() {
		Convey("When counting days across a clock time", func() {
			from := time.Date(2025, 7, 1, 23, 59, 0, 0, time.UTC)
			to := time.Date(2025, 7, 3, 0, 1, 0, 0, time.UTC)

			Convey("Then only calendar days count", func() {
				So(model.DaysBetween(from, to), ShouldEqual, 2)
				So(model.DaysBetween(to, from), ShouldEqual, -2)
				So(model.DaysBetween(from, from), ShouldEqual, 0)
			})
		})

		Convey("When parsing a malformed date", func() {
			_, err := model.ParseDate("14/07/2025")

			Convey("Then it should fail", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When expanding a range", func() {
			days := model.DaysInRange(date("2025-07-13"), date("2025-07-15"))

			Convey("Then both ends are included", func() {
				So(len(days), ShouldEqual, 3)
				So(model.FormatDate(days[0]), ShouldEqual, "2025-07-13")
				So(model.FormatDate(days[2]), ShouldEqual, "2025-07-15")
			})

			Convey("And an inverted range yields the start day", func() {
				So(len(model.DaysInRange(date("2025-07-15"), date("2025-07-13"))), ShouldEqual, 1)
			})
		})
	})
}

func TestWeekdayMask(t *testing.T) {
	Convey("Given the Monday-to-Friday mask", t, func() {
		mask := model.MondayToFriday

		Convey("Then weekdays are allowed and weekends are not", func() {
			So(mask.Allows(time.Monday), ShouldBeTrue)
			So(mask.Allows(time.Friday), ShouldBeTrue)
			So(mask.Allows(time.Saturday), ShouldBeFalse)
			So(mask.Allows(time.Sunday), ShouldBeFalse)
		})

		Convey("And a Sunday-only mask sets bit 6", func() {
			So(model.WeekdayMask(1<<6).Allows(time.Sunday), ShouldBeTrue)
			So(model.WeekdayMask(1<<6).Allows(time.Monday), ShouldBeFalse)
		})
	})
}

func TestCertificateSupersedes(t *testing.T) {
	Convey("Given two certificates for the same formation", t, func() {
		early := date("2025-01-01")
		late := date("2026-01-01")
		older := model.Certificate{ObtainedDate: date("2022-01-01"), ExpiryDate: &early}
		newer := model.Certificate{ObtainedDate: date("2023-01-01"), ExpiryDate: &late}
		permanent := model.Certificate{ObtainedDate: date("2020-01-01")}

		Convey("Then a later expiry supersedes an earlier one", func() {
			So(newer.Supersedes(older), ShouldBeTrue)
			So(older.Supersedes(newer), ShouldBeFalse)
		})

		Convey("And a certificate without expiry supersedes any dated one", func() {
			So(permanent.Supersedes(newer), ShouldBeTrue)
			So(newer.Supersedes(permanent), ShouldBeFalse)
		})
	})
}

func TestPlanningConstraints(t *testing.T) {
	Convey("Given constraints with a blacklisted day", t, func() {
		c := model.PlanningConstraints{BlacklistedDates: []time.Time{date("2025-07-14")}}

		Convey("Then the exact day matches regardless of clock time", func() {
			So(c.IsBlacklisted(time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)), ShouldBeTrue)
			So(c.IsBlacklisted(date("2025-07-15")), ShouldBeFalse)
		})
	})

	Convey("Given a formation with only a day count", t, func() {
		f := model.FormationType{DurationDays: 2}

		Convey("Then hours derive from the working day length", func() {
			So(f.Hours(7), ShouldEqual, 14)
			So(model.FormationType{DurationHours: 10, DurationDays: 2}.Hours(7), ShouldEqual, 10)
		})
	})
}
