package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/certwatch/internal/adapters/repository"
	service "github.com/okian/certwatch/internal/app"
	"github.com/okian/certwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// gatedStore holds detection runs until the gate is opened.
type gatedStore struct {
	*repository.GormStore
	gate chan struct{}
}

func (g *gatedStore) Employees(ctx context.Context, company model.CompanyID) ([]model.Employee, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.GormStore.Employees(ctx, company)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New(seededStore(t))

		Convey("Then it is usable before Start", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats(context.Background())
			So(stats["started"], ShouldEqual, false)
			So(stats["horizonDays"], ShouldEqual, 90)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(seededStore(t),
			service.WithWorkerCount(3),
			service.WithQueueSize(10),
			service.WithDedupeSize(100),
			service.WithHorizonDays(30),
			service.WithDetectionInterval(0),
			service.WithThresholds(10, 20, 30),
			service.WithLegalFloor(8),
			service.WithHoursPerDay(8),
			service.WithDefaultTrainingDays(model.EveryDay),
			service.WithClock(fixedClock),
		)

		Convey("Then the options shape detection", func() {
			report, err := svc.DetectNeeds(context.Background(), "acme", 0)
			So(err, ShouldBeNil)
			So(report.HorizonDays, ShouldEqual, 30)
			// Only e1 (expired) and e2 (19 days) fall inside 30 days.
			So(report.Created, ShouldEqual, 2)
			So(report.Needs[0].Priority, ShouldEqual, 10)
			So(report.Needs[1].PriorityReason, ShouldEqual, model.ReasonUrgent)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a service", t, func() {
		svc := service.New(seededStore(t), service.WithWorkerCount(2), service.WithDetectionInterval(0))
		defer svc.Stop()
		ctx := context.Background()

		Convey("When it is not started", func() {
			Convey("Then background detection is refused", func() {
				So(errors.Is(svc.EnqueueDetection(ctx, "acme"), service.ErrNotStarted), ShouldBeTrue)
			})
		})

		Convey("When starting it twice", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then stats show the pool", func() {
				stats := svc.GetStats(ctx)
				So(stats["started"], ShouldEqual, true)
				So(stats["workerCount"], ShouldEqual, 2)
				So(stats["queueLength"], ShouldEqual, 0)
			})

			Convey("Then stopping it twice is safe and it can start again", func() {
				svc.Stop()
				svc.Stop()
				So(svc.GetStats(ctx)["started"], ShouldEqual, false)
				So(svc.Start(ctx), ShouldBeNil)
				So(svc.GetStats(ctx)["started"], ShouldEqual, true)
			})
		})
	})
}

func TestService_BackgroundDetection(t *testing.T) {
	Convey("Given a started service whose store is held", t, func() {
		store := &gatedStore{GormStore: seededStore(t), gate: make(chan struct{})}
		svc := service.New(store, service.WithWorkerCount(1), service.WithDetectionInterval(0), service.WithClock(fixedClock))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When detection is requested twice for the same company", func() {
			first := svc.EnqueueDetection(ctx, "acme")
			second := svc.EnqueueDetection(ctx, "acme")

			Convey("Then the second request is folded into the first", func() {
				So(first, ShouldBeNil)
				So(errors.Is(second, service.ErrDetectionQueued), ShouldBeTrue)
			})

			Convey("Then once the run finishes the company can be queued again", func() {
				close(store.gate)
				So(waitFor(func() bool {
					return svc.GetStats(ctx)["detectionRuns"] == int64(1)
				}), ShouldBeTrue)
				counts, err := store.NeedCounts(ctx)
				So(err, ShouldBeNil)
				So(counts[model.NeedOpen], ShouldEqual, 4)
				So(svc.EnqueueDetection(ctx, "acme"), ShouldBeNil)
			})
		})
	})

	Convey("Given a started service whose workers are held", t, func() {
		store := &gatedStore{GormStore: seededStore(t), gate: make(chan struct{})}
		svc := service.New(store, service.WithWorkerCount(1), service.WithDetectionInterval(0), service.WithClock(fixedClock))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When it stops with detections still pending", func() {
			So(svc.EnqueueDetection(ctx, "acme"), ShouldBeNil)
			So(svc.EnqueueDetection(ctx, "globex"), ShouldBeNil)
			svc.Stop()
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then both companies can be queued again after a restart", func() {
				So(svc.EnqueueDetection(ctx, "acme"), ShouldBeNil)
				So(svc.EnqueueDetection(ctx, "globex"), ShouldBeNil)
			})
		})
	})

	Convey("Given a service with the scheduler enabled", t, func() {
		store := seededStore(t)
		svc := service.New(store, service.WithWorkerCount(2), service.WithDetectionInterval(time.Hour), service.WithClock(fixedClock))
		ctx := context.Background()

		Convey("When it starts", func() {
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			Convey("Then every company is scanned right away", func() {
				So(waitFor(func() bool {
					counts, err := store.NeedCounts(ctx)
					return err == nil && counts[model.NeedOpen] == 4
				}), ShouldBeTrue)
			})
		})
	})
}
