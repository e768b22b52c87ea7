package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/certwatch/internal/adapters/mq/queue"
	worker "github.com/okian/certwatch/internal/adapters/mq/worker"
	model "github.com/okian/certwatch/internal/domain/model"
	"github.com/okian/certwatch/internal/domain/needs"
	logging "github.com/okian/certwatch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs chan queue.Job
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 128)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Job {
	return mq.jobs
}

func (mq *mockQueue) Close() error {
	close(mq.jobs)
	return nil
}

func (mq *mockQueue) add(company string) {
	mq.jobs <- model.DetectionJob{ID: "job-" + company, CompanyID: model.CompanyID(company), HorizonDays: 90, RequestedAt: time.Now()}
}

type mockDetector struct {
	mu     sync.Mutex
	runs   map[model.CompanyID]int
	errors map[model.CompanyID]error
	delay  time.Duration
}

func newMockDetector() *mockDetector {
	return &mockDetector{runs: make(map[model.CompanyID]int), errors: make(map[model.CompanyID]error)}
}

func (md *mockDetector) Detect(ctx context.Context, company model.CompanyID, horizonDays int) (needs.Report, error) {
	if md.delay > 0 {
		select {
		case <-time.After(md.delay):
		case <-ctx.Done():
			return needs.Report{}, ctx.Err()
		}
	}
	md.mu.Lock()
	defer md.mu.Unlock()
	if err, ok := md.errors[company]; ok {
		return needs.Report{}, err
	}
	md.runs[company]++
	return needs.Report{CompanyID: company, HorizonDays: horizonDays, Created: 2, Updated: 1}, nil
}

func (md *mockDetector) setError(company model.CompanyID, err error) {
	md.mu.Lock()
	defer md.mu.Unlock()
	md.errors[company] = err
}

func (md *mockDetector) runsFor(company model.CompanyID) int {
	md.mu.Lock()
	defer md.mu.Unlock()
	return md.runs[company]
}

type outcomes struct {
	mu      sync.Mutex
	reports map[model.CompanyID]needs.Report
	errs    map[model.CompanyID]error
	ch      chan struct{}
}

func newOutcomes() *outcomes {
	return &outcomes{
		reports: make(map[model.CompanyID]needs.Report),
		errs:    make(map[model.CompanyID]error),
		ch:      make(chan struct{}, 256),
	}
}

func (o *outcomes) record(job worker.Job, report needs.Report, err error) {
	o.mu.Lock()
	o.reports[job.CompanyID] = report
	o.errs[job.CompanyID] = err
	o.mu.Unlock()
	o.ch <- struct{}{}
}

func (o *outcomes) wait(n int) bool {
	timeout := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-o.ch:
		case <-timeout:
			return false
		}
	}
	return true
}

func (o *outcomes) get(company model.CompanyID) (needs.Report, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reports[company], o.errs[company]
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		detector := newMockDetector()
		seen := newOutcomes()

		convey.Convey("When running a worker", func() {
			w := worker.NewInMemoryWorker(q, detector, worker.WithName("test-worker"), worker.WithOnDone(seen.record))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			convey.Convey("And when processing a job", func() {
				q.add("acme")
				convey.So(seen.wait(1), convey.ShouldBeTrue)

				convey.Convey("Then the detector ran and the report reached the hook", func() {
					convey.So(detector.runsFor("acme"), convey.ShouldEqual, 1)
					report, err := seen.get("acme")
					convey.So(err, convey.ShouldBeNil)
					convey.So(report.Created, convey.ShouldEqual, 2)
					convey.So(report.HorizonDays, convey.ShouldEqual, 90)
				})
			})

			convey.Convey("And when detection fails", func() {
				boom := errors.New("database down")
				detector.setError("globex", boom)
				q.add("globex")
				q.add("acme")
				convey.So(seen.wait(2), convey.ShouldBeTrue)

				convey.Convey("Then the error reaches the hook and the worker keeps going", func() {
					_, err := seen.get("globex")
					convey.So(errors.Is(err, boom), convey.ShouldBeTrue)
					convey.So(detector.runsFor("acme"), convey.ShouldEqual, 1)
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer shutdownCancel()

				convey.Convey("Then it should shutdown gracefully and tolerate a second call", func() {
					convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
					convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When a job outlives its timeout", func() {
			detector.delay = 200 * time.Millisecond
			w := worker.NewInMemoryWorker(q, detector, worker.WithJobTimeout(10*time.Millisecond), worker.WithOnDone(seen.record))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)
			q.add("slow")
			convey.So(seen.wait(1), convey.ShouldBeTrue)

			convey.Convey("Then the run is cancelled", func() {
				_, err := seen.get("slow")
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the queue channel is closed", func() {
			w := worker.NewInMemoryWorker(q, detector)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)
			_ = q.Close()

			convey.Convey("Then the worker stops on its own", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		detector := newMockDetector()
		seen := newOutcomes()

		convey.Convey("When creating a pool with default count", func() {
			pool := worker.NewPool(0, q, detector)

			convey.Convey("Then it has at least one worker", func() {
				convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
				convey.So(pool.Active(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When many companies are queued concurrently", func() {
			pool := worker.NewPool(4, q, detector, worker.WithOnDone(seen.record))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			const companies = 40
			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func(base int) {
					defer wg.Done()
					for j := 0; j < companies/4; j++ {
						q.add(fmt.Sprintf("company-%d-%d", base, j))
					}
				}(i)
			}
			wg.Wait()
			convey.So(seen.wait(companies), convey.ShouldBeTrue)

			convey.Convey("Then every company ran exactly once", func() {
				for i := 0; i < 4; i++ {
					for j := 0; j < companies/4; j++ {
						convey.So(detector.runsFor(model.CompanyID(fmt.Sprintf("company-%d-%d", i, j))), convey.ShouldEqual, 1)
					}
				}
			})

			convey.Convey("Then shutdown closes the queue and stops every worker", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()
				convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}
