// Package worker runs background detection jobs off the queue.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/certwatch/internal/domain/model"
	"github.com/okian/certwatch/internal/domain/needs"
	"github.com/okian/certwatch/pkg/logger"
	"github.com/okian/certwatch/pkg/metrics"
)

const (
	defaultJobTimeout   = 5 * time.Minute
	poolShutdownTimeout = 30 * time.Second
)

// Job is what workers read off the queue.
type Job = model.DetectionJob

// Detector runs one detection pass for a company.
type Detector interface {
	Detect(ctx context.Context, company model.CompanyID, horizonDays int) (needs.Report, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// DoneFunc observes the outcome of a job.
type DoneFunc func(job Job, report needs.Report, err error)

// Worker processes jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)
	// Shutdown stops the worker after the job in progress.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for detection jobs.
type InMemoryWorker struct {
	queue      Queue
	detector   Detector
	name       string
	jobTimeout time.Duration
	onDone     DoneFunc
	active     *atomic.Int32

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from queue.
func NewInMemoryWorker(queue Queue, detector Detector, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      queue,
		detector:   detector,
		name:       "worker",
		jobTimeout: defaultJobTimeout,
		active:     new(atomic.Int32),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "detection job failed",
					logger.String("job", job.ID),
					logger.String("company", string(job.CompanyID)),
					logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, job Job) (err error) {
	w.active.Add(1)
	start := time.Now()
	var report needs.Report
	defer func() {
		w.active.Add(-1)
		elapsed := float64(time.Since(start).Milliseconds())
		metrics.RecordWorkerProcessingLatency(elapsed)
		outcome := "ok"
		if err != nil {
			outcome = "error"
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "detection_error")
		}
		metrics.RecordDetectionRun("scheduled", outcome, elapsed)
		if w.onDone != nil {
			w.onDone(job, report, err)
		}
	}()

	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}
	report, err = w.detector.Detect(ctx, job.CompanyID, job.HorizonDays)
	if err != nil {
		return fmt.Errorf("detect needs for %s: %w", job.CompanyID, err)
	}
	metrics.RecordNeedsChanged(report.Created, report.Updated, report.Cancelled, report.Skipped)
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	active  *atomic.Int32

	shutdown     chan struct{}
	shutdownOnce sync.Once

	logger logger.Logger
}

// NewPool creates workerCount workers. A count below one uses the number of CPUs.
// opts apply to every worker.
func NewPool(workerCount int, queue Queue, detector Detector, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    queue,
		active:   new(atomic.Int32),
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		w := NewInMemoryWorker(queue, detector, append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)...)
		w.active = p.active
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Active returns how many workers are running a job.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.reportActivity(ctx, time.Second)
}

func (p *Pool) reportActivity(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			active := p.Active()
			metrics.UpdateWorkerActiveCount(active)
			metrics.UpdateWorkerIdleCount(len(p.workers) - active)
		}
	}
}

// Shutdown closes the queue when it can be closed and waits for every worker.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	p.shutdownOnce.Do(func() { close(p.shutdown) })

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	if timedOut > 0 {
		return fmt.Errorf("%d workers did not stop: %w", timedOut, shutdownCtx.Err())
	}
	return nil
}
