package service

import (
	"time"

	"github.com/okian/certwatch/internal/domain/model"
	"github.com/okian/certwatch/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of background detection workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending detection jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many idempotency keys are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithHorizonDays sets the default detection horizon.
func WithHorizonDays(days int) Option {
	return func(s *Service) {
		if days >= 0 {
			s.horizonDays = days
		}
	}
}

// WithDetectionInterval sets how often every company is re-scanned in the
// background. Zero disables the scheduler.
func WithDetectionInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.detectInterval = d
		}
	}
}

// WithThresholds sets the critical, urgent and upcoming priority bands.
func WithThresholds(critical, urgent, upcoming int) Option {
	return func(s *Service) {
		s.bands = [3]int{critical, urgent, upcoming}
		s.customBands = true
	}
}

// WithLegalFloor sets the minimum priority of legally mandatory formations.
func WithLegalFloor(floor int) Option {
	return func(s *Service) {
		s.legalFloor = &floor
	}
}

// WithHoursPerDay sets the hours in a training day.
func WithHoursPerDay(h float64) Option {
	return func(s *Service) {
		if h > 0 {
			s.hoursPerDay = h
		}
	}
}

// WithDefaultTrainingDays sets the weekday mask used when a company has none.
func WithDefaultTrainingDays(mask model.WeekdayMask) Option {
	return func(s *Service) {
		if mask != 0 {
			s.defaultDays = mask
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
