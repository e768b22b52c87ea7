// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/okian/certwatch/internal/domain/model"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DatabaseDSN is a postgres URL or a sqlite path.
	DatabaseDSN string `koanf:"database_dsn"`

	// AutoMigrate creates or updates tables on startup.
	AutoMigrate bool `koanf:"auto_migrate"`

	DetectionHorizonDays int `koanf:"detection_horizon_days"`

	// DetectionIntervalSec schedules background detection; 0 disables it.
	DetectionIntervalSec int `koanf:"detection_interval_sec"`

	DetectionWorkers int `koanf:"detection_workers"`
	JobQueueSize     int `koanf:"job_queue_size"`

	// IdempotencyCacheSize bounds the remembered session request ids.
	IdempotencyCacheSize int `koanf:"idempotency_cache_size"`

	// Priority bands, in days until expiry.
	CriticalDays int `koanf:"critical_days"`
	UrgentDays   int `koanf:"urgent_days"`
	UpcomingDays int `koanf:"upcoming_days"`

	// LegalPriorityFloor is the minimum priority of legally mandatory formations.
	LegalPriorityFloor int `koanf:"legal_priority_floor"`

	// HoursPerDay converts durationDays to hours.
	HoursPerDay float64 `koanf:"hours_per_day"`

	// DefaultTrainingDays is the weekday mask used when a tenant has none.
	// Bit 0 is Monday.
	DefaultTrainingDays uint8 `koanf:"default_training_days"`
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":8080",
		DatabaseDSN:          "certwatch.db",
		AutoMigrate:          true,
		DetectionHorizonDays: 90,
		DetectionIntervalSec: 3600,
		DetectionWorkers:     runtime.NumCPU(),
		JobQueueSize:         1024,
		IdempotencyCacheSize: 10_000,
		CriticalDays:         30,
		UrgentDays:           60,
		UpcomingDays:         90,
		LegalPriorityFloor:   7,
		HoursPerDay:          7,
		DefaultTrainingDays:  uint8(model.MondayToFriday),
	}
}

// DetectionInterval is DetectionIntervalSec as a duration.
func (c *Config) DetectionInterval() time.Duration {
	return time.Duration(c.DetectionIntervalSec) * time.Second
}

// TrainingDays is DefaultTrainingDays as a weekday mask.
func (c *Config) TrainingDays() model.WeekdayMask {
	return model.WeekdayMask(c.DefaultTrainingDays)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.DatabaseDSN) == "":
		return fmt.Errorf("%w: database_dsn must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	case c.CriticalDays <= 0 || c.CriticalDays >= c.UrgentDays || c.UrgentDays >= c.UpcomingDays:
		return fmt.Errorf("%w: priority bands must be positive and strictly increasing, got %d/%d/%d",
			ErrInvalidConfig, c.CriticalDays, c.UrgentDays, c.UpcomingDays)
	case c.LegalPriorityFloor < model.MinPriority || c.LegalPriorityFloor > model.MaxPriority:
		return fmt.Errorf("%w: legal_priority_floor must be within [%d,%d]",
			ErrInvalidConfig, model.MinPriority, model.MaxPriority)
	case c.DetectionHorizonDays <= 0:
		return fmt.Errorf("%w: detection_horizon_days must be positive", ErrInvalidConfig)
	case c.DetectionIntervalSec < 0:
		return fmt.Errorf("%w: detection_interval_sec must not be negative", ErrInvalidConfig)
	case c.DetectionWorkers <= 0 || c.JobQueueSize <= 0 || c.IdempotencyCacheSize <= 0:
		return fmt.Errorf("%w: worker, queue and cache sizes must be positive", ErrInvalidConfig)
	case c.HoursPerDay <= 0 || c.HoursPerDay > 24:
		return fmt.Errorf("%w: hours_per_day must be within (0,24]", ErrInvalidConfig)
	case c.DefaultTrainingDays > uint8(model.EveryDay):
		return fmt.Errorf("%w: default_training_days must be a 7-bit weekday mask", ErrInvalidConfig)
	}
	return nil
}
