package needs

import (
	"time"

	"github.com/okian/certwatch/internal/domain/scoring"
	"github.com/okian/certwatch/pkg/logger"
)

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithScorer sets the scorer used to prioritise needs.
func WithScorer(s scoring.Scorer) Option {
	return func(d *Detector) {
		if s != nil {
			d.scorer = s
		}
	}
}

// WithClock overrides the detector's notion of today.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// WithLogger sets a custom logger for the detector.
func WithLogger(l logger.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithIDGenerator overrides how new need ids are minted.
func WithIDGenerator(gen func() string) Option {
	return func(d *Detector) {
		if gen != nil {
			d.newID = gen
		}
	}
}
