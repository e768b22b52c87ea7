package constraint

import (
	"github.com/okian/certwatch/internal/domain/model"
	"github.com/okian/certwatch/pkg/logger"
)

// Option applies a configuration option to the Validator.
type Option func(*Validator)

// WithDefaultTrainingDays sets the mask used when a tenant stores none.
func WithDefaultTrainingDays(m model.WeekdayMask) Option {
	return func(v *Validator) {
		if m != 0 {
			v.defaultDays = m & model.EveryDay
		}
	}
}

// WithMaxRangeDays bounds how many days a single range check may span.
func WithMaxRangeDays(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxRangeDays = n
		}
	}
}

// WithLogger sets a custom logger for the validator.
func WithLogger(l logger.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}
