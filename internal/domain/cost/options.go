package cost

import "github.com/okian/certwatch/pkg/logger"

// Option applies a configuration option to the Comparator.
type Option func(*Comparator)

// WithHoursPerDay sets the conversion used for formations measured in days.
func WithHoursPerDay(h float64) Option {
	return func(c *Comparator) {
		if h > 0 {
			c.hoursPerDay = h
		}
	}
}

// WithLogger sets a custom logger for the comparator.
func WithLogger(l logger.Logger) Option {
	return func(c *Comparator) {
		if l != nil {
			c.logger = l
		}
	}
}
