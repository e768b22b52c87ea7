// Package scoring maps a certificate's expiry state to a retraining priority.
package scoring

import "github.com/okian/certwatch/internal/domain/model"

// Default priority bands, in days before expiry.
const (
	defaultCriticalDays = 30
	defaultUrgentDays   = 60
	defaultUpcomingDays = 90
	defaultLegalFloor   = 7
)

// Priority assigned to each band.
const (
	priorityExpired  = 10
	priorityCritical = 9
	priorityUrgent   = 7
	priorityUpcoming = 5
	priorityNormal   = 1
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithThresholds sets the critical, urgent and upcoming band limits. The
// values must be strictly increasing and non-negative or they are ignored.
func WithThresholds(critical, urgent, upcoming int) Option {
	return func(e *Engine) {
		if critical >= 0 && critical < urgent && urgent < upcoming {
			e.criticalDays = critical
			e.urgentDays = urgent
			e.upcomingDays = upcoming
		}
	}
}

// WithLegalFloor sets the minimum priority of legally mandatory formations.
func WithLegalFloor(floor int) Option {
	return func(e *Engine) {
		if floor >= model.MinPriority && floor <= model.MaxPriority {
			e.legalFloor = floor
		}
	}
}

// Input is what the engine needs to know about one certificate.
// A nil DaysUntilExpiry means the certificate never expires.
type Input struct {
	DaysUntilExpiry   *int
	IsLegalObligation bool
}

// Result is a priority in [0,10] with the reason it was given.
type Result struct {
	Priority int                  `json:"priority"`
	Reason   model.PriorityReason `json:"reason"`
}

// Scorer computes a priority from an input.
type Scorer interface {
	Score(in Input) Result
}

// Engine is a pure, stateless Scorer.
type Engine struct {
	criticalDays int
	urgentDays   int
	upcomingDays int
	legalFloor   int
}

// NewEngine creates a scoring engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		criticalDays: defaultCriticalDays,
		urgentDays:   defaultUrgentDays,
		upcomingDays: defaultUpcomingDays,
		legalFloor:   defaultLegalFloor,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score applies the bands in order, first match wins, then raises legally
// mandatory formations to the legal floor. It never fails.
func (e *Engine) Score(in Input) Result {
	r := e.band(in.DaysUntilExpiry)
	if in.IsLegalObligation && r.Priority < e.legalFloor {
		r = Result{Priority: e.legalFloor, Reason: model.ReasonLegalFloor}
	}
	return r
}

func (e *Engine) band(days *int) Result {
	switch {
	case days == nil:
		return Result{Priority: priorityNormal, Reason: model.ReasonNormal}
	case *days < 0:
		return Result{Priority: priorityExpired, Reason: model.ReasonExpired}
	case *days <= e.criticalDays:
		return Result{Priority: priorityCritical, Reason: model.ReasonCritical}
	case *days <= e.urgentDays:
		return Result{Priority: priorityUrgent, Reason: model.ReasonUrgent}
	case *days <= e.upcomingDays:
		return Result{Priority: priorityUpcoming, Reason: model.ReasonUpcoming}
	}
	return Result{Priority: priorityNormal, Reason: model.ReasonNormal}
}

// Horizon returns the widest band limit; needs beyond it are not surfaced.
func (e *Engine) Horizon() int {
	return e.upcomingDays
}
