package repository

import (
	"fmt"

	"github.com/okian/certwatch/internal/domain/model"
)

// Sentinel kinds for storage errors.
var (
	ErrNotFound          = model.ErrNotFound
	ErrValidation        = model.ErrValidation
	ErrNeedsUnavailable  = fmt.Errorf("%w: training needs are no longer open", model.ErrConflict)
	ErrCapacityChanged   = fmt.Errorf("%w: offering capacity no longer fits the headcount", model.ErrConflict)
	ErrUnsupportedDriver = fmt.Errorf("%w: unsupported database dsn", model.ErrValidation)
)
