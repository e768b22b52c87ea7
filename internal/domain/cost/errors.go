package cost

import (
	"errors"

	"github.com/okian/certwatch/internal/domain/model"
)

// Sentinel errors returned by the comparator. ErrNoOffering,
// ErrCapacityExceeded and ErrNoAvailableOption come with a populated Result.
var (
	ErrValidation        = model.ErrValidation
	ErrNotFound          = model.ErrNotFound
	ErrNoOffering        = errors.New("no training center offers this formation")
	ErrCapacityExceeded  = errors.New("headcount exceeds every offering's capacity")
	ErrNoAvailableOption = errors.New("no offering can deliver this formation to the headcount")
)
