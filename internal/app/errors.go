package service

import (
	"errors"
	"fmt"

	"github.com/okian/certwatch/internal/domain/model"
)

// Sentinel kinds for service errors.
var (
	ErrRequestInFlight = fmt.Errorf("%w: a request with this id is still being processed", model.ErrConflict)
	ErrNotStarted      = errors.New("service not started")
	ErrDetectionQueued = errors.New("detection already queued for this company")
)
