package needs

import (
	"errors"

	"github.com/okian/certwatch/internal/domain/model"
)

// Sentinel kinds for need detection errors.
var (
	ErrValidation = model.ErrValidation
	ErrLoad       = errors.New("load detection inputs failed")
)
