package constraint

import "github.com/okian/certwatch/internal/domain/model"

// Sentinel errors for constraint checks. Warnings themselves are never errors.
var (
	ErrValidation = model.ErrValidation
)
