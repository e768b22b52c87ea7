package model

import "errors"

// Error kinds shared across domain packages. Package sentinels wrap or alias
// these so adapters can map a failure to a status without importing every package.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)
