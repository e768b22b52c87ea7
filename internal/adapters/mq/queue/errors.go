package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrQueueClosed = errors.New("job queue closed")
	ErrQueueFull   = errors.New("job queue full")
)
