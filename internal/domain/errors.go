package domain

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when registering a duplicate entry.
	ErrAlreadyExists = errors.New("already exists")
	// ErrUnknownSensorType is returned for readings of an unregistered type.
	ErrUnknownSensorType = errors.New("unknown sensor type")
	// ErrInvalidReading is returned when a reading misses required fields.
	ErrInvalidReading = errors.New("invalid reading")
	// ErrQueueFull is returned when the dispatcher rejects a submission.
	ErrQueueFull = errors.New("dispatcher queue is full")
	// ErrDispatcherClosed is returned for submissions after shutdown began.
	ErrDispatcherClosed = errors.New("dispatcher is closed")
	// ErrCancelled is returned for work dropped by a forced shutdown.
	ErrCancelled = errors.New("processing cancelled")
)
