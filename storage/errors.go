package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrNoCheckpoint is returned when a run has no checkpoint to resume from.
	ErrNoCheckpoint = errors.New("no checkpoint for run")

	// ErrRunExists is returned when a run with the same ID already exists.
	ErrRunExists = errors.New("run already exists")
)
