package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when creating a record whose id exists.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrRevisionConflict is returned when a compare-and-swap update lost
	// to a concurrent writer.
	ErrRevisionConflict = errors.New("revision conflict")
)
