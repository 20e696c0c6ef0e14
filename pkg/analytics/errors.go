package analytics

import "errors"

var (
	// ErrNotFound is returned when a course or user does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned for a missing entity id
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidRange is returned when a date range ends before it starts
	ErrInvalidRange = errors.New("invalid date range")
)
