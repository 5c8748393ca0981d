package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when an item is not found.
	ErrNotFound = errors.New("content item not found")

	// ErrAlreadyExists is returned by Create when the id is taken.
	ErrAlreadyExists = errors.New("content item already exists")
)
