package models

import "errors"

var (
	// ErrNotFound is returned by stores when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a batch was modified by another writer
	// between read and save.
	ErrConflict = errors.New("concurrent modification")
)
