package service

import "errors"

var (
	// ErrNotFound is returned when the addressed entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when creating an entity whose id is taken.
	ErrConflict = errors.New("already exists")
)
