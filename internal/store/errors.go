package store

import (
	"errors"
	"strings"
)

// Sentinel errors returned by store operations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when a write collides with a unique
	// constraint and the caller did not ask for ignore semantics.
	ErrAlreadyExists = errors.New("record already exists")
)

// isUniqueViolation reports whether err is a SQLite unique constraint
// failure. The import pipeline treats these as "already satisfied".
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
