package store

import "errors"

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrLastSession is returned when deleting a tenant's only remaining
	// session; a tenant must always keep at least one.
	ErrLastSession = errors.New("cannot delete the only remaining session")
)
