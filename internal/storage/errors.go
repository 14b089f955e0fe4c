package storage

import "errors"

var (
	// ErrNotFound is returned when a transaction or account does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an account update lost the optimistic
	// version race on every attempt. The operation left no partial state
	// and is safe to retry.
	ErrConflict = errors.New("account update conflict")
)
