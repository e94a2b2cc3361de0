package repository

import "errors"

// ErrNotFound is returned when a document does not exist
var ErrNotFound = errors.New("not found")

// ErrAlreadyWaiting is returned when a person already has a waiting check-in.
// The unique index on waiting check-ins backs up the service pre-check.
var ErrAlreadyWaiting = errors.New("already waiting")

// ErrDuplicateEmail is returned when an admin email is taken
var ErrDuplicateEmail = errors.New("email already registered")
