// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow handlers to tell "no such row"
// and "unique key taken" apart from driver failures.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrMailExists is returned when an account with the same normalized mail
// already exists. Handlers translate it into an HTTP 409 response.
var ErrMailExists = errors.New("mail already exists")
