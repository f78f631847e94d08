// Package repository is the data access layer.  Every statement is
// parameterised and runs through the database.Executor, so transient
// connection failures are retried before they reach these methods.
//
// The sentinels below let higher layers such as handlers distinguish
// failure scenarios without inspecting driver errors.  Store errors that
// do not map to a sentinel are returned wrapped and unchanged.
package repository

import "errors"

// ErrNotFound is returned when no row matches the lookup or delete.
// Handlers translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a unique key, such as
// a username that already exists.  The store's unique constraint is the
// authority for this; handlers translate it into an HTTP 409 response.
var ErrDuplicate = errors.New("duplicate entry")
