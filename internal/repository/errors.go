package repository

import (
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a row does not exist. It aliases sql.ErrNoRows so
// callers may match either.
var ErrNotFound = sql.ErrNoRows

// ErrVersionConflict is returned when a conditional update lost the race against
// another writer.
var ErrVersionConflict = errors.New("version conflict")

// ErrDocumentOwnership is returned when a document id is already stored under a
// different application.
var ErrDocumentOwnership = errors.New("document belongs to another application")
