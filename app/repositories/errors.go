// Package repositories persists bot data in MongoDB.
package repositories

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no document.
	ErrNotFound = errors.New("repositories: not found")

	// ErrDuplicate is returned when a unique index rejects an insert.
	ErrDuplicate = errors.New("repositories: duplicate")
)

const (
	UsersCollection      = "users"
	FilesCollection      = "files"
	BroadcastsCollection = "broadcasts"
	LogsCollection       = "logs"
)
