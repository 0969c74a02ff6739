package repository

import (
	"context"
)

// Repositories holds all repository instances.
type Repositories struct {
	Media MediaRepository
}

// DatabaseHealth is an interface for database health checks.
// Satisfied by both the SQLite and PostgreSQL wrappers; also used by
// the health endpoint.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}
