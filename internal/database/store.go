// Package database provides snapshot storage backends for the registry.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/bryan-buckman/feeder/internal/model"
)

// ErrNoSnapshot is returned by LoadSnapshot when nothing has ever been saved.
var ErrNoSnapshot = errors.New("no snapshot saved")

// Store defines the interface for snapshot persistence.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// LoadSnapshot returns the last saved snapshot, or ErrNoSnapshot.
	LoadSnapshot(ctx context.Context) (*model.Snapshot, error)

	// SaveSnapshot replaces the stored state with s in a single transaction.
	SaveSnapshot(ctx context.Context, s *model.Snapshot) error
}

// Open connects to the backend named by driver: "sqlite" uses path, "postgres" uses dsn.
func Open(driver, path, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return New(path)
	case "postgres":
		return NewPostgres(dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
