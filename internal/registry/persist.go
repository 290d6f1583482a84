package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/bryan-buckman/feeder/internal/database"
	"github.com/bryan-buckman/feeder/internal/model"
	"github.com/bryan-buckman/feeder/internal/rss"
	log "github.com/sirupsen/logrus"
)

// SnapshotStore is the persistence capability the registry needs.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context) (*model.Snapshot, error)
	SaveSnapshot(ctx context.Context, s *model.Snapshot) error
}

// Load restores the registry from store. When nothing was ever saved it returns the
// default seed. Any other failure returns an empty registry together with the error,
// so the caller can report it and keep running.
func Load(ctx context.Context, store SnapshotStore, src rss.FeedSource, opts AggregateOptions) (*Registry, error) {
	snap, err := store.LoadSnapshot(ctx)
	if errors.Is(err, database.ErrNoSnapshot) {
		log.Info("No saved snapshot, seeding default category")
		return FromSnapshot(src, opts, model.DefaultSnapshot())
	}
	if err != nil {
		return New(src, opts), fmt.Errorf("load snapshot: %w", err)
	}
	reg, err := FromSnapshot(src, opts, snap)
	if err != nil {
		return New(src, opts), fmt.Errorf("restore snapshot: %w", err)
	}
	log.WithField("categories", len(snap.Categories)).Info("Registry loaded")
	return reg, nil
}

// Save writes the whole registry to store.
func Save(ctx context.Context, store SnapshotStore, reg *Registry) error {
	if err := store.SaveSnapshot(ctx, reg.Snapshot()); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}
