package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bryan-buckman/feeder/internal/model"
)

// queries holds the dialect-specific statements used for snapshots.
type queries struct {
	insertCategory string
	insertChannel  string
	touchMeta      string
}

// snapshots implements whole-state load/save over a database/sql connection.
type snapshots struct {
	conn *sql.DB
	q    queries
}

func (s snapshots) load(ctx context.Context) (*model.Snapshot, error) {
	var saved int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshot_meta").Scan(&saved); err != nil {
		return nil, fmt.Errorf("read snapshot meta: %w", err)
	}
	if saved == 0 {
		return nil, ErrNoSnapshot
	}

	rows, err := s.conn.QueryContext(ctx, "SELECT name, position FROM categories ORDER BY position, name")
	if err != nil {
		return nil, fmt.Errorf("read categories: %w", err)
	}
	defer rows.Close()

	snap := &model.Snapshot{}
	byName := make(map[string]int)
	for rows.Next() {
		var c model.CategorySnapshot
		if err := rows.Scan(&c.Name, &c.Index); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		byName[c.Name] = len(snap.Categories)
		snap.Categories = append(snap.Categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chRows, err := s.conn.QueryContext(ctx, "SELECT category, name, url, position FROM channels ORDER BY category, position, name")
	if err != nil {
		return nil, fmt.Errorf("read channels: %w", err)
	}
	defer chRows.Close()
	for chRows.Next() {
		var category string
		var ch model.ChannelSnapshot
		if err := chRows.Scan(&category, &ch.Name, &ch.URL, &ch.Index); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		i, ok := byName[category]
		if !ok {
			return nil, fmt.Errorf("channel %q references unknown category %q", ch.Name, category)
		}
		snap.Categories[i].Channels = append(snap.Categories[i].Channels, ch)
	}
	return snap, chRows.Err()
}

func (s snapshots) save(ctx context.Context, snap *model.Snapshot) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM channels"); err != nil {
		return fmt.Errorf("clear channels: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM categories"); err != nil {
		return fmt.Errorf("clear categories: %w", err)
	}

	catStmt, err := tx.PrepareContext(ctx, s.q.insertCategory)
	if err != nil {
		return err
	}
	defer catStmt.Close()
	chStmt, err := tx.PrepareContext(ctx, s.q.insertChannel)
	if err != nil {
		return err
	}
	defer chStmt.Close()

	for _, c := range snap.Categories {
		if _, err := catStmt.ExecContext(ctx, c.Name, c.Index); err != nil {
			return fmt.Errorf("insert category %q: %w", c.Name, err)
		}
		for _, ch := range c.Channels {
			if _, err := chStmt.ExecContext(ctx, c.Name, ch.Name, ch.URL, ch.Index); err != nil {
				return fmt.Errorf("insert channel %q: %w", ch.Name, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, s.q.touchMeta, time.Now().UTC()); err != nil {
		return fmt.Errorf("update snapshot meta: %w", err)
	}
	return tx.Commit()
}
