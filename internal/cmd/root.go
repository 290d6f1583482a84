// Package cmd implements the feeder command line.
package cmd

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/bryan-buckman/feeder/internal/config"
	"github.com/bryan-buckman/feeder/internal/database"
	"github.com/bryan-buckman/feeder/internal/registry"
	"github.com/bryan-buckman/feeder/internal/rss"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "feeder",
		Usage: "Aggregate RSS and Atom feeds into categories",
		Description: `Feeder groups news feeds into named categories and shows either a
		single channel or every headline of a category, newest first.

		Categories and channels are kept in a SQLite or PostgreSQL database
		and can be managed over the HTTP API started by "feeder serve".

		Flags can generally be set via environment variables, e.g.:

		--database => FEEDER_DATABASE=feeder.db
		--log-level => FEEDER_LOG_LEVEL=debug
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "TOML configuration file",
				EnvVars: []string{"FEEDER_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Usage:   "SQLite database file location",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (trace, debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			serveCmd(),
			listCmd(),
			viewCmd(),
			exportCmd(),
			importCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

// Execute runs the CLI with the process arguments.
func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the configuration and applies global flag overrides.
// FEEDER_DATABASE and FEEDER_LOG_LEVEL are read by config.Load itself.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return nil, err
	}
	if ctx.IsSet("database") {
		cfg.Storage.Path = ctx.String("database")
	}
	if ctx.IsSet("log-level") {
		cfg.Log.Level = ctx.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.SetupLogging(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is an opened store with the registry restored from it.
type session struct {
	cfg   *config.Config
	store database.Store // nil when the store could not be opened
	reg   *registry.Registry
	// loadErr is set when the saved state could not be read; such a session must
	// not save, or the unreadable data would be replaced by an empty registry.
	loadErr error
}

func openSession(ctx *cli.Context) (*session, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return newSession(ctx.Context, cfg), nil
}

// newSession opens the configured store and restores the registry. A store that
// cannot be opened or read leaves the session running on an empty registry that
// is never saved.
func newSession(ctx context.Context, cfg *config.Config) *session {
	fetcher := rss.NewFetcher(cfg.FetchOptions())
	sess := &session{cfg: cfg}

	store, err := database.Open(cfg.Storage.Driver, cfg.Storage.Path, cfg.Storage.DSN)
	if err != nil {
		sess.loadErr = fmt.Errorf("open storage: %w", err)
		sess.reg = registry.New(fetcher, cfg.AggregateOptions())
		log.WithField("error", sess.loadErr).Error("Could not open saved state, continuing with an empty registry")
		return sess
	}
	log.WithField("database", store.DatabaseType()).Debug("Storage opened")
	sess.store = store

	sess.reg, sess.loadErr = registry.Load(ctx, store, fetcher, cfg.AggregateOptions())
	if sess.loadErr != nil {
		log.WithField("error", sess.loadErr).Error("Could not restore saved state, continuing with an empty registry")
	}
	return sess
}

func (s *session) save(ctx context.Context) error {
	if s.loadErr != nil {
		return fmt.Errorf("saved state could not be read, refusing to overwrite it: %w", s.loadErr)
	}
	if err := registry.Save(ctx, s.store, s.reg); err != nil {
		return err
	}
	log.Info("Registry saved")
	return nil
}

func (s *session) Close() error {
	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}
