package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/bryan-buckman/feeder/internal/server"
)

const saveTimeout = 30 * time.Second

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the feeder HTTP API",
		Description: `Restores the categories from the database and serves the JSON API
		and prometheus metrics. On SIGINT or SIGTERM the server shuts down
		and the categories are saved back to the database.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "Address to listen on",
			},
		},
		Action: func(ctx *cli.Context) error {
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			addr := sess.cfg.Listen
			if ctx.IsSet("listen") {
				addr = ctx.String("listen")
			}

			sigCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(sigCtx, sess, addr)
		},
	}
}

// serve runs the HTTP API until ctx is done and then saves the registry.
// A failed save is logged; the server error, if any, is returned.
func serve(ctx context.Context, sess *session, addr string) error {
	srvErr := server.New(sess.reg).Start(ctx, addr)
	log.Info("Gracefully shutting down...")

	saveCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := sess.save(saveCtx); err != nil {
		log.WithField("error", err).Error("Registry not saved")
	}
	return srvErr
}
