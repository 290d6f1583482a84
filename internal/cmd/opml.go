package cmd

import (
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/bryan-buckman/feeder/internal/opml"
)

func exportCmd() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export categories and channels as OPML",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Output file (default stdout)",
			},
		},
		Action: func(ctx *cli.Context) error {
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()
			if sess.loadErr != nil {
				return sess.loadErr
			}

			data, err := opml.Export("Feeder Feeds", sess.reg.Tree())
			if err != nil {
				return err
			}
			if out := ctx.String("out"); out != "" {
				return os.WriteFile(out, data, 0o644)
			}
			_, err = ctx.App.Writer.Write(data)
			return err
		},
	}
}

func importCmd() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import channels from an OPML file",
		ArgsUsage: "<file>",
		Description: `Adds every feed of the OPML file, creating a category for each
		top-level folder. Feeds outside any folder go to "Imported".
		Every feed is fetched once to validate it before it is added.`,
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return errors.New("import needs exactly one OPML file")
			}
			f, err := os.Open(ctx.Args().First())
			if err != nil {
				return err
			}
			defer f.Close()
			entries, err := opml.Parse(f)
			if err != nil {
				return err
			}

			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			res := opml.Import(ctx.Context, sess.reg, entries)
			log.WithFields(log.Fields{
				"total":    res.Total,
				"imported": res.Imported,
				"skipped":  res.Skipped,
				"failed":   res.Failed,
			}).Info("OPML imported")
			fmt.Fprintf(ctx.App.Writer, "imported %d of %d feeds (%d already present, %d failed)\n",
				res.Imported, res.Total, res.Skipped, res.Failed)
			return sess.save(ctx.Context)
		},
	}
}
