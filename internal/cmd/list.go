package cmd

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/bryan-buckman/feeder/internal/model"
)

func listCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List categories and their channels",
		Action: func(ctx *cli.Context) error {
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()
			printTree(ctx.App.Writer, sess.reg.Tree())
			return nil
		},
	}
}

func viewCmd() *cli.Command {
	return &cli.Command{
		Name:  "view",
		Usage: "Print the headlines of a category or a single channel",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "category",
				Usage:    "Category to show",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "channel",
				Usage: "Show only this channel of the category",
			},
			&cli.BoolFlag{
				Name:  "skip-failing",
				Usage: "Show the channels that could be read when others fail",
			},
		},
		Action: func(ctx *cli.Context) error {
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			var view *model.View
			if channel := ctx.String("channel"); channel != "" {
				view, err = sess.reg.ChannelView(ctx.Context, ctx.String("category"), channel)
			} else if ctx.Bool("skip-failing") {
				opts := sess.cfg.AggregateOptions()
				opts.SkipFailing = true
				view, err = sess.reg.AggregatedViewWith(ctx.Context, ctx.String("category"), opts)
			} else {
				view, err = sess.reg.AggregatedView(ctx.Context, ctx.String("category"))
			}
			if err != nil {
				return err
			}
			printView(ctx.App.Writer, view)
			return nil
		},
	}
}

func printTree(w io.Writer, tree []model.CategoryInfo) {
	for _, cat := range tree {
		fmt.Fprintf(w, "%s\n", cat.Name)
		for _, ch := range cat.Channels {
			fmt.Fprintf(w, "  %s\t%s\n", ch.Name, ch.URL)
		}
	}
}

func printView(w io.Writer, view *model.View) {
	fmt.Fprintf(w, "%s\n%s\n\n", view.Title, view.Description)
	for _, e := range view.Entries {
		prefix := ""
		if e.SourceChannel != "" {
			prefix = "[" + e.SourceChannel + "] "
		}
		fmt.Fprintf(w, "%s%s\n", prefix, e.Title)
		if date := e.Date(); date != "" {
			fmt.Fprintf(w, "  %s\n", date)
		}
		if e.Link != "" {
			fmt.Fprintf(w, "  %s\n", e.Link)
		}
		if e.Description != "" {
			fmt.Fprintf(w, "  %s\n", e.Description)
		}
	}
	for _, f := range view.Warnings {
		fmt.Fprintf(w, "warning: %s: %s\n", f.Channel, f.Error)
	}
}
