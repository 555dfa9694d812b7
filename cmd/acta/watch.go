package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/acta/internal/index"
	"github.com/Zuo-Peng/acta/internal/scan"
	"github.com/Zuo-Peng/acta/internal/watch"
)

// newWatcher re-indexes changed transcripts through ix.
func newWatcher(ix *index.Indexer, dirs []scan.Dir, archive bool) *watch.Watcher {
	return watch.New(dirs, func(ctx context.Context, path, agent string) error {
		res, err := ix.IndexFile(ctx, path, agent, false, archive)
		if err != nil {
			return err
		}
		if !res.Skipped {
			slog.Info("live re-indexed", "file", path, "agent", agent, "session", res.SessionID)
		}
		return nil
	}, watch.WithLogger(slog.Default()))
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Index once, then re-index transcripts as they change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext()
			defer stop()

			dirs := scan.Discover(a.cfg.SessionsPath)
			stats, err := a.ix.IndexAll(ctx, dirs, false, a.cfg.ArchiveMode())
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("index: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Initial sweep: %s\n", stats)

			return newWatcher(a.ix, dirs, a.cfg.ArchiveMode()).Run(ctx)
		},
	}
}
