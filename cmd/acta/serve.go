package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Zuo-Peng/acta/internal/metrics"
	"github.com/Zuo-Peng/acta/internal/scan"
	"github.com/Zuo-Peng/acta/internal/server"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API while watching transcripts for changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.Addr
			}
			metrics.Init()

			ctx, stop := signalContext()
			defer stop()

			dirs := scan.Discover(a.cfg.SessionsPath)
			archive := a.cfg.ArchiveMode()
			srv := server.New(a.db, a.ix, a.cfg, dirs, server.WithLogger(slog.Default()))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Run(gctx, addr)
			})
			g.Go(func() error {
				stats, err := a.ix.IndexAll(gctx, dirs, false, archive)
				if err != nil {
					if gctx.Err() != nil {
						return nil
					}
					return err
				}
				slog.Info("initial sweep done", "stats", stats.String())
				return newWatcher(a.ix, dirs, archive).Run(gctx)
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")

	return cmd
}
