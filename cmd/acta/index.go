package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/acta/internal/scan"
)

func indexCmd() *cobra.Command {
	var reindex bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Scan and index agent session transcripts",
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
			fmt.Fprintf(os.Stderr, "Scanning %d session directories...\n", len(dirs))
			for _, d := range dirs {
				fmt.Fprintf(os.Stderr, "  %-16s %s\n", d.Agent, d.Path)
			}

			stats, err := a.ix.IndexAll(ctx, dirs, reindex, a.cfg.ArchiveMode())
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			fmt.Fprintf(os.Stderr, "Done. %s\n", stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reindex, "reindex", false, "Re-index every file, ignoring checkpoints")

	return cmd
}
