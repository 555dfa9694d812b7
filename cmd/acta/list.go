package main

import (
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/acta/internal/search"
	"github.com/Zuo-Peng/acta/internal/tui"
)

func listCmd() *cobra.Command {
	var agent string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Browse sessions by recent activity",
		Long:  `Opens a TUI panel showing indexed sessions, most recently active first. Type to search across all session content.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext()
			defer stop()

			a.refresh(ctx)

			return tui.RunList(ctx, a.db, search.Options{Agent: agent})
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "", "Filter by agent tag")

	return cmd
}
