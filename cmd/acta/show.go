package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/acta/internal/render"
)

func showCmd() *cobra.Command {
	var opts render.Options

	cmd := &cobra.Command{
		Use:     "show <sessionID>",
		Aliases: []string{"preview"},
		Short:   "Show a session's events with context around a hit",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			out, _, err := render.Conversation(cmd.Context(), a.db, args[0], opts)
			if err != nil {
				return err
			}

			fmt.Print(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.HitEventID, "hit", "", "Event ID to highlight")
	cmd.Flags().IntVar(&opts.Context, "context", 10, "Events before/after hit to show (-1 = all)")
	cmd.Flags().StringVar(&opts.Query, "query", "", "Search query for keyword highlighting")

	return cmd
}
