package main

import (
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/acta/internal/open"
)

func openCmd() *cobra.Command {
	var eventID string

	cmd := &cobra.Command{
		Use:   "open <sessionID>",
		Short: "Open the source JSONL file in $EDITOR at an event's line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			return open.Session(cmd.Context(), a.db, args[0], eventID)
		},
	}

	cmd.Flags().StringVar(&eventID, "event", "", "Event ID to jump to")
	cmd.Flags().StringVar(&eventID, "hit", "", "Alias for --event")

	return cmd
}
