package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func pruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove sessions whose transcript file no longer exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.db.Prune(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d sessions.\n", n)
			return nil
		},
	}
}
