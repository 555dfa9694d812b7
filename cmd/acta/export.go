package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/acta/internal/index"
	"github.com/Zuo-Peng/acta/internal/render"
)

func exportCmd() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export <sessionID>",
		Short: "Export a session as raw JSONL (archive mode), Markdown or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var w io.Writer = os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}

			return exportSession(cmd, a.db, args[0], format, w)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "md", "Output format (jsonl/md/json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")

	return cmd
}

func exportSession(cmd *cobra.Command, db *index.DB, id, format string, w io.Writer) error {
	ctx := cmd.Context()

	if format == "jsonl" {
		lines, err := db.ArchiveLines(ctx, id)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return fmt.Errorf("no archive data for session %s (set storage = \"archive\" and re-index)", id)
		}
		for _, l := range lines {
			if _, err := fmt.Fprintln(w, l.Raw); err != nil {
				return err
			}
		}
		return nil
	}

	sess, err := db.GetSession(ctx, id)
	if errors.Is(err, index.ErrNotFound) {
		return fmt.Errorf("session not found: %s", id)
	}
	if err != nil {
		return err
	}
	events, err := db.GetEvents(ctx, id, false)
	if err != nil {
		return err
	}

	switch format {
	case "md":
		_, err = io.WriteString(w, render.Markdown(sess, events))
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"session": sess, "events": events})
	default:
		return fmt.Errorf("unknown format %q (want jsonl, md or json)", format)
	}
}
