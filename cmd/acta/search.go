package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Zuo-Peng/acta/internal/search"
	"github.com/Zuo-Peng/acta/internal/tui"
)

const (
	sColorReset   = "\033[0m"
	sColorBoldRed = "\033[1;31m"
	sColorBlue    = "\033[1;34m"
	sColorGreen   = "\033[1;32m"
	sColorDim     = "\033[2m"
)

func colorizeAgent(agent string) string {
	if agent == "main" {
		return sColorBlue + agent + sColorReset
	}
	return sColorGreen + agent + sColorReset
}

func colorizeSnippet(snippet string) string {
	snippet = strings.ReplaceAll(snippet, ">>>", sColorBoldRed)
	snippet = strings.ReplaceAll(snippet, "<<<", sColorReset)
	return snippet
}

// flatten makes text safe for a single TSV field.
func flatten(s string) string {
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(s)
}

func writeTSV(w io.Writer, results []search.Result) {
	for _, r := range results {
		summary := flatten(r.SessionSummary)
		if summary == "" {
			summary = "-"
		}
		// first two fields (sessionID, eventID) stay plain for fzf {1} {2}
		fmt.Fprintf(w, "%s\t%s\t%s%s%s\t%s\t%s\t%s\t%s\n",
			r.Event.SessionID,
			r.Event.ID,
			sColorDim, r.Event.Timestamp, sColorReset,
			colorizeAgent(r.Agent),
			r.Event.Type,
			summary,
			colorizeSnippet(flatten(r.Snippet)),
		)
	}
}

func searchCmd() *cobra.Command {
	var opts search.Options

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search across indexed events",
		Long: `Search indexed events using FTS5. Queries containing CJK text fall back
to substring matching. When stdout is not a terminal the output is TSV for fzf:
  sessionID, eventID, timestamp, agent, type, summary, snippet

Recommended shell function (add to .zshrc):
  actaf() {
    acta search "$*" | fzf \
      --ansi \
      --delimiter='\t' --with-nth=3.. \
      --preview 'acta show {1} --hit {2} --context 5 --query {q}' \
      --preview-window=right:60%:wrap \
      --preview-debounce=150 \
      --bind 'enter:execute(acta open {1} --event {2})'
  }`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext()
			defer stop()

			// Auto-update index before searching
			a.refresh(ctx)

			// Interactive TUI when stdout is a terminal; TSV output for pipes
			if term.IsTerminal(int(os.Stdout.Fd())) {
				return tui.Run(ctx, a.db, args[0], opts)
			}

			opts.Query = args[0]
			results, err := search.Search(ctx, a.db, opts)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(os.Stderr, "No results found.")
				return nil
			}
			writeTSV(os.Stdout, results)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "Filter by event type (message/tool_call/tool_result)")
	cmd.Flags().StringVar(&opts.Role, "role", "", "Filter by role (user/assistant/tool)")
	cmd.Flags().StringVar(&opts.Agent, "agent", "", "Filter by agent tag")
	cmd.Flags().StringVar(&opts.From, "since", "", "Only events at or after this time (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.To, "until", "", "Only events at or before this time")
	cmd.Flags().IntVar(&opts.Limit, "limit", search.DefaultLimit, "Max results")
	cmd.Flags().BoolVar(&opts.Dedup, "dedup", false, "Show only the best hit per session")
	cmd.Flags().BoolVar(&opts.Recent, "recent", false, "Order by time instead of relevance")

	return cmd
}
