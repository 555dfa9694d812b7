package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/acta/internal/config"
	"github.com/Zuo-Peng/acta/internal/index"
	"github.com/Zuo-Peng/acta/internal/scan"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Self-check: verify discovery, DB, FTS5, and show stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			fmt.Println("=== Config ===")
			dir, _ := config.Dir()
			fmt.Printf("  File:    %s\n", filepath.Join(dir, "config.toml"))
			fmt.Printf("  Storage: %s\n", cfg.Storage)
			if cfg.SessionsPath != "" {
				fmt.Printf("  Sessions override: %s\n", cfg.SessionsPath)
			}

			fmt.Println("\n=== Session Directories ===")
			dirs := scan.Discover(cfg.SessionsPath)
			if len(dirs) == 0 {
				fmt.Println("  none found")
			}
			total := 0
			for _, d := range dirs {
				files, err := scan.ListFiles(d.Path)
				if err != nil {
					fmt.Printf("  %-16s %s (ERROR: %v)\n", d.Agent, d.Path, err)
					continue
				}
				total += len(files)
				fmt.Printf("  %-16s %s (%d files)\n", d.Agent, d.Path, len(files))
			}
			fmt.Printf("  Total JSONL files: %d\n", total)

			fmt.Println("\n=== Database ===")
			fmt.Printf("  Path: %s\n", cfg.DBPath)
			info, err := os.Stat(cfg.DBPath)
			if os.IsNotExist(err) {
				fmt.Println("  Status: NOT FOUND (run 'acta index' first)")
				return nil
			}
			if err == nil {
				fmt.Printf("  Size: %s\n", humanize.Bytes(uint64(info.Size())))
			}

			db, err := index.OpenDB(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			o, err := db.Overview(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("  Sessions:   %s\n", humanize.Comma(int64(o.Sessions)))
			fmt.Printf("  Events:     %s\n", humanize.Comma(int64(o.Events)))
			fmt.Printf("  Tool calls: %s (%d distinct tools)\n", humanize.Comma(int64(o.ToolCalls)), o.UniqueTools)
			fmt.Printf("  Archive:    %s lines\n", humanize.Comma(int64(o.ArchiveRows)))
			if o.Earliest != "" {
				fmt.Printf("  Range:      %s .. %s\n", o.Earliest, o.Latest)
			}

			fmt.Println("\n=== FTS5 ===")
			fmt.Printf("  FTS5 entries: %d\n", o.FTSRows)
			if err := db.CheckFTS(cmd.Context()); err != nil {
				fmt.Printf("  Status: CORRUPT (%v)\n", err)
			} else if o.FTSRows == o.Events {
				fmt.Println("  Status: OK (synced)")
			} else {
				fmt.Printf("  Status: MISMATCH (events=%d, fts=%d)\n", o.Events, o.FTSRows)
			}

			return nil
		},
	}
}
