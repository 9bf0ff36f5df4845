package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/eargollo/ppfinder/internal/criteria"
	"github.com/eargollo/ppfinder/internal/db"
	"github.com/eargollo/ppfinder/internal/search"
)

func searchCmd() *cobra.Command {
	var (
		criteriaPath string
		page         int
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the index and print one page of results as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCriteria(criteriaPath, cmd.InOrStdin())
			if err != nil {
				return err
			}

			if _, err := os.Stat(cfg.DBPath); err != nil {
				return fmt.Errorf("index %q not found, run ppfinder scan first: %w", cfg.DBPath, err)
			}
			readDB, err := db.OpenReader(cfg.DBPath, 2)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer readDB.Close()

			res, err := search.New(db.NewBun(readDB), slog.Default(), nil).Search(cmd.Context(), c, page)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&criteriaPath, "criteria", "", `criteria JSON file, "-" for stdin (default: match everything, by pp)`)
	cmd.Flags().IntVar(&page, "page", 0, "result page, clamped to the last page")
	return cmd
}

// loadCriteria reads and validates criteria from path. An empty path matches
// every row.
func loadCriteria(path string, stdin io.Reader) (*criteria.Criteria, error) {
	var (
		raw []byte
		err error
	)
	switch path {
	case "":
		return criteria.Any(), nil
	case "-":
		raw, err = io.ReadAll(stdin)
	default:
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read criteria: %w", err)
	}
	return criteria.ParseCriteria(raw)
}
