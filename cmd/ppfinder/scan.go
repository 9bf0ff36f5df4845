package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/eargollo/ppfinder/internal/compiler"
	"github.com/eargollo/ppfinder/internal/db"
	"github.com/eargollo/ppfinder/internal/scan"
	"github.com/eargollo/ppfinder/internal/store"
)

// renderInterval bounds how often the progress bar redraws.
const renderInterval = 100 * time.Millisecond

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan [songs-dir]",
		Short: "Rebuild the index from a songs folder (default: songs_dir)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cfg.SongsDir
			if len(args) == 1 {
				root = args[0]
			}
			if root == "" {
				return scan.ErrNoRoot
			}
			return runScan(cmd.Context(), root)
		},
	}
}

func runScan(ctx context.Context, root string) error {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()
	if err := db.RunMigrations(database); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	comp := compiler.New(compiler.WithWorkers(cfg.ScanWorkers.Compute))
	scanner := scan.New(store.New(db.NewBun(database)), comp, scanConfig(), slog.Default(), nil)

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("discovering"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(renderInterval),
	)

	events := scan.NewBroadcaster()
	snaps, unsubscribe := events.Subscribe()
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		renderProgress(snaps, bar, rate.NewLimiter(rate.Every(renderInterval), 1))
	}()

	start := time.Now()
	final, err := scanner.Run(ctx, root, events)
	unsubscribe()
	<-rendered
	fmt.Fprintln(os.Stderr)

	fmt.Printf("indexed %d of %d beatmaps in %s (read failed %d, compute failed %d, persist failed %d)\n",
		final.Persist.Progression, final.Discover.Progression, time.Since(start).Round(time.Millisecond),
		final.Read.Failed, final.Compute.Failed, final.Persist.Failed)
	return err
}

// progressView is the part of *progressbar.ProgressBar the renderer drives.
type progressView interface {
	ChangeMax(max int)
	Set(num int) error
	Describe(description string)
}

// renderProgress draws snapshots until snaps is closed. Snapshots arriving
// faster than limiter allows are skipped; the terminal one is always drawn.
func renderProgress(snaps <-chan scan.Snapshot, view progressView, limiter *rate.Limiter) {
	for s := range snaps {
		if !s.Finished && !limiter.Allow() {
			continue
		}
		draw(view, s)
	}
}

func draw(view progressView, s scan.Snapshot) {
	done := s.Persist.Progression + s.Read.Failed + s.Compute.Failed + s.Persist.Failed
	switch {
	case s.Finished && s.Error != "":
		view.Describe("failed: " + s.Error)
	case s.Finished:
		view.Describe("done")
	case s.Read.Max == 0:
		view.Describe("discovering")
		view.ChangeMax(-1)
		_ = view.Set(s.Discover.Progression)
		return
	default:
		view.Describe("indexing")
	}
	view.ChangeMax(s.Discover.Progression)
	_ = view.Set(done)
}
