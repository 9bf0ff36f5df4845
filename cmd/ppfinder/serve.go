package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/eargollo/ppfinder/internal/api"
	"github.com/eargollo/ppfinder/internal/compiler"
	"github.com/eargollo/ppfinder/internal/db"
	"github.com/eargollo/ppfinder/internal/metrics"
	"github.com/eargollo/ppfinder/internal/scan"
	"github.com/eargollo/ppfinder/internal/scheduler"
	"github.com/eargollo/ppfinder/internal/search"
	"github.com/eargollo/ppfinder/internal/store"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the rescan scheduler (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			return serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http_addr)")
	return cmd
}

// scanConfig maps the configured worker counts onto the pipeline.
func scanConfig() scan.Config {
	return scan.Config{
		Walkers:  cfg.ScanWorkers.Walkers,
		Files:    cfg.ScanWorkers.Files,
		Excludes: cfg.Exclude,
	}
}

func serve(ctx context.Context) error {
	slog.Info("ppfinder starting",
		"version", version,
		"log_level", cfg.LogLevel,
		"http_addr", cfg.HTTPAddr,
		"db_path", cfg.DBPath,
		"songs_dir", cfg.SongsDir)

	// ── Database ───────────────────────────────────────────────────────────
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Searches and status counts read through a separate pool so they don't
	// queue behind scan writes.
	readDB, err := db.OpenReader(cfg.DBPath, 4)
	if err != nil {
		return fmt.Errorf("open read pool: %w", err)
	}
	defer readDB.Close()
	writer, reader := db.NewBun(database), db.NewBun(readDB)

	// ── Metrics ────────────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// ── Scan manager ───────────────────────────────────────────────────────
	comp := compiler.New(compiler.WithWorkers(cfg.ScanWorkers.Compute))
	scanner := scan.New(store.New(writer), comp, scanConfig(), slog.Default(), m)
	mgr := scan.NewManager(scanner, cfg.SongsDir, slog.Default())

	// ── Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.New(slog.Default())
	if cfg.Schedule != "" {
		if err := sched.SetRescan(ctx, cfg.Schedule, mgr); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	// ── HTTP server ────────────────────────────────────────────────────────
	srv := api.New(cfg.HTTPAddr, cfg, mgr, search.New(reader, slog.Default(), m), store.New(reader), sched, reg, version)
	runErr := srv.Run(ctx)

	if _, err := mgr.Cancel(); err == nil {
		slog.Info("waiting for the running scan to stop")
	}
	waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mgr.Wait(waitCtx); err != nil {
		slog.Warn("scan did not stop in time", "error", err)
	}

	if runErr != nil {
		return fmt.Errorf("server: %w", runErr)
	}
	slog.Info("ppfinder stopped")
	return nil
}
