// Package scan indexes a directory of beatmaps: it discovers .osu files,
// wipes the index, then reads, compiles and persists every file with a fixed
// pool of workers while reporting progress.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/eargollo/ppfinder/internal/metrics"
	"github.com/eargollo/ppfinder/internal/model"
)

// Store is the storage the pipeline writes through.
type Store interface {
	Wipe(ctx context.Context) error
	Persist(ctx context.Context, rec *model.Record) error
}

// Compiler turns file contents into an index record.
type Compiler interface {
	Compile(ctx context.Context, data []byte) (*model.Record, error)
}

// Config holds pipeline concurrency tuning parameters.
type Config struct {
	Walkers  int
	Files    int
	Excludes []string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Walkers: 4,
		Files:   16,
	}
}

// Scanner runs the indexing pipeline.
type Scanner struct {
	store    Store
	compiler Compiler
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates a Scanner. logger and m may be nil.
func New(store Store, compiler Compiler, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Scanner {
	if cfg.Walkers < 1 {
		cfg.Walkers = DefaultConfig().Walkers
	}
	if cfg.Files < 1 {
		cfg.Files = DefaultConfig().Files
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{store: store, compiler: compiler, cfg: cfg, logger: logger, metrics: m}
}

// Run indexes root, emitting snapshots to sink (which may be nil). Per-file
// failures are counted, never returned. Discovery, wipe and cancellation end
// the scan early and are returned; the terminal snapshot carries the same
// error text.
func (s *Scanner) Run(ctx context.Context, root string, sink ProgressSink) (Snapshot, error) {
	start := time.Now()
	progress := newProgress(sink, s.logger)
	s.logger.Info("scan started", "root", root, "workers", s.cfg.Files)

	err := s.run(ctx, root, progress)
	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	final := progress.finish(err)

	status := "completed"
	switch {
	case errors.Is(err, context.Canceled):
		status = "cancelled"
	case err != nil:
		status = "failed"
	}
	s.metrics.ScanFinished(status, time.Since(start))
	s.logger.Info("scan finished", "root", root, "status", status,
		"files_discovered", final.Discover.Progression,
		"persisted", final.Persist.Progression,
		"failed", final.Read.Failed+final.Compute.Failed+final.Persist.Failed,
		"duration", time.Since(start).Round(time.Millisecond))
	return final, err
}

func (s *Scanner) run(ctx context.Context, root string, progress *Progress) error {
	paths, err := s.discover(ctx, root, progress)
	if err != nil {
		return err
	}

	if err := s.store.Wipe(ctx); err != nil {
		return fmt.Errorf("%s: %w", StageWipe, err)
	}

	progress.begin(len(paths))

	queue := make(chan string, s.cfg.Files)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Files; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range queue {
				s.process(ctx, path, progress)
			}
		}()
	}

feed:
	for _, p := range paths {
		select {
		case <-ctx.Done():
			break feed
		case queue <- p:
		}
	}
	close(queue)
	wg.Wait()

	return ctx.Err()
}

// discover walks root and returns every beatmap path found.
func (s *Scanner) discover(ctx context.Context, root string, progress *Progress) ([]string, error) {
	filter := Filter{Excludes: s.cfg.Excludes}
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", StageDiscover, err)
	}

	out := make(chan string, 1000)
	var walkErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		walkErr = Walk(ctx, root, filter, s.cfg.Walkers, out)
	}()

	var paths []string
	for p := range out {
		paths = append(paths, p)
		progress.discovered()
	}
	<-done
	if walkErr != nil {
		return nil, fmt.Errorf("%s: %w", StageDiscover, walkErr)
	}
	return paths, nil
}

// process passes one file through read, compute and persist.
func (s *Scanner) process(ctx context.Context, path string, progress *Progress) {
	if ctx.Err() != nil {
		return
	}

	data, err := os.ReadFile(path)
	s.observe(progress.read, StageRead, path, err)
	if err != nil {
		return
	}

	rec, err := s.compiler.Compile(ctx, data)
	s.observe(progress.computed, StageCompute, path, err)
	if err != nil {
		return
	}

	err = s.store.Persist(ctx, rec)
	s.observe(progress.persisted, StagePersist, path, err)
}

func (s *Scanner) observe(count func(bool), stage, path string, err error) {
	count(err == nil)
	s.metrics.FileProcessed(stage, err == nil)
	if err != nil {
		s.logger.Warn("scan file failed", "path", path, "stage", stage, "error", err)
	}
}
