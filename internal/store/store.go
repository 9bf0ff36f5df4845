// Package store persists compiled beatmap records and wipes the index.
package store

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/eargollo/ppfinder/internal/model"
)

// Store writes to the three index relations.
type Store struct {
	db *bun.DB
}

// New returns a Store backed by db.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// Counts holds the row count of each relation.
type Counts struct {
	Beatmaps       int `json:"beatmaps"`
	ModVariants    int `json:"modVariants"`
	AccuracyPoints int `json:"accuracyPoints"`
}

// Wipe deletes every row of the index, children first, then reclaims space.
func (s *Store) Wipe(ctx context.Context) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*model.AccuracyPoint)(nil)).Where("1 = 1").Exec(ctx); err != nil {
			return fmt.Errorf("delete accuracy points: %w", err)
		}
		if _, err := tx.NewDelete().Model((*model.ModVariant)(nil)).Where("1 = 1").Exec(ctx); err != nil {
			return fmt.Errorf("delete mod variants: %w", err)
		}
		if _, err := tx.NewDelete().Model((*model.Beatmap)(nil)).Where("1 = 1").Exec(ctx); err != nil {
			return fmt.Errorf("delete beatmaps: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("wipe: %w", err)
	}
	// VACUUM cannot run inside a transaction.
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// Persist inserts one record: one statement per relation, all in a single
// transaction. A record with no variants still gets its identity row.
func (s *Store) Persist(ctx context.Context, rec *model.Record) error {
	variants, points := rec.Rows()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&rec.Beatmap).Exec(ctx); err != nil {
			return fmt.Errorf("insert beatmap %d: %w", rec.Beatmap.BeatmapID, err)
		}
		if len(variants) > 0 {
			if _, err := tx.NewInsert().Model(&variants).Exec(ctx); err != nil {
				return fmt.Errorf("insert mod variants of %d: %w", rec.Beatmap.BeatmapID, err)
			}
		}
		if len(points) > 0 {
			if _, err := tx.NewInsert().Model(&points).Exec(ctx); err != nil {
				return fmt.Errorf("insert accuracy points of %d: %w", rec.Beatmap.BeatmapID, err)
			}
		}
		return nil
	})
}

// Counts returns the row count of each relation.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	var err error
	if c.Beatmaps, err = s.db.NewSelect().Model((*model.Beatmap)(nil)).Count(ctx); err != nil {
		return c, fmt.Errorf("count beatmaps: %w", err)
	}
	if c.ModVariants, err = s.db.NewSelect().Model((*model.ModVariant)(nil)).Count(ctx); err != nil {
		return c, fmt.Errorf("count mod variants: %w", err)
	}
	if c.AccuracyPoints, err = s.db.NewSelect().Model((*model.AccuracyPoint)(nil)).Count(ctx); err != nil {
		return c, fmt.Errorf("count accuracy points: %w", err)
	}
	return c, nil
}
