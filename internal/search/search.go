// Package search compiles criteria into a paginated query over the index.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"

	"github.com/eargollo/ppfinder/internal/criteria"
	"github.com/eargollo/ppfinder/internal/metrics"
	"github.com/eargollo/ppfinder/internal/mods"
)

// PageSize is the number of rows per result page.
const PageSize = 50

// sortExprs is indexed by criteria.Sort.ID, in criteria.SortKeys order.
var sortExprs = []string{
	"acc100.pp",
	"m.stars",
	"acc100.pp / m.stars",
	"b.max_combo",
	"acc100.pp / b.max_combo",
	"m.duration",
	"acc100.pp / m.duration",
}

// Row is one matching (beatmap, mod combination).
type Row struct {
	BeatmapID     int64              `json:"beatmapId"`
	BeatmapSetID  int64              `json:"beatmapSetId"`
	Title         string             `json:"title"`
	TitleUnicode  string             `json:"titleUnicode"`
	Artist        string             `json:"artist"`
	ArtistUnicode string             `json:"artistUnicode"`
	Creator       string             `json:"creator"`
	Version       string             `json:"version"`
	MaxCombo      int                `json:"maxCombo"`
	ModBitmask    uint32             `json:"modBitmask"`
	Mods          []string           `json:"mods"`
	AR            float64            `json:"ar"`
	CS            float64            `json:"cs"`
	OD            float64            `json:"od"`
	HP            float64            `json:"hp"`
	Stars         float64            `json:"stars"`
	BPM           int                `json:"bpm"`
	Seconds       int                `json:"seconds"`
	Duration      string             `json:"duration"` // mm:ss
	PP            map[string]float64 `json:"pp"`
}

// Result is one page of matches.
type Result struct {
	Rows     []Row `json:"rows"`
	Page     int   `json:"page"`
	MaxPage  int   `json:"maxPage"`
	PageSize int   `json:"pageSize"`
	Total    int   `json:"total"`
}

// Searcher runs searches against the index.
type Searcher struct {
	db      bun.IDB
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New returns a Searcher. logger and m may be nil.
func New(db bun.IDB, logger *slog.Logger, m *metrics.Metrics) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{db: db, logger: logger, metrics: m}
}

// dbRow is the flat shape of the page query.
type dbRow struct {
	BeatmapID     int64   `bun:"beatmap_id"`
	BeatmapSetID  int64   `bun:"beatmap_set_id"`
	Title         string  `bun:"title"`
	TitleUnicode  string  `bun:"title_unicode"`
	Artist        string  `bun:"artist"`
	ArtistUnicode string  `bun:"artist_unicode"`
	Creator       string  `bun:"creator"`
	Version       string  `bun:"version"`
	MaxCombo      int     `bun:"max_combo"`
	ModBitmask    uint32  `bun:"mod_bitmask"`
	AR            float64 `bun:"ar"`
	CS            float64 `bun:"cs"`
	OD            float64 `bun:"od"`
	HP            float64 `bun:"hp"`
	Stars         float64 `bun:"stars"`
	BPM           int     `bun:"bpm"`
	Duration      int     `bun:"duration"`
	PP100         float64 `bun:"pp100"`
	PP99          float64 `bun:"pp99"`
	PP98          float64 `bun:"pp98"`
	PP95          float64 `bun:"pp95"`
}

// Search returns page of the rows matching c. A nil c yields an empty result
// without touching storage. Out-of-range pages are clamped.
func (s *Searcher) Search(ctx context.Context, c *criteria.Criteria, page int) (*Result, error) {
	if c == nil {
		return &Result{Rows: []Row{}, PageSize: PageSize}, nil
	}
	start := time.Now()

	include, exclude, err := c.Mods.Masks()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", criteria.ErrInvalidCriteria, err)
	}
	sortID := c.Sort.ID
	if sortID < 0 || sortID >= len(sortExprs) {
		s.logger.Warn("unknown sort requested, using pp", "sort_id", sortID)
		sortID = 0
	}
	page = max(page, 0)

	var (
		total int
		rows  []dbRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.filtered(c, include, exclude).Count(gctx)
		if err != nil {
			return fmt.Errorf("count rows: %w", err)
		}
		total = n
		return nil
	})
	g.Go(func() error {
		var err error
		rows, err = s.page(gctx, c, include, exclude, sortID, page)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	maxPage := 0
	if total > 0 {
		maxPage = (total+PageSize-1)/PageSize - 1
	}
	if clamped := min(page, maxPage); clamped != page {
		page = clamped
		if rows, err = s.page(ctx, c, include, exclude, sortID, page); err != nil {
			return nil, err
		}
	}

	res := &Result{
		Rows:     make([]Row, 0, len(rows)),
		Page:     page,
		MaxPage:  maxPage,
		PageSize: PageSize,
		Total:    total,
	}
	for _, r := range rows {
		res.Rows = append(res.Rows, r.toRow())
	}
	s.metrics.Searched(time.Since(start), total)
	return res, nil
}

// filtered is the anchored, filtered query without the 99/98/95 joins.
func (s *Searcher) filtered(c *criteria.Criteria, include, exclude mods.Mask) *bun.SelectQuery {
	return s.db.NewSelect().
		TableExpr("accuracy_points AS acc100").
		Join("JOIN mod_variants AS m ON m.beatmap_id = acc100.beatmap_id AND m.mod_bitmask = acc100.mod_bitmask").
		Join("JOIN beatmaps AS b ON b.beatmap_id = acc100.beatmap_id").
		Where("acc100.accuracy = ?", 100).
		Where("acc100.pp BETWEEN ? AND ?", c.PP.Min, c.PP.Max).
		Where("(acc100.mod_bitmask & ?) = ?", uint32(include), uint32(include)).
		Where("(acc100.mod_bitmask & ?) = 0", uint32(exclude)).
		Where("m.ar BETWEEN ? AND ?", c.AR.Min, c.AR.Max).
		Where("m.cs BETWEEN ? AND ?", c.CS.Min, c.CS.Max).
		Where("m.od BETWEEN ? AND ?", c.OD.Min, c.OD.Max).
		Where("m.hp BETWEEN ? AND ?", c.HP.Min, c.HP.Max).
		Where("m.stars BETWEEN ? AND ?", c.Stars.Min, c.Stars.Max).
		Where("m.duration BETWEEN ? AND ?", c.Duration.Min, c.Duration.Max).
		Where("b.max_combo BETWEEN ? AND ?", c.MaxCombo.Min, c.MaxCombo.Max)
}

func (s *Searcher) page(ctx context.Context, c *criteria.Criteria, include, exclude mods.Mask, sortID, page int) ([]dbRow, error) {
	dir := "ASC"
	if c.Sort.Desc {
		dir = "DESC"
	}
	q := s.filtered(c, include, exclude).
		ColumnExpr("b.beatmap_id, b.beatmap_set_id, b.title, b.title_unicode, b.artist, b.artist_unicode").
		ColumnExpr("b.creator, b.version, b.max_combo").
		ColumnExpr("m.mod_bitmask, m.ar, m.cs, m.od, m.hp, m.stars, m.bpm, m.duration").
		ColumnExpr("acc100.pp AS pp100, acc99.pp AS pp99, acc98.pp AS pp98, acc95.pp AS pp95")
	for _, acc := range []int{99, 98, 95} {
		alias := "acc" + strconv.Itoa(acc)
		q = q.Join("JOIN accuracy_points AS "+alias+" ON "+alias+".beatmap_id = acc100.beatmap_id AND "+
			alias+".mod_bitmask = acc100.mod_bitmask AND "+alias+".accuracy = ?", acc)
	}
	q = q.OrderExpr(sortExprs[sortID] + " " + dir).
		OrderExpr("acc100.beatmap_id ASC, acc100.mod_bitmask ASC").
		Limit(PageSize).
		Offset(page * PageSize)

	var rows []dbRow
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("search page %d: %w", page, err)
	}
	return rows, nil
}

func (r dbRow) toRow() Row {
	return Row{
		BeatmapID:     r.BeatmapID,
		BeatmapSetID:  r.BeatmapSetID,
		Title:         r.Title,
		TitleUnicode:  r.TitleUnicode,
		Artist:        r.Artist,
		ArtistUnicode: r.ArtistUnicode,
		Creator:       r.Creator,
		Version:       r.Version,
		MaxCombo:      r.MaxCombo,
		ModBitmask:    r.ModBitmask,
		Mods:          mods.Mask(r.ModBitmask).Codes(),
		AR:            r.AR,
		CS:            r.CS,
		OD:            r.OD,
		HP:            r.HP,
		Stars:         r.Stars,
		BPM:           r.BPM,
		Seconds:       r.Duration,
		Duration:      minSec(r.Duration),
		PP: map[string]float64{
			"100": r.PP100,
			"99":  r.PP99,
			"98":  r.PP98,
			"95":  r.PP95,
		},
	}
}

// minSec formats seconds as mm:ss.
func minSec(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
