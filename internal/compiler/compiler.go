// Package compiler turns the text of one .osu file into an index record:
// the beatmap identity plus one variant per valid mod combination, each with
// pp at every reference accuracy.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/eargollo/ppfinder/internal/model"
	"github.com/eargollo/ppfinder/internal/mods"
	"github.com/eargollo/ppfinder/internal/osu"
	"github.com/eargollo/ppfinder/internal/pp"
)

// ErrMissingID is returned when BeatmapID or BeatmapSetID is absent or not
// purely numeric.
var ErrMissingID = errors.New("beatmap ID or set ID missing")

// ErrUnsupportedMode is returned for maps that are not standard mode.
var ErrUnsupportedMode = errors.New("beatmap mode is not standard")

// Calculator computes difficulty and performance. pp.Calculator is the
// default implementation.
type Calculator interface {
	Difficulty(bm *osu.Beatmap, m mods.Mask) (pp.Attributes, error)
	Performance(a pp.Attributes, accuracy float64) (float64, error)
}

var (
	beatmapIDRe    = regexp.MustCompile(`(?m)^BeatmapID *: *([0-9]+)\r?$`)
	beatmapSetIDRe = regexp.MustCompile(`(?m)^BeatmapSetID *: *([0-9]+)\r?$`)
)

// Compiler builds records. The zero value is not usable; use New.
type Compiler struct {
	calc    Calculator
	combos  []mods.Mask
	workers int
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithCalculator replaces the default calculator.
func WithCalculator(c Calculator) Option {
	return func(cp *Compiler) { cp.calc = c }
}

// WithCombinations replaces the default mod combinations.
func WithCombinations(combos []mods.Mask) Option {
	return func(cp *Compiler) { cp.combos = combos }
}

// WithWorkers bounds the number of combinations computed concurrently.
func WithWorkers(n int) Option {
	return func(cp *Compiler) {
		if n > 0 {
			cp.workers = n
		}
	}
}

// New returns a Compiler using pp.Calculator over mods.Combinations.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		calc:    pp.Calculator{},
		combos:  mods.Combinations(),
		workers: runtime.GOMAXPROCS(0),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compile parses data and computes every variant. Combinations whose
// difficulty or any pp value cannot be computed are left out; the identity is
// returned even when none survive.
func (c *Compiler) Compile(ctx context.Context, data []byte) (*model.Record, error) {
	id, err := extractID(beatmapIDRe, data)
	if err != nil {
		return nil, err
	}
	setID, err := extractID(beatmapSetIDRe, data)
	if err != nil {
		return nil, err
	}

	bm, err := osu.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if bm.Mode != osu.ModeStandard {
		return nil, ErrUnsupportedMode
	}
	duration, err := bm.DrainSeconds()
	if err != nil {
		return nil, err
	}
	bpm, err := bm.BaseBPM()
	if err != nil {
		return nil, err
	}

	base := stats{
		ar: bm.AR, cs: bm.CS, od: bm.OD, hp: bm.HP,
		duration: duration, bpm: bpm,
	}

	results := make([]*model.Variant, len(c.combos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, m := range c.combos {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = c.variant(bm, id, m, base)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rec := &model.Record{Beatmap: model.Beatmap{
		BeatmapID:     id,
		BeatmapSetID:  setID,
		Creator:       bm.Creator,
		Version:       bm.Version,
		Artist:        bm.Artist,
		Title:         bm.Title,
		ArtistUnicode: bm.ArtistUnicode,
		TitleUnicode:  bm.TitleUnicode,
		MaxCombo:      bm.MaxCombo(),
	}}
	for _, v := range results {
		if v != nil {
			rec.Variants = append(rec.Variants, *v)
		}
	}
	return rec, nil
}

// variant computes one mod combination, or nil if any capability call fails.
func (c *Compiler) variant(bm *osu.Beatmap, id int64, m mods.Mask, base stats) *model.Variant {
	attrs, err := c.calc.Difficulty(bm, m)
	if err != nil || !valid(attrs.Total) {
		return nil
	}

	s := base.biased(m)
	v := &model.Variant{ModVariant: model.ModVariant{
		BeatmapID:  id,
		ModBitmask: uint32(m),
		AR:         round2(s.ar),
		CS:         round2(s.cs),
		OD:         round2(s.od),
		HP:         round2(s.hp),
		Stars:      round2(attrs.Total),
		Duration:   int(math.Round(s.duration)),
		BPM:        int(math.Round(s.bpm)),
	}}
	v.Points = make([]model.AccuracyPoint, 0, len(model.ReferenceAccuracies))
	for _, acc := range model.ReferenceAccuracies {
		value, err := c.calc.Performance(attrs, float64(acc))
		if err != nil || !valid(value) {
			return nil
		}
		v.Points = append(v.Points, model.AccuracyPoint{
			BeatmapID:  id,
			ModBitmask: uint32(m),
			Accuracy:   acc,
			PP:         round2(value),
		})
	}
	return v
}

type stats struct {
	ar, cs, od, hp float64
	duration, bpm  float64
}

// biased applies the displayed-stat multipliers of m.
func (s stats) biased(m mods.Mask) stats {
	switch {
	case m&mods.HardRock != 0:
		s.ar *= 1.4
		s.od *= 1.4
		s.hp *= 1.4
		s.cs *= 1.3
	case m&mods.Easy != 0:
		s.ar *= 0.5
		s.cs *= 0.5
		s.od *= 0.5
		s.hp *= 0.5
	}
	switch {
	case m&(mods.DoubleTime|mods.Nightcore) != 0:
		s.duration *= 0.67
		s.bpm *= 1.5
	case m&mods.HalfTime != 0:
		s.duration *= 1.33
		s.bpm *= 0.75
	}
	return s
}

func extractID(re *regexp.Regexp, data []byte) (int64, error) {
	match := re.FindSubmatch(data)
	if match == nil {
		return 0, ErrMissingID
	}
	id, err := strconv.ParseInt(string(match[1]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMissingID, err)
	}
	return id, nil
}

func valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
