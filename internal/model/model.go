// Package model holds the persisted relations of the beatmap index.
package model

import "github.com/uptrace/bun"

// ReferenceAccuracies are the accuracy percentages pp is computed for.
// Every indexed mod variant carries exactly one AccuracyPoint per entry.
var ReferenceAccuracies = [...]int{100, 99, 98, 95}

// Beatmap is the identity row of one difficulty.
type Beatmap struct {
	bun.BaseModel `bun:"table:beatmaps,alias:b"`

	BeatmapID     int64  `bun:"beatmap_id,pk" json:"beatmapId"`
	BeatmapSetID  int64  `bun:"beatmap_set_id,notnull" json:"beatmapSetId"`
	Creator       string `bun:"creator,notnull" json:"creator"`
	Version       string `bun:"version,notnull" json:"version"`
	Artist        string `bun:"artist,notnull" json:"artist"`
	Title         string `bun:"title,notnull" json:"title"`
	ArtistUnicode string `bun:"artist_unicode,notnull" json:"artistUnicode"`
	TitleUnicode  string `bun:"title_unicode,notnull" json:"titleUnicode"`
	MaxCombo      int    `bun:"max_combo,notnull" json:"maxCombo"`
}

// ModVariant holds the mod-adjusted attributes of a beatmap.
type ModVariant struct {
	bun.BaseModel `bun:"table:mod_variants,alias:m"`

	BeatmapID  int64   `bun:"beatmap_id,pk" json:"beatmapId"`
	ModBitmask uint32  `bun:"mod_bitmask,pk" json:"modBitmask"`
	AR         float64 `bun:"ar,notnull" json:"ar"`
	CS         float64 `bun:"cs,notnull" json:"cs"`
	OD         float64 `bun:"od,notnull" json:"od"`
	HP         float64 `bun:"hp,notnull" json:"hp"`
	Stars      float64 `bun:"stars,notnull" json:"stars"`
	Duration   int     `bun:"duration,notnull" json:"duration"` // seconds
	BPM        int     `bun:"bpm,notnull" json:"bpm"`
}

// AccuracyPoint is the pp of a full-combo play at one reference accuracy.
type AccuracyPoint struct {
	bun.BaseModel `bun:"table:accuracy_points,alias:a"`

	BeatmapID  int64   `bun:"beatmap_id,pk" json:"beatmapId"`
	ModBitmask uint32  `bun:"mod_bitmask,pk" json:"modBitmask"`
	Accuracy   int     `bun:"accuracy,pk" json:"accuracy"`
	PP         float64 `bun:"pp,notnull" json:"pp"`
}

// Variant groups a ModVariant with its accuracy points.
type Variant struct {
	ModVariant
	Points []AccuracyPoint
}

// Record is everything one beatmap file contributes to the index.
type Record struct {
	Beatmap  Beatmap
	Variants []Variant
}

// Rows flattens the record into the per-relation rows Persist inserts.
func (r *Record) Rows() ([]ModVariant, []AccuracyPoint) {
	variants := make([]ModVariant, 0, len(r.Variants))
	points := make([]AccuracyPoint, 0, len(r.Variants)*len(ReferenceAccuracies))
	for _, v := range r.Variants {
		variants = append(variants, v.ModVariant)
		points = append(points, v.Points...)
	}
	return variants, points
}
