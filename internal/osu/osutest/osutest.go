// Package osutest builds synthetic .osu files for tests.
package osutest

import (
	"fmt"
	"strings"
)

// Map describes a synthetic beatmap. Zero values get usable defaults from
// Bytes, except BeatmapID/BeatmapSetID which are written verbatim so tests can
// produce invalid identities.
type Map struct {
	BeatmapID    string
	BeatmapSetID string
	Mode         int
	Title        string
	Artist       string
	Creator      string
	Version      string
	CS, OD, AR   float64
	HP           float64
	BeatLength   float64
	Objects      int     // number of circles
	Spacing      float64 // ms between objects
	Sliders      int     // number of sliders appended after the circles
	Jump         float64 // playfield distance between consecutive circles
	NoTiming     bool
}

// Default returns a valid standard map with the given beatmap ID.
func Default(id int) Map {
	return Map{
		BeatmapID:    fmt.Sprint(id),
		BeatmapSetID: fmt.Sprint(1000 + id),
		Title:        fmt.Sprintf("Song %d", id),
		Artist:       "Artist",
		Creator:      "Mapper",
		Version:      "Insane",
		CS:           4,
		OD:           8,
		AR:           9,
		HP:           6,
		BeatLength:   300,
		Objects:      200,
		Spacing:      150,
		Jump:         120,
	}
}

// Bytes renders m as .osu text.
func (m Map) Bytes() []byte {
	var b strings.Builder
	b.WriteString("osu file format v14\n\n")
	b.WriteString("[General]\n")
	fmt.Fprintf(&b, "AudioFilename: audio.mp3\nMode: %d\n\n", m.Mode)

	b.WriteString("[Metadata]\n")
	fmt.Fprintf(&b, "Title:%s\nTitleUnicode:%s\nArtist:%s\nArtistUnicode:%s\n", m.Title, m.Title, m.Artist, m.Artist)
	fmt.Fprintf(&b, "Creator:%s\nVersion:%s\n", m.Creator, m.Version)
	if m.BeatmapID != "" {
		fmt.Fprintf(&b, "BeatmapID:%s\n", m.BeatmapID)
	}
	if m.BeatmapSetID != "" {
		fmt.Fprintf(&b, "BeatmapSetID:%s\n", m.BeatmapSetID)
	}
	b.WriteString("\n[Difficulty]\n")
	fmt.Fprintf(&b, "HPDrainRate:%g\nCircleSize:%g\nOverallDifficulty:%g\nApproachRate:%g\n", m.HP, m.CS, m.OD, m.AR)
	b.WriteString("SliderMultiplier:1.4\nSliderTickRate:1\n\n")

	if !m.NoTiming {
		b.WriteString("[TimingPoints]\n")
		fmt.Fprintf(&b, "1000,%g,4,2,0,60,1,0\n\n", m.BeatLength)
	}

	b.WriteString("[HitObjects]\n")
	t := 1000.0
	for i := 0; i < m.Objects; i++ {
		x := 256.0
		if i%2 == 1 {
			x += m.Jump
		}
		fmt.Fprintf(&b, "%d,192,%d,1,0,0:0:0:0:\n", int(x), int(t))
		t += m.Spacing
	}
	for i := 0; i < m.Sliders; i++ {
		fmt.Fprintf(&b, "100,100,%d,2,0,L|200:100,1,140\n", int(t))
		t += m.Spacing * 2
	}
	return []byte(b.String())
}
