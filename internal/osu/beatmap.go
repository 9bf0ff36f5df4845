// Package osu parses the text .osu beatmap format into a structured model.
//
// Only the sections needed for difficulty and performance calculation are
// decoded: [General], [Metadata], [Difficulty], [TimingPoints] and
// [HitObjects]. Storyboard, colour and editor data are ignored.
package osu

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ModeStandard is the game mode identifier of the standard ruleset.
const ModeStandard = 0

// ErrNoHitObjects is returned when a file has no [HitObjects] entries.
var ErrNoHitObjects = errors.New("beatmap has no hit objects")

// ObjectType classifies a hit object.
type ObjectType int

const (
	Circle ObjectType = iota
	Slider
	Spinner
)

// Vec is a point on the 512x384 playfield.
type Vec struct{ X, Y float64 }

// Sub returns v - o.
func (v Vec) Sub(o Vec) Vec { return Vec{v.X - o.X, v.Y - o.Y} }

// Len returns the Euclidean length of v.
func (v Vec) Len() float64 { return math.Hypot(v.X, v.Y) }

// HitObject is one circle, slider or spinner.
type HitObject struct {
	Time   float64 // ms
	Type   ObjectType
	Pos    Vec
	Slides int     // sliders only
	Length float64 // sliders only, osu!pixels
}

// TimingPoint is one [TimingPoints] line.
type TimingPoint struct {
	Time        float64
	BeatLength  float64 // ms per beat, or negative inverse velocity percentage when inherited
	Uninherited bool
}

// Beatmap is the parsed content of a .osu file.
type Beatmap struct {
	FormatVersion int
	Mode          int

	Title         string
	TitleUnicode  string
	Artist        string
	ArtistUnicode string
	Creator       string
	Version       string

	HP               float64
	CS               float64
	OD               float64
	AR               float64
	SliderMultiplier float64
	SliderTickRate   float64

	TimingPoints []TimingPoint
	HitObjects   []HitObject
}

// Parse decodes .osu text. It fails when the file is not an osu! beatmap or
// when a numeric field in a decoded section is malformed.
func Parse(data []byte) (*Beatmap, error) {
	bm := &Beatmap{
		HP:               5,
		CS:               5,
		OD:               5,
		AR:               -1,
		SliderMultiplier: 1.4,
		SliderTickRate:   1,
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	section := ""
	sawHeader := false
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if !sawHeader {
			line = strings.TrimPrefix(line, "\ufeff")
			v, ok := strings.CutPrefix(line, "osu file format v")
			if !ok {
				return nil, fmt.Errorf("line %d: missing osu file format header", lineNo)
			}
			bm.FormatVersion, _ = strconv.Atoi(v)
			sawHeader = true
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = line[1 : len(line)-1]
			continue
		}

		var err error
		switch section {
		case "General", "Metadata", "Difficulty":
			err = bm.parseProperty(section, line)
		case "TimingPoints":
			err = bm.parseTimingPoint(line)
		case "HitObjects":
			err = bm.parseHitObject(line)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d [%s]: %w", lineNo, section, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read beatmap: %w", err)
	}
	if !sawHeader {
		return nil, errors.New("empty beatmap file")
	}
	if len(bm.HitObjects) == 0 {
		return nil, ErrNoHitObjects
	}
	// Old formats have no ApproachRate; it followed OverallDifficulty.
	if bm.AR < 0 {
		bm.AR = bm.OD
	}
	return bm, nil
}

func (bm *Beatmap) parseProperty(section, line string) error {
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return nil
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	num := func(dst *float64) error {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = f
		return nil
	}

	switch section + "." + key {
	case "General.Mode":
		mode, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("Mode: %w", err)
		}
		bm.Mode = mode
	case "Metadata.Title":
		bm.Title = value
	case "Metadata.TitleUnicode":
		bm.TitleUnicode = value
	case "Metadata.Artist":
		bm.Artist = value
	case "Metadata.ArtistUnicode":
		bm.ArtistUnicode = value
	case "Metadata.Creator":
		bm.Creator = value
	case "Metadata.Version":
		bm.Version = value
	case "Difficulty.HPDrainRate":
		return num(&bm.HP)
	case "Difficulty.CircleSize":
		return num(&bm.CS)
	case "Difficulty.OverallDifficulty":
		return num(&bm.OD)
	case "Difficulty.ApproachRate":
		return num(&bm.AR)
	case "Difficulty.SliderMultiplier":
		return num(&bm.SliderMultiplier)
	case "Difficulty.SliderTickRate":
		return num(&bm.SliderTickRate)
	}
	return nil
}

func (bm *Beatmap) parseTimingPoint(line string) error {
	fields := strings.Split(line, ",")
	if len(fields) < 2 {
		return fmt.Errorf("timing point %q: too few fields", line)
	}
	t, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return fmt.Errorf("timing point time: %w", err)
	}
	bl, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return fmt.Errorf("timing point beat length: %w", err)
	}
	tp := TimingPoint{Time: t, BeatLength: bl, Uninherited: bl > 0}
	if len(fields) > 6 {
		tp.Uninherited = strings.TrimSpace(fields[6]) != "0"
	}
	bm.TimingPoints = append(bm.TimingPoints, tp)
	return nil
}

func (bm *Beatmap) parseHitObject(line string) error {
	fields := strings.Split(line, ",")
	if len(fields) < 4 {
		return fmt.Errorf("hit object %q: too few fields", line)
	}
	var nums [4]float64
	for i := range nums {
		f, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
		if err != nil {
			return fmt.Errorf("hit object field %d: %w", i, err)
		}
		nums[i] = f
	}
	obj := HitObject{Pos: Vec{nums[0], nums[1]}, Time: nums[2]}
	flags := int(nums[3])
	switch {
	case flags&1 != 0:
		obj.Type = Circle
	case flags&2 != 0:
		obj.Type = Slider
		obj.Slides = 1
		if len(fields) > 6 {
			if n, err := strconv.Atoi(strings.TrimSpace(fields[6])); err == nil && n > 0 {
				obj.Slides = n
			}
		}
		if len(fields) > 7 {
			if l, err := strconv.ParseFloat(strings.TrimSpace(fields[7]), 64); err == nil {
				obj.Length = l
			}
		}
	case flags&8 != 0:
		obj.Type = Spinner
	default:
		// osu!mania holds and unknown types count as circles for combo purposes.
		obj.Type = Circle
	}
	bm.HitObjects = append(bm.HitObjects, obj)
	return nil
}

// Counts returns the number of circles, sliders and spinners.
func (bm *Beatmap) Counts() (circles, sliders, spinners int) {
	for _, o := range bm.HitObjects {
		switch o.Type {
		case Circle:
			circles++
		case Slider:
			sliders++
		case Spinner:
			spinners++
		}
	}
	return
}

// BaseBPM returns the tempo of the first uninherited timing point.
func (bm *Beatmap) BaseBPM() (float64, error) {
	for _, tp := range bm.TimingPoints {
		if tp.Uninherited && tp.BeatLength > 0 {
			return 60000 / tp.BeatLength, nil
		}
	}
	return 0, errors.New("beatmap has no timing point to read BPM from")
}

// DrainSeconds returns the time between the first and last hit object.
func (bm *Beatmap) DrainSeconds() (float64, error) {
	if len(bm.HitObjects) < 2 {
		return 0, errors.New("beatmap has less than 2 hit objects")
	}
	first := bm.HitObjects[0].Time
	last := bm.HitObjects[len(bm.HitObjects)-1].Time
	return (last - first) / 1000, nil
}

// MaxCombo returns the combo of a full-combo play: one per circle and
// spinner, and head + ticks + repeats + tail for every slider.
func (bm *Beatmap) MaxCombo() int {
	combo := 0
	tp := 0
	velocity := 1.0
	for _, o := range bm.HitObjects {
		for tp < len(bm.TimingPoints) && bm.TimingPoints[tp].Time <= o.Time {
			p := bm.TimingPoints[tp]
			if p.Uninherited {
				velocity = 1
			} else if p.BeatLength < 0 {
				velocity = -100 / p.BeatLength
			}
			tp++
		}
		if o.Type != Slider {
			combo++
			continue
		}
		pxPerBeat := bm.SliderMultiplier * 100 * velocity
		if bm.FormatVersion < 8 {
			pxPerBeat /= velocity
		}
		beats := o.Length * float64(o.Slides) / pxPerBeat
		ticks := int(math.Ceil((beats-0.1)/float64(o.Slides)*bm.SliderTickRate)) - 1
		if ticks < 0 {
			ticks = 0
		}
		combo += ticks*o.Slides + o.Slides + 1
	}
	return combo
}
