// Package pp computes star ratings and performance points for standard
// beatmaps.
//
// The model follows the 2019 public osu! ppv2 formulas: aim and speed strains
// accumulated over 400ms sections, then combined by the ppv2 performance
// formula.
package pp

import (
	"errors"
	"math"
	"sort"

	"github.com/eargollo/ppfinder/internal/mods"
	"github.com/eargollo/ppfinder/internal/osu"
)

// ErrUnsupportedMode is returned for non-standard beatmaps.
var ErrUnsupportedMode = errors.New("only the standard game mode is supported")

const (
	strainStep        = 400.0
	decayWeight       = 0.9
	starScalingFactor = 0.0675
	playfieldWidth    = 512.0
	circleSizeBuff    = 30.0
	minDeltaTime      = 50.0

	singleSpacing  = 125.0
	streamSpacing  = 110.0
	almostDiameter = 90.0
)

type skill int

const (
	speedSkill skill = iota
	aimSkill
)

var (
	decayBase     = [2]float64{0.3, 0.15}
	weightScaling = [2]float64{1400, 26.25}
)

// Attributes is the output of a difficulty calculation, carrying everything
// the performance formula needs.
type Attributes struct {
	Total float64
	Aim   float64
	Speed float64

	Mods     mods.Mask
	AR       float64 // mod- and rate-adjusted
	OD       float64 // mod- and rate-adjusted
	MaxCombo int
	Circles  int
	Objects  int
}

// Calculator is the default difficulty and performance implementation.
type Calculator struct{}

// Difficulty computes the star rating of bm played with m.
func (Calculator) Difficulty(bm *osu.Beatmap, m mods.Mask) (Attributes, error) {
	if bm.Mode != osu.ModeStandard {
		return Attributes{}, ErrUnsupportedMode
	}
	if len(bm.HitObjects) == 0 {
		return Attributes{}, osu.ErrNoHitObjects
	}

	rate := m.SpeedMultiplier()
	cs := bm.CS
	switch {
	case m&mods.HardRock != 0:
		cs = math.Min(cs*1.3, 10)
	case m&mods.Easy != 0:
		cs *= 0.5
	}

	radius := (playfieldWidth / 16) * (1 - 0.7*(cs-5)/5)
	scale := 52 / radius
	if radius < circleSizeBuff {
		scale *= 1 + math.Min(circleSizeBuff-radius, 5)/50
	}

	aim := strainDifficulty(bm.HitObjects, scale, rate, aimSkill)
	speed := strainDifficulty(bm.HitObjects, scale, rate, speedSkill)

	aimStars := math.Sqrt(aim) * starScalingFactor
	speedStars := math.Sqrt(speed) * starScalingFactor
	total := aimStars + speedStars + math.Abs(speedStars-aimStars)*0.5

	ar, od := adjustedStats(bm.AR, bm.OD, m)
	circles, _, _ := bm.Counts()
	return Attributes{
		Total:    total,
		Aim:      aimStars,
		Speed:    speedStars,
		Mods:     m,
		AR:       ar,
		OD:       od,
		MaxCombo: bm.MaxCombo(),
		Circles:  circles,
		Objects:  len(bm.HitObjects),
	}, nil
}

// strainDifficulty accumulates one skill's strain and returns the weighted
// sum of its per-section peaks.
func strainDifficulty(objects []osu.HitObject, scale, rate float64, s skill) float64 {
	var (
		peaks        []float64
		strain       float64
		sectionEnd   = math.Ceil(objects[0].Time/rate/strainStep) * strainStep
		maxStrain    float64
		prevTime     = objects[0].Time / rate
		prevPos      = objects[0].Pos
		prevIsSpinny = objects[0].Type == osu.Spinner
	)

	for _, o := range objects[1:] {
		t := o.Time / rate
		for t > sectionEnd {
			peaks = append(peaks, maxStrain)
			// Carry the decayed strain into the next section.
			maxStrain = strain * math.Pow(decayBase[s], (sectionEnd-prevTime)/1000)
			sectionEnd += strainStep
		}

		delta := math.Max(t-prevTime, minDeltaTime)
		dist := 0.0
		if o.Type != osu.Spinner && !prevIsSpinny {
			dist = o.Pos.Sub(prevPos).Len() * scale
		}
		strain = strain*math.Pow(decayBase[s], delta/1000) + skillValue(s, dist, delta)*weightScaling[s]
		maxStrain = math.Max(maxStrain, strain)

		prevTime, prevPos, prevIsSpinny = t, o.Pos, o.Type == osu.Spinner
	}
	peaks = append(peaks, maxStrain)

	sort.Sort(sort.Reverse(sort.Float64Slice(peaks)))
	total, weight := 0.0, 1.0
	for _, p := range peaks {
		total += p * weight
		weight *= decayWeight
	}
	return total
}

func skillValue(s skill, dist, delta float64) float64 {
	if s == aimSkill {
		return math.Pow(dist, 0.99) / delta
	}
	var spacing float64
	switch {
	case dist > singleSpacing:
		spacing = 2.5
	case dist > streamSpacing:
		spacing = 1.6 + 0.9*(dist-streamSpacing)/(singleSpacing-streamSpacing)
	case dist > almostDiameter:
		spacing = 1.2 + 0.4*(dist-almostDiameter)/(streamSpacing-almostDiameter)
	case dist > almostDiameter/2:
		spacing = 0.95 + 0.25*(dist-almostDiameter/2)/(almostDiameter/2)
	default:
		spacing = 0.95
	}
	return spacing / delta
}

// adjustedStats applies HR/EZ multipliers and the playback rate to AR and OD.
func adjustedStats(ar, od float64, m mods.Mask) (float64, float64) {
	mul := 1.0
	switch {
	case m&mods.HardRock != 0:
		mul = 1.4
	case m&mods.Easy != 0:
		mul = 0.5
	}
	ar = math.Min(ar*mul, 10)
	od = math.Min(od*mul, 10)

	rate := m.SpeedMultiplier()
	if rate == 1 {
		return ar, od
	}

	var preempt float64
	if ar < 5 {
		preempt = 1800 - 120*ar
	} else {
		preempt = 1200 - 150*(ar-5)
	}
	preempt /= rate
	if preempt > 1200 {
		ar = (1800 - preempt) / 120
	} else {
		ar = 5 + (1200-preempt)/150
	}

	window := (80 - 6*od) / rate
	od = (80 - window) / 6
	return ar, od
}
