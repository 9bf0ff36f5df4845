package pp

import (
	"errors"
	"fmt"
	"math"

	"github.com/eargollo/ppfinder/internal/mods"
)

// ErrInvalidAccuracy is returned for accuracies outside (0, 100].
var ErrInvalidAccuracy = errors.New("accuracy must be within (0, 100]")

// Performance returns the pp of a full-combo play at accuracy percent.
// The result is NaN-free or an error is returned.
func (Calculator) Performance(a Attributes, accuracy float64) (float64, error) {
	if accuracy <= 0 || accuracy > 100 {
		return 0, ErrInvalidAccuracy
	}
	if a.Objects == 0 {
		return 0, errors.New("no hit objects")
	}

	n300, n100, n50 := hitCounts(a.Objects, accuracy)
	objects := float64(a.Objects)
	acc := (float64(n50)*50 + float64(n100)*100 + float64(n300)*300) / (objects * 300)

	lengthBonus := 0.95 + 0.4*math.Min(1, objects/2000)
	if objects > 2000 {
		lengthBonus += math.Log10(objects/2000) * 0.5
	}

	arBonus := 1.0
	switch {
	case a.AR > 10.33:
		arBonus += 0.3 * (a.AR - 10.33)
	case a.AR < 8:
		arBonus += 0.01 * (8 - a.AR)
	}

	hdBonus := 1.0
	if a.Mods&mods.Hidden != 0 {
		hdBonus += 0.04 * (12 - a.AR)
	}

	odSquared := a.OD * a.OD

	aim := base(a.Aim) * lengthBonus * arBonus * hdBonus
	if a.Mods&mods.Flashlight != 0 {
		fl := 1 + 0.35*math.Min(1, objects/200)
		if objects > 200 {
			fl += 0.3 * math.Min(1, (objects-200)/300)
		}
		if objects > 500 {
			fl += (objects - 500) / 1200
		}
		aim *= fl
	}
	aim *= 0.5 + acc/2
	aim *= 0.98 + odSquared/2500

	speed := base(a.Speed) * lengthBonus * hdBonus
	if a.AR > 10.33 {
		speed *= arBonus
	}
	speed *= 0.02 + acc
	speed *= 0.96 + odSquared/1600

	// Accuracy pp only counts circles; a map without circles has none.
	circles := float64(a.Circles)
	realAcc := 0.0
	if circles > 0 {
		n300c := math.Max(0, float64(n300)-(objects-circles))
		realAcc = (n300c*6 + float64(n100)*2 + float64(n50)) / (circles * 6)
		realAcc = math.Max(0, math.Min(1, realAcc))
	}
	accPP := math.Pow(1.52163, a.OD) * math.Pow(realAcc, 24) * 2.83
	accPP *= math.Min(1.15, math.Pow(circles/1000, 0.3))
	if a.Mods&mods.Hidden != 0 {
		accPP *= 1.08
	}
	if a.Mods&mods.Flashlight != 0 {
		accPP *= 1.02
	}

	final := 1.12
	if a.Mods&mods.NoFail != 0 {
		final *= 0.9
	}
	if a.Mods&mods.SpunOut != 0 {
		final *= 0.95
	}

	total := math.Pow(
		math.Pow(aim, 1.1)+math.Pow(speed, 1.1)+math.Pow(accPP, 1.1),
		1/1.1,
	) * final

	if math.IsNaN(total) || math.IsInf(total, 0) || total < 0 {
		return 0, fmt.Errorf("invalid pp result %v", total)
	}
	return total, nil
}

func base(stars float64) float64 {
	return math.Pow(5*math.Max(1, stars/starScalingFactor)-4, 3) / 100000
}

// hitCounts distributes objects into 300/100/50 judgements so that the
// resulting accuracy is as close as possible to accuracy percent.
func hitCounts(objects int, accuracy float64) (n300, n100, n50 int) {
	miss := (accuracy/100 - 1) * float64(objects)
	n100 = int(math.Round(-3 * miss * 0.5))
	if n100 > objects {
		n100 = 0
		n50 = int(math.Round(-6 * miss * 0.5))
		if n50 > objects {
			n50 = objects
		}
	}
	n300 = objects - n100 - n50
	return n300, n100, n50
}
