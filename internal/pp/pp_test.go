package pp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eargollo/ppfinder/internal/mods"
	"github.com/eargollo/ppfinder/internal/osu"
	"github.com/eargollo/ppfinder/internal/osu/osutest"
)

func mustParse(t *testing.T, m osutest.Map) *osu.Beatmap {
	t.Helper()
	bm, err := osu.Parse(m.Bytes())
	require.NoError(t, err)
	return bm
}

func TestDifficultyIncreasesWithRate(t *testing.T) {
	bm := mustParse(t, osutest.Default(1))
	var c Calculator

	nomod, err := c.Difficulty(bm, 0)
	require.NoError(t, err)
	dt, err := c.Difficulty(bm, mods.DoubleTime)
	require.NoError(t, err)
	ht, err := c.Difficulty(bm, mods.HalfTime)
	require.NoError(t, err)

	assert.Greater(t, nomod.Total, 0.0)
	assert.Greater(t, dt.Total, nomod.Total)
	assert.Less(t, ht.Total, nomod.Total)
	assert.Equal(t, 200, nomod.Objects)
	assert.Equal(t, 200, nomod.Circles)
	assert.Equal(t, 200, nomod.MaxCombo)
}

func TestDifficultyRejectsOtherModes(t *testing.T) {
	m := osutest.Default(1)
	m.Mode = 3
	_, err := Calculator{}.Difficulty(mustParse(t, m), 0)
	require.ErrorIs(t, err, ErrUnsupportedMode)
}

func TestAdjustedStats(t *testing.T) {
	ar, od := adjustedStats(9, 8, mods.HardRock)
	assert.Equal(t, 10.0, ar)
	assert.Equal(t, 10.0, od)

	ar, od = adjustedStats(9, 8, mods.Easy)
	assert.Equal(t, 4.5, ar)
	assert.Equal(t, 4.0, od)

	ar, _ = adjustedStats(9, 8, mods.DoubleTime)
	assert.InDelta(t, 10.33, ar, 0.01)
}

func TestPerformanceIsMonotonicInAccuracy(t *testing.T) {
	bm := mustParse(t, osutest.Default(1))
	var c Calculator
	attrs, err := c.Difficulty(bm, mods.Hidden)
	require.NoError(t, err)

	prev := math.Inf(1)
	for _, acc := range []float64{100, 99, 98, 95} {
		v, err := c.Performance(attrs, acc)
		require.NoError(t, err)
		assert.Greater(t, v, 0.0)
		assert.Less(t, v, prev, "pp at %v%% should be below the previous accuracy", acc)
		prev = v
	}
}

func TestPerformanceModMultipliers(t *testing.T) {
	bm := mustParse(t, osutest.Default(1))
	var c Calculator

	nomod, err := c.Difficulty(bm, 0)
	require.NoError(t, err)
	nf, err := c.Difficulty(bm, mods.NoFail)
	require.NoError(t, err)

	a, err := c.Performance(nomod, 100)
	require.NoError(t, err)
	b, err := c.Performance(nf, 100)
	require.NoError(t, err)
	assert.InDelta(t, a*0.9, b, 1e-9)
}

func TestPerformanceErrors(t *testing.T) {
	var c Calculator
	_, err := c.Performance(Attributes{Objects: 10, Circles: 10}, 0)
	require.ErrorIs(t, err, ErrInvalidAccuracy)
	_, err = c.Performance(Attributes{Objects: 10, Circles: 10}, 101)
	require.ErrorIs(t, err, ErrInvalidAccuracy)
	_, err = c.Performance(Attributes{}, 100)
	require.Error(t, err)
}

func TestHitCounts(t *testing.T) {
	n300, n100, n50 := hitCounts(200, 99)
	assert.Equal(t, 197, n300)
	assert.Equal(t, 3, n100)
	assert.Equal(t, 0, n50)

	n300, n100, n50 = hitCounts(200, 100)
	assert.Equal(t, 200, n300)
	assert.Zero(t, n100+n50)
}
