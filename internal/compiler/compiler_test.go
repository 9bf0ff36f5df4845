package compiler

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eargollo/ppfinder/internal/model"
	"github.com/eargollo/ppfinder/internal/mods"
	"github.com/eargollo/ppfinder/internal/osu"
	"github.com/eargollo/ppfinder/internal/osu/osutest"
	"github.com/eargollo/ppfinder/internal/pp"
)

// fakeCalc returns fixed values and fails on demand.
type fakeCalc struct {
	failDifficulty mods.Mask
	failPerf       func(m mods.Mask, acc float64) bool
	nanPerf        mods.Mask
}

func (f fakeCalc) Difficulty(_ *osu.Beatmap, m mods.Mask) (pp.Attributes, error) {
	if f.failDifficulty != 0 && m == f.failDifficulty {
		return pp.Attributes{}, errors.New("difficulty failed")
	}
	return pp.Attributes{Total: 5.556, Mods: m}, nil
}

func (f fakeCalc) Performance(a pp.Attributes, acc float64) (float64, error) {
	if f.failPerf != nil && f.failPerf(a.Mods, acc) {
		return 0, errors.New("performance failed")
	}
	if f.nanPerf != 0 && a.Mods == f.nanPerf {
		return math.NaN(), nil
	}
	return acc * 3.14159, nil
}

func TestCompileDefaultCalculator(t *testing.T) {
	rec, err := New().Compile(context.Background(), osutest.Default(77).Bytes())
	require.NoError(t, err)

	assert.Equal(t, int64(77), rec.Beatmap.BeatmapID)
	assert.Equal(t, int64(1077), rec.Beatmap.BeatmapSetID)
	assert.Equal(t, "Song 77", rec.Beatmap.Title)
	assert.Equal(t, 200, rec.Beatmap.MaxCombo)
	require.Len(t, rec.Variants, len(mods.Combinations()))

	for _, v := range rec.Variants {
		require.Len(t, v.Points, len(model.ReferenceAccuracies))
		for i, p := range v.Points {
			assert.Equal(t, model.ReferenceAccuracies[i], p.Accuracy)
			assert.Equal(t, v.ModBitmask, p.ModBitmask)
			assert.GreaterOrEqual(t, p.PP, 0.0)
		}
	}
}

func TestCompileKeepsCombinationOrder(t *testing.T) {
	combos := mods.Combinations()
	rec, err := New(WithCalculator(fakeCalc{}), WithWorkers(3)).
		Compile(context.Background(), osutest.Default(1).Bytes())
	require.NoError(t, err)
	require.Len(t, rec.Variants, len(combos))
	for i, v := range rec.Variants {
		assert.Equal(t, uint32(combos[i]), v.ModBitmask)
	}
}

func TestCompileBiasAndRounding(t *testing.T) {
	m := osutest.Default(1)
	m.AR, m.CS, m.OD, m.HP = 9, 4, 8, 6
	c := New(
		WithCalculator(fakeCalc{}),
		WithCombinations([]mods.Mask{0, mods.HardRock, mods.Easy | mods.DoubleTime, mods.HalfTime}),
	)
	rec, err := c.Compile(context.Background(), m.Bytes())
	require.NoError(t, err)
	require.Len(t, rec.Variants, 4)

	nomod := rec.Variants[0]
	assert.Equal(t, 9.0, nomod.AR)
	assert.Equal(t, 5.56, nomod.Stars)
	assert.Equal(t, 30, nomod.Duration) // 29.85s
	assert.Equal(t, 200, nomod.BPM)
	assert.Equal(t, 314.16, nomod.Points[0].PP)

	hr := rec.Variants[1]
	assert.Equal(t, 12.6, hr.AR)
	assert.Equal(t, 5.2, hr.CS)
	assert.Equal(t, 11.2, hr.OD)
	assert.Equal(t, 8.4, hr.HP)

	ezdt := rec.Variants[2]
	assert.Equal(t, 4.5, ezdt.AR)
	assert.Equal(t, 2.0, ezdt.CS)
	assert.Equal(t, 20, ezdt.Duration)
	assert.Equal(t, 300, ezdt.BPM)

	ht := rec.Variants[3]
	assert.Equal(t, 40, ht.Duration)
	assert.Equal(t, 150, ht.BPM)
}

func TestCompileDropsWholeCombinationOnPerformanceFailure(t *testing.T) {
	calc := fakeCalc{failPerf: func(m mods.Mask, acc float64) bool {
		return m == mods.Hidden && acc == 95
	}}
	rec, err := New(WithCalculator(calc)).Compile(context.Background(), osutest.Default(1).Bytes())
	require.NoError(t, err)
	assert.Len(t, rec.Variants, len(mods.Combinations())-1)
	for _, v := range rec.Variants {
		assert.NotEqual(t, uint32(mods.Hidden), v.ModBitmask)
		assert.Len(t, v.Points, 4)
	}
}

func TestCompileDropsInvalidResults(t *testing.T) {
	calc := fakeCalc{failDifficulty: mods.HardRock, nanPerf: mods.Flashlight}
	rec, err := New(WithCalculator(calc)).Compile(context.Background(), osutest.Default(1).Bytes())
	require.NoError(t, err)
	assert.Len(t, rec.Variants, len(mods.Combinations())-2)
}

func TestCompileKeepsIdentityWithoutVariants(t *testing.T) {
	calc := fakeCalc{failPerf: func(mods.Mask, float64) bool { return true }}
	rec, err := New(WithCalculator(calc)).Compile(context.Background(), osutest.Default(5).Bytes())
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.Beatmap.BeatmapID)
	assert.Empty(t, rec.Variants)
}

func TestCompileRejects(t *testing.T) {
	noID := osutest.Default(1)
	noID.BeatmapID = ""
	badSet := osutest.Default(1)
	badSet.BeatmapSetID = "12a"
	taiko := osutest.Default(1)
	taiko.Mode = 1
	single := osutest.Default(1)
	single.Objects = 1
	noTiming := osutest.Default(1)
	noTiming.NoTiming = true

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"missing beatmap id", noID.Bytes(), ErrMissingID},
		{"non-numeric set id", badSet.Bytes(), ErrMissingID},
		{"other mode", taiko.Bytes(), ErrUnsupportedMode},
		{"one hit object", single.Bytes(), nil},
		{"no timing points", noTiming.Bytes(), nil},
		{"garbage", []byte("BeatmapID:1\nBeatmapSetID:2\n"), nil},
	}
	c := New(WithCalculator(fakeCalc{}))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Compile(context.Background(), tt.data)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestCompileCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(WithCalculator(fakeCalc{})).Compile(ctx, osutest.Default(1).Bytes())
	require.ErrorIs(t, err, context.Canceled)
}
