package normalize

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"thermopct/internal/models"
)

// randomObservation builds a pixels x frames matrix of positive intensities
// with one constant pixel row at index 0
func randomObservation(pixels, frames int) *mat.Dense {
	rng := rand.New(rand.NewSource(7))
	obs := mat.NewDense(pixels, frames, nil)
	for i := 0; i < pixels; i++ {
		base := 20 + rng.Float64()*200
		for j := 0; j < frames; j++ {
			if i == 0 {
				obs.Set(i, j, 128)
				continue
			}
			obs.Set(i, j, base+rng.NormFloat64()*(5+float64(i)))
		}
	}
	return obs
}

func TestStandardizeGivesZeroMeanUnitStd(t *testing.T) {
	obs := randomObservation(12, 40)

	for _, method := range []Method{Standardize, RowWiseStandardize} {
		t.Run(method.String(), func(t *testing.T) {
			out, err := Apply(obs, Policy{Method: method})
			require.NoError(t, err)

			pixels, _ := out.Dims()
			for i := 1; i < pixels; i++ {
				mean, std := stat.PopMeanStdDev(out.RawRowView(i), nil)
				assert.InDelta(t, 0, mean, 1e-9, "row %d mean", i)
				assert.InDelta(t, 1, std, 1e-5, "row %d std", i)
			}

			// The constant pixel stays finite and becomes exactly zero
			for _, v := range out.RawRowView(0) {
				assert.Equal(t, 0.0, v)
			}
		})
	}
}

func TestStandardizeMethodsAgree(t *testing.T) {
	obs := randomObservation(8, 16)
	a, err := Apply(obs, DefaultPolicy())
	require.NoError(t, err)
	b, err := Apply(obs, Policy{Method: RowWiseStandardize, Epsilon: DefaultEpsilon})
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(a, b, 1e-12))
}

func TestApplyDoesNotModifyInput(t *testing.T) {
	obs := randomObservation(4, 6)
	before := mat.DenseCopyOf(obs)
	_, err := Apply(obs, DefaultPolicy())
	require.NoError(t, err)
	assert.True(t, mat.Equal(before, obs))

	out, err := Apply(obs, Policy{Method: None})
	require.NoError(t, err)
	assert.True(t, mat.Equal(obs, out))
}

func TestApplyInPlaceMatchesApply(t *testing.T) {
	for _, method := range []Method{None, Standardize, RowWiseStandardize} {
		t.Run(method.String(), func(t *testing.T) {
			obs := randomObservation(4, 6)
			want, err := Apply(obs, Policy{Method: method})
			require.NoError(t, err)

			require.NoError(t, ApplyInPlace(obs, Policy{Method: method}))
			assert.True(t, mat.EqualApprox(want, obs, 1e-12))
		})
	}

	obs := randomObservation(3, 5)
	before := mat.DenseCopyOf(obs)
	assert.Error(t, ApplyInPlace(obs, Policy{Method: Standardize, Epsilon: -1}))
	assert.Error(t, ApplyInPlace(obs, Policy{Method: Method(42)}))
	assert.True(t, mat.Equal(before, obs))
}

func TestStrictRowWiseProducesNaNForConstantPixel(t *testing.T) {
	obs := randomObservation(5, 10)
	out, err := Apply(obs, Policy{Method: RowWiseStandardize, Strict: true})
	require.NoError(t, err)

	// Division by an exact zero std is preserved in strict mode; the
	// decomposer is responsible for rejecting the result.
	for _, v := range out.RawRowView(0) {
		assert.True(t, math.IsNaN(v))
	}
	for _, v := range out.RawRowView(1) {
		assert.False(t, math.IsNaN(v))
	}
}

func TestApplyRejectsBadPolicy(t *testing.T) {
	obs := randomObservation(2, 3)
	_, err := Apply(obs, Policy{Method: Standardize, Epsilon: -1})
	assert.Error(t, err)
	_, err = Apply(obs, Policy{Method: Method(9)})
	assert.Error(t, err)
}

func TestParseMethod(t *testing.T) {
	tests := map[string]Method{
		"standardize":          Standardize,
		"":                     Standardize,
		"row-wise standardize": RowWiseStandardize,
		"Row-Wise":             RowWiseStandardize,
		"none":                 None,
	}
	for in, want := range tests {
		got, err := ParseMethod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMethod("zscore")
	assert.Error(t, err)
}

func TestRescale(t *testing.T) {
	out := Rescale([]float64{-1, 0, 1})
	assert.Equal(t, []float64{0, 127.5, 255}, out)

	// Constant inputs are clamped, not stretched
	assert.Equal(t, []float64{200, 200}, Rescale([]float64{200, 200}))
	assert.Equal(t, []float64{255, 255}, Rescale([]float64{300, 300}))
	assert.Empty(t, Rescale(nil))
}

func TestToGray8(t *testing.T) {
	m := &models.Map{Data: []float64{0, 0.5, 1, 2}, Width: 2, Height: 2}
	img := ToGray8(m)
	assert.Equal(t, []uint8{0, 63, 127, 255}, img.Pix)

	scaled := RescaleMap(m)
	assert.Equal(t, 2, scaled.Width)
	assert.InDelta(t, 63.75, scaled.Data[1], 1e-12)
}
