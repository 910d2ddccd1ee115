// Package decompose extracts the dominant spatial patterns (empirical
// orthogonal functions) of a normalized observation matrix.
//
// The observation matrix has one row per pixel and one column per frame. Every
// method returns spatial maps of the original frame size, ordered by
// decreasing significance.
package decompose

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"thermopct/internal/models"
	"thermopct/pkg/pcterrors"
)

// Method selects the decomposition algorithm.
type Method int

const (
	// SVD takes the first left singular vectors of the observation matrix.
	SVD Method = iota
	// PCA projects pixels onto the top eigenvectors of the frame covariance.
	PCA
	// PPT computes per-pixel phase images of the first two harmonics.
	PPT
)

// components is the number of maps every method returns.
const components = 2

// pptMinFrames is the shortest series with a second harmonic below Nyquist.
const pptMinFrames = 4

func (m Method) String() string {
	switch m {
	case SVD:
		return "svd"
	case PCA:
		return "pca"
	case PPT:
		return "ppt"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod maps "svd" (or "pct"), "pca" or "ppt" to a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "svd", "pct":
		return SVD, nil
	case "pca":
		return PCA, nil
	case "ppt":
		return PPT, nil
	default:
		return SVD, fmt.Errorf("unknown decomposition method %q (want svd, pca or ppt)", s)
	}
}

// Result holds the spatial maps produced by a decomposition.
type Result struct {
	Method Method

	// Components are height x width maps in decreasing order of significance
	Components []models.Map

	// Values are the singular values (SVD), eigenvalues (PCA) or mean
	// harmonic amplitudes (PPT), all in decreasing order for SVD and PCA
	Values []float64

	// Explained is the fraction of total variance carried by each entry of
	// Values. Empty for PPT.
	Explained []float64
}

// EOF1 returns the most significant spatial map.
func (r *Result) EOF1() *models.Map {
	return &r.Components[0]
}

// EOF2 returns the second most significant spatial map.
func (r *Result) EOF2() *models.Map {
	return &r.Components[1]
}

// Decompose factorizes the (height*width x frames) observation matrix obs.
func Decompose(obs mat.Matrix, height, width int, m Method) (*Result, error) {
	if err := validate(obs, height, width, m); err != nil {
		return nil, pcterrors.Decomposition("decompose", m.String(), err)
	}

	var (
		res *Result
		err error
	)
	switch m {
	case SVD:
		res, err = decomposeSVD(obs, height, width)
	case PCA:
		res, err = decomposePCA(obs, height, width)
	case PPT:
		res, err = decomposePPT(obs, height, width)
	default:
		err = errors.Errorf("unknown method %v", m)
	}
	if err != nil {
		return nil, pcterrors.Decomposition("decompose", m.String(), err)
	}
	res.Method = m
	return res, nil
}

func validate(obs mat.Matrix, height, width int, m Method) error {
	pixels, frames := obs.Dims()
	if height <= 0 || width <= 0 || pixels != height*width {
		return errors.Errorf("observation has %d rows, expected %dx%d=%d", pixels, height, width, height*width)
	}
	if pixels < 2 {
		return errors.Errorf("need at least 2 pixels, got %d", pixels)
	}
	if frames < 2 {
		return errors.Errorf("need at least 2 frames, got %d", frames)
	}
	if m == PPT && frames < pptMinFrames {
		return errors.Errorf("phase analysis needs at least %d frames, got %d", pptMinFrames, frames)
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < pixels; i++ {
		for j := 0; j < frames; j++ {
			v := obs.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Errorf("non-finite value %v at pixel %d, frame %d", v, i, j)
			}
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}
	if lo == hi {
		return errors.Errorf("observation matrix is constant (%g)", lo)
	}
	return nil
}

func decomposeSVD(obs mat.Matrix, height, width int) (*Result, error) {
	var svd mat.SVD
	if ok := svd.Factorize(obs, mat.SVDThin); !ok {
		return nil, errors.New("singular value decomposition did not converge")
	}

	var u mat.Dense
	svd.UTo(&u)
	values := svd.Values(nil)

	res := &Result{
		Values:    values,
		Explained: explained(values, true),
	}
	for k := 0; k < components; k++ {
		res.Components = append(res.Components, columnMap(&u, k, height, width))
	}
	return res, nil
}

// decomposePCA treats pixels as observations and frames as variables. The
// returned maps are the pixel scores on the top two principal axes.
func decomposePCA(obs mat.Matrix, height, width int) (*Result, error) {
	_, frames := obs.Dims()

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, obs, nil)

	var eig mat.EigenSym
	if ok := eig.Factorize(&cov, true); !ok {
		return nil, errors.New("eigendecomposition of the frame covariance failed")
	}
	ascending := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// EigenSym returns eigenvalues in ascending order
	order := make([]int, frames)
	values := make([]float64, frames)
	for i := range order {
		order[i] = frames - 1 - i
		values[i] = ascending[order[i]]
	}

	centred := mat.DenseCopyOf(obs)
	for j := 0; j < frames; j++ {
		col := mat.Col(nil, j, centred)
		mean := stat.Mean(col, nil)
		floats.AddConst(-mean, col)
		centred.SetCol(j, col)
	}

	axes := mat.NewDense(frames, components, nil)
	for k := 0; k < components; k++ {
		axes.SetCol(k, mat.Col(nil, order[k], &vecs))
	}
	var scores mat.Dense
	scores.Mul(centred, axes)

	res := &Result{
		Values:    values,
		Explained: explained(values, false),
	}
	for k := 0; k < components; k++ {
		res.Components = append(res.Components, columnMap(&scores, k, height, width))
	}
	return res, nil
}

// decomposePPT transforms every pixel's time series and keeps the phase of
// harmonics 1 and 2.
func decomposePPT(obs mat.Matrix, height, width int) (*Result, error) {
	pixels, frames := obs.Dims()
	fft := fourier.NewFFT(frames)

	res := &Result{Values: make([]float64, components)}
	for k := 0; k < components; k++ {
		res.Components = append(res.Components, *models.NewMap(width, height))
	}

	series := make([]float64, frames)
	var coeff []complex128
	for p := 0; p < pixels; p++ {
		mat.Row(series, p, obs)
		coeff = fft.Coefficients(coeff, series)
		for k := 0; k < components; k++ {
			c := coeff[k+1]
			res.Components[k].Data[p] = cmplx.Phase(c)
			res.Values[k] += cmplx.Abs(c)
		}
	}
	for k := range res.Values {
		res.Values[k] /= float64(pixels)
	}
	return res, nil
}

// explained returns each value's share of the total. Singular values are
// squared first so that both methods report a variance fraction.
func explained(values []float64, squared bool) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if squared {
			v *= v
		}
		out[i] = math.Max(v, 0)
	}
	total := floats.Sum(out)
	if total == 0 {
		return out
	}
	floats.Scale(1/total, out)
	return out
}

func columnMap(m mat.Matrix, col, height, width int) models.Map {
	return models.Map{
		Data:   mat.Col(nil, col, m),
		Width:  width,
		Height: height,
	}
}
