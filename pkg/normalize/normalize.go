// Package normalize standardizes pixel time series before decomposition and
// rescales spatial maps for display.
package normalize

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultEpsilon guards the standardization denominator against constant
// pixels.
const DefaultEpsilon = 1e-5

// Method selects how an observation matrix is normalized.
type Method int

const (
	// None leaves the observation matrix untouched.
	None Method = iota
	// Standardize centres and scales every pixel row in one vectorized pass.
	Standardize
	// RowWiseStandardize applies the same formula one pixel row at a time.
	RowWiseStandardize
)

func (m Method) String() string {
	switch m {
	case None:
		return "none"
	case Standardize:
		return "standardize"
	case RowWiseStandardize:
		return "row-wise standardize"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod maps "none", "standardize" or "row-wise standardize" to a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "raw":
		return None, nil
	case "", "standardize":
		return Standardize, nil
	case "row-wise standardize", "row-wise", "rowwise":
		return RowWiseStandardize, nil
	default:
		return None, fmt.Errorf("unknown normalization method %q", s)
	}
}

// Policy configures normalization.
//
// For every pixel row the output is (value - mean) / (std + Epsilon), with the
// mean and population standard deviation taken across frames. Epsilon is
// always applied, and falls back to DefaultEpsilon when zero. Strict drops the
// guard entirely: a constant pixel then divides 0 by 0 and yields NaN, which
// the decomposer rejects.
type Policy struct {
	Method  Method
	Epsilon float64
	Strict  bool
}

// DefaultPolicy standardizes with the default epsilon.
func DefaultPolicy() Policy {
	return Policy{Method: Standardize, Epsilon: DefaultEpsilon}
}

func (p Policy) epsilon() float64 {
	if p.Strict {
		return 0
	}
	if p.Epsilon == 0 {
		return DefaultEpsilon
	}
	return p.Epsilon
}

// Apply returns a normalized copy of the (pixels x frames) observation matrix.
func Apply(obs mat.Matrix, p Policy) (*mat.Dense, error) {
	out := mat.DenseCopyOf(obs)
	if err := ApplyInPlace(out, p); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyInPlace normalizes a in place. On error a is left unchanged.
func ApplyInPlace(a *mat.Dense, p Policy) error {
	if p.Epsilon < 0 {
		return fmt.Errorf("normalization epsilon must be non-negative, got %g", p.Epsilon)
	}

	switch p.Method {
	case None:
	case Standardize:
		standardize(a, p.epsilon())
	case RowWiseStandardize:
		standardizeRows(a, p.epsilon())
	default:
		return fmt.Errorf("unknown normalization method %v", p.Method)
	}
	return nil
}

// standardize computes every pixel's statistics first, then rescales the
// whole matrix in one pass.
func standardize(a *mat.Dense, eps float64) {
	pixels, _ := a.Dims()
	means := make([]float64, pixels)
	scales := make([]float64, pixels)
	for i := 0; i < pixels; i++ {
		mean, std := stat.PopMeanStdDev(a.RawRowView(i), nil)
		means[i] = mean
		scales[i] = std + eps
	}

	a.Apply(func(i, j int, v float64) float64 {
		return (v - means[i]) / scales[i]
	}, a)
}

// standardizeRows rescales each pixel row independently, in place.
func standardizeRows(a *mat.Dense, eps float64) {
	pixels, _ := a.Dims()
	for i := 0; i < pixels; i++ {
		row := a.RawRowView(i)
		mean, std := stat.PopMeanStdDev(row, nil)
		floats.AddConst(-mean, row)
		floats.Scale(1/(std+eps), row)
	}
}
