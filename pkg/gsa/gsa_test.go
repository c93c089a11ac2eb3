// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gsa

import (
	"math"
	"slices"
	"testing"

	"github.com/gomlx/gsa/pkg/core/linalg"
	"github.com/gomlx/gsa/pkg/core/shapes"
	"github.com/gomlx/gsa/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var halfLog2Pi = 0.5 * math.Log(2*math.Pi)

func TestDiagonalReduction(t *testing.T) {
	mean := tensors.FromValue([]float64{0.5, -1, 2})
	sigma := []float64{0.3, 1.5, 2}
	ordinate := tensors.FromValue([]float64{1, 0, -0.5})
	ld := must.M1(LogPDF(mean, tensors.FromValue(sigma), true, ordinate, 0))
	require.True(t, ld.Exponent.IsScalar(), "exponent shape %s", ld.Exponent.Shape())
	assert.Equal(t, sigma, ld.CholeskyDiagonal.Value())

	var want float64
	for ii, s := range sigma {
		normal := distuv.Normal{Mu: mean.At(ii), Sigma: s}
		want += normal.LogProb(ordinate.At(ii)) + halfLog2Pi
	}
	got := ld.Exponent.ToScalar() - math.Log(must.M1(Det(ld.CholeskyDiagonal)).ToScalar())
	assert.InDelta(t, want, got, 1e-12)

	// The diagonal and the dense forms agree.
	denseCho := linalg.MatrixDiag(tensors.FromValue(sigma))
	ldDense := must.M1(LogPDF(mean, denseCho, false, ordinate, 0))
	assert.InDelta(t, ld.Exponent.ToScalar(), ldDense.Exponent.ToScalar(), 1e-12)
	assert.True(t, ldDense.CholeskyDiagonal.InDelta(ld.CholeskyDiagonal, 1e-12))
}

func TestPDFConsistency(t *testing.T) {
	sigmaValues := []float64{
		2, 0.3, 0.1,
		0.3, 1, -0.2,
		0.1, -0.2, 0.5,
	}
	sigma := tensors.FromFlatDataAndDimensions(sigmaValues, 3, 3)
	cho := linalg.Cholesky(sigma)
	mean := tensors.FromValue([]float64{0.1, 0.2, 0.3})
	ordinates := [][]float64{{0.1, 0.2, 0.3}, {1, -1, 0.5}, {-2, 0, 3}}

	var sigmaInv mat.Dense
	require.NoError(t, sigmaInv.Inverse(mat.NewDense(3, 3, sigmaValues)))
	det := must.M1(Det(linalg.DiagPart(cho))).ToScalar()
	assert.InDelta(t, math.Sqrt(mat.Det(mat.NewDense(3, 3, sigmaValues))), det, 1e-12)

	for _, x := range ordinates {
		ld := must.M1(LogPDF(mean, cho, false, tensors.FromValue(x), 2))
		pdf := must.M1(ld.PDF()).ToScalar()

		d := mat.NewVecDense(3, nil)
		for ii := range x {
			d.SetVec(ii, x[ii]-mean.At(ii))
		}
		var sd mat.VecDense
		sd.MulVec(&sigmaInv, d)
		want := math.Exp(-0.5*mat.Dot(d, &sd)) / det
		assert.InDelta(t, want, pdf, 1e-10, "ordinate %v", x)

		pdf2 := must.M1(PDF(ld.Exponent, ld.CholeskyDiagonal)).ToScalar()
		assert.Equal(t, pdf, pdf2)
	}

	// A nil ordinate means 0.
	ld := must.M1(LogPDF(mean, cho, false, nil, 2))
	ldZero := must.M1(LogPDF(mean, cho, false, tensors.FromValue([]float64{0, 0, 0}), 2))
	assert.InDelta(t, ldZero.Exponent.ToScalar(), ld.Exponent.ToScalar(), 1e-12)
}

func TestBroadcastShapes(t *testing.T) {
	const M, L = 3, 2
	mean := tensors.FromFlatDataAndDimensions([]float64{0, 1, 2, 3, 4, 5}, M, L)
	ordinate := tensors.FromFlatDataAndDimensions([]float64{1, 1, 2, 2, 3, 3}, M, L)
	choMatrix := tensors.FromValue([][]float64{{1, 0}, {0.5, 2}})

	testCases := []struct {
		name            string
		choDims         []int
		diagonal        bool
		lBunch          int
		wantExponent    []int
		wantChoDiagonal []int
	}{
		{"dense_matrix", []int{L, L}, false, 2, []int{M, M}, []int{L}},
		{"dense_batch", []int{M, L, L}, false, 2, []int{M, M}, []int{M, L}},
		{"dense_lbunch2", []int{M, 1, L, L}, false, 2, []int{M, M, M}, []int{M, 1, 1, L}},
		{"dense_lbunch3", []int{M, 1, L, L}, false, 3, []int{M, M}, []int{M, 1, L}},
		{"diagonal_vector", []int{L}, true, 2, []int{M, M}, []int{L}},
		{"diagonal_lbunch2", []int{M, 1, L}, true, 2, []int{M, M, M}, []int{M, 1, 1, L}},
		{"diagonal_lbunch3", []int{M, 1, L}, true, 3, []int{M, M}, []int{M, 1, L}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var cho *tensors.Tensor
			if tc.diagonal {
				cho = tensors.BroadcastTo(tensors.FromValue([]float64{1, 2}), tc.choDims...)
			} else {
				cho = tensors.BroadcastTo(choMatrix, tc.choDims...)
			}
			ld, err := LogPDF(mean, cho, tc.diagonal, ordinate, tc.lBunch)
			require.NoError(t, err)
			assert.Equal(t, tc.wantExponent, ld.Exponent.Shape().Dimensions)
			assert.Equal(t, tc.wantChoDiagonal, ld.CholeskyDiagonal.Shape().Dimensions)

			// Every ordinate against every mean: ordinate[i] - mean[i] is never 0, so the exponents of
			// the diagonal of the last 2 axes are negative.
			flat := ld.Exponent.CopyFlatData()
			for ii := range M {
				assert.Less(t, flat[ii*M+ii], 0.0)
			}
		})
	}
}

// referenceExponent returns -0.5·|C⁻¹(x-mu)|², where factor holds the lower triangular C in row-major order.
func referenceExponent(t *testing.T, factor, x, mu []float64) float64 {
	l := len(x)
	tri := mat.NewTriDense(l, mat.Lower, slices.Clone(factor))
	d := mat.NewVecDense(l, nil)
	for ii := range l {
		d.SetVec(ii, x[ii]-mu[ii])
	}
	var z mat.VecDense
	require.NoError(t, z.SolveVec(tri, d))
	return -0.5 * mat.Dot(&z, &z)
}

func TestBroadcastValues(t *testing.T) {
	const M, L = 3, 2
	meanValues := []float64{0, 1, 2, 3, 4, 5}
	ordinateValues := []float64{1, 1, 2, -2, 3, 0.5}
	mean := tensors.FromFlatDataAndDimensions(meanValues, M, L)
	ordinate := tensors.FromFlatDataAndDimensions(ordinateValues, M, L)
	row := func(values []float64, ii int) []float64 { return values[ii*L : (ii+1)*L] }

	// A different factor for each batch position k.
	denseFactors := make([][]float64, M)
	diagFactors := make([][]float64, M)
	var denseFlat, diagFlat []float64
	for k := range M {
		diag := []float64{1 + float64(k), 0.5 + 0.75*float64(k)}
		diagFactors[k] = []float64{diag[0], 0, 0, diag[1]}
		denseFactors[k] = []float64{diag[0], 0, 0.5*float64(k) - 0.3, diag[1]}
		denseFlat = append(denseFlat, denseFactors[k]...)
		diagFlat = append(diagFlat, diag...)
	}

	// batchIndices maps an index of the exponent to the factor k, the ordinate i and the mean j it uses.
	type batchIndices func(idx []int) (k, i, j int)
	lastAxis := func(idx []int) (int, int, int) { return idx[1], idx[0], idx[1] }
	leadingAxis := func(idx []int) (int, int, int) { return idx[0], idx[1], idx[2] }
	ordinateAxis := func(idx []int) (int, int, int) { return idx[0], idx[0], idx[1] }

	testCases := []struct {
		name         string
		choBatch     []int
		diagonal     bool
		lBunch       int
		wantExponent []int
		indices      batchIndices
	}{
		{"dense_batch_lbunch2", []int{M}, false, 2, []int{M, M}, lastAxis},
		{"dense_batch_lbunch3", []int{M}, false, 3, []int{M, M}, lastAxis},
		{"dense_lbunch2", []int{M, 1}, false, 2, []int{M, M, M}, leadingAxis},
		{"dense_lbunch3", []int{M, 1}, false, 3, []int{M, M}, ordinateAxis},
		{"diagonal_batch_lbunch2", []int{M}, true, 2, []int{M, M}, lastAxis},
		{"diagonal_batch_lbunch3", []int{M}, true, 3, []int{M, M}, lastAxis},
		{"diagonal_lbunch2", []int{M, 1}, true, 2, []int{M, M, M}, leadingAxis},
		{"diagonal_lbunch3", []int{M, 1}, true, 3, []int{M, M}, ordinateAxis},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var cho *tensors.Tensor
			factors := denseFactors
			if tc.diagonal {
				cho = tensors.FromFlatDataAndDimensions(diagFlat, append(slices.Clone(tc.choBatch), L)...)
				factors = diagFactors
			} else {
				cho = tensors.FromFlatDataAndDimensions(denseFlat, append(slices.Clone(tc.choBatch), L, L)...)
			}
			ld := must.M1(LogPDF(mean, cho, tc.diagonal, ordinate, tc.lBunch))
			require.Equal(t, tc.wantExponent, ld.Exponent.Shape().Dimensions)
			pdf := must.M1(ld.PDF())
			require.Equal(t, tc.wantExponent, pdf.Shape().Dimensions)

			for _, idx := range ld.Exponent.Shape().Iter() {
				k, i, j := tc.indices(idx)
				want := referenceExponent(t, factors[k], row(ordinateValues, i), row(meanValues, j))
				assert.InDelta(t, want, ld.Exponent.At(idx...), 1e-12, "exponent at %v", idx)
				det := factors[k][0] * factors[k][L+1]
				assert.InDelta(t, math.Exp(want)/det, pdf.At(idx...), 1e-12, "pdf at %v", idx)
			}
		})
	}
}

func TestLogPDFErrors(t *testing.T) {
	mean := tensors.FromValue([]float64{0, 0})
	_, err := LogPDF(mean, tensors.FromValue([]float64{1, 1, 1}), true, tensors.FromValue([]float64{1, 1}), 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shapes.ErrShape))

	_, err = LogPDF(mean, tensors.FromValue([]float64{1, 1}), false, nil, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shapes.ErrShape), "dense variance requires a matrix: %+v", err)

	_, err = LogPDF(mean, tensors.FromValue([][]float64{{0, 0}, {1, 1}}), false, nil, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, linalg.ErrSingular))
}

func TestReductions(t *testing.T) {
	x := tensors.FromValue([][]float64{{1, 2}, {3, 4}})
	assert.Equal(t, 2.5, must.M1(Mean(x)).ToScalar())
	assert.Equal(t, 30.0, must.M1(SumOfSquares(x, "")).ToScalar())
	assert.Equal(t, 30.0, must.M1(SumOfSquares(x, "ij, ij")).ToScalar())
	assert.Equal(t, 30.0, must.M1(SumOfSquares(x, "ij")).ToScalar())
	assert.Equal(t, []float64{10, 20}, must.M1(SumOfSquares(x, "ij,ij->j")).Value())
	assert.Equal(t, []float64{5, 25}, must.M1(SumOfSquares(x, "ij->i")).Value())
	assert.Equal(t, 7.5, must.M1(MeanSquare(x, "")).ToScalar())
	assert.InDelta(t, math.Sqrt(7.5), must.M1(RootMeanSquare(x, "")).ToScalar(), 1e-12)

	// Rank 4, with the default GSA equation.
	y := tensors.FromScalarAndDimensions(2.0, 2, 1, 3, 2)
	assert.Equal(t, 48.0, must.M1(SumOfSquares(y, "lijk, lijk")).ToScalar())
	assert.Equal(t, 4.0, must.M1(MeanSquare(y, "lijk")).ToScalar())
	assert.Equal(t, 2.0, must.M1(RootMeanSquare(y, "lijk,lijk")).ToScalar())

	assert.Equal(t, 0.0, must.M1(SymCheck(tensors.FromValue([][]float64{{1, 2}, {2, 1}}), 1, 0)).ToScalar())
	assert.Equal(t, 2.0, must.M1(SymCheck(x, 1, 0)).ToScalar())

	det := must.M1(Det(x))
	assert.Equal(t, []float64{2, 12}, det.Value())

	_, err := SumOfSquares(x, "ijk")
	require.Error(t, err)
	_, err = SymCheck(x, 0)
	require.Error(t, err)
}
