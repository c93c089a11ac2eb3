// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package likelihoods

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gsa/pkg/core/linalg"
	"github.com/gomlx/gsa/pkg/core/shapes"
	"github.com/gomlx/gsa/pkg/core/tensors"
	"github.com/gomlx/gsa/pkg/ml/variance"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

var (
	denseSigma = [][]float64{{1, 0.3, -0.2}, {0.3, 0.8, 0.1}, {-0.2, 0.1, 0.5}}
	diagSigma  = []float64{0.5, 2, 1.5}
)

// fullCovariance returns Σ ⊗ I_n as a gonum symmetric matrix.
func fullCovariance(t *testing.T, g *MOGaussian, n int) *mat.SymDense {
	kron := must.M1(g.Variance().ValueTimesEye(n))
	size := kron.Dim(0)
	return mat.NewSymDense(size, kron.CopyFlatData())
}

func TestSplitAxis(t *testing.T) {
	g := must.M1(NewMOGaussian(denseSigma))
	assert.Equal(t, 3, g.LatentDim())
	assert.Equal(t, 3, g.ObservationDim())
	assert.Equal(t, VarianceName, g.Variance().Name())

	data := tensors.FromFlatDataAndDimensions([]float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, 12)
	l, n, err := g.SplitAxisShape(data)
	require.NoError(t, err)
	assert.Equal(t, 3, l)
	assert.Equal(t, 4, n)

	// Split and merge round trip: output l of datapoint i is at l*N + i.
	split := tensors.Reshape(data, l, n)
	assert.Equal(t, 6.0, split.At(1, 2))
	assert.True(t, tensors.Reshape(split, l*n).Equal(data))

	_, err = g.DatapointCount(tensors.FromValue([]float64{1, 2, 3, 4}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, shapes.ErrShape))
	_, _, err = g.SplitAxisShape(tensors.FromScalar(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, shapes.ErrShape))
}

func TestLogProb(t *testing.T) {
	const n = 4
	F := tensors.FromFlatDataAndDimensions([]float64{0.1, 0.2, -0.3, 0.5, 1, 0, 0.7, -1, 0.2, 0.4, 0.6, 0.8}, 3*n)
	Y := tensors.FromFlatDataAndDimensions([]float64{0.3, 0.1, -0.1, 0.2, 0.5, 0.1, 0.9, -0.5, 0, 1, 0.3, 0.7}, 3*n)
	for _, sigma := range []any{denseSigma, diagSigma} {
		g := must.M1(NewMOGaussian(sigma))
		logProb := must.M1(g.LogProb(F, Y))
		require.True(t, logProb.IsScalar())

		normal, ok := distmv.NewNormal(F.CopyFlatData(), fullCovariance(t, g, n), nil)
		require.True(t, ok)
		want := normal.LogProb(Y.CopyFlatData())
		assert.InDelta(t, want, logProb.ToScalar(), 1e-9, "sigma=%v", sigma)

		// A batch axis of 1 is accepted.
		logProbRow := must.M1(g.LogProb(tensors.Reshape(F, 1, 3*n), tensors.Reshape(Y, 1, 3*n)))
		assert.InDelta(t, want, logProbRow.ToScalar(), 1e-9)
	}

	g := must.M1(NewMOGaussian(denseSigma))
	_, err := g.LogProb(F, tensors.FromValue([]float64{1, 2}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, shapes.ErrShape))
}

// randomCovariance returns A·Aᵀ + eps·I, for a random A of dimension l.
func randomCovariance(rng *rand.Rand, l int, eps float64) [][]float64 {
	a := mat.NewDense(l, l, nil)
	for row := range l {
		for col := range l {
			a.Set(row, col, rng.NormFloat64())
		}
	}
	var sym mat.SymDense
	sym.SymOuterK(1, a)
	sigma := make([][]float64, l)
	for row := range l {
		sigma[row] = make([]float64, l)
		for col := range l {
			sigma[row][col] = sym.At(row, col)
		}
		sigma[row][row] += eps
	}
	return sigma
}

func TestLogProbRandomCovariance(t *testing.T) {
	const n = 3
	rng := rand.New(rand.NewPCG(42, 7))
	for _, l := range []int{1, 2, 4, 6} {
		for range 3 {
			sigma := randomCovariance(rng, l, 0.1)
			g := must.M1(NewMOGaussian(sigma))
			f := make([]float64, l*n)
			y := make([]float64, l*n)
			for ii := range f {
				f[ii] = rng.NormFloat64()
				y[ii] = f[ii] + 0.5*rng.NormFloat64()
			}
			logProb := must.M1(g.LogProb(tensors.FromValue(f), tensors.FromValue(y)))

			normal, ok := distmv.NewNormal(f, fullCovariance(t, g, n), nil)
			require.True(t, ok, "L=%d, sigma=%v", l, sigma)
			assert.InDelta(t, normal.LogProb(y), logProb.ToScalar(), 1e-8, "L=%d, sigma=%v", l, sigma)
		}
	}
}

func TestMultivariateNormal(t *testing.T) {
	chol := linalg.Cholesky(tensors.FromValue(denseSigma))
	x := tensors.FromValue([][]float64{{1, 0}, {0, 1}, {0.5, 0.5}})
	mu := tensors.FromValue([]float64{0, 0, 0})
	_, err := MultivariateNormal(x, mu, chol)
	require.Error(t, err, "mu of shape [3] broadcasts against the last axis of x")

	logDensity := must.M1(MultivariateNormal(x, tensors.FromValue([][]float64{{0}, {0}, {0}}), chol))
	require.NoError(t, logDensity.Shape().CheckDims(2))

	normal, ok := distmv.NewNormal([]float64{0, 0, 0}, mat.NewSymDense(3, []float64{
		1, 0.3, -0.2, 0.3, 0.8, 0.1, -0.2, 0.1, 0.5}), nil)
	require.True(t, ok)
	assert.InDelta(t, normal.LogProb([]float64{1, 0, 0.5}), logDensity.At(0), 1e-10)
	assert.InDelta(t, normal.LogProb([]float64{0, 1, 0.5}), logDensity.At(1), 1e-10)

	// One column given as a vector.
	single := must.M1(MultivariateNormal(tensors.FromValue([]float64{1, 0, 0.5}), mu, chol))
	assert.InDelta(t, normal.LogProb([]float64{1, 0, 0.5}), single.At(0), 1e-10)
}

func TestConditionalMoments(t *testing.T) {
	g := must.M1(NewMOGaussian(denseSigma))
	F := tensors.FromScalarAndDimensions(0.5, 6)
	mean := must.M1(g.ConditionalMean(F))
	assert.True(t, mean.Equal(F))

	condVar := must.M1(g.ConditionalVariance(F))
	require.NoError(t, condVar.Shape().CheckDims(6, 6))
	assert.True(t, condVar.Equal(must.M1(g.Variance().ValueTimesEye(2))))
	// Datapoints are independent: Cov(output 0 of datapoint 0, output 1 of datapoint 1) is 0.
	assert.Equal(t, 0.0, condVar.At(0, 3))
	assert.Equal(t, 0.3, condVar.At(0, 2))
}

func TestPredictMeanAndVar(t *testing.T) {
	g := must.M1(NewMOGaussian(denseSigma))
	const n = 5
	testCases := []struct {
		fvarDims []int
		mode     BroadcastMode
	}{
		{[]int{n, 3}, PerDatapoint},
		{[]int{n, 3, 3}, PerBatch},
		{[]int{2, n, 3, 3}, PerBatchPerSample},
	}
	Fmu := tensors.FromScalarAndDimensions(1.0, n, 3)
	for _, tc := range testCases {
		t.Run(tc.mode.String(), func(t *testing.T) {
			mode, err := BroadcastModeForRank(len(tc.fvarDims))
			require.NoError(t, err)
			assert.Equal(t, tc.mode, mode)

			Fvar := tensors.FromScalarAndDimensions(0.1, tc.fvarDims...)
			mean, predVar, err := g.PredictMeanAndVar(Fmu, Fvar)
			require.NoError(t, err)
			assert.True(t, mean.Equal(Fmu))
			assert.Equal(t, tc.fvarDims, predVar.Shape().Dimensions)
			if tc.mode == PerDatapoint {
				assert.InDelta(t, 0.1+0.8, predVar.At(2, 1), 1e-12)
			} else {
				indices := make([]int, len(tc.fvarDims))
				indices[len(indices)-2], indices[len(indices)-1] = 0, 1
				assert.InDelta(t, 0.1+0.3, predVar.At(indices...), 1e-12)
			}
		})
	}

	// Unsupported ranks.
	for _, rank := range []int{1, 5} {
		dims := make([]int, rank)
		for ii := range dims {
			dims[ii] = 3
		}
		_, _, err := g.PredictMeanAndVar(Fmu, tensors.FromScalarAndDimensions(0.1, dims...))
		require.Error(t, err, "rank %d", rank)
		assert.True(t, errors.Is(err, shapes.ErrShape))
	}
	assert.Equal(t, "BroadcastMode(7)", BroadcastMode(7).String())
}

func TestAddNoiseTo(t *testing.T) {
	g := must.M1(NewMOGaussian(diagSigma))
	Fvar := linalg.Eye(dtypes.Float64, 6)
	withNoise := must.M1(g.AddNoiseTo(Fvar))
	assert.Equal(t, []float64{1.5, 1.5, 3, 3, 2.5, 2.5}, linalg.DiagPart(withNoise).Value())

	// Rank 3 is rejected.
	_, err := g.AddNoiseTo(tensors.FromScalarAndDimensions(0.0, 1, 6, 6))
	require.Error(t, err)
	assert.True(t, errors.Is(err, shapes.ErrShape))
}

func TestPredictLogDensity(t *testing.T) {
	g := must.M1(NewMOGaussian(denseSigma))
	const n = 2
	Fmu := tensors.FromValue([][]float64{{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}})
	Y := tensors.FromValue([][]float64{{0, 0.5, 0.2, 0.1, 1, 0.3}})
	Fvar := linalg.MatrixDiag(tensors.FromScalarAndDimensions(0.2, 3*n))
	logDensity := must.M1(g.PredictLogDensity(Fmu, Fvar, Y))
	require.True(t, logDensity.IsScalar())

	cov := fullCovariance(t, g, n)
	for ii := range 3 * n {
		cov.SetSym(ii, ii, cov.At(ii, ii)+0.2)
	}
	normal, ok := distmv.NewNormal(Fmu.CopyFlatData(), cov, nil)
	require.True(t, ok)
	assert.InDelta(t, normal.LogProb(Y.CopyFlatData()), logDensity.ToScalar(), 1e-9)

	_, err := g.PredictLogDensity(Fmu, tensors.FromScalarAndDimensions(0.2, 1, 3*n, 3*n), Y)
	require.Error(t, err)
}

func TestVariationalExpectations(t *testing.T) {
	g := must.M1(NewMOGaussian(denseSigma))
	const n = 2
	Fmu := tensors.FromValue([]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6})
	Y := tensors.FromValue([]float64{0, 0.5, 0.2, 0.1, 1, 0.3})
	Fvar := tensors.Add(linalg.MatrixDiag(tensors.FromScalarAndDimensions(0.3, 3*n)),
		tensors.FromScalarAndDimensions(0.05, 3*n, 3*n))
	ve := must.M1(g.VariationalExpectations(Fmu, Fvar, Y))

	var inv mat.Dense
	require.NoError(t, inv.Inverse(fullCovariance(t, g, n)))
	var product mat.Dense
	product.Mul(&inv, mat.NewDense(3*n, 3*n, Fvar.CopyFlatData()))
	want := must.M1(g.LogProb(Fmu, Y)).ToScalar() - 0.5*mat.Trace(&product)
	assert.InDelta(t, want, ve.ToScalar(), 1e-9)

	// With Fvar = 0 it is the log-probability of Y given Fmu.
	zero := tensors.FromScalarAndDimensions(0.0, 3*n, 3*n)
	ve0 := must.M1(g.VariationalExpectations(Fmu, zero, Y))
	assert.InDelta(t, must.M1(g.LogProb(Fmu, Y)).ToScalar(), ve0.ToScalar(), 1e-12)
}

func TestVarianceFloor(t *testing.T) {
	g := must.M1(NewMOGaussian([][]float64{{1e-10, 0}, {0, 1}}))
	g.Variance().CholeskyDiagonal().ConstFlatData(func(flat []float64) {
		for _, d := range flat {
			assert.GreaterOrEqual(t, d, variance.DefaultCholeskyFloor)
		}
	})
	// The clamped variance is used in the computations.
	assert.InDelta(t, 1e-6, g.Variance().Value().At(0, 0), 1e-15)
	logProb := must.M1(g.LogProb(tensors.FromValue([]float64{0, 0}), tensors.FromValue([]float64{0, 0})))
	assert.InDelta(t, -math.Log(2*math.Pi)-math.Log(1e-3), logProb.ToScalar(), 1e-9)

	// A custom floor is preserved when given a Variance.
	v := must.M1(variance.New([][]float64{{1e-10, 0}, {0, 1}}).CholeskyFloor(0.1).Done())
	g = must.M1(NewMOGaussian(v))
	assert.InDelta(t, 0.1, g.Variance().CholeskyDiagonal().At(0), 1e-12)
	assert.Equal(t, VarianceName, g.Variance().Name())

	_, err := NewMOGaussian([][]float64{{1, 2}, {2, 1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, variance.ErrInvalidCovariance))
}
