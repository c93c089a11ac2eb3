// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sampling

import (
	"fmt"
	"math"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gsa/pkg/core/shapes"
	"github.com/gomlx/gsa/pkg/core/tensors"
	"github.com/gomlx/gsa/pkg/ml/variance"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestLatinHypercube(t *testing.T) {
	for _, isCentered := range []bool{false, true} {
		for _, dims := range [][2]int{{1, 1}, {7, 3}, {100, 5}} {
			n, m := dims[0], dims[1]
			t.Run(fmt.Sprintf("n=%d_m=%d_centered=%v", n, m, isCentered), func(t *testing.T) {
				x := must.M1(New(42).LatinHypercube(n, m, isCentered))
				require.NoError(t, x.Shape().Check(dtypes.Float64, n, m))
				for col := range m {
					seen := make([]bool, n)
					for row := range n {
						v := x.At(row, col)
						require.GreaterOrEqual(t, v, 0.0)
						require.Less(t, v, 1.0)
						interval := int(math.Floor(v * float64(n)))
						require.False(t, seen[interval], "interval %d of column %d sampled twice", interval, col)
						seen[interval] = true
						if isCentered {
							assert.InDelta(t, (float64(interval)+0.5)/float64(n), v, 1e-12)
						}
					}
				}
			})
		}
	}
}

func TestLatinHypercubeSeed(t *testing.T) {
	x0 := must.M1(New(7).LatinHypercube(20, 4, false))
	x1 := must.M1(New(7).LatinHypercube(20, 4, false))
	x2 := must.M1(New(8).LatinHypercube(20, 4, false))
	assert.True(t, x0.Equal(x1))
	assert.False(t, x0.Equal(x2))

	_, err := New(0).LatinHypercube(0, 3, true)
	require.Error(t, err)
	_, err = New(0).LatinHypercube(3, -1, true)
	require.Error(t, err)
}

// sampleCovariance returns the covariance of the columns of x.
func sampleCovariance(x *tensors.Tensor) *mat.SymDense {
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, mat.NewDense(x.Dim(0), x.Dim(1), x.CopyFlatData()), nil)
	return &cov
}

func TestMultivariateGaussianNoise(t *testing.T) {
	const n = 100_000
	sampler := New(17)

	// Full covariance matrix.
	cov := [][]float64{{1, 0.5, 0}, {0.5, 2, -0.3}, {0, -0.3, 0.5}}
	noise := must.M1(sampler.MultivariateGaussianNoise(n, cov))
	require.NoError(t, noise.Shape().Check(dtypes.Float64, n, 3))
	got := sampleCovariance(noise)
	for ii := range 3 {
		for jj := range 3 {
			assert.InDelta(t, cov[ii][jj], got.At(ii, jj), 0.05, "covariance[%d, %d]", ii, jj)
		}
	}
	noise.ConstFlatData(func(flat []float64) {
		assert.InDelta(t, 0.0, stat.Mean(flat, nil), 0.02)
	})

	// Diagonal, given as a vector or as a row. Zero variance gives zero noise.
	for _, diag := range []any{[]float64{0.5, 0, 3}, [][]float64{{0.5, 0, 3}}} {
		noise = must.M1(sampler.MultivariateGaussianNoise(n, diag))
		require.NoError(t, noise.Shape().Check(dtypes.Float64, n, 3))
		got = sampleCovariance(noise)
		assert.InDelta(t, 0.5, got.At(0, 0), 0.05)
		assert.Equal(t, 0.0, got.At(1, 1))
		assert.InDelta(t, 3.0, got.At(2, 2), 0.1)
		assert.InDelta(t, 0.0, got.At(0, 2), 0.05)
	}

	// Scalar: a single output.
	noise = must.M1(sampler.MultivariateGaussianNoise(10, 2.0))
	require.NoError(t, noise.Shape().Check(dtypes.Float64, 10, 1))

	// Float32 is preserved.
	noise = must.M1(sampler.MultivariateGaussianNoise(10, tensors.FromValue([]float32{1, 1})))
	assert.Equal(t, dtypes.Float32, noise.DType())
}

func TestMultivariateGaussianNoiseErrors(t *testing.T) {
	sampler := New(0)
	_, err := sampler.MultivariateGaussianNoise(10, [][]float64{{1, 0, 0}, {0, 1, 0}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shapes.ErrShape), "not square: %+v", err)

	_, err = sampler.MultivariateGaussianNoise(10, [][][]float64{{{1}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shapes.ErrShape), "rank 3: %+v", err)

	_, err = sampler.MultivariateGaussianNoise(10, [][]float64{{1, 2}, {2, 1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, variance.ErrInvalidCovariance), "not positive-definite: %+v", err)

	_, err = sampler.MultivariateGaussianNoise(10, []float64{1, -1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, variance.ErrInvalidCovariance), "negative variance: %+v", err)

	_, err = sampler.MultivariateGaussianNoise(0, []float64{1})
	require.Error(t, err)
}
