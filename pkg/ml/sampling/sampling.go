// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sampling implements the random sampling used in design of experiments: Latin Hypercube samples of the
// unit hypercube, and correlated Gaussian noise.
//
// A Sampler owns its random source, so results are reproducible for a given seed. It is not safe for
// concurrent use: create one Sampler per goroutine.
package sampling

import (
	"math"
	"math/rand/v2"

	"github.com/gomlx/gsa/pkg/core/shapes"
	"github.com/gomlx/gsa/pkg/core/tensors"
	"github.com/gomlx/gsa/pkg/ml/variance"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
	"k8s.io/klog/v2"
)

// Sampler generates random samples from a seeded source.
type Sampler struct {
	src rand.Source
	rng *rand.Rand
}

// New creates a Sampler whose random source is seeded with seed.
func New(seed uint64) *Sampler {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	klog.V(2).Infof("sampling.New(seed=%d)", seed)
	return &Sampler{src: src, rng: rand.New(src)}
}

// largestBelowOne is the largest float64 smaller than 1.
var largestBelowOne = math.Nextafter(1, 0)

// LatinHypercube returns n points of a Latin Hypercube sample of the unit hypercube in m dimensions,
// shaped [n, m].
//
// Each axis of the hypercube is divided into n equal intervals, and for each axis every interval contains
// exactly one point. If isCentered, points are located at the center of their intervals, otherwise they
// are uniformly distributed within them. All values are in [0, 1).
func (s *Sampler) LatinHypercube(n, m int, isCentered bool) (*tensors.Tensor, error) {
	if n <= 0 || m <= 0 {
		return nil, errors.Errorf("sampling.LatinHypercube(n=%d, m=%d): both must be positive", n, m)
	}
	flat := make([]float64, n*m)
	for col := range m {
		perm := s.rng.Perm(n)
		for row, interval := range perm {
			offset := 0.5
			if !isCentered {
				offset = s.rng.Float64()
			}
			x := (float64(interval) + offset) / float64(n)
			if x >= 1 {
				x = largestBelowOne
			}
			flat[row*m+col] = x
		}
	}
	return tensors.FromFlatDataAndDimensions(flat, n, m), nil
}

// MultivariateGaussianNoise returns n samples of zero-mean Gaussian noise with the given covariance, shaped [n, L].
//
// noiseVariance is anything accepted by tensors.FromAnyValue, and it can be:
//
//   - A vector [L] or a row [1, L]: the variances of independent noises. Zero variances are accepted.
//   - A matrix [L, L]: it must be symmetric and positive-definite.
//
// Other shapes return an error wrapping shapes.ErrShape, and invalid covariances an error wrapping
// variance.ErrInvalidCovariance.
func (s *Sampler) MultivariateGaussianNoise(n int, noiseVariance any) (*tensors.Tensor, error) {
	if n <= 0 {
		return nil, errors.Errorf("sampling.MultivariateGaussianNoise(n=%d): n must be positive", n)
	}
	t, err := tensors.FromAnyValueOrError(noiseVariance)
	if err != nil {
		return nil, errors.WithMessage(err, "sampling.MultivariateGaussianNoise")
	}
	var noise *tensors.Tensor
	switch {
	case t.Rank() <= 1:
		noise, err = s.independentNoise(n, tensors.Reshape(t, -1))
	case t.Rank() == 2 && t.Dim(0) == 1:
		noise, err = s.independentNoise(n, tensors.Reshape(t, -1))
	case t.Rank() == 2 && t.Dim(0) == t.Dim(1):
		noise, err = s.correlatedNoise(n, t)
	default:
		err = shapes.Errorf("variance shape %s should be [L], [1, L] or [L, L]", t.Shape())
	}
	if err != nil {
		return nil, errors.WithMessage(err, "sampling.MultivariateGaussianNoise")
	}
	return noise, nil
}

// independentNoise samples each column with its own variance.
func (s *Sampler) independentNoise(n int, variances *tensors.Tensor) (*tensors.Tensor, error) {
	l := variances.Size()
	sigmas := make([]float64, l)
	var err error
	variances.ConstFlatData(func(flat []float64) {
		for ii, v := range flat {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				err = errors.Wrapf(variance.ErrInvalidCovariance, "invalid variance %g for output %d", v, ii)
				return
			}
			sigmas[ii] = math.Sqrt(v)
		}
	})
	if err != nil {
		return nil, err
	}
	flat := make([]float64, n*l)
	for col, sigma := range sigmas {
		if sigma == 0 {
			continue
		}
		normal := distuv.Normal{Mu: 0, Sigma: sigma, Src: s.src}
		for row := range n {
			flat[row*l+col] = normal.Rand()
		}
	}
	return tensors.FromFlatDataAndShape(shapes.Make(variances.DType(), n, l), flat), nil
}

// correlatedNoise samples from a multivariate normal with the covariance matrix.
func (s *Sampler) correlatedNoise(n int, matrix *tensors.Tensor) (*tensors.Tensor, error) {
	v, err := variance.New(matrix).Name("noise").CholeskyFloor(0).Done()
	if err != nil {
		return nil, err
	}
	l := v.Dim()
	sym := mat.NewSymDense(l, v.Value().CopyFlatData())
	normal, ok := distmv.NewNormal(make([]float64, l), sym, s.src)
	if !ok {
		return nil, errors.Wrapf(variance.ErrInvalidCovariance, "covariance %s is not positive-definite", matrix.Shape())
	}
	flat := make([]float64, n*l)
	for row := range n {
		normal.Rand(flat[row*l : (row+1)*l])
	}
	return tensors.FromFlatDataAndShape(shapes.Make(matrix.DType(), n, l), flat), nil
}
