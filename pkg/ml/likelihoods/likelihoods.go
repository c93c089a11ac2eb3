// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package likelihoods implements observation noise models (likelihoods) for multi-output Gaussian processes.
//
// A Likelihood is used by a variational inference engine: it computes the log-probability of observations
// given latent function values, the predictive moments and densities of the observations given the moments
// of the latent functions, and the variational expectations of the log-probability.
//
// Latent values (F) and observations (Y) of L outputs and N datapoints are flattened on their last axis, with
// size L*N, in L-major order: the value of output l for datapoint n is at position l*N + n.
package likelihoods

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gsa/pkg/core/linalg"
	"github.com/gomlx/gsa/pkg/core/shapes"
	"github.com/gomlx/gsa/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Likelihood is the set of operations an observation noise model provides to the inference engine.
//
// Log-densities are returned as scalars, predictive means have the shape of Fmu, and predictive variances
// the shape of Fvar.
type Likelihood interface {
	// LogProb returns the log-probability of the observations Y given the latent values F.
	LogProb(F, Y *tensors.Tensor) (*tensors.Tensor, error)

	// ConditionalMean returns the mean of the observations given the latent values F.
	ConditionalMean(F *tensors.Tensor) (*tensors.Tensor, error)

	// ConditionalVariance returns the variance of the observations given the latent values F.
	ConditionalVariance(F *tensors.Tensor) (*tensors.Tensor, error)

	// PredictMeanAndVar returns the mean and variance of the observations, given the mean Fmu and
	// variance Fvar of the latent values.
	PredictMeanAndVar(Fmu, Fvar *tensors.Tensor) (mean, variance *tensors.Tensor, err error)

	// PredictLogDensity returns the log-density of the observations Y, given the mean Fmu and variance
	// Fvar of the latent values.
	PredictLogDensity(Fmu, Fvar, Y *tensors.Tensor) (*tensors.Tensor, error)

	// VariationalExpectations returns the expectation of LogProb(F, Y) for F distributed with mean Fmu
	// and variance Fvar.
	VariationalExpectations(Fmu, Fvar, Y *tensors.Tensor) (*tensors.Tensor, error)
}

var log2Pi = math.Log(2 * math.Pi)

// MultivariateNormal returns the log-densities of the multivariate normal distribution with mean mu and
// covariance chol·cholᵀ, for each column of x.
//
// x and mu are shaped [D, K] (or [D], taken as one column), and are broadcast together. chol is the lower
// triangular Cholesky factor of the covariance, shaped [D, D]. The result is shaped [K].
func MultivariateNormal(x, mu, chol *tensors.Tensor) (logDensity *tensors.Tensor, err error) {
	err = exceptions.TryCatch[error](func() { logDensity = multivariateNormal(x, mu, chol) })
	if err != nil {
		return nil, errors.WithMessage(err, "likelihoods.MultivariateNormal")
	}
	return logDensity, nil
}

func multivariateNormal(x, mu, chol *tensors.Tensor) *tensors.Tensor {
	d := tensors.Sub(x, mu)
	switch d.Rank() {
	case 1:
		d = tensors.ExpandAxes(d, -1)
	case 2:
	default:
		shapes.Panicf("x - mu has shape %s, it must be rank 1 or 2", d.Shape())
	}
	if err := chol.Shape().CheckRank(2); err != nil {
		panic(err)
	}
	alpha := linalg.TriangularSolve(chol, d, true)
	numDims := float64(d.Dim(0))
	logDet := tensors.ReduceAllSum(tensors.Log(linalg.DiagPart(chol))).ToScalar()
	p := tensors.MulScalar(tensors.ReduceSum(tensors.Square(alpha), 0), -0.5)
	return tensors.AddScalar(p, -0.5*numDims*log2Pi-logDet)
}
