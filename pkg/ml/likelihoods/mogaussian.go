// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package likelihoods

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gsa/pkg/core/linalg"
	"github.com/gomlx/gsa/pkg/core/shapes"
	"github.com/gomlx/gsa/pkg/core/tensors"
	"github.com/gomlx/gsa/pkg/ml/variance"
	"github.com/pkg/errors"
)

// VarianceName is the name given to the noise variance of MOGaussian.
const VarianceName = "LikelihoodVariance"

// MOGaussian is a multi-output Gaussian likelihood with a full (non-diagonal) noise covariance Σ of shape [L, L],
// shared by all datapoints: Y = F + ε, with ε ~ N(0, Σ) independently for each datapoint.
//
// Very small noise can lead to numerical instability during optimization, so the diagonal of the Cholesky
// factor of Σ is clamped to a floor (variance.DefaultCholeskyFloor by default).
//
// It is immutable and safe for concurrent use.
type MOGaussian struct {
	variance *variance.Variance
}

// Assert MOGaussian implements Likelihood.
var _ Likelihood = (*MOGaussian)(nil)

// NewMOGaussian creates a MOGaussian likelihood with the given noise covariance, which is checked for
// symmetry and positive-definiteness.
//
// noiseVariance can be anything accepted by variance.New: a [L, L] matrix, a [L] vector (for a diagonal
// covariance) or a *variance.Variance, in which case its Cholesky floor is preserved.
func NewMOGaussian(noiseVariance any) (*MOGaussian, error) {
	builder := variance.New(noiseVariance).Name(VarianceName)
	if v, ok := noiseVariance.(*variance.Variance); ok {
		builder.CholeskyFloor(v.Floor())
	}
	v, err := builder.Done()
	if err != nil {
		return nil, errors.WithMessage(err, "NewMOGaussian")
	}
	return &MOGaussian{variance: v}, nil
}

// Variance returns the noise covariance.
func (g *MOGaussian) Variance() *variance.Variance { return g.variance }

// LatentDim returns L, the number of latent functions.
func (g *MOGaussian) LatentDim() int { return g.variance.Dim() }

// ObservationDim returns L, the number of outputs.
func (g *MOGaussian) ObservationDim() int { return g.variance.Dim() }

// String implements fmt.Stringer.
func (g *MOGaussian) String() string {
	return fmt.Sprintf("MOGaussian(L=%d)", g.LatentDim())
}

// DatapointCount returns N, the number of datapoints in data, whose last axis holds L*N values.
func (g *MOGaussian) DatapointCount(data *tensors.Tensor) (int, error) {
	if data == nil || !data.Ok() {
		return 0, errors.New("MOGaussian.DatapointCount: invalid tensor")
	}
	if data.IsScalar() {
		return 0, shapes.Errorf("MOGaussian.DatapointCount: data must have at least one axis, got shape %s", data.Shape())
	}
	l := g.LatentDim()
	lastDim := data.Dim(-1)
	if lastDim%l != 0 {
		return 0, shapes.Errorf("MOGaussian.DatapointCount: last axis of shape %s is not a multiple of L=%d", data.Shape(), l)
	}
	return lastDim / l, nil
}

// SplitAxisShape returns the pair (L, N) that the last axis of data, with L*N values, is split into.
func (g *MOGaussian) SplitAxisShape(data *tensors.Tensor) (l, n int, err error) {
	n, err = g.DatapointCount(data)
	if err != nil {
		return 0, 0, err
	}
	return g.LatentDim(), n, nil
}

// datapointCount is like DatapointCount, but panics on errors.
func (g *MOGaussian) datapointCount(data *tensors.Tensor) int {
	n, err := g.DatapointCount(data)
	if err != nil {
		panic(err)
	}
	return n
}

// noiseTimesEye returns Σ ⊗ I_N, panicking on errors.
func (g *MOGaussian) noiseTimesEye(n int) *tensors.Tensor {
	noise, err := g.variance.ValueTimesEye(n)
	if err != nil {
		panic(err)
	}
	return noise
}

// splitAxis reshapes data to [L, N].
func (g *MOGaussian) splitAxis(data *tensors.Tensor) *tensors.Tensor {
	return tensors.Reshape(data, g.LatentDim(), g.datapointCount(data))
}

// AddNoiseTo returns Fvar + Σ ⊗ I_N, where Fvar is the [L*N, L*N] covariance of the latent values.
// Only Fvar of rank 2 is supported.
func (g *MOGaussian) AddNoiseTo(Fvar *tensors.Tensor) (result *tensors.Tensor, err error) {
	err = exceptions.TryCatch[error](func() { result = g.addNoiseTo(Fvar) })
	if err != nil {
		return nil, errors.WithMessage(err, "MOGaussian.AddNoiseTo")
	}
	return result, nil
}

func (g *MOGaussian) addNoiseTo(Fvar *tensors.Tensor) *tensors.Tensor {
	Fvar.AssertValid()
	if err := Fvar.Shape().CheckRank(2); err != nil {
		panic(errors.WithMessage(err, "only Fvar of rank 2 is supported"))
	}
	noise := g.noiseTimesEye(g.datapointCount(Fvar))
	return tensors.Add(Fvar, tensors.Reshape(noise, Fvar.Shape().Dimensions...))
}

// LogProb returns the log-probability of the observations Y given the latent values F, both with L*N values
// on their last axis, summed over the datapoints, as a scalar.
func (g *MOGaussian) LogProb(F, Y *tensors.Tensor) (logProb *tensors.Tensor, err error) {
	err = exceptions.TryCatch[error](func() { logProb = g.logProb(F, Y) })
	if err != nil {
		return nil, errors.WithMessage(err, "MOGaussian.LogProb")
	}
	return logProb, nil
}

func (g *MOGaussian) logProb(F, Y *tensors.Tensor) *tensors.Tensor {
	F.AssertValid()
	Y.AssertValid()
	return tensors.ReduceAllSum(multivariateNormal(g.splitAxis(Y), g.splitAxis(F), g.variance.Cholesky()))
}

// ConditionalMean returns F: the noise doesn't shift the mean.
func (g *MOGaussian) ConditionalMean(F *tensors.Tensor) (*tensors.Tensor, error) {
	if F == nil || !F.Ok() {
		return nil, errors.New("MOGaussian.ConditionalMean: invalid tensor")
	}
	return F, nil
}

// ConditionalVariance returns Σ ⊗ I_N, the [L*N, L*N] covariance of the observations given F.
func (g *MOGaussian) ConditionalVariance(F *tensors.Tensor) (*tensors.Tensor, error) {
	n, err := g.DatapointCount(F)
	if err != nil {
		return nil, errors.WithMessage(err, "MOGaussian.ConditionalVariance")
	}
	return g.variance.ValueTimesEye(n)
}

// PredictMeanAndVar returns Fmu and Fvar plus the noise covariance, broadcast according to the rank of Fvar
// (see BroadcastModeForRank).
func (g *MOGaussian) PredictMeanAndVar(Fmu, Fvar *tensors.Tensor) (mean, predVar *tensors.Tensor, err error) {
	if Fmu == nil || !Fmu.Ok() || Fvar == nil || !Fvar.Ok() {
		return nil, nil, errors.New("MOGaussian.PredictMeanAndVar: invalid tensor")
	}
	mode, err := BroadcastModeForRank(Fvar.Rank())
	if err != nil {
		return nil, nil, errors.WithMessage(err, "MOGaussian.PredictMeanAndVar")
	}
	err = exceptions.TryCatch[error](func() {
		l := g.LatentDim()
		value := g.variance.Value()
		var noise *tensors.Tensor
		switch mode {
		case PerBatchPerSample:
			noise = tensors.Reshape(value, 1, 1, l, l)
		case PerBatch:
			noise = tensors.Reshape(value, 1, l, l)
		case PerDatapoint:
			noise = tensors.Reshape(linalg.DiagPart(value), 1, l)
		}
		predVar = tensors.Add(Fvar, noise)
	})
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "MOGaussian.PredictMeanAndVar(%s)", mode)
	}
	return Fmu, predVar, nil
}

// PredictLogDensity returns the log-density of the observations Y given the latent values with mean Fmu and
// covariance Fvar, summed to a scalar.
//
// Y and Fmu hold L*N values on their last axis, and each row of L*N values is one sample: it is evaluated
// against the Gaussian with covariance Fvar + Σ ⊗ I_N, where Fvar is shaped [L*N, L*N].
func (g *MOGaussian) PredictLogDensity(Fmu, Fvar, Y *tensors.Tensor) (logDensity *tensors.Tensor, err error) {
	err = exceptions.TryCatch[error](func() {
		Fmu.AssertValid()
		Y.AssertValid()
		chol := linalg.Cholesky(g.addNoiseTo(Fvar))
		ln := chol.Dim(0)
		columns := func(x *tensors.Tensor) *tensors.Tensor {
			return tensors.Transpose(tensors.Reshape(x, -1, ln))
		}
		logDensity = tensors.ReduceAllSum(multivariateNormal(columns(Y), columns(Fmu), chol))
	})
	if err != nil {
		return nil, errors.WithMessage(err, "MOGaussian.PredictLogDensity")
	}
	return logDensity, nil
}

// VariationalExpectations returns LogProb(Fmu, Y) - 0.5·Trace((Σ ⊗ I_N)⁻¹·Fvar), the expectation of the
// log-probability of Y for latent values with mean Fmu and [L*N, L*N] covariance Fvar.
//
// The inverse is never computed: the trace term uses a Cholesky solve.
func (g *MOGaussian) VariationalExpectations(Fmu, Fvar, Y *tensors.Tensor) (ve *tensors.Tensor, err error) {
	err = exceptions.TryCatch[error](func() {
		Fmu.AssertValid()
		Fvar.AssertValid()
		logProb := g.logProb(Fmu, Y)
		chol := linalg.Cholesky(g.noiseTimesEye(g.datapointCount(Fmu)))
		trace := linalg.Trace(linalg.CholeskySolve(chol, Fvar))
		ve = tensors.Sub(logProb, tensors.MulScalar(trace, 0.5))
	})
	if err != nil {
		return nil, errors.WithMessage(err, "MOGaussian.VariationalExpectations")
	}
	return ve, nil
}
