// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package gsa implements the numerical core of Sobol-style Global Sensitivity Analysis: the multivariate Gaussian
// density without its 2π normalization factor, broadcast over arbitrarily ranked batches, and a few reductions
// used when computing sensitivity indices.
//
// The density is split into an exponent and the diagonal of the Cholesky factor of the variance (see LogDensity),
// so ratios of densities can be computed without exponentiating each one separately.
package gsa

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gsa/pkg/core/linalg"
	"github.com/gomlx/gsa/pkg/core/shapes"
	"github.com/gomlx/gsa/pkg/core/tensors"
	"github.com/pkg/errors"
)

// DefaultLBunch is the number of trailing output axes that share one covariance, used by LogPDF when
// lBunch <= 0.
const DefaultLBunch = 2

// LogDensity is the result of LogPDF: the un-normalized Gaussian density is Exp(Exponent) / Det(CholeskyDiagonal),
// and the normalized density further divides it by (2π)^(L/2).
type LogDensity struct {
	// Exponent is -0.5·(ordinate-mean)ᵀ·Σ⁻¹·(ordinate-mean), with the broadcast batch shape.
	Exponent *tensors.Tensor

	// CholeskyDiagonal is the diagonal of the Cholesky factor of Σ, with the axes inserted for broadcasting.
	CholeskyDiagonal *tensors.Tensor
}

// PDF returns the density without the 2π factor. See the package function PDF.
func (ld LogDensity) PDF() (*tensors.Tensor, error) {
	return PDF(ld.Exponent, ld.CholeskyDiagonal)
}

// Det returns the determinant of the Cholesky factors whose diagonals are given, that is, the product
// of choDiagonal over its last axis.
func Det(choDiagonal *tensors.Tensor) (det *tensors.Tensor, err error) {
	err = exceptions.TryCatch[error](func() { det = tensors.ReduceProd(choDiagonal, -1) })
	if err != nil {
		return nil, errors.WithMessage(err, "gsa.Det")
	}
	return det, nil
}

// PDF returns Exp(exponent) / Det(choDiagonal), the Gaussian density without its 2π normalization factor,
// given the output of LogPDF. Batch axes of exponent and choDiagonal are broadcast.
func PDF(exponent, choDiagonal *tensors.Tensor) (pdf *tensors.Tensor, err error) {
	err = exceptions.TryCatch[error](func() {
		pdf = tensors.Div(tensors.Exp(exponent), tensors.ReduceProd(choDiagonal, -1))
	})
	if err != nil {
		return nil, errors.WithMessage(err, "gsa.PDF")
	}
	return pdf, nil
}

// LogPDF computes the logarithm of the Gaussian density of ordinate, without its 2π normalization factor,
// as the exponent and the diagonal of varianceCho. The batch axes of ordinate, mean and varianceCho are
// broadcast to match each other.
//
//   - mean: the Gaussian mean.
//   - varianceCho: the lower triangular Cholesky factor of the variance, with shape [..., L, L]. If
//     isVarianceDiagonal, it holds only the diagonal of the factor instead, with shape [..., L].
//   - ordinate: the point(s) where to evaluate the density. If nil, 0 is used.
//   - lBunch: the number of consecutive output axes that share one covariance. After the matrix axes of
//     varianceCho, one singleton axis is inserted for every lBunch of its remaining axes, so its batch axes
//     broadcast against the sample axes of the ordinate. If lBunch <= 0, DefaultLBunch is used.
//
// If ordinate and mean have the same shape [..., M, L], they are first reshaped so that every ordinate is
// evaluated against every mean: ordinate to [..., M, 1, ..., 1, L] and mean to [1, ..., 1, ..., M, L].
func LogPDF(mean, varianceCho *tensors.Tensor, isVarianceDiagonal bool, ordinate *tensors.Tensor,
	lBunch int) (ld LogDensity, err error) {
	if lBunch <= 0 {
		lBunch = DefaultLBunch
	}
	err = exceptions.TryCatch[error](func() {
		ld = logPDF(mean, varianceCho, isVarianceDiagonal, ordinate, lBunch)
	})
	if err != nil {
		return LogDensity{}, errors.WithMessagef(err, "gsa.LogPDF(mean=%s, varianceCho=%s, isVarianceDiagonal=%v, lBunch=%d)",
			shapeOf(mean), shapeOf(varianceCho), isVarianceDiagonal, lBunch)
	}
	return ld, nil
}

func shapeOf(t *tensors.Tensor) string {
	if t == nil {
		return "nil"
	}
	return t.Shape().String()
}

func logPDF(mean, varianceCho *tensors.Tensor, isVarianceDiagonal bool, ordinate *tensors.Tensor, lBunch int) LogDensity {
	mean.AssertValid()
	varianceCho.AssertValid()
	if ordinate == nil {
		ordinate = tensors.FromScalar(0)
	}

	// Broadcast ordinate - mean.
	if ordinate.Rank() > 0 && ordinate.Shape().EqualDimensions(mean.Shape()) {
		dims := ordinate.Shape().Dimensions
		rank := len(dims)
		fill := make([]int, rank-1)
		for ii := range fill {
			fill[ii] = 1
		}
		ordinate = tensors.Reshape(ordinate, concat(dims[:rank-1], fill, dims[rank-1:])...)
		mean = tensors.Reshape(mean, concat(fill, dims)...)
	}
	diff := tensors.Sub(ordinate, mean)

	// Broadcast varianceCho.
	matrixRank := 2
	if isVarianceDiagonal {
		matrixRank = 1
	}
	if err := varianceCho.Shape().CheckMinRank(matrixRank); err != nil {
		panic(err)
	}
	insertions := varianceCho.Rank() - matrixRank
	insertions -= insertions % lBunch
	cho := varianceCho
	for axis := insertions; axis > 0; axis -= lBunch {
		cho = tensors.ExpandAxes(cho, axis)
	}

	var scaled *tensors.Tensor
	if isVarianceDiagonal {
		choDims := cho.Shape().Dimensions
		diffDims := diff.Shape().Dimensions
		broadcastDims := concat(choDims[:max(0, len(choDims)-2)], diffDims[max(0, len(diffDims)-2):])
		scaled = tensors.Div(diff, tensors.BroadcastTo(cho, broadcastDims...))
	} else {
		if diff.Rank() == 0 {
			diff = tensors.BroadcastTo(diff, cho.Dim(-1))
		}
		scaled = linalg.TriangularSolve(cho, tensors.ExpandAxes(diff, -1), true)
		scaledDims := scaled.Shape().Dimensions
		scaled = tensors.Reshape(scaled, scaledDims[:len(scaledDims)-1]...)
	}
	if scaled.Rank() == 0 {
		shapes.Panicf("ordinate - mean of shape %s has no output axis", diff.Shape())
	}
	exponent := tensors.MulScalar(tensors.ReduceSum(tensors.Square(scaled), -1), -0.5)

	choDiagonal := cho
	if !isVarianceDiagonal {
		choDiagonal = linalg.DiagPart(cho)
	}
	return LogDensity{Exponent: exponent, CholeskyDiagonal: choDiagonal}
}

// concat returns a new slice with the concatenation of the given dimensions.
func concat(dims ...[]int) []int {
	var out []int
	for _, d := range dims {
		out = append(out, d...)
	}
	return out
}
