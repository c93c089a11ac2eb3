// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gsa

import (
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gsa/pkg/core/shapes"
	"github.com/gomlx/gsa/pkg/core/tensors"
	"github.com/pkg/errors"
)

// SymCheck returns the sum of squares of t - Transpose(t, permutation), a scalar that is 0 if t is symmetric
// under the permutation of its axes.
func SymCheck(t *tensors.Tensor, permutation ...int) (check *tensors.Tensor, err error) {
	err = exceptions.TryCatch[error](func() {
		check = tensors.ReduceAllSum(tensors.Square(tensors.Sub(t, tensors.Transpose(t, permutation...))))
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "gsa.SymCheck(%s, %v)", shapeOf(t), permutation)
	}
	return check, nil
}

// Mean returns the mean of all values of t, as a scalar.
func Mean(t *tensors.Tensor) (mean *tensors.Tensor, err error) {
	err = exceptions.TryCatch[error](func() {
		mean = tensors.MulScalar(tensors.ReduceAllSum(t), 1/float64(t.Size()))
	})
	if err != nil {
		return nil, errors.WithMessage(err, "gsa.Mean")
	}
	return mean, nil
}

// SumOfSquares returns Einsum(equation, t, t).
//
// If the equation has only one operand (no comma), it is used for both operands: so "lijk" is the
// same as "lijk,lijk". An empty equation contracts every axis, returning the sum of the squares of t as a scalar.
func SumOfSquares(t *tensors.Tensor, equation string) (sos *tensors.Tensor, err error) {
	err = exceptions.TryCatch[error](func() { sos = sumOfSquares(t, equation) })
	if err != nil {
		return nil, errors.WithMessagef(err, "gsa.SumOfSquares(%s, %q)", shapeOf(t), equation)
	}
	return sos, nil
}

func sumOfSquares(t *tensors.Tensor, equation string) *tensors.Tensor {
	t.AssertValid()
	equation = strings.TrimSpace(equation)
	if equation == "" {
		if t.Rank() > 26 {
			shapes.Panicf("tensor of shape %s has too many axes for a default equation", t.Shape())
		}
		letters := make([]byte, t.Rank())
		for ii := range letters {
			letters[ii] = byte('a' + ii)
		}
		equation = string(letters) + "," + string(letters) + "->"
	} else if !strings.Contains(equation, ",") {
		operand, output, found := strings.Cut(equation, "->")
		equation = operand + "," + operand
		if found {
			equation += "->" + output
		}
	}
	return tensors.Einsum(equation, t, t)
}

// MeanSquare returns SumOfSquares(t, equation) divided by the number of elements of t.
func MeanSquare(t *tensors.Tensor, equation string) (ms *tensors.Tensor, err error) {
	sos, err := SumOfSquares(t, equation)
	if err != nil {
		return nil, err
	}
	return tensors.MulScalar(sos, 1/float64(t.Size())), nil
}

// RootMeanSquare returns the square root of MeanSquare(t, equation).
func RootMeanSquare(t *tensors.Tensor, equation string) (rms *tensors.Tensor, err error) {
	ms, err := MeanSquare(t, equation)
	if err != nil {
		return nil, err
	}
	return tensors.Sqrt(ms), nil
}
