// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"github.com/gomlx/gopjrt/dtypes"
)

// UncheckedAxis can be used in CheckDims for an axis whose dimension doesn't matter.
const UncheckedAxis = int(-1)

// CheckDims checks that the shape has the given dimensions and rank. A value of UncheckedAxis in
// dimensions means it can take any value and is not checked.
//
// It returns an error wrapping ErrShape if the rank is different or if any of the dimensions don't match.
func (s Shape) CheckDims(dimensions ...int) error {
	if s.Rank() != len(dimensions) {
		return Errorf("shape %s has rank %d, wanted rank %d (dimensions %v)", s, s.Rank(), len(dimensions), dimensions)
	}
	for axis, wantDim := range dimensions {
		if wantDim != UncheckedAxis && s.Dimensions[axis] != wantDim {
			return Errorf("shape %s axis %d has dimension %d, wanted %d (dimensions %v)",
				s, axis, s.Dimensions[axis], wantDim, dimensions)
		}
	}
	return nil
}

// Check that the shape has the given dtype, dimensions and rank. A value of UncheckedAxis in
// dimensions means it can take any value and is not checked.
func (s Shape) Check(dtype dtypes.DType, dimensions ...int) error {
	if dtype != s.DType {
		return Errorf("shape %s has dtype %s, wanted %s", s, s.DType, dtype)
	}
	return s.CheckDims(dimensions...)
}

// CheckRank checks that the shape has the given rank.
//
// It returns an error wrapping ErrShape if the rank is different.
func (s Shape) CheckRank(rank int) error {
	if s.Rank() != rank {
		return Errorf("shape %s has rank %d, wanted rank %d", s, s.Rank(), rank)
	}
	return nil
}

// CheckMinRank checks that the shape has at least the given rank: the matrix operations require rank 2
// and take any extra leading axes as batch axes.
func (s Shape) CheckMinRank(rank int) error {
	if s.Rank() < rank {
		return Errorf("shape %s has rank %d, but at least rank %d is required", s, s.Rank(), rank)
	}
	return nil
}
