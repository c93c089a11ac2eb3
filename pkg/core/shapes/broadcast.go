// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import "slices"

// BroadcastDimensions returns the dimensions resulting from broadcasting a and b together.
//
// It follows the numpy rules: dimensions are aligned to the right (the last axes), missing leading axes are
// taken as dimension 1, and for each axis the dimensions must either be equal, or one of them must be 1.
//
// It returns an error wrapping ErrShape if the dimensions cannot be broadcast.
func BroadcastDimensions(a, b []int) ([]int, error) {
	rank := max(len(a), len(b))
	out := make([]int, rank)
	for ii := range rank {
		dimA, dimB := 1, 1
		if axis := len(a) - rank + ii; axis >= 0 {
			dimA = a[axis]
		}
		if axis := len(b) - rank + ii; axis >= 0 {
			dimB = b[axis]
		}
		switch {
		case dimA == dimB:
			out[ii] = dimA
		case dimA == 1:
			out[ii] = dimB
		case dimB == 1:
			out[ii] = dimA
		default:
			return nil, Errorf("dimensions %v and %v cannot be broadcast together (axis %d of the result: %d vs %d)",
				a, b, ii, dimA, dimB)
		}
	}
	return out, nil
}

// BroadcastStrides returns, for each axis of toDims, the stride to use when reading a row-major array with
// the given dimensions broadcast to toDims.
//
// Axes where dims has dimension 1 (or that are missing, since dims are aligned to the right) get a stride 0.
// It assumes dims is broadcastable to toDims, see CheckBroadcastable.
func BroadcastStrides(dims, toDims []int) []int {
	strides := make([]int, len(toDims))
	fromStrides := StridesFor(dims)
	offset := len(toDims) - len(dims)
	for axis := range toDims {
		fromAxis := axis - offset
		if fromAxis < 0 || dims[fromAxis] == 1 {
			continue
		}
		strides[axis] = fromStrides[fromAxis]
	}
	return strides
}

// CheckBroadcastable returns an error wrapping ErrShape if dims cannot be broadcast (numpy style) to toDims
// without changing toDims.
func CheckBroadcastable(dims, toDims []int) error {
	out, err := BroadcastDimensions(dims, toDims)
	if err != nil {
		return err
	}
	if !slices.Equal(out, toDims) {
		return Errorf("dimensions %v cannot be broadcast to %v", dims, toDims)
	}
	return nil
}
