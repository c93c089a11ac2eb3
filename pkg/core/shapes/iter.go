// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"iter"
)

// Iter iterates sequentially over all possible indices of the given shape.
//
// It yields the flat index (counter) and a slice of indices for each axis, in row-major order
// (the last axis changes fastest).
//
// To avoid allocating the slice of indices, the yielded indices is owned by the Iter() method:
// don't change it inside the loop.
func (s Shape) Iter() iter.Seq2[int, []int] {
	return IterDimensions(s.Dimensions)
}

// IterDimensions is like Shape.Iter, but for a plain list of dimensions.
func IterDimensions(dimensions []int) iter.Seq2[int, []int] {
	return func(yield func(int, []int) bool) {
		rank := len(dimensions)
		indices := make([]int, rank)
		for _, dim := range dimensions {
			if dim <= 0 {
				return
			}
		}
		if rank == 0 {
			// Scalar: yield one empty index slice.
			_ = yield(0, indices)
			return
		}

		flatIdx := 0
		for {
			if !yield(flatIdx, indices) {
				return // Consumer requested to stop iteration.
			}
			flatIdx++

			// Increment indices to the next set of coordinates, with carry-over.
			axis := rank - 1
			for ; axis >= 0; axis-- {
				indices[axis]++
				if indices[axis] < dimensions[axis] {
					break
				}
				indices[axis] = 0
			}
			if axis < 0 {
				// The first axis also overflowed: iteration is complete.
				return
			}
		}
	}
}
