// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"math"
	"slices"

	"github.com/gomlx/gsa/pkg/core/shapes"
)

// Reshape returns a tensor with the same values as x, in the same row-major order, with the given dimensions.
// One of the dimensions can be -1, in which case it is inferred from the size of x.
func Reshape(x *Tensor, dimensions ...int) *Tensor {
	x.AssertValid()
	dims := slices.Clone(dimensions)
	inferred := -1
	size := 1
	for axis, dim := range dims {
		if dim == -1 {
			if inferred >= 0 {
				shapes.Panicf("Reshape(%s, %v): only one dimension can be -1", x.shape, dimensions)
			}
			inferred = axis
			continue
		}
		if dim <= 0 {
			shapes.Panicf("Reshape(%s, %v): invalid dimension %d", x.shape, dimensions, dim)
		}
		size *= dim
	}
	if inferred >= 0 {
		if x.Size()%size != 0 {
			shapes.Panicf("Reshape(%s, %v): cannot infer the dimension -1, size %d is not divisible by %d",
				x.shape, dimensions, x.Size(), size)
		}
		dims[inferred] = x.Size() / size
		size *= dims[inferred]
	}
	if size != x.Size() {
		shapes.Panicf("Reshape(%s, %v): new size %d doesn't match the size %d of the tensor", x.shape, dimensions, size, x.Size())
	}
	return newTensor(shapes.Make(x.DType(), dims...), x.CopyFlatData())
}

// ExpandAxes inserts new axes of dimension 1, at the given positions of the output (like numpy's expand_dims).
// Negative axes count from the end of the output.
func ExpandAxes(x *Tensor, axes ...int) *Tensor {
	x.AssertValid()
	outRank := x.Rank() + len(axes)
	isNew := make([]bool, outRank)
	for _, axis := range axes {
		adjusted := shapes.AdjustAxis(axis, outRank)
		if adjusted < 0 || adjusted >= outRank {
			shapes.Panicf("ExpandAxes(%s, %v): axis %d out-of-bounds for output rank %d", x.shape, axes, axis, outRank)
		}
		if isNew[adjusted] {
			shapes.Panicf("ExpandAxes(%s, %v): axis %d given more than once", x.shape, axes, axis)
		}
		isNew[adjusted] = true
	}
	dims := make([]int, 0, outRank)
	inAxis := 0
	for _, newAxis := range isNew {
		if newAxis {
			dims = append(dims, 1)
		} else {
			dims = append(dims, x.shape.Dimensions[inAxis])
			inAxis++
		}
	}
	return Reshape(x, dims...)
}

// InsertAxes inserts new axes of dimension 1 before the given axes of x. An axis equal to -1 (or to the rank
// of x) appends a new axis at the end.
func InsertAxes(x *Tensor, axes ...int) *Tensor {
	x.AssertValid()
	rank := x.Rank()
	before := make([]int, rank+1)
	for _, axis := range axes {
		if axis == -1 {
			axis = rank
		}
		if axis < 0 || axis > rank {
			shapes.Panicf("InsertAxes(%s, %v): axis %d out-of-bounds", x.shape, axes, axis)
		}
		before[axis]++
	}
	dims := make([]int, 0, rank+len(axes))
	for axis := 0; axis <= rank; axis++ {
		for range before[axis] {
			dims = append(dims, 1)
		}
		if axis < rank {
			dims = append(dims, x.shape.Dimensions[axis])
		}
	}
	return Reshape(x, dims...)
}

// BroadcastTo broadcasts x to the given dimensions, following numpy rules: axes are aligned to the right,
// and axes of dimension 1 (or missing leading axes) are repeated.
func BroadcastTo(x *Tensor, dimensions ...int) *Tensor {
	x.AssertValid()
	if err := shapes.CheckBroadcastable(x.shape.Dimensions, dimensions); err != nil {
		panic(err)
	}
	strides := shapes.BroadcastStrides(x.shape.Dimensions, dimensions)
	outShape := shapes.Make(x.DType(), dimensions...)
	flat := make([]float64, outShape.Size())
	for outIdx, indices := range shapes.IterDimensions(dimensions) {
		flat[outIdx] = x.flat[offset(indices, strides)]
	}
	return newTensor(outShape, flat)
}

// offset returns the flat position of the given indices for the strides.
func offset(indices, strides []int) (pos int) {
	for axis, idx := range indices {
		pos += idx * strides[axis]
	}
	return
}

// Transpose permutes the axes of x: axis i of the output is axis permutation[i] of x.
// Without a permutation, the order of the axes is reversed.
func Transpose(x *Tensor, permutation ...int) *Tensor {
	x.AssertValid()
	rank := x.Rank()
	if len(permutation) == 0 {
		permutation = make([]int, rank)
		for ii := range permutation {
			permutation[ii] = rank - 1 - ii
		}
	}
	if len(permutation) != rank {
		shapes.Panicf("Transpose(%s, %v): permutation must have one axis per axis of the tensor", x.shape, permutation)
	}
	seen := make([]bool, rank)
	dims := make([]int, rank)
	inStrides := x.shape.Strides()
	strides := make([]int, rank)
	for ii, axis := range permutation {
		axis = shapes.AdjustAxis(axis, rank)
		if axis < 0 || axis >= rank || seen[axis] {
			shapes.Panicf("Transpose(%s, %v): invalid permutation", x.shape, permutation)
		}
		seen[axis] = true
		dims[ii] = x.shape.Dimensions[axis]
		strides[ii] = inStrides[axis]
	}
	flat := make([]float64, x.Size())
	for outIdx, indices := range shapes.IterDimensions(dims) {
		flat[outIdx] = x.flat[offset(indices, strides)]
	}
	return newTensor(shapes.Make(x.DType(), dims...), flat)
}

// binaryOp applies fn element-wise to lhs and rhs, broadcast together.
func binaryOp(opName string, lhs, rhs *Tensor, fn func(a, b float64) float64) *Tensor {
	lhs.AssertValid()
	rhs.AssertValid()
	dims, err := shapes.BroadcastDimensions(lhs.shape.Dimensions, rhs.shape.Dimensions)
	if err != nil {
		shapes.Panicf("%s(%s, %s): %v", opName, lhs.shape, rhs.shape, err)
	}
	outShape := shapes.Make(promoteDTypes(lhs.DType(), rhs.DType()), dims...)
	flat := make([]float64, outShape.Size())
	if lhs.shape.EqualDimensions(rhs.shape) {
		for ii := range flat {
			flat[ii] = fn(lhs.flat[ii], rhs.flat[ii])
		}
		return newTensor(outShape, flat)
	}
	lhsStrides := shapes.BroadcastStrides(lhs.shape.Dimensions, dims)
	rhsStrides := shapes.BroadcastStrides(rhs.shape.Dimensions, dims)
	for outIdx, indices := range shapes.IterDimensions(dims) {
		flat[outIdx] = fn(lhs.flat[offset(indices, lhsStrides)], rhs.flat[offset(indices, rhsStrides)])
	}
	return newTensor(outShape, flat)
}

// Add returns lhs + rhs, broadcast numpy style.
func Add(lhs, rhs *Tensor) *Tensor {
	return binaryOp("Add", lhs, rhs, func(a, b float64) float64 { return a + b })
}

// Sub returns lhs - rhs, broadcast numpy style.
func Sub(lhs, rhs *Tensor) *Tensor {
	return binaryOp("Sub", lhs, rhs, func(a, b float64) float64 { return a - b })
}

// Mul returns lhs * rhs element-wise, broadcast numpy style.
func Mul(lhs, rhs *Tensor) *Tensor {
	return binaryOp("Mul", lhs, rhs, func(a, b float64) float64 { return a * b })
}

// Div returns lhs / rhs element-wise, broadcast numpy style.
func Div(lhs, rhs *Tensor) *Tensor {
	return binaryOp("Div", lhs, rhs, func(a, b float64) float64 { return a / b })
}

// unaryOp applies fn to each element of x.
func unaryOp(x *Tensor, fn func(v float64) float64) *Tensor {
	x.AssertValid()
	flat := make([]float64, len(x.flat))
	for ii, v := range x.flat {
		flat[ii] = fn(v)
	}
	return newTensor(x.shape.Clone(), flat)
}

// Neg returns -x.
func Neg(x *Tensor) *Tensor { return unaryOp(x, func(v float64) float64 { return -v }) }

// Exp returns e^x, element-wise.
func Exp(x *Tensor) *Tensor { return unaryOp(x, math.Exp) }

// Log returns the natural logarithm of x, element-wise.
func Log(x *Tensor) *Tensor { return unaryOp(x, math.Log) }

// Sqrt returns the square root of x, element-wise.
func Sqrt(x *Tensor) *Tensor { return unaryOp(x, math.Sqrt) }

// Square returns x², element-wise.
func Square(x *Tensor) *Tensor { return unaryOp(x, func(v float64) float64 { return v * v }) }

// MulScalar returns x * scalar.
func MulScalar(x *Tensor, scalar float64) *Tensor {
	return unaryOp(x, func(v float64) float64 { return v * scalar })
}

// AddScalar returns x + scalar.
func AddScalar(x *Tensor, scalar float64) *Tensor {
	return unaryOp(x, func(v float64) float64 { return v + scalar })
}

// reduce folds the given axes of x (all axes if none given) with fn, starting from initial.
// The reduced axes are removed from the output.
func reduce(opName string, x *Tensor, initial float64, fn func(acc, v float64) float64, axes ...int) *Tensor {
	x.AssertValid()
	rank := x.Rank()
	reduced := make([]bool, rank)
	if len(axes) == 0 {
		for axis := range reduced {
			reduced[axis] = true
		}
	}
	for _, axis := range axes {
		adjusted := shapes.AdjustAxis(axis, rank)
		if adjusted < 0 || adjusted >= rank {
			shapes.Panicf("%s(%s, axes=%v): axis %d out-of-bounds", opName, x.shape, axes, axis)
		}
		reduced[adjusted] = true
	}
	var outDims, keptDims []int
	for axis, dim := range x.shape.Dimensions {
		if reduced[axis] {
			keptDims = append(keptDims, 1)
		} else {
			outDims = append(outDims, dim)
			keptDims = append(keptDims, dim)
		}
	}
	outShape := shapes.Make(x.DType(), outDims...)
	flat := make([]float64, outShape.Size())
	for ii := range flat {
		flat[ii] = initial
	}
	outStrides := shapes.BroadcastStrides(keptDims, x.shape.Dimensions)
	for inIdx, indices := range x.shape.Iter() {
		pos := offset(indices, outStrides)
		flat[pos] = fn(flat[pos], x.flat[inIdx])
	}
	return newTensor(outShape, flat)
}

// ReduceSum sums x over the given axes (all axes if none given), removing the reduced axes.
func ReduceSum(x *Tensor, axes ...int) *Tensor {
	return reduce("ReduceSum", x, 0, func(acc, v float64) float64 { return acc + v }, axes...)
}

// ReduceProd multiplies x over the given axes (all axes if none given), removing the reduced axes.
func ReduceProd(x *Tensor, axes ...int) *Tensor {
	return reduce("ReduceProd", x, 1, func(acc, v float64) float64 { return acc * v }, axes...)
}

// ReduceAllSum sums all the values of x, returning a scalar.
func ReduceAllSum(x *Tensor) *Tensor {
	return ReduceSum(x)
}
