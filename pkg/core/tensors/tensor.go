/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package tensors implement a `Tensor`, a representation of a dense multidimensional array of floats.
//
// Tensors are multidimensional arrays (from scalar with 0 dimensions, to arbitrarily large dimensions), defined
// by their shape (a data type and its axes' dimensions) and their actual content.
//
// Tensors are immutable: every operation in this package (and in the packages built on top of it) returns a
// new Tensor, and never changes its inputs. So tensors can be freely shared, including across goroutines.
//
// Only the floating point dtypes `Float32` and `Float64` are supported. Values are always stored in float64,
// but a `Float32` tensor holds values rounded to float32 precision, after every operation.
// Binary operations on operands of different dtypes return `Float64`.
//
// There are various ways to construct a Tensor from local data:
//
//   - FromShape(shape shapes.Shape): creates a tensor with the given shape, and zero values.
//
//   - FromScalarAndDimensions[T constraints.Float](value T, dimensions ...int): creates a Tensor with the
//     given dimensions, filled with the scalar value given.
//
//   - FromFlatDataAndDimensions[T constraints.Float](data []T, dimensions ...int): creates a Tensor with the
//     given dimensions and set the flattened values with the given data. Example:
//
//     t := FromFlatDataAndDimensions([]float64{1, 2, 3, 4}, 2, 2}) // Tensor with [[1,2], [3,4]]
//
//   - FromValue[S MultiDimensionSlice](value S): Generic conversion works with float32 and float64 scalars,
//     as well as with any arbitrary multidimensional slice of them. Slices of rank > 1 must be regular, that is
//     all the sub-slices must have the same shape. Example:
//
//     t := FromValue([][]float64{{1,2}, {3, 5}, {7, 11}})`
//
//   - FromAnyValue(value any): same as FromValue but non-generic, it takes an anonymous type `any`. Integer
//     values are converted to Float64. The exception is if `value` is already a tensor, then it is a no-op,
//     and it returns the tensor itself.
//
// Operations (see ops.go and einsum.go) panic on invalid shapes, with errors that wrap shapes.ErrShape,
// much like the operations of a computation graph. Higher level packages convert those panics to
// errors with exceptions.TryCatch.
package tensors

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gsa/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Tensor represents a multidimensional array (from scalar with 0 dimensions, to arbitrarily large dimensions),
// defined by its shape, a data type (dtypes.DType) and its axes' dimensions, and its actual content stored as
// a flat (1D) row-major array of values.
//
// It's immutable: its shape and values never change after construction.
type Tensor struct {
	// shape of the tensor.
	shape shapes.Shape

	// flat values in row-major order. For Float32 tensors the values are already rounded.
	flat []float64
}

// newTensor returns a Tensor that takes ownership of flat. The values are rounded to the precision
// of the dtype.
func newTensor(shape shapes.Shape, flat []float64) *Tensor {
	checkDType(shape.DType)
	if len(flat) != shape.Size() {
		shapes.Panicf("tensor data size is %d, but shape %s has size %d", len(flat), shape, shape.Size())
	}
	if shape.DType == dtypes.Float32 {
		for ii, v := range flat {
			flat[ii] = float64(float32(v))
		}
	}
	return &Tensor{shape: shape, flat: flat}
}

// checkDType panics if the dtype is not supported by tensors.
func checkDType(dtype dtypes.DType) {
	if dtype != dtypes.Float32 && dtype != dtypes.Float64 {
		panic(errors.Errorf("tensors only support dtypes Float32 and Float64, got %s", dtype))
	}
}

// promoteDTypes returns the dtype of the result of an operation with operands of the given dtypes.
func promoteDTypes(dtype0, dtype1 dtypes.DType) dtypes.DType {
	if dtype0 == dtype1 {
		return dtype0
	}
	return dtypes.Float64
}

// Shape of the tensor, includes DType.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType returns the DType of the tensor's shape.
// It is a shortcut to `Tensor.Shape().DType`.
func (t *Tensor) DType() dtypes.DType {
	return t.shape.DType
}

// Rank returns the rank of the tensor's shape.
// It is a shortcut to `Tensor.Shape().Rank()`.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// IsScalar returns whether the tensor represents a scalar value.
// It is a shortcut to `Tensor.Shape().IsScalar()`.
func (t *Tensor) IsScalar() bool { return t.shape.IsScalar() }

// Size returns the number of elements in the tensor.
// It is a shortcut to `Tensor.Shape().Size()`.
func (t *Tensor) Size() int { return t.shape.Size() }

// Dim returns the dimension of the given axis, negative axes count from the end.
// It is a shortcut to `Tensor.Shape().Dim(axis)`.
func (t *Tensor) Dim(axis int) int { return t.shape.Dim(axis) }

// Ok returns whether the Tensor is in a valid state: it is not nil, and it has a valid shape.
func (t *Tensor) Ok() bool {
	return t != nil && t.shape.Ok() && len(t.flat) == t.shape.Size()
}

// AssertValid panics if the tensor is nil, or if its shape is invalid.
func (t *Tensor) AssertValid() {
	if t == nil {
		panic(errors.New("Tensor is nil"))
	}
	if !t.shape.Ok() {
		panic(errors.New("Tensor shape is invalid"))
	}
}

// ConstFlatData calls accessFn with the flattened data, in row-major order.
// Even scalar values have a flattened data representation of one element.
//
// This provides accessFn with the actual Tensor data (not a copy), and it must not be changed.
// See CopyFlatData to get a copy instead.
func (t *Tensor) ConstFlatData(accessFn func(flat []float64)) {
	t.AssertValid()
	accessFn(t.flat)
}

// CopyFlatData returns a copy of the flat data of the Tensor, in row-major order.
func (t *Tensor) CopyFlatData() []float64 {
	t.AssertValid()
	flat := make([]float64, len(t.flat))
	copy(flat, t.flat)
	return flat
}

// ToScalar returns the value of a tensor with exactly one element (a scalar, or any shape of size 1).
//
// It panics if the tensor has more than one element.
func (t *Tensor) ToScalar() float64 {
	t.AssertValid()
	if t.Size() != 1 {
		shapes.Panicf("ToScalar() requires a tensor with one element, got shape %s", t.shape)
	}
	return t.flat[0]
}

// At returns the value at the given indices, one per axis. Negative indices count from the end of the axis.
func (t *Tensor) At(indices ...int) float64 {
	t.AssertValid()
	if len(indices) != t.Rank() {
		shapes.Panicf("At() got %d indices for a tensor of shape %s", len(indices), t.shape)
	}
	strides := t.shape.Strides()
	pos := 0
	for axis, idx := range indices {
		dim := t.shape.Dimensions[axis]
		if idx < 0 {
			idx += dim
		}
		if idx < 0 || idx >= dim {
			shapes.Panicf("At(%v) index out-of-bounds for axis %d of shape %s", indices, axis, t.shape)
		}
		pos += idx * strides[axis]
	}
	return t.flat[pos]
}

// LayoutStrides return the strides for each axis. This can be handy when manipulating the flat data.
func (t *Tensor) LayoutStrides() (strides []int) {
	return t.shape.Strides()
}
