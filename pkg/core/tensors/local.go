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

package tensors

import (
	"fmt"
	"math"
	"reflect"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gsa/pkg/core/shapes"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// MultiDimensionSlice lists the Go types a Tensor can be converted to/from. There are no recursions in
// generics' constraint definitions, so we enumerate up to 6 levels of slices. Feel free to add
// more if needed, the implementation will work with any arbitrary number.
type MultiDimensionSlice interface {
	float32 | float64 |
		[]float32 | []float64 |
		[][]float32 | [][]float64 |
		[][][]float32 | [][][]float64 |
		[][][][]float32 | [][][][]float64 |
		[][][][][]float32 | [][][][][]float64 |
		[][][][][][]float32 | [][][][][][]float64
}

// dtypeForFloat returns the DType for the generic float type T.
func dtypeForFloat[T constraints.Float]() dtypes.DType {
	var zero T
	if reflect.TypeOf(zero).Kind() == reflect.Float32 {
		return dtypes.Float32
	}
	return dtypes.Float64
}

// FromShape returns a Tensor with the given shape, with the data initialized with zeros.
func FromShape(shape shapes.Shape) (t *Tensor) {
	return newTensor(shape.Clone(), make([]float64, shape.Size()))
}

// FromScalar creates a Float64 scalar tensor with the given value.
func FromScalar(value float64) (t *Tensor) {
	return FromScalarAndDimensions(value)
}

// FromScalarAndDimensions creates a local tensor with the given dimensions, filled with the
// given scalar value replicated everywhere.
// The `DType` is inferred from the value.
func FromScalarAndDimensions[T constraints.Float](value T, dimensions ...int) (t *Tensor) {
	shape := shapes.Make(dtypeForFloat[T](), dimensions...)
	flat := make([]float64, shape.Size())
	for ii := range flat {
		flat[ii] = float64(value)
	}
	return newTensor(shape, flat)
}

// FromFlatDataAndDimensions creates a tensor with the given dimensions, filled with the flattened values given in `data`.
// The data is copied to the Tensor.
// The `DType` is inferred from the `data` type.
func FromFlatDataAndDimensions[T constraints.Float](data []T, dimensions ...int) (t *Tensor) {
	shape := shapes.Make(dtypeForFloat[T](), dimensions...)
	if len(data) != shape.Size() {
		shapes.Panicf("FromFlatDataAndDimensions(%s): data size is %d, but dimensions size is %d", shape, len(data), shape.Size())
	}
	flat := make([]float64, len(data))
	for ii, v := range data {
		flat[ii] = float64(v)
	}
	return newTensor(shape, flat)
}

// FromFlatDataAndShape creates a tensor with the given shape (including the dtype) and flat data in row-major
// order. The data is copied to the Tensor.
func FromFlatDataAndShape(shape shapes.Shape, data []float64) (t *Tensor) {
	if len(data) != shape.Size() {
		shapes.Panicf("FromFlatDataAndShape(%s): data size is %d, but shape size is %d", shape, len(data), shape.Size())
	}
	flat := make([]float64, len(data))
	copy(flat, data)
	return newTensor(shape.Clone(), flat)
}

// FromValue returns a tensor constructed from the given multi-dimension slice (or scalar).
// If the rank of the `value` is larger than 1, the shape of all sub-slices must be the same.
//
// It panics if the shape is not regular.
//
// Notice that FromFlatDataAndDimensions is much faster if speed here is a concern.
func FromValue[S MultiDimensionSlice](value S) *Tensor {
	return FromAnyValue(value)
}

// FromAnyValue is a non-generic version of FromValue.
// The input is expected to be either a scalar or a slice of slices with homogeneous dimensions, of floats or
// integers -- integers are converted to Float64.
// If the input is a tensor already, it is simply returned.
//
// It panics with an error if `value` type is unsupported or the shape is not regular.
func FromAnyValue(value any) (t *Tensor) {
	if valueT, ok := value.(*Tensor); ok {
		// Input is already a Tensor.
		valueT.AssertValid()
		return valueT
	}
	if value == nil {
		panic(errors.New("cannot create a tensor from a nil value"))
	}
	shape, err := shapeForValue(value)
	if err != nil {
		panic(errors.Wrapf(err, "cannot create shape from %T", value))
	}
	flat := make([]float64, 0, shape.Size())
	flat = appendValuesRecursively(flat, reflect.ValueOf(value))
	return newTensor(shape, flat)
}

// FromAnyValueOrError is like FromAnyValue, but it returns an error instead of panicking.
func FromAnyValueOrError(value any) (t *Tensor, err error) {
	err = exceptions.TryCatch[error](func() { t = FromAnyValue(value) })
	if err != nil {
		return nil, err
	}
	return t, nil
}

// appendValuesRecursively appends the values of a multi-dimension slice (or scalar) to flat in row-major order.
func appendValuesRecursively(flat []float64, v reflect.Value) []float64 {
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for ii := range v.Len() {
			flat = appendValuesRecursively(flat, v.Index(ii))
		}
	case reflect.Float32, reflect.Float64:
		flat = append(flat, v.Float())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		flat = append(flat, float64(v.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		flat = append(flat, float64(v.Uint()))
	default:
		exceptions.Panicf("cannot convert value of type %s to a tensor", v.Type())
	}
	return flat
}

func shapeForValue(v any) (shape shapes.Shape, err error) {
	err = shapeForValueRecursive(&shape, reflect.ValueOf(v), reflect.TypeOf(v))
	return
}

func shapeForValueRecursive(shape *shapes.Shape, v reflect.Value, t reflect.Type) error {
	if t.Kind() == reflect.Slice {
		// Recurse into inner slices.
		t = t.Elem()
		shape.Dimensions = append(shape.Dimensions, v.Len())
		shapePrefix := shape.Clone()

		// The first element is the reference
		if v.Len() == 0 {
			return shapes.Errorf("value with empty slice not valid for Tensor conversion: %T: %v", v.Interface(), v)
		}
		v0 := v.Index(0)
		err := shapeForValueRecursive(shape, v0, t)
		if err != nil {
			return err
		}

		// Test that other elements have the same shape as the first one.
		for ii := 1; ii < v.Len(); ii++ {
			shapeTest := shapePrefix.Clone()
			err = shapeForValueRecursive(&shapeTest, v.Index(ii), t)
			if err != nil {
				return err
			}
			if !shape.Equal(shapeTest) {
				return shapes.Errorf("sub-slices have irregular shapes, found shapes %q, and %q", shape, shapeTest)
			}
		}
	} else if t.Kind() == reflect.Pointer {
		return fmt.Errorf("cannot convert Pointer (%s) to a concrete value for tensors", t)
	} else {
		switch t.Kind() {
		case reflect.Float32:
			shape.DType = dtypes.Float32
		case reflect.Float64,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			shape.DType = dtypes.Float64
		default:
			shape.DType = dtypes.InvalidDType
			return fmt.Errorf("cannot convert type %s to a value concrete tensor type (only floats and integers are supported)", t)
		}
	}
	return nil
}

// Value returns a multidimensional slice (except if shape is a scalar) containing a copy of the values stored
// in the tensor. The Go type is float32 for Float32 tensors and float64 for Float64 tensors, so the value
// of a Float64 tensor of shape [2, 3] is returned as a [][]float64.
//
// This is expensive, and usually only used for smaller tensors in tests and to print results.
func (t *Tensor) Value() any {
	t.AssertValid()
	var flatCopyV reflect.Value
	if t.DType() == dtypes.Float32 {
		flat32 := make([]float32, len(t.flat))
		for ii, v := range t.flat {
			flat32[ii] = float32(v)
		}
		flatCopyV = reflect.ValueOf(flat32)
	} else {
		flatCopyV = reflect.ValueOf(t.CopyFlatData())
	}
	if t.shape.IsScalar() {
		return flatCopyV.Index(0).Interface()
	}
	if t.shape.Rank() == 1 {
		return flatCopyV.Interface()
	}
	return convertDataToSlices(flatCopyV, t.shape.Dimensions...).Interface()
}

// convertDataToSlices takes data as a flat slice, and creates a multidimensional slices with the given dimensions that
// points to the given data.
func convertDataToSlices(dataV reflect.Value, dimensions ...int) reflect.Value {
	if len(dimensions) <= 1 {
		return dataV
	}
	resultT := dataV.Type().Elem()
	for range dimensions {
		resultT = reflect.SliceOf(resultT)
	}
	return createSlicesRecursively(resultT, dataV, dimensions, shapes.StridesFor(dimensions))
}

// createSlicesRecursively recursively creates slices copy values on a multi-dimension slice to a flat data slice
// assuming the strides for each dimension.
func createSlicesRecursively(resultT reflect.Type, data reflect.Value, dimensions []int, strides []int) reflect.Value {
	if len(strides) == 1 {
		// Last level of slice, just copy over the slice (not the data, just the slice).
		return data
	}

	numElements := dimensions[0]
	slice := reflect.MakeSlice(resultT, numElements, numElements)

	subStrides := strides[1:]
	subDimensions := dimensions[1:]
	subResultT := resultT.Elem()
	for ii := 0; ii < numElements; ii++ {
		start := ii * strides[0]
		end := (ii + 1) * strides[0]
		subData := data.Slice(start, end)
		subSlice := createSlicesRecursively(subResultT, subData, subDimensions, subStrides)
		slice.Index(ii).Set(subSlice)
	}
	return slice
}

// Equal checks weather t == otherTensor.
// If they are the same pointer they are considered equal.
// If the shapes are different it returns false.
// If either are invalid (nil) it panics.
func (t *Tensor) Equal(otherTensor *Tensor) bool {
	t.AssertValid()
	otherTensor.AssertValid()
	if t == otherTensor {
		return true
	}
	if !t.shape.Equal(otherTensor.shape) {
		return false
	}
	for ii, v := range t.flat {
		if v != otherTensor.flat[ii] {
			return false
		}
	}
	return true
}

// InDelta checks weather Abs(t - otherTensor) <= delta for every element.
// If they are the same pointer they are considered equal.
// If the dimensions are different it returns false, but dtypes are not compared.
// If either are invalid (nil) it panics.
func (t *Tensor) InDelta(otherTensor *Tensor, delta float64) bool {
	t.AssertValid()
	otherTensor.AssertValid()
	if t == otherTensor {
		return true
	}
	if !t.shape.EqualDimensions(otherTensor.shape) {
		return false
	}
	for ii, v := range t.flat {
		other := otherTensor.flat[ii]
		if math.IsNaN(v) || math.IsNaN(other) {
			if math.IsNaN(v) != math.IsNaN(other) {
				return false
			}
			continue
		}
		if math.Abs(v-other) > delta {
			return false
		}
	}
	return true
}

// IsFinite returns whether all values of the tensor are finite: not NaN nor infinite.
func (t *Tensor) IsFinite() bool {
	t.AssertValid()
	for _, v := range t.flat {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
