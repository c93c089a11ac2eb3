// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package variance implements Variance, a validated covariance matrix, along with its lower Cholesky factor.
//
// A Variance is created with a builder:
//
//	v, err := variance.New([][]float64{{1, 0.5}, {0.5, 2}}).Name("noise").CholeskyFloor(1e-4).Done()
//
// The matrix must be square, symmetric (within a tolerance) and positive-definite. A vector is interpreted as
// a diagonal matrix. The diagonal of the Cholesky factor is clamped to a floor (DefaultCholeskyFloor by default),
// and in that case the value is recomputed from the clamped factor, so that Value() == Cholesky()·Cholesky()ᵀ
// always holds.
//
// A Variance is immutable and can be shared.
package variance

import (
	"fmt"
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gsa/pkg/core/linalg"
	"github.com/gomlx/gsa/pkg/core/shapes"
	"github.com/gomlx/gsa/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrInvalidCovariance is wrapped by the errors reporting a matrix that is not a valid covariance:
// not symmetric, not positive-definite, or with non-finite values.
var ErrInvalidCovariance = errors.New("invalid covariance matrix")

const (
	// DefaultCholeskyFloor is the smallest value allowed in the diagonal of the Cholesky factor.
	DefaultCholeskyFloor = 1e-3

	// DefaultTolerance is the default tolerance of the symmetry check, relative to the largest absolute value
	// of the matrix (or 1, if larger).
	DefaultTolerance = 1e-6
)

// Builder for a Variance, see New.
type Builder struct {
	value     any
	name      string
	floor     float64
	tolerance float64
}

// New starts building a Variance from value, which can be a *tensors.Tensor, a Go slice accepted by
// tensors.FromAnyValue (a matrix or a vector), or another *Variance.
// Optional parameters are set with the Builder methods, and the Variance is created with Builder.Done.
func New(value any) *Builder {
	return &Builder{
		value:     value,
		floor:     DefaultCholeskyFloor,
		tolerance: DefaultTolerance,
	}
}

// Name sets the name of the Variance, used in error messages and logs.
func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

// CholeskyFloor sets the smallest value allowed in the diagonal of the Cholesky factor. Default is DefaultCholeskyFloor.
// A floor of 0 disables clamping.
func (b *Builder) CholeskyFloor(floor float64) *Builder {
	b.floor = floor
	return b
}

// Tolerance sets the relative tolerance of the symmetry check. Default is DefaultTolerance.
func (b *Builder) Tolerance(tolerance float64) *Builder {
	b.tolerance = tolerance
	return b
}

// Done validates the matrix and returns the Variance.
//
// Errors wrap shapes.ErrShape if the value is not a vector or a square matrix, and ErrInvalidCovariance
// if it is not a valid covariance matrix.
func (b *Builder) Done() (*Variance, error) {
	name := b.name
	value := b.value
	if other, ok := value.(*Variance); ok {
		if name == "" {
			name = other.name
		}
		value = other.value
	}
	if name == "" {
		name = "Variance"
	}
	if b.floor < 0 || math.IsNaN(b.floor) {
		return nil, errors.Errorf("variance %q: invalid Cholesky floor %g", name, b.floor)
	}
	if b.tolerance < 0 || math.IsNaN(b.tolerance) {
		return nil, errors.Errorf("variance %q: invalid symmetry tolerance %g", name, b.tolerance)
	}
	t, err := tensors.FromAnyValueOrError(value)
	if err != nil {
		return nil, errors.WithMessagef(err, "variance %q", name)
	}

	v := &Variance{name: name, floor: b.floor}
	err = exceptions.TryCatch[error](func() { v.build(t, b.tolerance) })
	if err != nil {
		return nil, errors.WithMessagef(err, "variance %q", name)
	}
	return v, nil
}

// build validates t and sets the value and the Cholesky factor. It panics on errors.
func (v *Variance) build(t *tensors.Tensor, tolerance float64) {
	switch t.Rank() {
	case 1:
		t = linalg.MatrixDiag(t)
	case 2:
		if t.Dim(0) != t.Dim(1) {
			shapes.Panicf("covariance matrix must be square, got shape %s", t.Shape())
		}
	default:
		shapes.Panicf("covariance must be a vector or a square matrix, got shape %s", t.Shape())
	}
	if !t.IsFinite() {
		panic(errors.Wrap(ErrInvalidCovariance, "matrix has non-finite values"))
	}
	if asymmetry, scale := symmetryError(t); asymmetry > tolerance*scale {
		panic(errors.Wrapf(ErrInvalidCovariance, "matrix is not symmetric (max asymmetry %g)", asymmetry))
	}

	var chol *tensors.Tensor
	if err := exceptions.TryCatch[error](func() { chol = linalg.Cholesky(t) }); err != nil {
		panic(errors.Wrapf(ErrInvalidCovariance, "%v", err))
	}

	// Clamp the diagonal of the factor.
	l := t.Dim(0)
	flat := chol.CopyFlatData()
	var clamped int
	for ii := range l {
		if flat[ii*l+ii] < v.floor {
			flat[ii*l+ii] = v.floor
			clamped++
		}
	}
	if clamped > 0 {
		klog.V(1).Infof("variance %q: clamped %d Cholesky diagonal entries to the floor %g", v.name, clamped, v.floor)
		chol = tensors.FromFlatDataAndShape(chol.Shape(), flat)
		t = linalg.MatMul(chol, tensors.Transpose(chol))
	}
	v.value = t
	v.cholesky = chol
	v.choDiagonal = linalg.DiagPart(chol)
}

// symmetryError returns the largest absolute difference between t and its transpose, and the scale
// used for the tolerance: the largest absolute value of t, or 1 if larger.
func symmetryError(t *tensors.Tensor) (asymmetry, scale float64) {
	scale = 1
	l := t.Dim(0)
	t.ConstFlatData(func(flat []float64) {
		for row := range l {
			for col := range l {
				scale = max(scale, math.Abs(flat[row*l+col]))
				if col > row {
					asymmetry = max(asymmetry, math.Abs(flat[row*l+col]-flat[col*l+row]))
				}
			}
		}
	})
	return
}

// Variance is a validated covariance matrix of shape [L, L], with its lower Cholesky factor.
type Variance struct {
	name                         string
	value, cholesky, choDiagonal *tensors.Tensor
	floor                        float64
}

// Name of the variance.
func (v *Variance) Name() string { return v.name }

// Shape of the covariance matrix, [L, L].
func (v *Variance) Shape() shapes.Shape { return v.value.Shape() }

// Dim returns L, the dimension of the covariance matrix.
func (v *Variance) Dim() int { return v.value.Dim(0) }

// Value returns the covariance matrix, shaped [L, L].
func (v *Variance) Value() *tensors.Tensor { return v.value }

// Cholesky returns the lower triangular Cholesky factor C of the value (Value = C·Cᵀ), shaped [L, L].
func (v *Variance) Cholesky() *tensors.Tensor { return v.cholesky }

// CholeskyDiagonal returns the diagonal of the Cholesky factor, shaped [L]. All values are >= Floor.
func (v *Variance) CholeskyDiagonal() *tensors.Tensor { return v.choDiagonal }

// Floor returns the smallest value allowed in the diagonal of the Cholesky factor.
func (v *Variance) Floor() float64 { return v.floor }

// ValueTimesEye returns the Kronecker product Value ⊗ I_n, shaped [L*n, L*n].
// The rows and columns are indexed by l*n + i, that is, the L axis comes before the n axis: this is the
// covariance of n independent repetitions of the noise, flattened in L-major order.
func (v *Variance) ValueTimesEye(n int) (*tensors.Tensor, error) {
	if n <= 0 {
		return nil, shapes.Errorf("variance %q: ValueTimesEye(%d) requires a positive number of datapoints", v.name, n)
	}
	var result *tensors.Tensor
	err := exceptions.TryCatch[error](func() {
		result = linalg.Kronecker(v.value, linalg.Eye(v.value.DType(), n))
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "variance %q", v.name)
	}
	return result, nil
}

// String implements fmt.Stringer.
func (v *Variance) String() string {
	return fmt.Sprintf("Variance %q %s", v.name, v.value.Shape())
}
