// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package linalg implements batched linear algebra operations on tensors.Tensor, backed by gonum.
//
// Matrix operations work on the last 2 axes of their operands, and the leading axes are batch axes.
// When an operation takes 2 operands, their batch axes are broadcast together, numpy style.
//
// Like the operations in package tensors, they panic on invalid shapes (with errors wrapping
// shapes.ErrShape) and on failed factorizations (with errors wrapping ErrNotPositiveDefinite or ErrSingular).
package linalg

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gsa/pkg/core/shapes"
	"github.com/gomlx/gsa/pkg/core/tensors"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

var (
	// ErrNotPositiveDefinite is wrapped by errors of Cholesky when a matrix is not positive-definite.
	ErrNotPositiveDefinite = errors.New("matrix is not positive definite")

	// ErrSingular is wrapped by errors of the triangular solvers when the triangular matrix has a zero
	// on its diagonal.
	ErrSingular = errors.New("matrix is singular")
)

// promoteDTypes returns Float32 if both operands are Float32, and Float64 otherwise.
func promoteDTypes(dtype0, dtype1 dtypes.DType) dtypes.DType {
	if dtype0 == dtype1 {
		return dtype0
	}
	return dtypes.Float64
}

// checkMatrices panics if x is not a batch of matrices. It returns the batch dimensions, and the matrix
// dimensions.
func checkMatrices(opName string, x *tensors.Tensor) (batchDims []int, rows, cols int) {
	x.AssertValid()
	if err := x.Shape().CheckMinRank(2); err != nil {
		panic(errors.WithMessagef(err, "linalg.%s", opName))
	}
	dims := x.Shape().Dimensions
	return dims[:len(dims)-2], x.Dim(-2), x.Dim(-1)
}

// checkSquare panics if x is not a batch of square matrices. It returns the batch dimensions
// and the matrix dimension.
func checkSquare(opName string, x *tensors.Tensor) (batchDims []int, k int) {
	batchDims, rows, cols := checkMatrices(opName, x)
	if rows != cols {
		shapes.Panicf("linalg.%s: operand of shape %s is not a batch of square matrices", opName, x.Shape())
	}
	return batchDims, rows
}

// batchOffsets returns, for each position of the batch dimensions (in row-major order), the offset in the flat data of
// x of its corresponding matrix. x batch dimensions must be broadcastable to batchDims.
func batchOffsets(x *tensors.Tensor, batchDims []int) []int {
	dims := x.Shape().Dimensions
	xBatch := dims[:len(dims)-2]
	matrixSize := x.Dim(-2) * x.Dim(-1)
	strides := shapes.BroadcastStrides(xBatch, batchDims)
	offsets := make([]int, 0, shapes.Make(dtypes.Float64, batchDims...).Size())
	for _, indices := range shapes.IterDimensions(batchDims) {
		pos := 0
		for axis, idx := range indices {
			pos += idx * strides[axis]
		}
		offsets = append(offsets, pos*matrixSize)
	}
	return offsets
}

// broadcastBatch returns the broadcast of the batch dimensions of a and b.
func broadcastBatch(opName string, a, b *tensors.Tensor, batchA, batchB []int) []int {
	batchDims, err := shapes.BroadcastDimensions(batchA, batchB)
	if err != nil {
		panic(errors.WithMessagef(err, "linalg.%s(%s, %s): batch axes", opName, a.Shape(), b.Shape()))
	}
	return batchDims
}

// Cholesky returns the lower triangular Cholesky factor L of each matrix A in x, so that A = L·Lᵀ.
// Only the lower triangle of each matrix is read.
//
// It panics with an error wrapping ErrNotPositiveDefinite if the factorization fails.
func Cholesky(x *tensors.Tensor) *tensors.Tensor {
	batchDims, k := checkSquare("Cholesky", x)
	out := make([]float64, x.Size())
	x.ConstFlatData(func(flat []float64) {
		sym := mat.NewSymDense(k, nil)
		var chol mat.Cholesky
		var lower mat.TriDense
		for _, pos := range batchOffsets(x, batchDims) {
			for row := range k {
				for col := 0; col <= row; col++ {
					sym.SetSym(row, col, flat[pos+row*k+col])
				}
			}
			if ok := chol.Factorize(sym); !ok {
				panic(errors.Wrapf(ErrNotPositiveDefinite, "linalg.Cholesky(%s)", x.Shape()))
			}
			chol.LTo(&lower)
			for row := range k {
				for col := 0; col <= row; col++ {
					out[pos+row*k+col] = lower.At(row, col)
				}
			}
		}
	})
	return tensors.FromFlatDataAndShape(x.Shape(), out)
}

// triangularFrom returns a gonum TriDense from the matrix at position pos of flat.
// Only the triangle selected by lower is copied.
func triangularFrom(flat []float64, pos, k int, lower bool) *mat.TriDense {
	kind := mat.Upper
	if lower {
		kind = mat.Lower
	}
	tri := mat.NewTriDense(k, kind, nil)
	for row := range k {
		for col := range k {
			if (lower && col <= row) || (!lower && col >= row) {
				tri.SetTri(row, col, flat[pos+row*k+col])
			}
		}
	}
	return tri
}

// solveTriangular solves tri·X = b, storing X in dst.
func solveTriangular(opName string, dst *mat.Dense, tri *mat.TriDense, b mat.Matrix) {
	k, _ := tri.Dims()
	for ii := range k {
		if tri.At(ii, ii) == 0 {
			panic(errors.Wrapf(ErrSingular, "linalg.%s: zero on the diagonal at position %d", opName, ii))
		}
	}
	err := dst.Solve(tri, b)
	if err == nil {
		return
	}
	var cond mat.Condition
	if errors.As(err, &cond) {
		// The solution is still returned by gonum: only report it.
		klog.V(1).Infof("linalg.%s: ill-conditioned triangular matrix (condition number %g)", opName, float64(cond))
		return
	}
	panic(errors.Wrapf(err, "linalg.%s", opName))
}

// TriangularSolve solves a·X = rhs for X, where a is a batch of lower (if lower is true) or upper triangular
// matrices of shape [..., k, k], and rhs has shape [..., k, m]. The batch axes of a and rhs are broadcast
// together, and the result has shape [<broadcast batch>..., k, m].
//
// Only the triangle of a selected by lower is read.
func TriangularSolve(a, rhs *tensors.Tensor, lower bool) *tensors.Tensor {
	batchA, k := checkSquare("TriangularSolve", a)
	batchB, rows, m := checkMatrices("TriangularSolve", rhs)
	if rows != k {
		shapes.Panicf("linalg.TriangularSolve(%s, %s): incompatible matrix dimensions", a.Shape(), rhs.Shape())
	}
	batchDims := broadcastBatch("TriangularSolve", a, rhs, batchA, batchB)
	outDims := append(append([]int{}, batchDims...), k, m)
	outShape := shapes.Make(promoteDTypes(a.DType(), rhs.DType()), outDims...)
	out := make([]float64, outShape.Size())
	a.ConstFlatData(func(flatA []float64) {
		rhs.ConstFlatData(func(flatB []float64) {
			offsetsA := batchOffsets(a, batchDims)
			offsetsB := batchOffsets(rhs, batchDims)
			var x mat.Dense
			for batchIdx := range offsetsA {
				tri := triangularFrom(flatA, offsetsA[batchIdx], k, lower)
				b := mat.NewDense(k, m, flatB[offsetsB[batchIdx]:offsetsB[batchIdx]+k*m])
				x.Reset()
				solveTriangular("TriangularSolve", &x, tri, b)
				mat.NewDense(k, m, out[batchIdx*k*m:(batchIdx+1)*k*m]).Copy(&x)
			}
		})
	})
	return tensors.FromFlatDataAndShape(outShape, out)
}

// CholeskySolve solves A·X = rhs for X, given chol, the lower triangular Cholesky factor of A (A = L·Lᵀ).
// It uses 2 triangular solves (L·Y = rhs, Lᵀ·X = Y), without ever inverting A.
//
// Shapes and broadcasting are as with TriangularSolve.
func CholeskySolve(chol, rhs *tensors.Tensor) *tensors.Tensor {
	batchA, k := checkSquare("CholeskySolve", chol)
	batchB, rows, m := checkMatrices("CholeskySolve", rhs)
	if rows != k {
		shapes.Panicf("linalg.CholeskySolve(%s, %s): incompatible matrix dimensions", chol.Shape(), rhs.Shape())
	}
	batchDims := broadcastBatch("CholeskySolve", chol, rhs, batchA, batchB)
	outDims := append(append([]int{}, batchDims...), k, m)
	outShape := shapes.Make(promoteDTypes(chol.DType(), rhs.DType()), outDims...)
	out := make([]float64, outShape.Size())
	chol.ConstFlatData(func(flatA []float64) {
		rhs.ConstFlatData(func(flatB []float64) {
			offsetsA := batchOffsets(chol, batchDims)
			offsetsB := batchOffsets(rhs, batchDims)
			var y, x mat.Dense
			for batchIdx := range offsetsA {
				lowerTri := triangularFrom(flatA, offsetsA[batchIdx], k, true)
				upperTri := mat.NewTriDense(k, mat.Upper, nil)
				for row := range k {
					for col := row; col < k; col++ {
						upperTri.SetTri(row, col, lowerTri.At(col, row))
					}
				}
				b := mat.NewDense(k, m, flatB[offsetsB[batchIdx]:offsetsB[batchIdx]+k*m])
				y.Reset()
				solveTriangular("CholeskySolve", &y, lowerTri, b)
				x.Reset()
				solveTriangular("CholeskySolve", &x, upperTri, &y)
				mat.NewDense(k, m, out[batchIdx*k*m:(batchIdx+1)*k*m]).Copy(&x)
			}
		})
	})
	return tensors.FromFlatDataAndShape(outShape, out)
}

// MatMul returns the matrix multiplication of a (shape [..., n, k]) and b (shape [..., k, m]), with the batch
// axes broadcast together.
func MatMul(a, b *tensors.Tensor) *tensors.Tensor {
	batchA, n, k := checkMatrices("MatMul", a)
	batchB, rows, m := checkMatrices("MatMul", b)
	if rows != k {
		shapes.Panicf("linalg.MatMul(%s, %s): incompatible matrix dimensions", a.Shape(), b.Shape())
	}
	batchDims := broadcastBatch("MatMul", a, b, batchA, batchB)
	outDims := append(append([]int{}, batchDims...), n, m)
	outShape := shapes.Make(promoteDTypes(a.DType(), b.DType()), outDims...)
	out := make([]float64, outShape.Size())
	a.ConstFlatData(func(flatA []float64) {
		b.ConstFlatData(func(flatB []float64) {
			offsetsA := batchOffsets(a, batchDims)
			offsetsB := batchOffsets(b, batchDims)
			for batchIdx := range offsetsA {
				matA := mat.NewDense(n, k, flatA[offsetsA[batchIdx]:offsetsA[batchIdx]+n*k])
				matB := mat.NewDense(k, m, flatB[offsetsB[batchIdx]:offsetsB[batchIdx]+k*m])
				mat.NewDense(n, m, out[batchIdx*n*m:(batchIdx+1)*n*m]).Mul(matA, matB)
			}
		})
	})
	return tensors.FromFlatDataAndShape(outShape, out)
}

// DiagPart returns the diagonal of each matrix of x, of shape [..., min(rows, cols)].
func DiagPart(x *tensors.Tensor) *tensors.Tensor {
	batchDims, rows, cols := checkMatrices("DiagPart", x)
	k := min(rows, cols)
	outShape := shapes.Make(x.DType(), append(append([]int{}, batchDims...), k)...)
	out := make([]float64, 0, outShape.Size())
	x.ConstFlatData(func(flat []float64) {
		for _, pos := range batchOffsets(x, batchDims) {
			for ii := range k {
				out = append(out, flat[pos+ii*cols+ii])
			}
		}
	})
	return tensors.FromFlatDataAndShape(outShape, out)
}

// MatrixDiag returns a batch of diagonal matrices (shape [..., k, k]) whose diagonals are given by the last
// axis of x (shape [..., k]).
func MatrixDiag(x *tensors.Tensor) *tensors.Tensor {
	x.AssertValid()
	if err := x.Shape().CheckMinRank(1); err != nil {
		panic(errors.WithMessage(err, "linalg.MatrixDiag"))
	}
	k := x.Dim(-1)
	outShape := shapes.Make(x.DType(), append(append([]int{}, x.Shape().Dimensions...), k)...)
	out := make([]float64, outShape.Size())
	x.ConstFlatData(func(flat []float64) {
		for ii, v := range flat {
			batchIdx, diagIdx := ii/k, ii%k
			out[batchIdx*k*k+diagIdx*k+diagIdx] = v
		}
	})
	return tensors.FromFlatDataAndShape(outShape, out)
}

// Trace returns the sum of the diagonal of each matrix of x, with shape [...] (the batch dimensions).
func Trace(x *tensors.Tensor) *tensors.Tensor {
	return tensors.ReduceSum(DiagPart(x), -1)
}

// Eye returns the identity matrix of dimension n, with the given dtype.
func Eye(dtype dtypes.DType, n int) *tensors.Tensor {
	out := make([]float64, n*n)
	for ii := range n {
		out[ii*n+ii] = 1
	}
	return tensors.FromFlatDataAndShape(shapes.Make(dtype, n, n), out)
}

// Kronecker returns the Kronecker product a ⊗ b of the matrices a (shape [n, k]) and b (shape [p, q]), with
// shape [n*p, k*q]: the block (i, j) is a[i, j]·b.
func Kronecker(a, b *tensors.Tensor) *tensors.Tensor {
	a.AssertValid()
	b.AssertValid()
	if err := a.Shape().CheckRank(2); err != nil {
		panic(errors.WithMessage(err, "linalg.Kronecker"))
	}
	if err := b.Shape().CheckRank(2); err != nil {
		panic(errors.WithMessage(err, "linalg.Kronecker"))
	}
	n, k, p, q := a.Dim(0), a.Dim(1), b.Dim(0), b.Dim(1)
	outShape := shapes.Make(promoteDTypes(a.DType(), b.DType()), n*p, k*q)
	out := make([]float64, outShape.Size())
	a.ConstFlatData(func(flatA []float64) {
		b.ConstFlatData(func(flatB []float64) {
			var kron mat.Dense
			kron.Kronecker(mat.NewDense(n, k, flatA), mat.NewDense(p, q, flatB))
			mat.NewDense(n*p, k*q, out).Copy(&kron)
		})
	})
	return tensors.FromFlatDataAndShape(outShape, out)
}
