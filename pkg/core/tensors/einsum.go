// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"slices"
	"strings"

	"github.com/gomlx/gsa/pkg/core/shapes"
	"github.com/gomlx/gsa/pkg/support/sets"
)

// Einsum evaluates the "Einstein summation" of the two operands, as described by the equation.
//
// The equation lists one letter per axis of each operand, separated by a comma, and optionally the letters of the
// output after a "->": "ij,jk->ik" is a matrix multiplication. Letters that appear in the operands but not in the
// output are summed over. Spaces are ignored.
//
// If the output ("->" part) is omitted, numpy's implicit mode is used: the output has the letters that appear
// exactly once in the operands, in alphabetical order. So "ij,ij" contracts everything to a scalar.
//
// A letter can be repeated within an operand, in which case it indexes the diagonal. The dimensions associated
// to a letter must be the same everywhere it appears. It panics otherwise.
func Einsum(equation string, lhs, rhs *Tensor) *Tensor {
	lhs.AssertValid()
	rhs.AssertValid()
	lhsAxes, rhsAxes, outAxes := parseEinsumEquation(equation)
	if len(lhsAxes) != lhs.Rank() || len(rhsAxes) != rhs.Rank() {
		shapes.Panicf("Einsum(%q, %s, %s): the equation doesn't match the ranks of the operands", equation, lhs.shape, rhs.shape)
	}

	// Collect all letters, with their dimensions. The output letters come first, so the output can be
	// written in the order of iteration.
	letterDims := make(map[rune]int)
	setDims := func(axes []rune, shape shapes.Shape) {
		for axis, letter := range axes {
			dim := shape.Dimensions[axis]
			if prev, found := letterDims[letter]; found && prev != dim {
				shapes.Panicf("Einsum(%q, %s, %s): index %q has mismatching dimensions %d and %d",
					equation, lhs.shape, rhs.shape, letter, prev, dim)
			}
			letterDims[letter] = dim
		}
	}
	setDims(lhsAxes, lhs.shape)
	setDims(rhsAxes, rhs.shape)
	for _, letter := range outAxes {
		if _, found := letterDims[letter]; !found {
			shapes.Panicf("Einsum(%q, %s, %s): output index %q is not in any operand", equation, lhs.shape, rhs.shape, letter)
		}
	}
	letters := sets.MakeOrdered(outAxes...)
	letters.Insert(lhsAxes...)
	letters.Insert(rhsAxes...)
	dims := make([]int, letters.Len())
	for ii, letter := range letters.Elements() {
		dims[ii] = letterDims[letter]
	}

	// Strides of each operand (and of the output) for each letter of the iteration.
	stridesFor := func(axes []rune, shape shapes.Shape) []int {
		operandStrides := shape.Strides()
		strides := make([]int, letters.Len())
		for axis, letter := range axes {
			strides[letters.Index(letter)] += operandStrides[axis]
		}
		return strides
	}
	lhsStrides := stridesFor(lhsAxes, lhs.shape)
	rhsStrides := stridesFor(rhsAxes, rhs.shape)
	outShape := shapes.Make(promoteDTypes(lhs.DType(), rhs.DType()), dims[:len(outAxes)]...)
	outStrides := stridesFor(outAxes, outShape)

	flat := make([]float64, outShape.Size())
	for _, indices := range shapes.IterDimensions(dims) {
		flat[offset(indices, outStrides)] += lhs.flat[offset(indices, lhsStrides)] * rhs.flat[offset(indices, rhsStrides)]
	}
	return newTensor(outShape, flat)
}

// parseEinsumEquation splits the equation into the letters of each operand and of the output.
func parseEinsumEquation(equation string) (lhsAxes, rhsAxes, outAxes []rune) {
	eq := strings.ReplaceAll(equation, " ", "")
	inputs, output, explicit := strings.Cut(eq, "->")
	lhsStr, rhsStr, found := strings.Cut(inputs, ",")
	if !found || strings.Contains(rhsStr, ",") {
		shapes.Panicf("Einsum(%q): equation must have exactly 2 operands", equation)
	}
	lhsAxes, rhsAxes = []rune(lhsStr), []rune(rhsStr)
	for _, letter := range slices.Concat(lhsAxes, rhsAxes, []rune(output)) {
		if !(letter >= 'a' && letter <= 'z' || letter >= 'A' && letter <= 'Z') {
			shapes.Panicf("Einsum(%q): invalid index %q, only letters are accepted", equation, letter)
		}
	}
	if explicit {
		outAxes = []rune(output)
		seen := sets.Make[rune](len(outAxes))
		for _, letter := range outAxes {
			if seen.Has(letter) {
				shapes.Panicf("Einsum(%q): output index %q repeated", equation, letter)
			}
			seen.Insert(letter)
		}
		return
	}

	// Implicit output: letters appearing exactly once, in alphabetical order.
	counts := make(map[rune]int)
	for _, letter := range slices.Concat(lhsAxes, rhsAxes) {
		counts[letter]++
	}
	for letter, count := range counts {
		if count == 1 {
			outAxes = append(outAxes, letter)
		}
	}
	slices.Sort(outAxes)
	return
}
