package tensors

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
)

// Summary returns a multi-line summary of the Tensor's content.
// Inspired by numpy output: rows with more than 6 values, and axes with more than 6 rows, are elided.
func (t *Tensor) Summary(precision int) string {
	t.AssertValid()

	// Easy string building.
	var buf bytes.Buffer
	w := func(format string, args ...any) { _, _ = fmt.Fprintf(&buf, format, args...) }
	wValue := func(v float64) { w("%.*g", precision, v) }

	dims := t.shape.Dimensions
	flat := t.flat

	// Print Go type equivalent
	for _, dim := range dims {
		w("[%d]", dim)
	}
	if t.DType() == dtypes.Float32 {
		w("float32")
	} else {
		w("float64")
	}
	if len(dims) == 0 {
		// Scalar value.
		w("(")
		wValue(flat[0])
		w(")")
		return buf.String()
	}

	// Recursive function to print elements
	var printElements func(index, indent int, currentDims []int)
	printElements = func(index, indent int, currentDims []int) {
		if len(currentDims) == 1 {
			// One row of data:
			w("{")
			if currentDims[0] > 6 {
				for i := range 3 {
					if i > 0 {
						w(", ")
					}
					wValue(flat[index+i])
				}
				w(", ..., ")
				for i := currentDims[0] - 3; i < currentDims[0]; i++ {
					if i > currentDims[0]-3 {
						w(", ")
					}
					wValue(flat[index+i])
				}
			} else {
				for i := range currentDims[0] {
					if i > 0 {
						w(", ")
					}
					wValue(flat[index+i])
				}
			}
			w("}")
			return
		}

		// Outer axes:
		stride := 1
		for _, dim := range currentDims[1:] {
			stride *= dim
		}
		w("{")
		if indent == -1 {
			if currentDims[0] > 1 {
				// Break the line before outputting data if we are using more than one row.
				w("\n ")
			}
			indent = 1
		}
		indentStr := strings.Repeat(" ", indent)
		rows := make([]int, 0, currentDims[0])
		if currentDims[0] > 6 {
			rows = append(rows, 0, 1, 2, -1, currentDims[0]-3, currentDims[0]-2, currentDims[0]-1)
		} else {
			for ii := range currentDims[0] {
				rows = append(rows, ii)
			}
		}
		for ii, row := range rows {
			if ii > 0 {
				w(",\n%s", indentStr)
			}
			if row < 0 {
				w("...")
				continue
			}
			printElements(index+row*stride, indent+1, currentDims[1:])
		}
		w("}")
	}
	printElements(0, -1, dims)
	return buf.String()
}

// String implements fmt.Stringer, with a summary of the tensor's content limited to float32 precision.
func (t *Tensor) String() string {
	if t == nil {
		return "<nil tensor>"
	}
	if !t.Ok() {
		return "<invalid tensor>"
	}
	return fmt.Sprintf("%s: %s", t.shape, t.Summary(6))
}
