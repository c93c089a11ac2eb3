// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/gomlx/gsa/pkg/core/linalg"
	"github.com/gomlx/gsa/pkg/core/tensors"
	"github.com/gomlx/gsa/pkg/ml/sampling"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Design of an experiment: the inputs X, a Latin Hypercube sample shaped [N, M], and the noise shaped [N, L].
type Design struct {
	X, Noise *tensors.Tensor
}

// Generate creates the Design described by cfg.
func Generate(cfg Config) (*Design, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sampler := sampling.New(cfg.Seed)
	x, err := sampler.LatinHypercube(cfg.Samples, cfg.Dims, cfg.Centered)
	if err != nil {
		return nil, err
	}
	noise, err := sampler.MultivariateGaussianNoise(cfg.Samples, cfg.Variance)
	if err != nil {
		return nil, err
	}
	return &Design{X: x, Noise: noise}, nil
}

// column returns the values of one column of a [N, K] tensor.
func column(t *tensors.Tensor, col int) []float64 {
	values := make([]float64, t.Dim(0))
	for row := range values {
		values[row] = t.At(row, col)
	}
	return values
}

// columns appends one series per column of t, named prefix0, prefix1, ...
func columns(cols []series.Series, t *tensors.Tensor, prefix string) []series.Series {
	for col := range t.Dim(1) {
		cols = append(cols, series.New(column(t, col), series.Float, fmt.Sprintf("%s%d", prefix, col)))
	}
	return cols
}

// DataFrame returns the design with the columns x0..x{M-1} followed by e0..e{L-1}.
func (d *Design) DataFrame() dataframe.DataFrame {
	cols := columns(nil, d.X, "x")
	cols = columns(cols, d.Noise, "e")
	return dataframe.New(cols...)
}

// WriteCSV writes the design as CSV, with a header row.
func (d *Design) WriteCSV(w io.Writer) error {
	df := d.DataFrame()
	if df.Err != nil {
		return errors.Wrap(df.Err, "failed to build the design data frame")
	}
	if err := df.WriteCSV(w); err != nil {
		return errors.Wrap(err, "failed to write the design CSV")
	}
	return nil
}

// SampleCovariance returns the [L, L] covariance of the sampled noise.
func (d *Design) SampleCovariance() *mat.SymDense {
	var cov mat.SymDense
	data := mat.NewDense(d.Noise.Dim(0), d.Noise.Dim(1), d.Noise.CopyFlatData())
	stat.CovarianceMatrix(&cov, data, nil)
	return &cov
}

// requestedCovariance returns the [L, L] covariance matrix of cfg: a single row is the diagonal.
func requestedCovariance(cfg Config) (*tensors.Tensor, error) {
	t, err := tensors.FromAnyValueOrError(cfg.Variance)
	if err != nil {
		return nil, err
	}
	if t.Dim(0) == 1 {
		return linalg.MatrixDiag(tensors.Reshape(t, -1)), nil
	}
	return t, nil
}
