// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Plot saves a scatter plot of the design to filePath: the format (png, svg, pdf, ...) is taken from its extension.
//
// The plot shows the first 2 input dimensions (x0, x1), or x0 against the first noise output e0 if the design
// has only one input dimension.
func (d *Design) Plot(filePath string) error {
	yT, yCol, yLabel := d.X, 1, "x1"
	if d.X.Dim(1) < 2 {
		yT, yCol, yLabel = d.Noise, 0, "e0"
	}
	xs, ys := column(d.X, 0), column(yT, yCol)
	points := make(plotter.XYs, len(xs))
	for row := range points {
		points[row].X, points[row].Y = xs[row], ys[row]
	}
	scatter, err := plotter.NewScatter(points)
	if err != nil {
		return errors.Wrap(err, "failed to create the design scatter plot")
	}
	scatter.GlyphStyle.Radius = vg.Points(1.5)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Latin Hypercube design (N=%d)", d.X.Dim(0))
	p.X.Label.Text = "x0"
	p.X.Min = 0
	p.X.Max = 1
	p.Y.Label.Text = yLabel
	if yT == d.X {
		p.Y.Min = 0
		p.Y.Max = 1
	}
	p.Add(plotter.NewGrid(), scatter)
	if err := p.Save(6*vg.Inch, 6*vg.Inch, filePath); err != nil {
		return errors.Wrapf(err, "failed to save the design plot to %q", filePath)
	}
	return nil
}

