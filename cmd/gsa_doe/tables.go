// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"math"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
	headerStyle = lipgloss.NewStyle().Reverse(true).Padding(0, 2).Align(lipgloss.Center)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)

	// rowStyles alternate by row parity: even rows are rendered normally, odd rows faint.
	rowStyles = [2]lipgloss.Style{
		cellStyle,
		cellStyle.Faint(true),
	}
	highlightStyle = cellStyle.Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"})
)

// TableWithReds is a table where individual rows can be highlighted in red.
type TableWithReds struct {
	Table      *lgtable.Table
	Count      int
	Reds       map[int]bool
	alignments []lipgloss.Position
}

// Row appends a row to the table.
func (t *TableWithReds) Row(isRed bool, row ...string) {
	if isRed {
		t.Reds[t.Count] = true
	}
	t.Table.Row(row...)
	t.Count++
}

// style returns the style of a cell: row is -1 for the header.
// The last alignment given to newPlainTable is used for any further columns.
func (t *TableWithReds) style(row, col int) lipgloss.Style {
	if row < 0 {
		return headerStyle
	}
	s := rowStyles[row%2]
	if t.Reds[row] {
		s = highlightStyle
	}
	if len(t.alignments) > 0 {
		s = s.Align(t.alignments[min(col, len(t.alignments)-1)])
	}
	return s
}

// newPlainTable returns an empty table whose columns are aligned as given.
func newPlainTable(alignments ...lipgloss.Position) *TableWithReds {
	t := &TableWithReds{
		Reds:       make(map[int]bool),
		alignments: alignments,
	}
	t.Table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(t.style)
	return t
}

// covarianceTolerance is the relative difference, with respect to the scale sqrt(Σᵢᵢ·Σⱼⱼ), above which a
// sample covariance entry is highlighted.
const covarianceTolerance = 0.1

// covarianceDiffers reports whether the sample covariance entry differs too much from the requested one.
func covarianceDiffers(requested, sample, scale float64) bool {
	if math.IsNaN(sample) {
		return true
	}
	return math.Abs(sample-requested) > covarianceTolerance*scale
}

// Summary returns the rendered tables describing the design and comparing the sample noise covariance
// with the requested one.
func Summary(cfg Config, design *Design) (string, error) {
	requested, err := requestedCovariance(cfg)
	if err != nil {
		return "", err
	}
	sample := design.SampleCovariance()

	table := newPlainTable(lipgloss.Right, lipgloss.Left)
	table.Row(false, "samples", humanize.Comma(int64(cfg.Samples)))
	table.Row(false, "dims", humanize.Comma(int64(cfg.Dims)))
	table.Row(false, "outputs", humanize.Comma(int64(design.Noise.Dim(1))))
	table.Row(false, "centered", fmt.Sprintf("%v", cfg.Centered))
	table.Row(false, "seed", fmt.Sprintf("%d", cfg.Seed))
	table.Row(false, "# values", humanize.Comma(int64(design.X.Size()+design.Noise.Size())))
	out := titleStyle.Render("Design") + "\n" + table.Table.Render() + "\n"

	covTable := newPlainTable(lipgloss.Right)
	covTable.Table.Headers("i", "j", "requested", "sample")
	l := requested.Dim(0)
	for ii := range l {
		for jj := ii; jj < l; jj++ {
			want := requested.At(ii, jj)
			got := sample.At(ii, jj)
			scale := math.Sqrt(requested.At(ii, ii) * requested.At(jj, jj))
			covTable.Row(covarianceDiffers(want, got, scale),
				fmt.Sprintf("%d", ii), fmt.Sprintf("%d", jj),
				humanize.FtoaWithDigits(want, 4), humanize.FtoaWithDigits(got, 4))
		}
	}
	out += titleStyle.Render("Noise covariance") + "\n" + covTable.Table.Render()
	return out, nil
}
