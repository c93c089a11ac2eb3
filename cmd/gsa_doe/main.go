// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// gsa_doe generates the design of an experiment: a Latin Hypercube sample of the inputs, plus correlated
// Gaussian noise for the outputs, and writes it as CSV.
//
// Example:
//
//	gsa_doe -n 1000 -m 5 -variance 1,0.5,0.5,2 -output design.csv -plot design.png -summary
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/gsa/pkg/support/fsutil"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"k8s.io/klog/v2"
)

var flags = registerFlags(flag.CommandLine)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if len(flag.Args()) > 0 {
		klog.Errorf("Unexpected arguments %q. See 'gsa_doe -help'.", flag.Args())
		os.Exit(1)
	}

	cfg, err := flags.Config()
	if err != nil {
		klog.Fatalf("Invalid configuration: %+v", err)
	}
	design, err := Generate(cfg)
	if err != nil {
		klog.Fatalf("Failed to generate the design: %+v", err)
	}

	var w io.Writer = os.Stdout
	if cfg.Output != "-" {
		f := must.M1(os.Create(cfg.Output))
		defer func() { must.M(f.Close()) }()
		w = f
	}
	must.M(design.WriteCSV(w))
	if cfg.Output != "-" {
		klog.Infof("Wrote %d samples to %q", cfg.Samples, cfg.Output)
	}

	if *flags.plot != "" {
		plotPath := must.M1(fsutil.ExpandHome(*flags.plot))
		must.M(design.Plot(plotPath))
		klog.Infof("Saved the design plot to %q", plotPath)
	}

	if *flags.summary {
		if *flags.plain {
			lipgloss.SetColorProfile(termenv.Ascii)
		}
		summary := must.M1(Summary(cfg, design))
		// Keep the standard output for the CSV if it is being written there.
		summaryWriter := os.Stdout
		if cfg.Output == "-" {
			summaryWriter = os.Stderr
		}
		_, _ = fmt.Fprintln(summaryWriter, summary)
	}
}
