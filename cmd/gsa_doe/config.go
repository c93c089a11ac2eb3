// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"math"
	"os"

	"github.com/gomlx/gsa/pkg/support/fsutil"
	"github.com/gomlx/gsa/pkg/support/xslices"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config of the experiment design: it can be read from a YAML file, and individual values overridden by flags.
type Config struct {
	// Samples is the number of points of the design, N.
	Samples int `yaml:"samples"`

	// Dims is the number of input dimensions, M.
	Dims int `yaml:"dims"`

	// Centered places the Latin Hypercube points at the center of their intervals.
	Centered bool `yaml:"centered"`

	// Seed of the random source.
	Seed uint64 `yaml:"seed"`

	// Variance of the noise: either one row with the L variances of independent noises,
	// or a full [L, L] covariance matrix.
	Variance [][]float64 `yaml:"variance"`

	// Output is the path of the CSV file, or "-" for the standard output.
	Output string `yaml:"output"`
}

// DefaultConfig returns the configuration used when neither a config file nor flags set a value.
func DefaultConfig() Config {
	return Config{
		Samples:  100,
		Dims:     2,
		Variance: [][]float64{{1}},
		Output:   "-",
	}
}

// LoadConfig reads the YAML config file at path. Values not present in the file keep their defaults.
// Unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to open config file %q", path)
	}
	defer func() { _ = f.Close() }()
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config file %q", path)
	}
	return cfg, nil
}

// Validate checks that the configuration describes a valid design.
func (c Config) Validate() error {
	if c.Samples <= 0 {
		return errors.Errorf("samples must be positive, got %d", c.Samples)
	}
	if c.Dims <= 0 {
		return errors.Errorf("dims must be positive, got %d", c.Dims)
	}
	if len(c.Variance) == 0 || len(c.Variance[0]) == 0 {
		return errors.New("variance is empty")
	}
	if c.Output == "" {
		return errors.New("output is empty, use \"-\" for the standard output")
	}
	return nil
}

// NumOutputs returns L, the number of noise outputs.
func (c Config) NumOutputs() int {
	if len(c.Variance) == 0 {
		return 0
	}
	return len(c.Variance[0])
}

// varianceFromFlat converts the values of the -variance flag to rows: L*L values (for L > 1) are a
// row-major [L, L] covariance matrix, any other number of values are the variances of independent noises.
func varianceFromFlat(values []float64) [][]float64 {
	l := int(math.Round(math.Sqrt(float64(len(values)))))
	if l <= 1 || l*l != len(values) {
		return [][]float64{values}
	}
	rows := make([][]float64, l)
	for ii := range rows {
		rows[ii] = values[ii*l : (ii+1)*l]
	}
	return rows
}

// cmdFlags holds the command line flags that override the Config.
type cmdFlags struct {
	flagSet  *flag.FlagSet
	config   *string
	samples  *int
	dims     *int
	centered *bool
	seed     *uint64
	variance *[]float64
	output   *string
	summary  *bool
	plot     *string
	plain    *bool
}

// registerFlags registers the flags of gsa_doe in fs.
func registerFlags(fs *flag.FlagSet) *cmdFlags {
	defaults := DefaultConfig()
	f := &cmdFlags{flagSet: fs}
	f.config = fs.String("config", "", "YAML file with the design configuration. Flags set explicitly override its values.")
	f.samples = fs.Int("n", defaults.Samples, "Number of samples, N.")
	f.dims = fs.Int("m", defaults.Dims, "Number of input dimensions, M.")
	f.centered = fs.Bool("centered", defaults.Centered,
		"Place the Latin Hypercube points at the center of their intervals.")
	f.seed = fs.Uint64("seed", defaults.Seed, "Seed of the random source.")
	f.variance = xslices.FlagSetVar(fs, "variance", defaults.Variance[0],
		"Comma-separated noise variance: L values for independent noises, or L*L values (row-major) "+
			"for a full covariance matrix.", xslices.ParseFloat64)
	f.output = fs.String("output", defaults.Output, "Path of the CSV file to write, or \"-\" for the standard output.")
	f.summary = fs.Bool("summary", false, "Display a table comparing the sample noise covariance with the requested one.")
	f.plot = fs.String("plot", "", "If set, path of a scatter plot of the design. "+
		"The format (png, svg, pdf) is given by the extension.")
	f.plain = fs.Bool("plain", false, "Display the summary without colors or text styles.")
	return f
}

// Config returns the configuration: the config file, if given, with the flags set explicitly applied over it.
func (f *cmdFlags) Config() (Config, error) {
	cfg := DefaultConfig()
	if *f.config != "" {
		var err error
		cfg, err = LoadConfig(*f.config)
		if err != nil {
			return cfg, err
		}
	}
	isSet := make(map[string]bool)
	f.flagSet.Visit(func(fl *flag.Flag) { isSet[fl.Name] = true })
	if *f.config == "" || isSet["n"] {
		cfg.Samples = *f.samples
	}
	if *f.config == "" || isSet["m"] {
		cfg.Dims = *f.dims
	}
	if *f.config == "" || isSet["centered"] {
		cfg.Centered = *f.centered
	}
	if *f.config == "" || isSet["seed"] {
		cfg.Seed = *f.seed
	}
	if *f.config == "" || isSet["variance"] {
		cfg.Variance = varianceFromFlat(*f.variance)
	}
	if *f.config == "" || isSet["output"] {
		cfg.Output = *f.output
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	var err error
	cfg.Output, err = fsutil.ExpandHome(cfg.Output)
	return cfg, err
}
