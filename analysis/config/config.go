// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
	"gopkg.in/yaml.v3"
)

var (
	// The global config file
	configFile string
)

// SetGlobalConfig sets the global config filename
func SetGlobalConfig(filename string) {
	configFile = filename
}

// LoadGlobal loads the config file that has been set by SetGlobalConfig
func LoadGlobal() (*Config, error) {
	return Load(configFile)
}

// Config contains the class path, the rules and the options of the analyses.
// To add elements to a config file, add fields to this struct.
// If some field is not defined in the config file, it will be empty/zero in the struct.
// private fields are not populated from a yaml file, but computed after initialization
type Config struct {
	Options `yaml:"options"`

	sourceFile string

	// ClassPath lists the directories and jar files where classes are searched. Relative paths are relative to the
	// config file.
	ClassPath []string `yaml:"class-path"`

	// RulesDirs lists directories containing per-package rule files (e.g. java.sql.yaml)
	RulesDirs []string `yaml:"rules-dirs"`

	// UseDefaultRules specifies whether the rule files embedded in the binary are used. Defaults to true.
	UseDefaultRules *bool `yaml:"use-default-rules"`

	// Entrypoints lists methods that should be analyzed in addition to the ones discovered by scanning the class path
	Entrypoints []MemberIdentifier `yaml:"entrypoints"`

	// TaintRules contains the sources and sinks specified in the configuration file
	TaintRules TaintRules `yaml:"taint-rules"`

	// Annotations lists additional fully qualified annotation names recognized as marks
	Annotations AnnotationNames `yaml:"annotations"`
}

// TaintRules contains member identifiers that identify sources and sinks
type TaintRules struct {
	// Sources is the list of sources: a matching argument is user provided data
	Sources []MemberIdentifier `yaml:"sources"`

	// Sinks is the list of sinks: a matching argument is used to build a command
	Sinks []MemberIdentifier `yaml:"sinks"`
}

// AnnotationNames maps each mark to the fully qualified names of annotations that carry it, on top of the annotations
// whose simple name is the mark name.
type AnnotationNames struct {
	UserProvided            []string `yaml:"user-provided"`
	Command                 []string `yaml:"command"`
	CopyColorsFrom          []string `yaml:"copy-colors-from"`
	CopyColorsTo            []string `yaml:"copy-colors-to"`
	ParentAttributesDefiner []string `yaml:"parent-attributes-definer"`
}

// Options holds the global options of the analyses
type Options struct {
	// ReportsDir is the directory where all the reports will be stored. If the yaml config file this config struct has
	// been loaded does not specify a ReportsDir but sets ReportPaths to true, then ReportsDir will be created
	// in the folder of the config file.
	ReportsDir string `yaml:"reports-dir"`

	// ReportPaths specifies whether the findings should be reported in separate files. For each finding, a new
	// file named finding-*.out will be generated with the trace from source to sink
	ReportPaths bool `yaml:"report-paths"`

	// ReportFormat is the format of the findings report: text, json or yaml
	ReportFormat string `yaml:"report-format"`

	// MaxBlockEnters bounds the number of times the method graph assembler enters the same basic block. Loops are
	// unrolled at most that many times.
	MaxBlockEnters int `yaml:"max-block-enters"`

	// Workers is the number of workers executing the analysis tasks. One worker makes the analysis deterministic.
	Workers int `yaml:"workers"`

	// DebugChecks enables the comparison of the interpreter state with the verified frames at every instruction
	DebugChecks bool `yaml:"debug-checks"`

	// MaxDemultiplex is the maximum number of concrete class variants analyzed for a single call site
	MaxDemultiplex int `yaml:"max-demultiplex"`

	// MaxColoringPasses is the maximum number of passes of the coloring of a single method
	MaxColoringPasses int `yaml:"max-coloring-passes"`

	// Loglevel controls the verbosity of the tool
	LogLevel int `yaml:"log-level"`

	// Suppress warnings
	SilenceWarn bool `yaml:"silence-warn"`
}

// NewDefault returns an empty default config.
func NewDefault() *Config {
	return &Config{
		sourceFile:  "",
		ClassPath:   []string{},
		RulesDirs:   []string{},
		Entrypoints: nil,
		Options: Options{
			ReportsDir:        "",
			ReportPaths:       false,
			ReportFormat:      ReportFormatText,
			MaxBlockEnters:    DefaultMaxBlockEnters,
			Workers:           DefaultWorkers,
			DebugChecks:       false,
			MaxDemultiplex:    DefaultMaxDemultiplex,
			MaxColoringPasses: DefaultMaxColoringPasses,
			LogLevel:          int(InfoLevel),
			SilenceWarn:       false,
		},
	}
}

// Load reads a configuration from a file
func Load(filename string) (*Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	return LoadFromBytes(filename, b)
}

// LoadFromBytes parses the configuration in b, with filename as the source file of the configuration. Relative paths
// in the configuration are relative to filename's directory.
func LoadFromBytes(filename string, b []byte) (*Config, error) {
	cfg := NewDefault()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config file: %w", err)
	}

	cfg.sourceFile = filename

	if cfg.ReportPaths {
		if err := setReportsDir(cfg, filename); err != nil {
			return nil, err
		}
	}

	// If logLevel has not been specified (i.e. it is 0) set the default to Info
	if cfg.LogLevel == 0 {
		cfg.LogLevel = int(InfoLevel)
	}
	if cfg.MaxBlockEnters <= 0 {
		cfg.MaxBlockEnters = DefaultMaxBlockEnters
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxDemultiplex <= 0 {
		cfg.MaxDemultiplex = DefaultMaxDemultiplex
	}
	if cfg.MaxColoringPasses <= 0 {
		cfg.MaxColoringPasses = DefaultMaxColoringPasses
	}
	switch cfg.ReportFormat {
	case "":
		cfg.ReportFormat = ReportFormatText
	case ReportFormatText, ReportFormatJSON, ReportFormatYAML:
	default:
		return nil, fmt.Errorf("unknown report format %q", cfg.ReportFormat)
	}

	cfg.Entrypoints = funcutil.Map(cfg.Entrypoints, CompileRegexes)
	cfg.TaintRules.Sources = funcutil.Map(cfg.TaintRules.Sources, CompileRegexes)
	cfg.TaintRules.Sinks = funcutil.Map(cfg.TaintRules.Sinks, CompileRegexes)

	return cfg, nil
}

func setReportsDir(c *Config, filename string) error {
	if c.ReportsDir == "" {
		tmpdir, err := os.MkdirTemp(path.Dir(filename), "*-report")
		if err != nil {
			return fmt.Errorf("could not create temp dir for reports")
		}
		c.ReportsDir = tmpdir
	} else {
		err := os.Mkdir(c.ReportsDir, 0750)
		if err != nil {
			if !os.IsExist(err) {
				return fmt.Errorf("could not create directory %s", c.ReportsDir)
			}
		}
	}
	return nil
}

// SourceFile returns the name of the file the config has been loaded from, or "" for default configs
func (c Config) SourceFile() string {
	return c.sourceFile
}

// RelPath returns filename path relative to the config source file. Absolute paths are returned unchanged.
func (c Config) RelPath(filename string) string {
	if filepath.IsAbs(filename) || c.sourceFile == "" {
		return filename
	}
	return path.Join(path.Dir(c.sourceFile), filename)
}

// ClassPathEntries returns the class path entries, relative to the config source file
func (c Config) ClassPathEntries() []string {
	return funcutil.Map(c.ClassPath, c.RelPath)
}

// RulesDirEntries returns the rules directories, relative to the config source file
func (c Config) RulesDirEntries() []string {
	return funcutil.Map(c.RulesDirs, c.RelPath)
}

// DefaultRules returns true when the embedded rule files should be used
func (c Config) DefaultRules() bool {
	return c.UseDefaultRules == nil || *c.UseDefaultRules
}

// Below are functions used to query the configuration on specific facts

// IsSource returns true if the argument of the member identified by mid is a source in the taint rules
func (c Config) IsSource(mid MemberIdentifier, argument int) bool {
	return ExistsMid(c.TaintRules.Sources, func(ref MemberIdentifier) bool { return mid.matchesArgument(ref, argument) })
}

// IsSink returns true if the argument of the member identified by mid is a sink in the taint rules
func (c Config) IsSink(mid MemberIdentifier, argument int) bool {
	return ExistsMid(c.TaintRules.Sinks, func(ref MemberIdentifier) bool { return mid.matchesArgument(ref, argument) })
}

// IsEntrypoint returns true if the method identified by mid is an entry point specified in the config
func (c Config) IsEntrypoint(mid MemberIdentifier) bool {
	return ExistsMid(c.Entrypoints, mid.equalOnNonEmptyFields)
}
