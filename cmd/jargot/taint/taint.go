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

package taint

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/awslabs/ar-jvm-tools/analysis"
	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
	"github.com/awslabs/ar-jvm-tools/analysis/taint"
	"github.com/awslabs/ar-jvm-tools/cmd/jargot/tools"
	"github.com/awslabs/ar-jvm-tools/internal/formatutil"
)

// Usage is the usage of the taint tool
const Usage = ` Perform taint analysis on your classes.
Usage:
  jargot taint [options] [method...]
Examples:
  % jargot taint -config config.yaml
  % jargot taint -cp app.jar -format json 'com/example/Controller.handle'
`

// Flags represents the parsed flags for the taint analysis.
type Flags struct {
	tools.CommonFlags
	format string
}

// NewFlags returns the parsed flags for the taint analysis with args.
func NewFlags(args []string) (Flags, error) {
	flags := tools.NewUnparsedCommonFlags("taint")
	format := flags.FlagSet.String("format", "", "report format: text, json or yaml (overrides config)")
	tools.SetUsage(flags.FlagSet, Usage)
	common, err := flags.Parse(args)
	if err != nil {
		return Flags{}, err
	}
	return Flags{CommonFlags: common, format: *format}, nil
}

// Run runs the taint analysis with flags and returns the number of findings.
func Run(flags Flags) (int, error) {
	program, logger, err := tools.LoadProgram(flags.CommonFlags)
	if err != nil {
		return 0, err
	}
	defer program.Close()
	cfg := program.Config
	if flags.format != "" {
		cfg.ReportFormat = flags.format
	}

	logger.Infof(formatutil.Faint("jargot taint tool - " + analysis.Version))

	start := time.Now()
	var result taint.AnalysisResult
	if methods := flags.FlagSet.Args(); len(methods) > 0 {
		eps, err := lookupAll(program, methods)
		if err != nil {
			return 0, err
		}
		result = taint.AnalyzeMethods(logger, program, eps)
	} else {
		result, err = taint.Analyze(logger, program)
		if err != nil {
			return 0, fmt.Errorf("taint analysis failed: %w", err)
		}
	}
	duration := time.Since(start)
	for _, err := range result.Errors {
		fmt.Fprintf(os.Stderr, "\terror: %v\n", err)
	}

	logger.Infof("")
	logger.Infof(strings.Repeat("*", 80))
	logger.Infof("Analysis took %3.4f s", duration.Seconds())
	logger.Infof("")
	if len(result.Findings) == 0 {
		logger.Infof("RESULT:\n\t\t%s", formatutil.Green("No taint flows detected ✓"))
	} else {
		logger.Errorf("RESULT:\n\t\t%s", formatutil.Red(fmt.Sprintf("%d taint flows detected!", len(result.Findings))))
	}

	if err := taint.WriteReport(os.Stdout, cfg.ReportFormat, result.Findings); err != nil {
		return len(result.Findings), err
	}
	if cfg.ReportPaths {
		if _, err := taint.WriteFindingFiles(cfg.ReportsDir, result.Findings, logger); err != nil {
			return len(result.Findings), err
		}
	}
	return len(result.Findings), nil
}

func lookupAll(program *analysis.Program, specs []string) ([]*classfile.Method, error) {
	var res []*classfile.Method
	for _, spec := range specs {
		m, err := program.LookupMethod(spec)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}
