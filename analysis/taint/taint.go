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
	"time"

	"github.com/awslabs/ar-jvm-tools/analysis"
	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
	"github.com/awslabs/ar-jvm-tools/analysis/colors"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/session"
)

// AnalysisResult is the result of the taint analysis of a program
type AnalysisResult struct {
	// Findings are the flows from sources to sinks, in the order they were found
	Findings []*colors.Finding

	// Entrypoints are the methods the analysis started from
	Entrypoints []*classfile.Method

	// Session is the session of the analysis, if you need to inspect its tasks
	Session *session.Session

	// Errors contains the errors of the analysis of the entry points. The analysis of the other entry points
	// continues after an error.
	Errors []error
}

// Analyze runs the taint analysis on all the entry points of the program
func Analyze(logger *config.LogGroup, program *analysis.Program) (AnalysisResult, error) {
	eps, err := program.Entrypoints(logger)
	if err != nil {
		return AnalysisResult{}, err
	}
	return AnalyzeMethods(logger, program, eps), nil
}

// AnalyzeMethods runs the taint analysis starting from the given methods, without initial colors
func AnalyzeMethods(logger *config.LogGroup, program *analysis.Program, methods []*classfile.Method) AnalysisResult {
	collector := colors.NewCollector()
	collector.OnFinding = func(f *colors.Finding) {
		logger.Debugf("new finding %s from %s", f.ID, colors.ItemKey(colors.Root(f.Source)))
	}
	provider := NewUserToCommand(program.Oracle, collector.Report)
	s := session.New(program.Config, logger, program.Pool, program.Oracle, provider, collector.Report)

	res := AnalysisResult{Entrypoints: methods, Session: s}
	for i, m := range methods {
		start := time.Now()
		logger.Infof("[%d/%d] Analyzing %s", i+1, len(methods), m)
		if _, err := s.Analyze(m, nil, nil); err != nil {
			logger.Errorf("analysis of entry point %s failed: %v", m, err)
			res.Errors = append(res.Errors, fmt.Errorf("entry point %s: %w", m, err))
		}
		logger.Debugf("%s analyzed in %.3f s", m, time.Since(start).Seconds())
	}
	res.Findings = collector.Findings()

	stats := s.Stats()
	logger.Infof("Analysis done: %d tasks, %d executions, %d failures, %d recursive cycles",
		stats.Tasks, stats.Executions, stats.Failures, stats.RecursiveCycles)
	return res
}
