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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/awslabs/ar-jvm-tools/analysis/colors"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/internal/formatutil"
	"gopkg.in/yaml.v3"
)

// StepReport is one step of the trace of a finding
type StepReport struct {
	Message  string `json:"message" yaml:"message"`
	Position string `json:"position,omitempty" yaml:"position,omitempty"`
}

// FindingReport is the serializable form of a finding
type FindingReport struct {
	ID     string       `json:"id" yaml:"id"`
	Source string       `json:"source" yaml:"source"`
	Sink   string       `json:"sink" yaml:"sink"`
	Trace  []StepReport `json:"trace" yaml:"trace"`
}

// NewFindingReport returns the report of f
func NewFindingReport(f *colors.Finding) FindingReport {
	r := FindingReport{
		ID:     f.ID.String(),
		Source: colors.ItemKey(colors.Root(f.Source)),
		Sink:   colors.ItemKey(colors.Root(f.Sink)),
	}
	for _, it := range f.Trace() {
		step := StepReport{Message: it.Message()}
		if p := it.Position(); p.IsValid() {
			step.Position = p.String()
		}
		r.Trace = append(r.Trace, step)
	}
	return r
}

// WriteReport writes the findings to w in the format, one of the report formats of the configuration
func WriteReport(w io.Writer, format string, findings []*colors.Finding) error {
	reports := make([]FindingReport, len(findings))
	for i, f := range findings {
		reports[i] = NewFindingReport(f)
	}
	switch format {
	case config.ReportFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case config.ReportFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(reports); err != nil {
			return err
		}
		return enc.Close()
	case config.ReportFormatText, "":
		for _, r := range reports {
			if _, err := io.WriteString(w, textReport(r, true)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// textReport formats a finding for humans. Colors are only used when colored is set and the color mode allows them.
func textReport(r FindingReport, colored bool) string {
	red, green, faint := formatutil.Red, formatutil.Green, formatutil.Faint
	if !colored {
		red, green, faint = fmt.Sprint, fmt.Sprint, fmt.Sprint
	}
	var b strings.Builder
	fmt.Fprintf(&b, " 💀 %s %s\n", red("Data from a source reaches a sink"), faint(r.ID))
	fmt.Fprintf(&b, "\tSource: %s\n", green(formatutil.Sanitize(r.Source)))
	fmt.Fprintf(&b, "\tSink: %s\n", red(formatutil.Sanitize(r.Sink)))
	b.WriteString("\tTrace:\n")
	for i, step := range r.Trace {
		fmt.Fprintf(&b, "\t%3d. %s\n", i+1, formatutil.Sanitize(step.Message))
		if step.Position != "" {
			fmt.Fprintf(&b, "\t     at %s\n", faint(step.Position))
		}
	}
	return b.String()
}

// WriteFindingFiles writes each finding in dir, in a file named finding-<id>.out, and returns the paths of the files
func WriteFindingFiles(dir string, findings []*colors.Finding, logger *config.LogGroup) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create reports directory: %w", err)
	}
	var paths []string
	for _, f := range findings {
		r := NewFindingReport(f)
		path := filepath.Join(dir, "finding-"+r.ID+".out")
		if err := os.WriteFile(path, []byte(textReport(r, false)), 0o644); err != nil {
			return paths, fmt.Errorf("could not write report: %w", err)
		}
		logger.Infof("Report in %s", path)
		paths = append(paths, path)
	}
	return paths, nil
}
