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

// Package render implements the jargot tool rendering the dataflow graph of a method in DOT format.
// -method names the method, e.g. com/example/Controller.handle(Ljava/lang/String;)V
// -colors fills the nodes with the colors computed by the coloring of the method alone.
// -o Given a path for a .dot file, writes the graph in that file instead of the standard output.
package render

import (
	"fmt"
	"io"
	"os"

	"github.com/awslabs/ar-jvm-tools/analysis/colors"
	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
	"github.com/awslabs/ar-jvm-tools/analysis/painting"
	"github.com/awslabs/ar-jvm-tools/analysis/taint"
	"github.com/awslabs/ar-jvm-tools/cmd/jargot/tools"
	"github.com/awslabs/ar-jvm-tools/internal/formatutil"
)

// Usage is the usage of the render tool
const Usage = `Render the dataflow graph of a method.
Usage:
  jargot render [options] -method <method>
Examples:
Render the graph of a method with its colors
  % jargot render -config config.yaml -colors -method 'com/example/Controller.handle' -o handle.dot
`

// Flags represents the parsed render sub-command flags.
type Flags struct {
	tools.CommonFlags
	method string
	colors bool
	out    string
}

// NewFlags returns the parsed render sub-command flags from args.
func NewFlags(args []string) (Flags, error) {
	flags := tools.NewUnparsedCommonFlags("render")
	method := flags.FlagSet.String("method", "", "method to render, as class.name or class.name(descriptor)")
	withColors := flags.FlagSet.Bool("colors", false, "fill the nodes with their taint colors")
	out := flags.FlagSet.String("o", "", "output file for the graph (standard output if not specified)")
	tools.SetUsage(flags.FlagSet, Usage)
	common, err := flags.Parse(args)
	if err != nil {
		return Flags{}, err
	}
	if *method == "" {
		return Flags{}, fmt.Errorf("render: missing -method")
	}
	return Flags{CommonFlags: common, method: *method, colors: *withColors, out: *out}, nil
}

// Run runs the render tool with flags.
func Run(flags Flags) error {
	program, logger, err := tools.LoadProgram(flags.CommonFlags)
	if err != nil {
		return err
	}
	defer program.Close()

	m, err := program.LookupMethod(flags.method)
	if err != nil {
		return err
	}
	cf, err := program.Pool.Get(m.Owner)
	if err != nil {
		return err
	}
	g, err := dataflow.NewBuilder(program.Config, logger, program.Pool).Build(cf, m)
	if err != nil {
		return fmt.Errorf("could not build graph: %w", err)
	}

	var paint dataflow.Painter
	if flags.colors {
		brushes := painting.DefaultBrushes(program.Oracle, taint.NewUserToCommand(program.Oracle, nil),
			painting.NewResolver(program.Pool, logger), nil)
		p := painting.NewColorer(program.Config, logger, brushes...).Color(g, nil, nil)
		logger.Debugf("colors of %s: %s", m, p.Colors)
		paint = func(id dataflow.NodeID) string { return fillColor(p.Colors[id]) }
	}

	var w io.Writer = os.Stdout
	if flags.out != "" {
		f, err := os.Create(flags.out)
		if err != nil {
			return fmt.Errorf("could not create file %q: %w", flags.out, err)
		}
		defer f.Close()
		w = f
	}
	if err := dataflow.WriteDOT(w, g, paint); err != nil {
		return err
	}
	if flags.out != "" {
		fmt.Fprintf(os.Stderr, formatutil.Faint("Graph of %s written in %s")+"\n", m, flags.out)
	}
	return nil
}

func fillColor(o *colors.ColoredObject) string {
	if o == nil {
		return ""
	}
	switch o.Kind() {
	case colors.Source:
		return "palegreen"
	case colors.Sink:
		return "lightsalmon"
	default:
		return "red"
	}
}
