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

package main

import (
	"fmt"
	"os"

	"github.com/awslabs/ar-jvm-tools/analysis"
	"github.com/awslabs/ar-jvm-tools/cmd/jargot/entrypoints"
	"github.com/awslabs/ar-jvm-tools/cmd/jargot/render"
	"github.com/awslabs/ar-jvm-tools/cmd/jargot/taint"
	"github.com/awslabs/ar-jvm-tools/cmd/jargot/tools"
)

const usage = `Jargot: Automated Reasoning JVM Tools
Usage:
  jargot [tool] [options] [arguments]
Tools:
  - taint: performs a taint analysis from user provided data to commands on the classes of the class path
  - render: renders the dataflow graph of a method in DOT format
  - entrypoints: lists the entry points of the taint analysis
Examples:
  Run the taint analysis: jargot taint -config config.yaml
  Render a method: jargot render -cp classes -method 'com/example/App.main' -o main.dot`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "error: expected subcommand\n%s\n", usage)
		os.Exit(2)
	}

	// hardcode help flag
	if snd := os.Args[1]; snd == "-help" || snd == "--help" {
		fmt.Println(usage)
		return
	}

	// hardcode version flag
	if snd := os.Args[1]; snd == "-version" || snd == "--version" {
		fmt.Println(analysis.Version)
		return
	}

	args := os.Args[2:]
	switch cmd := os.Args[1]; cmd {
	case "taint":
		flags, err := taint.NewFlags(args)
		if err != nil {
			errExit(err)
		}
		findings, err := taint.Run(flags)
		if err != nil {
			errExit(err)
		}
		if findings > 0 {
			os.Exit(1)
		}
	case "render":
		flags, err := render.NewFlags(args)
		if err != nil {
			errExit(err)
		}
		if err := render.Run(flags); err != nil {
			errExit(err)
		}
	case "entrypoints":
		flags, err := tools.NewCommonFlags("entrypoints", args, entrypoints.Usage)
		if err != nil {
			errExit(err)
		}
		if err := entrypoints.Run(flags, os.Stdout); err != nil {
			errExit(err)
		}
	default:
		fmt.Fprintf(os.Stderr, "error: unexpected command: %v\n", cmd)
		fmt.Fprintf(os.Stderr, "usage:\n%s\n", usage)
		os.Exit(2)
	}
}

func errExit(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	hint := tools.HintForErrorMessage(err.Error())
	if hint != "" {
		fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	}
	os.Exit(2)
}
