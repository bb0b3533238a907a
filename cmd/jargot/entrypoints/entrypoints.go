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

// Package entrypoints implements the jargot tool listing the entry points of a program: the methods with a parameter
// marked as user provided, and the methods listed in the config.
package entrypoints

import (
	"fmt"
	"io"

	"github.com/awslabs/ar-jvm-tools/cmd/jargot/tools"
)

// Usage is the usage of the entrypoints tool
const Usage = ` List the entry points of the taint analysis.
Usage:
  jargot entrypoints [options]
Examples:
  % jargot entrypoints -config config.yaml
  % jargot entrypoints -cp app.jar
`

// Run prints the entry points of the program of the flags to w
func Run(flags tools.CommonFlags, w io.Writer) error {
	program, logger, err := tools.LoadProgram(flags)
	if err != nil {
		return err
	}
	defer program.Close()
	eps, err := program.Entrypoints(logger)
	if err != nil {
		return err
	}
	for _, m := range eps {
		fmt.Fprintln(w, m)
	}
	return nil
}
