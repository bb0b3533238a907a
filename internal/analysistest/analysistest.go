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

// Package analysistest contains the helpers shared by the tests of the analyses.
package analysistest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
)

// Env is the configuration and the logger of a test. The logs are captured in Logs.
type Env struct {
	Config *config.Config
	Logger *config.LogGroup
	Logs   *bytes.Buffer
}

// NewEnv returns the environment of a test: the default config with the debug checks of the interpreter enabled.
func NewEnv() *Env {
	c := config.NewDefault()
	c.DebugChecks = true
	logs := &bytes.Buffer{}
	logger := config.NewLogGroup(c)
	logger.SetAllOutput(logs)
	return &Env{Config: c, Logger: logger, Logs: logs}
}

// CountLogs returns the number of lines of the logs containing s
func (e *Env) CountLogs(s string) int {
	n := 0
	for _, line := range strings.Split(e.Logs.String(), "\n") {
		if strings.Contains(line, s) {
			n++
		}
	}
	return n
}

// NewPool returns a class pool without class path holding the classes
func NewPool(t *testing.T, classes ...*classfile.ClassFile) *classfile.ClassPool {
	t.Helper()
	pool, err := classfile.NewClassPool(nil)
	if err != nil {
		t.Fatalf("NewClassPool() error = %v", err)
	}
	pool.Register(classes...)
	return pool
}
