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

package tools

import (
	"strings"
	"testing"
)

func validateHint(t *testing.T, errorMsg string, containedHint string) {
	hint := HintForErrorMessage(errorMsg)
	if !strings.Contains(hint, containedHint) {
		t.Fatalf("incorrect hint %q for %q; check and update error message if necessary", hint, errorMsg)
	}
}

func TestHintForEmptyClassPath(t *testing.T) {
	validateHint(t, "error: empty class path", "add class path entries with -cp")
}

func TestHintForFailedLoadProgram(t *testing.T) {
	errorMsg := "error: could not load program: could not open class path entry lib: no such file or directory"
	validateHint(t, errorMsg, "directories of .class files")
}

func TestHintForMissingMethod(t *testing.T) {
	validateHint(t, "error: method not found: com.example.A.run()V", "com/example/Cls.method(desc)")
	if hint := HintForErrorMessage("error: something else"); hint != "" {
		t.Errorf("HintForErrorMessage() got = %q, want no hint", hint)
	}
}

func TestCommonFlags(t *testing.T) {
	flags, err := NewCommonFlags("test", []string{"-cp", "a.jar", "-cp", "classes", "-verbose", "x"}, "usage")
	if err != nil {
		t.Fatalf("NewCommonFlags() error = %v", err)
	}
	if strings.Join(flags.ClassPath, ",") != "a.jar,classes" || !flags.Verbose || flags.FlagSet.Arg(0) != "x" {
		t.Errorf("NewCommonFlags() got = %+v", flags)
	}
	cfg, err := LoadConfig("")
	if err != nil || cfg == nil {
		t.Errorf("LoadConfig(\"\") got = %v, %v, want the default config", cfg, err)
	}
}
