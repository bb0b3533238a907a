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

import "regexp"

// Captures errors happening before any analysis starts (program could not load)
var regexCouldNotLoad = regexp.MustCompile("could not load program")

// Captures the error of a program without class path
var emptyClassPath = regexp.MustCompile("empty class path")

// Captures the error of a missing class or method
var notFound = regexp.MustCompile("(class|method) not found")

// HintForErrorMessage looks for specific error message and returns some other message that might help the user
// resolve the problem.
func HintForErrorMessage(errMsg string) string {
	if emptyClassPath.MatchString(errMsg) {
		return "set the class-path of the config file or add class path entries with -cp"
	}
	if regexCouldNotLoad.MatchString(errMsg) {
		return "class path entries must be directories of .class files, or .jar archives"
	}
	if notFound.MatchString(errMsg) {
		return "methods are named like com/example/Cls.method(desc) and must be on the class path"
	}
	return ""
}
