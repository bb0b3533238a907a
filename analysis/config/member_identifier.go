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
	"regexp"
	"strings"

	"golang.org/x/exp/slices"
)

// A MemberIdentifier identifies a class member (method or field) in the config file.
// Class names use the dotted Java syntax, e.g. java.lang.Runtime. Descriptors use the JVM syntax, e.g.
// (Ljava/lang/String;)Ljava/lang/Process;
type MemberIdentifier struct {
	Class      string `yaml:"class"`
	Method     string `yaml:"method"`
	Descriptor string `yaml:"descriptor"`
	Field      string `yaml:"field"`
	// Arguments restricts the identifier to some argument indexes (0 is the first declared argument). Empty means
	// any argument.
	Arguments []int `yaml:"arguments"`
	// This will not be part of the yaml config
	computedRegexs *memberIdentifierRegex
}

type memberIdentifierRegex struct {
	classRegex  *regexp.Regexp
	methodRegex *regexp.Regexp
	fieldRegex  *regexp.Regexp
}

// MethodIdentifier returns the identifier of a method with all the fields set
func MethodIdentifier(class string, method string, descriptor string) MemberIdentifier {
	return MemberIdentifier{Class: class, Method: method, Descriptor: descriptor}
}

func (mid MemberIdentifier) String() string {
	var b strings.Builder
	b.WriteString(mid.Class)
	if mid.Method != "" {
		b.WriteString("." + mid.Method + mid.Descriptor)
	}
	if mid.Field != "" {
		b.WriteString("." + mid.Field)
	}
	if len(mid.Arguments) > 0 {
		b.WriteString(fmt.Sprintf(" args%v", mid.Arguments))
	}
	return b.String()
}

// CompileRegexes compiles the strings in the member identifier into regexes. It compiles all identifiers into regexes
// or none. Descriptors are always compared literally.
func CompileRegexes(mid MemberIdentifier) MemberIdentifier {
	classRegex, err := regexp.Compile(mid.Class)
	if err != nil {
		return mid
	}
	methodRegex, err := regexp.Compile(mid.Method)
	if err != nil {
		return mid
	}
	fieldRegex, err := regexp.Compile(mid.Field)
	if err != nil {
		return mid
	}
	mid.computedRegexs = &memberIdentifierRegex{
		classRegex,
		methodRegex,
		fieldRegex,
	}
	return mid
}

// equalOnNonEmptyFields returns true if each of the receiver's fields are either equal to the corresponding
// argument's field, or the argument's field is empty
func (mid MemberIdentifier) equalOnNonEmptyFields(ref MemberIdentifier) bool {
	if ref.computedRegexs != nil {
		return (ref.Class == "" || ref.computedRegexs.classRegex.MatchString(mid.Class)) &&
			(ref.Method == "" || ref.computedRegexs.methodRegex.MatchString(mid.Method)) &&
			(ref.Descriptor == "" || mid.Descriptor == ref.Descriptor) &&
			(ref.Field == "" || ref.computedRegexs.fieldRegex.MatchString(mid.Field))
	}
	return (ref.Class == "" || mid.Class == ref.Class) &&
		(ref.Method == "" || mid.Method == ref.Method) &&
		(ref.Descriptor == "" || mid.Descriptor == ref.Descriptor) &&
		(ref.Field == "" || mid.Field == ref.Field)
}

// matchesArgument returns true if mid matches ref and ref's arguments contain argument (or are empty)
func (mid MemberIdentifier) matchesArgument(ref MemberIdentifier, argument int) bool {
	return mid.equalOnNonEmptyFields(ref) && (len(ref.Arguments) == 0 || slices.Contains(ref.Arguments, argument))
}

// Matches returns true if the member identified by mid matches the identifier ref, where ref's fields are seen as
// regexes and empty fields match anything
func (mid MemberIdentifier) Matches(ref MemberIdentifier) bool {
	return mid.equalOnNonEmptyFields(ref)
}

// ExistsMid is true if there is some x in a such that f(x) is true.
func ExistsMid(a []MemberIdentifier, f func(identifier MemberIdentifier) bool) bool {
	for _, x := range a {
		if f(x) {
			return true
		}
	}
	return false
}
