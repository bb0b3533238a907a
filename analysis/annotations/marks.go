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

package annotations

import (
	"fmt"
	"strings"
)

// Mark is a set of security marks. Marks are carried by annotations of the analyzed classes, or configured for
// library classes in rule files and in the config file.
type Mark uint8

const (
	// UserProvided marks values that the user controls. It is the mark of taint sources.
	UserProvided Mark = 1 << iota
	// Command marks values used to build a command (shell, SQL, ...). It is the mark of taint sinks.
	Command
	// CopyColorsFrom marks the argument of a method whose colors are copied to the CopyColorsTo argument or result
	CopyColorsFrom
	// CopyColorsTo marks the argument or result that receives the colors of the CopyColorsFrom argument
	CopyColorsTo
	// ParentAttributesDefiner marks fields whose colors are also the colors of the object holding them
	ParentAttributesDefiner
)

// None is the empty set of marks
const None Mark = 0

var markNames = [...]string{"UserProvided", "Command", "CopyColorsFrom", "CopyColorsTo", "ParentAttributesDefiner"}

// AllMarks returns the individual marks, in declaration order
func AllMarks() []Mark {
	res := make([]Mark, len(markNames))
	for i := range markNames {
		res[i] = 1 << i
	}
	return res
}

// Has returns true when every mark of x is in m. Has(None) is false.
func (m Mark) Has(x Mark) bool {
	return x != None && m&x == x
}

// Marks returns the individual marks of the set
func (m Mark) Marks() []Mark {
	var res []Mark
	for _, x := range AllMarks() {
		if m&x != 0 {
			res = append(res, x)
		}
	}
	return res
}

func (m Mark) String() string {
	if m == None {
		return "None"
	}
	var names []string
	for i, name := range markNames {
		if m&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

// ParseMark returns the mark with the given name. Fully qualified names are accepted, only the simple name is used:
// com.example.annotations.Command is the Command mark.
func ParseMark(name string) (Mark, error) {
	simple := name
	if i := strings.LastIndexAny(name, ".$"); i >= 0 {
		simple = name[i+1:]
	}
	for i, n := range markNames {
		if n == simple {
			return 1 << i, nil
		}
	}
	return None, fmt.Errorf("unknown mark %q", name)
}

// IntersectionPolicy is what happens when a CopyColorsTo copy meets colors of the opposite kind on the target
type IntersectionPolicy int

const (
	// Report merges the copied colors normally, and an intersection is reported
	Report IntersectionPolicy = iota
	// Overwrite replaces the colors of the target with the copied colors
	Overwrite
)

func (p IntersectionPolicy) String() string {
	if p == Overwrite {
		return "OVERWRITE"
	}
	return "REPORT"
}

// Origin is where the marks of a member come from
type Origin int

const (
	// FromAnnotation is for marks carried by an annotation named after the mark, or configured for the mark in the
	// annotations section of the config
	FromAnnotation Origin = iota
	// FromConfiguredAnnotation is for marks of an annotation type that a rule file configures as marks
	FromConfiguredAnnotation
	// FromRules is for marks that a rule file sets on a method argument, method result or field
	FromRules
	// FromConfig is for marks set by the taint-rules of the config file
	FromConfig
)

func (o Origin) String() string {
	switch o {
	case FromAnnotation:
		return "annotation"
	case FromConfiguredAnnotation:
		return "configured annotation"
	case FromRules:
		return "rules"
	case FromConfig:
		return "config"
	}
	return fmt.Sprintf("Origin(%d)", int(o))
}

// MarkInfo is a set of marks found for a member, with their origin
type MarkInfo struct {
	Marks  Mark
	Origin Origin
	// Annotation is the dotted name of the annotation type carrying the marks, when Origin is FromAnnotation or
	// FromConfiguredAnnotation
	Annotation string
	// OnIntersection is the policy of a copy, set by the annotation carrying CopyColorsFrom or CopyColorsTo
	OnIntersection IntersectionPolicy
}

// Describe returns the message explaining why target carries mark.
// For example: "Annotation @Command on argument #0 of method 'run' of class com.example.Shell"
func (mi MarkInfo) Describe(mark Mark, target string) string {
	switch mi.Origin {
	case FromAnnotation:
		return fmt.Sprintf("Annotation @%s on %s", mark, target)
	case FromConfiguredAnnotation:
		return fmt.Sprintf("Annotation @%s configured as @%s on %s", simpleName(mi.Annotation), mark, target)
	default:
		return "Configuration info for " + target
	}
}

// Union returns all the marks of the infos
func Union(infos []MarkInfo) Mark {
	m := None
	for _, info := range infos {
		m |= info.Marks
	}
	return m
}

// Find returns the first info carrying mark
func Find(infos []MarkInfo, mark Mark) (MarkInfo, bool) {
	for _, info := range infos {
		if info.Marks.Has(mark) {
			return info, true
		}
	}
	return MarkInfo{}, false
}

func simpleName(dotted string) string {
	if i := strings.LastIndexAny(dotted, ".$"); i >= 0 {
		return dotted[i+1:]
	}
	return dotted
}
