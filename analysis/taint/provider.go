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
	"strings"

	"github.com/awslabs/ar-jvm-tools/analysis/annotations"
	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
	"github.com/awslabs/ar-jvm-tools/analysis/colors"
	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
)

// UserToCommand is the color provider of the analysis: members marked as user provided are sources, members marked
// as commands are sinks.
//
// Each color starts with a step at the position where it is needed, whose origin is the declaration of the mark.
// The declaration has no position, so that the same sink reached from a caller and from its callee is reported once.
type UserToCommand struct {
	oracle *annotations.Oracle
	report colors.Reporter
}

// NewUserToCommand returns the provider of the marks of oracle. A member that is both a source and a sink is reported
// to report.
func NewUserToCommand(oracle *annotations.Oracle, report colors.Reporter) *UserToCommand {
	return &UserToCommand{oracle: oracle, report: report}
}

// ParameterColor implements painting.ColorProvider. The color holds the declared class of reference parameters.
func (p *UserToCommand) ParameterColor(ref classfile.MemberRef, m *classfile.Method, i int,
	pos dataflow.Position) *colors.ColoredObject {
	obj := p.color(p.oracle.ArgumentMarks(ref, m, i), annotations.ArgumentTarget(ref, i), pos)
	if obj == nil {
		return nil
	}
	if class := declaredClass(ref.Descriptor, i); class != "" {
		obj = obj.WithClasses(class)
	}
	return obj
}

// ResultColor implements painting.ColorProvider
func (p *UserToCommand) ResultColor(ref classfile.MemberRef, m *classfile.Method,
	pos dataflow.Position) *colors.ColoredObject {
	return p.color(p.oracle.ResultMarks(ref, m), annotations.ResultTarget(ref), pos)
}

// FieldColor implements painting.ColorProvider
func (p *UserToCommand) FieldColor(ref classfile.MemberRef, f *classfile.Field,
	pos dataflow.Position) *colors.ColoredObject {
	return p.color(p.oracle.FieldMarks(ref, f), annotations.FieldTarget(ref), pos)
}

func (p *UserToCommand) color(infos []annotations.MarkInfo, target string,
	pos dataflow.Position) *colors.ColoredObject {
	var res *colors.ColoredObject
	if info, ok := annotations.Find(infos, annotations.UserProvided); ok {
		res = newColor(colors.Source, info, annotations.UserProvided, target, pos)
	}
	if info, ok := annotations.Find(infos, annotations.Command); ok {
		res = colors.Merge(res, newColor(colors.Sink, info, annotations.Command, target, pos), p.report)
	}
	return res
}

func newColor(kind colors.Kind, info annotations.MarkInfo, mark annotations.Mark, target string,
	pos dataflow.Position) *colors.ColoredObject {
	msg := info.Describe(mark, target)
	decl := colors.NewStep(msg, dataflow.Position{}, nil)
	return colors.New(kind, confidenceOf(info), colors.NewStep(msg, pos, nil).WithOrigin(decl))
}

// confidenceOf is Explicitly for marks written in the class files, and Configuration for the others
func confidenceOf(info annotations.MarkInfo) colors.Confidence {
	if info.Origin == annotations.FromAnnotation {
		return colors.Explicitly
	}
	return colors.Configuration
}

// declaredClass returns the internal name of the class of the i-th declared parameter, or "" when the parameter is
// not an object
func declaredClass(desc string, i int) string {
	md, err := classfile.ParseMethodDescriptor(desc)
	if err != nil || i < 0 || i >= len(md.Params) {
		return ""
	}
	t := md.Params[i]
	if !strings.HasPrefix(t, "L") {
		return ""
	}
	return strings.TrimSuffix(t[1:], ";")
}
