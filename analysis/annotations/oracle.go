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

	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
)

// The intersection policy of a copy is the value element of CopyColorsFrom, as in
// @CopyColorsFrom(OnIntersection.OVERWRITE). An onIntersection element on CopyColorsTo is also accepted.
const (
	valueElement          = "value"
	onIntersectionElement = "onIntersection"
)

// An Oracle answers which marks the members of the analyzed program carry. Marks come from, in order:
//   - annotations of the class files whose simple name is a mark name, or whose name is configured for a mark in the
//     annotations section of the config;
//   - annotations whose type is configured as marks in the rule files;
//   - the rule files entries of the member;
//   - the taint-rules of the config.
//
// An Oracle is safe for concurrent use.
type Oracle struct {
	config *config.Config
	rules  *RuleSet
	named  map[string]Mark
}

// NewOracle returns an oracle using the config and the rule set. rules may be nil.
func NewOracle(c *config.Config, rules *RuleSet) *Oracle {
	named := map[string]Mark{}
	add := func(names []string, m Mark) {
		for _, n := range names {
			named[classfile.DottedName(n)] |= m
		}
	}
	add(c.Annotations.UserProvided, UserProvided)
	add(c.Annotations.Command, Command)
	add(c.Annotations.CopyColorsFrom, CopyColorsFrom)
	add(c.Annotations.CopyColorsTo, CopyColorsTo)
	add(c.Annotations.ParentAttributesDefiner, ParentAttributesDefiner)
	return &Oracle{config: c, rules: rules, named: named}
}

// Rules returns the rule set of the oracle
func (o *Oracle) Rules() *RuleSet {
	return o.rules
}

// AnnotationMarks returns the marks carried by the annotation
func (o *Oracle) AnnotationMarks(a classfile.Annotation) (MarkInfo, bool) {
	name := a.ClassName()
	marks := o.named[name]
	if m, err := ParseMark(a.SimpleName()); err == nil {
		marks |= m
	}
	if marks != None {
		return MarkInfo{Marks: marks, Origin: FromAnnotation, Annotation: name, OnIntersection: policyOf(a, marks)}, true
	}
	if o.rules != nil {
		if m := o.rules.AnnotationMarks(name); m != None {
			return MarkInfo{Marks: m, Origin: FromConfiguredAnnotation, Annotation: name}, true
		}
	}
	return MarkInfo{}, false
}

// ArgumentMarks returns the marks of the i-th declared argument of the method referenced by ref. m is the resolved
// method, and may be nil when the method could not be resolved: only the rules and the config are used then.
func (o *Oracle) ArgumentMarks(ref classfile.MemberRef, m *classfile.Method, i int) []MarkInfo {
	var infos []MarkInfo
	if m != nil {
		infos = o.annotated(m.ParameterAnnotationsOf(i))
	}
	class := classfile.DottedName(ref.Class)
	if o.rules != nil {
		if marks := o.rules.ArgumentMarks(class, ref.Name, ref.Descriptor, i); marks != None {
			infos = append(infos, MarkInfo{Marks: marks, Origin: FromRules})
		}
	}
	mid := config.MethodIdentifier(class, ref.Name, ref.Descriptor)
	configured := None
	if o.config.IsSource(mid, i) {
		configured |= UserProvided
	}
	if o.config.IsSink(mid, i) {
		configured |= Command
	}
	if configured != None {
		infos = append(infos, MarkInfo{Marks: configured, Origin: FromConfig})
	}
	return infos
}

// ReceiverMarks returns the marks of the receiver of the method referenced by ref
func (o *Oracle) ReceiverMarks(ref classfile.MemberRef) []MarkInfo {
	if o.rules == nil {
		return nil
	}
	if marks := o.rules.ReceiverMarks(classfile.DottedName(ref.Class), ref.Name, ref.Descriptor); marks != None {
		return []MarkInfo{{Marks: marks, Origin: FromRules}}
	}
	return nil
}

// ResultMarks returns the marks of the result of the method referenced by ref. The annotations of the method are the
// annotations of its result.
func (o *Oracle) ResultMarks(ref classfile.MemberRef, m *classfile.Method) []MarkInfo {
	var infos []MarkInfo
	if m != nil {
		infos = o.annotated(m.Annotations)
	}
	if o.rules != nil {
		if marks := o.rules.ResultMarks(classfile.DottedName(ref.Class), ref.Name, ref.Descriptor); marks != None {
			infos = append(infos, MarkInfo{Marks: marks, Origin: FromRules})
		}
	}
	return infos
}

// FieldMarks returns the marks of the field referenced by ref. f is the resolved field and may be nil.
func (o *Oracle) FieldMarks(ref classfile.MemberRef, f *classfile.Field) []MarkInfo {
	var infos []MarkInfo
	if f != nil {
		infos = o.annotated(f.Annotations)
	}
	if o.rules != nil {
		if marks := o.rules.FieldMarks(classfile.DottedName(ref.Class), ref.Name); marks != None {
			infos = append(infos, MarkInfo{Marks: marks, Origin: FromRules})
		}
	}
	return infos
}

// HasSourceParameter returns true when some declared parameter of the method carries the UserProvided mark
func (o *Oracle) HasSourceParameter(m *classfile.Method) bool {
	md, err := classfile.ParseMethodDescriptor(m.Descriptor)
	if err != nil {
		return false
	}
	for i := range md.Params {
		if Union(o.ArgumentMarks(m.Ref(), m, i)).Has(UserProvided) {
			return true
		}
	}
	return false
}

func (o *Oracle) annotated(annotations []classfile.Annotation) []MarkInfo {
	var infos []MarkInfo
	for _, a := range annotations {
		if info, ok := o.AnnotationMarks(a); ok {
			infos = append(infos, info)
		}
	}
	return infos
}

func policyOf(a classfile.Annotation, marks Mark) IntersectionPolicy {
	elements := []string{onIntersectionElement}
	if marks.Has(CopyColorsFrom) {
		elements = append(elements, valueElement)
	}
	for _, name := range elements {
		if v, ok := a.Element(name); ok && v.Tag == 'e' && v.EnumName == Overwrite.String() {
			return Overwrite
		}
	}
	return Report
}

// ArgumentTarget describes the i-th declared argument of a method in trace messages
func ArgumentTarget(ref classfile.MemberRef, i int) string {
	return fmt.Sprintf("argument #%d of method '%s' of class %s", i, ref.Name, classfile.DottedName(ref.Class))
}

// ReceiverTarget describes the receiver of a method in trace messages
func ReceiverTarget(ref classfile.MemberRef) string {
	return fmt.Sprintf("receiver of method '%s' of class %s", ref.Name, classfile.DottedName(ref.Class))
}

// ResultTarget describes the result of a method in trace messages
func ResultTarget(ref classfile.MemberRef) string {
	return fmt.Sprintf("result of method '%s' of class %s", ref.Name, classfile.DottedName(ref.Class))
}

// FieldTarget describes a field in trace messages
func FieldTarget(ref classfile.MemberRef) string {
	return fmt.Sprintf("field '%s' of class %s", ref.Name, classfile.DottedName(ref.Class))
}
