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

package painting

import (
	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
	"github.com/awslabs/ar-jvm-tools/analysis/colors"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
)

// A ColorProvider gives the implicit colors of method parameters, method results and fields, usually derived from
// annotations and configuration. The method or field may be nil when it could not be resolved. pos is the position
// where the color is needed: the call site for invocations, the method entry for the parameters of the colored
// method.
type ColorProvider interface {
	ParameterColor(ref classfile.MemberRef, m *classfile.Method, i int, pos dataflow.Position) *colors.ColoredObject
	ResultColor(ref classfile.MemberRef, m *classfile.Method, pos dataflow.Position) *colors.ColoredObject
	FieldColor(ref classfile.MemberRef, f *classfile.Field, pos dataflow.Position) *colors.ColoredObject
}

// A Subcaller gives the colors of the inputs and of the result of a call, as computed by the analysis of the callee
// with the colors of the call site. ok is false when the colors of the callee are not known (yet).
type Subcaller interface {
	Subcall(caller *dataflow.MethodGraph, inv *dataflow.Invocation, ins []*colors.ColoredObject,
		out *colors.ColoredObject) (newIns []*colors.ColoredObject, newOut *colors.ColoredObject, ok bool)
}

// ClassPath resolves members against the classes of the class path. It is implemented by *classfile.ClassPool.
type ClassPath interface {
	FindMethod(class, name, desc string) (*classfile.Method, error)
	FindField(class, name string) (*classfile.Field, error)
	SingleImplementation(class, name, desc string) *classfile.Method
}

// Resolver resolves the members referenced by graphs. Members that cannot be resolved are reported with a warning
// once per member. A Resolver is safe for concurrent use.
type Resolver struct {
	classes  ClassPath
	warnOnce func(key string, format string, args ...any)
}

// NewResolver returns a resolver looking members up in classes, which may be nil
func NewResolver(classes ClassPath, logger *config.LogGroup) *Resolver {
	return &Resolver{classes: classes, warnOnce: logger.WarnOnce()}
}

// Method returns the method referenced by ref, declared in ref's class or inherited, or nil
func (r *Resolver) Method(ref classfile.MemberRef) *classfile.Method {
	if r.classes == nil {
		return nil
	}
	m, err := r.classes.FindMethod(ref.Class, ref.Name, ref.Descriptor)
	if err != nil {
		r.warnOnce("m "+ref.String(), "could not resolve method: %v", err)
		return nil
	}
	return m
}

// Field returns the field referenced by ref, or nil. Array elements are never resolved.
func (r *Resolver) Field(ref classfile.MemberRef) *classfile.Field {
	if r.classes == nil || ref == dataflow.ArrayElementField {
		return nil
	}
	f, err := r.classes.FindField(ref.Class, ref.Name)
	if err != nil {
		r.warnOnce("f "+ref.String(), "could not resolve field: %v", err)
		return nil
	}
	return f
}

// Implementation returns the method executed by the invocation when the receiver is an instance of class. When class
// is empty or does not implement the method, the implementation of a virtual call is the single implementation of the
// method in the class path, or the resolved target. It returns nil when the method has no code to analyze.
func (r *Resolver) Implementation(inv *dataflow.Invocation, class string) *classfile.Method {
	if r.classes == nil {
		return nil
	}
	if inv.Static || inv.Op == bytecode.Invokespecial {
		return r.withCode(inv, r.Method(inv.Target))
	}
	if class != "" && class != inv.Target.Class {
		m := r.Method(classfile.MemberRef{Class: class, Name: inv.Target.Name, Descriptor: inv.Target.Descriptor})
		if m != nil && m.Code != nil {
			return m
		}
	}
	m := r.classes.SingleImplementation(inv.Target.Class, inv.Target.Name, inv.Target.Descriptor)
	if m == nil {
		m = r.Method(inv.Target)
	}
	return r.withCode(inv, m)
}

func (r *Resolver) withCode(inv *dataflow.Invocation, m *classfile.Method) *classfile.Method {
	if m == nil || m.Code != nil {
		return m
	}
	if m.IsAbstract() {
		r.warnOnce("i "+inv.Target.String(), "no single implementation of %s", inv.Target)
	}
	return nil
}
