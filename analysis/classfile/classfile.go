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

// Package classfile parses and writes JVM class files, and resolves classes, methods and fields over a class path.
//
// Class names are internal names (java/lang/String) in this package; DottedName converts them to the source syntax
// used by the rules and the reports.
package classfile

import (
	"errors"
	"strings"
)

var (
	// ErrClassNotFound is returned when a class is not on the class path
	ErrClassNotFound = errors.New("class not found")
	// ErrMethodNotFound is returned when a method cannot be resolved in a class or its super types
	ErrMethodNotFound = errors.New("method not found")
	// ErrFieldNotFound is returned when a field cannot be resolved in a class or its super types
	ErrFieldNotFound = errors.New("field not found")
	// ErrMalformed is returned for class files that cannot be parsed
	ErrMalformed = errors.New("malformed class file")
)

// Access flags of classes, fields and methods
const (
	AccPublic       uint16 = 0x0001
	AccPrivate      uint16 = 0x0002
	AccProtected    uint16 = 0x0004
	AccStatic       uint16 = 0x0008
	AccFinal        uint16 = 0x0010
	AccSuper        uint16 = 0x0020
	AccSynchronized uint16 = 0x0020
	AccBridge       uint16 = 0x0040
	AccVarargs      uint16 = 0x0080
	AccNative       uint16 = 0x0100
	AccInterface    uint16 = 0x0200
	AccAbstract     uint16 = 0x0400
	AccSynthetic    uint16 = 0x1000
	AccAnnotation   uint16 = 0x2000
	AccEnum         uint16 = 0x4000
)

// ObjectClass is the internal name of the root of the class hierarchy
const ObjectClass = "java/lang/Object"

// ClassFile is a parsed class file
type ClassFile struct {
	MajorVersion uint16
	MinorVersion uint16
	Access       uint16
	// Name is the internal name of the class
	Name string
	// SuperName is the internal name of the super class, empty for java/lang/Object
	SuperName   string
	Interfaces  []string
	Fields      []*Field
	Methods     []*Method
	Annotations []Annotation
	SourceFile  string
	// Pool is the constant pool the code of the methods refers to
	Pool *ConstantPool
}

// IsInterface returns true for interfaces and annotation types
func (c *ClassFile) IsInterface() bool {
	return c.Access&AccInterface != 0
}

// Method returns the method declared in the class with the given name and descriptor, or nil
func (c *ClassFile) Method(name, desc string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Descriptor == desc {
			return m
		}
	}
	return nil
}

// Field returns the field declared in the class with the given name, or nil
func (c *ClassFile) Field(name string) *Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Field is a field declared in a class
type Field struct {
	Owner       string
	Access      uint16
	Name        string
	Descriptor  string
	Annotations []Annotation
}

// IsStatic returns true for static fields
func (f *Field) IsStatic() bool { return f.Access&AccStatic != 0 }

func (f *Field) String() string {
	return DottedName(f.Owner) + "." + f.Name
}

// Method is a method declared in a class
type Method struct {
	Owner      string
	Access     uint16
	Name       string
	Descriptor string
	// Code is nil for abstract and native methods
	Code        *Code
	Annotations []Annotation
	// ParameterAnnotations[i] are the annotations of the i-th declared parameter (the receiver is not a declared
	// parameter)
	ParameterAnnotations [][]Annotation
}

// IsStatic returns true for static methods
func (m *Method) IsStatic() bool { return m.Access&AccStatic != 0 }

// IsAbstract returns true for abstract methods
func (m *Method) IsAbstract() bool { return m.Access&AccAbstract != 0 }

// IsNative returns true for native methods
func (m *Method) IsNative() bool { return m.Access&AccNative != 0 }

// Ref returns the reference to the method
func (m *Method) Ref() MemberRef {
	return MemberRef{Class: m.Owner, Name: m.Name, Descriptor: m.Descriptor}
}

// ParameterAnnotationsOf returns the annotations of the i-th declared parameter
func (m *Method) ParameterAnnotationsOf(i int) []Annotation {
	if i < 0 || i >= len(m.ParameterAnnotations) {
		return nil
	}
	return m.ParameterAnnotations[i]
}

func (m *Method) String() string {
	return DottedName(m.Owner) + "." + m.Name + m.Descriptor
}

// Code is the body of a method
type Code struct {
	MaxStack  uint16
	MaxLocals uint16
	Bytes     []byte
	Handlers  []Handler
	Lines     []LineNumber
}

// LineAt returns the source line of the instruction at pc, or 0 when the class has no line information
func (c *Code) LineAt(pc int) int {
	line := 0
	best := -1
	for _, ln := range c.Lines {
		if int(ln.PC) <= pc && int(ln.PC) > best {
			best = int(ln.PC)
			line = int(ln.Line)
		}
	}
	return line
}

// Handler is an entry of the exception table of a method. The handler at pc Handler catches exceptions of class
// CatchType (any exception if empty) thrown by instructions in [Start, End).
type Handler struct {
	Start     uint16
	End       uint16
	Handler   uint16
	CatchType string
}

// Covers returns true when the instruction at pc is in the range of the handler
func (h Handler) Covers(pc int) bool {
	return int(h.Start) <= pc && pc < int(h.End)
}

// LineNumber maps the instruction at PC, and the following ones, to a source line
type LineNumber struct {
	PC   uint16
	Line uint16
}

// Annotation is an annotation of a class, member or parameter
type Annotation struct {
	// Type is the field descriptor of the annotation type, e.g. Lcom/example/UserProvided;
	Type string
	// Visible is true for annotations retained at runtime
	Visible  bool
	Elements []ElementValuePair
}

// ClassName returns the dotted name of the annotation type
func (a Annotation) ClassName() string {
	return DottedName(strings.TrimSuffix(strings.TrimPrefix(a.Type, "L"), ";"))
}

// SimpleName returns the name of the annotation type without its package
func (a Annotation) SimpleName() string {
	name := a.ClassName()
	if i := strings.LastIndexAny(name, ".$"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Element returns the value of the element with the given name
func (a Annotation) Element(name string) (ElementValue, bool) {
	for _, e := range a.Elements {
		if e.Name == name {
			return e.Value, true
		}
	}
	return ElementValue{}, false
}

// ElementValuePair is a named element of an annotation
type ElementValuePair struct {
	Name  string
	Value ElementValue
}

// ElementValue is the value of an annotation element. Tag is one of BCDFIJSZ for primitive constants, s for strings,
// e for enum constants, c for classes, @ for nested annotations and [ for arrays.
type ElementValue struct {
	Tag   byte
	Int   int64
	Float float64
	// Str is the value of string constants, and the return descriptor of class values
	Str        string
	EnumType   string
	EnumName   string
	Annotation *Annotation
	Values     []ElementValue
}

// DottedName converts an internal class name to the dotted syntax, e.g. java/lang/String to java.lang.String
func DottedName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

// InternalName converts a dotted class name to the internal syntax
func InternalName(dotted string) string {
	return strings.ReplaceAll(dotted, ".", "/")
}

// PackageOf returns the dotted package name of a class, empty for the default package
func PackageOf(className string) string {
	dotted := DottedName(className)
	if i := strings.LastIndexByte(dotted, '.'); i >= 0 {
		return dotted[:i]
	}
	return ""
}
