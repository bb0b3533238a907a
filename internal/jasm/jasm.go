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

// Package jasm is a small assembler for JVM classes, used to write test inputs without a Java compiler.
//
// A class is built by chaining calls:
//
//	cf := jasm.NewClass("com/example/A").
//		Method(classfile.AccPublic|classfile.AccStatic, "id", "(I)I").
//		Local(bytecode.Iload, 0).
//		Op(bytecode.Ireturn).
//		End().
//		Build()
//
// The builders panic on misuse (undefined labels, operands out of range): they are meant for tests.
package jasm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
)

// ClassBuilder builds a class file
type ClassBuilder struct {
	cf      *classfile.ClassFile
	pb      *classfile.PoolBuilder
	methods []*MethodBuilder
}

// NewClass starts a public class with the given internal name, extending java/lang/Object
func NewClass(name string) *ClassBuilder {
	return &ClassBuilder{
		cf: &classfile.ClassFile{
			MajorVersion: 52,
			Access:       classfile.AccPublic | classfile.AccSuper,
			Name:         name,
			SuperName:    classfile.ObjectClass,
			SourceFile:   sourceFileOf(name),
		},
		pb: classfile.NewPoolBuilder(),
	}
}

func sourceFileOf(name string) string {
	simple := name
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			simple = name[i+1:]
			break
		}
	}
	for i := 0; i < len(simple); i++ {
		if simple[i] == '$' {
			simple = simple[:i]
			break
		}
	}
	return simple + ".java"
}

// Super sets the super class
func (c *ClassBuilder) Super(name string) *ClassBuilder {
	c.cf.SuperName = name
	return c
}

// Implements adds interfaces to the class
func (c *ClassBuilder) Implements(names ...string) *ClassBuilder {
	c.cf.Interfaces = append(c.cf.Interfaces, names...)
	return c
}

// Interface makes the class an interface
func (c *ClassBuilder) Interface() *ClassBuilder {
	c.cf.Access = classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract
	return c
}

// Annotate adds an annotation to the class
func (c *ClassBuilder) Annotate(a classfile.Annotation) *ClassBuilder {
	c.cf.Annotations = append(c.cf.Annotations, a)
	return c
}

// Field declares a field
func (c *ClassBuilder) Field(access uint16, name, desc string, annotations ...classfile.Annotation) *ClassBuilder {
	c.cf.Fields = append(c.cf.Fields, &classfile.Field{
		Owner:       c.cf.Name,
		Access:      access,
		Name:        name,
		Descriptor:  desc,
		Annotations: annotations,
	})
	return c
}

// AbstractMethod declares a method without code
func (c *ClassBuilder) AbstractMethod(access uint16, name, desc string) *MethodBuilder {
	mb := c.Method(access|classfile.AccAbstract, name, desc)
	mb.abstract = true
	return mb
}

// Method starts the definition of a method
func (c *ClassBuilder) Method(access uint16, name, desc string) *MethodBuilder {
	md, err := classfile.ParseMethodDescriptor(desc)
	if err != nil {
		panic(err)
	}
	locals := md.ArgSlots()
	if access&classfile.AccStatic == 0 {
		locals++
	}
	mb := &MethodBuilder{
		class: c,
		m: &classfile.Method{
			Owner:      c.cf.Name,
			Access:     access,
			Name:       name,
			Descriptor: desc,
		},
		nparams:   len(md.Params),
		labels:    map[string]int{},
		maxLocals: locals,
		maxStack:  16,
	}
	c.methods = append(c.methods, mb)
	return mb
}

// Build returns the class file. The builder should not be used afterwards.
func (c *ClassBuilder) Build() *classfile.ClassFile {
	c.cf.Methods = nil
	for _, mb := range c.methods {
		c.cf.Methods = append(c.cf.Methods, mb.finish())
	}
	c.cf.Pool = c.pb.Pool()
	return c.cf
}

// Bytes builds the class and returns its class file encoding
func (c *ClassBuilder) Bytes() ([]byte, error) {
	return classfile.Encode(c.Build())
}

type fixup struct {
	// at is the position of the offset in the code
	at int
	// pc is the position of the instruction the offset is relative to
	pc    int
	label string
	wide  bool
}

type pendingHandler struct {
	start, end, handler string
	catchType           string
}

// MethodBuilder builds the code of a method
type MethodBuilder struct {
	class     *ClassBuilder
	m         *classfile.Method
	nparams   int
	abstract  bool
	code      []byte
	labels    map[string]int
	fixups    []fixup
	handlers  []pendingHandler
	lines     []classfile.LineNumber
	maxLocals int
	maxStack  int
}

// End ends the method and returns the class builder
func (m *MethodBuilder) End() *ClassBuilder {
	return m.class
}

func (m *MethodBuilder) finish() *classfile.Method {
	if m.abstract || m.m.Access&(classfile.AccAbstract|classfile.AccNative) != 0 {
		return m.m
	}
	for _, f := range m.fixups {
		target, ok := m.labels[f.label]
		if !ok {
			panic(fmt.Sprintf("undefined label %q in %s", f.label, m.m))
		}
		off := target - f.pc
		if f.wide {
			binary.BigEndian.PutUint32(m.code[f.at:], uint32(int32(off)))
		} else {
			if off < math.MinInt16 || off > math.MaxInt16 {
				panic(fmt.Sprintf("jump to %q too far in %s", f.label, m.m))
			}
			binary.BigEndian.PutUint16(m.code[f.at:], uint16(int16(off)))
		}
	}
	code := &classfile.Code{
		MaxStack:  uint16(m.maxStack),
		MaxLocals: uint16(m.maxLocals),
		Bytes:     m.code,
		Lines:     m.lines,
	}
	for _, h := range m.handlers {
		code.Handlers = append(code.Handlers, classfile.Handler{
			Start:     uint16(m.label(h.start)),
			End:       uint16(m.label(h.end)),
			Handler:   uint16(m.label(h.handler)),
			CatchType: h.catchType,
		})
		if h.catchType != "" {
			m.class.pb.Class(h.catchType)
		}
	}
	m.m.Code = code
	return m.m
}

func (m *MethodBuilder) label(name string) int {
	pc, ok := m.labels[name]
	if !ok {
		panic(fmt.Sprintf("undefined label %q in %s", name, m.m))
	}
	return pc
}

func (m *MethodBuilder) u1(b byte) { m.code = append(m.code, b) }
func (m *MethodBuilder) u2(v uint16) {
	m.code = binary.BigEndian.AppendUint16(m.code, v)
}
func (m *MethodBuilder) u4(v uint32) {
	m.code = binary.BigEndian.AppendUint32(m.code, v)
}

// Op emits instructions without operands
func (m *MethodBuilder) Op(ops ...bytecode.Opcode) *MethodBuilder {
	for _, op := range ops {
		m.u1(byte(op))
	}
	return m
}

// Raw emits raw bytes
func (m *MethodBuilder) Raw(b ...byte) *MethodBuilder {
	m.code = append(m.code, b...)
	return m
}

// Int pushes an int constant with the shortest instruction
func (m *MethodBuilder) Int(v int32) *MethodBuilder {
	switch {
	case v >= -1 && v <= 5:
		m.u1(byte(bytecode.Iconst0) + byte(v))
	case v >= math.MinInt8 && v <= math.MaxInt8:
		m.u1(byte(bytecode.Bipush))
		m.u1(byte(int8(v)))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		m.u1(byte(bytecode.Sipush))
		m.u2(uint16(int16(v)))
	default:
		m.Ldc(v)
	}
	return m
}

// Ldc pushes a constant from the pool: string, int32, float32, int64 or float64
func (m *MethodBuilder) Ldc(v any) *MethodBuilder {
	pb := m.class.pb
	var idx uint16
	wide := false
	switch x := v.(type) {
	case string:
		idx = pb.String(x)
	case int32:
		idx = pb.Integer(x)
	case float32:
		idx = pb.Float(x)
	case int64:
		idx = pb.Long(x)
		wide = true
	case float64:
		idx = pb.Double(x)
		wide = true
	default:
		panic(fmt.Sprintf("unsupported ldc constant %v", v))
	}
	switch {
	case wide:
		m.u1(byte(bytecode.Ldc2W))
		m.u2(idx)
	case idx <= math.MaxUint8:
		m.u1(byte(bytecode.Ldc))
		m.u1(byte(idx))
	default:
		m.u1(byte(bytecode.LdcW))
		m.u2(idx)
	}
	return m
}

// Local emits a load, store or ret instruction on the local variable idx, using the short forms when possible
func (m *MethodBuilder) Local(op bytecode.Opcode, idx int) *MethodBuilder {
	size := 1
	if op == bytecode.Lload || op == bytecode.Dload || op == bytecode.Lstore || op == bytecode.Dstore {
		size = 2
	}
	if idx+size > m.maxLocals {
		m.maxLocals = idx + size
	}
	switch {
	case idx <= 3 && op >= bytecode.Iload && op <= bytecode.Aload:
		m.u1(byte(bytecode.Iload0) + byte(op-bytecode.Iload)*4 + byte(idx))
	case idx <= 3 && op >= bytecode.Istore && op <= bytecode.Astore:
		m.u1(byte(bytecode.Istore0) + byte(op-bytecode.Istore)*4 + byte(idx))
	case idx <= math.MaxUint8:
		m.u1(byte(op))
		m.u1(byte(idx))
	default:
		m.u1(byte(bytecode.Wide))
		m.u1(byte(op))
		m.u2(uint16(idx))
	}
	return m
}

// Iinc increments the int local variable idx
func (m *MethodBuilder) Iinc(idx int, delta int32) *MethodBuilder {
	if idx+1 > m.maxLocals {
		m.maxLocals = idx + 1
	}
	if idx <= math.MaxUint8 && delta >= math.MinInt8 && delta <= math.MaxInt8 {
		m.u1(byte(bytecode.Iinc))
		m.u1(byte(idx))
		m.u1(byte(int8(delta)))
		return m
	}
	m.u1(byte(bytecode.Wide))
	m.u1(byte(bytecode.Iinc))
	m.u2(uint16(idx))
	m.u2(uint16(int16(delta)))
	return m
}

// Label defines a label at the current position
func (m *MethodBuilder) Label(name string) *MethodBuilder {
	if _, ok := m.labels[name]; ok {
		panic(fmt.Sprintf("label %q defined twice in %s", name, m.m))
	}
	m.labels[name] = len(m.code)
	return m
}

// Jump emits a jump instruction (if*, goto, goto_w) to the label
func (m *MethodBuilder) Jump(op bytecode.Opcode, label string) *MethodBuilder {
	pc := len(m.code)
	m.u1(byte(op))
	wide := op == bytecode.GotoW || op == bytecode.JsrW
	m.fixups = append(m.fixups, fixup{at: len(m.code), pc: pc, label: label, wide: wide})
	if wide {
		m.u4(0)
	} else {
		m.u2(0)
	}
	return m
}

func (m *MethodBuilder) pad() {
	for len(m.code)%4 != 0 {
		m.u1(0)
	}
}

// TableSwitch emits a tableswitch whose cases are low, low+1, ... in the order of the labels
func (m *MethodBuilder) TableSwitch(low int32, dflt string, labels ...string) *MethodBuilder {
	pc := len(m.code)
	m.u1(byte(bytecode.Tableswitch))
	m.pad()
	m.fixups = append(m.fixups, fixup{at: len(m.code), pc: pc, label: dflt, wide: true})
	m.u4(0)
	m.u4(uint32(low))
	m.u4(uint32(low + int32(len(labels)) - 1))
	for _, l := range labels {
		m.fixups = append(m.fixups, fixup{at: len(m.code), pc: pc, label: l, wide: true})
		m.u4(0)
	}
	return m
}

// LookupSwitch emits a lookupswitch; keys must be sorted
func (m *MethodBuilder) LookupSwitch(dflt string, keys []int32, labels []string) *MethodBuilder {
	pc := len(m.code)
	m.u1(byte(bytecode.Lookupswitch))
	m.pad()
	m.fixups = append(m.fixups, fixup{at: len(m.code), pc: pc, label: dflt, wide: true})
	m.u4(0)
	m.u4(uint32(len(keys)))
	for i, k := range keys {
		m.u4(uint32(k))
		m.fixups = append(m.fixups, fixup{at: len(m.code), pc: pc, label: labels[i], wide: true})
		m.u4(0)
	}
	return m
}

// Invoke emits invokevirtual, invokespecial, invokestatic or invokeinterface
func (m *MethodBuilder) Invoke(op bytecode.Opcode, class, name, desc string) *MethodBuilder {
	idx := m.class.pb.Methodref(class, name, desc, op == bytecode.Invokeinterface)
	m.u1(byte(op))
	m.u2(idx)
	if op == bytecode.Invokeinterface {
		md, err := classfile.ParseMethodDescriptor(desc)
		if err != nil {
			panic(err)
		}
		m.u1(byte(md.ArgSlots() + 1))
		m.u1(0)
	}
	return m
}

// InvokeDynamic emits an invokedynamic instruction with bootstrap method 0
func (m *MethodBuilder) InvokeDynamic(name, desc string) *MethodBuilder {
	m.u1(byte(bytecode.Invokedynamic))
	m.u2(m.class.pb.InvokeDynamic(0, name, desc))
	m.u2(0)
	return m
}

// Field emits getstatic, putstatic, getfield or putfield
func (m *MethodBuilder) Field(op bytecode.Opcode, class, name, desc string) *MethodBuilder {
	m.u1(byte(op))
	m.u2(m.class.pb.Fieldref(class, name, desc))
	return m
}

// Type emits new, anewarray, checkcast or instanceof
func (m *MethodBuilder) Type(op bytecode.Opcode, class string) *MethodBuilder {
	m.u1(byte(op))
	m.u2(m.class.pb.Class(class))
	return m
}

// Newarray emits a newarray for the given array type code (10 for int)
func (m *MethodBuilder) Newarray(atype byte) *MethodBuilder {
	m.u1(byte(bytecode.Newarray))
	m.u1(atype)
	return m
}

// Multianewarray emits a multianewarray for the array descriptor
func (m *MethodBuilder) Multianewarray(desc string, dims byte) *MethodBuilder {
	m.u1(byte(bytecode.Multianewarray))
	m.u2(m.class.pb.Class(desc))
	m.u1(dims)
	return m
}

// Line maps the following instructions to the source line
func (m *MethodBuilder) Line(line int) *MethodBuilder {
	m.lines = append(m.lines, classfile.LineNumber{PC: uint16(len(m.code)), Line: uint16(line)})
	return m
}

// Try declares an exception handler at label handler for the instructions between labels start and end. An empty
// catch type catches everything.
func (m *MethodBuilder) Try(start, end, handler, catchType string) *MethodBuilder {
	m.handlers = append(m.handlers, pendingHandler{start: start, end: end, handler: handler, catchType: catchType})
	return m
}

// Annotate adds an annotation to the method
func (m *MethodBuilder) Annotate(a classfile.Annotation) *MethodBuilder {
	m.m.Annotations = append(m.m.Annotations, a)
	return m
}

// ParamAnnotation adds an annotation to the declared parameter i
func (m *MethodBuilder) ParamAnnotation(i int, a classfile.Annotation) *MethodBuilder {
	if i >= m.nparams {
		panic(fmt.Sprintf("parameter %d out of range in %s", i, m.m))
	}
	for len(m.m.ParameterAnnotations) < m.nparams {
		m.m.ParameterAnnotations = append(m.m.ParameterAnnotations, nil)
	}
	m.m.ParameterAnnotations[i] = append(m.m.ParameterAnnotations[i], a)
	return m
}

// MaxStack overrides the default maximum stack size
func (m *MethodBuilder) MaxStack(n int) *MethodBuilder {
	m.maxStack = n
	return m
}

// Ann returns a runtime visible annotation of the dotted type name
func Ann(typeName string, elements ...classfile.ElementValuePair) classfile.Annotation {
	return classfile.Annotation{
		Type:     classfile.TypeOfClass(classfile.InternalName(typeName)),
		Visible:  true,
		Elements: elements,
	}
}

// EnumElement returns an annotation element whose value is an enum constant
func EnumElement(name string, enumType string, value string) classfile.ElementValuePair {
	return classfile.ElementValuePair{
		Name: name,
		Value: classfile.ElementValue{
			Tag:      'e',
			EnumType: classfile.TypeOfClass(classfile.InternalName(enumType)),
			EnumName: value,
		},
	}
}

// StringElement returns an annotation element whose value is a string
func StringElement(name string, value string) classfile.ElementValuePair {
	return classfile.ElementValuePair{Name: name, Value: classfile.ElementValue{Tag: 's', Str: value}}
}
