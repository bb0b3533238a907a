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

package bytecode

import (
	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
)

// Kind is the verification kind of a value
type Kind uint8

// Verification kinds. Top is the kind of unusable slots, including the second slot of long and double values.
const (
	KindTop Kind = iota
	KindInt
	KindFloat
	KindLong
	KindDouble
	KindRef
	KindNull
)

// Type is the verified type of a stack or local slot
type Type struct {
	Kind Kind
	// Desc is the field descriptor of references, e.g. Ljava/lang/String; or [I
	Desc string
}

// The types that do not carry a class
var (
	Top    = Type{Kind: KindTop}
	Int    = Type{Kind: KindInt}
	Float  = Type{Kind: KindFloat}
	Long   = Type{Kind: KindLong}
	Double = Type{Kind: KindDouble}
	Null   = Type{Kind: KindNull}
)

// Object is the type of java/lang/Object references
var Object = RefOf("Ljava/lang/Object;")

// RefOf returns the reference type with the given field descriptor
func RefOf(desc string) Type {
	return Type{Kind: KindRef, Desc: desc}
}

// TypeOfDescriptor returns the verification type of values of the field type desc. Booleans, bytes, chars and shorts
// are ints.
func TypeOfDescriptor(desc string) Type {
	if desc == "" {
		return Top
	}
	switch desc[0] {
	case 'B', 'C', 'I', 'S', 'Z':
		return Int
	case 'F':
		return Float
	case 'J':
		return Long
	case 'D':
		return Double
	case 'L', '[':
		return RefOf(desc)
	}
	return Top
}

// Size returns the number of slots of the type
func (t Type) Size() int {
	if t.Kind == KindLong || t.Kind == KindDouble {
		return 2
	}
	return 1
}

// IsWide returns true for longs and doubles
func (t Type) IsWide() bool {
	return t.Size() == 2
}

// IsReference returns true for references, including null
func (t Type) IsReference() bool {
	return t.Kind == KindRef || t.Kind == KindNull
}

// Descriptor returns the field descriptor of the type. Null is described as java/lang/Object and Top as V.
func (t Type) Descriptor() string {
	switch t.Kind {
	case KindInt:
		return "I"
	case KindFloat:
		return "F"
	case KindLong:
		return "J"
	case KindDouble:
		return "D"
	case KindRef:
		return t.Desc
	case KindNull:
		return "Ljava/lang/Object;"
	}
	return "V"
}

// Class returns the internal class name of references. Array types are returned as descriptors.
func (t Type) Class() string {
	if t.Kind != KindRef {
		return ""
	}
	return classfile.ClassOfType(t.Desc)
}

func (t Type) String() string {
	switch t.Kind {
	case KindTop:
		return "top"
	case KindNull:
		return "null"
	}
	return classfile.PrettyType(t.Descriptor())
}

// SameCategory returns true when the two types are both references (or null), or both the same primitive kind
func SameCategory(a, b Type) bool {
	if a.IsReference() && b.IsReference() {
		return true
	}
	return a.Kind == b.Kind
}

// Join returns the most precise type that both a and b are assignable to. Values of different primitive kinds join
// to Top.
func Join(h classfile.Hierarchy, a, b Type) Type {
	switch {
	case a == b:
		return a
	case a.Kind == KindNull && b.Kind == KindRef:
		return b
	case b.Kind == KindNull && a.Kind == KindRef:
		return a
	case a.Kind == KindRef && b.Kind == KindRef:
		if a.Desc[0] == '[' || b.Desc[0] == '[' || h == nil {
			return Object
		}
		return RefOf(classfile.TypeOfClass(h.CommonSuperclass(a.Class(), b.Class())))
	}
	return Top
}

// Frame is the state of the local variables and the operand stack. Long and double values occupy two slots, the
// second one being Top, both in the locals and in the stack.
type Frame struct {
	Locals []Type
	Stack  []Type
}

// Copy returns a deep copy of the frame
func (f *Frame) Copy() *Frame {
	return &Frame{Locals: append([]Type{}, f.Locals...), Stack: append([]Type{}, f.Stack...)}
}

// StackTop returns the type of the value on top of the stack, skipping the Top slot of wide values
func (f *Frame) StackTop() (Type, bool) {
	n := len(f.Stack)
	if n == 0 {
		return Top, false
	}
	if f.Stack[n-1].Kind == KindTop && n >= 2 && f.Stack[n-2].IsWide() {
		return f.Stack[n-2], true
	}
	return f.Stack[n-1], true
}

// StackSlots returns the number of slots of the stack
func (f *Frame) StackSlots() int {
	return len(f.Stack)
}
