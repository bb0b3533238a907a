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

package classfile

import (
	"fmt"
	"strings"
)

// MethodDescriptor is a parsed method descriptor
type MethodDescriptor struct {
	// Params are the field descriptors of the declared parameters
	Params []string
	// Return is the field descriptor of the result, V for void methods
	Return string
}

// ParseMethodDescriptor parses a method descriptor such as (ILjava/lang/String;[J)V
func ParseMethodDescriptor(desc string) (MethodDescriptor, error) {
	if !strings.HasPrefix(desc, "(") {
		return MethodDescriptor{}, fmt.Errorf("%w: invalid method descriptor %q", ErrMalformed, desc)
	}
	var md MethodDescriptor
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := fieldTypeLen(desc[i:])
		if err != nil {
			return MethodDescriptor{}, fmt.Errorf("%w: invalid method descriptor %q", ErrMalformed, desc)
		}
		md.Params = append(md.Params, desc[i:i+n])
		i += n
	}
	if i >= len(desc) {
		return MethodDescriptor{}, fmt.Errorf("%w: invalid method descriptor %q", ErrMalformed, desc)
	}
	ret := desc[i+1:]
	if ret != "V" {
		if n, err := fieldTypeLen(ret); err != nil || n != len(ret) {
			return MethodDescriptor{}, fmt.Errorf("%w: invalid return type in %q", ErrMalformed, desc)
		}
	}
	md.Return = ret
	return md, nil
}

// ArgSlots returns the number of local variable slots taken by the declared parameters
func (md MethodDescriptor) ArgSlots() int {
	n := 0
	for _, p := range md.Params {
		n += SlotSize(p)
	}
	return n
}

func fieldTypeLen(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty type")
	}
	switch s[0] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return 1, nil
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 2 {
			return 0, fmt.Errorf("unterminated class type")
		}
		return end + 1, nil
	case '[':
		n, err := fieldTypeLen(s[1:])
		return n + 1, err
	default:
		return 0, fmt.Errorf("invalid type %q", s[:1])
	}
}

// SlotSize returns the number of stack or local slots taken by a value of the field type desc: 2 for long and
// double, 0 for void, 1 otherwise.
func SlotSize(desc string) int {
	switch desc {
	case "J", "D":
		return 2
	case "V", "":
		return 0
	default:
		return 1
	}
}

// IsReferenceType returns true for class and array types
func IsReferenceType(desc string) bool {
	return strings.HasPrefix(desc, "L") || strings.HasPrefix(desc, "[")
}

// ClassOfType returns the internal class name of a class type (Ljava/lang/String; gives java/lang/String). Array
// types are returned as is, which is also how array classes are named in the constant pool.
func ClassOfType(desc string) string {
	if strings.HasPrefix(desc, "L") && strings.HasSuffix(desc, ";") {
		return desc[1 : len(desc)-1]
	}
	return desc
}

// TypeOfClass returns the field descriptor of the class with the given internal name. Array class names are
// already descriptors.
func TypeOfClass(name string) string {
	if strings.HasPrefix(name, "[") {
		return name
	}
	return "L" + name + ";"
}

// PrettyType returns the source syntax of a field descriptor, e.g. java.lang.String[] for [Ljava/lang/String;
func PrettyType(desc string) string {
	dims := 0
	for dims < len(desc) && desc[dims] == '[' {
		dims++
	}
	base := desc[dims:]
	var name string
	switch base {
	case "B":
		name = "byte"
	case "C":
		name = "char"
	case "D":
		name = "double"
	case "F":
		name = "float"
	case "I":
		name = "int"
	case "J":
		name = "long"
	case "S":
		name = "short"
	case "Z":
		name = "boolean"
	case "V":
		name = "void"
	default:
		name = DottedName(ClassOfType(base))
	}
	return name + strings.Repeat("[]", dims)
}
