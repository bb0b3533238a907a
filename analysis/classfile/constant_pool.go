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
	"math"
	"unicode/utf16"
	"unicode/utf8"
)

// Constant pool tags
const (
	TagUtf8               byte = 1
	TagInteger            byte = 3
	TagFloat              byte = 4
	TagLong               byte = 5
	TagDouble             byte = 6
	TagClass              byte = 7
	TagString             byte = 8
	TagFieldref           byte = 9
	TagMethodref          byte = 10
	TagInterfaceMethodref byte = 11
	TagNameAndType        byte = 12
	TagMethodHandle       byte = 15
	TagMethodType         byte = 16
	TagDynamic            byte = 17
	TagInvokeDynamic      byte = 18
	TagModule             byte = 19
	TagPackage            byte = 20
)

// Constant is one entry of the constant pool. The meaning of the fields depends on the tag:
//   - Utf8: Str
//   - Integer, Long: Int
//   - Float, Double: Float
//   - Class, String, MethodType, Module, Package: A is the index of the Utf8 entry
//   - Fieldref, Methodref, InterfaceMethodref: A is the class, B the name and type
//   - NameAndType: A is the name, B the descriptor
//   - MethodHandle: Kind is the reference kind, A the reference
//   - Dynamic, InvokeDynamic: A is the bootstrap method attribute index, B the name and type
type Constant struct {
	Tag   byte
	Str   string
	Int   int64
	Float float64
	A     uint16
	B     uint16
	Kind  byte
}

// wide returns true for the entries that take two slots in the pool
func (c Constant) wide() bool {
	return c.Tag == TagLong || c.Tag == TagDouble
}

// MemberRef is a resolved reference to a field or a method
type MemberRef struct {
	// Class is the internal name of the class, e.g. java/lang/String
	Class      string
	Name       string
	Descriptor string
	// Interface is true for InterfaceMethodref entries
	Interface bool
}

func (m MemberRef) String() string {
	return m.Class + "." + m.Name + m.Descriptor
}

// ConstantPool is the constant pool of a class. Index 0 is unused, as are the slots following long and double
// entries.
type ConstantPool struct {
	entries []Constant
}

// Len returns the number of slots of the pool, including the unused slot 0
func (p *ConstantPool) Len() int {
	return len(p.entries)
}

// Entry returns the constant at index i
func (p *ConstantPool) Entry(i uint16) (Constant, error) {
	if i == 0 || int(i) >= len(p.entries) || p.entries[i].Tag == 0 {
		return Constant{}, fmt.Errorf("%w: invalid constant pool index %d", ErrMalformed, i)
	}
	return p.entries[i], nil
}

func (p *ConstantPool) expect(i uint16, tag byte) (Constant, error) {
	c, err := p.Entry(i)
	if err != nil {
		return c, err
	}
	if c.Tag != tag {
		return c, fmt.Errorf("%w: constant %d has tag %d, expected %d", ErrMalformed, i, c.Tag, tag)
	}
	return c, nil
}

// Utf8 returns the string of the Utf8 entry at index i
func (p *ConstantPool) Utf8(i uint16) (string, error) {
	c, err := p.expect(i, TagUtf8)
	return c.Str, err
}

// ClassName returns the internal name of the class entry at index i
func (p *ConstantPool) ClassName(i uint16) (string, error) {
	c, err := p.expect(i, TagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.A)
}

// NameAndType returns the name and descriptor of the NameAndType entry at index i
func (p *ConstantPool) NameAndType(i uint16) (string, string, error) {
	c, err := p.expect(i, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	name, err := p.Utf8(c.A)
	if err != nil {
		return "", "", err
	}
	desc, err := p.Utf8(c.B)
	return name, desc, err
}

// MemberRef resolves the field or method reference at index i
func (p *ConstantPool) MemberRef(i uint16) (MemberRef, error) {
	c, err := p.Entry(i)
	if err != nil {
		return MemberRef{}, err
	}
	if c.Tag != TagFieldref && c.Tag != TagMethodref && c.Tag != TagInterfaceMethodref {
		return MemberRef{}, fmt.Errorf("%w: constant %d is not a member reference", ErrMalformed, i)
	}
	class, err := p.ClassName(c.A)
	if err != nil {
		return MemberRef{}, err
	}
	name, desc, err := p.NameAndType(c.B)
	if err != nil {
		return MemberRef{}, err
	}
	return MemberRef{Class: class, Name: name, Descriptor: desc, Interface: c.Tag == TagInterfaceMethodref}, nil
}

// InvokeDynamic returns the name and descriptor of the InvokeDynamic or Dynamic entry at index i
func (p *ConstantPool) InvokeDynamic(i uint16) (string, string, error) {
	c, err := p.Entry(i)
	if err != nil {
		return "", "", err
	}
	if c.Tag != TagInvokeDynamic && c.Tag != TagDynamic {
		return "", "", fmt.Errorf("%w: constant %d is not a dynamic constant", ErrMalformed, i)
	}
	return p.NameAndType(c.B)
}

// LoadableType returns the field descriptor of the value pushed by ldc, ldc_w or ldc2_w with index i, and a
// printable representation of the constant.
func (p *ConstantPool) LoadableType(i uint16) (string, string, error) {
	c, err := p.Entry(i)
	if err != nil {
		return "", "", err
	}
	switch c.Tag {
	case TagInteger:
		return "I", fmt.Sprintf("%d", c.Int), nil
	case TagLong:
		return "J", fmt.Sprintf("%dL", c.Int), nil
	case TagFloat:
		return "F", fmt.Sprintf("%gf", c.Float), nil
	case TagDouble:
		return "D", fmt.Sprintf("%g", c.Float), nil
	case TagString:
		s, err := p.Utf8(c.A)
		return "Ljava/lang/String;", fmt.Sprintf("%q", s), err
	case TagClass:
		s, err := p.Utf8(c.A)
		return "Ljava/lang/Class;", DottedName(s) + ".class", err
	case TagMethodType:
		s, err := p.Utf8(c.A)
		return "Ljava/lang/invoke/MethodType;", s, err
	case TagMethodHandle:
		return "Ljava/lang/invoke/MethodHandle;", "MethodHandle", nil
	case TagDynamic:
		name, desc, err := p.NameAndType(c.B)
		return desc, name, err
	default:
		return "", "", fmt.Errorf("%w: constant %d (tag %d) is not loadable", ErrMalformed, i, c.Tag)
	}
}

// decodeModifiedUTF8 decodes the modified UTF-8 encoding of class files: the null character is encoded on two bytes
// and supplementary characters as surrogate pairs.
func decodeModifiedUTF8(b []byte) string {
	if utf8.Valid(b) {
		ascii := true
		for _, c := range b {
			if c >= 0x80 {
				ascii = false
				break
			}
		}
		if ascii {
			return string(b)
		}
	}
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0 && i+1 < len(b):
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0 && i+2 < len(b):
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			units = append(units, utf8.RuneError)
			i++
		}
	}
	return string(utf16.Decode(units))
}

func encodeModifiedUTF8(s string) []byte {
	var b []byte
	for _, u := range utf16.Encode([]rune(s)) {
		switch {
		case u != 0 && u < 0x80:
			b = append(b, byte(u))
		case u < 0x800:
			b = append(b, 0xC0|byte(u>>6), 0x80|byte(u&0x3F))
		default:
			b = append(b, 0xE0|byte(u>>12), 0x80|byte((u>>6)&0x3F), 0x80|byte(u&0x3F))
		}
	}
	return b
}

// PoolBuilder builds a constant pool, sharing identical entries
type PoolBuilder struct {
	entries []Constant
	index   map[Constant]uint16
}

// NewPoolBuilder returns a builder for an empty constant pool
func NewPoolBuilder() *PoolBuilder {
	return &PoolBuilder{entries: []Constant{{}}, index: map[Constant]uint16{}}
}

// NewPoolBuilderFrom returns a builder whose first entries are the entries of p, so that the indexes of p remain
// valid in the built pool
func NewPoolBuilderFrom(p *ConstantPool) *PoolBuilder {
	b := &PoolBuilder{entries: append([]Constant{}, p.entries...), index: map[Constant]uint16{}}
	for i, c := range b.entries {
		if c.Tag != 0 {
			if _, ok := b.index[c]; !ok {
				b.index[c] = uint16(i)
			}
		}
	}
	return b
}

func (b *PoolBuilder) add(c Constant) uint16 {
	if i, ok := b.index[c]; ok {
		return i
	}
	i := uint16(len(b.entries))
	b.entries = append(b.entries, c)
	if c.wide() {
		b.entries = append(b.entries, Constant{})
	}
	b.index[c] = i
	return i
}

// Utf8 adds a Utf8 entry
func (b *PoolBuilder) Utf8(s string) uint16 { return b.add(Constant{Tag: TagUtf8, Str: s}) }

// Integer adds an Integer entry
func (b *PoolBuilder) Integer(v int32) uint16 { return b.add(Constant{Tag: TagInteger, Int: int64(v)}) }

// Long adds a Long entry
func (b *PoolBuilder) Long(v int64) uint16 { return b.add(Constant{Tag: TagLong, Int: v}) }

// Float adds a Float entry
func (b *PoolBuilder) Float(v float32) uint16 {
	return b.add(Constant{Tag: TagFloat, Float: float64(v)})
}

// Double adds a Double entry
func (b *PoolBuilder) Double(v float64) uint16 { return b.add(Constant{Tag: TagDouble, Float: v}) }

// Class adds a Class entry for the internal name
func (b *PoolBuilder) Class(name string) uint16 {
	return b.add(Constant{Tag: TagClass, A: b.Utf8(name)})
}

// String adds a String entry
func (b *PoolBuilder) String(s string) uint16 { return b.add(Constant{Tag: TagString, A: b.Utf8(s)}) }

// MethodType adds a MethodType entry
func (b *PoolBuilder) MethodType(desc string) uint16 {
	return b.add(Constant{Tag: TagMethodType, A: b.Utf8(desc)})
}

// NameAndType adds a NameAndType entry
func (b *PoolBuilder) NameAndType(name, desc string) uint16 {
	return b.add(Constant{Tag: TagNameAndType, A: b.Utf8(name), B: b.Utf8(desc)})
}

// Fieldref adds a Fieldref entry
func (b *PoolBuilder) Fieldref(class, name, desc string) uint16 {
	return b.add(Constant{Tag: TagFieldref, A: b.Class(class), B: b.NameAndType(name, desc)})
}

// Methodref adds a Methodref entry, or an InterfaceMethodref entry when itf is true
func (b *PoolBuilder) Methodref(class, name, desc string, itf bool) uint16 {
	tag := TagMethodref
	if itf {
		tag = TagInterfaceMethodref
	}
	return b.add(Constant{Tag: tag, A: b.Class(class), B: b.NameAndType(name, desc)})
}

// InvokeDynamic adds an InvokeDynamic entry
func (b *PoolBuilder) InvokeDynamic(bootstrap uint16, name, desc string) uint16 {
	return b.add(Constant{Tag: TagInvokeDynamic, A: bootstrap, B: b.NameAndType(name, desc)})
}

// Pool returns the constant pool built so far. Later additions to the builder do not modify the returned pool.
func (b *PoolBuilder) Pool() *ConstantPool {
	return &ConstantPool{entries: append([]Constant{}, b.entries...)}
}

func floatBits(c Constant) uint32 {
	return math.Float32bits(float32(c.Float))
}
