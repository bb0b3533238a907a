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
	"encoding/binary"
	"fmt"
	"math"
)

const magic = 0xCAFEBABE

// reader reads big-endian values from a byte slice. The first error is sticky: once an error has occurred, all
// reads return zero values.
type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.b) {
		r.err = fmt.Errorf("%w: unexpected end of data at offset %d", ErrMalformed, r.off)
		return false
	}
	return true
}

func (r *reader) u1() byte {
	if !r.need(1) {
		return 0
	}
	v := r.b[r.off]
	r.off++
	return v
}

func (r *reader) u2() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v
}

func (r *reader) u4() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v
}

func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := r.b[r.off : r.off+n]
	r.off += n
	return v
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
	}
}

// Parse parses the content of a class file
func Parse(data []byte) (*ClassFile, error) {
	r := &reader{b: data}
	if r.u4() != magic {
		return nil, fmt.Errorf("%w: bad magic number", ErrMalformed)
	}
	cf := &ClassFile{}
	cf.MinorVersion = r.u2()
	cf.MajorVersion = r.u2()
	cf.Pool = parsePool(r)
	if r.err != nil {
		return nil, r.err
	}
	p := cf.Pool
	cf.Access = r.u2()
	name, err := p.ClassName(r.u2())
	if err != nil {
		return nil, err
	}
	cf.Name = name
	if super := r.u2(); super != 0 {
		cf.SuperName, err = p.ClassName(super)
		if err != nil {
			return nil, err
		}
	}
	nItf := int(r.u2())
	for i := 0; i < nItf && r.err == nil; i++ {
		itf, err := p.ClassName(r.u2())
		if err != nil {
			return nil, err
		}
		cf.Interfaces = append(cf.Interfaces, itf)
	}

	nFields := int(r.u2())
	for i := 0; i < nFields && r.err == nil; i++ {
		f := &Field{Owner: cf.Name, Access: r.u2()}
		f.Name = r.utf8(p)
		f.Descriptor = r.utf8(p)
		r.attributes(p, func(attr string, ar *reader) {
			switch attr {
			case "RuntimeVisibleAnnotations", "RuntimeInvisibleAnnotations":
				f.Annotations = append(f.Annotations, ar.annotations(p, attr == "RuntimeVisibleAnnotations")...)
			}
		})
		cf.Fields = append(cf.Fields, f)
	}

	nMethods := int(r.u2())
	for i := 0; i < nMethods && r.err == nil; i++ {
		m := &Method{Owner: cf.Name, Access: r.u2()}
		m.Name = r.utf8(p)
		m.Descriptor = r.utf8(p)
		r.attributes(p, func(attr string, ar *reader) {
			switch attr {
			case "Code":
				m.Code = ar.code(p)
			case "RuntimeVisibleAnnotations", "RuntimeInvisibleAnnotations":
				m.Annotations = append(m.Annotations, ar.annotations(p, attr == "RuntimeVisibleAnnotations")...)
			case "RuntimeVisibleParameterAnnotations", "RuntimeInvisibleParameterAnnotations":
				visible := attr == "RuntimeVisibleParameterAnnotations"
				n := int(ar.u1())
				for len(m.ParameterAnnotations) < n {
					m.ParameterAnnotations = append(m.ParameterAnnotations, nil)
				}
				for j := 0; j < n && ar.err == nil; j++ {
					m.ParameterAnnotations[j] = append(m.ParameterAnnotations[j], ar.annotations(p, visible)...)
				}
			}
		})
		cf.Methods = append(cf.Methods, m)
	}

	r.attributes(p, func(attr string, ar *reader) {
		switch attr {
		case "SourceFile":
			cf.SourceFile = ar.utf8(p)
		case "RuntimeVisibleAnnotations", "RuntimeInvisibleAnnotations":
			cf.Annotations = append(cf.Annotations, ar.annotations(p, attr == "RuntimeVisibleAnnotations")...)
		}
	})
	if r.err != nil {
		return nil, fmt.Errorf("while parsing %s: %w", cf.Name, r.err)
	}
	return cf, nil
}

func parsePool(r *reader) *ConstantPool {
	n := int(r.u2())
	p := &ConstantPool{entries: make([]Constant, n)}
	for i := 1; i < n && r.err == nil; i++ {
		c := Constant{Tag: r.u1()}
		switch c.Tag {
		case TagUtf8:
			c.Str = decodeModifiedUTF8(r.bytes(int(r.u2())))
		case TagInteger:
			c.Int = int64(int32(r.u4()))
		case TagFloat:
			c.Float = float64(math.Float32frombits(r.u4()))
		case TagLong:
			hi := uint64(r.u4())
			c.Int = int64(hi<<32 | uint64(r.u4()))
		case TagDouble:
			hi := uint64(r.u4())
			c.Float = math.Float64frombits(hi<<32 | uint64(r.u4()))
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			c.A = r.u2()
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			c.A = r.u2()
			c.B = r.u2()
		case TagMethodHandle:
			c.Kind = r.u1()
			c.A = r.u2()
		default:
			r.fail("unknown constant pool tag %d at index %d", c.Tag, i)
		}
		p.entries[i] = c
		if c.wide() {
			i++
		}
	}
	return p
}

func (r *reader) utf8(p *ConstantPool) string {
	i := r.u2()
	if r.err != nil {
		return ""
	}
	s, err := p.Utf8(i)
	if err != nil {
		r.err = err
	}
	return s
}

func (r *reader) className(p *ConstantPool) string {
	i := r.u2()
	if r.err != nil || i == 0 {
		return ""
	}
	s, err := p.ClassName(i)
	if err != nil {
		r.err = err
	}
	return s
}

// attributes reads an attribute table and calls f with a reader over the content of each attribute
func (r *reader) attributes(p *ConstantPool, f func(name string, ar *reader)) {
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		name := r.utf8(p)
		content := r.bytes(int(r.u4()))
		if r.err != nil {
			return
		}
		ar := &reader{b: content}
		f(name, ar)
		if ar.err != nil {
			r.err = fmt.Errorf("in attribute %s: %w", name, ar.err)
		}
	}
}

func (r *reader) code(p *ConstantPool) *Code {
	c := &Code{MaxStack: r.u2(), MaxLocals: r.u2()}
	c.Bytes = r.bytes(int(r.u4()))
	nHandlers := int(r.u2())
	for i := 0; i < nHandlers && r.err == nil; i++ {
		h := Handler{Start: r.u2(), End: r.u2(), Handler: r.u2()}
		h.CatchType = r.className(p)
		c.Handlers = append(c.Handlers, h)
	}
	r.attributes(p, func(name string, ar *reader) {
		if name == "LineNumberTable" {
			n := int(ar.u2())
			for i := 0; i < n && ar.err == nil; i++ {
				c.Lines = append(c.Lines, LineNumber{PC: ar.u2(), Line: ar.u2()})
			}
		}
	})
	return c
}

func (r *reader) annotations(p *ConstantPool, visible bool) []Annotation {
	n := int(r.u2())
	res := make([]Annotation, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		res = append(res, r.annotation(p, visible))
	}
	return res
}

func (r *reader) annotation(p *ConstantPool, visible bool) Annotation {
	a := Annotation{Type: r.utf8(p), Visible: visible}
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		name := r.utf8(p)
		a.Elements = append(a.Elements, ElementValuePair{Name: name, Value: r.elementValue(p, visible)})
	}
	return a
}

func (r *reader) elementValue(p *ConstantPool, visible bool) ElementValue {
	v := ElementValue{Tag: r.u1()}
	switch v.Tag {
	case 'B', 'C', 'I', 'S', 'Z', 'J', 'D', 'F':
		c, err := p.Entry(r.u2())
		if err != nil {
			r.err = err
			return v
		}
		v.Int = c.Int
		v.Float = c.Float
	case 's', 'c':
		v.Str = r.utf8(p)
	case 'e':
		v.EnumType = r.utf8(p)
		v.EnumName = r.utf8(p)
	case '@':
		a := r.annotation(p, visible)
		v.Annotation = &a
	case '[':
		n := int(r.u2())
		for i := 0; i < n && r.err == nil; i++ {
			v.Values = append(v.Values, r.elementValue(p, visible))
		}
	default:
		r.fail("unknown element value tag %q", v.Tag)
	}
	return v
}
