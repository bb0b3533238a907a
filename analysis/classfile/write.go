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

type writer struct {
	b []byte
}

func (w *writer) u1(v byte)    { w.b = append(w.b, v) }
func (w *writer) u2(v uint16)  { w.b = binary.BigEndian.AppendUint16(w.b, v) }
func (w *writer) u4(v uint32)  { w.b = binary.BigEndian.AppendUint32(w.b, v) }
func (w *writer) raw(b []byte) { w.b = append(w.b, b...) }

// attribute writes an attribute whose content is produced by f
func (w *writer) attribute(pb *PoolBuilder, name string, f func(aw *writer)) {
	aw := &writer{}
	f(aw)
	w.u2(pb.Utf8(name))
	w.u4(uint32(len(aw.b)))
	w.raw(aw.b)
}

// Encode returns the class file content of cf. The indexes of cf.Pool are preserved, so that the code of the methods
// remains valid. Only the attributes represented in ClassFile are written.
func Encode(cf *ClassFile) ([]byte, error) {
	var pb *PoolBuilder
	if cf.Pool != nil {
		pb = NewPoolBuilderFrom(cf.Pool)
	} else {
		pb = NewPoolBuilder()
	}
	body := &writer{}
	body.u2(cf.Access)
	body.u2(pb.Class(cf.Name))
	if cf.SuperName != "" {
		body.u2(pb.Class(cf.SuperName))
	} else {
		body.u2(0)
	}
	body.u2(uint16(len(cf.Interfaces)))
	for _, itf := range cf.Interfaces {
		body.u2(pb.Class(itf))
	}

	body.u2(uint16(len(cf.Fields)))
	for _, f := range cf.Fields {
		body.u2(f.Access)
		body.u2(pb.Utf8(f.Name))
		body.u2(pb.Utf8(f.Descriptor))
		attrs := annotationAttributes(pb, f.Annotations)
		body.u2(uint16(len(attrs)))
		for _, a := range attrs {
			a(body)
		}
	}

	body.u2(uint16(len(cf.Methods)))
	for _, m := range cf.Methods {
		body.u2(m.Access)
		body.u2(pb.Utf8(m.Name))
		body.u2(pb.Utf8(m.Descriptor))
		attrs := annotationAttributes(pb, m.Annotations)
		if m.Code != nil {
			code := m.Code
			attrs = append(attrs, func(w *writer) {
				w.attribute(pb, "Code", func(cw *writer) { writeCode(pb, cw, code) })
			})
		}
		if len(m.ParameterAnnotations) > 0 {
			attrs = append(attrs, parameterAnnotationAttributes(pb, m.ParameterAnnotations)...)
		}
		body.u2(uint16(len(attrs)))
		for _, a := range attrs {
			a(body)
		}
	}

	attrs := annotationAttributes(pb, cf.Annotations)
	if cf.SourceFile != "" {
		attrs = append(attrs, func(w *writer) {
			w.attribute(pb, "SourceFile", func(aw *writer) { aw.u2(pb.Utf8(cf.SourceFile)) })
		})
	}
	body.u2(uint16(len(attrs)))
	for _, a := range attrs {
		a(body)
	}

	if len(pb.entries) > math.MaxUint16 {
		return nil, fmt.Errorf("constant pool of %s is too large", cf.Name)
	}
	out := &writer{}
	out.u4(magic)
	out.u2(cf.MinorVersion)
	out.u2(cf.MajorVersion)
	writePool(out, pb.entries)
	out.raw(body.b)
	return out.b, nil
}

func writePool(w *writer, entries []Constant) {
	w.u2(uint16(len(entries)))
	for i := 1; i < len(entries); i++ {
		c := entries[i]
		w.u1(c.Tag)
		switch c.Tag {
		case TagUtf8:
			s := encodeModifiedUTF8(c.Str)
			w.u2(uint16(len(s)))
			w.raw(s)
		case TagInteger:
			w.u4(uint32(int32(c.Int)))
		case TagFloat:
			w.u4(floatBits(c))
		case TagLong:
			w.u4(uint32(uint64(c.Int) >> 32))
			w.u4(uint32(uint64(c.Int)))
		case TagDouble:
			bits := math.Float64bits(c.Float)
			w.u4(uint32(bits >> 32))
			w.u4(uint32(bits))
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			w.u2(c.A)
		case TagMethodHandle:
			w.u1(c.Kind)
			w.u2(c.A)
		default:
			w.u2(c.A)
			w.u2(c.B)
		}
		if c.wide() {
			i++
		}
	}
}

func writeCode(pb *PoolBuilder, w *writer, c *Code) {
	w.u2(c.MaxStack)
	w.u2(c.MaxLocals)
	w.u4(uint32(len(c.Bytes)))
	w.raw(c.Bytes)
	w.u2(uint16(len(c.Handlers)))
	for _, h := range c.Handlers {
		w.u2(h.Start)
		w.u2(h.End)
		w.u2(h.Handler)
		if h.CatchType == "" {
			w.u2(0)
		} else {
			w.u2(pb.Class(h.CatchType))
		}
	}
	if len(c.Lines) == 0 {
		w.u2(0)
		return
	}
	w.u2(1)
	w.attribute(pb, "LineNumberTable", func(lw *writer) {
		lw.u2(uint16(len(c.Lines)))
		for _, ln := range c.Lines {
			lw.u2(ln.PC)
			lw.u2(ln.Line)
		}
	})
}

// annotationAttributes returns the writers of the attributes holding the visible and invisible annotations
func annotationAttributes(pb *PoolBuilder, annotations []Annotation) []func(*writer) {
	var visible, invisible []Annotation
	for _, a := range annotations {
		if a.Visible {
			visible = append(visible, a)
		} else {
			invisible = append(invisible, a)
		}
	}
	var attrs []func(*writer)
	for _, group := range []struct {
		name string
		as   []Annotation
	}{{"RuntimeVisibleAnnotations", visible}, {"RuntimeInvisibleAnnotations", invisible}} {
		if len(group.as) == 0 {
			continue
		}
		g := group
		attrs = append(attrs, func(w *writer) {
			w.attribute(pb, g.name, func(aw *writer) {
				aw.u2(uint16(len(g.as)))
				for _, a := range g.as {
					writeAnnotation(pb, aw, a)
				}
			})
		})
	}
	return attrs
}

func parameterAnnotationAttributes(pb *PoolBuilder, params [][]Annotation) []func(*writer) {
	var attrs []func(*writer)
	for _, visible := range []bool{true, false} {
		name := "RuntimeInvisibleParameterAnnotations"
		if visible {
			name = "RuntimeVisibleParameterAnnotations"
		}
		found := false
		perParam := make([][]Annotation, len(params))
		for i, as := range params {
			for _, a := range as {
				if a.Visible == visible {
					perParam[i] = append(perParam[i], a)
					found = true
				}
			}
		}
		if !found {
			continue
		}
		attrs = append(attrs, func(w *writer) {
			w.attribute(pb, name, func(aw *writer) {
				aw.u1(byte(len(perParam)))
				for _, as := range perParam {
					aw.u2(uint16(len(as)))
					for _, a := range as {
						writeAnnotation(pb, aw, a)
					}
				}
			})
		})
	}
	return attrs
}

func writeAnnotation(pb *PoolBuilder, w *writer, a Annotation) {
	w.u2(pb.Utf8(a.Type))
	w.u2(uint16(len(a.Elements)))
	for _, e := range a.Elements {
		w.u2(pb.Utf8(e.Name))
		writeElementValue(pb, w, e.Value)
	}
}

func writeElementValue(pb *PoolBuilder, w *writer, v ElementValue) {
	w.u1(v.Tag)
	switch v.Tag {
	case 'B', 'C', 'I', 'S', 'Z':
		w.u2(pb.Integer(int32(v.Int)))
	case 'J':
		w.u2(pb.Long(v.Int))
	case 'F':
		w.u2(pb.Float(float32(v.Float)))
	case 'D':
		w.u2(pb.Double(v.Float))
	case 's', 'c':
		w.u2(pb.Utf8(v.Str))
	case 'e':
		w.u2(pb.Utf8(v.EnumType))
		w.u2(pb.Utf8(v.EnumName))
	case '@':
		writeAnnotation(pb, w, *v.Annotation)
	case '[':
		w.u2(uint16(len(v.Values)))
		for _, x := range v.Values {
			writeElementValue(pb, w, x)
		}
	}
}
