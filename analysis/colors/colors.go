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

// Package colors implements the taint values of the analysis: colors with a kind, a confidence and a provenance
// chain, attached to objects together with the set of concrete classes the object may have.
//
// Colors form a lattice: Merge is commutative and monotone, and Intersection colors absorb any other color. Merging
// a Source color with a Sink color produces an Intersection and reports the two provenance chains: this is how
// findings are detected.
package colors

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Confidence ranks how certain the assignment of a color is
type Confidence int

// Confidence levels, from the most certain to the least certain
const (
	// ExplicitlyEnforced is the confidence of annotations whose marks are enforced, e.g. checked at runtime
	ExplicitlyEnforced Confidence = 12
	// Explicitly is the confidence of marks coming from annotations in the class files
	Explicitly Confidence = 10
	// Configuration is the confidence of marks coming from rule files and the configuration
	Configuration Confidence = 8
	// Implicitly is the confidence of colors inferred by propagation rules, e.g. through a lambda
	Implicitly Confidence = 6
	// Assumption is the confidence of heuristic guesses
	Assumption Confidence = 4
)

func (c Confidence) String() string {
	switch c {
	case ExplicitlyEnforced:
		return "explicitly-enforced"
	case Explicitly:
		return "explicitly"
	case Configuration:
		return "configuration"
	case Implicitly:
		return "implicitly"
	case Assumption:
		return "assumption"
	default:
		return fmt.Sprintf("confidence(%d)", int(c))
	}
}

// Kind is the kind of a color
type Kind uint8

const (
	// Source is the kind of user provided data
	Source Kind = iota + 1
	// Sink is the kind of data used in sensitive operations
	Sink
	// Intersection is the kind of data that is both: a finding
	Intersection
)

func (k Kind) String() string {
	switch k {
	case Source:
		return "source"
	case Sink:
		return "sink"
	case Intersection:
		return "intersection"
	default:
		return "?"
	}
}

// letter is used in keys
func (k Kind) letter() string {
	switch k {
	case Source:
		return "S"
	case Sink:
		return "K"
	case Intersection:
		return "X"
	default:
		return "?"
	}
}

// PaintedColor is a color with its provenance
type PaintedColor struct {
	Confidence Confidence
	Kind       Kind
	Trace      TraceItem
}

// ColoredObject is the taint value of a graph node: a color and the concrete classes the value may have
type ColoredObject struct {
	Color PaintedColor
	// Classes is the sorted set of internal names of the concrete classes of the object. An empty set means the
	// classes are unknown.
	Classes []string
}

// New returns a colored object with no class information
func New(kind Kind, confidence Confidence, trace TraceItem) *ColoredObject {
	return &ColoredObject{Color: PaintedColor{Confidence: confidence, Kind: kind, Trace: trace}}
}

// WithClasses returns a copy of o whose class set is the given classes
func (o *ColoredObject) WithClasses(classes ...string) *ColoredObject {
	c := *o
	c.Classes = sortedSet(classes)
	return &c
}

// WithTrace returns a copy of o with a new provenance and the same kind, confidence and classes
func (o *ColoredObject) WithTrace(t TraceItem) *ColoredObject {
	c := *o
	c.Color.Trace = t
	return &c
}

// Kind returns the kind of the color of o
func (o *ColoredObject) Kind() Kind { return o.Color.Kind }

// Trace returns the provenance of the color of o
func (o *ColoredObject) Trace() TraceItem { return o.Color.Trace }

// SingleClass returns the concrete class of o when it has exactly one
func (o *ColoredObject) SingleClass() (string, bool) {
	if o == nil || len(o.Classes) != 1 {
		return "", false
	}
	return o.Classes[0], true
}

// Key identifies the value of o without its provenance. The key of nil is "-".
func (o *ColoredObject) Key() string {
	if o == nil {
		return "-"
	}
	return fmt.Sprintf("%s%d[%s]", o.Color.Kind.letter(), o.Color.Confidence, strings.Join(o.Classes, ","))
}

func (o *ColoredObject) String() string {
	if o == nil {
		return "none"
	}
	s := fmt.Sprintf("%s (%s)", o.Color.Kind, o.Color.Confidence)
	if len(o.Classes) > 0 {
		s += " " + strings.Join(o.Classes, "|")
	}
	return s
}

// KeyOf returns the key of a list of colored objects, some of which may be nil
func KeyOf(objs []*ColoredObject) string {
	keys := make([]string, len(objs))
	for i, o := range objs {
		keys[i] = o.Key()
	}
	return strings.Join(keys, ";")
}

// Equal returns true when a and b hold the same color, with the same provenance object, and the same classes
func Equal(a, b *ColoredObject) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Color == b.Color && slices.Equal(a.Classes, b.Classes)
}

// SameValue returns true when a and b have the same key
func SameValue(a, b *ColoredObject) bool {
	return a.Key() == b.Key()
}

// Reporter is called with the provenance of a source and the provenance of a sink when they meet
type Reporter func(source, sink TraceItem)

// Merge returns the least upper bound of a and b. A nil object is no color.
//
// Intersection absorbs any other color. A source merged with a sink gives an Intersection, and report is called with
// their traces. Otherwise the color with the higher confidence is kept, and ties are broken by the provenance so that
// the result does not depend on the order of the operands. Class sets are united.
// Merge returns a itself when the result is equal to a.
func Merge(a, b *ColoredObject, report Reporter) *ColoredObject {
	switch {
	case a == nil:
		return b
	case b == nil || a == b:
		return a
	}
	classes := unionSorted(a.Classes, b.Classes)
	var color PaintedColor
	ka, kb := a.Color.Kind, b.Color.Kind
	switch {
	case ka == Intersection && kb == Intersection, ka == kb:
		color = preferred(a.Color, b.Color)
	case ka == Intersection:
		color = a.Color
	case kb == Intersection:
		color = b.Color
	default:
		src, sink := a.Color, b.Color
		if ka == Sink {
			src, sink = sink, src
		}
		if report != nil {
			report(src.Trace, sink.Trace)
		}
		conf := src.Confidence
		if sink.Confidence < conf {
			conf = sink.Confidence
		}
		color = PaintedColor{
			Confidence: conf,
			Kind:       Intersection,
			Trace:      &IntersectionTrace{Source: src.Trace, Sink: sink.Trace},
		}
	}
	if color == a.Color && len(classes) == len(a.Classes) {
		return a
	}
	if color == b.Color && len(classes) == len(b.Classes) {
		return b
	}
	return &ColoredObject{Color: color, Classes: classes}
}

// preferred returns the color with the higher confidence, or the one with the smaller trace on ties
func preferred(a, b PaintedColor) PaintedColor {
	switch {
	case a.Confidence > b.Confidence:
		return a
	case b.Confidence > a.Confidence:
		return b
	case compareTraces(a.Trace, b.Trace) <= 0:
		return a
	default:
		return b
	}
}

// Force returns the result of a proposal that overwrites the color of a: b replaces a unless a is already of the
// same kind with a higher confidence. Class sets are united.
func Force(a, b *ColoredObject) *ColoredObject {
	if a == nil || b == nil {
		return Merge(a, b, nil)
	}
	if a.Color.Kind == b.Color.Kind {
		return Merge(a, b, nil)
	}
	c := *b
	c.Classes = unionSorted(a.Classes, b.Classes)
	return &c
}

// Covers returns true when merging b into a can only change the provenance of a: a is an Intersection not weaker
// than b, or a has the kind of b with at least its confidence, and the classes of b are classes of a.
func Covers(a, b *ColoredObject) bool {
	switch {
	case b == nil:
		return true
	case a == nil:
		return false
	}
	ka, kb := a.Color.Kind, b.Color.Kind
	if !(ka == Intersection && kb != Intersection || ka == kb && a.Color.Confidence >= b.Color.Confidence) {
		return false
	}
	return len(unionSorted(a.Classes, b.Classes)) == len(a.Classes)
}

// danger ranks kinds for MostDangerous: sources and intersections dominate sinks
func danger(o *ColoredObject) int {
	if o == nil {
		return 0
	}
	switch o.Color.Kind {
	case Intersection:
		return 3
	case Source:
		return 2
	case Sink:
		return 1
	}
	return 0
}

// MostDangerous returns the object of objs with the most dangerous kind (Intersection, then Source, then Sink) and
// the highest confidence. Ties are resolved as in Merge. It returns nil if all objects are nil.
func MostDangerous(objs ...*ColoredObject) *ColoredObject {
	var best *ColoredObject
	for _, o := range objs {
		if o == nil {
			continue
		}
		switch {
		case best == nil, danger(o) > danger(best):
			best = o
		case danger(o) == danger(best) && preferred(best.Color, o.Color) != best.Color:
			best = o
		}
	}
	return best
}

// Demultiplex splits o into one object per concrete class. An object with at most one class is returned as is.
func (o *ColoredObject) Demultiplex() []*ColoredObject {
	if o == nil || len(o.Classes) <= 1 {
		return []*ColoredObject{o}
	}
	res := make([]*ColoredObject, len(o.Classes))
	for i, c := range o.Classes {
		single := *o
		single.Classes = []string{c}
		res[i] = &single
	}
	return res
}

// DemultiplexAll returns the cartesian product of the demultiplexed objects of objs. If the product has more than
// max elements, objs is returned as the only variant.
func DemultiplexAll(objs []*ColoredObject, max int) [][]*ColoredObject {
	size := 1
	parts := make([][]*ColoredObject, len(objs))
	for i, o := range objs {
		parts[i] = o.Demultiplex()
		size *= len(parts[i])
		if size > max {
			return [][]*ColoredObject{objs}
		}
	}
	variants := [][]*ColoredObject{{}}
	for _, p := range parts {
		var next [][]*ColoredObject
		for _, v := range variants {
			for _, o := range p {
				next = append(next, append(append([]*ColoredObject{}, v...), o))
			}
		}
		variants = next
	}
	return variants
}

func sortedSet(a []string) []string {
	if len(a) == 0 {
		return nil
	}
	s := append([]string{}, a...)
	slices.Sort(s)
	return slices.Compact(s)
}

func unionSorted(a, b []string) []string {
	switch {
	case len(b) == 0:
		return a
	case len(a) == 0:
		return b
	}
	return sortedSet(append(append([]string{}, a...), b...))
}
