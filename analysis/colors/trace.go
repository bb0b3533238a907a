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

package colors

import (
	"strings"

	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
)

// TraceItem is one step of the provenance chain of a color. Trace items are immutable and shared between colors.
type TraceItem interface {
	// Message is the human-readable description of the step
	Message() string
	// Position is the source position of the step, if known
	Position() dataflow.Position
	// Previous returns the previous step of the chain, nil at the root
	Previous() TraceItem
	// Origin returns the item this step was derived from when it is not its predecessor, e.g. the rule that made a
	// call argument a sink. It is nil for most items.
	Origin() TraceItem
}

// Step is the TraceItem of a single causal step
type Step struct {
	message  string
	position dataflow.Position
	previous TraceItem
	origin   TraceItem
}

// NewStep returns a new step following previous, which may be nil
func NewStep(message string, pos dataflow.Position, previous TraceItem) *Step {
	return &Step{message: message, position: pos, previous: previous}
}

// WithOrigin returns a copy of the step whose origin is o
func (s *Step) WithOrigin(o TraceItem) *Step {
	c := *s
	c.origin = o
	return &c
}

func (s *Step) Message() string             { return s.message }
func (s *Step) Position() dataflow.Position { return s.position }
func (s *Step) Previous() TraceItem         { return s.previous }
func (s *Step) Origin() TraceItem           { return s.origin }
func (s *Step) String() string              { return ItemKey(s) }

// IntersectionTrace is the trace of an Intersection color: the chains of the source and of the sink that met
type IntersectionTrace struct {
	Source TraceItem
	Sink   TraceItem
}

func (t *IntersectionTrace) Message() string {
	return "intersection of " + t.Source.Message() + " and " + t.Sink.Message()
}

// Position is the position of the tip of the source chain
func (t *IntersectionTrace) Position() dataflow.Position {
	return t.Source.Position()
}

// Previous is nil: the chains of an intersection are its Source and Sink
func (t *IntersectionTrace) Previous() TraceItem { return nil }

func (t *IntersectionTrace) Origin() TraceItem { return nil }

// ItemKey identifies a trace item by its message and position
func ItemKey(t TraceItem) string {
	if t == nil {
		return ""
	}
	if p := t.Position(); p.IsValid() {
		return t.Message() + " at " + p.String()
	}
	return t.Message()
}

// Chain returns the items of the chain ending at t, from t to the root
func Chain(t TraceItem) []TraceItem {
	var items []TraceItem
	for ; t != nil; t = t.Previous() {
		items = append(items, t)
	}
	return items
}

// Root returns the first item of the chain ending at t
func Root(t TraceItem) TraceItem {
	for t != nil && t.Previous() != nil {
		t = t.Previous()
	}
	return t
}

// OriginKey returns the key of the item the chain ending at t originates from: the nearest origin named by an item
// of the chain, or its root
func OriginKey(t TraceItem) string {
	for it := t; it != nil; it = it.Previous() {
		if o := it.Origin(); o != nil {
			return ItemKey(o)
		}
	}
	return ItemKey(Root(t))
}

// compareTraces orders traces by the keys of their items, from the tip. Traces that are the same object compare
// equal without walking the chains.
func compareTraces(a, b TraceItem) int {
	for a != nil && b != nil {
		if a == b {
			return 0
		}
		if c := strings.Compare(ItemKey(a), ItemKey(b)); c != 0 {
			return c
		}
		a, b = a.Previous(), b.Previous()
	}
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	default:
		return 1
	}
}
