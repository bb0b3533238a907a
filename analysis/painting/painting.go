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

// Package painting colors the dataflow graph of a method to a fixed point. A set of brushes, each implementing one
// propagation rule, observes the colors of the previous pass and proposes new colors for some nodes; the proposals
// are merged into the colors until a pass does not change anything.
package painting

import (
	"fmt"

	"github.com/awslabs/ar-jvm-tools/analysis/colors"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
	"golang.org/x/exp/maps"
)

// Colors maps the nodes of a graph to their colors. A node without entry has no color.
type Colors map[dataflow.NodeID]*colors.ColoredObject

// Clone returns a copy of the map
func (cs Colors) Clone() Colors {
	if cs == nil {
		return Colors{}
	}
	return maps.Clone(cs)
}

// Of returns the colors of the nodes. NoNode has no color.
func (cs Colors) Of(ids ...dataflow.NodeID) []*colors.ColoredObject {
	res := make([]*colors.ColoredObject, len(ids))
	for i, id := range ids {
		if id != dataflow.NoNode {
			res[i] = cs[id]
		}
	}
	return res
}

// Proposal is a color proposed by a brush for a node
type Proposal struct {
	Node  dataflow.NodeID
	Color *colors.ColoredObject
	// Force replaces a color of the opposite kind instead of merging with it
	Force bool
}

// A Brush is a propagation rule. Paint is called once per pass with the colors of the previous pass, which it must
// not modify. The order of the brushes does not matter for the final colors, except for their provenance.
type Brush interface {
	Paint(g *dataflow.MethodGraph, old Colors) []Proposal
}

// BrushFunc is a Brush implemented by a function
type BrushFunc func(g *dataflow.MethodGraph, old Colors) []Proposal

// Paint calls f
func (f BrushFunc) Paint(g *dataflow.MethodGraph, old Colors) []Proposal {
	return f(g, old)
}

// Painting is the result of the coloring of a graph
type Painting struct {
	Graph  *dataflow.MethodGraph
	Colors Colors
	// Passes is the number of passes that changed some color
	Passes int
	// Converged is false when the coloring stopped after the maximum number of passes
	Converged bool
}

// Params returns the colors of the parameters of the method, receiver first
func (p *Painting) Params() []*colors.ColoredObject {
	return p.Colors.Of(p.Graph.Params...)
}

// Result returns the color of the value returned by the method
func (p *Painting) Result() *colors.ColoredObject {
	if p.Graph.Return == dataflow.NoNode {
		return nil
	}
	return p.Colors[p.Graph.Return]
}

// Colorer applies brushes to graphs
type Colorer struct {
	brushes   []Brush
	maxPasses int
	logger    *config.LogGroup
}

// NewColorer returns a colorer applying the brushes, bounded by the max-coloring-passes option
func NewColorer(c *config.Config, logger *config.LogGroup, brushes ...Brush) *Colorer {
	return &Colorer{brushes: brushes, maxPasses: c.MaxColoringPasses, logger: logger}
}

// Color colors g starting from the initial colors, which are not modified. Every intersection of a source and a sink
// met while merging is reported to report.
func (c *Colorer) Color(g *dataflow.MethodGraph, initial Colors, report colors.Reporter) *Painting {
	p := &Painting{Graph: g, Colors: initial.Clone()}
	for {
		if c.maxPasses > 0 && p.Passes >= c.maxPasses {
			c.logger.Warnf("coloring of %s stopped after %d passes", g.Method, p.Passes)
			return p
		}
		a := newApplier(p.Colors, report)
		for _, b := range c.brushes {
			for _, prop := range b.Paint(g, p.Colors) {
				a.apply(prop)
			}
		}
		if !a.changed {
			p.Converged = true
			return p
		}
		p.Colors = a.next
		p.Passes++
		if c.logger.LogsTrace() {
			c.logger.Tracef("pass %d of %s: %s", p.Passes, g.Method, p.Colors)
		}
	}
}

// applier merges the proposals of one pass. Proposals for the same node are merged with each other first.
type applier struct {
	old     Colors
	next    Colors
	report  colors.Reporter
	changed bool
}

func newApplier(old Colors, report colors.Reporter) *applier {
	return &applier{old: old, next: old.Clone(), report: report}
}

func (a *applier) apply(p Proposal) {
	if p.Color == nil || p.Node == dataflow.NoNode {
		return
	}
	base := a.next[p.Node]
	if colors.Covers(base, p.Color) {
		return
	}
	var res *colors.ColoredObject
	if p.Force {
		res = colors.Force(base, p.Color)
	} else {
		res = colors.Merge(base, p.Color, a.report)
	}
	if !colors.Equal(res, base) {
		a.next[p.Node] = res
		a.changed = true
	}
}

// String lists the colored nodes, sorted by id
func (cs Colors) String() string {
	ids := funcutil.SortedKeys(cs)
	s := "{"
	for i, id := range ids {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%d: %s", id, cs[id])
	}
	return s + "}"
}
