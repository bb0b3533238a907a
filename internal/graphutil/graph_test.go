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

package graphutil

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func diamond() *Digraph {
	g := NewDigraph()
	g.SetEdge(0, 1)
	g.SetEdge(0, 2)
	g.SetEdge(1, 3)
	g.SetEdge(2, 3)
	return g
}

func TestDigraph(t *testing.T) {
	g := diamond()
	g.SetEdge(0, 1) // duplicate edges are ignored
	if got := g.Successors(0); !cmp.Equal(got, []int64{1, 2}) {
		t.Errorf("Successors(0) = %v, want [1 2]", got)
	}
	if got := g.Predecessors(3); !cmp.Equal(got, []int64{1, 2}) {
		t.Errorf("Predecessors(3) = %v, want [1 2]", got)
	}
	if got := g.Order(); got != 4 {
		t.Errorf("Order() = %d, want 4", got)
	}
	if g.Nodes().Len() != 4 {
		t.Errorf("expected 4 nodes")
	}
	if !g.HasEdgeBetween(3, 1) || g.HasEdgeFromTo(3, 1) {
		t.Errorf("edge direction not respected")
	}
	if g.Edge(1, 0) != nil {
		t.Errorf("unexpected edge 1 -> 0")
	}
	if e := g.Edge(0, 1); e == nil || e.From().ID() != 0 || e.To().ID() != 1 {
		t.Errorf("Edge(0, 1) = %v", e)
	}
}

func TestDominators(t *testing.T) {
	g := diamond()
	g.SetEdge(3, 4)
	d, err := Dominators(g, 0)
	if err != nil {
		t.Fatalf("dominators: %v", err)
	}
	tests := []struct {
		node int64
		idom int64
	}{
		{1, 0}, {2, 0}, {3, 0}, {4, 3},
	}
	for _, test := range tests {
		got, ok := d.ImmediateDominator(test.node)
		if !ok || got != test.idom {
			t.Errorf("ImmediateDominator(%d) = %d, want %d", test.node, got, test.idom)
		}
	}
	if _, ok := d.ImmediateDominator(0); ok {
		t.Errorf("root should not have an immediate dominator")
	}
	if !d.Dominates(0, 4) || d.Dominates(1, 3) || !d.Dominates(3, 3) {
		t.Errorf("Dominates is wrong")
	}
	if _, err := Dominators(g, 42); err == nil {
		t.Errorf("expected an error for a missing root")
	}
}
