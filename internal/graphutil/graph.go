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

// Package graphutil contains graph structures and algorithms shared by the analyses: a directed graph that
// satisfies both gonum's graph.Directed and yourbasic's graph.Iterator interfaces, and dominator
// trees.
package graphutil

import (
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/iterator"
)

// Vertex is the default node type of a Digraph: a plain identifier.
type Vertex int64

// ID returns the id of the vertex
func (v Vertex) ID() int64 { return int64(v) }

// Digraph is a directed graph over non-negative integer node identifiers. Node identifiers should be dense
// (0..n-1) for the yourbasic algorithms, which see the graph as having Order() = max id + 1 vertices.
//
// Nodes can be any graph.Node: the attributes of nodes implementing encoding.Attributer are used by the DOT
// encoder.
type Digraph struct {
	nodes map[int64]graph.Node

	// keys are the ids of all the nodes, sorted
	keys []int64

	// out[x] is the sorted list of successors of x
	out map[int64][]int64

	// in[x] is the sorted list of predecessors of x
	in map[int64][]int64

	edgeAttrs map[[2]int64][]encoding.Attribute
}

// NewDigraph returns an empty directed graph
func NewDigraph() *Digraph {
	return &Digraph{
		nodes:     map[int64]graph.Node{},
		out:       map[int64][]int64{},
		in:        map[int64][]int64{},
		edgeAttrs: map[[2]int64][]encoding.Attribute{},
	}
}

// AddNode adds the node n to the graph, replacing any node with the same id.
func (g *Digraph) AddNode(n graph.Node) {
	id := n.ID()
	if _, ok := g.nodes[id]; !ok {
		idx, _ := slices.BinarySearch(g.keys, id)
		g.keys = slices.Insert(g.keys, idx, id)
	}
	g.nodes[id] = n
}

// SetEdge adds the edge u -> v. Missing end points are added as Vertex nodes.
func (g *Digraph) SetEdge(u, v int64) {
	if _, ok := g.nodes[u]; !ok {
		g.AddNode(Vertex(u))
	}
	if _, ok := g.nodes[v]; !ok {
		g.AddNode(Vertex(v))
	}
	g.out[u] = insertSorted(g.out[u], v)
	g.in[v] = insertSorted(g.in[v], u)
}

// SetEdgeAttributes sets the DOT attributes of the edge u -> v, adding the edge if needed.
func (g *Digraph) SetEdgeAttributes(u, v int64, attrs ...encoding.Attribute) {
	g.SetEdge(u, v)
	g.edgeAttrs[[2]int64{u, v}] = attrs
}

func insertSorted(a []int64, x int64) []int64 {
	idx, found := slices.BinarySearch(a, x)
	if found {
		return a
	}
	return slices.Insert(a, idx, x)
}

// Keys returns the sorted ids of the nodes of the graph. The slice must not be modified.
func (g *Digraph) Keys() []int64 { return g.keys }

// Successors returns the sorted ids of the successors of id. The slice must not be modified.
func (g *Digraph) Successors(id int64) []int64 { return g.out[id] }

// Predecessors returns the sorted ids of the predecessors of id. The slice must not be modified.
func (g *Digraph) Predecessors(id int64) []int64 { return g.in[id] }

// *************** yourbasic graph.Iterator implementation **********************

// Order returns the number of vertices of the graph seen as a yourbasic graph.Iterator, i.e. the max id + 1
func (g *Digraph) Order() int {
	if len(g.keys) == 0 {
		return 0
	}
	return int(g.keys[len(g.keys)-1]) + 1
}

// Visit calls do for each neighbour w of v, with cost 1. It implements yourbasic's graph.Iterator.
func (g *Digraph) Visit(v int, do func(w int, c int64) (skip bool)) (aborted bool) {
	for _, w := range g.out[int64(v)] {
		if do(int(w), 1) {
			return true
		}
	}
	return false
}

// *************** gonum graph.Directed implementation **********************

// Node returns the node with the given id, or nil
func (g *Digraph) Node(id int64) graph.Node {
	return g.nodes[id]
}

// Nodes returns all the nodes of the graph, ordered by id
func (g *Digraph) Nodes() graph.Nodes {
	return g.nodeSet(g.keys)
}

// From returns the successors of the node id
func (g *Digraph) From(id int64) graph.Nodes {
	return g.nodeSet(g.out[id])
}

// To returns the predecessors of the node id
func (g *Digraph) To(id int64) graph.Nodes {
	return g.nodeSet(g.in[id])
}

func (g *Digraph) nodeSet(ids []int64) graph.Nodes {
	if len(ids) == 0 {
		return graph.Empty
	}
	nodes := make([]graph.Node, len(ids))
	for i, id := range ids {
		nodes[i] = g.nodes[id]
	}
	return iterator.NewOrderedNodes(nodes)
}

// HasEdgeBetween returns true when there is an edge in either direction between the two nodes
func (g *Digraph) HasEdgeBetween(xid, yid int64) bool {
	return g.HasEdgeFromTo(xid, yid) || g.HasEdgeFromTo(yid, xid)
}

// HasEdgeFromTo returns true when there is an edge from uid to vid
func (g *Digraph) HasEdgeFromTo(uid, vid int64) bool {
	_, found := slices.BinarySearch(g.out[uid], vid)
	return found
}

// Edge returns the edge from uid to vid, or nil if there is none
func (g *Digraph) Edge(uid, vid int64) graph.Edge {
	if !g.HasEdgeFromTo(uid, vid) {
		return nil
	}
	return Edge{from: g.nodes[uid], to: g.nodes[vid], attrs: g.edgeAttrs[[2]int64{uid, vid}]}
}

// Edge implements graph.Edge, and encoding.Attributer for the DOT encoder
type Edge struct {
	from  graph.Node
	to    graph.Node
	attrs []encoding.Attribute
}

// From returns the origin of the edge
func (e Edge) From() graph.Node { return e.from }

// To returns the destination of the edge
func (e Edge) To() graph.Node { return e.to }

// ReversedEdge returns a new value representing the reversed edge
func (e Edge) ReversedEdge() graph.Edge { return Edge{from: e.to, to: e.from, attrs: e.attrs} }

// Attributes returns the DOT attributes of the edge
func (e Edge) Attributes() []encoding.Attribute { return e.attrs }
