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

package dataflow

import (
	"fmt"
	"io"

	"github.com/awslabs/ar-jvm-tools/internal/graphutil"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
)

// dotNode is a vertex of the rendered graph: a node of the method graph, an invocation or a field write
type dotNode struct {
	id    int64
	name  string
	attrs []encoding.Attribute
}

func (n dotNode) ID() int64                        { return n.id }
func (n dotNode) DOTID() string                    { return n.name }
func (n dotNode) Attributes() []encoding.Attribute { return n.attrs }

// Painter returns the fill color of a node in the rendering, or "" to leave the node unfilled
type Painter func(id NodeID) string

// ToDigraph returns the graph g as a directed graph from inputs to the values computed from them. Invocations and
// field writes are vertices of their own.
func ToDigraph(g *MethodGraph, paint Painter) *graphutil.Digraph {
	d := graphutil.NewDigraph()
	for _, id := range g.Nodes {
		n := g.Node(id)
		attrs := []encoding.Attribute{
			{Key: "label", Value: fmt.Sprintf("%s\\n%s", n.Description, n.Type)},
			{Key: "shape", Value: shapeOf(n.Kind)},
		}
		if paint != nil {
			if c := paint(id); c != "" {
				attrs = append(attrs, encoding.Attribute{Key: "style", Value: "filled"},
					encoding.Attribute{Key: "fillcolor", Value: c})
			}
		}
		d.AddNode(dotNode{id: int64(id), name: fmt.Sprintf("n%d", id), attrs: attrs})
	}
	for _, id := range g.Nodes {
		for _, in := range g.Node(id).Inputs {
			d.SetEdge(int64(in), int64(id))
		}
	}
	next := int64(g.Arena.Len())
	for _, inv := range g.Invocations {
		v := next
		next++
		d.AddNode(dotNode{id: v, name: fmt.Sprintf("call%d", inv.Index), attrs: []encoding.Attribute{
			{Key: "label", Value: inv.Op.String() + " " + inv.Target.Name},
			{Key: "shape", Value: "box"},
		}})
		for k, in := range inv.Inputs {
			d.SetEdge(int64(in), v)
			d.SetEdgeAttributes(int64(in), v, encoding.Attribute{Key: "label", Value: fmt.Sprintf("%d", k)})
		}
		if inv.Result != NoNode {
			d.SetEdge(v, int64(inv.Result))
		}
	}
	for k, fw := range g.FieldWrites {
		v := next
		next++
		label := "put " + fw.Field.Name
		if fw.Array {
			label = "store element"
		}
		d.AddNode(dotNode{id: v, name: fmt.Sprintf("write%d", k), attrs: []encoding.Attribute{
			{Key: "label", Value: label},
			{Key: "shape", Value: "box"},
			{Key: "style", Value: "dashed"},
		}})
		if fw.Object != NoNode {
			d.SetEdge(int64(fw.Object), v)
		}
		d.SetEdge(int64(fw.Value), v)
	}
	return d
}

func shapeOf(k NodeKind) string {
	switch k {
	case Parameter:
		return "invhouse"
	case Constant:
		return "plaintext"
	case Merge:
		return "diamond"
	case CaughtException:
		return "octagon"
	default:
		return "ellipse"
	}
}

// WriteDOT writes the graph g in the dot format to w
func WriteDOT(w io.Writer, g *MethodGraph, paint Painter) error {
	b, err := dot.Marshal(ToDigraph(g, paint), g.Method.Name, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
