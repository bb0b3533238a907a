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
	"strconv"
	"strings"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
)

// NodeID is the handle of a node in the arena of a method graph. Nodes are never compared by content: two nodes
// with the same description at different program points have different ids.
type NodeID int32

// NoNode is the handle of no node, used for holes in the locals and for void results
const NoNode NodeID = -1

// NodeKind is the kind of a graph node
type NodeKind uint8

const (
	// Value is a value computed by an instruction the analysis does not interpret, e.g. arithmetic or casts
	Value NodeKind = iota
	// Constant is a constant pushed by an instruction
	Constant
	// Parameter is a parameter of the method, including the receiver of instance methods
	Parameter
	// FieldAccess is the value read from a field or an array element
	FieldAccess
	// InvocationResult is the value returned by a call
	InvocationResult
	// Merge is any of its inputs, e.g. one of the values returned by a method with several return instructions
	Merge
	// CaughtException is the exception caught by a handler
	CaughtException
)

func (k NodeKind) String() string {
	switch k {
	case Value:
		return "value"
	case Constant:
		return "constant"
	case Parameter:
		return "parameter"
	case FieldAccess:
		return "field"
	case InvocationResult:
		return "result"
	case Merge:
		return "merge"
	case CaughtException:
		return "exception"
	default:
		return "unknown"
	}
}

// Position is the position of an instruction in the source code
type Position struct {
	// Class is the internal name of the class
	Class  string
	Method string
	File   string
	// Line is 0 when the class has no line information
	Line int
}

func (p Position) String() string {
	if p.Class == "" {
		return "?"
	}
	s := classfile.DottedName(p.Class) + "." + p.Method
	if p.File != "" || p.Line > 0 {
		s += "(" + p.File
		if p.Line > 0 {
			s += ":" + strconv.Itoa(p.Line)
		}
		s += ")"
	}
	return s
}

// IsValid returns true when the position is known
func (p Position) IsValid() bool {
	return p.Class != ""
}

// ArrayElementField is the synthetic field of array elements used by array loads and stores
var ArrayElementField = classfile.MemberRef{Class: "[", Name: "[]", Descriptor: ""}

// Node is a node of a method graph
type Node struct {
	ID          NodeID
	Kind        NodeKind
	Description string
	// Inputs are the nodes the value is computed from
	Inputs []NodeID
	// Type is the verified type of the value
	Type bytecode.Type
	// Op is the opcode of the instruction that created the node; it is Nop for parameters and merges
	Op  bytecode.Opcode
	Pos Position

	// ParamIndex is the index of a parameter node in the parameters of the graph (the receiver is 0 in instance
	// methods)
	ParamIndex int
	// ArgIndex is the index of a parameter node in the declared arguments of the method; -1 for the receiver
	ArgIndex int

	// Field is the field read by a field access node
	Field classfile.MemberRef
	// Static is true for static field accesses
	Static bool

	// Invocation is the index of the invocation in the graph, for invocation result nodes
	Invocation int
}

// IsReceiver returns true for the receiver parameter of instance methods
func (n *Node) IsReceiver() bool {
	return n.Kind == Parameter && n.ArgIndex < 0
}

// IsArrayElement returns true for array element accesses
func (n *Node) IsArrayElement() bool {
	return n.Kind == FieldAccess && n.Field == ArrayElementField
}

func (n *Node) String() string {
	return fmt.Sprintf("#%d %s", n.ID, n.Description)
}

// Arena holds the nodes of a method graph
type Arena struct {
	nodes  []*Node
	consts map[string]NodeID
}

// NewArena returns an empty arena
func NewArena() *Arena {
	return &Arena{consts: map[string]NodeID{}}
}

// Node returns the node with the given id
func (a *Arena) Node(id NodeID) *Node {
	return a.nodes[id]
}

// Len returns the number of nodes in the arena
func (a *Arena) Len() int {
	return len(a.nodes)
}

func (a *Arena) add(n *Node) NodeID {
	n.ID = NodeID(len(a.nodes))
	a.nodes = append(a.nodes, n)
	return n.ID
}

// interned returns the constant node with the given key, creating it if needed. The second result is true when the
// node has been created.
func (a *Arena) interned(key string, mk func() *Node) (NodeID, bool) {
	if id, ok := a.consts[key]; ok {
		return id, false
	}
	id := a.add(mk())
	a.consts[key] = id
	return id, true
}

// Invocation is a call site of a method graph
type Invocation struct {
	// Index is the index of the invocation in the graph
	Index int
	Op    bytecode.Opcode
	// Target is the method referenced by the instruction; it is resolved lazily against the class hierarchy
	Target classfile.MemberRef
	// Inputs are the arguments, receiver first for instance calls
	Inputs []NodeID
	// Result is NoNode for void methods
	Result NodeID
	Static bool
	Pos    Position
}

func (inv *Invocation) String() string {
	return fmt.Sprintf("%s %s at %s", inv.Op, inv.Target, inv.Pos)
}

// FieldWrite is a write to a field or an array element. It is a side effect of the method, not a value.
type FieldWrite struct {
	Field  classfile.MemberRef
	Static bool
	// Object is NoNode for static fields
	Object NodeID
	Value  NodeID
	Pos    Position
	// Array is true for writes to array elements, in which case Field is ArrayElementField
	Array bool
}

// MethodGraph is the dataflow graph of one method body. It is immutable once built.
type MethodGraph struct {
	Method *classfile.Method
	Arena  *Arena
	// Params are the parameter nodes, receiver first for instance methods
	Params []NodeID
	// Return is the returned value, a Merge node if the method returns several values, or NoNode
	Return NodeID
	// Nodes are the ids of all the nodes of the graph, sorted
	Nodes       []NodeID
	Invocations []*Invocation
	FieldWrites []*FieldWrite
	// Thrown are the values thrown by athrow instructions
	Thrown []NodeID
	// Truncated is set when the unrolling of a loop was stopped by the block re-entry cap
	Truncated bool
}

// Node returns the node with the given id
func (g *MethodGraph) Node(id NodeID) *Node {
	return g.Arena.Node(id)
}

// ReturnNodes returns the return nodes of the graph: none or one
func (g *MethodGraph) ReturnNodes() []NodeID {
	if g.Return == NoNode {
		return nil
	}
	return []NodeID{g.Return}
}

// String returns a listing of the graph, for debugging
func (g *MethodGraph) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "graph of %s\n", g.Method)
	for _, id := range g.Nodes {
		n := g.Node(id)
		fmt.Fprintf(&b, "  %s : %s", n, n.Type)
		if len(n.Inputs) > 0 {
			fmt.Fprintf(&b, " <- %v", n.Inputs)
		}
		b.WriteString("\n")
	}
	for _, inv := range g.Invocations {
		fmt.Fprintf(&b, "  call %s %v -> %d\n", inv.Target, inv.Inputs, inv.Result)
	}
	for _, fw := range g.FieldWrites {
		fmt.Fprintf(&b, "  write %s.%s %d <- %d\n", fw.Field.Class, fw.Field.Name, fw.Object, fw.Value)
	}
	fmt.Fprintf(&b, "  params %v return %d\n", g.Params, g.Return)
	return b.String()
}
