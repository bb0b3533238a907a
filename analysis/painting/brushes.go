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

package painting

import (
	"fmt"

	"github.com/awslabs/ar-jvm-tools/analysis/annotations"
	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
	"github.com/awslabs/ar-jvm-tools/analysis/colors"
	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
)

// minDynamicConfidence is the minimum confidence of a source captured by a dynamic call for its result to be tainted
const minDynamicConfidence = colors.Assumption

// DefaultBrushes returns the brushes of the taint analysis. sub may be nil, in which case calls are not analyzed.
func DefaultBrushes(oracle *annotations.Oracle, provider ColorProvider, resolver *Resolver, sub Subcaller) []Brush {
	brushes := []Brush{
		ParameterBrush{Provider: provider},
		&InvocationBrush{Provider: provider, Resolver: resolver},
		MergeBrush{},
		DerivedValueBrush{},
		DynamicInvocationBrush{},
		&FieldBrush{Oracle: oracle, Provider: provider, Resolver: resolver},
		&CopierBrush{Oracle: oracle, Resolver: resolver},
	}
	if sub != nil {
		brushes = append(brushes, &SubcallBrush{Subcaller: sub})
	}
	return brushes
}

// MergeBrush propagates the most dangerous color of the inputs of a merge node to the merge node. Sink colors of a
// merge node are propagated back to every input.
type MergeBrush struct{}

// Paint implements Brush
func (MergeBrush) Paint(g *dataflow.MethodGraph, old Colors) []Proposal {
	var res []Proposal
	for _, id := range g.Nodes {
		n := g.Node(id)
		if n.Kind != dataflow.Merge {
			continue
		}
		if c := colors.MostDangerous(old.Of(n.Inputs...)...); c != nil {
			res = append(res, Proposal{Node: id, Color: c})
		}
		if c := old[id]; c != nil && c.Kind() == colors.Sink {
			for _, in := range n.Inputs {
				res = append(res, Proposal{Node: in, Color: c})
			}
		}
	}
	return res
}

// DerivedValueBrush propagates the source and intersection colors of the inputs of an opaque value to the value.
// Only casts keep the classes of their input.
type DerivedValueBrush struct{}

// Paint implements Brush
func (DerivedValueBrush) Paint(g *dataflow.MethodGraph, old Colors) []Proposal {
	var res []Proposal
	for _, id := range g.Nodes {
		n := g.Node(id)
		if n.Kind != dataflow.Value || n.Op == bytecode.Invokedynamic || len(n.Inputs) == 0 {
			continue
		}
		var tainted []*colors.ColoredObject
		for _, c := range old.Of(n.Inputs...) {
			if c != nil && c.Kind() != colors.Sink {
				tainted = append(tainted, c)
			}
		}
		best := colors.MostDangerous(tainted...)
		if best == nil {
			continue
		}
		if n.Op != bytecode.Checkcast {
			best = best.WithClasses()
		}
		res = append(res, Proposal{Node: id, Color: best})
	}
	return res
}

// DynamicInvocationBrush taints the result of invokedynamic call sites (lambdas, string concatenations) that capture
// a source
type DynamicInvocationBrush struct{}

// Paint implements Brush
func (DynamicInvocationBrush) Paint(g *dataflow.MethodGraph, old Colors) []Proposal {
	var res []Proposal
	for _, id := range g.Nodes {
		n := g.Node(id)
		if n.Op != bytecode.Invokedynamic {
			continue
		}
		var sources []*colors.ColoredObject
		for _, c := range old.Of(n.Inputs...) {
			if c != nil && c.Kind() == colors.Source && c.Color.Confidence >= minDynamicConfidence {
				sources = append(sources, c)
			}
		}
		if src := colors.MostDangerous(sources...); src != nil {
			step := colors.NewStep("Result of invokeDynamic operation", n.Pos, src.Trace())
			res = append(res, Proposal{Node: id, Color: colors.New(colors.Source, colors.Assumption, step)})
		}
	}
	return res
}

// ParameterBrush seeds the parameters of the method with the colors of the provider
type ParameterBrush struct {
	Provider ColorProvider
}

// Paint implements Brush
func (b ParameterBrush) Paint(g *dataflow.MethodGraph, _ Colors) []Proposal {
	var res []Proposal
	for _, id := range g.Params {
		n := g.Node(id)
		if n.IsReceiver() {
			continue
		}
		if c := b.Provider.ParameterColor(g.Method.Ref(), g.Method, n.ArgIndex, n.Pos); c != nil {
			res = append(res, Proposal{Node: id, Color: c})
		}
	}
	return res
}

// InvocationBrush seeds the arguments and the results of the calls with the colors of the provider for the
// parameters and the result of the called method. For virtual calls with a single implementation in the class path,
// the marks of the implementation are also used.
type InvocationBrush struct {
	Provider ColorProvider
	Resolver *Resolver
}

// Paint implements Brush
func (b *InvocationBrush) Paint(g *dataflow.MethodGraph, _ Colors) []Proposal {
	var res []Proposal
	for _, inv := range g.Invocations {
		m := b.Resolver.Method(inv.Target)
		res = b.paintCall(res, inv, inv.Target, m)
		if inv.Static || inv.Op == bytecode.Invokespecial {
			continue
		}
		if impl := b.Resolver.Implementation(inv, ""); impl != nil && impl != m {
			res = b.paintCall(res, inv, impl.Ref(), impl)
		}
	}
	return res
}

func (b *InvocationBrush) paintCall(res []Proposal, inv *dataflow.Invocation, ref classfile.MemberRef,
	m *classfile.Method) []Proposal {
	first := receiverSlots(inv)
	for i := first; i < len(inv.Inputs); i++ {
		if c := b.Provider.ParameterColor(ref, m, i-first, inv.Pos); c != nil {
			res = append(res, Proposal{Node: inv.Inputs[i], Color: c})
		}
	}
	if inv.Result != dataflow.NoNode {
		if c := b.Provider.ResultColor(ref, m, inv.Pos); c != nil {
			res = append(res, Proposal{Node: inv.Result, Color: c})
		}
	}
	return res
}

// FieldBrush propagates colors between objects and their fields:
//   - a value read from a tainted object is tainted, and gets the color of the field given by the provider;
//   - for array elements and fields marked ParentAttributesDefiner, the colors of the value read or written are
//     also the colors of the object, and the colors of the object are the colors of the value written.
type FieldBrush struct {
	Oracle   *annotations.Oracle
	Provider ColorProvider
	Resolver *Resolver
}

// Paint implements Brush
func (b *FieldBrush) Paint(g *dataflow.MethodGraph, old Colors) []Proposal {
	var res []Proposal
	for _, id := range g.Nodes {
		n := g.Node(id)
		if n.Kind != dataflow.FieldAccess {
			continue
		}
		if !n.IsArrayElement() && b.Provider != nil {
			if c := b.Provider.FieldColor(n.Field, b.Resolver.Field(n.Field), n.Pos); c != nil {
				res = append(res, Proposal{Node: id, Color: c})
			}
		}
		if n.Static || len(n.Inputs) == 0 {
			continue
		}
		obj := n.Inputs[0]
		if c := old[obj]; c != nil && c.Kind() != colors.Sink {
			step := colors.NewStep("Value of "+fieldName(n.Field), n.Pos, c.Trace())
			res = append(res, Proposal{Node: id, Color: c.WithClasses().WithTrace(step)})
		}
		if c := old[id]; c != nil && b.definesParent(n.Field) {
			step := colors.NewStep("Object defined by "+fieldName(n.Field), n.Pos, c.Trace())
			res = append(res, Proposal{Node: obj, Color: c.WithClasses().WithTrace(step)})
		}
	}
	for _, fw := range g.FieldWrites {
		if fw.Object == dataflow.NoNode || !(fw.Array || b.definesParent(fw.Field)) {
			continue
		}
		if c := old[fw.Value]; c != nil {
			step := colors.NewStep("Object defined by "+fieldName(fw.Field), fw.Pos, c.Trace())
			res = append(res, Proposal{Node: fw.Object, Color: c.WithClasses().WithTrace(step)})
		}
		if c := old[fw.Object]; c != nil {
			step := colors.NewStep("Value written to "+fieldName(fw.Field), fw.Pos, c.Trace())
			res = append(res, Proposal{Node: fw.Value, Color: c.WithClasses().WithTrace(step)})
		}
	}
	return res
}

func (b *FieldBrush) definesParent(ref classfile.MemberRef) bool {
	if ref == dataflow.ArrayElementField {
		return true
	}
	if b.Oracle == nil {
		return false
	}
	return annotations.Union(b.Oracle.FieldMarks(ref, b.Resolver.Field(ref))).Has(annotations.ParentAttributesDefiner)
}

func fieldName(ref classfile.MemberRef) string {
	if ref == dataflow.ArrayElementField {
		return "array element"
	}
	return annotations.FieldTarget(ref)
}

// CopierBrush copies the colors of the inputs of a call marked CopyColorsFrom to the inputs and result marked
// CopyColorsTo, e.g. from the source array to the destination array of System.arraycopy. When the CopyColorsFrom or
// the CopyColorsTo mark has the Overwrite policy, the copied color replaces a color of the opposite kind.
type CopierBrush struct {
	Oracle   *annotations.Oracle
	Resolver *Resolver
}

type copySlot struct {
	node  dataflow.NodeID
	infos []annotations.MarkInfo
	label string
}

// Paint implements Brush
func (b *CopierBrush) Paint(g *dataflow.MethodGraph, old Colors) []Proposal {
	var res []Proposal
	for _, inv := range g.Invocations {
		slots := b.slots(inv)
		var from *copySlot
		var best *colors.ColoredObject
		for i, s := range slots {
			if !annotations.Union(s.infos).Has(annotations.CopyColorsFrom) {
				continue
			}
			if c := colors.MostDangerous(best, old[s.node]); c != nil && c != best {
				best, from = c, &slots[i]
			}
		}
		if best == nil {
			continue
		}
		fromInfo, _ := annotations.Find(from.infos, annotations.CopyColorsFrom)
		for _, to := range slots {
			info, ok := annotations.Find(to.infos, annotations.CopyColorsTo)
			if !ok || to.node == from.node {
				continue
			}
			msg := fmt.Sprintf("Copy colors from %s to %s of method '%s' of class %s", from.label, to.label,
				inv.Target.Name, classfile.DottedName(inv.Target.Class))
			res = append(res, Proposal{
				Node:  to.node,
				Color: best.WithClasses().WithTrace(colors.NewStep(msg, inv.Pos, best.Trace())),
				Force: fromInfo.OnIntersection == annotations.Overwrite || info.OnIntersection == annotations.Overwrite,
			})
		}
	}
	return res
}

// slots returns the inputs and the result of the invocation with their marks
func (b *CopierBrush) slots(inv *dataflow.Invocation) []copySlot {
	var slots []copySlot
	m := b.Resolver.Method(inv.Target)
	first := receiverSlots(inv)
	if first == 1 {
		slots = append(slots, copySlot{inv.Inputs[0], b.Oracle.ReceiverMarks(inv.Target), "receiver"})
	}
	for i := first; i < len(inv.Inputs); i++ {
		slots = append(slots, copySlot{inv.Inputs[i], b.Oracle.ArgumentMarks(inv.Target, m, i-first),
			fmt.Sprintf("argument #%d", i-first)})
	}
	if inv.Result != dataflow.NoNode {
		slots = append(slots, copySlot{inv.Result, b.Oracle.ResultMarks(inv.Target, m), "result"})
	}
	return slots
}

// SubcallBrush merges the colors computed by the analysis of the callees into the arguments and results of the calls
type SubcallBrush struct {
	Subcaller Subcaller
}

// Paint implements Brush
func (b *SubcallBrush) Paint(g *dataflow.MethodGraph, old Colors) []Proposal {
	var res []Proposal
	for _, inv := range g.Invocations {
		ins := old.Of(inv.Inputs...)
		var out *colors.ColoredObject
		if inv.Result != dataflow.NoNode {
			out = old[inv.Result]
		}
		newIns, newOut, ok := b.Subcaller.Subcall(g, inv, ins, out)
		if !ok {
			continue
		}
		target := fmt.Sprintf("call to method '%s' of class %s", inv.Target.Name, classfile.DottedName(inv.Target.Class))
		first := receiverSlots(inv)
		for i, c := range newIns {
			if i >= len(inv.Inputs) || colors.Covers(ins[i], c) {
				continue
			}
			label := fmt.Sprintf("Argument #%d of %s", i-first, target)
			if i < first {
				label = "Receiver of " + target
			}
			res = append(res, Proposal{Node: inv.Inputs[i], Color: c.WithTrace(colors.NewStep(label, inv.Pos, c.Trace()))})
		}
		if inv.Result != dataflow.NoNode && !colors.Covers(out, newOut) {
			step := colors.NewStep("Result of "+target, inv.Pos, newOut.Trace())
			res = append(res, Proposal{Node: inv.Result, Color: newOut.WithTrace(step)})
		}
	}
	return res
}

// receiverSlots is the number of inputs of the invocation that are not declared arguments
func receiverSlots(inv *dataflow.Invocation) int {
	if inv.Static {
		return 0
	}
	return 1
}
