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

package dataflow_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
	"github.com/awslabs/ar-jvm-tools/internal/jasm"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const static = classfile.AccPublic | classfile.AccStatic

func newBuilder(maxEnters int, debug bool) *dataflow.Builder {
	c := config.NewDefault()
	c.MaxBlockEnters = maxEnters
	c.DebugChecks = debug
	return dataflow.NewBuilder(c, config.NewLogGroup(c), nil)
}

func build(t *testing.T, b *dataflow.Builder, cf *classfile.ClassFile) *dataflow.MethodGraph {
	t.Helper()
	g, err := b.Build(cf, cf.Methods[0])
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return g
}

func countOp(g *dataflow.MethodGraph, op bytecode.Opcode) int {
	n := 0
	for _, id := range g.Nodes {
		if g.Node(id).Op == op {
			n++
		}
	}
	return n
}

func TestSumGraph(t *testing.T) {
	cf := jasm.NewClass("test/Arith").
		Method(static, "sum", "(III)I").
		Local(bytecode.Iload, 0).
		Local(bytecode.Iload, 1).
		Op(bytecode.Iadd).
		Local(bytecode.Iload, 2).
		Op(bytecode.Iadd).
		Op(bytecode.Ireturn).
		End().Build()
	for _, debug := range []bool{false, true} {
		g := build(t, newBuilder(5, debug), cf)
		if len(g.Params) != 3 {
			t.Fatalf("params got = %d, want 3", len(g.Params))
		}
		if len(g.Nodes) != 5 {
			t.Errorf("nodes got = %d, want 5:\n%s", len(g.Nodes), g)
		}
		ret := g.Node(g.Return)
		if ret.Op != bytecode.Iadd || ret.Type != bytecode.Int {
			t.Fatalf("return got = %v, want an int iadd", ret)
		}
		first := g.Node(ret.Inputs[0])
		if diff := cmp.Diff([]dataflow.NodeID{g.Params[0], g.Params[1]}, first.Inputs); diff != "" {
			t.Errorf("inputs of first add mismatch (-want +got):\n%s", diff)
		}
		if ret.Inputs[1] != g.Params[2] {
			t.Errorf("second input of return got = %d, want %d", ret.Inputs[1], g.Params[2])
		}
		for i, p := range g.Params {
			n := g.Node(p)
			if n.Kind != dataflow.Parameter || n.ParamIndex != i || n.ArgIndex != i {
				t.Errorf("parameter %d got = %+v", i, n)
			}
		}
	}
}

func TestInstanceMethodReceiver(t *testing.T) {
	cf := jasm.NewClass("test/Box").
		Field(classfile.AccPrivate, "value", "Ljava/lang/String;").
		Method(classfile.AccPublic, "set", "(Ljava/lang/String;)V").
		Local(bytecode.Aload, 0).
		Local(bytecode.Aload, 1).
		Field(bytecode.Putfield, "test/Box", "value", "Ljava/lang/String;").
		Op(bytecode.Return).
		End().Build()
	g := build(t, newBuilder(5, true), cf)
	if len(g.Params) != 2 || !g.Node(g.Params[0]).IsReceiver() {
		t.Fatalf("params got = %v, want receiver and one argument", g.Params)
	}
	if g.Return != dataflow.NoNode {
		t.Errorf("void method has return %d", g.Return)
	}
	if len(g.FieldWrites) != 1 {
		t.Fatalf("field writes got = %d, want 1", len(g.FieldWrites))
	}
	fw := g.FieldWrites[0]
	if fw.Object != g.Params[0] || fw.Value != g.Params[1] || fw.Field.Name != "value" || fw.Static || fw.Array {
		t.Errorf("field write got = %+v", fw)
	}
}

func TestTwoReturnsMerge(t *testing.T) {
	cf := jasm.NewClass("test/Pick").
		Method(static, "pick", "(ZLjava/lang/String;Ljava/lang/String;)Ljava/lang/String;").
		Local(bytecode.Iload, 0).
		Jump(bytecode.Ifeq, "second").
		Local(bytecode.Aload, 1).
		Op(bytecode.Areturn).
		Label("second").
		Local(bytecode.Aload, 2).
		Op(bytecode.Areturn).
		End().Build()
	g := build(t, newBuilder(5, true), cf)
	merge := g.Node(g.Return)
	if merge.Kind != dataflow.Merge {
		t.Fatalf("return kind got = %v, want merge", merge.Kind)
	}
	want := []dataflow.NodeID{g.Params[1], g.Params[2]}
	sorted := cmpopts.SortSlices(func(a, b dataflow.NodeID) bool { return a < b })
	if diff := cmp.Diff(want, merge.Inputs, sorted); diff != "" {
		t.Errorf("merge inputs mismatch (-want +got):\n%s", diff)
	}
	if merge.Type != bytecode.RefOf("Ljava/lang/String;") {
		t.Errorf("merge type got = %v, want String", merge.Type)
	}
}

func TestLoopUnrollingIsBounded(t *testing.T) {
	cf := jasm.NewClass("test/Loop").
		Method(static, "count", "(I)I").
		Int(0).
		Local(bytecode.Istore, 1).
		Label("head").
		Local(bytecode.Iload, 1).
		Local(bytecode.Iload, 0).
		Jump(bytecode.IfIcmpge, "exit").
		Iinc(1, 1).
		Jump(bytecode.Goto, "head").
		Label("exit").
		Local(bytecode.Iload, 1).
		Op(bytecode.Ireturn).
		End().Build()
	for _, maxEnters := range []int{1, 2, 5} {
		g := build(t, newBuilder(maxEnters, true), cf)
		if !g.Truncated {
			t.Errorf("with %d enters, Truncated got = false, want true", maxEnters)
		}
		if got := countOp(g, bytecode.Iinc); got != maxEnters {
			t.Errorf("with %d enters, iinc nodes got = %d, want %d", maxEnters, got, maxEnters)
		}
		returned := 1
		if r := g.Node(g.Return); r.Kind == dataflow.Merge {
			returned = len(r.Inputs)
		}
		if returned != maxEnters {
			t.Errorf("with %d enters, returned values got = %d, want %d", maxEnters, returned, maxEnters)
		}
	}
}

func TestInternedConstants(t *testing.T) {
	cf := jasm.NewClass("test/Const").
		Method(static, "two", "()I").
		Int(1).
		Int(1).
		Op(bytecode.Iadd).
		Op(bytecode.Ireturn).
		End().Build()
	g := build(t, newBuilder(5, true), cf)
	if g.Truncated {
		t.Errorf("straight-line method should not be truncated")
	}
	ret := g.Node(g.Return)
	if len(ret.Inputs) != 2 || ret.Inputs[0] != ret.Inputs[1] {
		t.Errorf("inputs got = %v, want the same constant twice", ret.Inputs)
	}
	if c := g.Node(ret.Inputs[0]); c.Kind != dataflow.Constant || c.Description != "1" {
		t.Errorf("constant got = %v", c)
	}
}

func TestWideValues(t *testing.T) {
	cf := jasm.NewClass("test/Wide").
		Method(static, "twice", "(JI)J").
		Local(bytecode.Lload, 0).
		Op(bytecode.Dup2).
		Op(bytecode.Ladd).
		Local(bytecode.Iload, 2).
		Op(bytecode.I2l).
		Op(bytecode.Ladd).
		Op(bytecode.Lreturn).
		End().Build()
	g := build(t, newBuilder(5, true), cf)
	ret := g.Node(g.Return)
	if ret.Type != bytecode.Long {
		t.Fatalf("return type got = %v, want long", ret.Type)
	}
	double := g.Node(ret.Inputs[0])
	if diff := cmp.Diff([]dataflow.NodeID{g.Params[0], g.Params[0]}, double.Inputs); diff != "" {
		t.Errorf("dup2 of a long mismatch (-want +got):\n%s", diff)
	}
	if conv := g.Node(ret.Inputs[1]); conv.Op != bytecode.I2l || conv.Inputs[0] != g.Params[1] {
		t.Errorf("conversion got = %v", conv)
	}
}

func TestArrayStoreAndDynamicCall(t *testing.T) {
	cf := jasm.NewClass("test/Arrays").
		Method(static, "f", "(Ljava/lang/String;)V").
		Int(1).
		Type(bytecode.Anewarray, "java/lang/String").
		Op(bytecode.Dup).
		Int(0).
		Local(bytecode.Aload, 0).
		Op(bytecode.Aastore).
		Op(bytecode.Pop).
		Local(bytecode.Aload, 0).
		InvokeDynamic("makeConcatWithConstants", "(Ljava/lang/String;)Ljava/lang/String;").
		Invoke(bytecode.Invokestatic, "test/Sink", "run", "(Ljava/lang/String;)V").
		Op(bytecode.Return).
		End().Build()
	g := build(t, newBuilder(5, true), cf)
	if len(g.FieldWrites) != 1 {
		t.Fatalf("field writes got = %d, want 1", len(g.FieldWrites))
	}
	fw := g.FieldWrites[0]
	if !fw.Array || fw.Value != g.Params[0] || g.Node(fw.Object).Op != bytecode.Anewarray {
		t.Errorf("array store got = %+v", fw)
	}
	if len(g.Invocations) != 1 {
		t.Fatalf("invocations got = %d, want 1", len(g.Invocations))
	}
	inv := g.Invocations[0]
	if inv.Result != dataflow.NoNode || !inv.Static || inv.Target.Name != "run" {
		t.Errorf("invocation got = %v", inv)
	}
	arg := g.Node(inv.Inputs[0])
	if arg.Op != bytecode.Invokedynamic || arg.Kind != dataflow.Value {
		t.Fatalf("argument got = %v, want an opaque invokedynamic value", arg)
	}
	if diff := cmp.Diff([]dataflow.NodeID{g.Params[0]}, arg.Inputs); diff != "" {
		t.Errorf("invokedynamic inputs mismatch (-want +got):\n%s", diff)
	}
}

func TestExceptionHandler(t *testing.T) {
	cf := jasm.NewClass("test/Catch").
		Method(static, "parse", "(Ljava/lang/String;)Ljava/lang/Object;").
		Label("start").
		Line(10).
		Local(bytecode.Aload, 0).
		Invoke(bytecode.Invokestatic, "test/Util", "parse", "(Ljava/lang/String;)Ljava/lang/Object;").
		Op(bytecode.Areturn).
		Label("end").
		Label("handler").
		Line(12).
		Op(bytecode.Areturn).
		Try("start", "end", "handler", "java/lang/Exception").
		End().Build()
	g := build(t, newBuilder(5, true), cf)
	var caught []dataflow.NodeID
	for _, id := range g.Nodes {
		if g.Node(id).Kind == dataflow.CaughtException {
			caught = append(caught, id)
		}
	}
	if len(caught) != 1 {
		t.Fatalf("caught exception nodes got = %d, want 1", len(caught))
	}
	c := g.Node(caught[0])
	if c.Type != bytecode.RefOf("Ljava/lang/Exception;") || c.Pos.Line != 12 {
		t.Errorf("caught exception got = %+v", c)
	}
	merge := g.Node(g.Return)
	if merge.Kind != dataflow.Merge || len(merge.Inputs) != 2 {
		t.Fatalf("return got = %v, want a merge of two values", merge)
	}
	if inv := g.Invocations[0]; inv.Pos.Line != 10 || inv.Pos.String() != "test.Catch.parse(Catch.java:10)" {
		t.Errorf("invocation position got = %v", inv.Pos)
	}
}

func TestUnsupportedAndAbstract(t *testing.T) {
	cf := jasm.NewClass("test/Bad").
		Method(static, "sub", "()V").
		Jump(bytecode.Jsr, "sub").
		Label("sub").
		Op(bytecode.Return).
		End().
		Build()
	if _, err := newBuilder(5, false).Build(cf, cf.Methods[0]); !errors.Is(err, bytecode.ErrUnsupportedOpcode) {
		t.Errorf("Build() error = %v, want %v", err, bytecode.ErrUnsupportedOpcode)
	}
	abs := jasm.NewClass("test/Abstract")
	abs.AbstractMethod(classfile.AccPublic|classfile.AccAbstract, "run", "()V")
	cf = abs.Build()
	if _, err := newBuilder(5, false).Build(cf, cf.Methods[0]); !errors.Is(err, dataflow.ErrNoCode) {
		t.Errorf("Build() error = %v, want %v", err, dataflow.ErrNoCode)
	}
}

func TestGraphIsCached(t *testing.T) {
	cf := jasm.NewClass("test/Cached").
		Method(static, "id", "(I)I").
		Local(bytecode.Iload, 0).
		Op(bytecode.Ireturn).
		End().Build()
	b := newBuilder(5, false)
	g1, err := b.Graph(cf, cf.Methods[0])
	if err != nil {
		t.Fatalf("Graph() error = %v", err)
	}
	g2, _ := b.Graph(cf, cf.Methods[0])
	if g1 != g2 {
		t.Errorf("Graph() built the method twice")
	}
	if g1.Return != g1.Params[0] {
		t.Errorf("identity returns %d, want %d", g1.Return, g1.Params[0])
	}
}

func TestWriteDOT(t *testing.T) {
	cf := jasm.NewClass("test/Render").
		Method(static, "run", "(Ljava/lang/String;)V").
		Local(bytecode.Aload, 0).
		Invoke(bytecode.Invokestatic, "test/Sink", "exec", "(Ljava/lang/String;)V").
		Op(bytecode.Return).
		End().Build()
	g := build(t, newBuilder(5, false), cf)
	var buf bytes.Buffer
	err := dataflow.WriteDOT(&buf, g, func(id dataflow.NodeID) string {
		if id == g.Params[0] {
			return "red"
		}
		return ""
	})
	if err != nil {
		t.Fatalf("WriteDOT() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"digraph", "n0", "call0", "fillcolor=red", "n0 -> call0"} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
}
