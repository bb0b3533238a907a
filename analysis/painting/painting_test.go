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

package painting_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/awslabs/ar-jvm-tools/analysis/annotations"
	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
	"github.com/awslabs/ar-jvm-tools/analysis/colors"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
	"github.com/awslabs/ar-jvm-tools/analysis/painting"
	"github.com/awslabs/ar-jvm-tools/internal/analysistest"
	"github.com/awslabs/ar-jvm-tools/internal/jasm"
	"github.com/google/go-cmp/cmp"
)

const static = classfile.AccPublic | classfile.AccStatic

type env struct {
	*analysistest.Env
	config *config.Config
	logger *config.LogGroup
	logs   *bytes.Buffer
}

func newEnv() *env {
	e := analysistest.NewEnv()
	return &env{Env: e, config: e.Config, logger: e.Logger, logs: e.Logs}
}

func (e *env) graph(t *testing.T, cf *classfile.ClassFile) *dataflow.MethodGraph {
	t.Helper()
	g, err := dataflow.NewBuilder(e.config, e.logger, nil).Build(cf, cf.Methods[0])
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return g
}

func (e *env) color(g *dataflow.MethodGraph, initial painting.Colors, report colors.Reporter,
	brushes ...painting.Brush) *painting.Painting {
	return painting.NewColorer(e.config, e.logger, brushes...).Color(g, initial, report)
}

func source(msg string) *colors.ColoredObject {
	return colors.New(colors.Source, colors.Explicitly, colors.NewStep(msg, dataflow.Position{}, nil))
}

func sink(msg string) *colors.ColoredObject {
	return colors.New(colors.Sink, colors.Explicitly, colors.NewStep(msg, dataflow.Position{}, nil))
}

func messages(items []colors.TraceItem) []string {
	res := make([]string, len(items))
	for i, it := range items {
		res[i] = it.Message()
	}
	return res
}

// fakeProvider colors the parameters and results named "method#index" or "method#result"
type fakeProvider struct {
	sources map[string]bool
	sinks   map[string]bool
}

func (p fakeProvider) color(key string, pos dataflow.Position) *colors.ColoredObject {
	switch {
	case p.sources[key]:
		return colors.New(colors.Source, colors.Explicitly, colors.NewStep("source "+key, pos, nil))
	case p.sinks[key]:
		return colors.New(colors.Sink, colors.Explicitly, colors.NewStep("sink "+key, pos, nil))
	}
	return nil
}

func (p fakeProvider) ParameterColor(ref classfile.MemberRef, _ *classfile.Method, i int,
	pos dataflow.Position) *colors.ColoredObject {
	return p.color(fmt.Sprintf("%s#%d", ref.Name, i), pos)
}

func (p fakeProvider) ResultColor(ref classfile.MemberRef, _ *classfile.Method, pos dataflow.Position) *colors.ColoredObject {
	return p.color(ref.Name+"#result", pos)
}

func (p fakeProvider) FieldColor(classfile.MemberRef, *classfile.Field, dataflow.Position) *colors.ColoredObject {
	return nil
}

func TestSourceMeetsSinkArgument(t *testing.T) {
	e := newEnv()
	cf := jasm.NewClass("com/example/Handler").
		Method(static, "handle", "(Ljava/lang/String;)V").
		Local(bytecode.Aload, 0).
		Invoke(bytecode.Invokestatic, "com/example/Shell", "exec", "(Ljava/lang/String;)V").
		Op(bytecode.Return).
		End().
		Build()
	g := e.graph(t, cf)
	provider := fakeProvider{sources: map[string]bool{"handle#0": true}, sinks: map[string]bool{"exec#0": true}}
	resolver := painting.NewResolver(nil, e.logger)
	collector := colors.NewCollector()

	p := e.color(g, nil, collector.Report,
		painting.ParameterBrush{Provider: provider},
		&painting.InvocationBrush{Provider: provider, Resolver: resolver})

	if !p.Converged || p.Passes != 1 {
		t.Errorf("Color() passes = %d, converged = %v, want 1 pass", p.Passes, p.Converged)
	}
	if got := p.Params()[0].Kind(); got != colors.Intersection {
		t.Errorf("parameter kind got = %v, want %v", got, colors.Intersection)
	}
	findings := collector.Findings()
	if len(findings) != 1 {
		t.Fatalf("findings got = %d, want 1", len(findings))
	}
	want := []string{"source handle#0", "sink exec#0"}
	if diff := cmp.Diff(want, messages(findings[0].Trace())); diff != "" {
		t.Errorf("finding trace mismatch (-want +got):\n%s", diff)
	}
	if got := findings[0].Sink.Position(); got.Method != "handle" || got.Class != "com/example/Handler" {
		t.Errorf("sink position got = %v, want the call site", got)
	}
}

// sinkOf is a provider coloring the i-th argument of a method of one class as a sink
type sinkOf struct {
	class, name string
	arg         int
}

func (p sinkOf) ParameterColor(ref classfile.MemberRef, _ *classfile.Method, i int,
	pos dataflow.Position) *colors.ColoredObject {
	if ref.Class != p.class || ref.Name != p.name || i != p.arg {
		return nil
	}
	return colors.New(colors.Sink, colors.Explicitly, colors.NewStep("sink "+classfile.DottedName(ref.Class), pos, nil))
}

func (sinkOf) ResultColor(classfile.MemberRef, *classfile.Method, dataflow.Position) *colors.ColoredObject {
	return nil
}

func (sinkOf) FieldColor(classfile.MemberRef, *classfile.Field, dataflow.Position) *colors.ColoredObject {
	return nil
}

func TestInvocationBrushSingleImplementation(t *testing.T) {
	runner := jasm.NewClass("com/example/Runner").Interface().
		AbstractMethod(classfile.AccPublic, "run", "(Ljava/lang/String;)V").End().Build()
	shell := jasm.NewClass("com/example/Shell").Implements("com/example/Runner").
		Method(classfile.AccPublic, "run", "(Ljava/lang/String;)V").Op(bytecode.Return).End().Build()
	cf := jasm.NewClass("com/example/Handler").
		Method(static, "handle", "(Lcom/example/Runner;Ljava/lang/String;)V").
		Local(bytecode.Aload, 0).
		Local(bytecode.Aload, 1).
		Invoke(bytecode.Invokeinterface, "com/example/Runner", "run", "(Ljava/lang/String;)V").
		Op(bytecode.Return).
		End().
		Build()

	tests := []struct {
		name    string
		classes []*classfile.ClassFile
		want    colors.Kind
	}{
		{"marks of the single implementation", []*classfile.ClassFile{runner, shell}, colors.Intersection},
		{"no implementation", []*classfile.ClassFile{runner}, colors.Source},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv()
			g := e.graph(t, cf)
			resolver := painting.NewResolver(analysistest.NewPool(t, tt.classes...), e.logger)
			collector := colors.NewCollector()
			brush := &painting.InvocationBrush{Provider: sinkOf{"com/example/Shell", "run", 0}, Resolver: resolver}

			p := e.color(g, painting.Colors{g.Params[1]: source("user data")}, collector.Report, brush)

			if got := p.Params()[1].Kind(); got != tt.want {
				t.Errorf("argument kind got = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCopyRule(t *testing.T) {
	e := newEnv()
	cf := jasm.NewClass("com/example/Arrays").
		Method(static, "copy", "([Ljava/lang/String;[Ljava/lang/String;)V").
		Local(bytecode.Aload, 0).
		Int(0).
		Local(bytecode.Aload, 1).
		Int(0).
		Local(bytecode.Aload, 0).
		Op(bytecode.Arraylength).
		Invoke(bytecode.Invokestatic, "java/lang/System", "arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V").
		Op(bytecode.Return).
		End().
		Build()
	g := e.graph(t, cf)
	oracle := annotations.NewOracle(e.config, annotations.NewRuleSet(e.logger, annotations.DefaultRules()))
	resolver := painting.NewResolver(nil, e.logger)
	collector := colors.NewCollector()

	src := source("user data")
	p := e.color(g, painting.Colors{g.Params[0]: src}, collector.Report,
		&painting.CopierBrush{Oracle: oracle, Resolver: resolver})

	if p.Passes != 1 {
		t.Errorf("Color() passes got = %d, want 1", p.Passes)
	}
	if collector.Len() != 0 {
		t.Errorf("copy should not raise an intersection, got %d findings", collector.Len())
	}
	dst := p.Params()[1]
	if dst == nil || dst.Kind() != colors.Source {
		t.Fatalf("destination color got = %v, want a source", dst)
	}
	want := []string{
		"Copy colors from argument #0 to argument #2 of method 'arraycopy' of class java.lang.System",
		"user data",
	}
	if diff := cmp.Diff(want, messages(colors.Chain(dst.Trace()))); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestCopyIntersectionPolicy(t *testing.T) {
	const policyType = "io.github.vlsergey.secan4j.annotations.OnIntersection"
	for _, tt := range []struct {
		name         string
		from, to     classfile.Annotation
		wantKind     colors.Kind
		wantFindings int
	}{
		{"no policy", jasm.Ann("com.example.annotations.CopyColorsFrom"),
			jasm.Ann("com.example.annotations.CopyColorsTo"), colors.Intersection, 1},
		{"REPORT on the source", jasm.Ann("com.example.annotations.CopyColorsFrom",
			jasm.EnumElement("value", policyType, "REPORT")),
			jasm.Ann("com.example.annotations.CopyColorsTo"), colors.Intersection, 1},
		{"OVERWRITE on the source", jasm.Ann("com.example.annotations.CopyColorsFrom",
			jasm.EnumElement("value", policyType, "OVERWRITE")),
			jasm.Ann("com.example.annotations.CopyColorsTo"), colors.Source, 0},
		{"REPORT on the destination", jasm.Ann("com.example.annotations.CopyColorsFrom"),
			jasm.Ann("com.example.annotations.CopyColorsTo",
				jasm.EnumElement("onIntersection", policyType, "REPORT")), colors.Intersection, 1},
		{"OVERWRITE on the destination", jasm.Ann("com.example.annotations.CopyColorsFrom"),
			jasm.Ann("com.example.annotations.CopyColorsTo",
				jasm.EnumElement("onIntersection", policyType, "OVERWRITE")), colors.Source, 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv()
			util := jasm.NewClass("com/example/Util").
				Method(static, "fill", "(Ljava/lang/String;[Ljava/lang/String;)V").
				ParamAnnotation(0, tt.from).
				ParamAnnotation(1, tt.to).
				Op(bytecode.Return).
				End().
				Build()
			pool, err := classfile.NewClassPool(nil)
			if err != nil {
				t.Fatal(err)
			}
			pool.Register(util)
			cf := jasm.NewClass("com/example/Handler").
				Method(static, "handle", "(Ljava/lang/String;[Ljava/lang/String;)V").
				Local(bytecode.Aload, 0).
				Local(bytecode.Aload, 1).
				Invoke(bytecode.Invokestatic, "com/example/Util", "fill", "(Ljava/lang/String;[Ljava/lang/String;)V").
				Op(bytecode.Return).
				End().
				Build()
			g := e.graph(t, cf)
			oracle := annotations.NewOracle(e.config, nil)
			collector := colors.NewCollector()

			p := e.color(g, painting.Colors{g.Params[0]: source("in"), g.Params[1]: sink("out")}, collector.Report,
				&painting.CopierBrush{Oracle: oracle, Resolver: painting.NewResolver(pool, e.logger)})

			if got := p.Params()[1].Kind(); got != tt.wantKind {
				t.Errorf("destination kind got = %v, want %v", got, tt.wantKind)
			}
			if got := collector.Len(); got != tt.wantFindings {
				t.Errorf("findings got = %d, want %d", got, tt.wantFindings)
			}
		})
	}
}

func pickClass() *classfile.ClassFile {
	return jasm.NewClass("com/example/Pick").
		Method(static, "pick", "(ZLjava/lang/String;Ljava/lang/String;)Ljava/lang/String;").
		Local(bytecode.Iload, 0).
		Jump(bytecode.Ifeq, "else").
		Local(bytecode.Aload, 1).
		Op(bytecode.Areturn).
		Label("else").
		Local(bytecode.Aload, 2).
		Op(bytecode.Areturn).
		End().
		Build()
}

func TestMergeBrush(t *testing.T) {
	e := newEnv()
	g := e.graph(t, pickClass())

	t.Run("source flows to the merge", func(t *testing.T) {
		collector := colors.NewCollector()
		p := e.color(g, painting.Colors{g.Params[1]: source("a")}, collector.Report, painting.MergeBrush{})
		if got := p.Result(); got == nil || got.Kind() != colors.Source {
			t.Errorf("Result() got = %v, want a source", got)
		}
		if p.Params()[2] != nil {
			t.Errorf("the other returned value should not be colored, got %v", p.Params()[2])
		}
	})

	t.Run("sink flows back to the inputs", func(t *testing.T) {
		collector := colors.NewCollector()
		p := e.color(g, painting.Colors{g.Params[1]: source("a"), g.Return: sink("returned")}, collector.Report,
			painting.MergeBrush{})
		if got := p.Result().Kind(); got != colors.Intersection {
			t.Errorf("Result() kind got = %v, want %v", got, colors.Intersection)
		}
		if got := p.Params()[2]; got == nil || got.Kind() != colors.Sink {
			t.Errorf("second returned value got = %v, want a sink", got)
		}
		if got := collector.Len(); got != 1 {
			t.Errorf("findings got = %d, want 1", got)
		}
	})
}

func TestDerivedValueBrush(t *testing.T) {
	e := newEnv()
	cf := jasm.NewClass("com/example/Math").
		Method(static, "add", "(II)I").
		Local(bytecode.Iload, 0).
		Local(bytecode.Iload, 1).
		Op(bytecode.Iadd).
		Op(bytecode.Ireturn).
		End().
		Build()
	g := e.graph(t, cf)
	collector := colors.NewCollector()
	p := e.color(g, painting.Colors{g.Params[0]: source("a"), g.Params[1]: sink("b")}, collector.Report,
		painting.DerivedValueBrush{})
	if got := p.Result(); got == nil || got.Kind() != colors.Source {
		t.Errorf("Result() got = %v, want a source", got)
	}
	if collector.Len() != 0 {
		t.Errorf("sinks should not flow forward, got %d findings", collector.Len())
	}
}

func TestDynamicInvocationBrush(t *testing.T) {
	e := newEnv()
	cf := jasm.NewClass("com/example/Concat").
		Method(static, "greet", "(Ljava/lang/String;)Ljava/lang/String;").
		Local(bytecode.Aload, 0).
		InvokeDynamic("makeConcatWithConstants", "(Ljava/lang/String;)Ljava/lang/String;").
		Op(bytecode.Areturn).
		End().
		Build()
	g := e.graph(t, cf)
	p := e.color(g, painting.Colors{g.Params[0]: source("name")}, nil, painting.DynamicInvocationBrush{})
	got := p.Result()
	if got == nil || got.Kind() != colors.Source || got.Color.Confidence != colors.Assumption {
		t.Fatalf("Result() got = %v, want an assumed source", got)
	}
	if diff := cmp.Diff([]string{"Result of invokeDynamic operation", "name"},
		messages(colors.Chain(got.Trace()))); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestFieldBrush(t *testing.T) {
	e := newEnv()
	rules := fstest.MapFS{"com.yaml": {Data: []byte("example:\n  Holder:\n    secret: ParentAttributesDefiner\n")}}
	brush := &painting.FieldBrush{
		Oracle:   annotations.NewOracle(e.config, annotations.NewRuleSet(e.logger, rules)),
		Resolver: painting.NewResolver(nil, e.logger),
	}
	holder := "Lcom/example/Holder;"

	tests := []struct {
		name    string
		cf      *classfile.ClassFile
		colored int
		check   func(p *painting.Painting) *colors.ColoredObject
		want    string
	}{
		{
			name: "marked field defines its object",
			cf: jasm.NewClass("com/example/Fields").
				Method(static, "put", "("+holder+"Ljava/lang/String;)V").
				Local(bytecode.Aload, 0).
				Local(bytecode.Aload, 1).
				Field(bytecode.Putfield, "com/example/Holder", "secret", "Ljava/lang/String;").
				Op(bytecode.Return).
				End().Build(),
			colored: 1,
			check:   func(p *painting.Painting) *colors.ColoredObject { return p.Params()[0] },
			want:    "Object defined by field 'secret' of class com.example.Holder",
		},
		{
			name: "field of a tainted object",
			cf: jasm.NewClass("com/example/Fields").
				Method(static, "get", "("+holder+")Ljava/lang/String;").
				Local(bytecode.Aload, 0).
				Field(bytecode.Getfield, "com/example/Holder", "name", "Ljava/lang/String;").
				Op(bytecode.Areturn).
				End().Build(),
			colored: 0,
			check:   func(p *painting.Painting) *colors.ColoredObject { return p.Result() },
			want:    "Value of field 'name' of class com.example.Holder",
		},
		{
			name: "array element defines its array",
			cf: jasm.NewClass("com/example/Fields").
				Method(static, "store", "([Ljava/lang/String;Ljava/lang/String;)V").
				Local(bytecode.Aload, 0).
				Int(0).
				Local(bytecode.Aload, 1).
				Op(bytecode.Aastore).
				Op(bytecode.Return).
				End().Build(),
			colored: 1,
			check:   func(p *painting.Painting) *colors.ColoredObject { return p.Params()[0] },
			want:    "Object defined by array element",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := e.graph(t, tt.cf)
			p := e.color(g, painting.Colors{g.Params[tt.colored]: source("data")}, nil, brush)
			got := tt.check(p)
			if got == nil || got.Kind() != colors.Source {
				t.Fatalf("color got = %v, want a source", got)
			}
			if msg := got.Trace().Message(); msg != tt.want {
				t.Errorf("trace got = %q, want %q", msg, tt.want)
			}
		})
	}
}

type fakeSubcaller struct {
	calls int
}

func (s *fakeSubcaller) Subcall(_ *dataflow.MethodGraph, inv *dataflow.Invocation, ins []*colors.ColoredObject,
	_ *colors.ColoredObject) ([]*colors.ColoredObject, *colors.ColoredObject, bool) {
	s.calls++
	if inv.Target.Name != "exec" {
		return nil, nil, false
	}
	return []*colors.ColoredObject{sink("exec parameter")}, nil, true
}

func TestSubcallBrush(t *testing.T) {
	e := newEnv()
	cf := jasm.NewClass("com/example/Handler").
		Method(static, "handle", "(Ljava/lang/String;)V").
		Local(bytecode.Aload, 0).
		Invoke(bytecode.Invokestatic, "com/example/Shell", "exec", "(Ljava/lang/String;)V").
		Op(bytecode.Return).
		End().
		Build()
	g := e.graph(t, cf)
	sub := &fakeSubcaller{}
	collector := colors.NewCollector()
	p := e.color(g, painting.Colors{g.Params[0]: source("user")}, collector.Report, &painting.SubcallBrush{Subcaller: sub})

	if collector.Len() != 1 {
		t.Fatalf("findings got = %d, want 1", collector.Len())
	}
	want := []string{"user", "Argument #0 of call to method 'exec' of class com.example.Shell", "exec parameter"}
	if diff := cmp.Diff(want, messages(collector.Findings()[0].Trace())); diff != "" {
		t.Errorf("finding trace mismatch (-want +got):\n%s", diff)
	}
	if sub.calls != p.Passes+1 {
		t.Errorf("subcalls got = %d, want one per pass (%d)", sub.calls, p.Passes+1)
	}
}

func TestMaxPasses(t *testing.T) {
	e := newEnv()
	e.config.MaxColoringPasses = 3
	g := e.graph(t, pickClass())
	n := 0
	growing := painting.BrushFunc(func(g *dataflow.MethodGraph, _ painting.Colors) []painting.Proposal {
		n++
		c := colors.New(colors.Source, colors.Explicitly, nil).WithClasses(fmt.Sprintf("C%d", n))
		return []painting.Proposal{{Node: g.Params[1], Color: c}}
	})
	p := e.color(g, nil, nil, growing)
	if p.Converged || p.Passes != 3 {
		t.Errorf("Color() passes = %d, converged = %v, want 3 passes without convergence", p.Passes, p.Converged)
	}
	if !strings.Contains(e.logs.String(), "stopped after 3 passes") {
		t.Errorf("expected a warning, got logs:\n%s", e.logs.String())
	}
}

func TestResolver(t *testing.T) {
	e := newEnv()
	runner := jasm.NewClass("com/example/Runner").Interface().
		AbstractMethod(classfile.AccPublic, "run", "()V").End().Build()
	impl := func(name string) *classfile.ClassFile {
		return jasm.NewClass(name).Implements("com/example/Runner").
			Method(classfile.AccPublic, "run", "()V").Op(bytecode.Return).End().Build()
	}
	pool, err := classfile.NewClassPool(nil)
	if err != nil {
		t.Fatal(err)
	}
	pool.Register(runner, impl("com/example/A"))
	r := painting.NewResolver(pool, e.logger)
	inv := &dataflow.Invocation{
		Op:     bytecode.Invokeinterface,
		Target: classfile.MemberRef{Class: "com/example/Runner", Name: "run", Descriptor: "()V", Interface: true},
		Result: dataflow.NoNode,
	}

	if m := r.Implementation(inv, ""); m == nil || m.Owner != "com/example/A" {
		t.Errorf("Implementation() got = %v, want com.example.A.run", m)
	}
	pool.Register(impl("com/example/B"))
	if m := r.Implementation(inv, ""); m != nil {
		t.Errorf("Implementation() got = %v, want nil with two implementations", m)
	}
	if m := r.Implementation(inv, "com/example/B"); m == nil || m.Owner != "com/example/B" {
		t.Errorf("Implementation(B) got = %v, want com.example.B.run", m)
	}
	missing := classfile.MemberRef{Class: "com/example/Missing", Name: "run", Descriptor: "()V"}
	r.Method(missing)
	r.Method(missing)
	logs := e.logs.String()
	if got := e.CountLogs("could not resolve method"); got != 1 {
		t.Errorf("warnings got = %d, want 1 in logs:\n%s", got, logs)
	}
	if !strings.Contains(logs, "no single implementation") {
		t.Errorf("expected a warning for the interface call, got logs:\n%s", logs)
	}
}
