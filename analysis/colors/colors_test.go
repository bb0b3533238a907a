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
	"testing"

	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
	"github.com/google/go-cmp/cmp"
)

func pos(line int) dataflow.Position {
	return dataflow.Position{Class: "app/Main", Method: "run", File: "Main.java", Line: line}
}

func samples() []*ColoredObject {
	srcRoot := NewStep("Annotation @UserProvided on argument #0", pos(3), nil)
	sinkRoot := NewStep("Configuration info for argument #0", pos(9), nil)
	return []*ColoredObject{
		nil,
		New(Source, Explicitly, srcRoot),
		New(Source, Configuration, NewStep("returned", pos(4), srcRoot)),
		New(Source, Explicitly, NewStep("other source", pos(5), nil)).WithClasses("app/A", "app/B"),
		New(Sink, Configuration, sinkRoot),
		New(Sink, Explicitly, NewStep("passed", pos(8), sinkRoot)).WithClasses("app/B"),
		New(Intersection, Assumption, &IntersectionTrace{Source: srcRoot, Sink: sinkRoot}),
	}
}

// sameResult compares merge results up to the identity of intersection traces, which are created by each merge
func sameResult(a, b *ColoredObject) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Key() != b.Key() {
		return false
	}
	ta, oka := a.Color.Trace.(*IntersectionTrace)
	tb, okb := b.Color.Trace.(*IntersectionTrace)
	if oka && okb {
		return ta.Source == tb.Source && ta.Sink == tb.Sink
	}
	return a.Color.Trace == b.Color.Trace
}

func TestMergeCommutative(t *testing.T) {
	objs := samples()
	for i, a := range objs {
		for j, b := range objs {
			ab := Merge(a, b, nil)
			ba := Merge(b, a, nil)
			if !sameResult(ab, ba) {
				t.Errorf("Merge(%d, %d) = %v, Merge(%d, %d) = %v", i, j, ab, j, i, ba)
			}
		}
	}
}

func TestMergeIdempotentAndMonotone(t *testing.T) {
	objs := samples()
	for i, a := range objs {
		if got := Merge(a, a, nil); got != a {
			t.Errorf("Merge(%d, %d) got = %v, want the same object", i, i, got)
		}
		for j, b := range objs {
			ab := Merge(a, b, nil)
			// merging again with either operand changes nothing
			if got := Merge(ab, b, nil); !Equal(got, ab) {
				t.Errorf("Merge(Merge(%d, %d), %d) got = %v, want %v", i, j, j, got, ab)
			}
			if got := Merge(ab, a, nil); !Equal(got, ab) {
				t.Errorf("Merge(Merge(%d, %d), %d) got = %v, want %v", i, j, i, got, ab)
			}
		}
	}
}

func TestMergeDetectsIntersection(t *testing.T) {
	objs := samples()
	src, sink := objs[1], objs[4]
	c := NewCollector()
	reports := 0
	report := func(s, k TraceItem) {
		reports++
		if s != src.Trace() || k != sink.Trace() {
			t.Errorf("report got = (%v, %v), want source then sink", s, k)
		}
		c.Report(s, k)
	}
	x := Merge(src, sink, report)
	y := Merge(sink, src, report)
	if x.Kind() != Intersection || y.Kind() != Intersection {
		t.Fatalf("kinds got = %v and %v, want intersection", x.Kind(), y.Kind())
	}
	if x.Color.Confidence != Configuration {
		t.Errorf("confidence got = %v, want %v", x.Color.Confidence, Configuration)
	}
	if reports != 2 {
		t.Errorf("reports got = %d, want 2", reports)
	}
	if c.Len() != 1 {
		t.Errorf("findings got = %d, want 1", c.Len())
	}
	// intersection absorbs
	if got := Merge(x, objs[3], report); got.Kind() != Intersection || reports != 2 {
		t.Errorf("Merge(intersection, source) got = %v after %d reports", got, reports)
	}
}

func TestMergeConfidenceAndClasses(t *testing.T) {
	objs := samples()
	got := Merge(objs[2], objs[3], nil)
	if got.Color.Confidence != Explicitly || got.Trace() != objs[3].Trace() {
		t.Errorf("Merge() kept %v, want the explicit color", got)
	}
	if diff := cmp.Diff([]string{"app/A", "app/B"}, got.Classes); diff != "" {
		t.Errorf("classes mismatch (-want +got):\n%s", diff)
	}
	if got := Merge(objs[1], objs[2], nil); got != objs[1] {
		t.Errorf("Merge() got = %v, want the more confident operand itself", got)
	}
}

func TestForce(t *testing.T) {
	objs := samples()
	got := Force(objs[4], objs[1])
	if got.Kind() != Source || got.Trace() != objs[1].Trace() {
		t.Errorf("Force(sink, source) got = %v, want the source", got)
	}
	if got := Force(objs[1], objs[2]); got != objs[1] {
		t.Errorf("Force(source, source) got = %v, want a merge", got)
	}
}

func TestMostDangerous(t *testing.T) {
	objs := samples()
	tests := []struct {
		name string
		in   []*ColoredObject
		want *ColoredObject
	}{
		{"none", []*ColoredObject{nil, nil}, nil},
		{"source over sink", []*ColoredObject{objs[5], objs[2]}, objs[2]},
		{"intersection over source", []*ColoredObject{objs[1], objs[6]}, objs[6]},
		{"confidence", []*ColoredObject{objs[2], objs[1]}, objs[1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MostDangerous(tt.in...); got != tt.want {
				t.Errorf("MostDangerous() got = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDemultiplex(t *testing.T) {
	objs := samples()
	parts := objs[3].Demultiplex()
	if len(parts) != 2 {
		t.Fatalf("Demultiplex() got %d objects, want 2", len(parts))
	}
	for i, want := range []string{"app/A", "app/B"} {
		c, ok := parts[i].SingleClass()
		if !ok || c != want {
			t.Errorf("part %d class got = %q, want %q", i, c, want)
		}
		again := parts[i].Demultiplex()
		if len(again) != 1 || again[0] != parts[i] {
			t.Errorf("Demultiplex() of a single class object got = %v", again)
		}
	}
	if got := objs[1].Demultiplex(); len(got) != 1 || got[0] != objs[1] {
		t.Errorf("Demultiplex() without classes got = %v", got)
	}

	variants := DemultiplexAll([]*ColoredObject{objs[3], nil, objs[3]}, 16)
	if len(variants) != 4 {
		t.Fatalf("DemultiplexAll() got %d variants, want 4", len(variants))
	}
	var keys []string
	for _, v := range variants {
		keys = append(keys, KeyOf(v))
	}
	want := []string{
		"S10[app/A];-;S10[app/A]",
		"S10[app/A];-;S10[app/B]",
		"S10[app/B];-;S10[app/A]",
		"S10[app/B];-;S10[app/B]",
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("variants mismatch (-want +got):\n%s", diff)
	}
	if got := DemultiplexAll([]*ColoredObject{objs[3], objs[3]}, 3); len(got) != 1 {
		t.Errorf("DemultiplexAll() above the cap got %d variants, want 1", len(got))
	}
}

func TestFindingTrace(t *testing.T) {
	root := NewStep("Annotation @UserProvided on argument #0", pos(3), nil)
	tip := NewStep("passed to exec", pos(5), root)
	rule := NewStep("Configuration info for argument #0", dataflow.Position{}, nil)
	sinkTip := NewStep("argument #0 of exec", pos(5), nil).WithOrigin(rule)
	c := NewCollector()
	var notified int
	c.OnFinding = func(*Finding) { notified++ }
	c.Report(tip, sinkTip)
	c.Report(NewStep("other path", pos(6), root), NewStep("argument #0 of exec", pos(7), nil).WithOrigin(rule))
	findings := c.Findings()
	if len(findings) != 1 || notified != 1 {
		t.Fatalf("findings got = %d (%d notified), want 1", len(findings), notified)
	}
	var msgs []string
	for _, it := range findings[0].Trace() {
		msgs = append(msgs, it.Message())
	}
	want := []string{"Annotation @UserProvided on argument #0", "passed to exec", "argument #0 of exec"}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
	if OriginKey(sinkTip) != "Configuration info for argument #0" {
		t.Errorf("OriginKey() got = %q", OriginKey(sinkTip))
	}
	c2 := NewCollector()
	c2.Report(tip, sinkTip)
	if c2.Findings()[0].ID != findings[0].ID {
		t.Errorf("finding IDs differ between collectors")
	}
}
