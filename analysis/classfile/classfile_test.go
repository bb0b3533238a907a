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

package classfile_test

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
	"github.com/awslabs/ar-jvm-tools/internal/jasm"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func sampleClass() *jasm.ClassBuilder {
	return jasm.NewClass("com/example/Sample").
		Implements("java/lang/Runnable").
		Annotate(jasm.Ann("com.example.Marker")).
		Field(classfile.AccPrivate, "name", "Ljava/lang/String;", jasm.Ann("com.example.Marker")).
		Method(classfile.AccPublic|classfile.AccStatic, "greet", "(Ljava/lang/String;J)Ljava/lang/String;").
		ParamAnnotation(0, jasm.Ann("com.example.UserProvided")).
		Annotate(jasm.Ann("com.example.CopyColorsTo",
			jasm.EnumElement("onIntersection", "com.example.CopyColorsTo$OnIntersection", "OVERWRITE"))).
		Line(10).
		Ldc("hello é\u0000 \U0001F600").
		Local(bytecode.Aload, 0).
		Invoke(bytecode.Invokevirtual, "java/lang/String", "concat", "(Ljava/lang/String;)Ljava/lang/String;").
		Line(11).
		Op(bytecode.Areturn).
		End().
		Method(classfile.AccPublic, "run", "()V").
		Op(bytecode.Return).
		End()
}

func TestEncodeParseRoundTrip(t *testing.T) {
	built := sampleClass().Build()
	b, err := classfile.Encode(built)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	parsed, err := classfile.Parse(b)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	opts := []cmp.Option{
		cmpopts.IgnoreFields(classfile.ClassFile{}, "Pool"),
		cmpopts.EquateEmpty(),
	}
	if diff := cmp.Diff(built, parsed, opts...); diff != "" {
		t.Errorf("round trip mismatch (-built +parsed):\n%s", diff)
	}

	greet := parsed.Method("greet", "(Ljava/lang/String;J)Ljava/lang/String;")
	if greet == nil {
		t.Fatalf("method greet not found")
	}
	if got := greet.ParameterAnnotationsOf(0)[0].SimpleName(); got != "UserProvided" {
		t.Errorf("parameter annotation got = %q, want UserProvided", got)
	}
	v, ok := greet.Annotations[0].Element("onIntersection")
	if !ok || v.EnumName != "OVERWRITE" {
		t.Errorf("enum element got = %+v, want OVERWRITE", v)
	}
	if line := greet.Code.LineAt(3); line != 10 {
		t.Errorf("LineAt(3) got = %d, want 10", line)
	}
	if line := greet.Code.LineAt(6); line != 11 {
		t.Errorf("LineAt(6) got = %d, want 11", line)
	}
	insns, err := bytecode.Decode(greet.Code.Bytes)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	_, s, err := parsed.Pool.LoadableType(insns[0].Index)
	if err != nil || s != `"hello é\x00 😀"` {
		t.Errorf("constant got = %s (%v)", s, err)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := classfile.Parse([]byte{0xCA, 0xFE}); !errors.Is(err, classfile.ErrMalformed) {
		t.Errorf("Parse(truncated) error = %v, want ErrMalformed", err)
	}
	b, _ := sampleClass().Bytes()
	if _, err := classfile.Parse(b[:len(b)-3]); !errors.Is(err, classfile.ErrMalformed) {
		t.Errorf("Parse(cut) error = %v, want ErrMalformed", err)
	}
}

func TestParseMethodDescriptor(t *testing.T) {
	tests := []struct {
		desc    string
		params  []string
		ret     string
		slots   int
		wantErr bool
	}{
		{"()V", nil, "V", 0, false},
		{"(IJ[Ljava/lang/String;D)Ljava/lang/Object;", []string{"I", "J", "[Ljava/lang/String;", "D"},
			"Ljava/lang/Object;", 6, false},
		{"([[I)[B", []string{"[[I"}, "[B", 1, false},
		{"(L)V", nil, "", 0, true},
		{"I", nil, "", 0, true},
		{"(I", nil, "", 0, true},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			md, err := classfile.ParseMethodDescriptor(test.desc)
			if (err != nil) != test.wantErr {
				t.Fatalf("ParseMethodDescriptor() error = %v, wantErr %v", err, test.wantErr)
			}
			if err != nil {
				return
			}
			if diff := cmp.Diff(test.params, md.Params, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("params mismatch (-want +got):\n%s", diff)
			}
			if md.Return != test.ret {
				t.Errorf("Return got = %q, want %q", md.Return, test.ret)
			}
			if md.ArgSlots() != test.slots {
				t.Errorf("ArgSlots() got = %d, want %d", md.ArgSlots(), test.slots)
			}
		})
	}
}

func TestPrettyType(t *testing.T) {
	tests := map[string]string{
		"I":                   "int",
		"[[J":                 "long[][]",
		"Ljava/lang/String;":  "java.lang.String",
		"[Ljava/lang/Object;": "java.lang.Object[]",
	}
	for desc, want := range tests {
		if got := classfile.PrettyType(desc); got != want {
			t.Errorf("PrettyType(%q) got = %q, want %q", desc, got, want)
		}
	}
}

func hierarchyPool(t *testing.T) *classfile.ClassPool {
	pool, err := classfile.NewClassPool(nil)
	if err != nil {
		t.Fatalf("NewClassPool() error = %v", err)
	}
	pool.Register(
		jasm.NewClass("com/example/Base").
			Method(classfile.AccPublic, "run", "()V").Op(bytecode.Return).End().
			Build(),
		jasm.NewClass("com/example/Left").Super("com/example/Base").Build(),
		jasm.NewClass("com/example/Right").Super("com/example/Base").
			Field(classfile.AccPublic, "x", "I").
			Method(classfile.AccPublic, "run", "()V").Op(bytecode.Return).End().
			Build(),
		jasm.NewClass("com/example/Service").Interface().
			AbstractMethod(classfile.AccPublic, "serve", "()V").End().
			Build(),
		jasm.NewClass("com/example/ServiceImpl").Implements("com/example/Service").
			Method(classfile.AccPublic, "serve", "()V").Op(bytecode.Return).End().
			Build(),
	)
	return pool
}

func TestClassPoolHierarchy(t *testing.T) {
	pool := hierarchyPool(t)
	if got := pool.CommonSuperclass("com/example/Left", "com/example/Right"); got != "com/example/Base" {
		t.Errorf("CommonSuperclass() got = %s, want com/example/Base", got)
	}
	if got := pool.CommonSuperclass("com/example/Left", "java/lang/String"); got != classfile.ObjectClass {
		t.Errorf("CommonSuperclass() got = %s, want java/lang/Object", got)
	}
	m, err := pool.FindMethod("com/example/Left", "run", "()V")
	if err != nil || m.Owner != "com/example/Base" {
		t.Errorf("FindMethod(Left.run) got = %v, %v, want Base.run", m, err)
	}
	m, err = pool.FindMethod("com/example/Right", "run", "()V")
	if err != nil || m.Owner != "com/example/Right" {
		t.Errorf("FindMethod(Right.run) got = %v, %v, want Right.run", m, err)
	}
	if _, err := pool.FindMethod("com/example/Left", "missing", "()V"); !errors.Is(err, classfile.ErrMethodNotFound) {
		t.Errorf("FindMethod(missing) error = %v, want ErrMethodNotFound", err)
	}
	if _, err := pool.FindMethod("com/example/Missing", "run", "()V"); !errors.Is(err, classfile.ErrClassNotFound) {
		t.Errorf("FindMethod(Missing.run) error = %v, want ErrClassNotFound", err)
	}
	if f, err := pool.FindField("com/example/Right", "x"); err != nil || f.Descriptor != "I" {
		t.Errorf("FindField() got = %v, %v", f, err)
	}
	if _, err := pool.FindField("com/example/Left", "x"); !errors.Is(err, classfile.ErrFieldNotFound) {
		t.Errorf("FindField(Left.x) error = %v, want ErrFieldNotFound", err)
	}
	impl := pool.SingleImplementation("com/example/Service", "serve", "()V")
	if impl == nil || impl.Owner != "com/example/ServiceImpl" {
		t.Errorf("SingleImplementation(Service.serve) got = %v, want ServiceImpl.serve", impl)
	}
	if impl := pool.SingleImplementation("com/example/Base", "run", "()V"); impl != nil {
		t.Errorf("SingleImplementation(Base.run) got = %v, want nil (two implementations)", impl)
	}
}

func TestClassPoolFromDirAndJar(t *testing.T) {
	dir := t.TempDir()
	classDir := filepath.Join(dir, "classes")
	b, err := sampleClass().Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	if err := os.MkdirAll(filepath.Join(classDir, "com", "example"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(classDir, "com", "example", "Sample.class"), b, 0o600); err != nil {
		t.Fatal(err)
	}

	other, err := jasm.NewClass("org/other/Lib").Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	jarPath := filepath.Join(dir, "lib.jar")
	f, err := os.Create(jarPath)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, _ := zw.Create("org/other/Lib.class")
	_, _ = w.Write(other)
	_ = zw.Close()
	_ = f.Close()

	pool, err := classfile.NewClassPool([]string{classDir, jarPath})
	if err != nil {
		t.Fatalf("NewClassPool() error = %v", err)
	}
	defer pool.Close()

	names, err := pool.ClassNames()
	if err != nil {
		t.Fatalf("ClassNames() error = %v", err)
	}
	if diff := cmp.Diff([]string{"com/example/Sample", "org/other/Lib"}, names); diff != "" {
		t.Errorf("ClassNames() mismatch (-want +got):\n%s", diff)
	}
	classes, err := pool.LoadAll(2)
	if err != nil || len(classes) != 2 {
		t.Fatalf("LoadAll() got %d classes, error = %v", len(classes), err)
	}
	if classes[1].Name != "org/other/Lib" {
		t.Errorf("LoadAll()[1] got = %s, want org/other/Lib", classes[1].Name)
	}
	if _, err := pool.Get("com/example/Nope"); !errors.Is(err, classfile.ErrClassNotFound) {
		t.Errorf("Get(Nope) error = %v, want ErrClassNotFound", err)
	}
	if _, err := classfile.NewClassPool([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Errorf("expected an error for a missing class path entry")
	}
}
