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

package bytecode_test

import (
	"errors"
	"testing"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
	"github.com/awslabs/ar-jvm-tools/internal/jasm"
	"github.com/google/go-cmp/cmp"
)

const static = classfile.AccPublic | classfile.AccStatic

func TestDecodeSwitches(t *testing.T) {
	cf := jasm.NewClass("test/Switch").
		Method(static, "f", "(I)I").
		Local(bytecode.Iload, 0).
		TableSwitch(1, "dflt", "one", "two").
		Label("one").Int(10).Op(bytecode.Ireturn).
		Label("two").Int(20).Op(bytecode.Ireturn).
		Label("dflt").
		Local(bytecode.Iload, 0).
		LookupSwitch("end", []int32{-5, 1000}, []string{"one", "two"}).
		Label("end").
		Iinc(300, 1000).
		Int(0).Op(bytecode.Ireturn).
		End().Build()
	insns, err := bytecode.Decode(cf.Methods[0].Code.Bytes)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	ops := make([]bytecode.Opcode, len(insns))
	for i, insn := range insns {
		ops[i] = insn.Op
	}
	want := []bytecode.Opcode{
		bytecode.Iload0, bytecode.Tableswitch,
		bytecode.Bipush, bytecode.Ireturn,
		bytecode.Bipush, bytecode.Ireturn,
		bytecode.Iload0, bytecode.Lookupswitch,
		bytecode.Iinc,
		bytecode.Iconst0, bytecode.Ireturn,
	}
	if diff := cmp.Diff(want, ops); diff != "" {
		t.Fatalf("opcodes mismatch (-want +got):\n%s", diff)
	}
	table := insns[1]
	if diff := cmp.Diff([]int32{1, 2}, table.Keys); diff != "" {
		t.Errorf("tableswitch keys mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{insns[6].PC, insns[2].PC, insns[4].PC}, table.BranchTargets()); diff != "" {
		t.Errorf("tableswitch targets mismatch (-want +got):\n%s", diff)
	}
	lookup := insns[7]
	if diff := cmp.Diff([]int32{-5, 1000}, lookup.Keys); diff != "" {
		t.Errorf("lookupswitch keys mismatch (-want +got):\n%s", diff)
	}
	if lookup.Branch != insns[8].PC {
		t.Errorf("lookupswitch default got = %d, want %d", lookup.Branch, insns[8].PC)
	}
	iinc := insns[8]
	if !iinc.Wide || iinc.Local != 300 || iinc.Const != 1000 || iinc.Len != 6 {
		t.Errorf("wide iinc decoded as %+v", iinc)
	}
}

func TestDecodeUnknownOpcode(t *testing.T) {
	_, err := bytecode.Decode([]byte{byte(bytecode.Nop), 0xfe})
	if !errors.Is(err, bytecode.ErrUnsupportedOpcode) {
		t.Errorf("Decode() error = %v, want ErrUnsupportedOpcode", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		{"sipush", []byte{byte(bytecode.Sipush), 1}},
		{"iinc without increment", []byte{byte(bytecode.Iinc), 1}},
		{"iinc without local", []byte{byte(bytecode.Iinc)}},
		{"multianewarray without dimensions", []byte{byte(bytecode.Multianewarray), 0, 1}},
		{"wide iinc", []byte{byte(bytecode.Wide), byte(bytecode.Iinc), 0, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := bytecode.Decode(tt.code); !errors.Is(err, classfile.ErrMalformed) {
				t.Errorf("Decode() error = %v, want ErrMalformed", err)
			}
		})
	}
	insns, err := bytecode.Decode([]byte{byte(bytecode.Iinc), 1, 0xff})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if insns[0].Local != 1 || insns[0].Const != -1 {
		t.Errorf("Decode(iinc 1 -1) got = %+v", insns[0])
	}
}

func diamond() *classfile.ClassFile {
	return jasm.NewClass("test/Diamond").
		Method(static, "max", "(II)I").
		Local(bytecode.Iload, 0).
		Local(bytecode.Iload, 1).
		Jump(bytecode.IfIcmplt, "else").
		Local(bytecode.Iload, 0).
		Local(bytecode.Istore, 2).
		Jump(bytecode.Goto, "join").
		Label("else").
		Local(bytecode.Iload, 1).
		Local(bytecode.Istore, 2).
		Label("join").
		Local(bytecode.Iload, 2).
		Op(bytecode.Ireturn).
		End().Build()
}

func TestDiamondCFG(t *testing.T) {
	cf := diamond()
	cfg, err := bytecode.BuildCFG(cf.Methods[0].Code)
	if err != nil {
		t.Fatalf("BuildCFG() error = %v", err)
	}
	if len(cfg.Blocks) != 4 {
		t.Fatalf("got %d blocks, want 4", len(cfg.Blocks))
	}
	if cfg.Entry().Index != 0 || cfg.Dom.Root() != 0 {
		t.Errorf("entry block got = %d, want 0", cfg.Entry().Index)
	}
	if diff := cmp.Diff([]int{2, 1}, cfg.Blocks[0].Succs); diff != "" {
		t.Errorf("entry successors mismatch (-want +got):\n%s", diff)
	}
	idom, ok := cfg.Dom.ImmediateDominator(3)
	if !ok || idom != 0 {
		t.Errorf("ImmediateDominator(join) got = %d, want 0", idom)
	}
	for _, b := range cfg.Blocks {
		if cfg.IsLoopHeader(b.Index) {
			t.Errorf("block %d should not be a loop header", b.Index)
		}
	}
}

func TestLoopCFG(t *testing.T) {
	cf := jasm.NewClass("test/Loop").
		Method(static, "count", "(I)I").
		Int(0).Local(bytecode.Istore, 1).
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
	cfg, err := bytecode.BuildCFG(cf.Methods[0].Code)
	if err != nil {
		t.Fatalf("BuildCFG() error = %v", err)
	}
	var headers []int
	for _, b := range cfg.Blocks {
		if cfg.IsLoopHeader(b.Index) {
			headers = append(headers, b.Index)
		}
	}
	// the block of the goto jumps back to the head, which dominates it
	if diff := cmp.Diff([]int{1}, headers); diff != "" {
		t.Errorf("loop headers mismatch (-want +got):\n%s", diff)
	}
	if !cfg.Dom.Dominates(1, 2) || cfg.Dom.Dominates(2, 1) {
		t.Errorf("the loop head should dominate the loop body")
	}
}

func TestFramesWideValues(t *testing.T) {
	cf := jasm.NewClass("test/Wide").
		Method(static, "f", "(JI)J").
		Op(bytecode.Lconst1).
		Local(bytecode.Lload, 0).
		Op(bytecode.Ladd).
		Local(bytecode.Lstore, 3).
		Local(bytecode.Lload, 3).
		Op(bytecode.Lreturn).
		End().Build()
	m := cf.Methods[0]
	cfg, err := bytecode.BuildCFG(m.Code)
	if err != nil {
		t.Fatalf("BuildCFG() error = %v", err)
	}
	fs, err := bytecode.ComputeFrames(m, cfg, cf.Pool, nil)
	if err != nil {
		t.Fatalf("ComputeFrames() error = %v", err)
	}
	entry := fs.In[0]
	if diff := cmp.Diff([]bytecode.Type{bytecode.Long, bytecode.Top, bytecode.Int, bytecode.Top, bytecode.Top},
		entry.Locals); diff != "" {
		t.Errorf("entry locals mismatch (-want +got):\n%s", diff)
	}
	afterLconst := fs.Out[0]
	if diff := cmp.Diff([]bytecode.Type{bytecode.Long, bytecode.Top}, afterLconst.Stack); diff != "" {
		t.Errorf("stack after lconst_1 mismatch (-want +got):\n%s", diff)
	}
	if top, _ := afterLconst.StackTop(); top != bytecode.Long {
		t.Errorf("StackTop() got = %v, want long", top)
	}
	if got := fs.TypeAfter(2); got != bytecode.Long {
		t.Errorf("TypeAfter(ladd) got = %v, want long", got)
	}
	afterStore := fs.Out[3]
	if afterStore.Locals[3] != bytecode.Long || afterStore.Locals[4] != bytecode.Top || afterStore.StackSlots() != 0 {
		t.Errorf("frame after lstore_3 got = %+v", afterStore)
	}
}

type fixedHierarchy map[[2]string]string

func (h fixedHierarchy) CommonSuperclass(a, b string) string {
	if s, ok := h[[2]string{a, b}]; ok {
		return s
	}
	if s, ok := h[[2]string{b, a}]; ok {
		return s
	}
	return classfile.ObjectClass
}

func TestFramesJoinReferences(t *testing.T) {
	cf := jasm.NewClass("test/Join").
		Method(static, "pick", "(ZLtest/Left;Ltest/Right;)Ltest/Base;").
		Local(bytecode.Iload, 0).
		Jump(bytecode.Ifeq, "right").
		Local(bytecode.Aload, 1).
		Jump(bytecode.Goto, "join").
		Label("right").
		Local(bytecode.Aload, 2).
		Label("join").
		Op(bytecode.Areturn).
		End().Build()
	m := cf.Methods[0]
	cfg, err := bytecode.BuildCFG(m.Code)
	if err != nil {
		t.Fatalf("BuildCFG() error = %v", err)
	}
	h := fixedHierarchy{{"test/Left", "test/Right"}: "test/Base"}
	fs, err := bytecode.ComputeFrames(m, cfg, cf.Pool, h)
	if err != nil {
		t.Fatalf("ComputeFrames() error = %v", err)
	}
	last := len(cfg.Insns) - 1
	top, _ := fs.In[last].StackTop()
	if top != bytecode.RefOf("Ltest/Base;") {
		t.Errorf("joined type got = %v, want test.Base", top)
	}
}

func TestFramesExceptionHandler(t *testing.T) {
	cf := jasm.NewClass("test/Catch").
		Method(static, "f", "(Ljava/lang/String;)I").
		Label("start").
		Local(bytecode.Aload, 0).
		Invoke(bytecode.Invokestatic, "java/lang/Integer", "parseInt", "(Ljava/lang/String;)I").
		Label("end").
		Op(bytecode.Ireturn).
		Label("handler").
		Local(bytecode.Astore, 1).
		Int(-1).
		Op(bytecode.Ireturn).
		Try("start", "end", "handler", "java/lang/NumberFormatException").
		End().Build()
	m := cf.Methods[0]
	cfg, err := bytecode.BuildCFG(m.Code)
	if err != nil {
		t.Fatalf("BuildCFG() error = %v", err)
	}
	if len(cfg.Blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(cfg.Blocks))
	}
	if diff := cmp.Diff([]int{2}, cfg.Blocks[0].Handlers); diff != "" {
		t.Errorf("handlers mismatch (-want +got):\n%s", diff)
	}
	if !cfg.IsHandler(2) {
		t.Errorf("block 2 should be a handler")
	}
	fs, err := bytecode.ComputeFrames(m, cfg, cf.Pool, nil)
	if err != nil {
		t.Fatalf("ComputeFrames() error = %v", err)
	}
	hf := fs.In[cfg.Blocks[2].Start]
	if diff := cmp.Diff([]bytecode.Type{bytecode.RefOf("Ljava/lang/NumberFormatException;")}, hf.Stack); diff != "" {
		t.Errorf("handler stack mismatch (-want +got):\n%s", diff)
	}
}

func TestSubroutinesRejected(t *testing.T) {
	code := &classfile.Code{Bytes: []byte{byte(bytecode.Jsr), 0, 3, byte(bytecode.Return)}}
	if _, err := bytecode.BuildCFG(code); !errors.Is(err, bytecode.ErrUnsupportedOpcode) {
		t.Errorf("BuildCFG(jsr) error = %v, want ErrUnsupportedOpcode", err)
	}
}
