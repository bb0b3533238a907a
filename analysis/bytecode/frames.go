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

package bytecode

import (
	"fmt"

	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
)

// Frames holds the frames before (In) and after (Out) each instruction of a method. Frames of unreachable
// instructions are nil. The Out frame of an instruction that ends the flow of control is the frame after its operands
// have been popped.
type Frames struct {
	In  []*Frame
	Out []*Frame
}

// TypeAfter returns the type of the value on top of the stack once instruction i has executed. When the next
// instruction has been verified with the same stack depth, its frame is used, otherwise the frame computed after i.
func (fs *Frames) TypeAfter(i int) Type {
	out := fs.Out[i]
	if i+1 < len(fs.In) && fs.In[i+1] != nil && out != nil && len(fs.In[i+1].Stack) == len(out.Stack) {
		t, _ := fs.In[i+1].StackTop()
		return t
	}
	if out == nil {
		return Top
	}
	t, _ := out.StackTop()
	return t
}

// EntryFrame returns the frame at the start of a method: the receiver for instance methods followed by the
// parameters, and Top in the other locals
func EntryFrame(m *classfile.Method) (*Frame, error) {
	md, err := classfile.ParseMethodDescriptor(m.Descriptor)
	if err != nil {
		return nil, err
	}
	f := &Frame{}
	if !m.IsStatic() {
		f.Locals = append(f.Locals, RefOf(classfile.TypeOfClass(m.Owner)))
	}
	for _, p := range md.Params {
		t := TypeOfDescriptor(p)
		f.Locals = append(f.Locals, t)
		if t.IsWide() {
			f.Locals = append(f.Locals, Top)
		}
	}
	if m.Code != nil {
		for len(f.Locals) < int(m.Code.MaxLocals) {
			f.Locals = append(f.Locals, Top)
		}
	}
	return f, nil
}

// ComputeFrames computes the frames of the method by abstract interpretation of the instructions over their
// verification types. References are joined with the hierarchy, which may be nil, in which case the join of two
// different classes is java/lang/Object.
func ComputeFrames(m *classfile.Method, cfg *CFG, pool *classfile.ConstantPool, h classfile.Hierarchy) (*Frames,
	error) {
	entry, err := EntryFrame(m)
	if err != nil {
		return nil, err
	}
	n := len(cfg.Insns)
	fs := &Frames{In: make([]*Frame, n), Out: make([]*Frame, n)}
	fs.In[0] = entry
	handlers := make([][]classfile.Handler, n)
	for _, hs := range cfg.HandlerOf {
		for _, hd := range hs {
			for i, insn := range cfg.Insns {
				if hd.Covers(insn.PC) {
					handlers[i] = append(handlers[i], hd)
				}
			}
		}
	}

	worklist := []int{0}
	queued := map[int]bool{0: true}
	propagate := func(from int, to int, f *Frame) error {
		if to >= n {
			return fmt.Errorf("%w: flow falls off the end of the method at %d", ErrFrame, cfg.Insns[from].PC)
		}
		changed := false
		if fs.In[to] == nil {
			fs.In[to] = f.Copy()
			changed = true
		} else {
			merged, c, err := mergeFrames(h, fs.In[to], f)
			if err != nil {
				return fmt.Errorf("at %d: %w", cfg.Insns[to].PC, err)
			}
			fs.In[to] = merged
			changed = c
		}
		if changed && !queued[to] {
			queued[to] = true
			worklist = append(worklist, to)
		}
		return nil
	}

	for steps := 0; len(worklist) > 0; steps++ {
		if steps > 64*n+1024 {
			return nil, fmt.Errorf("%w: frame computation does not converge", ErrFrame)
		}
		i := worklist[0]
		worklist = worklist[1:]
		queued[i] = false
		insn := cfg.Insns[i]
		out, err := transfer(insn, fs.In[i], pool)
		if err != nil {
			return nil, err
		}
		fs.Out[i] = out
		for _, hd := range handlers[i] {
			hi, _ := IndexOf(cfg.Insns, int(hd.Handler))
			catch := "Ljava/lang/Throwable;"
			if hd.CatchType != "" {
				catch = classfile.TypeOfClass(hd.CatchType)
			}
			locals, _ := mergeTypes(h, fs.In[i].Locals, out.Locals)
			if err := propagate(i, hi, &Frame{Locals: locals, Stack: []Type{RefOf(catch)}}); err != nil {
				return nil, err
			}
		}
		for _, target := range insn.BranchTargets() {
			ti, _ := IndexOf(cfg.Insns, target)
			if err := propagate(i, ti, out); err != nil {
				return nil, err
			}
		}
		if !insn.EndsFlow() {
			if err := propagate(i, i+1, out); err != nil {
				return nil, err
			}
		}
	}
	return fs, nil
}

func mergeFrames(h classfile.Hierarchy, a, b *Frame) (*Frame, bool, error) {
	if len(a.Stack) != len(b.Stack) {
		return nil, false, fmt.Errorf("%w: stack sizes %d and %d differ", ErrFrame, len(a.Stack), len(b.Stack))
	}
	locals, c1 := mergeTypes(h, a.Locals, b.Locals)
	stack, c2 := mergeTypes(h, a.Stack, b.Stack)
	for i, t := range stack {
		if t.Kind == KindTop && a.Stack[i].Kind != KindTop {
			return nil, false, fmt.Errorf("%w: incompatible stack slot %d: %s and %s", ErrFrame, i, a.Stack[i],
				b.Stack[i])
		}
	}
	return &Frame{Locals: locals, Stack: stack}, c1 || c2, nil
}

// mergeTypes joins the types slot by slot; the boolean is true when the result differs from a
func mergeTypes(h classfile.Hierarchy, a, b []Type) ([]Type, bool) {
	res := make([]Type, len(a))
	changed := false
	for i := range a {
		t := Top
		if i < len(b) {
			t = Join(h, a[i], b[i])
		}
		// the second slot of a wide value is only meaningful if the first slot is kept
		if i > 0 && a[i-1].IsWide() && !res[i-1].IsWide() {
			t = Top
		}
		if t != a[i] {
			changed = true
		}
		res[i] = t
	}
	return res, changed
}

// state is the mutable frame used by the transfer function
type state struct {
	f   *Frame
	pc  int
	err error
}

func (s *state) push(ts ...Type) {
	for _, t := range ts {
		s.f.Stack = append(s.f.Stack, t)
		if t.IsWide() {
			s.f.Stack = append(s.f.Stack, Top)
		}
	}
}

// pop pops n slots and returns them, bottom first
func (s *state) pop(n int) []Type {
	if s.err != nil {
		return make([]Type, n)
	}
	if len(s.f.Stack) < n {
		s.err = fmt.Errorf("%w: stack underflow at %d", ErrFrame, s.pc)
		return make([]Type, n)
	}
	res := append([]Type{}, s.f.Stack[len(s.f.Stack)-n:]...)
	s.f.Stack = s.f.Stack[:len(s.f.Stack)-n]
	return res
}

func (s *state) load(idx int, size int) Type {
	if idx+size > len(s.f.Locals) {
		s.err = fmt.Errorf("%w: local %d out of range at %d", ErrFrame, idx, s.pc)
		return Top
	}
	return s.f.Locals[idx]
}

func (s *state) store(idx int, t Type) {
	size := t.Size()
	for idx+size > len(s.f.Locals) {
		s.f.Locals = append(s.f.Locals, Top)
	}
	if idx > 0 && s.f.Locals[idx-1].IsWide() {
		s.f.Locals[idx-1] = Top
	}
	s.f.Locals[idx] = t
	if size == 2 {
		s.f.Locals[idx+1] = Top
	}
}

func arrayComponent(t Type) Type {
	if t.Kind == KindRef && len(t.Desc) > 1 && t.Desc[0] == '[' {
		return TypeOfDescriptor(t.Desc[1:])
	}
	return Object
}

var newarrayTypes = map[int32]string{4: "[Z", 5: "[C", 6: "[F", 7: "[D", 8: "[B", 9: "[S", 10: "[I", 11: "[J"}

// NewarrayType returns the descriptor of the array created by newarray with the given array type code
func NewarrayType(atype int32) (string, bool) {
	d, ok := newarrayTypes[atype]
	return d, ok
}

//gocyclo:ignore
func transfer(insn Instruction, in *Frame, pool *classfile.ConstantPool) (*Frame, error) {
	s := &state{f: in.Copy(), pc: insn.PC}
	op := insn.Op
	switch {
	case op == Nop:
	case op == AconstNull:
		s.push(Null)
	case op >= IconstM1 && op <= Iconst5, op == Bipush, op == Sipush:
		s.push(Int)
	case op == Lconst0 || op == Lconst1:
		s.push(Long)
	case op >= Fconst0 && op <= Fconst2:
		s.push(Float)
	case op == Dconst0 || op == Dconst1:
		s.push(Double)
	case op == Ldc || op == LdcW || op == Ldc2W:
		desc, _, err := pool.LoadableType(insn.Index)
		if err != nil {
			return nil, err
		}
		s.push(TypeOfDescriptor(desc))
	case op == Iload || (op >= Iload0 && op <= Iload3):
		s.load(insn.Local, 1)
		s.push(Int)
	case op == Lload || (op >= Lload0 && op <= Lload3):
		s.load(insn.Local, 2)
		s.push(Long)
	case op == Fload || (op >= Fload0 && op <= Fload3):
		s.load(insn.Local, 1)
		s.push(Float)
	case op == Dload || (op >= Dload0 && op <= Dload3):
		s.load(insn.Local, 2)
		s.push(Double)
	case op == Aload || (op >= Aload0 && op <= Aload3):
		s.push(s.load(insn.Local, 1))
	case op == Iaload || op == Baload || op == Caload || op == Saload:
		s.pop(2)
		s.push(Int)
	case op == Laload:
		s.pop(2)
		s.push(Long)
	case op == Faload:
		s.pop(2)
		s.push(Float)
	case op == Daload:
		s.pop(2)
		s.push(Double)
	case op == Aaload:
		ts := s.pop(2)
		s.push(arrayComponent(ts[0]))
	case op == Istore || (op >= Istore0 && op <= Istore3):
		s.pop(1)
		s.store(insn.Local, Int)
	case op == Fstore || (op >= Fstore0 && op <= Fstore3):
		s.pop(1)
		s.store(insn.Local, Float)
	case op == Lstore || (op >= Lstore0 && op <= Lstore3):
		s.pop(2)
		s.store(insn.Local, Long)
	case op == Dstore || (op >= Dstore0 && op <= Dstore3):
		s.pop(2)
		s.store(insn.Local, Double)
	case op == Astore || (op >= Astore0 && op <= Astore3):
		ts := s.pop(1)
		s.store(insn.Local, ts[0])
	case op == Lastore || op == Dastore:
		s.pop(4)
	case op >= Iastore && op <= Sastore:
		s.pop(3)
	case op == Pop:
		s.pop(1)
	case op == Pop2:
		s.pop(2)
	case op == Dup:
		ts := s.pop(1)
		s.f.Stack = append(s.f.Stack, ts[0], ts[0])
	case op == DupX1:
		ts := s.pop(2)
		s.f.Stack = append(s.f.Stack, ts[1], ts[0], ts[1])
	case op == DupX2:
		ts := s.pop(3)
		s.f.Stack = append(s.f.Stack, ts[2], ts[0], ts[1], ts[2])
	case op == Dup2:
		ts := s.pop(2)
		s.f.Stack = append(s.f.Stack, ts[0], ts[1], ts[0], ts[1])
	case op == Dup2X1:
		ts := s.pop(3)
		s.f.Stack = append(s.f.Stack, ts[1], ts[2], ts[0], ts[1], ts[2])
	case op == Dup2X2:
		ts := s.pop(4)
		s.f.Stack = append(s.f.Stack, ts[2], ts[3], ts[0], ts[1], ts[2], ts[3])
	case op == Swap:
		ts := s.pop(2)
		s.f.Stack = append(s.f.Stack, ts[1], ts[0])
	case op == Iadd || op == Isub || op == Imul || op == Idiv || op == Irem || op == Ishl || op == Ishr ||
		op == Iushr || op == Iand || op == Ior || op == Ixor:
		s.pop(2)
		s.push(Int)
	case op == Ladd || op == Lsub || op == Lmul || op == Ldiv || op == Lrem || op == Land || op == Lor ||
		op == Lxor:
		s.pop(4)
		s.push(Long)
	case op == Lshl || op == Lshr || op == Lushr:
		s.pop(3)
		s.push(Long)
	case op == Fadd || op == Fsub || op == Fmul || op == Fdiv || op == Frem:
		s.pop(2)
		s.push(Float)
	case op == Dadd || op == Dsub || op == Dmul || op == Ddiv || op == Drem:
		s.pop(4)
		s.push(Double)
	case op == Ineg:
		s.pop(1)
		s.push(Int)
	case op == Lneg:
		s.pop(2)
		s.push(Long)
	case op == Fneg:
		s.pop(1)
		s.push(Float)
	case op == Dneg:
		s.pop(2)
		s.push(Double)
	case op == Iinc:
		s.load(insn.Local, 1)
		s.store(insn.Local, Int)
	case op == I2l || op == F2l:
		s.pop(1)
		s.push(Long)
	case op == I2f:
		s.pop(1)
		s.push(Float)
	case op == I2d || op == F2d:
		s.pop(1)
		s.push(Double)
	case op == L2i || op == D2i:
		s.pop(2)
		s.push(Int)
	case op == L2f || op == D2f:
		s.pop(2)
		s.push(Float)
	case op == L2d:
		s.pop(2)
		s.push(Double)
	case op == D2l:
		s.pop(2)
		s.push(Long)
	case op == F2i || op == I2b || op == I2c || op == I2s:
		s.pop(1)
		s.push(Int)
	case op == Lcmp || op == Dcmpl || op == Dcmpg:
		s.pop(4)
		s.push(Int)
	case op == Fcmpl || op == Fcmpg:
		s.pop(2)
		s.push(Int)
	case op >= Ifeq && op <= Ifle, op == Ifnull, op == Ifnonnull, op == Tableswitch, op == Lookupswitch,
		op == Ireturn, op == Freturn, op == Areturn, op == Athrow, op == Monitorenter, op == Monitorexit:
		s.pop(1)
	case op >= IfIcmpeq && op <= IfAcmpne:
		s.pop(2)
	case op == Lreturn || op == Dreturn:
		s.pop(2)
	case op == Goto || op == GotoW || op == Return:
	case op == Getstatic || op == Putstatic || op == Getfield || op == Putfield:
		ref, err := pool.MemberRef(insn.Index)
		if err != nil {
			return nil, err
		}
		t := TypeOfDescriptor(ref.Descriptor)
		switch op {
		case Getstatic:
			s.push(t)
		case Putstatic:
			s.pop(t.Size())
		case Getfield:
			s.pop(1)
			s.push(t)
		case Putfield:
			s.pop(t.Size() + 1)
		}
	case op >= Invokevirtual && op <= Invokedynamic:
		var desc string
		if op == Invokedynamic {
			_, d, err := pool.InvokeDynamic(insn.Index)
			if err != nil {
				return nil, err
			}
			desc = d
		} else {
			ref, err := pool.MemberRef(insn.Index)
			if err != nil {
				return nil, err
			}
			desc = ref.Descriptor
		}
		md, err := classfile.ParseMethodDescriptor(desc)
		if err != nil {
			return nil, err
		}
		n := md.ArgSlots()
		if op != Invokestatic && op != Invokedynamic {
			n++
		}
		s.pop(n)
		if md.Return != "V" {
			s.push(TypeOfDescriptor(md.Return))
		}
	case op == New:
		class, err := pool.ClassName(insn.Index)
		if err != nil {
			return nil, err
		}
		s.push(RefOf(classfile.TypeOfClass(class)))
	case op == Newarray:
		d, ok := NewarrayType(insn.Const)
		if !ok {
			return nil, fmt.Errorf("%w: invalid array type %d at %d", classfile.ErrMalformed, insn.Const, insn.PC)
		}
		s.pop(1)
		s.push(RefOf(d))
	case op == Anewarray:
		class, err := pool.ClassName(insn.Index)
		if err != nil {
			return nil, err
		}
		s.pop(1)
		s.push(RefOf("[" + classfile.TypeOfClass(class)))
	case op == Arraylength || op == Instanceof:
		s.pop(1)
		s.push(Int)
	case op == Checkcast:
		class, err := pool.ClassName(insn.Index)
		if err != nil {
			return nil, err
		}
		s.pop(1)
		s.push(RefOf(classfile.TypeOfClass(class)))
	case op == Multianewarray:
		class, err := pool.ClassName(insn.Index)
		if err != nil {
			return nil, err
		}
		s.pop(int(insn.Const))
		s.push(RefOf(class))
	default:
		return nil, fmt.Errorf("%w: %s at %d", ErrUnsupportedOpcode, op, insn.PC)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.f, nil
}
