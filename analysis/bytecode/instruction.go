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

// Package bytecode decodes the instructions of JVM methods, builds their control-flow graphs and computes the types
// of the values in the operand stack and the local variables at every instruction.
package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
)

var (
	// ErrUnsupportedOpcode is returned for instructions that are not valid JVM instructions, or that the analysis
	// cannot handle (subroutines)
	ErrUnsupportedOpcode = errors.New("unsupported opcode")
	// ErrFrame is returned when the types of the stack and locals cannot be computed consistently
	ErrFrame = errors.New("inconsistent frame")
)

// Instruction is a decoded instruction
type Instruction struct {
	PC  int
	Op  Opcode
	Len int
	// Index is the constant pool index of the instructions referencing the pool
	Index uint16
	// Local is the local variable index of loads, stores, iinc and ret
	Local int
	// Const is the immediate value of bipush, sipush and iinc, the array type of newarray and the dimensions of
	// multianewarray
	Const int32
	// Branch is the target of jumps, and the default target of switches
	Branch int
	// Keys and Targets are the cases of switches
	Keys    []int32
	Targets []int
	Wide    bool
}

func (insn Instruction) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d: %s", insn.PC, insn.Op)
	switch {
	case insn.IsSwitch():
		fmt.Fprintf(&b, " default:%d", insn.Branch)
		for i, k := range insn.Keys {
			fmt.Fprintf(&b, " %d:%d", k, insn.Targets[i])
		}
	case insn.IsJump():
		fmt.Fprintf(&b, " %d", insn.Branch)
	case hasLocal(insn.Op):
		fmt.Fprintf(&b, " %d", insn.Local)
		if insn.Op == Iinc {
			fmt.Fprintf(&b, " %d", insn.Const)
		}
	case insn.Op == Bipush || insn.Op == Sipush || insn.Op == Newarray:
		fmt.Fprintf(&b, " %d", insn.Const)
	case insn.Index != 0:
		fmt.Fprintf(&b, " #%d", insn.Index)
	}
	return b.String()
}

// IsJump returns true for conditional and unconditional jumps, excluding switches
func (insn Instruction) IsJump() bool {
	return (insn.Op >= Ifeq && insn.Op <= Jsr) || insn.Op == Ifnull || insn.Op == Ifnonnull ||
		insn.Op == GotoW || insn.Op == JsrW
}

// IsConditional returns true for conditional jumps
func (insn Instruction) IsConditional() bool {
	return (insn.Op >= Ifeq && insn.Op <= IfAcmpne) || insn.Op == Ifnull || insn.Op == Ifnonnull
}

// IsSwitch returns true for tableswitch and lookupswitch
func (insn Instruction) IsSwitch() bool {
	return insn.Op == Tableswitch || insn.Op == Lookupswitch
}

// IsReturn returns true for the return instructions
func (insn Instruction) IsReturn() bool {
	return insn.Op >= Ireturn && insn.Op <= Return
}

// EndsFlow returns true when the next instruction is never executed after this one
func (insn Instruction) EndsFlow() bool {
	return insn.IsReturn() || insn.Op == Athrow || insn.Op == Goto || insn.Op == GotoW || insn.IsSwitch() ||
		insn.Op == Ret
}

// BranchTargets returns the targets of jumps and switches, default first for switches
func (insn Instruction) BranchTargets() []int {
	switch {
	case insn.IsSwitch():
		return append([]int{insn.Branch}, insn.Targets...)
	case insn.IsJump():
		return []int{insn.Branch}
	}
	return nil
}

func hasLocal(op Opcode) bool {
	return (op >= Iload && op <= Aload3) || (op >= Istore && op <= Astore3) || op == Iinc || op == Ret
}

// Decode decodes the instructions of a method body. Invalid opcodes return an error wrapping ErrUnsupportedOpcode.
func Decode(code []byte) ([]Instruction, error) {
	var insns []Instruction
	for pc := 0; pc < len(code); {
		insn, err := decodeOne(code, pc)
		if err != nil {
			return nil, err
		}
		insns = append(insns, insn)
		pc += insn.Len
	}
	return insns, nil
}

// IndexOf returns the index of the instruction at pc in the decoded instructions
func IndexOf(insns []Instruction, pc int) (int, bool) {
	i := sort.Search(len(insns), func(i int) bool { return insns[i].PC >= pc })
	if i < len(insns) && insns[i].PC == pc {
		return i, true
	}
	return i, false
}

func truncated(pc int) error {
	return fmt.Errorf("%w: truncated instruction at %d", classfile.ErrMalformed, pc)
}

//gocyclo:ignore
func decodeOne(code []byte, pc int) (Instruction, error) {
	op := Opcode(code[pc])
	insn := Instruction{PC: pc, Op: op, Len: 1}
	if !op.Valid() {
		return insn, fmt.Errorf("%w: byte %#02x at %d", ErrUnsupportedOpcode, code[pc], pc)
	}
	u1 := func(off int) (int, bool) {
		if pc+off >= len(code) {
			return 0, false
		}
		return int(code[pc+off]), true
	}
	u2 := func(off int) (int, bool) {
		if pc+off+1 >= len(code) {
			return 0, false
		}
		return int(binary.BigEndian.Uint16(code[pc+off:])), true
	}
	s4 := func(off int) (int, bool) {
		if pc+off+3 >= len(code) {
			return 0, false
		}
		return int(int32(binary.BigEndian.Uint32(code[pc+off:]))), true
	}
	ok := true
	var v int
	switch {
	case op == Bipush:
		v, ok = u1(1)
		insn.Const = int32(int8(v))
		insn.Len = 2
	case op == Sipush:
		v, ok = u2(1)
		insn.Const = int32(int16(v))
		insn.Len = 3
	case op == Ldc:
		v, ok = u1(1)
		insn.Index = uint16(v)
		insn.Len = 2
	case op == LdcW || op == Ldc2W:
		v, ok = u2(1)
		insn.Index = uint16(v)
		insn.Len = 3
	case (op >= Iload && op <= Aload) || (op >= Istore && op <= Astore) || op == Ret:
		insn.Local, ok = u1(1)
		insn.Len = 2
	case op >= Iload0 && op <= Aload3:
		insn.Local = int(op-Iload0) % 4
	case op >= Istore0 && op <= Astore3:
		insn.Local = int(op-Istore0) % 4
	case op == Iinc:
		insn.Local, ok = u1(1)
		if ok {
			v, ok = u1(2)
		}
		insn.Const = int32(int8(v))
		insn.Len = 3
	case (op >= Ifeq && op <= Jsr) || op == Ifnull || op == Ifnonnull:
		v, ok = u2(1)
		insn.Branch = pc + int(int16(v))
		insn.Len = 3
	case op == GotoW || op == JsrW:
		v, ok = s4(1)
		insn.Branch = pc + v
		insn.Len = 5
	case op == Tableswitch:
		base := 1 + (3-pc%4)%4
		var low, high int
		insn.Branch, ok = s4(base)
		low, _ = s4(base + 4)
		high, _ = s4(base + 8)
		if !ok || high < low || pc+base+12+4*(high-low+1) > len(code) {
			return insn, truncated(pc)
		}
		for k := low; k <= high; k++ {
			off, _ := s4(base + 12 + 4*(k-low))
			insn.Keys = append(insn.Keys, int32(k))
			insn.Targets = append(insn.Targets, pc+off)
		}
		insn.Branch += pc
		insn.Len = base + 12 + 4*(high-low+1)
	case op == Lookupswitch:
		base := 1 + (3-pc%4)%4
		var n int
		insn.Branch, ok = s4(base)
		n, _ = s4(base + 4)
		if !ok || n < 0 || pc+base+8+8*n > len(code) {
			return insn, truncated(pc)
		}
		for i := 0; i < n; i++ {
			k, _ := s4(base + 8 + 8*i)
			off, _ := s4(base + 12 + 8*i)
			insn.Keys = append(insn.Keys, int32(k))
			insn.Targets = append(insn.Targets, pc+off)
		}
		insn.Branch += pc
		insn.Len = base + 8 + 8*n
	case (op >= Getstatic && op <= Invokestatic) || op == New || op == Anewarray || op == Checkcast ||
		op == Instanceof:
		v, ok = u2(1)
		insn.Index = uint16(v)
		insn.Len = 3
	case op == Invokeinterface || op == Invokedynamic:
		v, ok = u2(1)
		insn.Index = uint16(v)
		insn.Len = 5
		if pc+4 >= len(code) {
			ok = false
		}
	case op == Newarray:
		v, ok = u1(1)
		insn.Const = int32(v)
		insn.Len = 2
	case op == Multianewarray:
		v, ok = u2(1)
		insn.Index = uint16(v)
		if ok {
			v, ok = u1(3)
		}
		insn.Const = int32(v)
		insn.Len = 4
	case op == Wide:
		var inner int
		inner, ok = u1(1)
		insn.Op = Opcode(inner)
		insn.Wide = true
		insn.Local, _ = u2(2)
		switch {
		case insn.Op == Iinc:
			v, ok = u2(4)
			insn.Const = int32(int16(v))
			insn.Len = 6
		case (insn.Op >= Iload && insn.Op <= Aload) || (insn.Op >= Istore && insn.Op <= Astore) || insn.Op == Ret:
			_, ok = u2(2)
			insn.Len = 4
		default:
			return insn, fmt.Errorf("%w: wide %s at %d", ErrUnsupportedOpcode, insn.Op, pc)
		}
	}
	if !ok {
		return insn, truncated(pc)
	}
	return insn, nil
}
