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
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
)

// ErrFrameMismatch is returned when the abstract state of the interpreter disagrees with the verified frames of the
// method
var ErrFrameMismatch = errors.New("interpreter state does not match the verified frame")

// StepKind is the outcome of interpreting one instruction
type StepKind uint8

const (
	// StepContinue means the flow continues with the next instruction or the successors of the block
	StepContinue StepKind = iota
	// StepReturned means the method returned, with a value or not
	StepReturned
	// StepThrown means an exception was thrown explicitly
	StepThrown
	// StepUnsupported means the instruction cannot be interpreted
	StepUnsupported
)

// StepResult is the result of interpreting one instruction. Value is the returned or thrown value, NoNode for
// void returns.
type StepResult struct {
	Kind  StepKind
	Value NodeID
}

// state is the abstract state of the interpreter: the node in each local slot and the nodes on the stack.
// Wide values take two local slots, the second being NoNode, but only one stack entry.
type state struct {
	locals []NodeID
	stack  []NodeID
}

func (s state) copy() state {
	return state{locals: append([]NodeID{}, s.locals...), stack: append([]NodeID{}, s.stack...)}
}

// key identifies the state by the identity of the nodes it holds
func (s state) key() string {
	var b strings.Builder
	for _, id := range s.locals {
		b.WriteString(strconv.Itoa(int(id)))
		b.WriteByte(',')
	}
	b.WriteByte('|')
	for _, id := range s.stack {
		b.WriteString(strconv.Itoa(int(id)))
		b.WriteByte(',')
	}
	return b.String()
}

// blockInterpreter runs the instructions of one basic block over a state
type blockInterpreter struct {
	mb      *methodBuilder
	st      state
	created []NodeID
	insn    bytecode.Instruction
	index   int
}

func (bi *blockInterpreter) pos() Position {
	return bi.mb.positionOf(bi.insn)
}

func (bi *blockInterpreter) newNode(n *Node) NodeID {
	n.Pos = bi.pos()
	id := bi.mb.arena.add(n)
	bi.created = append(bi.created, id)
	return id
}

func (bi *blockInterpreter) constant(key string, desc string, t bytecode.Type) NodeID {
	id, created := bi.mb.arena.interned(key, func() *Node {
		return &Node{Kind: Constant, Description: desc, Type: t, Op: bi.insn.Op, Pos: bi.pos()}
	})
	if created {
		bi.created = append(bi.created, id)
	}
	return id
}

func (bi *blockInterpreter) push(id NodeID) {
	bi.st.stack = append(bi.st.stack, id)
}

func (bi *blockInterpreter) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s at %s in %s", ErrFrameMismatch, fmt.Sprintf(format, args...), bi.insn,
		bi.mb.method)
}

// pop pops n values
func (bi *blockInterpreter) pop(n int) ([]NodeID, error) {
	if len(bi.st.stack) < n {
		return nil, bi.errorf("stack underflow")
	}
	k := len(bi.st.stack) - n
	vs := append([]NodeID{}, bi.st.stack[k:]...)
	bi.st.stack = bi.st.stack[:k]
	return vs, nil
}

// popSlots pops the values occupying the n top slots of the stack, bottom first. It fails if that would split a
// wide value.
func (bi *blockInterpreter) popSlots(n int) ([]NodeID, error) {
	k := len(bi.st.stack)
	for slots := 0; slots < n; {
		if k == 0 {
			return nil, bi.errorf("stack underflow")
		}
		k--
		slots += bi.mb.arena.Node(bi.st.stack[k]).Type.Size()
		if slots > n {
			return nil, bi.errorf("splitting a wide value")
		}
	}
	vs := append([]NodeID{}, bi.st.stack[k:]...)
	bi.st.stack = bi.st.stack[:k]
	return vs, nil
}

func (bi *blockInterpreter) pushAll(groups ...[]NodeID) {
	for _, g := range groups {
		bi.st.stack = append(bi.st.stack, g...)
	}
}

func (bi *blockInterpreter) load(slot int) error {
	if slot >= len(bi.st.locals) || bi.st.locals[slot] == NoNode {
		return bi.errorf("load from empty local %d", slot)
	}
	bi.push(bi.st.locals[slot])
	return nil
}

func (bi *blockInterpreter) store(slot int, id NodeID) {
	size := bi.mb.arena.Node(id).Type.Size()
	for len(bi.st.locals) < slot+size {
		bi.st.locals = append(bi.st.locals, NoNode)
	}
	// overwriting the second half of a wide value invalidates it
	if slot > 0 && bi.st.locals[slot-1] != NoNode && bi.mb.arena.Node(bi.st.locals[slot-1]).Type.IsWide() {
		bi.st.locals[slot-1] = NoNode
	}
	bi.st.locals[slot] = id
	if size == 2 {
		bi.st.locals[slot+1] = NoNode
	}
}

// opaque replaces the operands of the instruction by a new value node
func (bi *blockInterpreter) opaque(operands int, desc string) error {
	vs, err := bi.pop(operands)
	if err != nil {
		return err
	}
	if desc == "" {
		desc = bi.insn.Op.String()
	}
	bi.push(bi.newNode(&Node{
		Kind:        Value,
		Description: desc,
		Inputs:      vs,
		Type:        bi.mb.frames.TypeAfter(bi.index),
		Op:          bi.insn.Op,
	}))
	return nil
}

// checkFrame compares the state before instruction i with the verified frame
func (bi *blockInterpreter) checkFrame(i int) error {
	f := bi.mb.frames.In[i]
	if f == nil {
		return nil
	}
	slots := 0
	for _, id := range bi.st.stack {
		slots += bi.mb.arena.Node(id).Type.Size()
	}
	if slots != f.StackSlots() {
		return bi.errorf("stack has %d slots, frame has %d", slots, f.StackSlots())
	}
	for slot, t := range f.Locals {
		if t.Kind == bytecode.KindTop {
			continue
		}
		if slot >= len(bi.st.locals) || bi.st.locals[slot] == NoNode {
			return bi.errorf("local %d is empty, frame has %s", slot, t)
		}
		if nt := bi.mb.arena.Node(bi.st.locals[slot]).Type; !bytecode.SameCategory(nt, t) {
			return bi.errorf("local %d has type %s, frame has %s", slot, nt, t)
		}
	}
	return nil
}

func (bi *blockInterpreter) trace() {
	if !bi.mb.logger.LogsTrace() {
		return
	}
	bi.mb.logger.Tracef("%s: locals %v stack %v\n", bi.insn, bi.st.locals, bi.st.stack)
}

// run interprets the block from its first instruction until it ends or an instruction returns or throws
func (bi *blockInterpreter) run(blk *bytecode.Block) (StepResult, error) {
	for i := blk.Start; i < blk.End; i++ {
		bi.index = i
		bi.insn = bi.mb.cfg.Insns[i]
		if bi.mb.debugChecks {
			if err := bi.checkFrame(i); err != nil {
				return StepResult{Kind: StepUnsupported, Value: NoNode}, err
			}
		}
		bi.trace()
		r, err := bi.step()
		if err != nil || r.Kind != StepContinue {
			return r, err
		}
	}
	return StepResult{Kind: StepContinue, Value: NoNode}, nil
}

var cont = StepResult{Kind: StepContinue, Value: NoNode}

// step interprets the current instruction
//
//gocyclo:ignore
func (bi *blockInterpreter) step() (StepResult, error) {
	insn := bi.insn
	op := insn.Op
	pool := bi.mb.class.Pool
	switch {
	case op == bytecode.Nop, op == bytecode.Goto, op == bytecode.GotoW:
	case op == bytecode.AconstNull:
		bi.push(bi.constant("null", "null", bytecode.Null))
	case op >= bytecode.IconstM1 && op <= bytecode.Iconst5:
		v := int(op) - int(bytecode.Iconst0)
		bi.push(bi.constant("I"+strconv.Itoa(v), strconv.Itoa(v), bytecode.Int))
	case op == bytecode.Lconst0 || op == bytecode.Lconst1:
		v := int(op) - int(bytecode.Lconst0)
		bi.push(bi.constant("J"+strconv.Itoa(v), strconv.Itoa(v)+"L", bytecode.Long))
	case op >= bytecode.Fconst0 && op <= bytecode.Fconst2:
		bi.push(bi.newNode(&Node{Kind: Constant, Description: strconv.Itoa(int(op-bytecode.Fconst0)) + ".0f",
			Type: bytecode.Float, Op: op}))
	case op == bytecode.Dconst0 || op == bytecode.Dconst1:
		bi.push(bi.newNode(&Node{Kind: Constant, Description: strconv.Itoa(int(op-bytecode.Dconst0)) + ".0",
			Type: bytecode.Double, Op: op}))
	case op == bytecode.Bipush || op == bytecode.Sipush:
		bi.push(bi.newNode(&Node{Kind: Constant, Description: strconv.Itoa(int(insn.Const)), Type: bytecode.Int,
			Op: op}))
	case op == bytecode.Ldc || op == bytecode.LdcW || op == bytecode.Ldc2W:
		desc, printed, err := pool.LoadableType(insn.Index)
		if err != nil {
			return cont, err
		}
		bi.push(bi.newNode(&Node{Kind: Constant, Description: printed, Type: bytecode.TypeOfDescriptor(desc),
			Op: op}))
	case isLoad(op):
		if err := bi.load(insn.Local); err != nil {
			return cont, err
		}
	case isStore(op):
		vs, err := bi.pop(1)
		if err != nil {
			return cont, err
		}
		bi.store(insn.Local, vs[0])
	case op >= bytecode.Iaload && op <= bytecode.Saload:
		vs, err := bi.pop(2)
		if err != nil {
			return cont, err
		}
		bi.push(bi.newNode(&Node{
			Kind:        FieldAccess,
			Description: "element of " + bi.mb.arena.Node(vs[0]).Description,
			Inputs:      vs,
			Type:        bi.mb.frames.TypeAfter(bi.index),
			Op:          op,
			Field:       ArrayElementField,
		}))
	case op >= bytecode.Iastore && op <= bytecode.Sastore:
		vs, err := bi.pop(3)
		if err != nil {
			return cont, err
		}
		bi.mb.addFieldWrite(&FieldWrite{Field: ArrayElementField, Object: vs[0], Value: vs[2], Pos: bi.pos(),
			Array: true})
	case op == bytecode.Pop || op == bytecode.Pop2:
		_, err := bi.popSlots(int(op-bytecode.Pop) + 1)
		return cont, err
	case op >= bytecode.Dup && op <= bytecode.Swap:
		return cont, bi.shuffle(op)
	case op == bytecode.Iinc:
		if err := bi.load(insn.Local); err != nil {
			return cont, err
		}
		vs, _ := bi.pop(1)
		bi.store(insn.Local, bi.newNode(&Node{Kind: Value, Description: "iinc", Inputs: vs, Type: bytecode.Int,
			Op: op}))
	case op >= bytecode.Iadd && op <= bytecode.Lxor && !(op >= bytecode.Ineg && op <= bytecode.Dneg):
		return cont, bi.opaque(2, "")
	case op >= bytecode.Ineg && op <= bytecode.Dneg, op >= bytecode.I2l && op <= bytecode.I2s:
		return cont, bi.opaque(1, "")
	case op >= bytecode.Lcmp && op <= bytecode.Dcmpg:
		return cont, bi.opaque(2, "")
	case op >= bytecode.Ifeq && op <= bytecode.Ifle, op == bytecode.Ifnull, op == bytecode.Ifnonnull,
		op == bytecode.Tableswitch, op == bytecode.Lookupswitch, op == bytecode.Monitorenter,
		op == bytecode.Monitorexit:
		_, err := bi.pop(1)
		return cont, err
	case op >= bytecode.IfIcmpeq && op <= bytecode.IfAcmpne:
		_, err := bi.pop(2)
		return cont, err
	case op >= bytecode.Ireturn && op <= bytecode.Areturn:
		vs, err := bi.pop(1)
		if err != nil {
			return cont, err
		}
		return StepResult{Kind: StepReturned, Value: vs[0]}, nil
	case op == bytecode.Return:
		return StepResult{Kind: StepReturned, Value: NoNode}, nil
	case op == bytecode.Athrow:
		vs, err := bi.pop(1)
		if err != nil {
			return cont, err
		}
		return StepResult{Kind: StepThrown, Value: vs[0]}, nil
	case op >= bytecode.Getstatic && op <= bytecode.Putfield:
		return cont, bi.field(op)
	case op >= bytecode.Invokevirtual && op <= bytecode.Invokeinterface:
		return cont, bi.invoke(op)
	case op == bytecode.Invokedynamic:
		return cont, bi.invokeDynamic()
	case op == bytecode.New:
		class, err := pool.ClassName(insn.Index)
		if err != nil {
			return cont, err
		}
		return cont, bi.opaque(0, "new "+classfile.DottedName(class))
	case op == bytecode.Newarray, op == bytecode.Anewarray, op == bytecode.Arraylength,
		op == bytecode.Instanceof, op == bytecode.Checkcast:
		return cont, bi.opaque(1, "")
	case op == bytecode.Multianewarray:
		return cont, bi.opaque(int(insn.Const), "")
	default:
		return StepResult{Kind: StepUnsupported, Value: NoNode},
			fmt.Errorf("%w: %s in %s", bytecode.ErrUnsupportedOpcode, insn, bi.mb.method)
	}
	return cont, nil
}

func isLoad(op bytecode.Opcode) bool {
	return (op >= bytecode.Iload && op <= bytecode.Aload) || (op >= bytecode.Iload0 && op <= bytecode.Aload3)
}

func isStore(op bytecode.Opcode) bool {
	return (op >= bytecode.Istore && op <= bytecode.Astore) || (op >= bytecode.Istore0 && op <= bytecode.Astore3)
}

// shuffle implements the dup and swap instructions, which move values by slots
func (bi *blockInterpreter) shuffle(op bytecode.Opcode) error {
	// slots of the top group and of the group it is inserted under
	var top, under int
	switch op {
	case bytecode.Dup:
		top = 1
	case bytecode.DupX1, bytecode.Swap:
		top, under = 1, 1
	case bytecode.DupX2:
		top, under = 1, 2
	case bytecode.Dup2:
		top = 2
	case bytecode.Dup2X1:
		top, under = 2, 1
	case bytecode.Dup2X2:
		top, under = 2, 2
	}
	a, err := bi.popSlots(top)
	if err != nil {
		return err
	}
	var b []NodeID
	if under > 0 {
		if b, err = bi.popSlots(under); err != nil {
			return err
		}
	}
	if op == bytecode.Swap {
		bi.pushAll(a, b)
	} else {
		bi.pushAll(a, b, a)
	}
	return nil
}

func (bi *blockInterpreter) field(op bytecode.Opcode) error {
	ref, err := bi.mb.class.Pool.MemberRef(bi.insn.Index)
	if err != nil {
		return err
	}
	static := op == bytecode.Getstatic || op == bytecode.Putstatic
	name := classfile.DottedName(ref.Class) + "." + ref.Name
	switch op {
	case bytecode.Getstatic, bytecode.Getfield:
		var inputs []NodeID
		if !static {
			if inputs, err = bi.pop(1); err != nil {
				return err
			}
		}
		bi.push(bi.newNode(&Node{
			Kind:        FieldAccess,
			Description: name,
			Inputs:      inputs,
			Type:        bytecode.TypeOfDescriptor(ref.Descriptor),
			Op:          op,
			Field:       ref,
			Static:      static,
		}))
	default:
		n := 2
		if static {
			n = 1
		}
		vs, err := bi.pop(n)
		if err != nil {
			return err
		}
		fw := &FieldWrite{Field: ref, Static: static, Object: NoNode, Value: vs[len(vs)-1], Pos: bi.pos()}
		if !static {
			fw.Object = vs[0]
		}
		bi.mb.addFieldWrite(fw)
	}
	return nil
}

func (bi *blockInterpreter) invoke(op bytecode.Opcode) error {
	ref, err := bi.mb.class.Pool.MemberRef(bi.insn.Index)
	if err != nil {
		return err
	}
	md, err := classfile.ParseMethodDescriptor(ref.Descriptor)
	if err != nil {
		return err
	}
	static := op == bytecode.Invokestatic
	n := len(md.Params)
	if !static {
		n++
	}
	args, err := bi.pop(n)
	if err != nil {
		return err
	}
	inv := bi.mb.addInvocation(&Invocation{Op: op, Target: ref, Inputs: args, Result: NoNode, Static: static,
		Pos: bi.pos()})
	if md.Return != "V" {
		inv.Result = bi.newNode(&Node{
			Kind:        InvocationResult,
			Description: "result of " + classfile.DottedName(ref.Class) + "." + ref.Name,
			Type:        bytecode.TypeOfDescriptor(md.Return),
			Op:          op,
			Invocation:  inv.Index,
		})
		bi.push(inv.Result)
	}
	return nil
}

// invokeDynamic models the call site as an opaque value computed from the captured arguments
func (bi *blockInterpreter) invokeDynamic() error {
	name, desc, err := bi.mb.class.Pool.InvokeDynamic(bi.insn.Index)
	if err != nil {
		return err
	}
	md, err := classfile.ParseMethodDescriptor(desc)
	if err != nil {
		return err
	}
	args, err := bi.pop(len(md.Params))
	if err != nil {
		return err
	}
	if md.Return == "V" {
		return nil
	}
	bi.push(bi.newNode(&Node{
		Kind:        Value,
		Description: "invokedynamic " + name,
		Inputs:      args,
		Type:        bytecode.TypeOfDescriptor(md.Return),
		Op:          bytecode.Invokedynamic,
	}))
	return nil
}
