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
	"sync"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"golang.org/x/tools/container/intsets"
)

// ErrNoCode is returned when building the graph of an abstract or native method
var ErrNoCode = errors.New("method has no code")

// Builder builds the graphs of method bodies. Graphs are cached per method; a Builder is safe for concurrent use.
type Builder struct {
	hierarchy      classfile.Hierarchy
	logger         *config.LogGroup
	maxBlockEnters int
	debugChecks    bool

	mu    sync.Mutex
	cache map[classfile.MemberRef]*cachedGraph
}

type cachedGraph struct {
	once  sync.Once
	graph *MethodGraph
	err   error
}

// NewBuilder returns a builder configured by the options of c. The hierarchy is used to join the types of values
// flowing from different paths; it may be nil.
func NewBuilder(c *config.Config, logger *config.LogGroup, h classfile.Hierarchy) *Builder {
	maxEnters := c.MaxBlockEnters
	if maxEnters <= 0 {
		maxEnters = config.DefaultMaxBlockEnters
	}
	return &Builder{
		hierarchy:      h,
		logger:         logger,
		maxBlockEnters: maxEnters,
		debugChecks:    c.DebugChecks,
		cache:          map[classfile.MemberRef]*cachedGraph{},
	}
}

// Graph returns the graph of method m of class cf, building it the first time
func (b *Builder) Graph(cf *classfile.ClassFile, m *classfile.Method) (*MethodGraph, error) {
	b.mu.Lock()
	entry, ok := b.cache[m.Ref()]
	if !ok {
		entry = &cachedGraph{}
		b.cache[m.Ref()] = entry
	}
	b.mu.Unlock()
	entry.once.Do(func() {
		entry.graph, entry.err = b.Build(cf, m)
	})
	return entry.graph, entry.err
}

// Build builds the graph of method m of class cf without caching it.
//
// The assembler explores the control-flow graph from the entry block, interpreting each block over the state that
// reaches it. A block reached again with the same nodes in its locals and stack is not re-interpreted, and a block
// is interpreted at most maxBlockEnters times, which bounds the unrolling of loops. Exception handlers are entered
// from every block they cover with the caught exception, one node per handler, as the only stack value.
func (b *Builder) Build(cf *classfile.ClassFile, m *classfile.Method) (*MethodGraph, error) {
	if m.Code == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCode, m)
	}
	cfg, err := bytecode.BuildCFG(m.Code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m, err)
	}
	frames, err := bytecode.ComputeFrames(m, cfg, cf.Pool, b.hierarchy)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m, err)
	}
	mb := &methodBuilder{
		Builder:  b,
		class:    cf,
		method:   m,
		cfg:      cfg,
		frames:   frames,
		arena:    NewArena(),
		visited:  map[string]bool{},
		enters:   make([]int, len(cfg.Blocks)),
		handlers: map[int]NodeID{},
	}
	mb.graph = &MethodGraph{Method: m, Arena: mb.arena, Return: NoNode}
	entry, err := mb.params()
	if err != nil {
		return nil, err
	}
	if err := mb.visit(cfg.Entry().Index, entry); err != nil {
		return nil, err
	}
	mb.finish()
	if b.logger.LogsDebug() {
		b.logger.Debugf("built graph of %s: %d nodes, %d calls, %d writes, truncated: %t\n", m,
			len(mb.graph.Nodes), len(mb.graph.Invocations), len(mb.graph.FieldWrites), mb.graph.Truncated)
	}
	return mb.graph, nil
}

// methodBuilder holds the state of the construction of one graph
type methodBuilder struct {
	*Builder
	class  *classfile.ClassFile
	method *classfile.Method
	cfg    *bytecode.CFG
	frames *bytecode.Frames
	arena  *Arena
	graph  *MethodGraph

	visited  map[string]bool
	enters   []int
	handlers map[int]NodeID
	returns  []NodeID
	nodes    intsets.Sparse
}

func (mb *methodBuilder) positionOf(insn bytecode.Instruction) Position {
	return Position{
		Class:  mb.class.Name,
		Method: mb.method.Name,
		File:   mb.class.SourceFile,
		Line:   mb.method.Code.LineAt(insn.PC),
	}
}

func (mb *methodBuilder) addInvocation(inv *Invocation) *Invocation {
	inv.Index = len(mb.graph.Invocations)
	mb.graph.Invocations = append(mb.graph.Invocations, inv)
	return inv
}

func (mb *methodBuilder) addFieldWrite(fw *FieldWrite) {
	mb.graph.FieldWrites = append(mb.graph.FieldWrites, fw)
}

// params creates the parameter nodes and returns the entry state. The parameters must agree with the entry frame.
func (mb *methodBuilder) params() (state, error) {
	md, err := classfile.ParseMethodDescriptor(mb.method.Descriptor)
	if err != nil {
		return state{}, err
	}
	pos := Position{Class: mb.class.Name, Method: mb.method.Name, File: mb.class.SourceFile}
	var locals []NodeID
	add := func(n *Node) {
		n.Pos = pos
		n.ParamIndex = len(mb.graph.Params)
		id := mb.arena.add(n)
		mb.graph.Params = append(mb.graph.Params, id)
		mb.nodes.Insert(int(id))
		locals = append(locals, id)
		if n.Type.IsWide() {
			locals = append(locals, NoNode)
		}
	}
	if !mb.method.IsStatic() {
		add(&Node{Kind: Parameter, Description: "this", Type: bytecode.RefOf(classfile.TypeOfClass(mb.class.Name)),
			ArgIndex: -1})
	}
	for k, p := range md.Params {
		add(&Node{Kind: Parameter, Description: "arg" + strconv.Itoa(k), Type: bytecode.TypeOfDescriptor(p),
			ArgIndex: k})
	}
	entry := mb.frames.In[0]
	for slot, id := range locals {
		if id == NoNode {
			continue
		}
		if slot >= len(entry.Locals) || !bytecode.SameCategory(mb.arena.Node(id).Type, entry.Locals[slot]) {
			return state{}, fmt.Errorf("%w: parameter in local %d of %s", ErrFrameMismatch, slot, mb.method)
		}
	}
	for len(locals) < int(mb.method.Code.MaxLocals) {
		locals = append(locals, NoNode)
	}
	return state{locals: locals}, nil
}

// filter empties the locals that are not usable at the start of the block
func (mb *methodBuilder) filter(blk *bytecode.Block, s state) state {
	f := mb.frames.In[blk.Start]
	if f == nil {
		return s
	}
	out := s.copy()
	for slot := range out.locals {
		if slot >= len(f.Locals) || f.Locals[slot].Kind == bytecode.KindTop {
			out.locals[slot] = NoNode
		}
	}
	return out
}

// caught returns the node of the exception caught by the handler starting at block index h
func (mb *methodBuilder) caught(h int) NodeID {
	if id, ok := mb.handlers[h]; ok {
		return id
	}
	blk := mb.cfg.Blocks[h]
	t := bytecode.RefOf("Ljava/lang/Throwable;")
	if f := mb.frames.In[blk.Start]; f != nil {
		if top, ok := f.StackTop(); ok {
			t = top
		}
	}
	id := mb.arena.add(&Node{
		Kind:        CaughtException,
		Description: "caught " + t.String(),
		Type:        t,
		Pos:         mb.positionOf(mb.cfg.Insns[blk.Start]),
	})
	mb.nodes.Insert(int(id))
	mb.handlers[h] = id
	return id
}

func (mb *methodBuilder) visit(index int, in state) error {
	blk := mb.cfg.Blocks[index]
	in = mb.filter(blk, in)
	key := strconv.Itoa(index) + ":" + in.key()
	if mb.visited[key] {
		return nil
	}
	mb.visited[key] = true
	if mb.enters[index] >= mb.maxBlockEnters {
		if mb.cfg.IsLoopHeader(index) {
			mb.graph.Truncated = true
		}
		mb.logger.Tracef("block %d of %s entered %d times\n", index, mb.method, mb.enters[index])
		return nil
	}
	mb.enters[index]++

	bi := &blockInterpreter{mb: mb, st: in.copy()}
	r, err := bi.run(blk)
	for _, id := range bi.created {
		mb.nodes.Insert(int(id))
	}
	if err != nil {
		return err
	}
	switch r.Kind {
	case StepReturned:
		if r.Value != NoNode {
			mb.addReturn(r.Value)
		}
	case StepThrown:
		mb.graph.Thrown = append(mb.graph.Thrown, r.Value)
	}
	out := bi.st
	for _, h := range blk.Handlers {
		if err := mb.visit(h, state{locals: out.locals, stack: []NodeID{mb.caught(h)}}); err != nil {
			return err
		}
	}
	if r.Kind != StepContinue {
		return nil
	}
	for _, s := range blk.Succs {
		if err := mb.visit(s, out); err != nil {
			return err
		}
	}
	return nil
}

func (mb *methodBuilder) addReturn(id NodeID) {
	for _, r := range mb.returns {
		if r == id {
			return
		}
	}
	mb.returns = append(mb.returns, id)
}

// finish computes the return node and the set of nodes of the graph
func (mb *methodBuilder) finish() {
	switch len(mb.returns) {
	case 0:
	case 1:
		mb.graph.Return = mb.returns[0]
	default:
		t := mb.arena.Node(mb.returns[0]).Type
		for _, r := range mb.returns[1:] {
			t = bytecode.Join(mb.hierarchy, t, mb.arena.Node(r).Type)
		}
		id := mb.arena.add(&Node{
			Kind:        Merge,
			Description: "return of " + mb.method.Name,
			Inputs:      mb.returns,
			Type:        t,
			Pos:         Position{Class: mb.class.Name, Method: mb.method.Name, File: mb.class.SourceFile},
		})
		mb.nodes.Insert(int(id))
		mb.graph.Return = id
	}
	for _, x := range mb.nodes.AppendTo(nil) {
		mb.graph.Nodes = append(mb.graph.Nodes, NodeID(x))
	}
}
