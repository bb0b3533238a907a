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
	"github.com/awslabs/ar-jvm-tools/internal/graphutil"
	"golang.org/x/exp/slices"
)

// Block is a basic block: the instructions Insns[Start:End] of the method
type Block struct {
	Index int
	Start int
	End   int
	// Succs are the normal successors of the block
	Succs []int
	// Handlers are the blocks of the exception handlers covering the block
	Handlers []int
	Preds    []int
}

// Successors returns the normal successors followed by the exception handlers
func (b *Block) Successors() []int {
	return append(append([]int{}, b.Succs...), b.Handlers...)
}

// CFG is the control-flow graph of a method. Block 0 is the entry block.
type CFG struct {
	Insns  []Instruction
	Blocks []*Block
	// HandlerOf maps the index of each exception handler block to the handlers starting at that block
	HandlerOf map[int][]classfile.Handler
	// Graph is the graph of the blocks, with one node per block index
	Graph *graphutil.Digraph
	// Dom is the dominator tree of the blocks, rooted at the entry block
	Dom *graphutil.DominatorTree

	blockOfInsn []int
	headers     map[int]bool
}

// BuildCFG decodes the code of a method and computes its basic blocks and dominator tree
func BuildCFG(code *classfile.Code) (*CFG, error) {
	insns, err := Decode(code.Bytes)
	if err != nil {
		return nil, err
	}
	if len(insns) == 0 {
		return nil, fmt.Errorf("%w: empty method body", classfile.ErrMalformed)
	}
	index := func(pc int) (int, error) {
		i, ok := IndexOf(insns, pc)
		if !ok {
			if pc == len(code.Bytes) {
				return len(insns), nil
			}
			return 0, fmt.Errorf("%w: no instruction at %d", classfile.ErrMalformed, pc)
		}
		return i, nil
	}

	leaders := map[int]bool{0: true}
	for i, insn := range insns {
		if insn.Op == Jsr || insn.Op == JsrW || insn.Op == Ret {
			return nil, fmt.Errorf("%w: subroutine instruction %s", ErrUnsupportedOpcode, insn)
		}
		for _, target := range insn.BranchTargets() {
			t, err := index(target)
			if err != nil {
				return nil, err
			}
			leaders[t] = true
		}
		if insn.IsJump() || insn.IsSwitch() || insn.EndsFlow() {
			leaders[i+1] = true
		}
	}
	handlerOf := map[int][]classfile.Handler{}
	for _, h := range code.Handlers {
		for _, pc := range []int{int(h.Start), int(h.End), int(h.Handler)} {
			t, err := index(pc)
			if err != nil {
				return nil, err
			}
			leaders[t] = true
		}
	}

	cfg := &CFG{Insns: insns, HandlerOf: map[int][]classfile.Handler{}, blockOfInsn: make([]int, len(insns))}
	for i := range insns {
		if leaders[i] {
			cfg.Blocks = append(cfg.Blocks, &Block{Index: len(cfg.Blocks), Start: i})
		}
		b := cfg.Blocks[len(cfg.Blocks)-1]
		b.End = i + 1
		cfg.blockOfInsn[i] = b.Index
	}

	for _, h := range code.Handlers {
		hi, _ := index(int(h.Handler))
		hb := cfg.blockOfInsn[hi]
		handlerOf[hb] = append(handlerOf[hb], h)
	}
	cfg.HandlerOf = handlerOf

	for _, b := range cfg.Blocks {
		last := insns[b.End-1]
		for _, target := range last.BranchTargets() {
			t, _ := index(target)
			b.Succs = appendUnique(b.Succs, cfg.blockOfInsn[t])
		}
		if !last.EndsFlow() && b.End < len(insns) {
			b.Succs = appendUnique(b.Succs, cfg.blockOfInsn[b.End])
		}
		for _, h := range code.Handlers {
			if h.Covers(insns[b.Start].PC) {
				hi, _ := index(int(h.Handler))
				b.Handlers = appendUnique(b.Handlers, cfg.blockOfInsn[hi])
			}
		}
	}

	cfg.Graph = graphutil.NewDigraph()
	for _, b := range cfg.Blocks {
		cfg.Graph.AddNode(graphutil.Vertex(b.Index))
	}
	for _, b := range cfg.Blocks {
		for _, s := range b.Successors() {
			cfg.Graph.SetEdge(int64(b.Index), int64(s))
			cfg.Blocks[s].Preds = appendUnique(cfg.Blocks[s].Preds, b.Index)
		}
	}
	cfg.Dom, err = graphutil.Dominators(cfg.Graph, 0)
	if err != nil {
		return nil, err
	}
	cfg.headers = map[int]bool{}
	for _, b := range cfg.Blocks {
		for _, h := range b.Successors() {
			if cfg.Dom.Dominates(int64(h), int64(b.Index)) {
				cfg.headers[h] = true
			}
		}
	}
	return cfg, nil
}

func appendUnique(a []int, x int) []int {
	if slices.Contains(a, x) {
		return a
	}
	return append(a, x)
}

// Entry returns the entry block, which is the root of the dominator tree
func (c *CFG) Entry() *Block {
	return c.Blocks[c.Dom.Root()]
}

// BlockOf returns the block containing the instruction with index i
func (c *CFG) BlockOf(i int) *Block {
	return c.Blocks[c.blockOfInsn[i]]
}

// IsLoopHeader returns true when the block is the target of a back edge: an edge from a block it dominates
func (c *CFG) IsLoopHeader(block int) bool {
	return c.headers[block]
}

// IsHandler returns true when the block is the start of an exception handler
func (c *CFG) IsHandler(block int) bool {
	return len(c.HandlerOf[block]) > 0
}
