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

package graphutil

import (
	"fmt"

	"gonum.org/v1/gonum/graph/flow"
)

// DominatorTree is the dominator tree of a Digraph computed from some root node.
type DominatorTree struct {
	root int64
	tree flow.DominatorTree
}

// Dominators computes the dominator tree of g rooted at root, using the Lengauer-Tarjan algorithm implemented in
// gonum. Nodes not reachable from the root have no dominator.
func Dominators(g *Digraph, root int64) (*DominatorTree, error) {
	r := g.Node(root)
	if r == nil {
		return nil, fmt.Errorf("root node %d is not in the graph", root)
	}
	return &DominatorTree{root: root, tree: flow.Dominators(r, g)}, nil
}

// Root returns the root of the dominator tree
func (d *DominatorTree) Root() int64 { return d.root }

// ImmediateDominator returns the immediate dominator of id. The boolean is false if id is the root or is
// unreachable.
func (d *DominatorTree) ImmediateDominator(id int64) (int64, bool) {
	n := d.tree.DominatorOf(id)
	if n == nil {
		return 0, false
	}
	return n.ID(), true
}

// Dominates returns true when a dominates b. Every reachable node dominates itself.
func (d *DominatorTree) Dominates(a, b int64) bool {
	for x := b; ; {
		if x == a {
			return true
		}
		idom, ok := d.ImmediateDominator(x)
		if !ok {
			return false
		}
		x = idom
	}
}
