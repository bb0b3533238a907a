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

package session

import (
	"fmt"
	"sync"

	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
	"github.com/awslabs/ar-jvm-tools/analysis/colors"
)

// Key identifies a task: the method and the colors of its parameters and result. The provenance of the colors is not
// part of the key.
type Key struct {
	Method classfile.MemberRef
	Ins    string
	Outs   string
}

func (k Key) String() string {
	return fmt.Sprintf("%s(%s)->(%s)", k.Method, k.Ins, k.Outs)
}

// State is the state of a task
type State int

const (
	// Created tasks have never been queued
	Created State = iota
	// Queued tasks wait for a worker
	Queued
	// Running tasks are being executed by a worker
	Running
	// Completed tasks have a result. They are queued again when the result of one of their dependencies changes.
	Completed
	// Failed tasks raised an error. They are not retried.
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Result holds the colors of the parameters (receiver first) and of the result of a method, computed at some heap
// version
type Result struct {
	Ins []*colors.ColoredObject
	// Outs is empty for void methods, and holds the color of the result otherwise
	Outs        []*colors.ColoredObject
	HeapVersion int64
}

// SameColors returns true when r and other have the same colors, regardless of their provenance
func (r *Result) SameColors(other *Result) bool {
	return colors.KeyOf(r.Ins) == colors.KeyOf(other.Ins) && colors.KeyOf(r.Outs) == colors.KeyOf(other.Outs)
}

// Task is the analysis of a method with some initial colors. Tasks are memoized for the lifetime of a session.
type Task struct {
	key    Key
	class  *classfile.ClassFile
	method *classfile.Method
	ins    []*colors.ColoredObject
	outs   []*colors.ColoredObject

	// fields guarded by sessionMu, the lock of the session
	sessionMu *sync.Mutex
	state     State
	priority  int
	seq       int64
	index     int
	rerun     bool

	mu           sync.Mutex
	result       *Result
	dependants   map[*Task]bool
	dependencies map[*Task]bool
	executions   int
}

func newTask(key Key, cf *classfile.ClassFile, m *classfile.Method, ins, outs []*colors.ColoredObject) *Task {
	return &Task{
		key:          key,
		class:        cf,
		method:       m,
		ins:          ins,
		outs:         outs,
		index:        -1,
		dependants:   map[*Task]bool{},
		dependencies: map[*Task]bool{},
	}
}

// Key returns the key of the task
func (t *Task) Key() Key { return t.key }

// Method returns the analyzed method
func (t *Task) Method() *classfile.Method { return t.method }

// State returns the state of the task
func (t *Task) State() State {
	t.sessionMu.Lock()
	defer t.sessionMu.Unlock()
	return t.state
}

// Result returns the last result of the task, or nil
func (t *Task) Result() *Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Executions returns the number of times the task has been executed
func (t *Task) Executions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.executions
}

func (t *Task) String() string {
	return t.key.String()
}

// taskQueue is a priority queue of tasks implementing heap.Interface. Tasks with a higher priority come first, and
// tasks with the same priority are ordered by submission.
type taskQueue []*Task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	t := x.(*Task)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
