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
	"container/heap"
	"testing"

	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
)

func testTask(name string) *Task {
	return newTask(Key{Method: classfile.MemberRef{Class: "T", Name: name, Descriptor: "()V"}}, nil, nil, nil, nil)
}

func TestQueueOrder(t *testing.T) {
	var q taskQueue
	for i, p := range []int{0, 2, 1, 2} {
		tk := testTask(string(rune('a' + i)))
		tk.priority = p
		tk.seq = int64(i)
		heap.Push(&q, tk)
	}
	var got string
	for q.Len() > 0 {
		got += heap.Pop(&q).(*Task).key.Method.Name
	}
	if got != "bdca" {
		t.Errorf("queue order got = %s, want bdca", got)
	}
}

func TestEnqueue(t *testing.T) {
	c := config.NewDefault()
	s := New(c, config.NewLogGroup(c), nil, nil, nil, nil)
	a, b := testTask("a"), testTask("b")

	s.enqueueLocked(a, 0, false)
	s.enqueueLocked(a, 0, false)
	s.enqueueLocked(b, 0, false)
	if len(s.queue) != 2 {
		t.Fatalf("queue length got = %d, want 2", len(s.queue))
	}
	s.enqueueLocked(b, 3, false)
	if first := s.queue[0]; first != b {
		t.Errorf("first task got = %v, want %v after raising its priority", first, b)
	}

	heap.Pop(&s.queue).(*Task).state = Running
	s.enqueueLocked(b, 0, false)
	if b.rerun || len(s.queue) != 1 {
		t.Errorf("running task queued again without force")
	}
	s.enqueueLocked(b, 0, true)
	if !b.rerun || len(s.queue) != 1 {
		t.Errorf("running task got rerun = %v, queue = %d, want rerun and no new entry", b.rerun, len(s.queue))
	}

	b.state = Completed
	b.result = &Result{HeapVersion: 0}
	s.enqueueLocked(b, 0, false)
	if len(s.queue) != 1 {
		t.Errorf("completed task with a fresh result was queued")
	}
	s.BumpHeapVersion()
	s.enqueueLocked(b, 0, false)
	if len(s.queue) != 2 {
		t.Errorf("completed task with a stale result was not queued")
	}

	c2 := testTask("c")
	c2.state = Failed
	s.enqueueLocked(c2, 0, true)
	if len(s.queue) != 2 {
		t.Errorf("failed task was queued")
	}
}
