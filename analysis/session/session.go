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

// Package session implements the interprocedural analysis of a program. A Session turns the coloring of method
// bodies into memoized tasks keyed by the method and the colors of its parameters and result. Calls are not inlined:
// the colors of a callee are read from the last result of the task analyzing it, and the caller depends on that
// task. When the result of a task changes, the tasks depending on it are executed again, until no result changes.
//
// A Session is safe for concurrent use, but calls to Analyze are serialized.
package session

import (
	"container/heap"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/awslabs/ar-jvm-tools/analysis/annotations"
	"github.com/awslabs/ar-jvm-tools/analysis/classfile"
	"github.com/awslabs/ar-jvm-tools/analysis/colors"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
	"github.com/awslabs/ar-jvm-tools/analysis/painting"
	"github.com/awslabs/ar-jvm-tools/internal/graphutil"
	"github.com/yourbasic/graph"
	"golang.org/x/exp/maps"
)

// ErrNoResult is returned by Analyze when the analysis of the entry method failed
var ErrNoResult = errors.New("analysis has no result")

// Stats are the counters of a session
type Stats struct {
	// Tasks is the number of distinct tasks created
	Tasks int
	// Executions is the number of task executions, including failed ones
	Executions int
	// Results is the number of results stored
	Results int
	// Requeued is the number of dependants queued again after a change of result
	Requeued int
	// Dropped is the number of dependants released after an unchanged result
	Dropped int
	// Failures is the number of failed executions
	Failures int
	// RecursiveCycles is the number of cycles of the task dependency graph
	RecursiveCycles int
}

// Session holds the state of the analysis of a program
type Session struct {
	config   *config.Config
	logger   *config.LogGroup
	pool     *classfile.ClassPool
	builder  *dataflow.Builder
	resolver *painting.Resolver
	oracle   *annotations.Oracle
	provider painting.ColorProvider
	report   colors.Reporter

	heapVersion atomic.Int64
	analyzing   sync.Mutex

	mu      sync.Mutex
	cond    *sync.Cond
	tasks   map[Key]*Task
	queue   taskQueue
	running int
	seq     int64
	stats   Stats
}

// New returns a session analyzing the classes of pool. The provider gives the colors of sources and sinks; every
// intersection of colors found by any task is reported to report, which must be safe for concurrent use when more
// than one worker is configured.
func New(c *config.Config, logger *config.LogGroup, pool *classfile.ClassPool, oracle *annotations.Oracle,
	provider painting.ColorProvider, report colors.Reporter) *Session {
	s := &Session{
		config:   c,
		logger:   logger,
		pool:     pool,
		builder:  dataflow.NewBuilder(c, logger, pool),
		resolver: painting.NewResolver(pool, logger),
		oracle:   oracle,
		provider: provider,
		report:   report,
		tasks:    map[Key]*Task{},
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Resolver returns the member resolver of the session
func (s *Session) Resolver() *painting.Resolver { return s.resolver }

// Builder returns the graph builder of the session
func (s *Session) Builder() *dataflow.Builder { return s.builder }

// HeapVersion returns the current heap version
func (s *Session) HeapVersion() int64 { return s.heapVersion.Load() }

// BumpHeapVersion invalidates all the results computed so far. They are recomputed when next referenced.
func (s *Session) BumpHeapVersion() int64 {
	v := s.heapVersion.Add(1)
	s.logger.Debugf("heap version is now %d", v)
	return v
}

// Analyze analyzes method m with the initial colors of its parameters (receiver first) and of its result. Missing
// colors are nil. Analyze returns when all the tasks spawned by the analysis are completed.
func (s *Session) Analyze(m *classfile.Method, ins, outs []*colors.ColoredObject) (*Result, error) {
	s.analyzing.Lock()
	defer s.analyzing.Unlock()

	cf, err := s.pool.Get(m.Owner)
	if err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", m, err)
	}
	ins, outs, err = shape(m, ins, outs)
	if err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", m, err)
	}

	s.mu.Lock()
	root := s.taskLocked(cf, m, ins, outs)
	s.enqueueLocked(root, 0, false)
	s.mu.Unlock()

	s.drain()

	if r := root.Result(); r != nil {
		return r, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoResult, m)
}

// shape pads ins to the number of parameters of m and outs to its number of results
func shape(m *classfile.Method, ins, outs []*colors.ColoredObject) ([]*colors.ColoredObject, []*colors.ColoredObject,
	error) {
	md, err := classfile.ParseMethodDescriptor(m.Descriptor)
	if err != nil {
		return nil, nil, err
	}
	n := len(md.Params)
	if !m.IsStatic() {
		n++
	}
	paddedIns := make([]*colors.ColoredObject, n)
	copy(paddedIns, ins)
	var paddedOuts []*colors.ColoredObject
	if md.Return != "V" {
		paddedOuts = make([]*colors.ColoredObject, 1)
		copy(paddedOuts, outs)
	}
	return paddedIns, paddedOuts, nil
}

// taskLocked returns the task with the key of the arguments, creating it if necessary
func (s *Session) taskLocked(cf *classfile.ClassFile, m *classfile.Method, ins, outs []*colors.ColoredObject) *Task {
	key := Key{Method: m.Ref(), Ins: colors.KeyOf(ins), Outs: colors.KeyOf(outs)}
	if t, ok := s.tasks[key]; ok {
		return t
	}
	t := newTask(key, cf, m, ins, outs)
	t.sessionMu = &s.mu
	s.tasks[key] = t
	s.stats.Tasks++
	s.logger.Debugf("new task %s", t)
	return t
}

// calleeTask returns the task analyzing a callee with the colors of a call site
func (s *Session) calleeTask(cf *classfile.ClassFile, m *classfile.Method, ins,
	outs []*colors.ColoredObject) *Task {
	if shapedIns, shapedOuts, err := shape(m, ins, outs); err == nil {
		ins, outs = shapedIns, shapedOuts
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskLocked(cf, m, ins, outs)
}

// fresh returns true when the task has a result computed at the current heap version
func (s *Session) fresh(t *Task) bool {
	r := t.Result()
	return r != nil && r.HeapVersion >= s.heapVersion.Load()
}

// enqueueLocked queues the task with the given priority. A task is never queued twice: a queued task only has its
// priority raised, and a running task is marked to run again once it completes when force is set. Completed tasks
// with a fresh result are queued only when force is set. Failed tasks are never queued again.
func (s *Session) enqueueLocked(t *Task, priority int, force bool) {
	switch t.state {
	case Running:
		if force {
			t.rerun = true
		}
		return
	case Queued:
		if priority > t.priority {
			t.priority = priority
			heap.Fix(&s.queue, t.index)
		}
		return
	case Failed:
		return
	case Completed:
		if !force && s.fresh(t) {
			return
		}
	}
	s.seq++
	t.priority = priority
	t.seq = s.seq
	t.state = Queued
	heap.Push(&s.queue, t)
	s.cond.Signal()
}

// drain runs the workers until the queue is empty and no task is running
func (s *Session) drain() {
	workers := s.config.Workers
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.work()
		}()
	}
	wg.Wait()
}

func (s *Session) work() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		for len(s.queue) == 0 && s.running > 0 {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			// quiescence: wake up the other workers so that they exit too
			s.cond.Broadcast()
			return
		}
		t := heap.Pop(&s.queue).(*Task)
		t.state = Running
		s.running++
		s.stats.Executions++
		s.mu.Unlock()

		res, err := s.run(t)

		s.mu.Lock()
		s.running--
		s.completeLocked(t, res, err)
		s.cond.Broadcast()
	}
}

// run colors the method of the task. Panics are returned as errors.
func (s *Session) run(t *Task) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while analyzing %s: %v", t.method, r)
			if s.logger.LogsDebug() {
				s.logger.Debugf("%s", debug.Stack())
			}
		}
	}()
	t.mu.Lock()
	t.executions++
	t.mu.Unlock()

	version := s.heapVersion.Load()
	g, err := s.builder.Graph(t.class, t.method)
	if err != nil {
		return nil, err
	}
	initial := painting.Colors{}
	for i, id := range g.Params {
		if i < len(t.ins) && t.ins[i] != nil {
			initial[id] = t.ins[i]
		}
	}
	if g.Return != dataflow.NoNode && len(t.outs) > 0 && t.outs[0] != nil {
		initial[g.Return] = colors.Merge(initial[g.Return], t.outs[0], s.report)
	}
	brushes := painting.DefaultBrushes(s.oracle, s.provider, s.resolver, &subcaller{session: s, task: t})
	p := painting.NewColorer(s.config, s.logger, brushes...).Color(g, initial, s.report)
	res = &Result{Ins: p.Params(), HeapVersion: version}
	if len(t.outs) > 0 {
		res.Outs = []*colors.ColoredObject{p.Result()}
	}
	return res, nil
}

// completeLocked stores the outcome of an execution of t and notifies its dependants when its result changed
func (s *Session) completeLocked(t *Task, res *Result, err error) {
	if err != nil {
		t.state = Failed
		t.rerun = false
		s.stats.Failures++
		s.logger.Errorf("analysis of %s failed: %v", t.method, err)
		return
	}
	t.mu.Lock()
	prev := t.result
	changed := prev == nil || !prev.SameColors(res) || prev.HeapVersion < res.HeapVersion
	t.result = res
	dependants := maps.Keys(t.dependants)
	t.dependants = map[*Task]bool{}
	t.mu.Unlock()
	t.state = Completed
	s.stats.Results++

	sortTasks(dependants)
	if changed {
		for _, d := range dependants {
			s.logger.Debugf("result of %s changed, queuing %s", t, d)
			s.enqueueLocked(d, d.priority, true)
		}
		s.stats.Requeued += len(dependants)
	} else {
		s.stats.Dropped += len(dependants)
	}
	if t.rerun {
		t.rerun = false
		s.enqueueLocked(t, t.priority, true)
	}
}

// dependOn registers that caller depends on callee, queues callee if it has no fresh result and returns its last
// result, or nil
func (s *Session) dependOn(caller, callee *Task) *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	caller.mu.Lock()
	caller.dependencies[callee] = true
	caller.mu.Unlock()

	callee.mu.Lock()
	callee.dependants[caller] = true
	r := callee.result
	callee.mu.Unlock()

	if r == nil || r.HeapVersion < s.heapVersion.Load() {
		s.enqueueLocked(callee, caller.priority+1, false)
	}
	return r
}

// Tasks returns all the tasks of the session, sorted by key
func (s *Session) Tasks() []*Task {
	s.mu.Lock()
	tasks := maps.Values(s.tasks)
	s.mu.Unlock()
	sortTasks(tasks)
	return tasks
}

// Stats returns the counters of the session
func (s *Session) Stats() Stats {
	tasks := s.Tasks()
	s.mu.Lock()
	stats := s.stats
	s.mu.Unlock()

	index := make(map[*Task]int64, len(tasks))
	for i, t := range tasks {
		index[t] = int64(i)
	}
	deps := graphutil.NewDigraph()
	for i, t := range tasks {
		deps.AddNode(graphutil.Vertex(i))
		t.mu.Lock()
		for d := range t.dependencies {
			if j, ok := index[d]; ok {
				deps.SetEdge(int64(i), j)
			}
		}
		t.mu.Unlock()
	}
	for _, component := range graph.StrongComponents(deps) {
		if len(component) > 1 || deps.HasEdgeFromTo(int64(component[0]), int64(component[0])) {
			stats.RecursiveCycles++
		}
	}
	return stats
}

func sortTasks(tasks []*Task) {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].key.String() < tasks[j].key.String() })
}
