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
	"github.com/awslabs/ar-jvm-tools/analysis/colors"
	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
)

// subcaller answers the calls of the method of a task with the results of the tasks analyzing the callees
type subcaller struct {
	session *Session
	task    *Task
}

// Subcall implements painting.Subcaller. Receivers with several possible classes are split into one task per class,
// up to the max-demultiplex option, and the results of the variants are merged.
func (sc *subcaller) Subcall(_ *dataflow.MethodGraph, inv *dataflow.Invocation, ins []*colors.ColoredObject,
	out *colors.ColoredObject) ([]*colors.ColoredObject, *colors.ColoredObject, bool) {
	s := sc.session
	var outs []*colors.ColoredObject
	if inv.Result != dataflow.NoNode {
		outs = []*colors.ColoredObject{out}
	}
	var (
		newIns []*colors.ColoredObject
		newOut *colors.ColoredObject
		ok     bool
	)
	for _, variant := range colors.DemultiplexAll(ins, s.config.MaxDemultiplex) {
		class := ""
		if !inv.Static && len(variant) > 0 && variant[0] != nil {
			class, _ = variant[0].SingleClass()
		}
		m := s.resolver.Implementation(inv, class)
		if m == nil {
			continue
		}
		cf, err := s.pool.Get(m.Owner)
		if err != nil {
			s.logger.Debugf("skipping call to %s: %v", m, err)
			continue
		}
		callee := s.calleeTask(cf, m, variant, outs)
		r := s.dependOn(sc.task, callee)
		if r == nil {
			continue
		}
		ok = true
		if newIns == nil {
			newIns = make([]*colors.ColoredObject, len(ins))
		}
		for i := range newIns {
			if i < len(r.Ins) {
				newIns[i] = colors.Merge(newIns[i], r.Ins[i], s.report)
			}
		}
		if len(r.Outs) > 0 {
			newOut = colors.Merge(newOut, r.Outs[0], s.report)
		}
	}
	return newIns, newOut, ok
}
