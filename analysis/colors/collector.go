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

package colors

import (
	"sync"

	"github.com/google/uuid"
)

// findingNamespace is the namespace of the identifiers of findings
var findingNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/awslabs/ar-jvm-tools/finding"))

// Finding is a flow from a source to a sink
type Finding struct {
	// ID is derived from the root of the source and the origin of the sink, so the same flow gets the same ID in
	// different runs
	ID     uuid.UUID
	Source TraceItem
	Sink   TraceItem
}

// Trace returns the steps of the finding: the source chain from its root to its tip, followed by the sink chain from
// its tip to its root
func (f *Finding) Trace() []TraceItem {
	src := Chain(f.Source)
	items := make([]TraceItem, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		items = append(items, src[i])
	}
	return append(items, Chain(f.Sink)...)
}

// Collector collects the findings reported by merges. Findings with the same source root and sink origin are
// reported once; the first report wins. A Collector is safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	seen     map[string]bool
	findings []*Finding
	// OnFinding, if not nil, is called with every new finding
	OnFinding func(*Finding)
}

// NewCollector returns an empty collector
func NewCollector() *Collector {
	return &Collector{seen: map[string]bool{}}
}

// Report is a Reporter adding the finding to the collector
func (c *Collector) Report(source, sink TraceItem) {
	key := ItemKey(Root(source)) + "\x00" + OriginKey(sink)
	c.mu.Lock()
	if c.seen[key] {
		c.mu.Unlock()
		return
	}
	c.seen[key] = true
	f := &Finding{ID: uuid.NewSHA1(findingNamespace, []byte(key)), Source: source, Sink: sink}
	c.findings = append(c.findings, f)
	c.mu.Unlock()
	if c.OnFinding != nil {
		c.OnFinding(f)
	}
}

// Findings returns the findings in the order they were reported
func (c *Collector) Findings() []*Finding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Finding{}, c.findings...)
}

// Len returns the number of findings
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.findings)
}
