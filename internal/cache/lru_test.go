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

package cache

import "testing"

func TestLRUEvictsOldest(t *testing.T) {
	c := NewLRU[string, int](2)
	c.Add("a", 1)
	c.Add("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("Get(a) should be cached")
	}
	c.Add("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Errorf("Get(b) should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) got = %v, %v, want 1, true", v, ok)
	}
	if c.Len() != 2 {
		t.Errorf("Len() got = %d, want 2", c.Len())
	}
}

func TestLRUGetOrCompute(t *testing.T) {
	c := NewLRU[int, string](4)
	calls := 0
	compute := func() string {
		calls++
		return "x"
	}
	for i := 0; i < 3; i++ {
		if v := c.GetOrCompute(1, compute); v != "x" {
			t.Errorf("GetOrCompute() got = %q, want %q", v, "x")
		}
	}
	if calls != 1 {
		t.Errorf("compute called %d times, want 1", calls)
	}
}
