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

package funcutil

import (
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMap(t *testing.T) {
	if got := Map[int, string](nil, strconv.Itoa); got != nil {
		t.Errorf("Map(nil) got = %v, want nil", got)
	}
	got := Map([]int{3, 1, 2}, strconv.Itoa)
	if want := []string{"3", "1", "2"}; !cmp.Equal(got, want) {
		t.Errorf("Map() got = %v, want %v", got, want)
	}
}

func TestSortedKeys(t *testing.T) {
	m := map[string]bool{"b": true, "c": false, "a": true}
	if got, want := SortedKeys(m), []string{"a", "b", "c"}; !cmp.Equal(got, want) {
		t.Errorf("SortedKeys() got = %v, want %v", got, want)
	}
	if got := SortedKeys(map[int]int{}); len(got) != 0 {
		t.Errorf("SortedKeys(empty) got = %v, want []", got)
	}
}
