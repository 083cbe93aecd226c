// Copyright The parloop Authors. All Rights Reserved.
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

package memory

// A Numbering carries pre- and post-order DFS numbers for the estimate
// forest, so ancestry queries are two integer comparisons instead of a
// parent-chain walk.
type Numbering struct {
	pre  map[*EstimateMemory]int
	post map[*EstimateMemory]int
}

// Number computes DFS interval numbers for every estimate location in the
// tree.
func Number(t *AliasTree) *Numbering {
	n := &Numbering{
		pre:  make(map[*EstimateMemory]int, len(t.ems)),
		post: make(map[*EstimateMemory]int, len(t.ems)),
	}
	clock := 0
	var visit func(em *EstimateMemory)
	visit = func(em *EstimateMemory) {
		n.pre[em] = clock
		clock++
		for _, c := range em.children {
			visit(c)
		}
		n.post[em] = clock
		clock++
	}
	for _, em := range t.ems {
		if em.parent == nil {
			visit(em)
		}
	}
	return n
}

// Encloses reports whether a encloses b (reflexively): a's DFS interval
// contains b's.
func (n *Numbering) Encloses(a, b *EstimateMemory) bool {
	return n.pre[a] <= n.pre[b] && n.post[b] <= n.post[a]
}
