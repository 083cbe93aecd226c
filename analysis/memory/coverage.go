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

import "sort"

// Cover reports whether the parts fully cover em byte for byte. Parts that
// are not enclosed by em are ignored. A part addressed through an induction
// variable names one element per iteration, so it never covers anything
// larger than itself; it only counts when it is em.
func Cover(n *Numbering, em *EstimateMemory, parts []*EstimateMemory) bool {
	type span struct{ lo, hi int64 }
	var spans []span
	for _, p := range parts {
		if !n.Encloses(em, p) {
			continue
		}
		if p == em {
			return true
		}
		if p.Varies() {
			continue
		}
		spans = append(spans, span{lo: p.off, hi: p.off + p.size})
	}
	if len(spans) == 0 {
		return false
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].lo < spans[j].lo })
	next := em.off
	for _, s := range spans {
		if s.lo > next {
			return false
		}
		if s.hi > next {
			next = s.hi
		}
	}
	return next >= em.off+em.size
}
