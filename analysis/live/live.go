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

// Package live computes which locations are read after a loop finishes. A
// location written in the loop but dead afterwards may be privatized
// outright; a live one needs its last value copied out.
package live

import (
	"github.com/parloop/parloop/analysis/defuse"
	"github.com/parloop/parloop/analysis/ir"
	"github.com/parloop/parloop/analysis/memory"
	"github.com/parloop/parloop/analysis/regions"
	"github.com/parloop/parloop/internal/funcutil"
)

// A LiveSet holds the locations live when control leaves a loop.
type LiveSet struct {
	out *defuse.LocationSet
}

// OverlapOut reports whether em may still be read after the loop.
func (l *LiveSet) OverlapOut(em *memory.EstimateMemory) bool { return l.out.Overlap(em) }

// Out returns the underlying location set.
func (l *LiveSet) Out() *defuse.LocationSet { return l.out }

// Info maps every loop to its exit liveness.
type Info map[*regions.Loop]*LiveSet

// Analyze runs a backward liveness pass over the whole function and reads
// off, per loop, the state at the blocks the loop exits into. Globals are
// live at function exit; the caller may read them.
func Analyze(tree *memory.AliasTree, forest *regions.Info) Info {
	fn := tree.Fn()
	use := map[*ir.Block]*defuse.LocationSet{}
	kill := map[*ir.Block]map[*memory.EstimateMemory]bool{}
	for _, b := range fn.Blocks {
		u := defuse.NewLocationSet(tree)
		k := map[*memory.EstimateMemory]bool{}
		written := defuse.NewLocationSet(tree)
		for _, instr := range b.Instrs {
			switch v := instr.(type) {
			case *ir.Load:
				em := tree.Find(v.Loc())
				// Upward exposed only when no earlier store in the block
				// surely wrote the location.
				if !written.Contain(em) {
					u.Insert(em)
				}
			case *ir.Store:
				em := tree.Find(v.Loc())
				if fixedObjectPart(em) {
					k[em] = true
					written.Insert(em)
				}
			case *ir.Call:
				// The callee may read anything reachable.
				u.MarkUnknown()
			}
		}
		use[b], kill[b] = u, k
	}

	liveIn := map[*ir.Block]*defuse.LocationSet{}
	liveOut := map[*ir.Block]*defuse.LocationSet{}
	for _, b := range fn.Blocks {
		liveIn[b] = defuse.NewLocationSet(tree)
		liveOut[b] = defuse.NewLocationSet(tree)
	}
	atExit := defuse.NewLocationSet(tree)
	for _, g := range fn.Globals {
		atExit.Insert(tree.Find(ir.Location{Addr: g, Size: g.Size()}))
	}
	for changed := true; changed; {
		changed = false
		for _, b := range funcutil.Reversed(fn.Blocks) {
			var out *defuse.LocationSet
			if len(b.Succs) == 0 {
				out = atExit.Copy()
			} else {
				out = defuse.NewLocationSet(tree)
				for _, s := range b.Succs {
					out.UnionWith(liveIn[s])
				}
			}
			in := out.Copy()
			for em := range kill[b] {
				killCovered(in, em)
			}
			in.UnionWith(use[b])
			if !out.Equals(liveOut[b]) || !in.Equals(liveIn[b]) {
				liveOut[b], liveIn[b] = out, in
				changed = true
			}
		}
	}

	info := Info{}
	for _, l := range forest.PreOrder() {
		out := defuse.NewLocationSet(tree)
		for _, e := range l.Exits {
			for _, s := range e.Succs {
				if !l.Contains(s) {
					out.UnionWith(liveIn[s])
				}
			}
		}
		info[l] = &LiveSet{out: out}
	}
	return info
}

// killCovered removes the members of in that a full write of em shadows.
func killCovered(in *defuse.LocationSet, em *memory.EstimateMemory) {
	for _, m := range in.Ems() {
		if memory.Ancestor(em, m) == em {
			in.Remove(m)
		}
	}
}

func fixedObjectPart(em *memory.EstimateMemory) bool {
	if em.Varies() {
		return false
	}
	switch em.Front().(type) {
	case *ir.Alloca, *ir.Global:
		return true
	}
	return false
}
