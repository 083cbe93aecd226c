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

// Package defuse computes per-loop definition and use facts over the
// estimate-memory tree: which locations an iteration reads before writing,
// which it must have written by the time it reaches the latch and the exits,
// and which addresses escape inside the loop. The privatizability engine
// reads these facts; it never inspects instructions for them itself.
package defuse

import (
	"strings"

	"golang.org/x/tools/container/intsets"

	"github.com/parloop/parloop/analysis/ir"
	"github.com/parloop/parloop/analysis/memory"
	"github.com/parloop/parloop/analysis/regions"
)

// A LocationSet is a set of estimate locations backed by a sparse bit
// vector. The unknown flag records that an opaque access may touch any
// location at all; it widens Overlap but never Contain.
type LocationSet struct {
	tree    *memory.AliasTree
	bits    intsets.Sparse
	unknown bool
}

// NewLocationSet returns an empty set over the locations of tree.
func NewLocationSet(tree *memory.AliasTree) *LocationSet {
	return &LocationSet{tree: tree}
}

func universe(tree *memory.AliasTree) *LocationSet {
	s := NewLocationSet(tree)
	for _, em := range tree.Ems() {
		s.bits.Insert(em.ID())
	}
	s.unknown = true
	return s
}

// Insert adds em and reports whether it was absent.
func (s *LocationSet) Insert(em *memory.EstimateMemory) bool {
	return s.bits.Insert(em.ID())
}

// Has reports exact membership of em.
func (s *LocationSet) Has(em *memory.EstimateMemory) bool {
	return s.bits.Has(em.ID())
}

// MarkUnknown records an access that may touch any location.
func (s *LocationSet) MarkUnknown() { s.unknown = true }

// Unknown reports whether the set carries an opaque access.
func (s *LocationSet) Unknown() bool { return s.unknown }

// Contain reports whether em is covered by a member: em itself or a
// location enclosing it.
func (s *LocationSet) Contain(em *memory.EstimateMemory) bool {
	for x := em; x != nil; x = x.Parent() {
		if s.bits.Has(x.ID()) {
			return true
		}
	}
	return false
}

// Overlap reports whether some member may name bytes of em.
func (s *LocationSet) Overlap(em *memory.EstimateMemory) bool {
	if s.unknown {
		return true
	}
	for _, m := range s.Ems() {
		if m.Overlaps(em) {
			return true
		}
	}
	return false
}

// Ems returns the members in id order.
func (s *LocationSet) Ems() []*memory.EstimateMemory {
	ids := s.bits.AppendTo(nil)
	ems := make([]*memory.EstimateMemory, len(ids))
	all := s.tree.Ems()
	for i, id := range ids {
		ems[i] = all[id]
	}
	return ems
}

// Copy returns an independent copy of s.
func (s *LocationSet) Copy() *LocationSet {
	c := NewLocationSet(s.tree)
	c.bits.Copy(&s.bits)
	c.unknown = s.unknown
	return c
}

// UnionWith adds all members of o to s.
func (s *LocationSet) UnionWith(o *LocationSet) {
	s.bits.UnionWith(&o.bits)
	s.unknown = s.unknown || o.unknown
}

// IntersectWith drops the members of s absent from o.
func (s *LocationSet) IntersectWith(o *LocationSet) {
	s.bits.IntersectionWith(&o.bits)
	s.unknown = s.unknown && o.unknown
}

// Remove drops em and reports whether it was present.
func (s *LocationSet) Remove(em *memory.EstimateMemory) bool {
	return s.bits.Remove(em.ID())
}

// Equals reports whether s and o hold the same members.
func (s *LocationSet) Equals(o *LocationSet) bool {
	return s.unknown == o.unknown && s.bits.Equals(&o.bits)
}

func (s *LocationSet) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, em := range s.Ems() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(em.String())
	}
	if s.unknown {
		if b.Len() > 1 {
			b.WriteString(", ")
		}
		b.WriteByte('?')
	}
	b.WriteByte('}')
	return b.String()
}

// DefinitionInfo is the pair of reaching-definition sets at a program point:
// what must have been written on every path from the iteration start, and
// what may have been.
type DefinitionInfo struct {
	MustReach *LocationSet
	MayReach  *LocationSet
}

// A DefUseSet summarizes one loop's memory behavior per iteration.
type DefUseSet struct {
	// Uses holds the locations an iteration may read before writing them.
	Uses *LocationSet

	// MayDefs holds every location an iteration may write.
	MayDefs *LocationSet

	// Explicit lists the locations directly accessed by loads and stores in
	// the loop, in first-access order.
	Explicit []*memory.EstimateMemory

	// Unknowns lists the loop's instructions with opaque memory behavior.
	Unknowns []ir.Instruction

	// AddressTaken lists the objects whose address escapes inside the loop
	// through pointer arithmetic, stored pointers or call arguments.
	AddressTaken []ir.Value

	exit DefinitionInfo
}

// HasUse reports whether the loop may read em before writing it.
func (d *DefUseSet) HasUse(em *memory.EstimateMemory) bool { return d.Uses.Overlap(em) }

// HasDef reports whether every iteration writes em before leaving the loop.
func (d *DefUseSet) HasDef(em *memory.EstimateMemory) bool { return d.exit.MustReach.Contain(em) }

// HasMayDef reports whether some iteration may write em.
func (d *DefUseSet) HasMayDef(em *memory.EstimateMemory) bool { return d.MayDefs.Overlap(em) }

// Facts bundles the per-loop sets the trait resolution consumes.
type Facts struct {
	DefUse *DefUseSet

	// Latch holds the definitions reaching the end of the latch blocks, the
	// state carried into the next iteration.
	Latch DefinitionInfo

	// Exits holds the definitions reaching the loop exits, the state
	// observable after the loop.
	Exits DefinitionInfo
}

// Info maps every loop of a function to its definition facts.
type Info map[*regions.Loop]*Facts

// Analyze computes definition and use facts for every loop in the forest.
func Analyze(tree *memory.AliasTree, forest *regions.Info) Info {
	info := Info{}
	for _, l := range forest.PreOrder() {
		info[l] = analyzeLoop(tree, forest, l)
	}
	return info
}

func analyzeLoop(tree *memory.AliasTree, forest *regions.Info, l *regions.Loop) *Facts {
	mustGen := map[*ir.Block]*LocationSet{}
	mayGen := map[*ir.Block]*LocationSet{}
	for _, b := range l.Blocks {
		must, may := NewLocationSet(tree), NewLocationSet(tree)
		for _, i := range b.Instrs {
			switch v := i.(type) {
			case *ir.Store:
				em := tree.Find(v.Loc())
				may.Insert(em)
				if objectBased(em) {
					// Within one iteration the address is fixed, so the
					// store is a must definition of its estimate.
					must.Insert(em)
				}
			case *ir.Call:
				if !v.ReadsOnly {
					may.MarkUnknown()
				}
			}
		}
		mustGen[b], mayGen[b] = must, may
	}

	outMust := reachForward(tree, l, mustGen, true)
	outMay := reachForward(tree, l, mayGen, false)

	du := &DefUseSet{
		Uses:    NewLocationSet(tree),
		MayDefs: NewLocationSet(tree),
	}
	for _, b := range l.Blocks {
		du.MayDefs.UnionWith(mayGen[b])
	}

	// Upward-exposed uses: rescan each block with the must state at its
	// entry and record reads of locations not yet surely written.
	seenExplicit := NewLocationSet(tree)
	for _, b := range l.Blocks {
		running := inOf(tree, l, b, outMust, true)
		for _, i := range b.Instrs {
			switch v := i.(type) {
			case *ir.Load:
				em := tree.Find(v.Loc())
				if !running.Contain(em) {
					du.Uses.Insert(em)
				}
				if seenExplicit.Insert(em) {
					du.Explicit = append(du.Explicit, em)
				}
			case *ir.Store:
				em := tree.Find(v.Loc())
				if objectBased(em) {
					running.Insert(em)
				}
				if seenExplicit.Insert(em) {
					du.Explicit = append(du.Explicit, em)
				}
			case *ir.Call:
				du.Unknowns = append(du.Unknowns, v)
			}
		}
	}
	du.AddressTaken = addressTaken(l)

	facts := &Facts{DefUse: du}
	facts.Latch = meetAt(tree, l.Latches, outMust, outMay)
	facts.Exits = meetAt(tree, l.Exits, outMust, outMay)
	du.exit = facts.Exits
	return facts
}

// reachForward solves the forward reaching-definition problem restricted to
// the loop body. The header starts every iteration empty; for the must
// variant block inputs meet by intersection, for the may variant by union.
func reachForward(tree *memory.AliasTree, l *regions.Loop, gen map[*ir.Block]*LocationSet, must bool) map[*ir.Block]*LocationSet {
	out := map[*ir.Block]*LocationSet{}
	for _, b := range l.Blocks {
		if must {
			out[b] = universe(tree)
		} else {
			out[b] = NewLocationSet(tree)
		}
	}
	for changed := true; changed; {
		changed = false
		for _, b := range l.Blocks {
			next := inOf(tree, l, b, out, must)
			next.UnionWith(gen[b])
			if !next.Equals(out[b]) {
				out[b] = next
				changed = true
			}
		}
	}
	return out
}

func inOf(tree *memory.AliasTree, l *regions.Loop, b *ir.Block, out map[*ir.Block]*LocationSet, must bool) *LocationSet {
	if b == l.Header {
		return NewLocationSet(tree)
	}
	var in *LocationSet
	for _, p := range b.Preds {
		if !l.Contains(p) {
			continue
		}
		if in == nil {
			in = out[p].Copy()
		} else if must {
			in.IntersectWith(out[p])
		} else {
			in.UnionWith(out[p])
		}
	}
	if in == nil {
		in = NewLocationSet(tree)
	}
	return in
}

func meetAt(tree *memory.AliasTree, blocks []*ir.Block, outMust, outMay map[*ir.Block]*LocationSet) DefinitionInfo {
	var d DefinitionInfo
	for _, b := range blocks {
		if d.MustReach == nil {
			d.MustReach = outMust[b].Copy()
			d.MayReach = outMay[b].Copy()
		} else {
			d.MustReach.IntersectWith(outMust[b])
			d.MayReach.UnionWith(outMay[b])
		}
	}
	if d.MustReach == nil {
		d.MustReach = NewLocationSet(tree)
		d.MayReach = NewLocationSet(tree)
	}
	return d
}

// addressTaken collects the objects whose address leaks inside l: converted
// to an integer, stored as a value or passed to a call. Objects allocated
// inside the loop do not outlive an iteration and are skipped.
func addressTaken(l *regions.Loop) []ir.Value {
	var objs []ir.Value
	seen := map[ir.Value]bool{}
	record := func(v ir.Value) {
		obj := underlyingObject(v)
		if obj == nil || seen[obj] {
			return
		}
		if a, ok := obj.(*ir.Alloca); ok && l.Contains(a.Parent()) {
			return
		}
		seen[obj] = true
		objs = append(objs, obj)
	}
	for _, b := range l.Blocks {
		for _, i := range b.Instrs {
			switch v := i.(type) {
			case *ir.PtrToInt:
				record(v.X)
			case *ir.Store:
				record(v.Val)
			case *ir.Call:
				for _, a := range v.Args {
					record(a)
				}
			}
		}
	}
	return objs
}

func underlyingObject(v ir.Value) ir.Value {
	for {
		switch x := v.(type) {
		case *ir.Alloca, *ir.Global:
			return x
		case *ir.Index:
			v = x.Base
		default:
			return nil
		}
	}
}

func objectBased(em *memory.EstimateMemory) bool {
	switch em.Front().(type) {
	case *ir.Alloca, *ir.Global:
		return true
	}
	return false
}
