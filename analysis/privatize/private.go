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

// Package privatize classifies, per loop, every accessed memory location:
// provably private in one of several flavors, read-only, shared, or the
// carrier of a loop dependence. Results are reported per alias node so a
// consumer can reason about whole may-alias groups at once.
package privatize

import (
	"fmt"

	"github.com/parloop/parloop/analysis/config"
	"github.com/parloop/parloop/analysis/defuse"
	"github.com/parloop/parloop/analysis/deps"
	"github.com/parloop/parloop/analysis/ir"
	"github.com/parloop/parloop/analysis/live"
	"github.com/parloop/parloop/analysis/memory"
	"github.com/parloop/parloop/analysis/regions"
	"github.com/parloop/parloop/analysis/trait"
)

// PrivateInfo is the analysis result: a dependency set per analyzed loop.
type PrivateInfo map[*regions.Loop]*trait.DependencySet

// An Analyzer runs trait resolution over one function.
type Analyzer struct {
	Tree   *memory.AliasTree
	Forest *regions.Info
	Defs   defuse.Info
	Live   live.Info
	Oracle deps.Oracle
	Config *config.Config
	Log    *config.LogGroup
	Stats  *trait.Statistic

	numbers *memory.Numbering
	results PrivateInfo
}

// NewAnalyzer assembles an analyzer from precomputed facts.
func NewAnalyzer(tree *memory.AliasTree, forest *regions.Info, defs defuse.Info,
	lv live.Info, oracle deps.Oracle, cfg *config.Config, log *config.LogGroup) *Analyzer {
	return &Analyzer{
		Tree:   tree,
		Forest: forest,
		Defs:   defs,
		Live:   lv,
		Oracle: oracle,
		Config: cfg,
		Log:    log,
		Stats:  &trait.Statistic{},
	}
}

// Run resolves traits for every loop of the function, outer loops first.
func (a *Analyzer) Run() PrivateInfo {
	a.numbers = memory.Number(a.Tree)
	a.results = PrivateInfo{}
	if a.Forest.Irreducible {
		a.Log.Warnf("%s: control flow is irreducible, loops are not analyzed", a.Tree.Fn().Name())
		return a.results
	}
	for _, l := range a.Forest.PreOrder() {
		a.resolveLoop(l)
	}
	return a.results
}

// traitEntry is the mutable working trait of one location within one loop.
// The same entry is shared between the per-location map and the per-node
// lists, so a meet through either view is seen by both.
type traitEntry struct {
	em *memory.EstimateMemory
	t  trait.BitTrait
}

type unknownEntry struct {
	instr ir.Instruction
	t     trait.BitTrait
}

type loopState struct {
	l     *regions.Loop
	facts *defuse.Facts
	ls    *live.LiveSet

	traits       map[*memory.EstimateMemory]*traitEntry
	nodeLists    map[*memory.AliasNode][]*traitEntry
	unknowns     map[ir.Instruction]*unknownEntry
	nodeUnknowns map[*memory.AliasNode][]*unknownEntry
	depImps      map[*memory.EstimateMemory]*depImp
}

func (st *loopState) entry(em *memory.EstimateMemory) *traitEntry {
	if e := st.traits[em]; e != nil {
		return e
	}
	e := &traitEntry{em: em, t: trait.NoAccess}
	st.traits[em] = e
	n := em.AliasNode()
	st.nodeLists[n] = append(st.nodeLists[n], e)
	return e
}

// explicitlyAccessed reports whether em carries an explicit access attached
// to node n; address-only entries do not count.
func (st *loopState) explicitlyAccessed(em *memory.EstimateMemory, n *memory.AliasNode) bool {
	e := st.traits[em]
	return e != nil && e.t.DropUnitFlags() != trait.NoAccess && em.AliasNode() == n
}

func (a *Analyzer) resolveLoop(l *regions.Loop) {
	facts := a.Defs[l]
	ls := a.Live[l]
	if facts == nil || ls == nil {
		panic(fmt.Sprintf("dataflow facts of %s must be computed before trait resolution", l))
	}
	a.Log.Debugf("resolve traits of %s in %s", l, a.Tree.Fn().Name())
	st := &loopState{
		l:            l,
		facts:        facts,
		ls:           ls,
		traits:       map[*memory.EstimateMemory]*traitEntry{},
		nodeLists:    map[*memory.AliasNode][]*traitEntry{},
		unknowns:     map[ir.Instruction]*unknownEntry{},
		nodeUnknowns: map[*memory.AliasNode][]*unknownEntry{},
		depImps:      map[*memory.EstimateMemory]*depImp{},
	}
	a.collectDependencies(st)
	a.resolveAccesses(st)
	a.collectHeaderAccesses(st)
	a.resolvePointers(st)
	a.resolveAddresses(st)
	a.results[l] = a.propagateTraits(st)
}

// collectDependencies registers loop-carried dependencies between every pair
// of memory instructions in the loop. Pairs where one side has no resolvable
// location are judged through the alias oracle and always carry unknown
// distance; located pairs go through the dependence oracle.
func (a *Analyzer) collectDependencies(st *loopState) {
	var insts []ir.Instruction
	for _, b := range st.l.Blocks {
		for _, i := range b.Instrs {
			if ir.MayReadOrWriteMemory(i) {
				insts = append(insts, i)
			}
		}
	}
	aa := a.Tree.AliasAnalysis()
	allKinds := trait.PropFlow | trait.PropAnti | trait.PropOutput
	for si, src := range insts {
		sLoc, sOK := ir.AccessLocation(src)
		if !sOK {
			for _, dst := range insts[si:] {
				dLoc, ok := ir.AccessLocation(dst)
				if !ok {
					// Two opaque accesses; their node-level conflict is
					// recorded through the unknown traits.
					continue
				}
				if aa.ModRef(src, dLoc) == memory.NoModRef {
					continue
				}
				st.updateDependence(a.Tree.Find(dLoc), allKinds, unknownAccessFlags(src), nil)
			}
			continue
		}
		for _, dst := range insts[si:] {
			dLoc, dOK := ir.AccessLocation(dst)
			if !dOK {
				if aa.ModRef(dst, sLoc) == memory.NoModRef {
					continue
				}
				st.updateDependence(a.Tree.Find(sLoc), allKinds, unknownAccessFlags(dst), nil)
				continue
			}
			d := a.Oracle.Depends(src, dst, st.l)
			if d == nil {
				continue
			}
			if d.Kind == deps.Input {
				a.Log.Tracef("ignore input dependence between %s and %s", src, dst)
				continue
			}
			a.insertDependence(st, d, sLoc, dLoc)
		}
	}
}

func unknownAccessFlags(i ir.Instruction) trait.DepFlag {
	f := trait.DepMay | trait.DepUnknownDistance
	if _, ok := i.(*ir.Call); ok {
		return f | trait.DepCallCause
	}
	return f | trait.DepUnknownCause
}

// insertDependence filters a raw dependence down to the part carried by the
// current loop and registers it against both endpoint locations.
func (a *Analyzer) insertDependence(st *loopState, d *deps.Dependence, src, dst ir.Location) {
	depth := st.l.Depth
	for outer := 1; outer < depth; outer++ {
		switch d.Direction(outer) {
		case deps.DirEQ, deps.DirAll, deps.DirLE, deps.DirGE:
		default:
			// The endpoints never share an iteration of an enclosing loop,
			// so this loop carries nothing.
			a.Log.Tracef("ignore dependence carried by an enclosing loop")
			return
		}
	}
	dir := d.Direction(depth)
	if dir == deps.DirEQ {
		a.Log.Tracef("ignore loop independent dependence")
		return
	}
	var props trait.Property
	switch {
	case d.Kind == deps.Output:
		props = trait.PropOutput
	case dir == deps.DirAll:
		props = trait.PropFlow | trait.PropAnti
	case d.Kind == deps.Flow:
		if dir == deps.DirLT || dir == deps.DirLE {
			props = trait.PropFlow
		} else {
			props = trait.PropAnti
		}
	case d.Kind == deps.Anti:
		if dir == deps.DirLT || dir == deps.DirLE {
			props = trait.PropAnti
		} else {
			props = trait.PropFlow
		}
	default:
		props = trait.PropFlow | trait.PropAnti
	}
	flags := trait.DepLoadStoreCause
	if !d.Confirmed() {
		flags |= trait.DepMay
	}
	dist := d.Distance(depth)
	st.updateDependence(a.Tree.Find(src), props, flags, dist)
	st.updateDependence(a.Tree.Find(dst), props, flags, dist)
}

// resolveAccesses seeds the trait of every explicitly accessed location from
// the loop's definition, use and liveness facts.
func (a *Analyzer) resolveAccesses(st *loopState) {
	du := st.facts.DefUse
	for _, em := range du.Explicit {
		e := st.entry(em)
		// With a registered dependence the location can never be proven
		// shared, and a location both read and written degrades outright.
		sharedTrait, defTrait := trait.NoAccess, trait.Dependency
		if st.depImps[em] == nil {
			sharedTrait, defTrait = trait.Shared, trait.Shared
		}
		switch {
		case !du.HasUse(em):
			switch {
			case !st.ls.OverlapOut(em):
				e.t = e.t.Meet(trait.Private & sharedTrait)
			case du.HasDef(em):
				e.t = e.t.Meet(trait.LastPrivate & sharedTrait)
			case st.facts.Latch.MustReach.Contain(em) && !st.facts.Exits.MayReach.Overlap(em):
				// The surviving value is written by the iteration before
				// the final exit test. The loop may also run its single
				// iteration without writing at all, hence first private.
				e.t = e.t.Meet(trait.SecondToLastPrivate & trait.FirstPrivate & sharedTrait)
			default:
				// No proof the loop always writes the location; the value
				// from before the loop must be preserved.
				e.t = e.t.Meet(trait.DynamicPrivate & trait.FirstPrivate & sharedTrait)
			}
		case du.HasMayDef(em) || du.HasDef(em):
			e.t = e.t.Meet(defTrait)
		default:
			e.t = e.t.Meet(trait.Readonly)
		}
		a.Log.Tracef("update traits of %s to %07b", em, e.t.DropUnitFlags()&0x7f)
	}
	for _, u := range du.Unknowns {
		t := trait.Dependency
		if a.callReadsOnly(u) {
			t = trait.Readonly
		}
		ue := &unknownEntry{instr: u, t: t}
		st.unknowns[u] = ue
		n := a.Tree.FindUnknown(u)
		if n == nil {
			panic("alias node of an unknown access must not be nil")
		}
		st.nodeUnknowns[n] = append(st.nodeUnknowns[n], ue)
	}
}

func (a *Analyzer) callReadsOnly(i ir.Instruction) bool {
	c, ok := i.(*ir.Call)
	if !ok {
		return false
	}
	return c.ReadsOnly || (a.Config != nil && a.Config.AssumeCallReadonly)
}

// collectHeaderAccesses flags the locations touched by the loop header;
// their values take part in the exit decision of every iteration.
func (a *Analyzer) collectHeaderAccesses(st *loopState) {
	for _, i := range st.l.Header.Instrs {
		if loc, ok := ir.AccessLocation(i); ok {
			em := a.Tree.Find(loc)
			e := st.traits[em]
			if e == nil {
				panic(fmt.Sprintf("trait of header access %s must be initialized", loc))
			}
			e.t = e.t.Meet(trait.HeaderAccess)
		} else if _, ok := i.(*ir.Call); ok {
			if ue := st.unknowns[i]; ue != nil {
				ue.t = ue.t.Meet(trait.HeaderAccess)
			}
		}
	}
}

// resolvePointers degrades locations reached through a pointer the loop may
// redefine. The address to copy in or out is unknowable then:
//
//	for (...) { p = &x; *p = ...; p = &y; }
//
// after the loop p is &y, but the stores went to x as well.
func (a *Analyzer) resolvePointers(st *loopState) {
	for _, em := range st.facts.DefUse.Explicit {
		ld, ok := em.Front().(*ir.Load)
		if !ok {
			continue
		}
		e := st.traits[em]
		k := e.t.DropUnitFlags()
		if k.DropShared() == trait.Private.DropShared() || k == trait.Readonly || k == trait.Shared {
			continue
		}
		ptr := a.Tree.Find(ld.Loc())
		pe := st.traits[ptr]
		if pe == nil || pe.t.DropUnitFlags() == trait.Readonly {
			// The pointer is loop invariant; the access pattern is stable.
			continue
		}
		e.t = e.t.Meet(trait.Dependency)
	}
}

// resolveAddresses marks objects whose address escapes inside the loop: a
// privatized copy would have a different address than the one observed.
func (a *Analyzer) resolveAddresses(st *loopState) {
	for _, obj := range st.facts.DefUse.AddressTaken {
		var size int64
		switch o := obj.(type) {
		case *ir.Alloca:
			size = o.Size()
		case *ir.Global:
			size = o.Size()
		default:
			continue
		}
		em := a.Tree.Find(ir.Location{Addr: obj, Size: size})
		e := st.entry(em)
		e.t = e.t.Meet(trait.AddressAccess)
	}
}

// propagateTraits walks the alias tree children first, bubbles every
// location's trait up through the estimate and alias hierarchies, and stores
// per-node results.
func (a *Analyzer) propagateTraits(st *loopState) *trait.DependencySet {
	ds := trait.NewDependencySet(a.Tree)
	var walk func(n *memory.AliasNode) ([]*traitEntry, []*unknownEntry)
	walk = func(n *memory.AliasNode) ([]*traitEntry, []*unknownEntry) {
		list := append([]*traitEntry(nil), st.nodeLists[n]...)
		unks := append([]*unknownEntry(nil), st.nodeUnknowns[n]...)
		for _, c := range n.Children() {
			clist, cunks := walk(c)
			for _, e := range clist {
				p := e.em.Parent()
				if p == nil || p.AliasNode() != n {
					// Not yet at the node owning the enclosing location;
					// keep bubbling the entry unchanged.
					list = append(list, e)
					continue
				}
				if pe := st.traits[p]; pe != nil {
					pe.t = pe.t.Meet(e.t)
					st.mergeDependence(p, pe.t, e.em)
				} else {
					st.mergeDependence(p, e.t, e.em)
				}
				list = append(list, &traitEntry{em: p, t: e.t})
			}
			unks = append(unks, cunks...)
		}
		list = a.removeRedundant(st, n, list)
		a.storeResults(st, n, list, unks, ds)
		return list, unks
	}
	walk(a.Tree.TopLevelNode())
	a.spreadDependence(st, ds)
	return ds
}

// removeRedundant hoists every entry to the largest enclosing location still
// attached to node n, then folds entries subsumed by another entry of the
// same list.
func (a *Analyzer) removeRedundant(st *loopState, n *memory.AliasNode, list []*traitEntry) []*traitEntry {
	for i := 0; i < len(list); {
		cur := list[i]
		if cur.em.AliasNode() == n {
			hoisted := cur.em
			for hoisted.Parent() != nil && hoisted.Parent().AliasNode() == n {
				hoisted = hoisted.Parent()
			}
			if hoisted != cur.em {
				st.mergeDependence(hoisted, cur.t, cur.em)
				cur.em = hoisted
			}
		}
		erased := false
		for j := i + 1; j < len(list); {
			o := list[j]
			if o.em == cur.em {
				o.t = o.t.Meet(cur.t)
				list = append(list[:i], list[i+1:]...)
				erased = true
				break
			}
			switch memory.Ancestor(cur.em, o.em) {
			case o.em:
				o.t = o.t.Meet(cur.t)
				st.mergeDependence(o.em, o.t, cur.em)
				list = append(list[:i], list[i+1:]...)
				erased = true
			case cur.em:
				cur.t = cur.t.Meet(o.t)
				st.mergeDependence(cur.em, cur.t, o.em)
				list = append(list[:j], list[j+1:]...)
				continue
			default:
				j++
			}
			if erased {
				break
			}
		}
		if !erased {
			i++
		}
	}
	return list
}

// checkFirstPrivate decides whether a last- or second-to-last-private
// location also needs its incoming value: unless the loop surely writes the
// location completely, byte for byte, the pre-loop value must be copied in.
func (a *Analyzer) checkFirstPrivate(st *loopState, e *traitEntry, dptr *trait.Descriptor) {
	if dptr.Is(trait.PropFirstPrivate) ||
		!dptr.Is(trait.PropLastPrivate) && !dptr.Is(trait.PropSecondToLastPrivate) {
		return
	}
	var leaves []*memory.EstimateMemory
	for _, d := range e.em.Descendants() {
		if !d.IsLeaf() {
			continue
		}
		if dptr.Is(trait.PropLastPrivate) {
			if !st.facts.Exits.MustReach.Contain(d) {
				continue
			}
		} else if !st.facts.Latch.MustReach.Contain(d) && !st.facts.Exits.MustReach.Contain(d) {
			continue
		}
		leaves = append(leaves, d)
	}
	if memory.Cover(a.numbers, e.em, leaves) {
		return
	}
	e.t = e.t.Meet(trait.FirstPrivate)
	dptr.Set(trait.PropFirstPrivate)
}

// summarizeDep attaches the accumulated dependence qualifications to a
// descriptor that degraded to Dependency. Without a record the cause is
// genuinely unknown.
func summarizeDep(imp *depImp, dptr *trait.Descriptor) {
	if imp == nil || imp.props == 0 {
		dep := &trait.Dep{Flags: trait.DepMay | trait.DepUnknownDistance | trait.DepUnknownCause}
		dptr.SetDep(trait.PropFlow, dep)
		dptr.SetDep(trait.PropAnti, dep)
		dptr.SetDep(trait.PropOutput, dep)
		return
	}
	imp.summarize(dptr)
}

// copyDeps transfers the dependence kinds and payloads set in src to dst.
func copyDeps(src, dst *trait.Descriptor) {
	for _, p := range depProps {
		if !src.Is(p) {
			continue
		}
		if d := src.Dep(p); d != nil {
			dst.SetDep(p, d)
		} else {
			dst.Set(p)
		}
	}
}

// storeResults converts the node's final bit traits into descriptors and
// records them in the dependency set.
func (a *Analyzer) storeResults(st *loopState, n *memory.AliasNode,
	list []*traitEntry, unks []*unknownEntry, ds *trait.DependencySet) {
	if len(list) == 0 && len(unks) == 0 {
		return
	}
	at := ds.Insert(n)
	if len(list) == 1 && len(unks) == 0 {
		e := list[0]
		dptr := e.t.ToDescriptor(1, a.Stats)
		a.checkFirstPrivate(st, e, dptr)
		if st.explicitlyAccessed(e.em, n) {
			dptr.Set(trait.PropExplicitAccess)
		}
		dptr.Unset(trait.PropFlow | trait.PropAnti | trait.PropOutput)
		if e.t.DropUnitFlags() == trait.Dependency {
			summarizeDep(st.depImps[e.em], dptr)
		}
		at.Combined = dptr
		at.InsertEm(e.em, dptr)
		return
	}

	// Locations from different estimate trees meet in one node, so only
	// read-only, shared or dependency can hold for the node as a whole.
	combined := trait.NoAccess
	cdp := &trait.Descriptor{}
	explicitNode := false
	for _, e := range list {
		combined = combined.Meet(e.t)
		dptr := e.t.ToDescriptor(0, a.Stats)
		a.checkFirstPrivate(st, e, dptr)
		if st.explicitlyAccessed(e.em, n) {
			explicitNode = true
			dptr.Set(trait.PropExplicitAccess)
		}
		dptr.Unset(trait.PropFlow | trait.PropAnti | trait.PropOutput)
		if e.t.DropUnitFlags() == trait.Dependency {
			summarizeDep(st.depImps[e.em], dptr)
			copyDeps(dptr, cdp)
		}
		at.InsertEm(e.em, dptr)
	}
	for _, u := range unks {
		combined = combined.Meet(u.t)
		dptr := u.t.ToDescriptor(0, a.Stats)
		if u.t.DropUnitFlags() != trait.NoAccess && a.Tree.FindUnknown(u.instr) == n {
			explicitNode = true
			dptr.Set(trait.PropExplicitAccess)
		}
		if u.t.DropUnitFlags() == trait.Dependency {
			cdp.Set(trait.PropFlow | trait.PropAnti | trait.PropOutput)
		}
		at.InsertUnknown(u.instr, dptr)
	}
	combined = combined.RestrictToNode()
	nodeDptr := combined.ToDescriptor(at.Count(), a.Stats)
	nodeDptr.Unset(trait.PropFlow | trait.PropAnti | trait.PropOutput)
	copyDeps(cdp, nodeDptr)
	if explicitNode {
		nodeDptr.Set(trait.PropExplicitAccess)
	}
	at.Combined = nodeDptr
	a.Log.Tracef("set combined trait of %s to %s", n, nodeDptr)
	// The dependence kind must agree across the node: with memory
	// overlapping, a dependence observed on one location may in truth
	// belong to any of them.
	for _, et := range at.Ems() {
		copyDeps(cdp, et.Dptr)
	}
}

// spreadDependence closes results downward: when the explicit accesses of a
// node cover the memory it groups, every access below the node touches
// explicitly classified memory, so every accessed descendant node inherits
// loop-carried dependence kinds whatever the covering node resolved to.
func (a *Analyzer) spreadDependence(st *loopState, ds *trait.DependencySet) {
	for _, at := range ds.Nodes() {
		if !at.Combined.Is(trait.PropExplicitAccess) {
			continue
		}
		if !a.explicitAccessesCover(st, at.Node()) {
			continue
		}
		var taint func(n *memory.AliasNode)
		taint = func(n *memory.AliasNode) {
			for _, c := range n.Children() {
				if dt := ds.Find(c); dt != nil && !dt.Combined.Is(trait.PropNoAccess) {
					dt.Combined.Set(trait.PropFlow | trait.PropAnti | trait.PropOutput)
				}
				taint(c)
			}
		}
		taint(at.Node())
	}
}

// explicitAccessesCover reports whether the loop's explicit accesses cover
// every estimate chain grouped under n. An explicit unknown access has no
// span of its own and covers the node outright.
func (a *Analyzer) explicitAccessesCover(st *loopState, n *memory.AliasNode) bool {
	for _, u := range n.Unknowns() {
		if ue := st.unknowns[u]; ue != nil && ue.t.DropUnitFlags() != trait.NoAccess {
			return true
		}
	}
	covered := false
	for _, em := range n.Ems() {
		if p := em.Parent(); p != nil && p.AliasNode() == n {
			continue
		}
		var accessed []*memory.EstimateMemory
		for _, d := range em.Descendants() {
			if d.AliasNode() == n && st.explicitlyAccessed(d, n) {
				accessed = append(accessed, d)
			}
		}
		if len(accessed) == 0 || !memory.Cover(a.numbers, em, accessed) {
			return false
		}
		covered = true
	}
	return covered
}
