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

// Package memory organizes the locations a function accesses into an alias
// tree. Estimate memory locations form per-object containment forests (whole
// object above its fields and elements), and alias nodes group locations
// that may alias each other; a node's parent holds memory the node's
// contents may be reached through.
package memory

import (
	"fmt"
	"sort"

	"github.com/parloop/parloop/analysis/ir"
)

// An EstimateMemory is one location in the containment forest: a whole
// object, a field, an array element or a dereference target.
type EstimateMemory struct {
	id       int
	front    ir.Value
	off      int64
	size     int64
	ivElem   bool
	parent   *EstimateMemory
	children []*EstimateMemory
	node     *AliasNode
}

// ID returns a dense index, stable across runs on the same function. The
// dataflow sets key their bit vectors on it.
func (em *EstimateMemory) ID() int { return em.id }

// Front returns the value the location is addressed through: the object for
// objects and their parts, the pointer value for dereference targets.
func (em *EstimateMemory) Front() ir.Value { return em.front }

// Size returns the width of the location in bytes.
func (em *EstimateMemory) Size() int64 { return em.size }

// Offset returns the byte offset of the location inside its top-level
// object. Dereference targets report zero.
func (em *EstimateMemory) Offset() int64 { return em.off }

// Parent returns the immediately enclosing location, nil for top-level ones.
func (em *EstimateMemory) Parent() *EstimateMemory { return em.parent }

// Children returns the locations immediately contained in em.
func (em *EstimateMemory) Children() []*EstimateMemory { return em.children }

// TopLevelParent returns the root of em's containment chain.
func (em *EstimateMemory) TopLevelParent() *EstimateMemory {
	top := em
	for top.parent != nil {
		top = top.parent
	}
	return top
}

// IsLeaf reports whether no smaller location is contained in em.
func (em *EstimateMemory) IsLeaf() bool { return len(em.children) == 0 }

// Varies reports whether the location's address depends on an induction
// variable, i.e. names a different element on every iteration.
func (em *EstimateMemory) Varies() bool { return em.ivElem }

// AliasNode returns the alias node the location belongs to.
func (em *EstimateMemory) AliasNode() *AliasNode { return em.node }

// Descendants returns em and every location contained in it, em first.
func (em *EstimateMemory) Descendants() []*EstimateMemory {
	out := []*EstimateMemory{em}
	for _, c := range em.children {
		out = append(out, c.Descendants()...)
	}
	return out
}

func (em *EstimateMemory) String() string {
	if em.parent == nil {
		return fmt.Sprintf("<%s,%d>", em.front.Name(), em.size)
	}
	if em.ivElem {
		return fmt.Sprintf("<%s[iv]+%d,%d>", em.TopLevelParent().front.Name(), em.off, em.size)
	}
	return fmt.Sprintf("<%s+%d,%d>", em.TopLevelParent().front.Name(), em.off, em.size)
}

// Overlaps reports whether the two locations may name common bytes.
func (em *EstimateMemory) Overlaps(other *EstimateMemory) bool {
	if Ancestor(em, other) != nil {
		return true
	}
	if !em.objectBased() || !other.objectBased() {
		// A dereference target may point anywhere.
		return true
	}
	if em.TopLevelParent() != other.TopLevelParent() {
		return false
	}
	if em.ivElem || other.ivElem {
		return true
	}
	return em.off < other.off+other.size && other.off < em.off+em.size
}

func (em *EstimateMemory) objectBased() bool {
	switch em.front.(type) {
	case *ir.Alloca, *ir.Global:
		return true
	}
	return false
}

// Ancestor returns whichever of a and b encloses the other (reflexively),
// or nil when neither does.
func Ancestor(a, b *EstimateMemory) *EstimateMemory {
	for x := b; x != nil; x = x.parent {
		if x == a {
			return a
		}
	}
	for x := a; x != nil; x = x.parent {
		if x == b {
			return b
		}
	}
	return nil
}

// An AliasNode groups estimate locations that may alias each other, plus the
// instructions with statically unknown memory behavior that may touch them.
type AliasNode struct {
	id       int
	parent   *AliasNode
	children []*AliasNode
	ems      []*EstimateMemory
	unknowns []ir.Instruction
}

// ID returns a dense index, stable across runs on the same function.
func (n *AliasNode) ID() int { return n.id }

// Parent returns the enclosing alias node, nil for the root.
func (n *AliasNode) Parent() *AliasNode { return n.parent }

// Children returns the alias nodes grouped under n.
func (n *AliasNode) Children() []*AliasNode { return n.children }

// Ems returns the estimate locations attached to n.
func (n *AliasNode) Ems() []*EstimateMemory { return n.ems }

// Unknowns returns the unknown-memory instructions attached to n.
func (n *AliasNode) Unknowns() []ir.Instruction { return n.unknowns }

func (n *AliasNode) String() string {
	if len(n.ems) > 0 {
		return fmt.Sprintf("alias node %d at %s", n.id, n.ems[0])
	}
	if len(n.unknowns) > 0 {
		return fmt.Sprintf("alias node %d (unknown accesses)", n.id)
	}
	return fmt.Sprintf("alias node %d", n.id)
}

type emKey struct {
	front ir.Value
	off   int64
	size  int64
	coeff int64
	depth int
}

// An AliasTree is the alias-node hierarchy of one function together with the
// estimate-memory forest hanging off it.
type AliasTree struct {
	fn    *ir.Function
	aa    AliasAnalysis
	root  *AliasNode
	nodes []*AliasNode

	ems            []*EstimateMemory
	byKey          map[emKey]*EstimateMemory
	unknownByInstr map[ir.Instruction]*AliasNode
}

// Fn returns the function the tree was built for.
func (t *AliasTree) Fn() *ir.Function { return t.fn }

// AliasAnalysis returns the alias oracle the tree was built with.
func (t *AliasTree) AliasAnalysis() AliasAnalysis { return t.aa }

// TopLevelNode returns the root alias node.
func (t *AliasTree) TopLevelNode() *AliasNode { return t.root }

// Nodes returns all alias nodes in creation order.
func (t *AliasTree) Nodes() []*AliasNode { return t.nodes }

// Ems returns all estimate locations in creation order.
func (t *AliasTree) Ems() []*EstimateMemory { return t.ems }

// PostOrder returns the alias nodes children-first.
func (t *AliasTree) PostOrder() []*AliasNode {
	var out []*AliasNode
	var walk func(n *AliasNode)
	walk = func(n *AliasNode) {
		for _, c := range n.children {
			walk(c)
		}
		out = append(out, n)
	}
	walk(t.root)
	return out
}

// Find returns the estimate location of loc. Every location an instruction
// of the function accesses is registered at build time, so a miss is a bug
// in the caller.
func (t *AliasTree) Find(loc ir.Location) *EstimateMemory {
	em := t.byKey[t.keyFor(loc)]
	if em == nil {
		panic(fmt.Sprintf("location %s must be registered in the alias tree", loc))
	}
	return em
}

// FindUnknown returns the alias node holding the unknown-memory instruction
// i, or nil when i does not touch memory in an unknown way.
func (t *AliasTree) FindUnknown(i ir.Instruction) *AliasNode {
	return t.unknownByInstr[i]
}

func (t *AliasTree) keyFor(loc ir.Location) emKey {
	switch a := loc.Addr.(type) {
	case *ir.Alloca:
		if loc.Size >= a.Size() {
			return emKey{front: a, off: 0, size: a.Size()}
		}
		return emKey{front: a, off: 0, size: loc.Size}
	case *ir.Global:
		if loc.Size >= a.Size() {
			return emKey{front: a, off: 0, size: a.Size()}
		}
		return emKey{front: a, off: 0, size: loc.Size}
	case *ir.Index:
		if obj, off, coeff, depth, ok := resolveIndex(a); ok {
			return emKey{front: obj, off: off, size: loc.Size, coeff: coeff, depth: depth}
		}
		return emKey{front: loc.Addr, size: loc.Size}
	default:
		return emKey{front: loc.Addr, size: loc.Size}
	}
}

// resolveIndex follows an index chain down to an alloca or global base. The
// chain contributes its offsets; the innermost non-zero coefficient wins.
func resolveIndex(x *ir.Index) (obj ir.Value, off, coeff int64, depth int, ok bool) {
	off = x.Off
	coeff = x.Coeff
	depth = x.Depth
	base := x.Base
	for {
		switch b := base.(type) {
		case *ir.Alloca, *ir.Global:
			return b, off, coeff, depth, true
		case *ir.Index:
			off += b.Off
			if coeff == 0 {
				coeff, depth = b.Coeff, b.Depth
			}
			base = b.Base
		default:
			return nil, 0, 0, 0, false
		}
	}
}

// Build constructs the alias tree of fn. Object locations always get their
// whole-object estimate; parts are added for the accesses the function
// actually performs.
func Build(fn *ir.Function, aa AliasAnalysis) *AliasTree {
	t := &AliasTree{
		fn:             fn,
		aa:             aa,
		byKey:          map[emKey]*EstimateMemory{},
		unknownByInstr: map[ir.Instruction]*AliasNode{},
	}
	t.root = t.newNode(nil)

	var wholes []*EstimateMemory
	whole := func(obj ir.Value, size int64) *EstimateMemory {
		key := emKey{front: obj, off: 0, size: size}
		if em := t.byKey[key]; em != nil {
			return em
		}
		em := t.newEm(key, false)
		wholes = append(wholes, em)
		return em
	}
	for _, b := range fn.Blocks {
		for _, i := range b.Instrs {
			if a, ok := i.(*ir.Alloca); ok {
				whole(a, a.Size())
			}
		}
	}
	for _, g := range fn.Globals {
		whole(g, g.Size())
	}

	// Register every accessed location, splitting out parts and dereference
	// targets, and remember the unknown accesses.
	var derefs []*EstimateMemory
	var unknowns []ir.Instruction
	for _, b := range fn.Blocks {
		for _, i := range b.Instrs {
			if c, ok := i.(*ir.Call); ok {
				unknowns = append(unknowns, c)
				continue
			}
			loc, ok := ir.AccessLocation(i)
			if !ok {
				continue
			}
			key := t.keyFor(loc)
			if t.byKey[key] != nil {
				continue
			}
			switch key.front.(type) {
			case *ir.Alloca, *ir.Global:
				ivElem := false
				if x, isIndex := loc.Addr.(*ir.Index); isIndex {
					_, _, coeff, _, _ := resolveIndex(x)
					ivElem = coeff != 0
				}
				t.newEm(key, ivElem)
			default:
				derefs = append(derefs, t.newEm(key, false))
			}
		}
	}

	// Containment: each part's parent is the smallest fixed part strictly
	// containing its byte range, falling back to the whole object. Elements
	// addressed through an induction variable hang directly off the whole
	// object.
	byObj := map[ir.Value][]*EstimateMemory{}
	for _, em := range t.ems {
		switch em.front.(type) {
		case *ir.Alloca, *ir.Global:
			byObj[em.front] = append(byObj[em.front], em)
		}
	}
	for _, w := range wholes {
		parts := byObj[w.front]
		sort.Slice(parts, func(i, j int) bool { return parts[i].size > parts[j].size })
		for _, p := range parts {
			if p == w {
				continue
			}
			parent := w
			if !p.ivElem {
				for _, q := range parts {
					if q == p || q == w || q.ivElem {
						continue
					}
					if q.off <= p.off && p.off+p.size <= q.off+q.size && q.size > p.size &&
						(parent == w || q.size < parent.size) {
						parent = q
					}
				}
			}
			p.parent = parent
			parent.children = append(parent.children, p)
		}
	}

	// Alias nodes. Dereference targets and unknown accesses may touch any
	// object, so when they exist every object node hangs below theirs.
	objParent := t.root
	if len(derefs) > 0 || len(unknowns) > 0 {
		d := t.newNode(t.root)
		for _, em := range derefs {
			t.attach(em, d)
		}
		for _, u := range unknowns {
			d.unknowns = append(d.unknowns, u)
			t.unknownByInstr[u] = d
		}
		objParent = d
	}
	for _, w := range wholes {
		n := t.newNode(objParent)
		t.attach(w, n)
		var parts []*EstimateMemory
		for _, em := range byObj[w.front] {
			if em != w {
				parts = append(parts, em)
			}
		}
		if len(parts) > 0 {
			sub := t.newNode(n)
			sort.Slice(parts, func(i, j int) bool { return parts[i].id < parts[j].id })
			for _, p := range parts {
				t.attach(p, sub)
			}
		}
	}
	return t
}

func (t *AliasTree) newNode(parent *AliasNode) *AliasNode {
	n := &AliasNode{id: len(t.nodes), parent: parent}
	if parent != nil {
		parent.children = append(parent.children, n)
	}
	t.nodes = append(t.nodes, n)
	return n
}

func (t *AliasTree) newEm(key emKey, ivElem bool) *EstimateMemory {
	em := &EstimateMemory{
		id:     len(t.ems),
		front:  key.front,
		off:    key.off,
		size:   key.size,
		ivElem: ivElem,
	}
	t.ems = append(t.ems, em)
	t.byKey[key] = em
	return em
}

func (t *AliasTree) attach(em *EstimateMemory, n *AliasNode) {
	em.node = n
	n.ems = append(n.ems, em)
}
