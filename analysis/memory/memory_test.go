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

package memory_test

import (
	"testing"

	"github.com/parloop/parloop/analysis/ir"
	"github.com/parloop/parloop/analysis/memory"
)

// buildStructured accesses a scalar, two halves of a pair, an array element
// through the induction variable and a dereferenced pointer.
func buildStructured(t *testing.T) (*ir.Function, *memory.AliasTree) {
	t.Helper()
	f := ir.NewFunction("structured")
	b := f.NewBlock("entry")
	s := b.Alloca("s", 4)
	pair := b.Alloca("pair", 8)
	arr := b.Alloca("arr", 40)
	p := f.NewGlobal("p", 8)
	b.Store(s, ir.Const(0), 4)
	lo := b.NewIndex("lo", pair, 0, 0, 0, 4)
	hi := b.NewIndex("hi", pair, 0, 0, 4, 4)
	b.Store(lo, ir.Const(1), 4)
	b.Store(hi, ir.Const(2), 4)
	elem := b.NewIndex("elem", arr, 4, 1, 0, 4)
	b.Store(elem, ir.Const(3), 4)
	pv := b.Load("pv", p, 8)
	b.Store(pv, ir.Const(4), 4)
	tree := memory.Build(f, memory.NewBasicAA())
	return f, tree
}

func TestTreeShape(t *testing.T) {
	f, tree := buildStructured(t)
	s := f.ValueByName("s")
	pair := f.ValueByName("pair")
	arr := f.ValueByName("arr")

	sEm := tree.Find(ir.Location{Addr: s, Size: 4})
	if sEm.Parent() != nil || sEm.Size() != 4 {
		t.Errorf("scalar must be a top-level estimate, got %s", sEm)
	}
	pairEm := tree.Find(ir.Location{Addr: pair, Size: 8})
	lo := tree.Find(ir.Location{Addr: f.ValueByName("lo"), Size: 4})
	hi := tree.Find(ir.Location{Addr: f.ValueByName("hi"), Size: 4})
	if lo.Parent() != pairEm || hi.Parent() != pairEm {
		t.Error("pair halves must hang off the whole pair")
	}
	if lo == hi {
		t.Error("distinct fields must get distinct estimates")
	}
	arrEm := tree.Find(ir.Location{Addr: arr, Size: 40})
	elem := tree.Find(ir.Location{Addr: f.ValueByName("elem"), Size: 4})
	if elem.Parent() != arrEm || !elem.Varies() {
		t.Errorf("array element must be a varying child of the array, got %s", elem)
	}
	if elem.TopLevelParent() != arrEm || !elem.IsLeaf() {
		t.Error("element containment chain is wrong")
	}

	// A dereference target and a call are present, so object nodes must sit
	// below the unknown node, which sits below the root.
	pv := f.ValueByName("pv")
	deref := tree.Find(ir.Location{Addr: pv, Size: 4})
	if deref.AliasNode().Parent() != tree.TopLevelNode() {
		t.Error("dereference node must be a child of the root")
	}
	if sEm.AliasNode().Parent() != deref.AliasNode() {
		t.Error("object nodes must hang below the dereference node")
	}
	if lo.AliasNode().Parent() != pairEm.AliasNode() {
		t.Error("part node must hang below its object node")
	}
}

func TestAncestor(t *testing.T) {
	f, tree := buildStructured(t)
	pairEm := tree.Find(ir.Location{Addr: f.ValueByName("pair"), Size: 8})
	lo := tree.Find(ir.Location{Addr: f.ValueByName("lo"), Size: 4})
	hi := tree.Find(ir.Location{Addr: f.ValueByName("hi"), Size: 4})
	if memory.Ancestor(pairEm, lo) != pairEm {
		t.Error("whole pair must be the ancestor of its field")
	}
	if memory.Ancestor(lo, pairEm) != pairEm {
		t.Error("Ancestor must be symmetric in its arguments")
	}
	if memory.Ancestor(lo, hi) != nil {
		t.Error("sibling fields are unrelated")
	}
	if memory.Ancestor(lo, lo) != lo {
		t.Error("Ancestor must be reflexive")
	}
}

func TestCover(t *testing.T) {
	f, tree := buildStructured(t)
	n := memory.Number(tree)
	pairEm := tree.Find(ir.Location{Addr: f.ValueByName("pair"), Size: 8})
	lo := tree.Find(ir.Location{Addr: f.ValueByName("lo"), Size: 4})
	hi := tree.Find(ir.Location{Addr: f.ValueByName("hi"), Size: 4})
	arrEm := tree.Find(ir.Location{Addr: f.ValueByName("arr"), Size: 40})
	elem := tree.Find(ir.Location{Addr: f.ValueByName("elem"), Size: 4})

	if !memory.Cover(n, pairEm, []*memory.EstimateMemory{lo, hi}) {
		t.Error("both halves must cover the pair")
	}
	if memory.Cover(n, pairEm, []*memory.EstimateMemory{lo}) {
		t.Error("one half must not cover the pair")
	}
	if !memory.Cover(n, lo, []*memory.EstimateMemory{lo}) {
		t.Error("a location covers itself")
	}
	if memory.Cover(n, arrEm, []*memory.EstimateMemory{elem}) {
		t.Error("a varying element must not cover the array")
	}
	if memory.Cover(n, pairEm, []*memory.EstimateMemory{elem, hi}) {
		t.Error("foreign parts must be ignored")
	}
}

func TestBasicAlias(t *testing.T) {
	f, _ := buildStructured(t)
	aa := memory.NewBasicAA()
	s := f.ValueByName("s")
	pair := f.ValueByName("pair")
	lo := f.ValueByName("lo")
	hi := f.ValueByName("hi")
	pv := f.ValueByName("pv")

	cases := []struct {
		name string
		a, b ir.Location
		want memory.AliasResult
	}{
		{"distinct objects", ir.Location{Addr: s, Size: 4}, ir.Location{Addr: pair, Size: 8}, memory.NoAlias},
		{"disjoint fields", ir.Location{Addr: lo, Size: 4}, ir.Location{Addr: hi, Size: 4}, memory.NoAlias},
		{"field in object", ir.Location{Addr: lo, Size: 4}, ir.Location{Addr: pair, Size: 8}, memory.MayAlias},
		{"same location", ir.Location{Addr: s, Size: 4}, ir.Location{Addr: s, Size: 4}, memory.MustAlias},
		{"deref vs object", ir.Location{Addr: pv, Size: 4}, ir.Location{Addr: s, Size: 4}, memory.MayAlias},
	}
	for _, c := range cases {
		if got := aa.Alias(c.a, c.b); got != c.want {
			t.Errorf("%s: Alias(%s, %s) = %s, want %s", c.name, c.a, c.b, got, c.want)
		}
	}
}

func TestModRef(t *testing.T) {
	f := ir.NewFunction("modref")
	b := f.NewBlock("entry")
	s := b.Alloca("s", 4)
	x := b.Alloca("x", 4)
	ld := b.Load("v", s, 4)
	st := b.Store(x, ir.Const(0), 4)
	ro := b.Call("r", "peek", true)
	rw := b.Call("w", "poke", false)

	aa := memory.NewBasicAA()
	sLoc := ir.Location{Addr: s, Size: 4}
	if m := aa.ModRef(ld, sLoc); !m.MayRef() || m.MayMod() {
		t.Errorf("load must only read, got %v", m)
	}
	if m := aa.ModRef(st, sLoc); m != memory.NoModRef {
		t.Errorf("store to a distinct object must not touch s, got %v", m)
	}
	if m := aa.ModRef(ro, sLoc); m != memory.Ref {
		t.Errorf("readonly call must be Ref, got %v", m)
	}
	if m := aa.ModRef(rw, sLoc); m != memory.ModRef {
		t.Errorf("opaque call must be ModRef, got %v", m)
	}
}
