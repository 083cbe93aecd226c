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

// Package regions recovers the natural-loop forest of a function's
// control-flow graph. The privatizability engine walks the forest
// recursively and reads, per loop, its latch and exiting blocks.
package regions

import (
	"fmt"

	ybgraph "github.com/yourbasic/graph"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/flow"
	"gonum.org/v1/gonum/graph/iterator"

	"github.com/parloop/parloop/analysis/ir"
)

// A Loop is a natural loop: a header dominating a body that branches back to
// it. Loops form a forest by body containment.
type Loop struct {
	Header *ir.Block

	// Blocks is the loop body including the header, in block-index order.
	Blocks []*ir.Block

	// Latches are the in-loop predecessors of the header (back-edge sources).
	Latches []*ir.Block

	// Exits are the in-loop blocks with at least one successor outside the
	// loop: the blocks whose out state is observable after the loop.
	Exits []*ir.Block

	Parent   *Loop
	Children []*Loop

	// Depth is the nesting depth, 1 for outermost loops.
	Depth int

	blockSet map[*ir.Block]bool
}

// Contains reports whether b belongs to the loop body.
func (l *Loop) Contains(b *ir.Block) bool { return l.blockSet[b] }

func (l *Loop) String() string {
	return fmt.Sprintf("loop at depth %d headed by %s", l.Depth, l.Header.Label())
}

// Info is the loop forest of one function plus the dominator facts the
// dataflow passes need.
type Info struct {
	Fn    *ir.Function
	Roots []*Loop

	// Irreducible is set when the CFG contains a cycle that is not a natural
	// loop. Such functions are not analyzed.
	Irreducible bool

	idom []*ir.Block
}

// Build computes the loop forest of fn.
func Build(fn *ir.Function) *Info {
	info := &Info{Fn: fn}
	if len(fn.Blocks) == 0 {
		return info
	}
	info.idom = immediateDominators(fn)

	// Back edges: u -> v where v dominates u.
	type backEdge struct{ src, head *ir.Block }
	var backs []backEdge
	for _, b := range fn.Blocks {
		for _, s := range b.Succs {
			if info.Dominates(s, b) {
				backs = append(backs, backEdge{src: b, head: s})
			}
		}
	}
	info.Irreducible = hasIrreducibleCycle(fn, info)
	if info.Irreducible {
		return info
	}

	// Collect the natural loop of each header: reverse flood from every
	// back-edge source, not walking through the header.
	byHeader := map[*ir.Block]*Loop{}
	var loops []*Loop
	for _, be := range backs {
		l := byHeader[be.head]
		if l == nil {
			l = &Loop{Header: be.head, blockSet: map[*ir.Block]bool{be.head: true}}
			byHeader[be.head] = l
			loops = append(loops, l)
		}
		l.Latches = append(l.Latches, be.src)
		work := []*ir.Block{be.src}
		for len(work) > 0 {
			b := work[len(work)-1]
			work = work[:len(work)-1]
			if l.blockSet[b] {
				continue
			}
			l.blockSet[b] = true
			work = append(work, b.Preds...)
		}
	}
	for _, l := range loops {
		for _, b := range fn.Blocks {
			if !l.blockSet[b] {
				continue
			}
			l.Blocks = append(l.Blocks, b)
			for _, s := range b.Succs {
				if !l.blockSet[s] {
					l.Exits = append(l.Exits, b)
					break
				}
			}
		}
	}

	// Nest loops: the parent of l is the smallest loop strictly containing
	// l's header other than l itself.
	for _, l := range loops {
		var parent *Loop
		for _, p := range loops {
			if p == l || !p.blockSet[l.Header] || len(p.Blocks) <= len(l.Blocks) {
				continue
			}
			if parent == nil || len(p.Blocks) < len(parent.Blocks) {
				parent = p
			}
		}
		l.Parent = parent
	}
	for _, l := range loops {
		if l.Parent == nil {
			info.Roots = append(info.Roots, l)
		} else {
			l.Parent.Children = append(l.Parent.Children, l)
		}
	}
	var setDepth func(l *Loop, d int)
	setDepth = func(l *Loop, d int) {
		l.Depth = d
		for _, c := range l.Children {
			setDepth(c, d+1)
		}
	}
	for _, l := range info.Roots {
		setDepth(l, 1)
	}
	return info
}

// Dominates reports whether a dominates b (reflexively).
func (info *Info) Dominates(a, b *ir.Block) bool {
	for x := b; x != nil; x = info.idom[x.Index()] {
		if x == a {
			return true
		}
	}
	return false
}

// PreOrder returns all loops, each loop before its children.
func (info *Info) PreOrder() []*Loop {
	var out []*Loop
	var walk func(l *Loop)
	walk = func(l *Loop) {
		out = append(out, l)
		for _, c := range l.Children {
			walk(c)
		}
	}
	for _, l := range info.Roots {
		walk(l)
	}
	return out
}

// immediateDominators computes the idom of every block through gonum's
// dominator tree. The entry block has a nil idom.
func immediateDominators(fn *ir.Function) []*ir.Block {
	g := cfgGraph{fn: fn}
	dt := flow.Dominators(cfgNode{b: fn.Entry()}, g)
	idom := make([]*ir.Block, len(fn.Blocks))
	for _, b := range fn.Blocks {
		if b == fn.Entry() {
			continue
		}
		if d := dt.DominatorOf(int64(b.Index())); d != nil {
			idom[b.Index()] = fn.Blocks[d.ID()]
		}
	}
	return idom
}

// hasIrreducibleCycle detects cycles that are not natural loops. Two tests
// are combined: a strongly connected component with more than one entry
// block, and a retreating DFS edge whose target does not dominate its
// source.
func hasIrreducibleCycle(fn *ir.Function, info *Info) bool {
	g := ybgraph.New(len(fn.Blocks))
	for _, b := range fn.Blocks {
		for _, s := range b.Succs {
			g.Add(b.Index(), s.Index())
		}
	}
	for _, comp := range ybgraph.StrongComponents(g) {
		if len(comp) < 2 {
			continue
		}
		inComp := map[int]bool{}
		for _, v := range comp {
			inComp[v] = true
		}
		entries := 0
		for _, v := range comp {
			for _, p := range fn.Blocks[v].Preds {
				if !inComp[p.Index()] {
					entries++
					break
				}
			}
		}
		if entries > 1 {
			return true
		}
	}

	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(fn.Blocks))
	var visit func(b *ir.Block) bool
	visit = func(b *ir.Block) bool {
		color[b.Index()] = grey
		for _, s := range b.Succs {
			switch color[s.Index()] {
			case grey:
				if !info.Dominates(s, b) {
					return true
				}
			case white:
				if visit(s) {
					return true
				}
			}
		}
		color[b.Index()] = black
		return false
	}
	return visit(fn.Entry())
}

// cfgGraph adapts a function's CFG to gonum's directed-graph interface, the
// same way the callgraph is adapted for cycle search elsewhere.
type cfgGraph struct {
	fn *ir.Function
}

type cfgNode struct {
	b *ir.Block
}

func (n cfgNode) ID() int64 { return int64(n.b.Index()) }

type cfgEdge struct {
	from, to cfgNode
}

func (e cfgEdge) From() graph.Node         { return e.from }
func (e cfgEdge) To() graph.Node           { return e.to }
func (e cfgEdge) ReversedEdge() graph.Edge { return cfgEdge{from: e.to, to: e.from} }

func (g cfgGraph) Node(id int64) graph.Node {
	if id < 0 || id >= int64(len(g.fn.Blocks)) {
		return nil
	}
	return cfgNode{b: g.fn.Blocks[id]}
}

func (g cfgGraph) Nodes() graph.Nodes {
	nodes := make([]graph.Node, len(g.fn.Blocks))
	for i, b := range g.fn.Blocks {
		nodes[i] = cfgNode{b: b}
	}
	return iterator.NewOrderedNodes(nodes)
}

func (g cfgGraph) From(id int64) graph.Nodes {
	b := g.fn.Blocks[id]
	nodes := make([]graph.Node, 0, len(b.Succs))
	seen := map[int]bool{}
	for _, s := range b.Succs {
		if !seen[s.Index()] {
			seen[s.Index()] = true
			nodes = append(nodes, cfgNode{b: s})
		}
	}
	return iterator.NewOrderedNodes(nodes)
}

func (g cfgGraph) To(id int64) graph.Nodes {
	b := g.fn.Blocks[id]
	nodes := make([]graph.Node, 0, len(b.Preds))
	seen := map[int]bool{}
	for _, p := range b.Preds {
		if !seen[p.Index()] {
			seen[p.Index()] = true
			nodes = append(nodes, cfgNode{b: p})
		}
	}
	return iterator.NewOrderedNodes(nodes)
}

func (g cfgGraph) HasEdgeFromTo(u, v int64) bool {
	for _, s := range g.fn.Blocks[u].Succs {
		if int64(s.Index()) == v {
			return true
		}
	}
	return false
}

func (g cfgGraph) HasEdgeBetween(x, y int64) bool {
	return g.HasEdgeFromTo(x, y) || g.HasEdgeFromTo(y, x)
}

func (g cfgGraph) Edge(u, v int64) graph.Edge {
	if !g.HasEdgeFromTo(u, v) {
		return nil
	}
	return cfgEdge{from: cfgNode{b: g.fn.Blocks[u]}, to: cfgNode{b: g.fn.Blocks[v]}}
}
