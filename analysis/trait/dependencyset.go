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

package trait

import (
	"github.com/parloop/parloop/analysis/ir"
	"github.com/parloop/parloop/analysis/memory"
)

// An EstimateMemoryTrait is the final trait of one estimate location.
type EstimateMemoryTrait struct {
	Em   *memory.EstimateMemory
	Dptr *Descriptor
}

// An UnknownMemoryTrait is the final trait of one unknown-memory
// instruction.
type UnknownMemoryTrait struct {
	Instr ir.Instruction
	Dptr  *Descriptor
}

// An AliasTrait is the result for one alias node: a combined descriptor for
// the node plus the per-location traits attached to it.
type AliasTrait struct {
	node     *memory.AliasNode
	Combined *Descriptor
	ems      []*EstimateMemoryTrait
	unknowns []*UnknownMemoryTrait
}

// Node returns the alias node the trait describes.
func (t *AliasTrait) Node() *memory.AliasNode { return t.node }

// Ems returns the per-location traits in insertion order.
func (t *AliasTrait) Ems() []*EstimateMemoryTrait { return t.ems }

// Unknowns returns the traits of unknown-memory instructions.
func (t *AliasTrait) Unknowns() []*UnknownMemoryTrait { return t.unknowns }

// Count returns the number of location traits attached to the node.
func (t *AliasTrait) Count() int { return len(t.ems) }

// InsertEm attaches the trait of em, replacing an earlier trait of the same
// location.
func (t *AliasTrait) InsertEm(em *memory.EstimateMemory, d *Descriptor) *EstimateMemoryTrait {
	for _, e := range t.ems {
		if e.Em == em {
			e.Dptr = d
			return e
		}
	}
	e := &EstimateMemoryTrait{Em: em, Dptr: d}
	t.ems = append(t.ems, e)
	return e
}

// InsertUnknown attaches the trait of an unknown-memory instruction.
func (t *AliasTrait) InsertUnknown(i ir.Instruction, d *Descriptor) *UnknownMemoryTrait {
	for _, u := range t.unknowns {
		if u.Instr == i {
			u.Dptr = d
			return u
		}
	}
	u := &UnknownMemoryTrait{Instr: i, Dptr: d}
	t.unknowns = append(t.unknowns, u)
	return u
}

// FindEm returns the trait of em attached to the node, nil if absent.
func (t *AliasTrait) FindEm(em *memory.EstimateMemory) *EstimateMemoryTrait {
	for _, e := range t.ems {
		if e.Em == em {
			return e
		}
	}
	return nil
}

// A DependencySet is the result of analyzing one loop: an alias trait per
// alias node with at least one accessed location.
type DependencySet struct {
	tree   *memory.AliasTree
	byNode map[*memory.AliasNode]*AliasTrait
	order  []*AliasTrait
}

// NewDependencySet returns an empty result over tree.
func NewDependencySet(tree *memory.AliasTree) *DependencySet {
	return &DependencySet{tree: tree, byNode: map[*memory.AliasNode]*AliasTrait{}}
}

// Tree returns the alias tree the results refer to.
func (s *DependencySet) Tree() *memory.AliasTree { return s.tree }

// Find returns the trait of node, nil if the loop never touches it.
func (s *DependencySet) Find(node *memory.AliasNode) *AliasTrait {
	return s.byNode[node]
}

// Insert returns the trait of node, creating an empty one on first use.
func (s *DependencySet) Insert(node *memory.AliasNode) *AliasTrait {
	if t := s.byNode[node]; t != nil {
		return t
	}
	t := &AliasTrait{node: node, Combined: &Descriptor{}}
	s.byNode[node] = t
	s.order = append(s.order, t)
	return t
}

// Nodes returns the alias traits in insertion order.
func (s *DependencySet) Nodes() []*AliasTrait { return s.order }
