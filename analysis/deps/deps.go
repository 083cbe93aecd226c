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

// Package deps answers pairwise dependence queries between memory
// instructions. The affine oracle resolves subscripts of the form
// coeff*iv+off exactly; everything else degrades to an unknown-direction
// dependence the trait engine must treat conservatively.
package deps

import (
	"github.com/parloop/parloop/analysis/ir"
	"github.com/parloop/parloop/analysis/memory"
	"github.com/parloop/parloop/analysis/regions"
	"github.com/parloop/parloop/analysis/sym"
)

// Direction constrains how the two dependent iterations relate at one loop
// level.
type Direction int

const (
	DirAll Direction = iota
	DirEQ
	DirLT
	DirLE
	DirGT
	DirGE
)

func (d Direction) String() string {
	switch d {
	case DirEQ:
		return "="
	case DirLT:
		return "<"
	case DirLE:
		return "<="
	case DirGT:
		return ">"
	case DirGE:
		return ">="
	}
	return "*"
}

// MayBeEqual reports whether the direction admits the same iteration.
func (d Direction) MayBeEqual() bool {
	return d == DirEQ || d == DirLE || d == DirGE || d == DirAll
}

// Kind is the classic dependence taxonomy.
type Kind int

const (
	Flow Kind = iota // write then read
	Anti             // read then write
	Output           // write then write
	Input            // read then read
)

func (k Kind) String() string {
	switch k {
	case Flow:
		return "flow"
	case Anti:
		return "anti"
	case Output:
		return "output"
	}
	return "input"
}

// A Dependence describes one dependence between two instructions: its kind,
// and per loop level a direction and, when known, a signed iteration
// distance.
type Dependence struct {
	Kind Kind

	dirs  []Direction
	dists []sym.Expr

	confirmed bool
}

// Direction returns the direction at the 1-based loop level; levels beyond
// the analyzed depth are unconstrained.
func (d *Dependence) Direction(level int) Direction {
	if level < 1 || level > len(d.dirs) {
		return DirAll
	}
	return d.dirs[level-1]
}

// Distance returns the signed iteration distance at the 1-based loop level,
// or nil when it is unknown.
func (d *Dependence) Distance(level int) sym.Expr {
	if level < 1 || level > len(d.dists) {
		return nil
	}
	return d.dists[level-1]
}

// Confirmed reports whether the dependence surely exists, as opposed to not
// having been disproven.
func (d *Dependence) Confirmed() bool { return d.confirmed }

// An Oracle decides whether dst depends on src with respect to the loop
// nest enclosing l. A nil result means independence was proven.
type Oracle interface {
	Depends(src, dst ir.Instruction, l *regions.Loop) *Dependence
}

// affineOracle disambiguates affine subscripts over distinct iterations and
// falls back to the alias analysis for everything else.
type affineOracle struct {
	aa memory.AliasAnalysis
}

// NewAffineOracle returns the subscript-analyzing oracle.
func NewAffineOracle(aa memory.AliasAnalysis) Oracle {
	return affineOracle{aa: aa}
}

func (o affineOracle) Depends(src, dst ir.Instruction, l *regions.Loop) *Dependence {
	sLoc, sOK := ir.AccessLocation(src)
	dLoc, dOK := ir.AccessLocation(dst)
	if !sOK || !dOK {
		// Unknown accesses are resolved through ModRef, not here.
		return nil
	}
	kind := kindOf(src, dst)
	if o.aa.Alias(sLoc, dLoc) == memory.NoAlias {
		return nil
	}
	depth := l.Depth
	if d := o.affine(sLoc, dLoc, depth, kind); d != nil {
		return d
	}
	return unknown(kind, depth)
}

// affine resolves the pair when both addresses are subscripts of the same
// object varying in the same loop with the same stride.
func (o affineOracle) affine(a, b ir.Location, depth int, kind Kind) *Dependence {
	xa, okA := a.Addr.(*ir.Index)
	xb, okB := b.Addr.(*ir.Index)
	if !okA || !okB {
		return nil
	}
	objA, offA, okA := flatten(xa)
	objB, offB, okB := flatten(xb)
	if !okA || !okB || objA != objB {
		return nil
	}
	if xa.Depth != xb.Depth || xa.Depth != depth || xa.Coeff != xb.Coeff || xa.Coeff == 0 {
		return nil
	}
	delta := offA - offB
	if delta%xa.Coeff != 0 {
		// The subscripts interleave without ever meeting.
		return nil
	}
	dist := delta / xa.Coeff
	d := &Dependence{Kind: kind, confirmed: true}
	for lvl := 1; lvl < depth; lvl++ {
		d.dirs = append(d.dirs, DirAll)
		d.dists = append(d.dists, nil)
	}
	switch {
	case dist == 0:
		d.dirs = append(d.dirs, DirEQ)
	case dist > 0:
		d.dirs = append(d.dirs, DirLT)
	default:
		d.dirs = append(d.dirs, DirGT)
	}
	d.dists = append(d.dists, sym.Const(dist))
	return d
}

// flatten resolves an index chain to its object and accumulated constant
// offset, excluding the contribution of the outermost subscript itself.
func flatten(x *ir.Index) (obj ir.Value, off int64, ok bool) {
	off = x.Off
	base := x.Base
	for {
		switch b := base.(type) {
		case *ir.Alloca, *ir.Global:
			return b, off, true
		case *ir.Index:
			if b.Coeff != 0 {
				return nil, 0, false
			}
			off += b.Off
			base = b.Base
		default:
			return nil, 0, false
		}
	}
}

func unknown(kind Kind, depth int) *Dependence {
	d := &Dependence{Kind: kind}
	for lvl := 1; lvl <= depth; lvl++ {
		d.dirs = append(d.dirs, DirAll)
		d.dists = append(d.dists, nil)
	}
	return d
}

func kindOf(src, dst ir.Instruction) Kind {
	_, srcWrites := src.(*ir.Store)
	_, dstWrites := dst.(*ir.Store)
	switch {
	case srcWrites && dstWrites:
		return Output
	case srcWrites:
		return Flow
	case dstWrites:
		return Anti
	}
	return Input
}
