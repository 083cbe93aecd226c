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

import (
	"github.com/parloop/parloop/analysis/ir"
)

// AliasResult classifies the relation between two locations.
type AliasResult int

const (
	NoAlias AliasResult = iota
	MayAlias
	MustAlias
)

func (r AliasResult) String() string {
	switch r {
	case NoAlias:
		return "no-alias"
	case MayAlias:
		return "may-alias"
	case MustAlias:
		return "must-alias"
	}
	return "alias?"
}

// ModRefInfo classifies how an instruction may touch a location.
type ModRefInfo int

const (
	NoModRef ModRefInfo = iota
	Ref
	Mod
	ModRef
)

// MayRef reports whether the instruction may read the location.
func (m ModRefInfo) MayRef() bool { return m == Ref || m == ModRef }

// MayMod reports whether the instruction may write the location.
func (m ModRefInfo) MayMod() bool { return m == Mod || m == ModRef }

// AliasAnalysis answers pairwise aliasing queries. The tree builder and the
// dataflow passes depend only on this interface; tests substitute their own
// oracles.
type AliasAnalysis interface {
	Alias(a, b ir.Location) AliasResult
	ModRef(i ir.Instruction, loc ir.Location) ModRefInfo
}

// basicAA resolves addresses down to their allocation site. Distinct stack
// and global objects never alias; anything reached through a loaded pointer
// may alias everything.
type basicAA struct{}

// NewBasicAA returns the allocation-site alias analysis.
func NewBasicAA() AliasAnalysis { return basicAA{} }

// chase resolves addr to its underlying object, accumulating constant
// offsets. ok is false when the chain passes through a loaded pointer or
// another opaque value.
func chase(addr ir.Value) (obj ir.Value, off int64, iv bool, ok bool) {
	for {
		switch a := addr.(type) {
		case *ir.Alloca, *ir.Global:
			return a, off, iv, true
		case *ir.Index:
			off += a.Off
			if a.Coeff != 0 {
				iv = true
			}
			addr = a.Base
		default:
			return nil, 0, false, false
		}
	}
}

func (basicAA) Alias(a, b ir.Location) AliasResult {
	if a.Addr == b.Addr {
		if a.Size == b.Size {
			return MustAlias
		}
		return MayAlias
	}
	oa, offa, iva, oka := chase(a.Addr)
	ob, offb, ivb, okb := chase(b.Addr)
	if !oka || !okb {
		return MayAlias
	}
	if oa != ob {
		return NoAlias
	}
	if iva || ivb {
		// Different elements of the same object; the distance is the
		// dependence oracle's business, not ours.
		return MayAlias
	}
	if offa+a.Size <= offb || offb+b.Size <= offa {
		return NoAlias
	}
	if offa == offb && a.Size == b.Size {
		return MustAlias
	}
	return MayAlias
}

func (aa basicAA) ModRef(i ir.Instruction, loc ir.Location) ModRefInfo {
	switch v := i.(type) {
	case *ir.Call:
		// The callee is opaque; it may reach any object through globals or
		// leaked pointers.
		if v.ReadsOnly {
			return Ref
		}
		return ModRef
	case *ir.Load:
		if aa.Alias(v.Loc(), loc) != NoAlias {
			return Ref
		}
	case *ir.Store:
		if aa.Alias(v.Loc(), loc) != NoAlias {
			return Mod
		}
	}
	return NoModRef
}
