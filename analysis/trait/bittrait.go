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

// Package trait encodes per-location memory traits. During resolution a
// trait is a bit vector whose meet is bitwise AND; afterwards it is decoded
// into a descriptor naming the classifications that survived.
package trait

// A BitTrait is the working encoding of a location's trait. Each kind bit
// means the corresponding classification is still possible, so combining two
// observations is a single AND and observations only ever narrow the
// outcome. The three unit flags are stored inverted (a zero bit records the
// flag) to keep the AND-is-meet rule uniform.
type BitTrait uint32

const (
	bitReadonly BitTrait = 1 << iota
	bitShared
	bitNoCopyIn
	bitDynamic
	bitSecondToLast
	bitLast
	bitPrivate
)

const (
	flagAddress BitTrait = 1 << (iota + 7)
	flagHeader
	flagExplicit
)

const (
	kindBits BitTrait = 1<<7 - 1
	flagBits          = flagAddress | flagHeader | flagExplicit
	allBits           = kindBits | flagBits
)

const (
	// NoAccess keeps every classification open: nothing has been observed.
	NoAccess = kindBits | flagBits

	// Readonly rules out everything that requires a write.
	Readonly = bitLast | bitSecondToLast | bitDynamic | bitShared | bitReadonly | flagBits

	// Shared rules out Readonly only; a proven-independent write pattern
	// still admits every privatization.
	Shared = kindBits&^bitReadonly | flagBits

	// Private: written before read on every path, dead after the loop.
	Private = bitPrivate | bitLast | bitSecondToLast | bitDynamic | bitNoCopyIn | flagBits

	// LastPrivate: as Private, but the final iteration's value survives.
	LastPrivate = bitLast | bitDynamic | bitNoCopyIn | flagBits

	// SecondToLastPrivate: the value surviving the loop is written by the
	// iteration before the last exit test.
	SecondToLastPrivate = bitSecondToLast | bitDynamic | bitNoCopyIn | flagBits

	// DynamicPrivate: privatizable only with a runtime copy-out.
	DynamicPrivate = bitDynamic | bitNoCopyIn | flagBits

	// FirstPrivate keeps every kind that tolerates copying the incoming
	// value in; it is combined with the *Private kinds, never alone.
	FirstPrivate = kindBits&^(bitNoCopyIn|bitReadonly) | flagBits

	// Dependency: no classification survived.
	Dependency = 0 | flagBits

	// The unit flags, each an all-ones mask with its own bit cleared;
	// meeting one onto a trait records the flag without narrowing kinds.
	AddressAccess  = allBits &^ flagAddress
	HeaderAccess   = allBits &^ flagHeader
	ExplicitAccess = allBits &^ flagExplicit
)

// Meet combines two observations of the same location.
func (t BitTrait) Meet(o BitTrait) BitTrait { return t & o }

// DropUnitFlags returns t with the unit flags erased, for comparing kinds.
func (t BitTrait) DropUnitFlags() BitTrait { return t | flagBits }

// HasAddressAccess reports whether the location's address is taken.
func (t BitTrait) HasAddressAccess() bool { return t&flagAddress == 0 }

// HasHeaderAccess reports whether the location is accessed in the header.
func (t BitTrait) HasHeaderAccess() bool { return t&flagHeader == 0 }

// HasExplicitAccess reports whether the location is accessed directly.
func (t BitTrait) HasExplicitAccess() bool { return t&flagExplicit == 0 }

// DropShared returns t with the shared bit cleared, for comparisons that
// tolerate a location being provably shared as well.
func (t BitTrait) DropShared() BitTrait { return t &^ bitShared }

// RestrictToNode coarsens a combined trait to what can hold for a whole
// alias node. Distinct locations grouped by aliasing cannot be privatized
// as one, so anything beyond Readonly or Shared degrades to Dependency.
func (t BitTrait) RestrictToNode() BitTrait {
	switch t.DropUnitFlags() {
	case Readonly:
		return t.Meet(Readonly)
	case Shared:
		return t.Meet(Shared)
	default:
		return t.Meet(Dependency)
	}
}

// ToDescriptor decodes the trait. The kind bits are examined best-first: a
// surviving stronger classification shadows the weaker ones its bit pattern
// contains. count locations carry the trait; when stats is non-nil the
// decoded traits are counted into it.
func (t BitTrait) ToDescriptor(count int, stats *Statistic) *Descriptor {
	d := &Descriptor{}
	kinds := t.DropUnitFlags()
	switch kinds {
	case NoAccess:
		d.Set(PropNoAccess)
	case Readonly:
		d.Set(PropReadonly)
	case Shared:
		d.Set(PropShared)
	default:
		switch {
		case kinds&bitShared != 0:
			d.Set(PropShared)
		case kinds&bitPrivate != 0:
			d.Set(PropPrivate)
		case kinds&bitLast != 0:
			d.Set(PropLastPrivate)
			if kinds&bitNoCopyIn == 0 {
				d.Set(PropFirstPrivate)
			}
		case kinds&bitSecondToLast != 0:
			d.Set(PropSecondToLastPrivate)
			if kinds&bitNoCopyIn == 0 {
				d.Set(PropFirstPrivate)
			}
		case kinds&bitDynamic != 0:
			d.Set(PropDynamicPrivate)
			if kinds&bitNoCopyIn == 0 {
				d.Set(PropFirstPrivate)
			}
		default:
			d.Set(PropDependency | PropFlow | PropAnti | PropOutput)
		}
	}
	if t.HasAddressAccess() {
		d.Set(PropAddressAccess)
	}
	if t.HasHeaderAccess() {
		d.Set(PropHeaderAccess)
	}
	if t.HasExplicitAccess() {
		d.Set(PropExplicitAccess)
	}
	if stats != nil {
		stats.count(d, count)
	}
	return d
}
