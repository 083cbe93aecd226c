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
	"strings"

	"github.com/parloop/parloop/analysis/sym"
)

// Property is a decoded trait or access flag. A descriptor holds a set of
// them.
type Property uint32

const (
	PropNoAccess Property = 1 << iota
	PropReadonly
	PropShared
	PropPrivate
	PropFirstPrivate
	PropSecondToLastPrivate
	PropDynamicPrivate
	PropLastPrivate
	PropDependency
	PropFlow
	PropAnti
	PropOutput
	PropAddressAccess
	PropHeaderAccess
	PropExplicitAccess
)

var propNames = []struct {
	p    Property
	name string
}{
	{PropNoAccess, "no access"},
	{PropReadonly, "readonly"},
	{PropShared, "shared"},
	{PropPrivate, "private"},
	{PropFirstPrivate, "first private"},
	{PropSecondToLastPrivate, "second to last private"},
	{PropDynamicPrivate, "dynamic private"},
	{PropLastPrivate, "last private"},
	{PropDependency, "dependency"},
	{PropFlow, "flow"},
	{PropAnti, "anti"},
	{PropOutput, "output"},
	{PropAddressAccess, "address access"},
	{PropHeaderAccess, "header access"},
	{PropExplicitAccess, "explicit access"},
}

// DepFlag qualifies a dependence a descriptor carries.
type DepFlag uint8

const (
	// DepMay marks a dependence that was not disproven rather than proven.
	DepMay DepFlag = 1 << iota

	// DepUnknownDistance marks a dependence without a distance range.
	DepUnknownDistance

	// DepLoadStoreCause, DepCallCause and DepUnknownCause name what raised
	// the dependence.
	DepLoadStoreCause
	DepCallCause
	DepUnknownCause
)

// A Dep carries the qualification of one dependence kind: its flags and,
// when distances are known, their summarized range.
type Dep struct {
	Flags DepFlag
	Range sym.Range
}

// A Descriptor is the decoded trait of a location or alias node: a property
// set, with flow, anti and output dependences optionally qualified.
type Descriptor struct {
	props Property
	flow  *Dep
	anti  *Dep
	out   *Dep
}

// Set adds the properties p.
func (d *Descriptor) Set(p Property) { d.props |= p }

// Unset removes the properties p.
func (d *Descriptor) Unset(p Property) { d.props &^= p }

// Is reports whether all properties p are set.
func (d *Descriptor) Is(p Property) bool { return d.props&p == p }

// IsAny reports whether at least one property of p is set.
func (d *Descriptor) IsAny(p Property) bool { return d.props&p != 0 }

// SetDep attaches a dependence qualification for the kind p, which must be
// PropFlow, PropAnti or PropOutput, and sets the property.
func (d *Descriptor) SetDep(p Property, dep *Dep) {
	d.Set(p)
	switch p {
	case PropFlow:
		d.flow = dep
	case PropAnti:
		d.anti = dep
	case PropOutput:
		d.out = dep
	default:
		panic("dependence qualification must be flow, anti or output")
	}
}

// Dep returns the qualification of the dependence kind p, nil if none is
// attached.
func (d *Descriptor) Dep(p Property) *Dep {
	switch p {
	case PropFlow:
		return d.flow
	case PropAnti:
		return d.anti
	case PropOutput:
		return d.out
	}
	return nil
}

func (d *Descriptor) String() string {
	var parts []string
	for _, pn := range propNames {
		if d.Is(pn.p) {
			parts = append(parts, pn.name)
		}
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, ", ")
}

// Statistic accumulates how many locations received each trait across a
// whole analysis run.
type Statistic struct {
	NoAccess            int
	Readonly            int
	Shared              int
	Private             int
	FirstPrivate        int
	SecondToLastPrivate int
	DynamicPrivate      int
	LastPrivate         int
	Dependency          int
	AddressAccess       int
	HeaderAccess        int
}

func (s *Statistic) count(d *Descriptor, n int) {
	if d.Is(PropNoAccess) {
		s.NoAccess += n
	}
	if d.Is(PropReadonly) {
		s.Readonly += n
	}
	if d.Is(PropShared) {
		s.Shared += n
	}
	if d.Is(PropPrivate) {
		s.Private += n
	}
	if d.Is(PropFirstPrivate) {
		s.FirstPrivate += n
	}
	if d.Is(PropSecondToLastPrivate) {
		s.SecondToLastPrivate += n
	}
	if d.Is(PropDynamicPrivate) {
		s.DynamicPrivate += n
	}
	if d.Is(PropLastPrivate) {
		s.LastPrivate += n
	}
	if d.Is(PropDependency) {
		s.Dependency += n
	}
	if d.Is(PropAddressAccess) {
		s.AddressAccess += n
	}
	if d.Is(PropHeaderAccess) {
		s.HeaderAccess += n
	}
}
