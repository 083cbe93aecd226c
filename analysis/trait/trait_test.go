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

package trait_test

import (
	"strings"
	"testing"

	"github.com/parloop/parloop/analysis/trait"
)

func TestMeetNarrows(t *testing.T) {
	cases := []struct {
		a, b, want trait.BitTrait
	}{
		{trait.NoAccess, trait.Private, trait.Private},
		{trait.Private, trait.NoAccess, trait.Private},
		{trait.Readonly, trait.LastPrivate, trait.LastPrivate & trait.Readonly},
		{trait.Private, trait.Dependency, trait.Dependency},
		{trait.Shared, trait.Readonly, trait.Readonly & trait.Shared},
	}
	for _, c := range cases {
		if got := c.a.Meet(c.b); got != c.want {
			t.Errorf("Meet(%#x, %#x) = %#x, want %#x", c.a, c.b, got, c.want)
		}
		if got := c.b.Meet(c.a); got != c.a.Meet(c.b) {
			t.Error("Meet must be commutative")
		}
	}
	if trait.Private.Meet(trait.Private) != trait.Private {
		t.Error("Meet must be idempotent")
	}
}

func TestUnitFlags(t *testing.T) {
	tr := trait.Private.Meet(trait.HeaderAccess)
	if !tr.HasHeaderAccess() || tr.HasAddressAccess() || tr.HasExplicitAccess() {
		t.Error("meeting a unit flag must record exactly that flag")
	}
	if tr.DropUnitFlags() != trait.Private {
		t.Error("unit flags must not narrow the kinds")
	}
	d := tr.ToDescriptor(1, nil)
	if !d.Is(trait.PropPrivate) || !d.Is(trait.PropHeaderAccess) {
		t.Errorf("flags must survive decoding, got %s", d)
	}
}

func TestDecode(t *testing.T) {
	cases := []struct {
		in   trait.BitTrait
		want trait.Property
	}{
		{trait.NoAccess, trait.PropNoAccess},
		{trait.Readonly, trait.PropReadonly},
		{trait.Shared, trait.PropShared},
		{trait.Private, trait.PropPrivate},
		{trait.LastPrivate, trait.PropLastPrivate},
		{trait.LastPrivate & trait.FirstPrivate, trait.PropLastPrivate | trait.PropFirstPrivate},
		{trait.SecondToLastPrivate & trait.FirstPrivate, trait.PropSecondToLastPrivate | trait.PropFirstPrivate},
		{trait.DynamicPrivate & trait.FirstPrivate, trait.PropDynamicPrivate | trait.PropFirstPrivate},
		{trait.Dependency, trait.PropDependency | trait.PropFlow | trait.PropAnti | trait.PropOutput},
	}
	for _, c := range cases {
		if d := c.in.ToDescriptor(1, nil); !d.Is(c.want) {
			t.Errorf("decoding %#x must set %#x, got %s", c.in, c.want, d)
		}
	}
	// Privatizability shadows the weaker classifications its pattern
	// admits: a private location decodes to private alone.
	d := trait.Private.ToDescriptor(1, nil)
	if d.IsAny(trait.PropLastPrivate | trait.PropDynamicPrivate | trait.PropSecondToLastPrivate) {
		t.Errorf("stronger kinds must shadow weaker ones, got %s", d)
	}
}

func TestRestrictToNode(t *testing.T) {
	if got := trait.Readonly.RestrictToNode(); got.DropUnitFlags() != trait.Readonly {
		t.Errorf("readonly survives node restriction, got %#x", got)
	}
	if got := trait.Shared.RestrictToNode(); got.DropUnitFlags() != trait.Shared {
		t.Errorf("shared survives node restriction, got %#x", got)
	}
	if got := trait.Private.RestrictToNode(); got.DropUnitFlags() != trait.Dependency {
		t.Errorf("privatizability cannot hold for a whole alias node, got %#x", got)
	}
	if got := trait.NoAccess.RestrictToNode(); got.DropUnitFlags() != trait.Dependency {
		t.Errorf("mixed node kinds degrade to dependency, got %#x", got)
	}
}

func TestStatistics(t *testing.T) {
	var s trait.Statistic
	trait.Private.ToDescriptor(3, &s)
	trait.Readonly.ToDescriptor(1, &s)
	(trait.LastPrivate & trait.FirstPrivate).ToDescriptor(2, &s)
	if s.Private != 3 || s.Readonly != 1 || s.LastPrivate != 2 || s.FirstPrivate != 2 {
		t.Errorf("counts must scale with the location count: %+v", s)
	}
}

func TestDescriptorDeps(t *testing.T) {
	d := &trait.Descriptor{}
	dep := &trait.Dep{Flags: trait.DepMay | trait.DepUnknownDistance}
	d.SetDep(trait.PropFlow, dep)
	if !d.Is(trait.PropFlow) || d.Dep(trait.PropFlow) != dep {
		t.Error("SetDep must set the property and attach the payload")
	}
	if d.Dep(trait.PropAnti) != nil || d.Dep(trait.PropReadonly) != nil {
		t.Error("unset kinds carry no payload")
	}
	defer func() {
		if recover() == nil {
			t.Error("attaching a dependence to a non-dependence kind must panic")
		}
	}()
	d.SetDep(trait.PropShared, dep)
}

func TestDescriptorString(t *testing.T) {
	d := &trait.Descriptor{}
	if d.String() != "empty" {
		t.Errorf("empty descriptor must print empty, got %q", d)
	}
	d.Set(trait.PropLastPrivate | trait.PropFirstPrivate)
	s := d.String()
	if !strings.Contains(s, "last private") || !strings.Contains(s, "first private") {
		t.Errorf("descriptor must name its properties, got %q", s)
	}
}
