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

package privatize

import (
	"github.com/parloop/parloop/analysis/memory"
	"github.com/parloop/parloop/analysis/sym"
	"github.com/parloop/parloop/analysis/trait"
)

const (
	iFlow = iota
	iAnti
	iOutput
	depKinds
)

var depProps = [depKinds]trait.Property{trait.PropFlow, trait.PropAnti, trait.PropOutput}

// depImp accumulates, per dependence kind, the flags and distances of every
// dependence registered against one location. Once a dependence of a kind
// has an unknown distance the kind's distance list is discarded for good; a
// range summarized from a partial list would understate the dependence.
type depImp struct {
	props trait.Property
	flags [depKinds]trait.DepFlag
	dists [depKinds][]sym.Expr
}

// update registers a dependence of the kinds named in props. A nil dist
// means the distance is unknown.
func (d *depImp) update(props trait.Property, f trait.DepFlag, dist sym.Expr) {
	for i, p := range depProps {
		if props&p == 0 {
			continue
		}
		d.props |= p
		kf := f
		if dist == nil {
			kf |= trait.DepUnknownDistance
		}
		d.flags[i] |= kf
		if d.flags[i]&trait.DepUnknownDistance == 0 {
			d.dists[i] = append(d.dists[i], dist)
		} else {
			d.dists[i] = nil
		}
	}
}

// updateFrom folds another location's accumulated dependencies into d.
func (d *depImp) updateFrom(o *depImp) {
	for i, p := range depProps {
		if o.props&p == 0 {
			continue
		}
		d.props |= p
		d.flags[i] |= o.flags[i]
		if d.flags[i]&trait.DepUnknownDistance == 0 {
			d.dists[i] = append(d.dists[i], o.dists[i]...)
		} else {
			d.dists[i] = nil
		}
	}
}

// summarize attaches one qualified dependence per accumulated kind to the
// descriptor, collapsing the distance lists into closed ranges.
func (d *depImp) summarize(dptr *trait.Descriptor) {
	for i, p := range depProps {
		if d.props&p == 0 {
			continue
		}
		dep := &trait.Dep{Flags: d.flags[i]}
		if d.flags[i]&trait.DepUnknownDistance == 0 {
			dep.Range = sym.DistanceRange(d.dists[i])
		}
		dptr.SetDep(p, dep)
	}
}

// updateDependence registers a dependence of the given kinds against em.
func (st *loopState) updateDependence(em *memory.EstimateMemory, props trait.Property, f trait.DepFlag, dist sym.Expr) {
	imp := st.depImps[em]
	if imp == nil {
		imp = &depImp{}
		st.depImps[em] = imp
	}
	imp.update(props, f, dist)
}

// mergeDependence folds the dependencies of from into to. The record for to
// is created when from carries dependencies or when to's own trait already
// degraded to a dependency; otherwise there is nothing to merge.
func (st *loopState) mergeDependence(to *memory.EstimateMemory, toTrait trait.BitTrait, from *memory.EstimateMemory) {
	fromImp := st.depImps[from]
	if fromImp == nil && toTrait.DropUnitFlags() != trait.Dependency {
		return
	}
	imp := st.depImps[to]
	if imp == nil {
		imp = &depImp{}
		st.depImps[to] = imp
	}
	if fromImp != nil {
		imp.updateFrom(fromImp)
	}
}
