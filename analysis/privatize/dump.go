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
	"fmt"
	"io"
	"strings"

	"github.com/parloop/parloop/analysis/format"
	"github.com/parloop/parloop/analysis/regions"
	"github.com/parloop/parloop/analysis/trait"
)

// Dump writes a human-readable report of the per-loop traits to w, loops in
// pre-order, alias nodes in result order.
func Dump(w io.Writer, forest *regions.Info, info PrivateInfo) {
	for _, l := range forest.PreOrder() {
		ds := info[l]
		if ds == nil {
			continue
		}
		indent := strings.Repeat("  ", l.Depth-1)
		fmt.Fprintf(w, "%s%s:\n", indent, l)
		for _, at := range ds.Nodes() {
			fmt.Fprintf(w, "%s  %s: %s\n", indent, at.Node(), colorize(at.Combined))
			for _, et := range at.Ems() {
				fmt.Fprintf(w, "%s    %s: %s%s\n", indent, et.Em, colorize(et.Dptr), depSuffix(et.Dptr))
			}
			for _, ut := range at.Unknowns() {
				fmt.Fprintf(w, "%s    %s: %s\n", indent, ut.Instr, colorize(ut.Dptr))
			}
		}
	}
}

// colorize renders a descriptor with the severity of its strongest property:
// dependencies in red, shared in yellow, the privatizable kinds in green.
func colorize(d *trait.Descriptor) string {
	s := d.String()
	switch {
	case d.Is(trait.PropDependency):
		return format.Red(s)
	case d.Is(trait.PropShared):
		return format.Yellow(s)
	case d.IsAny(trait.PropPrivate | trait.PropLastPrivate |
		trait.PropSecondToLastPrivate | trait.PropDynamicPrivate | trait.PropFirstPrivate):
		return format.Green(s)
	case d.Is(trait.PropReadonly):
		return format.Cyan(s)
	default:
		return format.Faint(s)
	}
}

func depSuffix(d *trait.Descriptor) string {
	var b strings.Builder
	for _, p := range depProps {
		dep := d.Dep(p)
		if dep == nil {
			continue
		}
		var quals []string
		if dep.Flags&trait.DepMay != 0 {
			quals = append(quals, "may")
		}
		if dep.Flags&trait.DepUnknownDistance != 0 {
			quals = append(quals, "unknown distance")
		} else if !dep.Range.Unknown() {
			quals = append(quals, dep.Range.String())
		}
		if dep.Flags&trait.DepCallCause != 0 {
			quals = append(quals, "call")
		}
		if dep.Flags&trait.DepUnknownCause != 0 {
			quals = append(quals, "unknown cause")
		}
		name := "flow"
		switch p {
		case trait.PropAnti:
			name = "anti"
		case trait.PropOutput:
			name = "output"
		}
		fmt.Fprintf(&b, " %s", format.Faint(fmt.Sprintf("%s(%s)", name, strings.Join(quals, " "))))
	}
	return b.String()
}
