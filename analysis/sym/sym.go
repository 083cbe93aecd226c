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

// Package sym implements the small symbolic-expression algebra used to
// summarize dependence distances into closed ranges. Only negation, signed
// min/max and constant folding are needed by the consumers; anything richer
// belongs to the dependence oracle, not here.
package sym

import (
	"fmt"
	"strings"
)

// Expr is a symbolic integer expression.
type Expr interface {
	String() string
}

// Const is a known integer value.
type Const int64

func (c Const) String() string { return fmt.Sprintf("%d", int64(c)) }

// Ref is a named unknown, e.g. a loop bound that is not a compile-time
// constant.
type Ref string

func (r Ref) String() string { return string(r) }

// Neg is the negation of an expression. Constructed through NegOf, which
// folds constants and double negations.
type Neg struct{ X Expr }

func (n Neg) String() string { return "-" + n.X.String() }

// SMax is the signed maximum of its operands. Constructed through SMaxOf.
type SMax struct{ Ops []Expr }

func (m SMax) String() string {
	parts := make([]string, len(m.Ops))
	for i, op := range m.Ops {
		parts[i] = op.String()
	}
	return "smax(" + strings.Join(parts, ", ") + ")"
}

// SMin is the signed minimum of its operands. Constructed through SMinOf.
type SMin struct{ Ops []Expr }

func (m SMin) String() string {
	parts := make([]string, len(m.Ops))
	for i, op := range m.Ops {
		parts[i] = op.String()
	}
	return "smin(" + strings.Join(parts, ", ") + ")"
}

// NegOf returns the negation of x with constants and double negations folded.
func NegOf(x Expr) Expr {
	switch v := x.(type) {
	case Const:
		return Const(-int64(v))
	case Neg:
		return v.X
	default:
		return Neg{X: x}
	}
}

// SMaxOf returns the signed maximum of ops, folding constants together and
// flattening nested maxima. A single remaining operand is returned as is.
func SMaxOf(ops ...Expr) Expr {
	folded, rest := foldMinMax(ops, true)
	if folded != nil {
		rest = append(rest, folded)
	}
	if len(rest) == 1 {
		return rest[0]
	}
	return SMax{Ops: rest}
}

// SMinOf returns the signed minimum of ops; see SMaxOf.
func SMinOf(ops ...Expr) Expr {
	folded, rest := foldMinMax(ops, false)
	if folded != nil {
		rest = append(rest, folded)
	}
	if len(rest) == 1 {
		return rest[0]
	}
	return SMin{Ops: rest}
}

// AbsOf returns smax(x, -x).
func AbsOf(x Expr) Expr {
	if c, ok := x.(Const); ok {
		if c < 0 {
			return Const(-int64(c))
		}
		return c
	}
	return SMaxOf(x, NegOf(x))
}

func foldMinMax(ops []Expr, max bool) (Expr, []Expr) {
	var acc *int64
	var rest []Expr
	for _, op := range ops {
		if max {
			if m, ok := op.(SMax); ok {
				f, r := foldMinMax(m.Ops, true)
				rest = append(rest, r...)
				op = f
				if op == nil {
					continue
				}
			}
		} else {
			if m, ok := op.(SMin); ok {
				f, r := foldMinMax(m.Ops, false)
				rest = append(rest, r...)
				op = f
				if op == nil {
					continue
				}
			}
		}
		if c, ok := op.(Const); ok {
			v := int64(c)
			if acc == nil {
				acc = &v
			} else if max && v > *acc {
				*acc = v
			} else if !max && v < *acc {
				*acc = v
			}
			continue
		}
		if !containsExpr(rest, op) {
			rest = append(rest, op)
		}
	}
	if acc == nil {
		return nil, rest
	}
	return Const(*acc), rest
}

func containsExpr(a []Expr, x Expr) bool {
	for _, y := range a {
		if y.String() == x.String() {
			return true
		}
	}
	return false
}

// Range is a closed interval of symbolic values. A zero Range (both bounds
// nil) means the interval is unknown.
type Range struct {
	Min Expr
	Max Expr
}

// Unknown reports whether the range carries no distance information.
func (r Range) Unknown() bool { return r.Min == nil && r.Max == nil }

func (r Range) String() string {
	if r.Unknown() {
		return "[?,?]"
	}
	return "[" + r.Min.String() + "," + r.Max.String() + "]"
}

// DistanceRange summarizes a set of dependence distances into the closed
// range [min |d|, max |d|] over all distances d. An empty input yields the
// unknown range.
func DistanceRange(dists []Expr) Range {
	if len(dists) == 0 {
		return Range{}
	}
	abs := make([]Expr, len(dists))
	for i, d := range dists {
		abs[i] = AbsOf(d)
	}
	return Range{Min: SMinOf(abs...), Max: SMaxOf(abs...)}
}
