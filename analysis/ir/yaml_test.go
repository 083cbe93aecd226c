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

package ir_test

import (
	"strings"
	"testing"

	"github.com/parloop/parloop/analysis/ir"
)

const sumFunction = `
name: sum
globals:
  - {name: n, size: 4}
blocks:
  - name: entry
    succs: [h]
    instrs:
      - alloca: {name: acc, size: 4}
      - alloca: {name: a, size: 40}
  - name: h
    succs: [b, exit]
    instrs:
      - load: {name: bound, addr: n, size: 4}
  - name: b
    succs: [h]
    instrs:
      - index: {name: i1, base: a, coeff: 4, depth: 1, off: 0, elem: 4}
      - load: {name: v, addr: i1, size: 4}
      - load: {name: s, addr: acc, size: 4}
      - store: {addr: acc, val: s, size: 4}
  - name: exit
    instrs:
      - load: {name: r, addr: acc, size: 4}
      - call: {name: c, callee: report, args: [r], readonly: true}
`

func TestLoadBytes(t *testing.T) {
	f, err := ir.LoadBytes([]byte(sumFunction))
	if err != nil {
		t.Fatalf("could not load function: %s", err)
	}
	if f.Name() != "sum" {
		t.Errorf("function name mismatch: %s", f.Name())
	}
	if len(f.Blocks) != 4 || f.Entry().Label() != "entry" {
		t.Fatalf("block layout mismatch: %v", f.Blocks)
	}
	if len(f.Globals) != 1 || f.Globals[0].Name() != "n" {
		t.Errorf("global layout mismatch: %v", f.Globals)
	}
	h := f.Blocks[1]
	if len(h.Succs) != 2 || h.Succs[0].Label() != "b" || h.Succs[1].Label() != "exit" {
		t.Errorf("successor wiring mismatch: %v", h.Succs)
	}
	if len(h.Preds) != 2 {
		t.Errorf("predecessor wiring mismatch: %v", h.Preds)
	}
	b := f.Blocks[2]
	if len(b.Instrs) != 4 {
		t.Fatalf("instruction count mismatch: %d", len(b.Instrs))
	}
	x, ok := b.Instrs[0].(*ir.Index)
	if !ok || x.Coeff != 4 || x.Depth != 1 || x.ElemSize != 4 {
		t.Errorf("index instruction mismatch: %s", b.Instrs[0])
	}
	st, ok := b.Instrs[3].(*ir.Store)
	if !ok || st.Addr != f.ValueByName("acc") || st.Val != f.ValueByName("s") {
		t.Errorf("store operands mismatch: %s", b.Instrs[3])
	}
	c, ok := f.Blocks[3].Instrs[1].(*ir.Call)
	if !ok || c.Callee != "report" || !c.ReadsOnly || len(c.Args) != 1 {
		t.Errorf("call instruction mismatch: %s", f.Blocks[3].Instrs[1])
	}
}

func TestLoadBytesConstOperand(t *testing.T) {
	src := `
name: c
blocks:
  - name: entry
    instrs:
      - alloca: {name: x, size: 4}
      - store: {addr: x, val: 7, size: 4}
`
	f, err := ir.LoadBytes([]byte(src))
	if err != nil {
		t.Fatalf("could not load function: %s", err)
	}
	st := f.Entry().Instrs[1].(*ir.Store)
	if c, ok := st.Val.(ir.Const); !ok || c != 7 {
		t.Errorf("integer literal must decode to a constant, got %v", st.Val)
	}
}

func TestLoadBytesErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{
			"missing name",
			"blocks: [{name: entry}]",
			"must carry a name",
		},
		{
			"no blocks",
			"name: f",
			"at least one block",
		},
		{
			"duplicate block",
			"name: f\nblocks: [{name: a}, {name: a}]",
			"defined twice",
		},
		{
			"unknown successor",
			"name: f\nblocks: [{name: a, succs: [b]}]",
			"unknown successor",
		},
		{
			"unknown operand",
			"name: f\nblocks: [{name: a, instrs: [{load: {name: v, addr: ghost, size: 4}}]}]",
			"unknown value",
		},
		{
			"unknown instruction",
			"name: f\nblocks: [{name: a, instrs: [{jump: {}}]}]",
			"unknown instruction",
		},
	}
	for _, c := range cases {
		_, err := ir.LoadBytes([]byte(c.src))
		if err == nil || !strings.Contains(err.Error(), c.want) {
			t.Errorf("%s: want error containing %q, got %v", c.name, c.want, err)
		}
	}
}

func TestBlockBuilders(t *testing.T) {
	f := ir.NewFunction("build")
	b := f.NewBlock("entry")
	a := b.Alloca("a", 40)
	x := b.NewIndex("i", a, 4, 1, 0, 4)
	if x.Base != a || x.Coeff != 4 || x.Depth != 1 || x.ElemSize != 4 {
		t.Errorf("index builder dropped operands: %s", x)
	}
	if b.Index() != 0 {
		t.Errorf("entry block must sit at position 0, got %d", b.Index())
	}
	if len(b.Instrs) != 2 || b.Instrs[1] != x {
		t.Errorf("built instructions must append in order: %v", b.Instrs)
	}
}

func TestUsersOf(t *testing.T) {
	f := ir.NewFunction("users")
	entry := f.NewBlock("entry")
	x := entry.Alloca("x", 4)
	v := entry.Load("v", x, 4)
	entry.Store(x, v, 4)
	users := f.UsersOf(x)
	if len(users) != 2 {
		t.Fatalf("expected two users of x, got %d", len(users))
	}
}
