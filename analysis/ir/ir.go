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

// Package ir defines the lightweight intermediate representation consumed by
// the loop analyses: functions of basic blocks holding memory-touching
// instructions. The representation is deliberately small; it models exactly
// the memory behavior the privatizability engine reasons about (loads,
// stores, opaque calls, address arithmetic and affine array subscripts) and
// nothing else.
package ir

import (
	"fmt"
	"strconv"
)

// A Value is anything an instruction may take as an operand: a memory object
// (Alloca, Global), an instruction result (Load, Call, PtrToInt, Index), or a
// constant.
type Value interface {
	Name() string
}

// Const is a constant operand.
type Const int64

// Name returns the literal spelling of the constant.
func (c Const) Name() string { return strconv.FormatInt(int64(c), 10) }

// An Instruction is an element of a basic block.
type Instruction interface {
	Parent() *Block
	Operands() []Value
	String() string
}

type instr struct {
	block *Block
}

// Parent returns the block the instruction belongs to.
func (i *instr) Parent() *Block { return i.block }

// Alloca allocates a stack object of Sz bytes. It is both an instruction and
// the value naming the object.
type Alloca struct {
	instr
	name string
	Sz   int64
}

func (a *Alloca) Name() string      { return a.name }
func (a *Alloca) Size() int64       { return a.Sz }
func (a *Alloca) Operands() []Value { return nil }
func (a *Alloca) String() string    { return fmt.Sprintf("%s = alloca %d", a.name, a.Sz) }

// Global names a global object of Sz bytes. Globals are declared on the
// Function, not inside blocks.
type Global struct {
	name string
	Sz   int64
}

func (g *Global) Name() string { return g.name }
func (g *Global) Size() int64  { return g.Sz }

// Load reads Sz bytes from Addr. Its result is a value; loading a pointer and
// dereferencing the result is how indirect accesses are expressed.
type Load struct {
	instr
	name string
	Addr Value
	Sz   int64
}

func (l *Load) Name() string      { return l.name }
func (l *Load) Operands() []Value { return []Value{l.Addr} }
func (l *Load) String() string    { return fmt.Sprintf("%s = load %s, %d", l.name, l.Addr.Name(), l.Sz) }

// Loc returns the memory location the load reads.
func (l *Load) Loc() Location { return Location{Addr: l.Addr, Size: l.Sz} }

// Store writes Sz bytes of Val to Addr.
type Store struct {
	instr
	Addr Value
	Val  Value
	Sz   int64
}

func (s *Store) Operands() []Value { return []Value{s.Addr, s.Val} }
func (s *Store) String() string {
	return fmt.Sprintf("store %s, %s, %d", s.Addr.Name(), s.Val.Name(), s.Sz)
}

// Loc returns the memory location the store writes.
func (s *Store) Loc() Location { return Location{Addr: s.Addr, Size: s.Sz} }

// Call invokes an opaque callee. Its memory behavior is unknown except for
// the ReadsOnly promise; the analyses treat it through the alias oracle.
type Call struct {
	instr
	name      string
	Callee    string
	Args      []Value
	ReadsOnly bool
}

func (c *Call) Name() string      { return c.name }
func (c *Call) Operands() []Value { return c.Args }
func (c *Call) String() string {
	s := c.name + " = call " + c.Callee + "("
	for i, a := range c.Args {
		if i > 0 {
			s += ", "
		}
		s += a.Name()
	}
	return s + ")"
}

// PtrToInt converts the address X to an integer, escaping it from the
// analysis' point of view.
type PtrToInt struct {
	instr
	name string
	X    Value
}

func (p *PtrToInt) Name() string      { return p.name }
func (p *PtrToInt) Operands() []Value { return []Value{p.X} }
func (p *PtrToInt) String() string    { return fmt.Sprintf("%s = ptrtoint %s", p.name, p.X.Name()) }

// Index computes the address Base + Coeff*iv + Off where iv is the canonical
// induction variable of the loop at nesting Depth. Coeff == 0 expresses a
// constant field offset. The result addresses ElemSize bytes.
type Index struct {
	instr
	name     string
	Base     Value
	Coeff    int64
	Depth    int
	Off      int64
	ElemSize int64
}

func (x *Index) Name() string      { return x.name }
func (x *Index) Operands() []Value { return []Value{x.Base} }
func (x *Index) String() string {
	return fmt.Sprintf("%s = index %s[%d*iv%d+%d], %d",
		x.name, x.Base.Name(), x.Coeff, x.Depth, x.Off, x.ElemSize)
}

// A Location identifies accessed memory by the address operand and the
// number of bytes accessed. The estimate-memory tree gives locations their
// containment structure; a Location by itself is just the access as written.
type Location struct {
	Addr Value
	Size int64
}

// String formats the location as address,size.
func (l Location) String() string {
	if l.Addr == nil {
		return "<nil>"
	}
	return fmt.Sprintf("<%s,%d>", l.Addr.Name(), l.Size)
}

// AccessLocation returns the location explicitly accessed by i, if i is a
// load or a store.
func AccessLocation(i Instruction) (Location, bool) {
	switch v := i.(type) {
	case *Load:
		return v.Loc(), true
	case *Store:
		return v.Loc(), true
	}
	return Location{}, false
}

// MayReadOrWriteMemory reports whether i can touch memory at all.
func MayReadOrWriteMemory(i Instruction) bool {
	switch i.(type) {
	case *Load, *Store, *Call:
		return true
	}
	return false
}

// A Block is a basic block: an instruction sequence with explicit successor
// and predecessor edges.
type Block struct {
	fn     *Function
	index  int
	label  string
	Instrs []Instruction
	Succs  []*Block
	Preds  []*Block
}

// Label returns the block label.
func (b *Block) Label() string { return b.label }

// Index returns the position of the block in its function.
func (b *Block) Index() int { return b.index }

// Fn returns the enclosing function.
func (b *Block) Fn() *Function { return b.fn }

func (b *Block) String() string { return b.label }

func (b *Block) append(i Instruction) {
	b.Instrs = append(b.Instrs, i)
}

// A Function owns its blocks and globals. The first created block is the
// entry block.
type Function struct {
	name    string
	Blocks  []*Block
	Globals []*Global

	// byName resolves value names for the yaml loader and for tests.
	byName map[string]Value
}

// NewFunction returns an empty function.
func NewFunction(name string) *Function {
	return &Function{name: name, byName: map[string]Value{}}
}

// Name returns the function name.
func (f *Function) Name() string { return f.name }

// Entry returns the entry block.
func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		panic("function must have an entry block")
	}
	return f.Blocks[0]
}

// NewBlock appends a new empty block labelled label.
func (f *Function) NewBlock(label string) *Block {
	b := &Block{fn: f, index: len(f.Blocks), label: label}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Connect adds a control-flow edge from src to dst.
func (f *Function) Connect(src, dst *Block) {
	src.Succs = append(src.Succs, dst)
	dst.Preds = append(dst.Preds, src)
}

// NewGlobal declares a global object visible to the function.
func (f *Function) NewGlobal(name string, size int64) *Global {
	g := &Global{name: name, Sz: size}
	f.Globals = append(f.Globals, g)
	f.define(name, g)
	return g
}

// ValueByName resolves a declared value name; it returns nil when the name is
// unknown.
func (f *Function) ValueByName(name string) Value {
	return f.byName[name]
}

func (f *Function) define(name string, v Value) {
	if name == "" {
		return
	}
	if _, dup := f.byName[name]; dup {
		panic(fmt.Sprintf("value %q is defined twice", name))
	}
	f.byName[name] = v
}

// UsersOf returns every instruction that takes v as an operand.
func (f *Function) UsersOf(v Value) []Instruction {
	var users []Instruction
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			for _, op := range i.Operands() {
				if op == v {
					users = append(users, i)
					break
				}
			}
		}
	}
	return users
}

// Alloca appends an alloca instruction to b.
func (b *Block) Alloca(name string, size int64) *Alloca {
	a := &Alloca{name: name, Sz: size}
	a.block = b
	b.fn.define(name, a)
	b.append(a)
	return a
}

// Load appends a load instruction to b.
func (b *Block) Load(name string, addr Value, size int64) *Load {
	l := &Load{name: name, Addr: addr, Sz: size}
	l.block = b
	b.fn.define(name, l)
	b.append(l)
	return l
}

// Store appends a store instruction to b.
func (b *Block) Store(addr, val Value, size int64) *Store {
	s := &Store{Addr: addr, Val: val, Sz: size}
	s.block = b
	b.append(s)
	return s
}

// Call appends a call instruction to b.
func (b *Block) Call(name, callee string, readsOnly bool, args ...Value) *Call {
	c := &Call{name: name, Callee: callee, ReadsOnly: readsOnly, Args: args}
	c.block = b
	b.fn.define(name, c)
	b.append(c)
	return c
}

// PtrToInt appends a ptrtoint instruction to b.
func (b *Block) PtrToInt(name string, x Value) *PtrToInt {
	p := &PtrToInt{name: name, X: x}
	p.block = b
	b.fn.define(name, p)
	b.append(p)
	return p
}

// NewIndex appends an index (address computation) instruction to b.
func (b *Block) NewIndex(name string, base Value, coeff int64, depth int, off, elemSize int64) *Index {
	x := &Index{name: name, Base: base, Coeff: coeff, Depth: depth, Off: off, ElemSize: elemSize}
	x.block = b
	b.fn.define(name, x)
	b.append(x)
	return x
}
