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

package ir

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// The yaml function schema. Instructions are one-key mappings so fixtures
// read like an instruction listing:
//
//	name: f
//	globals:
//	  - {name: g, size: 8}
//	blocks:
//	  - name: entry
//	    succs: [header]
//	    instrs:
//	      - alloca: {name: s, size: 4}
//	  - name: header
//	    succs: [body, exit]
//	  ...
//
// Operand fields refer to values by name; integer literals denote constants.
type functionSpec struct {
	Name    string       `yaml:"name"`
	Globals []globalSpec `yaml:"globals"`
	Blocks  []blockSpec  `yaml:"blocks"`
}

type globalSpec struct {
	Name string `yaml:"name"`
	Size int64  `yaml:"size"`
}

type blockSpec struct {
	Name   string      `yaml:"name"`
	Succs  []string    `yaml:"succs"`
	Instrs []yaml.Node `yaml:"instrs"`
}

type allocaSpec struct {
	Name string `yaml:"name"`
	Size int64  `yaml:"size"`
}

type loadSpec struct {
	Name string `yaml:"name"`
	Addr string `yaml:"addr"`
	Size int64  `yaml:"size"`
}

type storeSpec struct {
	Addr string `yaml:"addr"`
	Val  string `yaml:"val"`
	Size int64  `yaml:"size"`
}

type callSpec struct {
	Name     string   `yaml:"name"`
	Callee   string   `yaml:"callee"`
	Args     []string `yaml:"args"`
	Readonly bool     `yaml:"readonly"`
}

type ptrToIntSpec struct {
	Name string `yaml:"name"`
	X    string `yaml:"x"`
}

type indexSpec struct {
	Name  string `yaml:"name"`
	Base  string `yaml:"base"`
	Coeff int64  `yaml:"coeff"`
	Depth int    `yaml:"depth"`
	Off   int64  `yaml:"off"`
	Elem  int64  `yaml:"elem"`
}

// LoadFile reads a yaml function description from path.
func LoadFile(path string) (*Function, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read function file: %w", err)
	}
	f, err := LoadBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// LoadBytes builds a function from its yaml description.
func LoadBytes(b []byte) (*Function, error) {
	var spec functionSpec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return nil, fmt.Errorf("could not parse function description: %w", err)
	}
	if spec.Name == "" {
		return nil, fmt.Errorf("function description must carry a name")
	}
	if len(spec.Blocks) == 0 {
		return nil, fmt.Errorf("function %q must have at least one block", spec.Name)
	}
	f := NewFunction(spec.Name)
	for _, g := range spec.Globals {
		f.NewGlobal(g.Name, g.Size)
	}
	blocks := make(map[string]*Block, len(spec.Blocks))
	for _, bs := range spec.Blocks {
		if _, dup := blocks[bs.Name]; dup {
			return nil, fmt.Errorf("block %q is defined twice", bs.Name)
		}
		blocks[bs.Name] = f.NewBlock(bs.Name)
	}
	for _, bs := range spec.Blocks {
		blk := blocks[bs.Name]
		for _, node := range bs.Instrs {
			if err := buildInstr(f, blk, node); err != nil {
				return nil, fmt.Errorf("block %q: %w", bs.Name, err)
			}
		}
		for _, succ := range bs.Succs {
			dst, ok := blocks[succ]
			if !ok {
				return nil, fmt.Errorf("block %q names unknown successor %q", bs.Name, succ)
			}
			f.Connect(blk, dst)
		}
	}
	return f, nil
}

func buildInstr(f *Function, b *Block, node yaml.Node) error {
	var raw map[string]yaml.Node
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("instruction must be a one-key mapping: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("instruction must be a one-key mapping, got %d keys", len(raw))
	}
	for op, params := range raw {
		switch op {
		case "alloca":
			var s allocaSpec
			if err := params.Decode(&s); err != nil {
				return err
			}
			b.Alloca(s.Name, s.Size)
		case "load":
			var s loadSpec
			if err := params.Decode(&s); err != nil {
				return err
			}
			addr, err := resolve(f, s.Addr)
			if err != nil {
				return err
			}
			b.Load(s.Name, addr, s.Size)
		case "store":
			var s storeSpec
			if err := params.Decode(&s); err != nil {
				return err
			}
			addr, err := resolve(f, s.Addr)
			if err != nil {
				return err
			}
			val, err := resolve(f, s.Val)
			if err != nil {
				return err
			}
			b.Store(addr, val, s.Size)
		case "call":
			var s callSpec
			if err := params.Decode(&s); err != nil {
				return err
			}
			args := make([]Value, len(s.Args))
			for i, a := range s.Args {
				v, err := resolve(f, a)
				if err != nil {
					return err
				}
				args[i] = v
			}
			b.Call(s.Name, s.Callee, s.Readonly, args...)
		case "ptrtoint":
			var s ptrToIntSpec
			if err := params.Decode(&s); err != nil {
				return err
			}
			x, err := resolve(f, s.X)
			if err != nil {
				return err
			}
			b.PtrToInt(s.Name, x)
		case "index":
			var s indexSpec
			if err := params.Decode(&s); err != nil {
				return err
			}
			base, err := resolve(f, s.Base)
			if err != nil {
				return err
			}
			b.NewIndex(s.Name, base, s.Coeff, s.Depth, s.Off, s.Elem)
		default:
			return fmt.Errorf("unknown instruction %q", op)
		}
	}
	return nil
}

func resolve(f *Function, name string) (Value, error) {
	if name == "" {
		return nil, fmt.Errorf("operand name must not be empty")
	}
	if v := f.ValueByName(name); v != nil {
		return v, nil
	}
	if n, err := strconv.ParseInt(name, 10, 64); err == nil {
		return Const(n), nil
	}
	return nil, fmt.Errorf("unknown value %q", name)
}
