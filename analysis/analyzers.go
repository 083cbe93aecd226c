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

// Package analysis wires the individual passes into the full per-function
// pipeline: loop-nest construction, alias-tree building, reaching
// definitions, liveness, and trait resolution.
package analysis

import (
	"fmt"

	"github.com/parloop/parloop/analysis/config"
	"github.com/parloop/parloop/analysis/defuse"
	"github.com/parloop/parloop/analysis/deps"
	"github.com/parloop/parloop/analysis/ir"
	"github.com/parloop/parloop/analysis/live"
	"github.com/parloop/parloop/analysis/memory"
	"github.com/parloop/parloop/analysis/privatize"
	"github.com/parloop/parloop/analysis/regions"
)

// A Result bundles everything the pipeline computed for one function.
type Result struct {
	Fn       *ir.Function
	Forest   *regions.Info
	Tree     *memory.AliasTree
	Defs     defuse.Info
	Live     live.Info
	Traits   privatize.PrivateInfo
	Analyzer *privatize.Analyzer
}

// AnalyzeFunction runs the whole pipeline over fn.
func AnalyzeFunction(fn *ir.Function, cfg *config.Config, log *config.LogGroup) (*Result, error) {
	if len(fn.Blocks) == 0 {
		return nil, fmt.Errorf("function %s has no blocks", fn.Name())
	}
	log.Debugf("analyze function %s", fn.Name())
	forest := regions.Build(fn)
	tree := memory.Build(fn, memory.NewBasicAA())
	defs := defuse.Analyze(tree, forest)
	lv := live.Analyze(tree, forest)
	oracle := deps.NewAffineOracle(tree.AliasAnalysis())
	a := privatize.NewAnalyzer(tree, forest, defs, lv, oracle, cfg, log)
	traits := a.Run()
	return &Result{
		Fn:       fn,
		Forest:   forest,
		Tree:     tree,
		Defs:     defs,
		Live:     lv,
		Traits:   traits,
		Analyzer: a,
	}, nil
}
