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

// parloop: per-loop memory privatizability analysis.
// This is the entry point of parloop.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/parloop/parloop/analysis"
	"github.com/parloop/parloop/analysis/config"
	"github.com/parloop/parloop/analysis/format"
	"github.com/parloop/parloop/analysis/ir"
	"github.com/parloop/parloop/analysis/privatize"
)

// flags
var (
	configPath = ""
	verbose    = false
	dumpFlag   = false
)

func init() {
	flag.StringVar(&configPath, "config", "", "path to analyzer config file")
	flag.BoolVar(&verbose, "verbose", false, "verbose printing on standard output")
	flag.BoolVar(&dumpFlag, "dump-traits", false, "print the per-loop traits of every analyzed function")
}

const usage = `Classify the memory accessed by every loop of your functions.

Usage:
  parloop function.yaml...

Use the -help flag to display the options.

Examples:
% parloop testdata/sum.yaml
`

func main() {
	flag.Parse()
	if err := doMain(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "parloop: %s\n", err)
		os.Exit(1)
	}
}

func doMain(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cfg := config.NewDefault()
	if configPath != "" {
		config.SetGlobalConfig(configPath)
		loaded, err := config.LoadGlobal()
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if verbose {
		cfg.LogLevel = int(config.DebugLevel)
	}
	if dumpFlag {
		cfg.DumpTraits = true
	}
	logger := config.NewLogGroup(cfg)

	for _, path := range args {
		fmt.Fprintln(os.Stderr, format.Faint("Reading "+path))
		fn, err := ir.LoadFile(path)
		if err != nil {
			return err
		}
		if !cfg.MatchFunction(fn.Name()) {
			logger.Debugf("skip function %s, filtered out", fn.Name())
			continue
		}
		fmt.Fprintln(os.Stderr, format.Faint("Analyzing "+fn.Name()))
		res, err := analysis.AnalyzeFunction(fn, cfg, logger)
		if err != nil {
			return err
		}
		if cfg.DumpTraits {
			fmt.Printf("function %s:\n", fn.Name())
			privatize.Dump(os.Stdout, res.Forest, res.Traits)
		}
		reportStatistics(res)
	}
	return nil
}

func reportStatistics(res *analysis.Result) {
	s := res.Analyzer.Stats
	fmt.Printf("%s: %d loops, %d private, %d first private, %d last private, "+
		"%d second to last private, %d dynamic private, %d shared, %d readonly, %d dependencies\n",
		res.Fn.Name(), len(res.Traits),
		s.Private, s.FirstPrivate, s.LastPrivate,
		s.SecondToLastPrivate, s.DynamicPrivate,
		s.Shared, s.Readonly, s.Dependency)
}
