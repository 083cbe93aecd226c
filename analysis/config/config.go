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

// Package config defines the analyzer configuration and the leveled logger
// shared by all analysis passes.
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

var (
	// The global config file
	configFile string
)

// SetGlobalConfig sets the global config filename
func SetGlobalConfig(filename string) {
	configFile = filename
}

// LoadGlobal loads the config file that has been set by SetGlobalConfig
func LoadGlobal() (*Config, error) {
	return Load(configFile)
}

// Config holds the user-facing settings of the privatizability analyzer.
// If some field is not defined in the config file, it will be empty/zero in
// the struct. Private fields are not populated from a yaml file, but computed
// after initialization.
type Config struct {
	Options

	sourceFile string

	// if the FunctionFilter is specified
	funcFilterRegex *regexp.Regexp
}

// Options are the yaml-settable knobs of the analyzer.
type Options struct {
	// LogLevel controls the verbosity of the analysis (see LogLevel constants).
	LogLevel int `yaml:"log-level"`

	// FunctionFilter restricts the analysis to functions whose name matches
	// the regex. An empty filter matches every function.
	FunctionFilter string `yaml:"function-filter"`

	// DumpTraits requests a textual dump of the per-loop traits after each
	// function has been analyzed.
	DumpTraits bool `yaml:"dump-traits"`

	// AssumeCallReadonly treats calls without a body as read-only accesses
	// instead of unknown writes. Unsound in general; useful to inspect how
	// much precision opaque calls cost on a given program.
	AssumeCallReadonly bool `yaml:"assume-call-readonly"`
}

// NewDefault returns a config with the default options set.
func NewDefault() *Config {
	return &Config{Options: Options{LogLevel: int(InfoLevel)}}
}

// Load reads a config from the yaml file at filename.
func Load(filename string) (*Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	cfg := NewDefault()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file %q: %w", filename, err)
	}
	cfg.sourceFile = filename
	if err := cfg.compile(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SourceFile returns the file the config was loaded from, if any.
func (c *Config) SourceFile() string { return c.sourceFile }

func (c *Config) compile() error {
	if c.FunctionFilter == "" {
		return nil
	}
	r, err := regexp.Compile(c.FunctionFilter)
	if err != nil {
		return fmt.Errorf("invalid function-filter %q: %w", c.FunctionFilter, err)
	}
	c.funcFilterRegex = r
	return nil
}

// MatchFunction reports whether the function named name should be analyzed
// under the configured filter.
func (c *Config) MatchFunction(name string) bool {
	if c.funcFilterRegex == nil {
		return true
	}
	return c.funcFilterRegex.MatchString(name)
}
