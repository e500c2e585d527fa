/*
Copyright 2025 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config resolves the tool configuration from its YAML
// configuration file and built-in defaults. CLI flags are applied on top
// by the caller.
package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"time"

	"github.com/gravitational/trace"
	"gopkg.in/yaml.v3"

	"github.com/gravitational/riskaudit/lib/directory"
	"github.com/gravitational/riskaudit/lib/scope"
)

// Config is the fully resolved tool configuration.
type Config struct {
	// OutputDir is the directory the reports are written into.
	OutputDir string
	// RiskReport enables the risk-signal report.
	RiskReport bool
	// LicenseSKUs is the set of qualifying license SKU IDs.
	LicenseSKUs []string
	// GraphEndpoint overrides the Graph API endpoint.
	GraphEndpoint string
	// PageSize overrides the Graph API page size.
	PageSize int
	// Concurrency bounds parallel policy resolution.
	Concurrency int
	// LookupTimeout bounds a single group membership lookup.
	LookupTimeout time.Duration
}

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		OutputDir:     ".",
		Concurrency:   scope.DefaultConcurrency,
		LookupTimeout: 30 * time.Second,
	}
}

// QualifyingSKUs returns the configured qualifying license set, falling
// back to the Entra ID P2 bundle SKUs.
func (c *Config) QualifyingSKUs() directory.SKUSet {
	if len(c.LicenseSKUs) == 0 {
		return directory.DefaultQualifyingSKUs()
	}
	return directory.NewSKUSet(c.LicenseSKUs...)
}

// FileConfig mirrors [Config] in the YAML configuration file.
type FileConfig struct {
	OutputDir     string   `yaml:"output_dir,omitempty"`
	RiskReport    bool     `yaml:"risk_report,omitempty"`
	LicenseSKUs   []string `yaml:"license_skus,omitempty"`
	GraphEndpoint string   `yaml:"graph_endpoint,omitempty"`
	PageSize      int      `yaml:"page_size,omitempty"`
	Concurrency   int      `yaml:"concurrency,omitempty"`
	LookupTimeout string   `yaml:"lookup_timeout,omitempty"`
}

// ReadFile parses the YAML configuration file at the given path. Unknown
// fields are rejected to surface typos early.
func ReadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var fc FileConfig
	if err := decoder.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty configuration file.
			return &FileConfig{}, nil
		}
		return nil, trace.BadParameter("parsing configuration file %v: %v", path, err)
	}
	return &fc, nil
}

// Apply overlays the file values onto cfg. Zero-valued file fields leave
// the corresponding cfg field untouched.
func (fc *FileConfig) Apply(cfg *Config) error {
	if fc.OutputDir != "" {
		cfg.OutputDir = fc.OutputDir
	}
	if fc.RiskReport {
		cfg.RiskReport = true
	}
	if len(fc.LicenseSKUs) > 0 {
		cfg.LicenseSKUs = fc.LicenseSKUs
	}
	if fc.GraphEndpoint != "" {
		cfg.GraphEndpoint = fc.GraphEndpoint
	}
	if fc.PageSize > 0 {
		cfg.PageSize = fc.PageSize
	}
	if fc.Concurrency > 0 {
		cfg.Concurrency = fc.Concurrency
	}
	if fc.LookupTimeout != "" {
		timeout, err := time.ParseDuration(fc.LookupTimeout)
		if err != nil {
			return trace.BadParameter("parsing lookup_timeout: %v", err)
		}
		cfg.LookupTimeout = timeout
	}
	return nil
}
