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

package report

import (
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gravitational/trace"

	"github.com/gravitational/riskaudit"
)

// WriterConfig defines the configuration of a [Writer].
type WriterConfig struct {
	// Dir is the output directory, created if absent.
	Dir string
	// Logger is the logger for per-report outcomes. Optional.
	Logger *slog.Logger
}

// SetDefaults sets the default values for optional fields.
func (cfg *WriterConfig) SetDefaults() {
	if cfg.Logger == nil {
		cfg.Logger = slog.With(riskaudit.ComponentKey, riskaudit.ComponentReport)
	}
}

// Validate checks that the required fields are set.
func (cfg *WriterConfig) Validate() error {
	if cfg.Dir == "" {
		return trace.BadParameter("Dir must be set")
	}
	return nil
}

// Writer emits reports as CSV files into a single output directory.
type Writer struct {
	dir string
	log *slog.Logger
}

// NewWriter returns a writer emitting into cfg.Dir, creating the directory
// if it does not exist.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	return &Writer{dir: cfg.Dir, log: cfg.Logger}, nil
}

// Write serializes a single report to <dir>/<name>.csv.
func (w *Writer) Write(r Report) error {
	path := filepath.Join(w.dir, r.Name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return trace.ConvertSystemError(err)
	}

	cw := csv.NewWriter(f)
	writeErr := cw.Write(r.Header)
	if writeErr == nil {
		writeErr = cw.WriteAll(r.Rows)
	}
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return trace.ConvertSystemError(writeErr)
	}

	w.log.Info("report written", "report", r.Name, "path", path, "rows", len(r.Rows))
	return nil
}

// WriteAll serializes every report, isolating failures: a failed report
// does not prevent the remaining ones from being attempted. The returned
// error aggregates the individual failures.
func (w *Writer) WriteAll(reports []Report) error {
	var errs []error
	for _, r := range reports {
		if err := w.Write(r); err != nil {
			w.log.Error("failed to write report", "report", r.Name, "error", err)
			errs = append(errs, trace.Wrap(err, "writing report %q", r.Name))
		}
	}
	return trace.NewAggregate(errs...)
}
