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

// Command riskaudit audits an Entra ID tenant for users in scope of
// risk-based conditional access policies without an entitling license, and
// writes the result sets as CSV reports.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/alecthomas/kingpin/v2"
	"github.com/gravitational/trace"

	"github.com/gravitational/riskaudit"
	"github.com/gravitational/riskaudit/lib/audit"
	"github.com/gravitational/riskaudit/lib/config"
	"github.com/gravitational/riskaudit/lib/msgraph"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", trace.UserMessage(err))
		os.Exit(1)
	}
}

// cliFlags keeps the CLI flags of the tool. Zero values mean "not set":
// explicit flags override the configuration file, which overrides the
// built-in defaults.
type cliFlags struct {
	Debug         bool
	ConfigFile    string
	OutputDir     string
	RiskReport    bool
	LicenseSKUs   []string
	GraphEndpoint string
	Concurrency   int
	LookupTimeout time.Duration
}

func run(ctx context.Context, args []string) error {
	app := kingpin.New("riskaudit", "Audit risk-based conditional access policy scope against Entra ID P2 license assignments.")
	app.Version(riskaudit.Version)
	app.HelpFlag.Short('h')

	var flags cliFlags
	app.Flag("debug", "Enable verbose logging to stderr.").Short('d').BoolVar(&flags.Debug)
	app.Flag("config", "Path to a configuration file in YAML format.").Short('c').Envar("RISKAUDIT_CONFIG").StringVar(&flags.ConfigFile)
	app.Flag("out-dir", "Directory to write the CSV reports into, created if absent.").Short('o').StringVar(&flags.OutputDir)
	app.Flag("risk-report", "Also cross-check the Identity Protection risky user feed.").BoolVar(&flags.RiskReport)
	app.Flag("license-sku", "License SKU ID that qualifies as entitling. Can be supplied multiple times, overrides the built-in Entra ID P2 set.").StringsVar(&flags.LicenseSKUs)
	app.Flag("graph-endpoint", "Microsoft Graph API endpoint.").StringVar(&flags.GraphEndpoint)
	app.Flag("concurrency", "Number of policies resolved in parallel.").IntVar(&flags.Concurrency)
	app.Flag("lookup-timeout", "Timeout for a single group membership lookup.").DurationVar(&flags.LookupTimeout)

	if _, err := app.Parse(args); err != nil {
		return trace.Wrap(err)
	}

	initLogger(flags.Debug)

	cfg, err := resolveConfig(&flags)
	if err != nil {
		return trace.Wrap(err)
	}

	// Credentials come from the environment (service principal, managed
	// identity, or a developer sign-in), resolved by the Azure identity
	// default chain.
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return trace.Wrap(err)
	}
	client, err := msgraph.NewClient(msgraph.Config{
		TokenProvider: cred,
		GraphEndpoint: cfg.GraphEndpoint,
		PageSize:      cfg.PageSize,
	})
	if err != nil {
		return trace.Wrap(err)
	}

	summary, err := audit.Run(ctx, audit.Config{
		Client:         client,
		OutputDir:      cfg.OutputDir,
		RiskReport:     cfg.RiskReport,
		QualifyingSKUs: cfg.QualifyingSKUs(),
		Concurrency:    cfg.Concurrency,
		LookupTimeout:  cfg.LookupTimeout,
	})
	if err != nil {
		return trace.Wrap(err)
	}

	fmt.Printf("principals: %d, entitled: %d, policies evaluated: %d, in scope: %d, discrepant: %d\n",
		summary.Principals, summary.Entitled, summary.PoliciesEvaluated, summary.InScope, summary.Discrepant)
	if cfg.RiskReport {
		fmt.Printf("risk flagged: %d, risk discrepant: %d\n", summary.RiskFlagged, summary.RiskDiscrepant)
	}
	return nil
}

// resolveConfig layers the configuration sources: built-in defaults, then
// the configuration file, then explicit CLI flags.
func resolveConfig(flags *cliFlags) (*config.Config, error) {
	cfg := config.Default()

	if flags.ConfigFile != "" {
		fc, err := config.ReadFile(flags.ConfigFile)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		if err := fc.Apply(&cfg); err != nil {
			return nil, trace.Wrap(err)
		}
	}

	if flags.OutputDir != "" {
		cfg.OutputDir = flags.OutputDir
	}
	if flags.RiskReport {
		cfg.RiskReport = true
	}
	if len(flags.LicenseSKUs) > 0 {
		cfg.LicenseSKUs = flags.LicenseSKUs
	}
	if flags.GraphEndpoint != "" {
		cfg.GraphEndpoint = flags.GraphEndpoint
	}
	if flags.Concurrency > 0 {
		cfg.Concurrency = flags.Concurrency
	}
	if flags.LookupTimeout > 0 {
		cfg.LookupTimeout = flags.LookupTimeout
	}

	return &cfg, nil
}

func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
