// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main implements the declarch CLI: a declarative, multi-backend
// Linux package orchestrator (spec.md §1).
//
// Usage:
//
//	declarch init [SOURCE]       Create declarch.kdl, optionally from a remote source
//	declarch sync                Reconcile declared state against installed state
//	declarch install <PKG...>    Declare and immediately sync one or more packages
//	declarch lint                Validate config without applying it
//	declarch info                Show environment/backend/doctor diagnostics
//	declarch search <QUERY>      Search backends for a package name
//	declarch switch <OLD> <NEW>  Replace one declared package with another
//	declarch edit [MODULE]       Open a config module in $EDITOR
//	declarch settings ...        Get/set/show/reset settings.json
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/nixval/declarch/internal/ui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags holds the flags that apply across every subcommand,
// mirroring the teacher's cmd/cie GlobalFlags shape.
type GlobalFlags struct {
	Format  string // "table" (human), "json", "yaml"
	NoColor bool
	Verbose int
	Quiet   bool
	Yes     bool
	Hooks   bool
}

// wantsMachineOutput reports whether the invocation asked for an
// envelope-wrapped response rather than human-readable text.
func (g GlobalFlags) wantsMachineOutput() bool {
	return g.Format == "json" || g.Format == "yaml"
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		format      = flag.String("format", "table", "Output format: table, json, yaml")
		outputVer   = flag.String("output-version", "", "Machine-output envelope version (only \"v1\" supported)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v info, -vv debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output")
		yes         = flag.BoolP("yes", "y", false, "Assume 'yes' to prompts; 'no' for destructive orphan removal")
		hooksFlag   = flag.Bool("hooks", false, "Allow hooks to run, subject to the other three gates")
	)
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `declarch - declarative multi-backend package orchestrator

Usage:
  declarch <command> [options]

Commands:
  init [SOURCE]        Create declarch.kdl, optionally fetched from a remote source
  sync                 Reconcile declared state against installed state
  install <PKG...>     Declare and sync one or more packages
  lint                 Validate configuration (alias: check)
  info                 Environment, backend, and doctor diagnostics
  search <QUERY>       Search backends for a package
  switch <OLD> <NEW>   Replace one declared package with another
  edit [MODULE]        Open a config module in $EDITOR
  settings <op> ...    get/set/show/reset settings.json
  ext                  List declarch-ext-* extension binaries on PATH

Global Options:
  --format FMT        table (default), json, yaml
  --output-version V  machine-output envelope version (v1)
  --no-color          Disable color output (respects NO_COLOR)
  -v, --verbose       Increase verbosity
  -q, --quiet         Suppress non-essential output
  -y, --yes           Assume yes (no for destructive orphan removal)
  --hooks             Allow hooks to run this invocation
  -V, --version       Show version and exit

Environment Variables:
  XDG_CONFIG_HOME, XDG_STATE_HOME, XDG_CACHE_HOME
  DECLARCH_ALLOW_INSECURE_HTTP   allow http:// remote init sources
  DECLARCH_BIN                   path hint used by external integrations
  NO_COLOR                       disable color output

For detailed command help: declarch <command> --help
`)
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("declarch version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}
	if *format == "json" || *format == "yaml" {
		*quiet = true
	}

	globals := GlobalFlags{
		Format:  *format,
		NoColor: *noColor,
		Verbose: *verbose,
		Quiet:   *quiet,
		Yes:     *yes,
		Hooks:   *hooksFlag,
	}
	_ = outputVer // only "v1" exists, so the value is not read; machine output is gated per command by envelope.Supported

	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "sync":
		runSync(cmdArgs, globals)
	case "install":
		runInstall(cmdArgs, globals)
	case "lint", "check":
		runLint(cmdArgs, globals)
	case "info":
		runInfo(cmdArgs, globals)
	case "search":
		runSearch(cmdArgs, globals)
	case "switch":
		runSwitch(cmdArgs, globals)
	case "edit":
		runEdit(cmdArgs, globals)
	case "settings":
		runSettings(cmdArgs, globals)
	case "ext":
		runExt(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
