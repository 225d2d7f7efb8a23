// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/internal/ui"
	"github.com/nixval/declarch/pkg/fetch"
	"github.com/nixval/declarch/pkg/paths"
)

type initFlags struct {
	backends      []string
	host          string
	dryRun        bool
	noAutoImport  bool
}

func parseInitFlags(args []string) (initFlags, []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var f initFlags
	fs.StringSliceVar(&f.backends, "backend", nil, "Restrict scaffolding to these backends (repeatable)")
	fs.StringVar(&f.host, "host", "", "Host-specific config variant to fetch (appended as :variant to a remote source)")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Print what would be written without writing it")
	fs.BoolVar(&f.noAutoImport, "no-auto-import", false, "Skip importing currently installed packages into the scaffold")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: declarch init [SOURCE] [options]

Description:
  Create config_dir/declarch.kdl. With SOURCE, fetch a remote declarch.kdl
  (spec.md §4.13: "user/repo", "user/repo:variant", "user/repo/branch", a
  gitlab.com/... reference, "registry/module", or a full https:// URL).
  Without SOURCE, scaffold a config from the available backends, importing
  currently installed packages unless --no-auto-import is given.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f, fs.Args()
}

func runInit(args []string, globals GlobalFlags) {
	flags, positional := parseInitFlags(args)
	resolver := paths.NewResolver()
	if err := resolver.EnsureDirs(); err != nil {
		declerrors.FatalError(declerrors.NewPermissionError("Cannot create declarch directories",
			err.Error(), "Check permissions", err), globals.Quiet)
	}

	if len(positional) > 0 {
		runRemoteInit(resolver, positional[0], flags, globals)
		return
	}
	runScaffoldInit(resolver, flags, globals)
}

// runRemoteInit resolves SOURCE to its candidate URLs, fetches the first
// that parses as valid KDL, and writes it to declarch.kdl (spec.md §4.13).
func runRemoteInit(resolver *paths.Resolver, source string, flags initFlags, globals GlobalFlags) {
	if flags.host != "" && !strings.Contains(source, ":") {
		source = source + ":" + flags.host
	}

	f := fetch.New(fetch.WithUserAgent(resolver.IdentityString()))
	body, chosenURL, err := f.Fetch(context.Background(), source)
	if err != nil {
		declerrors.FatalError(err, globals.Quiet)
	}

	if flags.dryRun {
		fmt.Printf("Would fetch %s and write to %s:\n\n%s\n", chosenURL, resolver.RootConfigFile(), body)
		return
	}

	if err := fetch.WriteConfig(resolver.RootConfigFile(), body); err != nil {
		declerrors.FatalError(err, globals.Quiet)
	}
	ui.Successf("Fetched %s", chosenURL)
	ui.Successf("Wrote %s", resolver.RootConfigFile())
}

// runScaffoldInit builds a minimal declarch.kdl from locally available
// backends, optionally pre-populating each backend's block with the
// packages currently installed (spec.md §6's "pkg { <backend> { ... } }"
// preferred form).
func runScaffoldInit(resolver *paths.Resolver, flags initFlags, globals GlobalFlags) {
	a := newApp()

	wanted := flags.backends
	if len(wanted) == 0 {
		wanted = a.registry.Names()
	}

	var snaps map[string]map[string]struct{}
	if !flags.noAutoImport {
		snapshots, _ := a.snapshot(context.Background())
		snaps = map[string]map[string]struct{}{}
		for name, snap := range snapshots {
			names := map[string]struct{}{}
			for pkgName := range snap.Packages {
				names[pkgName] = struct{}{}
			}
			snaps[name] = names
		}
	}

	var b strings.Builder
	b.WriteString("// declarch configuration\n")
	b.WriteString("meta {\n  description \"generated by declarch init\"\n}\n\n")
	b.WriteString("pkg {\n")
	for _, name := range wanted {
		cfg, ok := a.registry.Get(name)
		if !ok || !a.registry.Available(cfg) {
			continue
		}
		b.WriteString(fmt.Sprintf("  %s {\n", name))
		for pkgName := range snaps[name] {
			b.WriteString(fmt.Sprintf("    %s\n", pkgName))
		}
		b.WriteString("  }\n")
	}
	b.WriteString("}\n")

	if flags.dryRun {
		fmt.Print(b.String())
		return
	}

	if _, err := os.Stat(resolver.RootConfigFile()); err == nil {
		declerrors.FatalError(declerrors.NewInputError("Configuration already exists",
			fmt.Sprintf("%s already exists", resolver.RootConfigFile()),
			"Remove it first, or edit it directly with 'declarch edit'"), globals.Quiet)
	}
	if err := os.WriteFile(resolver.RootConfigFile(), []byte(b.String()), 0o640); err != nil {
		declerrors.FatalError(declerrors.NewPermissionError("Cannot write configuration",
			resolver.RootConfigFile(), "Check directory permissions and available disk space", err), globals.Quiet)
	}
	ui.Successf("Created %s", resolver.RootConfigFile())
}
