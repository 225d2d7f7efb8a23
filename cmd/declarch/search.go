// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	flag "github.com/spf13/pflag"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/internal/ui"
	"github.com/nixval/declarch/pkg/model"
	"github.com/nixval/declarch/pkg/parseout"
)

type searchFlags struct {
	backends []string
	limit    string
	local    bool
}

func parseSearchFlags(args []string) (searchFlags, []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	var f searchFlags
	fs.StringSliceVar(&f.backends, "backends", nil, "Restrict the search to these backends (default: all available)")
	fs.StringVar(&f.limit, "limit", "20", "Max hits per backend, or \"all\"")
	fs.BoolVar(&f.local, "local", false, "Search only already-installed packages instead of calling out to each backend")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: declarch search QUERY [--backends NAME...] [--limit N|all] [--local]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f, fs.Args()
}

type searchResult struct {
	Backend string          `json:"backend"`
	Hits    []model.SearchHit `json:"hits"`
}

// runSearch implements `declarch search <QUERY> [--backends] [--limit]
// [--local]`.
func runSearch(args []string, globals GlobalFlags) {
	flags, positional := parseSearchFlags(args)
	if len(positional) == 0 {
		declerrors.FatalError(declerrors.NewInputError("No query given",
			"declarch search requires a QUERY argument", "declarch search firefox"), globals.Quiet)
	}
	query := positional[0]

	a := newApp()
	names := flags.backends
	if len(names) == 0 {
		names = a.registry.Names()
	}

	limit := -1
	if flags.limit != "all" {
		limit = atoiOr(flags.limit, 20)
	}

	ctx := context.Background()
	var results []searchResult
	var warnings []string
	for _, name := range names {
		cfg, ok := a.registry.Get(name)
		if !ok || !a.registry.Available(cfg) {
			continue
		}

		var hits []model.SearchHit
		var err error
		if flags.local {
			hits, err = searchInstalled(ctx, a, cfg, query)
		} else if cfg.Search != nil {
			var raw string
			raw, err = a.runner.Search(ctx, cfg, query)
			if err == nil {
				hits, err = parseout.ParseSearch(cfg.SearchParser, raw)
			}
		}
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("search %s: %v", name, err))
			continue
		}
		if limit >= 0 && len(hits) > limit {
			hits = hits[:limit]
		}
		if len(hits) > 0 {
			results = append(results, searchResult{Backend: name, Hits: hits})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Backend < results[j].Backend })

	if emit(globals, "search", results, warnings) {
		return
	}
	printSearchResults(results)
	warnAll(globals, warnings)
}

// searchInstalled implements `--local`: filter the backend's installed
// snapshot by substring match instead of calling out to its search op.
func searchInstalled(ctx context.Context, a *app, cfg *model.BackendConfig, query string) ([]model.SearchHit, error) {
	if cfg.List == nil {
		return nil, nil
	}
	raw, err := a.runner.List(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pkgs, err := parseout.ParseList(cfg.ListParser, raw)
	if err != nil {
		return nil, err
	}
	var hits []model.SearchHit
	for name, meta := range pkgs {
		if strings.Contains(strings.ToLower(name), strings.ToLower(query)) {
			hits = append(hits, model.SearchHit{Name: name, Version: meta.Version})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Name < hits[j].Name })
	return hits, nil
}

func printSearchResults(results []searchResult) {
	if len(results) == 0 {
		ui.Info("no matches")
		return
	}
	for _, r := range results {
		ui.SubHeader(r.Backend)
		for _, h := range r.Hits {
			if h.Desc != "" {
				fmt.Printf("  %-24s %-12s %s\n", h.Name, h.Version, h.Desc)
			} else {
				fmt.Printf("  %-24s %s\n", h.Name, h.Version)
			}
		}
	}
}
