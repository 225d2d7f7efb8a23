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
)

type lintFlags struct {
	mode        string
	diff        bool
	fix         bool
	strict      bool
	stateRM     string
	repairState bool
}

func parseLintFlags(args []string) (lintFlags, []string) {
	fs := flag.NewFlagSet("lint", flag.ExitOnError)
	var f lintFlags
	fs.StringVar(&f.mode, "mode", "validate", "validate, duplicates, or conflicts")
	fs.BoolVar(&f.diff, "diff", false, "Also print what sync would change")
	fs.BoolVar(&f.fix, "fix", false, "Remove exact-duplicate package declarations where safe")
	fs.BoolVar(&f.strict, "strict", false, "Promote warnings to errors (exit code 2); for CI")
	fs.StringVar(&f.stateRM, "state-rm", "", "Remove one state record by id (backend:name) and exit")
	fs.BoolVar(&f.repairState, "repair-state", false, "Reload state with backup recovery and rewrite it cleanly")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: declarch lint [--mode validate|duplicates|conflicts] [--diff] [--fix] [--strict] [--state-rm ID] [--repair-state]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f, fs.Args()
}

// runLint implements `declarch lint`/`check`. Config and state are only
// mutated by the explicit maintenance flags (--fix, --state-rm,
// --repair-state); plain validation never writes anything.
func runLint(args []string, globals GlobalFlags) {
	flags, _ := parseLintFlags(args)
	a := newApp()

	if flags.stateRM != "" {
		runStateRM(a, flags.stateRM, globals)
		return
	}
	if flags.repairState {
		runRepairState(a, globals)
		return
	}

	cfg, warnings, loadErr := a.loadConfig()
	if loadErr != nil {
		emitError(globals, "lint", loadErr)
		return
	}

	var problems []string
	switch flags.mode {
	case "duplicates":
		dups := findDuplicates(cfg)
		for _, d := range dups {
			problems = append(problems, fmt.Sprintf("duplicate declaration: %s (in %s)", d.id, strings.Join(d.files, ", ")))
		}
		if flags.fix {
			fixDuplicates(dups)
		}
	case "conflicts":
		for _, c := range findConflicts(cfg) {
			problems = append(problems, fmt.Sprintf("declared conflict both desired: %s and %s", c.A, c.B))
		}
	default:
		for _, d := range findDuplicates(cfg) {
			problems = append(problems, fmt.Sprintf("duplicate declaration: %s (in %s)", d.id, strings.Join(d.files, ", ")))
		}
		for _, c := range findConflicts(cfg) {
			problems = append(problems, fmt.Sprintf("declared conflict both desired: %s and %s", c.A, c.B))
		}
	}
	problems = append(problems, warnings...)

	var diffLines []string
	if flags.diff {
		diffLines = planDiffLines(a, cfg)
	}

	var errs []string
	if flags.strict {
		errs, problems = problems, nil
	}

	payload := lintResultPayload{Problems: problems, Errors: errs, Diff: diffLines}
	if emit(globals, "lint", payload, problems) {
		if len(errs) > 0 {
			os.Exit(2)
		}
		return
	}

	printLintResult(problems, errs, diffLines)
	if len(errs) > 0 {
		os.Exit(2)
	}
}

type lintResultPayload struct {
	Problems []string `json:"problems"`
	Errors   []string `json:"errors,omitempty"`
	Diff     []string `json:"diff,omitempty"`
}

func printLintResult(problems, errs, diffLines []string) {
	if len(problems) == 0 && len(errs) == 0 {
		ui.Success("no issues found")
	}
	for _, e := range errs {
		ui.ErrorLine(e)
	}
	for _, p := range problems {
		ui.Warning(p)
	}
	if len(diffLines) > 0 {
		ui.Header("Would change")
		for _, l := range diffLines {
			fmt.Println("  " + l)
		}
	}
}

// planDiffLines runs the same plan pkg/plan would compute during a real
// sync, read-only, for `lint --diff` — without touching state or config.
func planDiffLines(a *app, cfg *model.MergedConfig) []string {
	snaps, _ := a.snapshot(context.Background())
	recs, _, err := a.store.Load(false)
	if err != nil {
		return []string{fmt.Sprintf("could not compute diff: %v", err)}
	}
	txn, err := a.planner.Plan(cfg, snaps, recs, true)
	if err != nil {
		return []string{fmt.Sprintf("could not compute diff: %v", err)}
	}
	var lines []string
	for _, id := range txn.Install {
		lines = append(lines, "install "+id.String())
	}
	for _, id := range txn.Adopt {
		lines = append(lines, "adopt "+id.String())
	}
	for _, id := range txn.Remove {
		lines = append(lines, "remove "+id.String())
	}
	return lines
}

type duplicateEntry struct {
	id    model.PackageId
	files []string
}

// findDuplicates reports every PackageId declared more than once across
// all loaded files — the loader only keeps the first declaration's
// source attribution (pkg/config's addPackageEntry), so this walks the
// raw AllEntries() list instead of SourceFiles to catch every repeat.
func findDuplicates(cfg *model.MergedConfig) []duplicateEntry {
	seen := map[model.PackageId][]string{}
	for _, e := range cfg.AllEntries() {
		id := e.Id()
		seen[id] = append(seen[id], e.SourceFile)
	}
	var ids []model.PackageId
	for id, files := range seen {
		if len(files) > 1 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	out := make([]duplicateEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, duplicateEntry{id: id, files: seen[id]})
	}
	return out
}

// findConflicts reports every declared conflict pair where both sides
// are currently declared packages, independent of availability (unlike
// pkg/plan's resolveConflicts, which only runs during a real reconcile).
func findConflicts(cfg *model.MergedConfig) []model.ConflictPair {
	names := map[string]bool{}
	for _, e := range cfg.AllEntries() {
		names[e.Name] = true
	}
	var out []model.ConflictPair
	for _, pair := range cfg.Conflicts {
		if names[pair.A] && names[pair.B] {
			out = append(out, pair)
		}
	}
	return out
}

// fixDuplicates removes exact-duplicate declaration lines so that each
// duplicated name keeps a single declaration: the first file the loader
// read keeps one line, and a file holding several copies keeps one of them
// only if it is that first file. This only fixes the textual-duplicate-line
// case (the common one: the same "name" line copy-pasted into two files
// or twice in one file) — it does not attempt to merge differing
// per-package options, which is left for manual edit.
func fixDuplicates(dups []duplicateEntry) {
	byFile := map[string][]string{}
	for _, d := range dups {
		for i, file := range d.files {
			if i == 0 {
				continue
			}
			byFile[file] = append(byFile[file], d.id.Name)
		}
	}
	for file, names := range byFile {
		removeLinesMatchingNames(file, names)
	}
}

func removeLinesMatchingNames(path string, names []string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	want := map[string]int{}
	for _, n := range names {
		want[n]++
	}
	lines := strings.Split(string(raw), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if want[trimmed] > 0 {
			want[trimmed]--
			continue
		}
		out = append(out, line)
	}
	_ = os.WriteFile(path, []byte(strings.Join(out, "\n")), 0o640)
}

func runStateRM(a *app, idArg string, globals GlobalFlags) {
	id, err := parsePackageId(idArg)
	if err != nil {
		declerrors.FatalError(err, globals.Quiet)
	}
	recs, _, err := a.store.Load(false)
	if err != nil {
		declerrors.FatalError(err, globals.Quiet)
	}
	if _, ok := recs[id]; !ok {
		declerrors.FatalError(declerrors.NewInputError("No such state record",
			idArg, "Run 'declarch info --list' to see tracked packages"), globals.Quiet)
	}
	delete(recs, id)
	if err := a.store.Save(recs); err != nil {
		declerrors.FatalError(err, globals.Quiet)
	}
	ui.Successf("Removed state record %s", id.String())
}

func runRepairState(a *app, globals GlobalFlags) {
	recs, warnings, err := a.store.Load(false)
	if err != nil {
		declerrors.FatalError(err, globals.Quiet)
	}
	for _, w := range warnings {
		ui.Warning(w)
	}
	if err := a.store.Save(recs); err != nil {
		declerrors.FatalError(err, globals.Quiet)
	}
	ui.Success("state repaired")
}

func parsePackageId(s string) (model.PackageId, error) {
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return model.PackageId{}, declerrors.NewInputError("Invalid state id",
			s, "Use the backend:name form, e.g. pacman:firefox")
	}
	return model.PackageId{Backend: model.Backend{Name: s[:i]}, Name: s[i+1:]}, nil
}
