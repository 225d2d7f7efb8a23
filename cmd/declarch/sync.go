// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"
	"github.com/schollz/progressbar/v3"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/internal/ui"
	"github.com/nixval/declarch/pkg/execute"
	"github.com/nixval/declarch/pkg/model"
	"github.com/nixval/declarch/pkg/parseout"
)

type syncFlags struct {
	dryRun  bool
	preview bool
	update  bool
	prune   bool
	hooks   bool
	yes     bool
	target  string
	module  string
}

func parseSyncFlags(args []string) (syncFlags, []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	var f syncFlags
	fs.BoolVar(&f.dryRun, "dry-run", false, "Print the transaction without applying it")
	fs.BoolVar(&f.preview, "preview", false, "Alias for --dry-run")
	fs.BoolVar(&f.update, "update", false, "Refresh each affected backend's package index before reconciling")
	fs.BoolVar(&f.prune, "prune", false, "Load state strictly; a corrupt state file fails instead of recovering from a backup")
	fs.BoolVar(&f.hooks, "hooks", false, "Allow hooks to run (also settable via the global --hooks)")
	fs.BoolVarP(&f.yes, "yes", "y", false, "Assume yes (also settable via the global -y)")
	fs.StringVar(&f.target, "target", "", "Restrict reconciliation to one backend")
	fs.StringVar(&f.module, "module", "", "Restrict reconciliation to packages declared in one config module (file base name)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: declarch sync [--dry-run|--preview] [--update] [--prune] [--hooks] [--yes] [--target BACKEND] [--module NAME]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f, fs.Args()
}

// filterConfig narrows cfg.Packages to one backend and/or one declaring
// module (matched against PackageEntry.SourceFile's base name, without
// extension), leaving policy, hooks, aliases, and conflicts untouched —
// those are cross-cutting and still apply to whatever survives the filter.
func filterConfig(cfg *model.MergedConfig, target, module string) *model.MergedConfig {
	if target == "" && module == "" {
		return cfg
	}
	out := *cfg
	out.Packages = map[string][]model.PackageEntry{}
	for backendName, entries := range cfg.Packages {
		if target != "" && backendName != target {
			continue
		}
		var kept []model.PackageEntry
		for _, e := range entries {
			if module != "" && moduleName(e.SourceFile) != module {
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) > 0 {
			out.Packages[backendName] = kept
		}
	}
	return &out
}

func moduleName(sourceFile string) string {
	base := filepath.Base(sourceFile)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// stdinPrompter asks y/N on stdin for policy.orphans=ask removals,
// grounded on the teacher's cmd/cie/init.go prompt() helper.
type stdinPrompter struct {
	reader *bufio.Reader
}

func (p *stdinPrompter) ConfirmRemove(id model.PackageId) bool {
	fmt.Printf("Remove orphaned package %s? [y/N]: ", id.String())
	line, _ := p.reader.ReadString('\n')
	switch line {
	case "y\n", "Y\n", "yes\n":
		return true
	default:
		return false
	}
}

func runSync(args []string, globals GlobalFlags) {
	flags, _ := parseSyncFlags(args)
	dryRun := flags.dryRun || flags.preview
	command := "sync"
	if dryRun {
		command = "sync --dry-run"
	}
	if globals.wantsMachineOutput() && !dryRun {
		emitError(globals, command, declerrors.NewContractNotSupported(command))
		return
	}

	a := newApp()
	cfg, cfgWarnings, err := a.loadConfig()
	if err != nil {
		emitError(globals, command, err)
		return
	}
	cfg = filterConfig(cfg, flags.target, flags.module)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.update {
		runBackendUpdates(ctx, a, cfg)
	}

	snaps, snapWarnings := a.snapshot(ctx)
	warnings := append(append([]string{}, cfgWarnings...), snapWarnings...)

	recs, loadWarnings, err := a.store.Load(flags.prune)
	if err != nil {
		emitError(globals, command, err)
		return
	}
	warnings = append(warnings, loadWarnings...)

	txn, err := a.planner.Plan(cfg, snaps, recs, dryRun)
	if err != nil {
		emitError(globals, command, err)
		return
	}
	txn.Warnings = append(txn.Warnings, warnings...)

	if dryRun {
		if emit(globals, command, txn, txn.Warnings) {
			return
		}
		printTransactionPreview(txn)
		return
	}

	installed := map[string]bool{}
	for _, snap := range snaps {
		for name := range snap.Packages {
			installed[name] = true
		}
	}

	bar := progressbar.Default(int64(len(txn.Install) + len(txn.Adopt) + len(txn.Remove)))
	exec := execute.New(a.registry, a.runner, a.hookRun, a.store, a.tel)
	opts := execute.Options{
		HooksRequested: globals.Hooks || flags.hooks,
		Yes:            globals.Yes || flags.yes,
		NoConfirm:      globals.Yes || flags.yes,
		Prompter:       &stdinPrompter{reader: bufio.NewReader(os.Stdin)},
		Resnapshot:     a.resnapshotOne,
		Installed:      installed,
		Progress:       bar,
	}

	sum, err := exec.Apply(ctx, txn, cfg, recs, opts)
	if err != nil {
		if de, ok := err.(*declerrors.DeclarchError); ok {
			emitError(globals, command, de)
			return
		}
		emitError(globals, command, err)
		return
	}

	printSyncSummary(sum)
	warnAll(globals, sum.Warnings)
}

// runBackendUpdates refreshes every backend declared in cfg before the
// reconcile runs (spec.md §9 open question: `--update` runs once per
// backend ahead of the install phase, not per package).
func runBackendUpdates(ctx context.Context, a *app, cfg *model.MergedConfig) {
	for backendName := range cfg.Packages {
		bcfg, ok := a.registry.Get(backendName)
		if !ok || !a.registry.Available(bcfg) {
			continue
		}
		if err := a.runner.Update(ctx, bcfg); err != nil {
			ui.Warning(fmt.Sprintf("update %s: %v", backendName, err))
		}
	}
}

// resnapshotOne re-lists one backend's installed packages, used by the
// executor to partition a partially failed batch (spec.md §4.11 step 3).
func (a *app) resnapshotOne(ctx context.Context, backendName string) (model.InstalledSnapshot, error) {
	cfg, ok := a.registry.Get(backendName)
	if !ok {
		return model.InstalledSnapshot{}, declerrors.NewBackendNotFound(backendName, nil)
	}
	raw, err := a.runner.List(ctx, cfg)
	if err != nil {
		return model.InstalledSnapshot{}, err
	}
	pkgs, err := parseout.ParseList(cfg.ListParser, raw)
	if err != nil {
		return model.InstalledSnapshot{}, err
	}
	return model.InstalledSnapshot{Backend: model.Backend{Name: backendName}, Packages: pkgs}, nil
}

func printTransactionPreview(txn *model.Transaction) {
	ui.Header("Sync preview")
	printIdList("Install", txn.Install)
	printIdList("Adopt", txn.Adopt)
	printIdList("Remove", txn.Remove)
	for _, vt := range txn.VariantTransitions {
		fmt.Printf("  Transition: %s -> %s (%s)\n", vt.OldName, vt.NewName, vt.Backend.Name)
	}
	for _, s := range txn.Skip {
		fmt.Printf("  Skip: %s (%s) %s\n", s.Id.String(), s.Reason, s.Detail)
	}
	for _, w := range txn.Warnings {
		ui.Warning(w)
	}
	if txn.IsEmpty() {
		ui.Info("already in sync")
	}
}

func printIdList(label string, ids []model.PackageId) {
	if len(ids) == 0 {
		return
	}
	fmt.Printf("  %s (%d):\n", label, len(ids))
	for _, id := range ids {
		fmt.Printf("    %s\n", id.String())
	}
}

func printSyncSummary(sum *execute.Summary) {
	ui.Header("Sync complete")
	fmt.Printf("  installed: %s  adopted: %s  removed: %s\n",
		ui.CountText(len(sum.Installed)), ui.CountText(len(sum.Adopted)), ui.CountText(len(sum.Removed)))
	if len(sum.InstalledFailed) > 0 || len(sum.RemovedFailed) > 0 {
		ui.Warning(fmt.Sprintf("%d installs failed, %d removes failed", len(sum.InstalledFailed), len(sum.RemovedFailed)))
	}
	if sum.Interrupted {
		ui.Warning("interrupted; state reflects what completed before the interrupt")
	}
}
