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
)

type installFlags struct {
	module string
	noSync bool
}

func parseInstallFlags(args []string) (installFlags, []string) {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	var f installFlags
	fs.StringVar(&f.module, "module", "", "Declare into config_dir/modules/NAME.kdl instead of declarch.kdl")
	fs.BoolVar(&f.noSync, "no-sync", false, "Declare the package(s) without running a sync afterward")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: declarch install PKG... [--module NAME] [--no-sync]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f, fs.Args()
}

// runInstall implements `declarch install <PKG…> [--module NAME]
// [--no-sync]` (spec.md §4.11's "Configuration rollback"): the config
// file is written before sync runs, and rolled back if the sync that
// follows is Interrupted or Failed. State is never rolled back.
func runInstall(args []string, globals GlobalFlags) {
	flags, pkgs := parseInstallFlags(args)
	if len(pkgs) == 0 {
		declerrors.FatalError(declerrors.NewInputError("No packages given",
			"declarch install requires at least one PKG argument", "declarch install firefox"), globals.Quiet)
	}

	a := newApp()
	targetPath := a.resolver.RootConfigFile()
	if flags.module != "" {
		targetPath = filepath.Join(a.resolver.ModulesDir(), flags.module+".kdl")
	}

	backup, hadBackup, err := backupFile(targetPath)
	if err != nil {
		declerrors.FatalError(declerrors.NewPermissionError("Cannot back up configuration",
			targetPath, "Check file permissions", err), globals.Quiet)
	}

	defaultBackend := a.defaultBackend()
	for _, pkg := range pkgs {
		backend, name := splitBackendPkg(pkg, defaultBackend)
		if err := appendPackageDeclaration(targetPath, backend, name); err != nil {
			declerrors.FatalError(declerrors.NewPermissionError("Cannot write configuration",
				targetPath, "Check directory permissions and available disk space", err), globals.Quiet)
		}
	}
	if flags.module != "" {
		if err := ensureModuleImported(a.resolver.RootConfigFile(), flags.module); err != nil {
			declerrors.FatalError(declerrors.NewPermissionError("Cannot update declarch.kdl imports",
				a.resolver.RootConfigFile(), "Check file permissions", err), globals.Quiet)
		}
	}
	ui.Successf("Declared %s", strings.Join(pkgs, ", "))

	if flags.noSync {
		return
	}

	cfg, cfgWarnings, err := a.loadConfig()
	if err != nil {
		rollbackConfig(targetPath, backup, hadBackup)
		emitError(globals, "install", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snaps, snapWarnings := a.snapshot(ctx)
	recs, loadWarnings, err := a.store.Load(false)
	if err != nil {
		rollbackConfig(targetPath, backup, hadBackup)
		emitError(globals, "install", err)
		return
	}

	txn, err := a.planner.Plan(cfg, snaps, recs, false)
	if err != nil {
		rollbackConfig(targetPath, backup, hadBackup)
		emitError(globals, "install", err)
		return
	}
	warnAll(globals, append(append(cfgWarnings, snapWarnings...), loadWarnings...))

	installed := map[string]bool{}
	for _, snap := range snaps {
		for n := range snap.Packages {
			installed[n] = true
		}
	}

	bar := progressbar.Default(int64(len(txn.Install) + len(txn.Adopt) + len(txn.Remove)))
	exec := execute.New(a.registry, a.runner, a.hookRun, a.store, a.tel)
	sum, err := exec.Apply(ctx, txn, cfg, recs, execute.Options{
		HooksRequested: globals.Hooks,
		Yes:            globals.Yes,
		NoConfirm:      globals.Yes,
		Prompter:       &stdinPrompter{reader: bufio.NewReader(os.Stdin)},
		Resnapshot:     a.resnapshotOne,
		Installed:      installed,
		Progress:       bar,
	})

	if sum != nil && (sum.Interrupted || sum.Failed) {
		rollbackConfig(targetPath, backup, hadBackup)
		ui.Warning("changes rolled back")
	}
	if err != nil {
		emitError(globals, "install", err)
		return
	}
	printSyncSummary(sum)
	warnAll(globals, sum.Warnings)
}

// splitBackendPkg parses a PKG argument in either "name" (default
// backend) or "backend:name" (model.PackageId.String() form) shape.
func splitBackendPkg(pkg, defaultBackend string) (backend, name string) {
	if i := strings.IndexByte(pkg, ':'); i >= 0 {
		return pkg[:i], pkg[i+1:]
	}
	return defaultBackend, pkg
}

// backupFile copies path to path+".install-backup" if it exists, so a
// failed/interrupted install can restore the prior config (spec.md
// §4.11 "Configuration rollback"). hadBackup is false when the file
// didn't exist yet, meaning rollback should delete rather than restore.
func backupFile(path string) (backupPath string, hadBackup bool, err error) {
	backupPath = path + ".install-backup"
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return backupPath, false, nil
	}
	if err != nil {
		return "", false, err
	}
	if err := os.WriteFile(backupPath, raw, 0o640); err != nil {
		return "", false, err
	}
	return backupPath, true, nil
}

func rollbackConfig(path, backupPath string, hadBackup bool) {
	if hadBackup {
		raw, err := os.ReadFile(backupPath)
		if err == nil {
			_ = os.WriteFile(path, raw, 0o640)
		}
	} else {
		_ = os.Remove(path)
	}
	_ = os.Remove(backupPath)
}

// appendPackageDeclaration adds one package to path using the flat
// "pkg:<backend> { name }" top-level form (pkg/config's
// handlePackagesFlat), which never requires locating or rewriting an
// existing nested block — config.Loader simply accumulates every
// pkg:<backend> node it finds.
func appendPackageDeclaration(path, backend, name string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "\npkg:%s {\n  %s\n}\n", backend, name)
	return err
}

// ensureModuleImported appends an imports block pointing at
// modules/<name>.kdl to rootPath. Re-importing the same absolute path is
// a documented no-op in pkg/config (a diamond import, not a cycle), so
// this never needs to check whether the import is already present.
func ensureModuleImported(rootPath, name string) error {
	f, err := os.OpenFile(rootPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "\nimports {\n  \"modules/%s.kdl\"\n}\n", name)
	return err
}
