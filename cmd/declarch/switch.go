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
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/internal/ui"
	"github.com/nixval/declarch/pkg/execute"
	"github.com/nixval/declarch/pkg/model"
)

// runSwitch implements `declarch switch <OLD> <NEW>`: rewrite OLD's
// config declaration to NEW in place, then sync so the old package is
// removed and the new one installed (spec.md §4.11's configuration
// rollback applies here exactly as it does to `install`, since this is
// also a CLI action that writes config before syncing).
func runSwitch(args []string, globals GlobalFlags) {
	if len(args) != 2 {
		declerrors.FatalError(declerrors.NewInputError("Wrong number of arguments",
			"declarch switch requires OLD and NEW package names", "declarch switch firefox firefox-esr"), globals.Quiet)
	}
	oldArg, newArg := args[0], args[1]

	a := newApp()
	cfg, _, err := a.loadConfig()
	if err != nil {
		emitError(globals, "switch", err)
		return
	}

	oldBackend, oldName := "", oldArg
	if i := strings.IndexByte(oldArg, ':'); i >= 0 {
		oldBackend, oldName = oldArg[:i], oldArg[i+1:]
	}
	newBackend, newName := oldBackend, newArg
	if i := strings.IndexByte(newArg, ':'); i >= 0 {
		newBackend, newName = newArg[:i], newArg[i+1:]
	}

	var matches []model.PackageEntry
	for _, e := range cfg.AllEntries() {
		if e.Name != oldName {
			continue
		}
		if oldBackend != "" && e.Backend.Name != oldBackend {
			continue
		}
		matches = append(matches, e)
	}
	if len(matches) == 0 {
		declerrors.FatalError(declerrors.NewInputError("Package not declared",
			oldArg, "Run 'declarch lint --mode duplicates' or check your config files"), globals.Quiet)
	}
	if len(matches) > 1 {
		declerrors.FatalError(declerrors.NewInputError("Ambiguous package name",
			fmt.Sprintf("%s is declared under more than one backend", oldArg),
			"Specify backend:name, e.g. pacman:"+oldName), globals.Quiet)
	}
	entry := matches[0]
	if newBackend == "" {
		newBackend = entry.Backend.Name
	}

	backup, hadBackup, err := backupFile(entry.SourceFile)
	if err != nil {
		declerrors.FatalError(declerrors.NewPermissionError("Cannot back up configuration",
			entry.SourceFile, "Check file permissions", err), globals.Quiet)
	}

	if newBackend != entry.Backend.Name {
		if err := replaceDeclaredBackend(entry.SourceFile, entry.Backend.Name, oldName, newBackend, newName); err != nil {
			declerrors.FatalError(declerrors.NewPermissionError("Cannot rewrite configuration",
				entry.SourceFile, "Check file permissions", err), globals.Quiet)
		}
	} else if err := replaceDeclaredName(entry.SourceFile, oldName, newName); err != nil {
		declerrors.FatalError(declerrors.NewPermissionError("Cannot rewrite configuration",
			entry.SourceFile, "Check file permissions", err), globals.Quiet)
	}
	ui.Successf("Switched %s -> %s:%s", oldArg, newBackend, newName)

	cfg, cfgWarnings, err := a.loadConfig()
	if err != nil {
		rollbackConfig(entry.SourceFile, backup, hadBackup)
		emitError(globals, "switch", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snaps, snapWarnings := a.snapshot(ctx)
	recs, loadWarnings, err := a.store.Load(false)
	if err != nil {
		rollbackConfig(entry.SourceFile, backup, hadBackup)
		emitError(globals, "switch", err)
		return
	}
	txn, err := a.planner.Plan(cfg, snaps, recs, false)
	if err != nil {
		rollbackConfig(entry.SourceFile, backup, hadBackup)
		emitError(globals, "switch", err)
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
		rollbackConfig(entry.SourceFile, backup, hadBackup)
		ui.Warning("changes rolled back")
	}
	if err != nil {
		emitError(globals, "switch", err)
		return
	}
	printSyncSummary(sum)
	warnAll(globals, sum.Warnings)
}

// replaceDeclaredName rewrites the first line in path whose first token
// is oldName to use newName instead, preserving the rest of the line
// (variant/version properties).
func replaceDeclaredName(path, oldName, newName string) error {
	return rewriteFirstMatchingLine(path, oldName, func(line string) string {
		return strings.Replace(line, oldName, newName, 1)
	})
}

// replaceDeclaredBackend handles a switch that also changes backend: it
// removes the old declaration line (the planner will then orphan it) and
// appends a fresh declaration under the new backend, the same way
// install.go declares a new package.
func replaceDeclaredBackend(path, oldBackend, oldName, newBackend, newName string) error {
	if err := rewriteFirstMatchingLine(path, oldName, func(string) string { return "" }); err != nil {
		return err
	}
	return appendPackageDeclaration(path, newBackend, newName)
}

func rewriteFirstMatchingLine(path, token string, rewrite func(line string) string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.Split(string(raw), "\n")
	done := false
	for i, line := range lines {
		if done {
			break
		}
		trimmed := strings.TrimSpace(line)
		firstTok := strings.Fields(trimmed)
		if len(firstTok) == 0 || firstTok[0] != token {
			continue
		}
		lines[i] = rewrite(line)
		done = true
	}
	if !done {
		return declerrors.NewInputError("Declaration not found",
			token+" not found as a line in "+path, "The config may have been edited since loading")
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o640)
}
