// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/internal/output"
	"github.com/nixval/declarch/internal/telemetry"
	"github.com/nixval/declarch/internal/ui"
	"github.com/nixval/declarch/pkg/backend"
	"github.com/nixval/declarch/pkg/config"
	"github.com/nixval/declarch/pkg/envelope"
	"github.com/nixval/declarch/pkg/hooks"
	"github.com/nixval/declarch/pkg/model"
	"github.com/nixval/declarch/pkg/parseout"
	"github.com/nixval/declarch/pkg/paths"
	"github.com/nixval/declarch/pkg/plan"
	"github.com/nixval/declarch/pkg/state"
)

// app bundles the shared, per-invocation wiring every subcommand needs:
// the XDG path resolver, backend registry, telemetry sink, state store,
// and the executor/planner that sit on top of them. One is built per
// command invocation — never a package-level global (spec.md §5).
type app struct {
	resolver *paths.Resolver
	registry *backend.Registry
	tel      *telemetry.Registry
	runner   *backend.Executor
	store    *state.Store
	hookRun  *hooks.Runner
	planner  *plan.Planner
}

func newApp() *app {
	resolver := paths.NewResolver()
	if err := resolver.EnsureDirs(); err != nil {
		declerrors.FatalError(declerrors.NewPermissionError("Cannot create declarch directories",
			err.Error(), "Check permissions on your XDG config/state/cache directories", err), false)
	}

	registry := backend.NewRegistry()
	if err := backend.LoadEmbedded(registry); err != nil {
		declerrors.FatalError(err, false)
	}
	if err := backend.LoadUserDir(registry, resolver.BackendsDir()); err != nil {
		declerrors.FatalError(err, false)
	}

	tel := telemetry.New()
	runner := backend.NewExecutor(registry, tel)
	hookRun := hooks.NewRunner(tel)
	backupN := 5
	if s, err := loadSettings(resolver); err == nil && s.StateBackupCount > 0 {
		backupN = s.StateBackupCount
	}
	store := state.NewFromResolver(resolver, backupN)

	return &app{
		resolver: resolver,
		registry: registry,
		tel:      tel,
		runner:   runner,
		store:    store,
		hookRun:  hookRun,
		planner:  plan.New(registry),
	}
}

// loadConfig loads and merges declarch.kdl + imports, falling back to the
// first available backend as the default (spec.md §4.4.3).
func (a *app) loadConfig() (*model.MergedConfig, []string, error) {
	loader := config.NewLoader(a.defaultBackend())
	return loader.Load(a.resolver.RootConfigFile())
}

// defaultBackend returns the first registered, available backend, used
// wherever a bare package name (no "backend:" prefix) needs a home —
// config loading (spec.md §4.4.3) and `install`'s PKG parsing alike.
func (a *app) defaultBackend() string {
	for _, name := range a.registry.Names() {
		if cfg, ok := a.registry.Get(name); ok && a.registry.Available(cfg) {
			return name
		}
	}
	return "pacman"
}

// snapshot lists every available backend's installed packages, building
// the plan.Snapshots map the planner and executor both need. Backends
// without an available binary are simply absent from the result — the
// planner's filterAvailability step handles that (spec.md §4.10 step 1).
func (a *app) snapshot(ctx context.Context) (plan.Snapshots, []string) {
	snaps := plan.Snapshots{}
	var warnings []string
	for _, name := range a.registry.Names() {
		cfg, ok := a.registry.Get(name)
		if !ok || !a.registry.Available(cfg) || cfg.List == nil {
			continue
		}
		raw, err := a.runner.List(ctx, cfg)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("could not list %s packages: %v", name, err))
			continue
		}
		pkgs, err := parseout.ParseList(cfg.ListParser, raw)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("could not parse %s list output: %v", name, err))
			continue
		}
		snaps[name] = model.InstalledSnapshot{Backend: model.Backend{Name: name}, Packages: pkgs}
	}
	return snaps, warnings
}

// emit renders data as a v1 envelope (json/yaml per globals.Format) if
// command supports machine output and the caller asked for it; otherwise
// it falls through so the caller can print its own human-readable text.
// Returns true if it fully handled output (caller should return/exit).
func emit(globals GlobalFlags, command string, data any, warnings []string) bool {
	if !globals.wantsMachineOutput() {
		return false
	}
	if !envelope.Supported(command) {
		_ = output.Format(envelope.ContractNotSupported(command), globals.Format)
		os.Exit(declerrors.KindContractNotSupported.ExitCode())
	}
	env := envelope.Ok(command, data, warnings)
	if err := output.Format(env, globals.Format); err != nil {
		declerrors.FatalError(declerrors.NewInternalError("Cannot encode output",
			err.Error(), "This is a bug. Please report it.", err), false)
	}
	return true
}

// emitError renders a failed envelope (machine mode) or a human error
// line + exit (table mode), and always exits with err's mapped code.
func emitError(globals GlobalFlags, command string, err error) {
	var de *declerrors.DeclarchError
	if de2, ok := err.(*declerrors.DeclarchError); ok {
		de = de2
	} else {
		de = declerrors.NewInternalError("Unexpected error", err.Error(), "", err)
	}
	if globals.wantsMachineOutput() && envelope.Supported(command) {
		_ = output.Format(envelope.Err(command, de), globals.Format)
		os.Exit(de.Kind.ExitCode())
	}
	declerrors.FatalError(de, globals.Quiet)
}

// warnAll prints non-fatal warnings to stderr in human mode; in machine
// mode they travel inside the envelope instead (see emit).
func warnAll(globals GlobalFlags, warnings []string) {
	if globals.wantsMachineOutput() {
		return
	}
	for _, w := range warnings {
		ui.Warning(w)
	}
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
