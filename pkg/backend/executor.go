// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/internal/telemetry"
	"github.com/nixval/declarch/pkg/model"
)

// Executor runs backend command templates as subprocesses. Every argv
// element is built from literal tokens or whole-package-name
// substitutions — never through a shell, so no package name or binary
// path is ever subject to shell interpolation (spec.md §5, property P5).
// This mirrors the teacher's GitExecutor: a thin, telemetry-wrapped
// exec.CommandContext runner with no string-built shell commands anywhere.
type Executor struct {
	registry *Registry
	tel      *telemetry.Registry
	sudoBin  string // defaults to "sudo"; overridable for tests
	dryRun   bool
}

// NewExecutor builds an Executor bound to a registry and telemetry sink.
func NewExecutor(registry *Registry, tel *telemetry.Registry) *Executor {
	return &Executor{registry: registry, tel: tel, sudoBin: "sudo"}
}

// SetDryRun toggles plan-only mode: argv is still built, but run never
// actually execs and returns an empty-output Result.
func (e *Executor) SetDryRun(dry bool) { e.dryRun = dry }

// Result is one backend command's outcome.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// buildArgv expands a CommandTemplate against the resolved binary path and
// an optional set of package names or a search query. Exactly one of
// packages/query is meaningful per call; callers pass the other as nil/"".
func buildArgv(tpl *model.CommandTemplate, binary string, packages []string, query string) []string {
	argv := make([]string, 0, len(tpl.Tokens)+len(packages))
	for _, tok := range tpl.Tokens {
		switch {
		case tok.IsBinary:
			argv = append(argv, binary)
		case tok.IsPackages:
			argv = append(argv, packages...)
		case tok.IsQuery:
			if query != "" {
				argv = append(argv, query)
			}
		default:
			argv = append(argv, tok.Literal)
		}
	}
	return argv
}

// run execs argv, prefixing with sudo if cfg.NeedsSudo, and returns its
// captured output. ctx carries the caller's cancellation (Ctrl-C maps to
// KindInterrupted higher up the stack, per spec.md §9).
func (e *Executor) run(ctx context.Context, cfg *model.BackendConfig, op string, argv []string) (*Result, error) {
	if e.dryRun {
		return &Result{}, nil
	}
	if len(argv) == 0 {
		return nil, declerrors.NewInternalError("Empty backend command",
			"command template produced zero argv elements", "", nil)
	}

	finalArgv := argv
	if cfg.NeedsSudo {
		finalArgv = append([]string{e.sudoBin}, argv...)
	}

	stop := e.tel.TimeBackendCall(cfg.Name, op)
	defer stop()

	cmd := exec.CommandContext(ctx, finalArgv[0], finalArgv[1:]...)
	cmd.Env = mergeEnv(os.Environ(), cfg.Env)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if exitErr, ok := err.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
		return res, declerrors.NewBackendError(cfg.Name, op, res.ExitCode, excerpt(res.Stderr))
	}
	if err != nil {
		return res, declerrors.NewBackendError(cfg.Name, op, -1, err.Error())
	}
	return res, nil
}

// mergeEnv appends LC_ALL=C to base so every backend's stdout is in the
// C locale (spec.md §4.6) — pkg/parseout's column/regex parsers assume
// untranslated, unlocalized output — then layers cfg.Env on top so a
// backend definition can still override it explicitly.
func mergeEnv(base []string, overrides map[string]string) []string {
	out := append([]string{}, base...)
	out = append(out, "LC_ALL=C")
	for k, v := range overrides {
		out = append(out, k+"="+v)
	}
	return out
}

func excerpt(s string) string {
	const max = 300
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// List runs the backend's `list` command, returning raw stdout for C5 to
// parse. A nil List template means the backend cannot enumerate installed
// packages (e.g. a backend that only supports install/remove).
func (e *Executor) List(ctx context.Context, cfg *model.BackendConfig) (string, error) {
	if cfg.List == nil {
		return "", declerrors.NewInvalidBackendConfig(cfg.Name, "list", "not defined")
	}
	binary, candidate := e.registry.ResolveBinary(cfg)
	if candidate == "" {
		return "", declerrors.NewBinaryNotFound(cfg.Name, cfg.Binary)
	}
	argv := buildArgv(cfg.List, binary, nil, "")
	res, err := e.run(ctx, cfg, "list", argv)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// Search runs the backend's `search` command against query.
func (e *Executor) Search(ctx context.Context, cfg *model.BackendConfig, query string) (string, error) {
	if cfg.Search == nil {
		return "", declerrors.NewInvalidBackendConfig(cfg.Name, "search", "not defined")
	}
	binary, candidate := e.registry.ResolveBinary(cfg)
	if candidate == "" {
		return "", declerrors.NewBinaryNotFound(cfg.Name, cfg.Binary)
	}
	argv := buildArgv(cfg.Search, binary, nil, query)
	res, err := e.run(ctx, cfg, "search", argv)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// Install runs the backend's `install` command for one batch of packages,
// appending the backend's no-confirm token if the template doesn't
// already include it and the caller asked for noninteractive mode.
func (e *Executor) Install(ctx context.Context, cfg *model.BackendConfig, packages []string, noConfirm bool) (*Result, error) {
	return e.batchOp(ctx, cfg, "install", cfg.Install, packages, noConfirm)
}

// Remove runs the backend's `remove` command for one batch of packages.
func (e *Executor) Remove(ctx context.Context, cfg *model.BackendConfig, packages []string, noConfirm bool) (*Result, error) {
	return e.batchOp(ctx, cfg, "remove", cfg.Remove, packages, noConfirm)
}

func (e *Executor) batchOp(ctx context.Context, cfg *model.BackendConfig, op string, tpl *model.CommandTemplate, packages []string, noConfirm bool) (*Result, error) {
	if tpl == nil {
		return nil, declerrors.NewInvalidBackendConfig(cfg.Name, op, "not defined")
	}
	if len(packages) == 0 {
		return &Result{}, nil
	}
	binary, candidate := e.registry.ResolveBinary(cfg)
	if candidate == "" {
		return nil, declerrors.NewBinaryNotFound(cfg.Name, cfg.Binary)
	}
	argv := buildArgv(tpl, binary, packages, "")
	if noConfirm && cfg.NoConfirm != "" && !containsToken(argv, cfg.NoConfirm) {
		argv = append(argv, cfg.NoConfirm)
	}
	return e.run(ctx, cfg, op, argv)
}

func containsToken(argv []string, token string) bool {
	for _, a := range argv {
		if a == token {
			return true
		}
	}
	return false
}

// Update runs the backend's `update` (refresh metadata) command, if any.
func (e *Executor) Update(ctx context.Context, cfg *model.BackendConfig) error {
	if cfg.Update == nil {
		return nil
	}
	binary, candidate := e.registry.ResolveBinary(cfg)
	if candidate == "" {
		return declerrors.NewBinaryNotFound(cfg.Name, cfg.Binary)
	}
	_, err := e.run(ctx, cfg, "update", buildArgv(cfg.Update, binary, nil, ""))
	return err
}
