// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package hooks

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/internal/telemetry"
	"github.com/nixval/declarch/pkg/model"
)

// DefaultTimeout is the per-hook execution budget (spec.md §4.12); every
// hook runs under it, as hooks carry no timeout of their own.
const DefaultTimeout = 60 * time.Second

// Runner executes validated hooks with a bounded timeout, recording
// outcomes to telemetry for `declarch info --doctor`.
type Runner struct {
	tel     *telemetry.Registry
	timeout time.Duration
}

func NewRunner(tel *telemetry.Registry) *Runner {
	return &Runner{tel: tel, timeout: DefaultTimeout}
}

// Outcome is what happened when a hook ran.
type Outcome struct {
	Ran      bool
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Run executes h.CommandArgv directly (no shell) under a timeout. Per
// spec.md §4.12: a non-zero exit with Required is a hard failure the
// caller must abort on; with IgnoreErrors it's logged and swallowed;
// otherwise it's a warning the caller should surface but not abort for.
func (r *Runner) Run(ctx context.Context, h model.Hook) (Outcome, error) {
	if len(h.CommandArgv) == 0 {
		return Outcome{}, declerrors.NewHookValidationFailed(h.Name, "empty command")
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, h.CommandArgv[0], h.CommandArgv[1:]...)
	if h.Sudo {
		cmd = exec.CommandContext(runCtx, "sudo", h.CommandArgv...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Outcome{Ran: true, Stdout: stdout.String(), Stderr: stderr.String()}

	if runCtx.Err() == context.DeadlineExceeded {
		out.TimedOut = true
		r.tel.RecordHook(string(h.Phase), "timeout")
		if h.Required {
			return out, declerrors.NewHookRequiredFailed(h.Name, -1)
		}
		return out, nil
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		out.ExitCode = exitErr.ExitCode()
		if h.IgnoreErrors {
			r.tel.RecordHook(string(h.Phase), "ignored-failure")
			return out, nil
		}
		if h.Required {
			r.tel.RecordHook(string(h.Phase), "required-failure")
			return out, declerrors.NewHookRequiredFailed(h.Name, out.ExitCode)
		}
		r.tel.RecordHook(string(h.Phase), "warning")
		return out, declerrors.NewHookWarning(h.Name, out.ExitCode)
	}
	if err != nil {
		r.tel.RecordHook(string(h.Phase), "error")
		return out, declerrors.NewHookValidationFailed(h.Name, err.Error())
	}

	r.tel.RecordHook(string(h.Phase), "ok")
	return out, nil
}
