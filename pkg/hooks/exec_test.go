// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package hooks

import (
	"context"
	"testing"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/internal/telemetry"
	"github.com/nixval/declarch/pkg/model"
)

func newTestRunner() *Runner {
	return NewRunner(telemetry.New())
}

func TestRun_SuccessReturnsNoError(t *testing.T) {
	r := newTestRunner()
	out, err := r.Run(context.Background(), model.Hook{Name: "ok", CommandArgv: []string{"true"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.ExitCode != 0 {
		t.Fatalf("ExitCode = %d", out.ExitCode)
	}
}

func TestRun_RequiredFailureAborts(t *testing.T) {
	r := newTestRunner()
	_, err := r.Run(context.Background(), model.Hook{Name: "req", CommandArgv: []string{"false"}, Required: true})
	if err == nil {
		t.Fatal("expected error for required hook failure")
	}
	if !declerrors.As(err, declerrors.KindHookRequiredFailed) {
		t.Fatalf("got %v, want KindHookRequiredFailed", err)
	}
}

func TestRun_IgnoreErrorsSwallowsFailure(t *testing.T) {
	r := newTestRunner()
	_, err := r.Run(context.Background(), model.Hook{Name: "ignored", CommandArgv: []string{"false"}, IgnoreErrors: true})
	if err != nil {
		t.Fatalf("expected nil error for ignore_errors hook, got %v", err)
	}
}

// TestRun_PlainWarningSurfacesAsError guards against Run silently
// swallowing a non-required, non-ignore_errors failure: the caller
// (pkg/execute's runPhaseHooks) relies on a non-nil, non-required-failure
// error here to add the hook to Summary.Warnings.
func TestRun_PlainWarningSurfacesAsError(t *testing.T) {
	r := newTestRunner()
	_, err := r.Run(context.Background(), model.Hook{Name: "warn", CommandArgv: []string{"false"}})
	if err == nil {
		t.Fatal("expected a non-nil warning error for a plain non-zero exit")
	}
	if declerrors.As(err, declerrors.KindHookRequiredFailed) {
		t.Fatal("plain warning must not be classified as a required failure (would abort the transaction)")
	}
	if !declerrors.As(err, declerrors.KindHookWarning) {
		t.Fatalf("got %v, want KindHookWarning", err)
	}
}
