// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package execute

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/nixval/declarch/internal/telemetry"
	"github.com/nixval/declarch/pkg/backend"
	"github.com/nixval/declarch/pkg/hooks"
	"github.com/nixval/declarch/pkg/model"
	"github.com/nixval/declarch/pkg/state"
)

func testExecutor(t *testing.T) (*Executor, *state.Store) {
	t.Helper()
	reg := backend.NewRegistryWithLookup(func(name string) (string, error) {
		return "/usr/bin/" + name, nil
	})
	reg.Add(&model.BackendConfig{
		Name:   "pacman",
		Binary: []string{"pacman"},
		Install: &model.CommandTemplate{Tokens: []model.CommandToken{
			{IsBinary: true}, {Literal: "-S"}, {IsPackages: true},
		}},
		Remove: &model.CommandTemplate{Tokens: []model.CommandToken{
			{IsBinary: true}, {Literal: "-R"}, {IsPackages: true},
		}},
	})
	runner := backend.NewExecutor(reg, telemetry.New())
	runner.SetDryRun(true) // no real subprocess spawn for backend calls

	dir := t.TempDir()
	store := state.New(filepath.Join(dir, "state.json"), filepath.Join(dir, "state.lock"),
		func(k int) string { return filepath.Join(dir, "state.json.backup."+strconv.Itoa(k)) }, 3)

	hr := hooks.NewRunner(telemetry.New())
	return New(reg, runner, hr, store, telemetry.New()), store
}

func pacmanId(name string) model.PackageId {
	return model.PackageId{Backend: model.Backend{Name: "pacman"}, Name: name}
}

func TestApply_InstallRecordsState(t *testing.T) {
	e, _ := testExecutor(t)
	txn := &model.Transaction{Install: []model.PackageId{pacmanId("firefox")}}
	cfg := model.NewMergedConfig()
	recs := state.Records{}

	sum, err := e.Apply(context.Background(), txn, cfg, recs, Options{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(sum.Installed) != 1 {
		t.Fatalf("Installed = %+v", sum.Installed)
	}
	if _, ok := recs[pacmanId("firefox")]; !ok {
		t.Fatal("expected firefox in recs after install")
	}
}

func TestApply_AdoptIsPureStateChange(t *testing.T) {
	e, _ := testExecutor(t)
	txn := &model.Transaction{Adopt: []model.PackageId{pacmanId("vlc")}}
	cfg := model.NewMergedConfig()
	recs := state.Records{}

	sum, err := e.Apply(context.Background(), txn, cfg, recs, Options{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(sum.Adopted) != 1 || len(sum.Installed) != 0 {
		t.Fatalf("sum = %+v", sum)
	}
	if _, ok := recs[pacmanId("vlc")]; !ok {
		t.Fatal("expected vlc in recs after adopt")
	}
}

func TestApply_RemoveDeletesFromState(t *testing.T) {
	e, _ := testExecutor(t)
	id := pacmanId("old-tool")
	txn := &model.Transaction{Remove: []model.PackageId{id}}
	cfg := model.NewMergedConfig()
	recs := state.Records{id: {PackageId: id}}

	sum, err := e.Apply(context.Background(), txn, cfg, recs, Options{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(sum.Removed) != 1 {
		t.Fatalf("Removed = %+v", sum.Removed)
	}
	if _, ok := recs[id]; ok {
		t.Fatal("expected old-tool removed from recs")
	}
}

func TestApply_RemoveAskDefaultsToKeepUnderYes(t *testing.T) {
	e, _ := testExecutor(t)
	id := pacmanId("maybe-orphan")
	txn := &model.Transaction{RemoveNeedsConfirmation: []model.PackageId{id}}
	cfg := model.NewMergedConfig()
	recs := state.Records{id: {PackageId: id}}

	sum, err := e.Apply(context.Background(), txn, cfg, recs, Options{Yes: true})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(sum.Removed) != 0 {
		t.Fatalf("Removed = %+v, want kept under --yes default", sum.Removed)
	}
	if _, ok := recs[id]; !ok {
		t.Fatal("expected maybe-orphan to remain in recs")
	}
}

type acceptPrompter struct{}

func (acceptPrompter) ConfirmRemove(model.PackageId) bool { return true }

func TestApply_RemoveAskConfirmedRemoves(t *testing.T) {
	e, _ := testExecutor(t)
	id := pacmanId("maybe-orphan")
	txn := &model.Transaction{RemoveNeedsConfirmation: []model.PackageId{id}}
	cfg := model.NewMergedConfig()
	recs := state.Records{id: {PackageId: id}}

	sum, err := e.Apply(context.Background(), txn, cfg, recs, Options{Prompter: acceptPrompter{}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(sum.Removed) != 1 {
		t.Fatalf("Removed = %+v, want confirmed removal", sum.Removed)
	}
}

func TestApply_HooksDisabledWithoutGateWarns(t *testing.T) {
	e, _ := testExecutor(t)
	cfg := model.NewMergedConfig()
	cfg.Hooks = []model.Hook{{Name: "notify", Phase: model.PhasePostSync, CommandArgv: []string{"true"}}}
	txn := &model.Transaction{Install: []model.PackageId{pacmanId("firefox")}}

	sum, err := e.Apply(context.Background(), txn, cfg, state.Records{}, Options{HooksRequested: true})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	found := false
	for _, w := range sum.Warnings {
		if w != "" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a warning explaining hooks are disabled (missing experimental opt-in)")
	}
}

func TestApply_RequiredPreSyncHookFailureAbortsTransaction(t *testing.T) {
	e, _ := testExecutor(t)
	cfg := model.NewMergedConfig()
	cfg.ExperimentalFlags["enable-hooks"] = true
	cfg.Hooks = []model.Hook{{
		Name: "must-pass", Phase: model.PhasePreSync, CommandArgv: []string{"false"}, Required: true,
	}}
	txn := &model.Transaction{
		Install:  []model.PackageId{pacmanId("firefox")},
		HookPlan: []model.HookPlanEntry{{Phase: model.PhasePreSync, Hook: cfg.Hooks[0]}},
	}
	recs := state.Records{}

	sum, err := e.Apply(context.Background(), txn, cfg, recs, Options{HooksRequested: true})
	if err == nil {
		t.Fatal("expected required pre-sync hook failure to abort")
	}
	if !sum.Failed {
		t.Fatalf("sum.Failed = %v, want true", sum.Failed)
	}
	if len(sum.Installed) != 0 {
		t.Fatalf("Installed = %+v, want nothing applied after pre-sync abort", sum.Installed)
	}
}
