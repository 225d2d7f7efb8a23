// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package hooks

import (
	"testing"

	"github.com/nixval/declarch/pkg/model"
)

func baseConfig() *model.MergedConfig {
	cfg := model.NewMergedConfig()
	cfg.Hooks = []model.Hook{{Name: "notify", Phase: model.PhasePostSync}}
	return cfg
}

func TestEvaluate_AllGatesPass(t *testing.T) {
	cfg := baseConfig()
	cfg.ExperimentalFlags["enable-hooks"] = true
	got := Evaluate(cfg, true)
	if !got.Allowed {
		t.Fatalf("Evaluate = %+v, want allowed", got)
	}
}

func TestEvaluate_NoHooksDeclared(t *testing.T) {
	cfg := model.NewMergedConfig()
	got := Evaluate(cfg, true)
	if got.Allowed {
		t.Fatal("expected disallowed with no hooks declared")
	}
}

func TestEvaluate_MissingExperimentalFlag(t *testing.T) {
	cfg := baseConfig()
	got := Evaluate(cfg, true)
	if got.Allowed {
		t.Fatal("expected disallowed without experimental flag")
	}
}

func TestEvaluate_FlagWithoutCLIFlag(t *testing.T) {
	cfg := baseConfig()
	cfg.ExperimentalFlags["enable-hooks"] = true
	got := Evaluate(cfg, false)
	if got.Allowed {
		t.Fatal("expected disallowed without --hooks")
	}
}

func TestEvaluate_ForbidHooksWins(t *testing.T) {
	cfg := baseConfig()
	cfg.ExperimentalFlags["enable-hooks"] = true
	cfg.Policy.ForbidHooks = true
	got := Evaluate(cfg, true)
	if got.Allowed {
		t.Fatal("expected disallowed with policy.forbid_hooks")
	}
}

func TestMatches_EmptyConditionsAlwaysMatch(t *testing.T) {
	h := model.Hook{Name: "x"}
	if !Matches(h, Context{}) {
		t.Fatal("expected match with no conditions")
	}
}

func TestMatches_IfSuccess(t *testing.T) {
	h := model.Hook{Conditions: []model.Condition{{Kind: model.ConditionIfSuccess}}}
	if Matches(h, Context{Success: false}) {
		t.Fatal("expected no match when Success is false")
	}
	if !Matches(h, Context{Success: true}) {
		t.Fatal("expected match when Success is true")
	}
}

func TestMatches_IfBackend(t *testing.T) {
	h := model.Hook{Conditions: []model.Condition{{Kind: model.ConditionIfBackend, Arg: "pacman"}}}
	if !Matches(h, Context{Backend: "pacman"}) {
		t.Fatal("expected match for pacman")
	}
	if Matches(h, Context{Backend: "apt"}) {
		t.Fatal("expected no match for apt")
	}
}
