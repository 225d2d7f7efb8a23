// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package hooks

import "github.com/nixval/declarch/pkg/model"

// enableHooksFlag is the experimental-flag name gating hook execution
// (spec.md §4.11).
const enableHooksFlag = "enable-hooks"

// GateResult explains whether hooks may run this invocation, and why not
// if they can't — declarch never silently drops an explanation.
type GateResult struct {
	Allowed bool
	Reason  string // populated only when Allowed is false
}

// Evaluate checks the four independent gates: hooks must exist, the
// config must opt in via experimental { "enable-hooks" }, the invocation
// must pass --hooks, and policy.forbid_hooks must not be set. All four
// must pass; any single failure disables hooks for the whole run
// (property P7) and is reported once as a single info line, never as a
// per-hook skip.
func Evaluate(cfg *model.MergedConfig, hooksRequested bool) GateResult {
	if len(cfg.Hooks) == 0 {
		return GateResult{Allowed: false, Reason: "no hooks are declared"}
	}
	if !cfg.HasExperimental(enableHooksFlag) {
		return GateResult{Allowed: false, Reason: `config does not declare experimental { "enable-hooks" }`}
	}
	if !hooksRequested {
		return GateResult{Allowed: false, Reason: "invocation did not pass --hooks"}
	}
	if cfg.Policy.ForbidHooks {
		return GateResult{Allowed: false, Reason: "policy.forbid_hooks is set"}
	}
	return GateResult{Allowed: true}
}
