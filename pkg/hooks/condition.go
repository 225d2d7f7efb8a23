// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package hooks

import "github.com/nixval/declarch/pkg/model"

// Context is the hook-local evaluation context the executor (C11) builds
// for one phase invocation (spec.md §4.12): which packages changed in
// this phase, which backend is active, and whether the run has succeeded
// so far.
type Context struct {
	ChangedPackages   map[string]bool // effective package name -> changed in this phase
	InstalledPackages map[string]bool // effective package name -> currently installed
	Backend           string
	Success           bool
}

// Matches reports whether every condition attached to hook h is satisfied
// in ctx. An empty condition list always matches.
func Matches(h model.Hook, ctx Context) bool {
	for _, c := range h.Conditions {
		if !matchOne(c, ctx) {
			return false
		}
	}
	return true
}

func matchOne(c model.Condition, ctx Context) bool {
	switch c.Kind {
	case model.ConditionIfInstalled:
		return ctx.InstalledPackages[c.Arg]
	case model.ConditionIfChanged:
		return ctx.ChangedPackages[c.Arg]
	case model.ConditionIfBackend:
		return ctx.Backend == c.Arg
	case model.ConditionIfSuccess:
		return ctx.Success
	default:
		return false
	}
}
