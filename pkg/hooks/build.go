// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package hooks

import (
	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/pkg/model"
)

// Build tokenizes and allowlist-validates a raw hook command string,
// returning a ready-to-schedule model.Hook. Called by the config loader
// (C4) while parsing a `hooks { <name> { ... } }` block; a failure here
// aborts loading that one hook block without aborting the rest of the
// config (spec.md §9 "User-visible behavior").
func Build(name string, phase model.HookPhase, rawCommand string, sudo, required, ignoreErrors bool, conditions []model.Condition, sourceFile string) (model.Hook, error) {
	tokens, err := Tokenize(rawCommand)
	if err != nil {
		return model.Hook{}, declerrors.NewHookValidationFailed(name, err.Error())
	}
	if err := ValidateAllowlist(tokens); err != nil {
		return model.Hook{}, declerrors.NewHookValidationFailed(name, err.Error())
	}
	return model.Hook{
		Name:         name,
		Phase:        phase,
		CommandArgv:  tokens,
		Sudo:         sudo,
		Required:     required,
		IgnoreErrors: ignoreErrors,
		Conditions:   conditions,
		SourceFile:   sourceFile,
	}, nil
}
