// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nixval/declarch/pkg/model"
)

func TestFindDuplicates(t *testing.T) {
	cfg := model.NewMergedConfig()
	cfg.Packages["pacman"] = []model.PackageEntry{
		{Name: "vim", Backend: model.Backend{Name: "pacman"}, SourceFile: "a.kdl"},
		{Name: "vim", Backend: model.Backend{Name: "pacman"}, SourceFile: "b.kdl"},
		{Name: "git", Backend: model.Backend{Name: "pacman"}, SourceFile: "a.kdl"},
	}

	dups := findDuplicates(cfg)

	assert.Len(t, dups, 1)
	assert.Equal(t, "vim", dups[0].id.Name)
	assert.ElementsMatch(t, []string{"a.kdl", "b.kdl"}, dups[0].files)
}

func TestFindDuplicates_NoneWhenAllUnique(t *testing.T) {
	cfg := model.NewMergedConfig()
	cfg.Packages["pacman"] = []model.PackageEntry{
		{Name: "vim", Backend: model.Backend{Name: "pacman"}, SourceFile: "a.kdl"},
		{Name: "git", Backend: model.Backend{Name: "pacman"}, SourceFile: "a.kdl"},
	}

	assert.Empty(t, findDuplicates(cfg))
}

func TestFindConflicts_OnlyReportsDeclaredPairs(t *testing.T) {
	cfg := model.NewMergedConfig()
	cfg.Packages["pacman"] = []model.PackageEntry{
		{Name: "pulseaudio", Backend: model.Backend{Name: "pacman"}},
		{Name: "pipewire-pulse", Backend: model.Backend{Name: "pacman"}},
		{Name: "vim", Backend: model.Backend{Name: "pacman"}},
	}
	cfg.Conflicts = []model.ConflictPair{
		{A: "pulseaudio", B: "pipewire-pulse"},
		{A: "vim", B: "neovim"}, // neovim not declared, shouldn't surface
	}

	conflicts := findConflicts(cfg)

	assert.Len(t, conflicts, 1)
	assert.Equal(t, model.ConflictPair{A: "pulseaudio", B: "pipewire-pulse"}, conflicts[0])
}

func TestParsePackageId(t *testing.T) {
	id, err := parsePackageId("pacman:vim")
	assert.NoError(t, err)
	assert.Equal(t, "pacman", id.Backend.Name)
	assert.Equal(t, "vim", id.Name)

	_, err = parsePackageId("vim")
	assert.Error(t, err)
}
