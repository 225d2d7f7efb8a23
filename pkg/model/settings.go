// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Settings is the flat settings.json map (spec.md §6). Unlike
// MergedConfig it is not KDL and not merged across imports — it's a
// single small file under config_dir.
type Settings struct {
	Color             string `json:"color"`   // auto, always, never
	Editor            string `json:"editor"`
	Progress          bool   `json:"progress"`
	Format            string `json:"format"` // table, json, yaml
	Verbose           bool   `json:"verbose"`
	Compact           bool   `json:"compact"`
	StateBackupCount  int    `json:"state_backup_count,omitempty"`
}

// DefaultSettings mirrors the teacher's DefaultConfig(projectID) pattern:
// a struct literal with sensible defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Color:            "auto",
		Editor:           "",
		Progress:         true,
		Format:           "table",
		Verbose:          false,
		Compact:          false,
		StateBackupCount: 5,
	}
}
