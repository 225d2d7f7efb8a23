// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// InstallChannel records which installer produced this declarch binary
// (AUR package, Homebrew, the install.sh script, a manual `go install`,
// ...). `declarch info` uses it to decide how to phrase an update hint —
// out of scope here (installer scripts are an external collaborator per
// spec.md §1), but the record itself is core state, kept under
// state_dir/install-channel.json.
type InstallChannel struct {
	Installer   string    `json:"installer"`
	Version     string    `json:"version"`
	InstalledAt time.Time `json:"installed_at"`
}
