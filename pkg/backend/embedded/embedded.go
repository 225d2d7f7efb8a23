// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package embedded ships declarch's built-in backend definitions (spec.md
// §4.3, §5): one KDL file per officially supported package manager. They
// are compiled into the binary via go:embed so a fresh install works with
// zero config-directory setup, mirroring the teacher's pattern of shipping
// default data alongside the binary rather than requiring a first-run
// fetch.
package embedded

import "embed"

//go:embed *.kdl
var FS embed.FS

// Names lists the embedded file names in load order. User files under
// config_dir/backends load after these and may override any of them.
var Names = []string{
	"pacman.kdl",
	"aur.kdl",
	"flatpak.kdl",
	"apt.kdl",
	"nala.kdl",
	"dnf.kdl",
	"zypper.kdl",
	"npm.kdl",
	"pip.kdl",
	"cargo.kdl",
	"soar.kdl",
}
