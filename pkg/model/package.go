// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model holds the data types shared across every declarch
// component (spec.md §3). It depends on nothing else in this module so
// that pkg/config, pkg/plan, pkg/execute, pkg/state, etc. can all import
// it without creating cycles.
package model

import "fmt"

// Backend is a tagged package-manager identity. Names are lowercase,
// alphanumeric plus '-'/'_'. Built-in names may be overridden by a user
// backend file of the same name (last one loaded wins).
type Backend struct {
	Name string
}

func (b Backend) String() string { return b.Name }

// PackageId is the equality key used by the state store and the planner:
// a package is uniquely identified by which backend manages it and the
// name under which that backend knows it (the *effective*, alias-resolved
// name, not necessarily what the user typed).
type PackageId struct {
	Backend Backend
	Name    string
}

// String is the deterministic "<backend>:<name>" display form.
func (id PackageId) String() string {
	return fmt.Sprintf("%s:%s", id.Backend.Name, id.Name)
}

// PackageEntry is one desired package as declared in config. Immutable
// once constructed by the config loader (C4).
type PackageEntry struct {
	Name       string            // shell-safe, non-empty
	Backend    Backend           // resolved backend for this entry
	Variant    string            // optional variant tag, e.g. "git"
	Version    string            // reserved: version constraint (not enforced)
	SourceFile string            // file this entry was declared in, for diagnostics
	Options    map[string]string // raw per-package options from the KDL node
}

// Id returns the PackageId this entry resolves to before alias
// application. Planning applies aliases on top of this.
func (e PackageEntry) Id() PackageId {
	return PackageId{Backend: e.Backend, Name: e.Name}
}

// PackageMetadata is what the backend's `list` output told us about an
// installed package, keyed by name in an InstalledSnapshot.
type PackageMetadata struct {
	Version     string
	Variant     string
	InstalledAt string // best-effort; many backends don't report this, left empty
}

// InstalledSnapshot is the per-backend view of what's actually installed,
// rebuilt fresh on every reconcile and never persisted.
type InstalledSnapshot struct {
	Backend  Backend
	Packages map[string]PackageMetadata // name -> metadata
}

// Installed reports whether name is present in the snapshot.
func (s InstalledSnapshot) Installed(name string) (PackageMetadata, bool) {
	meta, ok := s.Packages[name]
	return meta, ok
}

// SearchHit is one result row from a backend's `search` output.
type SearchHit struct {
	Name    string
	Version string
	Desc    string
}
