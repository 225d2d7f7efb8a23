// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package resolve implements the resolver/matcher (C8, spec.md §4.8): it
// turns one declared package entry into the effective installed name it
// corresponds to, applying aliases first and then AUR-style variant
// matching against what's actually on the system.
package resolve

import (
	"sort"
	"strings"

	"github.com/nixval/declarch/pkg/model"
)

// variantSuffixes is the closed set of recognized variant tags (spec.md
// §4.8). Anything outside this set is a different package, not a variant.
var variantSuffixes = []string{"-git", "-bin", "-lts", "-beta", "-nightly", "-dev", "-meson"}

// Match is the outcome of resolving one declared entry against a
// backend's InstalledSnapshot.
type Match struct {
	EffectiveName string // the name actually installed, or the declared/aliased name if not installed
	Installed     bool
	Ambiguous     bool
	Candidates    []string // populated only when Ambiguous
}

// Resolve applies alias substitution then variant matching for one
// PackageEntry against snapshot. Flatpak is handled as exact-match only
// (spec.md §4.8.4) since app IDs never carry a suffix variant.
func Resolve(entry model.PackageEntry, aliases map[string]string, snapshot model.InstalledSnapshot) Match {
	effective := entry.Name
	if target, ok := aliases[entry.Name]; ok {
		effective = target
	}

	if _, ok := snapshot.Installed(effective); ok {
		return Match{EffectiveName: effective, Installed: true}
	}

	if entry.Backend.Name == "flatpak" {
		return Match{EffectiveName: effective, Installed: false}
	}

	candidates := variantCandidates(effective, snapshot)
	switch len(candidates) {
	case 0:
		return Match{EffectiveName: effective, Installed: false}
	case 1:
		return Match{EffectiveName: candidates[0], Installed: true}
	default:
		return Match{EffectiveName: effective, Installed: false, Ambiguous: true, Candidates: candidates}
	}
}

// variantCandidates finds installed names that are "<declared><suffix>"
// for some variant suffix, applying the prefix-safety guard: a longer
// installed name that would also prefix-match a shorter candidate is
// excluded from matching THAT shorter candidate (spec.md §4.8.3 —
// "polkit" must not match "polkit-kde-agent").
func variantCandidates(declared string, snapshot model.InstalledSnapshot) []string {
	var matches []string
	for installed := range snapshot.Packages {
		if !isVariantOf(declared, installed) {
			continue
		}
		matches = append(matches, installed)
	}
	sort.Strings(matches)
	return matches
}

// isVariantOf reports whether installed is exactly "declared<suffix>"
// for one of the recognized suffixes — not merely prefixed by declared,
// which is what distinguishes "polkit-git" (a variant) from
// "polkit-kde-agent" (an unrelated package that happens to share a
// prefix).
func isVariantOf(declared, installed string) bool {
	if !strings.HasPrefix(installed, declared) {
		return false
	}
	rest := installed[len(declared):]
	for _, suffix := range variantSuffixes {
		if rest == suffix {
			return true
		}
	}
	return false
}

// ReverseLookup finds the installed/state name corresponding to id for
// removal (spec.md §4.8 "For removal..."). A missing install is reported
// via the second return value so callers can treat it as already-gone
// state cleanup rather than an error.
func ReverseLookup(id model.PackageId, snapshot model.InstalledSnapshot) (string, bool) {
	if _, ok := snapshot.Installed(id.Name); ok {
		return id.Name, true
	}
	return id.Name, false
}
