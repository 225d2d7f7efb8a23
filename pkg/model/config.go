// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "sort"

// OrphanPolicy controls what happens to a state entry that is no longer
// declared in config.
type OrphanPolicy string

const (
	OrphanKeep   OrphanPolicy = "keep"
	OrphanRemove OrphanPolicy = "remove"
	OrphanAsk    OrphanPolicy = "ask"
)

// ViolationPolicy controls whether a duplicate or conflict violation is a
// warning or a hard planning error.
type ViolationPolicy string

const (
	ViolationWarn  ViolationPolicy = "warn"
	ViolationError ViolationPolicy = "error"
)

// Policy is the merged set of reconciliation policy knobs (spec.md §3).
type Policy struct {
	Protected      map[string]bool
	Orphans        OrphanPolicy
	RequireBackend bool
	ForbidHooks    bool
	OnDuplicate    ViolationPolicy
	OnConflict     ViolationPolicy
}

// DefaultPolicy matches the conservative defaults implied by spec.md §4.10
// and §9: orphans are kept unless the user opts into pruning, duplicates
// and conflicts only warn.
func DefaultPolicy() Policy {
	return Policy{
		Protected:   map[string]bool{},
		Orphans:     OrphanKeep,
		OnDuplicate: ViolationWarn,
		OnConflict:  ViolationWarn,
	}
}

// ConflictPair is an unordered pair of package names that must not both be
// desired at once.
type ConflictPair struct {
	A, B string
}

// Normalized returns the pair in a stable order so it can be used as a map
// key or compared for equality regardless of declaration order.
func (c ConflictPair) Normalized() ConflictPair {
	if c.A <= c.B {
		return c
	}
	return ConflictPair{A: c.B, B: c.A}
}

// Meta is the free-form descriptive block a config module may declare.
type Meta struct {
	Name        string
	Description string
	Tags        []string
}

// MergedConfig is the canonical reconciliation input produced by the
// config loader (C4) from a root config plus all resolved imports.
type MergedConfig struct {
	Packages        map[string][]PackageEntry // backend name -> entries, declaration order preserved
	Excludes        map[PackageId]bool
	Aliases         map[string]string // declared name -> effective name
	Conflicts       []ConflictPair
	Policy          Policy
	Hooks           []Hook
	Meta            Meta
	ExperimentalFlags map[string]bool

	// SourceFiles maps a declared PackageId (backend + as-declared name,
	// pre-alias) to the file it came from, for diagnostics and for the
	// `edit`/state-attribution flows.
	SourceFiles map[PackageId]string
}

// NewMergedConfig returns an empty, ready-to-populate MergedConfig.
func NewMergedConfig() *MergedConfig {
	return &MergedConfig{
		Packages:          map[string][]PackageEntry{},
		Excludes:          map[PackageId]bool{},
		Aliases:           map[string]string{},
		Policy:            DefaultPolicy(),
		ExperimentalFlags: map[string]bool{},
		SourceFiles:       map[PackageId]string{},
	}
}

// HasExperimental reports whether the named experimental flag is enabled.
func (c *MergedConfig) HasExperimental(name string) bool {
	return c.ExperimentalFlags[name]
}

// AllEntries returns every declared PackageEntry across all backends, in a
// stable backend-then-declaration order. Useful for validation passes that
// don't care about backend grouping.
func (c *MergedConfig) AllEntries() []PackageEntry {
	names := make([]string, 0, len(c.Packages))
	for name := range c.Packages {
		names = append(names, name)
	}
	sort.Strings(names)

	var all []PackageEntry
	for _, name := range names {
		all = append(all, c.Packages[name]...)
	}
	return all
}
