// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// StateRecord is the persisted record of one managed package (spec.md §3).
type StateRecord struct {
	PackageId        PackageId `json:"package_id"`
	DeclaredAs       string    `json:"declared_as"`
	Variant          string    `json:"variant,omitempty"`
	Version          string    `json:"version,omitempty"`
	InstalledAt      time.Time `json:"installed_at"`
	OwningSourceFile string    `json:"owning_source_file"`
}

// StateRecordWire is the on-disk shape: PackageId doesn't round-trip
// through encoding/json as a map key the way we want (we key the state
// file by its string form for human-readable diffs), so the store
// marshals/unmarshals through this shape rather than StateRecord
// directly. See pkg/state for the conversion.
type StateRecordWire struct {
	Backend          string    `json:"backend"`
	Name             string    `json:"name"`
	DeclaredAs       string    `json:"declared_as"`
	Variant          string    `json:"variant,omitempty"`
	Version          string    `json:"version,omitempty"`
	InstalledAt      time.Time `json:"installed_at"`
	OwningSourceFile string    `json:"owning_source_file"`
}

func (r StateRecord) ToWire() StateRecordWire {
	return StateRecordWire{
		Backend:          r.PackageId.Backend.Name,
		Name:             r.PackageId.Name,
		DeclaredAs:       r.DeclaredAs,
		Variant:          r.Variant,
		Version:          r.Version,
		InstalledAt:      r.InstalledAt,
		OwningSourceFile: r.OwningSourceFile,
	}
}

func (w StateRecordWire) FromWire() StateRecord {
	return StateRecord{
		PackageId:        PackageId{Backend: Backend{Name: w.Backend}, Name: w.Name},
		DeclaredAs:       w.DeclaredAs,
		Variant:          w.Variant,
		Version:          w.Version,
		InstalledAt:      w.InstalledAt,
		OwningSourceFile: w.OwningSourceFile,
	}
}

// StateFile is the on-disk shape of state.json: a schema version plus the
// set of managed-package records.
type StateFile struct {
	SchemaVersion int               `json:"schema_version"`
	Records       []StateRecordWire `json:"records"`
}

// CurrentStateSchemaVersion is bumped whenever StateRecord gains a field
// that needs a migration default filled in on load (spec.md §4.9).
const CurrentStateSchemaVersion = 2
