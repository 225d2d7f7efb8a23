// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package envelope implements declarch's versioned machine-output
// contract (spec.md §4.14): every command that supports `--format
// json|yaml` wraps its payload in a stable
// {version, command, ok, data, warnings, errors, meta} shape instead of
// emitting ad-hoc JSON, so scripts consuming declarch's output have one
// schema to parse regardless of which subcommand produced it.
//
// Grounded on cmd/cie/status.go's StatusResult JSON-struct-with-omitempty
// style, generalized into a single reusable wrapper type.
package envelope

import (
	"time"

	declerrors "github.com/nixval/declarch/internal/errors"
)

// CurrentVersion is the only envelope schema version declarch emits.
const CurrentVersion = "v1"

// supportedCommands is the v1 contract's command allowlist (spec.md
// §4.14). Any other command requesting machine output gets
// ContractNotSupported instead of a best-effort envelope.
var supportedCommands = map[string]bool{
	"info":           true,
	"info --list":    true,
	"lint":           true,
	"search":         true,
	"sync --dry-run": true,
}

// Supported reports whether command may produce a v1 envelope.
func Supported(command string) bool {
	return supportedCommands[command]
}

// ErrorInfo is one taxonomy error rendered inside an envelope.
type ErrorInfo struct {
	Kind   string `json:"kind" yaml:"kind"`
	Title  string `json:"title" yaml:"title"`
	Detail string `json:"detail" yaml:"detail"`
	Hint   string `json:"hint,omitempty" yaml:"hint,omitempty"`
}

// Meta carries envelope-level bookkeeping beyond the payload itself.
type Meta struct {
	GeneratedAt string `json:"generated_at" yaml:"generated_at"`
}

// Envelope is the wire shape every v1 machine-output command emits.
type Envelope struct {
	Version  string      `json:"version" yaml:"version"`
	Command  string      `json:"command" yaml:"command"`
	OK       bool        `json:"ok" yaml:"ok"`
	Data     any         `json:"data,omitempty" yaml:"data,omitempty"`
	Warnings []string    `json:"warnings" yaml:"warnings"`
	Errors   []ErrorInfo `json:"errors" yaml:"errors"`
	Meta     Meta        `json:"meta" yaml:"meta"`
}

func newMeta() Meta {
	return Meta{GeneratedAt: time.Now().UTC().Format(time.RFC3339)}
}

// Ok builds a successful envelope carrying data and zero or more
// non-fatal warnings collected along the way (e.g. state.Store's
// StateRecovered messages, plan.Planner's availability warnings).
func Ok(command string, data any, warnings []string) *Envelope {
	if warnings == nil {
		warnings = []string{}
	}
	return &Envelope{
		Version:  CurrentVersion,
		Command:  command,
		OK:       true,
		Data:     data,
		Warnings: warnings,
		Errors:   []ErrorInfo{},
		Meta:     newMeta(),
	}
}

// Err builds a failed envelope from one or more DeclarchErrors. The
// envelope itself is still "successfully produced" JSON/YAML — OK:false
// communicates the command's own failure, distinct from an encoding
// failure which would abort before an envelope is ever printed.
func Err(command string, errs ...*declerrors.DeclarchError) *Envelope {
	infos := make([]ErrorInfo, 0, len(errs))
	for _, e := range errs {
		if e == nil {
			continue
		}
		infos = append(infos, ErrorInfo{
			Kind:   string(e.Kind),
			Title:  e.Title,
			Detail: e.Detail,
			Hint:   e.Hint,
		})
	}
	return &Envelope{
		Version:  CurrentVersion,
		Command:  command,
		OK:       false,
		Warnings: []string{},
		Errors:   infos,
		Meta:     newMeta(),
	}
}

// ContractNotSupported builds the envelope returned when a command
// outside the v1 allowlist is asked for machine output.
func ContractNotSupported(command string) *Envelope {
	return Err(command, declerrors.NewContractNotSupported(command))
}
