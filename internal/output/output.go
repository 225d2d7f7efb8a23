// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package output provides the two encodings declarch's machine-output
// commands support: indented JSON (the default) and YAML (--format yaml).
package output

import (
	"encoding/json"
	"os"

	"gopkg.in/yaml.v3"
)

// JSON encodes v as indented JSON to stdout.
func JSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// YAML encodes v as YAML to stdout.
func YAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()
	return enc.Encode(v)
}

// Format renders v in the requested format; format is "json" or "yaml"
// and defaults to JSON for any other value.
func Format(v any, format string) error {
	if format == "yaml" {
		return YAML(v)
	}
	return JSON(v)
}
