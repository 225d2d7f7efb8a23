// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package envelope

import (
	"encoding/json"
	"testing"

	declerrors "github.com/nixval/declarch/internal/errors"
)

func TestOk_SerializesExpectedShape(t *testing.T) {
	env := Ok("info", map[string]string{"foo": "bar"}, nil)
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["version"] != CurrentVersion {
		t.Fatalf("version = %v", decoded["version"])
	}
	if decoded["command"] != "info" {
		t.Fatalf("command = %v", decoded["command"])
	}
	if decoded["ok"] != true {
		t.Fatalf("ok = %v", decoded["ok"])
	}
	if _, ok := decoded["meta"].(map[string]any)["generated_at"]; !ok {
		t.Fatal("expected meta.generated_at to be present")
	}
	if _, ok := decoded["warnings"].([]any); !ok {
		t.Fatal("expected warnings to serialize as an array, not null")
	}
	if _, ok := decoded["errors"].([]any); !ok {
		t.Fatal("expected errors to serialize as an array, not null")
	}
}

func TestOk_NilWarningsBecomeEmptyArray(t *testing.T) {
	env := Ok("search", nil, nil)
	if env.Warnings == nil {
		t.Fatal("expected Warnings to be non-nil")
	}
	if len(env.Warnings) != 0 {
		t.Fatalf("Warnings = %v", env.Warnings)
	}
}

func TestErr_CarriesTaxonomyFields(t *testing.T) {
	e := declerrors.NewBackendNotFound("brew", []string{"pacman", "aur"})
	env := Err("lint", e)
	if env.OK {
		t.Fatal("expected OK=false")
	}
	if len(env.Errors) != 1 {
		t.Fatalf("Errors = %+v", env.Errors)
	}
	if env.Errors[0].Kind != string(declerrors.KindBackendNotFound) {
		t.Fatalf("Kind = %q", env.Errors[0].Kind)
	}
}

func TestContractNotSupported_RejectsUnlistedCommand(t *testing.T) {
	if Supported("switch") {
		t.Fatal("switch is not in the v1 allowlist")
	}
	env := ContractNotSupported("switch")
	if env.OK {
		t.Fatal("expected OK=false")
	}
	if len(env.Errors) != 1 || env.Errors[0].Kind != string(declerrors.KindContractNotSupported) {
		t.Fatalf("Errors = %+v", env.Errors)
	}
}

func TestSupported_AllowlistedCommands(t *testing.T) {
	for _, cmd := range []string{"info", "info --list", "lint", "search", "sync --dry-run"} {
		if !Supported(cmd) {
			t.Errorf("expected %q to be supported", cmd)
		}
	}
}
