// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"testing"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/pkg/kdl"
	"github.com/nixval/declarch/pkg/model"
)

// parseBackend parses a single raw `backend "name" { ... }` block the way
// loadFile does, for tests that need to exercise KDL syntax LoadDefinition
// never sees through the node()/arg() test helpers (quoted prop values,
// multiple command nodes, etc).
func parseBackend(t *testing.T, src string) (*model.BackendConfig, error) {
	t.Helper()
	nodes, err := kdl.Parse("user.kdl", []byte(src))
	if err != nil {
		t.Fatalf("kdl.Parse: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected exactly one top-level node, got %d", len(nodes))
	}
	return LoadDefinition("user.kdl", nodes[0])
}

func arg(s string) kdl.Value { return kdl.ValueForTest(s) }

func node(name string, args []kdl.Value, children ...*kdl.Node) *kdl.Node {
	return &kdl.Node{Name: name, Args: args, Properties: map[string]kdl.Value{}, Children: children}
}

func TestLoadDefinition_Minimal(t *testing.T) {
	n := node("backend", []kdl.Value{arg("pacman")},
		node("binary", []kdl.Value{arg("pacman")}),
		node("install", []kdl.Value{arg("{binary} -S --noconfirm {packages}")}),
		node("remove", []kdl.Value{arg("{binary} -R {packages}")}),
		node("list", []kdl.Value{arg("{binary} -Q")}),
	)

	cfg, err := LoadDefinition("backends.kdl", n)
	if err != nil {
		t.Fatalf("LoadDefinition: %v", err)
	}
	if cfg.Name != "pacman" {
		t.Fatalf("Name = %q", cfg.Name)
	}
	if len(cfg.Binary) != 1 || cfg.Binary[0] != "pacman" {
		t.Fatalf("Binary = %v", cfg.Binary)
	}
	if cfg.Install == nil || len(cfg.Install.Tokens) != 4 {
		t.Fatalf("Install = %+v", cfg.Install)
	}
}

func TestLoadDefinition_MissingBinaryErrors(t *testing.T) {
	n := node("backend", []kdl.Value{arg("broken")},
		node("install", []kdl.Value{arg("{binary} -S {packages}")}),
	)
	if _, err := LoadDefinition("backends.kdl", n); err == nil {
		t.Fatal("expected error for missing binary node")
	}
}

func TestLoadDefinition_WrongNodeNameErrors(t *testing.T) {
	n := node("not-a-backend", []kdl.Value{arg("x")})
	if _, err := LoadDefinition("backends.kdl", n); err == nil {
		t.Fatal("expected error for wrong node name")
	}
}

func TestLoadDefinition_FallbackAndSudo(t *testing.T) {
	n := node("backend", []kdl.Value{arg("yay")},
		node("binary", []kdl.Value{arg("yay")}),
		node("fallback", []kdl.Value{arg("paru")}),
		node("needs_sudo", []kdl.Value{arg("true")}),
		node("install", []kdl.Value{arg("{binary} -S {packages}")}),
	)
	cfg, err := LoadDefinition("backends.kdl", n)
	if err != nil {
		t.Fatalf("LoadDefinition: %v", err)
	}
	if cfg.Fallback != "paru" {
		t.Fatalf("Fallback = %q", cfg.Fallback)
	}
	if !cfg.NeedsSudo {
		t.Fatal("NeedsSudo = false, want true")
	}
}

func TestLoadDefinition_UnknownNodeIgnored(t *testing.T) {
	n := node("backend", []kdl.Value{arg("x")},
		node("binary", []kdl.Value{arg("x")}),
		node("install", []kdl.Value{arg("{binary} -S {packages}")}),
		node("some_future_field", []kdl.Value{arg("whatever")}),
	)
	if _, err := LoadDefinition("backends.kdl", n); err != nil {
		t.Fatalf("unknown node should be ignored, got error: %v", err)
	}
}

// The following exercise spec.md §3's load-time validation invariants
// against malformed user-authored backend files — the kind a user would
// actually write under config_dir/backends, not the synthetic node()
// fixtures above.

func TestLoadDefinition_InstallMissingPackagesPlaceholderErrors(t *testing.T) {
	_, err := parseBackend(t, `
backend "broken" {
    binary "brokenpm"
    install "{binary} -S"
}`)
	if err == nil {
		t.Fatal("expected error for install missing {packages}")
	}
	if !declerrors.As(err, declerrors.KindInvalidBackendConfig) {
		t.Fatalf("got %v, want KindInvalidBackendConfig", err)
	}
}

func TestLoadDefinition_RemoveMissingPackagesPlaceholderErrors(t *testing.T) {
	_, err := parseBackend(t, `
backend "broken" {
    binary "brokenpm"
    install "{binary} -S {packages}"
    remove "{binary} -R"
}`)
	if err == nil {
		t.Fatal("expected error for remove missing {packages}")
	}
	if !declerrors.As(err, declerrors.KindInvalidBackendConfig) {
		t.Fatalf("got %v, want KindInvalidBackendConfig", err)
	}
}

func TestLoadDefinition_SearchMissingQueryPlaceholderErrors(t *testing.T) {
	_, err := parseBackend(t, `
backend "broken" {
    binary "brokenpm"
    install "{binary} -S {packages}"
    search "{binary} -Ss"
}`)
	if err == nil {
		t.Fatal("expected error for search missing {query}")
	}
	if !declerrors.As(err, declerrors.KindInvalidBackendConfig) {
		t.Fatalf("got %v, want KindInvalidBackendConfig", err)
	}
}

func TestLoadDefinition_MultiBinaryWithoutPlaceholderErrors(t *testing.T) {
	_, err := parseBackend(t, `
backend "broken" {
    binary "yay" "paru"
    install "pacman -S {packages}"
}`)
	if err == nil {
		t.Fatal("expected error: multi-binary backend must place {binary} in every command")
	}
	if !declerrors.As(err, declerrors.KindInvalidBackendConfig) {
		t.Fatalf("got %v, want KindInvalidBackendConfig", err)
	}
}

func TestLoadDefinition_JSONParserMissingNameKeyErrors(t *testing.T) {
	_, err := parseBackend(t, `
backend "broken" {
    binary "brokenpm"
    install "{binary} -S {packages}"
    list_parser "json" path="packages"
}`)
	if err == nil {
		t.Fatal("expected error for json list_parser missing name_key")
	}
	if !declerrors.As(err, declerrors.KindInvalidBackendConfig) {
		t.Fatalf("got %v, want KindInvalidBackendConfig", err)
	}
}

func TestLoadDefinition_RegexParserMissingGroupsErrors(t *testing.T) {
	_, err := parseBackend(t, `
backend "broken" {
    binary "brokenpm"
    install "{binary} -S {packages}"
    search_parser "regex" regex="^(\\S+)"
}`)
	if err == nil {
		t.Fatal("expected error for regex search_parser missing name_group")
	}
	if !declerrors.As(err, declerrors.KindInvalidBackendConfig) {
		t.Fatalf("got %v, want KindInvalidBackendConfig", err)
	}
}

func TestLoadDefinition_ShellMetacharacterInLiteralTokenErrors(t *testing.T) {
	_, err := parseBackend(t, `
backend "broken" {
    binary "brokenpm"
    install "{binary} -S {packages} && rm -rf /"
}`)
	if err == nil {
		t.Fatal("expected error for shell metacharacter in a literal command token")
	}
	if !declerrors.As(err, declerrors.KindInvalidBackendConfig) {
		t.Fatalf("got %v, want KindInvalidBackendConfig", err)
	}
}

func TestLoadDefinition_ValidUserBackendLoadsCleanly(t *testing.T) {
	cfg, err := parseBackend(t, `
backend "mypm" {
    binary "mypm"
    install "{binary} add {packages}"
    remove "{binary} drop {packages}"
    search "{binary} find {query}"
    list_parser "whitespace" name_col=0 version_col=1
}`)
	if err != nil {
		t.Fatalf("LoadDefinition: %v", err)
	}
	if cfg.Name != "mypm" {
		t.Fatalf("Name = %q", cfg.Name)
	}
}
