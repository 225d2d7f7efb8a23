// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"errors"
	"testing"

	"github.com/nixval/declarch/pkg/model"
)

func fakeLookPath(available map[string]string) func(string) (string, error) {
	return func(name string) (string, error) {
		if p, ok := available[name]; ok {
			return p, nil
		}
		return "", errors.New("not found")
	}
}

func TestResolveBinary_FirstMatch(t *testing.T) {
	r := NewRegistryWithLookup(fakeLookPath(map[string]string{"pacman": "/usr/bin/pacman"}))
	cfg := &model.BackendConfig{Name: "pacman", Binary: []string{"pacman"}}
	p, candidate := r.ResolveBinary(cfg)
	if p != "/usr/bin/pacman" || candidate != "pacman" {
		t.Fatalf("ResolveBinary = (%q, %q)", p, candidate)
	}
}

func TestResolveBinary_NoneAvailable(t *testing.T) {
	r := NewRegistryWithLookup(fakeLookPath(nil))
	cfg := &model.BackendConfig{Name: "aur", Binary: []string{"yay", "paru"}}
	p, candidate := r.ResolveBinary(cfg)
	if p != "" || candidate != "" {
		t.Fatalf("ResolveBinary = (%q, %q), want empty", p, candidate)
	}
}

func TestResolve_FallsBackWhenPrimaryMissing(t *testing.T) {
	r := NewRegistryWithLookup(fakeLookPath(map[string]string{"paru": "/usr/bin/paru"}))
	r.Add(&model.BackendConfig{Name: "yay", Binary: []string{"yay"}, Fallback: "paru"})
	r.Add(&model.BackendConfig{Name: "paru", Binary: []string{"paru"}})

	got, err := r.Resolve("yay")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got.Name != "paru" {
		t.Fatalf("Resolve() = %q, want paru", got.Name)
	}
}

func TestResolve_UnknownBackendSuggestsClose(t *testing.T) {
	r := NewRegistryWithLookup(fakeLookPath(nil))
	r.Add(&model.BackendConfig{Name: "pacman", Binary: []string{"pacman"}})

	_, err := r.Resolve("pacmn")
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if got := err.Error(); got == "" {
		t.Fatal("expected non-empty error message")
	}
}

func TestResolve_NoBinaryNoFallback(t *testing.T) {
	r := NewRegistryWithLookup(fakeLookPath(nil))
	r.Add(&model.BackendConfig{Name: "flatpak", Binary: []string{"flatpak"}})

	_, err := r.Resolve("flatpak")
	if err == nil {
		t.Fatal("expected binary-not-found error")
	}
}

func TestNames_Sorted(t *testing.T) {
	r := NewRegistry()
	r.Add(&model.BackendConfig{Name: "zypper", Binary: []string{"zypper"}})
	r.Add(&model.BackendConfig{Name: "apt", Binary: []string{"apt"}})
	names := r.Names()
	if len(names) != 2 || names[0] != "apt" || names[1] != "zypper" {
		t.Fatalf("Names() = %v", names)
	}
}

func TestLevenshtein_Basic(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"pacman", "pacman", 0},
		{"pacman", "pacmn", 1},
		{"yay", "paru", 3},
	}
	for _, c := range cases {
		if got := levenshtein(c.a, c.b); got != c.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
