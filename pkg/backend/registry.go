// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"os/exec"
	"sort"
	"strings"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/pkg/model"
)

// Registry is the name -> definition table built once at startup from the
// embedded definitions and any user overrides (spec.md §4.3). Last loaded
// wins on name collision, same discipline as the config loader's imports.
type Registry struct {
	defs    map[string]*model.BackendConfig
	lookPath func(string) (string, error)
}

// NewRegistry builds an empty registry using the real exec.LookPath for
// availability probing.
func NewRegistry() *Registry {
	return &Registry{defs: map[string]*model.BackendConfig{}, lookPath: exec.LookPath}
}

// NewRegistryWithLookup builds a registry with an injected LookPath-style
// function, letting tests fake binary availability without touching PATH.
func NewRegistryWithLookup(lookPath func(string) (string, error)) *Registry {
	return &Registry{defs: map[string]*model.BackendConfig{}, lookPath: lookPath}
}

// Add registers or overrides a backend definition.
func (r *Registry) Add(cfg *model.BackendConfig) {
	r.defs[cfg.Name] = cfg
}

// Names returns every registered backend name, sorted, for listing
// commands (`declarch info --backends`) that need deterministic output.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the raw definition for name, without availability checks or
// fallback resolution. Used by `declarch info --backend <name>`.
func (r *Registry) Get(name string) (*model.BackendConfig, bool) {
	cfg, ok := r.defs[name]
	return cfg, ok
}

// Available reports whether at least one of a backend's candidate
// binaries is on PATH.
func (r *Registry) Available(cfg *model.BackendConfig) bool {
	_, binary := r.ResolveBinary(cfg)
	return binary != ""
}

// ResolveBinary returns the absolute path and the matched candidate name
// of the first binary in cfg.Binary found on PATH, or ("", "") if none
// are.
func (r *Registry) ResolveBinary(cfg *model.BackendConfig) (string, string) {
	for _, candidate := range cfg.Binary {
		if p, err := r.lookPath(candidate); err == nil {
			return p, candidate
		}
	}
	return "", ""
}

// Resolve looks up name, following a single fallback hop if the primary
// definition exists but has no available binary (spec.md §5: "a backend
// whose fallback is set may defer to another backend when unavailable").
// It returns the backend that will actually run.
func (r *Registry) Resolve(name string) (*model.BackendConfig, error) {
	cfg, ok := r.defs[name]
	if !ok {
		return nil, declerrors.NewBackendNotFound(name, r.suggest(name))
	}
	if r.Available(cfg) {
		return cfg, nil
	}
	if cfg.Fallback != "" {
		if fb, ok := r.defs[cfg.Fallback]; ok && r.Available(fb) {
			return fb, nil
		}
	}
	return nil, declerrors.NewBinaryNotFound(name, cfg.Binary)
}

// suggest returns up to 3 registered names within edit distance 2 of
// name, for the "Did you mean" hint in NewBackendNotFound.
func (r *Registry) suggest(name string) []string {
	type scored struct {
		name string
		dist int
	}
	var candidates []scored
	for n := range r.defs {
		d := levenshtein(strings.ToLower(name), strings.ToLower(n))
		if d <= 2 {
			candidates = append(candidates, scored{n, d})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].name < candidates[j].name
	})
	out := make([]string, 0, 3)
	for i, c := range candidates {
		if i >= 3 {
			break
		}
		out = append(out, c.name)
	}
	return out
}

// levenshtein is a small classic edit-distance implementation; declarch
// has no library dependency that covers this (see DESIGN.md).
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
