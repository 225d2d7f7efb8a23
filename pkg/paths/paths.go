// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package paths computes declarch's XDG-based config/state/cache roots
// (spec.md §4.1). Path computation only reads environment variables,
// which keeps it trivially testable by isolating HOME/XDG_* per test (see
// paths_test.go); EnsureDirs is the one function that touches the
// filesystem, creating the directories.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// projectIdentity is the single stable string every path derives from.
const projectIdentity = "declarch"

// version is set via ldflags at build time, mirroring the teacher's
// version/commit/date main.go pattern; used in IdentityString.
var version = "dev"

// Resolver computes the three XDG roots. Constructed once per invocation
// and passed by reference — never a package-level global — so tests can
// build isolated instances with their own environment overrides.
type Resolver struct {
	env func(string) string
}

// NewResolver builds a Resolver reading from the real process environment.
func NewResolver() *Resolver {
	return &Resolver{env: os.Getenv}
}

// NewResolverWithEnv builds a Resolver reading from a custom lookup
// function, letting tests isolate XDG_* overrides without touching the
// real environment.
func NewResolverWithEnv(env func(string) string) *Resolver {
	return &Resolver{env: env}
}

func (r *Resolver) lookup(key string) (string, bool) {
	v := r.env(key)
	return v, v != ""
}

func (r *Resolver) home() string {
	if h, ok := r.lookup("HOME"); ok {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// ConfigDir returns $XDG_CONFIG_HOME/declarch, defaulting to
// ~/.config/declarch.
func (r *Resolver) ConfigDir() string {
	if v, ok := r.lookup("XDG_CONFIG_HOME"); ok {
		return filepath.Join(v, projectIdentity)
	}
	return filepath.Join(r.home(), ".config", projectIdentity)
}

// StateDir returns $XDG_STATE_HOME/declarch, defaulting to
// ~/.local/state/declarch.
func (r *Resolver) StateDir() string {
	if v, ok := r.lookup("XDG_STATE_HOME"); ok {
		return filepath.Join(v, projectIdentity)
	}
	return filepath.Join(r.home(), ".local", "state", projectIdentity)
}

// CacheDir returns $XDG_CACHE_HOME/declarch, defaulting to
// ~/.cache/declarch. EnsureDirs creates it; the remote fetcher (C13)
// buffers downloads in memory and does not use it.
func (r *Resolver) CacheDir() string {
	if v, ok := r.lookup("XDG_CACHE_HOME"); ok {
		return filepath.Join(v, projectIdentity)
	}
	return filepath.Join(r.home(), ".cache", projectIdentity)
}

// RootConfigFile returns config_dir/declarch.kdl.
func (r *Resolver) RootConfigFile() string {
	return filepath.Join(r.ConfigDir(), "declarch.kdl")
}

// BackendsConfigFile returns config_dir/backends.kdl.
func (r *Resolver) BackendsConfigFile() string {
	return filepath.Join(r.ConfigDir(), "backends.kdl")
}

// BackendsDir returns config_dir/backends.
func (r *Resolver) BackendsDir() string {
	return filepath.Join(r.ConfigDir(), "backends")
}

// ModulesDir returns config_dir/modules.
func (r *Resolver) ModulesDir() string {
	return filepath.Join(r.ConfigDir(), "modules")
}

// SettingsFile returns config_dir/settings.json.
func (r *Resolver) SettingsFile() string {
	return filepath.Join(r.ConfigDir(), "settings.json")
}

// StateFile returns state_dir/state.json.
func (r *Resolver) StateFile() string {
	return filepath.Join(r.StateDir(), "state.json")
}

// StateLockFile returns state_dir/state.lock.
func (r *Resolver) StateLockFile() string {
	return filepath.Join(r.StateDir(), "state.lock")
}

// StateBackupFile returns state_dir/state.json.backup.<k>.
func (r *Resolver) StateBackupFile(k int) string {
	return filepath.Join(r.StateDir(), fmt.Sprintf("state.json.backup.%d", k))
}

// InstallChannelFile returns state_dir/install-channel.json.
func (r *Resolver) InstallChannelFile() string {
	return filepath.Join(r.StateDir(), "install-channel.json")
}

// IdentityString returns the stable "declarch/<version>" identity used in
// the fetcher's User-Agent header and in `info --doctor` output.
func (r *Resolver) IdentityString() string {
	return projectIdentity + "/" + version
}

// EnsureDirs creates config_dir, state_dir, and cache_dir if missing.
func (r *Resolver) EnsureDirs() error {
	for _, dir := range []string{r.ConfigDir(), r.StateDir(), r.CacheDir(), r.BackendsDir(), r.ModulesDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	return nil
}
