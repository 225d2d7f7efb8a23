// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nixval/declarch/pkg/backend/embedded"
	"github.com/nixval/declarch/pkg/kdl"
)

// LoadEmbedded registers every officially shipped backend definition.
// Call this first when building a Registry so user overrides (LoadUserDir)
// can replace any of them by name.
func LoadEmbedded(r *Registry) error {
	for _, name := range embedded.Names {
		src, err := embedded.FS.ReadFile(name)
		if err != nil {
			return err
		}
		if err := loadFile(r, "embedded:"+name, src); err != nil {
			return err
		}
	}
	return nil
}

// LoadUserDir registers every *.kdl file directly under dir (config_dir/
// backends), in lexical order, each one potentially overriding an
// embedded or earlier user definition of the same name. A missing dir is
// not an error — most installs have no user backend overrides.
func LoadUserDir(r *Registry, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".kdl") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(dir, name)
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := loadFile(r, path, src); err != nil {
			return err
		}
	}
	return nil
}

func loadFile(r *Registry, path string, src []byte) error {
	nodes, err := kdl.Parse(path, src)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if n.Name != "backend" {
			continue
		}
		cfg, err := LoadDefinition(path, n)
		if err != nil {
			return err
		}
		r.Add(cfg)
	}
	return nil
}
