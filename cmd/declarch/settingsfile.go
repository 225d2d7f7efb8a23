// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"encoding/json"
	"os"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/pkg/model"
	"github.com/nixval/declarch/pkg/paths"
)

// loadSettings reads settings.json, returning DefaultSettings() if the
// file doesn't exist yet (a fresh install before the first `init`/`settings
// set`), mirroring the teacher's LoadConfig fallback-to-defaults shape.
func loadSettings(r *paths.Resolver) (model.Settings, error) {
	data, err := os.ReadFile(r.SettingsFile())
	if err != nil {
		if os.IsNotExist(err) {
			return model.DefaultSettings(), nil
		}
		return model.Settings{}, declerrors.NewPermissionError("Cannot read settings",
			r.SettingsFile(), "Check file permissions", err)
	}
	var s model.Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return model.Settings{}, declerrors.NewConfigError("Settings file is corrupt",
			r.SettingsFile(), "Run 'declarch settings reset' to restore defaults", err)
	}
	return s, nil
}

// saveSettings writes s to settings.json as indented JSON.
func saveSettings(r *paths.Resolver, s model.Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return declerrors.NewInternalError("Cannot encode settings", err.Error(), "", err)
	}
	if err := os.WriteFile(r.SettingsFile(), data, 0o640); err != nil {
		return declerrors.NewPermissionError("Cannot write settings",
			r.SettingsFile(), "Check directory permissions and available disk space", err)
	}
	return nil
}
