// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"strconv"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/internal/ui"
	"github.com/nixval/declarch/pkg/model"
	"github.com/nixval/declarch/pkg/paths"
)

// runSettings implements `declarch settings <get|set|show|reset> [KEY [VALUE]]`.
func runSettings(args []string, globals GlobalFlags) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: declarch settings <get|set|show|reset> [KEY [VALUE]]")
		os.Exit(1)
	}

	resolver := paths.NewResolver()
	if err := resolver.EnsureDirs(); err != nil {
		declerrors.FatalError(declerrors.NewPermissionError("Cannot create declarch directories",
			err.Error(), "Check permissions", err), globals.Quiet)
	}

	op := args[0]
	rest := args[1:]

	switch op {
	case "show":
		s, err := loadSettings(resolver)
		if err != nil {
			declerrors.FatalError(err, globals.Quiet)
		}
		printSettings(s)
	case "get":
		if len(rest) != 1 {
			fmt.Fprintln(os.Stderr, "Usage: declarch settings get KEY")
			os.Exit(1)
		}
		s, err := loadSettings(resolver)
		if err != nil {
			declerrors.FatalError(err, globals.Quiet)
		}
		v, ok := settingField(&s, rest[0])
		if !ok {
			declerrors.FatalError(declerrors.NewInputError("Unknown setting",
				fmt.Sprintf("%q is not a recognized setting key", rest[0]),
				"Valid keys: color, editor, progress, format, verbose, compact, state_backup_count"), globals.Quiet)
		}
		fmt.Println(v)
	case "set":
		if len(rest) != 2 {
			fmt.Fprintln(os.Stderr, "Usage: declarch settings set KEY VALUE")
			os.Exit(1)
		}
		s, err := loadSettings(resolver)
		if err != nil {
			declerrors.FatalError(err, globals.Quiet)
		}
		if !setSettingField(&s, rest[0], rest[1]) {
			declerrors.FatalError(declerrors.NewInputError("Unknown setting",
				fmt.Sprintf("%q is not a recognized setting key", rest[0]),
				"Valid keys: color, editor, progress, format, verbose, compact, state_backup_count"), globals.Quiet)
		}
		if err := saveSettings(resolver, s); err != nil {
			declerrors.FatalError(err, globals.Quiet)
		}
		ui.Successf("%s = %s", rest[0], rest[1])
	case "reset":
		if err := saveSettings(resolver, model.DefaultSettings()); err != nil {
			declerrors.FatalError(err, globals.Quiet)
		}
		ui.Success("settings reset to defaults")
	default:
		fmt.Fprintf(os.Stderr, "Unknown settings operation: %s\n", op)
		os.Exit(1)
	}
}

func printSettings(s model.Settings) {
	fmt.Printf("color = %s\n", s.Color)
	fmt.Printf("editor = %s\n", s.Editor)
	fmt.Printf("progress = %t\n", s.Progress)
	fmt.Printf("format = %s\n", s.Format)
	fmt.Printf("verbose = %t\n", s.Verbose)
	fmt.Printf("compact = %t\n", s.Compact)
	fmt.Printf("state_backup_count = %d\n", s.StateBackupCount)
}

func settingField(s *model.Settings, key string) (string, bool) {
	switch key {
	case "color":
		return s.Color, true
	case "editor":
		return s.Editor, true
	case "progress":
		return strconv.FormatBool(s.Progress), true
	case "format":
		return s.Format, true
	case "verbose":
		return strconv.FormatBool(s.Verbose), true
	case "compact":
		return strconv.FormatBool(s.Compact), true
	case "state_backup_count":
		return strconv.Itoa(s.StateBackupCount), true
	default:
		return "", false
	}
}

func setSettingField(s *model.Settings, key, value string) bool {
	switch key {
	case "color":
		s.Color = value
	case "editor":
		s.Editor = value
	case "progress":
		s.Progress = value == "true"
	case "format":
		s.Format = value
	case "verbose":
		s.Verbose = value == "true"
	case "compact":
		s.Compact = value == "true"
	case "state_backup_count":
		if n, err := strconv.Atoi(value); err == nil {
			s.StateBackupCount = n
		}
	default:
		return false
	}
	return true
}
