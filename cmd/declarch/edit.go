// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/internal/ui"
	"github.com/nixval/declarch/pkg/kdl"
)

type editFlags struct {
	validateOnly bool
	autoFormat   bool
	backup       bool
}

func parseEditFlags(args []string) (editFlags, []string) {
	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	var f editFlags
	fs.BoolVar(&f.validateOnly, "validate-only", false, "Parse the target file and report errors without opening an editor")
	fs.BoolVar(&f.autoFormat, "auto-format", false, "Normalize trailing whitespace and newline after editing")
	fs.BoolVar(&f.backup, "backup", false, "Copy the file to a timestamped .bak before editing")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: declarch edit [MODULE] [--validate-only] [--auto-format] [--backup]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f, fs.Args()
}

// runEdit implements `declarch edit [MODULE] [--validate-only]
// [--auto-format] [--backup]`: opens the root config, or
// config_dir/modules/MODULE.kdl (created with a one-line comment header if
// missing), in $EDITOR.
func runEdit(args []string, globals GlobalFlags) {
	flags, positional := parseEditFlags(args)
	a := newApp()

	path := a.resolver.RootConfigFile()
	if len(positional) > 0 {
		path = filepath.Join(a.resolver.ModulesDir(), positional[0]+".kdl")
	}

	if flags.validateOnly {
		validateFile(path, globals)
		return
	}

	if flags.backup {
		if err := backupWithTimestamp(path); err != nil && !os.IsNotExist(err) {
			declerrors.FatalError(declerrors.NewPermissionError("Cannot create backup",
				path, "Check directory permissions", err), globals.Quiet)
		}
	}

	isNewModule := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		isNewModule = len(positional) > 0
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			declerrors.FatalError(declerrors.NewPermissionError("Cannot create module directory",
				filepath.Dir(path), "Check directory permissions", err), globals.Quiet)
		}
		if err := os.WriteFile(path, []byte("// "+filepath.Base(path)+"\n"), 0o640); err != nil {
			declerrors.FatalError(declerrors.NewPermissionError("Cannot create module file",
				path, "Check directory permissions", err), globals.Quiet)
		}
	}
	if isNewModule {
		if err := ensureModuleImported(a.resolver.RootConfigFile(), positional[0]); err != nil {
			declerrors.FatalError(declerrors.NewPermissionError("Cannot wire module import",
				a.resolver.RootConfigFile(), "Check file permissions", err), globals.Quiet)
		}
	}

	settings, err := loadSettings(a.resolver)
	if err != nil {
		declerrors.FatalError(err, globals.Quiet)
	}
	editorBin := resolveEditor(settings.Editor)

	cmd := exec.Command(editorBin, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		declerrors.FatalError(declerrors.NewInternalError("Editor exited with an error",
			err.Error(), "Check that "+editorBin+" is installed and on PATH", err), globals.Quiet)
	}

	if flags.autoFormat {
		if err := normalizeWhitespace(path); err != nil {
			ui.Warning(fmt.Sprintf("auto-format: %v", err))
		}
	}

	validateFile(path, globals)
}

// resolveEditor follows settings.json's editor override, then $EDITOR,
// then a plain "vi" fallback, mirroring the teacher's layered-default
// pattern for external tool discovery.
func resolveEditor(settingsEditor string) string {
	if settingsEditor != "" {
		return settingsEditor
	}
	if e := os.Getenv("EDITOR"); e != "" {
		return e
	}
	return "vi"
}

func validateFile(path string, globals GlobalFlags) {
	raw, err := os.ReadFile(path)
	if err != nil {
		declerrors.FatalError(declerrors.NewConfigError("Cannot read file",
			path+": "+err.Error(), "Check the path exists", err), globals.Quiet)
	}
	if _, err := kdl.Parse(path, raw); err != nil {
		declerrors.FatalError(err, globals.Quiet)
	}
	ui.Successf("%s is valid KDL", path)
}

// backupWithTimestamp copies path to path.bak.<RFC3339-ish timestamp>.
func backupWithTimestamp(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	stamp := time.Now().UTC().Format("20060102T150405Z")
	return os.WriteFile(path+".bak."+stamp, raw, 0o640)
}

// normalizeWhitespace trims trailing whitespace on every line and
// ensures the file ends with exactly one trailing newline. There's no
// KDL formatter in the retrieved pack to reach for (pkg/kdl only
// parses), so this is the bounded, textual subset of "auto-format" that
// doesn't risk rewriting semantics.
func normalizeWhitespace(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.Split(string(raw), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	out := strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
	return os.WriteFile(path, []byte(out), 0o640)
}
