// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/internal/ui"
)

const extPrefix = "declarch-ext-"

// runExt implements the hidden `declarch ext` command: with no
// arguments it lists every declarch-ext-* binary found on PATH; with a
// name it execs declarch-ext-<name>, forwarding the remaining arguments
// and inheriting stdio, the same subprocess-delegation shape
// cmd/cie/start.go uses for docker compose.
func runExt(args []string, globals GlobalFlags) {
	if len(args) == 0 {
		names := discoverExtensions()
		if len(names) == 0 {
			ui.Info("no declarch-ext-* binaries found on PATH")
			return
		}
		ui.Header("Extensions")
		for _, n := range names {
			fmt.Println("  " + n)
		}
		return
	}

	name := args[0]
	bin, err := exec.LookPath(extPrefix + name)
	if err != nil {
		hint := "Check PATH for " + extPrefix + name
		if found := discoverExtensions(); len(found) > 0 {
			hint = "Available extensions: " + strings.Join(found, ", ")
		}
		declerrors.FatalError(declerrors.NewInputError("Extension not found",
			extPrefix+name+" is not on PATH", hint), globals.Quiet)
	}

	cmd := exec.Command(bin, args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		declerrors.FatalError(declerrors.NewInternalError("Extension failed to run",
			err.Error(), "Check that "+bin+" is executable", err), globals.Quiet)
	}
}

// discoverExtensions scans every directory in $PATH for executables
// named declarch-ext-*, returning the bare suffix (the part after the
// prefix) for each, deduplicated and sorted.
func discoverExtensions() []string {
	seen := map[string]bool{}
	var names []string
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasPrefix(e.Name(), extPrefix) {
				continue
			}
			info, err := e.Info()
			if err != nil || info.Mode()&0o111 == 0 {
				continue
			}
			name := strings.TrimPrefix(e.Name(), extPrefix)
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}
