// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"sort"

	flag "github.com/spf13/pflag"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/internal/telemetry"
	"github.com/nixval/declarch/internal/ui"
	"github.com/nixval/declarch/pkg/model"
)

type infoFlags struct {
	list   bool
	doctor bool
}

func parseInfoFlags(args []string) (infoFlags, []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	var f infoFlags
	fs.BoolVar(&f.list, "list", false, "List every tracked (state) package")
	fs.BoolVar(&f.doctor, "doctor", false, "Dump environment, backend, and telemetry diagnostics")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: declarch info [--list] [--doctor] [--format ...] [--output-version v1]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f, fs.Args()
}

type backendInfo struct {
	Name      string   `json:"name"`
	Available bool     `json:"available"`
	Binaries  []string `json:"binaries,omitempty"`
}

type infoPayload struct {
	Version  string        `json:"version"`
	Identity string        `json:"identity"`
	Backends []backendInfo `json:"backends,omitempty"`
	Tracked  []string      `json:"tracked,omitempty"`
	Doctor   string        `json:"doctor,omitempty"`
}

// runInfo implements `declarch info [--list] [--doctor]`. Only plain
// `info` and `info --list` are in the v1 envelope allowlist — `--doctor`
// is a human-diagnostics dump and asking for it with a machine format
// gets ContractNotSupported (C14).
func runInfo(args []string, globals GlobalFlags) {
	flags, _ := parseInfoFlags(args)
	command := "info"
	if flags.list {
		command = "info --list"
	}
	if globals.wantsMachineOutput() && flags.doctor {
		emitError(globals, "info --doctor", declerrors.NewContractNotSupported("info --doctor"))
		return
	}

	a := newApp()
	payload := infoPayload{Version: "dev", Identity: a.resolver.IdentityString()}

	for _, name := range a.registry.Names() {
		cfg, ok := a.registry.Get(name)
		bi := backendInfo{Name: name}
		if ok {
			bi.Available = a.registry.Available(cfg)
			bi.Binaries = cfg.Binary
		}
		payload.Backends = append(payload.Backends, bi)
	}

	if flags.list {
		recs, warnings, err := a.store.Load(false)
		if err != nil {
			emitError(globals, command, err)
			return
		}
		var ids []model.PackageId
		for id := range recs {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		for _, id := range ids {
			payload.Tracked = append(payload.Tracked, id.String())
		}
		if emit(globals, command, payload, warnings) {
			return
		}
		printInfoList(payload, warnings)
		return
	}

	if flags.doctor {
		dump, err := a.tel.DumpText()
		if err != nil {
			declerrors.FatalError(declerrors.NewInternalError("Cannot render diagnostics",
				err.Error(), "", err), globals.Quiet)
		}
		payload.Doctor = dump
		if ps := telemetry.ReadProcStats(); ps.Err != "" {
			payload.Doctor += fmt.Sprintf("\n# process stats unavailable: %s\n", ps.Err)
		} else {
			payload.Doctor += fmt.Sprintf("\n# process rss_bytes=%d open_fds=%d threads=%d\n", ps.RSSBytes, ps.OpenFDs, ps.NumThreads)
		}
		printInfoDoctor(payload)
		return
	}

	if emit(globals, command, payload, nil) {
		return
	}
	printInfoSummary(payload)
}

func printInfoSummary(p infoPayload) {
	ui.Header("declarch " + p.Version)
	fmt.Printf("  %s\n", p.Identity)
	ui.SubHeader("Backends")
	for _, b := range p.Backends {
		status := "unavailable"
		if b.Available {
			status = "available"
		}
		fmt.Printf("  %-12s %s\n", b.Name, status)
	}
}

func printInfoList(p infoPayload, warnings []string) {
	ui.Header("Tracked packages")
	if len(p.Tracked) == 0 {
		ui.Info("nothing tracked yet")
	}
	for _, id := range p.Tracked {
		fmt.Println("  " + id)
	}
	for _, w := range warnings {
		ui.Warning(w)
	}
}

func printInfoDoctor(p infoPayload) {
	printInfoSummary(p)
	ui.SubHeader("Telemetry")
	fmt.Println(p.Doctor)
}
