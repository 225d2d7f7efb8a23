// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config implements the config loader (C4, spec.md §4.4): it
// turns a root declarch.kdl plus its recursively resolved imports into
// one MergedConfig, routing each top-level KDL node to its handler and
// applying the documented merge semantics (packages accumulate,
// excludes/aliases union with later-wins, policy is last-one-wins per
// field, meta is first-wins, hooks accumulate).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/pkg/hooks"
	"github.com/nixval/declarch/pkg/kdl"
	"github.com/nixval/declarch/pkg/model"
)

// unsafeNamePattern matches any of the shell metacharacters spec.md §4.4
// lists as disqualifying for a package name.
var unsafeNamePattern = regexp.MustCompile("[;&|`$'\"\\s]")

// Loader resolves a root config file into a MergedConfig. DefaultBackend
// names the backend used for package declarations with no explicit
// backend — historically AUR on Arch installs; left as an injected field
// rather than a hardcoded constant so `declarch init` can set it to
// whatever backend probing found first available (spec.md §4.4.3).
type Loader struct {
	DefaultBackend string
	done           map[string]bool // fully loaded; a second reference is a no-op, not a re-merge
	inProgress     map[string]bool // on the current import DFS stack; a second reference is a cycle
	cfg            *model.MergedConfig
	warnings       []string
}

// NewLoader builds a Loader with the given default backend name.
func NewLoader(defaultBackend string) *Loader {
	return &Loader{
		DefaultBackend: defaultBackend,
		done:           map[string]bool{},
		inProgress:     map[string]bool{},
		cfg:            model.NewMergedConfig(),
	}
}

// Load parses rootPath and every file it imports (directly or
// transitively), merging them into one MergedConfig. Returns accumulated
// non-fatal warnings alongside the result; a fatal structural problem
// (cycle, parse error, invalid package name) is returned as an error
// instead.
func (l *Loader) Load(rootPath string) (*model.MergedConfig, []string, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, nil, declerrors.NewConfigError("Cannot resolve config path",
			err.Error(), "Check that the path exists", err)
	}
	if err := l.loadFile(abs); err != nil {
		return nil, nil, err
	}
	return l.cfg, l.warnings, nil
}

func (l *Loader) warn(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

// loadFile loads one file by canonical absolute path, skipping files
// already visited (a diamond import, not a cycle — spec.md §9) and
// erroring on files currently in the process of being loaded (a true
// cycle).
func (l *Loader) loadFile(path string) error {
	if l.done[path] {
		return nil
	}
	if l.inProgress[path] {
		return declerrors.NewCyclicImport(path)
	}
	l.inProgress[path] = true
	defer delete(l.inProgress, path)

	src, err := os.ReadFile(path)
	if err != nil {
		return declerrors.NewConfigError("Cannot read config file", path+": "+err.Error(),
			"Check the file exists and is readable", err)
	}
	nodes, err := kdl.Parse(path, src)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if err := l.routeNode(path, n); err != nil {
			return err
		}
	}
	l.done[path] = true
	return nil
}

func (l *Loader) routeNode(path string, n *kdl.Node) error {
	switch {
	case n.Name == "imports":
		return l.handleImports(path, n)
	case n.Name == "excludes":
		l.handleExcludes(path, n)
	case n.Name == "aliases-pkg":
		l.handleAliases(n)
	case n.Name == "conflicts":
		l.handleConflicts(n)
	case n.Name == "policy":
		l.handlePolicy(n)
	case n.Name == "meta":
		l.handleMeta(n)
	case n.Name == "hooks":
		l.handleHooks(path, n)
	case n.Name == "experimental":
		l.handleExperimental(n)
	case n.Name == "pkg" || n.Name == "packages":
		return l.handlePackagesContainer(path, n, l.DefaultBackend)
	case backendSuffix(n.Name) != "":
		return l.handlePackagesFlat(path, n, backendSuffix(n.Name))
	default:
		// Forward-compatible: unknown top-level nodes are ignored, not
		// rejected, matching the backend loader's own posture.
	}
	return nil
}

// backendSuffix extracts <backend> from "pkg:<backend>" or
// "packages:<backend>" node names, returning "" for anything else.
func backendSuffix(name string) string {
	for _, prefix := range []string{"pkg:", "packages:"} {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			return name[len(prefix):]
		}
	}
	return ""
}

func (l *Loader) handleImports(basePath string, n *kdl.Node) error {
	dir := filepath.Dir(basePath)
	for _, child := range n.Children {
		rel := child.Name
		if rel == "" {
			rel = child.FirstArg()
		}
		if rel == "" {
			continue
		}
		target := rel
		if !filepath.IsAbs(target) {
			target = filepath.Join(dir, rel)
		}
		target, err := filepath.Abs(target)
		if err != nil {
			return declerrors.NewConfigError("Cannot resolve import", rel+": "+err.Error(), "", err)
		}
		if err := l.loadFile(target); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) handleExcludes(path string, n *kdl.Node) {
	for _, child := range n.Children {
		name := child.Name
		if name == "" {
			name = child.FirstArg()
		}
		backend := l.DefaultBackend
		if b, ok := child.Prop("backend"); ok {
			backend = b
		}
		l.cfg.Excludes[model.PackageId{Backend: model.Backend{Name: backend}, Name: name}] = true
	}
}

func (l *Loader) handleAliases(n *kdl.Node) {
	for _, child := range n.Children {
		src := child.Name
		dst := child.FirstArg()
		if src == "" || dst == "" {
			continue
		}
		l.cfg.Aliases[src] = dst // later entries win, consistent with map overwrite on accumulation order
	}
}

func (l *Loader) handleConflicts(n *kdl.Node) {
	for _, child := range n.Children {
		a := child.Name
		b := child.FirstArg()
		if a == "" || b == "" {
			continue
		}
		l.cfg.Conflicts = append(l.cfg.Conflicts, model.ConflictPair{A: a, B: b}.Normalized())
	}
}

func (l *Loader) handlePolicy(n *kdl.Node) {
	for _, child := range n.Children {
		switch child.Name {
		case "protected":
			if l.cfg.Policy.Protected == nil {
				l.cfg.Policy.Protected = map[string]bool{}
			}
			l.cfg.Policy.Protected[child.FirstArg()] = true
		case "orphans":
			l.cfg.Policy.Orphans = model.OrphanPolicy(child.FirstArg())
		case "require_backend":
			l.cfg.Policy.RequireBackend = child.FirstArg() == "true"
		case "forbid_hooks":
			l.cfg.Policy.ForbidHooks = child.FirstArg() == "true"
		case "on_duplicate":
			l.cfg.Policy.OnDuplicate = model.ViolationPolicy(child.FirstArg())
		case "on_conflict":
			l.cfg.Policy.OnConflict = model.ViolationPolicy(child.FirstArg())
		}
	}
}

// handleMeta is first-wins: only populated fields survive a second meta
// block, matching spec.md §4.4 merge semantics.
func (l *Loader) handleMeta(n *kdl.Node) {
	if l.cfg.Meta.Name != "" || l.cfg.Meta.Description != "" || len(l.cfg.Meta.Tags) > 0 {
		return
	}
	var meta model.Meta
	for _, child := range n.Children {
		switch child.Name {
		case "name":
			meta.Name = child.FirstArg()
		case "description":
			meta.Description = child.FirstArg()
		case "tags":
			for _, a := range child.Args {
				meta.Tags = append(meta.Tags, a.String())
			}
		}
	}
	l.cfg.Meta = meta
}

func (l *Loader) handleExperimental(n *kdl.Node) {
	for _, child := range n.Children {
		name := child.Name
		if name == "" {
			name = child.FirstArg()
		}
		l.cfg.ExperimentalFlags[name] = true
	}
}

func (l *Loader) handleHooks(path string, n *kdl.Node) {
	for _, child := range n.Children {
		h, warning := buildHookFromNode(child, path)
		if warning != "" {
			l.warn("%s", warning)
			continue
		}
		l.cfg.Hooks = append(l.cfg.Hooks, h)
	}
}

func buildHookFromNode(n *kdl.Node, sourceFile string) (model.Hook, string) {
	name := n.Name
	var phase model.HookPhase
	var command string
	sudo, required, ignoreErrors := false, false, false
	var conditions []model.Condition

	for _, field := range n.Children {
		switch field.Name {
		case "phase":
			phase = model.HookPhase(field.FirstArg())
		case "command":
			command = field.FirstArg()
		case "sudo":
			sudo = field.FirstArg() == "true"
		case "required":
			required = field.FirstArg() == "true"
		case "ignore_errors":
			ignoreErrors = field.FirstArg() == "true"
		case "condition":
			kind := model.ConditionKind(field.FirstArg())
			arg, _ := field.Prop("name")
			conditions = append(conditions, model.Condition{Kind: kind, Arg: arg})
		}
	}

	if phase == "" || command == "" {
		return model.Hook{}, fmt.Sprintf("hook %q: missing phase or command, skipping", name)
	}

	h, err := hooks.Build(name, phase, command, sudo, required, ignoreErrors, conditions, sourceFile)
	if err != nil {
		return model.Hook{}, fmt.Sprintf("hook %q: %v, skipping", name, err)
	}
	return h, ""
}

// handlePackagesContainer handles the "pkg"/"packages" top-level node,
// which may be flat (direct package children using defaultBackend) or
// nested (per-backend children, each containing package entries).
func (l *Loader) handlePackagesContainer(path string, n *kdl.Node, defaultBackend string) error {
	for _, child := range n.Children {
		if len(child.Children) > 0 {
			// Nested form: pkg { npm { firefox vlc } }
			if err := l.addPackageEntries(path, child.Name, child.Children); err != nil {
				return err
			}
			continue
		}
		if err := l.addPackageEntry(path, defaultBackend, child); err != nil {
			return err
		}
	}
	return nil
}

// handlePackagesFlat handles "packages:<backend>" / "pkg:<backend>":
// every child is a package entry for the named backend.
func (l *Loader) handlePackagesFlat(path string, n *kdl.Node, backend string) error {
	return l.addPackageEntries(path, backend, n.Children)
}

func (l *Loader) addPackageEntries(path, backend string, nodes []*kdl.Node) error {
	for _, n := range nodes {
		if err := l.addPackageEntry(path, backend, n); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) addPackageEntry(path, backend string, n *kdl.Node) error {
	name := n.Name
	if unsafeNamePattern.MatchString(name) || name == "" {
		return declerrors.NewInvalidPackageName(name)
	}
	entry := model.PackageEntry{
		Name:       name,
		Backend:    model.Backend{Name: backend},
		Variant:    n.PropOr("variant", ""),
		Version:    n.PropOr("version", ""),
		SourceFile: path,
		Options:    propsToMap(n),
	}
	l.cfg.Packages[backend] = append(l.cfg.Packages[backend], entry)
	id := model.PackageId{Backend: entry.Backend, Name: entry.Name}
	if _, exists := l.cfg.SourceFiles[id]; exists {
		l.warn("package %s declared more than once; keeping the first declaration's source attribution", id)
	} else {
		l.cfg.SourceFiles[id] = path
	}
	return nil
}

func propsToMap(n *kdl.Node) map[string]string {
	if len(n.Properties) == 0 {
		return nil
	}
	out := make(map[string]string, len(n.Properties))
	for k, v := range n.Properties {
		out[k] = v.String()
	}
	return out
}
