// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend turns backend definition files (spec.md §4.3) into
// model.BackendConfig values and runs them (spec.md §5). Definitions come
// from two sources: the embedded official set (pkg/backend/embedded) and
// user files under config_dir/backends — the latter may override or add
// to the former, last-loaded-wins, matching the config loader's own
// override discipline (C4).
package backend

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/pkg/kdl"
	"github.com/nixval/declarch/pkg/model"
)

// commandFields lists every top-level command node a backend file may
// define, mapped to the BackendConfig field that stores it.
var commandFields = map[string]func(*model.BackendConfig) **model.CommandTemplate{
	"list":         func(c *model.BackendConfig) **model.CommandTemplate { return &c.List },
	"install":      func(c *model.BackendConfig) **model.CommandTemplate { return &c.Install },
	"remove":       func(c *model.BackendConfig) **model.CommandTemplate { return &c.Remove },
	"search":       func(c *model.BackendConfig) **model.CommandTemplate { return &c.Search },
	"search_local": func(c *model.BackendConfig) **model.CommandTemplate { return &c.SearchLocal },
	"update":       func(c *model.BackendConfig) **model.CommandTemplate { return &c.Update },
	"upgrade":      func(c *model.BackendConfig) **model.CommandTemplate { return &c.Upgrade },
	"purge":        func(c *model.BackendConfig) **model.CommandTemplate { return &c.Purge },
	"autoremove":   func(c *model.BackendConfig) **model.CommandTemplate { return &c.Autoremove },
	"cache_clean":  func(c *model.BackendConfig) **model.CommandTemplate { return &c.CacheClean },
}

// LoadDefinition converts one parsed top-level `backend "<name>" { ... }`
// node into a BackendConfig. path is carried through only for error spans.
func LoadDefinition(path string, node *kdl.Node) (*model.BackendConfig, error) {
	if node.Name != "backend" {
		return nil, declerrors.NewConfigError("Invalid backend definition file",
			fmt.Sprintf("%s: expected a \"backend\" node, found %q", node.Span.String(), node.Name),
			"Backend files must contain only top-level backend { ... } nodes", nil)
	}
	name := node.FirstArg()
	if name == "" {
		return nil, declerrors.NewConfigError("Invalid backend definition file",
			fmt.Sprintf("%s: backend node missing its name argument", node.Span.String()),
			"Write backend \"<name>\" { ... }", nil)
	}

	cfg := &model.BackendConfig{
		Name:      name,
		Env:       map[string]string{},
		NoConfirm: "",
	}

	for _, child := range node.Children {
		if err := applyBackendNode(path, cfg, child); err != nil {
			return nil, err
		}
	}

	if len(cfg.Binary) == 0 {
		return nil, declerrors.NewConfigError("Invalid backend definition file",
			fmt.Sprintf("%s: backend %q declares no binary", node.Span.String(), name),
			"Add a binary \"<name>\" node to the backend definition", nil)
	}
	if err := validateDefinition(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateDefinition enforces spec.md §3's load-time invariants: install
// must be able to address packages, remove (if declared) likewise,
// search/search_local must be able to address a query, a multi-binary
// backend's templates must place the binary, and declared parsers must
// carry the keys they need to extract a name. Every violation is an
// InvalidBackendConfig naming the offending field.
func validateDefinition(cfg *model.BackendConfig) error {
	invalid := func(field, reason string) error {
		return declerrors.NewInvalidBackendConfig(cfg.Name, field, reason)
	}

	hasPackages := func(tok model.CommandToken) bool { return tok.IsPackages }
	hasQuery := func(tok model.CommandToken) bool { return tok.IsQuery }
	hasBinary := func(tok model.CommandToken) bool { return tok.IsBinary }

	if cfg.Install == nil {
		return invalid("install", "backend declares no install command")
	}
	if !hasPlaceholder(cfg.Install, hasPackages) {
		return invalid("install", "install command must contain {packages}")
	}
	if cfg.Remove != nil && !hasPlaceholder(cfg.Remove, hasPackages) {
		return invalid("remove", "remove command must contain {packages}")
	}
	if cfg.Search != nil && !hasPlaceholder(cfg.Search, hasQuery) {
		return invalid("search", "search command must contain {query}")
	}
	if cfg.SearchLocal != nil && !hasPlaceholder(cfg.SearchLocal, hasQuery) {
		return invalid("search_local", "search_local command must contain {query}")
	}

	if len(cfg.Binary) > 1 {
		for field, tpl := range commandTemplates(cfg) {
			if tpl != nil && !hasPlaceholder(tpl, hasBinary) {
				return invalid(field, "backend declares multiple binaries but this command never places {binary}")
			}
		}
	}

	for field, tpl := range commandTemplates(cfg) {
		if tpl == nil {
			continue
		}
		for _, tok := range tpl.Tokens {
			if tok.IsBinary || tok.IsPackages || tok.IsQuery {
				continue
			}
			if reject := shellMetacharacters.FindString(tok.Literal); reject != "" {
				return invalid(field, fmt.Sprintf("literal token %q contains shell metacharacter %q", tok.Literal, reject))
			}
		}
	}

	if cfg.ListParser.Format != "" {
		if err := validateParser("list_parser", cfg.ListParser, invalid); err != nil {
			return err
		}
	}
	if cfg.SearchParser.Format != "" {
		if err := validateParser("search_parser", cfg.SearchParser, invalid); err != nil {
			return err
		}
	}
	return nil
}

// commandTemplates names every command field alongside the template it
// holds (nil included), for passes that need to walk all of them.
func commandTemplates(cfg *model.BackendConfig) map[string]*model.CommandTemplate {
	return map[string]*model.CommandTemplate{
		"list": cfg.List, "install": cfg.Install, "remove": cfg.Remove,
		"search": cfg.Search, "search_local": cfg.SearchLocal,
		"update": cfg.Update, "upgrade": cfg.Upgrade, "purge": cfg.Purge,
		"autoremove": cfg.Autoremove, "cache_clean": cfg.CacheClean,
	}
}

func hasPlaceholder(tpl *model.CommandTemplate, match func(model.CommandToken) bool) bool {
	for _, tok := range tpl.Tokens {
		if match(tok) {
			return true
		}
	}
	return false
}

// shellMetacharacters matches characters that would be meaningful to a
// shell. Literal tokens never reach a shell (spec.md §5, property P5) but
// a backend definition that contains one is almost always an authoring
// mistake carried over from a shell-based package manager wrapper.
var shellMetacharacters = regexp.MustCompile("[;&|$`'\"(){}<>*?\\\\]")

func validateParser(field string, pc model.ParseConfig, invalid func(string, string) error) error {
	switch pc.Format {
	// json/json_lines extract a name field explicitly; npm_json and
	// json_object_keys derive the name from the object's own keys, so
	// they carry no name_key (pkg/parseout.parseNPMJSON/parseJSONObjectKeys).
	case model.FormatJSON, model.FormatJSONLines:
		if pc.NameKey == "" {
			return invalid(field, "json parser must declare name_key")
		}
	case model.FormatRegex:
		if pc.Regex == "" || pc.NameGroup == "" {
			return invalid(field, "regex parser must declare regex and name_group")
		}
	}
	return nil
}

func applyBackendNode(path string, cfg *model.BackendConfig, n *kdl.Node) error {
	switch n.Name {
	case "binary":
		for _, a := range n.Args {
			cfg.Binary = append(cfg.Binary, a.String())
		}
		if len(cfg.Binary) == 0 && n.FirstArg() != "" {
			cfg.Binary = append(cfg.Binary, n.FirstArg())
		}
	case "fallback":
		cfg.Fallback = n.FirstArg()
	case "needs_sudo":
		cfg.NeedsSudo = n.FirstArg() == "true"
	case "no_confirm":
		cfg.NoConfirm = n.FirstArg()
	case "env":
		key := n.FirstArg()
		if val, ok := n.Prop("value"); ok && key != "" {
			cfg.Env[key] = val
		}
	case "title":
		cfg.Title = n.FirstArg()
	case "description":
		cfg.Description = n.FirstArg()
	case "maintainer":
		cfg.Maintainer = n.FirstArg()
	case "install_guide":
		cfg.InstallGuide = n.FirstArg()
	case "platforms":
		for _, a := range n.Args {
			cfg.Platforms = append(cfg.Platforms, a.String())
		}
	case "list_parser":
		cfg.ListParser = parseParserNode(n)
	case "search_parser":
		cfg.SearchParser = parseParserNode(n)
	default:
		if field, ok := commandFields[n.Name]; ok {
			raw := n.FirstArg()
			if raw == "" {
				return declerrors.NewConfigError("Invalid backend definition file",
					fmt.Sprintf("%s: backend %q: %s has no command string", n.Span.String(), cfg.Name, n.Name),
					"Give the command node a single quoted command-template string", nil)
			}
			tpl, err := tokenizeTemplate(raw)
			if err != nil {
				return declerrors.NewConfigError("Invalid backend definition file",
					fmt.Sprintf("%s: backend %q: %s: %v", n.Span.String(), cfg.Name, n.Name, err),
					"Fix the command template", nil)
			}
			*field(cfg) = tpl
			return nil
		}
		// unknown nodes are ignored rather than rejected, matching the
		// teacher's forward-compatible KDL posture in cmd/cie/config.go.
	}
	return nil
}

// tokenizeTemplate splits a command string on whitespace, recognizing the
// three placeholders {binary}/{packages}/{query} and leaving every other
// token a literal argv element. No shell metacharacter is ever special —
// there is no shell involved (spec.md §5, property P5).
func tokenizeTemplate(raw string) (*model.CommandTemplate, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command template")
	}
	tpl := &model.CommandTemplate{Raw: raw}
	for _, f := range fields {
		switch f {
		case "{binary}":
			tpl.Tokens = append(tpl.Tokens, model.CommandToken{IsBinary: true})
		case "{packages}":
			tpl.Tokens = append(tpl.Tokens, model.CommandToken{IsPackages: true})
		case "{query}":
			tpl.Tokens = append(tpl.Tokens, model.CommandToken{IsQuery: true})
		default:
			tpl.Tokens = append(tpl.Tokens, model.CommandToken{Literal: f})
		}
	}
	return tpl, nil
}

func parseParserNode(n *kdl.Node) model.ParseConfig {
	pc := model.ParseConfig{Format: model.ParseFormat(n.FirstArg())}
	if v, ok := n.Prop("name_col"); ok {
		if i, err := strconv.Atoi(v); err == nil {
			pc.NameCol, pc.HasNameCol = i, true
		}
	}
	if v, ok := n.Prop("version_col"); ok {
		if i, err := strconv.Atoi(v); err == nil {
			pc.VersionCol, pc.HasVerCol = i, true
		}
	}
	pc.Path, _ = n.Prop("path")
	pc.NameKey, _ = n.Prop("name_key")
	pc.VersionKey, _ = n.Prop("version_key")
	pc.DescKey, _ = n.Prop("desc_key")
	pc.Regex, _ = n.Prop("regex")
	pc.NameGroup, _ = n.Prop("name_group")
	pc.VerGroup, _ = n.Prop("ver_group")
	pc.DescGroup, _ = n.Prop("desc_group")
	return pc
}
