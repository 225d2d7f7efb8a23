// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// ParseFormat is the normalized enum of output-parser shapes C5 supports.
type ParseFormat string

const (
	FormatWhitespace     ParseFormat = "whitespace"
	FormatTSV            ParseFormat = "tsv"
	FormatJSON           ParseFormat = "json"
	FormatJSONLines      ParseFormat = "json_lines"
	FormatNPMJSON        ParseFormat = "npm_json"
	FormatJSONObjectKeys ParseFormat = "json_object_keys"
	FormatRegex          ParseFormat = "regex"
)

// ParseConfig configures one output parser (list or search) for a backend.
type ParseConfig struct {
	Format ParseFormat

	// whitespace / tsv
	NameCol    int
	VersionCol int
	HasNameCol bool
	HasVerCol  bool

	// json / json_lines / npm_json / json_object_keys
	Path       string // dotted path to navigate before extracting rows
	NameKey    string
	VersionKey string
	DescKey    string

	// regex
	Regex      string
	NameGroup  string
	VerGroup   string
	DescGroup  string
}

// CommandTemplate is one tokenized command string, e.g. the backend's
// `install` line. Placeholders are recognized by the loader and expanded
// by the executor (C6) — never by shell interpolation.
type CommandTemplate struct {
	Raw    string
	Tokens []CommandToken
}

// CommandToken is either a literal argv element or one of the three
// recognized placeholders.
type CommandToken struct {
	Literal     string
	IsBinary    bool // {binary}
	IsPackages  bool // {packages}
	IsQuery     bool // {query}
}

// BackendConfig is the declarative definition of one backend (spec.md §3,
// §4.3). Loaded from embedded or user KDL files by C3, executed by C6.
type BackendConfig struct {
	Name     string
	Binary   []string // one or more candidate binaries, in preference order
	Fallback string   // name of another backend to defer to if unavailable
	Env      map[string]string

	List        *CommandTemplate
	Install     *CommandTemplate
	Remove      *CommandTemplate
	Search      *CommandTemplate
	SearchLocal *CommandTemplate
	Update      *CommandTemplate
	Upgrade     *CommandTemplate
	Purge       *CommandTemplate
	Autoremove  *CommandTemplate
	CacheClean  *CommandTemplate

	ListParser   ParseConfig
	SearchParser ParseConfig

	NeedsSudo bool
	NoConfirm string // token appended to install/remove unless template already has it

	Title       string
	Description string
	Maintainer  string
	Platforms   []string
	InstallGuide string
}
