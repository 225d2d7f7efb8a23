// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package parseout turns raw backend stdout into model.PackageMetadata /
// model.SearchHit rows, one stateless function per output shape (spec.md
// §4.4, §5). Every function here is pure — no filesystem, no subprocess,
// no global state — so each format has its own table-driven test with
// nothing to fake.
package parseout

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/nixval/declarch/pkg/model"
)

// ansiPattern strips ANSI escape/color codes some backends (notably
// cargo and npm) emit even when not attached to a TTY.
var ansiPattern = regexp.MustCompile("\x1b\\[[0-9;]*[a-zA-Z]")

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// ParseList parses a backend's `list` output into a name -> metadata map,
// matching model.InstalledSnapshot.Packages.
func ParseList(cfg model.ParseConfig, raw string) (map[string]model.PackageMetadata, error) {
	rows, err := parseRows(cfg, raw)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.PackageMetadata, len(rows))
	for _, row := range rows {
		if row.name == "" {
			continue
		}
		out[row.name] = model.PackageMetadata{Version: row.version, Variant: row.variant}
	}
	return out, nil
}

// ParseSearch parses a backend's `search` output into ordered SearchHits,
// preserving the backend's own relevance ordering.
func ParseSearch(cfg model.ParseConfig, raw string) ([]model.SearchHit, error) {
	rows, err := parseRows(cfg, raw)
	if err != nil {
		return nil, err
	}
	hits := make([]model.SearchHit, 0, len(rows))
	for _, row := range rows {
		if row.name == "" {
			continue
		}
		hits = append(hits, model.SearchHit{Name: row.name, Version: row.version, Desc: row.desc})
	}
	return hits, nil
}

type row struct {
	name, version, desc, variant string
}

func parseRows(cfg model.ParseConfig, raw string) ([]row, error) {
	switch cfg.Format {
	case model.FormatWhitespace:
		return parseWhitespace(cfg, raw, false)
	case model.FormatTSV:
		return parseWhitespace(cfg, raw, true)
	case model.FormatJSON:
		return parseJSON(cfg, raw)
	case model.FormatJSONLines:
		return parseJSONLines(cfg, raw)
	case model.FormatNPMJSON:
		return parseNPMJSON(cfg, raw)
	case model.FormatJSONObjectKeys:
		return parseJSONObjectKeys(cfg, raw)
	case model.FormatRegex:
		return parseRegex(cfg, raw)
	default:
		return nil, nil
	}
}

func splitLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	var lines []string
	for _, l := range strings.Split(raw, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func parseWhitespace(cfg model.ParseConfig, raw string, tab bool) ([]row, error) {
	var rows []row
	for _, line := range splitLines(raw) {
		var fields []string
		if tab {
			fields = strings.Split(line, "\t")
			for i := range fields {
				fields[i] = strings.TrimSpace(fields[i])
			}
		} else {
			fields = strings.Fields(line)
		}
		r := row{}
		if cfg.HasNameCol && cfg.NameCol < len(fields) {
			r.name = fields[cfg.NameCol]
		} else if len(fields) > 0 {
			r.name = fields[0]
		}
		if cfg.HasVerCol && cfg.VersionCol < len(fields) {
			r.version = fields[cfg.VersionCol]
		} else if len(fields) > 1 {
			r.version = fields[1]
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// navigate walks a dotted path ("a.b.c") into a decoded JSON value,
// returning nil if any segment is missing. An empty path is the identity.
func navigate(v any, path string) any {
	if path == "" {
		return v
	}
	for _, seg := range strings.Split(path, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return v
}

func objectToRow(cfg model.ParseConfig, obj map[string]any, fallbackName string) row {
	r := row{name: fallbackName}
	if cfg.NameKey != "" {
		if s, ok := obj[cfg.NameKey].(string); ok {
			r.name = s
		}
	}
	if cfg.VersionKey != "" {
		r.version = stringify(obj[cfg.VersionKey])
	}
	if cfg.DescKey != "" {
		if s, ok := obj[cfg.DescKey].(string); ok {
			r.desc = s
		}
	}
	return r
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return trimFloat(t)
	case nil:
		return ""
	default:
		return ""
	}
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseJSON(cfg model.ParseConfig, raw string) ([]row, error) {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	v := navigate(doc, cfg.Path)
	switch t := v.(type) {
	case []any:
		var rows []row
		for _, item := range t {
			if obj, ok := item.(map[string]any); ok {
				rows = append(rows, objectToRow(cfg, obj, ""))
			}
		}
		return rows, nil
	case map[string]any:
		return []row{objectToRow(cfg, t, "")}, nil
	default:
		return nil, nil
	}
}

func parseJSONLines(cfg model.ParseConfig, raw string) ([]row, error) {
	var rows []row
	for _, line := range splitLines(raw) {
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue // a malformed progress/status line; skip rather than fail the whole batch
		}
		rows = append(rows, objectToRow(cfg, obj, ""))
	}
	return rows, nil
}

// parseNPMJSON handles `npm ls --json`'s {"dependencies": {"<name>":
// {"version": "..."}}} shape: object keys ARE the package names.
func parseNPMJSON(cfg model.ParseConfig, raw string) ([]row, error) {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	return objectKeysToRows(cfg, navigate(doc, cfg.Path)), nil
}

// parseJSONObjectKeys is the general form of the same shape for other
// backends that key results by name rather than returning an array.
func parseJSONObjectKeys(cfg model.ParseConfig, raw string) ([]row, error) {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	return objectKeysToRows(cfg, navigate(doc, cfg.Path)), nil
}

func objectKeysToRows(cfg model.ParseConfig, v any) []row {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	rows := make([]row, 0, len(m))
	for key, val := range m {
		obj, _ := val.(map[string]any)
		r := objectToRow(cfg, obj, key)
		r.name = key // the object key is always authoritative for this shape
		rows = append(rows, r)
	}
	return rows
}

// groupIndex resolves a configured group reference, which may be a
// numeric capture index ("1", "2", ...) or a named group, to its index
// within re. fallback is used when ref is empty.
func groupIndex(re *regexp.Regexp, ref string, fallback int) int {
	if ref == "" {
		return fallback
	}
	if n, err := strconv.Atoi(ref); err == nil {
		return n
	}
	return re.SubexpIndex(ref)
}

func parseRegex(cfg model.ParseConfig, raw string) ([]row, error) {
	re, err := regexp.Compile(cfg.Regex)
	if err != nil {
		return nil, err
	}
	nameIdx := groupIndex(re, cfg.NameGroup, 1)
	verIdx := groupIndex(re, cfg.VerGroup, 2)
	descIdx := groupIndex(re, cfg.DescGroup, 0)

	var rows []row
	for _, line := range splitLines(stripANSI(raw)) {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		r := row{}
		if nameIdx > 0 && nameIdx < len(m) {
			r.name = m[nameIdx]
		}
		if verIdx > 0 && verIdx < len(m) {
			r.version = m[verIdx]
		}
		if descIdx > 0 && descIdx < len(m) {
			r.desc = m[descIdx]
		}
		rows = append(rows, r)
	}
	return rows, nil
}
