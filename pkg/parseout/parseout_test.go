// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package parseout

import (
	"testing"

	"github.com/nixval/declarch/pkg/model"
)

func TestParseList_Whitespace(t *testing.T) {
	cfg := model.ParseConfig{Format: model.FormatWhitespace, HasNameCol: true, HasVerCol: true, NameCol: 0, VersionCol: 1}
	raw := "firefox 128.0-1\nvlc 3.0.20-2\n"
	got, err := ParseList(cfg, raw)
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	if got["firefox"].Version != "128.0-1" || got["vlc"].Version != "3.0.20-2" {
		t.Fatalf("got %+v", got)
	}
}

func TestParseList_TSV(t *testing.T) {
	cfg := model.ParseConfig{Format: model.FormatTSV, HasNameCol: true, HasVerCol: true, NameCol: 0, VersionCol: 1}
	raw := "org.mozilla.firefox\t128.0\norg.videolan.VLC\t3.0.20\n"
	got, err := ParseList(cfg, raw)
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	if len(got) != 2 || got["org.mozilla.firefox"].Version != "128.0" {
		t.Fatalf("got %+v", got)
	}
}

func TestParseList_JSON_Array(t *testing.T) {
	cfg := model.ParseConfig{Format: model.FormatJSON, NameKey: "name", VersionKey: "version"}
	raw := `[{"name":"requests","version":"2.31.0"},{"name":"flask","version":"3.0.0"}]`
	got, err := ParseList(cfg, raw)
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	if got["requests"].Version != "2.31.0" || got["flask"].Version != "3.0.0" {
		t.Fatalf("got %+v", got)
	}
}

func TestParseList_JSONLines(t *testing.T) {
	cfg := model.ParseConfig{Format: model.FormatJSONLines, NameKey: "name", VersionKey: "version"}
	raw := "{\"name\":\"a\",\"version\":\"1\"}\n{\"name\":\"b\",\"version\":\"2\"}\n"
	got, err := ParseList(cfg, raw)
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestParseList_NPMJSON(t *testing.T) {
	cfg := model.ParseConfig{Format: model.FormatNPMJSON, Path: "dependencies", VersionKey: "version"}
	raw := `{"dependencies":{"typescript":{"version":"5.4.0"},"eslint":{"version":"9.0.0"}}}`
	got, err := ParseList(cfg, raw)
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	if got["typescript"].Version != "5.4.0" || got["eslint"].Version != "9.0.0" {
		t.Fatalf("got %+v", got)
	}
}

func TestParseList_JSONObjectKeys(t *testing.T) {
	cfg := model.ParseConfig{Format: model.FormatJSONObjectKeys, VersionKey: "version"}
	raw := `{"curl":{"version":"8.7.1"}}`
	got, err := ParseList(cfg, raw)
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	if got["curl"].Version != "8.7.1" {
		t.Fatalf("got %+v", got)
	}
}

func TestParseList_Regex(t *testing.T) {
	cfg := model.ParseConfig{Format: model.FormatRegex, Regex: `^(\S+)\sv(\S+):`, NameGroup: "1", VerGroup: "2"}
	raw := "ripgrep v14.1.0:\n    rg\nbat v0.24.0:\n    bat\n"
	got, err := ParseList(cfg, raw)
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	if got["ripgrep"].Version != "14.1.0" || got["bat"].Version != "0.24.0" {
		t.Fatalf("got %+v", got)
	}
}

func TestParseSearch_PreservesOrder(t *testing.T) {
	cfg := model.ParseConfig{Format: model.FormatWhitespace, HasNameCol: true, HasVerCol: true}
	raw := "zebra 1.0\napple 2.0\n"
	hits, err := ParseSearch(cfg, raw)
	if err != nil {
		t.Fatalf("ParseSearch: %v", err)
	}
	if len(hits) != 2 || hits[0].Name != "zebra" || hits[1].Name != "apple" {
		t.Fatalf("got %+v", hits)
	}
}

func TestParseList_RegexStripsANSI(t *testing.T) {
	cfg := model.ParseConfig{Format: model.FormatRegex, Regex: `^(\S+)\s=\s"(\S+)"`, NameGroup: "1", VerGroup: "2"}
	raw := "\x1b[32manyhow\x1b[0m = \"1.0.86\"\n"
	got, err := ParseList(cfg, raw)
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	if got["anyhow"].Version != "1.0.86" {
		t.Fatalf("got %+v", got)
	}
}

func TestParseList_EmptyRawYieldsEmptyMap(t *testing.T) {
	cfg := model.ParseConfig{Format: model.FormatWhitespace}
	got, err := ParseList(cfg, "")
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %+v, want empty", got)
	}
}
