// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package fetch

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCandidatesFor_OwnerRepo(t *testing.T) {
	cands, err := CandidatesFor("declarch-community/dotfiles")
	if err != nil {
		t.Fatalf("CandidatesFor: %v", err)
	}
	want := []string{
		"https://raw.githubusercontent.com/declarch-community/dotfiles/main/declarch.kdl",
		"https://raw.githubusercontent.com/declarch-community/dotfiles/master/declarch.kdl",
		registryURL("dotfiles"),
	}
	if len(cands) != len(want) {
		t.Fatalf("cands = %+v, want %d entries", cands, len(want))
	}
	for i, w := range want {
		if cands[i].URL != w {
			t.Fatalf("cands[%d] = %q, want %q", i, cands[i].URL, w)
		}
	}
}

func TestCandidatesFor_Variant(t *testing.T) {
	cands, err := CandidatesFor("declarch-community/dotfiles:minimal")
	if err != nil {
		t.Fatalf("CandidatesFor: %v", err)
	}
	if !strings.HasSuffix(cands[0].URL, "/main/declarch-minimal.kdl") {
		t.Fatalf("cands[0] = %q, want variant filename", cands[0].URL)
	}
}

func TestCandidatesFor_ExplicitBranch(t *testing.T) {
	cands, err := CandidatesFor("declarch-community/dotfiles/develop")
	if err != nil {
		t.Fatalf("CandidatesFor: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("cands = %+v, want exactly one (explicit branch, no fallback)", cands)
	}
	want := "https://raw.githubusercontent.com/declarch-community/dotfiles/develop/declarch.kdl"
	if cands[0].URL != want {
		t.Fatalf("cands[0] = %q, want %q", cands[0].URL, want)
	}
}

func TestCandidatesFor_Gitlab(t *testing.T) {
	cands, err := CandidatesFor("gitlab.com/acme/infra:server/prod")
	if err != nil {
		t.Fatalf("CandidatesFor: %v", err)
	}
	want := "https://gitlab.com/acme/infra/-/raw/prod/declarch-server.kdl"
	if cands[0].URL != want {
		t.Fatalf("cands[0] = %q, want %q", cands[0].URL, want)
	}
}

func TestCandidatesFor_DirectURL(t *testing.T) {
	cands, err := CandidatesFor("https://example.com/my.kdl")
	if err != nil {
		t.Fatalf("CandidatesFor: %v", err)
	}
	if len(cands) != 1 || cands[0].URL != "https://example.com/my.kdl" {
		t.Fatalf("cands = %+v", cands)
	}
}

func TestCandidatesFor_InvalidSource(t *testing.T) {
	if _, err := CandidatesFor("way/too/many/segments/here"); err == nil {
		t.Fatal("expected error for malformed source")
	}
}

func TestUnsafeAddressReason(t *testing.T) {
	cases := []struct {
		ip     string
		unsafe bool
	}{
		{"127.0.0.1", true},
		{"169.254.1.1", true},
		{"10.0.0.5", true},
		{"172.16.0.1", true},
		{"192.168.1.1", true},
		{"224.0.0.1", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"fe80::1", true},
		{"fc00::1", true},
		{"8.8.8.8", false},
		{"93.184.216.34", false},
	}
	for _, c := range cases {
		ip := net.ParseIP(c.ip)
		if ip == nil {
			t.Fatalf("could not parse test IP %q", c.ip)
		}
		got := unsafeAddressReason(ip) != ""
		if got != c.unsafe {
			t.Errorf("unsafeAddressReason(%s) unsafe=%v, want %v", c.ip, got, c.unsafe)
		}
	}
}

func TestValidateURL_RejectsLoopback(t *testing.T) {
	f := New()
	u, _ := url.Parse("https://127.0.0.1/declarch.kdl")
	if err := f.validateURL(u); err == nil {
		t.Fatal("expected SSRFRefused for loopback address")
	}
}

func TestValidateURL_RejectsHTTPWithoutOptIn(t *testing.T) {
	f := New()
	f.allowInsecureFn = func() bool { return false }
	u, _ := url.Parse("http://example.com/declarch.kdl")
	if err := f.validateURL(u); err == nil {
		t.Fatal("expected SSRFRefused for http scheme without opt-in")
	}
}

func TestValidateURL_AllowsHTTPWithOptIn(t *testing.T) {
	f := New()
	f.allowInsecureFn = func() bool { return true }
	u, _ := url.Parse("http://example.com/declarch.kdl")
	// Scheme check passes; this may still fail DNS resolution in a
	// sandboxed test environment, but it must not fail with SSRFRefused
	// on the scheme check specifically.
	err := f.validateURL(u)
	if err != nil && strings.Contains(err.Error(), "scheme must be https") {
		t.Fatalf("unexpected scheme rejection with opt-in set: %v", err)
	}
}

func TestFetchOne_OKBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`package "firefox" backend="pacman"`))
	}))
	defer srv.Close()

	f := New()
	// The test server listens on loopback, which the SSRF-hardened dialer
	// refuses; use the server's own client for this transport-level test.
	f.client = srv.Client()
	data, status, err := f.fetchOne(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetchOne: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(string(data), "firefox") {
		t.Fatalf("data = %q", data)
	}
}

func TestFetchOne_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New()
	f.client = srv.Client() // loopback server; see TestFetchOne_OKBody
	_, status, err := f.fetchOne(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetchOne: %v", err)
	}
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
}

func TestFetchOne_SizeCapExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	f := New(WithMaxBytes(16))
	f.client = srv.Client() // loopback server; see TestFetchOne_OKBody
	_, _, err := f.fetchOne(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for response exceeding max size")
	}
}

func TestWriteConfig_ValidBodyWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "declarch.kdl")
	body := []byte(`package "firefox" backend="pacman"`)

	if err := WriteConfig(path, body); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(body) {
		t.Fatalf("got = %q", got)
	}
}

func TestWriteConfig_InvalidBodyRejectedBeforeWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "declarch.kdl")
	previous := []byte(`package "vlc" backend="pacman"`)
	if err := os.WriteFile(path, previous, 0o640); err != nil {
		t.Fatalf("seed previous: %v", err)
	}

	if err := WriteConfig(path, []byte("{{{not kdl at all")); err == nil {
		t.Fatal("expected parse-check failure for invalid KDL")
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(previous) {
		t.Fatalf("previous file was modified: got = %q", got)
	}
}
