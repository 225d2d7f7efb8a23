// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package kdl

import "testing"

func TestSnippetAt_FirstLine(t *testing.T) {
	src := []byte("pkg firefox\npkg vlc\n")
	if got := snippetAt(src, 1); got != "pkg firefox" {
		t.Fatalf("snippetAt(1) = %q", got)
	}
}

func TestSnippetAt_SecondLine(t *testing.T) {
	src := []byte("pkg firefox\npkg vlc\n")
	if got := snippetAt(src, 2); got != "pkg vlc" {
		t.Fatalf("snippetAt(2) = %q", got)
	}
}

func TestSnippetAt_OutOfRange(t *testing.T) {
	src := []byte("pkg firefox\n")
	if got := snippetAt(src, 99); got != "" {
		t.Fatalf("snippetAt(99) = %q, want empty", got)
	}
}

func TestSnippetAt_ZeroLine(t *testing.T) {
	src := []byte("pkg firefox\n")
	if got := snippetAt(src, 0); got != "" {
		t.Fatalf("snippetAt(0) = %q, want empty", got)
	}
}

func TestNodeFirstArg_Empty(t *testing.T) {
	n := &Node{Name: "pkg"}
	if got := n.FirstArg(); got != "" {
		t.Fatalf("FirstArg() = %q, want empty", got)
	}
}

func TestNodeFirstArg_Present(t *testing.T) {
	n := &Node{Name: "pkg", Args: []Value{{raw: "firefox"}}}
	if got := n.FirstArg(); got != "firefox" {
		t.Fatalf("FirstArg() = %q, want firefox", got)
	}
}

func TestNodePropOr_Fallback(t *testing.T) {
	n := &Node{Name: "pkg", Properties: map[string]Value{}}
	if got := n.PropOr("variant", "stable"); got != "stable" {
		t.Fatalf("PropOr = %q, want stable", got)
	}
}

func TestNodePropOr_Present(t *testing.T) {
	n := &Node{Name: "pkg", Properties: map[string]Value{"variant": {raw: "git"}}}
	if got := n.PropOr("variant", "stable"); got != "git" {
		t.Fatalf("PropOr = %q, want git", got)
	}
}

func TestValueString_Nil(t *testing.T) {
	v := Value{}
	if got := v.String(); got != "" {
		t.Fatalf("String() = %q, want empty", got)
	}
}

func TestValueString_Number(t *testing.T) {
	v := Value{raw: 3.0}
	if got := v.String(); got != "3" {
		t.Fatalf("String() = %q, want 3", got)
	}
}
