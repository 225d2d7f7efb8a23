// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package hooks

import "testing"

func TestTokenize_Simple(t *testing.T) {
	got, err := Tokenize("notify-send hello")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []string{"notify-send", "hello"}
	assertTokens(t, got, want)
}

func TestTokenize_QuotedArgument(t *testing.T) {
	got, err := Tokenize(`notify-send "hello world"`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []string{"notify-send", "hello world"}
	assertTokens(t, got, want)
}

func TestTokenize_SingleQuoted(t *testing.T) {
	got, err := Tokenize(`echo 'a b c'`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []string{"echo", "a b c"}
	assertTokens(t, got, want)
}

func TestTokenize_UnterminatedQuoteErrors(t *testing.T) {
	if _, err := Tokenize(`echo "unterminated`); err == nil {
		t.Fatal("expected error for unterminated quote")
	}
}

func TestTokenize_EmptyErrors(t *testing.T) {
	if _, err := Tokenize("   "); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestValidateAllowlist_RejectsShell(t *testing.T) {
	for _, shell := range []string{"sh", "bash", "/bin/sh", "/usr/bin/zsh"} {
		if err := ValidateAllowlist([]string{shell, "-c", "rm -rf /"}); err == nil {
			t.Fatalf("expected rejection of %q", shell)
		}
	}
}

func TestValidateAllowlist_AcceptsOrdinaryBinary(t *testing.T) {
	if err := ValidateAllowlist([]string{"notify-send", "done"}); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestValidateAllowlist_AcceptsAbsolutePath(t *testing.T) {
	if err := ValidateAllowlist([]string{"/usr/local/bin/my-hook"}); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestValidateAllowlist_RejectsMetacharacters(t *testing.T) {
	if err := ValidateAllowlist([]string{"notify-send; rm -rf /"}); err == nil {
		t.Fatal("expected rejection of embedded shell metacharacters")
	}
}

func TestValidateAllowlist_RejectsSudo(t *testing.T) {
	for _, sudo := range []string{"sudo", "/usr/bin/sudo"} {
		if err := ValidateAllowlist([]string{sudo, "rm", "-rf", "/"}); err == nil {
			t.Fatalf("expected rejection of %q", sudo)
		}
	}
}

func TestValidateAllowlist_RejectsPathTraversalInAnyToken(t *testing.T) {
	if err := ValidateAllowlist([]string{"cat", "../../etc/shadow"}); err == nil {
		t.Fatal("expected rejection of path traversal in a non-first token")
	}
}

func TestValidateAllowlist_RejectsUnsafeCharsInAnyToken(t *testing.T) {
	for _, tok := range []string{"$HOME", "`whoami`", "a{b}c", "~root", "FOO=bar", "user@host"} {
		if err := ValidateAllowlist([]string{"notify-send", tok}); err == nil {
			t.Fatalf("expected rejection of unsafe argument %q", tok)
		}
	}
}

func assertTokens(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("tokens = %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("tokens = %v, want %v", got, want)
		}
	}
}
