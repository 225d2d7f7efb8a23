// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package errors implements declarch's error taxonomy: every failure the
// core surfaces is one of a fixed set of Kinds, carrying a human title, a
// detail line, an actionable hint, and an optional wrapped cause. Callers
// never panic and never return a bare error from a user-facing path; they
// construct a *DeclarchError via one of the New*Error constructors.
package errors

import (
	stderrors "errors"
	"fmt"
	"os"
)

// Kind identifies a taxonomy entry from spec.md §7. It is not a type name;
// it is a stable string used in machine envelopes and exit-code mapping.
type Kind string

const (
	KindInvalidConfig               Kind = "InvalidConfig"
	KindCyclicImport                Kind = "CyclicImport"
	KindInvalidBackendConfig        Kind = "InvalidBackendConfig"
	KindBackendNotFound             Kind = "BackendNotFound"
	KindBinaryNotFound              Kind = "BinaryNotFound"
	KindBackendError                Kind = "BackendError"
	KindInvalidPackageName          Kind = "InvalidPackageName"
	KindAmbiguousVariant            Kind = "AmbiguousVariant"
	KindConfigConflict              Kind = "ConfigConflict"
	KindProtectedPackageRemoval     Kind = "ProtectedPackageRemovalAttempt"
	KindStateParseError             Kind = "StateParseError"
	KindStateLockTimeout            Kind = "StateLockTimeout"
	KindStateRecovered              Kind = "StateRecovered"
	KindRemoteFetchFailed           Kind = "RemoteFetchFailed"
	KindSSRFRefused                 Kind = "SSRFRefused"
	KindHookValidationFailed        Kind = "HookValidationFailed"
	KindHookRequiredFailed          Kind = "HookRequiredFailed"
	KindHookWarning                 Kind = "HookWarning"
	KindInterrupted                 Kind = "Interrupted"
	KindContractNotSupported        Kind = "ContractNotSupported"
	KindConfigIO                    Kind = "ConfigIO" // ambient: unclassified config read/write failure
	KindInput                       Kind = "Input"    // ambient: bad user input / missing confirmation
	KindPermission                  Kind = "Permission"
	KindInternal                    Kind = "Internal"
	KindNetwork                     Kind = "Network"
)

// ExitCode returns the process exit code spec.md §6 assigns to this Kind.
// Most kinds are plain runtime/configuration errors (exit 1); Interrupted
// maps to 130. Nothing in the taxonomy currently maps to 2 on its own —
// that code is reserved for strict-mode warning promotion, decided by the
// caller (lint --strict), not by the error itself.
func (k Kind) ExitCode() int {
	if k == KindInterrupted {
		return 130
	}
	return 1
}

// DeclarchError is the concrete error type returned by every fallible
// operation in the core. It is always constructed through a New*Error
// function so that Kind and the human-facing fields stay in sync.
type DeclarchError struct {
	Kind   Kind
	Title  string
	Detail string
	Hint   string
	Cause  error
}

func (e *DeclarchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	return e.Title
}

func (e *DeclarchError) Unwrap() error { return e.Cause }

// As reports whether err is (or wraps) a *DeclarchError of the given Kind.
func As(err error, kind Kind) bool {
	var de *DeclarchError
	if stderrors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

func new(kind Kind, title, detail, hint string, cause error) *DeclarchError {
	return &DeclarchError{Kind: kind, Title: title, Detail: detail, Hint: hint, Cause: cause}
}

// Taxonomy constructors, one per spec.md §7 Kind.

func NewInvalidConfig(title, detail, hint string, cause error) *DeclarchError {
	return new(KindInvalidConfig, title, detail, hint, cause)
}

func NewCyclicImport(path string) *DeclarchError {
	return new(KindCyclicImport, "Cyclic import detected",
		fmt.Sprintf("%s is imported as part of its own import chain", path),
		"Remove the circular import between these modules", nil)
}

func NewInvalidBackendConfig(name, field, reason string) *DeclarchError {
	return new(KindInvalidBackendConfig, "Invalid backend definition",
		fmt.Sprintf("backend %q: field %q: %s", name, field, reason),
		"Fix the backend definition file and re-run the command", nil)
}

func NewBackendNotFound(name string, suggestions []string) *DeclarchError {
	hint := "Check the backend name for typos"
	if len(suggestions) > 0 {
		hint = fmt.Sprintf("Did you mean: %v?", suggestions)
	}
	return new(KindBackendNotFound, "Backend not found",
		fmt.Sprintf("no backend named %q is registered", name), hint, nil)
}

func NewBinaryNotFound(backend string, binariesTried []string) *DeclarchError {
	return new(KindBinaryNotFound, "Backend binary not found",
		fmt.Sprintf("backend %q: none of %v are on PATH", backend, binariesTried),
		fmt.Sprintf("Run 'declarch init --backend %s' or install the backend manually", backend), nil)
}

func NewBackendError(backend, op string, exitCode int, stderrExcerpt string) *DeclarchError {
	return new(KindBackendError, "Backend command failed",
		fmt.Sprintf("%s %s exited with code %d: %s", backend, op, exitCode, stderrExcerpt),
		"Check the backend's own error output above for the underlying cause", nil)
}

func NewInvalidPackageName(name string) *DeclarchError {
	return new(KindInvalidPackageName, "Invalid package name",
		fmt.Sprintf("%q contains characters that are not safe to pass to a backend", name),
		"Package names must not contain shell metacharacters, quotes, or whitespace", nil)
}

func NewAmbiguousVariant(name string, candidates []string) *DeclarchError {
	return new(KindAmbiguousVariant, "Ambiguous package variant",
		fmt.Sprintf("%q matches more than one installed variant: %v", name, candidates),
		"Remove all but the intended variant, or declare the exact variant name", nil)
}

func NewConfigConflict(a, b string) *DeclarchError {
	return new(KindConfigConflict, "Conflicting packages declared",
		fmt.Sprintf("%s and %s are both desired but declared as conflicting", a, b),
		"Remove one of the packages, or change policy.on_conflict to warn", nil)
}

func NewProtectedPackageRemoval(name string) *DeclarchError {
	return new(KindProtectedPackageRemoval, "Refusing to remove protected package",
		fmt.Sprintf("%s is listed in policy.protected", name),
		"Remove it from policy.protected first if this is intentional", nil)
}

func NewStateParseError(path string, cause error) *DeclarchError {
	return new(KindStateParseError, "State file is corrupt",
		fmt.Sprintf("failed to parse %s", path),
		"declarch will try its rotated backups automatically", cause)
}

func NewStateLockTimeout(path string) *DeclarchError {
	return new(KindStateLockTimeout, "Timed out waiting for state lock",
		fmt.Sprintf("another declarch process appears to hold the lock on %s", path),
		"Wait for the other invocation to finish, or remove a stale lock file", nil)
}

func NewStateRecovered(fromBackup string) *DeclarchError {
	return new(KindStateRecovered, "State recovered from backup",
		fmt.Sprintf("loaded %s after the primary state file failed to parse", fromBackup),
		"Run a sync to write a fresh, valid state file", nil)
}

func NewRemoteFetchFailed(url string, status int) *DeclarchError {
	return new(KindRemoteFetchFailed, "Remote fetch failed",
		fmt.Sprintf("%s returned HTTP %d", url, status), "Check the source reference and try again", nil)
}

func NewSSRFRefused(url, reason string) *DeclarchError {
	return new(KindSSRFRefused, "Refused to fetch URL",
		fmt.Sprintf("%s: %s", url, reason),
		"Set DECLARCH_ALLOW_INSECURE_HTTP=1 only if you trust this network target", nil)
}

func NewHookValidationFailed(name, reason string) *DeclarchError {
	return new(KindHookValidationFailed, "Hook failed validation",
		fmt.Sprintf("hook %q: %s", name, reason),
		"Fix the hook command/condition in the config and re-run", nil)
}

func NewHookRequiredFailed(name string, exitCode int) *DeclarchError {
	return new(KindHookRequiredFailed, "Required hook failed",
		fmt.Sprintf("hook %q exited with code %d", name, exitCode),
		"Fix the hook or mark it ignore_errors if failure is acceptable", nil)
}

// NewHookWarning reports a non-required, non-ignore_errors hook exiting
// non-zero. Unlike NewHookRequiredFailed, this never aborts the caller's
// transaction — it only needs to reach the user-visible warnings list.
func NewHookWarning(name string, exitCode int) *DeclarchError {
	return new(KindHookWarning, "Hook exited non-zero",
		fmt.Sprintf("hook %q exited with code %d", name, exitCode),
		"Mark it required to abort on failure, or ignore_errors to silence it", nil)
}

func NewInterrupted() *DeclarchError {
	return new(KindInterrupted, "Interrupted", "the operation was cancelled by signal", "", nil)
}

func NewContractNotSupported(command string) *DeclarchError {
	return new(KindContractNotSupported, "Machine output not supported",
		fmt.Sprintf("command %q has no v1 machine-output contract", command),
		"Drop --format/--output-version for this command, or use a supported command", nil)
}

// Ambient (non-taxonomy) constructors, grounded on the teacher's own
// generic constructors of the same names.

func NewConfigError(title, detail, hint string, cause error) *DeclarchError {
	return new(KindConfigIO, title, detail, hint, cause)
}

func NewInputError(title, detail, hint string) *DeclarchError {
	return new(KindInput, title, detail, hint, nil)
}

func NewPermissionError(title, detail, hint string, cause error) *DeclarchError {
	return new(KindPermission, title, detail, hint, cause)
}

func NewInternalError(title, detail, hint string, cause error) *DeclarchError {
	return new(KindInternal, title, detail, hint, cause)
}

func NewNetworkError(title, detail, hint string, cause error) *DeclarchError {
	return new(KindNetwork, title, detail, hint, cause)
}

// FatalError prints a DeclarchError (or any error) to stderr and exits
// with the code spec.md §6 assigns to its Kind, mirroring the teacher's
// errors.FatalError(err, quiet) call sites in cmd/cie. It is the
// unconditional exit path for fatal, non-machine-output failures — a
// command that emits an envelope on error builds and prints it directly
// instead of routing through here (see cmd/declarch's emitError helper),
// and then exits with the same Kind-mapped code.
//
// quiet suppresses the human-readable Title/Detail/Hint lines but still
// exits with the mapped code, matching --quiet/--format json callers that
// already decided not to print free text to stderr.
func FatalError(err error, quiet bool) {
	if !quiet {
		var de *DeclarchError
		if stderrors.As(err, &de) {
			fmt.Fprintf(os.Stderr, "error: %s\n", de.Title)
			if de.Detail != "" {
				fmt.Fprintf(os.Stderr, "  %s\n", de.Detail)
			}
			if de.Hint != "" {
				fmt.Fprintf(os.Stderr, "  hint: %s\n", de.Hint)
			}
		} else {
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
		}
	}
	os.Exit(ExitCodeFor(err))
}

// ExitCodeFor maps any error to its process exit code: a *DeclarchError
// uses its Kind's mapping, anything else is a generic failure (1).
func ExitCodeFor(err error) int {
	var de *DeclarchError
	if stderrors.As(err, &de) {
		return de.Kind.ExitCode()
	}
	return 1
}
