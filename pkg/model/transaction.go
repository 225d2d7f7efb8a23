// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// SkipReason explains why a desired or state-tracked package was excluded
// from the transaction.
type SkipReason string

const (
	SkipMissingBackend SkipReason = "MissingBackend"
	SkipConflictLoser  SkipReason = "ConflictLoser"
	SkipProtected      SkipReason = "Protected"
	SkipExcluded       SkipReason = "Excluded"
	SkipOrphanKept     SkipReason = "OrphanKept"
	SkipAmbiguous      SkipReason = "AmbiguousVariant"
)

// Skipped pairs a package with why it was skipped.
type Skipped struct {
	Id     PackageId
	Reason SkipReason
	Detail string
}

// VariantTransition records an adopt-of-a-different-variant case: the old
// variant is removed and the new one installed in the same phase.
type VariantTransition struct {
	Backend Backend
	OldName string
	NewName string
}

// HookPlanEntry is one scheduled hook invocation: the planner adds one
// entry per declared hook, and the executor checks the four gates (spec.md
// §4.12) and matches packages for the phase when it runs the plan.
type HookPlanEntry struct {
	Phase              HookPhase
	Hook               Hook
	MatchingPackages   []PackageId
}

// Transaction is the planner's (C10) output: everything the executor
// (C11) needs to apply a reconcile, or that a --dry-run preview prints.
type Transaction struct {
	Install []PackageId
	Adopt   []PackageId
	Remove  []PackageId
	Skip    []Skipped

	VariantTransitions []VariantTransition
	Warnings           []string
	Conflicts          []ConflictPair
	HookPlan           []HookPlanEntry

	// RemoveNeedsConfirmation lists removals gated by policy.orphans=ask
	// that must be confirmed interactively before the executor proceeds.
	RemoveNeedsConfirmation []PackageId

	IsDryRun bool
}

// IsEmpty reports whether applying this transaction would be a no-op —
// the idempotence property (P1/P2) a second sync should observe.
func (t *Transaction) IsEmpty() bool {
	return len(t.Install) == 0 && len(t.Adopt) == 0 && len(t.Remove) == 0 &&
		len(t.VariantTransitions) == 0
}
