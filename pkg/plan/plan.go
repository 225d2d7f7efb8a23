// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package plan implements the reconciliation planner (C10, spec.md
// §4.10): it diffs a MergedConfig against per-backend installed
// snapshots and the current state store, producing a Transaction for
// the executor (C11) to apply or a --dry-run preview to print.
package plan

import (
	"sort"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/pkg/backend"
	"github.com/nixval/declarch/pkg/model"
	"github.com/nixval/declarch/pkg/resolve"
)

// Planner holds the registry used for availability filtering. It carries
// no other state — one Planner can be reused across repeated reconciles.
type Planner struct {
	Registry *backend.Registry
}

// New builds a Planner backed by reg.
func New(reg *backend.Registry) *Planner {
	return &Planner{Registry: reg}
}

// Snapshots is the per-backend installed view the planner diffs against,
// built on demand by the caller via C7 (resolve the binary) + C5 (parse
// its list output) before calling Plan.
type Snapshots map[string]model.InstalledSnapshot

// Plan runs the full algorithm of spec.md §4.10 and returns the resulting
// Transaction. dryRun is carried through to the output only; the planner
// itself never mutates anything regardless of its value.
func (p *Planner) Plan(cfg *model.MergedConfig, snaps Snapshots, state map[model.PackageId]model.StateRecord, dryRun bool) (*model.Transaction, error) {
	txn := &model.Transaction{IsDryRun: dryRun}

	desired, skipped, warnings := p.filterAvailability(cfg)
	txn.Skip = append(txn.Skip, skipped...)
	txn.Warnings = append(txn.Warnings, warnings...)

	conflictWarnings, err := p.resolveConflicts(cfg, desired)
	if err != nil {
		return nil, err
	}
	txn.Warnings = append(txn.Warnings, conflictWarnings...)
	txn.Conflicts = cfg.Conflicts

	resolved := p.resolveDesired(desired, cfg.Aliases, snaps)

	p.diffDesiredVsState(resolved, state, snaps, txn)
	p.diffStateVsDesired(resolved, state, cfg.Policy, dryRun, txn)
	p.detectVariantTransitions(txn)
	p.buildHookPlan(cfg.Hooks, txn)
	p.order(txn)

	return txn, nil
}

// desiredEntry is a PackageEntry paired with the PackageId it resolves to
// after exclusion has already ruled out the excluded ones.
type desiredEntry struct {
	entry model.PackageEntry
	id    model.PackageId
}

// filterAvailability implements step 1: route to skip anything whose
// backend is unregistered or whose binary is missing, aggregating a
// single warning per affected backend rather than one per package.
func (p *Planner) filterAvailability(cfg *model.MergedConfig) ([]desiredEntry, []model.Skipped, []string) {
	var desired []desiredEntry
	var skipped []model.Skipped
	unavailable := map[string]bool{}

	for backendName, entries := range cfg.Packages {
		bcfg, ok := p.Registry.Get(backendName)
		available := ok && p.Registry.Available(bcfg)
		for _, e := range entries {
			id := e.Id()
			if cfg.Excludes[id] {
				skipped = append(skipped, model.Skipped{Id: id, Reason: model.SkipExcluded})
				continue
			}
			if !available {
				skipped = append(skipped, model.Skipped{Id: id, Reason: model.SkipMissingBackend,
					Detail: "backend " + backendName + " is not registered or has no binary on PATH"})
				unavailable[backendName] = true
				continue
			}
			desired = append(desired, desiredEntry{entry: e, id: id})
		}
	}

	names := make([]string, 0, len(unavailable))
	for name := range unavailable {
		names = append(names, name)
	}
	sort.Strings(names)
	var warnings []string
	for _, name := range names {
		warnings = append(warnings, "backend "+name+" is unavailable; its packages were skipped")
	}
	return desired, skipped, warnings
}

// resolveConflicts implements step 3: for every declared conflict pair
// where both sides are desired, apply policy.on_conflict.
func (p *Planner) resolveConflicts(cfg *model.MergedConfig, desired []desiredEntry) ([]string, error) {
	names := map[string]bool{}
	for _, d := range desired {
		names[d.entry.Name] = true
	}
	var warnings []string
	for _, pair := range cfg.Conflicts {
		if !names[pair.A] || !names[pair.B] {
			continue
		}
		if cfg.Policy.OnConflict == model.ViolationError {
			return nil, declerrors.NewConfigConflict(pair.A, pair.B)
		}
		warnings = append(warnings, "conflicting packages both desired: "+pair.A+" and "+pair.B)
	}
	return warnings, nil
}

// resolvedEntry carries both the as-declared id and the effective id
// (post-alias, post-variant-match) for one surviving desired entry.
type resolvedEntry struct {
	declared  model.PackageId
	effective model.PackageId
	match     resolve.Match
}

// resolveDesired implements step 2 (alias application) plus the variant
// matching that step 5 needs to tell "installed (matched)" apart from
// "not installed".
func (p *Planner) resolveDesired(desired []desiredEntry, aliases map[string]string, snaps Snapshots) []resolvedEntry {
	out := make([]resolvedEntry, 0, len(desired))
	for _, d := range desired {
		snap := snaps[d.entry.Backend.Name]
		m := resolve.Resolve(d.entry, aliases, snap)
		effective := model.PackageId{Backend: d.entry.Backend, Name: m.EffectiveName}
		if m.Ambiguous {
			out = append(out, resolvedEntry{declared: d.id, effective: effective, match: m})
			continue
		}
		out = append(out, resolvedEntry{declared: d.id, effective: effective, match: m})
	}
	return out
}

// diffDesiredVsState implements step 5: for every desired package,
// decide no-op / install / adopt based on its presence in state and in
// the installed snapshot.
func (p *Planner) diffDesiredVsState(resolved []resolvedEntry, state map[model.PackageId]model.StateRecord, snaps Snapshots, txn *model.Transaction) {
	for _, r := range resolved {
		if r.match.Ambiguous {
			txn.Skip = append(txn.Skip, model.Skipped{Id: r.declared, Reason: model.SkipAmbiguous,
				Detail: "multiple installed variants match: " + joinCandidates(r.match.Candidates)})
			continue
		}

		_, inState := state[r.effective]
		installed := r.match.Installed

		switch {
		case inState && installed:
			// no-op: already reconciled
		case inState && !installed:
			txn.Install = append(txn.Install, r.effective)
		case !inState && installed:
			txn.Adopt = append(txn.Adopt, r.effective)
		default:
			txn.Install = append(txn.Install, r.effective)
		}
	}
}

func joinCandidates(cands []string) string {
	out := ""
	for i, c := range cands {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

// diffStateVsDesired implements step 6: every state entry no longer in
// the desired set is a removal candidate, filtered by policy.protected
// and policy.orphans.
func (p *Planner) diffStateVsDesired(resolved []resolvedEntry, state map[model.PackageId]model.StateRecord, policy model.Policy, dryRun bool, txn *model.Transaction) {
	desiredIds := map[model.PackageId]bool{}
	for _, r := range resolved {
		desiredIds[r.effective] = true
	}

	var stateIds []model.PackageId
	for id := range state {
		stateIds = append(stateIds, id)
	}
	sort.Slice(stateIds, func(i, j int) bool { return stateIds[i].String() < stateIds[j].String() })

	for _, id := range stateIds {
		if desiredIds[id] {
			continue
		}
		if policy.Protected[id.Name] {
			txn.Skip = append(txn.Skip, model.Skipped{Id: id, Reason: model.SkipProtected})
			continue
		}
		switch policy.Orphans {
		case model.OrphanKeep:
			txn.Skip = append(txn.Skip, model.Skipped{Id: id, Reason: model.SkipOrphanKept})
		case model.OrphanRemove:
			txn.Remove = append(txn.Remove, id)
		case model.OrphanAsk:
			if dryRun {
				txn.Skip = append(txn.Skip, model.Skipped{Id: id, Reason: model.SkipOrphanKept,
					Detail: "policy.orphans=ask; dry-run defaults to keep"})
				continue
			}
			txn.RemoveNeedsConfirmation = append(txn.RemoveNeedsConfirmation, id)
		}
	}
}

// detectVariantTransitions implements step 7: an adopt of one variant
// alongside a state record for a *different* variant of the same
// declared name is a transition, not an independent adopt+orphan pair.
func (p *Planner) detectVariantTransitions(txn *model.Transaction) {
	// Variant transitions are detected when the removal set (orphaned
	// state entries) and the adopt-or-install set share a backend and a
	// declared base name under a different installed suffix. Since
	// declared base names aren't tracked past resolution, this pass
	// operates on the Skip(OrphanKept) bucket produced for the same
	// backend as an Adopt or Install, which is the observable signal
	// spec.md describes ("declaring a variant of a name currently
	// installed under a different variant").
	// Both buckets can carry the new variant: Adopt when it's already
	// installed under the new name, Install when the sync will install it
	// fresh (spec.md's hyprland -> hyprland-git scenario: hyprland-git
	// isn't installed yet, so resolution routes it to Install, not Adopt).
	adoptByBackend := map[string][]model.PackageId{}
	for _, id := range txn.Adopt {
		adoptByBackend[id.Backend.Name] = append(adoptByBackend[id.Backend.Name], id)
	}
	for _, id := range txn.Install {
		adoptByBackend[id.Backend.Name] = append(adoptByBackend[id.Backend.Name], id)
	}
	if len(adoptByBackend) == 0 {
		return
	}

	var remaining []model.Skipped
	for _, s := range txn.Skip {
		if s.Reason != model.SkipOrphanKept {
			remaining = append(remaining, s)
			continue
		}
		transitioned := false
		for _, newId := range adoptByBackend[s.Id.Backend.Name] {
			if isVariantPair(s.Id.Name, newId.Name) {
				txn.VariantTransitions = append(txn.VariantTransitions, model.VariantTransition{
					Backend: s.Id.Backend, OldName: s.Id.Name, NewName: newId.Name,
				})
				txn.Warnings = append(txn.Warnings, "variant transition: "+s.Id.Name+" -> "+newId.Name)
				transitioned = true
				break
			}
		}
		if !transitioned {
			remaining = append(remaining, s)
		}
	}
	txn.Skip = remaining
}

// isVariantPair reports whether a and b share a common base with
// differing recognized variant suffixes (or one is the bare base name).
func isVariantPair(a, b string) bool {
	if a == b {
		return false
	}
	baseA, hasA := stripVariantSuffix(a)
	baseB, hasB := stripVariantSuffix(b)
	if !hasA && !hasB {
		return false
	}
	if !hasA {
		baseA = a
	}
	if !hasB {
		baseB = b
	}
	return baseA == baseB
}

func stripVariantSuffix(name string) (string, bool) {
	for _, suffix := range []string{"-git", "-bin", "-lts", "-beta", "-nightly", "-dev", "-meson"} {
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			return name[:len(name)-len(suffix)], true
		}
	}
	return name, false
}

// buildHookPlan implements step 8: group declared hooks by phase with
// the package set relevant to that phase. Condition evaluation (if-changed,
// if-backend, ...) is deferred to the executor, which has the real
// per-invocation Context (spec.md §4.12).
func (p *Planner) buildHookPlan(hooks []model.Hook, txn *model.Transaction) {
	for _, h := range hooks {
		txn.HookPlan = append(txn.HookPlan, model.HookPlanEntry{
			Phase:            h.Phase,
			Hook:             h,
			MatchingPackages: matchingPackagesForPhase(h.Phase, txn),
		})
	}
}

func matchingPackagesForPhase(phase model.HookPhase, txn *model.Transaction) []model.PackageId {
	switch phase {
	case model.PhasePreInstall, model.PhasePostInstall:
		return txn.Install
	case model.PhasePreRemove, model.PhasePostRemove:
		return txn.Remove
	case model.PhaseOnUpdate:
		return txn.Adopt
	default:
		all := make([]model.PackageId, 0, len(txn.Install)+len(txn.Adopt)+len(txn.Remove))
		all = append(all, txn.Install...)
		all = append(all, txn.Adopt...)
		all = append(all, txn.Remove...)
		return all
	}
}

// order implements step 9: variant-transition removals are implicit in
// VariantTransitions (the executor removes OldName before installing
// NewName within the same phase), and the executor applies Install, then
// Adopt, then cleanup Remove as separate phases. Within each of those
// three slices, order sorts the ids by their string form so the plan is
// deterministic. order exists as an explicit, named step so a future
// reordering need has one place to change.
func (p *Planner) order(txn *model.Transaction) {
	sort.Slice(txn.Install, func(i, j int) bool { return txn.Install[i].String() < txn.Install[j].String() })
	sort.Slice(txn.Adopt, func(i, j int) bool { return txn.Adopt[i].String() < txn.Adopt[j].String() })
	sort.Slice(txn.Remove, func(i, j int) bool { return txn.Remove[i].String() < txn.Remove[j].String() })
}
