// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package execute implements the transaction executor (C11, spec.md
// §4.11): given a Transaction from the planner, it applies it in the
// documented phase order, running backend subprocesses and hooks. The
// state store is written once after the install and adopt phases and once
// more when Apply returns (also on failure or interruption); it is not
// written after each individual backend batch.
package execute

import (
	"context"
	"fmt"
	"sort"
	"time"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/internal/telemetry"
	"github.com/nixval/declarch/pkg/backend"
	"github.com/nixval/declarch/pkg/hooks"
	"github.com/nixval/declarch/pkg/model"
	"github.com/nixval/declarch/pkg/state"
)

// Prompter abstracts the interactive "remove this orphan?" prompt (spec.md
// §6) away from terminal specifics, the way the teacher keeps its own
// CLI I/O behind a thin interface rather than calling fmt.Scan directly.
type Prompter interface {
	ConfirmRemove(id model.PackageId) bool
}

// Resnapshotter re-lists one backend's installed packages after a batch
// call fails partway through, so the executor can tell which packages in
// the batch actually landed (spec.md §4.11 step 3). Optional: if nil, a
// failed batch marks every package in it as failed.
type Resnapshotter func(ctx context.Context, backendName string) (model.InstalledSnapshot, error)

// ProgressReporter advances a progress display by n completed units.
// *progressbar.ProgressBar satisfies this directly, so cmd/declarch can
// pass one straight through; Apply never constructs or owns the bar
// itself (spec.md §6 keeps terminal concerns out of the core).
type ProgressReporter interface {
	Add(n int) error
}

// Options configures one Apply call.
type Options struct {
	HooksRequested bool // the invocation passed --hooks
	Yes            bool // non-interactive mode; remove-ask defaults to "no"
	NoConfirm      bool // pass through to backend install/remove batches
	Prompter       Prompter
	Resnapshot     Resnapshotter
	Installed      map[string]bool // effective name -> currently installed, for if-installed hook conditions
	Progress       ProgressReporter
}

func (o Options) advance(n int) {
	if o.Progress != nil && n > 0 {
		_ = o.Progress.Add(n)
	}
}

// Summary is what Apply returns: everything a human or machine-output
// caller needs to report the outcome.
type Summary struct {
	Installed       []model.PackageId
	InstalledFailed []model.PackageId
	Adopted         []model.PackageId
	Removed         []model.PackageId
	RemovedFailed   []model.PackageId
	Skipped         []model.Skipped
	Warnings        []string
	Interrupted     bool
	Failed          bool
}

func (s *Summary) warn(format string, args ...any) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

// Executor applies Transactions. One instance is built per invocation.
type Executor struct {
	registry *backend.Registry
	runner   *backend.Executor
	hooks    *hooks.Runner
	store    *state.Store
	tel      *telemetry.Registry
}

// New builds an Executor from its collaborators.
func New(registry *backend.Registry, runner *backend.Executor, hookRunner *hooks.Runner, store *state.Store, tel *telemetry.Registry) *Executor {
	return &Executor{registry: registry, runner: runner, hooks: hookRunner, store: store, tel: tel}
}

// Apply runs txn's phases in order against recs (the state loaded before
// this run), persisting recs via the state store after the install and
// adopt phases and again on return, whether the run succeeded or not.
// recs is mutated in place and also returned via the store, so
// callers should treat it as owned by Apply for the duration of the call.
func (e *Executor) Apply(ctx context.Context, txn *model.Transaction, cfg *model.MergedConfig, recs state.Records, opts Options) (*Summary, error) {
	sum := &Summary{Skipped: append([]model.Skipped{}, txn.Skip...)}
	gate := hooks.Evaluate(cfg, opts.HooksRequested)
	if !gate.Allowed {
		sum.warn("hooks disabled: %s", gate.Reason)
	}

	changed := changedNames(txn)

	if gate.Allowed {
		if err := e.runPhaseHooks(ctx, txn, model.PhasePreSync, changed, "", opts, sum); err != nil {
			return e.finish(sum, recs, err)
		}
	}

	if err := e.applyVariantTransitions(ctx, txn, recs, gate.Allowed, opts, sum); err != nil {
		return e.finish(sum, recs, err)
	}
	if err := e.applyInstalls(ctx, txn, recs, gate.Allowed, opts, sum); err != nil {
		return e.finish(sum, recs, err)
	}
	e.applyAdopts(txn, recs, opts, sum)
	if err := e.save(recs, sum); err != nil {
		return e.finish(sum, recs, err)
	}
	if err := e.applyRemoves(ctx, txn, recs, gate.Allowed, opts, sum); err != nil {
		return e.finish(sum, recs, err)
	}

	if gate.Allowed {
		if err := e.runPhaseHooks(ctx, txn, model.PhasePostSync, changed, "", opts, sum); err != nil {
			return e.finish(sum, recs, err)
		}
		finalPhase := model.PhaseOnSuccess
		if sum.Failed {
			finalPhase = model.PhaseOnFailure
		}
		_ = e.runPhaseHooks(ctx, txn, finalPhase, changed, "", opts, sum) // on-success/on-failure never aborts further
	}

	return e.finish(sum, recs, nil)
}

// finish saves recs one last time (idempotent if already saved) and
// translates a context cancellation into the Interrupted outcome spec.md
// §5 requires.
func (e *Executor) finish(sum *Summary, recs state.Records, err error) (*Summary, error) {
	if saveErr := e.store.Save(recs); saveErr != nil {
		sum.warn("failed to flush state: %v", saveErr)
	}
	if err == context.Canceled || err == context.DeadlineExceeded {
		sum.Interrupted = true
		return sum, declerrors.NewInterrupted()
	}
	if err != nil {
		sum.Failed = true
		return sum, err
	}
	return sum, nil
}

func (e *Executor) save(recs state.Records, sum *Summary) error {
	if err := e.store.Save(recs); err != nil {
		sum.warn("failed to save state: %v", err)
		return err
	}
	return nil
}

// changedNames collects every effective package name this transaction
// touches, for the pre-sync/post-sync/on-* hook context's ChangedPackages
// (spec.md §4.12).
func changedNames(txn *model.Transaction) map[string]bool {
	out := map[string]bool{}
	for _, id := range txn.Install {
		out[id.Name] = true
	}
	for _, id := range txn.Adopt {
		out[id.Name] = true
	}
	for _, id := range txn.Remove {
		out[id.Name] = true
	}
	for _, vt := range txn.VariantTransitions {
		out[vt.OldName] = true
		out[vt.NewName] = true
	}
	return out
}

// runPhaseHooks runs every hook scheduled for phase, honoring its
// conditions against a Context built from changed/backendName/the
// cumulative success flag. A required hook's failure aborts the whole
// transaction.
func (e *Executor) runPhaseHooks(ctx context.Context, txn *model.Transaction, phase model.HookPhase, changed map[string]bool, backendName string, opts Options, sum *Summary) error {
	for _, entry := range txn.HookPlan {
		if entry.Phase != phase {
			continue
		}
		hctx := hooks.Context{
			ChangedPackages:   changed,
			InstalledPackages: opts.Installed,
			Backend:           backendName,
			Success:           !sum.Failed,
		}
		if !hooks.Matches(entry.Hook, hctx) {
			continue
		}
		if _, err := e.hooks.Run(ctx, entry.Hook); err != nil {
			if declerrors.As(err, declerrors.KindHookRequiredFailed) {
				return err
			}
			sum.warn("hook %q: %v", entry.Hook.Name, err)
		}
	}
	return nil
}

// byBackend groups a flat []PackageId by backend name, sorted for
// deterministic iteration.
func byBackend(ids []model.PackageId) ([]string, map[string][]model.PackageId) {
	grouped := map[string][]model.PackageId{}
	for _, id := range ids {
		grouped[id.Backend.Name] = append(grouped[id.Backend.Name], id)
	}
	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, grouped
}

// applyVariantTransitions implements phase 2: variant-transition removals,
// one batched remove call per backend for the old variant names.
func (e *Executor) applyVariantTransitions(ctx context.Context, txn *model.Transaction, recs state.Records, hooksOn bool, opts Options, sum *Summary) error {
	if len(txn.VariantTransitions) == 0 {
		return nil
	}
	byBackendOld := map[string][]string{}
	for _, vt := range txn.VariantTransitions {
		byBackendOld[vt.Backend.Name] = append(byBackendOld[vt.Backend.Name], vt.OldName)
	}
	names := make([]string, 0, len(byBackendOld))
	for n := range byBackendOld {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, backendName := range names {
		cfg, err := e.registry.Resolve(backendName)
		if err != nil {
			sum.warn("variant transition on %s: %v", backendName, err)
			continue
		}
		old := byBackendOld[backendName]
		if _, err := e.runner.Remove(ctx, cfg, old, true); err != nil {
			sum.warn("variant transition remove on %s failed: %v", backendName, err)
			continue
		}
		for _, name := range old {
			delete(recs, model.PackageId{Backend: model.Backend{Name: backendName}, Name: name})
		}
		opts.advance(len(old))
	}
	return nil
}

// applyInstalls implements phase 3: one batched install call per backend,
// with pre-install/post-install hooks bracketing each matching package.
func (e *Executor) applyInstalls(ctx context.Context, txn *model.Transaction, recs state.Records, hooksOn bool, opts Options, sum *Summary) error {
	names, grouped := byBackend(txn.Install)
	for _, backendName := range names {
		ids := grouped[backendName]
		cfg, err := e.registry.Resolve(backendName)
		if err != nil {
			for _, id := range ids {
				sum.InstalledFailed = append(sum.InstalledFailed, id)
			}
			sum.warn("install on %s: %v", backendName, err)
			continue
		}

		pkgNames := idNames(ids)
		if hooksOn {
			if err := e.runPerPackageHooks(ctx, txn, model.PhasePreInstall, backendName, pkgNames, opts, sum); err != nil {
				return err
			}
		}

		if _, err := e.runner.Install(ctx, cfg, pkgNames, opts.NoConfirm); err != nil {
			failed := e.partitionAfterFailure(ctx, backendName, ids, opts, recs, sum, true)
			sum.warn("install on %s failed: %v", backendName, err)
			if len(failed) == len(ids) {
				continue
			}
		} else {
			for _, id := range ids {
				recs[id] = model.StateRecord{PackageId: id, DeclaredAs: id.Name, InstalledAt: time.Now().UTC()}
				sum.Installed = append(sum.Installed, id)
			}
			opts.advance(len(ids))
		}

		if hooksOn {
			if err := e.runPerPackageHooks(ctx, txn, model.PhasePostInstall, backendName, pkgNames, opts, sum); err != nil {
				return err
			}
		}
	}
	return nil
}

// partitionAfterFailure handles the "batch call failed" branch: if a
// Resnapshotter is available, re-list the backend and credit whichever
// packages actually ended up installed; otherwise the whole batch is
// marked failed. Returns the ids still considered failed.
func (e *Executor) partitionAfterFailure(ctx context.Context, backendName string, ids []model.PackageId, opts Options, recs state.Records, sum *Summary, installing bool) []model.PackageId {
	markAllFailed := func() []model.PackageId {
		if installing {
			sum.InstalledFailed = append(sum.InstalledFailed, ids...)
		} else {
			sum.RemovedFailed = append(sum.RemovedFailed, ids...)
		}
		return ids
	}
	if opts.Resnapshot == nil {
		return markAllFailed()
	}
	snap, err := opts.Resnapshot(ctx, backendName)
	if err != nil {
		return markAllFailed()
	}
	var failed []model.PackageId
	for _, id := range ids {
		if _, ok := snap.Installed(id.Name); ok == installing {
			if installing {
				recs[id] = model.StateRecord{PackageId: id, DeclaredAs: id.Name, InstalledAt: time.Now().UTC()}
				sum.Installed = append(sum.Installed, id)
			} else {
				delete(recs, id)
				sum.Removed = append(sum.Removed, id)
			}
			continue
		}
		failed = append(failed, id)
	}
	if installing {
		sum.InstalledFailed = append(sum.InstalledFailed, failed...)
	} else {
		sum.RemovedFailed = append(sum.RemovedFailed, failed...)
	}
	return failed
}

func (e *Executor) runPerPackageHooks(ctx context.Context, txn *model.Transaction, phase model.HookPhase, backendName string, pkgNames []string, opts Options, sum *Summary) error {
	for _, name := range pkgNames {
		if err := e.runPhaseHooks(ctx, txn, phase, map[string]bool{name: true}, backendName, opts, sum); err != nil {
			return err
		}
	}
	return nil
}

func idNames(ids []model.PackageId) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Name
	}
	return out
}

// applyAdopts implements phase 4: a pure state-store change, no
// subprocess.
func (e *Executor) applyAdopts(txn *model.Transaction, recs state.Records, opts Options, sum *Summary) {
	for _, id := range txn.Adopt {
		recs[id] = model.StateRecord{PackageId: id, DeclaredAs: id.Name, InstalledAt: time.Now().UTC()}
		sum.Adopted = append(sum.Adopted, id)
	}
	opts.advance(len(txn.Adopt))
}

// applyRemoves implements phase 5: cleanup removes, honoring
// RemoveNeedsConfirmation (policy.orphans=ask), one batched remove call
// per backend, bracketed by pre-remove/post-remove hooks.
func (e *Executor) applyRemoves(ctx context.Context, txn *model.Transaction, recs state.Records, hooksOn bool, opts Options, sum *Summary) error {
	toRemove := append([]model.PackageId{}, txn.Remove...)
	for _, id := range txn.RemoveNeedsConfirmation {
		if e.confirmRemove(id, opts) {
			toRemove = append(toRemove, id)
		} else {
			sum.Skipped = append(sum.Skipped, model.Skipped{Id: id, Reason: model.SkipOrphanKept, Detail: "not confirmed"})
		}
	}

	names, grouped := byBackend(toRemove)
	for _, backendName := range names {
		ids := grouped[backendName]
		cfg, err := e.registry.Resolve(backendName)
		if err != nil {
			sum.RemovedFailed = append(sum.RemovedFailed, ids...)
			sum.warn("remove on %s: %v", backendName, err)
			continue
		}

		pkgNames := idNames(ids)
		if hooksOn {
			if err := e.runPerPackageHooks(ctx, txn, model.PhasePreRemove, backendName, pkgNames, opts, sum); err != nil {
				return err
			}
		}

		if _, err := e.runner.Remove(ctx, cfg, pkgNames, true); err != nil {
			e.partitionAfterFailure(ctx, backendName, ids, opts, recs, sum, false)
			sum.warn("remove on %s failed: %v", backendName, err)
		} else {
			for _, id := range ids {
				delete(recs, id)
				sum.Removed = append(sum.Removed, id)
			}
			opts.advance(len(ids))
		}

		if hooksOn {
			if err := e.runPerPackageHooks(ctx, txn, model.PhasePostRemove, backendName, pkgNames, opts, sum); err != nil {
				return err
			}
		}
	}
	return nil
}

// confirmRemove applies spec.md §4.11's interactive default: in --yes
// mode (or with no prompter wired up) the default is "no" for
// remove-ask.
func (e *Executor) confirmRemove(id model.PackageId, opts Options) bool {
	if opts.Yes || opts.Prompter == nil {
		return false
	}
	return opts.Prompter.ConfirmRemove(id)
}
