// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry maintains an in-process Prometheus registry for a
// single declarch invocation. declarch is not a daemon (spec.md §1
// Non-goals), so nothing ever scrapes this registry over HTTP — it
// exists purely so `declarch info --doctor` can dump a snapshot of what
// happened during the run (or, for a long-lived process like the MCP
// adapter that embeds this core, what has happened so far).
package telemetry

import (
	"bytes"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry bundles the counters/gauges a reconcile run touches.
type Registry struct {
	reg *prometheus.Registry

	BackendCalls    *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec
	HookRuns        *prometheus.CounterVec
	Installs        prometheus.Counter
	Adopts          prometheus.Counter
	Removes         prometheus.Counter
	Skips           *prometheus.CounterVec
}

// New constructs a fresh, process-local registry. Each CLI invocation
// owns exactly one; it is never a package-level global (spec.md §9: no
// global mutable state besides the immutable backend registry).
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		BackendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "declarch_backend_calls_total",
			Help: "Number of backend subprocess invocations, by backend and operation.",
		}, []string{"backend", "op"}),
		BackendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "declarch_backend_call_duration_seconds",
			Help:    "Backend subprocess call latency, by backend and operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend", "op"}),
		HookRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "declarch_hook_runs_total",
			Help: "Number of hook executions, by phase and outcome.",
		}, []string{"phase", "outcome"}),
		Installs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "declarch_installs_total",
			Help: "Number of packages installed across all reconciles in this process.",
		}),
		Adopts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "declarch_adopts_total",
			Help: "Number of packages adopted into state without a backend call.",
		}),
		Removes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "declarch_removes_total",
			Help: "Number of packages removed.",
		}),
		Skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "declarch_skips_total",
			Help: "Number of packages skipped, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(r.BackendCalls, r.BackendDuration, r.HookRuns, r.Installs, r.Adopts, r.Removes, r.Skips)
	return r
}

// TimeBackendCall records the duration of a single backend call.
func (r *Registry) TimeBackendCall(backend, op string) func() {
	start := time.Now()
	return func() {
		elapsed := time.Since(start).Seconds()
		r.BackendCalls.WithLabelValues(backend, op).Inc()
		r.BackendDuration.WithLabelValues(backend, op).Observe(elapsed)
	}
}

// RecordHook records the outcome of one hook run.
func (r *Registry) RecordHook(phase, outcome string) {
	r.HookRuns.WithLabelValues(phase, outcome).Inc()
}

// RecordSkip increments the skip counter for the given reason.
func (r *Registry) RecordSkip(reason string) {
	r.Skips.WithLabelValues(reason).Inc()
}

// DumpText renders the registry in Prometheus text exposition format,
// the shape `declarch info --doctor` prints alongside process stats.
func (r *Registry) DumpText() (string, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}
