// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"os"

	"github.com/prometheus/procfs"
)

// ProcStats is a snapshot of this process's own resource usage, shown by
// `declarch info --doctor`. On platforms without /proc (non-Linux), all
// fields are zero and Err explains why.
type ProcStats struct {
	RSSBytes   uint64
	OpenFDs    int
	NumThreads int64
	Err        string
}

// ReadProcStats reads the current process's resource usage via procfs.
// It never fails the caller, since doctor output is diagnostic, not
// critical: if procfs or the process's stat cannot be read, the zero-value
// fields are returned with Err set; if only the open-fd count cannot be
// read, OpenFDs is -1, the other fields are filled and Err stays empty.
func ReadProcStats() ProcStats {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return ProcStats{Err: err.Error()}
	}
	proc, err := fs.Proc(os.Getpid())
	if err != nil {
		return ProcStats{Err: err.Error()}
	}
	stat, err := proc.Stat()
	if err != nil {
		return ProcStats{Err: err.Error()}
	}
	fds, err := proc.FileDescriptorsLen()
	if err != nil {
		fds = -1
	}
	return ProcStats{
		RSSBytes:   uint64(stat.ResidentMemory()),
		OpenFDs:    fds,
		NumThreads: stat.NumThreads,
	}
}
