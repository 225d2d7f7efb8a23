// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package state implements the crash-safe state store (C9, spec.md
// §4.9): a single JSON file of managed-package records under an
// exclusive advisory lock, with bounded backup rotation and
// load-time recovery. Locking uses github.com/gofrs/flock, the one
// dependency in this module that exists purely to cover generic file
// locking — no example repo in the retrieved pack implements its own
// (see DESIGN.md).
package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/pkg/model"
)

// lockTimeout bounds how long Save/Load will wait for the advisory lock
// before surfacing StateLockTimeout.
const lockTimeout = 5 * time.Second

// Store wraps one state.json plus its rotated backups and lock file, all
// located by a paths.Resolver-style set of absolute paths. It holds an
// in-process RWMutex on top of the cross-process file lock, mirroring the
// teacher's EmbeddedBackend: the file lock guards against other
// processes, the mutex guards against concurrent goroutines within this
// one.
type Store struct {
	mu         sync.RWMutex
	path       string
	lockPath   string
	backupPath func(k int) string
	backupN    int
}

// New builds a Store. backupPath must format state.json.backup.<k> for a
// given k; backupN is the retention bound (spec.md §4.9 step 4).
func New(path, lockPath string, backupPath func(int) string, backupN int) *Store {
	return &Store{path: path, lockPath: lockPath, backupPath: backupPath, backupN: backupN}
}

// resolver is the subset of *paths.Resolver this package needs, kept as
// an interface so tests can fake it without importing pkg/paths.
type resolver interface {
	StateFile() string
	StateLockFile() string
	StateBackupFile(k int) string
}

// NewFromResolver builds a Store rooted at r's state paths; cmd/declarch
// builds its Store this way.
func NewFromResolver(r resolver, backupN int) *Store {
	return New(r.StateFile(), r.StateLockFile(), r.StateBackupFile, backupN)
}

// Records is the in-memory view of the state file: PackageId -> record,
// the shape every other component actually wants to query.
type Records map[model.PackageId]model.StateRecord

// Load reads and parses the state file, recovering from a rotated backup
// on parse failure (spec.md §4.9 "Load protocol"). strict disables that
// recovery — used by `sync --prune` when explicitly requested, so a
// corrupt primary file fails loudly instead of silently substituting
// older data. It acquires only a shared/read lock: long-held locks are
// reserved for Save.
func (s *Store) Load(strict bool) (Records, []string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fl := flock.New(s.lockPath)
	locked, err := tryLockWithTimeout(fl.TryRLockContext, lockTimeout)
	if err != nil {
		return nil, nil, declerrors.NewStateLockTimeout(s.lockPath)
	}
	if locked {
		defer fl.Unlock()
	}

	sf, warnings, err := s.loadWithRecovery(strict)
	if err != nil {
		return nil, warnings, err
	}
	return wireToRecords(sf), warnings, nil
}

func (s *Store) loadWithRecovery(strict bool) (model.StateFile, []string, error) {
	sf, err := readStateFile(s.path)
	if err == nil {
		return migrate(sf), nil, nil
	}
	if os.IsNotExist(err) {
		return model.StateFile{SchemaVersion: model.CurrentStateSchemaVersion}, nil, nil
	}
	if strict {
		return model.StateFile{}, nil, declerrors.NewStateParseError(s.path, err)
	}

	for k := 1; k <= s.backupN; k++ {
		bpath := s.backupPath(k)
		sf, berr := readStateFile(bpath)
		if berr == nil {
			return migrate(sf), []string{declerrors.NewStateRecovered(bpath).Error()}, nil
		}
	}
	return model.StateFile{}, nil, declerrors.NewStateParseError(s.path, err)
}

func readStateFile(path string) (model.StateFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.StateFile{}, err
	}
	var sf model.StateFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		return model.StateFile{}, err
	}
	return sf, nil
}

// migrate fills in schema defaults for records written by an older
// version (spec.md §4.9 "Migration"). Schema 2 is the only version this
// implementation has ever produced, so there's nothing to backfill yet
// beyond stamping the current version; the hook exists so a future bump
// has a home.
func migrate(sf model.StateFile) model.StateFile {
	sf.SchemaVersion = model.CurrentStateSchemaVersion
	return sf
}

func wireToRecords(sf model.StateFile) Records {
	out := make(Records, len(sf.Records))
	for _, w := range sf.Records {
		r := w.FromWire()
		out[r.PackageId] = r
	}
	return out
}

func recordsToWire(recs Records) model.StateFile {
	wire := make([]model.StateRecordWire, 0, len(recs))
	for _, r := range recs {
		wire = append(wire, r.ToWire())
	}
	return model.StateFile{SchemaVersion: model.CurrentStateSchemaVersion, Records: wire}
}

// Save persists recs, following the save protocol exactly (spec.md §4.9):
// serialize, round-trip-verify, lock, rotate backups, write to a temp
// file, fsync, rename, unlock.
func (s *Store) Save(recs Records) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf := recordsToWire(recs)
	raw, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return declerrors.NewInternalError("Failed to serialize state", err.Error(), "", err)
	}
	var verify model.StateFile
	if err := json.Unmarshal(raw, &verify); err != nil {
		return declerrors.NewInternalError("State round-trip verification failed",
			err.Error(), "This is an internal bug; please report it", err)
	}

	fl := flock.New(s.lockPath)
	locked, err := tryLockWithTimeout(fl.TryLockContext, lockTimeout)
	if err != nil || !locked {
		return declerrors.NewStateLockTimeout(s.lockPath)
	}
	defer fl.Unlock()

	if err := s.rotateBackups(); err != nil {
		return err
	}
	return atomicWrite(s.path, raw)
}

// rotateBackups shifts state.json.backup.<k> to <k+1> (dropping anything
// beyond the retention bound) and copies the current state.json into
// slot 1, matching spec.md §4.9 step 4 exactly.
func (s *Store) rotateBackups() error {
	if s.backupN <= 0 {
		return nil
	}
	if _, err := os.Stat(s.path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for k := s.backupN; k >= 1; k-- {
		src := s.backupPath(k)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if k == s.backupN {
			if err := os.Remove(src); err != nil {
				return err
			}
			continue
		}
		dst := s.backupPath(k + 1)
		if err := os.Rename(src, dst); err != nil {
			return err
		}
	}
	return copyFile(s.path, s.backupPath(1))
}

func copyFile(src, dst string) error {
	raw, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return atomicWrite(dst, raw)
}

// atomicWrite writes data to a .tmp sibling of path, fsyncs it, then
// renames it over path — never a partial write is observable (spec.md
// §3 StateRecord invariants).
func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// tryLockWithTimeout retries a flock try-lock function (TryLockContext or
// TryRLockContext) until it succeeds or timeout elapses, giving us the
// blocking-with-timeout behavior spec.md §4.9 describes on top of flock's
// single-attempt-per-call API.
func tryLockWithTimeout(tryLock func(ctx context.Context, retry time.Duration) (bool, error), timeout time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return tryLock(ctx, 25*time.Millisecond)
}
