// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

// Package oplock provides file-based mutual exclusion between backup and
// restore operations. One slot exists per database family (SQL engines share
// one lock, graph engines another), so a restore on PostgreSQL blocks backups
// for MySQL and SQLite but not for Neo4j.
//
// The lock is process-local by contract: it coordinates operations within a
// single deployment, not across replicas. A 2-hour TTL lets the next
// operation reclaim a lock left behind by a crashed process.
package oplock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/custodia/internal/models"
)

// Operation names recorded in the lock file.
const (
	OpBackup  = "backup"
	OpRestore = "restore"
)

// DefaultTTL is the age at which a lock is considered abandoned and may be
// reclaimed by the next acquirer.
const DefaultTTL = 2 * time.Hour

// Family groups database engines that share one lock slot.
type Family string

const (
	FamilySQL   Family = "sql"
	FamilyGraph Family = "graph"
)

// FamilyFor maps a database type to its lock family.
func FamilyFor(dbType models.DatabaseType) Family {
	if dbType == models.DatabaseNeo4j {
		return FamilyGraph
	}
	return FamilySQL
}

// record is the JSON payload stored in the lock file.
type record struct {
	Operation  string    `json:"operation"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lock is a single file-backed operation slot.
type Lock struct {
	path string
	ttl  time.Duration
}

// New creates a lock backed by the given file path with the default TTL.
func New(path string) *Lock {
	return NewWithTTL(path, DefaultTTL)
}

// NewWithTTL creates a lock with a custom staleness TTL.
func NewWithTTL(path string, ttl time.Duration) *Lock {
	return &Lock{path: path, ttl: ttl}
}

// Acquire atomically claims the slot for the named operation. When a live
// lock is already held it returns a Conflict error naming the holder. A lock
// older than the TTL, or one whose file cannot be parsed, is reclaimed.
func (l *Lock) Acquire(operation string) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return err
	}

	// Two passes: the second handles losing a reclaim race to another
	// acquirer, which then legitimately holds a fresh lock.
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return l.write(f, operation)
		}
		if !errors.Is(err, os.ErrExist) {
			return err
		}

		existing, readErr := l.read()
		if readErr == nil && time.Since(existing.AcquiredAt) < l.ttl {
			return models.ErrConflict.New("%s operation is in progress", existing.Operation)
		}
		if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) {
			return rmErr
		}
	}
	return models.ErrConflict.New("lock is being acquired by another operation")
}

// acquirePollInterval is how often a queued acquirer retries the slot.
const acquirePollInterval = 250 * time.Millisecond

// AcquireQueued claims the slot like Acquire, but waits for a held backup
// lock instead of failing, polling until success, context cancellation, or
// the wait budget elapsing. A held restore lock still fails immediately:
// nothing should queue behind a restore.
func (l *Lock) AcquireQueued(ctx context.Context, operation string, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		err := l.Acquire(operation)
		if err == nil || !models.ErrConflict.Has(err) {
			return err
		}
		if l.Holder() == OpRestore {
			return err
		}
		if time.Now().After(deadline) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(acquirePollInterval):
		}
	}
}

func (l *Lock) write(f *os.File, operation string) error {
	rec := record{Operation: operation, AcquiredAt: time.Now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		f.Close()
		os.Remove(l.path)
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(l.path)
		return err
	}
	return f.Close()
}

func (l *Lock) read() (*record, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Release deletes the lock record. Releasing an unheld lock is a no-op.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Holder reports the operation named by a live lock, or "" when the slot is
// free. Stale lock files are removed on sight. Read and parse failures
// report the slot as free so that status checks never block operations.
func (l *Lock) Holder() string {
	rec, err := l.read()
	if err != nil {
		return ""
	}
	if time.Since(rec.AcquiredAt) >= l.ttl {
		_ = os.Remove(l.path)
		return ""
	}
	return rec.Operation
}

// Manager hands out the per-family locks, all rooted in one directory.
type Manager struct {
	dir string
	ttl time.Duration

	mu    sync.Mutex
	locks map[Family]*Lock
}

// NewManager creates a manager whose lock files live under dir.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir, ttl: DefaultTTL, locks: make(map[Family]*Lock)}
}

// Lock returns the slot for the given family, creating it on first use.
func (m *Manager) Lock(family Family) *Lock {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[family]
	if !ok {
		l = NewWithTTL(filepath.Join(m.dir, string(family)+"-operation.lock"), m.ttl)
		m.locks[family] = l
	}
	return l
}

// ForDatabase returns the slot guarding the given database type.
func (m *Manager) ForDatabase(dbType models.DatabaseType) *Lock {
	return m.Lock(FamilyFor(dbType))
}

// RestoreInProgress reports whether any family currently holds a restore
// lock. It is used by the write-guard middleware and fails open.
func (m *Manager) RestoreInProgress() bool {
	for _, family := range []Family{FamilySQL, FamilyGraph} {
		if m.Lock(family).Holder() == OpRestore {
			return true
		}
	}
	return false
}

// ActiveOperation returns the operation named by any live lock, preferring
// restore over backup when both families are busy, or "" when every slot is
// free.
func (m *Manager) ActiveOperation() string {
	active := ""
	for _, family := range []Family{FamilySQL, FamilyGraph} {
		switch m.Lock(family).Holder() {
		case OpRestore:
			return OpRestore
		case OpBackup:
			active = OpBackup
		}
	}
	return active
}
