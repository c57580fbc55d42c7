// Package memory implements the durable key/value memory abstraction:
// capability interfaces a backend may satisfy in part, a namespace
// wrapper, and concrete backends (in-process, file, SQLite, Postgres,
// Redis).
package memory

import (
	"context"

	"github.com/agentkernel/core/internal/observability"
	"github.com/agentkernel/core/pkg/models"
)

// Reader is the read-side capability.
type Reader interface {
	Load(ctx context.Context, key models.MemoryKey) ([]byte, bool, error)
	LoadMany(ctx context.Context, keys []models.MemoryKey) ([][]byte, []bool, error)
}

// Update is one key/value pair to write.
type Update struct {
	Key   models.MemoryKey
	Value []byte
}

// Writer is the write-side capability. StoreMany is atomic: all-or-nothing.
type Writer interface {
	Store(ctx context.Context, update Update) error
	StoreMany(ctx context.Context, updates []Update) error
}

// Tx is a staged transaction handle: reads observe prior writes within
// the same transaction; nothing is visible to other transactions until
// Commit.
type Tx interface {
	Reader
	Writer
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transactional is the capability to begin a staged transaction.
type Transactional interface {
	Begin(ctx context.Context) (Tx, error)
}

// Snapshot is an opaque, point-in-time handle independent of subsequent
// mutations.
type Snapshot interface {
	snapshotMarker()
}

// Snapshotable is the point-in-time backup/restore capability, distinct
// from Admin's operational backup/restore: a Snapshot is cheap, taken
// often (e.g. before a risky agent action), and restore is expected to
// be fast.
type Snapshotable interface {
	TakeSnapshot(ctx context.Context) (Snapshot, error)
	Restore(ctx context.Context, snap Snapshot) error
}

// Health describes one backend's probe result.
type Health struct {
	Status observability.HealthStatus
	LagMS  int64
	Reason string
}

// Admin is the operational capability: backup/restore distinct from
// snapshots (intended for disaster recovery, not per-transaction undo),
// schema migration, and health probing.
type Admin interface {
	Backup(ctx context.Context) ([]byte, error)
	RestoreBackup(ctx context.Context, backup []byte) error
	Migrate(ctx context.Context, schemaVersion int) error
	HealthCheck(ctx context.Context) Health
}

// Backend is the full capability bundle a concrete store may implement.
// Callers are expected to type-assert for the narrower capability they
// actually need (e.g. just Reader+Writer) rather than require Backend.
type Backend interface {
	Reader
	Writer
	Transactional
	Snapshotable
	Admin
	Close(ctx context.Context) error
}
