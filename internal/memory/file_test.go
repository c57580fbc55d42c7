package memory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentkernel/core/internal/observability"
	"github.com/agentkernel/core/pkg/models"
)

func TestFile_StoreThenLoadRoundTrip(t *testing.T) {
	f, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("new file: %v", err)
	}
	defer f.Close(context.Background())

	ctx := context.Background()
	key := models.MemoryKey("k1")
	if err := f.Store(ctx, Update{Key: key, Value: []byte("v1")}); err != nil {
		t.Fatalf("store: %v", err)
	}
	v, ok, err := f.Load(ctx, key)
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("load = %q, %v, %v", v, ok, err)
	}
}

func TestFile_ReplaysLogOnReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	f, err := NewFile(dir)
	if err != nil {
		t.Fatalf("new file: %v", err)
	}
	if err := f.Store(ctx, Update{Key: models.MemoryKey("k1"), Value: []byte("v1")}); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := f.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewFile(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close(ctx)
	v, ok, err := reopened.Load(ctx, models.MemoryKey("k1"))
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("after reopen: got %q, ok=%v, err=%v", v, ok, err)
	}
}

func TestFileTx_CommitPersistsToLog(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	f, err := NewFile(dir)
	if err != nil {
		t.Fatalf("new file: %v", err)
	}
	defer f.Close(ctx)

	tx, err := f.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	key := models.MemoryKey("tx-key")
	if err := tx.Store(ctx, Update{Key: key, Value: []byte("staged")}); err != nil {
		t.Fatalf("tx store: %v", err)
	}
	if _, ok, _ := f.Load(ctx, key); ok {
		t.Fatal("backend should not observe staged write before commit")
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	v, ok, _ := f.Load(ctx, key)
	if !ok || string(v) != "staged" {
		t.Fatalf("after commit: got %q, ok=%v", v, ok)
	}
}

func TestFile_SnapshotRestoreUndoesSubsequentWrites(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	f, err := NewFile(dir)
	if err != nil {
		t.Fatalf("new file: %v", err)
	}
	defer f.Close(ctx)

	key := models.MemoryKey("snap-key")
	f.Store(ctx, Update{Key: key, Value: []byte("before")})
	snap, err := f.TakeSnapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	f.Store(ctx, Update{Key: key, Value: []byte("after")})

	if err := f.Restore(ctx, snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	v, ok, _ := f.Load(ctx, key)
	if !ok || string(v) != "before" {
		t.Fatalf("after restore: got %q, ok=%v, want before", v, ok)
	}
}

func TestFile_BackupRestoreBackupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	f, err := NewFile(dir)
	if err != nil {
		t.Fatalf("new file: %v", err)
	}
	defer f.Close(ctx)

	f.Store(ctx, Update{Key: models.MemoryKey("k1"), Value: []byte("v1")})
	backup, err := f.Backup(ctx)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}

	other, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("new other file: %v", err)
	}
	defer other.Close(ctx)
	if err := other.RestoreBackup(ctx, backup); err != nil {
		t.Fatalf("restore backup: %v", err)
	}
	v, ok, _ := other.Load(ctx, models.MemoryKey("k1"))
	if !ok || string(v) != "v1" {
		t.Fatalf("restored: got %q, ok=%v", v, ok)
	}
}

func TestFile_HealthCheckWritesProbe(t *testing.T) {
	f, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("new file: %v", err)
	}
	defer f.Close(context.Background())

	h := f.HealthCheck(context.Background())
	if h.Status != observability.HealthOK {
		t.Fatalf("unexpected unhealthy probe: %+v", h)
	}
}

func TestFile_HealthCheckDetectsExternallyRestoredSnapshot(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	f, err := NewFile(dir)
	if err != nil {
		t.Fatalf("new file: %v", err)
	}
	defer f.Close(ctx)
	if f.watcher == nil {
		t.Skip("fsnotify watcher unavailable in this environment")
	}

	if err := f.Store(ctx, Update{Key: models.MemoryKey("k1"), Value: []byte("v1")}); err != nil {
		t.Fatalf("store: %v", err)
	}

	// Simulate an operator dropping a restored log file into dir from
	// outside this process: write directly to the path, bypassing
	// appendLocked so pendingInternal is never incremented.
	external := fileRecord{Key: models.MemoryKey("k2"), Value: []byte("external"), Version: 1}
	payload, err := json.Marshal(external)
	if err != nil {
		t.Fatalf("marshal external record: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "log.jsonl"), append(payload, '\n'), 0o644); err != nil {
		t.Fatalf("simulate external write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&f.externalChange) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	h := f.HealthCheck(ctx)
	if h.Status != observability.HealthDegraded {
		t.Fatalf("expected Degraded after external restore, got %+v", h)
	}
	v, ok, _ := f.Load(ctx, models.MemoryKey("k2"))
	if !ok || string(v) != "external" {
		t.Fatalf("expected reload to pick up externally written key, got %q ok=%v", v, ok)
	}
}
