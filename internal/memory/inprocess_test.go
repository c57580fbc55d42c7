package memory

import (
	"context"
	"testing"

	"github.com/agentkernel/core/internal/observability"
	"github.com/agentkernel/core/pkg/models"
)

func TestInProcess_StoreThenLoadRoundTrip(t *testing.T) {
	ip := NewInProcess()
	ctx := context.Background()
	key := models.MemoryKey("k1")

	if err := ip.Store(ctx, Update{Key: key, Value: []byte("v1")}); err != nil {
		t.Fatalf("store: %v", err)
	}
	v, ok, err := ip.Load(ctx, key)
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("load = %q, %v, %v", v, ok, err)
	}
}

func TestInProcess_LoadMissingKeyReportsNotFound(t *testing.T) {
	ip := NewInProcess()
	_, ok, err := ip.Load(context.Background(), models.MemoryKey("missing"))
	if err != nil || ok {
		t.Fatalf("expected not-found, got ok=%v err=%v", ok, err)
	}
}

func TestInProcess_StoreManyIsAtomicAcrossShards(t *testing.T) {
	ip := NewInProcess()
	ctx := context.Background()
	updates := []Update{
		{Key: models.MemoryKey("a"), Value: []byte("1")},
		{Key: models.MemoryKey("bbbbbbbbbb"), Value: []byte("2")},
		{Key: models.MemoryKey("ccccccccccccc"), Value: []byte("3")},
	}
	if err := ip.StoreMany(ctx, updates); err != nil {
		t.Fatalf("store many: %v", err)
	}
	for _, u := range updates {
		v, ok, err := ip.Load(ctx, u.Key)
		if err != nil || !ok || string(v) != string(u.Value) {
			t.Fatalf("key %q: got %q, %v, %v", u.Key, v, ok, err)
		}
	}
}

func TestInProcessTx_IsolatesUntilCommit(t *testing.T) {
	ip := NewInProcess()
	ctx := context.Background()
	key := models.MemoryKey("tx-key")

	tx, err := ip.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.Store(ctx, Update{Key: key, Value: []byte("staged")}); err != nil {
		t.Fatalf("tx store: %v", err)
	}

	if _, ok, _ := ip.Load(ctx, key); ok {
		t.Fatal("backend should not observe staged write before commit")
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	v, ok, _ := ip.Load(ctx, key)
	if !ok || string(v) != "staged" {
		t.Fatalf("after commit: got %q, ok=%v", v, ok)
	}
}

func TestInProcessTx_RollbackDiscardsStagedWrites(t *testing.T) {
	ip := NewInProcess()
	ctx := context.Background()
	key := models.MemoryKey("rollback-key")

	tx, _ := ip.Begin(ctx)
	tx.Store(ctx, Update{Key: key, Value: []byte("staged")})
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if _, ok, _ := ip.Load(ctx, key); ok {
		t.Fatal("rolled-back write should not be visible")
	}
}

func TestInProcessTx_CommitAfterFinishFails(t *testing.T) {
	ip := NewInProcess()
	ctx := context.Background()
	tx, _ := ip.Begin(ctx)
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := tx.Commit(ctx); err == nil {
		t.Fatal("expected error committing an already-finished transaction")
	}
}

func TestInProcess_SnapshotRestoreUndoesSubsequentWrites(t *testing.T) {
	ip := NewInProcess()
	ctx := context.Background()
	key := models.MemoryKey("snap-key")

	ip.Store(ctx, Update{Key: key, Value: []byte("before")})
	snap, err := ip.TakeSnapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	ip.Store(ctx, Update{Key: key, Value: []byte("after")})

	if err := ip.Restore(ctx, snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	v, ok, _ := ip.Load(ctx, key)
	if !ok || string(v) != "before" {
		t.Fatalf("after restore: got %q, ok=%v, want before", v, ok)
	}
}

func TestInProcess_BackupRestoreBackupRoundTrip(t *testing.T) {
	ip := NewInProcess()
	ctx := context.Background()
	ip.Store(ctx, Update{Key: models.MemoryKey("k1"), Value: []byte("v1")})
	ip.Store(ctx, Update{Key: models.MemoryKey("k2"), Value: []byte("v2")})

	backup, err := ip.Backup(ctx)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}

	fresh := NewInProcess()
	if err := fresh.RestoreBackup(ctx, backup); err != nil {
		t.Fatalf("restore backup: %v", err)
	}
	v1, ok1, _ := fresh.Load(ctx, models.MemoryKey("k1"))
	v2, ok2, _ := fresh.Load(ctx, models.MemoryKey("k2"))
	if !ok1 || string(v1) != "v1" || !ok2 || string(v2) != "v2" {
		t.Fatalf("restored backend: k1=%q(%v) k2=%q(%v)", v1, ok1, v2, ok2)
	}
}

func TestInProcess_HealthCheckReportsOK(t *testing.T) {
	ip := NewInProcess()
	h := ip.HealthCheck(context.Background())
	if h.Status != observability.HealthOK {
		t.Fatalf("unexpected status: %+v", h)
	}
}
