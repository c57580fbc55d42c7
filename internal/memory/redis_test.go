package memory

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/agentkernel/core/internal/observability"
	"github.com/agentkernel/core/pkg/models"
)

func newTestRedisBackend(t *testing.T) (*Redis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := NewRedis(client, "agentkernel-mem-test:")
	return r, func() {
		client.Close()
		mr.Close()
	}
}

func TestRedis_StoreThenLoadRoundTrip(t *testing.T) {
	r, cleanup := newTestRedisBackend(t)
	defer cleanup()
	ctx := context.Background()
	key := models.MemoryKey("k1")

	if err := r.Store(ctx, Update{Key: key, Value: []byte("v1")}); err != nil {
		t.Fatalf("store: %v", err)
	}
	v, ok, err := r.Load(ctx, key)
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("load = %q, %v, %v", v, ok, err)
	}
}

func TestRedis_LoadMissingKeyReportsNotFound(t *testing.T) {
	r, cleanup := newTestRedisBackend(t)
	defer cleanup()
	_, ok, err := r.Load(context.Background(), models.MemoryKey("missing"))
	if err != nil || ok {
		t.Fatalf("expected not-found, got ok=%v err=%v", ok, err)
	}
}

func TestRedis_StoreManyPopulatesAllKeys(t *testing.T) {
	r, cleanup := newTestRedisBackend(t)
	defer cleanup()
	ctx := context.Background()
	updates := []Update{
		{Key: models.MemoryKey("a"), Value: []byte("1")},
		{Key: models.MemoryKey("b"), Value: []byte("2")},
	}
	if err := r.StoreMany(ctx, updates); err != nil {
		t.Fatalf("store many: %v", err)
	}
	values, found, err := r.LoadMany(ctx, []models.MemoryKey{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("load many: %v", err)
	}
	if !found[0] || string(values[0]) != "1" || !found[1] || string(values[1]) != "2" || found[2] {
		t.Fatalf("values=%v found=%v", values, found)
	}
}

func TestRedisTx_CommitAppliesStagedWrites(t *testing.T) {
	r, cleanup := newTestRedisBackend(t)
	defer cleanup()
	ctx := context.Background()
	key := models.MemoryKey("tx-key")

	tx, err := r.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.Store(ctx, Update{Key: key, Value: []byte("staged")}); err != nil {
		t.Fatalf("tx store: %v", err)
	}
	if _, ok, _ := r.Load(ctx, key); ok {
		t.Fatal("backend should not observe staged write before commit")
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	v, ok, _ := r.Load(ctx, key)
	if !ok || string(v) != "staged" {
		t.Fatalf("after commit: got %q, ok=%v", v, ok)
	}
}

func TestRedisTx_CommitAfterFinishFails(t *testing.T) {
	r, cleanup := newTestRedisBackend(t)
	defer cleanup()
	ctx := context.Background()
	tx, _ := r.Begin(ctx)
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := tx.Commit(ctx); err == nil {
		t.Fatal("expected error committing an already-finished transaction")
	}
}

func TestRedis_KeysAreScopedByPrefix(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	a := NewRedis(client, "a:")
	b := NewRedis(client, "b:")
	a.Store(ctx, Update{Key: models.MemoryKey("shared"), Value: []byte("a-value")})

	if _, ok, _ := b.Load(ctx, models.MemoryKey("shared")); ok {
		t.Fatal("different prefix should not observe the other's write")
	}
}

func TestRedis_HealthCheckPings(t *testing.T) {
	r, cleanup := newTestRedisBackend(t)
	defer cleanup()
	h := r.HealthCheck(context.Background())
	if h.Status != observability.HealthOK {
		t.Fatalf("unexpected status: %+v", h)
	}
}
