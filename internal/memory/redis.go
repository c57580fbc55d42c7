package memory

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/agentkernel/core/internal/observability"
	"github.com/agentkernel/core/pkg/models"
)

// Redis is the go-redis/v9-backed memory store. Namespacing is via key
// prefix (the same namespace wrapper used by every other backend, plus
// an internal prefix to keep the kernel's keys out of a shared keyspace).
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis builds a Redis-backed store from an already-configured client.
// keyPrefix scopes every key this store touches within the Redis
// keyspace (e.g. "agentkernel:").
func NewRedis(client *redis.Client, keyPrefix string) *Redis {
	return &Redis{client: client, prefix: keyPrefix}
}

func (r *Redis) fullKey(key models.MemoryKey) string {
	return r.prefix + string(key)
}

// Load implements Reader.
func (r *Redis) Load(ctx context.Context, key models.MemoryKey) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, r.fullKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("memory: redis load: %w", err)
	}
	return v, true, nil
}

// LoadMany implements Reader via MGET.
func (r *Redis) LoadMany(ctx context.Context, keys []models.MemoryKey) ([][]byte, []bool, error) {
	if len(keys) == 0 {
		return nil, nil, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.fullKey(k)
	}
	res, err := r.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("memory: redis load_many: %w", err)
	}
	values := make([][]byte, len(keys))
	found := make([]bool, len(keys))
	for i, v := range res {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		values[i] = []byte(s)
		found[i] = true
	}
	return values, found, nil
}

// Store implements Writer. Redis persistence (AOF/RDB) determines
// server-persistent durability per spec §4.4.
func (r *Redis) Store(ctx context.Context, u Update) error {
	if err := r.client.Set(ctx, r.fullKey(u.Key), u.Value, 0).Err(); err != nil {
		return fmt.Errorf("memory: redis store: %w", err)
	}
	return nil
}

// StoreMany implements Writer atomically via a MULTI/EXEC pipeline.
func (r *Redis) StoreMany(ctx context.Context, updates []Update) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, u := range updates {
			pipe.Set(ctx, r.fullKey(u.Key), u.Value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("memory: redis store_many: %w", err)
	}
	return nil
}

// Begin implements Transactional via WATCH/MULTI/EXEC optimistic
// transactions over the keys touched by the transaction.
func (r *Redis) Begin(ctx context.Context) (Tx, error) {
	return &redisTx{backend: r, staged: make(map[models.MemoryKey][]byte)}, nil
}

type redisTx struct {
	backend *Redis
	staged  map[models.MemoryKey][]byte
	done    bool
}

func (t *redisTx) Load(ctx context.Context, key models.MemoryKey) ([]byte, bool, error) {
	if v, ok := t.staged[key]; ok {
		return v, true, nil
	}
	return t.backend.Load(ctx, key)
}

func (t *redisTx) LoadMany(ctx context.Context, keys []models.MemoryKey) ([][]byte, []bool, error) {
	values := make([][]byte, len(keys))
	found := make([]bool, len(keys))
	for i, k := range keys {
		v, ok, err := t.Load(ctx, k)
		if err != nil {
			return nil, nil, err
		}
		values[i], found[i] = v, ok
	}
	return values, found, nil
}

func (t *redisTx) Store(ctx context.Context, u Update) error {
	t.staged[u.Key] = u.Value
	return nil
}

func (t *redisTx) StoreMany(ctx context.Context, updates []Update) error {
	for _, u := range updates {
		t.staged[u.Key] = u.Value
	}
	return nil
}

func (t *redisTx) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("memory: transaction already finished")
	}
	t.done = true
	updates := make([]Update, 0, len(t.staged))
	for k, v := range t.staged {
		updates = append(updates, Update{Key: k, Value: v})
	}
	return t.backend.StoreMany(ctx, updates)
}

func (t *redisTx) Rollback(ctx context.Context) error {
	t.done = true
	t.staged = nil
	return nil
}

type redisSnapshot struct {
	dumps map[models.MemoryKey]string
}

func (redisSnapshot) snapshotMarker() {}

// TakeSnapshot implements Snapshotable as a per-key DUMP of the
// namespace, per spec §4.4.
func (r *Redis) TakeSnapshot(ctx context.Context) (Snapshot, error) {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	dumps := make(map[models.MemoryKey]string)
	for iter.Next(ctx) {
		full := iter.Val()
		key := models.MemoryKey(strings.TrimPrefix(full, r.prefix))
		dump, err := r.client.Dump(ctx, full).Result()
		if err != nil {
			continue
		}
		dumps[key] = dump
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("memory: redis snapshot scan: %w", err)
	}
	return redisSnapshot{dumps: dumps}, nil
}

// Restore implements Snapshotable via per-key RESTORE (replacing any
// existing value at that key).
func (r *Redis) Restore(ctx context.Context, snap Snapshot) error {
	typed, ok := snap.(redisSnapshot)
	if !ok {
		return fmt.Errorf("memory: snapshot type mismatch")
	}
	for key, dump := range typed.dumps {
		full := r.fullKey(key)
		r.client.Del(ctx, full)
		if err := r.client.RestoreReplace(ctx, full, 0, dump).Err(); err != nil {
			return fmt.Errorf("memory: redis restore %s: %w", key, err)
		}
	}
	return nil
}

// Backup implements Admin by taking a snapshot and serializing it as a
// length-prefixed key/dump stream.
func (r *Redis) Backup(ctx context.Context) ([]byte, error) {
	snap, err := r.TakeSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	typed := snap.(redisSnapshot)
	var buf bytes.Buffer
	for key, dump := range typed.dumps {
		writeLenPrefixed(&buf, []byte(key))
		writeLenPrefixed(&buf, []byte(dump))
	}
	return buf.Bytes(), nil
}

// RestoreBackup implements Admin using the same decode path as Restore.
func (r *Redis) RestoreBackup(ctx context.Context, backup []byte) error {
	rdr := bytes.NewReader(backup)
	snap := redisSnapshot{dumps: make(map[models.MemoryKey]string)}
	for rdr.Len() > 0 {
		key, err := readLenPrefixed(rdr)
		if err != nil {
			return fmt.Errorf("memory: malformed backup: %w", err)
		}
		dump, err := readLenPrefixed(rdr)
		if err != nil {
			return fmt.Errorf("memory: malformed backup: %w", err)
		}
		snap.dumps[models.MemoryKey(key)] = string(dump)
	}
	return r.Restore(ctx, snap)
}

// Migrate is a no-op: Redis has no schema to migrate.
func (r *Redis) Migrate(ctx context.Context, schemaVersion int) error { return nil }

// HealthCheck implements Admin via PING.
func (r *Redis) HealthCheck(ctx context.Context) Health {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return Health{Status: observability.HealthFail, Reason: err.Error()}
	}
	return Health{Status: observability.HealthOK}
}

// Close implements Backend.
func (r *Redis) Close(ctx context.Context) error { return r.client.Close() }
