package memory

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/agentkernel/core/internal/observability"
	"github.com/agentkernel/core/pkg/models"
)

const shardCount = 16

// InProcess is the default backend for tests: a sharded map, durable
// only for the process lifetime. Read-after-write is visible immediately
// since Store acquires the same shard lock a subsequent Load does.
type InProcess struct {
	shards [shardCount]*shard
}

type shard struct {
	mu   sync.RWMutex
	data map[models.MemoryKey][]byte
	vers map[models.MemoryKey]uint64
}

// NewInProcess builds an empty in-process backend.
func NewInProcess() *InProcess {
	ip := &InProcess{}
	for i := range ip.shards {
		ip.shards[i] = &shard{data: make(map[models.MemoryKey][]byte), vers: make(map[models.MemoryKey]uint64)}
	}
	return ip
}

func (ip *InProcess) shardFor(key models.MemoryKey) *shard {
	h := fnv32(string(key))
	return ip.shards[h%shardCount]
}

func fnv32(s string) uint32 {
	const prime = 16777619
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

// Load implements Reader.
func (ip *InProcess) Load(ctx context.Context, key models.MemoryKey) ([]byte, bool, error) {
	s := ip.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// LoadMany implements Reader.
func (ip *InProcess) LoadMany(ctx context.Context, keys []models.MemoryKey) ([][]byte, []bool, error) {
	values := make([][]byte, len(keys))
	found := make([]bool, len(keys))
	for i, k := range keys {
		v, ok, err := ip.Load(ctx, k)
		if err != nil {
			return nil, nil, err
		}
		values[i], found[i] = v, ok
	}
	return values, found, nil
}

// Store implements Writer.
func (ip *InProcess) Store(ctx context.Context, u Update) error {
	s := ip.shardFor(u.Key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]byte, len(u.Value))
	copy(v, u.Value)
	s.data[u.Key] = v
	s.vers[u.Key]++
	return nil
}

// StoreMany implements Writer atomically: every key is staged, then
// applied only once every key's shard lock has been acquired (shards are
// locked in a fixed key order to avoid deadlock across concurrent
// StoreMany calls with overlapping shard sets).
func (ip *InProcess) StoreMany(ctx context.Context, updates []Update) error {
	locked := make(map[int]*shard)
	order := make([]int, 0, len(updates))
	for _, u := range updates {
		idx := int(fnv32(string(u.Key)) % shardCount)
		if _, ok := locked[idx]; !ok {
			locked[idx] = ip.shards[idx]
			order = append(order, idx)
		}
	}
	for _, idx := range sortedInts(order) {
		locked[idx].mu.Lock()
		defer locked[idx].mu.Unlock()
	}
	for _, u := range updates {
		s := ip.shardFor(u.Key)
		v := make([]byte, len(u.Value))
		copy(v, u.Value)
		s.data[u.Key] = v
		s.vers[u.Key]++
	}
	return nil
}

func sortedInts(in []int) []int {
	out := append([]int{}, in...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Begin implements Transactional with an in-memory staging buffer.
func (ip *InProcess) Begin(ctx context.Context) (Tx, error) {
	return &inProcessTx{backend: ip, staged: make(map[models.MemoryKey][]byte), deleted: make(map[models.MemoryKey]bool)}, nil
}

type inProcessTx struct {
	backend *InProcess
	staged  map[models.MemoryKey][]byte
	deleted map[models.MemoryKey]bool
	done    bool
}

func (t *inProcessTx) Load(ctx context.Context, key models.MemoryKey) ([]byte, bool, error) {
	if t.deleted[key] {
		return nil, false, nil
	}
	if v, ok := t.staged[key]; ok {
		return v, true, nil
	}
	return t.backend.Load(ctx, key)
}

func (t *inProcessTx) LoadMany(ctx context.Context, keys []models.MemoryKey) ([][]byte, []bool, error) {
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

func (t *inProcessTx) Store(ctx context.Context, u Update) error {
	t.staged[u.Key] = u.Value
	delete(t.deleted, u.Key)
	return nil
}

func (t *inProcessTx) StoreMany(ctx context.Context, updates []Update) error {
	for _, u := range updates {
		if err := t.Store(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (t *inProcessTx) Commit(ctx context.Context) error {
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

func (t *inProcessTx) Rollback(ctx context.Context) error {
	t.done = true
	t.staged = nil
	return nil
}

// inProcessSnapshot is an opaque deep copy of every shard.
type inProcessSnapshot struct {
	shards [shardCount]map[models.MemoryKey][]byte
}

func (inProcessSnapshot) snapshotMarker() {}

// TakeSnapshot implements Snapshotable with a deep copy of all shards.
func (ip *InProcess) TakeSnapshot(ctx context.Context) (Snapshot, error) {
	var snap inProcessSnapshot
	for i, s := range ip.shards {
		s.mu.RLock()
		copied := make(map[models.MemoryKey][]byte, len(s.data))
		for k, v := range s.data {
			cp := make([]byte, len(v))
			copy(cp, v)
			copied[k] = cp
		}
		snap.shards[i] = copied
		s.mu.RUnlock()
	}
	return snap, nil
}

// Restore implements Snapshotable, replacing every shard's contents.
func (ip *InProcess) Restore(ctx context.Context, snap Snapshot) error {
	typed, ok := snap.(inProcessSnapshot)
	if !ok {
		return fmt.Errorf("memory: snapshot type mismatch")
	}
	for i, data := range typed.shards {
		s := ip.shards[i]
		s.mu.Lock()
		s.data = data
		s.mu.Unlock()
	}
	return nil
}

// Backup implements Admin by serializing the snapshot as a length-prefixed
// key/value stream.
func (ip *InProcess) Backup(ctx context.Context) ([]byte, error) {
	snap, err := ip.TakeSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	typed := snap.(inProcessSnapshot)
	var buf bytes.Buffer
	for _, shardData := range typed.shards {
		for k, v := range shardData {
			writeLenPrefixed(&buf, []byte(k))
			writeLenPrefixed(&buf, v)
		}
	}
	return buf.Bytes(), nil
}

// RestoreBackup implements Admin by replaying a Backup payload.
func (ip *InProcess) RestoreBackup(ctx context.Context, backup []byte) error {
	fresh := NewInProcess()
	r := bytes.NewReader(backup)
	for r.Len() > 0 {
		k, err := readLenPrefixed(r)
		if err != nil {
			return err
		}
		v, err := readLenPrefixed(r)
		if err != nil {
			return err
		}
		if err := fresh.Store(ctx, Update{Key: models.MemoryKey(k), Value: v}); err != nil {
			return err
		}
	}
	for i := range ip.shards {
		ip.shards[i] = fresh.shards[i]
	}
	return nil
}

// Migrate is a no-op: the in-process backend has no schema.
func (ip *InProcess) Migrate(ctx context.Context, schemaVersion int) error { return nil }

// HealthCheck implements Admin. The in-process backend never degrades.
func (ip *InProcess) HealthCheck(ctx context.Context) Health {
	return Health{Status: observability.HealthOK}
}

// Close implements Backend.
func (ip *InProcess) Close(ctx context.Context) error { return nil }
