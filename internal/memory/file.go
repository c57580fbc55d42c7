package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentkernel/core/internal/observability"
	"github.com/agentkernel/core/pkg/models"
)

// fileRecord is one JSON-lines entry in the append log.
type fileRecord struct {
	Key     models.MemoryKey `json:"key"`
	Value   []byte            `json:"value"`
	Version uint64            `json:"version"`
}

// File is the crash-safe backend: an append-only JSON-lines log, fsynced
// on every commit, with periodic compaction into a snapshot file swapped
// in via atomic rename.
type File struct {
	mu       sync.Mutex
	dir      string
	logPath  string
	logFile  *os.File
	data     map[models.MemoryKey][]byte
	versions map[models.MemoryKey]uint64

	// watcher detects writes to logPath that did not originate from
	// this process's own appendLocked calls: an operator dropping a
	// restored snapshot into dir out-of-band. pendingInternal tracks
	// writes we issued ourselves so the watch loop can tell them apart
	// from an external one; externalChange latches until the next
	// HealthCheck reloads the on-disk state.
	watcher         *fsnotify.Watcher
	pendingInternal int32
	externalChange  int32
	lastExternalAt  atomic.Value // time.Time
}

// NewFile opens (creating if necessary) a file-backed store rooted at dir.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("memory: mkdir %s: %w", dir, err)
	}
	f := &File{
		dir:      dir,
		logPath:  filepath.Join(dir, "log.jsonl"),
		data:     make(map[models.MemoryKey][]byte),
		versions: make(map[models.MemoryKey]uint64),
	}
	if err := f.replay(); err != nil {
		return nil, err
	}
	logFile, err := os.OpenFile(f.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("memory: open log: %w", err)
	}
	f.logFile = logFile

	if watcher, err := fsnotify.NewWatcher(); err == nil {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
		} else {
			f.watcher = watcher
			go f.watchExternalChanges()
		}
	}
	return f, nil
}

// watchExternalChanges consumes fsnotify events for dir and flags any
// write/create/rename targeting logPath that this process did not issue
// itself as an external snapshot restore, for HealthCheck to pick up.
func (f *File) watchExternalChanges() {
	for {
		select {
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != f.logPath {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if atomic.AddInt32(&f.pendingInternal, -1) >= 0 {
				continue
			}
			atomic.StoreInt32(&f.pendingInternal, 0)
			atomic.StoreInt32(&f.externalChange, 1)
			f.lastExternalAt.Store(time.Now())
		case _, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (f *File) replay() error {
	fh, err := os.Open(f.logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("memory: open log for replay: %w", err)
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var rec fileRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		f.data[rec.Key] = rec.Value
		f.versions[rec.Key] = rec.Version
	}
	return scanner.Err()
}

func (f *File) appendLocked(rec fileRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	if f.watcher != nil {
		atomic.AddInt32(&f.pendingInternal, 1)
	}
	if _, err := f.logFile.Write(payload); err != nil {
		return err
	}
	return f.logFile.Sync()
}

// Load implements Reader.
func (f *File) Load(ctx context.Context, key models.MemoryKey) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

// LoadMany implements Reader.
func (f *File) LoadMany(ctx context.Context, keys []models.MemoryKey) ([][]byte, []bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values := make([][]byte, len(keys))
	found := make([]bool, len(keys))
	for i, k := range keys {
		values[i], found[i] = f.data[k]
	}
	return values, found, nil
}

// Store implements Writer: durable before return (fsync per write).
func (f *File) Store(ctx context.Context, u Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ver := f.versions[u.Key] + 1
	if err := f.appendLocked(fileRecord{Key: u.Key, Value: u.Value, Version: ver}); err != nil {
		return fmt.Errorf("memory: append: %w", err)
	}
	f.data[u.Key] = u.Value
	f.versions[u.Key] = ver
	return nil
}

// StoreMany implements Writer atomically by appending every record under
// one lock hold before updating the in-memory view.
func (f *File) StoreMany(ctx context.Context, updates []Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range updates {
		ver := f.versions[u.Key] + 1
		if err := f.appendLocked(fileRecord{Key: u.Key, Value: u.Value, Version: ver}); err != nil {
			return fmt.Errorf("memory: append: %w", err)
		}
		f.data[u.Key] = u.Value
		f.versions[u.Key] = ver
	}
	return nil
}

// Begin implements Transactional with an in-memory staging buffer that
// commits as one StoreMany call.
func (f *File) Begin(ctx context.Context) (Tx, error) {
	return &fileTx{backend: f, staged: make(map[models.MemoryKey][]byte)}, nil
}

type fileTx struct {
	backend *File
	staged  map[models.MemoryKey][]byte
	done    bool
}

func (t *fileTx) Load(ctx context.Context, key models.MemoryKey) ([]byte, bool, error) {
	if v, ok := t.staged[key]; ok {
		return v, true, nil
	}
	return t.backend.Load(ctx, key)
}

func (t *fileTx) LoadMany(ctx context.Context, keys []models.MemoryKey) ([][]byte, []bool, error) {
	values := make([][]byte, len(keys))
	found := make([]bool, len(keys))
	for i, k := range keys {
		v, ok, _ := t.Load(ctx, k)
		values[i], found[i] = v, ok
	}
	return values, found, nil
}

func (t *fileTx) Store(ctx context.Context, u Update) error {
	t.staged[u.Key] = u.Value
	return nil
}

func (t *fileTx) StoreMany(ctx context.Context, updates []Update) error {
	for _, u := range updates {
		t.staged[u.Key] = u.Value
	}
	return nil
}

func (t *fileTx) Commit(ctx context.Context) error {
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

func (t *fileTx) Rollback(ctx context.Context) error {
	t.done = true
	t.staged = nil
	return nil
}

type fileSnapshot struct{ data map[models.MemoryKey][]byte }

func (fileSnapshot) snapshotMarker() {}

// TakeSnapshot implements Snapshotable with a deep copy of the current
// in-memory view (independent of subsequent appends).
func (f *File) TakeSnapshot(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := make(map[models.MemoryKey][]byte, len(f.data))
	for k, v := range f.data {
		copied[k] = append([]byte{}, v...)
	}
	return fileSnapshot{data: copied}, nil
}

// Restore implements Snapshotable by writing a compacted log (one record
// per key) and atomically renaming it over the live log, then reloading
// the in-memory view — mirrors the atomic-rename idiom used elsewhere in
// this codebase for crash-safe file swaps.
func (f *File) Restore(ctx context.Context, snap Snapshot) error {
	typed, ok := snap.(fileSnapshot)
	if !ok {
		return fmt.Errorf("memory: snapshot type mismatch")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp := f.logPath + ".tmp"
	tf, err := os.Create(tmp)
	if err != nil {
		return err
	}
	versions := make(map[models.MemoryKey]uint64, len(typed.data))
	for k, v := range typed.data {
		ver := f.versions[k] + 1
		versions[k] = ver
		rec := fileRecord{Key: k, Value: v, Version: ver}
		payload, err := json.Marshal(rec)
		if err != nil {
			tf.Close()
			return err
		}
		if _, err := tf.Write(append(payload, '\n')); err != nil {
			tf.Close()
			return err
		}
	}
	if err := tf.Sync(); err != nil {
		tf.Close()
		return err
	}
	if err := tf.Close(); err != nil {
		return err
	}
	if err := f.logFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, f.logPath); err != nil {
		return err
	}
	logFile, err := os.OpenFile(f.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	f.logFile = logFile
	f.data = typed.data
	f.versions = versions
	return nil
}

// Backup implements Admin by returning the current snapshot's serialized
// form.
func (f *File) Backup(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	recs := make([]fileRecord, 0, len(f.data))
	for k, v := range f.data {
		recs = append(recs, fileRecord{Key: k, Value: v, Version: f.versions[k]})
	}
	return json.Marshal(recs)
}

// RestoreBackup implements Admin, replacing contents with a Backup payload.
func (f *File) RestoreBackup(ctx context.Context, backup []byte) error {
	var recs []fileRecord
	if err := json.Unmarshal(backup, &recs); err != nil {
		return fmt.Errorf("memory: decode backup: %w", err)
	}
	data := make(map[models.MemoryKey][]byte, len(recs))
	for _, r := range recs {
		data[r.Key] = r.Value
	}
	return f.Restore(ctx, fileSnapshot{data: data})
}

// Migrate is a no-op: the file backend has no versioned schema beyond
// the log format itself.
func (f *File) Migrate(ctx context.Context, schemaVersion int) error { return nil }

// HealthCheck implements Admin with a probe write/read. If the
// directory watcher observed an external write to the log file since
// the last check (an operator restoring a snapshot out-of-band), the
// in-memory view is reloaded first and the measured reload lag is
// reported alongside Degraded, so staleness is visible for exactly one
// probe cycle rather than silently self-healing.
func (f *File) HealthCheck(ctx context.Context) Health {
	var lagMS int64
	degraded := false
	if f.watcher != nil && atomic.CompareAndSwapInt32(&f.externalChange, 1, 0) {
		changedAt, _ := f.lastExternalAt.Load().(time.Time)
		f.mu.Lock()
		f.data = make(map[models.MemoryKey][]byte)
		f.versions = make(map[models.MemoryKey]uint64)
		err := f.replay()
		f.mu.Unlock()
		if err != nil {
			return Health{Status: observability.HealthFail, Reason: "reload after external snapshot restore: " + err.Error()}
		}
		if !changedAt.IsZero() {
			lagMS = time.Since(changedAt).Milliseconds()
		}
		degraded = true
	}

	probeKey := models.MemoryKey("__health_probe__")
	if err := f.Store(ctx, Update{Key: probeKey, Value: []byte("ok")}); err != nil {
		return Health{Status: observability.HealthFail, Reason: err.Error()}
	}
	if degraded {
		return Health{Status: observability.HealthDegraded, LagMS: lagMS, Reason: "reloaded after externally restored snapshot"}
	}
	return Health{Status: observability.HealthOK}
}

// Close implements Backend, closing the underlying log file and
// directory watcher.
func (f *File) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watcher != nil {
		f.watcher.Close()
	}
	if f.logFile != nil {
		return f.logFile.Close()
	}
	return nil
}
