package memory

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/agentkernel/core/internal/observability"
	"github.com/agentkernel/core/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	namespace TEXT NOT NULL DEFAULT '',
	key TEXT NOT NULL,
	value BLOB NOT NULL,
	version INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (namespace, key)
);
`

// SQLite is the modernc.org/sqlite-backed memory store: WAL mode,
// multi-reader/single-writer, migrations via a versioned schema table.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and migrates) a SQLite-backed store at path. Use
// ":memory:" for an ephemeral store in tests.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("memory: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer; WAL still allows concurrent readers via separate connections
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: migrate sqlite: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Load implements Reader.
func (s *SQLite) Load(ctx context.Context, key models.MemoryKey) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE namespace = '' AND key = ?`, string(key)).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("memory: sqlite load: %w", err)
	}
	return value, true, nil
}

// LoadMany implements Reader.
func (s *SQLite) LoadMany(ctx context.Context, keys []models.MemoryKey) ([][]byte, []bool, error) {
	values := make([][]byte, len(keys))
	found := make([]bool, len(keys))
	for i, k := range keys {
		v, ok, err := s.Load(ctx, k)
		if err != nil {
			return nil, nil, err
		}
		values[i], found[i] = v, ok
	}
	return values, found, nil
}

// Store implements Writer with a single upsert (crash-safe: the
// transaction underlying the upsert is fsynced by SQLite on commit).
func (s *SQLite) Store(ctx context.Context, u Update) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (namespace, key, value, version) VALUES ('', ?, ?, 1)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, version = kv.version + 1
	`, string(u.Key), u.Value)
	if err != nil {
		return fmt.Errorf("memory: sqlite store: %w", err)
	}
	return nil
}

// StoreMany implements Writer atomically via a single SQL transaction.
func (s *SQLite) StoreMany(ctx context.Context, updates []Update) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("memory: sqlite begin: %w", err)
	}
	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO kv (namespace, key, value, version) VALUES ('', ?, ?, 1)
			ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, version = kv.version + 1
		`, string(u.Key), u.Value); err != nil {
			tx.Rollback()
			return fmt.Errorf("memory: sqlite store_many: %w", err)
		}
	}
	return tx.Commit()
}

// Begin implements Transactional, mapping directly onto a SQL transaction.
func (s *SQLite) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("memory: sqlite begin: %w", err)
	}
	return &sqlTx{tx: tx}, nil
}

type sqlTx struct {
	tx   *sql.Tx
	done bool
}

func (t *sqlTx) Load(ctx context.Context, key models.MemoryKey) ([]byte, bool, error) {
	var value []byte
	err := t.tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE namespace = '' AND key = ?`, string(key)).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (t *sqlTx) LoadMany(ctx context.Context, keys []models.MemoryKey) ([][]byte, []bool, error) {
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

func (t *sqlTx) Store(ctx context.Context, u Update) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO kv (namespace, key, value, version) VALUES ('', ?, ?, 1)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, version = kv.version + 1
	`, string(u.Key), u.Value)
	return err
}

func (t *sqlTx) StoreMany(ctx context.Context, updates []Update) error {
	for _, u := range updates {
		if err := t.Store(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("memory: transaction already finished")
	}
	t.done = true
	return t.tx.Commit()
}

func (t *sqlTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

type sqlSnapshot struct{ rows [][2][]byte }

func (sqlSnapshot) snapshotMarker() {}

// TakeSnapshot implements Snapshotable as BEGIN; SELECT *; COMMIT into
// an opaque in-memory blob, per spec §4.4.
func (s *SQLite) TakeSnapshot(ctx context.Context) (Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT key, value FROM kv WHERE namespace = ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snap sqlSnapshot
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		snap.rows = append(snap.rows, [2][]byte{[]byte(k), v})
	}
	return snap, rows.Err()
}

// Restore implements Snapshotable by replacing the table contents inside
// one transaction.
func (s *SQLite) Restore(ctx context.Context, snap Snapshot) error {
	typed, ok := snap.(sqlSnapshot)
	if !ok {
		return fmt.Errorf("memory: snapshot type mismatch")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE namespace = ''`); err != nil {
		tx.Rollback()
		return err
	}
	for _, row := range typed.rows {
		if _, err := tx.ExecContext(ctx, `INSERT INTO kv (namespace, key, value, version) VALUES ('', ?, ?, 1)`, string(row[0]), row[1]); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Backup implements Admin by dumping every row as a length-prefixed
// key/value stream (safe for binary values containing any byte value).
func (s *SQLite) Backup(ctx context.Context) ([]byte, error) {
	snap, err := s.TakeSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	typed := snap.(sqlSnapshot)
	var buf bytes.Buffer
	for _, row := range typed.rows {
		writeLenPrefixed(&buf, row[0])
		writeLenPrefixed(&buf, row[1])
	}
	return buf.Bytes(), nil
}

// RestoreBackup implements Admin. Backup/RestoreBackup round-trip via
// TakeSnapshot/Restore's serialization; this method is retained for the
// Admin-capability surface distinct from the lighter Snapshotable path.
func (s *SQLite) RestoreBackup(ctx context.Context, backup []byte) error {
	snap, err := decodeSQLBackup(backup)
	if err != nil {
		return err
	}
	return s.Restore(ctx, snap)
}

func decodeSQLBackup(backup []byte) (sqlSnapshot, error) {
	var snap sqlSnapshot
	r := bytes.NewReader(backup)
	for r.Len() > 0 {
		key, err := readLenPrefixed(r)
		if err != nil {
			return snap, fmt.Errorf("memory: malformed backup: %w", err)
		}
		val, err := readLenPrefixed(r)
		if err != nil {
			return snap, fmt.Errorf("memory: malformed backup: %w", err)
		}
		snap.rows = append(snap.rows, [2][]byte{key, val})
	}
	return snap, nil
}

// Migrate implements Admin's schema migration. schemaVersion is not yet
// used (there is one schema generation); reserved for future ALTER TABLE
// migrations tracked in a schema_version table.
func (s *SQLite) Migrate(ctx context.Context, schemaVersion int) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

// HealthCheck implements Admin with a lightweight probe query.
func (s *SQLite) HealthCheck(ctx context.Context) Health {
	if err := s.db.PingContext(ctx); err != nil {
		return Health{Status: observability.HealthFail, Reason: err.Error()}
	}
	return Health{Status: observability.HealthOK}
}

// Close implements Backend.
func (s *SQLite) Close(ctx context.Context) error { return s.db.Close() }
