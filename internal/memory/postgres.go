package memory

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/agentkernel/core/internal/observability"
	"github.com/agentkernel/core/pkg/models"
)

//go:embed migrations/*.sql
var postgresMigrations embed.FS

// Postgres is the lib/pq-backed memory store. Transactions map directly
// onto SQL transactions; ACID durability is delegated to the server.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool against dsn and runs embedded
// migrations.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("memory: open postgres: %w", err)
	}
	p := &Postgres{db: db}
	if err := p.RunMigrations(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// RunMigrations applies every embedded *.sql file in lexical order.
func (p *Postgres) RunMigrations(ctx context.Context) error {
	entries, err := postgresMigrations.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("memory: read migrations: %w", err)
	}
	for _, entry := range entries {
		data, err := postgresMigrations.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("memory: read migration %s: %w", entry.Name(), err)
		}
		if _, err := p.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("memory: apply migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Load implements Reader.
func (p *Postgres) Load(ctx context.Context, key models.MemoryKey) ([]byte, bool, error) {
	var value []byte
	err := p.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE namespace = '' AND key = $1`, string(key)).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("memory: postgres load: %w", err)
	}
	return value, true, nil
}

// LoadMany implements Reader.
func (p *Postgres) LoadMany(ctx context.Context, keys []models.MemoryKey) ([][]byte, []bool, error) {
	values := make([][]byte, len(keys))
	found := make([]bool, len(keys))
	for i, k := range keys {
		v, ok, err := p.Load(ctx, k)
		if err != nil {
			return nil, nil, err
		}
		values[i], found[i] = v, ok
	}
	return values, found, nil
}

// Store implements Writer via upsert; last-committer-wins on the same
// key is enforced by Postgres row-level locking during the upsert.
func (p *Postgres) Store(ctx context.Context, u Update) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO kv (namespace, key, value, version, updated_at) VALUES ('', $1, $2, 1, now())
		ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, version = kv.version + 1, updated_at = now()
	`, string(u.Key), u.Value)
	if err != nil {
		return fmt.Errorf("memory: postgres store: %w", err)
	}
	return nil
}

// StoreMany implements Writer atomically via one SQL transaction.
func (p *Postgres) StoreMany(ctx context.Context, updates []Update) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("memory: postgres begin: %w", err)
	}
	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO kv (namespace, key, value, version, updated_at) VALUES ('', $1, $2, 1, now())
			ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, version = kv.version + 1, updated_at = now()
		`, string(u.Key), u.Value); err != nil {
			tx.Rollback()
			return fmt.Errorf("memory: postgres store_many: %w", err)
		}
	}
	return tx.Commit()
}

// Begin implements Transactional, mapping onto a SQL transaction with
// SERIALIZABLE isolation so two concurrent commits on overlapping keys
// are genuinely serialized rather than merely locked row-by-row.
func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("memory: postgres begin: %w", err)
	}
	return &sqlTx{tx: tx}, nil
}

type pgSnapshot struct{ rows [][2][]byte }

func (pgSnapshot) snapshotMarker() {}

// TakeSnapshot implements Snapshotable as BEGIN; SELECT *; COMMIT.
func (p *Postgres) TakeSnapshot(ctx context.Context) (Snapshot, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT key, value FROM kv WHERE namespace = ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snap pgSnapshot
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

// Restore implements Snapshotable by replacing table contents in one
// transaction.
func (p *Postgres) Restore(ctx context.Context, snap Snapshot) error {
	typed, ok := snap.(pgSnapshot)
	if !ok {
		return fmt.Errorf("memory: snapshot type mismatch")
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE namespace = ''`); err != nil {
		tx.Rollback()
		return err
	}
	for _, row := range typed.rows {
		if _, err := tx.ExecContext(ctx, `INSERT INTO kv (namespace, key, value, version, updated_at) VALUES ('', $1, $2, 1, now())`, string(row[0]), row[1]); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Backup implements Admin with a length-prefixed key/value dump.
func (p *Postgres) Backup(ctx context.Context) ([]byte, error) {
	snap, err := p.TakeSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	typed := snap.(pgSnapshot)
	var buf bytes.Buffer
	for _, row := range typed.rows {
		writeLenPrefixed(&buf, row[0])
		writeLenPrefixed(&buf, row[1])
	}
	return buf.Bytes(), nil
}

// RestoreBackup implements Admin.
func (p *Postgres) RestoreBackup(ctx context.Context, backup []byte) error {
	r := bytes.NewReader(backup)
	var snap pgSnapshot
	for r.Len() > 0 {
		key, err := readLenPrefixed(r)
		if err != nil {
			return fmt.Errorf("memory: malformed backup: %w", err)
		}
		val, err := readLenPrefixed(r)
		if err != nil {
			return fmt.Errorf("memory: malformed backup: %w", err)
		}
		snap.rows = append(snap.rows, [2][]byte{key, val})
	}
	return p.Restore(ctx, snap)
}

// Migrate implements Admin by re-running embedded migrations; schemaVersion
// is reserved for a future schema_version tracking table.
func (p *Postgres) Migrate(ctx context.Context, schemaVersion int) error {
	return p.RunMigrations(ctx)
}

// HealthCheck implements Admin. Degraded is reported when the ping
// succeeds but replication lag (as reported by pg_stat_replication) is
// non-zero and above a threshold; this deployment treats any reachable
// primary as healthy since lag tracking requires a replica topology this
// backend does not assume.
func (p *Postgres) HealthCheck(ctx context.Context) Health {
	if err := p.db.PingContext(ctx); err != nil {
		return Health{Status: observability.HealthFail, Reason: err.Error()}
	}
	return Health{Status: observability.HealthOK}
}

// Close implements Backend.
func (p *Postgres) Close(ctx context.Context) error { return p.db.Close() }
