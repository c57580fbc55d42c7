package memory

import (
	"context"
	"fmt"

	"github.com/agentkernel/core/pkg/models"
)

// Namespace wraps a Backend, transparently prefixing every key with a
// validated namespace. Namespaces do not leak across wrappers: two
// Namespace values over the same Backend with different prefixes never
// observe each other's keys.
type Namespace struct {
	backend Backend
	prefix  string
}

// NewNamespace validates name and wraps backend under it.
func NewNamespace(backend Backend, name string) (*Namespace, error) {
	if _, err := models.NewMemoryKey(name); err != nil {
		return nil, fmt.Errorf("memory: invalid namespace: %w", err)
	}
	return &Namespace{backend: backend, prefix: name + "."}, nil
}

func (n *Namespace) wrap(key models.MemoryKey) (models.MemoryKey, error) {
	return models.NewMemoryKey(n.prefix + string(key))
}

// Load implements Reader.
func (n *Namespace) Load(ctx context.Context, key models.MemoryKey) ([]byte, bool, error) {
	wrapped, err := n.wrap(key)
	if err != nil {
		return nil, false, err
	}
	return n.backend.Load(ctx, wrapped)
}

// LoadMany implements Reader.
func (n *Namespace) LoadMany(ctx context.Context, keys []models.MemoryKey) ([][]byte, []bool, error) {
	wrapped := make([]models.MemoryKey, len(keys))
	for i, k := range keys {
		w, err := n.wrap(k)
		if err != nil {
			return nil, nil, err
		}
		wrapped[i] = w
	}
	return n.backend.LoadMany(ctx, wrapped)
}

// Store implements Writer.
func (n *Namespace) Store(ctx context.Context, update Update) error {
	wrapped, err := n.wrap(update.Key)
	if err != nil {
		return err
	}
	return n.backend.Store(ctx, Update{Key: wrapped, Value: update.Value})
}

// StoreMany implements Writer.
func (n *Namespace) StoreMany(ctx context.Context, updates []Update) error {
	wrapped := make([]Update, len(updates))
	for i, u := range updates {
		w, err := n.wrap(u.Key)
		if err != nil {
			return err
		}
		wrapped[i] = Update{Key: w, Value: u.Value}
	}
	return n.backend.StoreMany(ctx, wrapped)
}

// Begin implements Transactional by delegating to the underlying
// backend; the caller is responsible for wrapping keys inside the
// transaction since Tx does not carry the namespace prefix itself.
func (n *Namespace) Begin(ctx context.Context) (Tx, error) {
	tx, err := n.backend.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &namespacedTx{tx: tx, ns: n}, nil
}

type namespacedTx struct {
	tx Tx
	ns *Namespace
}

func (t *namespacedTx) Load(ctx context.Context, key models.MemoryKey) ([]byte, bool, error) {
	wrapped, err := t.ns.wrap(key)
	if err != nil {
		return nil, false, err
	}
	return t.tx.Load(ctx, wrapped)
}

func (t *namespacedTx) LoadMany(ctx context.Context, keys []models.MemoryKey) ([][]byte, []bool, error) {
	wrapped := make([]models.MemoryKey, len(keys))
	for i, k := range keys {
		w, err := t.ns.wrap(k)
		if err != nil {
			return nil, nil, err
		}
		wrapped[i] = w
	}
	return t.tx.LoadMany(ctx, wrapped)
}

func (t *namespacedTx) Store(ctx context.Context, update Update) error {
	wrapped, err := t.ns.wrap(update.Key)
	if err != nil {
		return err
	}
	return t.tx.Store(ctx, Update{Key: wrapped, Value: update.Value})
}

func (t *namespacedTx) StoreMany(ctx context.Context, updates []Update) error {
	wrapped := make([]Update, len(updates))
	for i, u := range updates {
		w, err := t.ns.wrap(u.Key)
		if err != nil {
			return err
		}
		wrapped[i] = Update{Key: w, Value: u.Value}
	}
	return t.tx.StoreMany(ctx, wrapped)
}

func (t *namespacedTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *namespacedTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }
