package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/amaumene/gosubarr/internal/models"
	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// ErrUnknownScope is returned for a scope name outside tasks, subs and ignore
var ErrUnknownScope = errors.New("unknown storage scope")

// DB wraps the bolthold store. Each scope lives in its own bucket.
type DB struct {
	store *bolthold.Store

	Tasks  *TaskStateStore
	Ledger *LedgerStore
	Ignore *IgnoreListStore
}

// Open opens (or creates) the database file
func Open(path string) (*DB, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &DB{
		store:  store,
		Tasks:  &TaskStateStore{store: store},
		Ledger: newLedgerStore(store),
		Ignore: &IgnoreListStore{store: store},
	}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.store.Close()
}

// ParseScope validates a scope name
func ParseScope(name string) (models.Scope, error) {
	for _, s := range models.Scopes {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScope, name)
}

// Reset clears one whole scope. Other scopes are left untouched.
func (db *DB) Reset(scope models.Scope) error {
	switch scope {
	case models.ScopeTasks:
		return db.Tasks.Reset()
	case models.ScopeSubs:
		return db.Ledger.Reset()
	case models.ScopeIgnore:
		return db.Ignore.Reset()
	}
	return fmt.Errorf("%w: %q", ErrUnknownScope, scope)
}

// Dump returns every record in a scope for display
func (db *DB) Dump(scope models.Scope) (any, error) {
	switch scope {
	case models.ScopeTasks:
		return db.Tasks.All()
	case models.ScopeSubs:
		return db.Ledger.All()
	case models.ScopeIgnore:
		return db.Ignore.List("")
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScope, scope)
}
