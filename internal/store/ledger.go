package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/amaumene/gosubarr/internal/models"
	"github.com/timshannon/bolthold"
)

// LedgerStore persists one LedgerRecord per library item
type LedgerStore struct {
	store *bolthold.Store

	mu    sync.Mutex
	locks map[string]*itemLock
}

type itemLock struct {
	mu   sync.Mutex
	refs int
}

func newLedgerStore(store *bolthold.Store) *LedgerStore {
	return &LedgerStore{
		store: store,
		locks: make(map[string]*itemLock),
	}
}

// Lock serializes writers of one item. Load, mutate and save under it.
func (s *LedgerStore) Lock(itemID string) func() {
	s.mu.Lock()
	l, ok := s.locks[itemID]
	if !ok {
		l = &itemLock{}
		s.locks[itemID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, itemID)
		}
		s.mu.Unlock()
	}
}

// Get retrieves the record for an item
func (s *LedgerStore) Get(itemID string) (*models.LedgerRecord, error) {
	var rec models.LedgerRecord
	if err := s.store.Get(itemID, &rec); err != nil {
		return nil, err
	}
	rec.ItemID = itemID
	return &rec, nil
}

// LoadOrNew retrieves the record for an item or starts an empty one
func (s *LedgerStore) LoadOrNew(itemID, title string) (*models.LedgerRecord, error) {
	rec, err := s.Get(itemID)
	if errors.Is(err, bolthold.ErrNotFound) {
		return models.NewLedgerRecord(itemID, title), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger record %s: %w", itemID, err)
	}
	return rec, nil
}

// Save writes the whole record in one transaction. The record stays dirty on failure.
func (s *LedgerStore) Save(rec *models.LedgerRecord) error {
	if err := s.store.Upsert(rec.ItemID, rec); err != nil {
		return fmt.Errorf("failed to save ledger record %s: %w", rec.ItemID, err)
	}
	rec.MarkSaved()
	return nil
}

// All retrieves every ledger record
func (s *LedgerStore) All() ([]models.LedgerRecord, error) {
	var records []models.LedgerRecord
	err := s.store.Find(&records, nil)
	return records, err
}

// Reset removes every ledger record
func (s *LedgerStore) Reset() error {
	return s.store.DeleteMatching(&models.LedgerRecord{}, nil)
}
