package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/amaumene/gosubarr/internal/models"
	"github.com/timshannon/bolthold"
)

// IgnoreListStore persists sections, series and items excluded from acquisition
type IgnoreListStore struct {
	store *bolthold.Store
}

// Add ignores an entity. Adding it twice keeps the first entry.
func (s *IgnoreListStore) Add(kind models.IgnoreKind, id, title string) error {
	if !kind.Valid() {
		return fmt.Errorf("invalid ignore kind %q", kind)
	}
	entry := &models.IgnoreEntry{
		Key:     models.IgnoreKey(kind, id),
		Kind:    kind,
		ID:      id,
		Title:   title,
		AddedAt: time.Now(),
	}
	err := s.store.Insert(entry.Key, entry)
	if errors.Is(err, bolthold.ErrKeyExists) {
		return nil
	}
	return err
}

// Remove stops ignoring an entity. Removing an unknown entry is not an error.
func (s *IgnoreListStore) Remove(kind models.IgnoreKind, id string) error {
	err := s.store.Delete(models.IgnoreKey(kind, id), &models.IgnoreEntry{})
	if errors.Is(err, bolthold.ErrNotFound) {
		return nil
	}
	return err
}

// IsIgnored reports whether an entity is on the ignore list
func (s *IgnoreListStore) IsIgnored(kind models.IgnoreKind, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	var entry models.IgnoreEntry
	err := s.store.Get(models.IgnoreKey(kind, id), &entry)
	if errors.Is(err, bolthold.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns the entries of one kind, or all entries when kind is empty
func (s *IgnoreListStore) List(kind models.IgnoreKind) ([]models.IgnoreEntry, error) {
	var entries []models.IgnoreEntry
	var query *bolthold.Query
	if kind != "" {
		query = bolthold.Where("Kind").Eq(kind)
	}
	err := s.store.Find(&entries, query)
	return entries, err
}

// Reset clears the ignore list
func (s *IgnoreListStore) Reset() error {
	return s.store.DeleteMatching(&models.IgnoreEntry{}, nil)
}
