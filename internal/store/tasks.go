package store

import (
	"errors"

	"github.com/amaumene/gosubarr/internal/models"
	"github.com/timshannon/bolthold"
)

// TaskStateStore persists scheduler task history
type TaskStateStore struct {
	store *bolthold.Store
}

// Get retrieves a task record. The bool is false when the task never ran.
func (s *TaskStateStore) Get(name string) (models.TaskRecord, bool, error) {
	var rec models.TaskRecord
	err := s.store.Get(name, &rec)
	if errors.Is(err, bolthold.ErrNotFound) {
		return models.TaskRecord{Name: name}, false, nil
	}
	if err != nil {
		return models.TaskRecord{}, false, err
	}
	rec.Name = name
	return rec, true, nil
}

// Save inserts or updates a task record
func (s *TaskStateStore) Save(rec models.TaskRecord) error {
	return s.store.Upsert(rec.Name, &rec)
}

// All retrieves every task record
func (s *TaskStateStore) All() ([]models.TaskRecord, error) {
	var records []models.TaskRecord
	err := s.store.Find(&records, nil)
	return records, err
}

// Reset removes every task record
func (s *TaskStateStore) Reset() error {
	return s.store.DeleteMatching(&models.TaskRecord{}, nil)
}
