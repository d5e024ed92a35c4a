package models

import "time"

// TaskRecord is the persisted history of a scheduled task
type TaskRecord struct {
	Name          string `boltholdKey:"Name"`
	LastRun       time.Time
	LastDuration  time.Duration
	LastError     string
	LastProcessed int
	LastTotal     int
}

// IgnoreEntry excludes a section, a series or a single item from acquisition
type IgnoreEntry struct {
	Key     string     `boltholdKey:"Key"`
	Kind    IgnoreKind `boltholdIndex:"Kind"`
	ID      string
	Title   string
	AddedAt time.Time
}

// IgnoreKey builds the storage key for an ignore entry
func IgnoreKey(kind IgnoreKind, id string) string {
	return string(kind) + ":" + id
}
