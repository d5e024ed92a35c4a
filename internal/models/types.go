package models

// VideoKind represents the type of media file (movie or episode)
type VideoKind string

const (
	KindMovie   VideoKind = "movie"
	KindEpisode VideoKind = "episode"
)

// StorageKind records where a subtitle ended up
type StorageKind string

const (
	StorageFilesystem StorageKind = "filesystem"
	StorageMetadata   StorageKind = "metadata"
	StorageNone       StorageKind = "none" // confirmed bad, nothing persisted
)

// LedgerMode controls how a new ledger entry treats earlier ones
type LedgerMode string

const (
	ModeAppend    LedgerMode = "a"
	ModeOverwrite LedgerMode = "o"
)

// Scope names one independently resettable slice of persistent state
type Scope string

const (
	ScopeTasks  Scope = "tasks"
	ScopeSubs   Scope = "subs"
	ScopeIgnore Scope = "ignore"
)

// Scopes lists every scope in a stable order
var Scopes = []Scope{ScopeTasks, ScopeSubs, ScopeIgnore}

// IgnoreKind is the granularity of an ignore list entry
type IgnoreKind string

const (
	IgnoreSections IgnoreKind = "sections"
	IgnoreSeries   IgnoreKind = "series"
	IgnoreItems    IgnoreKind = "items"
)

// Valid reports whether k is a known ignore kind
func (k IgnoreKind) Valid() bool {
	switch k {
	case IgnoreSections, IgnoreSeries, IgnoreItems:
		return true
	}
	return false
}

// LanguageStatus is the per-language result of one acquisition pass
type LanguageStatus string

const (
	StatusStored  LanguageStatus = "stored"
	StatusNoMatch LanguageStatus = "no_match"
	StatusFailed  LanguageStatus = "failed"
	StatusSkipped LanguageStatus = "skipped"
)
