package models

import "time"

// LedgerEntry records one subtitle that was stored or confirmed bad
type LedgerEntry struct {
	Provider    string
	SubtitleID  string
	Fingerprint string
	Storage     StorageKind
	Score       int
	Mode        LedgerMode
	RecordedAt  time.Time
}

// LedgerRecord holds every subtitle outcome for one library item.
// Parts maps part ID to language to entries in insertion order.
type LedgerRecord struct {
	ItemID    string `boltholdKey:"ItemID"`
	Title     string
	Parts     map[string]map[string][]LedgerEntry
	NoMatch   map[string]map[string]time.Time
	UpdatedAt time.Time

	dirty bool
}

// NewLedgerRecord creates an empty record for an item
func NewLedgerRecord(itemID, title string) *LedgerRecord {
	return &LedgerRecord{
		ItemID:  itemID,
		Title:   title,
		Parts:   make(map[string]map[string][]LedgerEntry),
		NoMatch: make(map[string]map[string]time.Time),
	}
}

// Add records a subtitle for (part, language). It returns false and leaves
// the record untouched when the same provider, subtitle and content are
// already present. Overwrite mode drops earlier entries for the language.
func (r *LedgerRecord) Add(partID string, lang Language, c *Candidate, storage StorageKind, mode LedgerMode) bool {
	fp := c.Fingerprint()
	entries := r.entries(partID, lang)
	for _, e := range entries {
		if e.Provider == c.Provider && e.SubtitleID == c.ID && e.Fingerprint == fp {
			return false
		}
	}

	r.ensure()
	langs, ok := r.Parts[partID]
	if !ok {
		langs = make(map[string][]LedgerEntry)
		r.Parts[partID] = langs
	}

	entry := LedgerEntry{
		Provider:    c.Provider,
		SubtitleID:  c.ID,
		Fingerprint: fp,
		Storage:     storage,
		Score:       c.Score,
		Mode:        mode,
		RecordedAt:  time.Now(),
	}

	if mode == ModeOverwrite {
		langs[lang.String()] = []LedgerEntry{entry}
	} else {
		langs[lang.String()] = append(langs[lang.String()], entry)
	}

	if storage != StorageNone {
		if nm, ok := r.NoMatch[partID]; ok {
			delete(nm, lang.String())
		}
	}

	r.UpdatedAt = entry.RecordedAt
	r.dirty = true
	return true
}

// Entries returns the entries for (part, language)
func (r *LedgerRecord) Entries(partID string, lang Language) []LedgerEntry {
	entries := r.entries(partID, lang)
	out := make([]LedgerEntry, len(entries))
	copy(out, entries)
	return out
}

// Tried reports whether a provider's subtitle was already recorded, stored or not
func (r *LedgerRecord) Tried(partID string, lang Language, provider, subtitleID string) bool {
	for _, e := range r.entries(partID, lang) {
		if e.Provider == provider && e.SubtitleID == subtitleID {
			return true
		}
	}
	return false
}

// HasFingerprint reports whether identical content was already recorded
func (r *LedgerRecord) HasFingerprint(partID string, lang Language, fp string) bool {
	if fp == "" {
		return false
	}
	for _, e := range r.entries(partID, lang) {
		if e.Fingerprint == fp {
			return true
		}
	}
	return false
}

// Stored reports whether any subtitle for (part, language) was persisted
func (r *LedgerRecord) Stored(partID string, lang Language) bool {
	for _, e := range r.entries(partID, lang) {
		if e.Storage != StorageNone {
			return true
		}
	}
	return false
}

// MarkNoMatch records that a pass found nothing usable for (part, language)
func (r *LedgerRecord) MarkNoMatch(partID string, lang Language, at time.Time) {
	r.ensure()
	nm, ok := r.NoMatch[partID]
	if !ok {
		nm = make(map[string]time.Time)
		r.NoMatch[partID] = nm
	}
	nm[lang.String()] = at
	r.UpdatedAt = at
	r.dirty = true
}

// LastNoMatch returns when (part, language) last came up empty
func (r *LedgerRecord) LastNoMatch(partID string, lang Language) (time.Time, bool) {
	if r.NoMatch == nil {
		return time.Time{}, false
	}
	at, ok := r.NoMatch[partID][lang.String()]
	return at, ok
}

// Dirty reports whether the record has unsaved changes
func (r *LedgerRecord) Dirty() bool {
	return r.dirty
}

// MarkSaved clears the dirty flag after a successful save
func (r *LedgerRecord) MarkSaved() {
	r.dirty = false
}

func (r *LedgerRecord) entries(partID string, lang Language) []LedgerEntry {
	if r.Parts == nil {
		return nil
	}
	return r.Parts[partID][lang.String()]
}

func (r *LedgerRecord) ensure() {
	if r.Parts == nil {
		r.Parts = make(map[string]map[string][]LedgerEntry)
	}
	if r.NoMatch == nil {
		r.NoMatch = make(map[string]map[string]time.Time)
	}
}
