package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(provider, id, content string) *Candidate {
	return &Candidate{
		Provider: provider,
		ID:       id,
		Language: MustLanguage("en"),
		Content:  []byte(content),
		Score:    100,
	}
}

func TestLedgerAddIsIdempotent(t *testing.T) {
	rec := NewLedgerRecord("item-1", "Movie")
	en := MustLanguage("en")
	c := candidate("opensubtitles", "42", "1\n00:00:01,000 --> 00:00:02,000\nHello\n")

	require.True(t, rec.Add("p1", en, c, StorageFilesystem, ModeAppend))
	assert.True(t, rec.Dirty())
	rec.MarkSaved()

	before := rec.Entries("p1", en)
	assert.False(t, rec.Add("p1", en, c, StorageFilesystem, ModeAppend))
	assert.False(t, rec.Add("p1", en, c, StorageMetadata, ModeOverwrite))
	assert.Equal(t, before, rec.Entries("p1", en))
	assert.False(t, rec.Dirty(), "duplicate add must not mutate the record")
}

func TestLedgerAppendKeepsHistory(t *testing.T) {
	rec := NewLedgerRecord("item-1", "Movie")
	en := MustLanguage("en")

	require.True(t, rec.Add("p1", en, candidate("a", "1", "one"), StorageFilesystem, ModeAppend))
	require.True(t, rec.Add("p1", en, candidate("b", "2", "two"), StorageFilesystem, ModeAppend))

	entries := rec.Entries("p1", en)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Provider)
	assert.Equal(t, "b", entries[1].Provider)
	assert.Equal(t, ModeAppend, entries[1].Mode)
}

func TestLedgerOverwriteReplacesLanguageOnly(t *testing.T) {
	rec := NewLedgerRecord("item-1", "Movie")
	en := MustLanguage("en")
	fr := MustLanguage("fr")

	rec.Add("p1", en, candidate("a", "1", "one"), StorageFilesystem, ModeAppend)
	rec.Add("p1", fr, candidate("a", "9", "neuf"), StorageFilesystem, ModeAppend)
	require.True(t, rec.Add("p1", en, candidate("b", "2", "two"), StorageMetadata, ModeOverwrite))

	entries := rec.Entries("p1", en)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].Provider)
	assert.Equal(t, ModeOverwrite, entries[0].Mode)
	assert.Len(t, rec.Entries("p1", fr), 1)
}

func TestLedgerQueries(t *testing.T) {
	rec := NewLedgerRecord("item-1", "Movie")
	en := MustLanguage("en")
	c := candidate("a", "1", "one")

	assert.False(t, rec.Tried("p1", en, "a", "1"))
	rec.Add("p1", en, c, StorageNone, ModeAppend)

	assert.True(t, rec.Tried("p1", en, "a", "1"))
	assert.False(t, rec.Tried("p2", en, "a", "1"))
	assert.True(t, rec.HasFingerprint("p1", en, c.Fingerprint()))
	assert.False(t, rec.HasFingerprint("p1", en, ""))
	assert.False(t, rec.Stored("p1", en), "a confirmed-bad entry is not a stored subtitle")

	rec.Add("p1", en, candidate("a", "2", "two"), StorageFilesystem, ModeAppend)
	assert.True(t, rec.Stored("p1", en))
}

func TestLedgerNoMatchClearedByStore(t *testing.T) {
	rec := NewLedgerRecord("item-1", "Movie")
	en := MustLanguage("en")
	now := time.Now()

	rec.MarkNoMatch("p1", en, now)
	at, ok := rec.LastNoMatch("p1", en)
	require.True(t, ok)
	assert.True(t, at.Equal(now))

	rec.Add("p1", en, candidate("a", "1", "one"), StorageFilesystem, ModeAppend)
	_, ok = rec.LastNoMatch("p1", en)
	assert.False(t, ok)
}

func TestLedgerZeroValueRecord(t *testing.T) {
	var rec LedgerRecord
	en := MustLanguage("en")

	assert.False(t, rec.Stored("p1", en))
	_, ok := rec.LastNoMatch("p1", en)
	assert.False(t, ok)
	assert.True(t, rec.Add("p1", en, candidate("a", "1", "x"), StorageFilesystem, ModeAppend))
}
