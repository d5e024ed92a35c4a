package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Candidate is one subtitle offered by one provider for one video
type Candidate struct {
	Provider    string
	ID          string // provider-local identifier
	Language    Language
	ReleaseName string
	Hints       ReleaseHints

	HashMatched     bool // the provider matched on the video's content hash
	HearingImpaired bool
	ProviderScore   float64
	PageLink        string
	DownloadURL     string
	SeenAt          time.Time

	// Target is the video the candidate was found for. Archive sources
	// need it at fetch time to pick the right file.
	Target *Video

	Score   int
	Content []byte
}

// Key identifies the candidate within the pool
func (c *Candidate) Key() string {
	return c.Provider + ":" + c.ID
}

// Fingerprint is the SHA-256 of the fetched content, empty before fetch
func (c *Candidate) Fingerprint() string {
	if len(c.Content) == 0 {
		return ""
	}
	return ContentFingerprint(c.Content)
}

// Clone returns a copy without content, safe to hand to another pass
func (c *Candidate) Clone() *Candidate {
	clone := *c
	clone.Content = nil
	clone.Score = 0
	return &clone
}

// ContentFingerprint hashes subtitle content
func ContentFingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ArchiveFile is one subtitle file extracted from a provider archive
type ArchiveFile struct {
	Name    string
	Content []byte
}
