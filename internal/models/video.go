package models

import (
	"fmt"
	"strings"
)

// Video describes one media file for a single acquisition pass
type Video struct {
	ID        string // stable item identity
	PartID    string
	SectionID string
	SeriesID  string
	Path      string

	Kind    VideoKind
	Title   string // movie title or episode title
	Series  string // episodes only
	Season  int
	Episode int
	Year    int

	// Technical hints parsed from the file name
	ReleaseGroup string
	Resolution   string
	Format       string
	Codec        string

	Hash string // content hash, empty when unknown
	Size int64

	ExistingLanguages []Language
}

// Signature identifies the video content independently of where the file lives.
// It is stable across re-scans and never uses the path.
func (v Video) Signature() string {
	if v.Hash != "" {
		return "hash:" + v.Hash
	}
	if v.Kind == KindEpisode {
		return fmt.Sprintf("episode:%s:%d:%d", signatureText(v.Series), v.Season, v.Episode)
	}
	return fmt.Sprintf("movie:%s:%d", signatureText(v.Title), v.Year)
}

// Name is a human readable label for logs
func (v Video) Name() string {
	if v.Kind == KindEpisode {
		return fmt.Sprintf("%s S%02dE%02d", v.Series, v.Season, v.Episode)
	}
	if v.Year > 0 {
		return fmt.Sprintf("%s (%d)", v.Title, v.Year)
	}
	return v.Title
}

// HasLanguage reports whether a subtitle in lang already exists for the video
func (v Video) HasLanguage(lang Language) bool {
	return ContainsLanguage(v.ExistingLanguages, lang)
}

func signatureText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ReleaseHints are the attributes a release name exposes
type ReleaseHints struct {
	Title           string
	Season          int
	Episode         int
	Year            int
	ReleaseGroup    string
	Resolution      string
	Format          string
	Codec           string
	HearingImpaired bool
}
