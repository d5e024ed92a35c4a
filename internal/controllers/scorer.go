package controllers

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/amaumene/gosubarr/internal/models"
	"github.com/amaumene/gosubarr/internal/services/provider"
	"github.com/amaumene/gosubarr/internal/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Attribute weights. Episode identity comes from season and episode numbers,
// so the episode title carries no weight.
var (
	EpisodeWeights = map[string]int{
		"hash":             359,
		"series":           180,
		"year":             90,
		"season":           30,
		"episode":          30,
		"release_group":    15,
		"format":           7,
		"resolution":       2,
		"video_codec":      2,
		"hearing_impaired": 1,
		"title":            0,
	}

	MovieWeights = map[string]int{
		"hash":             119,
		"title":            60,
		"year":             30,
		"release_group":    15,
		"format":           7,
		"resolution":       2,
		"video_codec":      2,
		"hearing_impaired": 1,
	}
)

// MatchScorer assigns a score to a candidate by summing the weights of the
// attributes it shares with the video
type MatchScorer struct {
	defaultThreshold int
	thresholds       map[string]int
	hearingImpaired  *bool
	logger           *logrus.Logger
}

// NewMatchScorer creates a scorer. thresholds overrides the default per provider;
// a zero or missing entry falls back to it.
func NewMatchScorer(defaultThreshold int, thresholds map[string]int, hearingImpaired *bool, logger *logrus.Logger) *MatchScorer {
	return &MatchScorer{
		defaultThreshold: defaultThreshold,
		thresholds:       thresholds,
		hearingImpaired:  hearingImpaired,
		logger:           logger,
	}
}

// Threshold returns the minimum acceptable score for a provider
func (s *MatchScorer) Threshold(providerName string) int {
	if t, ok := s.thresholds[providerName]; ok && t > 0 {
		return t
	}
	return s.defaultThreshold
}

// Score returns the candidate's score against the video
func (s *MatchScorer) Score(video models.Video, c *models.Candidate) int {
	weights := weightsFor(video)
	score := 0
	for _, attr := range s.Matches(video, c) {
		score += weights[attr]
	}
	return score
}

// Matches lists the attributes the candidate and the video agree on
func (s *MatchScorer) Matches(video models.Video, c *models.Candidate) []string {
	h := c.Hints
	var matches []string
	add := func(attr string, ok bool) {
		if ok {
			matches = append(matches, attr)
		}
	}

	add("hash", video.Hash != "" && c.HashMatched)
	if video.Kind == models.KindEpisode {
		add("series", sameName(video.Series, h.Title))
		add("season", video.Season > 0 && video.Season == h.Season)
		add("episode", video.Episode > 0 && video.Episode == h.Episode)
	} else {
		add("title", sameName(video.Title, h.Title))
	}
	add("year", video.Year > 0 && video.Year == h.Year)
	add("release_group", sameText(video.ReleaseGroup, h.ReleaseGroup))
	add("format", sameText(video.Format, h.Format))
	add("resolution", sameText(video.Resolution, h.Resolution))
	add("video_codec", sameText(video.Codec, h.Codec))
	if s.hearingImpaired != nil {
		add("hearing_impaired", *s.hearingImpaired == (c.HearingImpaired || h.HearingImpaired))
	}
	return matches
}

// PickFromArchive scores every file name in an archive against the video and
// returns the best one. Below the provider threshold the archive is rejected.
func (s *MatchScorer) PickFromArchive(video models.Video, providerName string, files []models.ArchiveFile) (models.ArchiveFile, error) {
	scores := make([]int, len(files))
	for i, f := range files {
		scores[i] = s.Score(video, &models.Candidate{Hints: utils.ParseRelease(f.Name)})
	}

	best, ok := pickBest(scores, s.Threshold(providerName))
	if !ok {
		s.logger.WithFields(logrus.Fields{
			"video":     video.Name(),
			"provider":  providerName,
			"files":     len(files),
			"threshold": s.Threshold(providerName),
		}).Debug("No archive entry matches the video")
		return models.ArchiveFile{}, fmt.Errorf("%w: best of %d file(s) scored below %d", provider.ErrInvalidArchive, len(files), s.Threshold(providerName))
	}
	return files[best], nil
}

// pickBest returns the index of the highest score, or false when it is below threshold
func pickBest(scores []int, threshold int) (int, bool) {
	if len(scores) == 0 {
		return 0, false
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	top := order[0]
	if scores[top] < threshold {
		return 0, false
	}
	return top, true
}

func weightsFor(video models.Video) map[string]int {
	if video.Kind == models.KindEpisode {
		return EpisodeWeights
	}
	return MovieWeights
}

func sameText(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return normalize(a) == normalize(b)
}

// sameName tolerates one edit per ten characters
func sameName(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	longest := len([]rune(na))
	if n := len([]rune(nb)); n > longest {
		longest = n
	}
	return levenshtein.ComputeDistance(na, nb) <= longest/10
}

// normalize lowercases, strips accents and punctuation and collapses whitespace
func normalize(s string) string {
	accents := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(accents, s)
	if err != nil {
		stripped = s
	}
	stripped = strings.ReplaceAll(stripped, "&", " and ")
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		case r == '\'':
			return -1
		}
		return ' '
	}, stripped)
	return strings.Join(strings.Fields(cleaned), " ")
}
