package podnapisi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/amaumene/gosubarr/internal/models"
	"github.com/amaumene/gosubarr/internal/services/provider"
	"github.com/amaumene/gosubarr/internal/utils"
	"github.com/sirupsen/logrus"
	"resty.dev/v3"
)

// Name identifies the adapter in configuration and in the ledger
const Name = "podnapisi"

const maxArchiveSize = 10 * 1024 * 1024

var subtitleExtensions = map[string]bool{
	".srt": true, ".sub": true, ".ass": true, ".ssa": true, ".vtt": true,
}

var supportedLanguages = map[string]bool{
	"en": true, "fr": true, "de": true, "es": true, "it": true, "pt": true, "pt-BR": true,
	"nl": true, "sl": true, "hr": true, "sr": true, "bs": true, "mk": true, "bg": true,
	"ro": true, "hu": true, "cs": true, "sk": true, "pl": true, "ru": true, "uk": true,
	"el": true, "tr": true, "ar": true, "he": true, "fa": true, "zh": true, "ja": true,
	"ko": true, "sv": true, "no": true, "da": true, "fi": true, "et": true, "lv": true,
	"lt": true, "is": true, "sq": true, "id": true, "ms": true, "vi": true, "th": true,
	"hi": true, "ca": true, "eu": true, "gl": true,
}

// ArchivePicker chooses the file in a multi-file archive that matches a video
type ArchivePicker interface {
	PickFromArchive(video models.Video, provider string, files []models.ArchiveFile) (models.ArchiveFile, error)
}

// Config holds adapter settings
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	MaxPages  int
}

// Client searches the Podnapisi XML API and unpacks its zip downloads
type Client struct {
	cfg    Config
	http   *resty.Client
	picker ArchivePicker
	logger *logrus.Logger
}

// NewClient creates a Podnapisi adapter
func NewClient(cfg Config, picker ArchivePicker, logger *logrus.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("podnapisi URL is required")
	}
	if picker == nil {
		return nil, fmt.Errorf("podnapisi requires an archive picker")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "gosubarr/1.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}

	rc := resty.New()
	rc.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	rc.SetTimeout(cfg.Timeout)
	rc.SetHeader("User-Agent", cfg.UserAgent)

	return &Client{cfg: cfg, http: rc, picker: picker, logger: logger}, nil
}

// Close releases the HTTP client
func (c *Client) Close() error {
	return c.http.Close()
}

func (c *Client) Name() string { return Name }

func (c *Client) Supports(lang models.Language) bool {
	return supportedLanguages[lang.String()]
}

func (c *Client) RequiresAuth() bool { return false }

func (c *Client) Initialize(ctx context.Context) error { return nil }

// Query searches every wanted language, following pagination up to MaxPages
func (c *Client) Query(ctx context.Context, video models.Video, langs []models.Language) ([]*models.Candidate, error) {
	var candidates []*models.Candidate
	seen := make(map[string]bool)

	for _, lang := range langs {
		for page := 1; page <= c.cfg.MaxPages; page++ {
			results, err := c.search(ctx, video, lang, page)
			if err != nil {
				return nil, err
			}

			for _, sub := range results.Subtitles {
				cand := toCandidate(sub, lang)
				if cand == nil || seen[cand.ID+"|"+lang.String()] {
					continue
				}
				seen[cand.ID+"|"+lang.String()] = true
				candidates = append(candidates, cand)
			}

			if atoi(results.Pagination.Current) >= atoi(results.Pagination.Count) {
				break
			}
		}
	}

	c.logger.WithFields(logrus.Fields{
		"video": video.Name(),
		"count": len(candidates),
	}).Debug("Podnapisi search completed")

	return candidates, nil
}

func (c *Client) search(ctx context.Context, video models.Video, lang models.Language, page int) (*searchResults, error) {
	params := map[string]string{
		"sXML": "1",
		"sL":   lang.String(),
		"page": strconv.Itoa(page),
	}
	if video.Kind == models.KindEpisode {
		params["sK"] = video.Series
		params["sTS"] = strconv.Itoa(video.Season)
		params["sTE"] = strconv.Itoa(video.Episode)
	} else {
		params["sK"] = video.Title
	}
	if video.Year > 0 {
		params["sY"] = strconv.Itoa(video.Year)
	}

	c.logger.WithFields(logrus.Fields{
		"video":    video.Name(),
		"language": lang.String(),
		"page":     page,
	}).Debug("Performing Podnapisi search")

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/subtitles/search/old")
	if err != nil {
		return nil, fmt.Errorf("podnapisi search request failed: %w", err)
	}
	if err := provider.StatusError(Name, resp.StatusCode(), resp.String()); err != nil {
		return nil, err
	}

	var results searchResults
	if err := xml.Unmarshal([]byte(resp.String()), &results); err != nil {
		return nil, fmt.Errorf("%w: failed to parse XML response: %v", provider.ErrParse, err)
	}
	return &results, nil
}

// Download fetches the zip for a candidate and extracts the file matching its video
func (c *Client) Download(ctx context.Context, cand *models.Candidate) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(fmt.Sprintf("/subtitles/%s/download", cand.ID))
	if err != nil {
		return nil, fmt.Errorf("podnapisi download request failed: %w", err)
	}
	defer resp.RawResponse.Body.Close()

	if err := provider.StatusError(Name, resp.StatusCode(), ""); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.RawResponse.Body, maxArchiveSize))
	if err != nil {
		return nil, provider.Transient(fmt.Errorf("failed to read archive: %w", err))
	}

	files, err := extract(data)
	if err != nil {
		return nil, err
	}

	// Every entry is scored against the video, a lone file included.
	// Without a target only an unambiguous archive can be used.
	switch {
	case len(files) == 0:
		return nil, fmt.Errorf("%w: archive has no subtitle files", provider.ErrInvalidArchive)
	case cand.Target == nil && len(files) == 1:
		return files[0].Content, nil
	case cand.Target == nil:
		return nil, fmt.Errorf("%w: no target video for multi-file archive", provider.ErrInvalidArchive)
	}
	picked, err := c.picker.PickFromArchive(*cand.Target, Name, files)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"subtitle_id": cand.ID,
		"files":       len(files),
		"picked":      picked.Name,
	}).Debug("Picked file from archive")

	return picked.Content, nil
}

func extract(data []byte) ([]models.ArchiveFile, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a zip archive: %v", provider.ErrParse, err)
	}

	var files []models.ArchiveFile
	for _, f := range reader.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX") {
			continue
		}
		if !subtitleExtensions[strings.ToLower(path.Ext(f.Name))] {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", provider.ErrParse, f.Name, err)
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxArchiveSize))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", provider.ErrParse, f.Name, err)
		}
		files = append(files, models.ArchiveFile{Name: path.Base(f.Name), Content: content})
	}
	return files, nil
}

func toCandidate(sub subtitle, lang models.Language) *models.Candidate {
	if sub.PID == "" {
		return nil
	}

	releases := strings.Fields(sub.Release)
	releaseName := sub.Title
	if len(releases) > 0 {
		releaseName = releases[0]
	}

	hints := utils.ParseRelease(releaseName)
	if sub.Title != "" {
		hints.Title = sub.Title
	}
	if s := atoi(sub.Season); s > 0 {
		hints.Season = s
	}
	if e := atoi(sub.Episode); e > 0 {
		hints.Episode = e
	}
	if y := atoi(sub.Year); y > 0 {
		hints.Year = y
	}
	hi := strings.Contains(sub.Flags, "n")
	hints.HearingImpaired = hints.HearingImpaired || hi

	rating, _ := strconv.ParseFloat(sub.Rating, 64)

	return &models.Candidate{
		Provider:        Name,
		ID:              sub.PID,
		Language:        lang,
		ReleaseName:     releaseName,
		Hints:           hints,
		HearingImpaired: hi,
		ProviderScore:   rating,
		PageLink:        sub.URL,
		SeenAt:          time.Now(),
	}
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

type searchResults struct {
	XMLName    xml.Name   `xml:"results"`
	Pagination pagination `xml:"pagination"`
	Subtitles  []subtitle `xml:"subtitle"`
}

type pagination struct {
	Current string `xml:"current"`
	Count   string `xml:"count"`
	Results string `xml:"results"`
}

type subtitle struct {
	PID      string `xml:"pid"`
	Title    string `xml:"title"`
	Release  string `xml:"release"`
	Language string `xml:"language"`
	Flags    string `xml:"flags"`
	URL      string `xml:"url"`
	Season   string `xml:"tvSeason"`
	Episode  string `xml:"tvEpisode"`
	Year     string `xml:"year"`
	Rating   string `xml:"rating"`
}
