package opensubtitles

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/amaumene/gosubarr/internal/models"
	"github.com/amaumene/gosubarr/internal/services/provider"
	"github.com/amaumene/gosubarr/internal/utils"
	"github.com/sirupsen/logrus"
	"resty.dev/v3"
)

// Name identifies the adapter in configuration and in the ledger
const Name = "opensubtitles"

// Config holds adapter settings
type Config struct {
	BaseURL   string
	APIKey    string
	Username  string
	Password  string
	UserAgent string
	Timeout   time.Duration
}

// Client talks to the OpenSubtitles REST API
type Client struct {
	cfg    Config
	http   *resty.Client
	logger *logrus.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates an OpenSubtitles adapter
func NewClient(cfg Config, logger *logrus.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("opensubtitles URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("opensubtitles API key is required")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "gosubarr v1.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	rc := resty.New()
	rc.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	rc.SetTimeout(cfg.Timeout)
	rc.SetHeader("Api-Key", cfg.APIKey)
	rc.SetHeader("User-Agent", cfg.UserAgent)
	rc.SetHeader("Accept", "application/json")

	return &Client{cfg: cfg, http: rc, logger: logger}, nil
}

// Close releases the HTTP client
func (c *Client) Close() error {
	return c.http.Close()
}

func (c *Client) Name() string { return Name }

// Supports accepts every language; the API filters server side
func (c *Client) Supports(lang models.Language) bool {
	return !lang.IsZero()
}

func (c *Client) RequiresAuth() bool {
	return c.cfg.Username != ""
}

// Initialize logs in when credentials are configured
func (c *Client) Initialize(ctx context.Context) error {
	if !c.RequiresAuth() {
		return nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"username": c.cfg.Username,
			"password": c.cfg.Password,
		}).
		Post("/login")
	if err != nil {
		return fmt.Errorf("opensubtitles login request failed: %w", err)
	}
	if err := provider.StatusError(Name, resp.StatusCode(), resp.String()); err != nil {
		return err
	}

	var login loginResponse
	if err := json.Unmarshal([]byte(resp.String()), &login); err != nil {
		return fmt.Errorf("%w: login response: %v", provider.ErrParse, err)
	}
	if login.Token == "" {
		return fmt.Errorf("%w: login returned no token", provider.ErrAuthentication)
	}

	c.mu.Lock()
	c.token = login.Token
	c.mu.Unlock()

	c.logger.WithField("user", c.cfg.Username).Info("Logged in to OpenSubtitles")
	return nil
}

// Query searches subtitles for a video in the given languages
func (c *Client) Query(ctx context.Context, video models.Video, langs []models.Language) ([]*models.Candidate, error) {
	params := searchParams(video, langs)

	c.logger.WithFields(logrus.Fields{
		"video":  video.Name(),
		"params": params,
	}).Debug("Performing OpenSubtitles search")

	resp, err := c.request(ctx).
		SetQueryParams(params).
		Get("/subtitles")
	if err != nil {
		return nil, fmt.Errorf("opensubtitles search request failed: %w", err)
	}
	if err := provider.StatusError(Name, resp.StatusCode(), resp.String()); err != nil {
		return nil, err
	}

	var search searchResponse
	if err := json.Unmarshal([]byte(resp.String()), &search); err != nil {
		return nil, fmt.Errorf("%w: search response: %v", provider.ErrParse, err)
	}

	candidates := make([]*models.Candidate, 0, len(search.Data))
	for _, item := range search.Data {
		if cand := toCandidate(item.Attributes, video); cand != nil {
			candidates = append(candidates, cand)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"video": video.Name(),
		"count": len(candidates),
	}).Debug("OpenSubtitles search completed")

	return candidates, nil
}

// Download resolves the temporary link for a file and fetches it
func (c *Client) Download(ctx context.Context, cand *models.Candidate) ([]byte, error) {
	fileID, err := strconv.ParseInt(cand.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid opensubtitles file id %q: %w", cand.ID, err)
	}

	resp, err := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]int64{"file_id": fileID}).
		Post("/download")
	if err != nil {
		return nil, fmt.Errorf("opensubtitles download request failed: %w", err)
	}
	if err := provider.StatusError(Name, resp.StatusCode(), resp.String()); err != nil {
		return nil, err
	}

	var dl downloadResponse
	if err := json.Unmarshal([]byte(resp.String()), &dl); err != nil {
		return nil, fmt.Errorf("%w: download response: %v", provider.ErrParse, err)
	}
	if dl.Link == "" {
		return nil, fmt.Errorf("%w: download response has no link", provider.ErrParse)
	}

	file, err := c.http.R().SetContext(ctx).Get(dl.Link)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subtitle file: %w", err)
	}
	if err := provider.StatusError(Name, file.StatusCode(), ""); err != nil {
		return nil, err
	}

	content := []byte(file.String())
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty subtitle file", provider.ErrParse)
	}

	c.logger.WithFields(logrus.Fields{
		"file_id":    fileID,
		"size_bytes": len(content),
		"remaining":  dl.Remaining,
	}).Debug("Subtitle downloaded")

	return content, nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	return req
}

func searchParams(video models.Video, langs []models.Language) map[string]string {
	codes := make([]string, 0, len(langs))
	for _, l := range langs {
		codes = append(codes, toAPILanguage(l))
	}

	params := map[string]string{
		"languages": strings.Join(codes, ","),
	}
	if video.Hash != "" {
		params["moviehash"] = video.Hash
	}
	if video.Kind == models.KindEpisode {
		params["type"] = "episode"
		params["query"] = video.Series
		params["season_number"] = strconv.Itoa(video.Season)
		params["episode_number"] = strconv.Itoa(video.Episode)
	} else {
		params["type"] = "movie"
		params["query"] = video.Title
	}
	if video.Year > 0 {
		params["year"] = strconv.Itoa(video.Year)
	}
	return params
}

func toCandidate(attrs searchAttributes, video models.Video) *models.Candidate {
	if len(attrs.Files) == 0 {
		return nil
	}
	lang, err := fromAPILanguage(attrs.Language)
	if err != nil {
		return nil
	}

	hints := utils.ParseRelease(attrs.Release)
	details := attrs.FeatureDetails
	if video.Kind == models.KindEpisode {
		if details.ParentTitle != "" {
			hints.Title = details.ParentTitle
		}
		if hints.Season == 0 {
			hints.Season = details.SeasonNumber
		}
		if hints.Episode == 0 {
			hints.Episode = details.EpisodeNumber
		}
	} else if hints.Title == "" {
		hints.Title = details.Title
	}
	if hints.Year == 0 {
		hints.Year = details.Year
	}
	hints.HearingImpaired = hints.HearingImpaired || attrs.HearingImpaired

	seenAt, _ := time.Parse(time.RFC3339, attrs.UploadDate)

	return &models.Candidate{
		Provider:        Name,
		ID:              strconv.FormatInt(attrs.Files[0].FileID, 10),
		Language:        lang,
		ReleaseName:     attrs.Release,
		Hints:           hints,
		HashMatched:     attrs.MovieHashMatch,
		HearingImpaired: attrs.HearingImpaired,
		ProviderScore:   float64(attrs.DownloadCount),
		PageLink:        attrs.URL,
		SeenAt:          seenAt,
	}
}

// OpenSubtitles uses "pt-PT" for plain Portuguese
func toAPILanguage(l models.Language) string {
	if l.Code == "pt" && l.Region == "" {
		return "pt-pt"
	}
	return strings.ToLower(l.String())
}

func fromAPILanguage(code string) (models.Language, error) {
	if strings.EqualFold(code, "pt-pt") {
		return models.Language{Code: "pt"}, nil
	}
	return models.ParseLanguage(code)
}

type loginResponse struct {
	Token  string `json:"token"`
	Status int    `json:"status"`
}

type searchResponse struct {
	TotalPages int `json:"total_pages"`
	Page       int `json:"page"`
	Data       []struct {
		ID         string           `json:"id"`
		Attributes searchAttributes `json:"attributes"`
	} `json:"data"`
}

type searchAttributes struct {
	Language        string         `json:"language"`
	Release         string         `json:"release"`
	DownloadCount   int            `json:"download_count"`
	HearingImpaired bool           `json:"hearing_impaired"`
	MovieHashMatch  bool           `json:"moviehash_match"`
	UploadDate      string         `json:"upload_date"`
	URL             string         `json:"url"`
	FeatureDetails  featureDetails `json:"feature_details"`
	Files           []searchFile   `json:"files"`
}

type featureDetails struct {
	FeatureType   string `json:"feature_type"`
	Title         string `json:"title"`
	ParentTitle   string `json:"parent_title"`
	Year          int    `json:"year"`
	SeasonNumber  int    `json:"season_number"`
	EpisodeNumber int    `json:"episode_number"`
}

type searchFile struct {
	FileID   int64  `json:"file_id"`
	FileName string `json:"file_name"`
}

type downloadResponse struct {
	Link      string `json:"link"`
	FileName  string `json:"file_name"`
	Remaining int    `json:"remaining"`
}
