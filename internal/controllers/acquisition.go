package controllers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/amaumene/gosubarr/internal/metrics"
	"github.com/amaumene/gosubarr/internal/mods"
	"github.com/amaumene/gosubarr/internal/models"
	"github.com/amaumene/gosubarr/internal/services/notify"
	"github.com/amaumene/gosubarr/internal/services/provider"
	"github.com/amaumene/gosubarr/internal/services/writer"
	"github.com/amaumene/gosubarr/internal/store"
	"github.com/amaumene/gosubarr/internal/utils"
	"github.com/sirupsen/logrus"
)

// SubtitleSource finds and fetches candidates
type SubtitleSource interface {
	QueryWithReport(ctx context.Context, video models.Video, langs []models.Language) ([]*models.Candidate, provider.Report)
	Fetch(ctx context.Context, c *models.Candidate) ([]byte, error)
	Priority(name string) int
}

// AcquisitionOptions tunes the orchestrator
type AcquisitionOptions struct {
	Languages     []models.Language // wanted when a request names none
	DownloadTries int               // fetches per language before giving up
	NoMatchRetry  time.Duration     // how long a no-match outcome suppresses a language
}

// Request asks for subtitles for one video
type Request struct {
	Video     models.Video
	Languages []models.Language
	Force     bool
}

// Outcome describes what one acquisition pass did
type Outcome struct {
	ItemID    string                           `json:"item_id"`
	Video     string                           `json:"video"`
	Ignored   string                           `json:"ignored,omitempty"`
	Languages map[string]models.LanguageStatus `json:"languages"`
	Report    provider.Report                  `json:"report"`
}

// Stored counts languages that got a subtitle
func (o *Outcome) Stored() int {
	n := 0
	for _, s := range o.Languages {
		if s == models.StatusStored {
			n++
		}
	}
	return n
}

// AcquisitionController turns a video into stored subtitles
type AcquisitionController struct {
	source    SubtitleSource
	scorer    *MatchScorer
	ledger    *store.LedgerStore
	ignore    *store.IgnoreListStore
	persister writer.Persister
	notifier  notify.Notifier
	mods      *mods.Pipeline
	blacklist *utils.Blacklist
	opts      AcquisitionOptions
	logger    *logrus.Logger
}

// NewAcquisitionController creates a new acquisition controller
func NewAcquisitionController(
	source SubtitleSource,
	scorer *MatchScorer,
	db *store.DB,
	persister writer.Persister,
	notifier notify.Notifier,
	pipeline *mods.Pipeline,
	blacklist *utils.Blacklist,
	opts AcquisitionOptions,
	logger *logrus.Logger,
) *AcquisitionController {
	if opts.DownloadTries < 1 {
		opts.DownloadTries = 1
	}
	return &AcquisitionController{
		source:    source,
		scorer:    scorer,
		ledger:    db.Ledger,
		ignore:    db.Ignore,
		persister: persister,
		notifier:  notifier,
		mods:      pipeline,
		blacklist: blacklist,
		opts:      opts,
		logger:    logger,
	}
}

// Process runs one acquisition pass. An error means the item was skipped;
// per-language problems are reported in the outcome instead.
func (c *AcquisitionController) Process(ctx context.Context, req Request) (*Outcome, error) {
	video := req.Video
	ctx, span := utils.StartSpan(ctx, "acquisition.process", map[string]string{
		"item":  video.ID,
		"force": strconv.FormatBool(req.Force),
	})
	defer span.End()

	langs := req.Languages
	if len(langs) == 0 {
		langs = c.opts.Languages
	}
	out := &Outcome{
		ItemID:    video.ID,
		Video:     video.Name(),
		Languages: make(map[string]models.LanguageStatus, len(langs)),
	}

	reason, err := c.ignored(video)
	if err != nil {
		return nil, fmt.Errorf("failed to check ignore list: %w", err)
	}
	if reason != "" {
		c.logger.WithFields(logrus.Fields{
			"item":   video.ID,
			"video":  video.Name(),
			"reason": reason,
		}).Debug("Skipping ignored video")
		out.Ignored = reason
		for _, lang := range langs {
			out.Languages[lang.String()] = models.StatusSkipped
		}
		return out, nil
	}

	unlock := c.ledger.Lock(video.ID)
	defer unlock()

	rec, err := c.ledger.LoadOrNew(video.ID, video.Name())
	if err != nil {
		return nil, err
	}
	part := partOf(video)

	var wanted []models.Language
	for _, lang := range langs {
		if req.Force || c.wants(rec, part, video, lang) {
			wanted = append(wanted, lang)
		} else {
			out.Languages[lang.String()] = models.StatusSkipped
		}
	}
	if len(wanted) == 0 {
		c.logger.WithFields(logrus.Fields{
			"item":  video.ID,
			"video": video.Name(),
		}).Debug("No languages wanted")
		return out, nil
	}

	candidates, report := c.source.QueryWithReport(ctx, video, wanted)
	out.Report = report
	ranked := c.rank(rec, part, video, candidates, req.Force)

	c.logger.WithFields(logrus.Fields{
		"item":       video.ID,
		"video":      video.Name(),
		"languages":  len(wanted),
		"candidates": len(candidates),
		"force":      req.Force,
	}).Info("Searching subtitles")

	mode := models.ModeAppend
	if req.Force {
		mode = models.ModeOverwrite
	}

	for _, lang := range wanted {
		if ctx.Err() != nil {
			break
		}
		status := c.acquire(ctx, rec, part, video, lang, ranked[lang.String()], mode, req.Force)
		out.Languages[lang.String()] = status
		if status == models.StatusNoMatch {
			rec.MarkNoMatch(part, lang, time.Now())
		}
	}

	if rec.Dirty() {
		if err := c.ledger.Save(rec); err != nil {
			return out, err
		}
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	c.logger.WithFields(logrus.Fields{
		"item":   video.ID,
		"video":  video.Name(),
		"stored": out.Stored(),
	}).Info("Subtitle search completed")

	return out, nil
}

// ignored returns which ignore list matched, or ""
func (c *AcquisitionController) ignored(video models.Video) (string, error) {
	checks := []struct {
		kind models.IgnoreKind
		id   string
	}{
		{models.IgnoreItems, video.ID},
		{models.IgnoreSeries, video.SeriesID},
		{models.IgnoreSections, video.SectionID},
	}
	for _, check := range checks {
		if check.id == "" {
			continue
		}
		ignored, err := c.ignore.IsIgnored(check.kind, check.id)
		if err != nil {
			return "", err
		}
		if ignored {
			return string(check.kind), nil
		}
	}
	return "", nil
}

func (c *AcquisitionController) wants(rec *models.LedgerRecord, part string, video models.Video, lang models.Language) bool {
	if video.HasLanguage(lang) || rec.Stored(part, lang) {
		return false
	}
	if at, ok := rec.LastNoMatch(part, lang); ok && time.Since(at) < c.opts.NoMatchRetry {
		return false
	}
	return true
}

// rank scores candidates, drops unacceptable ones and groups the rest by
// language in download order
func (c *AcquisitionController) rank(rec *models.LedgerRecord, part string, video models.Video, candidates []*models.Candidate, force bool) map[string][]*models.Candidate {
	byLang := make(map[string][]*models.Candidate)
	for _, cand := range candidates {
		if blocked, term := c.blacklist.IsBlacklisted(cand.Provider, cand.ReleaseName); blocked {
			c.logger.WithFields(logrus.Fields{
				"provider": cand.Provider,
				"release":  cand.ReleaseName,
				"term":     term,
			}).Debug("Skipping blacklisted subtitle")
			continue
		}

		cand.Score = c.scorer.Score(video, cand)
		if cand.Score < c.scorer.Threshold(cand.Provider) {
			continue
		}
		if !force && rec.Tried(part, cand.Language, cand.Provider, cand.ID) {
			continue
		}
		key := cand.Language.String()
		byLang[key] = append(byLang[key], cand)
	}

	for _, list := range byLang {
		sort.SliceStable(list, func(i, j int) bool {
			a, b := list[i], list[j]
			if a.Score != b.Score {
				return a.Score > b.Score
			}
			if pa, pb := c.source.Priority(a.Provider), c.source.Priority(b.Provider); pa != pb {
				return pa < pb
			}
			return a.SeenAt.After(b.SeenAt)
		})
	}
	return byLang
}

// acquire walks ranked candidates for one language until one is stored
func (c *AcquisitionController) acquire(ctx context.Context, rec *models.LedgerRecord, part string, video models.Video, lang models.Language, candidates []*models.Candidate, mode models.LedgerMode, force bool) models.LanguageStatus {
	tries := 0
	failed := false

	for _, cand := range candidates {
		if tries >= c.opts.DownloadTries || ctx.Err() != nil {
			break
		}
		tries++

		logger := c.logger.WithFields(logrus.Fields{
			"item":        video.ID,
			"language":    lang.String(),
			"provider":    cand.Provider,
			"subtitle_id": cand.ID,
			"score":       cand.Score,
		})

		content, err := c.source.Fetch(ctx, cand)
		if err != nil {
			if errors.Is(err, provider.ErrInvalidArchive) {
				logger.WithError(err).Info("Subtitle archive has no matching file, marking as bad")
				rec.Add(part, lang, cand, models.StorageNone, models.ModeAppend)
				continue
			}
			logger.WithError(err).Warn("Failed to download subtitle")
			failed = true
			continue
		}
		cand.Content = content

		if !force && rec.HasFingerprint(part, lang, cand.Fingerprint()) {
			logger.Debug("Subtitle content already recorded, skipping")
			continue
		}
		if !usable(content) {
			logger.Info("Downloaded content is not a subtitle, marking as bad")
			rec.Add(part, lang, cand, models.StorageNone, models.ModeAppend)
			continue
		}

		kind, err := c.persister.Save(ctx, video, lang, c.mods.Apply(content))
		if err != nil {
			logger.WithError(err).Error("Failed to save subtitle")
			return models.StatusFailed
		}

		rec.Add(part, lang, cand, kind, mode)
		metrics.SubtitlesStored.WithLabelValues(cand.Provider, string(kind)).Inc()
		c.notifier.Notify(video, lang, kind)

		logger.WithFields(logrus.Fields{
			"storage": kind,
			"release": cand.ReleaseName,
		}).Info("Subtitle stored")
		return models.StatusStored
	}

	if failed {
		return models.StatusFailed
	}
	return models.StatusNoMatch
}

// usable rejects empty bodies and HTML pages served in place of a subtitle
func usable(content []byte) bool {
	body := bytes.TrimSpace(bytes.TrimPrefix(content, []byte("\ufeff")))
	if len(body) == 0 {
		return false
	}
	head := bytes.ToLower(body[:min(len(body), 32)])
	return !bytes.HasPrefix(head, []byte("<!doctype html")) && !bytes.HasPrefix(head, []byte("<html"))
}

func partOf(video models.Video) string {
	if video.PartID != "" {
		return video.PartID
	}
	return video.ID
}
