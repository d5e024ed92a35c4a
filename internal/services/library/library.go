package library

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/amaumene/gosubarr/internal/models"
	"github.com/amaumene/gosubarr/internal/utils"
	"github.com/sirupsen/logrus"
)

// ErrItemNotFound is returned when an item ID is not in the library
var ErrItemNotFound = errors.New("library item not found")

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".m4v": true, ".ts": true, ".wmv": true, ".mov": true,
}

var subtitleExtensions = map[string]bool{
	".srt": true, ".ass": true, ".ssa": true, ".sub": true, ".vtt": true,
}

var seasonDir = strings.NewReplacer("season", "", "saison", "", "staffel", "")

type entry struct {
	video   models.Video
	modTime time.Time
}

// Library indexes video files below a set of root directories
type Library struct {
	roots     []string
	subfolder string
	logger    *logrus.Logger

	mu    sync.RWMutex
	items map[string]entry
}

// New creates a library over roots. subfolder is where sidecar subtitles
// may also live, relative to each video's directory.
func New(roots []string, subfolder string, logger *logrus.Logger) *Library {
	abs := make([]string, 0, len(roots))
	for _, r := range roots {
		if p, err := filepath.Abs(r); err == nil {
			abs = append(abs, p)
		} else {
			abs = append(abs, r)
		}
	}
	return &Library{
		roots:     abs,
		subfolder: subfolder,
		logger:    logger,
		items:     make(map[string]entry),
	}
}

// Roots returns the absolute library roots
func (l *Library) Roots() []string {
	return l.roots
}

// ItemID derives the stable item identity of a file path
func ItemID(path string) string {
	sum := sha1.Sum([]byte(path))
	return hex.EncodeToString(sum[:])[:16]
}

// Scan walks every root and rebuilds the index
func (l *Library) Scan(ctx context.Context) error {
	items := make(map[string]entry)
	for section, root := range l.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				l.logger.WithFields(logrus.Fields{
					"path":  path,
					"error": err,
				}).Warn("Failed to read library path")
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if err := ctx.Err(); err != nil {
					return err
				}
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return fs.SkipDir
				}
				return nil
			}
			if !IsVideo(path) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			video := l.describe(path, section, info)
			items[video.ID] = entry{video: video, modTime: info.ModTime()}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to scan library root %s: %w", root, err)
		}
	}

	l.mu.Lock()
	l.items = items
	l.mu.Unlock()

	l.logger.WithField("items", len(items)).Debug("Library scan completed")
	return nil
}

// All scans the library and returns every item ordered by path
func (l *Library) All(ctx context.Context) ([]models.Video, error) {
	if err := l.Scan(ctx); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	videos := make([]models.Video, 0, len(l.items))
	for _, e := range l.items {
		videos = append(videos, e.video)
	}
	sort.Slice(videos, func(i, j int) bool { return videos[i].Path < videos[j].Path })
	return videos, nil
}

// Recent scans the library and returns items modified within maxAge,
// newest first, at most limit of them. A zero limit means no cap.
func (l *Library) Recent(ctx context.Context, maxAge time.Duration, limit int) ([]models.Video, error) {
	if err := l.Scan(ctx); err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-maxAge)

	l.mu.RLock()
	var recent []entry
	for _, e := range l.items {
		if e.modTime.After(cutoff) {
			recent = append(recent, e)
		}
	}
	l.mu.RUnlock()

	sort.Slice(recent, func(i, j int) bool {
		if !recent[i].modTime.Equal(recent[j].modTime) {
			return recent[i].modTime.After(recent[j].modTime)
		}
		return recent[i].video.Path < recent[j].video.Path
	})
	if limit > 0 && len(recent) > limit {
		recent = recent[:limit]
	}

	videos := make([]models.Video, len(recent))
	for i, e := range recent {
		videos[i] = e.video
	}
	return videos, nil
}

// Item returns a single item, rescanning once if it is not indexed yet.
// The item's existing subtitle languages are refreshed from disk.
func (l *Library) Item(ctx context.Context, id string) (models.Video, error) {
	l.mu.RLock()
	e, ok := l.items[id]
	l.mu.RUnlock()
	if !ok {
		if err := l.Scan(ctx); err != nil {
			return models.Video{}, err
		}
		l.mu.RLock()
		e, ok = l.items[id]
		l.mu.RUnlock()
		if !ok {
			return models.Video{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
	}
	video := e.video
	video.ExistingLanguages = l.sidecarLanguages(video.Path)
	return video, nil
}

// Add indexes a single file, as reported by the watcher
func (l *Library) Add(path string) (models.Video, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return models.Video{}, fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return models.Video{}, fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	section := -1
	for i, root := range l.roots {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			section = i
			break
		}
	}
	if section < 0 {
		return models.Video{}, fmt.Errorf("%s is outside the library", abs)
	}

	video := l.describe(abs, section, info)
	l.mu.Lock()
	l.items[video.ID] = entry{video: video, modTime: info.ModTime()}
	l.mu.Unlock()
	return video, nil
}

// IsVideo reports whether path has a video extension
func IsVideo(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

func (l *Library) describe(path string, section int, info fs.FileInfo) models.Video {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	hints := utils.ParseRelease(filepath.Base(path))

	video := models.Video{
		ID:           ItemID(path),
		SectionID:    strconv.Itoa(section),
		Path:         path,
		Title:        hints.Title,
		Year:         hints.Year,
		ReleaseGroup: hints.ReleaseGroup,
		Resolution:   hints.Resolution,
		Format:       hints.Format,
		Codec:        hints.Codec,
		Size:         info.Size(),
	}
	video.PartID = video.ID

	if hints.Episode > 0 {
		video.Kind = models.KindEpisode
		video.Season = hints.Season
		video.Episode = hints.Episode
		video.Series = hints.Title
		video.Title = ""
		if video.Series == "" {
			video.Series = seriesFromDirs(path)
		}
		video.SeriesID = seriesID(video.Series)
	} else {
		video.Kind = models.KindMovie
		if video.Title == "" || video.Year == 0 {
			parent := utils.ParseRelease(filepath.Base(filepath.Dir(path)))
			if video.Title == "" {
				video.Title = parent.Title
			}
			if video.Year == 0 {
				video.Year = parent.Year
			}
		}
		if video.Title == "" {
			video.Title = name
		}
	}

	if hash, err := Hash(path); err == nil {
		video.Hash = hash
	} else {
		l.logger.WithFields(logrus.Fields{
			"path":  path,
			"error": err,
		}).Debug("Failed to hash video")
	}

	video.ExistingLanguages = l.sidecarLanguages(path)
	return video
}

// seriesFromDirs reads the series name from "Series/Season N/file" layouts
func seriesFromDirs(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(dir)
	trimmed := strings.TrimSpace(seasonDir.Replace(strings.ToLower(base)))
	if _, err := strconv.Atoi(trimmed); err == nil || trimmed == "specials" {
		dir = filepath.Dir(dir)
	}
	return utils.ParseRelease(filepath.Base(dir)).Title
}

func seriesID(series string) string {
	return strings.Join(strings.Fields(strings.ToLower(series)), " ")
}

// sidecarLanguages finds <base>.<lang>[.forced|.hi|.sdh].<ext> next to the
// video and in the configured subfolder
func (l *Library) sidecarLanguages(path string) []models.Language {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	dirs := []string{filepath.Dir(path)}
	if l.subfolder != "" {
		if filepath.IsAbs(l.subfolder) {
			dirs = append(dirs, l.subfolder)
		} else {
			dirs = append(dirs, filepath.Join(filepath.Dir(path), l.subfolder))
		}
	}

	var langs []models.Language
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			name := e.Name()
			ext := strings.ToLower(filepath.Ext(name))
			if e.IsDir() || !subtitleExtensions[ext] || !strings.HasPrefix(name, base+".") {
				continue
			}
			tags := strings.Split(strings.TrimSuffix(strings.TrimPrefix(name, base+"."), filepath.Ext(name)), ".")
			lang, err := models.ParseLanguage(tags[0])
			if err != nil || models.ContainsLanguage(langs, lang) {
				continue
			}
			langs = append(langs, lang)
		}
	}
	return langs
}
