package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/amaumene/gosubarr/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrNoStorage is returned when no storage is enabled
var ErrNoStorage = errors.New("no subtitle storage enabled")

// Persister stores subtitle content for a video and reports where it went
type Persister interface {
	Save(ctx context.Context, video models.Video, lang models.Language, content []byte) (models.StorageKind, error)
}

// Filesystem writes subtitles next to the video file
type Filesystem struct {
	subfolder string
}

// NewFilesystem creates a sidecar writer. A non-empty subfolder is created
// below the video's directory, or used as is when absolute.
func NewFilesystem(subfolder string) *Filesystem {
	return &Filesystem{subfolder: subfolder}
}

// Path returns where a subtitle for video and lang is written
func (f *Filesystem) Path(video models.Video, lang models.Language, content []byte) (string, error) {
	if video.Path == "" {
		return "", fmt.Errorf("video %s has no file path", video.ID)
	}
	dir := filepath.Dir(video.Path)
	switch {
	case f.subfolder == "":
	case filepath.IsAbs(f.subfolder):
		dir = f.subfolder
	default:
		dir = filepath.Join(dir, f.subfolder)
	}
	base := strings.TrimSuffix(filepath.Base(video.Path), filepath.Ext(video.Path))
	return filepath.Join(dir, base+"."+lang.String()+extension(content)), nil
}

func (f *Filesystem) Save(ctx context.Context, video models.Video, lang models.Language, content []byte) (models.StorageKind, error) {
	if err := ctx.Err(); err != nil {
		return models.StorageNone, err
	}
	path, err := f.Path(video, lang, content)
	if err != nil {
		return models.StorageNone, err
	}
	if err := writeFileAtomic(path, content); err != nil {
		return models.StorageNone, err
	}
	return models.StorageFilesystem, nil
}

// Metadata writes subtitles into the service's data directory, keyed by item and part
type Metadata struct {
	root string
}

// NewMetadata creates a metadata-directory writer
func NewMetadata(root string) *Metadata {
	return &Metadata{root: root}
}

// Path returns where a subtitle for video and lang is written
func (m *Metadata) Path(video models.Video, lang models.Language, content []byte) string {
	part := video.PartID
	if part == "" {
		part = video.ID
	}
	return filepath.Join(m.root, video.ID, part+"."+lang.String()+extension(content))
}

func (m *Metadata) Save(ctx context.Context, video models.Video, lang models.Language, content []byte) (models.StorageKind, error) {
	if err := ctx.Err(); err != nil {
		return models.StorageNone, err
	}
	if err := writeFileAtomic(m.Path(video, lang, content), content); err != nil {
		return models.StorageNone, err
	}
	return models.StorageMetadata, nil
}

// Chain tries the filesystem first and falls back to metadata storage
type Chain struct {
	filesystem *Filesystem
	metadata   *Metadata
	logger     *logrus.Logger
}

// NewChain creates a fallback persister. Either writer may be nil.
func NewChain(filesystem *Filesystem, metadata *Metadata, logger *logrus.Logger) *Chain {
	return &Chain{filesystem: filesystem, metadata: metadata, logger: logger}
}

func (c *Chain) Save(ctx context.Context, video models.Video, lang models.Language, content []byte) (models.StorageKind, error) {
	if c.filesystem == nil && c.metadata == nil {
		return models.StorageNone, ErrNoStorage
	}

	var fsErr error
	if c.filesystem != nil {
		kind, err := c.filesystem.Save(ctx, video, lang, content)
		if err == nil {
			return kind, nil
		}
		fsErr = err
		if c.metadata == nil {
			return models.StorageNone, fmt.Errorf("failed to save subtitle to filesystem: %w", err)
		}
		c.logger.WithFields(logrus.Fields{
			"video":    video.Name(),
			"language": lang.String(),
			"error":    err,
		}).Warn("Failed to save subtitle next to video, falling back to metadata storage")
	}

	kind, err := c.metadata.Save(ctx, video, lang, content)
	if err != nil {
		if fsErr != nil {
			return models.StorageNone, fmt.Errorf("failed to save subtitle: %w", errors.Join(fsErr, err))
		}
		return models.StorageNone, fmt.Errorf("failed to save subtitle to metadata: %w", err)
	}
	return kind, nil
}

func extension(content []byte) string {
	head := bytes.TrimLeft(content, "\ufeff \r\n\t")
	switch {
	case bytes.HasPrefix(head, []byte("[Script Info]")):
		return ".ass"
	case bytes.HasPrefix(head, []byte("WEBVTT")):
		return ".vtt"
	}
	return ".srt"
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".gosubarr-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
