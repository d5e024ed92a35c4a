package library

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/amaumene/gosubarr/internal/models"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reports video files created below the library roots once they
// stop changing for the debounce period
type Watcher struct {
	library  *Library
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onReady  func(models.Video)
	logger   *logrus.Logger

	mu       sync.Mutex
	pending  map[string]*time.Timer
	stopCh   chan struct{}
	wg       sync.WaitGroup
	watching bool
}

// NewWatcher creates a watcher. onReady is called from the watcher's own goroutines.
func NewWatcher(library *Library, debounce time.Duration, onReady func(models.Video), logger *logrus.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 30 * time.Second
	}
	return &Watcher{
		library:  library,
		watcher:  fw,
		debounce: debounce,
		onReady:  onReady,
		logger:   logger,
		pending:  make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start adds every library directory and begins handling events
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watching {
		return fmt.Errorf("watcher already running")
	}
	for _, root := range w.library.Roots() {
		if err := w.addTree(root); err != nil {
			return err
		}
	}

	w.watching = true
	w.wg.Add(1)
	go w.loop()

	w.logger.WithField("roots", strings.Join(w.library.Roots(), ",")).Info("Library watcher started")
	return nil
}

// Stop ends event handling and drops pending files
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = false
	close(w.stopCh)
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	w.logger.Info("Library watcher stopped")
	return err
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("failed to watch library root %s: %w", root, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.WithFields(logrus.Fields{
				"path":  path,
				"error": err,
			}).Warn("Failed to watch directory")
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("Library watcher error")
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.WithError(err).Warn("Failed to watch new directory")
			}
			// Files moved in with the directory produce no events of their own
			filepath.WalkDir(event.Name, func(path string, d fs.DirEntry, err error) error {
				if err == nil && !d.IsDir() && IsVideo(path) {
					w.schedule(path)
				}
				return nil
			})
			return
		}
	}

	if IsVideo(event.Name) {
		w.schedule(event.Name)
	}
}

// schedule (re)starts the debounce timer for path
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.watching {
		return
	}

	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		watching := w.watching
		w.mu.Unlock()
		if !watching {
			return
		}
		w.ready(path)
	})
}

func (w *Watcher) ready(path string) {
	video, err := w.library.Add(path)
	if err != nil {
		w.logger.WithFields(logrus.Fields{
			"path":  path,
			"error": err,
		}).Warn("Failed to index new video")
		return
	}
	w.logger.WithFields(logrus.Fields{
		"item":  video.ID,
		"video": video.Name(),
	}).Info("New video detected")
	w.onReady(video)
}
