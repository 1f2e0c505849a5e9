package config

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/core/metacodec"
)

// ErrEmptyFile is returned by Reload while the meta file is empty, which
// editors produce briefly when truncating before a write.
var ErrEmptyFile = errors.New("meta file is empty")

// MetaWatcher keeps a live Config in sync with a meta file. Reloads are
// applied with meta.Sync, so listeners on the Config only see the names
// that actually changed.
type MetaWatcher struct {
	mu       sync.Mutex // serializes reloads
	config   *meta.Config
	path     string
	codec    metacodec.Codec
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	onReload []func(at time.Time, err error)
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMetaWatcher loads the meta file at path. The codec is chosen by the
// file extension.
func NewMetaWatcher(path string, logger zerolog.Logger) (*MetaWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	codec, err := metacodec.ForPath(absPath)
	if err != nil {
		return nil, err
	}

	w := &MetaWatcher{
		path:   absPath,
		codec:  codec,
		logger: logger.With().Str("meta_file", absPath).Logger(),
		stopCh: make(chan struct{}),
	}
	m, err := w.read()
	if err != nil && !errors.Is(err, ErrEmptyFile) {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	w.config = meta.ToConfig(m)
	return w, nil
}

// Config returns the live config. It stays the same instance across
// reloads.
func (w *MetaWatcher) Config() *meta.Config {
	return w.config
}

// Path returns the absolute path of the watched file.
func (w *MetaWatcher) Path() string {
	return w.path
}

func (w *MetaWatcher) read() (meta.Meta, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		return meta.Empty, ErrEmptyFile
	}
	return w.codec.Decode(f)
}

// Reload re-reads the file and applies the differences to the config.
// On error the config is left untouched.
func (w *MetaWatcher) Reload() error {
	w.mu.Lock()
	m, err := w.read()
	if err == nil {
		meta.Sync(w.config, m)
	}
	callbacks := make([]func(time.Time, error), len(w.onReload))
	copy(callbacks, w.onReload)
	w.mu.Unlock()

	now := time.Now()
	for _, fn := range callbacks {
		fn(now, err)
	}

	if err != nil {
		return fmt.Errorf("reload meta: %w", err)
	}
	w.logger.Info().Msg("meta file reloaded")
	return nil
}

// OnReload registers a callback invoked after every reload attempt.
func (w *MetaWatcher) OnReload(fn func(at time.Time, err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = append(w.onReload, fn)
}

// WatchFile starts watching the file for changes.
// Changes trigger automatic reload.
func (w *MetaWatcher) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory (more reliable for editors that do atomic saves)
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	w.watcher = watcher

	go w.watchLoop()

	w.logger.Info().Msg("watching meta file for changes")
	return nil
}

// WatchSignals starts listening for SIGHUP to trigger reload.
func (w *MetaWatcher) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-sigCh:
				w.logger.Info().Msg("received SIGHUP, reloading meta")
				if err := w.Reload(); err != nil {
					w.logger.Error().Err(err).Msg("SIGHUP reload failed")
				}
			case <-w.stopCh:
				signal.Stop(sigCh)
				return
			}
		}
	}()
}

// Stop stops watching for file changes and signals. It is safe to call
// more than once.
func (w *MetaWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}

func (w *MetaWatcher) watchLoop() {
	filename := filepath.Base(w.path)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Only react to our file
			if filepath.Base(event.Name) != filename {
				continue
			}

			// React to write or create (atomic save = create)
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.logger.Debug().
					Str("event", event.Op.String()).
					Msg("meta file changed")

				if err := w.Reload(); err != nil && !errors.Is(err, ErrEmptyFile) {
					w.logger.Error().Err(err).Msg("file watch reload failed")
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("file watcher error")

		case <-w.stopCh:
			return
		}
	}
}
