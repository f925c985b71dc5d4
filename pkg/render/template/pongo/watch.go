package pongo

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch invalidates compiled templates when files under the loader's
// directories change. Writes drop the templates that read the file; creates,
// removes and renames clear the whole cache because they can change which
// directory a reference resolves to. Watch blocks until ctx is cancelled and
// then returns nil. The cache directory is never watched, even when it sits
// inside a namespace directory, since manifest writes would retrigger it.
func (e *Engine) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("pongo: create watcher: %w", err)
	}
	defer watcher.Close()

	skip := cacheRoot(e.config.Cache)
	for _, dir := range e.loader.directories() {
		if within(dir, skip) {
			continue
		}
		if err := addTree(watcher, dir, skip); err != nil {
			return fmt.Errorf("pongo: watch %s: %w", dir, err)
		}
		e.logger.Debug("watching template directory", zap.String("dir", dir))
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			e.handleEvent(watcher, event, skip)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("template watcher error", zap.Error(err))
		}
	}
}

func (e *Engine) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event, skip string) {
	if within(event.Name, skip) {
		return
	}
	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := addTree(watcher, event.Name, skip); err != nil {
				e.logger.Warn("template watcher could not follow directory", zap.String("dir", event.Name), zap.Error(err))
			}
		}
		e.logger.Debug("template source created", zap.String("path", event.Name))
		e.ClearCache()
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		e.logger.Debug("template source removed", zap.String("path", event.Name))
		e.ClearCache()
	case event.Has(fsnotify.Write):
		dropped := e.invalidate(event.Name)
		e.logger.Debug("template source changed", zap.String("path", event.Name), zap.Int("invalidated", dropped))
	}
}

func addTree(watcher *fsnotify.Watcher, root, skip string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if within(path, skip) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func cacheRoot(dir string) string {
	if dir == "" {
		return ""
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}

// within reports whether path is root or lies below it.
func within(path, root string) bool {
	if root == "" {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
