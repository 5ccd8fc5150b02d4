package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// FilterWatcher reloads the crawl-filter file when it changes on disk, so
// operators can extend the keyword/extension sets without a restart.
type FilterWatcher struct {
	path     string
	onReload func(*CrawlFilters)

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewFilterWatcher creates a watcher for the given filter file. onReload is
// invoked with the freshly merged filter sets after every successful reload.
func NewFilterWatcher(path string, onReload func(*CrawlFilters)) *FilterWatcher {
	return &FilterWatcher{
		path:     path,
		onReload: onReload,
	}
}

// Start begins watching. A missing or empty path is a no-op.
func (w *FilterWatcher) Start(ctx context.Context) error {
	if w.path == "" || w.cancel != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory, not the file: editors replace files on save and
	// the inode-level watch would be lost after the first write.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return err
	}

	w.watcher = watcher
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go w.run(ctx)

	slog.Info("Filter config watcher started", "path", w.path)
	return nil
}

// Stop signals the watch loop to exit and waits for it to finish.
func (w *FilterWatcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	_ = w.watcher.Close()
	slog.Info("Filter config watcher stopped")
}

func (w *FilterWatcher) run(ctx context.Context) {
	defer close(w.done)

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Filter config watch error", "error", err)
		}
	}
}

func (w *FilterWatcher) reload() {
	filters, err := LoadCrawlFilters(w.path)
	if err != nil {
		slog.Error("Filter config reload failed, keeping previous sets",
			"path", w.path, "error", err)
		return
	}
	slog.Info("Filter config reloaded",
		"doc_keywords", len(filters.DocKeywords),
		"ignore_keywords", len(filters.IgnoreKeywords),
		"ignore_extensions", len(filters.IgnoreExtensions))
	w.onReload(filters)
}
