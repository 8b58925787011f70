package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agenthands/argus/internal/logger"
	"github.com/agenthands/argus/internal/metrics"
	"github.com/fsnotify/fsnotify"
)

const batchExt = ".jsonl"

// Watcher applies *.jsonl batch files dropped into a directory. Files already present at
// start are applied once, in name order. A file is re-applied when it is rewritten, which is
// safe because every upsert is idempotent.
type Watcher struct {
	dir     string
	sink    Sink
	notify  func()
	watcher *fsnotify.Watcher
}

func NewWatcher(dir string, sink Sink, notify func()) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch '%s': %w", dir, err)
	}
	return &Watcher{dir: dir, sink: sink, notify: notify, watcher: w}, nil
}

// Run blocks until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.initial(ctx); err != nil {
		return err
	}
	logger.Info("ingest watcher started", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !isBatchFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.ApplyFile(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "dir", w.dir, "err", err)
		}
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) initial(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to list '%s': %w", w.dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isBatchFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		w.ApplyFile(ctx, filepath.Join(w.dir, name))
	}
	return nil
}

// ApplyFile decodes and applies one batch file, reporting whether it was applied. Failures
// are logged and counted; the file is left in place.
func (w *Watcher) ApplyFile(ctx context.Context, path string) bool {
	f, err := os.Open(path)
	if err != nil {
		// removed between the event and the open
		logger.Debug("batch file vanished", "path", path, "err", err)
		return false
	}
	defer f.Close()

	batch, err := DecodeLines(f)
	if err != nil {
		metrics.IngestBatchesTotal.WithLabelValues("file", "rejected").Inc()
		logger.Warn("batch file rejected", "path", path, "err", err)
		return false
	}
	if batch.Empty() {
		// usually a Create event that fired before the writer flushed
		return false
	}
	res, err := w.sink.Apply(ctx, batch)
	if err != nil {
		metrics.IngestBatchesTotal.WithLabelValues("file", "failed").Inc()
		logger.Warn("batch file failed", "path", path, "err", err)
		return false
	}
	metrics.IngestBatchesTotal.WithLabelValues("file", "applied").Inc()
	logger.Info("batch file applied", "path", path, "entities", res.Entities, "relationships", res.Relationships, "skipped", res.Skipped)
	if w.notify != nil {
		w.notify()
	}
	return true
}

func isBatchFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), batchExt)
}
