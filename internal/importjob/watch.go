package importjob

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchFolder auto-enqueues every file dropped into dir as an import job, a
// supplemental source alongside the HTTP enqueue_import operation (spec
// section 4.8, SPEC_FULL.md B "File-system watch").
//
// Grounded on the teacher's internal/monitors/file_monitor.go, which
// fsnotify-watches a directory for new log files; here a detected file is
// handed to ReceiveUpload instead of tailed.
func (r *Runner) WatchFolder(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				r.handleWatchedFile(ctx, event.Name)
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.WithError(watchErr).Warn("watch folder error")
			}
		}
	}()
	return nil
}

// handleWatchedFile waits for a newly created file's size to stabilize
// (the drop may still be mid-copy), then enqueues it and removes it from the
// watch directory so it is not picked up again.
func (r *Runner) handleWatchedFile(ctx context.Context, path string) {
	logger := r.logger.WithField("path", path)

	if !waitForStableSize(path, 10*time.Second) {
		logger.Warn("watched file never stabilized, skipping")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		logger.WithError(err).Warn("failed to open watched file")
		return
	}
	info, statErr := f.Stat()
	if statErr != nil {
		f.Close()
		logger.WithError(statErr).Warn("failed to stat watched file")
		return
	}

	job, err := r.ReceiveUpload(ctx, filepath.Base(path), f, info.Size())
	f.Close()
	if err != nil {
		logger.WithError(err).Error("failed to enqueue watched file")
		return
	}
	if err := os.Remove(path); err != nil {
		logger.WithError(err).Warn("failed to remove watched file after enqueue")
	}
	logger.WithField("job_id", job.ID).Info("watched file enqueued as ingest job")
}

func waitForStableSize(path string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	var lastSize int64 = -1
	for time.Now().Before(deadline) {
		info, err := os.Stat(path)
		if err != nil {
			time.Sleep(200 * time.Millisecond)
			continue
		}
		if info.Size() == lastSize {
			return true
		}
		lastSize = info.Size()
		time.Sleep(500 * time.Millisecond)
	}
	return false
}
