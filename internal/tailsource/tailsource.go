// Package tailsource is the supplemental local-file live ingest source
// (SPEC_FULL.md B): an operator who forwards syslog via a named pipe or a
// plain file instead of UDP points this at the file, and every appended
// line is fed into the same shared live Ingestor as the UDP listener.
//
// Grounded on the teacher's internal/monitors/file_monitor.go logTailer:
// github.com/nxadm/tail in follow+reopen mode, seeking to the end so restart
// doesn't replay history, with a context-cancel-driven Stop.
package tailsource

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/nxadm/tail"
	"github.com/sirupsen/logrus"

	"netwallfa/internal/ingest"
)

// Source tails one file and feeds each line into a shared ingest.Ingestor.
type Source struct {
	path     string
	ingestor *ingest.Ingestor
	logger   *logrus.Logger

	tailer *tail.Tail
	wg     sync.WaitGroup
}

// New builds a Source for path. Start begins tailing.
func New(path string, ingestor *ingest.Ingestor, logger *logrus.Logger) *Source {
	return &Source{path: path, ingestor: ingestor, logger: logger}
}

// Start opens the file at its current end (so a restart never replays
// history already ingested) and follows appended lines until ctx is
// canceled.
func (s *Source) Start(ctx context.Context) error {
	t, err := tail.TailFile(s.path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     false,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
	})
	if err != nil {
		return fmt.Errorf("tailsource: tail %s: %w", s.path, err)
	}
	s.tailer = t

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.WithField("path", s.path).Info("tail source started")
	return nil
}

func (s *Source) run(ctx context.Context) {
	defer s.wg.Done()
	defer s.tailer.Cleanup()

	for {
		select {
		case <-ctx.Done():
			if err := s.tailer.Stop(); err != nil {
				s.logger.WithError(err).Warn("tailsource: stop failed")
			}
			return
		case line, ok := <-s.tailer.Lines:
			if !ok {
				if err := s.tailer.Err(); err != nil {
					s.logger.WithError(err).Warn("tailsource: tailer ended with error")
				}
				return
			}
			if line.Err != nil {
				s.logger.WithError(line.Err).Warn("tailsource: line read error")
				continue
			}
			if err := s.ingestor.IngestLine(ctx, line.Text); err != nil {
				s.logger.WithError(err).Debug("tailsource: record rejected")
			}
		}
	}
}

// Stop waits for the tail goroutine to exit. Safe to call only after ctx
// (passed to Start) has been canceled.
func (s *Source) Stop() {
	s.wg.Wait()
}
