package tailsource

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"netwallfa/internal/classify"
	"netwallfa/internal/ingest"
	"netwallfa/internal/model"
)

type fakeWriter struct {
	mu  sync.Mutex
	raw []model.RawLog
}

func (w *fakeWriter) WriteBatch(ctx context.Context, rawLogs []model.RawLog, events []model.Event, precedence classify.Precedence) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.raw = append(w.raw, rawLogs...)
	return nil
}

func (w *fakeWriter) UpsertDeviceIdentification(ctx context.Context, d model.DeviceIdentification) error {
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.raw)
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestSourceFeedsAppendedLinesIntoIngestor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "syslog.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	writer := &fakeWriter{}
	ing := ingest.New(ingest.ModeLive, writer, classify.PrecedenceZoneFirst, true, testLogger())
	src := New(path, ing, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, src.Start(ctx))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("<134>Jan  2 15:04:05 fw-a [EFW] EFW: CONN_OPEN: src=10.0.0.1 dst=10.0.0.2\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return writer.count() > 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	src.Stop()
}

func TestSourceSeeksToEndOnStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "syslog.log")
	preexisting := "<134>Jan  2 15:04:05 fw-a [EFW] EFW: CONN_OPEN: src=10.0.0.1 dst=10.0.0.2\n"
	require.NoError(t, os.WriteFile(path, []byte(preexisting), 0o644))

	writer := &fakeWriter{}
	ing := ingest.New(ingest.ModeLive, writer, classify.PrecedenceZoneFirst, true, testLogger())
	src := New(path, ing, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, src.Start(ctx))

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, writer.count(), "pre-existing content must not be replayed")

	cancel()
	src.Stop()
}
