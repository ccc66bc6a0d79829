package udpingest

import (
	"context"
	"io"
	"net"
	"strconv"
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
	mu     sync.Mutex
	raw    []model.RawLog
	events []model.Event
}

func (w *fakeWriter) WriteBatch(ctx context.Context, rawLogs []model.RawLog, events []model.Event, precedence classify.Precedence) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.raw = append(w.raw, rawLogs...)
	w.events = append(w.events, events...)
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

type rejectAll struct{}

func (rejectAll) ShouldReject() bool { return true }

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer l.Close()
	return l.LocalAddr().(*net.UDPAddr).Port
}

func TestListenerFeedsDatagramIntoIngestor(t *testing.T) {
	port := freePort(t)
	addr := "127.0.0.1:" + strconv.Itoa(port)

	writer := &fakeWriter{}
	ing := ingest.New(ingest.ModeLive, writer, classify.PrecedenceZoneFirst, true, testLogger())
	l := New(addr, ing, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		close(started)
		_ = l.Start(ctx)
	}()
	<-started
	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer conn.Close()

	line := "<134>Jan  2 15:04:05 fw-a [EFW] EFW: CONN_OPEN: src=10.0.0.1 dst=10.0.0.2\n"
	_, err = conn.Write([]byte(line))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return writer.count() > 0
	}, time.Second, 10*time.Millisecond)

	l.Stop()
}

func TestListenerDropsWhenAdmissionRejects(t *testing.T) {
	port := freePort(t)
	addr := "127.0.0.1:" + strconv.Itoa(port)

	writer := &fakeWriter{}
	ing := ingest.New(ingest.ModeLive, writer, classify.PrecedenceZoneFirst, true, testLogger())
	l := New(addr, ing, rejectAll{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		close(started)
		_ = l.Start(ctx)
	}()
	<-started
	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer conn.Close()

	line := "<134>Jan  2 15:04:05 fw-a [EFW] EFW: CONN_OPEN: src=10.0.0.1 dst=10.0.0.2\n"
	_, err = conn.Write([]byte(line))
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, writer.count())

	l.Stop()
}
