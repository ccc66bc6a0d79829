package store

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"netwallfa/internal/classify"
	"netwallfa/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	s, err := Open(context.Background(), DialectSQLite, ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func openEvent() model.Event {
	return model.Event{
		TsUTC:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Device:      "fw-a",
		FirewallKey: "fw-a",
		EventType:   model.EventConnOpen,
		Rule:        "allow-web",
		AppName:     "https",
		Proto:       "tcp",
		DestPort:    443,
		SrcIP:       "10.0.0.5",
		DestIP:      "8.8.8.8",
		RecvZone:    "trust",
		DestZone:    "untrust",
		RecvIf:      "eth0",
		DestIf:      "eth1",
	}
}

func TestWriteBatch_InsertsRawLogsAndEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	raw := []model.RawLog{{TsUTC: time.Now().UTC(), Device: "fw-a", RawRecord: "hello", ParseStatus: model.ParseOK}}
	ev := []model.Event{openEvent()}

	err := s.WriteBatch(ctx, raw, ev, classify.PrecedenceZoneFirst)
	require.NoError(t, err)

	var rawCount, eventCount int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM raw_logs").Scan(&rawCount))
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&eventCount))
	require.Equal(t, 1, rawCount)
	require.Equal(t, 1, eventCount)
}

func TestWriteBatch_CreatesEndpointsAndFlowsForOpenEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WriteBatch(ctx, nil, []model.Event{openEvent()}, classify.PrecedenceZoneFirst)
	require.NoError(t, err)

	var endpointCount, flowCount int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM endpoints").Scan(&endpointCount))
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM flows").Scan(&flowCount))
	require.Equal(t, 2, endpointCount)
	// 3 bases resolve (zone, interface, side; side is "unknown" with no classification rows) x 2 views = 6
	require.Equal(t, 6, flowCount)
}

func TestWriteBatch_RepeatedOpenEventsIncrementFlowCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ev := openEvent()
		ev.TsUTC = ev.TsUTC.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.WriteBatch(ctx, nil, []model.Event{ev}, classify.PrecedenceZoneFirst))
	}

	var countOpen int64
	row := s.db.QueryRowContext(ctx, `SELECT count_open FROM flows WHERE basis = 'zone' AND view_kind = 'original' LIMIT 1`)
	require.NoError(t, row.Scan(&countOpen))
	require.EqualValues(t, 3, countOpen)
}

func TestClassificationSideAndRecordUnclassified(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO classifications (device, kind, name, side, priority) VALUES ('fw-a', 'zone', 'trust', 'inside', 0)`)
	require.NoError(t, err)

	side, ok := s.ClassificationSide("fw-a", model.KindZone, "trust")
	require.True(t, ok)
	require.Equal(t, model.SideInside, side)

	s.RecordUnclassified("fw-a", model.KindZone, "dmz")
	var count int64
	row := s.db.QueryRowContext(ctx, `SELECT count FROM unclassified_endpoints WHERE device = 'fw-a' AND name = 'dmz'`)
	require.NoError(t, row.Scan(&count))
	require.EqualValues(t, 1, count)
}

func TestCascadePurgeFirewall_RemovesAllRelatedRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteBatch(ctx, []model.RawLog{{TsUTC: time.Now().UTC(), Device: "fw-a", RawRecord: "x", ParseStatus: model.ParseOK}},
		[]model.Event{openEvent()}, classify.PrecedenceZoneFirst))
	require.NoError(t, s.UpsertFirewallImport(ctx, "fw-a", time.Now().UTC(), time.Now().UTC()))

	counts, err := s.CascadePurgeFirewall(ctx, "fw-a")
	require.NoError(t, err)
	require.Greater(t, counts["events"], int64(0))
	require.Greater(t, counts["flows"], int64(0))

	var remaining int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE firewall_key = 'fw-a'").Scan(&remaining))
	require.Zero(t, remaining)
}

func TestIngestJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := &model.IngestJob{ID: "job-1", Filename: "a.log", UploadPath: "/tmp/a.log", BytesTotal: 100}
	require.NoError(t, s.CreateIngestJob(ctx, job))

	require.NoError(t, s.SetIngestJobRunning(ctx, job.ID))
	loaded, err := s.GetIngestJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobRunning, loaded.State)

	loaded.LinesProc = 42
	loaded.ParseOK = 40
	loaded.ParseErr = 2
	require.NoError(t, s.SetIngestJobDone(ctx, loaded))

	done, err := s.GetIngestJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobDone, done.State)
	require.EqualValues(t, 42, done.LinesProc)
}

func TestMarkStalledRunningJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := &model.IngestJob{ID: "job-stale", Filename: "b.log", UploadPath: "/tmp/b.log"}
	require.NoError(t, s.CreateIngestJob(ctx, job))
	require.NoError(t, s.SetIngestJobRunning(ctx, job.ID))

	stale := timeValue(s.dialect, time.Now().UTC().Add(-10*time.Minute))
	_, err := s.db.ExecContext(ctx, "UPDATE ingest_jobs SET updated_at = ? WHERE id = ?", stale, job.ID)
	require.NoError(t, err)

	n, err := s.MarkStalledRunningJobs(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	reloaded, err := s.GetIngestJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobError, reloaded.State)
	require.Equal(t, "job_stalled", reloaded.ErrorStage)
}
