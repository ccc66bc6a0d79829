package importjob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netwallfa/internal/classify"
	"netwallfa/internal/config"
	"netwallfa/internal/model"
)

// fakeStore is an in-memory Store good enough to exercise Runner end to end
// without a real database.
type fakeStore struct {
	mu   sync.Mutex
	jobs map[string]*model.IngestJob

	rawLogs []model.RawLog
	events  []model.Event

	cancelRequested map[string]bool
	firewallImports map[string]struct{ first, last time.Time }
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:            map[string]*model.IngestJob{},
		cancelRequested: map[string]bool{},
		firewallImports: map[string]struct{ first, last time.Time }{},
	}
}

func (s *fakeStore) WriteBatch(ctx context.Context, rawLogs []model.RawLog, events []model.Event, precedence classify.Precedence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawLogs = append(s.rawLogs, rawLogs...)
	s.events = append(s.events, events...)
	return nil
}

func (s *fakeStore) UpsertDeviceIdentification(ctx context.Context, d model.DeviceIdentification) error {
	return nil
}

func (s *fakeStore) CreateIngestJob(ctx context.Context, job *model.IngestJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	cp.CreatedAt = time.Now().UTC()
	s.jobs[job.ID] = &cp
	return nil
}

func (s *fakeStore) GetIngestJob(ctx context.Context, id string) (*model.IngestJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.jobs[id]
	return &cp, nil
}

func (s *fakeStore) SetIngestJobQueued(ctx context.Context, job *model.IngestJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[job.ID]
	j.State = model.JobQueued
	j.BytesRecv = job.BytesRecv
	return nil
}

func (s *fakeStore) SetIngestJobRunning(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[id]
	j.State = model.JobRunning
	j.StartedAt = time.Now().UTC()
	return nil
}

func (s *fakeStore) UpdateIngestJobProgress(ctx context.Context, job *model.IngestJob) error {
	return nil
}

func (s *fakeStore) SetIngestJobDone(ctx context.Context, job *model.IngestJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[job.ID]
	j.State = model.JobDone
	j.Inserted = job.Inserted
	j.LinesProc = job.LinesProc
	j.FinishedAt = time.Now().UTC()
	return nil
}

func (s *fakeStore) SetIngestJobCanceled(ctx context.Context, job *model.IngestJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[job.ID]
	j.State = model.JobCanceled
	j.LinesProc = job.LinesProc
	j.FinishedAt = time.Now().UTC()
	return nil
}

func (s *fakeStore) SetIngestJobError(ctx context.Context, job *model.IngestJob, errType, errStage, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[job.ID]
	j.State = model.JobError
	j.ErrorType = errType
	j.ErrorStage = errStage
	j.ErrorMessage = errMsg
	j.FinishedAt = time.Now().UTC()
	return nil
}

func (s *fakeStore) CheckIngestJobCancelRequested(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelRequested[id], nil
}

func (s *fakeStore) NextQueuedIngestJob(ctx context.Context) (*model.IngestJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *model.IngestJob
	for _, j := range s.jobs {
		if j.State != model.JobQueued {
			continue
		}
		if best == nil || j.CreatedAt.Before(best.CreatedAt) {
			best = j
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (s *fakeStore) MarkStalledRunningJobs(ctx context.Context) (int64, error) { return 0, nil }
func (s *fakeStore) RecoverJobsAfterRestart(ctx context.Context) (int64, error) {
	return 0, nil
}

func (s *fakeStore) UpsertFirewallImport(ctx context.Context, firewallKey string, firstTS, lastTS time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firewallImports[firewallKey] = struct{ first, last time.Time }{firstTS, lastTS}
	return nil
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testImportConfig(t *testing.T) config.ImportConfig {
	t.Helper()
	return config.ImportConfig{
		UploadDir:        t.TempDir(),
		MaxUploadBytes:   1 << 20,
		BatchSize:        10,
		CancelCheckLines: 2,
	}
}

const sampleConnLine = `Jan  2 15:04:05 fw-a EFW: TRAFFIC: id="0060" srcip=10.0.0.1 dstip=10.0.0.2 proto=tcp dstport=443`

func TestReceiveUpload_QueuesAndRunsJob(t *testing.T) {
	store := newFakeStore()
	r := New(store, testImportConfig(t), classify.PrecedenceZoneFirst, testLogger())
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	body := strings.NewReader(strings.Repeat(sampleConnLine+"\n", 5))
	job, err := r.ReceiveUpload(context.Background(), "sample.log", body, int64(body.Len()))
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	require.Eventually(t, func() bool {
		j, _ := store.GetIngestJob(context.Background(), job.ID)
		return j.State == model.JobDone
	}, 2*time.Second, 10*time.Millisecond)

	final, err := store.GetIngestJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), final.LinesProc)
	assert.Equal(t, int64(5), final.Inserted)
	_, err = os.Stat(job.UploadPath)
	assert.True(t, os.IsNotExist(err), "upload file should be removed after completion")
}

func TestReceiveUpload_RejectsOversizedUpload(t *testing.T) {
	store := newFakeStore()
	cfg := testImportConfig(t)
	cfg.MaxUploadBytes = 10
	r := New(store, cfg, classify.PrecedenceZoneFirst, testLogger())
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	body := strings.NewReader(strings.Repeat("x", 1000))
	_, err := r.ReceiveUpload(context.Background(), "big.log", body, int64(body.Len()))
	require.Error(t, err)

	store.mu.Lock()
	var job *model.IngestJob
	for _, j := range store.jobs {
		job = j
	}
	store.mu.Unlock()
	require.NotNil(t, job)
	assert.Equal(t, model.JobError, job.State)
}

func TestReceiveUpload_RejectsEmptyFile(t *testing.T) {
	store := newFakeStore()
	r := New(store, testImportConfig(t), classify.PrecedenceZoneFirst, testLogger())
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	_, err := r.ReceiveUpload(context.Background(), "empty.log", strings.NewReader(""), 0)
	require.Error(t, err)

	store.mu.Lock()
	var job *model.IngestJob
	for _, j := range store.jobs {
		job = j
	}
	store.mu.Unlock()
	require.NotNil(t, job)
	assert.Equal(t, model.JobError, job.State)
	assert.Equal(t, "Empty file", job.ErrorMessage)
	_, statErr := os.Stat(job.UploadPath)
	assert.True(t, os.IsNotExist(statErr), "empty upload file should be removed")
}

func TestRunJob_Cancellation(t *testing.T) {
	store := newFakeStore()
	cfg := testImportConfig(t)
	r := New(store, cfg, classify.PrecedenceZoneFirst, testLogger())

	job := &model.IngestJob{
		ID:         "job-cancel",
		State:      model.JobQueued,
		UploadPath: filepath.Join(cfg.UploadDir, "job-cancel.upload"),
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.CreateIngestJob(context.Background(), job))
	lines := strings.Repeat(sampleConnLine+"\n", 20)
	require.NoError(t, os.WriteFile(job.UploadPath, []byte(lines), 0644))
	store.cancelRequested[job.ID] = true

	r.runJob(context.Background(), job)

	final, err := store.GetIngestJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCanceled, final.State)
}

func TestWaitForStableSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))
	assert.True(t, waitForStableSize(path, time.Second))
}
