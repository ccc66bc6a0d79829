package retention

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netwallfa/internal/config"
	"netwallfa/internal/model"
	"netwallfa/internal/store"
	"netwallfa/pkg/degradation"
)

type fakeStore struct {
	mu sync.Mutex

	syslogKeys      []string
	activeJobs      bool
	deletedDevices  []string
	deleteCalls     int
	deleteReturn    int64
	deleteErr       error
	lastBatchSize   int64
	compactCalls    int
	summaries       []model.MaintenanceSummary
}

func (s *fakeStore) SyslogOnlyFirewallKeys(ctx context.Context) ([]string, error) {
	return s.syslogKeys, nil
}

func (s *fakeStore) DeleteSyslogOlderThan(ctx context.Context, devices []string, cutoffUTC time.Time, batchSize int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	s.deletedDevices = devices
	s.lastBatchSize = batchSize
	return s.deleteReturn, s.deleteErr
}

func (s *fakeStore) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compactCalls++
	return nil
}

func (s *fakeStore) HasActiveIngestJobs(ctx context.Context, states ...string) (bool, error) {
	return s.activeJobs, nil
}

func (s *fakeStore) RecordMaintenanceSummary(ctx context.Context, sum model.MaintenanceSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, sum)
	return nil
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestRunSweep_SkipsWhenNoSyslogFirewalls(t *testing.T) {
	store := &fakeStore{}
	c := New(store, config.RetentionConfig{Enabled: true, KeepDays: 90}, nil, "", testLogger())
	c.ctx = context.Background()

	c.runSweep()

	assert.Equal(t, 0, store.deleteCalls)
	assert.Empty(t, store.summaries)
}

func TestRunSweep_SkipsWhenJobsActive(t *testing.T) {
	store := &fakeStore{activeJobs: true, syslogKeys: []string{"fw-1"}}
	c := New(store, config.RetentionConfig{Enabled: true, KeepDays: 90}, nil, "", testLogger())
	c.ctx = context.Background()

	c.runSweep()

	assert.Equal(t, 0, store.deleteCalls)
}

func TestRunSweep_ExpandsHaKeysAndDeletes(t *testing.T) {
	store := &fakeStore{syslogKeys: []string{"ha:fw-pair", "fw-standalone"}, deleteReturn: 120}
	c := New(store, config.RetentionConfig{Enabled: true, KeepDays: 30}, nil, "", testLogger())
	c.ctx = context.Background()

	c.runSweep()

	require.Equal(t, 1, store.deleteCalls)
	assert.ElementsMatch(t, []string{"fw-pair_Master", "fw-pair_Slave", "fw-standalone"}, store.deletedDevices)
	require.Len(t, store.summaries, 1)
	assert.Equal(t, int64(120), store.summaries[0].RowsDeleted)
	assert.False(t, store.summaries[0].Compacted)
}

func TestRunSweep_CompactsAtThreshold(t *testing.T) {
	store := &fakeStore{syslogKeys: []string{"fw-1"}, deleteReturn: compactThreshold}
	c := New(store, config.RetentionConfig{Enabled: true, KeepDays: 30}, nil, "", testLogger())
	c.ctx = context.Background()

	c.runSweep()

	assert.Equal(t, 1, store.compactCalls)
	require.Len(t, store.summaries, 1)
	assert.True(t, store.summaries[0].Compacted)
}

func TestRunSweep_ReducesBatchSizeWhenFullBatchDegraded(t *testing.T) {
	deg := degradation.NewManager(degradation.Config{}, testLogger())
	deg.ForceDegrade(degradation.FeatureRetentionFullBatch, "test")

	s := &fakeStore{syslogKeys: []string{"fw-1"}, deleteReturn: 5}
	c := New(s, config.RetentionConfig{Enabled: true, KeepDays: 30}, deg, "", testLogger())
	c.ctx = context.Background()

	c.runSweep()

	require.Equal(t, 1, s.deleteCalls)
	assert.Equal(t, int64(store.DeleteBatchSize/10), s.lastBatchSize)
}

func TestStart_NoopWhenDisabled(t *testing.T) {
	store := &fakeStore{syslogKeys: []string{"fw-1"}}
	c := New(store, config.RetentionConfig{Enabled: false}, nil, "", testLogger())

	c.Start(context.Background())
	c.Stop()

	assert.Equal(t, 0, store.deleteCalls)
}

func TestStart_RunsAfterStartupDelay(t *testing.T) {
	store := &fakeStore{syslogKeys: []string{"fw-1"}, deleteReturn: 5}
	c := New(store, config.RetentionConfig{
		Enabled:      true,
		KeepDays:     90,
		Interval:     time.Hour,
		StartupDelay: 10 * time.Millisecond,
	}, nil, "", testLogger())

	c.Start(context.Background())
	defer c.Stop()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.deleteCalls == 1
	}, time.Second, 5*time.Millisecond)
}
