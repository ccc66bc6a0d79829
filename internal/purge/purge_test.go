package purge

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netwallfa/internal/model"
)

type fakeStore struct {
	mu sync.Mutex

	activeJobs bool
	haLabels   map[string]string

	jobs map[string]*model.MaintenanceJob

	cascadeCounts map[string]int64
	cascadeErr    error
	rawLogsErr    error
	classifyErr   error
	unclassErr    error

	dedupReturn int64
	dedupErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		haLabels:      map[string]string{},
		jobs:          map[string]*model.MaintenanceJob{},
		cascadeCounts: map[string]int64{"flows": 3, "device_identifications": 1, "endpoints": 2, "events": 4, "firewalls": 1},
	}
}

func (s *fakeStore) HasActiveIngestJobs(ctx context.Context, states ...string) (bool, error) {
	return s.activeJobs, nil
}

func (s *fakeStore) HaClusterLabel(ctx context.Context, base string) (string, bool) {
	l, ok := s.haLabels[base]
	return l, ok
}

func (s *fakeStore) CreateMaintenanceJob(ctx context.Context, job *model.MaintenanceJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	cp.CreatedAt = time.Now().UTC()
	s.jobs[job.ID] = &cp
	return nil
}

func (s *fakeStore) SetMaintenanceJobRunning(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].State = model.MaintenanceRunning
	return nil
}

func (s *fakeStore) SetMaintenanceJobDone(ctx context.Context, id string, counts map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[id]
	j.State = model.MaintenanceDone
	j.ResultCounts = counts
	return nil
}

func (s *fakeStore) SetMaintenanceJobError(ctx context.Context, id, message string, counts map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[id]
	j.State = model.MaintenanceError
	j.ErrorMessage = message
	j.ResultCounts = counts
	return nil
}

func (s *fakeStore) GetMaintenanceJob(ctx context.Context, id string) (*model.MaintenanceJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.jobs[id]
	return &cp, nil
}

func (s *fakeStore) CascadePurgeFirewall(ctx context.Context, firewallKey string) (map[string]int64, error) {
	if s.cascadeErr != nil {
		return map[string]int64{"flows": 3}, s.cascadeErr
	}
	return s.cascadeCounts, nil
}

func (s *fakeStore) DeleteRawLogsForDevices(ctx context.Context, devices []string) (int64, error) {
	if s.rawLogsErr != nil {
		return 0, s.rawLogsErr
	}
	return int64(len(devices)) * 10, nil
}

func (s *fakeStore) DeleteClassificationsForDevices(ctx context.Context, devices []string) (int64, error) {
	if s.classifyErr != nil {
		return 0, s.classifyErr
	}
	return int64(len(devices)), nil
}

func (s *fakeStore) DeleteUnclassifiedEndpointsForDevices(ctx context.Context, devices []string) (int64, error) {
	if s.unclassErr != nil {
		return 0, s.unclassErr
	}
	return int64(len(devices)), nil
}

func (s *fakeStore) DedupFlows(ctx context.Context) (int64, error) {
	return s.dedupReturn, s.dedupErr
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestResolveDevice_PlainKey(t *testing.T) {
	c := New(newFakeStore(), testLogger())
	key, members, label := c.ResolveDevice(context.Background(), "fw-standalone")
	assert.Equal(t, "fw-standalone", key)
	assert.Equal(t, []string{"fw-standalone"}, members)
	assert.Equal(t, "fw-standalone", label)
}

func TestResolveDevice_RawMemberCollapsesToHa(t *testing.T) {
	store := newFakeStore()
	store.haLabels["fw-pair"] = "Branch Office Pair"
	c := New(store, testLogger())

	key, members, label := c.ResolveDevice(context.Background(), "fw-pair_Master")
	assert.Equal(t, "ha:fw-pair", key)
	assert.ElementsMatch(t, []string{"fw-pair_Master", "fw-pair_Slave"}, members)
	assert.Equal(t, "Branch Office Pair", label)
}

func TestResolveDevice_HaKeyWithoutClusterLabelFallsBackToBase(t *testing.T) {
	c := New(newFakeStore(), testLogger())
	key, members, label := c.ResolveDevice(context.Background(), "ha:fw-pair")
	assert.Equal(t, "ha:fw-pair", key)
	assert.ElementsMatch(t, []string{"fw-pair_Master", "fw-pair_Slave"}, members)
	assert.Equal(t, "fw-pair", label)
}

func TestPurgeFirewall_RejectsWhenBusy(t *testing.T) {
	store := newFakeStore()
	store.activeJobs = true
	c := New(store, testLogger())

	_, err := c.PurgeFirewall(context.Background(), "fw-a")
	require.Error(t, err)
}

func TestPurgeFirewall_RunsCascadeAndCompletesWithCounts(t *testing.T) {
	store := newFakeStore()
	c := New(store, testLogger())

	job, err := c.PurgeFirewall(context.Background(), "ha:fw-pair")
	require.NoError(t, err)
	require.Equal(t, "ha:fw-pair", job.FirewallKey)

	require.Eventually(t, func() bool {
		j, _ := store.GetMaintenanceJob(context.Background(), job.ID)
		return j.State == model.MaintenanceDone
	}, time.Second, 5*time.Millisecond)

	final, err := store.GetMaintenanceJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), final.ResultCounts["flows"])
	assert.Equal(t, int64(20), final.ResultCounts["raw_logs"])
	assert.Equal(t, int64(2), final.ResultCounts["classifications"])
	assert.Equal(t, int64(2), final.ResultCounts["unclassified_endpoints"])
}

func TestPurgeFirewall_PreservesPartialCountsOnFailure(t *testing.T) {
	store := newFakeStore()
	store.rawLogsErr = assertErr{"disk full"}
	c := New(store, testLogger())

	job, err := c.PurgeFirewall(context.Background(), "fw-a")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, _ := store.GetMaintenanceJob(context.Background(), job.ID)
		return j.State == model.MaintenanceError
	}, time.Second, 5*time.Millisecond)

	final, err := store.GetMaintenanceJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), final.ResultCounts["flows"], "counts reached before the failing step are preserved")
	assert.NotContains(t, final.ResultCounts, "raw_logs")
}

func TestRunDedupFlows(t *testing.T) {
	store := newFakeStore()
	store.dedupReturn = 7
	c := New(store, testLogger())

	n, err := c.RunDedupFlows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
