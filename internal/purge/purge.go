// Package purge implements the operator-initiated, background-executed
// firewall purge (spec section 4.10) and the one-time flow dedup maintenance
// operation (SPEC_FULL.md C.3).
//
// Grounded on the teacher's pkg/dlq record-keeping shape: a durable record of
// an attempted operation that preserves whatever partial result it reached
// before failing, rather than an all-or-nothing transaction log.
package purge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"netwallfa/internal/ha"
	"netwallfa/internal/metrics"
	"netwallfa/internal/model"
)

// Store is the persistence seam the purge job needs. Implemented by
// *internal/store.Store.
type Store interface {
	HasActiveIngestJobs(ctx context.Context, states ...string) (bool, error)

	HaClusterLabel(ctx context.Context, base string) (string, bool)

	CreateMaintenanceJob(ctx context.Context, job *model.MaintenanceJob) error
	SetMaintenanceJobRunning(ctx context.Context, id string) error
	SetMaintenanceJobDone(ctx context.Context, id string, counts map[string]int64) error
	SetMaintenanceJobError(ctx context.Context, id, message string, counts map[string]int64) error
	GetMaintenanceJob(ctx context.Context, id string) (*model.MaintenanceJob, error)

	CascadePurgeFirewall(ctx context.Context, firewallKey string) (map[string]int64, error)
	DeleteRawLogsForDevices(ctx context.Context, devices []string) (int64, error)
	DeleteClassificationsForDevices(ctx context.Context, devices []string) (int64, error)
	DeleteUnclassifiedEndpointsForDevices(ctx context.Context, devices []string) (int64, error)

	DedupFlows(ctx context.Context) (int64, error)
}

// Controller runs purge and dedup maintenance jobs in the background.
type Controller struct {
	store  Store
	logger *logrus.Logger
}

// New builds a Controller.
func New(store Store, logger *logrus.Logger) *Controller {
	return &Controller{store: store, logger: logger}
}

// ResolveDevice implements the resolve_device operation (spec section 6.4,
// SPEC_FULL.md C.1/C.2): given a device_key that may be a raw device name or
// an "ha:<base>" cluster key, returns the canonical firewall key, its member
// device names, and an operator-facing display label.
//
// A raw member name (e.g. "fw-a_Master") is first canonicalized, so callers
// don't need to know in advance whether a key is already collapsed.
func (c *Controller) ResolveDevice(ctx context.Context, deviceKey string) (firewallKey string, members []string, label string) {
	key := deviceKey
	if !strings.HasPrefix(key, "ha:") {
		key = ha.Canonical(deviceKey).FirewallKey
	}
	members = ha.ExpandMembers(key)

	if base, ok := strings.CutPrefix(key, "ha:"); ok {
		if l, found := c.store.HaClusterLabel(ctx, base); found {
			return key, members, l
		}
		return key, members, base
	}
	return key, members, key
}

// PurgeFirewall starts a background MaintenanceJob that cascades a delete of
// every row touching deviceKey, in this order: Flows, DeviceIdentification,
// Endpoints, Events, the firewalls row itself, then RawLogs, Classification
// and UnclassifiedEndpoint; the firewalls row is therefore not the last table
// deleted (spec section 4.10; FirewallOverride/DeviceOverride/
// RouterMac are out of schema scope, see DESIGN.md). Each table delete is its
// own committed step with its row count folded into result_counts as it
// completes, so a failure partway through preserves every count reached so
// far. Returns immediately with the queued job; the caller polls
// get_maintenance_job for completion.
func (c *Controller) PurgeFirewall(ctx context.Context, deviceKey string) (*model.MaintenanceJob, error) {
	busy, err := c.store.HasActiveIngestJobs(ctx, string(model.JobUploading), string(model.JobRunning))
	if err != nil {
		return nil, fmt.Errorf("purge: checking active ingest jobs: %w", err)
	}
	if busy {
		return nil, fmt.Errorf("purge: busy, an ingest job is uploading or running")
	}

	firewallKey, members, _ := c.ResolveDevice(ctx, deviceKey)

	job := &model.MaintenanceJob{
		ID:          uuid.New().String(),
		FirewallKey: firewallKey,
		State:       model.MaintenanceQueued,
	}
	if err := c.store.CreateMaintenanceJob(ctx, job); err != nil {
		return nil, fmt.Errorf("purge: creating maintenance job: %w", err)
	}

	go c.runPurge(job.ID, firewallKey, members)

	return job, nil
}

func (c *Controller) runPurge(jobID, firewallKey string, members []string) {
	ctx := context.Background()
	logger := c.logger.WithFields(logrus.Fields{"job_id": jobID, "firewall_key": firewallKey})

	if err := c.store.SetMaintenanceJobRunning(ctx, jobID); err != nil {
		logger.WithError(err).Error("purge: failed to mark job running")
		return
	}

	counts := map[string]int64{}

	cascade, err := c.store.CascadePurgeFirewall(ctx, firewallKey)
	for table, n := range cascade {
		counts[table] = n
	}
	if err != nil {
		c.fail(ctx, jobID, counts, fmt.Errorf("cascade delete: %w", err), logger)
		return
	}

	if n, err := c.store.DeleteRawLogsForDevices(ctx, members); err != nil {
		c.fail(ctx, jobID, counts, fmt.Errorf("raw_logs delete: %w", err), logger)
		return
	} else {
		counts["raw_logs"] = n
	}

	if n, err := c.store.DeleteClassificationsForDevices(ctx, members); err != nil {
		c.fail(ctx, jobID, counts, fmt.Errorf("classifications delete: %w", err), logger)
		return
	} else {
		counts["classifications"] = n
	}

	if n, err := c.store.DeleteUnclassifiedEndpointsForDevices(ctx, members); err != nil {
		c.fail(ctx, jobID, counts, fmt.Errorf("unclassified_endpoints delete: %w", err), logger)
		return
	} else {
		counts["unclassified_endpoints"] = n
	}

	if err := c.store.SetMaintenanceJobDone(ctx, jobID, counts); err != nil {
		logger.WithError(err).Error("purge: failed to mark job done")
		return
	}
	for table, n := range counts {
		metrics.PurgeRowsDeletedTotal.WithLabelValues(table).Add(float64(n))
	}
	logger.WithField("result_counts", counts).Info("firewall purge completed")
}

func (c *Controller) fail(ctx context.Context, jobID string, counts map[string]int64, err error, logger *logrus.Entry) {
	logger.WithError(err).WithField("result_counts", counts).Error("firewall purge failed")
	if setErr := c.store.SetMaintenanceJobError(ctx, jobID, err.Error(), counts); setErr != nil {
		logger.WithError(setErr).Error("purge: failed to record job error")
	}
}

// RunDedupFlows executes the one-time flow-dedup maintenance operation
// (SPEC_FULL.md C.3) synchronously and returns the number of duplicate rows
// removed. Safe to call more than once: once duplicates are merged the
// grouping query returns no further groups.
func (c *Controller) RunDedupFlows(ctx context.Context) (int64, error) {
	start := time.Now()
	removed, err := c.store.DedupFlows(ctx)
	if err != nil {
		return 0, fmt.Errorf("dedup_flows: %w", err)
	}
	c.logger.WithFields(logrus.Fields{
		"rows_removed": removed,
		"duration":     time.Since(start),
	}).Info("flow dedup completed")
	return removed, nil
}
