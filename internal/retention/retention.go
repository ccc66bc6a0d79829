// Package retention runs the hourly cleaner that ages out pure-syslog
// history (spec section 4.9). Imported data is an operator snapshot and is
// never time-deleted; only firewalls whose every observation came in over
// live syslog are eligible.
//
// Grounded on the teacher's pkg/degradation/manager.go for the
// backoff-under-load shape (a fixed-interval loop that reduces its own batch
// size when the system is degraded) and pkg/cleanup/disk_manager.go, whose
// DiskSpaceManager this package runs alongside the row-level sweep to evict
// aged upload files.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	oteltrace "go.opentelemetry.io/otel/trace"

	"netwallfa/internal/config"
	"netwallfa/internal/ha"
	"netwallfa/internal/model"
	"netwallfa/internal/metrics"
	"netwallfa/internal/store"
	"netwallfa/internal/tracing"
	"netwallfa/pkg/cleanup"
	"netwallfa/pkg/degradation"
)

// Store is the persistence seam the retention loop needs. Implemented by
// *internal/store.Store.
type Store interface {
	SyslogOnlyFirewallKeys(ctx context.Context) ([]string, error)
	DeleteSyslogOlderThan(ctx context.Context, devices []string, cutoffUTC time.Time, batchSize int64) (int64, error)
	Compact(ctx context.Context) error
	HasActiveIngestJobs(ctx context.Context, states ...string) (bool, error)
	RecordMaintenanceSummary(ctx context.Context, sum model.MaintenanceSummary) error
}

// compactThreshold is the row-deletion count at or above which a sweep also
// runs a compaction pass (spec section 4.9 step 4).
const compactThreshold = 50000

// degradedBatchSize is the delete batch size used when
// degradation.FeatureRetentionFullBatch is disabled under load (spec
// section 4.9): smaller transactions, more commits, less lock contention
// against a live ingest workload.
const degradedBatchSize = store.DeleteBatchSize / 10

// Cleaner runs the fixed-cadence retention sweep, plus the upload directory's
// disk-space sweep (spec section 4.8's upload area).
type Cleaner struct {
	store   Store
	cfg     config.RetentionConfig
	logger  *logrus.Logger
	deg     *degradation.Manager
	tracer  *tracing.Manager
	diskMgr *cleanup.DiskSpaceManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Cleaner. deg may be nil, in which case the sweep always
// deletes in store.DeleteBatchSize batches with no degradation-driven backoff.
// uploadDir, if non-empty, is swept for age/size/count eviction by a
// pkg/cleanup.DiskSpaceManager alongside the row-level retention sweep.
func New(store Store, cfg config.RetentionConfig, deg *degradation.Manager, uploadDir string, logger *logrus.Logger) *Cleaner {
	c := &Cleaner{store: store, cfg: cfg, deg: deg, logger: logger}
	if uploadDir != "" {
		c.diskMgr = cleanup.NewDiskSpaceManager(cleanup.Config{
			Directories: []cleanup.DirectoryConfig{
				{
					Path:          uploadDir,
					RetentionDays: cfg.KeepDays,
					MaxFiles:      0,
				},
			},
			CheckInterval:          cfg.Interval,
			CriticalSpaceThreshold: 5,
			WarningSpaceThreshold:  15,
		}, logger)
	}
	return c
}

// SetTracer attaches a span manager wrapping each sweep. Optional.
func (c *Cleaner) SetTracer(t *tracing.Manager) {
	c.tracer = t
}

// Start launches the sweep loop; it waits cfg.StartupDelay before the first
// run, then fires every cfg.Interval. A no-op if retention is disabled.
func (c *Cleaner) Start(ctx context.Context) {
	if !c.cfg.Enabled {
		c.logger.Info("retention cleaner disabled, not starting")
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.loop()

	if c.diskMgr != nil {
		if err := c.diskMgr.Start(); err != nil {
			c.logger.WithError(err).Warn("upload directory disk sweep not started")
		}
	}
}

// RunNow executes one sweep synchronously outside the ticker cadence, for
// the manual run_cleanup operation (spec section 6.4). Safe to call whether
// or not Start has been called; falls back to ctx when the loop's own
// context isn't set yet.
func (c *Cleaner) RunNow(ctx context.Context) {
	if c.ctx == nil {
		c.ctx = ctx
	}
	c.runSweep()
}

// Stop signals the sweep loop to exit and waits for the in-flight sweep, if
// any, to finish.
func (c *Cleaner) Stop() {
	if c.diskMgr != nil {
		if err := c.diskMgr.Stop(); err != nil {
			c.logger.WithError(err).Warn("upload directory disk sweep stop error")
		}
	}
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.wg.Wait()
}

func (c *Cleaner) loop() {
	defer c.wg.Done()

	select {
	case <-time.After(c.cfg.StartupDelay):
	case <-c.ctx.Done():
		return
	}

	c.runSweep()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.runSweep()
		}
	}
}

// runSweep executes one retention pass. Errors are logged, never panicked —
// a failed sweep simply waits for the next tick.
func (c *Cleaner) runSweep() {
	ctx := c.ctx
	if c.tracer != nil {
		var span oteltrace.Span
		ctx, span = c.tracer.StartSpan(ctx, "retention_sweep")
		defer tracing.EndSpan(span, nil)
	}

	started := time.Now()

	busy, err := c.store.HasActiveIngestJobs(ctx, string(model.JobQueued), string(model.JobRunning))
	if err != nil {
		c.logger.WithError(err).Error("retention: failed to check for active ingest jobs")
		return
	}
	if busy {
		c.logger.Debug("retention: skipped, an ingest job is queued or running")
		return
	}

	keys, err := c.store.SyslogOnlyFirewallKeys(ctx)
	if err != nil {
		c.logger.WithError(err).Error("retention: failed to resolve syslog-only firewall keys")
		return
	}
	if len(keys) == 0 {
		c.logger.Debug("retention: skipped, no syslog-sourced firewalls")
		return
	}

	devices := expandMembers(keys)
	cutoff := time.Now().UTC().AddDate(0, 0, -c.cfg.KeepDays)

	batchSize := int64(store.DeleteBatchSize)
	if c.deg != nil && !c.deg.IsFeatureEnabled(degradation.FeatureRetentionFullBatch) {
		batchSize = degradedBatchSize
		c.logger.WithField("batch_size", batchSize).
			Debug("retention: full-batch deletes degraded under load, reducing delete batch size")
	}

	deleted, err := c.store.DeleteSyslogOlderThan(ctx, devices, cutoff, batchSize)
	if err != nil {
		c.logger.WithError(err).Error("retention: batched delete failed")
		return
	}
	metrics.RetentionRowsDeletedTotal.WithLabelValues("raw_logs_and_events").Add(float64(deleted))

	compacted := false
	if deleted >= compactThreshold {
		if err := c.store.Compact(ctx); err != nil {
			c.logger.WithError(err).Warn("retention: compaction failed")
		} else {
			compacted = true
		}
	}

	duration := time.Since(started)
	sum := model.MaintenanceSummary{
		RanAt:       time.Now().UTC(),
		CutoffUTC:   cutoff,
		RowsDeleted: deleted,
		Compacted:   compacted,
		Duration:    duration,
	}
	if err := c.store.RecordMaintenanceSummary(ctx, sum); err != nil {
		c.logger.WithError(err).Warn("retention: failed to persist sweep summary")
	}

	c.logger.WithFields(logrus.Fields{
		"rows_deleted": deleted,
		"compacted":    compacted,
		"duration":     duration,
		"cutoff":       cutoff,
	}).Info("retention sweep completed")
}

// expandMembers resolves every syslog-only firewall key (which may be an
// "ha:<base>" cluster label) to the concrete device names that appear in
// raw_logs/events, so the delete predicate matches on-wire hostnames.
func expandMembers(keys []string) []string {
	var devices []string
	for _, k := range keys {
		devices = append(devices, ha.ExpandMembers(k)...)
	}
	return devices
}
