package store

import (
	"context"
	"database/sql"
	"time"

	"netwallfa/internal/model"
)

// StallThreshold is how long a "running" job can go without a heartbeat
// update before the worker loop considers it dead (spec section 4.8 / §9
// Open Question: heuristic, clock-based, may be replaced later).
const StallThreshold = 5 * time.Minute

// CreateIngestJob inserts job in its initial "uploading" state.
func (s *Store) CreateIngestJob(ctx context.Context, job *model.IngestJob) error {
	now := timeValue(s.dialect, time.Now().UTC())
	q := s.dialect.rebind(`INSERT INTO ingest_jobs (
		id, state, phase, filename, upload_path, bytes_total, bytes_received,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q, job.ID, string(model.JobUploading), string(model.PhaseUpload),
		job.Filename, job.UploadPath, job.BytesTotal, job.BytesRecv, now, now)
	return err
}

// GetIngestJob loads one job by id.
func (s *Store) GetIngestJob(ctx context.Context, id string) (*model.IngestJob, error) {
	q := s.dialect.rebind(`SELECT id, state, phase, filename, upload_path, bytes_total, bytes_received,
		lines_total, lines_processed, parse_ok, parse_err, filtered_id, inserted, device_detected,
		error_type, error_stage, error_message, cancel_requested, created_at, started_at, finished_at, updated_at
		FROM ingest_jobs WHERE id = ?`)
	row := s.db.QueryRowContext(ctx, q, id)
	return scanIngestJob(row, s.dialect)
}

func scanIngestJob(row *sql.Row, d Dialect) (*model.IngestJob, error) {
	var j model.IngestJob
	var phase, deviceDetected, errType, errStage, errMsg sql.NullString
	var startedAt, finishedAt sql.NullString
	var createdAt, updatedAt string
	if d == DialectPostgres {
		var cancelRequested bool
		var startedT, finishedT sql.NullTime
		var createdT, updatedT time.Time
		if err := row.Scan(&j.ID, &j.State, &phase, &j.Filename, &j.UploadPath, &j.BytesTotal, &j.BytesRecv,
			&j.LinesTotal, &j.LinesProc, &j.ParseOK, &j.ParseErr, &j.FilteredID, &j.Inserted, &deviceDetected,
			&errType, &errStage, &errMsg, &cancelRequested, &createdT, &startedT, &finishedT, &updatedT); err != nil {
			return nil, err
		}
		j.CancelRequested = cancelRequested
		j.CreatedAt, j.UpdatedAt = createdT, updatedT
		if startedT.Valid {
			j.StartedAt = startedT.Time
		}
		if finishedT.Valid {
			j.FinishedAt = finishedT.Time
		}
	} else {
		var cancelRequested int64
		if err := row.Scan(&j.ID, &j.State, &phase, &j.Filename, &j.UploadPath, &j.BytesTotal, &j.BytesRecv,
			&j.LinesTotal, &j.LinesProc, &j.ParseOK, &j.ParseErr, &j.FilteredID, &j.Inserted, &deviceDetected,
			&errType, &errStage, &errMsg, &cancelRequested, &createdAt, &startedAt, &finishedAt, &updatedAt); err != nil {
			return nil, err
		}
		j.CancelRequested = cancelRequested != 0
		j.CreatedAt = parseStoredTime(createdAt)
		j.UpdatedAt = parseStoredTime(updatedAt)
		if startedAt.Valid {
			j.StartedAt = parseStoredTime(startedAt.String)
		}
		if finishedAt.Valid {
			j.FinishedAt = parseStoredTime(finishedAt.String)
		}
	}
	j.Phase = model.JobPhase(phase.String)
	j.DeviceDetected = deviceDetected.String
	j.ErrorType = errType.String
	j.ErrorStage = errStage.String
	j.ErrorMessage = errMsg.String
	return &j, nil
}

func parseStoredTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// UpdateIngestJobProgress persists a heartbeat: phase, line/byte counters,
// and updated_at, called periodically while a job runs (spec section 4.8).
func (s *Store) UpdateIngestJobProgress(ctx context.Context, job *model.IngestJob) error {
	q := s.dialect.rebind(`UPDATE ingest_jobs SET
		state = ?, phase = ?, bytes_received = ?, lines_total = ?, lines_processed = ?,
		parse_ok = ?, parse_err = ?, filtered_id = ?, inserted = ?, device_detected = ?,
		updated_at = ?
		WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, q, string(job.State), string(job.Phase), job.BytesRecv, job.LinesTotal, job.LinesProc,
		job.ParseOK, job.ParseErr, job.FilteredID, job.Inserted, nullString(job.DeviceDetected),
		timeValue(s.dialect, time.Now().UTC()), job.ID)
	return err
}

// SetIngestJobQueued transitions job from uploading to queued once the
// upload body has been fully written to disk.
func (s *Store) SetIngestJobQueued(ctx context.Context, job *model.IngestJob) error {
	now := timeValue(s.dialect, time.Now().UTC())
	q := s.dialect.rebind(`UPDATE ingest_jobs SET state = ?, bytes_received = ?, bytes_total = ?, updated_at = ? WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, q, string(model.JobQueued), job.BytesRecv, job.BytesTotal, now, job.ID)
	return err
}

// SetIngestJobRunning transitions job from queued to running.
func (s *Store) SetIngestJobRunning(ctx context.Context, id string) error {
	now := timeValue(s.dialect, time.Now().UTC())
	q := s.dialect.rebind(`UPDATE ingest_jobs SET state = ?, phase = ?, started_at = ?, updated_at = ? WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, q, string(model.JobRunning), string(model.PhaseParsing), now, now, id)
	return err
}

// SetIngestJobDone finalizes job as done with its terminal counters.
func (s *Store) SetIngestJobDone(ctx context.Context, job *model.IngestJob) error {
	now := timeValue(s.dialect, time.Now().UTC())
	q := s.dialect.rebind(`UPDATE ingest_jobs SET
		state = ?, phase = ?, lines_total = ?, lines_processed = ?, parse_ok = ?, parse_err = ?,
		filtered_id = ?, inserted = ?, device_detected = ?, finished_at = ?, updated_at = ?
		WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, q, string(model.JobDone), string(model.PhaseDone),
		job.LinesTotal, job.LinesProc, job.ParseOK, job.ParseErr, job.FilteredID, job.Inserted,
		nullString(job.DeviceDetected), now, now, job.ID)
	return err
}

// SetIngestJobCanceled finalizes job as canceled, matching _set_job_canceled.
func (s *Store) SetIngestJobCanceled(ctx context.Context, job *model.IngestJob) error {
	now := timeValue(s.dialect, time.Now().UTC())
	q := s.dialect.rebind(`UPDATE ingest_jobs SET
		state = ?, phase = NULL, lines_processed = ?, parse_ok = ?, parse_err = ?,
		filtered_id = ?, inserted = ?, finished_at = ?, updated_at = ?
		WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, q, string(model.JobCanceled),
		job.LinesProc, job.ParseOK, job.ParseErr, job.FilteredID, job.Inserted, now, now, job.ID)
	return err
}

// SetIngestJobError finalizes job as error, message truncated to 1000 chars
// by the caller's *errors.AppError before it reaches here.
func (s *Store) SetIngestJobError(ctx context.Context, job *model.IngestJob, errType, errStage, errMsg string) error {
	now := timeValue(s.dialect, time.Now().UTC())
	q := s.dialect.rebind(`UPDATE ingest_jobs SET
		state = ?, phase = ?, lines_processed = ?, parse_ok = ?, parse_err = ?,
		filtered_id = ?, inserted = ?, error_type = ?, error_stage = ?, error_message = ?,
		finished_at = ?, updated_at = ?
		WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, q, string(model.JobError), string(model.PhaseError),
		job.LinesProc, job.ParseOK, job.ParseErr, job.FilteredID, job.Inserted,
		nullString(errType), nullString(errStage), errMsg, now, now, job.ID)
	return err
}

// RequestIngestJobCancel sets the cancel_requested flag, polled by the worker.
func (s *Store) RequestIngestJobCancel(ctx context.Context, id string) error {
	q := s.dialect.rebind(`UPDATE ingest_jobs SET cancel_requested = ?, updated_at = ? WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, q, s.boolValue(true), timeValue(s.dialect, time.Now().UTC()), id)
	return err
}

// CheckIngestJobCancelRequested polls the cancel flag without loading the
// whole row, matching check_job_cancel_requested.
func (s *Store) CheckIngestJobCancelRequested(ctx context.Context, id string) (bool, error) {
	q := s.dialect.rebind(`SELECT cancel_requested FROM ingest_jobs WHERE id = ?`)
	row := s.db.QueryRowContext(ctx, q, id)
	if s.dialect == DialectPostgres {
		var v bool
		if err := row.Scan(&v); err != nil {
			return false, err
		}
		return v, nil
	}
	var v int64
	if err := row.Scan(&v); err != nil {
		return false, err
	}
	return v != 0, nil
}

// UpdateIngestJobDevice sets device_detected once a primary device is
// identified mid-stream, matching _maybe_update_job_device.
func (s *Store) UpdateIngestJobDevice(ctx context.Context, id, device string) error {
	q := s.dialect.rebind(`UPDATE ingest_jobs SET device_detected = ?, updated_at = ? WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, q, device, timeValue(s.dialect, time.Now().UTC()), id)
	return err
}

// NextQueuedIngestJob returns the oldest queued job not already cancel
// requested, or nil if none are waiting (worker.py's run_worker_loop pick step).
func (s *Store) NextQueuedIngestJob(ctx context.Context) (*model.IngestJob, error) {
	q := s.dialect.rebind(`SELECT id FROM ingest_jobs WHERE state = ? AND cancel_requested = ? ORDER BY created_at ASC LIMIT 1`)
	var id string
	err := s.db.QueryRowContext(ctx, q, string(model.JobQueued), s.boolValue(false)).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.GetIngestJob(ctx, id)
}

// MarkStalledRunningJobs moves every "running" job whose updated_at is older
// than StallThreshold back to "error", matching _mark_stalled_running_jobs.
// Returns the number of jobs marked.
func (s *Store) MarkStalledRunningJobs(ctx context.Context) (int64, error) {
	cutoff := timeValue(s.dialect, time.Now().UTC().Add(-StallThreshold))
	q := s.dialect.rebind(`UPDATE ingest_jobs SET
		state = ?, error_type = ?, error_stage = ?, error_message = ?, finished_at = ?, updated_at = ?
		WHERE state = ? AND updated_at < ?`)
	now := timeValue(s.dialect, time.Now().UTC())
	res, err := s.db.ExecContext(ctx, q, string(model.JobError), "StallDetected", "job_stalled",
		"job exceeded stall threshold with no progress heartbeat", now, now, string(model.JobRunning), cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CreateMaintenanceJob inserts a queued maintenance job.
func (s *Store) CreateMaintenanceJob(ctx context.Context, job *model.MaintenanceJob) error {
	now := timeValue(s.dialect, time.Now().UTC())
	q := s.dialect.rebind(`INSERT INTO maintenance_jobs (id, firewall_key, state, result_counts, created_at)
		VALUES (?, ?, ?, '{}', ?)`)
	_, err := s.db.ExecContext(ctx, q, job.ID, nullString(job.FirewallKey), string(model.MaintenanceQueued), now)
	return err
}

// SetMaintenanceJobRunning transitions job to running.
func (s *Store) SetMaintenanceJobRunning(ctx context.Context, id string) error {
	now := timeValue(s.dialect, time.Now().UTC())
	q := s.dialect.rebind(`UPDATE maintenance_jobs SET state = ?, started_at = ? WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, q, string(model.MaintenanceRunning), now, id)
	return err
}

// SetMaintenanceJobDone finalizes job with its result counts.
func (s *Store) SetMaintenanceJobDone(ctx context.Context, id string, counts map[string]int64) error {
	countsJSON, err := jsonValue(s.dialect, counts)
	if err != nil {
		return err
	}
	now := timeValue(s.dialect, time.Now().UTC())
	q := s.dialect.rebind(`UPDATE maintenance_jobs SET state = ?, result_counts = ?, finished_at = ? WHERE id = ?`)
	_, err = s.db.ExecContext(ctx, q, string(model.MaintenanceDone), countsJSON, now, id)
	return err
}

// SetMaintenanceJobError finalizes job with an error message, preserving
// whatever per-table counts had accumulated before the failing step (spec
// section 4.10: "On any exception the job transitions to error with partial
// counts preserved").
func (s *Store) SetMaintenanceJobError(ctx context.Context, id, message string, counts map[string]int64) error {
	countsJSON, err := jsonValue(s.dialect, counts)
	if err != nil {
		return err
	}
	now := timeValue(s.dialect, time.Now().UTC())
	q := s.dialect.rebind(`UPDATE maintenance_jobs SET state = ?, error_message = ?, result_counts = ?, finished_at = ? WHERE id = ?`)
	_, err = s.db.ExecContext(ctx, q, string(model.MaintenanceError), message, countsJSON, now, id)
	return err
}

// RecordMaintenanceSummary persists the single most recent retention-sweep
// summary row (spec section 4.9 step 5).
func (s *Store) RecordMaintenanceSummary(ctx context.Context, sum model.MaintenanceSummary) error {
	q := s.dialect.rebind(`INSERT INTO maintenance_last_cleanup (id, ran_at, cutoff_utc, rows_deleted, compacted, duration_ms)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			ran_at = excluded.ran_at, cutoff_utc = excluded.cutoff_utc,
			rows_deleted = excluded.rows_deleted, compacted = excluded.compacted, duration_ms = excluded.duration_ms`)
	_, err := s.db.ExecContext(ctx, q,
		timeValue(s.dialect, sum.RanAt), timeValue(s.dialect, sum.CutoffUTC), sum.RowsDeleted,
		s.boolValue(sum.Compacted), sum.Duration.Milliseconds())
	return err
}
