package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"netwallfa/internal/model"
)

// ListIngestJobs returns up to limit jobs, newest first, optionally filtered
// to one state (spec section 6.4 list_jobs). An empty stateFilter returns
// every job.
func (s *Store) ListIngestJobs(ctx context.Context, stateFilter string, limit int) ([]*model.IngestJob, error) {
	base := `SELECT id, state, phase, filename, upload_path, bytes_total, bytes_received,
		lines_total, lines_processed, parse_ok, parse_err, filtered_id, inserted, device_detected,
		error_type, error_stage, error_message, cancel_requested, created_at, started_at, finished_at, updated_at
		FROM ingest_jobs`
	args := []interface{}{}
	if stateFilter != "" {
		base += " WHERE state = " + placeholders(s.dialect, 1, 1)
		args = append(args, stateFilter)
	}
	base += " ORDER BY created_at DESC"
	if limit > 0 {
		base += " LIMIT " + placeholders(s.dialect, len(args)+1, 1)
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(base), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.IngestJob
	for rows.Next() {
		j, err := scanIngestJobRows(rows, s.dialect)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIngestJobRows(rows rowScanner, d Dialect) (*model.IngestJob, error) {
	var j model.IngestJob
	var phase, deviceDetected, errType, errStage, errMsg sql.NullString
	var startedAt, finishedAt sql.NullString
	var createdAt, updatedAt string
	if d == DialectPostgres {
		var cancelRequested bool
		var startedT, finishedT sql.NullTime
		var createdT, updatedT time.Time
		if err := rows.Scan(&j.ID, &j.State, &phase, &j.Filename, &j.UploadPath, &j.BytesTotal, &j.BytesRecv,
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
		if err := rows.Scan(&j.ID, &j.State, &phase, &j.Filename, &j.UploadPath, &j.BytesTotal, &j.BytesRecv,
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

// DeleteIngestJob removes a job record outright (spec section 6.4 delete_job).
// Callers are responsible for refusing to delete a job that's still running.
func (s *Store) DeleteIngestJob(ctx context.Context, id string) error {
	q := s.dialect.rebind(`DELETE FROM ingest_jobs WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, q, id)
	return err
}

// HasActiveIngestJobs reports whether any job is in one of the given states —
// used by retention (queued, running) to avoid write contention and by purge
// (uploading, running) to refuse a concurrent firewall delete.
func (s *Store) HasActiveIngestJobs(ctx context.Context, states ...string) (bool, error) {
	q := `SELECT COUNT(*) FROM ingest_jobs WHERE state IN (` + placeholders(s.dialect, 1, len(states)) + `)`
	args := make([]interface{}, len(states))
	for i, st := range states {
		args[i] = st
	}
	var n int
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(q), args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecoverJobsAfterRestart transitions every job left in uploading, queued, or
// running at process startup into error with error_message "Server
// restarted" (spec section 4.8 restart recovery, taxonomy entry
// server_restart in spec section 7). Returns the number of jobs recovered.
func (s *Store) RecoverJobsAfterRestart(ctx context.Context) (int64, error) {
	now := timeValue(s.dialect, time.Now().UTC())
	q := s.dialect.rebind(`UPDATE ingest_jobs SET
		state = ?, error_type = ?, error_stage = ?, error_message = ?, finished_at = ?, updated_at = ?
		WHERE state IN (?, ?, ?)`)
	res, err := s.db.ExecContext(ctx, q, string(model.JobError), "ServerRestart", "server_restart",
		"Server restarted", now, now, string(model.JobUploading), string(model.JobQueued), string(model.JobRunning))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetMaintenanceJob loads one maintenance job by id (spec section 6.4
// get_maintenance_job).
func (s *Store) GetMaintenanceJob(ctx context.Context, id string) (*model.MaintenanceJob, error) {
	q := s.dialect.rebind(`SELECT id, firewall_key, state, result_counts, error_message, created_at, started_at, finished_at
		FROM maintenance_jobs WHERE id = ?`)
	row := s.db.QueryRowContext(ctx, q, id)

	var j model.MaintenanceJob
	var fk, errMsg sql.NullString
	var countsRaw []byte
	if s.dialect == DialectPostgres {
		var started, finished sql.NullTime
		var created time.Time
		if err := row.Scan(&j.ID, &fk, &j.State, &countsRaw, &errMsg, &created, &started, &finished); err != nil {
			return nil, err
		}
		j.CreatedAt = created
		if started.Valid {
			j.StartedAt = started.Time
		}
		if finished.Valid {
			j.FinishedAt = finished.Time
		}
	} else {
		var created string
		var started, finished sql.NullString
		if err := row.Scan(&j.ID, &fk, &j.State, &countsRaw, &errMsg, &created, &started, &finished); err != nil {
			return nil, err
		}
		j.CreatedAt = parseStoredTime(created)
		if started.Valid {
			j.StartedAt = parseStoredTime(started.String)
		}
		if finished.Valid {
			j.FinishedAt = parseStoredTime(finished.String)
		}
	}
	j.FirewallKey = fk.String
	j.ErrorMessage = errMsg.String
	j.ResultCounts = map[string]int64{}
	_ = json.Unmarshal(countsRaw, &j.ResultCounts)
	return &j, nil
}

// HaClusterLabel looks up the operator-assigned label for a "ha:<base>" key.
// It returns ("", false) when no HaCluster row exists; the caller
// (purge.ResolveDevice) then falls back to base itself.
func (s *Store) HaClusterLabel(ctx context.Context, base string) (string, bool) {
	q := s.dialect.rebind(`SELECT label FROM ha_clusters WHERE base = ?`)
	var label string
	if err := s.db.QueryRowContext(ctx, q, base).Scan(&label); err != nil {
		return "", false
	}
	return label, true
}
