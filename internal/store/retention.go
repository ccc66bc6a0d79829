package store

import (
	"context"
	"strconv"
	"time"
)

// DeleteBatchSize bounds one retention sweep's delete statement so it
// doesn't hold a long-running transaction open against a live ingest
// workload (spec section 4.9 step 3: "batches of 10,000 with commits
// between batches").
const DeleteBatchSize = 10000

// SyslogOnlyFirewallKeys returns every firewall_key with source_syslog=1 AND
// source_import=0 (spec section 4.9 step 2: only pure-syslog firewalls are
// eligible for time-based retention; anything ever touched by an import
// keeps its history regardless of age).
func (s *Store) SyslogOnlyFirewallKeys(ctx context.Context) ([]string, error) {
	q := s.dialect.rebind(`SELECT firewall_key FROM firewalls WHERE source_syslog = ? AND source_import = ?`)
	rows, err := s.db.QueryContext(ctx, q, s.boolValue(true), s.boolValue(false))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// DeleteSyslogOlderThan deletes raw_logs and events rows for the given device
// names (already expanded from syslog-only firewall keys by the caller,
// spec section 4.9 steps 2-3) older than cutoffUTC, one batch at a time,
// returning the total rows deleted across both tables. Import-sourced
// firewalls' rows are never touched because the caller never includes their
// member device names in devices. batchSize lets the caller back off under
// load (spec section 4.9); pass DeleteBatchSize for the full-size sweep.
func (s *Store) DeleteSyslogOlderThan(ctx context.Context, devices []string, cutoffUTC time.Time, batchSize int64) (int64, error) {
	if len(devices) == 0 {
		return 0, nil
	}
	if batchSize <= 0 || batchSize > DeleteBatchSize {
		batchSize = DeleteBatchSize
	}
	cutoff := timeValue(s.dialect, cutoffUTC)
	var total int64
	for _, table := range []string{"raw_logs", "events"} {
		for {
			n, err := s.deleteBatch(ctx, table, devices, cutoff, batchSize)
			if err != nil {
				return total, err
			}
			total += n
			if n < batchSize {
				break
			}
		}
	}
	return total, nil
}

func (s *Store) deleteBatch(ctx context.Context, table string, devices []string, cutoff interface{}, batchSize int64) (int64, error) {
	deviceIn := placeholders(s.dialect, 1, len(devices))
	idCol := "id"
	if s.dialect == DialectPostgres {
		idCol = "ctid"
	}
	cutoffPlaceholder := placeholders(s.dialect, len(devices)+1, 1)
	q := s.dialect.rebind(`DELETE FROM ` + table + ` WHERE ` + idCol + ` IN (
		SELECT ` + idCol + ` FROM ` + table + ` WHERE device IN (` + deviceIn + `) AND ts_utc < ` + cutoffPlaceholder + ` ORDER BY ts_utc ASC LIMIT ` + strconv.FormatInt(batchSize, 10) + `
	)`)
	args := make([]interface{}, 0, len(devices)+1)
	for _, d := range devices {
		args = append(args, d)
	}
	args = append(args, cutoff)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Compact reclaims space after a large retention sweep: VACUUM on sqlite,
// VACUUM (without ANALYZE, to stay non-blocking-ish) on Postgres. Spec
// section 4.9 step 4 leaves the exact mechanism up to the implementation.
func (s *Store) Compact(ctx context.Context) error {
	if s.dialect == DialectSQLite {
		_, err := s.db.ExecContext(ctx, "VACUUM")
		return err
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}
