package store

import (
	"context"
	"database/sql"
	"time"
)

// CascadePurgeFirewall deletes every row touching firewallKey across flows,
// device_identifications, endpoints, events, and finally the firewalls row
// itself, returning per-table counts for the MaintenanceJob result. Each
// table's delete commits on its own; on error the counts of the steps that
// completed are returned alongside it.
// raw_logs is deliberately not handled here: it is keyed by raw device
// hostname rather than firewall_key, so an "ha:<base>" canonical key needs
// its member hostnames expanded first — the caller does that and deletes
// raw_logs via DeleteRawLogsForDevices.
//
// Grounded on the original's one-time dedup/purge script's cascading delete
// order: children before parents, to respect the endpoints->flows FK.
func (s *Store) CascadePurgeFirewall(ctx context.Context, firewallKey string) (map[string]int64, error) {
	counts := map[string]int64{}
	err := s.withWriteLock(func() error {
		steps := []struct {
			table string
			where string
		}{
			{"flows", "firewall_key = ?"},
			{"device_identifications", "firewall_key = ?"},
			{"endpoints", "firewall_key = ?"},
			{"events", "firewall_key = ?"},
			{"firewalls", "firewall_key = ?"},
		}
		for _, st := range steps {
			q := s.dialect.rebind(`DELETE FROM ` + st.table + ` WHERE ` + st.where)
			res, err := s.db.ExecContext(ctx, q, firewallKey)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			counts[st.table] = n
		}
		return nil
	})
	return counts, err
}

// DeleteRawLogsForDevices deletes raw_logs rows for the given raw device
// hostnames. Callers resolve an "ha:<base>" firewall key to its member
// hostnames (ha.ExpandMembers) before calling this, since raw_logs predates
// HA canonicalization and always stores the wire hostname.
func (s *Store) DeleteRawLogsForDevices(ctx context.Context, devices []string) (int64, error) {
	return s.deleteByDevice(ctx, "raw_logs", devices)
}

// DeleteClassificationsForDevices deletes operator-curated classification
// rules for the given raw device hostnames. Like raw_logs, classifications
// is keyed on (device, kind, name) rather than firewall_key.
func (s *Store) DeleteClassificationsForDevices(ctx context.Context, devices []string) (int64, error) {
	return s.deleteByDevice(ctx, "classifications", devices)
}

// DeleteUnclassifiedEndpointsForDevices deletes pending unclassified-endpoint
// tallies for the given raw device hostnames.
func (s *Store) DeleteUnclassifiedEndpointsForDevices(ctx context.Context, devices []string) (int64, error) {
	return s.deleteByDevice(ctx, "unclassified_endpoints", devices)
}

func (s *Store) deleteByDevice(ctx context.Context, table string, devices []string) (int64, error) {
	if len(devices) == 0 {
		return 0, nil
	}
	var total int64
	err := s.withWriteLock(func() error {
		q := s.dialect.rebind(`DELETE FROM ` + table + ` WHERE device IN (` + placeholders(s.dialect, 1, len(devices)) + `)`)
		args := make([]interface{}, len(devices))
		for i, d := range devices {
			args[i] = d
		}
		res, err := s.db.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		total = n
		return nil
	})
	return total, err
}

type flowGroupKey struct {
	fk, basis, from, to, proto string
	destPort                   int
	srcID, dstID               int64
	view                       string
}

// DedupFlows is the one-time maintenance operation that merges any Flow rows
// sharing the same 9-tuple identity that predate the unique index (spec
// section 4.10 C.3, grounded on dedup_flows_and_add_unique_index.py):
// for every duplicate group it keeps the lowest id, sums the counters, takes
// the min/max of first_seen/last_seen, merges top_rules/top_apps by summed
// count, and deletes the other rows in the group. Returns the number of
// duplicate rows removed.
func (s *Store) DedupFlows(ctx context.Context) (int64, error) {
	var removed int64
	err := s.withWriteLock(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		groups, err := s.findDuplicateFlowGroups(ctx, tx)
		if err != nil {
			return err
		}
		for _, g := range groups {
			n, err := s.dedupOneGroup(ctx, tx, g)
			if err != nil {
				return err
			}
			removed += n
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Store) findDuplicateFlowGroups(ctx context.Context, tx *sql.Tx) ([]flowGroupKey, error) {
	groupQ := `SELECT firewall_key, basis, from_value, to_value,
		COALESCE(proto, ''), COALESCE(dest_port, -1), src_endpoint_id, dst_endpoint_id, view_kind
		FROM flows
		GROUP BY firewall_key, basis, from_value, to_value, proto, dest_port, src_endpoint_id, dst_endpoint_id, view_kind
		HAVING COUNT(*) > 1`
	rows, err := tx.QueryContext(ctx, groupQ)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []flowGroupKey
	for rows.Next() {
		var g flowGroupKey
		if err := rows.Scan(&g.fk, &g.basis, &g.from, &g.to, &g.proto, &g.destPort, &g.srcID, &g.dstID, &g.view); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

type flowDupRow struct {
	id                                           int64
	countOpen, countClose, bytesSD, bytesDS, dur int64
	firstSeen, lastSeen                          time.Time
	topRulesRaw, topAppsRaw                      []byte
}

func (s *Store) dedupOneGroup(ctx context.Context, tx *sql.Tx, g flowGroupKey) (int64, error) {
	selectQ := s.dialect.rebind(`SELECT id, count_open, count_close, bytes_src_to_dst, bytes_dst_to_src,
		duration_total_s, first_seen, last_seen, top_rules, top_apps
		FROM flows
		WHERE firewall_key = ? AND basis = ? AND from_value = ? AND to_value = ?
		AND COALESCE(proto, '') = ? AND COALESCE(dest_port, -1) = ? AND src_endpoint_id = ? AND dst_endpoint_id = ? AND view_kind = ?
		ORDER BY id ASC`)
	rows, err := tx.QueryContext(ctx, selectQ, g.fk, g.basis, g.from, g.to, g.proto, g.destPort, g.srcID, g.dstID, g.view)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var all []flowDupRow
	for rows.Next() {
		row, err := s.scanFlowDupRow(rows)
		if err != nil {
			return 0, err
		}
		all = append(all, row)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(all) < 2 {
		return 0, nil
	}

	merged := all[0]
	topRules := decodeCounts(merged.topRulesRaw)
	topApps := decodeCounts(merged.topAppsRaw)
	for _, row := range all[1:] {
		merged.countOpen += row.countOpen
		merged.countClose += row.countClose
		merged.bytesSD += row.bytesSD
		merged.bytesDS += row.bytesDS
		merged.dur += row.dur
		if !row.firstSeen.IsZero() && (merged.firstSeen.IsZero() || row.firstSeen.Before(merged.firstSeen)) {
			merged.firstSeen = row.firstSeen
		}
		if row.lastSeen.After(merged.lastSeen) {
			merged.lastSeen = row.lastSeen
		}
		for k, v := range decodeCounts(row.topRulesRaw) {
			topRules[k] += v
		}
		for k, v := range decodeCounts(row.topAppsRaw) {
			topApps[k] += v
		}
	}

	rulesJSON, err := jsonValue(s.dialect, topRules)
	if err != nil {
		return 0, err
	}
	appsJSON, err := jsonValue(s.dialect, topApps)
	if err != nil {
		return 0, err
	}
	updateQ := s.dialect.rebind(`UPDATE flows SET
		count_open = ?, count_close = ?, bytes_src_to_dst = ?, bytes_dst_to_src = ?, duration_total_s = ?,
		first_seen = ?, last_seen = ?, top_rules = ?, top_apps = ?
		WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, updateQ, merged.countOpen, merged.countClose, merged.bytesSD, merged.bytesDS, merged.dur,
		timeValue(s.dialect, merged.firstSeen), timeValue(s.dialect, merged.lastSeen), rulesJSON, appsJSON, merged.id); err != nil {
		return 0, err
	}

	for _, row := range all[1:] {
		delQ := s.dialect.rebind(`DELETE FROM flows WHERE id = ?`)
		if _, err := tx.ExecContext(ctx, delQ, row.id); err != nil {
			return 0, err
		}
	}
	return int64(len(all) - 1), nil
}

func (s *Store) scanFlowDupRow(rows *sql.Rows) (flowDupRow, error) {
	var row flowDupRow
	if s.dialect == DialectPostgres {
		var fs, ls sql.NullTime
		if err := rows.Scan(&row.id, &row.countOpen, &row.countClose, &row.bytesSD, &row.bytesDS, &row.dur,
			&fs, &ls, &row.topRulesRaw, &row.topAppsRaw); err != nil {
			return row, err
		}
		if fs.Valid {
			row.firstSeen = fs.Time
		}
		if ls.Valid {
			row.lastSeen = ls.Time
		}
		return row, nil
	}
	var fs, ls sql.NullString
	if err := rows.Scan(&row.id, &row.countOpen, &row.countClose, &row.bytesSD, &row.bytesDS, &row.dur,
		&fs, &ls, &row.topRulesRaw, &row.topAppsRaw); err != nil {
		return row, err
	}
	if fs.Valid {
		row.firstSeen = parseStoredTime(fs.String)
	}
	if ls.Valid {
		row.lastSeen = parseStoredTime(ls.String)
	}
	return row, nil
}
