package store

// schema returns the CREATE TABLE/INDEX statements for d, grounded on
// storage/models.py's table definitions (spec section 3). Postgres uses
// BIGSERIAL/TIMESTAMPTZ/JSONB; sqlite uses INTEGER PRIMARY KEY AUTOINCREMENT
// and stores timestamps as TEXT (RFC3339) and JSON blobs as TEXT, matching
// how SQLAlchemy's sqlite dialect represents the same declarative models.
func schema(d Dialect) []string {
	if d == DialectPostgres {
		return postgresSchema
	}
	return sqliteSchema
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS raw_logs (
		id BIGSERIAL PRIMARY KEY,
		ts_utc TIMESTAMPTZ NOT NULL,
		device TEXT NOT NULL,
		raw_record TEXT NOT NULL,
		parse_status TEXT NOT NULL DEFAULT 'ok',
		parse_error TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS ix_raw_logs_ts_utc ON raw_logs (ts_utc)`,
	`CREATE INDEX IF NOT EXISTS ix_raw_logs_device ON raw_logs (device)`,

	`CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		ts_utc TIMESTAMPTZ NOT NULL,
		device TEXT NOT NULL,
		device_member TEXT,
		firewall_key TEXT,
		event_type TEXT,
		action TEXT,
		rule TEXT,
		satsrcrule TEXT,
		satdestrule TEXT,
		srcusername TEXT,
		destusername TEXT,
		proto TEXT,
		recv_if TEXT,
		recv_zone TEXT,
		src_ip TEXT,
		src_port INTEGER,
		src_mac TEXT,
		src_device TEXT,
		dest_if TEXT,
		dest_zone TEXT,
		dest_ip TEXT,
		dest_port INTEGER,
		dest_mac TEXT,
		dest_device TEXT,
		xlat_src_ip TEXT,
		xlat_src_port INTEGER,
		xlat_dest_ip TEXT,
		xlat_dest_port INTEGER,
		bytes_orig BIGINT,
		bytes_term BIGINT,
		duration_s BIGINT,
		app_name TEXT,
		app_risk TEXT,
		app_family TEXT,
		iprep_ip TEXT,
		iprep_score INTEGER,
		iprep_categories TEXT,
		iprep_src TEXT,
		iprep_dest TEXT,
		iprep_src_score INTEGER,
		iprep_dest_score INTEGER,
		recv_side TEXT,
		dest_side TEXT,
		direction_bucket TEXT,
		extra_json JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS ix_events_ts_utc ON events (ts_utc)`,
	`CREATE INDEX IF NOT EXISTS ix_events_firewall_key ON events (firewall_key)`,
	`CREATE INDEX IF NOT EXISTS ix_events_event_type ON events (event_type)`,

	`CREATE TABLE IF NOT EXISTS classifications (
		id BIGSERIAL PRIMARY KEY,
		device TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		side TEXT NOT NULL DEFAULT 'unknown',
		priority INTEGER NOT NULL DEFAULT 0,
		UNIQUE (device, kind, name)
	)`,

	`CREATE TABLE IF NOT EXISTS unclassified_endpoints (
		id BIGSERIAL PRIMARY KEY,
		device TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		count BIGINT NOT NULL DEFAULT 0,
		UNIQUE (device, kind, name)
	)`,

	`CREATE TABLE IF NOT EXISTS endpoints (
		id BIGSERIAL PRIMARY KEY,
		firewall_key TEXT NOT NULL,
		ip TEXT NOT NULL,
		mac TEXT,
		device_name TEXT,
		hostname TEXT,
		vendor TEXT,
		device_type TEXT,
		os TEXT,
		brand TEXT,
		model TEXT,
		rank INTEGER NOT NULL DEFAULT 0,
		UNIQUE (firewall_key, ip, mac)
	)`,

	`CREATE TABLE IF NOT EXISTS flows (
		id BIGSERIAL PRIMARY KEY,
		firewall_key TEXT NOT NULL,
		basis TEXT NOT NULL,
		from_value TEXT NOT NULL,
		to_value TEXT NOT NULL,
		proto TEXT,
		dest_port INTEGER,
		src_endpoint_id BIGINT NOT NULL REFERENCES endpoints(id),
		dst_endpoint_id BIGINT NOT NULL REFERENCES endpoints(id),
		view_kind TEXT NOT NULL DEFAULT 'original',
		count_open BIGINT NOT NULL DEFAULT 0,
		count_close BIGINT NOT NULL DEFAULT 0,
		bytes_src_to_dst BIGINT NOT NULL DEFAULT 0,
		bytes_dst_to_src BIGINT NOT NULL DEFAULT 0,
		duration_total_s BIGINT NOT NULL DEFAULT 0,
		first_seen TIMESTAMPTZ,
		last_seen TIMESTAMPTZ,
		top_rules JSONB NOT NULL DEFAULT '{}',
		top_apps JSONB NOT NULL DEFAULT '{}',
		UNIQUE (firewall_key, basis, from_value, to_value, proto, dest_port, src_endpoint_id, dst_endpoint_id, view_kind)
	)`,

	`CREATE TABLE IF NOT EXISTS device_identifications (
		id BIGSERIAL PRIMARY KEY,
		firewall_key TEXT NOT NULL,
		mac TEXT NOT NULL,
		device_name TEXT,
		hostname TEXT,
		vendor TEXT,
		device_type TEXT,
		os TEXT,
		brand TEXT,
		model TEXT,
		rank INTEGER NOT NULL DEFAULT 0,
		UNIQUE (firewall_key, mac)
	)`,

	`CREATE TABLE IF NOT EXISTS firewalls (
		firewall_key TEXT PRIMARY KEY,
		source_syslog BOOLEAN NOT NULL DEFAULT false,
		source_import BOOLEAN NOT NULL DEFAULT false,
		first_seen_ts TIMESTAMPTZ,
		last_seen_ts TIMESTAMPTZ,
		last_import_ts TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS ha_clusters (
		base TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		members JSONB NOT NULL DEFAULT '[]',
		is_enabled BOOLEAN NOT NULL DEFAULT false
	)`,

	`CREATE TABLE IF NOT EXISTS ingest_jobs (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL DEFAULT 'queued',
		phase TEXT,
		filename TEXT,
		upload_path TEXT,
		bytes_total BIGINT NOT NULL DEFAULT 0,
		bytes_received BIGINT NOT NULL DEFAULT 0,
		lines_total BIGINT NOT NULL DEFAULT 0,
		lines_processed BIGINT NOT NULL DEFAULT 0,
		parse_ok BIGINT NOT NULL DEFAULT 0,
		parse_err BIGINT NOT NULL DEFAULT 0,
		filtered_id BIGINT NOT NULL DEFAULT 0,
		inserted BIGINT NOT NULL DEFAULT 0,
		device_detected TEXT,
		error_type TEXT,
		error_stage TEXT,
		error_message TEXT,
		cancel_requested BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_ingest_jobs_state ON ingest_jobs (state)`,

	`CREATE TABLE IF NOT EXISTS maintenance_jobs (
		id TEXT PRIMARY KEY,
		firewall_key TEXT,
		state TEXT NOT NULL DEFAULT 'queued',
		result_counts JSONB NOT NULL DEFAULT '{}',
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS maintenance_last_cleanup (
		id INTEGER PRIMARY KEY,
		ran_at TIMESTAMPTZ NOT NULL,
		cutoff_utc TIMESTAMPTZ NOT NULL,
		rows_deleted BIGINT NOT NULL,
		compacted BOOLEAN NOT NULL,
		duration_ms BIGINT NOT NULL
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS raw_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts_utc TEXT NOT NULL,
		device TEXT NOT NULL,
		raw_record TEXT NOT NULL,
		parse_status TEXT NOT NULL DEFAULT 'ok',
		parse_error TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS ix_raw_logs_ts_utc ON raw_logs (ts_utc)`,
	`CREATE INDEX IF NOT EXISTS ix_raw_logs_device ON raw_logs (device)`,

	`CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts_utc TEXT NOT NULL,
		device TEXT NOT NULL,
		device_member TEXT,
		firewall_key TEXT,
		event_type TEXT,
		action TEXT,
		rule TEXT,
		satsrcrule TEXT,
		satdestrule TEXT,
		srcusername TEXT,
		destusername TEXT,
		proto TEXT,
		recv_if TEXT,
		recv_zone TEXT,
		src_ip TEXT,
		src_port INTEGER,
		src_mac TEXT,
		src_device TEXT,
		dest_if TEXT,
		dest_zone TEXT,
		dest_ip TEXT,
		dest_port INTEGER,
		dest_mac TEXT,
		dest_device TEXT,
		xlat_src_ip TEXT,
		xlat_src_port INTEGER,
		xlat_dest_ip TEXT,
		xlat_dest_port INTEGER,
		bytes_orig INTEGER,
		bytes_term INTEGER,
		duration_s INTEGER,
		app_name TEXT,
		app_risk TEXT,
		app_family TEXT,
		iprep_ip TEXT,
		iprep_score INTEGER,
		iprep_categories TEXT,
		iprep_src TEXT,
		iprep_dest TEXT,
		iprep_src_score INTEGER,
		iprep_dest_score INTEGER,
		recv_side TEXT,
		dest_side TEXT,
		direction_bucket TEXT,
		extra_json TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS ix_events_ts_utc ON events (ts_utc)`,
	`CREATE INDEX IF NOT EXISTS ix_events_firewall_key ON events (firewall_key)`,
	`CREATE INDEX IF NOT EXISTS ix_events_event_type ON events (event_type)`,

	`CREATE TABLE IF NOT EXISTS classifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		side TEXT NOT NULL DEFAULT 'unknown',
		priority INTEGER NOT NULL DEFAULT 0,
		UNIQUE (device, kind, name)
	)`,

	`CREATE TABLE IF NOT EXISTS unclassified_endpoints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		UNIQUE (device, kind, name)
	)`,

	`CREATE TABLE IF NOT EXISTS endpoints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		firewall_key TEXT NOT NULL,
		ip TEXT NOT NULL,
		mac TEXT,
		device_name TEXT,
		hostname TEXT,
		vendor TEXT,
		device_type TEXT,
		os TEXT,
		brand TEXT,
		model TEXT,
		rank INTEGER NOT NULL DEFAULT 0,
		UNIQUE (firewall_key, ip, mac)
	)`,

	`CREATE TABLE IF NOT EXISTS flows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		firewall_key TEXT NOT NULL,
		basis TEXT NOT NULL,
		from_value TEXT NOT NULL,
		to_value TEXT NOT NULL,
		proto TEXT,
		dest_port INTEGER,
		src_endpoint_id INTEGER NOT NULL REFERENCES endpoints(id),
		dst_endpoint_id INTEGER NOT NULL REFERENCES endpoints(id),
		view_kind TEXT NOT NULL DEFAULT 'original',
		count_open INTEGER NOT NULL DEFAULT 0,
		count_close INTEGER NOT NULL DEFAULT 0,
		bytes_src_to_dst INTEGER NOT NULL DEFAULT 0,
		bytes_dst_to_src INTEGER NOT NULL DEFAULT 0,
		duration_total_s INTEGER NOT NULL DEFAULT 0,
		first_seen TEXT,
		last_seen TEXT,
		top_rules TEXT NOT NULL DEFAULT '{}',
		top_apps TEXT NOT NULL DEFAULT '{}',
		UNIQUE (firewall_key, basis, from_value, to_value, proto, dest_port, src_endpoint_id, dst_endpoint_id, view_kind)
	)`,

	`CREATE TABLE IF NOT EXISTS device_identifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		firewall_key TEXT NOT NULL,
		mac TEXT NOT NULL,
		device_name TEXT,
		hostname TEXT,
		vendor TEXT,
		device_type TEXT,
		os TEXT,
		brand TEXT,
		model TEXT,
		rank INTEGER NOT NULL DEFAULT 0,
		UNIQUE (firewall_key, mac)
	)`,

	`CREATE TABLE IF NOT EXISTS firewalls (
		firewall_key TEXT PRIMARY KEY,
		source_syslog INTEGER NOT NULL DEFAULT 0,
		source_import INTEGER NOT NULL DEFAULT 0,
		first_seen_ts TEXT,
		last_seen_ts TEXT,
		last_import_ts TEXT,
		updated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS ha_clusters (
		base TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		members TEXT NOT NULL DEFAULT '[]',
		is_enabled INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS ingest_jobs (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL DEFAULT 'queued',
		phase TEXT,
		filename TEXT,
		upload_path TEXT,
		bytes_total INTEGER NOT NULL DEFAULT 0,
		bytes_received INTEGER NOT NULL DEFAULT 0,
		lines_total INTEGER NOT NULL DEFAULT 0,
		lines_processed INTEGER NOT NULL DEFAULT 0,
		parse_ok INTEGER NOT NULL DEFAULT 0,
		parse_err INTEGER NOT NULL DEFAULT 0,
		filtered_id INTEGER NOT NULL DEFAULT 0,
		inserted INTEGER NOT NULL DEFAULT 0,
		device_detected TEXT,
		error_type TEXT,
		error_stage TEXT,
		error_message TEXT,
		cancel_requested INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		started_at TEXT,
		finished_at TEXT,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_ingest_jobs_state ON ingest_jobs (state)`,

	`CREATE TABLE IF NOT EXISTS maintenance_jobs (
		id TEXT PRIMARY KEY,
		firewall_key TEXT,
		state TEXT NOT NULL DEFAULT 'queued',
		result_counts TEXT NOT NULL DEFAULT '{}',
		error_message TEXT,
		created_at TEXT NOT NULL,
		started_at TEXT,
		finished_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS maintenance_last_cleanup (
		id INTEGER PRIMARY KEY,
		ran_at TEXT NOT NULL,
		cutoff_utc TEXT NOT NULL,
		rows_deleted INTEGER NOT NULL,
		compacted INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	)`,
}
