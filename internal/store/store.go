// Package store is the single persistence seam of the ingestion pipeline: one
// Store talks to either Postgres or sqlite through database/sql, exposing
// batch writes, the flow/classification lookups the aggregation stages need,
// and the job tables that back imports and maintenance (spec section 3).
//
// Grounded on storage/writer.py's Writer: one transaction per batch, upserts
// only (no ORM flush-then-select round trips), and for sqlite a single
// in-process writer lock since SQLite allows only one writer at a time.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	apperrors "netwallfa/pkg/errors"
	dlqpkg "netwallfa/pkg/dlq"
	"netwallfa/pkg/retry"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"netwallfa/internal/classify"
	"netwallfa/internal/flowagg"
	"netwallfa/internal/model"
	"netwallfa/internal/tracing"
)

// Store is a dialect-aware handle over the schema in schema.go. sqlite writes
// are serialized through writeMu; Postgres writes rely on row-level locking
// and therefore skip the mutex entirely.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *logrus.Logger
	writeMu sync.Mutex
	tracer  *tracing.Manager
	dlq     *dlqpkg.DeadLetterQueue
}

// SetTracer attaches a span manager for WriteBatch. Optional: a Store with
// no tracer attached runs exactly the same, just unspanned.
func (s *Store) SetTracer(t *tracing.Manager) {
	s.tracer = t
}

// SetDLQ attaches the dead letter queue that best-effort writes fall back to
// once retryOnLock exhausts its attempts. Optional: a Store with no DLQ
// attached just logs and drops, as before.
func (s *Store) SetDLQ(q *dlqpkg.DeadLetterQueue) {
	s.dlq = q
}

// deadLetter records a best-effort write that exhausted retryOnLock so it can
// be replayed later, instead of silently losing it (spec section 9).
func (s *Store) deadLetter(operation, firewallKey, summary string, payload interface{}, cause error) {
	if s.dlq == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).Warn("failed to marshal dead-letter payload")
		return
	}
	entry := dlqpkg.SideWrite{
		Operation:   operation,
		FirewallKey: firewallKey,
		Summary:     summary,
		Payload:     raw,
	}
	if err := s.dlq.AddEntry(entry, cause.Error(), "transient_locking", operation, 0, nil); err != nil {
		s.logger.WithError(err).Warn("failed to dead-letter side write")
	}
}

// ReprocessSideWrite replays one dead-lettered side write against the store.
// Wired as the dlq.ReprocessCallback so the DLQ's reprocessing loop can drain
// entries once the underlying lock contention clears.
func (s *Store) ReprocessSideWrite(ctx context.Context, entry dlqpkg.SideWrite) error {
	switch entry.Operation {
	case "device_identification":
		var d model.DeviceIdentification
		if err := json.Unmarshal(entry.Payload, &d); err != nil {
			return fmt.Errorf("reprocess device_identification: %w", err)
		}
		return s.UpsertDeviceIdentification(ctx, d)
	case "firewall_inventory":
		var p firewallImportPayload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return fmt.Errorf("reprocess firewall_inventory: %w", err)
		}
		return s.UpsertFirewallImport(ctx, p.FirewallKey, p.FirstTS, p.LastTS)
	case "unclassified_endpoint":
		var p unclassifiedPayload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return fmt.Errorf("reprocess unclassified_endpoint: %w", err)
		}
		return s.withWriteLock(func() error {
			return s.retryOnLock(ctx, func() error {
				query := s.dialect.rebind(`INSERT INTO unclassified_endpoints (device, kind, name, count) VALUES (?, ?, ?, 1)
					ON CONFLICT (device, kind, name) DO UPDATE SET count = unclassified_endpoints.count + 1`)
				_, err := s.db.ExecContext(ctx, query, p.Device, p.Kind, p.Name)
				return err
			})
		})
	default:
		return fmt.Errorf("reprocess: unknown operation %q", entry.Operation)
	}
}

// firewallImportPayload is the dead-lettered form of a UpsertFirewallImport
// call.
type firewallImportPayload struct {
	FirewallKey string    `json:"firewall_key"`
	FirstTS     time.Time `json:"first_ts"`
	LastTS      time.Time `json:"last_ts"`
}

// unclassifiedPayload is the dead-lettered form of a recordUnclassified call.
type unclassifiedPayload struct {
	Device string `json:"device"`
	Kind   string `json:"kind"`
	Name   string `json:"name"`
}

// Open connects to dsn under the given dialect, applies ingest-friendly
// sqlite PRAGMAs (WAL, NORMAL sync, a busy timeout) when applicable, and
// creates the schema if it doesn't exist yet.
func Open(ctx context.Context, dialect Dialect, dsn string, logger *logrus.Logger) (*Store, error) {
	driver := "pgx"
	if dialect == DialectSQLite {
		driver = "sqlite"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
			"PRAGMA busy_timeout=10000",
			"PRAGMA temp_store=MEMORY",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("apply %q: %w", pragma, err)
			}
		}
	}
	s := &Store{db: db, dialect: dialect, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// withWriteLock runs fn exclusively under writeMu on sqlite; on Postgres it
// runs fn directly, since concurrent writers are the database's job there.
func (s *Store) withWriteLock(fn func() error) error {
	if s.dialect == DialectSQLite {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}
	return fn()
}

// retryOnLock retries fn under the standard retry policy when it fails with
// a transient-locking error, matching the taxonomy's "transient_locking"
// stage (spec section 7): SQLite's single writer occasionally reports
// "database is locked" under load, and Postgres can report serialization
// failures.
func (s *Store) retryOnLock(ctx context.Context, fn func() error) error {
	return retry.Do(ctx, func(err error) bool {
		return apperrors.ClassifyStage(err) == apperrors.StageTransientLocking
	}, fn)
}

func timeValue(d Dialect, t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	if d == DialectSQLite {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func jsonValue(d Dialect, v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if d == DialectSQLite {
		return string(b), nil
	}
	return b, nil
}

// WriteBatch persists one batch of raw logs and parsed events in a single
// transaction: raw log rows, event rows, per-event firewall inventory
// touches, endpoint upserts, and flow upserts for every derived identity.
// Exactly one call is in flight per Store (sqlite: enforced by writeMu,
// Postgres: enforced by normal row locking plus the caller's single import
// worker / single live-ingest goroutine).
func (s *Store) WriteBatch(ctx context.Context, rawLogs []model.RawLog, events []model.Event, precedence classify.Precedence) (err error) {
	if s.tracer != nil {
		var span oteltrace.Span
		ctx, span = s.tracer.StartSpan(ctx, "write_batch",
			attribute.Int("raw_logs", len(rawLogs)), attribute.Int("events", len(events)))
		defer func() { tracing.EndSpan(span, err) }()
	}
	return s.withWriteLock(func() error {
		return s.retryOnLock(ctx, func() error {
			return s.writeBatchInner(ctx, rawLogs, events, precedence)
		})
	})
}

func (s *Store) writeBatchInner(ctx context.Context, rawLogs []model.RawLog, events []model.Event, precedence classify.Precedence) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.New(apperrors.StagePersist, "store", "WriteBatch", "begin tx").Wrap(err)
	}
	defer tx.Rollback()

	for _, rl := range rawLogs {
		if err := s.insertRawLog(ctx, tx, rl); err != nil {
			return apperrors.New(apperrors.StagePersist, "store", "WriteBatch", "insert raw_log").Wrap(err)
		}
	}

	firewallTouches := map[string]time.Time{}
	for i := range events {
		ev := &events[i]
		classify.ApplyDirection(&txClassifyLookup{ctx: ctx, q: tx, store: s}, ev, precedence)
		if err := s.insertEvent(ctx, tx, ev); err != nil {
			return apperrors.New(apperrors.StagePersist, "store", "WriteBatch", "insert event").Wrap(err)
		}
		if ev.FirewallKey != "" {
			if ts, ok := firewallTouches[ev.FirewallKey]; !ok || ev.TsUTC.After(ts) {
				firewallTouches[ev.FirewallKey] = ev.TsUTC
			}
		}
	}

	for fk, ts := range firewallTouches {
		if err := s.upsertFirewallSyslogTx(ctx, tx, fk, ts); err != nil {
			return apperrors.New(apperrors.StagePersist, "store", "WriteBatch", "upsert firewall").Wrap(err)
		}
	}

	resolver := &txEndpointResolver{ctx: ctx, q: tx, store: s}
	for i := range events {
		ev := &events[i]
		updates := flowagg.DeriveUpdates(resolver, ev)
		for _, u := range updates {
			if err := s.upsertFlowTx(ctx, tx, u); err != nil {
				return apperrors.New(apperrors.StageFlowAggregation, "store", "WriteBatch", "upsert flow").Wrap(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.New(apperrors.StagePersist, "store", "WriteBatch", "commit tx").Wrap(err)
	}
	return nil
}

func (s *Store) insertRawLog(ctx context.Context, tx *sql.Tx, rl model.RawLog) error {
	q := s.dialect.rebind(`INSERT INTO raw_logs (ts_utc, device, raw_record, parse_status, parse_error)
		VALUES (?, ?, ?, ?, ?)`)
	_, err := tx.ExecContext(ctx, q, timeValue(s.dialect, rl.TsUTC), rl.Device, rl.RawRecord, string(rl.ParseStatus), nullString(rl.ParseError))
	return err
}

func (s *Store) insertEvent(ctx context.Context, tx *sql.Tx, ev *model.Event) error {
	extraJSON, err := jsonValue(s.dialect, ev.Extra)
	if err != nil {
		return err
	}
	q := s.dialect.rebind(`INSERT INTO events (
		ts_utc, device, device_member, firewall_key, event_type, action, rule, satsrcrule, satdestrule,
		srcusername, destusername, proto, recv_if, recv_zone, src_ip, src_port, src_mac, src_device,
		dest_if, dest_zone, dest_ip, dest_port, dest_mac, dest_device,
		xlat_src_ip, xlat_src_port, xlat_dest_ip, xlat_dest_port,
		bytes_orig, bytes_term, duration_s, app_name, app_risk, app_family,
		iprep_ip, iprep_score, iprep_categories, iprep_src, iprep_dest, iprep_src_score, iprep_dest_score,
		recv_side, dest_side, direction_bucket, extra_json
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	_, err = tx.ExecContext(ctx, q,
		timeValue(s.dialect, ev.TsUTC), ev.Device, nullString(ev.DeviceMember), nullString(ev.FirewallKey),
		nullString(string(ev.EventType)), nullString(ev.Action), nullString(ev.Rule), nullString(ev.SatSrcRule), nullString(ev.SatDestRule),
		nullString(ev.SrcUsername), nullString(ev.DestUsername), nullString(ev.Proto), nullString(ev.RecvIf), nullString(ev.RecvZone),
		nullString(ev.SrcIP), nullIntZero(ev.SrcPort), nullString(ev.SrcMAC), nullString(ev.SrcDevice),
		nullString(ev.DestIf), nullString(ev.DestZone), nullString(ev.DestIP), nullIntZero(ev.DestPort), nullString(ev.DestMAC), nullString(ev.DestDevice),
		nullString(ev.XlatSrcIP), nullIntZero(ev.XlatSrcPort), nullString(ev.XlatDestIP), nullIntZero(ev.XlatDestPort),
		ev.BytesOrig, ev.BytesTerm, ev.DurationS, nullString(ev.AppName), nullString(ev.AppRisk), nullString(ev.AppFamily),
		nullString(ev.IPRepIP), nullIntZero(ev.IPRepScore), nullString(ev.IPRepCategories), nullString(ev.IPRepSrc), nullString(ev.IPRepDest),
		nullIntZero(ev.IPRepSrcScore), nullIntZero(ev.IPRepDestScore),
		nullString(ev.RecvSide), nullString(ev.DestSide), nullString(ev.DirectionBucket), extraJSON,
	)
	return err
}

func nullIntZero(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

// querier is satisfied by both *sql.DB and *sql.Tx, letting every helper
// below run either inside a batch transaction or standalone on the live
// single-record ingest path.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// txEndpointResolver adapts a querier to flowagg.EndpointResolver.
type txEndpointResolver struct {
	ctx   context.Context
	q     querier
	store *Store
}

func (r *txEndpointResolver) ResolveEndpoint(firewallKey, ip, mac, deviceName string) (int64, bool) {
	if ip == "" {
		return 0, false
	}
	id, err := r.store.upsertEndpointTx(r.ctx, r.q, firewallKey, ip, mac, deviceName)
	if err != nil {
		r.store.logger.WithError(err).Warn("resolve endpoint failed")
		return 0, false
	}
	return id, true
}

// ResolveEndpoint implements flowagg.EndpointResolver directly against the
// database, for the live single-record ingest path (no surrounding batch txn).
func (s *Store) ResolveEndpoint(firewallKey, ip, mac, deviceName string) (int64, bool) {
	if ip == "" {
		return 0, false
	}
	id, err := s.upsertEndpointTx(context.Background(), s.db, firewallKey, ip, mac, deviceName)
	if err != nil {
		s.logger.WithError(err).Warn("resolve endpoint failed")
		return 0, false
	}
	return id, true
}

func (s *Store) upsertEndpointTx(ctx context.Context, q querier, firewallKey, ip, mac, deviceName string) (int64, error) {
	insertQ := s.dialect.rebind(`INSERT INTO endpoints (firewall_key, ip, mac, device_name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (firewall_key, ip, mac) DO UPDATE SET
			device_name = COALESCE(NULLIF(excluded.device_name, ''), endpoints.device_name)`)
	if _, err := q.ExecContext(ctx, insertQ, firewallKey, ip, nullString(mac), nullString(deviceName)); err != nil {
		return 0, err
	}
	selectQ := s.dialect.rebind(`SELECT id FROM endpoints WHERE firewall_key = ? AND ip = ? AND mac IS NOT DISTINCT FROM ?`)
	var id int64
	if err := q.QueryRowContext(ctx, selectQ, firewallKey, ip, nullString(mac)).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) upsertFlowTx(ctx context.Context, tx *sql.Tx, u flowagg.Update) error {
	insertQ := s.dialect.rebind(`INSERT INTO flows (
		firewall_key, basis, from_value, to_value, proto, dest_port, src_endpoint_id, dst_endpoint_id, view_kind,
		count_open, count_close, bytes_src_to_dst, bytes_dst_to_src, duration_total_s, first_seen, last_seen, top_rules, top_apps
	) VALUES (?,?,?,?,?,?,?,?,?, 1, 0, 0, 0, 0, ?, ?, '{}', '{}')
	ON CONFLICT (firewall_key, basis, from_value, to_value, proto, dest_port, src_endpoint_id, dst_endpoint_id, view_kind)
	DO UPDATE SET
		count_open = flows.count_open + 1,
		first_seen = CASE WHEN flows.first_seen IS NULL OR excluded.first_seen < flows.first_seen THEN excluded.first_seen ELSE flows.first_seen END,
		last_seen = CASE WHEN flows.last_seen IS NULL OR excluded.last_seen > flows.last_seen THEN excluded.last_seen ELSE flows.last_seen END`)
	ts := timeValue(s.dialect, u.EventTS)
	if _, err := tx.ExecContext(ctx, insertQ,
		u.Identity.FirewallKey, string(u.Identity.Basis), u.Identity.FromValue, u.Identity.ToValue,
		nullString(u.Identity.Proto), nullIntZero(u.Identity.DestPort), u.Identity.SrcEndpointID, u.Identity.DstEndpointID, string(u.Identity.ViewKind),
		ts, ts,
	); err != nil {
		return err
	}
	if u.Rule == "" && u.AppName == "" {
		return nil
	}
	return s.mergeFlowTopCounts(ctx, tx, u)
}

// mergeFlowTopCounts re-reads and rewrites a flow's top_rules/top_apps maps.
// This can't be expressed as a single upsert the way the counters above can,
// mirroring the original implementation's own limitation (storage/writer.py).
func (s *Store) mergeFlowTopCounts(ctx context.Context, tx *sql.Tx, u flowagg.Update) error {
	selectQ := s.dialect.rebind(`SELECT id, top_rules, top_apps FROM flows
		WHERE firewall_key = ? AND basis = ? AND from_value = ? AND to_value = ? AND proto IS NOT DISTINCT FROM ?
		AND dest_port IS NOT DISTINCT FROM ? AND src_endpoint_id = ? AND dst_endpoint_id = ? AND view_kind = ?
		LIMIT 1`)
	var id int64
	var topRulesRaw, topAppsRaw []byte
	err := tx.QueryRowContext(ctx, selectQ,
		u.Identity.FirewallKey, string(u.Identity.Basis), u.Identity.FromValue, u.Identity.ToValue,
		nullString(u.Identity.Proto), nullIntZero(u.Identity.DestPort), u.Identity.SrcEndpointID, u.Identity.DstEndpointID, string(u.Identity.ViewKind),
	).Scan(&id, &topRulesRaw, &topAppsRaw)
	if err != nil {
		return err
	}

	topRules := decodeCounts(topRulesRaw)
	topApps := decodeCounts(topAppsRaw)
	if u.Rule != "" {
		topRules = flowagg.ApplyTopCount(topRules, u.Rule)
	}
	if u.AppName != "" {
		topApps = flowagg.ApplyTopCount(topApps, u.AppName)
	}

	rulesJSON, err := jsonValue(s.dialect, topRules)
	if err != nil {
		return err
	}
	appsJSON, err := jsonValue(s.dialect, topApps)
	if err != nil {
		return err
	}
	updateQ := s.dialect.rebind(`UPDATE flows SET top_rules = ?, top_apps = ? WHERE id = ?`)
	_, err = tx.ExecContext(ctx, updateQ, rulesJSON, appsJSON, id)
	return err
}

func decodeCounts(raw []byte) map[string]int64 {
	out := map[string]int64{}
	if len(raw) == 0 {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}

// txClassifyLookup adapts a querier to classify.Lookup.
type txClassifyLookup struct {
	ctx   context.Context
	q     querier
	store *Store
}

func (l *txClassifyLookup) ClassificationSide(device string, kind model.ClassificationKind, name string) (model.Side, bool) {
	return l.store.classificationSide(l.ctx, l.q, device, kind, name)
}

func (l *txClassifyLookup) RecordUnclassified(device string, kind model.ClassificationKind, name string) {
	l.store.recordUnclassified(l.ctx, l.q, device, kind, name)
}

func (s *Store) classificationSide(ctx context.Context, q querier, device string, kind model.ClassificationKind, name string) (model.Side, bool) {
	query := s.dialect.rebind(`SELECT side FROM classifications WHERE device = ? AND kind = ? AND name = ? ORDER BY priority DESC LIMIT 1`)
	var side string
	if err := q.QueryRowContext(ctx, query, device, string(kind), name).Scan(&side); err != nil {
		return "", false
	}
	return model.Side(side), true
}

func (s *Store) recordUnclassified(ctx context.Context, q querier, device string, kind model.ClassificationKind, name string) {
	query := s.dialect.rebind(`INSERT INTO unclassified_endpoints (device, kind, name, count) VALUES (?, ?, ?, 1)
		ON CONFLICT (device, kind, name) DO UPDATE SET count = unclassified_endpoints.count + 1`)
	err := s.retryOnLock(ctx, func() error {
		_, err := q.ExecContext(ctx, query, device, string(kind), name)
		return err
	})
	if err != nil {
		s.logger.WithError(err).Warn("record unclassified failed")
		s.deadLetter("unclassified_endpoint", "", fmt.Sprintf("%s/%s/%s", device, kind, name),
			unclassifiedPayload{Device: device, Kind: string(kind), Name: name}, err)
	}
}

// ClassificationSide implements classify.Lookup directly against the
// database, for the live single-record ingest path.
func (s *Store) ClassificationSide(device string, kind model.ClassificationKind, name string) (model.Side, bool) {
	return s.classificationSide(context.Background(), s.db, device, kind, name)
}

// RecordUnclassified implements classify.Lookup directly against the
// database, for the live single-record ingest path.
func (s *Store) RecordUnclassified(device string, kind model.ClassificationKind, name string) {
	s.recordUnclassified(context.Background(), s.db, device, kind, name)
}

func (s *Store) upsertFirewallSyslogTx(ctx context.Context, tx *sql.Tx, firewallKey string, ts time.Time) error {
	trueVal := s.boolValue(true)
	q := s.dialect.rebind(`INSERT INTO firewalls (firewall_key, source_syslog, source_import, first_seen_ts, last_seen_ts, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (firewall_key) DO UPDATE SET
			source_syslog = ?,
			last_seen_ts = excluded.last_seen_ts,
			updated_at = excluded.updated_at`)
	tv := timeValue(s.dialect, ts)
	_, err := tx.ExecContext(ctx, q, firewallKey, trueVal, s.boolValue(false), tv, tv, tv, trueVal)
	return err
}

// UpsertFirewallImport marks firewallKey as having an import-sourced record,
// called once per completed import job (spec section 3, FirewallInventory).
// Best-effort: exhausting retryOnLock dead-letters the write instead of
// failing the import job.
func (s *Store) UpsertFirewallImport(ctx context.Context, firewallKey string, firstTS, lastTS time.Time) error {
	q := s.dialect.rebind(`INSERT INTO firewalls (firewall_key, source_syslog, source_import, first_seen_ts, last_seen_ts, last_import_ts, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (firewall_key) DO UPDATE SET
			source_import = ?,
			last_import_ts = excluded.last_import_ts,
			updated_at = excluded.updated_at`)
	now := timeValue(s.dialect, time.Now().UTC())
	trueVal := s.boolValue(true)
	err := s.withWriteLock(func() error {
		return s.retryOnLock(ctx, func() error {
			_, err := s.db.ExecContext(ctx, q, firewallKey, s.boolValue(false), trueVal,
				timeValue(s.dialect, firstTS), timeValue(s.dialect, lastTS), now, now, trueVal)
			return err
		})
	})
	if err != nil {
		s.deadLetter("firewall_inventory", firewallKey, firewallKey,
			firewallImportPayload{FirewallKey: firewallKey, FirstTS: firstTS, LastTS: lastTS}, err)
	}
	return err
}

func (s *Store) boolValue(b bool) interface{} {
	if s.dialect == DialectSQLite {
		if b {
			return 1
		}
		return 0
	}
	return b
}
