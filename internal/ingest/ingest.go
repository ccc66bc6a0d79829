// Package ingest turns reconstructed syslog lines into persisted state: it
// owns the reconstructor, runs each record through the parser, routes CONN
// records to the event/flow pipeline and DEVICE records to identification
// upserts, and flushes through the store either per record (live mode) or in
// accumulated batches (import mode) (spec section 4.7).
//
// Grounded on the teacher's internal/dispatcher/dispatcher.go (stateful
// pipeline object owning a queue and a flush threshold) and
// internal/dispatcher/batch_processor.go (accumulate/flush shape).
package ingest

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"netwallfa/internal/classify"
	"netwallfa/internal/ha"
	"netwallfa/internal/metrics"
	"netwallfa/internal/model"
	"netwallfa/internal/parse"
	"netwallfa/internal/reconstruct"
)

// Mode selects whether an Ingestor flushes every record immediately (the UDP
// live path) or accumulates a batch and flushes on threshold or explicit
// Flush (the import path).
type Mode string

const (
	ModeLive  Mode = "live"
	ModeBatch Mode = "batch"
)

// DefaultBatchSize is the record count an accumulating Ingestor flushes at,
// absent an override (spec section 4.7).
const DefaultBatchSize = 5000

// Writer is the persistence seam an Ingestor needs. Implemented by
// *internal/store.Store.
type Writer interface {
	WriteBatch(ctx context.Context, rawLogs []model.RawLog, events []model.Event, precedence classify.Precedence) error
	UpsertDeviceIdentification(ctx context.Context, d model.DeviceIdentification) error
}

// Ingestor is a stateful pipeline object: one reconstructor, one active mode,
// and (in batch mode) an accumulating raw/event batch. Not safe for
// concurrent use from multiple goroutines — the live UDP path and each
// import-job worker each own a private Ingestor.
type Ingestor struct {
	mode       Mode
	writer     Writer
	recon      *reconstruct.Reconstructor
	precedence classify.Precedence
	canonical  func(string) string
	batchSize  int
	logger     *logrus.Logger
	collector  *UploadCollector

	rawBatch   []model.RawLog
	eventBatch []model.Event
}

// New creates an Ingestor for mode. canonicalForSyslog selects whether
// device-name canonicalization collapses HA pairs (syslog: true) or passes
// the name through unchanged (file import: false, spec section 4.1).
func New(mode Mode, writer Writer, precedence classify.Precedence, canonicalForSyslog bool, logger *logrus.Logger) *Ingestor {
	canon := ha.CanonicalForImport
	if canonicalForSyslog {
		canon = ha.CanonicalForSyslog
	}
	return &Ingestor{
		mode:       mode,
		writer:     writer,
		recon:      reconstruct.New(logger),
		precedence: precedence,
		canonical:  canon,
		batchSize:  DefaultBatchSize,
		logger:     logger,
		collector:  NewUploadCollector(),
	}
}

// SetBatchSize overrides DefaultBatchSize; used by tests and by callers that
// tune batch size to upload volume.
func (ing *Ingestor) SetBatchSize(n int) {
	if n > 0 {
		ing.batchSize = n
	}
}

// Collector returns the UploadCollector accumulating this Ingestor's
// per-job statistics.
func (ing *Ingestor) Collector() *UploadCollector {
	return ing.collector
}

// IngestLine feeds one raw line through the reconstructor, emitting (and
// processing) a completed record whenever the line starts a new one.
func (ing *Ingestor) IngestLine(ctx context.Context, line string) error {
	if emitted, ok := ing.recon.FeedLine(line); ok {
		return ing.processRecord(ctx, emitted)
	}
	return nil
}

// Flush processes any record still buffered in the reconstructor, then
// flushes the accumulated batch (a no-op in live mode, where every record was
// already committed individually).
func (ing *Ingestor) Flush(ctx context.Context) error {
	if remaining, ok := ing.recon.Flush(); ok {
		if err := ing.processRecord(ctx, remaining); err != nil {
			return err
		}
	}
	return ing.flushBatch(ctx)
}

func (ing *Ingestor) processRecord(ctx context.Context, raw string) error {
	metrics.RecordsIngestedTotal.WithLabelValues(string(ing.mode)).Inc()

	now := time.Now().UTC()
	rec := parse.Parse(raw, now)
	ing.collector.ObserveParse(rec.ParseStatus)

	id := parse.ExtractStr(rec.KV, "id")
	if rec.ParseStatus == model.ParseOK && !parse.Accepted(id) {
		ing.collector.ObserveFiltered()
		return nil
	}

	deviceRaw := rec.Device
	firewallKey := ing.canonical(deviceRaw)

	rawLog := model.RawLog{
		TsUTC:       rec.TsUTC,
		Device:      deviceRaw,
		RawRecord:   raw,
		ParseStatus: rec.ParseStatus,
		ParseError:  rec.ParseError,
	}

	if rec.ParseStatus != model.ParseOK {
		return ing.appendOrWriteRaw(ctx, rawLog, nil)
	}

	if parse.IsDevice(id) {
		ing.collector.ObserveDevice(firewallKey)
		di, ok := parse.ToDeviceIdentification(rec)
		if !ok {
			return ing.appendOrWriteRaw(ctx, rawLog, nil)
		}
		di.FirewallKey = firewallKey
		if err := ing.writer.UpsertDeviceIdentification(ctx, *di); err != nil {
			ing.logger.WithError(err).WithField("firewall_key", firewallKey).Warn("device identification upsert failed")
		}
		return ing.appendOrWriteRaw(ctx, rawLog, nil)
	}

	if parse.IsConn(id) {
		ev, ok := parse.ToEvent(rec)
		if !ok {
			return ing.appendOrWriteRaw(ctx, rawLog, nil)
		}
		ev.Device = deviceRaw
		ev.DeviceMember = deviceRaw
		ev.FirewallKey = firewallKey
		ing.collector.ObserveEvent(firewallKey, ev.TsUTC)
		return ing.appendOrWriteRaw(ctx, rawLog, ev)
	}

	return ing.appendOrWriteRaw(ctx, rawLog, nil)
}

func (ing *Ingestor) appendOrWriteRaw(ctx context.Context, rawLog model.RawLog, ev *model.Event) error {
	if ing.mode == ModeLive {
		events := []model.Event{}
		if ev != nil {
			events = append(events, *ev)
		}
		if err := ing.writer.WriteBatch(ctx, []model.RawLog{rawLog}, events, ing.precedence); err != nil {
			return err
		}
		ing.collector.ObserveInserted(1, len(events))
		return nil
	}

	ing.rawBatch = append(ing.rawBatch, rawLog)
	if ev != nil {
		ing.eventBatch = append(ing.eventBatch, *ev)
	}
	if len(ing.rawBatch) >= ing.batchSize {
		return ing.flushBatch(ctx)
	}
	return nil
}

func (ing *Ingestor) flushBatch(ctx context.Context) error {
	if len(ing.rawBatch) == 0 && len(ing.eventBatch) == 0 {
		return nil
	}
	rawLogs, events := ing.rawBatch, ing.eventBatch
	ing.rawBatch, ing.eventBatch = nil, nil
	if err := ing.writer.WriteBatch(ctx, rawLogs, events, ing.precedence); err != nil {
		return err
	}
	ing.collector.ObserveInserted(len(rawLogs), len(events))
	return nil
}
