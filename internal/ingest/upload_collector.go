package ingest

import (
	"time"

	"netwallfa/internal/model"
)

// UploadCollector accumulates per-import-job statistics as records stream
// through an Ingestor: device frequency (the most-common device becomes
// device_detected), the min/max timestamp seen, parse ok/err counts, the
// filtered_id drop count, and inserted raw_log/event counts (spec section
// 4.7).
type UploadCollector struct {
	deviceCounts map[string]int64
	minTS        time.Time
	maxTS        time.Time

	parseOK    int64
	parseErr   int64
	filteredID int64
	linesSeen  int64

	rawInserted   int64
	eventInserted int64
}

func NewUploadCollector() *UploadCollector {
	return &UploadCollector{deviceCounts: map[string]int64{}}
}

// ObserveParse records one record's parse outcome.
func (c *UploadCollector) ObserveParse(status model.ParseStatus) {
	c.linesSeen++
	if status == model.ParseOK {
		c.parseOK++
	} else {
		c.parseErr++
	}
}

// ObserveFiltered records one record dropped by the accepted-id-prefix filter.
func (c *UploadCollector) ObserveFiltered() {
	c.filteredID++
}

// ObserveDevice records one DEVICE record's canonical firewall key toward the
// device-frequency tally.
func (c *UploadCollector) ObserveDevice(firewallKey string) {
	if firewallKey == "" {
		return
	}
	c.deviceCounts[firewallKey]++
}

// ObserveEvent records one CONN event's firewall key and timestamp.
func (c *UploadCollector) ObserveEvent(firewallKey string, ts time.Time) {
	if firewallKey != "" {
		c.deviceCounts[firewallKey]++
	}
	if c.minTS.IsZero() || ts.Before(c.minTS) {
		c.minTS = ts
	}
	if ts.After(c.maxTS) {
		c.maxTS = ts
	}
}

// ObserveInserted records one flushed batch's raw_log/event row counts.
func (c *UploadCollector) ObserveInserted(rawCount, eventCount int) {
	c.rawInserted += int64(rawCount)
	c.eventInserted += int64(eventCount)
}

// DeviceDetected returns the most-frequently-seen firewall key, or "" if none
// were observed. Ties are broken by first encounter among the tied keys in
// map iteration order, which is acceptable: this is a best-effort display
// hint, not an identity.
func (c *UploadCollector) DeviceDetected() string {
	var best string
	var bestCount int64
	for k, n := range c.deviceCounts {
		if n > bestCount {
			best, bestCount = k, n
		}
	}
	return best
}

// Snapshot is the terminal summary an import job persists onto IngestJob.
type Snapshot struct {
	LinesProcessed int64
	ParseOK        int64
	ParseErr       int64
	FilteredID     int64
	Inserted       int64
	DeviceDetected string
	MinTS          time.Time
	MaxTS          time.Time
}

func (c *UploadCollector) Snapshot() Snapshot {
	return Snapshot{
		LinesProcessed: c.linesSeen,
		ParseOK:        c.parseOK,
		ParseErr:       c.parseErr,
		FilteredID:     c.filteredID,
		Inserted:       c.rawInserted,
		DeviceDetected: c.DeviceDetected(),
		MinTS:          c.minTS,
		MaxTS:          c.maxTS,
	}
}

