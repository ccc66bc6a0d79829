// Package model defines the persisted entities of the ingestion and
// aggregation pipeline: raw audit copies, parsed events, endpoints, flows,
// classification rules, firewall provenance, and the job records that drive
// the import and maintenance state machines.
package model

import "time"

// ParseStatus is the outcome of parsing one reconstructed record.
type ParseStatus string

const (
	ParseOK    ParseStatus = "ok"
	ParseError ParseStatus = "error"
)

// RawLog is an audit copy of every record accepted for parsing.
type RawLog struct {
	ID          int64
	TsUTC       time.Time
	Device      string
	RawRecord   string
	ParseStatus ParseStatus
	ParseError  string
}

// EventType enumerates the CONN record lifecycle events this pipeline acts on.
type EventType string

const (
	EventConnOpen          EventType = "conn_open"
	EventConnOpenNATSAT    EventType = "conn_open_natsat"
	EventConnClose         EventType = "conn_close"
	EventConnCloseNATSAT   EventType = "conn_close_natsat"
)

// IsOpen reports whether t is one of the two "open" variants that the flow
// aggregator acts on.
func (t EventType) IsOpen() bool {
	return t == EventConnOpen || t == EventConnOpenNATSAT
}

// Event is one parsed CONN record.
type Event struct {
	ID int64

	TsUTC        time.Time
	Device       string // raw hostname as it appeared on the wire
	DeviceMember string // raw hostname, kept for HA member resolution
	FirewallKey  string // canonical: ha:<base> or raw device name

	EventType EventType
	Action    string
	Rule      string
	SatSrcRule  string
	SatDestRule string

	SrcUsername  string
	DestUsername string

	Proto       string
	RecvIf      string
	RecvZone    string
	SrcIP       string
	SrcPort     int
	SrcMAC      string
	SrcDevice   string
	DestIf      string
	DestZone    string
	DestIP      string
	DestPort    int
	DestMAC     string
	DestDevice  string

	XlatSrcIP    string
	XlatSrcPort  int
	XlatDestIP   string
	XlatDestPort int

	BytesOrig  int64
	BytesTerm  int64
	DurationS  int64

	AppName   string
	AppRisk   string
	AppFamily string

	IPRepIP         string
	IPRepScore      int
	IPRepCategories string
	IPRepSrc        string
	IPRepDest       string
	IPRepSrcScore   int
	IPRepDestScore  int

	RecvSide        string
	DestSide        string
	DirectionBucket string

	Extra map[string]interface{}
}

// Endpoint is a distinct (firewall_key, ip, mac) triple observed in events.
type Endpoint struct {
	ID          int64
	FirewallKey string
	IP          string
	MAC         string // normalized to "" (not NULL-in-Go) when absent; store layer maps "" <-> NULL
	DeviceName  string
	Hostname    string
	Vendor      string
	DeviceType  string
	OS          string
	Brand       string
	Model       string
	Rank        int
}

// FlowBasis is the categorical axis a flow is aggregated along.
type FlowBasis string

const (
	BasisSide      FlowBasis = "side"
	BasisZone      FlowBasis = "zone"
	BasisInterface FlowBasis = "interface"
)

// ViewKind distinguishes original-address flows from NAT-translated ones.
type ViewKind string

const (
	ViewOriginal   ViewKind = "original"
	ViewTranslated ViewKind = "translated"
)

// FlowIdentity is the 9-tuple unique key for one Flow row (spec section 3).
type FlowIdentity struct {
	FirewallKey    string
	Basis          FlowBasis
	FromValue      string
	ToValue        string
	Proto          string
	DestPort       int
	SrcEndpointID  int64
	DstEndpointID  int64
	ViewKind       ViewKind
}

// Flow is an aggregated traffic grouping keyed by FlowIdentity.
type Flow struct {
	ID        int64
	FlowIdentity

	CountOpen       int64
	CountClose      int64
	BytesSrcToDst   int64
	BytesDstToSrc   int64
	DurationTotalS  int64
	FirstSeen       time.Time
	LastSeen        time.Time
	TopRules        map[string]int64
	TopApps         map[string]int64
}

// ClassificationKind is the axis a Classification rule matches on.
type ClassificationKind string

const (
	KindZone      ClassificationKind = "zone"
	KindInterface ClassificationKind = "interface"
)

// Side is a classified network position.
type Side string

const (
	SideInside  Side = "inside"
	SideOutside Side = "outside"
	SideRemote  Side = "remote"
	SideUnknown Side = "unknown"
)

// Classification is the authoritative per-device mapping used by the
// classifier to resolve a (kind, name) pair to a Side.
type Classification struct {
	ID       int64
	Device   string
	Kind     ClassificationKind
	Name     string
	Side     Side
	Priority int
}

// UnclassifiedEndpoint accumulates exposure for (device, kind, name) pairs the
// classifier could not resolve, for later operator labelling.
type UnclassifiedEndpoint struct {
	Device string
	Kind   ClassificationKind
	Name   string
	Count  int64
}

// DeviceIdentification is a (firewall_key, mac) identity harvested from DEVICE
// records, used to enrich endpoints after the fact.
type DeviceIdentification struct {
	FirewallKey string
	MAC         string
	DeviceName  string
	Hostname    string
	Vendor      string
	DeviceType  string
	OS          string
	Brand       string
	Model       string
	Rank        int
}

// FirewallInventory is per-firewall_key provenance.
type FirewallInventory struct {
	FirewallKey   string
	SourceSyslog  bool
	SourceImport  bool
	FirstSeenTS   time.Time
	LastSeenTS    time.Time
	LastImportTS  time.Time
	UpdatedAt     time.Time
}

// HaCluster is an operator-confirmed HA grouping.
type HaCluster struct {
	Base      string
	Label     string
	Members   []string
	IsEnabled bool
}

// JobState is a state in the IngestJob lifecycle (spec section 4.8).
type JobState string

const (
	JobUploading JobState = "uploading"
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobDone      JobState = "done"
	JobError     JobState = "error"
	JobCanceled  JobState = "canceled"
)

// IsTerminal reports whether s is one from which no further transition occurs.
func (s JobState) IsTerminal() bool {
	return s == JobDone || s == JobError || s == JobCanceled
}

// JobPhase is the progress phase surfaced alongside a ratio (spec section 4.8).
type JobPhase string

const (
	PhaseUpload     JobPhase = "upload"
	PhaseParsing    JobPhase = "parsing"
	PhaseFinalizing JobPhase = "finalizing"
	PhaseError      JobPhase = "error"
	PhaseDone       JobPhase = "done"
)

// IngestJob is the durable record of one file-import lifecycle.
type IngestJob struct {
	ID        string
	State     JobState
	Phase     JobPhase

	Filename    string
	UploadPath  string
	BytesTotal  int64
	BytesRecv   int64
	LinesTotal  int64
	LinesProc   int64

	ParseOK    int64
	ParseErr   int64
	FilteredID int64
	Inserted   int64

	DeviceDetected string

	ErrorType    string
	ErrorStage   string
	ErrorMessage string

	CancelRequested bool

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	UpdatedAt  time.Time
}

// Progress returns the [0,1] ratio described in spec section 4.8.
func (j *IngestJob) Progress() float64 {
	switch j.Phase {
	case PhaseUpload:
		if j.BytesTotal <= 0 {
			return 0
		}
		return clamp01(float64(j.BytesRecv) / float64(j.BytesTotal))
	case PhaseParsing:
		var ratio float64
		if j.BytesTotal > 0 {
			ratio = float64(j.BytesRecv) / float64(j.BytesTotal)
		} else if j.LinesTotal > 0 {
			ratio = float64(j.LinesProc) / float64(j.LinesTotal)
		}
		if ratio > 0.99 {
			ratio = 0.99
		}
		return ratio
	case PhaseFinalizing:
		return 0.99
	case PhaseDone:
		return 1
	case PhaseError:
		return 0
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// MaintenanceState is a state in the MaintenanceJob lifecycle.
type MaintenanceState string

const (
	MaintenanceQueued  MaintenanceState = "queued"
	MaintenanceRunning MaintenanceState = "running"
	MaintenanceDone    MaintenanceState = "done"
	MaintenanceError   MaintenanceState = "error"
)

// MaintenanceJob is the durable record of one purge.
type MaintenanceJob struct {
	ID           string
	FirewallKey  string
	State        MaintenanceState
	ResultCounts map[string]int64
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
}

// MaintenanceSummary is the "maintenance_last_cleanup" record persisted after
// each retention run (spec section 4.9 step 5, supplemented per SPEC_FULL.md).
type MaintenanceSummary struct {
	RanAt        time.Time
	CutoffUTC    time.Time
	RowsDeleted  int64
	Compacted    bool
	Duration     time.Duration
}
