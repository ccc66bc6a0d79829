// Package config loads and validates AppConfig, the ingestion pipeline's
// single configuration object: listener addresses, the store DSN, retention
// policy, classification precedence, batch sizing, and upload limits.
//
// Grounded on the teacher's internal/config/config.go: the same
// "defaults, then YAML file, then environment override" sequencing, the same
// validate-before-start entry point, and gopkg.in/yaml.v2 as the file format.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"netwallfa/internal/classify"
	"netwallfa/internal/store"
)

// ServerConfig is the thin operational HTTP surface's listener (SPEC_FULL.md
// B, internal/httpapi).
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// UDPConfig is the live syslog listener.
type UDPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// TailConfig is the supplemental local-file ingest source (SPEC_FULL.md B,
// github.com/nxadm/tail): an operator who forwards syslog via a named
// pipe/file instead of UDP points this at the file.
type TailConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WatchFolderConfig is the supplemental drop-folder auto-import source
// (SPEC_FULL.md B, github.com/fsnotify/fsnotify).
type WatchFolderConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
}

// RetentionConfig mirrors spec section 4.9's "log_retention" setting.
type RetentionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	KeepDays       int           `yaml:"keep_days"`
	Interval       time.Duration `yaml:"interval"`
	StartupDelay   time.Duration `yaml:"startup_delay"`
	CompactAtRows  int64         `yaml:"compact_at_rows"`
}

// ImportConfig governs the single-worker import job pipeline (spec section 4.8).
type ImportConfig struct {
	UploadDir       string `yaml:"upload_dir"`
	MaxUploadBytes  int64  `yaml:"max_upload_bytes"`
	BatchSize       int    `yaml:"batch_size"`
	CancelCheckLines int64 `yaml:"cancel_check_lines"`
	StallThreshold  time.Duration `yaml:"stall_threshold"`
}

// ClassificationConfig picks the precedence order the classifier tries zone
// vs interface lookups in (spec section 4.4).
type ClassificationConfig struct {
	Precedence string `yaml:"precedence"` // "zone_first" or "interface_first"
}

// TracingConfig governs internal/tracing's exporter selection.
type TracingConfig struct {
	ServiceName     string `yaml:"service_name"`
	OTLPEndpoint    string `yaml:"otlp_endpoint"`
}

// DLQConfig governs the dead letter queue that best-effort side writes
// (DeviceIdentification, FirewallInventory, UnclassifiedEndpoint) fall back
// to once retryOnLock exhausts its attempts (spec section 9).
type DLQConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Directory         string        `yaml:"directory"`
	RetentionDays     int           `yaml:"retention_days"`
	ReprocessEnabled  bool          `yaml:"reprocess_enabled"`
	ReprocessInterval time.Duration `yaml:"reprocess_interval"`
}

// AppConfig is the whole of the pipeline's runtime configuration.
type AppConfig struct {
	AppName string `yaml:"app_name"`

	Database struct {
		Dialect string `yaml:"dialect"` // "postgres" or "sqlite"
		DSN     string `yaml:"dsn"`
	} `yaml:"database"`

	Server       ServerConfig         `yaml:"server"`
	UDP          UDPConfig            `yaml:"udp"`
	Tail         TailConfig           `yaml:"tail"`
	WatchFolder  WatchFolderConfig    `yaml:"watch_folder"`
	Retention    RetentionConfig      `yaml:"retention"`
	Import       ImportConfig         `yaml:"import"`
	Classify     ClassificationConfig `yaml:"classification"`
	Tracing      TracingConfig        `yaml:"tracing"`
	DLQ          DLQConfig            `yaml:"dead_letter_queue"`

	LogLevel string `yaml:"log_level"`
}

// Load applies defaults, then overlays configFile (if non-empty), then
// overlays environment variables, then validates — matching the teacher's
// LoadConfig sequencing.
func Load(configFile string) (*AppConfig, error) {
	cfg := &AppConfig{}
	applyDefaults(cfg)

	if configFile != "" {
		if err := loadFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configFile, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyDefaults fills every field with its production-sane default. Called
// before the file/env overlays so either can override any value.
func applyDefaults(cfg *AppConfig) {
	cfg.AppName = "netwallfa"
	cfg.LogLevel = "info"

	cfg.Database.Dialect = "sqlite"
	cfg.Database.DSN = "netwallfa.db"

	cfg.Server.Enabled = true
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8401

	cfg.UDP.Enabled = true
	cfg.UDP.Host = "0.0.0.0"
	cfg.UDP.Port = 5514

	cfg.Tail.Enabled = false
	cfg.Tail.Path = ""

	cfg.WatchFolder.Enabled = false
	cfg.WatchFolder.Directory = "/var/lib/netwallfa/watch"

	cfg.Retention.Enabled = true
	cfg.Retention.KeepDays = 90
	cfg.Retention.Interval = time.Hour
	cfg.Retention.StartupDelay = 60 * time.Second
	cfg.Retention.CompactAtRows = 50000

	cfg.Import.UploadDir = "/var/lib/netwallfa/uploads"
	cfg.Import.MaxUploadBytes = 1 << 30 // 1 GiB, spec section 4.8
	cfg.Import.BatchSize = 5000         // spec section 4.7
	cfg.Import.CancelCheckLines = 5000  // spec section 4.8
	cfg.Import.StallThreshold = 5 * time.Minute

	cfg.Classify.Precedence = string(classify.PrecedenceZoneFirst)

	cfg.Tracing.ServiceName = "netwallfa"
	cfg.Tracing.OTLPEndpoint = ""

	cfg.DLQ.Enabled = true
	cfg.DLQ.Directory = "/var/lib/netwallfa/dlq"
	cfg.DLQ.RetentionDays = 7
	cfg.DLQ.ReprocessEnabled = true
	cfg.DLQ.ReprocessInterval = 5 * time.Minute
}

// envPrefix namespaces every environment override this pipeline reads.
const envPrefix = "NETWALLFA_"

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv(envPrefix + "DATABASE_DIALECT"); v != "" {
		cfg.Database.Dialect = v
	}
	if v := os.Getenv(envPrefix + "DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv(envPrefix + "SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := envInt(envPrefix + "SERVER_PORT"); v != 0 {
		cfg.Server.Port = v
	}
	if v := os.Getenv(envPrefix + "UDP_HOST"); v != "" {
		cfg.UDP.Host = v
	}
	if v := envInt(envPrefix + "UDP_PORT"); v != 0 {
		cfg.UDP.Port = v
	}
	if v := os.Getenv(envPrefix + "WATCH_FOLDER_DIR"); v != "" {
		cfg.WatchFolder.Directory = v
		cfg.WatchFolder.Enabled = true
	}
	if v := os.Getenv(envPrefix + "RETENTION_KEEP_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retention.KeepDays = n
		}
	}
	if v := os.Getenv(envPrefix + "CLASSIFICATION_PRECEDENCE"); v != "" {
		cfg.Classify.Precedence = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.OTLPEndpoint = v
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// Validate checks AppConfig for internally-inconsistent or out-of-range
// values, matching the teacher's validate-before-start pattern.
func Validate(cfg *AppConfig) error {
	var errs []string

	switch cfg.Database.Dialect {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.dialect must be %q or %q, got %q", store.DialectPostgres, store.DialectSQLite, cfg.Database.Dialect))
	}
	if cfg.Database.DSN == "" {
		errs = append(errs, "database.dsn must not be empty")
	}

	if cfg.Server.Enabled {
		if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port out of range: %d", cfg.Server.Port))
		}
	}
	if cfg.UDP.Enabled {
		if cfg.UDP.Port <= 0 || cfg.UDP.Port > 65535 {
			errs = append(errs, fmt.Sprintf("udp.port out of range: %d", cfg.UDP.Port))
		}
	}
	if cfg.Tail.Enabled && cfg.Tail.Path == "" {
		errs = append(errs, "tail.path must be set when tail.enabled is true")
	}
	if cfg.WatchFolder.Enabled && cfg.WatchFolder.Directory == "" {
		errs = append(errs, "watch_folder.directory must be set when watch_folder.enabled is true")
	}

	if cfg.Retention.Enabled && cfg.Retention.KeepDays <= 0 {
		errs = append(errs, fmt.Sprintf("retention.keep_days must be positive when retention is enabled, got %d", cfg.Retention.KeepDays))
	}
	if cfg.Retention.Interval <= 0 {
		errs = append(errs, "retention.interval must be positive")
	}

	if cfg.Import.MaxUploadBytes <= 0 {
		errs = append(errs, "import.max_upload_bytes must be positive")
	}
	if cfg.Import.BatchSize <= 0 {
		errs = append(errs, "import.batch_size must be positive")
	}
	if cfg.Import.CancelCheckLines <= 0 {
		errs = append(errs, "import.cancel_check_lines must be positive")
	}

	switch classify.Precedence(cfg.Classify.Precedence) {
	case classify.PrecedenceZoneFirst, classify.PrecedenceInterfaceFirst:
	default:
		errs = append(errs, fmt.Sprintf("classification.precedence must be %q or %q, got %q",
			classify.PrecedenceZoneFirst, classify.PrecedenceInterfaceFirst, cfg.Classify.Precedence))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Dialect translates the configured dialect string into a store.Dialect.
func (c *AppConfig) Dialect() store.Dialect {
	if c.Database.Dialect == string(store.DialectPostgres) {
		return store.DialectPostgres
	}
	return store.DialectSQLite
}

// Precedence translates the configured precedence string into a
// classify.Precedence.
func (c *AppConfig) Precedence() classify.Precedence {
	return classify.Precedence(c.Classify.Precedence)
}
