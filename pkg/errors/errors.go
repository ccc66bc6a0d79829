// Package errors provides the ingestion pipeline's standardized error taxonomy.
//
// Every stage of ingestion wraps its failures in an *AppError carrying a Stage
// drawn from the taxonomy in spec section 7: parse, filtered_id,
// transient_locking, persist, flow_aggregation, upload, processing,
// server_restart, job_stalled. The outermost handler (the import worker, the
// live ingest path) infers a Stage from a foreign error via ClassifyStage when
// the error wasn't already an *AppError.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Stage is one member of the ingestion error taxonomy.
type Stage string

const (
	StageParse             Stage = "parse"
	StageFilteredID         Stage = "filtered_id"
	StageTransientLocking   Stage = "transient_locking"
	StagePersist            Stage = "persist"
	StageFlowAggregation    Stage = "flow_aggregation"
	StageUpload             Stage = "upload"
	StageProcessing         Stage = "processing"
	StageServerRestart      Stage = "server_restart"
	StageJobStalled         Stage = "job_stalled"
)

// Severity communicates how urgently an error should be surfaced.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// maxMessageLen mirrors spec 7's "first 1000 characters of the message are stored".
const maxMessageLen = 1000

// AppError is the carrier for a taxonomy-classified ingestion failure.
type AppError struct {
	Stage     Stage
	Component string
	Operation string
	Message   string
	Cause     error
	Severity  Severity
	Metadata  map[string]interface{}
	Timestamp time.Time
}

func New(stage Stage, component, operation, message string) *AppError {
	return &AppError{
		Stage:     stage,
		Component: component,
		Operation: operation,
		Message:   truncate(message, maxMessageLen),
		Severity:  SeverityWarning,
		Metadata:  make(map[string]interface{}),
		Timestamp: time.Now().UTC(),
	}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Component, e.Operation, e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Stage, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

func (e *AppError) Wrap(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func (e *AppError) WithSeverity(s Severity) *AppError {
	e.Severity = s
	return e
}

// AsAppError unwraps err looking for an *AppError, the way errors.As does.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// ClassifyStage infers a taxonomy Stage from a foreign error's message. Go has
// no exception class name to inspect, so this collapses the original
// implementation's type-name heuristic down to message substrings, checked in
// the same precedence order: a duplicate flow identity takes priority over a
// generic persistence failure, which takes priority over a parse failure.
// Lock contention (SQLite "database is locked", Postgres deadlock detected) is
// checked first since it's transient and should be retried rather than routed
// straight to a terminal error stage. Used only when err is not already an
// *AppError.
func ClassifyStage(err error) Stage {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Stage
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadlock") || strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked"):
		return StageTransientLocking
	case strings.Contains(msg, "multipleresultsfound") || strings.Contains(msg, "multiple results") || strings.Contains(msg, "flow"):
		return StageFlowAggregation
	case strings.Contains(msg, "integrity") || strings.Contains(msg, "constraint") || strings.Contains(msg, "operational") || strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique"):
		return StagePersist
	case strings.Contains(msg, "parse") || strings.Contains(msg, "invalid value") || strings.Contains(msg, "key not found"):
		return StageParse
	default:
		return StageProcessing
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
