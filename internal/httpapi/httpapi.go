// Package httpapi is the thin operational HTTP surface (spec section 6.4):
// ingest_line, the import-job lifecycle, retention/purge triggers, device
// resolution, health, and Prometheus metrics. It is not a dashboard or query
// API — that stays explicitly out of scope.
//
// Grounded on the teacher's internal/app/handlers.go route-registration
// shape: one *mux.Router, a metrics-timing middleware wrapping every route,
// JSON responses throughout.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"

	"netwallfa/internal/config"
	"netwallfa/internal/ingest"
	"netwallfa/internal/metrics"
	"netwallfa/internal/model"
)

var (
	errNoLiveIngestor    = errors.New("httpapi: live ingest path is disabled")
	errPurgeNotConfirmed = errors.New("httpapi: purge requires confirm=true")
)

// Store is the persistence seam the HTTP surface needs beyond what
// importjob/retention/purge already own.
type Store interface {
	GetIngestJob(ctx context.Context, id string) (*model.IngestJob, error)
	ListIngestJobs(ctx context.Context, stateFilter string, limit int) ([]*model.IngestJob, error)
	RequestIngestJobCancel(ctx context.Context, id string) error
	DeleteIngestJob(ctx context.Context, id string) error
	GetMaintenanceJob(ctx context.Context, id string) (*model.MaintenanceJob, error)
	HasActiveIngestJobs(ctx context.Context, states ...string) (bool, error)
}

// ImportRunner is the subset of *internal/importjob.Runner the upload
// endpoint needs.
type ImportRunner interface {
	ReceiveUpload(ctx context.Context, filename string, body io.Reader, sizeHint int64) (*model.IngestJob, error)
}

// RetentionCleaner is the subset of *internal/retention.Cleaner the manual
// cleanup trigger needs.
type RetentionCleaner interface {
	RunNow(ctx context.Context)
}

// PurgeController is the subset of *internal/purge.Controller the purge and
// resolve_device endpoints need.
type PurgeController interface {
	ResolveDevice(ctx context.Context, deviceKey string) (firewallKey string, members []string, label string)
	PurgeFirewall(ctx context.Context, deviceKey string) (*model.MaintenanceJob, error)
	RunDedupFlows(ctx context.Context) (int64, error)
}

// Server wires the operational surface's dependencies and owns the
// underlying *http.Server.
type Server struct {
	cfg      config.ServerConfig
	store    Store
	live     *ingest.Ingestor
	importer ImportRunner
	cleaner  RetentionCleaner
	purge    PurgeController
	logger   *logrus.Logger

	startTime time.Time
	httpSrv   *http.Server
}

// New builds a Server. live may be nil; ingest_line then returns 503.
func New(cfg config.ServerConfig, store Store, live *ingest.Ingestor, importer ImportRunner, cleaner RetentionCleaner, purge PurgeController, logger *logrus.Logger) *Server {
	return &Server{
		cfg:       cfg,
		store:     store,
		live:      live,
		importer:  importer,
		cleaner:   cleaner,
		purge:     purge,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Start registers routes and begins serving. A no-op if the server is
// disabled in configuration.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("http api disabled, not starting")
		return nil
	}

	router := mux.NewRouter()
	router.Use(s.metricsMiddleware)

	router.HandleFunc("/api/v1/ingest", s.handleIngestLine).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/jobs", s.handleEnqueueImport).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/jobs", s.handleListJobs).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/jobs/{id}", s.handleDeleteJob).Methods(http.MethodDelete)
	router.HandleFunc("/api/v1/jobs/{id}/cancel", s.handleCancelJob).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/retention/run", s.handleRunCleanup).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/maintenance/dedup_flows", s.handleDedupFlows).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/maintenance/{id}", s.handleGetMaintenanceJob).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/devices/{key}/resolve", s.handleResolveDevice).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/firewalls/{key}/purge", s.handlePurgeFirewall).Methods(http.MethodPost)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	s.httpSrv = &http.Server{Addr: addr, Handler: router}

	s.logger.WithField("addr", addr).Info("http api listening")
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("http api server stopped")
		}
	}()
	return nil
}

// Stop gracefully shuts down the server within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		metrics.HTTPRequestDurationSeconds.WithLabelValues(r.URL.Path, r.Method).Observe(time.Since(start).Seconds())
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handleIngestLine implements ingest_line (spec section 6.4): the HTTP
// analogue of the UDP live path, for operators forwarding via HTTP instead
// of syslog/UDP.
func (s *Server) handleIngestLine(w http.ResponseWriter, r *http.Request) {
	if s.live == nil {
		writeError(w, http.StatusServiceUnavailable, errNoLiveIngestor)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.live.IngestLine(r.Context(), string(body)); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleEnqueueImport implements enqueue_import: the request body is the
// uploaded file itself, filename taken from the X-Filename header or a
// query parameter.
func (s *Server) handleEnqueueImport(w http.ResponseWriter, r *http.Request) {
	filename := r.Header.Get("X-Filename")
	if filename == "" {
		filename = r.URL.Query().Get("filename")
	}
	if filename == "" {
		filename = "upload.log"
	}
	job, err := s.importer.ReceiveUpload(r.Context(), filename, r.Body, r.ContentLength)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	jobs, err := s.store.ListIngestJobs(r.Context(), r.URL.Query().Get("state"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := s.store.GetIngestJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.DeleteIngestJob(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.RequestIngestJobCancel(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancel_requested"})
}

func (s *Server) handleRunCleanup(w http.ResponseWriter, r *http.Request) {
	s.cleaner.RunNow(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cleanup_started"})
}

func (s *Server) handleDedupFlows(w http.ResponseWriter, r *http.Request) {
	removed, err := s.purge.RunDedupFlows(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"rows_removed": removed})
}

func (s *Server) handleGetMaintenanceJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := s.store.GetMaintenanceJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleResolveDevice(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	firewallKey, members, label := s.purge.ResolveDevice(r.Context(), key)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"firewall_key":  firewallKey,
		"members":       members,
		"display_label": label,
	})
}

// handlePurgeFirewall implements purge_firewall(device_key, confirm). confirm
// must be the literal query value "true"; anything else is rejected without
// touching the store, since this operation is irreversible.
func (s *Server) handlePurgeFirewall(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, http.StatusBadRequest, errPurgeNotConfirmed)
		return
	}
	job, err := s.purge.PurgeFirewall(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":     "healthy",
		"uptime":     time.Since(s.startTime).String(),
		"goroutines": runtime.NumGoroutine(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpuPct, err := proc.CPUPercent(); err == nil {
			health["cpu_percent"] = cpuPct
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			health["rss_bytes"] = mem.RSS
		}
	}

	if busy, err := s.store.HasActiveIngestJobs(r.Context(), string(model.JobUploading), string(model.JobQueued), string(model.JobRunning)); err == nil {
		health["ingest_job_active"] = busy
	}

	writeJSON(w, http.StatusOK, health)
}
