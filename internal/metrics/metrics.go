// Package metrics exposes Prometheus counters for sync, migration and
// backup activity. A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/carekeeper/internal/common"
)

const namespace = "carekeeper"

// Status label values.
const (
	StatusSuccess          = "success"
	StatusError            = "error"
	StatusNotFound         = "not_found"
	StatusNotAuthenticated = "not_authenticated"
)

type Metrics struct {
	registry *prometheus.Registry

	syncOperations *prometheus.CounterVec
	syncDuration   *prometheus.HistogramVec
	migratedFiles  *prometheus.CounterVec
	backupRuns     *prometheus.CounterVec
	backupDuration *prometheus.HistogramVec
}

// New registers every collector on a private registry so parallel
// instances (and tests) never collide on the default one.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		syncOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_operations_total",
			Help:      "Push and pull operations against the primary object store",
		}, []string{"operation", "record_type", "status"}),
		syncDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of push and pull operations",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"operation"}),
		migratedFiles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migration_files_total",
			Help:      "Objects processed by the duplicate-prefix migration",
		}, []string{"status"}),
		backupRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_operations_total",
			Help:      "Backup provider operations by type and status",
		}, []string{"operation", "status"}),
		backupDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Duration of backup provider operations",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"operation", "status"}),
	}
}

// Status maps an operation error to a status label.
func Status(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, common.ErrNotAuthenticated):
		return StatusNotAuthenticated
	case errors.Is(err, common.ErrorNotFound):
		return StatusNotFound
	default:
		return StatusError
	}
}

func (m *Metrics) ObserveSync(operation, recordType string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.syncOperations.WithLabelValues(operation, recordType, Status(err)).Inc()
	m.syncDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) MigrationFile(err error) {
	if m == nil {
		return
	}
	m.migratedFiles.WithLabelValues(Status(err)).Inc()
}

func (m *Metrics) ObserveBackup(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := Status(err)
	m.backupRuns.WithLabelValues(operation, status).Inc()
	m.backupDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
