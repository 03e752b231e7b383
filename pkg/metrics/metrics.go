// Package metrics exposes engine-level run statistics. The in-process
// counters back the summary log line; the Collector publishes the same
// numbers to Prometheus for the schedule command's /metrics endpoint.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mythwright/nexus-config-backup/pkg/plog"
)

const namespace = "nexus_backup"

// Outcome labels for a finished operation.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Metrics records the outcome of backup and cleanup runs.
type Metrics interface {
	ObserveBackup(outcome string, elapsed time.Duration, archiveBytes int64)
	ObserveCleanup(outcome string, deleted, failed int)
	Log()
}

// RunMetrics is the concrete implementation of Metrics. It is also a
// prometheus.Collector.
type RunMetrics struct {
	BackupsSucceeded atomic.Int64
	BackupsFailed    atomic.Int64
	CleanupsRun      atomic.Int64
	ArchivesDeleted  atomic.Int64

	backups         *prometheus.CounterVec
	backupDuration  prometheus.Histogram
	archiveBytes    prometheus.Gauge
	cleanups        *prometheus.CounterVec
	deletedArchives prometheus.Counter
	failedDeletes   prometheus.Counter
	lastSuccess     prometheus.Gauge
}

// NewRunMetrics returns a RunMetrics with unregistered collectors.
func NewRunMetrics() *RunMetrics {
	return &RunMetrics{
		backups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backups_total",
				Help:      "The number of backup runs by outcome.",
			}, []string{"outcome"},
		),
		backupDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backup_duration_seconds",
				Help:      "The time taken to write one archive.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
			},
		),
		archiveBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_archive_bytes",
				Help:      "The size of the most recently written archive.",
			},
		),
		cleanups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleanups_total",
				Help:      "The number of cleanup runs by outcome.",
			}, []string{"outcome"},
		),
		deletedArchives: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archives_deleted_total",
				Help:      "The number of archives removed by retention.",
			},
		),
		failedDeletes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_delete_failures_total",
				Help:      "The number of archives retention failed to remove.",
			},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_backup_success_timestamp_seconds",
				Help:      "Unix time of the last successful backup.",
			},
		),
	}
}

// ObserveBackup records one backup run.
func (m *RunMetrics) ObserveBackup(outcome string, elapsed time.Duration, archiveBytes int64) {
	m.backups.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSuccess {
		m.BackupsFailed.Add(1)
		return
	}
	m.BackupsSucceeded.Add(1)
	m.backupDuration.Observe(elapsed.Seconds())
	m.archiveBytes.Set(float64(archiveBytes))
	m.lastSuccess.SetToCurrentTime()
}

// ObserveCleanup records one cleanup run.
func (m *RunMetrics) ObserveCleanup(outcome string, deleted, failed int) {
	m.CleanupsRun.Add(1)
	m.ArchivesDeleted.Add(int64(deleted))
	m.cleanups.WithLabelValues(outcome).Inc()
	m.deletedArchives.Add(float64(deleted))
	m.failedDeletes.Add(float64(failed))
}

// Log prints a summary of all runs seen so far.
func (m *RunMetrics) Log() {
	plog.Info("SUM",
		"backupsSucceeded", m.BackupsSucceeded.Load(),
		"backupsFailed", m.BackupsFailed.Load(),
		"cleanupsRun", m.CleanupsRun.Load(),
		"archivesDeleted", m.ArchivesDeleted.Load(),
	)
}

// Describe is part of the prometheus.Collector interface.
func (m *RunMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.backups.Describe(ch)
	m.backupDuration.Describe(ch)
	m.archiveBytes.Describe(ch)
	m.cleanups.Describe(ch)
	m.deletedArchives.Describe(ch)
	m.failedDeletes.Describe(ch)
	m.lastSuccess.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *RunMetrics) Collect(ch chan<- prometheus.Metric) {
	m.backups.Collect(ch)
	m.backupDuration.Collect(ch)
	m.archiveBytes.Collect(ch)
	m.cleanups.Collect(ch)
	m.deletedArchives.Collect(ch)
	m.failedDeletes.Collect(ch)
	m.lastSuccess.Collect(ch)
}

// NoopMetrics is an implementation of the Metrics interface that performs no operations.
// It can be used to disable metrics collection without changing the calling code.
type NoopMetrics struct{}

func (m *NoopMetrics) ObserveBackup(outcome string, elapsed time.Duration, archiveBytes int64) {}
func (m *NoopMetrics) ObserveCleanup(outcome string, deleted, failed int)                     {}
func (m *NoopMetrics) Log()                                                                   {}

// Statically assert that our types implement the interface.
var _ Metrics = (*RunMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
var _ prometheus.Collector = (*RunMetrics)(nil)
