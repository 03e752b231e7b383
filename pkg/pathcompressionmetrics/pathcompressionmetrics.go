package pathcompressionmetrics

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mythwright/nexus-config-backup/pkg/plog"
)

// Metrics defines the interface for collecting and reporting archive writer statistics.
type Metrics interface {
	AddArchivesCreated(n int64)
	AddArchivesFailed(n int64)
	AddFilesAdded(n int64)
	AddDirsAdded(n int64)
	AddBytesRead(n int64)
	AddBytesWritten(n int64)
	LogSummary(msg string)
	StartProgress(msg string, interval time.Duration)
	StopProgress()
}

// CompressionMetrics holds the atomic counters for one or more archive writes.
// It is the concrete implementation of the Metrics interface.
type CompressionMetrics struct {
	ArchivesCreated atomic.Int64
	ArchivesFailed  atomic.Int64
	FilesAdded      atomic.Int64
	DirsAdded       atomic.Int64
	BytesRead       atomic.Int64
	BytesWritten    atomic.Int64

	stopChan chan struct{}
}

func (m *CompressionMetrics) AddArchivesCreated(n int64) { m.ArchivesCreated.Add(n) }
func (m *CompressionMetrics) AddArchivesFailed(n int64)  { m.ArchivesFailed.Add(n) }
func (m *CompressionMetrics) AddFilesAdded(n int64)      { m.FilesAdded.Add(n) }
func (m *CompressionMetrics) AddDirsAdded(n int64)       { m.DirsAdded.Add(n) }
func (m *CompressionMetrics) AddBytesRead(n int64)       { m.BytesRead.Add(n) }
func (m *CompressionMetrics) AddBytesWritten(n int64)    { m.BytesWritten.Add(n) }

func (m *CompressionMetrics) StartProgress(msg string, interval time.Duration) {
	if interval <= 0 {
		return
	}
	m.stopChan = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.LogSummary(msg)
			case <-m.stopChan:
				return
			}
		}
	}()
}

func (m *CompressionMetrics) StopProgress() {
	if m.stopChan != nil {
		close(m.stopChan)
		m.stopChan = nil
	}
}

// LogSummary logs the current state of the metrics.
func (m *CompressionMetrics) LogSummary(msg string) {
	read := m.BytesRead.Load()
	written := m.BytesWritten.Load()

	var ratio float64
	if read > 0 {
		ratio = float64(written) / float64(read) * 100.0
	}

	plog.Info(msg,
		"archives_created", m.ArchivesCreated.Load(),
		"archives_failed", m.ArchivesFailed.Load(),
		"files_added", m.FilesAdded.Load(),
		"dirs_added", m.DirsAdded.Load(),
		"bytes_read", read,
		"bytes_written", written,
		"size", humanize.IBytes(uint64(written)),
		"ratio_pct", fmt.Sprintf("%.2f%%", ratio),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no operations.
type NoopMetrics struct{}

func (m *NoopMetrics) AddArchivesCreated(n int64)                       {}
func (m *NoopMetrics) AddArchivesFailed(n int64)                        {}
func (m *NoopMetrics) AddFilesAdded(n int64)                            {}
func (m *NoopMetrics) AddDirsAdded(n int64)                             {}
func (m *NoopMetrics) AddBytesRead(n int64)                             {}
func (m *NoopMetrics) AddBytesWritten(n int64)                          {}
func (m *NoopMetrics) LogSummary(msg string)                            {}
func (m *NoopMetrics) StartProgress(msg string, interval time.Duration) {}
func (m *NoopMetrics) StopProgress()                                    {}

// Statically assert that our types implement the interface.
var _ Metrics = (*CompressionMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
