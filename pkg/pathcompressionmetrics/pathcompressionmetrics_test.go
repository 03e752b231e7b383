package pathcompressionmetrics

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/mythwright/nexus-config-backup/pkg/plog"
)

func TestCompressionMetrics_Adders(t *testing.T) {
	t.Run("correctly increments all counters", func(t *testing.T) {
		m := &CompressionMetrics{}

		m.AddArchivesCreated(5)
		m.AddArchivesFailed(2)
		m.AddFilesAdded(40)
		m.AddDirsAdded(10)
		m.AddBytesRead(1000)
		m.AddBytesWritten(500)

		if got := m.ArchivesCreated.Load(); got != 5 {
			t.Errorf("expected ArchivesCreated to be 5, got %d", got)
		}
		if got := m.ArchivesFailed.Load(); got != 2 {
			t.Errorf("expected ArchivesFailed to be 2, got %d", got)
		}
		if got := m.FilesAdded.Load(); got != 40 {
			t.Errorf("expected FilesAdded to be 40, got %d", got)
		}
		if got := m.DirsAdded.Load(); got != 10 {
			t.Errorf("expected DirsAdded to be 10, got %d", got)
		}
		if got := m.BytesRead.Load(); got != 1000 {
			t.Errorf("expected BytesRead to be 1000, got %d", got)
		}
		if got := m.BytesWritten.Load(); got != 500 {
			t.Errorf("expected BytesWritten to be 500, got %d", got)
		}
	})
}

func TestCompressionMetrics_Log(t *testing.T) {
	t.Run("logs the correct summary values and ratio", func(t *testing.T) {
		var logBuf bytes.Buffer
		plog.SetOutput(&logBuf)
		t.Cleanup(func() { plog.SetOutput(os.Stderr) })

		m := &CompressionMetrics{}
		m.AddArchivesCreated(1)
		m.AddBytesRead(200)
		m.AddBytesWritten(100) // 50% ratio
		m.LogSummary("Archive summary")

		output := logBuf.String()
		for _, want := range []string{
			"msg=\"Archive summary\"",
			"archives_created=1",
			"bytes_read=200",
			"bytes_written=100",
			"ratio_pct=50.00%",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected log output to contain %q, but it didn't. Got: %s", want, output)
			}
		}
	})

	t.Run("handles zero bytes read", func(t *testing.T) {
		var logBuf bytes.Buffer
		plog.SetOutput(&logBuf)
		t.Cleanup(func() { plog.SetOutput(os.Stderr) })

		m := &CompressionMetrics{}
		m.LogSummary("Zero Check")

		if !strings.Contains(logBuf.String(), "ratio_pct=0.00%") {
			t.Errorf("expected ratio_pct=0.00%% for zero bytes, got: %s", logBuf.String())
		}
	})
}

func TestNoopMetrics(t *testing.T) {
	t.Run("all methods execute without panicking", func(t *testing.T) {
		m := &NoopMetrics{}

		defer func() {
			if r := recover(); r != nil {
				t.Errorf("NoopMetrics method panicked: %v", r)
			}
		}()

		m.AddArchivesCreated(1)
		m.AddArchivesFailed(1)
		m.AddFilesAdded(1)
		m.AddDirsAdded(1)
		m.AddBytesRead(1)
		m.AddBytesWritten(1)
		m.LogSummary("noop test")
		m.StartProgress("noop", 0)
		m.StopProgress()
	})
}
