// Package pathcompression writes a snapshot of a source tree into a single zip
// archive and reads archives back for listing and verification.
//
// An archive is built in a hidden temporary file next to its final path and
// renamed into place only after the central directory has been flushed and
// the file closed. A failed or interrupted write therefore never leaves a
// file under a final archive name.
package pathcompression

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/mythwright/nexus-config-backup/pkg/pathcompressionmetrics"
	"github.com/mythwright/nexus-config-backup/pkg/plog"
	"github.com/mythwright/nexus-config-backup/pkg/snapshot"
	"github.com/mythwright/nexus-config-backup/pkg/util"
)

var (
	// ErrCreateArchive means the archive file could not be created in the destination folder.
	ErrCreateArchive = errors.New("cannot create archive file")
	// ErrWriteArchive means the archive was aborted part way through.
	ErrWriteArchive = errors.New("archive write failed")
)

// TempPattern names in-progress archives. The leading dot keeps them out of
// casual directory listings and out of the archive name pattern.
const TempPattern = ".~nexus-backup-*.tmp"

const defaultBufferSize = 256 * 1024

// Options configures a Writer.
type Options struct {
	Method Method
	Level  Level
	// BufferSizeKB sizes the copy buffer and the buffered writer in front of the archive file.
	BufferSizeKB int
	Metrics      pathcompressionmetrics.Metrics
}

// Writer writes archives. It is safe for concurrent use; each Write call owns
// its own zip writer and temp file.
type Writer struct {
	method     Method
	level      Level
	bufferSize int
	metrics    pathcompressionmetrics.Metrics

	ioBufferPool *sync.Pool
	flatePool    *sync.Pool
}

// NewWriter returns a Writer for opts. Zero values select Store, the default
// level, a 256 KiB buffer and no metrics.
func NewWriter(opts Options) *Writer {
	method := opts.Method
	if method == "" {
		method = Store
	}
	level := opts.Level
	if level == "" {
		level = Default
	}
	bufferSize := opts.BufferSizeKB * 1024
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	m := opts.Metrics
	if m == nil {
		m = &pathcompressionmetrics.NoopMetrics{}
	}
	flateLevel := level.flateLevel()

	return &Writer{
		method:     method,
		level:      level,
		bufferSize: bufferSize,
		metrics:    m,
		ioBufferPool: &sync.Pool{
			New: func() any {
				b := make([]byte, bufferSize)
				return &b
			},
		},
		flatePool: &sync.Pool{
			New: func() any {
				fw, _ := flate.NewWriter(io.Discard, flateLevel)
				return fw
			},
		},
	}
}

// Method returns the compression method entries are written with.
func (w *Writer) Method() Method { return w.method }

// Write consumes entries and writes them to destFile. Directories get an
// explicit "name/" record so empty folders survive a round trip; files are
// streamed in full. Any error from the sequence or from a source file aborts
// the archive and removes the temp file. An existing destFile is replaced.
func (w *Writer) Write(ctx context.Context, entries iter.Seq2[snapshot.Entry, error], destFile string) (retErr error) {
	tmp, err := os.CreateTemp(filepath.Dir(destFile), TempPattern)
	if err != nil {
		w.metrics.AddArchivesFailed(1)
		return fmt.Errorf("%w: %w", ErrCreateArchive, err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmpPath)
			w.metrics.AddArchivesFailed(1)
		}
	}()

	if err := w.writeZip(ctx, tmp, entries); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteArchive, err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: failed to sync temp file: %w", ErrWriteArchive, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close temp file: %w", ErrWriteArchive, err)
	}
	if err := os.Chmod(tmpPath, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("%w: failed to set archive permissions: %w", ErrWriteArchive, err)
	}
	if err := os.Rename(tmpPath, destFile); err != nil {
		return fmt.Errorf("%w: failed to rename temp archive to final path: %w", ErrWriteArchive, err)
	}

	w.metrics.AddArchivesCreated(1)
	return nil
}

func (w *Writer) writeZip(ctx context.Context, out io.Writer, entries iter.Seq2[snapshot.Entry, error]) (retErr error) {
	mw := &compressMetricWriter{w: out, metrics: w.metrics}
	bufWriter := bufio.NewWriterSize(mw, w.bufferSize)
	zw := zip.NewWriter(bufWriter)
	w.registerCompressor(zw)

	// The central directory is only written on a clean run. An aborted
	// archive is discarded anyway.
	defer func() {
		if retErr != nil {
			return
		}
		if err := zw.Close(); err != nil {
			retErr = fmt.Errorf("zip writer close failed: %w", err)
			return
		}
		if err := bufWriter.Flush(); err != nil {
			retErr = fmt.Errorf("buffer flush failed: %w", err)
		}
	}()

	bufPtr := w.ioBufferPool.Get().(*[]byte)
	defer w.ioBufferPool.Put(bufPtr)
	buf := (*bufPtr)[:cap(*bufPtr)]

	for e, err := range entries {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.RelPath == "" {
			continue
		}

		if e.IsDir() {
			if err := w.writeDir(zw, e); err != nil {
				return err
			}
			continue
		}
		if err := w.writeFile(zw, e, buf); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) registerCompressor(zw *zip.Writer) {
	switch w.method {
	case Deflate:
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			fw := w.flatePool.Get().(*flate.Writer)
			fw.Reset(out)
			return &pooledFlateWriter{Writer: fw, pool: w.flatePool}, nil
		})
	case Zstd:
		zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor(zstd.WithEncoderLevel(w.level.zstdLevel())))
	}
}

func (w *Writer) writeDir(zw *zip.Writer, e snapshot.Entry) error {
	name := e.RelPath + "/"
	plog.Info("Adding dir", "path", e.AbsPath, "name", name)

	header := &zip.FileHeader{
		Name:   name,
		Method: zip.Store,
	}
	if e.Info != nil {
		header.Modified = e.Info.ModTime()
		header.SetMode(e.Info.Mode())
	}
	if _, err := zw.CreateHeader(header); err != nil {
		return fmt.Errorf("failed to write zip header for %s: %w", name, err)
	}
	w.metrics.AddDirsAdded(1)
	return nil
}

func (w *Writer) writeFile(zw *zip.Writer, e snapshot.Entry, buf []byte) error {
	plog.Info("Adding file", "path", e.AbsPath, "name", e.RelPath)

	info := e.Info
	if info == nil {
		var err error
		if info, err = os.Stat(e.AbsPath); err != nil {
			return fmt.Errorf("failed to stat %s: %w", e.AbsPath, err)
		}
	}

	fileToZip, err := secureFileOpen(e.AbsPath, info)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", e.AbsPath, err)
	}
	defer fileToZip.Close()

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create zip header for %s: %w", e.RelPath, err)
	}
	header.Name = e.RelPath
	header.Method = w.method.zipMethod()

	zf, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to write zip header for %s: %w", e.RelPath, err)
	}

	n, err := io.CopyBuffer(zf, fileToZip, buf)
	w.metrics.AddBytesRead(n)
	if err != nil {
		return fmt.Errorf("failed to copy %s into archive: %w", e.AbsPath, err)
	}
	w.metrics.AddFilesAdded(1)
	return nil
}
