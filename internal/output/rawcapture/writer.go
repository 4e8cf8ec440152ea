// Package rawcapture records raw input payloads as a zstd-compressed stream
// of length-delimited frames so a run can be replayed later.
package rawcapture

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"memtrace/internal/logger"
	"memtrace/pkg/memlog"
)

// Writer appends raw payloads to a capture file. Every batch is encoded as
// one self-contained zstd frame, so a batch either lands whole or the file is
// rolled back to the end of the previous batch and the call can be retried.
type Writer struct {
	mu     sync.Mutex
	out    io.Writer
	file   *os.File
	enc    *zstd.Encoder
	frame  []byte
	buf    []byte
	offset int64
	broken error
}

// truncater is implemented by destinations that can drop a partial write.
type truncater interface {
	Truncate(size int64) error
	Seek(offset int64, whence int) (int64, error)
}

// NewWriter creates a capture file at path, making parent directories.
func NewWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create capture directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	w, err := newWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.file = f
	logger.Infof("Raw capture writer initialized: %s", path)
	return w, nil
}

func newWriter(dst io.Writer) (*Writer, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &Writer{out: dst, enc: enc}, nil
}

// WriteRawMessages appends each message as one delimited frame. On error
// nothing of the batch remains in the capture, unless the destination cannot
// be rolled back, in which case the writer refuses further batches.
func (w *Writer) WriteRawMessages(messages [][]byte) error {
	if len(messages) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.enc == nil {
		return fmt.Errorf("write to closed capture")
	}
	if w.broken != nil {
		return fmt.Errorf("capture is corrupt after failed write: %w", w.broken)
	}
	w.frame = w.frame[:0]
	for _, msg := range messages {
		w.frame = memlog.AppendDelimited(w.frame, msg)
	}
	w.buf = w.enc.EncodeAll(w.frame, w.buf[:0])

	n, err := w.out.Write(w.buf)
	if err == nil && n < len(w.buf) {
		err = io.ErrShortWrite
	}
	if err != nil {
		if n > 0 {
			w.rollback(err)
		}
		return fmt.Errorf("write capture frames: %w", err)
	}
	w.offset += int64(n)
	return nil
}

func (w *Writer) rollback(cause error) {
	t, ok := w.out.(truncater)
	if !ok {
		w.broken = cause
		return
	}
	if err := t.Truncate(w.offset); err != nil {
		logger.Errorf("Failed to roll back raw capture: %v", err)
		w.broken = cause
		return
	}
	if _, err := t.Seek(w.offset, io.SeekStart); err != nil {
		logger.Errorf("Failed to roll back raw capture: %v", err)
		w.broken = cause
	}
}

// Close releases the encoder and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.enc == nil {
		return nil
	}
	err := w.enc.Close()
	w.enc = nil
	if w.file != nil {
		if cerr := w.file.Close(); err == nil {
			err = cerr
		}
		w.file = nil
	}
	return err
}

// Reader iterates payloads from a capture.
type Reader struct {
	file   *os.File
	dec    *zstd.Decoder
	frames *memlog.DelimitedReader
}

// OpenReader opens a capture file written by Writer.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// NewReader reads a capture stream from src.
func NewReader(src io.Reader) (*Reader, error) {
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Reader{dec: dec, frames: memlog.NewDelimitedReader(bufio.NewReader(dec))}, nil
}

// Next returns the next raw payload, or io.EOF at the end of the capture.
func (r *Reader) Next() ([]byte, error) {
	return r.frames.NextPayload()
}

// Close releases the decoder and the underlying file.
func (r *Reader) Close() error {
	r.dec.Close()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
