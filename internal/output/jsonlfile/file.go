// Package jsonlfile appends JSON rows to a local file, one per line.
package jsonlfile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File is a mutex-guarded JSON lines file. Rows are buffered and flushed at
// the end of every batch.
type File struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	buf     *bufio.Writer
	encoder *json.Encoder
}

// Create creates (or truncates) path, making parent directories as needed.
func Create(path string) (*File, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	buf := bufio.NewWriter(f)
	return &File{path: path, file: f, buf: buf, encoder: json.NewEncoder(buf)}, nil
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

// WriteBatch encodes n rows produced by row and flushes them to disk.
func (f *File) WriteBatch(n int, row func(i int) any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return fmt.Errorf("write to closed file %s", f.path)
	}
	for i := 0; i < n; i++ {
		if err := f.encoder.Encode(row(i)); err != nil {
			return fmt.Errorf("failed to encode row: %w", err)
		}
	}
	return f.buf.Flush()
}

// Close flushes and closes the file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	flushErr := f.buf.Flush()
	closeErr := f.file.Close()
	f.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
