package jsonl

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/valyala/fastjson"

	"memtrace/pkg/memlog"
)

var parserPool fastjson.ParserPool

// Reader builds deallocation records from JSON lines, one object per line.
// Keys follow memlog.FromJSONValue; blank lines are skipped.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader returns a reader over r.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	s.Buffer(buf, 8*1024*1024)
	return &Reader{scanner: s}
}

// Next returns the next record, or io.EOF when the input is exhausted.
func (r *Reader) Next() (*memlog.RawDeallocation, error) {
	for r.scanner.Scan() {
		r.line++
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		p := parserPool.Get()
		v, err := p.ParseBytes(line)
		if err != nil {
			parserPool.Put(p)
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		rec, err := memlog.FromJSONValue(v)
		parserPool.Put(p)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		return rec, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}
	return nil, io.EOF
}

// ReadFile reads every record from a JSON lines file.
func ReadFile(path string) ([]*memlog.RawDeallocation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	var recs []*memlog.RawDeallocation
	r := NewReader(f)
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
}
