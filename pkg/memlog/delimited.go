package memlog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxDelimitedSize bounds the length prefix accepted by DelimitedReader.
const MaxDelimitedSize = 64 << 20

// AppendDelimited appends payload to b behind a varint length prefix.
func AppendDelimited(b, payload []byte) []byte {
	b = protowire.AppendVarint(b, uint64(len(payload)))
	return append(b, payload...)
}

// WriteDelimited writes r to w as one length-prefixed frame.
func WriteDelimited(w io.Writer, r *RawDeallocation) error {
	size := r.Size()
	buf := make([]byte, 0, size+binary.MaxVarintLen64)
	buf = protowire.AppendVarint(buf, uint64(size))
	buf = r.AppendMarshal(buf)
	_, err := w.Write(buf)
	return err
}

// DelimitedReader reads a stream of length-prefixed frames.
type DelimitedReader struct {
	r   io.ByteReader
	rd  io.Reader
	off int64
}

// NewDelimitedReader returns a reader over r. r is buffered unless it
// already implements io.ByteReader.
func NewDelimitedReader(r io.Reader) *DelimitedReader {
	if br, ok := r.(interface {
		io.Reader
		io.ByteReader
	}); ok {
		return &DelimitedReader{r: br, rd: br}
	}
	br := bufio.NewReader(r)
	return &DelimitedReader{r: br, rd: br}
}

// NextPayload returns the next frame's payload without decoding it. It
// returns io.EOF at a clean end of stream and a *DecodeError for a frame cut
// short or exceeding MaxDelimitedSize.
func (d *DelimitedReader) NextPayload() ([]byte, error) {
	start := d.off
	counter := &countingByteReader{r: d.r}
	size, err := binary.ReadUvarint(counter)
	d.off += int64(counter.n)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &DecodeError{Offset: int(start), Err: io.ErrUnexpectedEOF}
		}
		if counter.err != nil {
			return nil, fmt.Errorf("read frame length: %w", err)
		}
		return nil, &DecodeError{Offset: int(start), Err: err}
	}
	if size > MaxDelimitedSize {
		return nil, &DecodeError{Offset: int(start), Err: ErrFrameTooLarge}
	}

	payload := make([]byte, size)
	n, err := io.ReadFull(d.rd, payload)
	d.off += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &DecodeError{Offset: int(start), Err: io.ErrUnexpectedEOF}
		}
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// Next reads and decodes the next record. It returns io.EOF at a clean end
// of stream.
func (d *DelimitedReader) Next() (*RawDeallocation, error) {
	payload, err := d.NextPayload()
	if err != nil {
		return nil, err
	}
	return Unmarshal(payload)
}

type countingByteReader struct {
	r   io.ByteReader
	n   int
	err error
}

func (c *countingByteReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err != nil {
		if err != io.EOF {
			c.err = err
		}
		return b, err
	}
	c.n++
	return b, nil
}
