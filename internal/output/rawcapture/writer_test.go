package rawcapture

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"memtrace/pkg/memlog"
)

func readAll(t *testing.T, r *Reader) [][]byte {
	t.Helper()
	var out [][]byte
	for {
		payload, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, payload)
	}
}

func TestCaptureRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture", "run.bin.zst")
	w, err := NewWriter(path)
	require.NoError(t, err)

	rec := memlog.NewBuilder().
		SetStepID(42).
		SetOperation("MatMulGrad").
		SetAllocationID(1001).
		SetAllocatorName("gpu_bfc").
		SetDeferred(true).
		Build()

	batches := [][][]byte{
		{rec.Marshal(), []byte{}},
		{[]byte("not a record"), bytes.Repeat([]byte{0xff}, 300)},
	}
	for _, b := range batches {
		require.NoError(t, w.WriteRawMessages(b))
	}
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	got := readAll(t, r)
	require.Len(t, got, 4)
	require.Equal(t, rec.Marshal(), got[0])
	require.Empty(t, got[1])
	require.Equal(t, []byte("not a record"), got[2])
	require.Len(t, got[3], 300)

	decoded, err := memlog.Unmarshal(got[0])
	require.NoError(t, err)
	require.True(t, rec.Equal(decoded))
}

func TestWriteAfterClose(t *testing.T) {
	var buf bytes.Buffer
	w, err := newWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.Error(t, w.WriteRawMessages([][]byte{[]byte("x")}))
}

// flakyFile fails the next fail writes after storing half of the data.
type flakyFile struct {
	buf  bytes.Buffer
	fail int
}

func (f *flakyFile) Write(p []byte) (int, error) {
	if f.fail > 0 {
		f.fail--
		n, _ := f.buf.Write(p[:len(p)/2])
		return n, errors.New("disk full")
	}
	return f.buf.Write(p)
}

func (f *flakyFile) Truncate(size int64) error {
	f.buf.Truncate(int(size))
	return nil
}

func (f *flakyFile) Seek(offset int64, _ int) (int64, error) {
	return offset, nil
}

func TestRetriedBatchIsCapturedOnce(t *testing.T) {
	dst := &flakyFile{}
	w, err := newWriter(dst)
	require.NoError(t, err)

	require.NoError(t, w.WriteRawMessages([][]byte{[]byte("first")}))

	dst.fail = 1
	batch := [][]byte{[]byte("second"), []byte("third")}
	require.Error(t, w.WriteRawMessages(batch))
	require.NoError(t, w.WriteRawMessages(batch))
	require.NoError(t, w.Close())

	r, err := NewReader(bytes.NewReader(dst.buf.Bytes()))
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, [][]byte{[]byte("first"), []byte("second"), []byte("third")}, readAll(t, r))
}

type halfWriter struct {
	buf bytes.Buffer
}

func (h *halfWriter) Write(p []byte) (int, error) {
	n, _ := h.buf.Write(p[:len(p)/2])
	return n, errors.New("connection reset")
}

func TestPartialWriteWithoutRollbackStopsWriter(t *testing.T) {
	w, err := newWriter(&halfWriter{})
	require.NoError(t, err)

	require.Error(t, w.WriteRawMessages([][]byte{[]byte("payload")}))
	err = w.WriteRawMessages([][]byte{[]byte("payload")})
	require.ErrorContains(t, err, "corrupt")
}
