package memlog

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestDelimitedRoundTrip(t *testing.T) {
	recs := []*RawDeallocation{
		matMulGrad(),
		NewBuilder().Build(),
		NewBuilder().SetStepID(9).SetAllocatorName("cpu").Build(),
	}

	var buf bytes.Buffer
	for _, rec := range recs {
		require.NoError(t, WriteDelimited(&buf, rec))
	}

	r := NewDelimitedReader(&buf)
	for _, want := range recs {
		got, err := r.Next()
		require.NoError(t, err)
		require.True(t, want.Equal(got), "want %s, got %s", want, got)
	}
	_, err := r.Next()
	require.Equal(t, io.EOF, err)
}

func TestAppendDelimitedMatchesWriteDelimited(t *testing.T) {
	rec := matMulGrad()
	var buf bytes.Buffer
	require.NoError(t, WriteDelimited(&buf, rec))
	require.Equal(t, buf.Bytes(), AppendDelimited(nil, rec.Marshal()))
}

func TestDelimitedTruncatedFrame(t *testing.T) {
	frame := AppendDelimited(nil, matMulGrad().Marshal())

	r := NewDelimitedReader(bytes.NewReader(frame[:len(frame)-3]))
	_, err := r.Next()

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDelimitedTruncatedLengthPrefix(t *testing.T) {
	r := NewDelimitedReader(bytes.NewReader([]byte{0x80}))
	_, err := r.NextPayload()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDelimitedRejectsOversizeFrame(t *testing.T) {
	prefix := protowire.AppendVarint(nil, MaxDelimitedSize+1)
	r := NewDelimitedReader(bytes.NewReader(prefix))
	_, err := r.NextPayload()
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDelimitedCorruptPayload(t *testing.T) {
	frame := AppendDelimited(nil, []byte{0x12, 0x05, 'a'})
	r := NewDelimitedReader(bytes.NewReader(frame))

	payload, err := r.NextPayload()
	require.NoError(t, err)
	_, err = Unmarshal(payload)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}
