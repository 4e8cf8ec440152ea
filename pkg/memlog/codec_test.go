package memlog

import (
	"errors"
	"io"
	"math"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func matMulGrad() *RawDeallocation {
	return NewBuilder().
		SetStepID(42).
		SetOperation("MatMulGrad").
		SetAllocationID(1001).
		SetAllocatorName("gpu_bfc").
		SetDeferred(true).
		Build()
}

func TestUnmarshalEmptyBufferYieldsDefaults(t *testing.T) {
	for _, in := range [][]byte{nil, {}} {
		rec, err := Unmarshal(in)
		require.NoError(t, err)
		require.Equal(t, int64(0), rec.GetStepID())
		require.Equal(t, "", rec.GetOperation())
		require.Equal(t, int64(0), rec.GetAllocationID())
		require.Equal(t, "", rec.GetAllocatorName())
		require.False(t, rec.GetDeferred())
		require.Empty(t, rec.GetOperationBytes())
		require.Nil(t, rec.UnknownFields())
	}
}

func TestMarshalConcreteScenario(t *testing.T) {
	rec := matMulGrad()

	want := []byte{0x08, 0x2a, 0x12, 0x0a}
	want = append(want, "MatMulGrad"...)
	want = append(want, 0x18, 0xe9, 0x07, 0x22, 0x07)
	want = append(want, "gpu_bfc"...)
	want = append(want, 0x28, 0x01)

	got := rec.Marshal()
	require.Equal(t, want, got)
	require.Equal(t, len(got), rec.Size())

	decoded, err := Unmarshal(got)
	require.NoError(t, err)
	require.Equal(t, int64(42), decoded.GetStepID())
	require.Equal(t, "MatMulGrad", decoded.GetOperation())
	require.Equal(t, int64(1001), decoded.GetAllocationID())
	require.Equal(t, "gpu_bfc", decoded.GetAllocatorName())
	require.True(t, decoded.GetDeferred())
}

func TestRoundTripFieldCombinations(t *testing.T) {
	cases := []struct {
		name string
		rec  *RawDeallocation
	}{
		{"empty", NewBuilder().Build()},
		{"step only", NewBuilder().SetStepID(7).Build()},
		{"negative ids", NewBuilder().SetStepID(-1).SetAllocationID(math.MinInt64).Build()},
		{"max ids", NewBuilder().SetStepID(math.MaxInt64).SetAllocationID(math.MaxInt64).Build()},
		{"strings only", NewBuilder().SetOperation("Conv2DBackpropInput").SetAllocatorName("cpu").Build()},
		{"multibyte text", NewBuilder().SetOperation("Σ/grad✓").SetAllocatorName("gpu_bfc_É").Build()},
		{"deferred only", NewBuilder().SetDeferred(true).Build()},
		{"all fields", matMulGrad()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := tc.rec.Marshal()
			require.Equal(t, tc.rec.Size(), len(encoded))

			decoded, err := Unmarshal(encoded)
			require.NoError(t, err)
			require.True(t, tc.rec.Equal(decoded), "want %s, got %s", tc.rec, decoded)
		})
	}
}

func TestNegativeIDsUseTenByteVarints(t *testing.T) {
	rec := NewBuilder().SetStepID(-1).Build()
	require.Equal(t, 1+10, rec.Size())
}

func TestTextAndBytesViewsAgree(t *testing.T) {
	rec := NewBuilder().SetOperation("AddN·fused").SetAllocatorName("gpu_host_bfc").Build()
	decoded, err := Unmarshal(rec.Marshal())
	require.NoError(t, err)

	require.True(t, utf8.Valid(decoded.GetOperationBytes()))
	require.Equal(t, decoded.GetOperation(), string(decoded.GetOperationBytes()))
	require.Equal(t, decoded.GetAllocatorName(), string(decoded.GetAllocatorNameBytes()))

	b := decoded.GetOperationBytes()
	b[0] = 'X'
	require.Equal(t, "AddN·fused", decoded.GetOperation())
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	base := matMulGrad().Marshal()

	var unknown []byte
	unknown = protowire.AppendTag(unknown, 9, protowire.VarintType)
	unknown = protowire.AppendVarint(unknown, 5)
	unknown = protowire.AppendTag(unknown, 15, protowire.BytesType)
	unknown = protowire.AppendString(unknown, "abc")
	unknown = protowire.AppendTag(unknown, 6, protowire.Fixed32Type)
	unknown = protowire.AppendFixed32(unknown, 0xdeadbeef)
	unknown = protowire.AppendTag(unknown, 7, protowire.Fixed64Type)
	unknown = protowire.AppendFixed64(unknown, 1)

	withUnknown := append(append([]byte{}, base...), unknown...)

	plain, err := Unmarshal(base)
	require.NoError(t, err)
	extended, err := Unmarshal(withUnknown)
	require.NoError(t, err)

	require.True(t, plain.Equal(extended))
	require.Equal(t, unknown, extended.UnknownFields())
	require.Equal(t, withUnknown, extended.Marshal())
}

func TestUnmarshalUnknownFieldBetweenKnownFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, StepIDField, protowire.VarintType)
	b = protowire.AppendVarint(b, 3)
	b = protowire.AppendTag(b, 100, protowire.BytesType)
	b = protowire.AppendString(b, "future field")
	b = protowire.AppendTag(b, DeferredField, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)

	rec, err := Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, int64(3), rec.GetStepID())
	require.True(t, rec.GetDeferred())
	require.NotEmpty(t, rec.UnknownFields())
}

func TestUnmarshalWrongWireTypeIsUnknown(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, StepIDField, protowire.BytesType)
	b = protowire.AppendString(b, "x")

	rec, err := Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, int64(0), rec.GetStepID())
	require.Equal(t, b, rec.UnknownFields())
}

func TestUnmarshalLastOccurrenceWins(t *testing.T) {
	rec, err := Unmarshal([]byte{0x08, 0x01, 0x08, 0x02, 0x28, 0x02})
	require.NoError(t, err)
	require.Equal(t, int64(2), rec.GetStepID())
	require.True(t, rec.GetDeferred())
}

func TestUnmarshalTruncatedInput(t *testing.T) {
	cases := map[string][]byte{
		"length prefix past end": append([]byte{0x12, 0x0a}, "MatMul"...),
		"tag without value":      {0x08},
		"varint cut short":       {0x18, 0xe9},
		"tag cut short":          {0x80},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			rec, err := Unmarshal(in)
			require.Nil(t, rec)

			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr), "got %v", err)
			require.True(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)
		})
	}
}

func TestUnmarshalTruncatedReportsField(t *testing.T) {
	_, err := Unmarshal(append([]byte{0x08, 0x01, 0x22, 0x09}, "gpu"...))

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, AllocatorNameField, decodeErr.Field)
	require.Equal(t, 3, decodeErr.Offset)
}

func TestUnmarshalInvalidVarint(t *testing.T) {
	in := []byte{0x08, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	rec, err := Unmarshal(in)
	require.Nil(t, rec)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, StepIDField, decodeErr.Field)
	require.Equal(t, 1, decodeErr.Offset)
	require.False(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestUnmarshalInvalidFieldNumber(t *testing.T) {
	rec, err := Unmarshal([]byte{0x00, 0x01})
	require.Nil(t, rec)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, protowire.Number(0), decodeErr.Field)
}

func TestUnmarshalRejectsInvalidUTF8(t *testing.T) {
	rec, err := Unmarshal([]byte{0x12, 0x02, 0xff, 0xfe})
	require.Nil(t, rec)
	require.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestNilRecordReadsAsDefaults(t *testing.T) {
	var rec *RawDeallocation
	require.Equal(t, int64(0), rec.GetStepID())
	require.Equal(t, "", rec.GetAllocatorName())
	require.False(t, rec.GetDeferred())
	require.Equal(t, 0, rec.Size())
	require.Empty(t, rec.Marshal())
	require.True(t, rec.Equal(NewBuilder().Build()))
}

func TestString(t *testing.T) {
	require.Equal(t,
		`step_id:42 operation:"MatMulGrad" allocation_id:1001 allocator_name:"gpu_bfc" deferred:true`,
		matMulGrad().String())
	require.Equal(t, "", NewBuilder().Build().String())
}
