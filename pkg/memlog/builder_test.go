package memlog

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestBuildIsIndependentOfLaterSets(t *testing.T) {
	b := NewBuilder().SetStepID(1).SetOperation("Add")
	first := b.Build()

	b.SetStepID(2).SetOperation("Mul").SetDeferred(true)
	second := b.Build()

	require.Equal(t, int64(1), first.GetStepID())
	require.Equal(t, "Add", first.GetOperation())
	require.False(t, first.GetDeferred())

	require.Equal(t, int64(2), second.GetStepID())
	require.Equal(t, "Mul", second.GetOperation())
	require.True(t, second.GetDeferred())
}

func TestToBuilderCarriesUnknownFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, AllocationIDField, protowire.VarintType)
	b = protowire.AppendVarint(b, 77)
	b = protowire.AppendTag(b, 20, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)

	rec, err := Unmarshal(b)
	require.NoError(t, err)

	changed := rec.ToBuilder().SetDeferred(true).Build()
	require.Equal(t, int64(77), changed.GetAllocationID())
	require.True(t, changed.GetDeferred())
	require.Equal(t, rec.UnknownFields(), changed.UnknownFields())
	require.False(t, rec.GetDeferred())
}

func TestBuilderReplacesInvalidUTF8(t *testing.T) {
	rec := NewBuilder().SetOperation("Mat\xffMul").SetAllocatorName("\xfegpu").Build()

	require.Equal(t, "Mat�Mul", rec.GetOperation())
	require.Equal(t, "�gpu", rec.GetAllocatorName())

	decoded, err := Unmarshal(rec.Marshal())
	require.NoError(t, err)
	require.True(t, rec.Equal(decoded))
}

func TestBuilderClear(t *testing.T) {
	rec := matMulGrad().ToBuilder().Clear().Build()
	require.True(t, rec.Equal(NewBuilder().Build()))
	require.Empty(t, rec.Marshal())
}
