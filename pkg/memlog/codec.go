package memlog

import (
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// Size returns the length of the encoded record.
func (r *RawDeallocation) Size() int {
	if r == nil {
		return 0
	}
	n := 0
	if r.stepID != 0 {
		n += protowire.SizeTag(StepIDField) + protowire.SizeVarint(uint64(r.stepID))
	}
	if r.operation != "" {
		n += protowire.SizeTag(OperationField) + protowire.SizeBytes(len(r.operation))
	}
	if r.allocationID != 0 {
		n += protowire.SizeTag(AllocationIDField) + protowire.SizeVarint(uint64(r.allocationID))
	}
	if r.allocatorName != "" {
		n += protowire.SizeTag(AllocatorNameField) + protowire.SizeBytes(len(r.allocatorName))
	}
	if r.deferred {
		n += protowire.SizeTag(DeferredField) + protowire.SizeVarint(1)
	}
	return n + len(r.unknown)
}

// Marshal encodes the record. Fields at their default are omitted; retained
// unknown fields follow the known ones.
func (r *RawDeallocation) Marshal() []byte {
	return r.AppendMarshal(make([]byte, 0, r.Size()))
}

// AppendMarshal appends the encoded record to b and returns the result.
func (r *RawDeallocation) AppendMarshal(b []byte) []byte {
	if r == nil {
		return b
	}
	if r.stepID != 0 {
		b = protowire.AppendTag(b, StepIDField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.stepID))
	}
	if r.operation != "" {
		b = protowire.AppendTag(b, OperationField, protowire.BytesType)
		b = protowire.AppendString(b, r.operation)
	}
	if r.allocationID != 0 {
		b = protowire.AppendTag(b, AllocationIDField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.allocationID))
	}
	if r.allocatorName != "" {
		b = protowire.AppendTag(b, AllocatorNameField, protowire.BytesType)
		b = protowire.AppendString(b, r.allocatorName)
	}
	if r.deferred {
		b = protowire.AppendTag(b, DeferredField, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	return append(b, r.unknown...)
}

// Unmarshal decodes an encoded record. Absent fields take their defaults and
// unrecognized fields are retained as unknown fields. A known field number
// carrying an unexpected wire type is treated as unknown. When a field occurs
// more than once the last occurrence wins.
//
// Any malformed input yields a *DecodeError and a nil record.
func Unmarshal(b []byte) (*RawDeallocation, error) {
	rec := &RawDeallocation{}
	off := 0
	for off < len(b) {
		start := off
		num, typ, n := protowire.ConsumeTag(b[off:])
		if n < 0 {
			return nil, parseError(off, 0, n)
		}
		off += n

		switch {
		case num == StepIDField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b[off:])
			if n < 0 {
				return nil, parseError(off, num, n)
			}
			rec.stepID = int64(v)
			off += n
		case num == OperationField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b[off:])
			if n < 0 {
				return nil, parseError(off, num, n)
			}
			if !utf8.Valid(v) {
				return nil, &DecodeError{Offset: off, Field: num, Err: ErrInvalidUTF8}
			}
			rec.operation = string(v)
			off += n
		case num == AllocationIDField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b[off:])
			if n < 0 {
				return nil, parseError(off, num, n)
			}
			rec.allocationID = int64(v)
			off += n
		case num == AllocatorNameField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b[off:])
			if n < 0 {
				return nil, parseError(off, num, n)
			}
			if !utf8.Valid(v) {
				return nil, &DecodeError{Offset: off, Field: num, Err: ErrInvalidUTF8}
			}
			rec.allocatorName = string(v)
			off += n
		case num == DeferredField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b[off:])
			if n < 0 {
				return nil, parseError(off, num, n)
			}
			rec.deferred = protowire.DecodeBool(v)
			off += n
		default:
			n := protowire.ConsumeFieldValue(num, typ, b[off:])
			if n < 0 {
				return nil, parseError(off, num, n)
			}
			off += n
			rec.unknown = append(rec.unknown, b[start:off]...)
		}
	}
	return rec, nil
}
