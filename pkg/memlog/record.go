// Package memlog implements the MemoryLogRawDeallocation record used by the
// memory tracing log: an immutable five-field record, a builder for it, and
// its protobuf wire encoding.
//
// The schema lives in log_memory.proto. Field numbers there are permanent;
// readers skip fields they do not know, so writers may add fields without
// breaking older readers.
package memlog

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of MemoryLogRawDeallocation.
const (
	StepIDField        protowire.Number = 1
	OperationField     protowire.Number = 2
	AllocationIDField  protowire.Number = 3
	AllocatorNameField protowire.Number = 4
	DeferredField      protowire.Number = 5
)

// RawDeallocation records one tensor buffer deallocation.
//
// Values are immutable once built or decoded and may be shared between
// goroutines. Unset fields read as their zero value. A nil *RawDeallocation
// reads as the all-defaults record.
type RawDeallocation struct {
	stepID        int64
	operation     string
	allocationID  int64
	allocatorName string
	deferred      bool

	// unknown holds fields this schema version does not recognize, verbatim.
	unknown []byte
}

// GetStepID returns the process-unique step id.
func (r *RawDeallocation) GetStepID() int64 {
	if r == nil {
		return 0
	}
	return r.stepID
}

// GetOperation returns the name of the operation making the deallocation.
func (r *RawDeallocation) GetOperation() string {
	if r == nil {
		return ""
	}
	return r.operation
}

// GetOperationBytes returns the UTF-8 encoding of the operation name. The
// slice is a copy.
func (r *RawDeallocation) GetOperationBytes() []byte {
	return []byte(r.GetOperation())
}

// GetAllocationID returns the id of the tensor buffer being deallocated,
// used to match a corresponding allocation.
func (r *RawDeallocation) GetAllocationID() int64 {
	if r == nil {
		return 0
	}
	return r.allocationID
}

// GetAllocatorName returns the name of the allocator used.
func (r *RawDeallocation) GetAllocatorName() string {
	if r == nil {
		return ""
	}
	return r.allocatorName
}

// GetAllocatorNameBytes returns the UTF-8 encoding of the allocator name. The
// slice is a copy.
func (r *RawDeallocation) GetAllocatorNameBytes() []byte {
	return []byte(r.GetAllocatorName())
}

// GetDeferred reports whether the deallocation is queued and performed
// later, e.g. for GPU lazy freeing of buffers.
func (r *RawDeallocation) GetDeferred() bool {
	if r == nil {
		return false
	}
	return r.deferred
}

// UnknownFields returns the encoded fields that were present on the wire but
// are not part of this schema. The slice is a copy.
func (r *RawDeallocation) UnknownFields() []byte {
	if r == nil || len(r.unknown) == 0 {
		return nil
	}
	return bytes.Clone(r.unknown)
}

// Equal reports whether r and o carry the same known field values.
// Unknown fields are ignored.
func (r *RawDeallocation) Equal(o *RawDeallocation) bool {
	return r.GetStepID() == o.GetStepID() &&
		r.GetOperation() == o.GetOperation() &&
		r.GetAllocationID() == o.GetAllocationID() &&
		r.GetAllocatorName() == o.GetAllocatorName() &&
		r.GetDeferred() == o.GetDeferred()
}

// ToBuilder returns a builder seeded with the values of r, unknown fields
// included.
func (r *RawDeallocation) ToBuilder() *Builder {
	b := NewBuilder()
	if r == nil {
		return b
	}
	b.rec = *r
	b.rec.unknown = bytes.Clone(r.unknown)
	return b
}

// String renders the set fields in protobuf text style.
func (r *RawDeallocation) String() string {
	var sb strings.Builder
	field := func(name, value string) {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(name)
		sb.WriteString(":")
		sb.WriteString(value)
	}
	if v := r.GetStepID(); v != 0 {
		field("step_id", strconv.FormatInt(v, 10))
	}
	if v := r.GetOperation(); v != "" {
		field("operation", strconv.Quote(v))
	}
	if v := r.GetAllocationID(); v != 0 {
		field("allocation_id", strconv.FormatInt(v, 10))
	}
	if v := r.GetAllocatorName(); v != "" {
		field("allocator_name", strconv.Quote(v))
	}
	if r.GetDeferred() {
		field("deferred", "true")
	}
	if r != nil && len(r.unknown) > 0 {
		field("unknown", fmt.Sprintf("%dB", len(r.unknown)))
	}
	return sb.String()
}
