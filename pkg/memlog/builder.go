package memlog

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// Builder assembles a RawDeallocation field by field. A Builder is not safe
// for concurrent use; the records it builds are.
type Builder struct {
	rec RawDeallocation
}

// NewBuilder returns a builder with every field at its default.
func NewBuilder() *Builder {
	return &Builder{}
}

// SetStepID sets the process-unique step id.
func (b *Builder) SetStepID(v int64) *Builder {
	b.rec.stepID = v
	return b
}

// SetOperation sets the operation name. Invalid UTF-8 sequences are replaced
// with U+FFFD.
func (b *Builder) SetOperation(v string) *Builder {
	b.rec.operation = validUTF8(v)
	return b
}

// SetAllocationID sets the id of the buffer being deallocated.
func (b *Builder) SetAllocationID(v int64) *Builder {
	b.rec.allocationID = v
	return b
}

// SetAllocatorName sets the allocator name. Invalid UTF-8 sequences are
// replaced with U+FFFD.
func (b *Builder) SetAllocatorName(v string) *Builder {
	b.rec.allocatorName = validUTF8(v)
	return b
}

// SetDeferred marks the deallocation as queued for later completion.
func (b *Builder) SetDeferred(v bool) *Builder {
	b.rec.deferred = v
	return b
}

// Clear resets every field, unknown fields included.
func (b *Builder) Clear() *Builder {
	b.rec = RawDeallocation{}
	return b
}

// Build returns a new record holding the current values. The builder stays
// usable and later changes do not affect records already built.
func (b *Builder) Build() *RawDeallocation {
	rec := b.rec
	rec.unknown = bytes.Clone(b.rec.unknown)
	return &rec
}

func validUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, string(utf8.RuneError))
}
