package models

import (
	"strconv"
	"time"
)

// DeallocationEvent is a decoded deallocation record as it flows through the
// pipeline and lands in sinks.
type DeallocationEvent struct {
	Timestamp     time.Time `json:"ts"`
	Source        string    `json:"source,omitempty"`
	StepID        int64     `json:"step_id"`
	Operation     string    `json:"operation,omitempty"`
	AllocationID  int64     `json:"allocation_id"`
	AllocatorName string    `json:"allocator_name,omitempty"`
	Deferred      bool      `json:"deferred"`
	SizeBytes     int       `json:"size_bytes,omitempty"`
	Tags          []RuleTag `json:"tags,omitempty"`
}

// Allocator returns the allocator name, or "unknown" when it is empty.
func (e *DeallocationEvent) Allocator() string {
	if e == nil || e.AllocatorName == "" {
		return "unknown"
	}
	return e.AllocatorName
}

// AllocationKey identifies the buffer being freed within one allocator.
func (e *DeallocationEvent) AllocationKey() string {
	return e.Allocator() + "/" + strconv.FormatInt(e.AllocationID, 10)
}
