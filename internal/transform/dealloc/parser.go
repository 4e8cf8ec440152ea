package dealloc

import (
	"time"

	"memtrace/pkg/memlog"
	"memtrace/pkg/models"
)

// Parse decodes an encoded deallocation record into a pipeline event.
// source names where the payload came from; ts is the ingest time and is
// used as the event timestamp because the record carries none.
func Parse(data []byte, source string, ts time.Time) (*models.DeallocationEvent, error) {
	rec, err := memlog.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	event := FromRecord(rec, source, ts)
	event.SizeBytes = len(data)
	return event, nil
}

// FromRecord converts a decoded record into a pipeline event.
func FromRecord(rec *memlog.RawDeallocation, source string, ts time.Time) *models.DeallocationEvent {
	return &models.DeallocationEvent{
		Timestamp:     ts.UTC(),
		Source:        source,
		StepID:        rec.GetStepID(),
		Operation:     rec.GetOperation(),
		AllocationID:  rec.GetAllocationID(),
		AllocatorName: rec.GetAllocatorName(),
		Deferred:      rec.GetDeferred(),
	}
}
