package analyzer

import (
	"sort"

	"memtrace/pkg/models"
)

// AllocatorSummary aggregates the deallocations of one allocator.
type AllocatorSummary struct {
	AllocatorName string  `json:"allocator_name"`
	Deallocations int     `json:"deallocations"`
	Deferred      int     `json:"deferred"`
	DeferredRatio float64 `json:"deferred_ratio"`
	Operations    int     `json:"operations"`
	FirstStepID   int64   `json:"first_step_id"`
	LastStepID    int64   `json:"last_step_id"`
	Tagged        int     `json:"tagged"`
}

// SummarizeAllocators groups events by allocator. The result is sorted by
// deallocation count descending, then allocator name.
func SummarizeAllocators(events []*models.DeallocationEvent) []AllocatorSummary {
	byName := make(map[string]*AllocatorSummary)
	ops := make(map[string]map[string]struct{})

	for _, event := range events {
		if event == nil {
			continue
		}
		name := event.Allocator()
		s := byName[name]
		if s == nil {
			s = &AllocatorSummary{
				AllocatorName: name,
				FirstStepID:   event.StepID,
				LastStepID:    event.StepID,
			}
			byName[name] = s
			ops[name] = make(map[string]struct{})
		}
		s.Deallocations++
		if event.Deferred {
			s.Deferred++
		}
		if len(event.Tags) > 0 {
			s.Tagged++
		}
		if event.Operation != "" {
			ops[name][event.Operation] = struct{}{}
		}
		if event.StepID < s.FirstStepID {
			s.FirstStepID = event.StepID
		}
		if event.StepID > s.LastStepID {
			s.LastStepID = event.StepID
		}
	}

	out := make([]AllocatorSummary, 0, len(byName))
	for name, s := range byName {
		s.Operations = len(ops[name])
		s.DeferredRatio = float64(s.Deferred) / float64(s.Deallocations)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Deallocations != out[j].Deallocations {
			return out[i].Deallocations > out[j].Deallocations
		}
		return out[i].AllocatorName < out[j].AllocatorName
	})
	return out
}
