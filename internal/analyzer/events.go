package analyzer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"memtrace/pkg/models"
)

// Finding describes one suspicious pattern in the deallocation stream.
type Finding struct {
	RuleID        string       `json:"rule_id"`
	Severity      string       `json:"severity"`
	AllocatorName string       `json:"allocator_name"`
	AllocationID  int64        `json:"allocation_id,omitempty"`
	Message       string       `json:"message"`
	Occurrences   []Occurrence `json:"occurrences,omitempty"`
}

// Occurrence is a compact view of one deallocation for findings output.
type Occurrence struct {
	TS        time.Time `json:"ts"`
	Source    string    `json:"source,omitempty"`
	StepID    int64     `json:"step_id"`
	Operation string    `json:"operation,omitempty"`
	Deferred  bool      `json:"deferred"`
}

// LoadEventsJSONL reads deallocation events from JSONL. Blank and malformed
// lines are skipped.
func LoadEventsJSONL(path string) ([]*models.DeallocationEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	events := make([]*models.DeallocationEvent, 0, 4096)
	s := bufio.NewScanner(f)
	buf := make([]byte, 0, 1024*1024)
	s.Buffer(buf, 8*1024*1024)

	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		var event models.DeallocationEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		events = append(events, &event)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}
	return events, nil
}

// DetectDoubleFrees reports every (allocator, allocation id) pair that was
// deallocated more than once. Allocation id 0 is the unset default and is
// ignored. Findings are ordered by allocator, then allocation id.
func DetectDoubleFrees(events []*models.DeallocationEvent) []Finding {
	type group struct {
		allocator string
		id        int64
		events    []*models.DeallocationEvent
	}
	seen := make(map[string]*group)
	for _, event := range events {
		if event == nil || event.AllocationID == 0 {
			continue
		}
		k := event.AllocationKey()
		g := seen[k]
		if g == nil {
			g = &group{allocator: event.Allocator(), id: event.AllocationID}
			seen[k] = g
		}
		g.events = append(g.events, event)
	}

	var findings []Finding
	for _, g := range seen {
		if len(g.events) < 2 {
			continue
		}
		occ := make([]Occurrence, 0, len(g.events))
		for _, event := range g.events {
			occ = append(occ, toOccurrence(event))
		}
		sort.SliceStable(occ, func(i, j int) bool {
			if !occ[i].TS.Equal(occ[j].TS) {
				return occ[i].TS.Before(occ[j].TS)
			}
			return occ[i].StepID < occ[j].StepID
		})
		findings = append(findings, Finding{
			RuleID:        "double-free",
			Severity:      "high",
			AllocatorName: g.allocator,
			AllocationID:  g.id,
			Message:       fmt.Sprintf("allocation %d freed %d times by %s", g.id, len(g.events), g.allocator),
			Occurrences:   occ,
		})
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].AllocatorName != findings[j].AllocatorName {
			return findings[i].AllocatorName < findings[j].AllocatorName
		}
		return findings[i].AllocationID < findings[j].AllocationID
	})
	return findings
}

func toOccurrence(event *models.DeallocationEvent) Occurrence {
	return Occurrence{
		TS:        event.Timestamp,
		Source:    event.Source,
		StepID:    event.StepID,
		Operation: event.Operation,
		Deferred:  event.Deferred,
	}
}
