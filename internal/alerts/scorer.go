package alerts

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"memtrace/pkg/models"
)

// maxWindowEvents caps per-allocator history regardless of window length.
const maxWindowEvents = 100000

// Config controls alert scoring behavior.
type Config struct {
	Window    time.Duration
	Threshold int
	MaxRows   int
	Cooldown  time.Duration
}

// Scorer raises alerts when an allocator accumulates deferred or
// rule-tagged deallocations within a sliding window.
type Scorer struct {
	mu          sync.Mutex
	cfg         Config
	byAllocator map[string]*allocatorState
	now         func() time.Time
}

type allocatorState struct {
	events    []*models.DeallocationEvent
	lastAlert time.Time
}

// NewScorer creates a new scorer.
func NewScorer(cfg Config) *Scorer {
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 100
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 50
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 2 * time.Minute
	}
	return &Scorer{
		cfg:         cfg,
		byAllocator: make(map[string]*allocatorState),
		now:         time.Now,
	}
}

// AddEvents ingests events and returns alerts if triggered.
func (s *Scorer) AddEvents(events []*models.DeallocationEvent) []*models.Alert {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var alertsOut []*models.Alert
	for _, event := range events {
		if event == nil {
			continue
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = s.now()
		}

		allocator := event.Allocator()
		state := s.byAllocator[allocator]
		if state == nil {
			state = &allocatorState{}
			s.byAllocator[allocator] = state
		}
		state.events = append(state.events, event)
		s.prune(state, event.Timestamp)

		if !event.Deferred && len(event.Tags) == 0 {
			continue
		}

		score, counts, tags := s.score(state.events)
		if score < s.cfg.Threshold {
			continue
		}
		if !state.lastAlert.IsZero() && event.Timestamp.Sub(state.lastAlert) < s.cfg.Cooldown {
			continue
		}

		alertsOut = append(alertsOut, &models.Alert{
			AlertID:       uuid.NewString(),
			AllocatorName: allocator,
			Score:         score,
			WindowStart:   event.Timestamp.Add(-s.cfg.Window),
			WindowEnd:     event.Timestamp,
			Tags:          tags,
			Counts:        counts,
			Evidence:      sampleEvidence(state.events, s.cfg.MaxRows),
		})
		state.lastAlert = event.Timestamp
	}

	return alertsOut
}

func (s *Scorer) prune(state *allocatorState, now time.Time) {
	cutoff := now.Add(-s.cfg.Window)
	idx := 0
	for idx < len(state.events) && state.events[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		state.events = state.events[idx:]
	}
	if len(state.events) > maxWindowEvents {
		state.events = state.events[len(state.events)-maxWindowEvents:]
	}
}

func (s *Scorer) score(events []*models.DeallocationEvent) (int, models.AlertCounts, []models.RuleTag) {
	severitySum := 0
	unique := make(map[string]struct{})
	operations := make(map[string]struct{})
	var counts models.AlertCounts
	var tags []models.RuleTag

	for _, event := range events {
		counts.Deallocations++
		if event.Operation != "" {
			operations[event.Operation] = struct{}{}
		}
		if event.Deferred {
			counts.Deferred++
		}
		if len(event.Tags) == 0 {
			continue
		}
		counts.Tagged++
		for _, tag := range event.Tags {
			key := tag.ID
			if key == "" {
				key = tag.Name
			}
			if key != "" {
				if _, seen := unique[key]; !seen {
					tags = append(tags, tag)
				}
				unique[key] = struct{}{}
			}
			severitySum += severityWeight(tag.Severity)
		}
	}
	counts.Operations = len(operations)

	score := counts.Deferred + severitySum + 2*len(unique)
	return score, counts, tags
}

func sampleEvidence(events []*models.DeallocationEvent, maxRows int) []*models.DeallocationEvent {
	if len(events) > maxRows {
		events = events[len(events)-maxRows:]
	}
	out := make([]*models.DeallocationEvent, len(events))
	copy(out, events)
	return out
}

func severityWeight(level string) int {
	switch strings.ToLower(level) {
	case "critical":
		return 7
	case "high":
		return 5
	case "medium":
		return 3
	case "low":
		return 1
	default:
		return 1
	}
}
