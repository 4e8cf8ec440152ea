package alerts

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"memtrace/pkg/models"
)

func deferredEvents(base time.Time, allocator string, n int) []*models.DeallocationEvent {
	out := make([]*models.DeallocationEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &models.DeallocationEvent{
			Timestamp:     base.Add(time.Duration(i) * time.Second),
			StepID:        int64(i),
			AllocationID:  int64(1000 + i),
			AllocatorName: allocator,
			Operation:     "MatMulGrad",
			Deferred:      true,
		})
	}
	return out
}

func TestScorerAlertsAtThresholdOnce(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewScorer(Config{Window: time.Minute, Threshold: 5, MaxRows: 3, Cooldown: time.Hour})

	alerts := s.AddEvents(deferredEvents(base, "gpu_bfc", 8))
	require.Len(t, alerts, 1)

	a := alerts[0]
	require.Equal(t, "gpu_bfc", a.AllocatorName)
	require.Equal(t, 5, a.Score)
	require.Equal(t, 5, a.Counts.Deferred)
	require.Equal(t, 1, a.Counts.Operations)
	require.Len(t, a.Evidence, 3)
	require.Equal(t, base.Add(4*time.Second), a.WindowEnd)
	_, err := uuid.Parse(a.AlertID)
	require.NoError(t, err)
}

func TestScorerKeepsAllocatorsApart(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewScorer(Config{Window: time.Minute, Threshold: 3, Cooldown: time.Hour})

	events := append(deferredEvents(base, "gpu_bfc", 2), deferredEvents(base, "cpu", 2)...)
	require.Empty(t, s.AddEvents(events))

	alerts := s.AddEvents(deferredEvents(base.Add(10*time.Second), "cpu", 1))
	require.Len(t, alerts, 1)
	require.Equal(t, "cpu", alerts[0].AllocatorName)
}

func TestScorerPrunesOutsideWindow(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewScorer(Config{Window: 10 * time.Second, Threshold: 3, Cooldown: time.Hour})

	require.Empty(t, s.AddEvents(deferredEvents(base, "gpu_bfc", 2)))
	require.Empty(t, s.AddEvents(deferredEvents(base.Add(time.Minute), "gpu_bfc", 2)))
}

func TestScorerCountsRuleTags(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewScorer(Config{Window: time.Minute, Threshold: 7, Cooldown: time.Hour})

	event := &models.DeallocationEvent{
		Timestamp:     base,
		AllocatorName: "gpu_bfc",
		Tags:          []models.RuleTag{{ID: "r1", Severity: "high"}},
	}
	alerts := s.AddEvents([]*models.DeallocationEvent{event})
	require.Len(t, alerts, 1)
	require.Equal(t, 7, alerts[0].Score)
	require.Equal(t, 1, alerts[0].Counts.Tagged)
	require.Equal(t, []models.RuleTag{{ID: "r1", Severity: "high"}}, alerts[0].Tags)
}

func TestScorerIgnoresPlainEvents(t *testing.T) {
	s := NewScorer(Config{Threshold: 1})
	s.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	event := &models.DeallocationEvent{AllocatorName: "cpu"}
	require.Empty(t, s.AddEvents([]*models.DeallocationEvent{event}))
	require.Equal(t, s.now(), event.Timestamp)
}
