package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"memtrace/pkg/models"
)

const deferredGPURule = `title: Deferred GPU deallocation
id: deferred-gpu-free
status: experimental
logsource:
  product: memtrace
  service: allocator
detection:
  selection:
    AllocatorName|startswith: 'gpu_'
    Deferred: 'true'
  condition: selection
level: high
tags:
  - memtrace.lazy_free
`

const hostRule = `title: Sysmon only
id: sysmon-only
logsource:
  product: windows
  service: sysmon
detection:
  selection:
    EventID: '1'
  condition: selection
`

const aggregateRule = `title: Too many frees
id: many-frees
logsource:
  product: memtrace
detection:
  selection:
    Deferred: 'true'
  condition: selection | count() > 10
  timeframe: 1m
`

func writeRules(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
	return dir
}

func TestSigmaEngineLoadStats(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"deferred.yml":  deferredGPURule,
		"sysmon.yaml":   hostRule,
		"aggregate.yml": aggregateRule,
		"broken.yml":    "title: [unterminated",
		"notes.txt":     "ignored",
	})

	engine, stats, err := NewSigmaEngine(dir)
	require.NoError(t, err)
	require.Equal(t, 4, stats.TotalFiles)
	require.Equal(t, 1, stats.Loaded)
	require.Equal(t, 1, stats.SkippedDatasource)
	require.Equal(t, 2, stats.SkippedComplex+stats.SkippedInvalid)
	require.Equal(t, 1, engine.Len())
}

func TestSigmaEngineTagsMatchingEvents(t *testing.T) {
	dir := writeRules(t, map[string]string{"deferred.yml": deferredGPURule})
	engine, _, err := NewSigmaEngine(filepath.Join(dir, "deferred.yml"))
	require.NoError(t, err)

	tags := engine.Apply(&models.DeallocationEvent{AllocatorName: "gpu_bfc", Deferred: true, StepID: 4})
	require.Len(t, tags, 1)
	require.Equal(t, models.RuleTag{
		ID:       "deferred-gpu-free",
		Name:     "Deferred GPU deallocation",
		Severity: "high",
		Category: "lazy-free",
	}, tags[0])

	require.Nil(t, engine.Apply(&models.DeallocationEvent{AllocatorName: "gpu_bfc", Deferred: false}))
	require.Nil(t, engine.Apply(&models.DeallocationEvent{AllocatorName: "cpu", Deferred: true}))
}

func TestNewSigmaEngineRejectsNonYAMLFile(t *testing.T) {
	dir := writeRules(t, map[string]string{"rule.txt": deferredGPURule})
	_, _, err := NewSigmaEngine(filepath.Join(dir, "rule.txt"))
	require.Error(t, err)
}

func TestNoopEngine(t *testing.T) {
	var e Engine = &NoopEngine{}
	require.Nil(t, e.Apply(&models.DeallocationEvent{}))
}
