package analyzer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"memtrace/pkg/models"
)

// WriteJSONLines writes rows to path as JSON lines, creating parent dirs.
func WriteJSONLines[T any](path string, rows []T) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, item := range rows {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// Report bundles the results of one offline analysis run.
type Report struct {
	Events    int
	Summaries []AllocatorSummary
	Findings  []Finding
}

// Analyze summarizes events, detects double frees and, when rs is set,
// appends threshold-rule findings.
func Analyze(events []*models.DeallocationEvent, rs *RuleSet) Report {
	summaries := SummarizeAllocators(events)
	findings := DetectDoubleFrees(events)
	findings = append(findings, EvaluateRuleSet(summaries, rs)...)
	return Report{Events: len(events), Summaries: summaries, Findings: findings}
}
