package analyzer

import (
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleSet defines threshold rules evaluated over allocator summaries.
type RuleSet struct {
	Version  int          `yaml:"version"`
	Defaults RuleDefaults `yaml:"defaults"`
	Rules    []Rule       `yaml:"rules"`
}

// RuleDefaults are fallback options for rules.
type RuleDefaults struct {
	Severity string `yaml:"severity"`
}

// Rule fires for each allocator matching Allocator (a glob, empty for all)
// that meets every non-zero threshold.
type Rule struct {
	ID               string  `yaml:"id"`
	Enabled          *bool   `yaml:"enabled"`
	Allocator        string  `yaml:"allocator"`
	MinDeallocations int     `yaml:"min_deallocations"`
	MinDeferredRatio float64 `yaml:"min_deferred_ratio"`
	Severity         string  `yaml:"severity"`
}

// IsEnabled reports whether the rule should be evaluated. Rules are enabled
// unless set to false.
func (r Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// LoadRuleSet reads threshold rules from a YAML file.
func LoadRuleSet(filePath string) (*RuleSet, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	return ParseRuleSet(data)
}

// ParseRuleSet parses threshold rules and fills defaults.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rule file: %w", err)
	}
	if rs.Defaults.Severity == "" {
		rs.Defaults.Severity = "medium"
	}
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.ID == "" {
			r.ID = fmt.Sprintf("rule-%d", i+1)
		}
		if r.Severity == "" {
			r.Severity = rs.Defaults.Severity
		}
		r.Allocator = strings.TrimSpace(r.Allocator)
		if r.Allocator != "" {
			if _, err := path.Match(r.Allocator, ""); err != nil {
				return nil, fmt.Errorf("rule %s: bad allocator pattern %q: %w", r.ID, r.Allocator, err)
			}
		}
	}
	return &rs, nil
}

// EvaluateRuleSet applies rs to the summaries in order.
func EvaluateRuleSet(summaries []AllocatorSummary, rs *RuleSet) []Finding {
	if rs == nil {
		return nil
	}
	var findings []Finding
	for _, r := range rs.Rules {
		if !r.IsEnabled() {
			continue
		}
		for _, s := range summaries {
			if r.Allocator != "" {
				if ok, _ := path.Match(r.Allocator, s.AllocatorName); !ok {
					continue
				}
			}
			if s.Deallocations < r.MinDeallocations {
				continue
			}
			if s.DeferredRatio < r.MinDeferredRatio {
				continue
			}
			findings = append(findings, Finding{
				RuleID:        r.ID,
				Severity:      r.Severity,
				AllocatorName: s.AllocatorName,
				Message: fmt.Sprintf("%d deallocations, %.0f%% deferred",
					s.Deallocations, s.DeferredRatio*100),
			})
		}
	}
	return findings
}
