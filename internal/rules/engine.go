package rules

import "memtrace/pkg/models"

// Engine applies rules to deallocation events.
type Engine interface {
	Apply(event *models.DeallocationEvent) []models.RuleTag
}

// NoopEngine returns no tags.
type NoopEngine struct{}

// Apply returns an empty tag list.
func (n *NoopEngine) Apply(event *models.DeallocationEvent) []models.RuleTag {
	return nil
}
