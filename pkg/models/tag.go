package models

// RuleTag represents a rule match annotation.
type RuleTag struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Severity string `json:"severity,omitempty"`
	Category string `json:"category,omitempty"`
}
