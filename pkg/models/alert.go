package models

import "time"

// Alert describes deallocation pressure on one allocator within a window.
type Alert struct {
	AlertID       string               `json:"alert_id"`
	AllocatorName string               `json:"allocator_name"`
	Score         int                  `json:"score"`
	WindowStart   time.Time            `json:"window_start"`
	WindowEnd     time.Time            `json:"window_end"`
	Tags          []RuleTag            `json:"tags,omitempty"`
	Counts        AlertCounts          `json:"counts"`
	Evidence      []*DeallocationEvent `json:"evidence,omitempty"`
}

// AlertCounts summarizes signal density.
type AlertCounts struct {
	Deallocations int `json:"deallocations"`
	Deferred      int `json:"deferred"`
	Tagged        int `json:"tagged"`
	Operations    int `json:"operations"`
}
