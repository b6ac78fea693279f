package models

import (
	"strings"
	"time"
)

// TrackedItem is the configured item identity plus its display unit.
type TrackedItem struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
}

// Key returns the normalised identifier used to look the item up locally.
func (t TrackedItem) Key() string {
	return strings.ToLower(strings.TrimSpace(t.Name))
}

// Item is upstream metadata for a resolved item.
type Item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

type RefreshState string

const (
	StateIdle     RefreshState = "idle"
	StateFetching RefreshState = "fetching"
)

// RefreshStatus describes the scheduler as seen by readers.
type RefreshStatus struct {
	State               RefreshState `json:"state"`
	LastCycleID         string       `json:"last_cycle_id,omitempty"`
	LastAttempt         time.Time    `json:"last_attempt"`
	LastSuccess         time.Time    `json:"last_success"`
	LastError           string       `json:"last_error,omitempty"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	UnknownItem         bool         `json:"unknown_item"`
}

// Snapshot is the composed read model handed to the presentation layer.
type Snapshot struct {
	Item         Item          `json:"item"`
	Unit         string        `json:"unit"`
	Latest       PriceSample   `json:"latest"`
	ChartSeries  []PriceSample `json:"chart_series"`
	DailyChange  *ChangeStat   `json:"daily_change"`
	WeeklyChange *ChangeStat   `json:"weekly_change"`
	Refresh      RefreshStatus `json:"refresh"`
}
