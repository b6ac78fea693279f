// Package models defines the core domain entities: price samples, change
// statistics, tracked items and dashboard snapshots.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample is one observed price for one item at one point in time.
type PriceSample struct {
	ItemID    string    `json:"item_id"`
	Timestamp time.Time `json:"timestamp"`
	Price     int64     `json:"price"`
}

// Validate checks sample field constraints.
func (s *PriceSample) Validate() error {
	if s.ItemID == "" {
		return fmt.Errorf("%w: item ID must not be empty", ErrInvalidSample)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp must be set", ErrInvalidSample)
	}
	if s.Price < 0 {
		return fmt.Errorf("%w: price must not be negative (got %d)", ErrInvalidSample, s.Price)
	}
	return nil
}

// ChangeStat is a derived percentage change over a lookback window.
// It is computed on demand and never persisted.
type ChangeStat struct {
	Window         time.Duration   `json:"window"`
	CurrentPrice   int64           `json:"current_price"`
	ReferencePrice int64           `json:"reference_price"`
	ReferenceTime  time.Time       `json:"reference_time"`
	AbsoluteDelta  int64           `json:"absolute_delta"`
	PercentDelta   decimal.Decimal `json:"percent_delta"`
}

// MarshalJSON encodes Window as a duration string such as "24h".
func (c ChangeStat) MarshalJSON() ([]byte, error) {
	type plain ChangeStat
	return json.Marshal(struct {
		plain
		Window string `json:"window"`
	}{plain(c), formatWindow(c.Window)})
}

func formatWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", d/time.Hour)
	}
	return d.String()
}
