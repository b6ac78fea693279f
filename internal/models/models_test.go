package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPriceSampleValidate(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name    string
		sample  PriceSample
		wantErr bool
	}{
		{
			name:    "valid sample",
			sample:  PriceSample{ItemID: "20997", Timestamp: now, Price: 1_450_000_000},
			wantErr: false,
		},
		{
			name:    "zero price is valid",
			sample:  PriceSample{ItemID: "20997", Timestamp: now, Price: 0},
			wantErr: false,
		},
		{
			name:    "empty item ID",
			sample:  PriceSample{Timestamp: now, Price: 100},
			wantErr: true,
		},
		{
			name:    "zero timestamp",
			sample:  PriceSample{ItemID: "20997", Price: 100},
			wantErr: true,
		},
		{
			name:    "negative price",
			sample:  PriceSample{ItemID: "20997", Timestamp: now, Price: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sample.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("PriceSample.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSample) {
				t.Errorf("expected ErrInvalidSample, got %v", err)
			}
		})
	}
}

func TestTrackedItemKey(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Twisted bow", "twisted bow"},
		{"  Abyssal whip ", "abyssal whip"},
		{"20997", "20997"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (TrackedItem{Name: tt.name}).Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChangeStatJSONWindow(t *testing.T) {
	tests := []struct {
		window time.Duration
		want   string
	}{
		{24 * time.Hour, `"window":"24h"`},
		{168 * time.Hour, `"window":"168h"`},
		{90 * time.Minute, `"window":"1h30m0s"`},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			stat := &ChangeStat{Window: tt.window, CurrentPrice: 180, ReferencePrice: 150, PercentDelta: decimal.NewFromInt(20)}
			data, err := json.Marshal(stat)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			got := string(data)
			if !strings.Contains(got, tt.want) {
				t.Errorf("json = %s, want it to contain %s", got, tt.want)
			}
			if !strings.Contains(got, `"reference_price":150`) {
				t.Errorf("json = %s, lost the other fields", got)
			}
		})
	}
}
