// Package dashboard composes the read model shown to users from stored
// history and scheduler status. It never contacts upstream.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/rewired-gh/runesync/internal/change"
	"github.com/rewired-gh/runesync/internal/models"
)

// HistoryReader is the read side of the history store.
type HistoryReader interface {
	ItemByAlias(ctx context.Context, alias string) (*models.Item, error)
	ReadWindow(ctx context.Context, itemID string, window time.Duration) ([]models.PriceSample, error)
}

// StatusSource reports the refresh scheduler's state.
type StatusSource interface {
	Status() models.RefreshStatus
}

// Service answers snapshot queries.
type Service struct {
	history     HistoryReader
	status      StatusSource
	chartWindow time.Duration
}

// NewService creates a Service. chartWindow is the span of the chart series;
// it is raised to one week so the weekly change can always be computed from
// the same read.
func NewService(history HistoryReader, status StatusSource, chartWindow time.Duration) *Service {
	return &Service{history: history, status: status, chartWindow: chartWindow}
}

// GetSnapshot returns the latest price, the chart series, and the daily and
// weekly change for item, all as of the same instant. It fails with
// models.ErrItemNotFound when the item is unknown upstream and with
// models.ErrNoData before the first successful refresh.
func (s *Service) GetSnapshot(ctx context.Context, item models.TrackedItem) (*models.Snapshot, error) {
	var status models.RefreshStatus
	if s.status != nil {
		status = s.status.Status()
	}
	if status.UnknownItem {
		return nil, fmt.Errorf("%w: %q", models.ErrItemNotFound, item.Name)
	}

	resolved, err := s.history.ItemByAlias(ctx, item.Key())
	if err != nil {
		return nil, fmt.Errorf("failed to look up item: %w", err)
	}
	if resolved == nil {
		return nil, models.ErrNoData
	}

	window := max(s.chartWindow, change.Week)
	samples, err := s.history.ReadWindow(ctx, resolved.ID, window)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if len(samples) == 0 {
		return nil, models.ErrNoData
	}

	latest := samples[len(samples)-1]
	chartStart := latest.Timestamp.Add(-s.chartWindow)
	series := make([]models.PriceSample, 0, len(samples))
	for _, smp := range samples {
		if !smp.Timestamp.Before(chartStart) {
			series = append(series, smp)
		}
	}

	return &models.Snapshot{
		Item:         *resolved,
		Unit:         item.Unit,
		Latest:       latest,
		ChartSeries:  series,
		DailyChange:  change.Daily(samples),
		WeeklyChange: change.Weekly(samples),
		Refresh:      status,
	}, nil
}
