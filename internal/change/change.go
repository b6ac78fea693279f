// Package change derives percentage price changes from a price history.
package change

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/runesync/internal/models"
)

const (
	Day  = 24 * time.Hour
	Week = 7 * Day
)

var hundred = decimal.NewFromInt(100)

// Compute returns the change between the latest sample of history and the
// newest sample at or before latest.Timestamp-window. history must be sorted
// by timestamp ascending.
//
// It returns nil when no sample is old enough or when the reference price is
// zero, so that missing history is never reported as a 0% change.
func Compute(history []models.PriceSample, window time.Duration) *models.ChangeStat {
	if len(history) == 0 || window <= 0 {
		return nil
	}
	current := history[len(history)-1]
	cutoff := current.Timestamp.Add(-window)

	// first index with Timestamp > cutoff; the reference sits just before it
	i := sort.Search(len(history), func(i int) bool {
		return history[i].Timestamp.After(cutoff)
	})
	if i == 0 {
		return nil
	}
	ref := history[i-1]
	if ref.Price == 0 {
		return nil
	}

	delta := current.Price - ref.Price
	percent := decimal.NewFromInt(delta).Mul(hundred).Div(decimal.NewFromInt(ref.Price))

	return &models.ChangeStat{
		Window:         window,
		CurrentPrice:   current.Price,
		ReferencePrice: ref.Price,
		ReferenceTime:  ref.Timestamp,
		AbsoluteDelta:  delta,
		PercentDelta:   percent,
	}
}

// Daily is Compute over a 24 hour window.
func Daily(history []models.PriceSample) *models.ChangeStat {
	return Compute(history, Day)
}

// Weekly is Compute over a 7 day window.
func Weekly(history []models.PriceSample) *models.ChangeStat {
	return Compute(history, Week)
}
