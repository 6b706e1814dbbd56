// Package baseline keeps per-day trade summaries and the statistical
// baselines derived from them, keyed by (strike, type, time-of-day bucket).
package baseline

import (
	"context"
	"errors"
	"time"

	"optionflow/internal/models"
)

// ErrNotFound is returned when no baseline is stored for a key.
var ErrNotFound = errors.New("baseline not found")

// Store persists historical data points and computed baselines.
type Store interface {
	// StoreHistoricalData upserts points keyed by (date, strike, type, bucket).
	StoreHistoricalData(ctx context.Context, points []models.HistoricalDataPoint) error

	// GetHistoricalData returns the points for key dated within the
	// lookbackDays days ending at asOf (inclusive), oldest first.
	GetHistoricalData(ctx context.Context, key models.BaselineKey, lookbackDays int, asOf time.Time) ([]models.HistoricalDataPoint, error)

	StoreBaselineMetrics(ctx context.Context, m models.BaselineMetrics) error

	// GetBaselineMetrics returns ErrNotFound when no baseline exists.
	GetBaselineMetrics(ctx context.Context, key models.BaselineKey) (*models.BaselineMetrics, error)

	Close() error
}

// lookbackRange returns the inclusive [from, to] date strings of a trailing
// window of days ending at asOf.
func lookbackRange(lookbackDays int, asOf time.Time) (string, string) {
	if lookbackDays < 1 {
		lookbackDays = 1
	}
	from := asOf.AddDate(0, 0, -(lookbackDays - 1))
	return from.Format(models.DateLayout), asOf.Format(models.DateLayout)
}
