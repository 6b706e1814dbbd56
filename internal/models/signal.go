package models

import "time"

// Signal is a finalized window enriched with its anomaly check and the
// market-maker participation observed for the same series.
type Signal struct {
	ID                  string                `json:"id"`
	Pressure            PressureMetrics       `json:"pressure"`
	Anomaly             AnomalyResult         `json:"anomaly"`
	TimeBucket          string                `json:"time_bucket"`
	Quality             *MarketQualityMetrics `json:"quality,omitempty"`
	MMParticipationRate float64               `json:"mm_participation_rate"`
	Discounted          bool                  `json:"discounted"` // participation above ceiling
	Suppressed          bool                  `json:"suppressed"` // discounted and not anomalous
	GeneratedAt         time.Time             `json:"generated_at"`
}

// Series returns the (strike, type) key of the signal.
func (s Signal) Series() SeriesKey {
	return s.Pressure.Series()
}
