package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the layout of HistoricalDataPoint dates.
const DateLayout = "2006-01-02"

// BaselineKey identifies a baseline: a (strike, type) series at one
// time-of-day bucket such as "09:30-10:00".
type BaselineKey struct {
	Series     SeriesKey `json:"series"`
	TimeBucket string    `json:"time_bucket"`
}

// HistoricalDataPoint is one finalized window of a BaselineKey on a trading
// day, so its volume is on the same scale as a live window. Append-only; a
// second write for the same (date, key, window) replaces the first.
type HistoricalDataPoint struct {
	Date             string          `json:"date"` // YYYY-MM-DD in the market timezone
	Strike           decimal.Decimal `json:"strike"`
	Type             ContractType    `json:"contract_type"`
	TimeBucket       string          `json:"time_bucket"`
	Window           string          `json:"window"` // window start HH:MM in the market timezone
	TotalVolume      int64           `json:"total_volume"`
	BuyVolume        int64           `json:"buy_volume"`
	SellVolume       int64           `json:"sell_volume"`
	BuyPressureRatio float64         `json:"buy_pressure_ratio"`
	TradeCount       int             `json:"trade_count"`
	AvgTradeSize     float64         `json:"avg_trade_size"`
	LargeTradeCount  int             `json:"large_trade_count"`
}

// Key returns the baseline key the point contributes to.
func (p HistoricalDataPoint) Key() BaselineKey {
	return BaselineKey{Series: NewSeriesKey(p.Strike, p.Type), TimeBucket: p.TimeBucket}
}

// Day parses Date.
func (p HistoricalDataPoint) Day() (time.Time, error) {
	return time.Parse(DateLayout, p.Date)
}

// BaselineMetrics is the statistical profile of a BaselineKey over the
// trailing lookback window.
type BaselineMetrics struct {
	Key          BaselineKey `json:"key"`
	LookbackDays int         `json:"lookback_days"`
	SampleCount  int         `json:"sample_count"`

	VolumeMean float64 `json:"volume_mean"`
	VolumeStd  float64 `json:"volume_std"`
	VolumeP25  float64 `json:"volume_p25"`
	VolumeP50  float64 `json:"volume_p50"`
	VolumeP75  float64 `json:"volume_p75"`
	VolumeP95  float64 `json:"volume_p95"`

	PressureMean float64 `json:"pressure_mean"`
	PressureStd  float64 `json:"pressure_std"`
	PressureP25  float64 `json:"pressure_p25"`
	PressureP50  float64 `json:"pressure_p50"`
	PressureP75  float64 `json:"pressure_p75"`
	PressureP95  float64 `json:"pressure_p95"`

	TradeSizeMean       float64 `json:"trade_size_mean"`
	TradeSizeStd        float64 `json:"trade_size_std"`
	LargeTradeRatioMean float64 `json:"large_trade_ratio_mean"`

	VolumeThresholdHigh    float64 `json:"volume_threshold_high"`    // mean + 2 std
	VolumeThresholdExtreme float64 `json:"volume_threshold_extreme"` // mean + 3 std
	PressureThresholdHigh  float64 `json:"pressure_threshold_high"`  // <= 0.95
	PressureThresholdLow   float64 `json:"pressure_threshold_low"`   // >= 0.05

	ComputedAt time.Time `json:"computed_at"`
}

// AnomalyFlag names one anomaly condition.
type AnomalyFlag string

const (
	FlagExtremeVolume    AnomalyFlag = "EXTREME_VOLUME"
	FlagHighVolume       AnomalyFlag = "HIGH_VOLUME"
	FlagHighBuyPressure  AnomalyFlag = "HIGH_BUY_PRESSURE"
	FlagHighSellPressure AnomalyFlag = "HIGH_SELL_PRESSURE"
	FlagUnusualTradeSize AnomalyFlag = "UNUSUAL_TRADE_SIZE"
)

// BaselineStatus tells a missing baseline apart from an available one.
type BaselineStatus string

const (
	BaselineAvailable BaselineStatus = "available"
	BaselineMissing   BaselineStatus = "missing"
)

// AnomalyResult is the comparison of a window against its baseline.
type AnomalyResult struct {
	HasBaseline    bool           `json:"has_baseline"`
	BaselineStatus BaselineStatus `json:"baseline_status"`
	IsAnomalous    bool           `json:"is_anomalous"`
	AnomalyScore   float64        `json:"anomaly_score"`
	Flags          []AnomalyFlag  `json:"flags"`
	VolumeZ        float64        `json:"volume_z"`
	PressureZ      float64        `json:"pressure_z"`
	TradeSizeZ     float64        `json:"trade_size_z"`
}

// Has reports whether flag was raised.
func (r AnomalyResult) Has(flag AnomalyFlag) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
