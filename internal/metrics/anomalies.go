package metrics

import (
	"math"

	"optionflow/internal/models"
)

// AnomalyConfig contains configuration for anomaly detection.
type AnomalyConfig struct {
	ZThreshold         float64 // |z| above which a z-score contributes to the score
	ExtremeZThreshold  float64 // |z| above which trade size is unusual
	HighVolumeScore    float64 // contribution of HIGH_VOLUME
	ExtremeVolumeScore float64 // contribution of EXTREME_VOLUME
}

// DefaultAnomalyConfig returns default configuration.
func DefaultAnomalyConfig() *AnomalyConfig {
	return &AnomalyConfig{
		ZThreshold:         2.0,
		ExtremeZThreshold:  3.0,
		HighVolumeScore:    2.0,
		ExtremeVolumeScore: 3.0,
	}
}

// AnomalyDetector compares finalized windows against their baseline. It
// holds no mutable state and is safe for concurrent use.
type AnomalyDetector struct {
	config *AnomalyConfig
}

// NewAnomalyDetector creates a new anomaly detector.
func NewAnomalyDetector(config *AnomalyConfig) *AnomalyDetector {
	if config == nil {
		config = DefaultAnomalyConfig()
	}
	return &AnomalyDetector{config: config}
}

// Check scores current against baseline. A nil baseline fails open:
// HasBaseline and IsAnomalous are false and BaselineStatus is missing.
func (ad *AnomalyDetector) Check(baseline *models.BaselineMetrics, current models.PressureMetrics) models.AnomalyResult {
	result := models.AnomalyResult{
		BaselineStatus: models.BaselineMissing,
		Flags:          []models.AnomalyFlag{},
	}
	if baseline == nil {
		return result
	}

	result.HasBaseline = true
	result.BaselineStatus = models.BaselineAvailable

	var contributions []float64

	// Volume: extreme is inclusive at mean+3std, high is strictly above mean+2std
	volume := float64(current.TotalVolume)
	switch {
	case volume >= baseline.VolumeThresholdExtreme:
		result.Flags = append(result.Flags, models.FlagExtremeVolume)
		contributions = append(contributions, ad.config.ExtremeVolumeScore)
	case volume > baseline.VolumeThresholdHigh:
		result.Flags = append(result.Flags, models.FlagHighVolume)
		contributions = append(contributions, ad.config.HighVolumeScore)
	}
	if z, ok := ZScore(volume, baseline.VolumeMean, baseline.VolumeStd); ok {
		result.VolumeZ = z
		if math.Abs(z) > ad.config.ZThreshold {
			contributions = append(contributions, math.Abs(z))
		}
	}

	// Pressure
	switch {
	case current.BuyPressureRatio > baseline.PressureThresholdHigh:
		result.Flags = append(result.Flags, models.FlagHighBuyPressure)
	case current.BuyPressureRatio < baseline.PressureThresholdLow:
		result.Flags = append(result.Flags, models.FlagHighSellPressure)
	}
	if z, ok := ZScore(current.BuyPressureRatio, baseline.PressureMean, baseline.PressureStd); ok {
		result.PressureZ = z
		if math.Abs(z) > ad.config.ZThreshold {
			contributions = append(contributions, math.Abs(z))
		}
	}

	// Trade size
	if current.TradeCount() > 0 {
		if z, ok := ZScore(current.AvgTradeSize, baseline.TradeSizeMean, baseline.TradeSizeStd); ok {
			result.TradeSizeZ = z
			if math.Abs(z) > ad.config.ExtremeZThreshold {
				result.Flags = append(result.Flags, models.FlagUnusualTradeSize)
				contributions = append(contributions, math.Abs(z))
			}
		}
	}

	for _, c := range contributions {
		result.AnomalyScore = math.Max(result.AnomalyScore, c)
	}
	result.IsAnomalous = len(result.Flags) > 0

	return result
}
