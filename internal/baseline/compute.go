package baseline

import (
	"math"
	"time"

	"optionflow/internal/metrics"
	"optionflow/internal/models"
)

// Pressure thresholds never leave [pressureFloor, pressureCeiling].
const (
	pressureCeiling = 0.95
	pressureFloor   = 0.05
)

// ComputeBaseline derives the baseline for key from its historical points,
// one per finalized window. It returns false when the points span fewer than
// minSamples trading days.
func ComputeBaseline(key models.BaselineKey, points []models.HistoricalDataPoint, lookbackDays, minSamples int, now time.Time) (*models.BaselineMetrics, bool) {
	if len(points) == 0 || tradingDays(points) < minSamples {
		return nil, false
	}

	volumes := make([]float64, len(points))
	pressures := make([]float64, len(points))
	sizes := make([]float64, len(points))
	var largeRatios []float64

	for i, p := range points {
		volumes[i] = float64(p.TotalVolume)
		pressures[i] = p.BuyPressureRatio
		sizes[i] = p.AvgTradeSize
		if p.TradeCount > 0 {
			largeRatios = append(largeRatios, float64(p.LargeTradeCount)/float64(p.TradeCount))
		}
	}

	b := &models.BaselineMetrics{
		Key:          key,
		LookbackDays: lookbackDays,
		SampleCount:  len(points),

		VolumeMean: metrics.Mean(volumes),
		VolumeStd:  metrics.StdDev(volumes),
		VolumeP25:  metrics.Percentile(volumes, 25),
		VolumeP50:  metrics.Percentile(volumes, 50),
		VolumeP75:  metrics.Percentile(volumes, 75),
		VolumeP95:  metrics.Percentile(volumes, 95),

		PressureMean: metrics.Mean(pressures),
		PressureStd:  metrics.StdDev(pressures),
		PressureP25:  metrics.Percentile(pressures, 25),
		PressureP50:  metrics.Percentile(pressures, 50),
		PressureP75:  metrics.Percentile(pressures, 75),
		PressureP95:  metrics.Percentile(pressures, 95),

		TradeSizeMean:       metrics.Mean(sizes),
		TradeSizeStd:        metrics.StdDev(sizes),
		LargeTradeRatioMean: metrics.Mean(largeRatios),

		ComputedAt: now,
	}

	b.VolumeThresholdHigh = b.VolumeMean + 2*b.VolumeStd
	b.VolumeThresholdExtreme = b.VolumeMean + 3*b.VolumeStd
	b.PressureThresholdHigh = math.Min(b.PressureMean+2*b.PressureStd, pressureCeiling)
	b.PressureThresholdLow = math.Max(b.PressureMean-2*b.PressureStd, pressureFloor)

	return b, true
}

func tradingDays(points []models.HistoricalDataPoint) int {
	days := make(map[string]struct{}, len(points))
	for _, p := range points {
		days[p.Date] = struct{}{}
	}
	return len(days)
}
