package models

import (
	"fmt"
	"math"
)

// ValidatePressureMetrics checks the invariants of a finalized window.
func ValidatePressureMetrics(m PressureMetrics) error {
	if m.Type != Call && m.Type != Put {
		return fmt.Errorf("invalid contract type: %q", m.Type)
	}

	if !m.WindowEnd.After(m.WindowStart) {
		return fmt.Errorf("window end %s not after start %s", m.WindowEnd, m.WindowStart)
	}

	if m.BuyVolume < 0 || m.SellVolume < 0 || m.NeutralVolume < 0 {
		return fmt.Errorf("negative volume: buy=%d sell=%d neutral=%d", m.BuyVolume, m.SellVolume, m.NeutralVolume)
	}

	if m.BuyVolume+m.SellVolume+m.NeutralVolume != m.TotalVolume {
		return fmt.Errorf("volume mismatch: %d+%d+%d != %d", m.BuyVolume, m.SellVolume, m.NeutralVolume, m.TotalVolume)
	}

	if m.BuyPressureRatio < 0 || m.BuyPressureRatio > 1 {
		return fmt.Errorf("buy_pressure_ratio must be in [0, 1], got %f", m.BuyPressureRatio)
	}

	if m.PressureScore < -1 || m.PressureScore > 1 {
		return fmt.Errorf("pressure_score must be in [-1, 1], got %f", m.PressureScore)
	}

	if m.NetPressure != m.BuyVolume-m.SellVolume {
		return fmt.Errorf("net_pressure %d != buy - sell", m.NetPressure)
	}

	return nil
}

// ValidateBaseline checks that a baseline's statistics are usable.
func ValidateBaseline(b BaselineMetrics) error {
	if b.SampleCount <= 0 {
		return fmt.Errorf("baseline has no samples")
	}

	for name, v := range map[string]float64{
		"volume_mean":   b.VolumeMean,
		"volume_std":    b.VolumeStd,
		"pressure_mean": b.PressureMean,
		"pressure_std":  b.PressureStd,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not finite", name)
		}
	}

	if b.VolumeStd < 0 || b.PressureStd < 0 || b.TradeSizeStd < 0 {
		return fmt.Errorf("negative standard deviation")
	}

	if b.VolumeThresholdExtreme < b.VolumeThresholdHigh {
		return fmt.Errorf("extreme threshold %f below high threshold %f", b.VolumeThresholdExtreme, b.VolumeThresholdHigh)
	}

	if b.PressureThresholdHigh > 0.95 || b.PressureThresholdLow < 0.05 {
		return fmt.Errorf("pressure thresholds out of clamp range: low=%f high=%f", b.PressureThresholdLow, b.PressureThresholdHigh)
	}

	return nil
}
