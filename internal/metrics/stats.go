package metrics

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// StdDev returns the population standard deviation.
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	mean := Mean(data)
	var sq float64
	for _, v := range data {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(data)))
}

// CoefficientOfVariation returns std/mean, or 0 when the mean is not positive.
func CoefficientOfVariation(data []float64) float64 {
	mean := Mean(data)
	if mean <= 0 {
		return 0
	}
	return StdDev(data) / mean
}

// ZScore returns (value-mean)/std and false when std is not positive.
func ZScore(value, mean, std float64) (float64, bool) {
	if std <= 0 {
		return 0, false
	}
	return (value - mean) / std, true
}

// Percentile computes the Nth percentile of data with linear interpolation
// between closest ranks. data is not modified.
func Percentile(data []float64, percentile float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	pos := (percentile / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))

	if lower == upper {
		return sorted[lower]
	}

	weight := pos - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Lag1Autocorrelation returns the lag-1 autocorrelation of data, or 0 when
// there are fewer than three points or no variance.
func Lag1Autocorrelation(data []float64) float64 {
	if len(data) < 3 {
		return 0
	}
	mean := Mean(data)
	var num, den float64
	for i, v := range data {
		d := v - mean
		den += d * d
		if i > 0 {
			num += d * (data[i-1] - mean)
		}
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func roundToDecimal(value float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(value*multiplier) / multiplier
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
