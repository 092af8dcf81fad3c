package market

import "math"

// KlineWindow picks the coarsest candle interval that still yields at least two
// samples across periodMinutes, and the number of candles to request.
func KlineWindow(periodMinutes int) (string, int) {
	interval, step := "15m", 15
	switch {
	case periodMinutes <= 60:
		interval, step = "1m", 1
	case periodMinutes <= 240:
		interval, step = "5m", 5
	}
	limit := periodMinutes/step + 1
	if limit < 2 {
		limit = 2
	}
	return interval, limit
}

// PercentChange returns the change from the first to the last point in percent.
// A zero or missing base yields 0.
func PercentChange(points []PricePoint) float64 {
	if len(points) < 2 {
		return 0
	}
	first, last := points[0].Price, points[len(points)-1].Price
	if first == 0 {
		return 0
	}
	return (last - first) / first * 100
}

// RSI computes the relative strength index over closes using Wilder smoothing.
// It needs period+1 closes; ok is false otherwise.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		diff := closes[i] - closes[i-1]
		if diff > 0 {
			gain += diff
		} else {
			loss -= diff
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	for i := period + 1; i < len(closes); i++ {
		diff := closes[i] - closes[i-1]
		up, down := 0.0, 0.0
		if diff > 0 {
			up = diff
		} else {
			down = -diff
		}
		avgGain = (avgGain*float64(period-1) + up) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + down) / float64(period)
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// VolatilityOf derives high, low and (high-low)/low in percent from closes.
func VolatilityOf(closes []float64) (Volatility, bool) {
	if len(closes) == 0 {
		return Volatility{}, false
	}
	high, low := math.Inf(-1), math.Inf(1)
	for _, c := range closes {
		high = math.Max(high, c)
		low = math.Min(low, c)
	}
	v := Volatility{High: high, Low: low}
	if low != 0 {
		v.VolatilityPct = (high - low) / low * 100
	}
	return v, true
}

func closesOf(points []PricePoint) []float64 {
	closes := make([]float64, len(points))
	for i, p := range points {
		closes[i] = p.Price
	}
	return closes
}
