// Package indicators implements the technical indicators used by the
// scanner and prediction models. All functions guard against short input
// and never return NaN or Infinity: numeric edge cases clamp to a neutral
// default instead of propagating into downstream scoring.
package indicators

import (
	"math"

	"overnight-trading-bot/internal/marketdata"
)

// SMA calculates the simple moving average of the last period closes.
func SMA(series marketdata.PriceSeries, period int) float64 {
	if period <= 0 || len(series) < period {
		return 0
	}
	sum := 0.0
	for _, p := range series[len(series)-period:] {
		sum += p.Close
	}
	return sum / float64(period)
}

// EMA calculates the exponential moving average of the last closes,
// seeded with an SMA over the first period bars.
func EMA(series marketdata.PriceSeries, period int) float64 {
	if period <= 0 || len(series) < period {
		return 0
	}
	ema := SMA(series[:period], period)
	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(series); i++ {
		ema = series[i].Close*multiplier + ema*(1-multiplier)
	}
	return ema
}

// RSI calculates the Relative Strength Index over the given period.
// Divide-by-zero is guarded: zero average loss yields 100 when there were
// gains and neutral 50 for a flat series. Any non-finite intermediate
// clamps to neutral 50.
func RSI(series marketdata.PriceSeries, period int) float64 {
	if period <= 0 || len(series) < period+1 {
		return 50.0
	}

	gains, losses := 0.0, 0.0
	for i := len(series) - period; i < len(series); i++ {
		change := series[i].Close - series[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		if avgGain > 0 {
			return 100.0
		}
		return 50.0
	}

	rsi := 100 - (100 / (1 + avgGain/avgLoss))
	return clampNeutral(rsi, 50.0)
}

// MACDResult holds the MACD line, signal line and histogram.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD calculates MACD over closes with a proper signal line: the signal
// is an EMA of the MACD series rather than a scaled copy of the last value.
func MACD(series marketdata.PriceSeries, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	if len(series) < slowPeriod+signalPeriod {
		return MACDResult{}
	}

	closes := series.Closes()
	fast := emaSeries(closes, fastPeriod)
	slow := emaSeries(closes, slowPeriod)

	macd := make([]float64, 0, len(closes)-slowPeriod+1)
	for i := slowPeriod - 1; i < len(closes); i++ {
		macd = append(macd, fast[i]-slow[i])
	}

	signal := emaSeries(macd, signalPeriod)
	last := len(macd) - 1
	return MACDResult{
		MACD:      clampNeutral(macd[last], 0),
		Signal:    clampNeutral(signal[last], 0),
		Histogram: clampNeutral(macd[last]-signal[last], 0),
	}
}

// Bollinger returns the upper and lower Bollinger bands (middle ± k·stddev).
func Bollinger(series marketdata.PriceSeries, period int, k float64) (upper, middle, lower float64) {
	if period <= 0 || len(series) < period {
		return 0, 0, 0
	}
	middle = SMA(series, period)
	variance := 0.0
	for _, p := range series[len(series)-period:] {
		d := p.Close - middle
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(period))
	return middle + k*sd, middle, middle - k*sd
}

// Return computes the fractional return over the last n bars.
func Return(series marketdata.PriceSeries, n int) float64 {
	if n <= 0 || len(series) < n+1 {
		return 0
	}
	prev := series[len(series)-1-n].Close
	if prev <= 0 {
		return 0
	}
	return clampNeutral((series[len(series)-1].Close-prev)/prev, 0)
}

// ROC computes the n-bar rate of change as a fraction.
func ROC(series marketdata.PriceSeries, n int) float64 {
	return Return(series, n)
}

// LinRegSlope fits a least-squares line to the last n closes and returns
// the slope normalized by the mean price, so it is comparable across
// instruments with different price levels.
func LinRegSlope(series marketdata.PriceSeries, n int) float64 {
	if n < 2 || len(series) < n {
		return 0
	}
	window := series[len(series)-n:]

	var sumX, sumY, sumXY, sumXX float64
	for i, p := range window {
		x := float64(i)
		sumX += x
		sumY += p.Close
		sumXY += x * p.Close
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (fn*sumXY - sumX*sumY) / denom
	mean := sumY / fn
	if mean == 0 {
		return 0
	}
	return clampNeutral(slope/mean, 0)
}

// Volatility returns the standard deviation of daily returns over the
// last n bars, as a fraction.
func Volatility(series marketdata.PriceSeries, n int) float64 {
	if n < 2 || len(series) < n+1 {
		return 0
	}
	window := series[len(series)-n-1:]
	returns := make([]float64, 0, n)
	for i := 1; i < len(window); i++ {
		prev := window[i-1].Close
		if prev <= 0 {
			continue
		}
		returns = append(returns, (window[i].Close-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	return clampNeutral(math.Sqrt(variance/float64(len(returns))), 0)
}

// clampNeutral replaces non-finite values with the given neutral default.
func clampNeutral(v, neutral float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return neutral
	}
	return v
}

// emaSeries returns the running EMA for every index of values; indices
// before period-1 hold the partial SMA seed.
func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || period <= 0 {
		return out
	}
	if period > len(values) {
		period = len(values)
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
		out[i] = sum / float64(i+1)
	}

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*multiplier + out[i-1]*(1-multiplier)
	}
	return out
}
