package marketdata

import (
	"math"
	"sort"
	"time"
)

// PricePoint represents one daily OHLCV bar
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// PriceSeries is an ordered sequence of daily bars for a single symbol,
// ascending by timestamp with no duplicate timestamps. Gaps for
// non-trading days are expected.
type PriceSeries []PricePoint

// Quote represents the latest traded state of a symbol
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previous_close"`
	ChangePercent float64   `json:"change_percent"`
	Volume        float64   `json:"volume"`
	Timestamp     time.Time `json:"timestamp"`
}

// Valid reports whether a point is usable by the pipeline.
// Close must be positive and volume non-negative; non-finite values are rejected.
func (p PricePoint) Valid() bool {
	if p.Close <= 0 || p.Volume < 0 {
		return false
	}
	for _, v := range []float64{p.Open, p.High, p.Low, p.Close, p.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return !p.Timestamp.IsZero()
}

// Normalize drops invalid points, collapses duplicate timestamps (last wins),
// sorts ascending and rewrites every timestamp as UTC-naive midnight so the
// core pipeline never reasons about timezones. Invalid points are dropped,
// never zero-filled.
func Normalize(points []PricePoint) PriceSeries {
	byDay := make(map[time.Time]PricePoint, len(points))
	for _, p := range points {
		if !p.Valid() {
			continue
		}
		t := p.Timestamp.UTC()
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		p.Timestamp = day
		byDay[day] = p
	}

	series := make(PriceSeries, 0, len(byDay))
	for _, p := range byDay {
		series = append(series, p)
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})
	return series
}

// Closes returns the close prices in series order.
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, p := range s {
		closes[i] = p.Close
	}
	return closes
}

// Last returns the most recent point. ok is false for an empty series.
func (s PriceSeries) Last() (PricePoint, bool) {
	if len(s) == 0 {
		return PricePoint{}, false
	}
	return s[len(s)-1], true
}

// AvgVolume returns the average volume over the last n points,
// or over the whole series when it is shorter than n.
func (s PriceSeries) AvgVolume(n int) float64 {
	if len(s) == 0 {
		return 0
	}
	if n > len(s) {
		n = len(s)
	}
	sum := 0.0
	for _, p := range s[len(s)-n:] {
		sum += p.Volume
	}
	return sum / float64(n)
}
