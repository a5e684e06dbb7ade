package marketdata

import (
	"math"
	"testing"
	"time"
)

func TestPricePointValid(t *testing.T) {
	ts := time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC)
	valid := PricePoint{Timestamp: ts, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1000}
	if !valid.Valid() {
		t.Error("well-formed point reported invalid")
	}

	cases := []struct {
		name  string
		point PricePoint
	}{
		{"zero close", PricePoint{Timestamp: ts, Close: 0, Volume: 100}},
		{"negative close", PricePoint{Timestamp: ts, Close: -5, Volume: 100}},
		{"negative volume", PricePoint{Timestamp: ts, Close: 10, Volume: -1}},
		{"nan close", PricePoint{Timestamp: ts, Close: math.NaN(), Volume: 100}},
		{"inf high", PricePoint{Timestamp: ts, Close: 10, High: math.Inf(1), Volume: 100}},
		{"zero timestamp", PricePoint{Close: 10, Volume: 100}},
	}
	for _, tc := range cases {
		if tc.point.Valid() {
			t.Errorf("%s: point reported valid", tc.name)
		}
	}
}

func TestNormalize(t *testing.T) {
	day1 := time.Date(2025, 3, 10, 16, 30, 0, 0, time.UTC)
	day2 := time.Date(2025, 3, 11, 16, 30, 0, 0, time.UTC)

	points := []PricePoint{
		// Out of order, with an invalid point and a duplicate day.
		{Timestamp: day2, Close: 20, Volume: 100},
		{Timestamp: day1, Close: 10, Volume: 100},
		{Timestamp: day1.Add(time.Hour), Close: 11, Volume: 100}, // same day, last wins
		{Timestamp: day2, Close: math.NaN(), Volume: 100},        // dropped
	}

	series := Normalize(points)
	if len(series) != 2 {
		t.Fatalf("normalized length = %d, want 2", len(series))
	}
	if !series[0].Timestamp.Before(series[1].Timestamp) {
		t.Error("series not sorted ascending")
	}
	if series[0].Close != 11 {
		t.Errorf("duplicate day: close = %f, want last-wins 11", series[0].Close)
	}
	for _, p := range series {
		if h, m, s := p.Timestamp.Clock(); h != 0 || m != 0 || s != 0 {
			t.Errorf("timestamp %v not normalized to midnight", p.Timestamp)
		}
		if p.Timestamp.Location() != time.UTC {
			t.Errorf("timestamp %v not UTC", p.Timestamp)
		}
	}
}

func TestNormalizeAllInvalid(t *testing.T) {
	points := []PricePoint{
		{Close: -1, Volume: 100},
		{Close: 0, Volume: 100},
	}
	if series := Normalize(points); len(series) != 0 {
		t.Errorf("normalized length = %d, want 0", len(series))
	}
}

func TestAvgVolume(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	series := PriceSeries{
		{Timestamp: ts, Close: 10, Volume: 100},
		{Timestamp: ts.AddDate(0, 0, 1), Close: 10, Volume: 200},
		{Timestamp: ts.AddDate(0, 0, 2), Close: 10, Volume: 300},
	}

	if got := series.AvgVolume(2); got != 250 {
		t.Errorf("AvgVolume(2) = %f, want 250", got)
	}
	// Shorter than n: averages what exists.
	if got := series.AvgVolume(10); got != 200 {
		t.Errorf("AvgVolume(10) = %f, want 200", got)
	}
	if got := (PriceSeries{}).AvgVolume(5); got != 0 {
		t.Errorf("AvgVolume on empty series = %f, want 0", got)
	}
}

func TestGenerateSeriesDeterministic(t *testing.T) {
	a := GenerateSeries("BHP.AX", 90)
	b := GenerateSeries("BHP.AX", 90)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Close != b[i].Close {
			t.Fatalf("closes diverge at %d: %f vs %f", i, a[i].Close, b[i].Close)
		}
	}

	other := GenerateSeries("RIO.AX", 90)
	if len(other) > 0 && len(a) > 0 && other[0].Close == a[0].Close {
		t.Error("different symbols produced identical walks")
	}

	for _, p := range a {
		if wd := p.Timestamp.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Errorf("generated bar on weekend %v", p.Timestamp)
		}
		if !p.Valid() {
			t.Errorf("generated invalid bar %+v", p)
		}
	}
}
