package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"
)

// MockSource provides deterministic simulated market data for dry runs and
// tests. Series are generated from a per-symbol seed so repeated calls for
// the same symbol return identical data. Errors and fixed series can be
// scripted per symbol.
type MockSource struct {
	mu      sync.RWMutex
	series  map[string]PriceSeries
	quotes  map[string]*Quote
	errs    map[string][]error // popped front-first on each call
	history int                // calls to GetHistory, for assertions
}

// NewMockSource creates an empty mock source.
func NewMockSource() *MockSource {
	return &MockSource{
		series: make(map[string]PriceSeries),
		quotes: make(map[string]*Quote),
		errs:   make(map[string][]error),
	}
}

// SetSeries fixes the series returned for a symbol.
func (m *MockSource) SetSeries(symbol string, series PriceSeries) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[symbol] = series
}

// SetQuote fixes the quote returned for a symbol.
func (m *MockSource) SetQuote(symbol string, q *Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[symbol] = q
}

// FailWith queues errors for a symbol; each call consumes one until the
// queue empties, after which normal data is served again.
func (m *MockSource) FailWith(symbol string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[symbol] = append(m.errs[symbol], errs...)
}

// HistoryCalls returns how many GetHistory calls the mock has served.
func (m *MockSource) HistoryCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history
}

func (m *MockSource) popErr(symbol string) error {
	if queue := m.errs[symbol]; len(queue) > 0 {
		err := queue[0]
		m.errs[symbol] = queue[1:]
		return err
	}
	return nil
}

// GetHistory returns the scripted or generated series for a symbol.
func (m *MockSource) GetHistory(ctx context.Context, symbol string, period Period) (PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.history++

	if err := m.popErr(symbol); err != nil {
		return nil, err
	}
	if s, ok := m.series[symbol]; ok {
		return s, nil
	}

	s := GenerateSeries(symbol, period.Days())
	m.series[symbol] = s
	return s, nil
}

// GetLatestQuote returns the scripted or generated quote for a symbol.
func (m *MockSource) GetLatestQuote(ctx context.Context, symbol string) (*Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.popErr(symbol); err != nil {
		return nil, err
	}
	if q, ok := m.quotes[symbol]; ok {
		return q, nil
	}

	s, ok := m.series[symbol]
	if !ok {
		s = GenerateSeries(symbol, 93)
		m.series[symbol] = s
	}
	last := s[len(s)-1]
	prev := s[len(s)-2]
	return &Quote{
		Symbol:        symbol,
		Price:         last.Close,
		PreviousClose: prev.Close,
		ChangePercent: (last.Close - prev.Close) / prev.Close * 100,
		Volume:        last.Volume,
		Timestamp:     last.Timestamp,
	}, nil
}

// GenerateSeries builds a deterministic random-walk daily series for a symbol.
// The walk is seeded from the symbol name so runs are reproducible.
func GenerateSeries(symbol string, days int) PriceSeries {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	base := 10.0 + rng.Float64()*90.0
	price := base
	start := time.Now().UTC().AddDate(0, 0, -days)

	points := make([]PricePoint, 0, days)
	for d := 0; d < days; d++ {
		day := start.AddDate(0, 0, d)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		drift := math.Sin(float64(d)/12.0) * 0.002
		change := drift + (rng.Float64()-0.5)*0.02
		open := price
		price = price * (1 + change)
		high := math.Max(open, price) * (1 + rng.Float64()*0.005)
		low := math.Min(open, price) * (1 - rng.Float64()*0.005)
		points = append(points, PricePoint{
			Timestamp: day,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    500_000 + rng.Float64()*2_000_000,
		})
	}
	return Normalize(points)
}
