package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
)

// YahooSource fetches market data from Yahoo Finance. It handles both plain
// US symbols and exchange-suffixed ones (e.g. "BHP.AX").
type YahooSource struct{}

// NewYahooSource creates a Yahoo Finance backed source.
func NewYahooSource() *YahooSource {
	return &YahooSource{}
}

// GetHistory fetches daily bars covering the requested period.
func (y *YahooSource) GetHistory(ctx context.Context, symbol string, period Period) (PriceSeries, error) {
	if err := ValidatePeriod(period); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	end := time.Now()
	start := end.AddDate(0, 0, -period.Days())

	params := &chart.Params{
		Symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	}

	iter := chart.Get(params)
	points := make([]PricePoint, 0, period.Days())
	for iter.Next() {
		bar := iter.Bar()
		points = append(points, PricePoint{
			Timestamp: time.Unix(int64(bar.Timestamp), 0),
			Open:      bar.Open.InexactFloat64(),
			High:      bar.High.InexactFloat64(),
			Low:       bar.Low.InexactFloat64(),
			Close:     bar.Close.InexactFloat64(),
			Volume:    float64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, classifyYahooErr(symbol, err)
	}

	series := Normalize(points)
	if len(series) == 0 {
		return nil, fmt.Errorf("no usable history for %s: %w", symbol, ErrNotFound)
	}
	return series, nil
}

// GetLatestQuote fetches the current quote for a symbol.
func (y *YahooSource) GetLatestQuote(ctx context.Context, symbol string) (*Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q, err := quote.Get(strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil {
		return nil, classifyYahooErr(symbol, err)
	}
	if q == nil || q.RegularMarketPrice <= 0 {
		return nil, fmt.Errorf("empty quote for %s: %w", symbol, ErrNotFound)
	}

	return &Quote{
		Symbol:        symbol,
		Price:         q.RegularMarketPrice,
		PreviousClose: q.RegularMarketPreviousClose,
		ChangePercent: q.RegularMarketChangePercent,
		Volume:        float64(q.RegularMarketVolume),
		Timestamp:     time.Unix(int64(q.RegularMarketTime), 0).UTC(),
	}, nil
}

// classifyYahooErr maps vendor errors onto the source sentinel taxonomy.
// Yahoo does not expose structured error codes through the chart iterator,
// so classification falls back to message inspection.
func classifyYahooErr(symbol string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "rate"):
		return fmt.Errorf("yahoo %s: %w", symbol, ErrRateLimited)
	case strings.Contains(msg, "not found") || strings.Contains(msg, "no data") || strings.Contains(msg, "404"):
		return fmt.Errorf("yahoo %s: %w", symbol, ErrNotFound)
	default:
		return fmt.Errorf("yahoo %s: %v: %w", symbol, err, ErrTransient)
	}
}
