package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const alphaVantageBaseURL = "https://www.alphavantage.co/query"

// AlphaVantageSource fetches market data from the Alpha Vantage REST API.
// The free tier is heavily rate limited (5 req/min); rate-limit responses
// arrive as HTTP 200 with a "Note" payload, which this client maps to
// ErrRateLimited so the fetcher can back off.
type AlphaVantageSource struct {
	apiKey string
	client *resty.Client
}

// NewAlphaVantageSource creates an Alpha Vantage backed source.
func NewAlphaVantageSource(apiKey string) *AlphaVantageSource {
	client := resty.New().
		SetBaseURL(alphaVantageBaseURL).
		SetTimeout(15 * time.Second).
		SetHeader("Accept", "application/json")

	return &AlphaVantageSource{apiKey: apiKey, client: client}
}

type avDailyResponse struct {
	Note         string                       `json:"Note"`
	Information  string                       `json:"Information"`
	ErrorMessage string                       `json:"Error Message"`
	TimeSeries   map[string]map[string]string `json:"Time Series (Daily)"`
}

type avQuoteResponse struct {
	Note         string            `json:"Note"`
	ErrorMessage string            `json:"Error Message"`
	GlobalQuote  map[string]string `json:"Global Quote"`
}

// GetHistory fetches daily bars via TIME_SERIES_DAILY.
func (a *AlphaVantageSource) GetHistory(ctx context.Context, symbol string, period Period) (PriceSeries, error) {
	if err := ValidatePeriod(period); err != nil {
		return nil, err
	}

	outputSize := "compact" // last 100 bars
	if period.Days() > 100 {
		outputSize = "full"
	}

	var body avDailyResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function":   "TIME_SERIES_DAILY",
			"symbol":     symbol,
			"outputsize": outputSize,
			"apikey":     a.apiKey,
		}).
		SetResult(&body).
		Get("")
	if err != nil {
		return nil, fmt.Errorf("alphavantage %s: %v: %w", symbol, err, ErrTransient)
	}
	if err := a.classify(symbol, resp.StatusCode(), body.Note, body.Information, body.ErrorMessage); err != nil {
		return nil, err
	}
	if len(body.TimeSeries) == 0 {
		return nil, fmt.Errorf("alphavantage %s: empty series: %w", symbol, ErrNotFound)
	}

	cutoff := time.Now().AddDate(0, 0, -period.Days())
	points := make([]PricePoint, 0, len(body.TimeSeries))
	for day, fields := range body.TimeSeries {
		ts, err := time.Parse("2006-01-02", day)
		if err != nil || ts.Before(cutoff) {
			continue
		}
		points = append(points, PricePoint{
			Timestamp: ts,
			Open:      parseAVFloat(fields["1. open"]),
			High:      parseAVFloat(fields["2. high"]),
			Low:       parseAVFloat(fields["3. low"]),
			Close:     parseAVFloat(fields["4. close"]),
			Volume:    parseAVFloat(fields["5. volume"]),
		})
	}

	series := Normalize(points)
	if len(series) == 0 {
		return nil, fmt.Errorf("alphavantage %s: no usable bars: %w", symbol, ErrNotFound)
	}
	return series, nil
}

// GetLatestQuote fetches the current quote via GLOBAL_QUOTE.
func (a *AlphaVantageSource) GetLatestQuote(ctx context.Context, symbol string) (*Quote, error) {
	var body avQuoteResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function": "GLOBAL_QUOTE",
			"symbol":   symbol,
			"apikey":   a.apiKey,
		}).
		SetResult(&body).
		Get("")
	if err != nil {
		return nil, fmt.Errorf("alphavantage %s: %v: %w", symbol, err, ErrTransient)
	}
	if err := a.classify(symbol, resp.StatusCode(), body.Note, "", body.ErrorMessage); err != nil {
		return nil, err
	}

	price := parseAVFloat(body.GlobalQuote["05. price"])
	if price <= 0 {
		return nil, fmt.Errorf("alphavantage %s: empty quote: %w", symbol, ErrNotFound)
	}

	changePct := strings.TrimSuffix(body.GlobalQuote["10. change percent"], "%")
	return &Quote{
		Symbol:        symbol,
		Price:         price,
		PreviousClose: parseAVFloat(body.GlobalQuote["08. previous close"]),
		ChangePercent: parseAVFloat(changePct),
		Volume:        parseAVFloat(body.GlobalQuote["06. volume"]),
		Timestamp:     time.Now().UTC(),
	}, nil
}

func (a *AlphaVantageSource) classify(symbol string, status int, note, info, errMsg string) error {
	switch {
	case status == http.StatusTooManyRequests || note != "" || strings.Contains(info, "rate limit"):
		return fmt.Errorf("alphavantage %s: %w", symbol, ErrRateLimited)
	case errMsg != "":
		return fmt.Errorf("alphavantage %s: %s: %w", symbol, errMsg, ErrNotFound)
	case status >= 500:
		return fmt.Errorf("alphavantage %s: http %d: %w", symbol, status, ErrTransient)
	case status != http.StatusOK:
		return fmt.Errorf("alphavantage %s: http %d: %w", symbol, status, ErrNotFound)
	default:
		return nil
	}
}

func parseAVFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
