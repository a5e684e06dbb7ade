package marketdata

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors callers classify with errors.Is. ErrRateLimited and
// ErrTransient mean "try again later"; ErrNotFound is permanent.
var (
	ErrRateLimited = errors.New("rate limited by data source")
	ErrTransient   = errors.New("transient data source error")
	ErrNotFound    = errors.New("symbol not found")
)

// IsTransient reports whether an error is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}

// Period is a lookback window for history requests. Period-based requests
// avoid the timezone/clock-skew edge cases of explicit start/end dates.
type Period string

const (
	Period1Mo Period = "1mo"
	Period3Mo Period = "3mo"
	Period6Mo Period = "6mo"
	Period1Y  Period = "1y"
	Period2Y  Period = "2y"
)

// Days returns the approximate calendar-day span of the period.
func (p Period) Days() int {
	switch p {
	case Period1Mo:
		return 31
	case Period3Mo:
		return 93
	case Period6Mo:
		return 186
	case Period1Y:
		return 366
	case Period2Y:
		return 732
	default:
		return 93
	}
}

// Source supplies OHLCV history and latest quotes for a symbol.
// Implementations must return normalized series (see Normalize) and signal
// rate limits via ErrRateLimited so callers can back off.
type Source interface {
	GetHistory(ctx context.Context, symbol string, period Period) (PriceSeries, error)
	GetLatestQuote(ctx context.Context, symbol string) (*Quote, error)
}

// ValidatePeriod rejects unknown period strings before they reach a vendor API.
func ValidatePeriod(p Period) error {
	switch p {
	case Period1Mo, Period3Mo, Period6Mo, Period1Y, Period2Y:
		return nil
	default:
		return fmt.Errorf("unsupported period %q", p)
	}
}
