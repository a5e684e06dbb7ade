package scanner

import "time"

// ScanResult is one validated, scored ticker. Tickers that fail fetch or
// validation produce no ScanResult at all: absence means "could not
// validate", never "scored zero".
type ScanResult struct {
	Symbol    string    `json:"symbol"`
	Sector    string    `json:"sector"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"` // 20-day average
	RSI       float64   `json:"rsi"`
	MA20      float64   `json:"ma20"`
	MA50      float64   `json:"ma50"`
	Score     float64   `json:"score"` // composite 0-100
	Timestamp time.Time `json:"timestamp"`
}

// Summary reports scan outcome counts so silent data loss stays observable.
type Summary struct {
	Scanned           int `json:"scanned"`
	Processed         int `json:"processed"`
	SkippedTransient  int `json:"skipped_transient"`
	SkippedValidation int `json:"skipped_validation"`
}
