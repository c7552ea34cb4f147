package market

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a source has no data for a symbol
	ErrNotFound = errors.New("symbol not found")

	// ErrEmptySeries is returned when a fetch produced no points in the window
	ErrEmptySeries = errors.New("no data in requested window")
)

// DateLayout is the calendar date format used by configs and CSV files
const DateLayout = "2006-01-02"

// Source loads a price series for one symbol over [start, end]
type Source interface {
	Name() string
	Fetch(ctx context.Context, symbol string, start, end time.Time) (*PriceSeries, error)
}

// normalizeDate truncates a timestamp to its UTC calendar day so that legs
// downloaded separately align on the same index
func normalizeDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// finish filters to the window and rejects empty results
func finish(symbol string, points []Point, start, end time.Time) (*PriceSeries, error) {
	series := NewPriceSeries(symbol, points).Range(start, end)
	if series.Len() == 0 {
		return nil, ErrEmptySeries
	}
	return series, nil
}
