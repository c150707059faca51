// Package provider implements the market-data clients used by the
// scanner: a daily-bar history client, a dividend-event client with
// scraped fallbacks, and a resolving fetcher that retries transient
// failures and probes alternate symbol spellings.
//
// The upstream provider is an uncontrolled external dependency: empty
// results for unrecognized spellings, transient errors and per-security
// symbol quirks are expected and tolerated, never treated as fatal to a
// batch.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"prefscan/internal/model"
)

// Error definitions shared by the provider clients.
var (
	// ErrInvalidConfig indicates that the provided client config contains invalid values.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoData indicates the provider answered successfully but returned
	// no usable rows for the requested symbol.
	ErrNoData = errors.New("no data returned")
)

// Window names a provider lookback range for daily bars.
type Window string

const (
	Window1Mo Window = "1mo"
	Window3Mo Window = "3mo"
	Window6Mo Window = "6mo"
	Window1Y  Window = "1y"
	Window2Y  Window = "2y"
	Window10Y Window = "10y"
)

// WindowForDays maps a requested day count onto the smallest provider
// window that covers it.
func WindowForDays(days int) Window {
	switch {
	case days <= 30:
		return Window1Mo
	case days <= 90:
		return Window3Mo
	case days <= 180:
		return Window6Mo
	case days <= 365:
		return Window1Y
	default:
		return Window2Y
	}
}

// Dividend is one declared dividend event for a security.
type Dividend struct {
	ExDate time.Time       `json:"ex_date"`
	Amount decimal.Decimal `json:"amount"`
}

// HistoryClient fetches dividend/split-adjusted daily bars for one
// provider symbol over a named lookback window.
type HistoryClient interface {
	// DailyBars returns the date-ascending daily series for symbol.
	// An unrecognized symbol yields ErrNoData, not a transport error.
	DailyBars(ctx context.Context, symbol string, window Window, adjusted bool) (model.OHLCSeries, error)
}

// DividendClient fetches declared dividend events, oldest first.
type DividendClient interface {
	// Dividends returns all declared dividend events known to the
	// source for symbol. A symbol with no events yields ErrNoData.
	Dividends(ctx context.Context, symbol string) ([]Dividend, error)
}
