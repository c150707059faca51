// Package model defines core data types for the preferred-stock scanner.
//
// This package contains the fundamental data structures shared by the
// history fetcher, the pattern evaluators and the scan orchestrator:
// daily OHLC bars, bar series, and the match records produced by a scan.
// All price fields use decimal.Decimal for precise financial calculations
// to avoid floating-point precision issues common in financial applications.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScanKind identifies one family of pattern evaluation.
//
// Each kind owns its own scan state, baseline and persisted snapshot;
// scans of different kinds may run concurrently, scans of the same kind
// may not.
type ScanKind int

const (
	// SpreadScan is the range-compression ("spread") filter.
	SpreadScan ScanKind = iota

	// ImbalanceScan is the candle wick-imbalance Long/Short scanner.
	ImbalanceScan

	// RangeAIScan is the range-containment scanner.
	RangeAIScan

	// DividendScan is the per-ticker dividend-recovery analyzer.
	DividendScan
)

// String returns the stable lowercase name used in logs, snapshot file
// names and CLI flags.
func (k ScanKind) String() string {
	switch k {
	case SpreadScan:
		return "spread"
	case ImbalanceScan:
		return "imbalance"
	case RangeAIScan:
		return "rangeai"
	case DividendScan:
		return "dividend"
	default:
		return "unknown"
	}
}

// OHLCBar represents one trading day's aggregated prices for a symbol.
//
// Bars are produced by the history fetcher, dividend/split-adjusted at
// the provider, and consumed immutably by the evaluators. A bar with all
// four prices zero is a provider placeholder (holiday, halted session)
// and is dropped on ingest, never evaluated.
type OHLCBar struct {
	Date   time.Time       // Trading session date (exchange local, truncated to day)
	Open   decimal.Decimal // Opening price
	High   decimal.Decimal // Highest price of the session
	Low    decimal.Decimal // Lowest price of the session
	Close  decimal.Decimal // Closing price
	Volume decimal.Decimal // Shares traded
}

// Empty reports whether the bar carries no price information at all.
func (b OHLCBar) Empty() bool {
	return b.Open.IsZero() && b.High.IsZero() && b.Low.IsZero() && b.Close.IsZero()
}

// Green reports whether the session closed above its open.
func (b OHLCBar) Green() bool { return b.Close.GreaterThan(b.Open) }

// Red reports whether the session closed below its open.
func (b OHLCBar) Red() bool { return b.Close.LessThan(b.Open) }

// OHLCSeries is an ordered, date-ascending sequence of daily bars for
// one symbol. Evaluators receive a cleaned series and must not mutate it.
type OHLCSeries []OHLCBar

// Clean returns the series with fully-empty bars removed. Order is
// preserved; the receiver is not modified.
func (s OHLCSeries) Clean() OHLCSeries {
	out := make(OHLCSeries, 0, len(s))
	for _, b := range s {
		if !b.Empty() {
			out = append(out, b)
		}
	}
	return out
}

// Tail returns the most recent n bars, or the whole series when it is
// shorter than n.
func (s OHLCSeries) Tail(n int) OHLCSeries {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// HighestHigh returns the maximum High across the series.
// The series must be non-empty.
func (s OHLCSeries) HighestHigh() decimal.Decimal {
	max := s[0].High
	for _, b := range s[1:] {
		if b.High.GreaterThan(max) {
			max = b.High
		}
	}
	return max
}

// LowestLow returns the minimum Low across the series.
// The series must be non-empty.
func (s OHLCSeries) LowestLow() decimal.Decimal {
	min := s[0].Low
	for _, b := range s[1:] {
		if b.Low.LessThan(min) {
			min = b.Low
		}
	}
	return min
}

// LastClose returns the most recent closing price.
// The series must be non-empty.
func (s OHLCSeries) LastClose() decimal.Decimal {
	return s[len(s)-1].Close
}

// CompressionStats carries the numeric evidence behind a
// range-compression match. Values are rounded for presentation:
// range/min/max/current to 2 decimal places, the average spread to 3.
type CompressionStats struct {
	Range     decimal.Decimal `json:"spread"`           // max(High) - min(Low) over the window
	Min       decimal.Decimal `json:"min"`              // window low
	Max       decimal.Decimal `json:"max"`              // window high
	Current   decimal.Decimal `json:"current"`          // latest close
	AvgSpread decimal.Decimal `json:"avg_daily_spread"` // mean(High - Low)
}

// ImbalanceStats carries the qualifying-bar counts and the thresholds
// that produced a wick-imbalance match. Echoing the parameters keeps
// results self-describing when scans run with varying configurations.
type ImbalanceStats struct {
	GreenCount int             `json:"green_count"`
	RedCount   int             `json:"red_count"`
	Days       int             `json:"days"`
	MinCount   int             `json:"min_count"`
	MaxWick    decimal.Decimal `json:"max_wick"`
}

// ContainmentStats carries the evidence behind a range-containment
// match, including the optional zone-signal enrichment.
type ContainmentStats struct {
	PointRange   decimal.Decimal `json:"point_range"`
	PercentRange decimal.Decimal `json:"percent_range"`
	Signal       string          `json:"signal,omitempty"`           // Buy / Sell / Neutral
	AvgLowToHigh decimal.Decimal `json:"avg_low_to_high_days"`       // mean calendar days, zero when no transition observed
	AvgHighToLow decimal.Decimal `json:"avg_high_to_low_days"`
}

// PatternMatch is the result unit emitted by an evaluator: one ticker
// that satisfied one pattern definition, together with the numeric
// evidence that triggered it.
//
// A match is never mutated after creation except for the IsNew flag,
// attached by the baseline differ when comparing against the previous
// completed scan.
type PatternMatch struct {
	Ticker         string   `json:"ticker"`          // Caller's spelling (e.g., "ABR-D")
	ProviderSymbol string   `json:"provider_symbol"` // Spelling that actually returned data
	ChartSymbol    string   `json:"chart_symbol"`    // Charting-site spelling
	Kind           ScanKind `json:"-"`
	Pattern        string   `json:"pattern,omitempty"` // Sub-pattern label: "Long", "Short", or empty
	IsNew          bool     `json:"is_new"`

	Compression *CompressionStats `json:"compression,omitempty"`
	Imbalance   *ImbalanceStats   `json:"imbalance,omitempty"`
	Containment *ContainmentStats `json:"containment,omitempty"`
}
