package pattern

import (
	"github.com/shopspring/decimal"

	"prefscan/internal/model"
)

// defaultCompressionParams match the production scan: a 3-month window,
// a one-dollar total range ceiling and a ten-cent average daily spread
// floor. These are absolute currency units, not percentages; preferred
// stocks trade near par so dollar thresholds are meaningful.
var defaultCompressionParams = CompressionParams{
	Days:            90,
	MinBars:         15,
	ShortMinRedBars: 12,
	MaxRange:        decimal.NewFromFloat(1.00),
	MinAvgSpread:    decimal.NewFromFloat(0.10),
	ShortMaxWick:    decimal.NewFromFloat(0.051),
}

// CompressionParams configures the range-compression ("spread") filter.
type CompressionParams struct {
	// Days is the lookback bar count, nominally a 3-month window.
	Days int `validate:"gt=0"`

	// MinBars is the minimum cleaned series length; shorter series are
	// skipped silently.
	MinBars int `validate:"gt=0"`

	// ShortMinRedBars is the red-bar count required for the "Short"
	// sub-pattern.
	ShortMinRedBars int `validate:"gt=0"`

	// MaxRange is the inclusive ceiling on max(High) - min(Low).
	MaxRange decimal.Decimal

	// MinAvgSpread is the inclusive floor on mean(High - Low).
	MinAvgSpread decimal.Decimal

	// ShortMaxWick is the inclusive upper-wick ceiling every red bar
	// must satisfy for the "Short" sub-pattern.
	ShortMaxWick decimal.Decimal
}

// Compression is the range-compression filter: it matches securities
// whose entire window trades inside a tight absolute range while still
// showing a workable daily spread.
type Compression struct {
	params CompressionParams
}

// NewCompression creates the filter. A nil params selects the defaults.
func NewCompression(params *CompressionParams) (*Compression, error) {
	if params == nil {
		params = &defaultCompressionParams
	}
	p := *params
	if p.MaxRange.IsZero() {
		p.MaxRange = defaultCompressionParams.MaxRange
	}
	if p.MinAvgSpread.IsZero() {
		p.MinAvgSpread = defaultCompressionParams.MinAvgSpread
	}
	if p.ShortMaxWick.IsZero() {
		p.ShortMaxWick = defaultCompressionParams.ShortMaxWick
	}
	if err := checkParams(p); err != nil {
		return nil, err
	}
	return &Compression{params: p}, nil
}

func (c *Compression) Kind() model.ScanKind { return model.SpreadScan }

func (c *Compression) Days() int { return c.params.Days }

// Evaluate implements Evaluator.
//
// Match condition (both bounds inclusive):
//
//	max(High) - min(Low) <= MaxRange  AND  mean(High - Low) >= MinAvgSpread
//
// On match, a secondary "Short" sub-pattern is attached when the window
// holds at least ShortMinRedBars red bars and every red bar's upper
// wick (High - Open) stays within ShortMaxWick. The primary match is
// emitted either way.
func (c *Compression) Evaluate(sec Security, series model.OHLCSeries) []model.PatternMatch {
	window := series.Clean().Tail(c.params.Days)
	if len(window) < c.params.MinBars {
		return nil
	}

	spreadSum := decimal.Zero
	for _, b := range window {
		spreadSum = spreadSum.Add(b.High.Sub(b.Low))
	}
	avgSpread := spreadSum.Div(decimal.NewFromInt(int64(len(window))))

	high := window.HighestHigh()
	low := window.LowestLow()
	totalRange := high.Sub(low)

	if totalRange.GreaterThan(c.params.MaxRange) || avgSpread.LessThan(c.params.MinAvgSpread) {
		return nil
	}

	return []model.PatternMatch{{
		Ticker:         sec.Ticker,
		ProviderSymbol: sec.ProviderSymbol,
		ChartSymbol:    sec.ChartSymbol,
		Kind:           model.SpreadScan,
		Pattern:        c.shortSubPattern(window),
		Compression: &model.CompressionStats{
			Range:     totalRange.Round(2),
			Min:       low.Round(2),
			Max:       high.Round(2),
			Current:   window.LastClose().Round(2),
			AvgSpread: avgSpread.Round(3),
		},
	}}
}

// shortSubPattern returns "Short" when the red bars in the window meet
// the count and wick constraints, empty otherwise.
func (c *Compression) shortSubPattern(window model.OHLCSeries) string {
	redCount := 0
	for _, b := range window {
		if !b.Red() {
			continue
		}
		if b.High.Sub(b.Open).GreaterThan(c.params.ShortMaxWick) {
			return ""
		}
		redCount++
	}
	if redCount >= c.params.ShortMinRedBars {
		return "Short"
	}
	return ""
}
