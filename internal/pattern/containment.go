package pattern

import (
	"github.com/shopspring/decimal"

	"prefscan/internal/model"
)

// defaultContainmentParams: 90-day lookback, one-dollar point ceiling,
// 5% percent ceiling, both filters enabled, ten-cent zone band.
var defaultContainmentParams = ContainmentParams{
	Days:          90,
	MinBars:       15,
	PointFilter:   true,
	PercentFilter: true,
	MaxPoints:     decimal.NewFromFloat(1.00),
	MaxPercent:    decimal.NewFromFloat(5.0),
	ZoneBand:      decimal.NewFromFloat(0.10),
	Transitions:   true,
}

// ContainmentParams configures the range-containment ("Range AI")
// scanner.
type ContainmentParams struct {
	// Days is the lookback bar count.
	Days int `validate:"gt=0"`

	// MinBars is the minimum cleaned series length; shorter series are
	// skipped silently.
	MinBars int `validate:"gt=0"`

	// PointFilter enables the absolute-dollar range ceiling.
	PointFilter bool

	// PercentFilter enables the range-as-percent-of-low ceiling.
	PercentFilter bool

	// MaxPoints is the inclusive ceiling on max(High) - min(Low),
	// applied when PointFilter is set.
	MaxPoints decimal.Decimal

	// MaxPercent is the inclusive ceiling on the range as a percentage
	// of the period low, applied when PercentFilter is set.
	MaxPercent decimal.Decimal

	// ZoneBand is the price band above the period low (and below the
	// period high) that counts as the low (high) zone for the Buy/Sell
	// signal and the transition statistics.
	ZoneBand decimal.Decimal

	// Transitions enables the historical low-zone/high-zone transition
	// day-count averages.
	Transitions bool
}

// Containment is the range-containment scanner: it matches securities
// whose lookback range stays inside an absolute and/or relative
// ceiling, and optionally classifies where the current price sits
// inside that range.
//
// When both filters are disabled every sufficiently long series
// matches; that mode exists for pure signal/transition surveys.
type Containment struct {
	params ContainmentParams
}

// NewContainment creates the scanner. A nil params selects the defaults.
func NewContainment(params *ContainmentParams) (*Containment, error) {
	if params == nil {
		params = &defaultContainmentParams
	}
	p := *params
	if p.MaxPoints.IsZero() {
		p.MaxPoints = defaultContainmentParams.MaxPoints
	}
	if p.MaxPercent.IsZero() {
		p.MaxPercent = defaultContainmentParams.MaxPercent
	}
	if p.ZoneBand.IsZero() {
		p.ZoneBand = defaultContainmentParams.ZoneBand
	}
	if err := checkParams(p); err != nil {
		return nil, err
	}
	return &Containment{params: p}, nil
}

func (ct *Containment) Kind() model.ScanKind { return model.RangeAIScan }

func (ct *Containment) Days() int { return ct.params.Days }

// Evaluate implements Evaluator.
func (ct *Containment) Evaluate(sec Security, series model.OHLCSeries) []model.PatternMatch {
	window := series.Clean().Tail(ct.params.Days)
	if len(window) < ct.params.MinBars {
		return nil
	}

	high := window.HighestHigh()
	low := window.LowestLow()
	pointRange := high.Sub(low)

	percentRange := decimal.Zero
	if low.GreaterThan(decimal.Zero) {
		percentRange = pointRange.Div(low).Mul(decimal.NewFromInt(100))
	}

	if ct.params.PointFilter && pointRange.GreaterThan(ct.params.MaxPoints) {
		return nil
	}
	if ct.params.PercentFilter && percentRange.GreaterThan(ct.params.MaxPercent) {
		return nil
	}

	stats := &model.ContainmentStats{
		PointRange:   pointRange.Round(2),
		PercentRange: percentRange.Round(2),
		Signal:       ct.signal(window.LastClose(), low, high),
	}
	if ct.params.Transitions {
		stats.AvgLowToHigh, stats.AvgHighToLow = ct.transitionAverages(window, low, high)
	}

	return []model.PatternMatch{{
		Ticker:         sec.Ticker,
		ProviderSymbol: sec.ProviderSymbol,
		ChartSymbol:    sec.ChartSymbol,
		Kind:           model.RangeAIScan,
		Containment:    stats,
	}}
}

// zone classifies a closing price against the period extremes:
// "low" within ZoneBand of the period low, "high" within ZoneBand of
// the period high, "mid" otherwise. A degenerate range can satisfy
// both; low wins.
func (ct *Containment) zone(close, low, high decimal.Decimal) string {
	switch {
	case close.LessThanOrEqual(low.Add(ct.params.ZoneBand)):
		return "low"
	case close.GreaterThanOrEqual(high.Sub(ct.params.ZoneBand)):
		return "high"
	default:
		return "mid"
	}
}

// signal maps the current close's zone to a Buy/Sell/Neutral label.
func (ct *Containment) signal(close, low, high decimal.Decimal) string {
	switch ct.zone(close, low, high) {
	case "low":
		return "Buy"
	case "high":
		return "Sell"
	default:
		return "Neutral"
	}
}

// transitionAverages walks the window sequentially tracking zone-state
// changes and returns the mean calendar-day duration of low-to-high and
// high-to-low transitions. A transition is recorded only on state
// change; duration is measured between zone entries. Zero means no
// transition of that direction was observed.
func (ct *Containment) transitionAverages(window model.OHLCSeries, low, high decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	var (
		lastExtreme  string
		extremeEntry = window[0].Date
		state        string

		lowToHighSum, highToLowSum decimal.Decimal
		lowToHighN, highToLowN     int64
	)

	for _, b := range window {
		z := ct.zone(b.Close, low, high)
		if z == state {
			continue
		}
		state = z
		if z == "mid" {
			continue
		}

		days := decimal.NewFromInt(int64(b.Date.Sub(extremeEntry).Hours() / 24))
		switch {
		case z == "high" && lastExtreme == "low":
			lowToHighSum = lowToHighSum.Add(days)
			lowToHighN++
		case z == "low" && lastExtreme == "high":
			highToLowSum = highToLowSum.Add(days)
			highToLowN++
		}
		lastExtreme = z
		extremeEntry = b.Date
	}

	avgLowToHigh, avgHighToLow := decimal.Zero, decimal.Zero
	if lowToHighN > 0 {
		avgLowToHigh = lowToHighSum.Div(decimal.NewFromInt(lowToHighN)).Round(1)
	}
	if highToLowN > 0 {
		avgHighToLow = highToLowSum.Div(decimal.NewFromInt(highToLowN)).Round(1)
	}
	return avgLowToHigh, avgHighToLow
}
