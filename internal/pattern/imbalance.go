package pattern

import (
	"github.com/shopspring/decimal"

	"prefscan/internal/model"
)

// defaultImbalanceParams match the production scan: a 20-bar lookback,
// twelve qualifying bars on either side, and a five-cent wick tolerance.
var defaultImbalanceParams = ImbalanceParams{
	Days:         20,
	MinBars:      15,
	MinGreenBars: 12,
	MinRedBars:   12,
	LongMaxWick:  decimal.NewFromFloat(0.05),
	ShortMaxWick: decimal.NewFromFloat(0.05),
}

// ImbalanceParams configures the wick-imbalance scanner. Green and red
// sides carry independent thresholds so scans can be tuned per side.
type ImbalanceParams struct {
	// Days is the lookback bar count.
	Days int `validate:"gt=0"`

	// MinBars is the minimum cleaned series length before slicing;
	// shorter series are skipped silently.
	MinBars int `validate:"gt=0"`

	// MinGreenBars is the qualifying green-bar count for a "Long" match.
	MinGreenBars int `validate:"gt=0"`

	// MinRedBars is the qualifying red-bar count for a "Short" match.
	MinRedBars int `validate:"gt=0"`

	// LongMaxWick is the inclusive lower-wick ceiling (Open - Low) for
	// a green bar to qualify.
	LongMaxWick decimal.Decimal

	// ShortMaxWick is the inclusive upper-wick ceiling (High - Open)
	// for a red bar to qualify.
	ShortMaxWick decimal.Decimal
}

// Imbalance is the wick-imbalance scanner: it looks for runs of bars
// that open at one extreme and close away from it, leaving almost no
// rejection wick on that side.
//
// A green bar qualifies when it closed above its open with a tiny lower
// wick (the bar opened near its low and ran up). A red bar qualifies
// when it closed below its open with a tiny upper wick. When both sides
// meet their thresholds simultaneously, green is checked first and wins;
// one match is emitted, with both counts reported for context.
type Imbalance struct {
	params ImbalanceParams
}

// NewImbalance creates the scanner. A nil params selects the defaults.
func NewImbalance(params *ImbalanceParams) (*Imbalance, error) {
	if params == nil {
		params = &defaultImbalanceParams
	}
	p := *params
	if p.LongMaxWick.IsZero() {
		p.LongMaxWick = defaultImbalanceParams.LongMaxWick
	}
	if p.ShortMaxWick.IsZero() {
		p.ShortMaxWick = defaultImbalanceParams.ShortMaxWick
	}
	if err := checkParams(p); err != nil {
		return nil, err
	}
	return &Imbalance{params: p}, nil
}

func (im *Imbalance) Kind() model.ScanKind { return model.ImbalanceScan }

func (im *Imbalance) Days() int { return im.params.Days }

// Evaluate implements Evaluator.
func (im *Imbalance) Evaluate(sec Security, series model.OHLCSeries) []model.PatternMatch {
	cleaned := series.Clean()
	if len(cleaned) < im.params.MinBars {
		return nil
	}
	window := cleaned.Tail(im.params.Days)

	greenCount, redCount := 0, 0
	for _, b := range window {
		if b.Green() && b.Open.Sub(b.Low).LessThanOrEqual(im.params.LongMaxWick) {
			greenCount++
		}
		if b.Red() && b.High.Sub(b.Open).LessThanOrEqual(im.params.ShortMaxWick) {
			redCount++
		}
	}

	var label string
	minCount := 0
	maxWick := decimal.Zero
	switch {
	case greenCount >= im.params.MinGreenBars:
		label, minCount, maxWick = "Long", im.params.MinGreenBars, im.params.LongMaxWick
	case redCount >= im.params.MinRedBars:
		label, minCount, maxWick = "Short", im.params.MinRedBars, im.params.ShortMaxWick
	default:
		return nil
	}

	return []model.PatternMatch{{
		Ticker:         sec.Ticker,
		ProviderSymbol: sec.ProviderSymbol,
		ChartSymbol:    sec.ChartSymbol,
		Kind:           model.ImbalanceScan,
		Pattern:        label,
		Imbalance: &model.ImbalanceStats{
			GreenCount: greenCount,
			RedCount:   redCount,
			Days:       im.params.Days,
			MinCount:   minCount,
			MaxWick:    maxWick,
		},
	}}
}
