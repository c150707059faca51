package pattern

import (
	"time"

	"github.com/shopspring/decimal"

	"prefscan/internal/model"
)

// testSecurity is the security used across evaluator tests.
var testSecurity = Security{
	Ticker:         "ABR-D",
	ProviderSymbol: "ABR-PD",
	ChartSymbol:    "ABR/PD",
}

// day returns a deterministic trading date for bar index i.
func day(i int) time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

// bar builds one daily bar from float prices.
func bar(i int, open, high, low, closePx float64) model.OHLCBar {
	return model.OHLCBar{
		Date:   day(i),
		Open:   decimal.NewFromFloat(open),
		High:   decimal.NewFromFloat(high),
		Low:    decimal.NewFromFloat(low),
		Close:  decimal.NewFromFloat(closePx),
		Volume: decimal.NewFromInt(10_000),
	}
}

// flatSeries builds n identical bars.
func flatSeries(n int, open, high, low, closePx float64) model.OHLCSeries {
	series := make(model.OHLCSeries, 0, n)
	for i := 0; i < n; i++ {
		series = append(series, bar(i, open, high, low, closePx))
	}
	return series
}

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }
