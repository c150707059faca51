package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prefscan/internal/model"
)

// compressionSeries builds 20 bars with a per-bar spread of exactly
// 0.10: nineteen bars at 24.00-24.10 and one excursion bar whose high
// is topHigh, so the total range is exactly topHigh - 24.00.
func compressionSeries(topHigh float64) model.OHLCSeries {
	series := make(model.OHLCSeries, 0, 20)
	for i := 0; i < 19; i++ {
		series = append(series, bar(i, 24.05, 24.10, 24.00, 24.05))
	}
	series = append(series, bar(19, topHigh-0.05, topHigh, topHigh-0.10, topHigh-0.05))
	return series
}

func TestCompressionMatchesAtInclusiveBounds(t *testing.T) {
	ev, err := NewCompression(nil)
	require.NoError(t, err)

	// Total range exactly 1.00, average spread exactly 0.10: both
	// bounds are inclusive, the series must match.
	matches := ev.Evaluate(testSecurity, compressionSeries(25.00))
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, "ABR-D", m.Ticker)
	assert.Equal(t, "ABR-PD", m.ProviderSymbol)
	assert.Equal(t, "ABR/PD", m.ChartSymbol)
	require.NotNil(t, m.Compression)
	assert.True(t, m.Compression.Range.Equal(dec(1.00)), "range %s", m.Compression.Range)
	assert.True(t, m.Compression.Min.Equal(dec(24.00)))
	assert.True(t, m.Compression.Max.Equal(dec(25.00)))
	assert.True(t, m.Compression.AvgSpread.Equal(dec(0.100)))
}

func TestCompressionRejectsRangeJustAboveCeiling(t *testing.T) {
	ev, err := NewCompression(nil)
	require.NoError(t, err)

	matches := ev.Evaluate(testSecurity, compressionSeries(25.0001))
	assert.Empty(t, matches)
}

func TestCompressionRejectsThinSpread(t *testing.T) {
	ev, err := NewCompression(nil)
	require.NoError(t, err)

	// Tight range but per-bar spread 0.09 < 0.10: no match.
	matches := ev.Evaluate(testSecurity, flatSeries(20, 24.05, 24.09, 24.00, 24.05))
	assert.Empty(t, matches)
}

func TestCompressionSkipsShortSeries(t *testing.T) {
	ev, err := NewCompression(nil)
	require.NoError(t, err)

	matches := ev.Evaluate(testSecurity, flatSeries(10, 24.05, 24.15, 24.00, 24.05))
	assert.Empty(t, matches)
}

func TestCompressionScenarioWideSpread(t *testing.T) {
	ev, err := NewCompression(nil)
	require.NoError(t, err)

	// Mean daily spread 0.12, total range 0.80.
	series := make(model.OHLCSeries, 0, 20)
	for i := 0; i < 19; i++ {
		series = append(series, bar(i, 24.06, 24.12, 24.00, 24.06))
	}
	series = append(series, bar(19, 24.74, 24.80, 24.68, 24.74))

	matches := ev.Evaluate(testSecurity, series)
	require.Len(t, matches, 1)

	m := matches[0]
	require.NotNil(t, m.Compression)
	assert.True(t, m.Compression.Range.Equal(dec(0.80)), "range %s", m.Compression.Range)
	assert.True(t, m.Compression.AvgSpread.Equal(dec(0.12)))
	assert.True(t, m.Compression.Current.Equal(dec(24.74)))
}

func TestCompressionShortSubPattern(t *testing.T) {
	ev, err := NewCompression(nil)
	require.NoError(t, err)

	// Twelve red bars with zero upper wick, eight green bars.
	series := make(model.OHLCSeries, 0, 20)
	for i := 0; i < 12; i++ {
		series = append(series, bar(i, 24.10, 24.10, 24.00, 24.00)) // red, wick 0
	}
	for i := 12; i < 20; i++ {
		series = append(series, bar(i, 24.00, 24.10, 24.00, 24.10)) // green
	}

	matches := ev.Evaluate(testSecurity, series)
	require.Len(t, matches, 1)
	assert.Equal(t, "Short", matches[0].Pattern)
}

func TestCompressionShortSubPatternWickViolation(t *testing.T) {
	ev, err := NewCompression(nil)
	require.NoError(t, err)

	// One red bar's upper wick exceeds 0.051: the sub-pattern is
	// dropped but the primary range/spread match still emits.
	series := make(model.OHLCSeries, 0, 20)
	for i := 0; i < 11; i++ {
		series = append(series, bar(i, 24.10, 24.10, 24.00, 24.00))
	}
	series = append(series, bar(11, 24.10, 24.16, 24.00, 24.00)) // red, wick 0.06
	for i := 12; i < 20; i++ {
		series = append(series, bar(i, 24.00, 24.10, 24.00, 24.10))
	}

	matches := ev.Evaluate(testSecurity, series)
	require.Len(t, matches, 1)
	assert.Empty(t, matches[0].Pattern)
}

func TestCompressionParamsValidation(t *testing.T) {
	_, err := NewCompression(&CompressionParams{Days: -1, MinBars: 15, ShortMinRedBars: 12})
	assert.ErrorIs(t, err, ErrInvalidParams)
}
