package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Trading days 2024-03-01, 2024-03-04, 2024-03-05 at midnight UTC.
const (
	ts1 = 1709251200
	ts2 = 1709510400
	ts3 = 1709596800
)

const chartBody = `{
	"chart": {
		"result": [{
			"timestamp": [%d, %d, %d],
			"indicators": {
				"quote": [{
					"open":   [24.50, null, 24.60],
					"high":   [24.70, null, 24.80],
					"low":    [24.40, null, 24.50],
					"close":  [24.60, null, 24.70],
					"volume": [1000, null, 2000]
				}]%s
			}%s
		}],
		"error": null
	}
}`

func chartServer(t *testing.T, handler http.HandlerFunc) *YahooClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewYahooClient(&YahooConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return client
}

func TestDailyBarsParsesAndDropsNullRows(t *testing.T) {
	client := chartServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/ABR-PD", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.Equal(t, "3mo", r.URL.Query().Get("range"))
		fmt.Fprintf(w, chartBody, ts1, ts2, ts3, "", "")
	})

	bars, err := client.DailyBars(context.Background(), "ABR-PD", Window3Mo, false)
	require.NoError(t, err)

	// The null middle row is dropped; the survivors are date-ordered.
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), bars[0].Date)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), bars[1].Date)
	assert.Equal(t, "24.5", bars[0].Open.String())
	assert.Equal(t, "24.7", bars[0].High.String())
	assert.Equal(t, "24.4", bars[0].Low.String())
	assert.Equal(t, "24.6", bars[0].Close.String())
	assert.Equal(t, "1000", bars[0].Volume.String())
}

func TestDailyBarsAdjustedScalesByAdjCloseRatio(t *testing.T) {
	adjBlock := `,
				"adjclose": [{"adjclose": [12.30, null, 24.70]}]`
	client := chartServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, chartBody, ts1, ts2, ts3, adjBlock, "")
	})

	bars, err := client.DailyBars(context.Background(), "ABR-PD", Window3Mo, true)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	// First bar scaled by 12.30/24.60 = 0.5, last bar unchanged.
	assert.InDelta(t, 12.30, bars[0].Close.InexactFloat64(), 1e-9)
	assert.InDelta(t, 12.25, bars[0].Open.InexactFloat64(), 1e-9)
	assert.InDelta(t, 12.35, bars[0].High.InexactFloat64(), 1e-9)
	assert.InDelta(t, 12.20, bars[0].Low.InexactFloat64(), 1e-9)
	assert.InDelta(t, 24.70, bars[1].Close.InexactFloat64(), 1e-9)
}

func TestDailyBarsUnknownSymbolIsNoData(t *testing.T) {
	client := chartServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
	})

	_, err := client.DailyBars(context.Background(), "NOPE", Window3Mo, false)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestDailyBarsChartErrorIsNoData(t *testing.T) {
	client := chartServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Bad Request","description":"Invalid range"}}}`)
	})

	_, err := client.DailyBars(context.Background(), "ABR-PD", Window3Mo, false)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestDailyBarsServerErrorIsTransient(t *testing.T) {
	client := chartServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.DailyBars(context.Background(), "ABR-PD", Window3Mo, false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoData)
}

func TestDailyBarsAllNullRowsIsNoData(t *testing.T) {
	client := chartServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"chart": {
				"result": [{
					"timestamp": [%d],
					"indicators": {"quote": [{"open": [null], "high": [null], "low": [null], "close": [null], "volume": [null]}]}
				}],
				"error": null
			}
		}`, ts1)
	})

	_, err := client.DailyBars(context.Background(), "ABR-PD", Window3Mo, false)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestDividendsSortedOldestFirst(t *testing.T) {
	events := fmt.Sprintf(`,
			"events": {"dividends": {
				"%d": {"amount": 0.50, "date": %d},
				"%d": {"amount": 0.40, "date": %d}
			}}`, ts3, ts3, ts1, ts1)
	client := chartServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "div", r.URL.Query().Get("events"))
		assert.Equal(t, string(Window10Y), r.URL.Query().Get("range"))
		fmt.Fprintf(w, chartBody, ts1, ts2, ts3, "", events)
	})

	divs, err := client.Dividends(context.Background(), "ABR-PD")
	require.NoError(t, err)
	require.Len(t, divs, 2)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), divs[0].ExDate)
	assert.Equal(t, "0.4", divs[0].Amount.String())
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), divs[1].ExDate)
}

func TestDividendsEmptyEventsIsNoData(t *testing.T) {
	client := chartServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, chartBody, ts1, ts2, ts3, "", "")
	})

	_, err := client.Dividends(context.Background(), "ABR-PD")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestNextExDividend(t *testing.T) {
	client := chartServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v10/finance/quoteSummary/ABR-PD", r.URL.Path)
		fmt.Fprintf(w, `{"quoteSummary":{"result":[{"calendarEvents":{"exDividendDate":{"raw":%d}}}]}}`, ts3)
	})

	when, err := client.NextExDividend(context.Background(), "ABR-PD")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), when)
}

func TestNextExDividendUndeclaredIsNoData(t *testing.T) {
	client := chartServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quoteSummary":{"result":[{"calendarEvents":{}}]}}`)
	})

	_, err := client.NextExDividend(context.Background(), "ABR-PD")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestYahooConfigDefaults(t *testing.T) {
	client, err := NewYahooClient(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultYahooConfig.BaseURL, client.cfg.BaseURL)
	assert.Equal(t, defaultYahooConfig.Timeout, client.cfg.Timeout)

	client, err = NewYahooClient(&YahooConfig{BaseURL: "http://localhost:1"})
	require.NoError(t, err)
	assert.Equal(t, defaultYahooConfig.Timeout, client.cfg.Timeout)
	assert.Equal(t, defaultYahooConfig.UserAgent, client.cfg.UserAgent)
}
