// Package provider - Yahoo-compatible chart API client.
//
// The client speaks the public v8 chart endpoint: daily OHLCV rows with
// optional dividend events, plus the quoteSummary calendar endpoint for
// the declared next ex-dividend date. Null placeholder rows (holidays,
// halts) are dropped on ingest so evaluators never see empty bars.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"prefscan/internal/model"
)

// defaultYahooConfig provides sensible default configuration values for
// the chart client.
var defaultYahooConfig = YahooConfig{
	BaseURL:   "https://query1.finance.yahoo.com",
	Timeout:   30 * time.Second,
	UserAgent: "Mozilla/5.0",
}

// YahooConfig holds connection parameters for the chart client.
type YahooConfig struct {
	// BaseURL is the HTTP endpoint root for the chart API.
	BaseURL string

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// UserAgent is sent on every request; the public endpoint rejects
	// requests without a browser-like agent.
	UserAgent string
}

// validateYahooConfig ensures required fields are present, applying
// defaults for optional fields when possible.
func validateYahooConfig(cfg *YahooConfig, defaultCfg *YahooConfig) error {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultCfg.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCfg.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultCfg.UserAgent
	}
	return nil
}

// YahooClient implements HistoryClient and DividendClient against the
// public chart API.
type YahooClient struct {
	cfg      YahooConfig
	client   *http.Client
	validate *validator.Validate // Validator instance for response validation
}

// NewYahooClient creates a chart client with the specified
// configuration. A nil cfg selects the defaults.
func NewYahooClient(cfg *YahooConfig) (*YahooClient, error) {
	if cfg == nil {
		cfg = &defaultYahooConfig
	}

	if err := validateYahooConfig(cfg, &defaultYahooConfig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &YahooClient{
		cfg:      *cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		validate: validator.New(),
	}, nil
}

// chartResponse mirrors the v8 chart API payload.
//
// Example (abbreviated):
//
//	{
//		"chart": {
//			"result": [{
//				"timestamp": [1634567890, ...],
//				"events": {"dividends": {"1634567890": {"amount": 0.46875, "date": 1634567890}}},
//				"indicators": {
//					"quote": [{"open": [...], "high": [...], "low": [...], "close": [...], "volume": [...]}],
//					"adjclose": [{"adjclose": [...]}]
//				}
//			}],
//			"error": null
//		}
//	}
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp []int64 `json:"timestamp" validate:"required"`
	Events    struct {
		Dividends map[string]struct {
			Amount float64 `json:"amount"`
			Date   int64   `json:"date"`
		} `json:"dividends"`
	} `json:"events"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote" validate:"required,min=1"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// fetchChart issues one chart request and returns the first result.
func (c *YahooClient) fetchChart(ctx context.Context, symbol string, window Window, withEvents bool) (*chartResult, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%s",
		c.cfg.BaseURL, url.PathEscape(symbol), window)
	if withEvents {
		u += "&events=div"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chart fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("chart read body: %w", err)
	}

	// The API reports unknown symbols as 404 with a JSON error body;
	// treat that as no-data rather than as a transport failure.
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: symbol %s", ErrNoData, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart: status %d", resp.StatusCode)
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("chart decode: %w", err)
	}
	if parsed.Chart.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoData, parsed.Chart.Error.Description)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: symbol %s", ErrNoData, symbol)
	}

	result := &parsed.Chart.Result[0]
	if err := c.validate.Struct(result); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("chart result validation failed")
		return nil, fmt.Errorf("%w: symbol %s", ErrNoData, symbol)
	}

	return result, nil
}

// deref returns the float behind p, or 0 for a null row entry.
func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// DailyBars implements HistoryClient.
//
// When adjusted is true and the provider supplies an adjusted close,
// open/high/low/close are scaled by the adjclose/close ratio so the
// whole bar is dividend/split-adjusted, matching the provider's own
// adjusted view of the series.
func (c *YahooClient) DailyBars(ctx context.Context, symbol string, window Window, adjusted bool) (model.OHLCSeries, error) {
	result, err := c.fetchChart(ctx, symbol, window, false)
	if err != nil {
		return nil, err
	}

	quote := result.Indicators.Quote[0]
	var adjClose []*float64
	if adjusted && len(result.Indicators.AdjClose) > 0 {
		adjClose = result.Indicators.AdjClose[0].AdjClose
	}

	bars := make(model.OHLCSeries, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) {
			break
		}
		o, h, l, cl := deref(at(quote.Open, i)), deref(at(quote.High, i)), deref(at(quote.Low, i)), deref(at(quote.Close, i))
		if o == 0 && h == 0 && l == 0 && cl == 0 {
			continue // null placeholder row
		}

		ratio := 1.0
		if adjClose != nil && cl != 0 {
			if adj := at(adjClose, i); adj != nil && *adj != 0 {
				ratio = *adj / cl
			}
		}

		bars = append(bars, model.OHLCBar{
			Date:   time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Open:   decimal.NewFromFloat(o * ratio),
			High:   decimal.NewFromFloat(h * ratio),
			Low:    decimal.NewFromFloat(l * ratio),
			Close:  decimal.NewFromFloat(cl * ratio),
			Volume: decimal.NewFromFloat(deref(at(quote.Volume, i))),
		})
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: symbol %s", ErrNoData, symbol)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// at returns s[i] when in range, nil otherwise. Quote arrays are
// usually timestamp-aligned but the provider occasionally truncates one.
func at(s []*float64, i int) *float64 {
	if i < 0 || i >= len(s) {
		return nil
	}
	return s[i]
}

// Dividends implements DividendClient using the chart event stream over
// a 10-year window, returned oldest first.
func (c *YahooClient) Dividends(ctx context.Context, symbol string) ([]Dividend, error) {
	result, err := c.fetchChart(ctx, symbol, Window10Y, true)
	if err != nil {
		return nil, err
	}

	events := result.Events.Dividends
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: no dividends for %s", ErrNoData, symbol)
	}

	divs := make([]Dividend, 0, len(events))
	for _, ev := range events {
		if ev.Amount <= 0 || ev.Date <= 0 {
			continue
		}
		divs = append(divs, Dividend{
			ExDate: time.Unix(ev.Date, 0).UTC().Truncate(24 * time.Hour),
			Amount: decimal.NewFromFloat(ev.Amount),
		})
	}
	if len(divs) == 0 {
		return nil, fmt.Errorf("%w: no dividends for %s", ErrNoData, symbol)
	}

	sort.Slice(divs, func(i, j int) bool { return divs[i].ExDate.Before(divs[j].ExDate) })
	return divs, nil
}

// calendarResponse mirrors the quoteSummary calendarEvents payload.
type calendarResponse struct {
	QuoteSummary struct {
		Result []struct {
			CalendarEvents struct {
				ExDividendDate struct {
					Raw int64 `json:"raw"`
				} `json:"exDividendDate"`
			} `json:"calendarEvents"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

// NextExDividend returns the provider's declared next ex-dividend date
// for symbol, or ErrNoData when none is declared.
func (c *YahooClient) NextExDividend(ctx context.Context, symbol string) (time.Time, error) {
	u := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=calendarEvents",
		c.cfg.BaseURL, url.PathEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return time.Time{}, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("%w: calendar status %d", ErrNoData, resp.StatusCode)
	}

	var parsed calendarResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return time.Time{}, fmt.Errorf("calendar decode: %w", err)
	}
	if len(parsed.QuoteSummary.Result) == 0 || parsed.QuoteSummary.Result[0].CalendarEvents.ExDividendDate.Raw == 0 {
		return time.Time{}, fmt.Errorf("%w: no declared ex-date for %s", ErrNoData, symbol)
	}

	raw := parsed.QuoteSummary.Result[0].CalendarEvents.ExDividendDate.Raw
	return time.Unix(raw, 0).UTC().Truncate(24 * time.Hour), nil
}
