// Package dividend implements the dividend-recovery analyzer: for one
// security at a time it measures how quickly price recovers the
// ex-dividend drop, summarizes pre-dividend behavior, and estimates the
// next ex-dividend date.
//
// The analyzer is deliberately failure-proof at its boundary: every
// call produces a well-formed Report, with the Err field set when a
// stage had no data. Batch callers iterate many tickers and must never
// need per-ticker error handling.
package dividend

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"prefscan/internal/model"
	"prefscan/internal/provider"
	"prefscan/internal/symbols"
)

// defaultConfig carries the production tuning. The pre-dividend window
// length and the pump/volume thresholds are empirical; keep them
// configuration, not invariants.
var defaultConfig = Config{
	Lookback:           3,
	RecoveryWindow:     5,
	PreWindowDays:      14,
	VolumeBaselineDays: 120,
	PumpThresholdPct:   decimal.NewFromFloat(1.0),
	VolumeSpikePct:     decimal.NewFromFloat(10.0),
	HistoryWindow:      provider.Window2Y,
}

// Config tunes the analyzer.
type Config struct {
	// Lookback is how many of the most recent dividends to analyze.
	Lookback int `validate:"gt=0"`

	// RecoveryWindow is the trading-day span after the ex-date used for
	// the bounded window-recovery percentage.
	RecoveryWindow int `validate:"gt=0"`

	// PreWindowDays is the pre-dividend lookback in trading days
	// (7 or 14 in practice).
	PreWindowDays int `validate:"gt=0"`

	// VolumeBaselineDays is the trailing span whose average volume the
	// pre-window volume is compared against.
	VolumeBaselineDays int `validate:"gt=0"`

	// PumpThresholdPct flags a pre-dividend pump when the mean close of
	// the window's last 3 days exceeds the first 3 days' by this much.
	PumpThresholdPct decimal.Decimal

	// VolumeSpikePct flags a volume spike when the pre-window average
	// volume exceeds the trailing baseline by this much.
	VolumeSpikePct decimal.Decimal

	// HistoryWindow is the price-history span fetched for the analysis.
	HistoryWindow provider.Window
}

// Recovery describes one dividend event's price recovery.
type Recovery struct {
	ExDate      time.Time       `json:"ex_date"`
	Amount      decimal.Decimal `json:"amount"`
	PreDivClose decimal.Decimal `json:"pre_div_close"`

	// Recovered is true when a later session's High reached
	// PreDivClose. RecoveryDays is calendar days from the ex-date to
	// that session, or to now when never recovered.
	Recovered    bool `json:"recovered"`
	RecoveryDays int  `json:"recovery_days"`

	// CurrentDistance is PreDivClose minus the most recent close, set
	// only while unrecovered.
	CurrentDistance decimal.Decimal `json:"current_distance"`

	// WindowRecoveryPct measures, within the first RecoveryWindow
	// trading days after the ex-date, how far price recovered toward
	// the pre-dividend level relative to the dividend amount. Can
	// exceed 100 or go negative.
	WindowRecoveryPct decimal.Decimal `json:"window_recovery_pct"`

	Pre *PreWindow `json:"pre_window,omitempty"`
}

// PreWindow summarizes the trading days leading into an ex-date.
type PreWindow struct {
	Low  decimal.Decimal `json:"low"`
	High decimal.Decimal `json:"high"`

	// LowOffset/HighOffset are trading-day offsets back from the
	// ex-date: 1 means the last session before the ex-date.
	LowOffset  int `json:"low_offset"`
	HighOffset int `json:"high_offset"`

	DriftDollar decimal.Decimal `json:"drift_dollar"` // last close - first close
	DriftPct    decimal.Decimal `json:"drift_pct"`

	// Pump is set when the mean close of the window's last 3 days is at
	// least PumpThresholdPct above the first 3 days'. PumpStart is the
	// first window index where price rose versus the prior day, -1 when
	// not flagged.
	Pump      bool `json:"pump"`
	PumpStart int  `json:"pump_start"`

	VolumeSpike bool `json:"volume_spike"`
}

// Report is the analyzer's always-well-formed output for one ticker.
type Report struct {
	Ticker         string `json:"ticker"`
	ProviderSymbol string `json:"provider_symbol,omitempty"`
	ChartSymbol    string `json:"chart_symbol,omitempty"`

	// Err is set when a stage had no data; numeric fields are then
	// empty. The record is still valid output.
	Err string `json:"error,omitempty"`

	Recoveries []Recovery `json:"recoveries,omitempty"`

	// NextExDate is the declared or estimated next ex-dividend date.
	NextExDate    *time.Time `json:"next_ex_date,omitempty"`
	NextEstimated bool       `json:"next_estimated"`

	// FrequencyDays is the inferred dividend cadence used when the next
	// ex-date is estimated.
	FrequencyDays int `json:"frequency_days,omitempty"`
}

// NextExSource exposes the provider's declared next ex-dividend date.
type NextExSource interface {
	NextExDividend(ctx context.Context, symbol string) (time.Time, error)
}

// Analyzer wires the history fetcher, the dividend sources and the
// translator into the recovery analysis.
type Analyzer struct {
	fetcher    *provider.Fetcher
	primary    provider.DividendClient
	fallbacks  []provider.DividendClient
	nextEx     NextExSource
	translator *symbols.Translator
	cfg        Config

	// nextOverrides maps tickers to manually maintained next ex-dates,
	// consulted before any provider query.
	nextOverrides map[string]time.Time

	now func() time.Time
}

// NewAnalyzer creates an analyzer. A nil cfg selects the defaults.
// nextEx may be nil; estimation then starts at the frequency heuristic.
func NewAnalyzer(fetcher *provider.Fetcher, primary provider.DividendClient, fallbacks []provider.DividendClient, nextEx NextExSource, translator *symbols.Translator, cfg *Config) *Analyzer {
	if cfg == nil {
		cfg = &defaultConfig
	}
	c := *cfg
	if c.Lookback <= 0 {
		c.Lookback = defaultConfig.Lookback
	}
	if c.RecoveryWindow <= 0 {
		c.RecoveryWindow = defaultConfig.RecoveryWindow
	}
	if c.PreWindowDays <= 0 {
		c.PreWindowDays = defaultConfig.PreWindowDays
	}
	if c.VolumeBaselineDays <= 0 {
		c.VolumeBaselineDays = defaultConfig.VolumeBaselineDays
	}
	if c.PumpThresholdPct.IsZero() {
		c.PumpThresholdPct = defaultConfig.PumpThresholdPct
	}
	if c.VolumeSpikePct.IsZero() {
		c.VolumeSpikePct = defaultConfig.VolumeSpikePct
	}
	if c.HistoryWindow == "" {
		c.HistoryWindow = defaultConfig.HistoryWindow
	}

	return &Analyzer{
		fetcher:       fetcher,
		primary:       primary,
		fallbacks:     fallbacks,
		nextEx:        nextEx,
		translator:    translator,
		cfg:           c,
		nextOverrides: make(map[string]time.Time),
		now:           time.Now,
	}
}

// SetNextExOverride records a manually maintained next ex-dividend date
// for a ticker, consulted before any provider query.
func (a *Analyzer) SetNextExOverride(ticker string, date time.Time) {
	a.nextOverrides[ticker] = date
}

// Analyze runs the full recovery analysis for one ticker. It never
// returns an error: failures are reported through Report.Err.
func (a *Analyzer) Analyze(ctx context.Context, ticker string) Report {
	report := Report{
		Ticker:      ticker,
		ChartSymbol: a.translator.ToChart(ticker),
	}

	series, resolved, err := a.fetcher.FetchHistory(ctx, ticker, a.cfg.HistoryWindow, false)
	if err != nil {
		report.Err = "no price history"
		return report
	}
	report.ProviderSymbol = resolved

	divs, err := a.dividends(ctx, resolved)
	if err != nil {
		report.Err = "no dividend history"
		return report
	}

	start := len(divs) - a.cfg.Lookback
	if start < 0 {
		start = 0
	}
	for _, div := range divs[start:] {
		report.Recoveries = append(report.Recoveries, a.analyzeEvent(series, div))
	}

	a.estimateNext(ctx, ticker, resolved, divs, &report)
	return report
}

// dividends queries the primary source, then the scraped fallbacks in
// sequence, accepting the first source yielding at least one event.
func (a *Analyzer) dividends(ctx context.Context, symbol string) ([]provider.Dividend, error) {
	divs, err := a.primary.Dividends(ctx, symbol)
	if err == nil && len(divs) > 0 {
		return divs, nil
	}
	log.Debug().Str("symbol", symbol).Msg("primary dividend source empty, trying fallbacks")
	return provider.FallbackDividends(ctx, symbol, a.fallbacks...)
}

// analyzeEvent measures one dividend's recovery against the price
// series.
func (a *Analyzer) analyzeEvent(series model.OHLCSeries, div provider.Dividend) Recovery {
	rec := Recovery{ExDate: div.ExDate, Amount: div.Amount}

	// Closing price on the last trading day strictly before the
	// ex-date, looking back up to 5 calendar days for a session.
	preIdx := -1
	earliest := div.ExDate.AddDate(0, 0, -5)
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].Date.Before(div.ExDate) {
			if series[i].Date.Before(earliest) {
				break
			}
			preIdx = i
			break
		}
	}
	if preIdx < 0 {
		return rec
	}
	rec.PreDivClose = series[preIdx].Close

	// Forward scan: recovered on the first session whose High reaches
	// the pre-dividend close.
	post := series[preIdx+1:]
	maxHighInWindow := decimal.Zero
	for i, b := range post {
		if b.Date.Before(div.ExDate) {
			continue
		}
		if i < a.cfg.RecoveryWindow && b.High.GreaterThan(maxHighInWindow) {
			maxHighInWindow = b.High
		}
		if !rec.Recovered && b.High.GreaterThanOrEqual(rec.PreDivClose) {
			rec.Recovered = true
			rec.RecoveryDays = calendarDays(div.ExDate, b.Date)
		}
	}
	if !rec.Recovered {
		rec.RecoveryDays = calendarDays(div.ExDate, a.now())
		rec.CurrentDistance = rec.PreDivClose.Sub(series.LastClose())
	}

	// Bounded window recovery: distance reclaimed toward the
	// pre-dividend level, relative to the dividend amount.
	if maxHighInWindow.GreaterThan(decimal.Zero) && div.Amount.GreaterThan(decimal.Zero) {
		base := rec.PreDivClose.Sub(div.Amount)
		rec.WindowRecoveryPct = maxHighInWindow.Sub(base).Div(div.Amount).Mul(decimal.NewFromInt(100)).Round(1)
	}

	rec.Pre = a.preWindow(series, preIdx)
	return rec
}

// preWindow summarizes the PreWindowDays trading sessions ending at
// preIdx (the last session before the ex-date).
func (a *Analyzer) preWindow(series model.OHLCSeries, preIdx int) *PreWindow {
	start := preIdx + 1 - a.cfg.PreWindowDays
	if start < 0 {
		start = 0
	}
	window := series[start : preIdx+1]
	if len(window) == 0 {
		return nil
	}

	pw := &PreWindow{Low: window[0].Low, High: window[0].High}
	lowIdx, highIdx := 0, 0
	for i, b := range window {
		if b.Low.LessThan(pw.Low) {
			pw.Low, lowIdx = b.Low, i
		}
		if b.High.GreaterThan(pw.High) {
			pw.High, highIdx = b.High, i
		}
	}
	pw.LowOffset = len(window) - lowIdx
	pw.HighOffset = len(window) - highIdx

	first, last := window[0].Close, window[len(window)-1].Close
	pw.DriftDollar = last.Sub(first).Round(2)
	if first.GreaterThan(decimal.Zero) {
		pw.DriftPct = last.Sub(first).Div(first).Mul(decimal.NewFromInt(100)).Round(2)
	}

	pw.Pump, pw.PumpStart = a.detectPump(window)
	pw.VolumeSpike = a.detectVolumeSpike(series, start, preIdx)
	return pw
}

// detectPump compares the mean close of the window's first 3 sessions
// against the last 3; a rise of at least PumpThresholdPct flags a pump,
// and the first window index where price rose versus the prior day is
// reported.
func (a *Analyzer) detectPump(window model.OHLCSeries) (bool, int) {
	if len(window) < 6 {
		return false, -1
	}
	firstMean := meanClose(window[:3])
	lastMean := meanClose(window[len(window)-3:])
	if firstMean.LessThanOrEqual(decimal.Zero) {
		return false, -1
	}

	risePct := lastMean.Sub(firstMean).Div(firstMean).Mul(decimal.NewFromInt(100))
	if risePct.LessThan(a.cfg.PumpThresholdPct) {
		return false, -1
	}

	for i := 1; i < len(window); i++ {
		if window[i].Close.GreaterThan(window[i-1].Close) {
			return true, i
		}
	}
	return true, -1
}

// detectVolumeSpike compares the pre-window's mean volume against the
// trailing VolumeBaselineDays average ending at preIdx.
func (a *Analyzer) detectVolumeSpike(series model.OHLCSeries, windowStart, preIdx int) bool {
	baseStart := preIdx + 1 - a.cfg.VolumeBaselineDays
	if baseStart < 0 {
		baseStart = 0
	}
	baseline := series[baseStart : preIdx+1]
	window := series[windowStart : preIdx+1]
	if len(baseline) == 0 || len(window) == 0 {
		return false
	}

	baseMean := meanVolume(baseline)
	if baseMean.LessThanOrEqual(decimal.Zero) {
		return false
	}
	windowMean := meanVolume(window)

	risePct := windowMean.Sub(baseMean).Div(baseMean).Mul(decimal.NewFromInt(100))
	return risePct.GreaterThanOrEqual(a.cfg.VolumeSpikePct)
}

// estimateNext fills the next ex-dividend date: manual override, then
// the provider's declared date, then the frequency heuristic over the
// observed dividend gaps.
func (a *Analyzer) estimateNext(ctx context.Context, ticker, symbol string, divs []provider.Dividend, report *Report) {
	if date, ok := a.nextOverrides[ticker]; ok {
		report.NextExDate = &date
		return
	}

	if a.nextEx != nil {
		if date, err := a.nextEx.NextExDividend(ctx, symbol); err == nil && date.After(a.now()) {
			report.NextExDate = &date
			return
		}
	}

	freq := frequencyDays(divs)
	if freq <= 0 {
		return
	}
	report.FrequencyDays = freq
	report.NextEstimated = true

	next := divs[len(divs)-1].ExDate
	now := a.now()
	for !next.After(now) {
		next = next.AddDate(0, 0, freq)
	}
	report.NextExDate = &next
}

// frequencyDays infers the dividend cadence from the median gap of the
// last several events, snapped to a standard monthly/quarterly/
// semiannual/annual bucket when close enough, else the raw median.
func frequencyDays(divs []provider.Dividend) int {
	if len(divs) < 2 {
		return 0
	}
	start := len(divs) - 7
	if start < 0 {
		start = 0
	}
	recent := divs[start:]

	gaps := make([]int, 0, len(recent)-1)
	for i := 1; i < len(recent); i++ {
		gaps = append(gaps, calendarDays(recent[i-1].ExDate, recent[i].ExDate))
	}
	sort.Ints(gaps)
	median := gaps[len(gaps)/2]

	buckets := []struct{ days, tolerance int }{
		{30, 10}, {91, 15}, {182, 25}, {365, 40},
	}
	for _, b := range buckets {
		if abs(median-b.days) <= b.tolerance {
			return b.days
		}
	}
	return median
}

func meanClose(bars model.OHLCSeries) decimal.Decimal {
	sum := decimal.Zero
	for _, b := range bars {
		sum = sum.Add(b.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(len(bars))))
}

func meanVolume(bars model.OHLCSeries) decimal.Decimal {
	sum := decimal.Zero
	for _, b := range bars {
		sum = sum.Add(b.Volume)
	}
	return sum.Div(decimal.NewFromInt(int64(len(bars))))
}

// calendarDays returns whole calendar days from a to b.
func calendarDays(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
