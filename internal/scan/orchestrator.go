package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"prefscan/internal/model"
	"prefscan/internal/pattern"
	"prefscan/internal/provider"
	"prefscan/internal/symbols"
)

// Signal is the return value of a ProgressFunc.
type Signal string

const (
	// Continue lets the scan proceed.
	Continue Signal = ""

	// Stop requests cooperative cancellation through the progress
	// channel. Supported for callers that signal cancellation this way
	// rather than through the state's cancel flag or the context.
	Stop Signal = "STOP"
)

// ProgressFunc receives progress updates after each processed ticker.
// Returning Stop cancels the scan before its next unit of work.
type ProgressFunc func(processed, total int) Signal

// HistorySource fetches a ticker's cleaned daily series, resolving the
// provider spelling as needed. Implemented by provider.Fetcher.
type HistorySource interface {
	FetchHistory(ctx context.Context, ticker string, window provider.Window, adjusted bool) (model.OHLCSeries, string, error)
}

// Orchestrator iterates a ticker batch through one evaluator,
// reporting progress, honoring cooperative cancellation and
// aggregating matches in ticker-iteration order.
type Orchestrator struct {
	fetcher    HistorySource
	translator *symbols.Translator

	// batchSize > 1 fetches history for that many tickers concurrently
	// before evaluating them in input order. Batching is a fetch
	// optimization only: sequential and batched runs produce identical
	// match sets for the same inputs.
	batchSize int
}

// NewOrchestrator creates an orchestrator. batchSize values below 1
// select sequential fetching.
func NewOrchestrator(fetcher HistorySource, translator *symbols.Translator, batchSize int) *Orchestrator {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Orchestrator{
		fetcher:    fetcher,
		translator: translator,
		batchSize:  batchSize,
	}
}

// fetchResult pairs one ticker's fetched series with its resolved
// symbol, preserving batch order.
type fetchResult struct {
	series model.OHLCSeries
	symbol string
	err    error
}

// fetchGroup fetches history for a group of tickers, concurrently when
// the group is larger than one. Results are indexed by group position.
func (o *Orchestrator) fetchGroup(ctx context.Context, group []string, window provider.Window) []fetchResult {
	results := make([]fetchResult, len(group))

	if len(group) == 1 {
		series, symbol, err := o.fetcher.FetchHistory(ctx, group[0], window, true)
		results[0] = fetchResult{series: series, symbol: symbol, err: err}
		return results
	}

	var wg sync.WaitGroup
	for i, ticker := range group {
		wg.Add(1)
		go func(i int, ticker string) {
			defer wg.Done()
			series, symbol, err := o.fetcher.FetchHistory(ctx, ticker, window, true)
			results[i] = fetchResult{series: series, symbol: symbol, err: err}
		}(i, ticker)
	}
	wg.Wait()
	return results
}

// Run drives one scan: it fetches each ticker's history, evaluates it,
// and accumulates matches.
//
// Failure containment: a ticker whose symbol cannot be resolved, whose
// retries exhaust, or whose series is too short is skipped silently;
// nothing a single ticker does aborts the batch.
//
// Cancellation: checked before each ticker via the state's cancel flag
// and the context; the progress sink returning Stop is honored the same
// way. A cancelled run returns the matches accumulated so far and
// settles the state to completed (partial results exist) or idle.
//
// On natural completion the final progress update is (total, total),
// results are diffed against the previous baseline and stored, and the
// state transitions to completed with a timestamp.
func (o *Orchestrator) Run(ctx context.Context, state *State, ev pattern.Evaluator, tickers []string, progress ProgressFunc) ([]model.PatternMatch, error) {
	total := len(tickers)
	runID, err := state.begin(total)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("run_id", runID).
		Stringer("kind", ev.Kind()).
		Int("total", total).
		Msg("scan started")

	window := provider.WindowForDays(ev.Days())
	var results []model.PatternMatch
	processed := 0
	cancelled := false

	stopRequested := func() bool {
		return state.Cancelled() || ctx.Err() != nil
	}

	for start := 0; start < total && !cancelled; start += o.batchSize {
		if stopRequested() {
			cancelled = true
			break
		}

		end := start + o.batchSize
		if end > total {
			end = total
		}
		group := tickers[start:end]
		fetched := o.fetchGroup(ctx, group, window)

		for i, ticker := range group {
			if stopRequested() {
				cancelled = true
				break
			}

			fr := fetched[i]
			processed++

			switch {
			case fr.err != nil:
				if !errors.Is(fr.err, provider.ErrSymbolUnresolved) && !errors.Is(fr.err, context.Canceled) {
					log.Warn().Err(fr.err).Str("ticker", ticker).Msg("history fetch failed")
				}
			default:
				sec := pattern.Security{
					Ticker:         ticker,
					ProviderSymbol: fr.symbol,
					ChartSymbol:    o.translator.ToChart(ticker),
				}
				results = append(results, ev.Evaluate(sec, fr.series)...)
			}

			state.setProgress(processed)
			if progress != nil && progress(processed, total) == Stop {
				state.Cancel()
			}
		}
	}

	if cancelled || stopRequested() {
		partial := state.abort(results, time.Now())
		log.Info().
			Str("run_id", runID).
			Stringer("kind", ev.Kind()).
			Int("processed", processed).
			Int("matches", len(partial)).
			Msg("scan cancelled")
		return partial, nil
	}

	state.setProgress(total)
	if progress != nil {
		progress(total, total)
	}

	marked := state.complete(results, time.Now())
	log.Info().
		Str("run_id", runID).
		Stringer("kind", ev.Kind()).
		Int("matches", len(marked)).
		Msg("scan completed")
	return marked, nil
}
