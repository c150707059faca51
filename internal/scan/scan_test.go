package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prefscan/internal/model"
	"prefscan/internal/pattern"
	"prefscan/internal/provider"
	"prefscan/internal/symbols"
)

// stubFetcher serves canned series per ticker; tickers missing from the
// map resolve to provider.ErrSymbolUnresolved. Safe for concurrent use:
// the map is read-only after construction.
type stubFetcher struct {
	series map[string]model.OHLCSeries
	errs   map[string]error
}

func (f *stubFetcher) FetchHistory(_ context.Context, ticker string, _ provider.Window, _ bool) (model.OHLCSeries, string, error) {
	if err, ok := f.errs[ticker]; ok {
		return nil, "", err
	}
	s, ok := f.series[ticker]
	if !ok {
		return nil, "", provider.ErrSymbolUnresolved
	}
	return s, ticker + "-RESOLVED", nil
}

// stubEvaluator emits one match per evaluated ticker present in its
// match set, so tests can assert iteration order and failure skipping.
type stubEvaluator struct {
	matchAll bool
	matchSet map[string]bool
}

func (e *stubEvaluator) Kind() model.ScanKind { return model.SpreadScan }

func (e *stubEvaluator) Days() int { return 20 }

func (e *stubEvaluator) Evaluate(sec pattern.Security, series model.OHLCSeries) []model.PatternMatch {
	if len(series) == 0 {
		return nil
	}
	if !e.matchAll && !e.matchSet[sec.Ticker] {
		return nil
	}
	return []model.PatternMatch{{
		Ticker:         sec.Ticker,
		ProviderSymbol: sec.ProviderSymbol,
		ChartSymbol:    sec.ChartSymbol,
		Kind:           model.SpreadScan,
	}}
}

func someSeries() model.OHLCSeries {
	return model.OHLCSeries{{
		Date:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Open:  dec(24.50),
		High:  dec(24.60),
		Low:   dec(24.40),
		Close: dec(24.55),
	}}
}

func newTestOrchestrator(t *testing.T, fetcher HistorySource, batchSize int) *Orchestrator {
	t.Helper()
	return NewOrchestrator(fetcher, symbols.NewTranslator(), batchSize)
}

func TestMarkNewFlagsOnlyUnseenTickers(t *testing.T) {
	matches := []model.PatternMatch{
		{Ticker: "ABR-D"},
		{Ticker: "NEE-N"},
	}
	baseline := map[string]struct{}{"NEE-N": {}}

	marked := MarkNew(matches, baseline)
	require.Len(t, marked, 2)
	assert.True(t, marked[0].IsNew)
	assert.False(t, marked[1].IsNew)

	// Pure: input untouched, repeat calls identical.
	assert.False(t, matches[0].IsNew)
	assert.Equal(t, marked, MarkNew(matches, baseline))
}

func TestMarkNewEmptyBaselineFlagsEverything(t *testing.T) {
	marked := MarkNew([]model.PatternMatch{{Ticker: "ABR-D"}}, map[string]struct{}{})
	require.Len(t, marked, 1)
	assert.True(t, marked[0].IsNew)
}

func TestRunNaturalCompletion(t *testing.T) {
	tickers := []string{"ABR-D", "NEE-N", "F-D"}
	fetcher := &stubFetcher{series: map[string]model.OHLCSeries{
		"ABR-D": someSeries(),
		"NEE-N": someSeries(),
		"F-D":   someSeries(),
	}}
	orch := newTestOrchestrator(t, fetcher, 1)
	state := NewState(model.SpreadScan)

	var updates [][2]int
	results, err := orch.Run(context.Background(), state, &stubEvaluator{matchAll: true}, tickers, func(p, tot int) Signal {
		updates = append(updates, [2]int{p, tot})
		return Continue
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Matches arrive in ticker input order with resolved symbols.
	assert.Equal(t, "ABR-D", results[0].Ticker)
	assert.Equal(t, "ABR-D-RESOLVED", results[0].ProviderSymbol)
	assert.Equal(t, "F-D", results[2].Ticker)

	// First scan: everything is new.
	for _, m := range results {
		assert.True(t, m.IsNew, "ticker %s", m.Ticker)
	}

	// Progress ends on (total, total).
	require.NotEmpty(t, updates)
	assert.Equal(t, [2]int{3, 3}, updates[len(updates)-1])

	snap := state.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 3, snap.Progress)
	assert.Equal(t, 3, snap.Total)
	assert.ElementsMatch(t, []string{"ABR-D", "NEE-N", "F-D"}, snap.Baseline)
}

func TestRunSecondScanDiffsAgainstBaseline(t *testing.T) {
	fetcher := &stubFetcher{series: map[string]model.OHLCSeries{
		"ABR-D": someSeries(),
		"NEE-N": someSeries(),
		"F-D":   someSeries(),
	}}
	orch := newTestOrchestrator(t, fetcher, 1)
	state := NewState(model.SpreadScan)
	ctx := context.Background()

	_, err := orch.Run(ctx, state, &stubEvaluator{matchSet: map[string]bool{"ABR-D": true}}, []string{"ABR-D"}, nil)
	require.NoError(t, err)

	// Second run matches the old ticker plus a newcomer.
	ev := &stubEvaluator{matchSet: map[string]bool{"ABR-D": true, "NEE-N": true}}
	results, err := orch.Run(ctx, state, ev, []string{"ABR-D", "NEE-N"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].IsNew, "repeat match stays old")
	assert.True(t, results[1].IsNew, "newcomer flagged")

	// Baseline rotated to the second scan's ticker set.
	assert.ElementsMatch(t, []string{"ABR-D", "NEE-N"}, state.Snapshot().Baseline)
}

func TestRunStopSentinelYieldsPartialResults(t *testing.T) {
	tickers := []string{"ABR-D", "NEE-N", "F-D", "ETI-"}
	fetcher := &stubFetcher{series: map[string]model.OHLCSeries{
		"ABR-D": someSeries(),
		"NEE-N": someSeries(),
		"F-D":   someSeries(),
		"ETI-":  someSeries(),
	}}
	orch := newTestOrchestrator(t, fetcher, 1)
	state := NewState(model.SpreadScan)

	results, err := orch.Run(context.Background(), state, &stubEvaluator{matchAll: true}, tickers, func(p, tot int) Signal {
		if p == 2 {
			return Stop
		}
		return Continue
	})
	require.NoError(t, err)

	// Exactly the first two tickers were processed and matched.
	require.Len(t, results, 2)
	assert.Equal(t, "ABR-D", results[0].Ticker)
	assert.Equal(t, "NEE-N", results[1].Ticker)

	snap := state.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status, "partial results settle to completed")
	assert.Equal(t, 2, snap.Progress)
	assert.Equal(t, 4, snap.Total)

	// A cancelled run never establishes a baseline.
	assert.Empty(t, snap.Baseline)
}

func TestRunCancelBeforeAnyResultSettlesIdle(t *testing.T) {
	fetcher := &stubFetcher{series: map[string]model.OHLCSeries{"ABR-D": someSeries()}}
	orch := newTestOrchestrator(t, fetcher, 1)
	state := NewState(model.SpreadScan)

	// No match emitted for the only processed ticker, Stop right after.
	results, err := orch.Run(context.Background(), state, &stubEvaluator{}, []string{"ABR-D", "NEE-N"}, func(p, tot int) Signal {
		return Stop
	})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, StatusIdle, state.Snapshot().Status)
}

func TestRunContextCancellation(t *testing.T) {
	fetcher := &stubFetcher{series: map[string]model.OHLCSeries{
		"ABR-D": someSeries(),
		"NEE-N": someSeries(),
	}}
	orch := newTestOrchestrator(t, fetcher, 1)
	state := NewState(model.SpreadScan)

	ctx, cancel := context.WithCancel(context.Background())
	results, err := orch.Run(ctx, state, &stubEvaluator{matchAll: true}, []string{"ABR-D", "NEE-N"}, func(p, tot int) Signal {
		if p == 1 {
			cancel()
		}
		return Continue
	})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 1, state.Snapshot().Progress)
}

func TestRunSkipsUnresolvedAndFailedTickers(t *testing.T) {
	fetcher := &stubFetcher{
		series: map[string]model.OHLCSeries{
			"ABR-D": someSeries(),
			"F-D":   someSeries(),
		},
		errs: map[string]error{"NEE-N": errors.New("http 500")},
	}
	orch := newTestOrchestrator(t, fetcher, 1)
	state := NewState(model.SpreadScan)

	// "GONE" is absent from the stub entirely: symbol unresolvable.
	tickers := []string{"ABR-D", "GONE", "NEE-N", "F-D"}
	results, err := orch.Run(context.Background(), state, &stubEvaluator{matchAll: true}, tickers, nil)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "ABR-D", results[0].Ticker)
	assert.Equal(t, "F-D", results[1].Ticker)

	// Failures still count toward progress.
	snap := state.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 4, snap.Progress)
}

func TestRunBatchedMatchesSequential(t *testing.T) {
	tickers := []string{"ABR-D", "NEE-N", "GONE", "F-D", "ETI-"}
	series := map[string]model.OHLCSeries{
		"ABR-D": someSeries(),
		"NEE-N": someSeries(),
		"F-D":   someSeries(),
		"ETI-":  someSeries(),
	}

	run := func(batchSize int) []model.PatternMatch {
		orch := newTestOrchestrator(t, &stubFetcher{series: series}, batchSize)
		state := NewState(model.SpreadScan)
		results, err := orch.Run(context.Background(), state, &stubEvaluator{matchAll: true}, tickers, nil)
		require.NoError(t, err)
		return results
	}

	assert.Equal(t, run(1), run(3))
}

func TestStateRejectsConcurrentRunOfSameKind(t *testing.T) {
	state := NewState(model.SpreadScan)

	_, err := state.begin(10)
	require.NoError(t, err)

	_, err = state.begin(10)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	// A settled state accepts the next run.
	state.complete(nil, time.Now())
	_, err = state.begin(10)
	assert.NoError(t, err)
}

func TestStateBeginResetsCancellationFlag(t *testing.T) {
	state := NewState(model.SpreadScan)
	state.Cancel()
	require.True(t, state.Cancelled())

	_, err := state.begin(1)
	require.NoError(t, err)
	assert.False(t, state.Cancelled())
}

func TestManagerRunIfStaleSkipsFreshResults(t *testing.T) {
	fetcher := &stubFetcher{series: map[string]model.OHLCSeries{"ABR-D": someSeries()}}
	orch := newTestOrchestrator(t, fetcher, 1)
	mgr := NewManager(orch, nil)
	ctx := context.Background()
	ev := &stubEvaluator{matchAll: true}
	tickers := []string{"ABR-D"}

	first, ran, err := mgr.RunIfStale(ctx, ev, tickers, time.Hour, false, nil)
	require.NoError(t, err)
	assert.True(t, ran)
	require.Len(t, first, 1)

	// Fresh results short-circuit the second call.
	second, ran, err := mgr.RunIfStale(ctx, ev, tickers, time.Hour, false, nil)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, first, second)

	// force bypasses the freshness gate.
	_, ran, err = mgr.RunIfStale(ctx, ev, tickers, time.Hour, true, nil)
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestManagerCompletionHookFiresOnNaturalCompletionOnly(t *testing.T) {
	fetcher := &stubFetcher{series: map[string]model.OHLCSeries{
		"ABR-D": someSeries(),
		"NEE-N": someSeries(),
	}}
	orch := newTestOrchestrator(t, fetcher, 1)

	var hookCalls []Snapshot
	mgr := NewManager(orch, func(kind model.ScanKind, snap Snapshot) {
		assert.Equal(t, model.SpreadScan, kind)
		hookCalls = append(hookCalls, snap)
	})
	ctx := context.Background()
	ev := &stubEvaluator{matchAll: true}

	// Cancelled run: partial completion, no hook.
	_, err := mgr.Run(ctx, ev, []string{"ABR-D", "NEE-N"}, func(p, tot int) Signal {
		if p == 1 {
			return Stop
		}
		return Continue
	})
	require.NoError(t, err)
	assert.Empty(t, hookCalls)

	// Natural completion fires the hook with settled state.
	_, err = mgr.Run(ctx, ev, []string{"ABR-D", "NEE-N"}, nil)
	require.NoError(t, err)
	require.Len(t, hookCalls, 1)
	assert.Equal(t, StatusCompleted, hookCalls[0].Status)
	assert.Equal(t, 2, hookCalls[0].Progress)
}

func TestManagerRestoreSeedsBaseline(t *testing.T) {
	fetcher := &stubFetcher{series: map[string]model.OHLCSeries{"ABR-D": someSeries()}}
	orch := newTestOrchestrator(t, fetcher, 1)
	mgr := NewManager(orch, nil)

	when := time.Now().Add(-48 * time.Hour)
	mgr.Restore(model.SpreadScan, Snapshot{
		Baseline:    []string{"ABR-D"},
		Results:     []model.PatternMatch{{Ticker: "ABR-D", Kind: model.SpreadScan}},
		LastUpdated: when,
	})

	snap := mgr.Snapshot(model.SpreadScan)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.ElementsMatch(t, []string{"ABR-D"}, snap.Baseline)

	// A rescan against the restored baseline flags nothing as new.
	results, err := mgr.Run(context.Background(), &stubEvaluator{matchAll: true}, []string{"ABR-D"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].IsNew)
}

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }
