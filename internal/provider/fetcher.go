package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"prefscan/internal/model"
	"prefscan/internal/symbols"
)

// ErrSymbolUnresolved indicates that neither the default provider
// spelling nor any candidate spelling returned data for a ticker.
// Callers skip the ticker; this is an expected condition for illiquid
// preferred issues, not a batch failure.
var ErrSymbolUnresolved = errors.New("no candidate spelling returned data")

// defaultFetcherConfig provides sensible defaults for the resolving
// fetcher.
var defaultFetcherConfig = FetcherConfig{
	Retries:     3,
	Backoff:     500 * time.Millisecond,
	ProbeWindow: Window1Mo,
}

// FetcherConfig holds retry and probing parameters for the Fetcher.
type FetcherConfig struct {
	// Retries is the number of attempts per symbol for transient
	// provider failures. Empty results are definitive and not retried.
	Retries int

	// Backoff is the pause between retry attempts.
	Backoff time.Duration

	// ProbeWindow is the short lookback used when probing candidate
	// spellings, keeping resolution cheap.
	ProbeWindow Window
}

// Fetcher wraps a HistoryClient with bounded retries, alternate-spelling
// resolution and per-instance memoization of resolved symbols.
//
// Resolution order: the translator's default provider spelling first,
// then each candidate spelling probed with a short window; the first
// candidate returning data becomes the resolved symbol for the rest of
// the call (and, via the memo, the rest of the scan).
type Fetcher struct {
	client     HistoryClient
	translator *symbols.Translator
	cfg        FetcherConfig

	mu       sync.Mutex
	resolved map[string]string // ticker -> provider symbol that returned data
}

// NewFetcher creates a resolving fetcher. A nil cfg selects the
// defaults.
func NewFetcher(client HistoryClient, translator *symbols.Translator, cfg *FetcherConfig) (*Fetcher, error) {
	if client == nil || translator == nil {
		return nil, fmt.Errorf("%w: client and translator are required", ErrInvalidConfig)
	}
	if cfg == nil {
		cfg = &defaultFetcherConfig
	}
	if cfg.Retries <= 0 {
		cfg.Retries = defaultFetcherConfig.Retries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultFetcherConfig.Backoff
	}
	if cfg.ProbeWindow == "" {
		cfg.ProbeWindow = defaultFetcherConfig.ProbeWindow
	}

	return &Fetcher{
		client:     client,
		translator: translator,
		cfg:        *cfg,
		resolved:   make(map[string]string),
	}, nil
}

// barsWithRetry fetches one symbol, retrying transient failures up to
// the configured attempt count. An ErrNoData answer is definitive and
// returned immediately.
func (f *Fetcher) barsWithRetry(ctx context.Context, symbol string, window Window, adjusted bool) (model.OHLCSeries, error) {
	var lastErr error
	for attempt := 0; attempt < f.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.cfg.Backoff):
			}
		}

		bars, err := f.client.DailyBars(ctx, symbol, window, adjusted)
		if err == nil {
			return bars, nil
		}
		if errors.Is(err, ErrNoData) || errors.Is(err, context.Canceled) {
			return nil, err
		}

		lastErr = err
		log.Warn().Err(err).Str("symbol", symbol).Int("attempt", attempt+1).Msg("transient provider failure")
	}
	return nil, lastErr
}

// FetchHistory returns the cleaned daily series for a ticker along with
// the provider symbol that produced it.
//
// When no spelling yields data the returned error wraps
// ErrSymbolUnresolved; the caller is expected to skip the ticker and
// continue the batch.
func (f *Fetcher) FetchHistory(ctx context.Context, ticker string, window Window, adjusted bool) (model.OHLCSeries, string, error) {
	f.mu.Lock()
	memoized, ok := f.resolved[ticker]
	f.mu.Unlock()
	if ok {
		bars, err := f.barsWithRetry(ctx, memoized, window, adjusted)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %s", ErrSymbolUnresolved, ticker)
		}
		return bars.Clean(), memoized, nil
	}

	for i, candidate := range f.translator.Candidates(ticker) {
		symbol := candidate

		// The primary guess fetches the full window directly; later
		// candidates get a cheap probe first.
		if i > 0 {
			probe, err := f.barsWithRetry(ctx, symbol, f.cfg.ProbeWindow, adjusted)
			if err != nil || len(probe.Clean()) == 0 {
				if errors.Is(err, context.Canceled) {
					return nil, "", err
				}
				continue
			}
			log.Debug().Str("ticker", ticker).Str("symbol", symbol).Msg("resolved via candidate spelling")
		}

		bars, err := f.barsWithRetry(ctx, symbol, window, adjusted)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, "", err
			}
			continue
		}
		cleaned := bars.Clean()
		if len(cleaned) == 0 {
			continue
		}

		f.mu.Lock()
		f.resolved[ticker] = symbol
		f.mu.Unlock()
		return cleaned, symbol, nil
	}

	return nil, "", fmt.Errorf("%w: %s", ErrSymbolUnresolved, ticker)
}

// Resolved returns the memoized provider symbol for a ticker, when one
// has been established during this fetcher's lifetime.
func (f *Fetcher) Resolved(ticker string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.resolved[ticker]
	return s, ok
}
