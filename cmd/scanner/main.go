/*
Package main implements the preferred-stock pattern scanner CLI.

The scanner reads a ticker list, fetches daily OHLC history from the
market-data provider, classifies each series against the selected
pattern filter, and writes the matches as JSON. Completed results and
the baseline ticker set are snapshotted to disk so "new since last
scan" flags survive restarts.

Usage:

	scanner -tickers=tickers.txt -kind=spread -out=results.json
	scanner -tickers=tickers.txt -kind=imbalance -days=30 -batch=10
	scanner -dividend=ABR-D
	scanner -tickers=tickers.txt -kind=spread -daemon -cron="0 6 * * *"

In daemon mode the scan re-runs on the cron schedule, skipping runs
while previous results are younger than -ttl. An interrupt signal
cancels an in-flight scan cooperatively and shuts down.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"prefscan/internal/dividend"
	"prefscan/internal/model"
	"prefscan/internal/pattern"
	"prefscan/internal/provider"
	"prefscan/internal/scan"
	"prefscan/internal/store"
	"prefscan/internal/symbols"
)

// Command-line flags for configuring the scanner behavior
var (
	tickersPath = flag.String("tickers", "tickers.txt", "Path to the ticker list file (comma or newline separated)")
	kindName    = flag.String("kind", "spread", "Scan kind: spread, imbalance or rangeai")
	days        = flag.Int("days", 0, "Lookback bar count (0 selects the kind's default)")
	batchSize   = flag.Int("batch", 1, "Tickers fetched concurrently per batch (1 = sequential)")
	outPath     = flag.String("out", "", "Write matches as JSON to this file (default stdout)")
	dataDir     = flag.String("data", "data", "Directory for scan snapshots")
	divTicker   = flag.String("dividend", "", "Run the dividend-recovery report for one ticker and exit")
	daemonMode  = flag.Bool("daemon", false, "Keep running and rescan on the cron schedule")
	cronSpec    = flag.String("cron", "0 6 * * *", "Cron schedule for daemon rescans")
	ttl         = flag.Duration("ttl", 24*time.Hour, "Skip scheduled rescans while results are younger than this")
)

func main() {
	// Load optional .env before flags so PROVIDER_BASE_URL etc. apply.
	_ = godotenv.Load()
	flag.Parse()

	// Initialize structured logger with timestamp and info level
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	translator := symbols.NewTranslator()

	yahooCfg := provider.YahooConfig{BaseURL: os.Getenv("PROVIDER_BASE_URL")}
	client, err := provider.NewYahooClient(&yahooCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create provider client")
	}

	fetcher, err := provider.NewFetcher(client, translator, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create fetcher")
	}

	if *divTicker != "" {
		runDividendReport(ctx, fetcher, client, translator, *divTicker)
		return
	}

	kind, evaluator, err := buildEvaluator(*kindName, *days)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid scan configuration")
	}

	snapshots, err := store.New(*dataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open snapshot store")
	}

	manager := scan.NewManager(
		scan.NewOrchestrator(fetcher, translator, *batchSize),
		func(kind model.ScanKind, snap scan.Snapshot) {
			if err := snapshots.Save(kind, snap); err != nil {
				log.Error().Err(err).Stringer("kind", kind).Msg("failed to persist snapshot")
			}
		},
	)

	// Reload the previous completed scan so is_new flags diff against it.
	if snap, err := snapshots.Load(kind); err == nil {
		manager.Restore(kind, snap)
		log.Info().Stringer("kind", kind).Int("results", len(snap.Results)).Msg("loaded snapshot")
	}

	// Cooperative shutdown: first signal cancels the in-flight scan,
	// letting it settle with partial results.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("interrupt received, cancelling scan")
		manager.Cancel(kind)
		cancel()
	}()

	if *daemonMode {
		runDaemon(ctx, manager, evaluator, kind)
		return
	}

	results, err := runScan(ctx, manager, evaluator, kind, true)
	if err != nil {
		log.Fatal().Err(err).Msg("scan failed")
	}
	writeResults(results)
}

// buildEvaluator maps the -kind flag to a configured evaluator.
func buildEvaluator(name string, days int) (model.ScanKind, pattern.Evaluator, error) {
	switch name {
	case model.SpreadScan.String():
		params := pattern.CompressionParams{}
		if days > 0 {
			params.Days = days
			ev, err := pattern.NewCompression(fillCompressionDefaults(&params))
			return model.SpreadScan, ev, err
		}
		ev, err := pattern.NewCompression(nil)
		return model.SpreadScan, ev, err
	case model.ImbalanceScan.String():
		if days > 0 {
			ev, err := pattern.NewImbalance(&pattern.ImbalanceParams{Days: days, MinBars: 15, MinGreenBars: 12, MinRedBars: 12})
			return model.ImbalanceScan, ev, err
		}
		ev, err := pattern.NewImbalance(nil)
		return model.ImbalanceScan, ev, err
	case model.RangeAIScan.String():
		if days > 0 {
			ev, err := pattern.NewContainment(&pattern.ContainmentParams{Days: days, MinBars: 15, PointFilter: true, PercentFilter: true, Transitions: true})
			return model.RangeAIScan, ev, err
		}
		ev, err := pattern.NewContainment(nil)
		return model.RangeAIScan, ev, err
	default:
		return 0, nil, fmt.Errorf("unknown scan kind %q", name)
	}
}

// fillCompressionDefaults completes a partial CompressionParams with
// the production defaults for the fields the flag set doesn't cover.
func fillCompressionDefaults(p *pattern.CompressionParams) *pattern.CompressionParams {
	if p.MinBars == 0 {
		p.MinBars = 15
	}
	if p.ShortMinRedBars == 0 {
		p.ShortMinRedBars = 12
	}
	return p
}

// runScan executes one scan over the ticker file, logging progress.
func runScan(ctx context.Context, manager *scan.Manager, ev pattern.Evaluator, kind model.ScanKind, force bool) ([]model.PatternMatch, error) {
	raw, err := os.ReadFile(*tickersPath)
	if err != nil {
		manager.MarkError(kind)
		return nil, fmt.Errorf("read ticker list: %w", err)
	}
	tickers := symbols.ParseList(string(raw))

	progress := func(processed, total int) scan.Signal {
		if processed%25 == 0 || processed == total {
			log.Info().Int("processed", processed).Int("total", total).Msg("scan progress")
		}
		return scan.Continue
	}

	results, _, err := manager.RunIfStale(ctx, ev, tickers, *ttl, force, progress)
	return results, err
}

// runDaemon runs an initial scan, then rescans on the cron schedule
// until the context is cancelled. Scheduled runs honor the freshness
// TTL; overlapping runs are rejected by the manager and simply logged.
func runDaemon(ctx context.Context, manager *scan.Manager, ev pattern.Evaluator, kind model.ScanKind) {
	if _, err := runScan(ctx, manager, ev, kind, false); err != nil {
		log.Error().Err(err).Msg("initial scan failed")
	}

	c := cron.New()
	_, err := c.AddFunc(*cronSpec, func() {
		if _, err := runScan(ctx, manager, ev, kind, false); err != nil {
			log.Error().Err(err).Msg("scheduled scan failed")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Str("spec", *cronSpec).Msg("invalid cron schedule")
	}

	c.Start()
	log.Info().Str("spec", *cronSpec).Stringer("kind", kind).Msg("daemon started")

	<-ctx.Done()
	<-c.Stop().Done()
	log.Info().Msg("daemon stopped")
}

// runDividendReport prints the one-ticker dividend-recovery report.
func runDividendReport(ctx context.Context, fetcher *provider.Fetcher, client *provider.YahooClient, translator *symbols.Translator, ticker string) {
	fallbacks := []provider.DividendClient{
		provider.NewScrapedSource("dividendhistory", "https://dividendhistory.org/payout/%s/", 0),
		provider.NewScrapedSource("streetinsider", "https://www.streetinsider.com/dividend_history.php?q=%s", 0),
	}

	analyzer := dividend.NewAnalyzer(fetcher, client, fallbacks, client, translator, nil)
	report := analyzer.Analyze(ctx, ticker)
	writeResults(report)
}

// writeResults marshals v as indented JSON to -out or stdout.
func writeResults(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to encode results")
	}

	if *outPath == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(*outPath, data, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", *outPath).Msg("failed to write results")
	}
	log.Info().Str("path", *outPath).Msg("results written")
}
