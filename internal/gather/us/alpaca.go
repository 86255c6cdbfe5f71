// Package us gathers US equity daily bars from the Alpaca market data API.
package us

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/sync/errgroup"

	"vecbt/internal/domain"
	"vecbt/internal/gather"
	"vecbt/internal/store"
	"vecbt/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ gather.PriceFetcher = (*AlpacaFetcher)(nil)
var _ gather.Gatherer = (*DailyBarGatherer)(nil)

// BarClient is the part of the Alpaca market data client used here;
// *marketdata.Client satisfies it.
type BarClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// NewBarClient returns an Alpaca market data client. An empty dataURL uses
// the SDK default.
func NewBarClient(apiKey, apiSecret, dataURL string) *marketdata.Client {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return marketdata.NewClient(opts)
}

// ---------------------------------------------------------------------------
// AlpacaFetcher: daily bars straight from the API.
// ---------------------------------------------------------------------------

// FetcherOptions tunes an AlpacaFetcher. Zero values pick defaults.
type FetcherOptions struct {
	Feed            string
	RateLimitPerMin int
	MaxRetries      int
	RetryDelay      time.Duration
	Logger          *slog.Logger
}

// AlpacaFetcher implements gather.PriceFetcher over the Alpaca bars endpoint.
// Calls are rate limited and retried with backoff.
type AlpacaFetcher struct {
	client     BarClient
	feed       string
	limiter    *util.RateLimiter
	maxRetries int
	retryDelay time.Duration
	log        *slog.Logger
}

// NewAlpacaFetcher wraps client.
func NewAlpacaFetcher(client BarClient, opts FetcherOptions) *AlpacaFetcher {
	f := &AlpacaFetcher{
		client:     client,
		feed:       opts.Feed,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		log:        opts.Logger,
	}
	if f.feed == "" {
		f.feed = "sip"
	}
	if opts.RateLimitPerMin <= 0 {
		opts.RateLimitPerMin = 200
	}
	f.limiter = util.NewBurstRateLimiter(opts.RateLimitPerMin, 5)
	if f.maxRetries <= 0 {
		f.maxRetries = 3
	}
	if f.retryDelay <= 0 {
		f.retryDelay = 500 * time.Millisecond
	}
	if f.log == nil {
		f.log = slog.Default()
	}
	f.log = f.log.With("component", "alpaca")
	return f
}

// FetchDaily returns symbol's daily bars within r, sorted by session date.
func (f *AlpacaFetcher) FetchDaily(ctx context.Context, symbol string, r gather.DateRange) ([]domain.Bar, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	got, err := f.fetchMulti(ctx, []string{symbol}, r)
	if err != nil {
		return nil, err
	}
	bars := got[symbol]
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: alpaca returned no bars for %s between %s and %s", domain.ErrEmptyDataset,
			symbol, r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
	}
	return bars, nil
}

// fetchMulti fetches daily bars for several symbols in one API call, keyed by
// upper-case symbol. Bars outside r after session-date normalisation are
// dropped.
func (f *AlpacaFetcher) fetchMulti(ctx context.Context, symbols []string, r gather.DateRange) (map[string][]domain.Bar, error) {
	req := marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     r.Start,
		End:       r.End.AddDate(0, 0, 1),
		Feed:      f.feed,
	}

	var raw map[string][]marketdata.Bar
	err := util.Retry(ctx, f.maxRetries, f.retryDelay, func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		raw, err = f.client.GetMultiBars(symbols, req)
		if err != nil {
			f.log.Warn("GetMultiBars failed", "symbols", len(symbols), "err", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	out := make(map[string][]domain.Bar, len(raw))
	for symbol, alpacaBars := range raw {
		sym := strings.ToUpper(symbol)
		for _, ab := range alpacaBars {
			day := sessionDate(ab.Timestamp)
			if !r.Contains(day) {
				continue
			}
			out[sym] = append(out[sym], domain.Bar{
				Symbol:     sym,
				Timestamp:  day,
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
		sort.Slice(out[sym], func(i, j int) bool { return out[sym][i].Timestamp.Before(out[sym][j].Timestamp) })
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// DailyBarGatherer: fills the bar store for a fixed symbol list.
// ---------------------------------------------------------------------------

// GathererOptions configures a DailyBarGatherer.
type GathererOptions struct {
	Symbols     []string
	StartDate   string
	BatchSize   int
	MaxWorkers  int
	ProgressDir string
	// EndDate returns the last session to gather. Nil means yesterday (UTC).
	EndDate func(ctx context.Context) (time.Time, error)
	Logger  *slog.Logger
}

// DailyBarGatherer downloads daily bars for a configured symbol list into a
// BarStore. It is resumable within an end date and idempotent across
// repeated runs for the same end date.
type DailyBarGatherer struct {
	fetcher *AlpacaFetcher
	store   store.BarStore
	opts    GathererOptions
	log     *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer writing to s.
func NewDailyBarGatherer(fetcher *AlpacaFetcher, s store.BarStore, opts GathererOptions) *DailyBarGatherer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &DailyBarGatherer{
		fetcher: fetcher,
		store:   s,
		opts:    opts,
		log:     log.With("gatherer", "us-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run gathers every configured symbol from StartDate to the end date.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	if len(g.opts.Symbols) == 0 {
		return errors.New("no symbols configured")
	}
	start, err := time.Parse("2006-01-02", g.opts.StartDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", g.opts.StartDate, err)
	}
	end, err := g.endDate(ctx)
	if err != nil {
		return fmt.Errorf("determining end date: %w", err)
	}
	if end.Before(start) {
		return domain.InvalidParamsf("end date %s is before start date %s", end.Format("2006-01-02"), g.opts.StartDate)
	}
	endStr := end.Format("2006-01-02")

	tracker, err := newProgressTracker(g.opts.ProgressDir)
	if err != nil {
		return fmt.Errorf("creating progress tracker: %w", err)
	}
	defer tracker.Close()

	if last := tracker.LastCompleted(); last == endStr {
		g.log.Info("already completed", "endDate", endStr)
		return nil
	} else if last != "" {
		// A new end date invalidates the per-symbol marks of the last run.
		if err := tracker.Reset(); err != nil {
			return fmt.Errorf("resetting tracker: %w", err)
		}
	}

	var remaining []string
	for _, sym := range g.opts.Symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym != "" && !tracker.IsDone(sym) {
			remaining = append(remaining, sym)
		}
	}
	var batches [][]string
	for i := 0; i < len(remaining); i += g.opts.BatchSize {
		batches = append(batches, remaining[i:min(i+g.opts.BatchSize, len(remaining))])
	}

	g.log.Info("starting us-daily",
		"endDate", endStr,
		"symbols", len(g.opts.Symbols),
		"remaining", len(remaining),
		"batches", len(batches),
	)

	var (
		bars     atomic.Int64
		empty    atomic.Int64
		runStart = time.Now()
		r        = gather.DateRange{Start: start, End: end}
	)
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.MaxWorkers)
	for i, batch := range batches {
		eg.Go(func() error {
			got, err := g.fetcher.fetchMulti(ectx, batch, r)
			if err != nil {
				return fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
			}
			var all []domain.Bar
			for _, sym := range batch {
				if len(got[sym]) == 0 {
					empty.Add(1)
					g.log.Warn("no bars", "symbol", sym)
				}
				all = append(all, got[sym]...)
			}
			if err := g.store.WriteBars(ectx, all); err != nil {
				return fmt.Errorf("writing batch %d/%d: %w", i+1, len(batches), err)
			}
			if err := tracker.MarkDone(batch...); err != nil {
				return err
			}
			bars.Add(int64(len(all)))
			g.log.Info("batch done",
				"batch", fmt.Sprintf("%d/%d", i+1, len(batches)),
				"bars", len(all),
				"elapsed", time.Since(runStart).Round(time.Second),
			)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	if err := tracker.MarkCompleted(endStr); err != nil {
		return fmt.Errorf("marking completed: %w", err)
	}
	g.log.Info("complete",
		"bars", bars.Load(),
		"empty", empty.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return nil
}

func (g *DailyBarGatherer) endDate(ctx context.Context) (time.Time, error) {
	if g.opts.EndDate != nil {
		return g.opts.EndDate(ctx)
	}
	y, m, d := time.Now().UTC().AddDate(0, 0, -1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
